// Package ipc implements JSON-RPC control of the daemon over a Unix
// domain socket. The CLI is the only intended client.
package ipc
