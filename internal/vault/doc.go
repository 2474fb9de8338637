// Package vault implements the durable folder queue: a directory tree in
// which each lifecycle stage is a directory and each work item is a
// markdown file with YAML front matter. Stage membership is physical
// location, and the only state transition is an atomic rename between
// stage directories, so the tree doubles as the system's crash-safe store.
package vault
