// Package textutil sanitizes externally supplied names before they become
// vault file names. Watcher providers take names from email headers,
// dropped files, and CSV uploads, none of which can be trusted to be
// filesystem-safe.
package textutil
