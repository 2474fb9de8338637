// Package logs reads the daemon's current log file for `valet logs`.
//
// LastLines tails the final N lines with bounded memory; Follower then
// streams anything appended after them, surviving the rotation that
// happens when valetd restarts and repoints valet.log. Polling stops
// when the caller's context ends.
package logs
