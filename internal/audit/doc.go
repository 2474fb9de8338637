// Package audit maintains the append-only activity trail: one JSON file
// per day under the vault's Logs directory, each holding an ordered array
// of action entries. Every consequential decision the system makes is
// recorded here before the corresponding record moves stage.
package audit
