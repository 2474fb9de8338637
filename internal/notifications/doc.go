// Package notifications delivers worker events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Individual event categories (restarts, approvals, errors) can be
// toggled independently so a quiet topic stays quiet.
//
// Extend this package if you need alternative transports; all worker code
// depends only on the simple Service interface.
package notifications
