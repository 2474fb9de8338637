// Package config loads, validates, and normalizes valet's TOML
// configuration. Path fields are tilde-expanded and made absolute during
// Load so downstream packages never deal with relative paths.
package config
