// Package logging assembles structured slog loggers and formatting helpers
// used across valet components.
//
// It owns the configurable console/JSON handlers, centralizes level and
// output plumbing, and standardizes attribute keys so watchers, the
// orchestrator, posters, and the supervisor all emit log lines with the
// same shape. A no-op logger is provided for tests and wiring code that
// cannot fail.
package logging
