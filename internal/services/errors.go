package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransient marks retryable upstream failures (network, rate limits).
	ErrTransient = errors.New("transient failure")
	// ErrValidation marks malformed records or payloads; never retried.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks missing or unusable configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks targets that disappeared, including records relocated
	// by a concurrent actor. Callers on the vault treat it as a benign race.
	ErrNotFound = errors.New("not found")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsTransient reports whether an error is tagged retryable.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsBenignRace reports whether an error represents losing a relocation race
// on the vault, which sweeps treat as a no-op rather than a failure.
func IsBenignRace(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
