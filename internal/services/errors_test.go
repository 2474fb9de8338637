package services

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("connection reset")
	err := Wrap(ErrTransient, "publisher", "post", "endpoint unreachable", base)
	if !IsTransient(err) {
		t.Fatalf("expected transient classification: %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped cause to survive: %v", err)
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := Wrap(nil, "poster", "publish", "", nil)
	if !IsTransient(err) {
		t.Fatalf("nil marker should default to transient: %v", err)
	}
}

func TestIsBenignRace(t *testing.T) {
	err := fmt.Errorf("advance: %w", Wrap(ErrNotFound, "vault", "advance", "record moved", nil))
	if !IsBenignRace(err) {
		t.Fatalf("expected benign race classification: %v", err)
	}
	if IsBenignRace(errors.New("other")) {
		t.Fatal("plain errors are not benign races")
	}
}

func TestWrapDetailFallback(t *testing.T) {
	err := Wrap(ErrValidation, "", "", "", nil)
	if got := err.Error(); got != "validation error: service failure" {
		t.Fatalf("unexpected message: %q", got)
	}
}
