package store

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelErrorsWrap(t *testing.T) {
	wrapped := fmt.Errorf("wallet update failed - %w", ErrConcurrentModification)
	if !errors.Is(wrapped, ErrConcurrentModification) {
		t.Errorf("Expected wrapped error to match ErrConcurrentModification, got %v", wrapped)
	}
	if errors.Is(wrapped, ErrNotFound) {
		t.Errorf("Did not expect wrapped error to match ErrNotFound")
	}

	// Ensure the interfaces are usable types.
	var _ UserDirectory
	var _ Broadcaster
}
