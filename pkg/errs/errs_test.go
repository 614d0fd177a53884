package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainSentinelMatchesKind(t *testing.T) {
	errCounterNotFound := New(ErrNotFound, "counter_not_found")
	wrapped := fmt.Errorf("allocate: %w", errCounterNotFound)

	assert.True(t, errors.Is(wrapped, errCounterNotFound))
	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.False(t, errors.Is(wrapped, ErrConflict))
	assert.Equal(t, "counter_not_found", CodeOf(wrapped))
}

func TestCodeOfFallsBackToKind(t *testing.T) {
	assert.Equal(t, "conflict", CodeOf(fmt.Errorf("x: %w", ErrConflict)))
	assert.Equal(t, "internal_error", CodeOf(errors.New("boom")))
}
