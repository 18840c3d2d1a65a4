package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/i474232898/bike-tracker/internal/tracking"
)

// ErrCorruptValue is returned when a persisted value cannot be decoded.
var ErrCorruptValue = errors.New("corrupt stored value")

// unavailable marks a backend failure as retryable. Context cancellation
// and deadlines belong to the caller and are passed through unmarked.
func unavailable(op string, err error) error {
	if isContextErr(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", tracking.ErrStoreUnavailable, op, err)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
