// Package errors holds the sentinels API errors wrap, so callers can test a
// failure's class with errors.Is without knowing its HTTP mapping.
package errors

import (
	"context"
	"errors"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnavailable marks a dependency (database, bus, archive) that failed.
	ErrUnavailable = errors.New("unavailable")
	ErrTooLarge    = errors.New("too large")
)

// IsTimeout reports whether err comes from a cancelled or expired context.
func IsTimeout(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
