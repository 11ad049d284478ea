// Package gwerrors holds the Gateway's error taxonomy:
// Unavailable/Invalid/Throttled transport-level sentinels, plus the
// Busy sentinel the Coordinator uses to reject overlapping runs.
package gwerrors

import (
	"errors"
	"fmt"
)

// Sentinel transport-failure classes. Wrap with fmt.Errorf("...: %w")
// at the call site so errors.Is still matches.
var (
	Unavailable = errors.New("gateway: endpoint unavailable")
	Invalid     = errors.New("gateway: invalid argument")
	Throttled   = errors.New("gateway: throttled")
)

// Busy is returned by the Coordinator when a caller tries to start a
// run while one is already active.
var Busy = errors.New("coordinator: a run is already in progress")

// IsTransient reports whether err should be retried by the Gateway's
// backoff loop.
func IsTransient(err error) bool {
	return errors.Is(err, Unavailable) || errors.Is(err, Throttled)
}

// Wrap annotates a sentinel class with a formatted message while
// preserving %w so errors.Is keeps working.
func Wrap(sentinel error, format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), sentinel)
}
