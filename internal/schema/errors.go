package schema

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitError is the platform's flood-wait signal: no further requests of
// this kind are accepted before Wait elapses.
type RateLimitError struct {
	Wait time.Duration
	Err  error
}

func (e *RateLimitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("rate limited: retry after %s", e.Wait)
	}
	return fmt.Sprintf("rate limited: retry after %s: %v", e.Wait, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// PermissionError means the bot may not post to the target chat.
type PermissionError struct {
	Err error
}

func (e *PermissionError) Error() string {
	if e.Err == nil {
		return "permission denied"
	}
	return "permission denied: " + e.Err.Error()
}

func (e *PermissionError) Unwrap() error { return e.Err }

// AsRateLimit extracts a rate-limit signal from err, if any.
func AsRateLimit(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}

// IsPermissionDenied reports whether err carries a permission-denied signal.
func IsPermissionDenied(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}
