package social

import (
	"errors"
	"fmt"
)

// ErrNotConfigured is returned when no agent credentials were supplied.
var ErrNotConfigured = errors.New("BROWSER_USE_API_KEY not configured in .env")

// UpstreamError wraps a failure while submitting or awaiting an agent task.
type UpstreamError struct {
	Platform Platform
	Err      error
}

func (e *UpstreamError) Error() string {
	return e.Err.Error()
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ValidationError reports a malformed scrape request or an unknown platform.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}
