package gateway

import (
	"errors"
	"fmt"
)

// Errors the gateway client returns. All are expected-at-runtime: callers
// catch them at the call site, leave case state unchanged and surface the
// failure to the initiating user action.
var (
	ErrUnavailable     = errors.New("assessment gateway unavailable")
	ErrRateLimited     = errors.New("assessment gateway rate limit exceeded")
	ErrInvalidResponse = errors.New("invalid assessment gateway response")
)

// RateLimitError carries the gateway's Retry-After hint.
type RateLimitError struct {
	RetryAfter int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%v, retry after %ds", ErrRateLimited, e.RetryAfter)
}

// Unwrap lets errors.Is(err, ErrRateLimited) match.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}
