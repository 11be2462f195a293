package errs

import (
	"fmt"
	"time"
)

// RetryError is a rate-limit rejection carrying a retry-after hint.
// It matches ErrRateLimited with errors.Is.
type RetryError struct {
	After time.Duration
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.After.Round(time.Second))
}

// Unwrap returns ErrRateLimited.
func (e *RetryError) Unwrap() error { return ErrRateLimited }
