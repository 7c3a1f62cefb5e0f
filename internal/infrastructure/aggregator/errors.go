package aggregator

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure classes callers branch on.
// Anything else from the provider surfaces as *APIError.
var (
	// ErrAuthenticationFailed means the provider rejected our credentials
	// or the token endpoint itself errored.
	ErrAuthenticationFailed = errors.New("aggregator authentication failed")

	// ErrRateLimitExceeded means the per-account daily budget is spent.
	// The client returns it before making a network call.
	ErrRateLimitExceeded = errors.New("aggregator rate limit exceeded")

	// ErrUnavailable covers upstream 5xx responses and timeouts.
	ErrUnavailable = errors.New("aggregator unavailable")

	// ErrNotFound maps upstream 404s (unknown requisition, account, ...).
	ErrNotFound = errors.New("aggregator resource not found")
)

// APIError carries the upstream status and message for failures that don't
// fit one of the sentinel classes.
type APIError struct {
	StatusCode int
	Summary    string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("aggregator error (status %d): %s - %s", e.StatusCode, e.Summary, e.Detail)
	}
	return fmt.Sprintf("aggregator error (status %d): %s", e.StatusCode, e.Summary)
}

// classifyStatus maps a non-2xx upstream response to the error taxonomy.
func classifyStatus(status int, summary, detail string) error {
	switch {
	case status == 401 || status == 403:
		return fmt.Errorf("%w: %s", ErrAuthenticationFailed, summary)
	case status == 404:
		return fmt.Errorf("%w: %s", ErrNotFound, summary)
	case status == 429:
		return fmt.Errorf("%w: %s", ErrRateLimitExceeded, summary)
	case status >= 500:
		return fmt.Errorf("%w: status %d: %s", ErrUnavailable, status, summary)
	default:
		return &APIError{StatusCode: status, Summary: summary, Detail: detail}
	}
}
