package fmp

import "fmt"

// TransientError wraps a network or timeout failure. The call never reached
// a provider verdict and may be retried by the caller with backoff; the
// client itself does not retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("fmp %s: transient: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// UpstreamError is a semantic rejection from the provider (unknown symbol,
// plan restriction, malformed payload). Not retryable.
type UpstreamError struct {
	Op     string
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("fmp %s: upstream status %d: %s", e.Op, e.Status, e.Body)
}

// QuotaDesyncError means the provider reported throttling even though every
// call passed the local limiter. That signals budget drift or another
// consumer of the same upstream quota, so it is surfaced distinctly instead
// of being folded into TransientError.
type QuotaDesyncError struct {
	Op     string
	Status int
}

func (e *QuotaDesyncError) Error() string {
	return fmt.Sprintf("fmp %s: upstream throttled (status %d) despite local rate governance", e.Op, e.Status)
}
