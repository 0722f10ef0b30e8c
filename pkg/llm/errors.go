package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Transient provider failures. They are surfaced to the caller for a
// user-visible retry and are never retried silently by the engine.
var (
	// ErrRateLimited indicates the provider rejected the call with a rate limit.
	ErrRateLimited = errors.New("llm: rate limited")

	// ErrTimeout indicates the call exceeded its deadline.
	ErrTimeout = errors.New("llm: request timed out")

	// ErrModel indicates a provider-side failure (5xx, malformed response).
	ErrModel = errors.New("llm: model error")
)

// ClassifyStatus wraps an HTTP failure status into the error taxonomy.
func ClassifyStatus(status int, body string) error {
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d: %s", ErrRateLimited, status, body)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: status %d: %s", ErrTimeout, status, body)
	case status >= 500:
		return fmt.Errorf("%w: status %d: %s", ErrModel, status, body)
	default:
		return fmt.Errorf("%w: status %d: %s", ErrModel, status, body)
	}
}

// ClassifyErr maps transport errors into the taxonomy. Context cancellation
// is passed through untouched so callers can distinguish a user-initiated
// cancel from a provider failure.
func ClassifyErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrModel, err)
}
