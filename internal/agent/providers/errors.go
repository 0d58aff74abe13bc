package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// FailReason buckets a provider failure for retry decisions.
type FailReason string

const (
	ReasonAuth          FailReason = "auth"
	ReasonBilling       FailReason = "billing"
	ReasonRateLimit     FailReason = "rate_limit"
	ReasonTimeout       FailReason = "timeout"
	ReasonServer        FailReason = "server_error"
	ReasonBadRequest    FailReason = "invalid_request"
	ReasonModelMissing  FailReason = "model_unavailable"
	ReasonContentFilter FailReason = "content_filter"
	ReasonUnknown       FailReason = "unknown"
)

// Retryable reports whether a request failing for this reason is worth
// retrying against the same provider.
func (r FailReason) Retryable() bool {
	return r == ReasonRateLimit || r == ReasonTimeout || r == ReasonServer
}

// ProviderError is the normalized error every adapter surfaces. Status is
// the HTTP status when one applies, zero otherwise.
type ProviderError struct {
	Provider string
	Model    string
	Reason   FailReason
	Status   int
	Cause    error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Provider, e.Reason)
	if e.Model != "" {
		fmt.Fprintf(&b, " model=%s", e.Model)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " status=%d", e.Status)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// reasonForStatus maps an HTTP status to a FailReason.
func reasonForStatus(status int) FailReason {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ReasonAuth
	case status == http.StatusPaymentRequired:
		return ReasonBilling
	case status == http.StatusTooManyRequests:
		return ReasonRateLimit
	case status == http.StatusNotFound:
		return ReasonModelMissing
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ReasonTimeout
	case status >= 500:
		return ReasonServer
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return ReasonBadRequest
	default:
		return ReasonUnknown
	}
}

// wrapError normalizes err into a *ProviderError. Already-normalized errors
// pass through untouched so reasons assigned close to the SDK survive.
func wrapError(provider, model string, status int, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}

	reason := ReasonUnknown
	switch {
	case status != 0:
		reason = reasonForStatus(status)
	case errors.Is(err, context.DeadlineExceeded):
		reason = ReasonTimeout
	default:
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			reason = ReasonTimeout
		}
	}
	return &ProviderError{Provider: provider, Model: model, Reason: reason, Status: status, Cause: err}
}

// isRetryable reports whether err should be retried with backoff.
func isRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Reason.Retryable()
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
