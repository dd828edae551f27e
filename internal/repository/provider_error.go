package repository

import (
	"errors"
	"fmt"
	"net/http"
)

type ProviderErrorKind string

const (
	ErrKindRateLimited     ProviderErrorKind = "rate_limited"
	ErrKindInvalidSymbol   ProviderErrorKind = "invalid_symbol"
	ErrKindTransport       ProviderErrorKind = "transport_error"
	ErrKindInvalidResponse ProviderErrorKind = "invalid_response"
	ErrKindAuthFailed      ProviderErrorKind = "auth_failed"
	ErrKindQuotaExhausted  ProviderErrorKind = "quota_exhausted"
)

// ProviderError is the typed failure every quote adapter returns.
type ProviderError struct {
	Provider   string
	Kind       ProviderErrorKind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsPermanent reports failures that will not clear up by waiting.
func (e *ProviderError) IsPermanent() bool {
	return e.Kind == ErrKindAuthFailed || e.Kind == ErrKindQuotaExhausted
}

// ProviderErrorKindOf returns the kind of err, or "" when err is not a ProviderError.
func ProviderErrorKindOf(err error) ProviderErrorKind {
	var pErr *ProviderError
	if errors.As(err, &pErr) {
		return pErr.Kind
	}
	return ""
}

// kindFromStatus maps a non-2xx HTTP status to an error kind.
func kindFromStatus(status int) ProviderErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrKindRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrKindAuthFailed
	case status == http.StatusPaymentRequired:
		return ErrKindQuotaExhausted
	case status == http.StatusNotFound:
		return ErrKindInvalidSymbol
	case status >= http.StatusInternalServerError:
		return ErrKindTransport
	default:
		return ErrKindInvalidResponse
	}
}
