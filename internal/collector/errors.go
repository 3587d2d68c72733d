package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"BollWatch/internal/model"
)

// FetchError is a classified upstream failure.
type FetchError struct {
	Kind   model.ErrorKind
	Symbol string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: %s (status %d): %v", e.Symbol, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.Symbol, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// KindOf returns the error kind carried by err, or ErrUnexpected.
func KindOf(err error) model.ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.ErrTransient
	}
	return model.ErrUnexpected
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == model.ErrTransient
}

func newFetchError(kind model.ErrorKind, symbol string, status int, err error) *FetchError {
	return &FetchError{Kind: kind, Symbol: symbol, Status: status, Err: err}
}

// classifyStatus maps a non-200 HTTP status. Credentialed sources treat
// 401/403 as an expired token; for the others they are fatal.
func classifyStatus(symbol string, status int, body []byte, credentialed bool) *FetchError {
	err := fmt.Errorf("body: %s", truncate(body, 200))
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		if credentialed {
			return newFetchError(model.ErrAuthExpired, symbol, status, err)
		}
		return newFetchError(model.ErrFatal, symbol, status, err)
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return newFetchError(model.ErrTransient, symbol, status, err)
	default:
		return newFetchError(model.ErrFatal, symbol, status, err)
	}
}

// classifyTransport maps an error from http.Client.Do. Timeouts, resets and
// refused connections are all transient.
func classifyTransport(symbol string, err error) *FetchError {
	return newFetchError(model.ErrTransient, symbol, 0, err)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
