package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind classifies a provider failure.
type ErrorKind string

const (
	// ErrAuth means the backend rejected the credentials.
	ErrAuth ErrorKind = "auth"
	// ErrTimeout means the call exceeded its deadline.
	ErrTimeout ErrorKind = "timeout"
	// ErrUnavailable means the backend could not be reached or returned
	// a server error.
	ErrUnavailable ErrorKind = "unavailable"
	// ErrMalformedResponse means the backend answered but the payload
	// could not be parsed into a completion.
	ErrMalformedResponse ErrorKind = "malformed_response"
)

// ProviderError is the failure surface of every provider call.
type ProviderError struct {
	Provider string    // Provider name the failure came from.
	Kind     ErrorKind // Failure classification.
	Message  string    // Human-readable detail.
	Err      error     // Underlying cause, may be nil.
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("provider %s: %s: %s", e.Provider, e.Kind, e.Message)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Kind)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// classifyTransportError maps an HTTP transport failure to a ProviderError.
func classifyTransportError(providerName string, err error) *ProviderError {
	kind := ErrUnavailable
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = ErrTimeout
	}
	return &ProviderError{Provider: providerName, Kind: kind, Message: err.Error(), Err: err}
}

// classifyStatus maps a non-2xx HTTP status to a ProviderError.
func classifyStatus(providerName string, status int) *ProviderError {
	kind := ErrUnavailable
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		kind = ErrAuth
	}
	return &ProviderError{
		Provider: providerName,
		Kind:     kind,
		Message:  fmt.Sprintf("unexpected status %d", status),
	}
}

// malformed wraps a parse failure.
func malformed(providerName, detail string, err error) *ProviderError {
	return &ProviderError{Provider: providerName, Kind: ErrMalformedResponse, Message: detail, Err: err}
}
