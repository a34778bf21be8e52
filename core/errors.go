package core

import (
	"errors"
	"fmt"
)

// ProviderError represents a failed provider call with full context. It wraps
// one of the sentinel errors below so callers can classify with errors.Is
// while still reaching the upstream status and message.
type ProviderError struct {
	Provider string
	Status   int
	Code     string
	Message  string
	Err      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status=%d, code=%s)", e.Provider, e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying sentinel for error chaining.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Sentinel errors for classification.
var (
	// ErrMissingCredential means no secret is configured for the provider.
	// It is raised before any network I/O happens.
	ErrMissingCredential = errors.New("missing credential")

	// ErrUnsupportedModel means the registry has no provider mapping for the
	// requested model identifier.
	ErrUnsupportedModel = errors.New("unsupported model")

	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrRateLimited  = errors.New("rate limited")
	ErrServer       = errors.New("server error")
	ErrNetwork      = errors.New("network error")
	ErrDecode       = errors.New("decode error")
)
