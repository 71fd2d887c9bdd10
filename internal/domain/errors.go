package domain

import "fmt"

// Error taxonomy for price resolution and streaming.
//
// Per-symbol failures (NotFoundError, TransientFetchError) degrade to a
// fallback price and are never surfaced to API callers. Whole-call
// preconditions (AuthError, ValidationError) are hard errors. ConnectionError
// only ever reaches callers as a status change on the stream.

// AuthError indicates a missing or expired credential. Not retried.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error: %s", e.Reason)
}

// NotFoundError indicates a symbol or scheme that could not be resolved.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
}

// TransientFetchError wraps a network or timeout failure for one symbol.
type TransientFetchError struct {
	Symbol string
	Err    error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("transient fetch failure for %s: %v", e.Symbol, e.Err)
}

func (e *TransientFetchError) Unwrap() error {
	return e.Err
}

// ValidationError indicates rejected input, checked before any mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConnectionError indicates the streaming socket closed. It triggers the
// reconnect path and is surfaced to subscribers as a status event.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("stream connection error: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
