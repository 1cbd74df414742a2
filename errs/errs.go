// Package errs defines the engine's error taxonomy. Each kind is
// a distinct Go type so callers can dispatch with errors.As instead of
// string matching, and the HTTP layer maps kinds to status codes.
package errs

import "fmt"

// ValidationError indicates a malformed request.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return "validation: " + e.Msg }

// AuthError indicates missing or insufficient authentication/authorization.
type AuthError struct{ Msg string }

func (e *AuthError) Error() string { return "auth: " + e.Msg }

// NotFoundError indicates the referenced entity does not exist.
type NotFoundError struct{ Msg string }

func (e *NotFoundError) Error() string { return "not found: " + e.Msg }

// ConflictError indicates a uniqueness or state-conflict violation.
type ConflictError struct{ Msg string }

func (e *ConflictError) Error() string { return "conflict: " + e.Msg }

// QuotaExceededError indicates a concurrent-call or plan-limit violation.
type QuotaExceededError struct{ Msg string }

func (e *QuotaExceededError) Error() string { return "quota exceeded: " + e.Msg }

// ProviderError wraps a non-2xx or timeout response from an STT/LLM/TTS/
// tool-server call. Within a session this is recoverable: the caller logs
// it and returns the turn to listening rather than ending the call.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// TransportError indicates a client disconnect or socket error.
type TransportError struct{ Msg string }

func (e *TransportError) Error() string { return "transport: " + e.Msg }

// FatalError is irrecoverable: the session must be force-terminated.
type FatalError struct{ Msg string }

func (e *FatalError) Error() string { return "fatal: " + e.Msg }
