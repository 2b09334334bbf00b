package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by storage lookups that match nothing.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a unique constraint would be
	// violated, e.g. a second analysis record for the same session.
	ErrAlreadyExists = errors.New("already exists")
)

// ValidationError rejects a user action that is well-formed but not
// allowed in the current session state, e.g. submitting an empty complaint.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

type ProviderErrorKind string

const (
	ProviderTimeout   ProviderErrorKind = "timeout"
	ProviderRateLimit ProviderErrorKind = "rate_limit"
	ProviderQuota     ProviderErrorKind = "quota"
	ProviderAPI       ProviderErrorKind = "api"
)

// ProviderError wraps a failure from the analysis provider. It never
// reaches the chat-facing submit flow; the orchestrator records it in
// ProcessingMeta and logs.
type ProviderError struct {
	Kind ProviderErrorKind
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("analysis provider %s: %v", e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// MalformedResponse indicates the provider returned text from which no JSON
// object could be recovered even after stripping markup.
type MalformedResponse struct {
	Detail string
}

func (e *MalformedResponse) Error() string {
	return "malformed provider response: " + e.Detail
}

// StorageError wraps a persistence failure so callers can distinguish it
// from domain rejections when degrading to an apology reply.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
