// Package errs defines calm's structured error taxonomy. Every public
// operation across ghap, persister, searcher, clusterer, contextassembler,
// and gatepass returns one of these kinds rather than an ad hoc error value,
// so callers (including a future MCP transport) can render a stable
// {type, message} envelope without inspecting Go error chains.
package errs

import "fmt"

// Kind is one of the taxonomy's error kinds. These are data, not Go types:
// callers switch on Kind, never on errors.Is/As against sentinel values.
type Kind string

const (
	// ValidationError: input fails a precondition. Message lists valid
	// options or ranges.
	ValidationError Kind = "validation_error"

	// NotFound: a referenced id or collection is absent.
	NotFound Kind = "not_found"

	// ActiveExists: a state-machine precondition was violated (e.g. a
	// second active GHAP observation in the same session).
	ActiveExists Kind = "active_exists"

	// InsufficientData: the clusterer was asked to run on fewer than
	// min_cluster_size points; no clusters were produced.
	InsufficientData Kind = "insufficient_data"

	// EmbeddingError: the embedding model failed inference.
	EmbeddingError Kind = "embedding_error"

	// StorageError: the vector or metadata store rejected a call.
	StorageError Kind = "storage_error"

	// InternalError: unclassified failure.
	InternalError Kind = "internal_error"

	// NoPass: verify_gate_pass found no recorded pass for the given
	// (task_id, transition).
	NoPass Kind = "no_pass"

	// SHAMismatch: verify_gate_pass found a recorded pass, but for a
	// different commit than the one presented.
	SHAMismatch Kind = "sha_mismatch"
)

// Error is the structured error every calm operation returns on failure.
// Operations recover nothing internally; all failures surface this way.
type Error struct {
	Type    Kind   `json:"type"`
	Message string `json:"message"`

	// cause is retained for %w-style unwrapping and logging context, but
	// is never part of the wire-visible {type, message} envelope.
	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New builds a structured error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Type: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a structured error of the given kind, embedding cause's
// message as required by the embedding_error/storage_error propagation
// policy, and preserving cause for Unwrap.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	msg := fmt.Sprintf(format, args...)
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return &Error{Type: kind, Message: msg, cause: cause}
}

// Validation is shorthand for New(ValidationError, ...).
func Validation(format string, args ...interface{}) *Error {
	return New(ValidationError, format, args...)
}

// NotFoundf is shorthand for New(NotFound, ...).
func NotFoundf(format string, args ...interface{}) *Error {
	return New(NotFound, format, args...)
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Type == kind
}
