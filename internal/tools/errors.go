package tools

import "errors"

// Registry-construction errors: these concern malformed Operation values at
// Register time, not operation execution, so they stay plain Go errors
// rather than the errs.Error wire taxonomy used by Execute/ExecuteOperation.
var (
	ErrNotFound          = errors.New("operation not found")
	ErrNameEmpty         = errors.New("operation name cannot be empty")
	ErrExecuteNil        = errors.New("operation execute function cannot be nil")
	ErrAlreadyRegistered = errors.New("operation already registered")
)
