package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"calm/internal/errs"
	"calm/internal/logging"
)

// Registry holds every registered operation and dispatches calls to them.
// Thread-safe; operations may be registered at runtime, though calm's own
// startup registers everything once before serving any request.
type Registry struct {
	mu         sync.RWMutex
	operations map[string]*Operation
	byCategory map[Category][]*Operation
}

// NewRegistry creates an empty dispatcher.
func NewRegistry() *Registry {
	return &Registry{
		operations: make(map[string]*Operation),
		byCategory: make(map[Category][]*Operation),
	}
}

// Register adds an operation. Returns ErrAlreadyRegistered for a duplicate name.
func (r *Registry) Register(op *Operation) error {
	if err := op.Validate(); err != nil {
		return fmt.Errorf("invalid operation: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.operations[op.Name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, op.Name)
	}

	if op.Priority == 0 {
		op.Priority = 50
	}

	r.operations[op.Name] = op
	r.byCategory[op.Category] = append(r.byCategory[op.Category], op)

	logging.DispatcherDebug("registered operation: %s (category=%s, priority=%d)", op.Name, op.Category, op.Priority)
	return nil
}

// MustRegister registers an operation and panics on error. Use at init time
// for calm's own built-in operation set.
func (r *Registry) MustRegister(op *Operation) {
	if err := r.Register(op); err != nil {
		panic(fmt.Sprintf("failed to register operation %s: %v", op.Name, err))
	}
}

// Get returns an operation by name, or nil if not registered.
func (r *Registry) Get(name string) *Operation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.operations[name]
}

// Has reports whether an operation with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.operations[name]
	return ok
}

// GetByCategory returns every operation in a category, sorted by descending priority.
func (r *Registry) GetByCategory(category Category) []*Operation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ops := make([]*Operation, len(r.byCategory[category]))
	copy(ops, r.byCategory[category])

	sort.Slice(ops, func(i, j int) bool {
		return ops[i].Priority > ops[j].Priority
	})
	return ops
}

// All returns every registered operation.
func (r *Registry) All() []*Operation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Operation, 0, len(r.operations))
	for _, op := range r.operations {
		result = append(result, op)
	}
	return result
}

// Names returns every registered operation name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.operations))
	for name := range r.operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered operations.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.operations)
}

// Execute dispatches to a named operation. If the name is unregistered,
// that is itself a validation_error (the caller named something that
// doesn't exist) rather than the dispatcher's own not_found, since
// not_found is reserved for data lookups inside an operation.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) *Result {
	op := r.Get(name)
	if op == nil {
		return &Result{
			OperationName: name,
			Err:           errs.Validation("unknown operation: %s", name),
		}
	}
	return r.ExecuteOperation(ctx, op, args)
}

// ExecuteOperation runs a specific operation with the given arguments.
func (r *Registry) ExecuteOperation(ctx context.Context, op *Operation, args map[string]any) *Result {
	start := time.Now()

	if err := r.validateArgs(op, args); err != nil {
		return &Result{
			OperationName: op.Name,
			Err:           err,
			DurationMs:    time.Since(start).Milliseconds(),
		}
	}

	logging.DispatcherDebug("dispatching operation: %s", op.Name)
	value, err := op.Execute(ctx, args)
	duration := time.Since(start)
	logging.DispatcherDebug("operation %s completed in %v (success=%v)", op.Name, duration, err == nil)

	return &Result{
		OperationName: op.Name,
		Value:         value,
		Err:           err,
		DurationMs:    duration.Milliseconds(),
	}
}

// validateArgs checks that every schema-required argument is present,
// surfacing a validation_error that names the missing argument.
func (r *Registry) validateArgs(op *Operation, args map[string]any) *errs.Error {
	for _, required := range op.Schema.Required {
		if _, ok := args[required]; !ok {
			return errs.Validation("missing required argument: %s", required)
		}
	}
	return nil
}

// Global registry instance. calm's own packages do not register into it:
// cmd/calm builds a fresh Registry and calls each package's
// RegisterOperations on that instead.
var globalRegistry = NewRegistry()

// Global returns the process-wide dispatcher.
func Global() *Registry {
	return globalRegistry
}

// Register adds an operation to the global dispatcher.
func Register(op *Operation) error {
	return globalRegistry.Register(op)
}

// MustRegisterGlobal registers an operation globally, panicking on error.
func MustRegisterGlobal(op *Operation) {
	globalRegistry.MustRegister(op)
}

// Get retrieves an operation from the global dispatcher.
func Get(name string) *Operation {
	return globalRegistry.Get(name)
}

// Execute dispatches a call against the global dispatcher.
func Execute(ctx context.Context, name string, args map[string]any) *Result {
	return globalRegistry.Execute(ctx, name, args)
}
