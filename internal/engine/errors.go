package engine

import "fmt"

// EntityNotFoundError indicates a referenced task or parent does not exist.
type EntityNotFoundError struct {
	// Kind names the missing entity ("task", "parent task", "dependency").
	Kind string
	// ID is the identifier that was looked up.
	ID int64
}

func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

// ValidationError indicates malformed input, such as a too-short instruction
// or an unknown process name.
type ValidationError struct {
	// Field names the offending parameter.
	Field string
	// Reason describes why validation failed.
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TaskExecutionError indicates an operation failed after validation,
// including illegal state transitions and mutation of terminal tasks.
type TaskExecutionError struct {
	// TaskID is the task the operation targeted.
	TaskID int64
	// Op names the failed operation.
	Op string
	// Reason describes the failure.
	Reason string
}

func (e *TaskExecutionError) Error() string {
	return fmt.Sprintf("task %d: %s: %s", e.TaskID, e.Op, e.Reason)
}

// RuntimeError indicates a dispatch-level failure outside any single task
// operation, such as the agent-execution layer being unavailable.
type RuntimeError struct {
	// Op names the failed operation.
	Op string
	// Err is the underlying error.
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}
