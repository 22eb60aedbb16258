package models

// ProcessStatus is the outcome category of a process execution.
type ProcessStatus string

const (
	// StatusSuccess indicates the process completed its work.
	StatusSuccess ProcessStatus = "success"
	// StatusFailure indicates the process could not complete.
	StatusFailure ProcessStatus = "failure"
	// StatusPartial indicates some but not all of the work completed.
	StatusPartial ProcessStatus = "partial"
)

// ProcessResult is the outcome of executing a process against a task, and
// also the per-task resolution returned by the wait primitive. Note that a
// process can succeed at routing an outcome even when the task's business
// outcome is failure; callers must check the task state for the latter.
type ProcessResult struct {
	// Status is the outcome category.
	Status ProcessStatus `json:"status"`
	// TaskID is the task the result refers to.
	TaskID int64 `json:"task_id"`
	// Data carries the structured payload on success.
	Data Result `json:"data,omitempty"`
	// Error describes the failure, empty on success.
	Error string `json:"error,omitempty"`
	// SubtasksCreated lists IDs of subtasks the process created.
	SubtasksCreated []int64 `json:"subtasks_created,omitempty"`
	// RollbackNeeded indicates the process left partial state behind.
	RollbackNeeded bool `json:"rollback_needed,omitempty"`
}

// Success returns true if the status is StatusSuccess.
func (r ProcessResult) Success() bool {
	return r.Status == StatusSuccess
}

// Succeeded builds a success result carrying the given payload.
func Succeeded(taskID int64, data Result) ProcessResult {
	return ProcessResult{Status: StatusSuccess, TaskID: taskID, Data: data}
}

// Failed builds a failure result carrying the given error text.
func Failed(taskID int64, errText string) ProcessResult {
	return ProcessResult{Status: StatusFailure, TaskID: taskID, Error: errText}
}
