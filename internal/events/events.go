// Package events defines the audit events emitted by the orchestration
// engine and a buffered emitter for delivering them to subscribers.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/kmordal/taskloom/pkg/models"
)

// Type represents the kind of engine event.
type Type string

const (
	// TypeTaskCreated indicates a task was created.
	TypeTaskCreated Type = "task_created"
	// TypeStateChanged indicates a task moved between lifecycle states.
	TypeStateChanged Type = "state_changed"
	// TypeTaskCompleted indicates a task reached the completed state.
	TypeTaskCompleted Type = "task_completed"
	// TypeTaskFailed indicates a task reached the failed state.
	TypeTaskFailed Type = "task_failed"
	// TypeTaskHeld indicates the scheduler parked a task for manual approval.
	TypeTaskHeld Type = "task_held"
	// TypeTaskResumed indicates an operator released a held task.
	TypeTaskResumed Type = "task_resumed"
	// TypeTreeCancelled indicates a whole tree was cancelled.
	TypeTreeCancelled Type = "tree_cancelled"
)

// Event is one audit record. Consumption is fire-and-forget from the
// engine's perspective.
type Event struct {
	// ID uniquely identifies the event.
	ID string
	// Type is the kind of event.
	Type Type
	// TaskID is the related task, if applicable.
	TaskID int64
	// TreeID is the tree the task belongs to.
	TreeID int64
	// OldState and NewState are set on state_changed events.
	OldState models.TaskState
	NewState models.TaskState
	// Message provides additional context.
	Message string
	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// New creates an event with a fresh ID and timestamp.
func New(t Type, taskID, treeID int64) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      t,
		TaskID:    taskID,
		TreeID:    treeID,
		Timestamp: time.Now(),
	}
}
