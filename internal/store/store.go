// Package store provides persistence for tasks. It offers a SQLite-backed
// store for durable state and an in-memory store for tests, both behind the
// same interface.
package store

import (
	"errors"

	"github.com/kmordal/taskloom/pkg/models"
)

// ErrNotFound is returned when a referenced task does not exist.
var ErrNotFound = errors.New("task not found")

// TaskStore is the persistence boundary of the orchestration engine.
// Implementations must be safe for concurrent use and hand out copies:
// mutating a returned task must never affect stored state until the copy is
// written back through Update.
type TaskStore interface {
	// Create assigns a unique numeric ID to the task, persists it, and
	// returns the assigned ID. If the task has no tree ID it becomes a
	// root and its tree ID is set to its own ID.
	Create(task *models.Task) (int64, error)
	// Get returns the task with the given ID, or ErrNotFound.
	Get(id int64) (*models.Task, error)
	// Update overwrites the stored task. Returns ErrNotFound if the task
	// was never created.
	Update(task *models.Task) error
	// ListByTree returns every task in the given tree, ordered by ID.
	ListByTree(treeID int64) ([]*models.Task, error)
	// ListByParent returns the direct children of the given task, ordered by ID.
	ListByParent(parentID int64) ([]*models.Task, error)
	// ListByState returns every task in the given state, ordered by
	// priority descending then ID ascending.
	ListByState(state models.TaskState) ([]*models.Task, error)
	// ListAll returns every stored task, ordered by ID.
	ListAll() ([]*models.Task, error)
	// Close releases any resources held by the store.
	Close() error
}
