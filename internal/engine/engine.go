// Package engine implements the primitive library: the only sanctioned
// mutation path for tasks. Processes and the scheduler operate exclusively
// through it; nothing else may touch task state.
package engine

import (
	"sync"

	"github.com/kmordal/taskloom/internal/events"
	"github.com/kmordal/taskloom/internal/logging"
	"github.com/kmordal/taskloom/internal/store"
	"github.com/kmordal/taskloom/pkg/models"
)

// Engine owns all task mutations. It guarantees at most one in-flight
// state-mutating operation per task ID via per-task locks, emits one event
// per transition, and fulfils per-task completion signals exactly once.
type Engine struct {
	store   store.TaskStore
	emitter *events.Emitter
	log     *logging.Logger

	waiter *waiter

	locksMu sync.Mutex
	locks   map[int64]*sync.Mutex
}

// New creates an Engine over the given store. The emitter and logger may
// each be nil-equivalent (an emitter is required; pass logging.Nop() to
// disable debug logging).
func New(s store.TaskStore, emitter *events.Emitter, log *logging.Logger) *Engine {
	return &Engine{
		store:   s,
		emitter: emitter,
		log:     log,
		waiter:  newWaiter(),
		locks:   make(map[int64]*sync.Mutex),
	}
}

// Store exposes read access to the underlying task store.
func (e *Engine) Store() store.TaskStore {
	return e.store
}

// Emitter exposes the event stream shared by all engine operations.
func (e *Engine) Emitter() *events.Emitter {
	return e.emitter
}

// lockTask returns the mutex guarding mutations of the given task ID.
func (e *Engine) lockTask(id int64) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()

	mu, ok := e.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		e.locks[id] = mu
	}
	return mu
}

// mutate runs fn on a fresh copy of the task under its per-task lock and
// writes the result back. fn sees the current stored state; any error it
// returns aborts the write.
func (e *Engine) mutate(id int64, fn func(*models.Task) error) (*models.Task, error) {
	mu := e.lockTask(id)
	mu.Lock()
	defer mu.Unlock()

	task, err := e.store.Get(id)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, &EntityNotFoundError{Kind: "task", ID: id}
		}
		return nil, err
	}
	before := task.State

	if err := fn(task); err != nil {
		return nil, err
	}

	if err := e.store.Update(task); err != nil {
		return nil, err
	}

	// Completion is signalled only after the write is durable, so a waiter
	// never observes a finished task before its recorded transition.
	if !before.Terminal() && task.State.Terminal() {
		t := events.TypeTaskCompleted
		if task.State == models.StateFailed {
			t = events.TypeTaskFailed
		}
		ev := events.New(t, task.ID, task.TreeID)
		ev.Message = task.Error
		e.emit(ev)
		e.waiter.signal(task.ID)
	}
	return task, nil
}

// GetTask returns a copy of the task with the given ID.
func (e *Engine) GetTask(id int64) (*models.Task, error) {
	task, err := e.store.Get(id)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, &EntityNotFoundError{Kind: "task", ID: id}
		}
		return nil, err
	}
	return task, nil
}

func (e *Engine) emit(ev events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(ev)
	}
}
