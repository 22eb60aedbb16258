package engine

import (
	"context"
	"sync"
	"time"

	"github.com/kmordal/taskloom/pkg/models"
)

// WaitForever requests an unbounded wait. Any other non-positive timeout
// means "check once, never block".
const WaitForever time.Duration = -1

// waiter tracks a per-task completion signal, fulfilled exactly once when
// the task reaches a terminal state.
type waiter struct {
	mu      sync.Mutex
	signals map[int64]*taskSignal
}

type taskSignal struct {
	ch   chan struct{}
	once sync.Once
}

func newWaiter() *waiter {
	return &waiter{signals: make(map[int64]*taskSignal)}
}

func (w *waiter) get(id int64) *taskSignal {
	w.mu.Lock()
	defer w.mu.Unlock()

	s, ok := w.signals[id]
	if !ok {
		s = &taskSignal{ch: make(chan struct{})}
		w.signals[id] = s
	}
	return s
}

// channel returns the done channel for the task, creating it if needed.
func (w *waiter) channel(id int64) <-chan struct{} {
	return w.get(id).ch
}

// signal closes the task's done channel. Safe to call more than once.
func (w *waiter) signal(id int64) {
	s := w.get(id)
	s.once.Do(func() { close(s.ch) })
}

// WaitForTasks blocks until every referenced task reaches a terminal state,
// the timeout elapses, or the context is cancelled. Results are returned in
// the order tasks finished, not the order requested. Tasks still
// outstanding when the timeout fires are force-resolved as timeout
// failures; the call never blocks indefinitely unless WaitForever is
// passed. A zero timeout checks terminal state once without blocking.
func (e *Engine) WaitForTasks(ctx context.Context, ids []int64, timeout time.Duration) ([]models.ProcessResult, error) {
	results := make([]models.ProcessResult, 0, len(ids))
	outstanding := make(map[int64]bool, len(ids))

	// Register the completion channel before reading state, so a task
	// that turns terminal between the read and the wait is still caught.
	for _, id := range ids {
		e.waiter.channel(id)
	}

	for _, id := range ids {
		task, err := e.GetTask(id)
		if err != nil {
			return nil, err
		}
		if task.State.Terminal() {
			results = append(results, terminalResult(task))
			continue
		}
		outstanding[id] = true
	}

	if len(outstanding) == 0 {
		return results, nil
	}
	if timeout == 0 || (timeout < 0 && timeout != WaitForever) {
		return e.resolveOutstanding(results, ids, outstanding, "wait timeout: task did not finish"), nil
	}

	var timer <-chan time.Time
	if timeout > 0 {
		tm := time.NewTimer(timeout)
		defer tm.Stop()
		timer = tm.C
	}

	finished := make(chan int64, len(outstanding))
	cancelWait := make(chan struct{})
	defer close(cancelWait)
	for id := range outstanding {
		go func(id int64) {
			select {
			case <-e.waiter.channel(id):
				finished <- id
			case <-cancelWait:
			}
		}(id)
	}

	for len(outstanding) > 0 {
		select {
		case id := <-finished:
			task, err := e.GetTask(id)
			if err != nil {
				return nil, err
			}
			results = append(results, terminalResult(task))
			delete(outstanding, id)
		case <-timer:
			e.log.Log("[engine] wait timed out with %d tasks outstanding", len(outstanding))
			return e.resolveOutstanding(results, ids, outstanding, "wait timeout: task did not finish"), nil
		case <-ctx.Done():
			return e.resolveOutstanding(results, ids, outstanding, "wait cancelled: "+ctx.Err().Error()), nil
		}
	}
	return results, nil
}

// resolveOutstanding force-resolves every still-outstanding task as a
// failure result, in requested order for determinism.
func (e *Engine) resolveOutstanding(results []models.ProcessResult, ids []int64, outstanding map[int64]bool, errText string) []models.ProcessResult {
	for _, id := range ids {
		if outstanding[id] {
			results = append(results, models.Failed(id, errText))
		}
	}
	return results
}

// terminalResult converts a terminal task into its wait result.
func terminalResult(task *models.Task) models.ProcessResult {
	if task.State == models.StateCompleted {
		return models.Succeeded(task.ID, task.Result)
	}
	errText := task.Error
	if errText == "" {
		errText = "task failed"
	}
	return models.Failed(task.ID, errText)
}
