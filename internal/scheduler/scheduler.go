// Package scheduler drives tasks through their lifecycle: it assigns
// processes to fresh tasks, releases tasks whose dependencies have
// resolved, and dispatches ready tasks to agents under a concurrency
// ceiling. All mutations go through the engine's primitives.
package scheduler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kmordal/taskloom/internal/engine"
	"github.com/kmordal/taskloom/internal/events"
	"github.com/kmordal/taskloom/internal/logging"
	"github.com/kmordal/taskloom/internal/process"
	"github.com/kmordal/taskloom/pkg/models"
)

// AgentRunner executes the agent conversation for a dispatched task. It is
// invoked once the task has reached AGENT_RESPONDING and is responsible
// for driving the task to a terminal state or parking it on dependencies.
type AgentRunner interface {
	RunTask(ctx context.Context, taskID int64) error
}

// Defaults applied when Options leaves a field zero.
const (
	DefaultMaxAgents    = 3
	DefaultPollInterval = 50 * time.Millisecond
)

// Options configures a Scheduler.
type Options struct {
	// MaxAgents bounds how many agent conversations run at once.
	MaxAgents int64
	// StepMode holds every task for operator approval before dispatch.
	StepMode bool
	// PollInterval is the pump cadence.
	PollInterval time.Duration
}

// Scheduler owns the three pumps. Fresh tasks get their assigned process
// executed in a goroutine; tasks parked on dependencies are released once
// every dependency is terminal; ready tasks are dispatched to the runner
// under a weighted semaphore.
type Scheduler struct {
	engine   *engine.Engine
	registry *process.Registry
	runner   AgentRunner
	log      *logging.Logger
	poll     time.Duration

	mu       sync.Mutex
	sem      *semaphore.Weighted
	stepMode bool
	paused   bool
	// preparing holds task IDs whose process is mid-execution. The
	// dependency pump must not release these: the owning process resumes
	// them itself after its wait resolves.
	preparing map[int64]struct{}
	// released holds held task IDs the operator has approved, so the
	// dispatch pump does not hold them a second time.
	released map[int64]struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	stop      chan struct{}
	loopDone  chan struct{}
	wg        sync.WaitGroup
}

// New creates a Scheduler. Zero option fields fall back to defaults.
func New(e *engine.Engine, registry *process.Registry, runner AgentRunner, log *logging.Logger, opts Options) *Scheduler {
	if opts.MaxAgents <= 0 {
		opts.MaxAgents = DefaultMaxAgents
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Scheduler{
		engine:    e,
		registry:  registry,
		runner:    runner,
		log:       log,
		poll:      opts.PollInterval,
		sem:       semaphore.NewWeighted(opts.MaxAgents),
		stepMode:  opts.StepMode,
		preparing: make(map[int64]struct{}),
		released:  make(map[int64]struct{}),
		stop:      make(chan struct{}),
		loopDone:  make(chan struct{}),
	}
}

// Start launches the pump loop. Safe to call once; subsequent calls are
// no-ops.
func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.mu.Lock()
		s.started = true
		s.mu.Unlock()
		go s.loop(ctx)
	})
}

// Stop halts the pump loop and waits for in-flight process executions and
// agent runs to return.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.loopDone
	}
	s.wg.Wait()
}

// Pause suspends the pumps without stopping in-flight work.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

// Resume re-enables the pumps after a Pause.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}

// SetStepMode toggles operator-approval holds for future dispatches.
func (s *Scheduler) SetStepMode(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stepMode = on
}

// SetMaxAgents replaces the concurrency ceiling. In-flight runs hold their
// original slots; the new ceiling applies to future dispatches.
func (s *Scheduler) SetMaxAgents(n int64) {
	if n <= 0 {
		n = DefaultMaxAgents
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sem = semaphore.NewWeighted(n)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.loopDone)
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.isPaused() {
				continue
			}
			s.pumpProcesses(ctx)
			s.pumpDependencies()
			s.pumpAgents(ctx)
		}
	}
}

// pumpProcesses moves fresh tasks to PROCESS_ASSIGNED and executes their
// process in a goroutine. A process failure fails the task: an unprepared
// task can never be dispatched and would otherwise sit forever.
func (s *Scheduler) pumpProcesses(ctx context.Context) {
	tasks, err := s.engine.Store().ListByState(models.StateCreated)
	if err != nil {
		s.log.Log("[scheduler] list created tasks: %v", err)
		return
	}
	for _, t := range tasks {
		id := t.ID
		if s.isPreparing(id) {
			continue
		}
		if err := s.engine.UpdateTaskState(id, models.StateProcessAssigned); err != nil {
			s.log.Log("[scheduler] task %d: assign process: %v", id, err)
			continue
		}
		s.setPreparing(id, true)
		name := t.AssignedProcess

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.setPreparing(id, false)
			res := s.registry.Execute(ctx, name, id, nil)
			if res.Success() {
				return
			}
			s.log.Log("[scheduler] task %d: process %s failed: %s", id, name, res.Error)
			if err := s.engine.MarkTaskFailed(id, "preparation failed: "+res.Error); err != nil {
				s.log.Log("[scheduler] task %d: mark failed: %v", id, err)
			}
		}()
	}
}

// pumpDependencies releases parked tasks whose dependencies have all
// reached a terminal state. Tasks with an in-flight process are skipped;
// their process owns the resume.
func (s *Scheduler) pumpDependencies() {
	tasks, err := s.engine.Store().ListByState(models.StateWaitingOnDependencies)
	if err != nil {
		s.log.Log("[scheduler] list waiting tasks: %v", err)
		return
	}
	for _, t := range tasks {
		if s.isPreparing(t.ID) {
			continue
		}
		if !s.dependenciesResolved(t) {
			continue
		}
		if err := s.engine.UpdateTaskState(t.ID, models.StateReadyForAgent); err != nil {
			s.log.Log("[scheduler] task %d: release: %v", t.ID, err)
		}
	}
}

func (s *Scheduler) dependenciesResolved(t *models.Task) bool {
	for _, dep := range t.Dependencies {
		d, err := s.engine.GetTask(dep)
		if err != nil || !d.State.Terminal() {
			return false
		}
	}
	return true
}

// pumpAgents dispatches ready tasks in priority order. In step mode each
// task is parked in MANUAL_HOLD until the operator approves it. A full
// semaphore ends the pass so higher-priority tasks are not jumped.
func (s *Scheduler) pumpAgents(ctx context.Context) {
	tasks, err := s.engine.Store().ListByState(models.StateReadyForAgent)
	if err != nil {
		s.log.Log("[scheduler] list ready tasks: %v", err)
		return
	}
	for _, t := range tasks {
		id := t.ID
		if s.shouldHold(id) {
			s.hold(id, t.TreeID)
			continue
		}
		// A ready task with unfinished declared dependencies goes back to
		// waiting; the dependency pump releases it later.
		if !s.dependenciesResolved(t) {
			if err := s.engine.UpdateTaskState(id, models.StateWaitingOnDependencies); err != nil {
				s.log.Log("[scheduler] task %d: park on dependencies: %v", id, err)
			}
			continue
		}

		sem := s.currentSem()
		if !sem.TryAcquire(1) {
			return
		}
		if err := s.engine.UpdateTaskState(id, models.StateAgentResponding); err != nil {
			sem.Release(1)
			s.log.Log("[scheduler] task %d: dispatch: %v", id, err)
			continue
		}
		s.setReleased(id, false)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer sem.Release(1)
			if err := s.runner.RunTask(ctx, id); err != nil {
				s.log.Log("[scheduler] task %d: agent run: %v", id, err)
				// The runner may already have terminalized the task.
				if ferr := s.engine.MarkTaskFailed(id, "agent run failed: "+err.Error()); ferr != nil {
					s.log.Log("[scheduler] task %d: mark failed: %v", id, ferr)
				}
			}
		}()
	}
}

func (s *Scheduler) hold(id, treeID int64) {
	if err := s.engine.UpdateTaskState(id, models.StateManualHold); err != nil {
		s.log.Log("[scheduler] task %d: hold: %v", id, err)
		return
	}
	ev := events.New(events.TypeTaskHeld, id, treeID)
	ev.Message = "held for operator approval"
	s.engine.Emitter().Emit(ev)
}

// Continue releases a held task back into the dispatch queue.
func (s *Scheduler) Continue(id int64) error {
	task, err := s.heldTask(id)
	if err != nil {
		return err
	}
	s.setReleased(id, true)
	if err := s.engine.UpdateTaskState(id, models.StateReadyForAgent); err != nil {
		s.setReleased(id, false)
		return err
	}
	ev := events.New(events.TypeTaskResumed, id, task.TreeID)
	ev.Message = "released by operator"
	s.engine.Emitter().Emit(ev)
	return nil
}

// Skip completes a held task without running it.
func (s *Scheduler) Skip(id int64) error {
	if _, err := s.heldTask(id); err != nil {
		return err
	}
	return s.engine.MarkTaskSkipped(id)
}

// Abort fails a held task with the given reason.
func (s *Scheduler) Abort(id int64, reason string) error {
	if _, err := s.heldTask(id); err != nil {
		return err
	}
	return s.engine.MarkTaskAborted(id, reason)
}

func (s *Scheduler) heldTask(id int64) (*models.Task, error) {
	task, err := s.engine.GetTask(id)
	if err != nil {
		return nil, err
	}
	if task.State != models.StateManualHold {
		return nil, &engine.TaskExecutionError{
			TaskID: id,
			Op:     "operator command",
			Reason: "task is not held (state " + string(task.State) + ")",
		}
	}
	return task, nil
}

// CancelTree fails every non-terminal task in the tree. In-flight waits on
// those tasks resolve as failures, which unwinds any blocked processes.
func (s *Scheduler) CancelTree(treeID int64) error {
	tasks, err := s.engine.Store().ListByTree(treeID)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if t.State.Terminal() {
			continue
		}
		if err := s.engine.MarkTaskFailed(t.ID, "tree cancelled"); err != nil {
			s.log.Log("[scheduler] task %d: cancel: %v", t.ID, err)
		}
	}
	ev := events.New(events.TypeTreeCancelled, 0, treeID)
	ev.Message = "tree cancelled by operator"
	s.engine.Emitter().Emit(ev)
	return nil
}

func (s *Scheduler) isPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *Scheduler) shouldHold(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stepMode {
		return false
	}
	_, released := s.released[id]
	return !released
}

func (s *Scheduler) currentSem() *semaphore.Weighted {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sem
}

func (s *Scheduler) isPreparing(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.preparing[id]
	return ok
}

func (s *Scheduler) setPreparing(id int64, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.preparing[id] = struct{}{}
	} else {
		delete(s.preparing, id)
	}
}

func (s *Scheduler) setReleased(id int64, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.released[id] = struct{}{}
	} else {
		delete(s.released, id)
	}
}
