// Package process implements the pluggable execution strategies that
// advance tasks: the neutral preparation process, the pass-through direct
// process for helper subtasks, and the tool-triggered break-down and
// end-task processes. Every process operates exclusively through the
// engine's primitive library.
package process

import (
	"context"
	"sync"

	"github.com/kmordal/taskloom/internal/engine"
	"github.com/kmordal/taskloom/internal/logging"
	"github.com/kmordal/taskloom/pkg/models"
)

// Process names, the closed set accepted in a task's assigned_process.
const (
	NameNeutral   = models.ProcessNeutral
	NameDirect    = "direct"
	NameBreakDown = "break_down"
	NameEndTask   = "end_task"
)

// Agent capability selectors for the helper subtasks processes spawn.
const (
	AgentFrameworkDiscovery = "framework-discovery"
	AgentSelector           = "agent-selector"
	AgentContextAnalyst     = "context-analyst"
	AgentToolAnalyst        = "tool-analyst"
	AgentTaskPlanner        = "task-planner"
	AgentEvaluator          = "quality-evaluator"
	AgentSummarizer         = "summarizer"
	AgentDocWriter          = "documentation-writer"
	AgentRecoveryPlanner    = "recovery-planner"
)

// Process is the strategy interface every execution process implements.
// A process never touches storage directly; it manipulates tasks through
// the primitive library only. Failures are reported as a failure
// ProcessResult, never as a raw panic or bare error.
type Process interface {
	// Name returns the registry name of the process.
	Name() string
	// Validate checks the parameters before Execute runs. A process that
	// cannot validate its inputs must fail fast here.
	Validate(params Parameters) error
	// Execute advances the given task. It may suspend in WaitForTasks.
	Execute(ctx context.Context, taskID int64, params Parameters) models.ProcessResult
}

// Registry maps process names to implementations. It is resolved once at
// startup; unknown names are rejected with a ValidationError instead of a
// deferred runtime lookup failure.
type Registry struct {
	mu    sync.RWMutex
	procs map[string]Process
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{procs: make(map[string]Process)}
}

// Register adds a process to the registry. Duplicate names are rejected.
func (r *Registry) Register(p Process) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.procs[p.Name()]; exists {
		return &engine.ValidationError{Field: "process", Reason: "duplicate process name " + p.Name()}
	}
	r.procs[p.Name()] = p
	return nil
}

// Resolve returns the process registered under the given name.
func (r *Registry) Resolve(name string) (Process, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.procs[name]
	if !ok {
		return nil, &engine.ValidationError{Field: "process", Reason: "unknown process name " + name}
	}
	return p, nil
}

// Execute validates parameters and runs the named process against the task.
// Resolution or validation failures come back as failure results so callers
// have a single result shape to handle.
func (r *Registry) Execute(ctx context.Context, name string, taskID int64, params Parameters) models.ProcessResult {
	p, err := r.Resolve(name)
	if err != nil {
		return models.Failed(taskID, err.Error())
	}
	if err := p.Validate(params); err != nil {
		return models.Failed(taskID, err.Error())
	}
	return p.Execute(ctx, taskID, params)
}

// DefaultRegistry builds the registry with the full closed set of
// processes wired to the given engine.
func DefaultRegistry(e *engine.Engine, log *logging.Logger) *Registry {
	r := NewRegistry()
	r.Register(NewNeutral(e, log))
	r.Register(NewDirect(e, log))
	r.Register(NewBreakDown(e, log))
	r.Register(NewEndTask(e, log))
	return r
}
