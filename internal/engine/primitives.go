package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/kmordal/taskloom/internal/events"
	"github.com/kmordal/taskloom/pkg/models"
)

// TaskSpec describes a task to be created through the primitive library.
type TaskSpec struct {
	// Instruction is the work description. Must be at least
	// models.MinInstructionLength characters.
	Instruction string
	// Priority is ordinal; higher runs first.
	Priority int
	// AssignedAgent optionally pre-selects the agent capability.
	AssignedAgent string
	// AssignedProcess names the governing strategy. Defaults to neutral.
	AssignedProcess string
	// Context lists context document IDs to attach at creation.
	Context []string
	// Tools lists tool IDs to attach at creation.
	Tools []string
	// Dependencies lists tasks that must finish before this one proceeds.
	// Only meaningful for subtasks; all must be in the same tree.
	Dependencies []int64
	// Detached marks a fire-and-forget child that is never added to its
	// parent's dependencies.
	Detached bool
}

func (s TaskSpec) validate() error {
	if len(strings.TrimSpace(s.Instruction)) < models.MinInstructionLength {
		return &ValidationError{
			Field:  "instruction",
			Reason: fmt.Sprintf("must be at least %d characters", models.MinInstructionLength),
		}
	}
	return nil
}

func (s TaskSpec) build() *models.Task {
	proc := s.AssignedProcess
	if proc == "" {
		proc = models.ProcessNeutral
	}
	return &models.Task{
		Instruction:       strings.TrimSpace(s.Instruction),
		Priority:          s.Priority,
		AssignedAgent:     s.AssignedAgent,
		AssignedProcess:   proc,
		State:             models.StateCreated,
		CreatedAt:         time.Now(),
		AdditionalContext: append([]string(nil), s.Context...),
		AdditionalTools:   append([]string(nil), s.Tools...),
		Detached:          s.Detached,
	}
}

// CreateTask allocates a root task. The task starts in StateCreated with
// the neutral process assigned unless the spec says otherwise.
func (e *Engine) CreateTask(spec TaskSpec) (*models.Task, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	if len(spec.Dependencies) > 0 {
		return nil, &ValidationError{Field: "dependencies", Reason: "root tasks cannot declare dependencies"}
	}

	task := spec.build()
	if _, err := e.store.Create(task); err != nil {
		return nil, err
	}

	e.log.Log("[engine] created root task %d (tree %d): %.60q", task.ID, task.TreeID, task.Instruction)
	e.emit(events.New(events.TypeTaskCreated, task.ID, task.TreeID))
	return task, nil
}

// CreateSubtask allocates a child of the given parent, inheriting the
// parent's tree and registering the child in the parent's subtask list.
// Fails with EntityNotFoundError if the parent does not exist.
func (e *Engine) CreateSubtask(parentID int64, spec TaskSpec) (*models.Task, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}

	parent, err := e.store.Get(parentID)
	if err != nil {
		return nil, &EntityNotFoundError{Kind: "parent task", ID: parentID}
	}

	for _, dep := range spec.Dependencies {
		depTask, err := e.store.Get(dep)
		if err != nil {
			return nil, &EntityNotFoundError{Kind: "dependency", ID: dep}
		}
		if depTask.TreeID != parent.TreeID {
			return nil, &ValidationError{
				Field:  "dependencies",
				Reason: fmt.Sprintf("task %d belongs to tree %d, not %d", dep, depTask.TreeID, parent.TreeID),
			}
		}
	}

	task := spec.build()
	task.ParentID = &parent.ID
	task.TreeID = parent.TreeID
	task.Dependencies = append([]int64(nil), spec.Dependencies...)
	if _, err := e.store.Create(task); err != nil {
		return nil, err
	}

	// Subtask registration is bookkeeping, not a state transition, so it
	// is allowed even on a terminal parent (detached children spawned
	// during finalization).
	if _, err := e.mutate(parentID, func(p *models.Task) error {
		p.SubtaskIDs = append(p.SubtaskIDs, task.ID)
		return nil
	}); err != nil {
		return nil, err
	}

	e.log.Log("[engine] created subtask %d under %d (detached=%v)", task.ID, parentID, task.Detached)
	e.emit(events.New(events.TypeTaskCreated, task.ID, task.TreeID))
	return task, nil
}

// UpdateTaskState performs a single lifecycle transition, emitting a
// state-change event carrying the old and new state. Illegal transitions
// fail with a TaskExecutionError.
func (e *Engine) UpdateTaskState(id int64, to models.TaskState) error {
	_, err := e.mutate(id, func(task *models.Task) error {
		return e.setState(task, to)
	})
	return err
}

// setState applies a validated transition to the in-flight task copy.
// Caller must be inside mutate for the given task.
func (e *Engine) setState(task *models.Task, to models.TaskState) error {
	from := task.State
	if from.Terminal() {
		return &TaskExecutionError{
			TaskID: task.ID,
			Op:     "update state",
			Reason: fmt.Sprintf("task is terminal (%s)", from),
		}
	}
	if !models.CanTransition(from, to) {
		return &TaskExecutionError{
			TaskID: task.ID,
			Op:     "update state",
			Reason: fmt.Sprintf("illegal transition %s -> %s", from, to),
		}
	}

	task.State = to
	now := time.Now()
	if to == models.StateAgentResponding && task.StartedAt == nil {
		task.StartedAt = &now
	}
	if to.Terminal() {
		task.CompletedAt = &now
	}

	e.log.Log("[engine] task %d: %s -> %s", task.ID, from, to)
	ev := events.New(events.TypeStateChanged, task.ID, task.TreeID)
	ev.OldState = from
	ev.NewState = to
	e.emit(ev)

	return nil
}

// MarkTaskComplete transitions the task to COMPLETED and records its result.
func (e *Engine) MarkTaskComplete(id int64, result models.Result) error {
	_, err := e.mutate(id, func(task *models.Task) error {
		if err := e.setState(task, models.StateCompleted); err != nil {
			return err
		}
		task.Result = result
		return nil
	})
	return err
}

// MarkTaskFailed transitions the task to FAILED and records the error text.
func (e *Engine) MarkTaskFailed(id int64, errText string) error {
	_, err := e.mutate(id, func(task *models.Task) error {
		if err := e.setState(task, models.StateFailed); err != nil {
			return err
		}
		task.Error = errText
		return nil
	})
	return err
}

// MarkTaskSkipped completes a held task on operator command, flagging the
// result as skipped.
func (e *Engine) MarkTaskSkipped(id int64) error {
	_, err := e.mutate(id, func(task *models.Task) error {
		if err := e.setState(task, models.StateCompleted); err != nil {
			return err
		}
		task.Result = models.Result{"skipped": true}
		task.Skipped = true
		return nil
	})
	return err
}

// MarkTaskAborted fails a held task on operator command, flagging the
// error as an abort.
func (e *Engine) MarkTaskAborted(id int64, reason string) error {
	_, err := e.mutate(id, func(task *models.Task) error {
		if err := e.setState(task, models.StateFailed); err != nil {
			return err
		}
		if reason == "" {
			reason = "aborted by operator"
		}
		task.Error = reason
		task.Aborted = true
		return nil
	})
	return err
}

// AddContextToTask appends context document IDs, skipping ones already
// attached. The sequence is append-only.
func (e *Engine) AddContextToTask(id int64, docs ...string) error {
	_, err := e.mutate(id, func(task *models.Task) error {
		for _, doc := range docs {
			if doc == "" || task.HasContext(doc) {
				continue
			}
			task.AdditionalContext = append(task.AdditionalContext, doc)
		}
		return nil
	})
	return err
}

// AddToolsToTask appends tool IDs, skipping ones already attached.
func (e *Engine) AddToolsToTask(id int64, tools ...string) error {
	_, err := e.mutate(id, func(task *models.Task) error {
		for _, tool := range tools {
			if tool == "" || task.HasTool(tool) {
				continue
			}
			task.AdditionalTools = append(task.AdditionalTools, tool)
		}
		return nil
	})
	return err
}

// AddTaskDependencies appends dependency edges. Every dependency must
// reference an existing task within the same tree.
func (e *Engine) AddTaskDependencies(id int64, deps ...int64) error {
	_, err := e.mutate(id, func(task *models.Task) error {
		for _, dep := range deps {
			if dep == task.ID {
				return &ValidationError{Field: "dependencies", Reason: "task cannot depend on itself"}
			}
			depTask, err := e.store.Get(dep)
			if err != nil {
				return &EntityNotFoundError{Kind: "dependency", ID: dep}
			}
			if depTask.TreeID != task.TreeID {
				return &ValidationError{
					Field:  "dependencies",
					Reason: fmt.Sprintf("task %d belongs to tree %d, not %d", dep, depTask.TreeID, task.TreeID),
				}
			}
			if !task.HasDependency(dep) {
				task.Dependencies = append(task.Dependencies, dep)
			}
		}
		return nil
	})
	return err
}

// AddSystemMessage appends a system entry to the task's conversation history.
func (e *Engine) AddSystemMessage(id int64, text string) error {
	_, err := e.mutate(id, func(task *models.Task) error {
		task.Conversation = append(task.Conversation, models.Message{
			Role:      "system",
			Content:   text,
			Timestamp: time.Now(),
		})
		return nil
	})
	return err
}

// AddAgentMessage appends an agent entry to the task's conversation history.
func (e *Engine) AddAgentMessage(id int64, text string) error {
	_, err := e.mutate(id, func(task *models.Task) error {
		task.Conversation = append(task.Conversation, models.Message{
			Role:      "agent",
			Content:   text,
			Timestamp: time.Now(),
		})
		return nil
	})
	return err
}

// RecordToolCall appends a tool invocation to the task's tool-call trail.
func (e *Engine) RecordToolCall(id int64, name string, args map[string]any) error {
	_, err := e.mutate(id, func(task *models.Task) error {
		task.ToolCalls = append(task.ToolCalls, models.ToolCall{
			Name:      name,
			Arguments: args,
			Timestamp: time.Now(),
		})
		return nil
	})
	return err
}

// SetFramework records the systematic framework established for the task.
// Once set, the framework is only ever filled in, never replaced.
func (e *Engine) SetFramework(id int64, fw models.Framework) error {
	_, err := e.mutate(id, func(task *models.Task) error {
		if task.Framework == nil {
			task.Framework = &fw
		}
		return nil
	})
	return err
}

// SetAssignedAgent records the selected agent if none is assigned yet.
func (e *Engine) SetAssignedAgent(id int64, agent string) error {
	_, err := e.mutate(id, func(task *models.Task) error {
		if task.AssignedAgent == "" {
			task.AssignedAgent = agent
		}
		return nil
	})
	return err
}
