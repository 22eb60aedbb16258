package process

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gammazero/toposort"

	"github.com/kmordal/taskloom/internal/engine"
	"github.com/kmordal/taskloom/internal/logging"
	"github.com/kmordal/taskloom/pkg/models"
)

// BreakDown is invoked when the agent in control of a task requests
// decomposition. It spawns a planning subtask, materializes the returned
// plan as real subtasks, registers them as dependencies of the parent,
// and parks the parent until they finish.
type BreakDown struct {
	engine    *engine.Engine
	log       *logging.Logger
	childWait time.Duration
}

// NewBreakDown creates the break-down process.
func NewBreakDown(e *engine.Engine, log *logging.Logger) *BreakDown {
	return &BreakDown{engine: e, log: log, childWait: defaultChildWait}
}

// SetChildWait overrides the planning wait budget. Used by tests.
func (b *BreakDown) SetChildWait(d time.Duration) {
	b.childWait = d
}

// Name implements Process.
func (b *BreakDown) Name() string {
	return NameBreakDown
}

// Validate implements Process. The approach parameter is optional but must
// be a string when present.
func (b *BreakDown) Validate(params Parameters) error {
	if v, ok := params["approach"]; ok {
		if _, isString := v.(string); !isString {
			return &engine.ValidationError{Field: "approach", Reason: "must be a string"}
		}
	}
	return nil
}

// Execute runs the decomposition. On planning failure no subtasks are
// created and the result is failure. Plan entries without an instruction
// are skipped with a warning, not fatal to the batch.
func (b *BreakDown) Execute(ctx context.Context, taskID int64, params Parameters) models.ProcessResult {
	parent, err := b.engine.GetTask(taskID)
	if err != nil {
		return models.Failed(taskID, err.Error())
	}

	instruction := "Plan a breakdown into subtasks for the task: " + parent.Instruction
	if approach := params.String("approach"); approach != "" {
		instruction += " (requested approach: " + approach + ")"
	}

	planner, err := b.engine.CreateSubtask(taskID, engine.TaskSpec{
		Instruction:     instruction,
		AssignedAgent:   AgentTaskPlanner,
		AssignedProcess: NameDirect,
		Priority:        parent.Priority + 1,
	})
	if err != nil {
		return models.Failed(taskID, err.Error())
	}

	results, err := b.engine.WaitForTasks(ctx, []int64{planner.ID}, b.childWait)
	if err != nil {
		return models.Failed(taskID, err.Error())
	}
	planned := results[0]
	if !planned.Success() {
		return models.Failed(taskID, "planning subtask failed: "+planned.Error)
	}

	specs := resultMaps(planned.Data, "subtasks")
	if len(specs) == 0 {
		return models.Failed(taskID, "planning subtask returned no subtask specifications")
	}

	order, err := materializationOrder(specs)
	if err != nil {
		return models.Failed(taskID, err.Error())
	}

	// created maps batch index -> real task ID, for resolving
	// batch-relative dependency references.
	created := make(map[int]int64, len(specs))
	var createdIDs []int64
	var summary []string

	for _, idx := range order {
		spec := specs[idx]
		instruction, _ := spec["instruction"].(string)
		if strings.TrimSpace(instruction) == "" {
			b.log.Log("[break_down] task %d: WARNING: plan entry %d has no instruction, skipping", taskID, idx)
			continue
		}

		var deps []int64
		for _, ref := range resultInts(spec["dependencies"]) {
			if id, ok := created[ref]; ok {
				deps = append(deps, id)
			} else {
				b.log.Log("[break_down] task %d: WARNING: plan entry %d references skipped entry %d", taskID, idx, ref)
			}
		}

		priority := parent.Priority
		if p, ok := resultInt(spec, "priority"); ok {
			priority = p
		}
		agent, _ := spec["agent"].(string)
		procName, _ := spec["process"].(string)

		child, err := b.engine.CreateSubtask(taskID, engine.TaskSpec{
			Instruction:     instruction,
			AssignedAgent:   agent,
			AssignedProcess: procName,
			Priority:        priority,
			Context:         resultStrings(spec, "context"),
			Tools:           resultStrings(spec, "tools"),
			Dependencies:    deps,
		})
		if err != nil {
			b.log.Log("[break_down] task %d: WARNING: materialize plan entry %d: %v", taskID, idx, err)
			continue
		}
		created[idx] = child.ID
		createdIDs = append(createdIDs, child.ID)
		summary = append(summary, fmt.Sprintf("%d. [task %d] %s", len(summary)+1, child.ID, instruction))
	}

	if len(createdIDs) == 0 {
		return models.Failed(taskID, "no subtasks could be materialized from the plan")
	}

	if err := b.engine.AddTaskDependencies(taskID, createdIDs...); err != nil {
		return models.ProcessResult{
			Status:          models.StatusPartial,
			TaskID:          taskID,
			Error:           err.Error(),
			SubtasksCreated: createdIDs,
			RollbackNeeded:  true,
		}
	}
	if err := b.engine.UpdateTaskState(taskID, models.StateWaitingOnDependencies); err != nil {
		return models.ProcessResult{
			Status:          models.StatusPartial,
			TaskID:          taskID,
			Error:           err.Error(),
			SubtasksCreated: createdIDs,
			RollbackNeeded:  true,
		}
	}

	message := fmt.Sprintf("Broke the task down into %d subtasks:\n%s", len(createdIDs), strings.Join(summary, "\n"))
	if err := b.engine.AddSystemMessage(taskID, message); err != nil {
		b.log.Log("[break_down] task %d: record summary: %v", taskID, err)
	}

	return models.ProcessResult{
		Status:          models.StatusSuccess,
		TaskID:          taskID,
		SubtasksCreated: createdIDs,
	}
}

// materializationOrder topologically sorts plan entries by their
// batch-relative dependency references so every dependency is created
// before its dependents. Returns an error if the references form a cycle.
func materializationOrder(specs []map[string]any) ([]int, error) {
	var edges []toposort.Edge
	for i, spec := range specs {
		deps := resultInts(spec["dependencies"])
		if len(deps) == 0 {
			edges = append(edges, toposort.Edge{nil, i})
			continue
		}
		for _, dep := range deps {
			if dep < 0 || dep >= len(specs) {
				return nil, fmt.Errorf("plan entry %d references out-of-range entry %d", i, dep)
			}
			edges = append(edges, toposort.Edge{dep, i})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("plan dependencies contain a cycle: %w", err)
	}

	order := make([]int, 0, len(specs))
	for _, v := range sorted {
		if idx, ok := v.(int); ok {
			order = append(order, idx)
		}
	}
	return order, nil
}
