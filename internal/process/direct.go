package process

import (
	"context"

	"github.com/kmordal/taskloom/internal/engine"
	"github.com/kmordal/taskloom/internal/logging"
	"github.com/kmordal/taskloom/pkg/models"
)

// Direct is the pass-through preparation process for helper subtasks
// (planning, evaluation, selection children). Those tasks are created with
// everything they need already attached, so preparation is just marking
// them ready for the agent.
type Direct struct {
	engine *engine.Engine
	log    *logging.Logger
}

// NewDirect creates the direct process.
func NewDirect(e *engine.Engine, log *logging.Logger) *Direct {
	return &Direct{engine: e, log: log}
}

// Name implements Process.
func (d *Direct) Name() string {
	return NameDirect
}

// Validate implements Process. The direct process takes no parameters.
func (d *Direct) Validate(params Parameters) error {
	return nil
}

// Execute marks the task ready for agent dispatch.
func (d *Direct) Execute(ctx context.Context, taskID int64, params Parameters) models.ProcessResult {
	task, err := d.engine.GetTask(taskID)
	if err != nil {
		return models.Failed(taskID, err.Error())
	}
	if task.AssignedAgent == "" {
		return models.Failed(taskID, "direct process requires a pre-assigned agent")
	}
	if task.State != models.StateReadyForAgent {
		if err := d.engine.UpdateTaskState(taskID, models.StateReadyForAgent); err != nil {
			return models.Failed(taskID, err.Error())
		}
	}
	return models.Succeeded(taskID, nil)
}
