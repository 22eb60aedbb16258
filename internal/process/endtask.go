package process

import (
	"context"
	"fmt"
	"time"

	"github.com/kmordal/taskloom/internal/engine"
	"github.com/kmordal/taskloom/internal/logging"
	"github.com/kmordal/taskloom/pkg/models"
)

// EndTask is invoked when the agent declares its task finished. It spawns
// an evaluator and a summarizer in parallel, then finalizes the task as
// completed or failed based on the evaluation. The process result reports
// whether routing the outcome worked; the task's business outcome lives in
// the task state, and the two must not be conflated.
type EndTask struct {
	engine    *engine.Engine
	log       *logging.Logger
	childWait time.Duration
}

// NewEndTask creates the end-task process.
func NewEndTask(e *engine.Engine, log *logging.Logger) *EndTask {
	return &EndTask{engine: e, log: log, childWait: defaultChildWait}
}

// SetChildWait overrides the evaluation wait budget. Used by tests.
func (p *EndTask) SetChildWait(d time.Duration) {
	p.childWait = d
}

// Name implements Process.
func (p *EndTask) Name() string {
	return NameEndTask
}

// Validate implements Process. The declared result is optional but must be
// an object when present.
func (p *EndTask) Validate(params Parameters) error {
	if v, ok := params["result"]; ok {
		if _, isMap := v.(map[string]any); !isMap {
			return &engine.ValidationError{Field: "result", Reason: "must be an object"}
		}
	}
	return nil
}

// Execute runs the finalization. An evaluator failure aborts the whole
// operation and leaves the task in its current state; a summarizer failure
// only costs the summary.
func (p *EndTask) Execute(ctx context.Context, taskID int64, params Parameters) models.ProcessResult {
	task, err := p.engine.GetTask(taskID)
	if err != nil {
		return models.Failed(taskID, err.Error())
	}
	declared := params.Map("result")

	evaluator, err := p.engine.CreateSubtask(taskID, engine.TaskSpec{
		Instruction:     fmt.Sprintf("Evaluate whether the declared result meets the original instruction: %s", task.Instruction),
		AssignedAgent:   AgentEvaluator,
		AssignedProcess: NameDirect,
		Priority:        task.Priority + 1,
	})
	if err != nil {
		return models.Failed(taskID, err.Error())
	}
	summarizer, err := p.engine.CreateSubtask(taskID, engine.TaskSpec{
		Instruction:     fmt.Sprintf("Produce a concise synthesis of the outcome of the task: %s", task.Instruction),
		AssignedAgent:   AgentSummarizer,
		AssignedProcess: NameDirect,
		Priority:        task.Priority + 1,
	})
	if err != nil {
		return models.Failed(taskID, err.Error())
	}

	results, err := p.engine.WaitForTasks(ctx, []int64{evaluator.ID, summarizer.ID}, p.childWait)
	if err != nil {
		return models.Failed(taskID, err.Error())
	}

	var evaluation, summary models.ProcessResult
	for _, r := range results {
		switch r.TaskID {
		case evaluator.ID:
			evaluation = r
		case summarizer.ID:
			summary = r
		}
	}

	if !evaluation.Success() {
		// The task is left untouched; the caller decides what happens next.
		return models.Failed(taskID, "evaluation subtask failed: "+evaluation.Error)
	}
	if !summary.Success() {
		p.log.Log("[end_task] task %d: summarizer failed, finalizing without summary: %s", taskID, summary.Error)
	}

	if resultBool(evaluation.Data, "quality_acceptable") {
		return p.finalizeAccepted(taskID, task, declared, evaluation, summary)
	}
	return p.finalizeRejected(taskID, task, evaluation)
}

func (p *EndTask) finalizeAccepted(taskID int64, task *models.Task, declared map[string]any, evaluation, summary models.ProcessResult) models.ProcessResult {
	composed := models.Result{
		"result":        declared,
		"evaluation":    map[string]any(evaluation.Data),
		"quality_score": resultFloat(evaluation.Data, "quality_score"),
	}
	if summary.Success() {
		composed["summary"] = resultString(summary.Data, "summary")
	}

	if err := p.engine.MarkTaskComplete(taskID, composed); err != nil {
		return models.Failed(taskID, err.Error())
	}
	if err := p.engine.AddSystemMessage(taskID, "Task completed: evaluation accepted the result."); err != nil {
		p.log.Log("[end_task] task %d: record completion message: %v", taskID, err)
	}

	if resultBool(evaluation.Data, "recommend_documentation") {
		p.spawnDetached(taskID, engine.TaskSpec{
			Instruction:   "Document the approach and outcome of the task: " + task.Instruction,
			AssignedAgent: AgentDocWriter,
			Priority:      task.Priority - 1,
			Detached:      true,
		})
	}
	return models.Succeeded(taskID, composed)
}

func (p *EndTask) finalizeRejected(taskID int64, task *models.Task, evaluation models.ProcessResult) models.ProcessResult {
	reason := resultString(evaluation.Data, "failure_reason")
	if reason == "" {
		reason = "evaluation rejected the result"
	}

	if err := p.engine.MarkTaskFailed(taskID, reason); err != nil {
		return models.Failed(taskID, err.Error())
	}
	if err := p.engine.AddSystemMessage(taskID, "Task failed: "+reason); err != nil {
		p.log.Log("[end_task] task %d: record failure message: %v", taskID, err)
	}

	if suggestion := resultString(evaluation.Data, "recovery_suggestion"); suggestion != "" {
		p.spawnDetached(taskID, engine.TaskSpec{
			Instruction:   "Recover from the failed task using the suggestion: " + suggestion,
			AssignedAgent: AgentRecoveryPlanner,
			Priority:      task.Priority + 2,
			Detached:      true,
		})
	}

	// Routing the failure outcome is itself a success of this process.
	return models.Succeeded(taskID, models.Result{"failure_reason": reason})
}

// spawnDetached creates a fire-and-forget child. Its outcome never affects
// the parent, so creation errors are only logged.
func (p *EndTask) spawnDetached(parentID int64, spec engine.TaskSpec) {
	child, err := p.engine.CreateSubtask(parentID, spec)
	if err != nil {
		p.log.Log("[end_task] task %d: spawn detached child: %v", parentID, err)
		return
	}
	p.log.Log("[end_task] task %d: spawned detached child %d (%s)", parentID, child.ID, spec.AssignedAgent)
}
