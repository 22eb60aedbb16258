package process

import (
	"context"
	"fmt"
	"time"

	"github.com/kmordal/taskloom/internal/engine"
	"github.com/kmordal/taskloom/internal/logging"
	"github.com/kmordal/taskloom/pkg/models"
)

// Thresholds above which the context and tool assignment phases are
// skipped: the task already carries enough of its own.
const (
	contextThreshold = 2
	toolThreshold    = 3
)

// defaultChildWait bounds how long a preparation phase blocks on its
// helper subtask.
const defaultChildWait = 10 * time.Minute

// Neutral is the default preparation strategy applied to every freshly
// created task. It runs five sequential phases, each optionally spawning a
// helper subtask and blocking on it, then marks the task ready for agent
// dispatch. Re-running it on a partially prepared task only fills gaps.
type Neutral struct {
	engine    *engine.Engine
	log       *logging.Logger
	childWait time.Duration
}

// NewNeutral creates the neutral process.
func NewNeutral(e *engine.Engine, log *logging.Logger) *Neutral {
	return &Neutral{engine: e, log: log, childWait: defaultChildWait}
}

// SetChildWait overrides the per-phase wait budget. Used by tests.
func (n *Neutral) SetChildWait(d time.Duration) {
	n.childWait = d
}

// Name implements Process.
func (n *Neutral) Name() string {
	return NameNeutral
}

// Validate implements Process. The neutral process takes no parameters.
func (n *Neutral) Validate(params Parameters) error {
	return nil
}

// Execute runs the preparation phases and transitions the task to
// READY_FOR_AGENT. Framework discovery and agent selection failures are
// fatal; framework validation, context assignment, and tool assignment
// failures are logged and skipped.
func (n *Neutral) Execute(ctx context.Context, taskID int64, params Parameters) models.ProcessResult {
	task, err := n.engine.GetTask(taskID)
	if err != nil {
		return models.Failed(taskID, err.Error())
	}

	if err := n.phaseFrameworkDiscovery(ctx, task); err != nil {
		return models.Failed(taskID, fmt.Sprintf("framework discovery: %v", err))
	}
	n.phaseFrameworkValidation(taskID)
	if err := n.phaseAgentSelection(ctx, taskID); err != nil {
		return models.Failed(taskID, fmt.Sprintf("agent selection: %v", err))
	}
	n.phaseContextAssignment(ctx, taskID)
	n.phaseToolAssignment(ctx, taskID)
	n.checkIsolation(taskID)

	if err := n.engine.UpdateTaskState(taskID, models.StateReadyForAgent); err != nil {
		return models.Failed(taskID, err.Error())
	}
	return models.Succeeded(taskID, nil)
}

// spawnAndWait creates a helper subtask under the parent, registers it as
// a dependency, parks the parent in WAITING_ON_DEPENDENCIES for the
// duration of the wait, and returns the child's resolution.
func (n *Neutral) spawnAndWait(ctx context.Context, parentID int64, spec engine.TaskSpec) (models.ProcessResult, error) {
	spec.AssignedProcess = NameDirect
	child, err := n.engine.CreateSubtask(parentID, spec)
	if err != nil {
		return models.ProcessResult{}, err
	}
	if err := n.engine.AddTaskDependencies(parentID, child.ID); err != nil {
		return models.ProcessResult{}, err
	}
	if err := n.engine.UpdateTaskState(parentID, models.StateWaitingOnDependencies); err != nil {
		return models.ProcessResult{}, err
	}

	results, err := n.engine.WaitForTasks(ctx, []int64{child.ID}, n.childWait)

	// Resume preparation regardless of how the wait resolved.
	if stateErr := n.engine.UpdateTaskState(parentID, models.StateProcessAssigned); stateErr != nil {
		n.log.Log("[neutral] task %d: resume after wait: %v", parentID, stateErr)
	}
	if err != nil {
		return models.ProcessResult{}, err
	}
	return results[0], nil
}

// phaseFrameworkDiscovery establishes the systematic framework. Skipped if
// the task already carries one; fatal on failure.
func (n *Neutral) phaseFrameworkDiscovery(ctx context.Context, task *models.Task) error {
	if task.Framework != nil {
		n.log.Log("[neutral] task %d: framework %s already established, skipping discovery", task.ID, task.Framework.ID)
		return nil
	}

	res, err := n.spawnAndWait(ctx, task.ID, engine.TaskSpec{
		Instruction:   "Establish a systematic framework for the task: " + task.Instruction,
		AssignedAgent: AgentFrameworkDiscovery,
		Priority:      task.Priority + 1,
	})
	if err != nil {
		return err
	}
	if !res.Success() {
		return fmt.Errorf("discovery subtask failed: %s", res.Error)
	}

	fw := models.Framework{
		ID:                resultString(res.Data, "framework_id"),
		Domain:            resultString(res.Data, "framework_domain"),
		SupportsIsolation: resultBool(res.Data, "supports_isolation"),
	}
	if fw.ID == "" {
		return fmt.Errorf("discovery subtask returned no framework id")
	}
	if err := n.engine.SetFramework(task.ID, fw); err != nil {
		return err
	}
	if docs := resultStrings(res.Data, "reference_documents"); len(docs) > 0 {
		if err := n.engine.AddContextToTask(task.ID, docs...); err != nil {
			return err
		}
	}
	return nil
}

// phaseFrameworkValidation is a cheap completeness check on the
// established framework. Best-effort: failures only log a warning.
func (n *Neutral) phaseFrameworkValidation(taskID int64) {
	task, err := n.engine.GetTask(taskID)
	if err != nil {
		n.log.Log("[neutral] task %d: framework validation: %v", taskID, err)
		return
	}
	if task.Framework == nil {
		n.log.Log("[neutral] task %d: WARNING: no framework after discovery phase", taskID)
		return
	}
	if task.Framework.Domain == "" {
		n.log.Log("[neutral] task %d: WARNING: framework %s has no domain", taskID, task.Framework.ID)
	}
}

// phaseAgentSelection selects an agent constrained by the established
// framework. Skipped if one is already assigned; fatal on failure.
func (n *Neutral) phaseAgentSelection(ctx context.Context, taskID int64) error {
	task, err := n.engine.GetTask(taskID)
	if err != nil {
		return err
	}
	if task.AssignedAgent != "" {
		n.log.Log("[neutral] task %d: agent %q already assigned, skipping selection", taskID, task.AssignedAgent)
		return nil
	}

	instruction := "Select the best agent for the task: " + task.Instruction
	if task.Framework != nil {
		instruction += " (framework: " + task.Framework.ID + ")"
	}
	res, err := n.spawnAndWait(ctx, taskID, engine.TaskSpec{
		Instruction:   instruction,
		AssignedAgent: AgentSelector,
		Priority:      task.Priority + 1,
	})
	if err != nil {
		return err
	}
	if !res.Success() {
		return fmt.Errorf("selection subtask failed: %s", res.Error)
	}

	agent := resultString(res.Data, "agent")
	if agent == "" {
		return fmt.Errorf("selection subtask returned no agent")
	}
	return n.engine.SetAssignedAgent(taskID, agent)
}

// phaseContextAssignment attaches context documents. Skipped when the task
// already has more than contextThreshold entries; non-fatal on failure.
func (n *Neutral) phaseContextAssignment(ctx context.Context, taskID int64) {
	task, err := n.engine.GetTask(taskID)
	if err != nil {
		n.log.Log("[neutral] task %d: context assignment: %v", taskID, err)
		return
	}
	if len(task.AdditionalContext) > contextThreshold {
		n.log.Log("[neutral] task %d: %d context docs attached, skipping analysis", taskID, len(task.AdditionalContext))
		return
	}

	res, err := n.spawnAndWait(ctx, taskID, engine.TaskSpec{
		Instruction:   "Identify context documents needed for the task: " + task.Instruction,
		AssignedAgent: AgentContextAnalyst,
		Priority:      task.Priority + 1,
	})
	if err != nil || !res.Success() {
		n.log.Log("[neutral] task %d: context analysis failed, proceeding without: err=%v res=%s", taskID, err, res.Error)
		return
	}
	if docs := resultStrings(res.Data, "documents"); len(docs) > 0 {
		if err := n.engine.AddContextToTask(taskID, docs...); err != nil {
			n.log.Log("[neutral] task %d: attach context: %v", taskID, err)
		}
	}
}

// phaseToolAssignment mirrors context assignment for tools with a higher
// threshold; non-fatal on failure.
func (n *Neutral) phaseToolAssignment(ctx context.Context, taskID int64) {
	task, err := n.engine.GetTask(taskID)
	if err != nil {
		n.log.Log("[neutral] task %d: tool assignment: %v", taskID, err)
		return
	}
	if len(task.AdditionalTools) > toolThreshold {
		n.log.Log("[neutral] task %d: %d tools attached, skipping analysis", taskID, len(task.AdditionalTools))
		return
	}

	res, err := n.spawnAndWait(ctx, taskID, engine.TaskSpec{
		Instruction:   "Identify tools needed for the task: " + task.Instruction,
		AssignedAgent: AgentToolAnalyst,
		Priority:      task.Priority + 1,
	})
	if err != nil || !res.Success() {
		n.log.Log("[neutral] task %d: tool analysis failed, proceeding without: err=%v res=%s", taskID, err, res.Error)
		return
	}
	if tools := resultStrings(res.Data, "tools"); len(tools) > 0 {
		if err := n.engine.AddToolsToTask(taskID, tools...); err != nil {
			n.log.Log("[neutral] task %d: attach tools: %v", taskID, err)
		}
	}
}

// checkIsolation verifies the task can plausibly succeed on its own: a
// framework, at least one context document, and an assigned agent.
// Deliberately permissive: a gap is recorded as a warning but does not
// block progression to READY_FOR_AGENT.
func (n *Neutral) checkIsolation(taskID int64) {
	task, err := n.engine.GetTask(taskID)
	if err != nil {
		return
	}

	var gaps []string
	if task.Framework == nil {
		gaps = append(gaps, "no framework")
	}
	if len(task.AdditionalContext) == 0 {
		gaps = append(gaps, "no context documents")
	}
	if task.AssignedAgent == "" {
		gaps = append(gaps, "no assigned agent")
	}
	if len(gaps) == 0 {
		return
	}

	warning := fmt.Sprintf("isolation check: task may not succeed in isolation: %v", gaps)
	n.log.Log("[neutral] task %d: WARNING: %s", taskID, warning)
	if err := n.engine.AddSystemMessage(taskID, warning); err != nil {
		n.log.Log("[neutral] task %d: record isolation warning: %v", taskID, err)
	}
}
