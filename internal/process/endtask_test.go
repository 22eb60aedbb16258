package process

import (
	"testing"
	"time"

	"github.com/kmordal/taskloom/internal/engine"
	"github.com/kmordal/taskloom/internal/logging"
	"github.com/kmordal/taskloom/pkg/models"
)

func newEndTask(e *engine.Engine) *EndTask {
	p := NewEndTask(e, logging.Nop())
	p.SetChildWait(2 * time.Second)
	return p
}

func TestEndTask_AcceptedResultCompletesTask(t *testing.T) {
	e := newTestEngine()
	startFakeAgents(t, e, map[string]canned{
		AgentEvaluator: {data: models.Result{
			"quality_acceptable":      true,
			"quality_score":           0.9,
			"recommend_documentation": true,
		}},
		AgentSummarizer: {data: models.Result{"summary": "pipeline built and verified"}},
	})

	task := toolProcessingTask(t, e)
	res := newEndTask(e).Execute(t.Context(), task.ID, Parameters{
		"result": map[string]any{"artifact": "pipeline.go"},
	})
	if !res.Success() {
		t.Fatalf("Execute failed: %s", res.Error)
	}

	got, _ := e.GetTask(task.ID)
	if got.State != models.StateCompleted {
		t.Fatalf("state = %s, want completed", got.State)
	}
	declared, _ := got.Result["result"].(map[string]any)
	if declared["artifact"] != "pipeline.go" {
		t.Errorf("declared result not preserved: %v", got.Result)
	}
	if got.Result["summary"] != "pipeline built and verified" {
		t.Errorf("summary = %v", got.Result["summary"])
	}
	if got.Result["quality_score"] != 0.9 {
		t.Errorf("quality_score = %v", got.Result["quality_score"])
	}

	// Documentation was recommended: a detached child exists and is not a
	// dependency of the finished task.
	children, err := e.Store().ListByParent(task.ID)
	if err != nil {
		t.Fatalf("ListByParent: %v", err)
	}
	var doc *models.Task
	for _, c := range children {
		if c.AssignedAgent == AgentDocWriter {
			doc = c
		}
	}
	if doc == nil {
		t.Fatal("expected a detached documentation child")
	}
	if !doc.Detached {
		t.Error("documentation child must be detached")
	}
	if got.HasDependency(doc.ID) {
		t.Error("detached child must not be a dependency of the parent")
	}
}

func TestEndTask_RejectedResultFailsTask(t *testing.T) {
	e := newTestEngine()
	startFakeAgents(t, e, map[string]canned{
		AgentEvaluator: {data: models.Result{
			"quality_acceptable":  false,
			"failure_reason":      "output does not cover the edge cases",
			"recovery_suggestion": "re-run with the edge case checklist",
		}},
		AgentSummarizer: {data: models.Result{"summary": "attempt fell short"}},
	})

	task := toolProcessingTask(t, e)
	res := newEndTask(e).Execute(t.Context(), task.ID, nil)
	// Routing the rejection is a success of the process itself.
	if !res.Success() {
		t.Fatalf("Execute failed: %s", res.Error)
	}

	got, _ := e.GetTask(task.ID)
	if got.State != models.StateFailed {
		t.Fatalf("state = %s, want failed", got.State)
	}
	if got.Error != "output does not cover the edge cases" {
		t.Errorf("error = %q, want the evaluator's failure reason", got.Error)
	}

	children, err := e.Store().ListByParent(task.ID)
	if err != nil {
		t.Fatalf("ListByParent: %v", err)
	}
	var recovery *models.Task
	for _, c := range children {
		if c.AssignedAgent == AgentRecoveryPlanner {
			recovery = c
		}
	}
	if recovery == nil {
		t.Fatal("expected a detached recovery child")
	}
	if !recovery.Detached {
		t.Error("recovery child must be detached")
	}
	if recovery.Priority != task.Priority+2 {
		t.Errorf("recovery priority = %d, want %d", recovery.Priority, task.Priority+2)
	}
}

func TestEndTask_EvaluatorFailureLeavesTaskUntouched(t *testing.T) {
	e := newTestEngine()
	startFakeAgents(t, e, map[string]canned{
		AgentEvaluator:  {fail: true, err: "evaluator crashed"},
		AgentSummarizer: {data: models.Result{"summary": "irrelevant"}},
	})

	task := toolProcessingTask(t, e)
	res := newEndTask(e).Execute(t.Context(), task.ID, nil)
	if res.Success() {
		t.Fatal("evaluator failure must fail the process")
	}

	got, _ := e.GetTask(task.ID)
	if got.State != models.StateToolProcessing {
		t.Errorf("state = %s, want tool_processing untouched", got.State)
	}
}

func TestEndTask_SummarizerFailureStillFinalizes(t *testing.T) {
	e := newTestEngine()
	startFakeAgents(t, e, map[string]canned{
		AgentEvaluator: {data: models.Result{
			"quality_acceptable": true,
			"quality_score":      0.7,
		}},
		AgentSummarizer: {fail: true, err: "summarizer crashed"},
	})

	task := toolProcessingTask(t, e)
	res := newEndTask(e).Execute(t.Context(), task.ID, nil)
	if !res.Success() {
		t.Fatalf("Execute failed: %s", res.Error)
	}

	got, _ := e.GetTask(task.ID)
	if got.State != models.StateCompleted {
		t.Fatalf("state = %s, want completed", got.State)
	}
	if _, ok := got.Result["summary"]; ok {
		t.Error("failed summarizer must not contribute a summary")
	}
}

func TestEndTask_RejectsNonObjectResult(t *testing.T) {
	e := newTestEngine()
	p := newEndTask(e)
	if err := p.Validate(Parameters{"result": "not an object"}); err == nil {
		t.Error("non-object result should fail validation")
	}
	if err := p.Validate(Parameters{"result": map[string]any{"k": "v"}}); err != nil {
		t.Errorf("Validate: %v", err)
	}
}
