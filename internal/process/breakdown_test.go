package process

import (
	"testing"
	"time"

	"github.com/kmordal/taskloom/internal/engine"
	"github.com/kmordal/taskloom/internal/logging"
	"github.com/kmordal/taskloom/pkg/models"
)

func newBreakDown(e *engine.Engine) *BreakDown {
	b := NewBreakDown(e, logging.Nop())
	b.SetChildWait(2 * time.Second)
	return b
}

// toolProcessingTask creates a task and walks it to the state an agent's
// tool request arrives in.
func toolProcessingTask(t *testing.T, e *engine.Engine) *models.Task {
	t.Helper()
	task, err := e.CreateTask(engine.TaskSpec{
		Instruction:   "implement the ingestion pipeline",
		AssignedAgent: "builder",
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	advanceTo(t, e, task.ID,
		models.StateProcessAssigned,
		models.StateReadyForAgent,
		models.StateAgentResponding,
		models.StateToolProcessing,
	)
	got, err := e.GetTask(task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	return got
}

func TestBreakDown_MaterializesPlannedSubtasks(t *testing.T) {
	e := newTestEngine()
	startFakeAgents(t, e, map[string]canned{
		AgentTaskPlanner: {data: models.Result{
			"subtasks": []any{
				map[string]any{"instruction": "design the storage schema", "agent": "architect"},
				map[string]any{"instruction": "implement the writer path", "dependencies": []any{float64(0)}},
				map[string]any{"instruction": "implement the reader path", "dependencies": []any{float64(0)}},
			},
		}},
	})

	parent := toolProcessingTask(t, e)
	res := newBreakDown(e).Execute(t.Context(), parent.ID, nil)
	if !res.Success() {
		t.Fatalf("Execute failed: %s", res.Error)
	}
	if len(res.SubtasksCreated) != 3 {
		t.Fatalf("subtasks created = %d, want 3", len(res.SubtasksCreated))
	}

	got, _ := e.GetTask(parent.ID)
	if got.State != models.StateWaitingOnDependencies {
		t.Errorf("parent state = %s, want waiting_on_dependencies", got.State)
	}
	// The planner child plus the three planned subtasks.
	if len(got.SubtaskIDs) != 4 {
		t.Errorf("parent subtasks = %d, want 4", len(got.SubtaskIDs))
	}
	for _, id := range res.SubtasksCreated {
		if !got.HasDependency(id) {
			t.Errorf("parent is missing dependency on subtask %d", id)
		}
		child, err := e.GetTask(id)
		if err != nil {
			t.Fatalf("GetTask(%d): %v", id, err)
		}
		if child.TreeID != got.TreeID {
			t.Errorf("subtask %d tree = %d, want %d", id, child.TreeID, got.TreeID)
		}
	}

	// Batch-relative references resolved to real IDs.
	writer, _ := e.GetTask(res.SubtasksCreated[1])
	if !writer.HasDependency(res.SubtasksCreated[0]) {
		t.Errorf("writer deps = %v, want dependency on %d", writer.Dependencies, res.SubtasksCreated[0])
	}

	// Summary recorded on the parent.
	foundSummary := false
	for _, msg := range got.Conversation {
		if msg.Role == "system" {
			foundSummary = true
		}
	}
	if !foundSummary {
		t.Error("expected a breakdown summary in the parent conversation")
	}
}

func TestBreakDown_PlanningFailureCreatesNothing(t *testing.T) {
	e := newTestEngine()
	startFakeAgents(t, e, map[string]canned{
		AgentTaskPlanner: {fail: true, err: "cannot decompose"},
	})

	parent := toolProcessingTask(t, e)
	res := newBreakDown(e).Execute(t.Context(), parent.ID, nil)
	if res.Success() {
		t.Fatal("planning failure must fail the process")
	}
	if len(res.SubtasksCreated) != 0 {
		t.Errorf("subtasks created = %v, want none", res.SubtasksCreated)
	}

	got, _ := e.GetTask(parent.ID)
	if len(got.Dependencies) != 0 {
		t.Errorf("parent dependencies = %v, want none", got.Dependencies)
	}
}

func TestBreakDown_SkipsEntriesWithoutInstruction(t *testing.T) {
	e := newTestEngine()
	startFakeAgents(t, e, map[string]canned{
		AgentTaskPlanner: {data: models.Result{
			"subtasks": []any{
				map[string]any{"instruction": "the one valid planned subtask"},
				map[string]any{"agent": "builder"},
			},
		}},
	})

	parent := toolProcessingTask(t, e)
	res := newBreakDown(e).Execute(t.Context(), parent.ID, nil)
	if !res.Success() {
		t.Fatalf("Execute failed: %s", res.Error)
	}
	if len(res.SubtasksCreated) != 1 {
		t.Errorf("subtasks created = %d, want 1", len(res.SubtasksCreated))
	}
}

func TestBreakDown_RejectsCyclicPlan(t *testing.T) {
	e := newTestEngine()
	startFakeAgents(t, e, map[string]canned{
		AgentTaskPlanner: {data: models.Result{
			"subtasks": []any{
				map[string]any{"instruction": "first half of the cycle", "dependencies": []any{float64(1)}},
				map[string]any{"instruction": "second half of the cycle", "dependencies": []any{float64(0)}},
			},
		}},
	})

	parent := toolProcessingTask(t, e)
	res := newBreakDown(e).Execute(t.Context(), parent.ID, nil)
	if res.Success() {
		t.Fatal("cyclic plan must fail the process")
	}
	if len(res.SubtasksCreated) != 0 {
		t.Errorf("subtasks created = %v, want none", res.SubtasksCreated)
	}
}

func TestBreakDown_RejectsNonStringApproach(t *testing.T) {
	e := newTestEngine()
	b := newBreakDown(e)
	if err := b.Validate(Parameters{"approach": 42}); err == nil {
		t.Error("non-string approach should fail validation")
	}
	if err := b.Validate(Parameters{"approach": "bottom-up"}); err != nil {
		t.Errorf("Validate: %v", err)
	}
}
