package tui

import (
	"testing"

	"github.com/kmordal/taskloom/pkg/models"
)

func task(id int64, parent *int64, state models.TaskState) *models.Task {
	return &models.Task{ID: id, ParentID: parent, State: state}
}

func TestBuildTree_DepthFirstUnderParents(t *testing.T) {
	one := int64(1)
	two := int64(2)
	tasks := []*models.Task{
		task(4, &two, models.StateCreated),
		task(1, nil, models.StateAgentResponding),
		task(3, &one, models.StateCompleted),
		task(2, &one, models.StateWaitingOnDependencies),
		task(5, nil, models.StateCreated),
	}

	rows := buildTree(tasks)
	if len(rows) != 5 {
		t.Fatalf("rows = %d, want 5", len(rows))
	}

	wantOrder := []int64{1, 2, 4, 3, 5}
	wantDepth := []int{0, 1, 2, 1, 0}
	for i, row := range rows {
		if row.task.ID != wantOrder[i] {
			t.Errorf("row %d id = %d, want %d", i, row.task.ID, wantOrder[i])
		}
		if row.depth != wantDepth[i] {
			t.Errorf("row %d depth = %d, want %d", i, row.depth, wantDepth[i])
		}
	}
}

func TestBuildTree_OrphanBecomesRoot(t *testing.T) {
	missing := int64(99)
	rows := buildTree([]*models.Task{task(7, &missing, models.StateCreated)})
	if len(rows) != 1 || rows[0].depth != 0 {
		t.Fatalf("orphan not rendered as root: %+v", rows)
	}
}

func TestStateIcon_CoversEveryState(t *testing.T) {
	states := []models.TaskState{
		models.StateCreated, models.StateProcessAssigned, models.StateReadyForAgent,
		models.StateWaitingOnDependencies, models.StateAgentResponding,
		models.StateToolProcessing, models.StateManualHold,
		models.StateCompleted, models.StateFailed,
	}
	seen := make(map[string]bool)
	for _, s := range states {
		icon := stateIcon(s)
		if icon == "?" {
			t.Errorf("state %s has no icon", s)
		}
		seen[icon] = true
	}
	if len(seen) != len(states) {
		t.Errorf("icons are not distinct: %d unique for %d states", len(seen), len(states))
	}
}
