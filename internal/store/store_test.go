package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/kmordal/taskloom/pkg/models"
)

// storeFactories lets every test run against both implementations.
func storeFactories(t *testing.T) map[string]func(t *testing.T) TaskStore {
	return map[string]func(t *testing.T) TaskStore{
		"memory": func(t *testing.T) TaskStore {
			return NewMemoryStore()
		},
		"sqlite": func(t *testing.T) TaskStore {
			path := filepath.Join(t.TempDir(), "tasks.db")
			s, err := OpenSQLite(path)
			if err != nil {
				t.Fatalf("OpenSQLite: %v", err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func newTask(instruction string) *models.Task {
	return &models.Task{
		Instruction:     instruction,
		AssignedProcess: models.ProcessNeutral,
		State:           models.StateCreated,
		CreatedAt:       time.Now(),
	}
}

func TestStore_CreateAssignsIDAndTreeID(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)

			root := newTask("summarize the quarterly report")
			id, err := s.Create(root)
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if id == 0 {
				t.Fatal("Create should assign a non-zero ID")
			}
			if root.TreeID != id {
				t.Errorf("root tree ID = %d, want own ID %d", root.TreeID, id)
			}

			child := newTask("child of the quarterly report task")
			child.ParentID = &root.ID
			child.TreeID = root.TreeID
			cid, err := s.Create(child)
			if err != nil {
				t.Fatalf("Create child: %v", err)
			}
			if cid == id {
				t.Error("IDs must be unique")
			}
			if child.TreeID != root.TreeID {
				t.Errorf("child tree ID = %d, want %d", child.TreeID, root.TreeID)
			}
		})
	}
}

func TestStore_GetNotFound(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			if _, err := s.Get(999); err != ErrNotFound {
				t.Errorf("Get(999) err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_UpdateRoundTrip(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)

			task := newTask("build the ingestion pipeline")
			task.Priority = 5
			if _, err := s.Create(task); err != nil {
				t.Fatalf("Create: %v", err)
			}

			task.State = models.StateProcessAssigned
			task.SubtaskIDs = []int64{7, 8}
			task.Dependencies = []int64{7}
			task.AdditionalContext = []string{"doc-1", "doc-2"}
			task.AdditionalTools = []string{"grep"}
			task.AssignedAgent = "researcher"
			task.Framework = &models.Framework{ID: "fw-1", Domain: "data", SupportsIsolation: true}
			task.Result = models.Result{"quality_score": 0.9}
			task.Conversation = []models.Message{
				{Role: "system", Content: "framework established", Timestamp: time.Now()},
			}
			task.ToolCalls = []models.ToolCall{
				{Name: "break_down", Arguments: map[string]any{"approach": "by module"}, Timestamp: time.Now()},
			}
			if err := s.Update(task); err != nil {
				t.Fatalf("Update: %v", err)
			}

			got, err := s.Get(task.ID)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.State != models.StateProcessAssigned {
				t.Errorf("state = %s, want process_assigned", got.State)
			}
			if len(got.SubtaskIDs) != 2 || got.SubtaskIDs[0] != 7 {
				t.Errorf("subtask IDs = %v, want [7 8]", got.SubtaskIDs)
			}
			if len(got.Dependencies) != 1 || got.Dependencies[0] != 7 {
				t.Errorf("dependencies = %v, want [7]", got.Dependencies)
			}
			if len(got.AdditionalContext) != 2 {
				t.Errorf("context = %v, want two docs", got.AdditionalContext)
			}
			if got.AssignedAgent != "researcher" {
				t.Errorf("assigned agent = %q", got.AssignedAgent)
			}
			if got.Framework == nil || got.Framework.ID != "fw-1" || !got.Framework.SupportsIsolation {
				t.Errorf("framework = %+v", got.Framework)
			}
			if len(got.Conversation) != 1 || got.Conversation[0].Content != "framework established" {
				t.Errorf("conversation = %+v", got.Conversation)
			}
			if len(got.ToolCalls) != 1 || got.ToolCalls[0].Name != "break_down" {
				t.Errorf("tool calls = %+v", got.ToolCalls)
			}
		})
	}
}

func TestStore_UpdateNotFound(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			task := newTask("this task was never created")
			task.ID = 42
			if err := s.Update(task); err != ErrNotFound {
				t.Errorf("Update err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_ListByTreeAndParent(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)

			root := newTask("root of the first tree here")
			if _, err := s.Create(root); err != nil {
				t.Fatalf("Create root: %v", err)
			}
			for i := 0; i < 3; i++ {
				child := newTask("child task of the first tree")
				child.ParentID = &root.ID
				child.TreeID = root.TreeID
				if _, err := s.Create(child); err != nil {
					t.Fatalf("Create child: %v", err)
				}
			}
			other := newTask("root of a different task tree")
			if _, err := s.Create(other); err != nil {
				t.Fatalf("Create other: %v", err)
			}

			tree, err := s.ListByTree(root.TreeID)
			if err != nil {
				t.Fatalf("ListByTree: %v", err)
			}
			if len(tree) != 4 {
				t.Errorf("tree size = %d, want 4", len(tree))
			}

			children, err := s.ListByParent(root.ID)
			if err != nil {
				t.Fatalf("ListByParent: %v", err)
			}
			if len(children) != 3 {
				t.Errorf("children = %d, want 3", len(children))
			}
		})
	}
}

func TestStore_ListByStateOrdersByPriority(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)

			low := newTask("low priority ready-state task")
			low.State = models.StateReadyForAgent
			low.Priority = 1
			if _, err := s.Create(low); err != nil {
				t.Fatalf("Create: %v", err)
			}
			high := newTask("high priority ready-state task")
			high.State = models.StateReadyForAgent
			high.Priority = 9
			if _, err := s.Create(high); err != nil {
				t.Fatalf("Create: %v", err)
			}
			done := newTask("completed task must not appear")
			done.State = models.StateCompleted
			if _, err := s.Create(done); err != nil {
				t.Fatalf("Create: %v", err)
			}

			ready, err := s.ListByState(models.StateReadyForAgent)
			if err != nil {
				t.Fatalf("ListByState: %v", err)
			}
			if len(ready) != 2 {
				t.Fatalf("ready = %d, want 2", len(ready))
			}
			if ready[0].ID != high.ID {
				t.Errorf("highest priority should come first, got task %d", ready[0].ID)
			}
		})
	}
}

func TestStore_ListAllOrdersByID(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)

			for _, instr := range []string{
				"first task in creation order",
				"second task in creation order",
				"third task in creation order",
			} {
				if _, err := s.Create(newTask(instr)); err != nil {
					t.Fatalf("Create: %v", err)
				}
			}

			all, err := s.ListAll()
			if err != nil {
				t.Fatalf("ListAll: %v", err)
			}
			if len(all) != 3 {
				t.Fatalf("tasks = %d, want 3", len(all))
			}
			for i := 1; i < len(all); i++ {
				if all[i-1].ID >= all[i].ID {
					t.Errorf("tasks not ordered by ID: %d before %d", all[i-1].ID, all[i].ID)
				}
			}
		})
	}
}

func TestMemoryStore_HandsOutCopies(t *testing.T) {
	s := NewMemoryStore()
	task := newTask("mutation through copies test")
	if _, err := s.Create(task); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.Get(task.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got.Instruction = "changed behind the store's back"
	got.SubtaskIDs = append(got.SubtaskIDs, 99)

	again, err := s.Get(task.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if again.Instruction != "mutation through copies test" {
		t.Error("store state was mutated through a returned copy")
	}
	if len(again.SubtaskIDs) != 0 {
		t.Error("subtask slice was shared with a returned copy")
	}
}
