package store

import (
	"sort"
	"sync"

	"github.com/kmordal/taskloom/pkg/models"
)

// MemoryStore is an in-memory TaskStore. It backs tests and ephemeral runs
// where durability is not wanted.
type MemoryStore struct {
	mu     sync.RWMutex
	tasks  map[int64]*models.Task
	nextID int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: make(map[int64]*models.Task),
	}
}

// Create assigns the next ID and stores a copy of the task.
func (s *MemoryStore) Create(task *models.Task) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	task.ID = s.nextID
	if task.TreeID == 0 {
		task.TreeID = task.ID
	}
	s.tasks[task.ID] = task.Clone()
	return task.ID, nil
}

// Get returns a copy of the task with the given ID.
func (s *MemoryStore) Get(id int64) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return task.Clone(), nil
}

// Update overwrites the stored task with a copy of the given one.
func (s *MemoryStore) Update(task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[task.ID]; !ok {
		return ErrNotFound
	}
	s.tasks[task.ID] = task.Clone()
	return nil
}

// ListByTree returns every task in the tree, ordered by ID.
func (s *MemoryStore) ListByTree(treeID int64) ([]*models.Task, error) {
	return s.list(func(t *models.Task) bool { return t.TreeID == treeID }, byID)
}

// ListByParent returns the direct children of the given task, ordered by ID.
func (s *MemoryStore) ListByParent(parentID int64) ([]*models.Task, error) {
	return s.list(func(t *models.Task) bool {
		return t.ParentID != nil && *t.ParentID == parentID
	}, byID)
}

// ListByState returns every task in the given state, highest priority first.
func (s *MemoryStore) ListByState(state models.TaskState) ([]*models.Task, error) {
	return s.list(func(t *models.Task) bool { return t.State == state }, byPriority)
}

// ListAll returns every stored task, ordered by ID.
func (s *MemoryStore) ListAll() ([]*models.Task, error) {
	return s.list(func(*models.Task) bool { return true }, byID)
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) list(keep func(*models.Task) bool, order func([]*models.Task)) ([]*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Task
	for _, task := range s.tasks {
		if keep(task) {
			out = append(out, task.Clone())
		}
	}
	order(out)
	return out, nil
}

func byID(tasks []*models.Task) {
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
}

func byPriority(tasks []*models.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].Priority != tasks[j].Priority {
			return tasks[i].Priority > tasks[j].Priority
		}
		return tasks[i].ID < tasks[j].ID
	})
}
