package tui

import (
	"sort"

	"github.com/kmordal/taskloom/pkg/models"
)

// treeRow is one selectable line of the task tree.
type treeRow struct {
	task  *models.Task
	depth int
}

// buildTree orders tasks depth-first under their parents. Tasks whose
// parent is not in the set are treated as roots so partial views still
// render.
func buildTree(tasks []*models.Task) []treeRow {
	index := make(map[int64]*models.Task, len(tasks))
	for _, t := range tasks {
		index[t.ID] = t
	}

	children := make(map[int64][]*models.Task)
	var roots []*models.Task
	for _, t := range tasks {
		if t.ParentID != nil && index[*t.ParentID] != nil {
			children[*t.ParentID] = append(children[*t.ParentID], t)
		} else {
			roots = append(roots, t)
		}
	}

	byID := func(list []*models.Task) {
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	}
	byID(roots)
	for _, list := range children {
		byID(list)
	}

	var rows []treeRow
	var walk func(t *models.Task, depth int)
	walk = func(t *models.Task, depth int) {
		rows = append(rows, treeRow{task: t, depth: depth})
		for _, c := range children[t.ID] {
			walk(c, depth+1)
		}
	}
	for _, r := range roots {
		walk(r, 0)
	}
	return rows
}

// stateIcon returns the glyph for a task state. Styling is applied by the
// caller.
func stateIcon(s models.TaskState) string {
	switch s {
	case models.StateCreated:
		return "·"
	case models.StateProcessAssigned:
		return "◌"
	case models.StateReadyForAgent:
		return "○"
	case models.StateWaitingOnDependencies:
		return "⧗"
	case models.StateAgentResponding:
		return "▶"
	case models.StateToolProcessing:
		return "⚙"
	case models.StateManualHold:
		return "⏸"
	case models.StateCompleted:
		return "✓"
	case models.StateFailed:
		return "✗"
	default:
		return "?"
	}
}
