package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kmordal/taskloom/internal/engine"
)

// seedFile is the YAML shape accepted by --seed. Dependencies are indices
// into the same file's task list.
type seedFile struct {
	Tasks []seedTask `yaml:"tasks"`
}

type seedTask struct {
	Instruction  string   `yaml:"instruction"`
	Priority     int      `yaml:"priority"`
	Agent        string   `yaml:"agent"`
	Process      string   `yaml:"process"`
	Context      []string `yaml:"context"`
	Tools        []string `yaml:"tools"`
	Dependencies []int    `yaml:"dependencies"`
}

// seedTasks creates the tasks declared in a seed file and returns their
// IDs. File-relative dependency indices are resolved to real task IDs;
// forward references are rejected.
func seedTasks(eng *engine.Engine, path string) ([]int64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if len(seed.Tasks) == 0 {
		return nil, fmt.Errorf("seed file %s declares no tasks", path)
	}

	ids := make([]int64, 0, len(seed.Tasks))
	for i, entry := range seed.Tasks {
		var deps []int64
		for _, ref := range entry.Dependencies {
			if ref < 0 || ref >= i {
				return nil, fmt.Errorf("seed task %d: dependency %d must reference an earlier task", i, ref)
			}
			deps = append(deps, ids[ref])
		}

		spec := engine.TaskSpec{
			Instruction:     entry.Instruction,
			Priority:        entry.Priority,
			AssignedAgent:   entry.Agent,
			AssignedProcess: entry.Process,
			Context:         entry.Context,
			Tools:           entry.Tools,
		}

		var id int64
		if len(deps) == 0 {
			task, err := eng.CreateTask(spec)
			if err != nil {
				return nil, fmt.Errorf("seed task %d: %w", i, err)
			}
			id = task.ID
		} else {
			// Dependent seed tasks join the tree of their first dependency
			// as subtasks so the same-tree dependency rule holds.
			spec.Dependencies = deps
			task, err := eng.CreateSubtask(deps[0], spec)
			if err != nil {
				return nil, fmt.Errorf("seed task %d: %w", i, err)
			}
			id = task.ID
		}
		ids = append(ids, id)
	}
	return ids, nil
}
