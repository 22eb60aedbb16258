package models

import (
	"testing"
	"time"
)

func TestTask_Root(t *testing.T) {
	root := &Task{ID: 1, TreeID: 1}
	if !root.Root() {
		t.Error("task without parent should be a root")
	}

	pid := int64(1)
	child := &Task{ID: 2, TreeID: 1, ParentID: &pid}
	if child.Root() {
		t.Error("task with parent should not be a root")
	}
}

func TestTask_HasDependency(t *testing.T) {
	task := &Task{ID: 1, Dependencies: []int64{2, 3}}
	if !task.HasDependency(2) {
		t.Error("expected dependency 2")
	}
	if task.HasDependency(4) {
		t.Error("did not expect dependency 4")
	}
}

func TestTask_HasContextAndTool(t *testing.T) {
	task := &Task{
		AdditionalContext: []string{"doc-1"},
		AdditionalTools:   []string{"grep"},
	}
	if !task.HasContext("doc-1") {
		t.Error("expected context doc-1")
	}
	if task.HasContext("doc-2") {
		t.Error("did not expect context doc-2")
	}
	if !task.HasTool("grep") {
		t.Error("expected tool grep")
	}
	if task.HasTool("sed") {
		t.Error("did not expect tool sed")
	}
}

func TestTask_Clone_IsDeep(t *testing.T) {
	pid := int64(1)
	task := &Task{
		ID:                2,
		TreeID:            1,
		ParentID:          &pid,
		SubtaskIDs:        []int64{3},
		Dependencies:      []int64{3},
		AdditionalContext: []string{"doc-1"},
		AdditionalTools:   []string{"grep"},
		Framework:         &Framework{ID: "fw-1", Domain: "text"},
		Result:            Result{"ok": true},
		Conversation:      []Message{{Role: "system", Content: "hi", Timestamp: time.Now()}},
	}

	clone := task.Clone()
	clone.SubtaskIDs[0] = 99
	clone.Dependencies = append(clone.Dependencies, 98)
	clone.AdditionalContext[0] = "other"
	clone.Framework.ID = "fw-2"
	clone.Result["ok"] = false
	*clone.ParentID = 42

	if task.SubtaskIDs[0] != 3 {
		t.Error("clone shares subtask slice with original")
	}
	if len(task.Dependencies) != 1 {
		t.Error("clone shares dependency slice with original")
	}
	if task.AdditionalContext[0] != "doc-1" {
		t.Error("clone shares context slice with original")
	}
	if task.Framework.ID != "fw-1" {
		t.Error("clone shares framework with original")
	}
	if task.Result["ok"] != true {
		t.Error("clone shares result map with original")
	}
	if *task.ParentID != 1 {
		t.Error("clone shares parent pointer with original")
	}
}
