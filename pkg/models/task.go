// Package models defines the task entity and its lifecycle state machine.
package models

import "time"

// MinInstructionLength is the minimum number of characters a task
// instruction must contain.
const MinInstructionLength = 10

// ProcessNeutral is the default process assigned to newly created tasks.
const ProcessNeutral = "neutral"

// Result is the structured payload recorded when a task completes.
type Result map[string]any

// Framework identifies the systematic framework established for a task
// by the neutral process. A zero ID means no framework has been established.
type Framework struct {
	// ID is the identifier of the established framework.
	ID string `json:"id"`
	// Domain is the knowledge domain the framework covers.
	Domain string `json:"domain,omitempty"`
	// SupportsIsolation indicates the framework provides enough structure
	// for tasks in its domain to succeed without further orchestration help.
	SupportsIsolation bool `json:"supports_isolation,omitempty"`
}

// Message is one entry in a task's conversation history.
type Message struct {
	// Role is who produced the entry ("system", "agent", "user").
	Role string `json:"role"`
	// Content is the message text.
	Content string `json:"content"`
	// Timestamp is when the entry was appended.
	Timestamp time.Time `json:"timestamp"`
}

// ToolCall records one tool invocation made by the agent on a task.
type ToolCall struct {
	// Name is the tool that was invoked.
	Name string `json:"name"`
	// Arguments holds the invocation parameters.
	Arguments map[string]any `json:"arguments,omitempty"`
	// Timestamp is when the invocation was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// Task represents a unit of work and a node in a task tree.
type Task struct {
	// ID is the numeric identifier, unique within the system.
	ID int64 `json:"id"`
	// TreeID is shared by every task descended from the same root.
	// For a root task it equals the task's own ID. It never changes.
	TreeID int64 `json:"tree_id"`
	// ParentID is the ID of the parent task; nil marks a root.
	ParentID *int64 `json:"parent_id,omitempty"`
	// SubtaskIDs lists the task's children in creation order. Append-only.
	SubtaskIDs []int64 `json:"subtask_ids,omitempty"`
	// Dependencies lists task IDs that must reach a terminal state
	// before this task may proceed. All must be within the same tree.
	Dependencies []int64 `json:"dependencies,omitempty"`

	// Instruction is the free-form description of the work.
	Instruction string `json:"instruction"`
	// Priority is ordinal; higher runs first.
	Priority int `json:"priority"`
	// AssignedAgent is the capability selector for the agent to run this
	// task, empty until selected.
	AssignedAgent string `json:"assigned_agent,omitempty"`
	// AssignedProcess names the strategy governing this task.
	AssignedProcess string `json:"assigned_process"`

	// State is the current lifecycle state.
	State TaskState `json:"state"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// StartedAt is when the task was first dispatched, if ever.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the task reached a terminal state, if ever.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// AdditionalContext lists context document identifiers attached by
	// processes before execution. Append-only.
	AdditionalContext []string `json:"additional_context,omitempty"`
	// AdditionalTools lists tool identifiers attached by processes before
	// execution. Append-only.
	AdditionalTools []string `json:"additional_tools,omitempty"`

	// Result is the structured payload, set only on success.
	Result Result `json:"result,omitempty"`
	// Error is the failure text, set only on failure.
	Error string `json:"error,omitempty"`

	// Conversation is the append-only log of interaction with the
	// agent-execution layer.
	Conversation []Message `json:"conversation,omitempty"`
	// ToolCalls is the append-only log of tool invocations.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// Framework is the systematic framework established by the neutral
	// process, nil until discovery runs.
	Framework *Framework `json:"framework,omitempty"`

	// Detached marks a fire-and-forget child: it is a real subtask of its
	// parent but intentionally never added to the parent's dependencies.
	Detached bool `json:"detached,omitempty"`
	// Skipped marks a task completed by operator skip from manual hold.
	Skipped bool `json:"skipped,omitempty"`
	// Aborted marks a task failed by operator abort from manual hold.
	Aborted bool `json:"aborted,omitempty"`
}

// Root returns true if the task has no parent.
func (t *Task) Root() bool {
	return t.ParentID == nil
}

// HasDependency returns true if the given task ID is already a dependency.
func (t *Task) HasDependency(id int64) bool {
	for _, dep := range t.Dependencies {
		if dep == id {
			return true
		}
	}
	return false
}

// HasContext returns true if the given document ID is already attached.
func (t *Task) HasContext(doc string) bool {
	for _, c := range t.AdditionalContext {
		if c == doc {
			return true
		}
	}
	return false
}

// HasTool returns true if the given tool ID is already attached.
func (t *Task) HasTool(tool string) bool {
	for _, tl := range t.AdditionalTools {
		if tl == tool {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the task. Stores hand out clones so callers
// can never mutate task state behind the engine's back.
func (t *Task) Clone() *Task {
	c := *t
	if t.ParentID != nil {
		pid := *t.ParentID
		c.ParentID = &pid
	}
	if t.StartedAt != nil {
		ts := *t.StartedAt
		c.StartedAt = &ts
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		c.CompletedAt = &ts
	}
	if t.Framework != nil {
		fw := *t.Framework
		c.Framework = &fw
	}
	c.SubtaskIDs = append([]int64(nil), t.SubtaskIDs...)
	c.Dependencies = append([]int64(nil), t.Dependencies...)
	c.AdditionalContext = append([]string(nil), t.AdditionalContext...)
	c.AdditionalTools = append([]string(nil), t.AdditionalTools...)
	c.Conversation = append([]Message(nil), t.Conversation...)
	c.ToolCalls = append([]ToolCall(nil), t.ToolCalls...)
	if t.Result != nil {
		c.Result = make(Result, len(t.Result))
		for k, v := range t.Result {
			c.Result[k] = v
		}
	}
	return &c
}
