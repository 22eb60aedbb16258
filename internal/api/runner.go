package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/kmordal/taskloom/internal/engine"
	"github.com/kmordal/taskloom/internal/logging"
	"github.com/kmordal/taskloom/internal/process"
	"github.com/kmordal/taskloom/pkg/models"
)

const (
	defaultMaxIterations = 50
	responseMaxTokens    = 8192
)

// Runner drives one model conversation per dispatched task. Tool
// invocations are routed through the process registry; a tool that parks
// or finishes the task ends the run, and the scheduler picks the task up
// again when it becomes ready.
type Runner struct {
	client        *Client
	engine        *engine.Engine
	registry      *process.Registry
	log           *logging.Logger
	maxIterations int
}

// NewRunner creates a Runner over the given client and registry.
func NewRunner(client *Client, e *engine.Engine, registry *process.Registry, log *logging.Logger) *Runner {
	return &Runner{
		client:        client,
		engine:        e,
		registry:      registry,
		log:           log,
		maxIterations: defaultMaxIterations,
	}
}

// SetMaxIterations overrides the API-call budget per run.
func (r *Runner) SetMaxIterations(n int) {
	if n > 0 {
		r.maxIterations = n
	}
}

// RunTask executes the conversation for a task in AGENT_RESPONDING. It
// returns nil when the task reaches a terminal state or parks itself on
// dependencies.
func (r *Runner) RunTask(ctx context.Context, taskID int64) error {
	task, err := r.engine.GetTask(taskID)
	if err != nil {
		return err
	}

	system := buildSystemPrompt(task)
	messages := buildMessages(task)

	for iteration := 0; iteration < r.maxIterations; iteration++ {
		resp, err := r.client.sdk().Messages.New(ctx, anthropic.MessageNewParams{
			Model:     r.client.Model(),
			MaxTokens: responseMaxTokens,
			System: []anthropic.TextBlockParam{
				{Text: system},
			},
			Messages: messages,
			Tools:    ToolDefinitions(),
		})
		if err != nil {
			return fmt.Errorf("API call for task %d: %w", taskID, err)
		}
		r.client.Tracker().Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

		var assistantBlocks []anthropic.ContentBlockParamUnion
		var toolResultBlocks []anthropic.ContentBlockParamUnion
		var text string
		settled := false

		for _, block := range resp.Content {
			switch variant := block.AsAny().(type) {
			case anthropic.TextBlock:
				text += variant.Text
				assistantBlocks = append(assistantBlocks, anthropic.NewTextBlock(variant.Text))

			case anthropic.ToolUseBlock:
				assistantBlocks = append(assistantBlocks,
					anthropic.NewToolUseBlock(variant.ID, variant.Input, variant.Name))

				outcome, done, err := r.invokeTool(ctx, taskID, variant.Name, variant.Input)
				if err != nil {
					return err
				}
				if done {
					settled = true
					break
				}
				toolResultBlocks = append(toolResultBlocks,
					anthropic.NewToolResultBlock(variant.ID, outcome.content, outcome.isError))
			}
		}

		if text != "" {
			if err := r.engine.AddAgentMessage(taskID, text); err != nil {
				r.log.Log("[runner] task %d: record agent message: %v", taskID, err)
			}
		}
		if settled {
			return nil
		}

		// A plain end of turn with no end_task call: accept the text as
		// the declared result.
		if resp.StopReason == anthropic.StopReasonEndTurn {
			return r.engine.MarkTaskComplete(taskID, models.Result{"response": text})
		}

		messages = append(messages, anthropic.NewAssistantMessage(assistantBlocks...))
		if len(toolResultBlocks) > 0 {
			messages = append(messages, anthropic.NewUserMessage(toolResultBlocks...))
		}
	}

	return fmt.Errorf("task %d: conversation exceeded %d API calls", taskID, r.maxIterations)
}

type toolOutcome struct {
	content string
	isError bool
}

// invokeTool routes a tool call through the registry. done reports that
// the task has left the agent's hands: it is terminal or parked on
// dependencies, and the run must end.
func (r *Runner) invokeTool(ctx context.Context, taskID int64, name string, input json.RawMessage) (toolOutcome, bool, error) {
	params := process.Parameters{}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &params); err != nil {
			return toolOutcome{content: "invalid tool arguments: " + err.Error(), isError: true}, false, nil
		}
	}

	if err := r.engine.RecordToolCall(taskID, name, params); err != nil {
		r.log.Log("[runner] task %d: record tool call: %v", taskID, err)
	}
	if err := r.engine.UpdateTaskState(taskID, models.StateToolProcessing); err != nil {
		return toolOutcome{}, false, err
	}

	res := r.registry.Execute(ctx, name, taskID, params)

	task, err := r.engine.GetTask(taskID)
	if err != nil {
		return toolOutcome{}, false, err
	}
	if task.State.Terminal() || task.State == models.StateWaitingOnDependencies {
		return toolOutcome{}, true, nil
	}

	// The tool left the task with the agent: hand control back and report
	// the outcome.
	if err := r.engine.UpdateTaskState(taskID, models.StateAgentResponding); err != nil {
		return toolOutcome{}, false, err
	}
	if !res.Success() {
		return toolOutcome{content: res.Error, isError: true}, false, nil
	}
	payload, err := json.Marshal(res.Data)
	if err != nil {
		payload = []byte("{}")
	}
	return toolOutcome{content: string(payload)}, false, nil
}

// buildSystemPrompt renders the task's preparation into the system prompt.
func buildSystemPrompt(task *models.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the %q agent working on task %d.\n", task.AssignedAgent, task.ID)
	b.WriteString("Work the task to completion. Call break_down when the task is too large to do directly, and end_task to submit your result for evaluation.\n")

	if task.Framework != nil {
		fmt.Fprintf(&b, "\nSystematic framework: %s (domain: %s)\n", task.Framework.ID, task.Framework.Domain)
	}
	if len(task.AdditionalContext) > 0 {
		b.WriteString("\nContext documents:\n")
		for _, doc := range task.AdditionalContext {
			fmt.Fprintf(&b, "- %s\n", doc)
		}
	}
	if len(task.AdditionalTools) > 0 {
		b.WriteString("\nAvailable domain tools:\n")
		for _, tool := range task.AdditionalTools {
			fmt.Fprintf(&b, "- %s\n", tool)
		}
	}
	return b.String()
}

// buildMessages converts the task instruction and recorded conversation
// into message params. System and user entries become user messages so
// interleaved roles stay alternating-safe for the API.
func buildMessages(task *models.Task) []anthropic.MessageParam {
	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(task.Instruction)),
	}
	for _, msg := range task.Conversation {
		switch msg.Role {
		case "agent":
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock("["+msg.Role+"] "+msg.Content)))
		}
	}
	return messages
}
