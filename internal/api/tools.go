package api

import (
	"github.com/anthropics/anthropic-sdk-go"
)

// ToolDefinitions returns the tool schemas offered to every agent
// conversation. The tool names match process names in the registry; an
// invocation hands control of the task to that process.
func ToolDefinitions() []anthropic.ToolUnionParam {
	return []anthropic.ToolUnionParam{
		{
			OfTool: &anthropic.ToolParam{
				Name:        "break_down",
				Description: anthropic.String("Decompose the current task into smaller subtasks. A planning agent produces the subtask list; the current task waits until all subtasks finish and then resumes with their results."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"approach": map[string]interface{}{
							"type":        "string",
							"description": "Optional guidance for the planner on how to split the work",
						},
					},
				},
			},
		},
		{
			OfTool: &anthropic.ToolParam{
				Name:        "end_task",
				Description: anthropic.String("Declare the current task finished and submit its result. An evaluator reviews the result; the task completes if accepted and fails with the evaluator's reason if rejected."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"result": map[string]interface{}{
							"type":        "object",
							"description": "The declared outcome of the task",
						},
					},
				},
			},
		},
	}
}
