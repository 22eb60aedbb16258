package api

import (
	"strings"
	"testing"

	"github.com/kmordal/taskloom/pkg/models"
)

func TestBuildSystemPrompt_IncludesPreparation(t *testing.T) {
	task := &models.Task{
		ID:                7,
		AssignedAgent:     "researcher",
		Framework:         &models.Framework{ID: "fw-text", Domain: "text-processing"},
		AdditionalContext: []string{"style-guide"},
		AdditionalTools:   []string{"summarize"},
	}

	prompt := buildSystemPrompt(task)
	for _, want := range []string{"researcher", "fw-text", "text-processing", "style-guide", "summarize", "break_down", "end_task"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestBuildMessages_InstructionFirstThenConversation(t *testing.T) {
	task := &models.Task{
		Instruction: "summarize the report",
		Conversation: []models.Message{
			{Role: "system", Content: "isolation warning"},
			{Role: "agent", Content: "working on it"},
		},
	}

	messages := buildMessages(task)
	if len(messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(messages))
	}
	if messages[0].Role != "user" {
		t.Errorf("first message role = %s, want user", messages[0].Role)
	}
	if messages[2].Role != "assistant" {
		t.Errorf("agent entry role = %s, want assistant", messages[2].Role)
	}
}

func TestToolDefinitions_MatchRegistryNames(t *testing.T) {
	defs := ToolDefinitions()
	var names []string
	for _, def := range defs {
		names = append(names, def.OfTool.Name)
	}
	for _, want := range []string{"break_down", "end_task"} {
		found := false
		for _, n := range names {
			if n == want {
				found = true
			}
		}
		if !found {
			t.Errorf("tool %q not offered to agents", want)
		}
	}
}
