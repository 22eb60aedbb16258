package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kmordal/taskloom/internal/store"
	"github.com/kmordal/taskloom/pkg/models"
)

var statusDBPath string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the task trees in the database",
	Long: `Display every task tree in the configured SQLite database with
per-state counts. Roots are listed with their subtasks indented below.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusDBPath, "db", "", "SQLite database path (default from config)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := statusDBPath
	if path == "" {
		path = cfg.Store.Path
	}
	if path == "" {
		return fmt.Errorf("no database configured; set store.path or pass --db")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Println("No database found. Run 'taskloom run <instruction>' to start.")
		return nil
	}

	st, err := store.OpenSQLite(path)
	if err != nil {
		return err
	}
	defer st.Close()

	tasks, err := st.ListAll()
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks.")
		return nil
	}

	counts := make(map[models.TaskState]int)
	children := make(map[int64][]*models.Task)
	index := make(map[int64]*models.Task)
	var roots []*models.Task
	for _, t := range tasks {
		counts[t.State]++
		index[t.ID] = t
	}
	for _, t := range tasks {
		if t.ParentID != nil && index[*t.ParentID] != nil {
			children[*t.ParentID] = append(children[*t.ParentID], t)
		} else {
			roots = append(roots, t)
		}
	}

	for _, root := range roots {
		printTaskLine(root, 0)
		printSubtasks(children, root.ID, 1)
	}

	fmt.Println()
	var parts []string
	for _, s := range []models.TaskState{
		models.StateCreated, models.StateProcessAssigned, models.StateReadyForAgent,
		models.StateWaitingOnDependencies, models.StateAgentResponding,
		models.StateToolProcessing, models.StateManualHold,
		models.StateCompleted, models.StateFailed,
	} {
		if counts[s] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[s], s))
		}
	}
	fmt.Printf("%d tasks: %s\n", len(tasks), strings.Join(parts, ", "))
	return nil
}

func printSubtasks(children map[int64][]*models.Task, parentID int64, depth int) {
	for _, child := range children[parentID] {
		printTaskLine(child, depth)
		printSubtasks(children, child.ID, depth+1)
	}
}

func printTaskLine(task *models.Task, depth int) {
	indent := strings.Repeat("  ", depth)
	c := stateColor(task.State)
	c.Printf("%s%s #%d [%s] %s\n", indent, stateGlyph(task.State), task.ID, task.State, summarize(task.Instruction, 60))
	if task.State == models.StateFailed && task.Error != "" {
		color.New(color.FgRed).Printf("%s    %s\n", indent, summarize(task.Error, 70))
	}
}

func stateGlyph(s models.TaskState) string {
	switch s {
	case models.StateCompleted:
		return "✓"
	case models.StateFailed:
		return "✗"
	case models.StateManualHold:
		return "⏸"
	case models.StateAgentResponding, models.StateToolProcessing:
		return "▶"
	case models.StateWaitingOnDependencies:
		return "⧗"
	default:
		return "·"
	}
}

func stateColor(s models.TaskState) *color.Color {
	switch s {
	case models.StateCompleted:
		return color.New(color.FgGreen)
	case models.StateFailed:
		return color.New(color.FgRed)
	case models.StateManualHold:
		return color.New(color.FgYellow)
	case models.StateAgentResponding, models.StateToolProcessing:
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgWhite)
	}
}
