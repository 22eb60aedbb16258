package main

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/kmordal/taskloom/internal/events"
	"github.com/kmordal/taskloom/pkg/models"
)

// eventPrinter streams engine events to the terminal.
type eventPrinter struct {
	stream <-chan events.Event
	done   chan struct{}
}

func newEventPrinter(stream <-chan events.Event) *eventPrinter {
	return &eventPrinter{stream: stream, done: make(chan struct{})}
}

// Start begins printing in the background.
func (p *eventPrinter) Start() {
	go func() {
		defer close(p.done)
		for ev := range p.stream {
			printEvent(ev)
		}
	}()
}

// Stop waits for the stream to drain. The emitter must be closed first.
func (p *eventPrinter) Stop() {
	<-p.done
}

func printEvent(ev events.Event) {
	ts := ev.Timestamp.Format("15:04:05")
	switch ev.Type {
	case events.TypeTaskCreated:
		color.New(color.FgCyan).Printf("%s + task %d created (tree %d)\n", ts, ev.TaskID, ev.TreeID)
	case events.TypeTaskCompleted:
		color.New(color.FgGreen).Printf("%s ✓ task %d completed\n", ts, ev.TaskID)
	case events.TypeTaskFailed:
		color.New(color.FgRed).Printf("%s ✗ task %d failed: %s\n", ts, ev.TaskID, ev.Message)
	case events.TypeTaskHeld:
		color.New(color.FgYellow).Printf("%s ⏸ task %d held for approval\n", ts, ev.TaskID)
	case events.TypeTaskResumed:
		color.New(color.FgYellow).Printf("%s ▶ task %d released\n", ts, ev.TaskID)
	case events.TypeTreeCancelled:
		color.New(color.FgRed).Printf("%s ✗ tree %d cancelled\n", ts, ev.TreeID)
	case events.TypeStateChanged:
		fmt.Printf("%s   task %d %s → %s\n", ts, ev.TaskID, ev.OldState, ev.NewState)
	default:
		fmt.Printf("%s   %s task %d\n", ts, ev.Type, ev.TaskID)
	}
}

func printDone(task *models.Task) {
	color.New(color.FgGreen).Printf("✓ task %d: %s\n", task.ID, summarize(task.Instruction, 70))
}

func printFailed(task *models.Task) {
	color.New(color.FgRed).Printf("✗ task %d: %s\n", task.ID, summarize(task.Instruction, 70))
	if task.Error != "" {
		color.New(color.FgRed).Printf("  %s\n", task.Error)
	}
}
