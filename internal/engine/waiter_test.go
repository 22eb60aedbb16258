package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/kmordal/taskloom/pkg/models"
)

func completeTask(t *testing.T, e *Engine, id int64, result models.Result) {
	t.Helper()
	advanceToReady(t, e, id)
	if err := e.UpdateTaskState(id, models.StateAgentResponding); err != nil {
		t.Fatalf("to agent_responding: %v", err)
	}
	if err := e.MarkTaskComplete(id, result); err != nil {
		t.Fatalf("MarkTaskComplete: %v", err)
	}
}

func TestWaitForTasks_AlreadyTerminalReturnsImmediately(t *testing.T) {
	e, _ := newTestEngine()

	a := mustCreate(t, e, TaskSpec{Instruction: "already terminal task a here"})
	b := mustCreate(t, e, TaskSpec{Instruction: "already terminal task b here"})
	completeTask(t, e, a.ID, models.Result{"who": "a"})
	advanceToReady(t, e, b.ID)
	if err := e.UpdateTaskState(b.ID, models.StateAgentResponding); err != nil {
		t.Fatalf("UpdateTaskState: %v", err)
	}
	if err := e.MarkTaskFailed(b.ID, "b went wrong"); err != nil {
		t.Fatalf("MarkTaskFailed: %v", err)
	}

	start := time.Now()
	results, err := e.WaitForTasks(context.Background(), []int64{a.ID, b.ID}, 0)
	if err != nil {
		t.Fatalf("WaitForTasks: %v", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("wait on terminal tasks should not block")
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}

	byID := map[int64]models.ProcessResult{}
	for _, r := range results {
		byID[r.TaskID] = r
	}
	if !byID[a.ID].Success() {
		t.Errorf("task a result = %+v, want success", byID[a.ID])
	}
	if byID[b.ID].Success() || byID[b.ID].Error != "b went wrong" {
		t.Errorf("task b result = %+v, want failure with recorded error", byID[b.ID])
	}
}

func TestWaitForTasks_TimesOutOnStuckTask(t *testing.T) {
	e, _ := newTestEngine()

	stuck := mustCreate(t, e, TaskSpec{Instruction: "task that never terminates"})

	start := time.Now()
	results, err := e.WaitForTasks(context.Background(), []int64{stuck.ID}, 150*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForTasks: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < 100*time.Millisecond || elapsed > 2*time.Second {
		t.Errorf("elapsed = %v, want about the timeout", elapsed)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if results[0].Success() {
		t.Error("timed-out task must resolve as failure")
	}
	if !strings.Contains(results[0].Error, "timeout") {
		t.Errorf("error = %q, want a timeout error", results[0].Error)
	}
}

func TestWaitForTasks_ResolvesInFinishOrder(t *testing.T) {
	e, _ := newTestEngine()

	slow := mustCreate(t, e, TaskSpec{Instruction: "slow task finishing second"})
	fast := mustCreate(t, e, TaskSpec{Instruction: "fast task finishing first"})

	go func() {
		time.Sleep(30 * time.Millisecond)
		completeTask(t, e, fast.ID, nil)
		time.Sleep(60 * time.Millisecond)
		completeTask(t, e, slow.ID, nil)
	}()

	// Request slow first; results must come back in finish order.
	results, err := e.WaitForTasks(context.Background(), []int64{slow.ID, fast.ID}, 5*time.Second)
	if err != nil {
		t.Fatalf("WaitForTasks: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].TaskID != fast.ID {
		t.Errorf("first result = task %d, want the fast task %d", results[0].TaskID, fast.ID)
	}
	if results[1].TaskID != slow.ID {
		t.Errorf("second result = task %d, want the slow task %d", results[1].TaskID, slow.ID)
	}
}

func TestWaitForTasks_UnknownTask(t *testing.T) {
	e, _ := newTestEngine()

	_, err := e.WaitForTasks(context.Background(), []int64{12345}, 0)
	if err == nil {
		t.Fatal("expected error for unknown task")
	}
}

func TestWaitForTasks_ContextCancellation(t *testing.T) {
	e, _ := newTestEngine()

	stuck := mustCreate(t, e, TaskSpec{Instruction: "stuck task for cancellation"})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	results, err := e.WaitForTasks(ctx, []int64{stuck.ID}, WaitForever)
	if err != nil {
		t.Fatalf("WaitForTasks: %v", err)
	}
	if len(results) != 1 || results[0].Success() {
		t.Errorf("results = %+v, want one failure", results)
	}
}
