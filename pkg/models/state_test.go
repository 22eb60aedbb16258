package models

import "testing"

func TestTaskState_Valid(t *testing.T) {
	valid := []TaskState{
		StateCreated, StateProcessAssigned, StateReadyForAgent,
		StateWaitingOnDependencies, StateAgentResponding, StateToolProcessing,
		StateManualHold, StateCompleted, StateFailed,
	}
	for _, s := range valid {
		if !s.Valid() {
			t.Errorf("state %q should be valid", s)
		}
	}
	if TaskState("bogus").Valid() {
		t.Error("unknown state should not be valid")
	}
}

func TestTaskState_Terminal(t *testing.T) {
	if !StateCompleted.Terminal() {
		t.Error("completed should be terminal")
	}
	if !StateFailed.Terminal() {
		t.Error("failed should be terminal")
	}
	if StateReadyForAgent.Terminal() {
		t.Error("ready_for_agent should not be terminal")
	}
	if StateManualHold.Terminal() {
		t.Error("manual_hold should not be terminal")
	}
}

func TestCanTransition_HappyPath(t *testing.T) {
	path := []TaskState{
		StateCreated, StateProcessAssigned, StateWaitingOnDependencies,
		StateProcessAssigned, StateReadyForAgent, StateAgentResponding,
		StateToolProcessing, StateWaitingOnDependencies, StateReadyForAgent,
		StateAgentResponding, StateCompleted,
	}
	for i := 0; i < len(path)-1; i++ {
		if !CanTransition(path[i], path[i+1]) {
			t.Errorf("transition %s -> %s should be legal", path[i], path[i+1])
		}
	}
}

func TestCanTransition_ManualHold(t *testing.T) {
	if !CanTransition(StateReadyForAgent, StateManualHold) {
		t.Error("ready_for_agent -> manual_hold should be legal")
	}
	// Manual hold exits only via continue, skip, or abort.
	for _, to := range []TaskState{StateReadyForAgent, StateCompleted, StateFailed} {
		if !CanTransition(StateManualHold, to) {
			t.Errorf("manual_hold -> %s should be legal", to)
		}
	}
	if CanTransition(StateManualHold, StateAgentResponding) {
		t.Error("manual_hold -> agent_responding should not be legal")
	}
	if CanTransition(StateCreated, StateManualHold) {
		t.Error("manual_hold must only be reachable from ready_for_agent")
	}
}

func TestCanTransition_TerminalStatesAreFinal(t *testing.T) {
	all := []TaskState{
		StateCreated, StateProcessAssigned, StateReadyForAgent,
		StateWaitingOnDependencies, StateAgentResponding, StateToolProcessing,
		StateManualHold, StateCompleted, StateFailed,
	}
	for _, to := range all {
		if CanTransition(StateCompleted, to) {
			t.Errorf("completed -> %s should not be legal", to)
		}
		if CanTransition(StateFailed, to) {
			t.Errorf("failed -> %s should not be legal", to)
		}
	}
}

func TestCanTransition_FailedReachableFromAllActive(t *testing.T) {
	// Tree cancellation must be able to fail any non-terminal task.
	active := []TaskState{
		StateCreated, StateProcessAssigned, StateReadyForAgent,
		StateWaitingOnDependencies, StateAgentResponding, StateToolProcessing,
		StateManualHold,
	}
	for _, from := range active {
		if !CanTransition(from, StateFailed) {
			t.Errorf("%s -> failed should be legal", from)
		}
	}
}
