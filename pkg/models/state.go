package models

// TaskState represents the lifecycle state of a task.
type TaskState string

const (
	// StateCreated is the initial state of every task.
	StateCreated TaskState = "created"
	// StateProcessAssigned indicates a process has been assigned and is preparing the task.
	StateProcessAssigned TaskState = "process_assigned"
	// StateReadyForAgent indicates the task is prepared and awaiting dispatch.
	StateReadyForAgent TaskState = "ready_for_agent"
	// StateWaitingOnDependencies indicates the task is blocked on other tasks.
	// A task may re-enter this state multiple times while spawning successive children.
	StateWaitingOnDependencies TaskState = "waiting_on_dependencies"
	// StateAgentResponding indicates the agent-execution layer is producing output.
	StateAgentResponding TaskState = "agent_responding"
	// StateToolProcessing indicates a tool-triggered process is running on the task.
	StateToolProcessing TaskState = "tool_processing"
	// StateManualHold indicates the task is parked awaiting operator approval.
	// Reached only from StateReadyForAgent when the scheduler runs in step mode.
	StateManualHold TaskState = "manual_hold"
	// StateCompleted is the terminal success state.
	StateCompleted TaskState = "completed"
	// StateFailed is the terminal failure state.
	StateFailed TaskState = "failed"
)

// Valid returns true if the state is a known value.
func (s TaskState) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal returns true if the state is COMPLETED or FAILED.
func (s TaskState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// transitions maps each state to the set of states it may legally move to.
// StateFailed is reachable from every non-terminal state so that tree
// cancellation can always take effect.
var transitions = map[TaskState][]TaskState{
	StateCreated: {StateProcessAssigned, StateFailed},
	StateProcessAssigned: {
		StateReadyForAgent, StateWaitingOnDependencies, StateFailed,
	},
	StateWaitingOnDependencies: {
		StateProcessAssigned, StateReadyForAgent, StateCompleted, StateFailed,
	},
	StateReadyForAgent: {
		StateAgentResponding, StateManualHold, StateWaitingOnDependencies,
		StateCompleted, StateFailed,
	},
	StateAgentResponding: {
		StateToolProcessing, StateWaitingOnDependencies, StateCompleted, StateFailed,
	},
	StateToolProcessing: {
		StateAgentResponding, StateReadyForAgent, StateWaitingOnDependencies,
		StateCompleted, StateFailed,
	},
	StateManualHold: {StateReadyForAgent, StateCompleted, StateFailed},
	StateCompleted:  {},
	StateFailed:     {},
}

// CanTransition reports whether moving from one state to another is legal.
func CanTransition(from, to TaskState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
