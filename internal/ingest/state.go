package ingest

import "fmt"

// State is a stage of the per-dataset state machine.
type State string

const (
	StateIdle        State = "Idle"
	StateDiscovering State = "Discovering"
	StateLoading     State = "Loading"
	StateArchiving   State = "Archiving"
	StateDone        State = "Done"
	StateFailed      State = "Failed"
)

// transitions lists the states reachable from each state.
// Failed is reachable from every non-Idle, non-terminal state.
var transitions = map[State][]State{
	StateIdle:        {StateDiscovering},
	StateDiscovering: {StateLoading, StateDone, StateFailed},
	StateLoading:     {StateArchiving, StateFailed},
	StateArchiving:   {StateDone, StateFailed},
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// CanTransition reports whether moving from s to next is allowed.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// InvalidTransitionError is returned when a stage runs out of order.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
}
