package state

type State string

const (
	Pending      State = "pending"
	InFlight     State = "in_flight"
	Acked        State = "acked"
	Requeued     State = "requeued"
	DeadLettered State = "dead_lettered"
)

var allStates = []State{
	Pending,
	InFlight,
	Acked,
	Requeued,
	DeadLettered,
}

var transitions = map[State]map[State]bool{
	Pending: {
		InFlight: true,
	},
	InFlight: {
		Acked:        true,
		Requeued:     true,
		DeadLettered: true,
	},
	Requeued: {
		InFlight: true,
	},
}

func AllStates() []State {
	out := make([]State, len(allStates))
	copy(out, allStates)
	return out
}

func CanTransition(from, to State) bool {
	next, ok := transitions[from]
	if !ok {
		return false
	}
	return next[to]
}

func IsTerminal(s State) bool {
	switch s {
	case Acked, DeadLettered:
		return true
	default:
		return false
	}
}
