package ingestion

// State is a position in the run state machine.
type State string

const (
	StateIngesting   State = "Ingesting"
	StateClassifying State = "Classifying"
	StateScoring     State = "Scoring"
	StatePersisting  State = "Persisting"
	StateSucceeded   State = "Succeeded"
	StateFailed      State = "Failed"
)

var transitions = map[State][]State{
	"":               {StateIngesting},
	StateIngesting:   {StateClassifying, StateFailed},
	StateClassifying: {StateScoring, StateFailed},
	StateScoring:     {StatePersisting, StateFailed},
	StatePersisting:  {StateSucceeded, StateFailed},
}

func (s State) String() string {
	return string(s)
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// CanTransition reports whether a run in from may move to to.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
