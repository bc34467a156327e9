package engine

import "fmt"

// Phase is the lifecycle stage of an action.
type Phase int

const (
	// PhaseNone marks a synchronous action (a plain reducer call).
	PhaseNone Phase = iota
	// PhasePending is emitted when an async operation starts.
	PhasePending
	// PhaseFulfilled carries a successful outcome.
	PhaseFulfilled
	// PhaseRejected carries a failed outcome.
	PhaseRejected
)

func (p Phase) String() string {
	switch p {
	case PhaseNone:
		return ""
	case PhasePending:
		return "pending"
	case PhaseFulfilled:
		return "fulfilled"
	case PhaseRejected:
		return "rejected"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Event is one state transition input.
type Event struct {
	Seq       int64
	Type      string // action type, e.g. "blog/fetchBlogs"
	Phase     Phase
	RequestID string
	Arg       any     // argument the action was dispatched with
	Payload   any     // fulfilled data, or the synchronous action payload
	Outcome   Outcome // terminal outcome; nil for pending; Success{Data: Payload} for synchronous events
	Error     string  // rejection message

	handle *Handle
}

// Name returns the full action name, e.g. "blog/fetchBlogs/fulfilled".
func (e Event) Name() string {
	if e.Phase == PhaseNone {
		return e.Type
	}
	return e.Type + "/" + e.Phase.String()
}

// Reducer computes the next state. It must not mutate the state it is
// given: slices and pointers inside S are shared with earlier snapshots.
type Reducer[S any] func(state S, ev Event) S
