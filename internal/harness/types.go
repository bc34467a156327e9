package harness

import (
	"sync"

	"github.com/roach88/inkwell/internal/app"
	"github.com/roach88/inkwell/internal/engine"
)

// TraceEvent is one applied event as recorded by the harness.
type TraceEvent struct {
	Seq       int64  `json:"seq"`
	Event     string `json:"event"`
	RequestID string `json:"request_id"`
	Arg       string `json:"arg,omitempty"`     // string args only (ids, queries)
	Outcome   string `json:"outcome,omitempty"` // empty for pending events
	Error     string `json:"error,omitempty"`
}

func traceEventOf(ev engine.Event) TraceEvent {
	te := TraceEvent{
		Seq:       ev.Seq,
		Event:     ev.Name(),
		RequestID: ev.RequestID,
		Error:     ev.Error,
	}
	if s, ok := ev.Arg.(string); ok {
		te.Arg = s
	}
	if ev.Outcome != nil {
		te.Outcome = engine.Kind(ev.Outcome)
	}
	return te
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every applied event in order, startup included.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expect and assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the root state after the flow drained.
	State app.State `json:"state"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// recorder collects events from the engine's run goroutine.
type recorder struct {
	mu     sync.Mutex
	events []TraceEvent
}

func (r *recorder) observe(_ app.State, ev engine.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, traceEventOf(ev))
}

func (r *recorder) snapshot() []TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TraceEvent(nil), r.events...)
}
