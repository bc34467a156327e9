package engine

import (
	"context"
	"sync"
)

// Handle tracks one dispatched action until its terminal event has been
// applied to the state.
type Handle struct {
	RequestID string

	done    chan struct{}
	once    sync.Once
	outcome Outcome
}

func newHandle(requestID string) *Handle {
	return &Handle{RequestID: requestID, done: make(chan struct{})}
}

// Done is closed once the outcome is applied.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the action settles or ctx ends. Giving up on the wait
// does not cancel the action.
func (h *Handle) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-h.done:
		return h.outcome, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Handle) resolve(o Outcome) {
	h.once.Do(func() {
		h.outcome = o
		close(h.done)
	})
}
