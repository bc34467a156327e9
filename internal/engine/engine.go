package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Effect performs the asynchronous part of an action.
type Effect func(ctx context.Context) Outcome

// Dispatcher is the part of Engine that state containers use. It does
// not depend on the root state type.
type Dispatcher interface {
	Dispatch(ctx context.Context, actionType string, arg any, effect Effect) *Handle
	Settle(actionType string, arg any, outcome Outcome) *Handle
	Emit(actionType string, payload any) *Handle
}

// Engine holds a state value of type S and applies events to it.
//
// Thread-safety model:
//   - Dispatch, Emit, State, Subscribe: safe from any goroutine
//   - Run: must be called from exactly one goroutine
//
// All state mutations happen in the Run goroutine.
type Engine[S any] struct {
	reducer Reducer[S]
	queue   *eventQueue
	clock   *Clock
	reqs    *Clock
	logger  *slog.Logger

	mu     sync.RWMutex
	state  S
	subs   []subscriber[S]
	nextID uint64

	effects sync.WaitGroup
}

var _ Dispatcher = (*Engine[struct{}])(nil)

// Option configures an Engine.
type Option func(*options)

type options struct {
	logger *slog.Logger
	clock  *Clock
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock sets the clock used to stamp event seqs.
func WithClock(c *Clock) Option {
	return func(o *options) { o.clock = c }
}

// New creates an engine with an initial state.
func New[S any](initial S, reducer Reducer[S], opts ...Option) *Engine[S] {
	o := options{logger: slog.Default(), clock: NewClock()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine[S]{
		reducer: reducer,
		queue:   newEventQueue(),
		clock:   o.clock,
		reqs:    NewClock(),
		logger:  o.logger,
		state:   initial,
	}
}

// State returns the current state snapshot.
func (e *Engine[S]) State() S {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Subscribe registers fn to be called after every applied event with the
// new state, in subscription order. Calls happen on the Run goroutine, so fn
// must not block on the engine. The returned func unsubscribes.
func (e *Engine[S]) Subscribe(fn func(S, Event)) func() {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.subs = append(e.subs, subscriber[S]{id: id, fn: fn})
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			for i, sub := range e.subs {
				if sub.id == id {
					e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
					return
				}
			}
		})
	}
}

type subscriber[S any] struct {
	id uint64
	fn func(S, Event)
}

// Dispatch starts an async action: it emits the pending event, runs the
// effect in its own goroutine and emits fulfilled or rejected with the
// outcome. ctx values are passed to the effect but its cancellation is not.
func (e *Engine[S]) Dispatch(ctx context.Context, actionType string, arg any, effect Effect) *Handle {
	h := e.newHandle()

	pending := Event{Type: actionType, Phase: PhasePending, RequestID: h.RequestID, Arg: arg}
	if !e.queue.Enqueue(pending) {
		h.resolve(RemoteFailure{Message: ErrStopped.Error()})
		return h
	}

	effectCtx := context.WithoutCancel(ctx)
	e.effects.Add(1)
	go func() {
		defer e.effects.Done()
		e.settle(h, actionType, arg, e.runEffect(effectCtx, actionType, effect))
	}()

	return h
}

// Settle applies a terminal event for an outcome produced outside the
// engine, without a pending phase. Events are queued in call order.
func (e *Engine[S]) Settle(actionType string, arg any, outcome Outcome) *Handle {
	h := e.newHandle()
	if outcome == nil {
		outcome = Success{}
	}
	e.settle(h, actionType, arg, outcome)
	return h
}

func (e *Engine[S]) settle(h *Handle, actionType string, arg any, outcome Outcome) {
	ev := Event{Type: actionType, RequestID: h.RequestID, Arg: arg, Outcome: outcome, handle: h}
	if msg, failed := Failure(outcome); failed {
		ev.Phase = PhaseRejected
		ev.Error = msg
	} else {
		ev.Phase = PhaseFulfilled
		if s, ok := outcome.(Success); ok {
			ev.Payload = s.Data
		}
	}
	if !e.queue.Enqueue(ev) {
		h.resolve(RemoteFailure{Message: ErrStopped.Error()})
	}
}

func (e *Engine[S]) newHandle() *Handle {
	return newHandle(fmt.Sprintf("req-%d", e.reqs.Next()))
}

// runEffect converts a panicking effect into a RemoteFailure so one bad
// action cannot take the process down.
func (e *Engine[S]) runEffect(ctx context.Context, actionType string, effect Effect) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("effect panicked", "action", actionType, "panic", r)
			out = RemoteFailure{Message: fmt.Sprintf("%s: internal error", actionType)}
		}
	}()
	out = effect(ctx)
	if out == nil {
		out = Success{}
	}
	return out
}

// Emit applies a synchronous action.
func (e *Engine[S]) Emit(actionType string, payload any) *Handle {
	h := e.newHandle()
	ev := Event{Type: actionType, Phase: PhaseNone, RequestID: h.RequestID, Payload: payload, Outcome: Success{Data: payload}, handle: h}
	if !e.queue.Enqueue(ev) {
		h.resolve(RemoteFailure{Message: ErrStopped.Error()})
	}
	return h
}

// Run is the single-writer event loop. It blocks until ctx is cancelled
// or Stop is called; after Stop, queued events are drained first.
//
// Must be called from exactly one goroutine.
func (e *Engine[S]) Run(ctx context.Context) error {
	e.logger.Debug("engine starting")

	for {
		ev, ok := e.queue.TryDequeue()
		if ok {
			e.apply(ev)
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Debug("engine stopping: context cancelled")
			e.queue.Close()
			e.drain()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel is closed with the queue.
			if e.closedAndEmpty() {
				e.logger.Debug("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Run returns after draining queued events.
func (e *Engine[S]) Stop() {
	e.queue.Close()
}

// WaitIdle blocks until every started effect has finished enqueuing its
// terminal event. Tests use it before Stop.
func (e *Engine[S]) WaitIdle() {
	e.effects.Wait()
}

func (e *Engine[S]) closedAndEmpty() bool {
	e.queue.mu.Lock()
	defer e.queue.mu.Unlock()
	return e.queue.closed && len(e.queue.events) == 0
}

func (e *Engine[S]) drain() {
	for {
		ev, ok := e.queue.TryDequeue()
		if !ok {
			return
		}
		e.apply(ev)
	}
}

// apply runs on the Run goroutine only.
func (e *Engine[S]) apply(ev Event) {
	ev.Seq = e.clock.Next()

	e.mu.Lock()
	e.state = e.reducer(e.state, ev)
	state := e.state
	subs := e.subs
	e.mu.Unlock()

	if ev.Phase == PhaseRejected {
		e.logger.Warn("action rejected",
			"seq", ev.Seq,
			"action", ev.Type,
			"request_id", ev.RequestID,
			"outcome", Kind(ev.Outcome),
			"error", ev.Error,
		)
	} else {
		e.logger.Debug("event applied",
			"seq", ev.Seq,
			"event", ev.Name(),
			"request_id", ev.RequestID,
		)
	}

	for _, sub := range subs {
		sub.fn(state, ev)
	}

	if ev.handle != nil {
		ev.handle.resolve(ev.Outcome)
	}
}
