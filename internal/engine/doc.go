// Package engine implements the state engine behind the client containers.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// State changes happen in exactly one goroutine (Run). Every change is an
// Event applied by a pure reducer, so the sequence of events fully
// determines the state. Subscribers are called from the loop after each
// event, in order.
//
// Event Processing Flow:
//  1. Dispatch emits a pending event and starts the effect in a goroutine
//  2. The effect returns an Outcome
//  3. The outcome becomes a fulfilled or rejected event on the queue
//  4. Run dequeues, stamps the seq, applies the reducer, notifies
//     subscribers and resolves the dispatch Handle
//
// Effects are not cancelled when the dispatching caller's context ends;
// they run to completion and their result is always applied.
//
// Logical Clock:
// Every applied event is stamped with a strictly increasing seq from Clock.
// Request ids come from a second clock, so traces are reproducible when
// dispatches are awaited one at a time.
package engine
