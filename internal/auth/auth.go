// Package auth is the authentication state container.
//
// State holds the signed-in user. It changes through three async actions
// (sign-in, sign-out, and the identity change stream) plus the synchronous
// setLoading action. The state starts with IsLoading set because the
// signed-in user is unknown until the first change-stream emission.
package auth

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/roach88/inkwell/internal/engine"
	"github.com/roach88/inkwell/internal/identity"
)

// Action types.
const (
	ActionSignIn     = "auth/signInWithGoogle"
	ActionSignOut    = "auth/signOutUserAsync"
	ActionCheckState = "auth/checkAuthState"
	ActionSetLoading = "auth/setLoading"
)

// State is the auth container state.
type State struct {
	User      *identity.User `json:"user"`
	IsLoading bool           `json:"isLoading"`
	Error     string         `json:"error,omitempty"`
}

// InitialState returns the state before the first observation.
func InitialState() State {
	return State{IsLoading: true}
}

// Reduce applies one event. Events of other containers are ignored.
func Reduce(s State, ev engine.Event) State {
	switch ev.Type {
	case ActionSignIn:
		switch ev.Phase {
		case engine.PhasePending:
			s.IsLoading = true
			s.Error = ""
		case engine.PhaseFulfilled:
			s.IsLoading = false
			s.Error = ""
			if u, ok := ev.Payload.(*identity.User); ok {
				s.User = u
			}
		case engine.PhaseRejected:
			s.IsLoading = false
			s.Error = ev.Error
		}

	case ActionSignOut:
		switch ev.Phase {
		case engine.PhasePending:
			s.IsLoading = true
			s.Error = ""
		case engine.PhaseFulfilled:
			s.IsLoading = false
			s.Error = ""
			s.User = nil
		case engine.PhaseRejected:
			s.IsLoading = false
			s.Error = ev.Error
		}

	case ActionSetLoading:
		if v, ok := ev.Payload.(bool); ok {
			s.IsLoading = v
		}
	}
	return s
}

// Observation is the read-only handle of the change-stream subscription.
type Observation struct {
	deliveries atomic.Int64
}

// Deliveries returns how many identity changes have been applied.
func (o *Observation) Deliveries() int64 {
	return o.deliveries.Load()
}

// Container runs auth actions against an identity provider.
type Container struct {
	d        engine.Dispatcher
	provider identity.Provider

	once sync.Once
	obs  *Observation
	sub  identity.Subscription
}

// New creates the container.
func New(d engine.Dispatcher, provider identity.Provider) *Container {
	return &Container{d: d, provider: provider}
}

// SignIn runs the provider's interactive sign-in.
func (c *Container) SignIn(ctx context.Context) *engine.Handle {
	return c.d.Dispatch(ctx, ActionSignIn, nil, func(ctx context.Context) engine.Outcome {
		u, err := c.provider.SignInInteractive(ctx)
		if err != nil {
			return engine.Remote(err)
		}
		return engine.Success{Data: u}
	})
}

// SignOut signs the current user out.
func (c *Container) SignOut(ctx context.Context) *engine.Handle {
	return c.d.Dispatch(ctx, ActionSignOut, nil, func(ctx context.Context) engine.Outcome {
		if err := c.provider.SignOut(ctx); err != nil {
			return engine.Remote(err)
		}
		return engine.Success{}
	})
}

// SetLoading sets the loading flag directly.
func (c *Container) SetLoading(loading bool) *engine.Handle {
	return c.d.Emit(ActionSetLoading, loading)
}

// ObserveAuthState subscribes to the provider's change stream. Every
// emission applies the fulfilled sign-in (user present) or sign-out (nil)
// transition. Only the first call subscribes; later calls return the same
// handle.
func (c *Container) ObserveAuthState() *Observation {
	c.once.Do(func() {
		c.obs = &Observation{}
		c.d.Emit(ActionCheckState, nil)
		c.sub = c.provider.Subscribe(func(u *identity.User) {
			c.obs.deliveries.Add(1)
			if u != nil {
				c.d.Settle(ActionSignIn, nil, engine.Success{Data: u})
				return
			}
			c.d.Settle(ActionSignOut, nil, engine.Success{})
		})
	})
	return c.obs
}

// Close ends the change-stream subscription. Only the process shutdown
// path calls it.
func (c *Container) Close() {
	if c.sub != nil {
		c.sub.Unsubscribe()
	}
}
