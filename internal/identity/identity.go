// Package identity signs users in and broadcasts auth-state changes.
//
// A Provider owns a Hub. Every sign-in, sign-out and restored session is
// published to the hub, and each subscriber is called with the current
// user (nil when signed out) as soon as it subscribes and on every change
// after that.
package identity

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrPopupClosed is returned when the interactive sign-in is dismissed
	// before it completes.
	ErrPopupClosed = errors.New("sign-in popup closed by user")

	// ErrInvalidCredentials is returned for an unknown email or wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrEmailTaken is returned when registering an email that already has an account.
	ErrEmailTaken = errors.New("email already taken")
)

// User is the signed-in identity.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	PhotoURL string `json:"photoUrl"`
}

// Subscription is the handle returned by Subscribe.
type Subscription interface {
	Unsubscribe()
}

// Provider is an identity service.
type Provider interface {
	// SignInInteractive runs the provider's interactive flow and returns
	// the signed-in user.
	SignInInteractive(ctx context.Context) (*User, error)
	SignOut(ctx context.Context) error
	// Subscribe registers fn for auth-state changes. fn is called
	// immediately with the current user.
	Subscribe(fn func(*User)) Subscription
}

// Hub holds the current user and fans changes out to subscribers.
// Deliveries are serialized so every subscriber sees changes in order.
type Hub struct {
	mu      sync.Mutex
	current *User
	subs    map[uint64]func(*User)
	nextID  uint64

	deliver sync.Mutex
}

// NewHub creates a hub with an initial user (nil when signed out).
func NewHub(initial *User) *Hub {
	return &Hub{
		current: cloneUser(initial),
		subs:    make(map[uint64]func(*User)),
	}
}

// Current returns a copy of the current user.
func (h *Hub) Current() *User {
	h.mu.Lock()
	defer h.mu.Unlock()
	return cloneUser(h.current)
}

// Publish replaces the current user and notifies subscribers.
func (h *Hub) Publish(u *User) {
	h.deliver.Lock()
	defer h.deliver.Unlock()

	h.mu.Lock()
	h.current = cloneUser(u)
	fns := make([]func(*User), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(cloneUser(u))
	}
}

// Subscribe registers fn and calls it with the current user.
func (h *Hub) Subscribe(fn func(*User)) Subscription {
	h.deliver.Lock()
	defer h.deliver.Unlock()

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	current := cloneUser(h.current)
	h.mu.Unlock()

	fn(current)
	return &hubSubscription{hub: h, id: id}
}

func (h *Hub) unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}

type hubSubscription struct {
	hub  *Hub
	id   uint64
	once sync.Once
}

func (s *hubSubscription) Unsubscribe() {
	s.once.Do(func() { s.hub.unsubscribe(s.id) })
}

func cloneUser(u *User) *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
