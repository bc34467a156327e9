package testutil

import (
	"context"
	"sync"

	"github.com/roach88/inkwell/internal/identity"
)

// FakeProvider is a scriptable identity.Provider.
type FakeProvider struct {
	hub *identity.Hub

	mu         sync.Mutex
	next       *identity.User
	signInErr  error
	signOutErr error
	subs       int
}

var _ identity.Provider = (*FakeProvider)(nil)

// NewFakeProvider creates a provider whose current user is initial.
func NewFakeProvider(initial *identity.User) *FakeProvider {
	return &FakeProvider{hub: identity.NewHub(initial)}
}

// WillSignIn sets the user the next sign-in returns and clears any
// scripted sign-in failure.
func (p *FakeProvider) WillSignIn(u *identity.User) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next = u
	p.signInErr = nil
}

// FailSignIn makes sign-in return err until WillSignIn is called.
func (p *FakeProvider) FailSignIn(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signInErr = err
}

// FailSignOut makes sign-out return err; nil restores success.
func (p *FakeProvider) FailSignOut(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signOutErr = err
}

// SignInInteractive returns the scripted user and publishes it.
func (p *FakeProvider) SignInInteractive(ctx context.Context) (*identity.User, error) {
	p.mu.Lock()
	u, err := p.next, p.signInErr
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, identity.ErrPopupClosed
	}
	p.hub.Publish(u)
	return p.hub.Current(), nil
}

// SignOut publishes nil unless a failure is scripted.
func (p *FakeProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	err := p.signOutErr
	p.mu.Unlock()

	if err != nil {
		return err
	}
	p.hub.Publish(nil)
	return nil
}

// Subscribe registers fn on the provider's hub.
func (p *FakeProvider) Subscribe(fn func(*identity.User)) identity.Subscription {
	p.mu.Lock()
	p.subs++
	p.mu.Unlock()
	return p.hub.Subscribe(fn)
}

// Publish simulates a change made elsewhere (another session).
func (p *FakeProvider) Publish(u *identity.User) {
	p.hub.Publish(u)
}

// Subscriptions returns how many times Subscribe was called.
func (p *FakeProvider) Subscriptions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.subs
}
