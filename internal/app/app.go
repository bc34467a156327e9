// Package app composes the three state containers into one store and
// exposes every operation through a Client.
package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/roach88/inkwell/internal/auth"
	"github.com/roach88/inkwell/internal/blobstore"
	"github.com/roach88/inkwell/internal/blog"
	"github.com/roach88/inkwell/internal/docstore"
	"github.com/roach88/inkwell/internal/engine"
	"github.com/roach88/inkwell/internal/identity"
	"github.com/roach88/inkwell/internal/publish"
	"github.com/roach88/inkwell/internal/timestamp"
)

// State is the root state.
type State struct {
	Auth       auth.State    `json:"auth"`
	Blog       blog.State    `json:"blog"`
	CreateBlog publish.State `json:"createBlog"`
}

// InitialState returns the root state before any event.
func InitialState() State {
	return State{
		Auth:       auth.InitialState(),
		Blog:       blog.InitialState(),
		CreateBlog: publish.InitialState(),
	}
}

// Reduce delegates every event to each container reducer.
func Reduce(s State, ev engine.Event) State {
	s.Auth = auth.Reduce(s.Auth, ev)
	s.Blog = blog.Reduce(s.Blog, ev)
	s.CreateBlog = publish.Reduce(s.CreateBlog, ev)
	return s
}

// Deps are the external collaborators of a Client.
type Deps struct {
	Identity   identity.Provider
	Docs       docstore.Store
	Blobs      blobstore.Store
	Serializer *timestamp.Serializer
	Logger     *slog.Logger
	Clock      *engine.Clock

	// Observers are subscribed before the event loop starts, so they see
	// the startup auth events too.
	Observers []func(State, engine.Event)
}

// Client is the composed store.
type Client struct {
	eng     *engine.Engine[State]
	auth    *auth.Container
	blog    *blog.Container
	publish *publish.Container
	obs     *auth.Observation
	logger  *slog.Logger

	cancel    context.CancelFunc
	done      chan error
	closeOnce sync.Once
	closeErr  error
}

// NewClient builds the store, starts its event loop and subscribes to
// the identity change stream.
func NewClient(deps Deps) (*Client, error) {
	if deps.Identity == nil || deps.Docs == nil || deps.Blobs == nil {
		return nil, errors.New("new client: identity, docs and blobs are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ts := deps.Serializer
	if ts == nil {
		ts = timestamp.Default
	}

	opts := []engine.Option{engine.WithLogger(logger)}
	if deps.Clock != nil {
		opts = append(opts, engine.WithClock(deps.Clock))
	}

	c := &Client{
		eng:    engine.New(InitialState(), Reduce, opts...),
		logger: logger,
		done:   make(chan error, 1),
	}
	c.auth = auth.New(c.eng, deps.Identity)
	c.blog = blog.New(c.eng, deps.Docs, c.currentUser,
		blog.WithSerializer(ts),
		blog.WithLogger(logger),
	)
	c.publish = publish.New(c.eng, deps.Docs, deps.Blobs, publish.WithLogger(logger))
	for _, fn := range deps.Observers {
		c.eng.Subscribe(fn)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go func() { c.done <- c.eng.Run(ctx) }()

	c.obs = c.auth.ObserveAuthState()
	return c, nil
}

func (c *Client) currentUser() *identity.User {
	return c.eng.State().Auth.User
}

// State returns a snapshot of the root state.
func (c *Client) State() State {
	return c.eng.State()
}

// Subscribe registers fn to run after every applied event. The returned
// function unsubscribes.
func (c *Client) Subscribe(fn func(State, engine.Event)) func() {
	return c.eng.Subscribe(fn)
}

// Observation returns the auth change-stream handle.
func (c *Client) Observation() *auth.Observation {
	return c.obs
}

// SignIn runs the interactive sign-in.
func (c *Client) SignIn(ctx context.Context) *engine.Handle {
	return c.auth.SignIn(ctx)
}

// SignOut signs out.
func (c *Client) SignOut(ctx context.Context) *engine.Handle {
	return c.auth.SignOut(ctx)
}

// SetAuthLoading sets the auth loading flag.
func (c *Client) SetAuthLoading(loading bool) *engine.Handle {
	return c.auth.SetLoading(loading)
}

// CheckAuthState ensures the identity subscription exists.
func (c *Client) CheckAuthState() *auth.Observation {
	return c.auth.ObserveAuthState()
}

func (c *Client) FetchBlogs(ctx context.Context, query string) *engine.Handle {
	return c.blog.FetchAll(ctx, query)
}

func (c *Client) FetchPopularBlogs(ctx context.Context) *engine.Handle {
	return c.blog.FetchPopular(ctx)
}

func (c *Client) FetchBlogByID(ctx context.Context, id string) *engine.Handle {
	return c.blog.FetchByID(ctx, id)
}

func (c *Client) LikeBlog(ctx context.Context, id string) *engine.Handle {
	return c.blog.Like(ctx, id)
}

func (c *Client) AddCommentToBlog(ctx context.Context, id string, comment blog.CommentInput) *engine.Handle {
	return c.blog.AddComment(ctx, id, comment)
}

func (c *Client) RemoveCommentFromBlog(ctx context.Context, id string, index int) *engine.Handle {
	return c.blog.RemoveComment(ctx, id, index)
}

func (c *Client) UpdateBlogViews(ctx context.Context, id string) *engine.Handle {
	return c.blog.UpdateViews(ctx, id)
}

func (c *Client) CreateBlog(ctx context.Context, draft publish.Draft) *engine.Handle {
	return c.publish.CreateBlog(ctx, draft)
}

// Close ends the identity subscription, lets in-flight effects finish and
// stops the event loop after draining it.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.auth.Close()
		c.eng.WaitIdle()
		c.eng.Stop()
		err := <-c.done
		c.cancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			c.closeErr = err
		}
	})
	return c.closeErr
}
