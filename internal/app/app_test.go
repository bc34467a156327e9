package app

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/inkwell/internal/auth"
	"github.com/roach88/inkwell/internal/blobstore"
	"github.com/roach88/inkwell/internal/blog"
	"github.com/roach88/inkwell/internal/docstore"
	"github.com/roach88/inkwell/internal/engine"
	"github.com/roach88/inkwell/internal/identity"
	"github.com/roach88/inkwell/internal/publish"
	"github.com/roach88/inkwell/internal/testutil"
)

var ada = &identity.User{ID: "u1", Name: "Ada", Email: "ada@example.com"}

func newClient(t *testing.T, initial *identity.User) (*Client, *testutil.FakeProvider) {
	t.Helper()
	docs, err := docstore.OpenSQLite(
		filepath.Join(t.TempDir(), "docs.db"),
		docstore.WithIDGenerator(testutil.NewSequentialIDs("post")),
	)
	require.NoError(t, err)
	t.Cleanup(func() { docs.Close() })

	blobs, err := blobstore.NewFS(t.TempDir(), "http://localhost/blobs")
	require.NoError(t, err)

	provider := testutil.NewFakeProvider(initial)
	c, err := NewClient(Deps{Identity: provider, Docs: docs, Blobs: blobs})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, provider
}

func wait(t *testing.T, h *engine.Handle) engine.Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := h.Wait(ctx)
	require.NoError(t, err)
	return out
}

func TestInitialState(t *testing.T) {
	s := InitialState()
	assert.True(t, s.Auth.IsLoading)
	assert.True(t, s.Blog.IsLoading)
	assert.False(t, s.CreateBlog.IsLoading)
	assert.NotNil(t, s.Blog.Blogs)
	assert.NotNil(t, s.Blog.Popular)
}

func TestReduce_RoutesByAction(t *testing.T) {
	s := InitialState()
	s = Reduce(s, engine.Event{Type: publish.ActionCreate, Phase: engine.PhasePending})
	assert.True(t, s.CreateBlog.IsLoading)
	assert.True(t, s.Auth.IsLoading)

	s = Reduce(s, engine.Event{Type: auth.ActionSignIn, Phase: engine.PhaseFulfilled, Payload: ada})
	assert.Equal(t, ada, s.Auth.User)
	assert.True(t, s.CreateBlog.IsLoading)
	assert.True(t, s.Blog.IsLoading)
}

func TestNewClient_RequiresDeps(t *testing.T) {
	_, err := NewClient(Deps{})
	assert.Error(t, err)
}

func TestNewClient_ObservesAuthState(t *testing.T) {
	c, provider := newClient(t, ada)

	require.Eventually(t, func() bool {
		return c.State().Auth.User != nil
	}, 2*time.Second, 5*time.Millisecond)
	s := c.State().Auth
	assert.Equal(t, "u1", s.User.ID)
	assert.False(t, s.IsLoading)

	assert.Same(t, c.Observation(), c.CheckAuthState())
	assert.Equal(t, 1, provider.Subscriptions())

	provider.Publish(nil)
	require.Eventually(t, func() bool {
		return c.State().Auth.User == nil
	}, 2*time.Second, 5*time.Millisecond)
}

func TestClient_SignedOutAtStart(t *testing.T) {
	c, _ := newClient(t, nil)
	require.Eventually(t, func() bool {
		return !c.State().Auth.IsLoading
	}, 2*time.Second, 5*time.Millisecond)
	assert.Nil(t, c.State().Auth.User)
}

func TestClient_EndToEnd(t *testing.T) {
	c, provider := newClient(t, nil)
	ctx := context.Background()

	provider.WillSignIn(ada)
	require.IsType(t, engine.Success{}, wait(t, c.SignIn(ctx)))
	require.NotNil(t, c.State().Auth.User)

	out := wait(t, c.CreateBlog(ctx, publish.Draft{
		Title:    "Hello",
		Body:     "<p>hi</p>",
		Tags:     "go",
		Category: "Programming",
		Author:   c.State().Auth.User,
		Image:    &publish.Image{Name: "a.png", Size: 3, Content: strings.NewReader("png")},
	}))
	require.IsType(t, engine.Success{}, out)
	id := out.(engine.Success).Data.(publish.Created).ID

	wait(t, c.FetchBlogs(ctx, ""))
	wait(t, c.FetchPopularBlogs(ctx))
	wait(t, c.FetchBlogByID(ctx, id))
	wait(t, c.LikeBlog(ctx, id))
	wait(t, c.AddCommentToBlog(ctx, id, blog.CommentInput{Author: *ada, Body: "nice", Published: time.Now()}))
	wait(t, c.UpdateBlogViews(ctx, id))

	s := c.State()
	require.Len(t, s.Blog.Blogs, 1)
	require.Len(t, s.Blog.Popular, 1)
	require.NotNil(t, s.Blog.Current)
	assert.Equal(t, []string{"u1"}, s.Blog.Current.Likes)
	assert.Len(t, s.Blog.Current.Comments, 1)
	assert.Equal(t, int64(1), s.Blog.Current.Views)
	assert.Equal(t, "http://localhost/blobs/images/a.png", s.Blog.Current.ImageURL)
	assert.False(t, s.Blog.IsLoading)
	assert.False(t, s.CreateBlog.IsLoading)

	wait(t, c.RemoveCommentFromBlog(ctx, id, 0))
	assert.Empty(t, c.State().Blog.Current.Comments)

	wait(t, c.SignOut(ctx))
	assert.Nil(t, c.State().Auth.User)

	out = wait(t, c.LikeBlog(ctx, id))
	assert.IsType(t, engine.ValidationFailure{}, out)
}

func TestClient_SetAuthLoading(t *testing.T) {
	c, _ := newClient(t, nil)
	wait(t, c.SetAuthLoading(true))
	assert.True(t, c.State().Auth.IsLoading)
	wait(t, c.SetAuthLoading(false))
	assert.False(t, c.State().Auth.IsLoading)
}

func TestClient_Subscribe(t *testing.T) {
	c, _ := newClient(t, nil)

	var mu sync.Mutex
	var seen []string
	unsubscribe := c.Subscribe(func(_ State, ev engine.Event) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, ev.Name())
	})
	wait(t, c.FetchBlogs(context.Background(), ""))
	unsubscribe()

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seen, "blog/fetchBlogs/pending")
	assert.Equal(t, "blog/fetchBlogs/fulfilled", seen[len(seen)-1])
}

func TestClient_ObserversSeeStartup(t *testing.T) {
	docs, err := docstore.OpenSQLite(filepath.Join(t.TempDir(), "docs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { docs.Close() })
	blobs, err := blobstore.NewFS(t.TempDir(), "http://localhost/blobs")
	require.NoError(t, err)

	var mu sync.Mutex
	var seen []string
	c, err := NewClient(Deps{
		Identity: testutil.NewFakeProvider(ada),
		Docs:     docs,
		Blobs:    blobs,
		Observers: []func(State, engine.Event){func(_ State, ev engine.Event) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, ev.Name())
		}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	wait(t, c.SetAuthLoading(false))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		auth.ActionCheckState,
		auth.ActionSignIn + "/fulfilled",
		auth.ActionSetLoading,
	}, seen)
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	c, _ := newClient(t, nil)
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())

	out := wait(t, c.FetchBlogs(context.Background(), ""))
	assert.Equal(t, engine.RemoteFailure{Message: engine.ErrStopped.Error()}, out)
}
