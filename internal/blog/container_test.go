package blog

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/inkwell/internal/doc"
	"github.com/roach88/inkwell/internal/docstore"
	"github.com/roach88/inkwell/internal/engine"
	"github.com/roach88/inkwell/internal/identity"
	"github.com/roach88/inkwell/internal/testutil"
)

func TestFetchAll(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "Go tips", "<p>channels</p>", "go,tips", "Programming", 5)
	f.seed(t, "React hooks", "<p>useEffect</p>", "react", "React", 9)
	f.seed(t, "Gardening", "<p>tomatoes</p>", "life", "Life", 1)

	out := f.wait(t, f.c.FetchAll(f.ctx, ""))
	require.IsType(t, engine.Success{}, out)

	s := f.eng.State()
	assert.False(t, s.IsLoading)
	require.Len(t, s.Blogs, 3)
	assert.Equal(t, []string{"post-1", "post-2", "post-3"}, []string{s.Blogs[0].ID, s.Blogs[1].ID, s.Blogs[2].ID})
	assert.Equal(t, "January 15, 2024", s.Blogs[0].Published)
	assert.Equal(t, "January 15, 2024", s.Blogs[0].Updated)
	assert.Equal(t, *grace, s.Blogs[0].Author)
}

func TestFetchAll_Search(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "Go tips", "<p>channels</p>", "go,tips", "Programming", 5)
	f.seed(t, "React hooks", "<p>useEffect</p>", "react", "React", 9)
	f.seed(t, "Gardening", "<p>tomatoes</p>", "life", "Life", 1)

	f.wait(t, f.c.FetchAll(f.ctx, "REACT"))
	s := f.eng.State()
	require.Len(t, s.Blogs, 1)
	assert.Equal(t, "React hooks", s.Blogs[0].Title)

	f.wait(t, f.c.FetchAll(f.ctx, "tomato"))
	require.Len(t, f.eng.State().Blogs, 1)

	f.wait(t, f.c.FetchAll(f.ctx, "nothing matches"))
	assert.Empty(t, f.eng.State().Blogs)
}

func TestFetchAll_FailureKeepsList(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "Go tips", "x", "go", "Programming", 0)
	f.wait(t, f.c.FetchAll(f.ctx, ""))

	f.docs.Fail(testutil.MethodGetAll, errors.New("unavailable"))
	out := f.wait(t, f.c.FetchAll(f.ctx, ""))

	assert.Equal(t, engine.RemoteFailure{Message: "unavailable"}, out)
	s := f.eng.State()
	assert.False(t, s.IsLoading)
	assert.Equal(t, "unavailable", s.Error)
	assert.Len(t, s.Blogs, 1)
}

func TestFetchPopular(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a", "x", "", "c", 5)
	f.seed(t, "b", "x", "", "c", 50)
	f.seed(t, "c", "x", "", "c", 20)
	f.seed(t, "d", "x", "", "c", 1)

	f.wait(t, f.c.FetchPopular(f.ctx))
	s := f.eng.State()
	require.Len(t, s.Popular, PopularLimit)
	assert.Equal(t, []string{"b", "c", "a"}, []string{s.Popular[0].Title, s.Popular[1].Title, s.Popular[2].Title})
	assert.Empty(t, s.Blogs)
}

func TestFetchByID(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, "Go tips", "x", "go", "Programming", 3)
	require.NoError(t, f.docs.Update(f.ctx, Collection, id, docstore.Patch{docstore.Set("comments", doc.Array{
		doc.Object{"author": EncodeUser(*ada), "body": doc.String("nice"), "published": doc.NewTimestamp(jan15)},
	})}))

	f.wait(t, f.c.FetchByID(f.ctx, id))
	cur := f.eng.State().Current
	require.NotNil(t, cur)
	assert.Equal(t, id, cur.ID)
	assert.Equal(t, int64(3), cur.Views)
	require.Len(t, cur.Comments, 1)
	assert.Equal(t, Comment{Author: *ada, Body: "nice", Published: "January 15, 2024"}, cur.Comments[0])
}

func TestFetchByID_NotFound(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, "Go tips", "x", "go", "Programming", 3)
	f.wait(t, f.c.FetchByID(f.ctx, id))

	out := f.wait(t, f.c.FetchByID(f.ctx, "missing-id"))
	assert.Equal(t, engine.NotFound{Message: "Blog not found"}, out)

	s := f.eng.State()
	assert.False(t, s.IsLoading)
	assert.Equal(t, "Blog not found", s.Error)
	require.NotNil(t, s.Current)
	assert.Equal(t, id, s.Current.ID)
}

func TestLike_TogglesAndIsItsOwnInverse(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, "Go tips", "x", "go", "Programming", 0)
	f.wait(t, f.c.FetchByID(f.ctx, id))

	out := f.wait(t, f.c.Like(f.ctx, id))
	assert.Equal(t, engine.Success{Data: LikeResult{ID: id, Likes: []string{"u1"}}}, out)
	assert.Equal(t, []string{"u1"}, f.eng.State().Current.Likes)
	assert.Equal(t, []string{"u1"}, f.stored(t, id).Likes)

	f.wait(t, f.c.Like(f.ctx, id))
	assert.Empty(t, f.eng.State().Current.Likes)
	assert.Empty(t, f.stored(t, id).Likes)
}

func TestLike_OtherUsersKept(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, "Go tips", "x", "go", "Programming", 0)
	f.user = grace
	f.wait(t, f.c.Like(f.ctx, id))
	f.user = ada
	f.wait(t, f.c.Like(f.ctx, id))

	assert.Equal(t, []string{"u2", "u1"}, f.stored(t, id).Likes)
}

func TestLike_RequiresUser(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, "Go tips", "x", "go", "Programming", 0)
	f.user = nil

	out := f.wait(t, f.c.Like(f.ctx, id))
	assert.IsType(t, engine.ValidationFailure{}, out)
	assert.Equal(t, 0, f.docs.Calls(testutil.MethodGet))
	assert.Equal(t, 0, f.docs.Calls(testutil.MethodUpdate))
	assert.NotEmpty(t, f.eng.State().Error)
}

func TestLike_DoesNotTouchLists(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, "Go tips", "x", "go", "Programming", 0)
	f.wait(t, f.c.FetchAll(f.ctx, ""))
	f.wait(t, f.c.FetchByID(f.ctx, id))
	f.wait(t, f.c.Like(f.ctx, id))

	s := f.eng.State()
	assert.Equal(t, []string{"u1"}, s.Current.Likes)
	assert.Empty(t, s.Blogs[0].Likes)
}

func TestAddThenRemoveCommentRestoresSequence(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, "Go tips", "x", "go", "Programming", 0)
	f.wait(t, f.c.AddComment(f.ctx, id, CommentInput{Author: *grace, Body: "first", Published: jan15}))
	f.wait(t, f.c.FetchByID(f.ctx, id))
	before := f.eng.State().Current.Comments
	storedBefore := f.stored(t, id).Comments

	out := f.wait(t, f.c.AddComment(f.ctx, id, CommentInput{Author: *ada, Body: "second", Published: jan15}))
	assert.Equal(t, engine.Success{Data: CommentResult{
		ID:      id,
		Comment: Comment{Author: *ada, Body: "second", Published: "January 15, 2024"},
	}}, out)
	require.Len(t, f.eng.State().Current.Comments, 2)
	require.Len(t, f.stored(t, id).Comments, 2)

	f.wait(t, f.c.RemoveComment(f.ctx, id, 1))
	assert.Equal(t, before, f.eng.State().Current.Comments)
	assert.Equal(t, storedBefore, f.stored(t, id).Comments)
}

func TestAddComment_StoresTimestamp(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, "Go tips", "x", "go", "Programming", 0)
	f.wait(t, f.c.AddComment(f.ctx, id, CommentInput{Author: *ada, Body: "hi", Published: jan15}))

	d, err := f.docs.Store.Get(f.ctx, Collection, id)
	require.NoError(t, err)
	comment := d.Data.Arr("comments")[0].(doc.Object)
	assert.True(t, doc.Equal(doc.NewTimestamp(jan15), comment["published"]))
}

func TestAddComment_Validation(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, "Go tips", "x", "go", "Programming", 0)

	out := f.wait(t, f.c.AddComment(f.ctx, id, CommentInput{Author: *ada, Body: "   "}))
	assert.IsType(t, engine.ValidationFailure{}, out)
	out = f.wait(t, f.c.AddComment(f.ctx, id, CommentInput{Body: "hi"}))
	assert.IsType(t, engine.ValidationFailure{}, out)
	assert.Equal(t, 0, f.docs.Calls(testutil.MethodUpdateIf))
}

func TestAddComment_MissingPost(t *testing.T) {
	f := newFixture(t)
	out := f.wait(t, f.c.AddComment(f.ctx, "nope", CommentInput{Author: *ada, Body: "hi", Published: jan15}))
	assert.Equal(t, engine.NotFound{Message: MsgNotFound}, out)
}

func TestAddComment_RetriesOnConcurrentWrite(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, "Go tips", "x", "go", "Programming", 0)

	conflicts := 0
	f.docs.BeforeUpdateIf(func(collection, docID string) {
		if conflicts < 2 {
			conflicts++
			other := doc.Object{
				"author":    EncodeUser(*grace),
				"body":      doc.String(fmt.Sprintf("racing-%d", conflicts)),
				"published": doc.NewTimestamp(jan15),
			}
			assert.NoError(t, f.docs.Store.Update(f.ctx, collection, docID, docstore.Patch{docstore.ArrayUnion("comments", other)}))
		}
	})

	out := f.wait(t, f.c.AddComment(f.ctx, id, CommentInput{Author: *ada, Body: "mine", Published: jan15}))
	require.IsType(t, engine.Success{}, out)
	assert.Equal(t, 3, f.docs.Calls(testutil.MethodUpdateIf))

	comments := f.stored(t, id).Comments
	require.Len(t, comments, 3)
	assert.Equal(t, "racing-1", comments[0].Body)
	assert.Equal(t, "racing-2", comments[1].Body)
	assert.Equal(t, "mine", comments[2].Body)
}

func TestAddComment_GivesUpAfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, "Go tips", "x", "go", "Programming", 0)

	n := 0
	f.docs.BeforeUpdateIf(func(collection, docID string) {
		n++
		assert.NoError(t, f.docs.Store.Update(f.ctx, collection, docID, docstore.Patch{docstore.Increment("views", 1)}))
	})

	out := f.wait(t, f.c.AddComment(f.ctx, id, CommentInput{Author: *ada, Body: "mine", Published: jan15}))
	assert.IsType(t, engine.RemoteFailure{}, out)
	assert.Equal(t, MaxCommentAttempts, n)
	assert.Empty(t, f.stored(t, id).Comments)
}

func TestRemoveComment_OutOfRangeSucceeds(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, "Go tips", "x", "go", "Programming", 0)
	f.wait(t, f.c.AddComment(f.ctx, id, CommentInput{Author: *ada, Body: "only", Published: jan15}))
	f.wait(t, f.c.FetchByID(f.ctx, id))

	for _, idx := range []int{-1, 1, 99} {
		out := f.wait(t, f.c.RemoveComment(f.ctx, id, idx))
		assert.Equal(t, engine.Success{Data: RemoveResult{ID: id, Index: idx}}, out)
	}
	s := f.eng.State()
	assert.Empty(t, s.Error)
	assert.Len(t, s.Current.Comments, 1)
	assert.Len(t, f.stored(t, id).Comments, 1)
}

func TestUpdateViews(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, "Go tips", "x", "go", "Programming", 7)
	f.wait(t, f.c.FetchByID(f.ctx, id))

	f.wait(t, f.c.UpdateViews(f.ctx, id))
	f.wait(t, f.c.UpdateViews(f.ctx, id))

	assert.Equal(t, int64(9), f.eng.State().Current.Views)
	assert.Equal(t, int64(9), f.stored(t, id).Views)
}

func TestUpdateViews_CountsEachCallUnderConcurrentWrites(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, "Go tips", "x", "go", "Programming", 5)
	f.wait(t, f.c.FetchByID(f.ctx, id))

	const n = 20
	views := make([]*engine.Handle, n)
	comments := make([]*engine.Handle, n)
	var like *engine.Handle

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			views[i] = f.c.UpdateViews(f.ctx, id)
		}(i)
		go func(i int) {
			defer wg.Done()
			comments[i] = f.c.AddComment(f.ctx, id, CommentInput{Author: *ada, Body: fmt.Sprintf("c%d", i), Published: jan15})
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		like = f.c.Like(f.ctx, id)
	}()
	wg.Wait()

	for _, h := range views {
		assert.IsType(t, engine.Success{}, f.wait(t, h))
	}
	stored := 0
	for _, h := range comments {
		if _, failed := engine.Failure(f.wait(t, h)); !failed {
			stored++
		}
	}
	assert.IsType(t, engine.Success{}, f.wait(t, like))

	post := f.stored(t, id)
	assert.Equal(t, int64(5+n), post.Views)
	assert.Len(t, post.Comments, stored)
	assert.Equal(t, []string{"u1"}, post.Likes)
	assert.Equal(t, int64(5+n), f.eng.State().Current.Views)
	assert.Len(t, f.eng.State().Current.Comments, stored)
}

func TestUpdateViews_MissingPost(t *testing.T) {
	f := newFixture(t)
	out := f.wait(t, f.c.UpdateViews(f.ctx, "nope"))
	assert.Equal(t, engine.NotFound{Message: MsgNotFound}, out)
}

func TestLike_UsesUserAtDispatch(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, "Go tips", "x", "go", "Programming", 0)
	h := f.c.Like(f.ctx, id)
	f.user = &identity.User{ID: "someone-else"}
	f.wait(t, h)
	assert.Equal(t, []string{"u1"}, f.stored(t, id).Likes)
}
