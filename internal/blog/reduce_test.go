package blog

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/inkwell/internal/engine"
)

func fulfilled(typ string, payload any) engine.Event {
	return engine.Event{Type: typ, Phase: engine.PhaseFulfilled, Payload: payload}
}

func TestReduce_LifecycleForAllActions(t *testing.T) {
	for typ := range actions {
		t.Run(typ, func(t *testing.T) {
			prior := []Post{{ID: "a"}}
			s := State{Blogs: prior, Error: "old"}

			s = Reduce(s, engine.Event{Type: typ, Phase: engine.PhasePending})
			assert.True(t, s.IsLoading)
			assert.Empty(t, s.Error)

			s = Reduce(s, engine.Event{Type: typ, Phase: engine.PhaseRejected, Error: "boom"})
			assert.False(t, s.IsLoading)
			assert.Equal(t, "boom", s.Error)
			assert.Equal(t, prior, s.Blogs)
			assert.Nil(t, s.Current)
		})
	}
}

func TestReduce_FetchesReplaceLists(t *testing.T) {
	s := InitialState()
	s = Reduce(s, fulfilled(ActionFetchAll, []Post{{ID: "a"}, {ID: "b"}}))
	s = Reduce(s, fulfilled(ActionFetchPopular, []Post{{ID: "b"}}))

	assert.False(t, s.IsLoading)
	assert.Equal(t, []Post{{ID: "a"}, {ID: "b"}}, s.Blogs)
	assert.Equal(t, []Post{{ID: "b"}}, s.Popular)

	s = Reduce(s, fulfilled(ActionFetchAll, []Post{}))
	assert.Empty(t, s.Blogs)
	assert.Equal(t, []Post{{ID: "b"}}, s.Popular)
}

func TestReduce_FetchByIDReplacesCurrent(t *testing.T) {
	s := Reduce(InitialState(), fulfilled(ActionFetchByID, Post{ID: "a", Views: 3}))
	s = Reduce(s, fulfilled(ActionFetchByID, Post{ID: "b"}))
	assert.Equal(t, &Post{ID: "b"}, s.Current)
}

func TestReduce_MergesOnlyIntoMatchingCurrent(t *testing.T) {
	start := State{
		Blogs:   []Post{{ID: "a", Views: 1}},
		Current: &Post{ID: "a", Views: 1, Likes: []string{"u1"}, Comments: []Comment{{Body: "one"}, {Body: "two"}}},
	}

	tests := []struct {
		name  string
		event engine.Event
		want  *Post
	}{
		{
			name:  "like",
			event: fulfilled(ActionLike, LikeResult{ID: "a", Likes: []string{"u1", "u2"}}),
			want:  &Post{ID: "a", Views: 1, Likes: []string{"u1", "u2"}, Comments: []Comment{{Body: "one"}, {Body: "two"}}},
		},
		{
			name:  "add comment",
			event: fulfilled(ActionAddComment, CommentResult{ID: "a", Comment: Comment{Body: "three"}}),
			want:  &Post{ID: "a", Views: 1, Likes: []string{"u1"}, Comments: []Comment{{Body: "one"}, {Body: "two"}, {Body: "three"}}},
		},
		{
			name:  "remove comment",
			event: fulfilled(ActionRemoveComment, RemoveResult{ID: "a", Index: 0}),
			want:  &Post{ID: "a", Views: 1, Likes: []string{"u1"}, Comments: []Comment{{Body: "two"}}},
		},
		{
			name:  "remove out of range",
			event: fulfilled(ActionRemoveComment, RemoveResult{ID: "a", Index: 5}),
			want:  start.Current,
		},
		{
			name:  "views",
			event: fulfilled(ActionUpdateViews, ViewsResult{ID: "a"}),
			want:  &Post{ID: "a", Views: 2, Likes: []string{"u1"}, Comments: []Comment{{Body: "one"}, {Body: "two"}}},
		},
		{
			name:  "other post ignored",
			event: fulfilled(ActionUpdateViews, ViewsResult{ID: "b"}),
			want:  start.Current,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reduce(start, tt.event)
			assert.Equal(t, tt.want, got.Current)
			assert.Equal(t, []Post{{ID: "a", Views: 1}}, got.Blogs, "lists are never patched")
		})
	}

	// start must not have been mutated by any case.
	assert.Equal(t, &Post{ID: "a", Views: 1, Likes: []string{"u1"}, Comments: []Comment{{Body: "one"}, {Body: "two"}}}, start.Current)
}

func TestReduce_MergeWithoutCurrent(t *testing.T) {
	s := Reduce(InitialState(), fulfilled(ActionLike, LikeResult{ID: "a", Likes: []string{"u1"}}))
	assert.Nil(t, s.Current)
	assert.False(t, s.IsLoading)
}

func TestReduce_IgnoresOtherContainers(t *testing.T) {
	s := InitialState()
	got := Reduce(s, engine.Event{Type: "auth/signInWithGoogle", Phase: engine.PhaseRejected, Error: "x"})
	assert.Equal(t, s, got)
}
