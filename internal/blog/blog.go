// Package blog is the blog collection state container.
//
// State holds three independent materializations of the blogs collection:
// the full (optionally filtered) list, the top posts by views, and the
// post currently open. Every operation is one async round trip to the
// document store with a pending, fulfilled or rejected lifecycle; a
// rejection records the message and leaves the domain fields untouched.
package blog

import (
	"github.com/roach88/inkwell/internal/engine"
)

// Action types.
const (
	ActionFetchAll      = "blog/fetchBlogs"
	ActionFetchPopular  = "blog/fetchPopularBlogs"
	ActionFetchByID     = "blog/fetchBlogById"
	ActionLike          = "blog/likeBlog"
	ActionAddComment    = "blog/addCommentToBlog"
	ActionRemoveComment = "blog/removeCommentFromBlog"
	ActionUpdateViews   = "blog/updateBlogViews"
)

// PopularLimit is how many posts the popular list holds.
const PopularLimit = 3

// MsgNotFound is the NotFound message for a missing post.
const MsgNotFound = "Blog not found"

// State is the blog container state.
type State struct {
	Blogs     []Post `json:"blogs"`
	Popular   []Post `json:"popularBlogs"`
	Current   *Post  `json:"blog"`
	IsLoading bool   `json:"isLoading"`
	Error     string `json:"error,omitempty"`
}

// InitialState returns the state before the first fetch.
func InitialState() State {
	return State{Blogs: []Post{}, Popular: []Post{}, IsLoading: true}
}

// LikeResult is the fulfilled payload of a like toggle.
type LikeResult struct {
	ID    string
	Likes []string
}

// CommentResult is the fulfilled payload of an added comment.
type CommentResult struct {
	ID      string
	Comment Comment
}

// RemoveResult is the fulfilled payload of a comment removal.
type RemoveResult struct {
	ID    string
	Index int
}

// ViewsResult is the fulfilled payload of a view count bump.
type ViewsResult struct {
	ID string
}

var actions = map[string]bool{
	ActionFetchAll:      true,
	ActionFetchPopular:  true,
	ActionFetchByID:     true,
	ActionLike:          true,
	ActionAddComment:    true,
	ActionRemoveComment: true,
	ActionUpdateViews:   true,
}

// Reduce applies one event. Events of other containers are ignored.
// Slices in s are never modified in place.
func Reduce(s State, ev engine.Event) State {
	if !actions[ev.Type] {
		return s
	}

	switch ev.Phase {
	case engine.PhasePending:
		s.IsLoading = true
		s.Error = ""
		return s
	case engine.PhaseRejected:
		s.IsLoading = false
		s.Error = ev.Error
		return s
	case engine.PhaseFulfilled:
		s.IsLoading = false
	default:
		return s
	}

	switch p := ev.Payload.(type) {
	case []Post:
		switch ev.Type {
		case ActionFetchAll:
			s.Blogs = p
		case ActionFetchPopular:
			s.Popular = p
		}

	case Post:
		s.Current = &p

	case LikeResult:
		if cur, ok := current(s, p.ID); ok {
			cur.Likes = append([]string{}, p.Likes...)
			s.Current = cur
		}

	case CommentResult:
		if cur, ok := current(s, p.ID); ok {
			comments := make([]Comment, 0, len(cur.Comments)+1)
			comments = append(comments, cur.Comments...)
			cur.Comments = append(comments, p.Comment)
			s.Current = cur
		}

	case RemoveResult:
		if cur, ok := current(s, p.ID); ok && p.Index >= 0 && p.Index < len(cur.Comments) {
			comments := make([]Comment, 0, len(cur.Comments)-1)
			comments = append(comments, cur.Comments[:p.Index]...)
			cur.Comments = append(comments, cur.Comments[p.Index+1:]...)
			s.Current = cur
		}

	case ViewsResult:
		if cur, ok := current(s, p.ID); ok {
			cur.Views++
			s.Current = cur
		}
	}
	return s
}

// current returns a shallow copy of the open post when its id is id.
func current(s State, id string) (*Post, bool) {
	if s.Current == nil || s.Current.ID != id {
		return nil, false
	}
	cp := *s.Current
	return &cp, true
}
