package blog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/inkwell/internal/doc"
	"github.com/roach88/inkwell/internal/docstore"
	"github.com/roach88/inkwell/internal/engine"
	"github.com/roach88/inkwell/internal/identity"
	"github.com/roach88/inkwell/internal/timestamp"
)

// MaxCommentAttempts bounds the read-modify-write loop for comment writes
// when another writer changed the post in between.
const MaxCommentAttempts = 3

// CommentInput is the comment a user submits.
type CommentInput struct {
	Author    identity.User
	Body      string
	Published time.Time
}

// RemoveInput addresses one comment by position.
type RemoveInput struct {
	ID    string
	Index int
}

// Container runs blog actions against the document store.
type Container struct {
	d           engine.Dispatcher
	docs        docstore.Store
	ts          *timestamp.Serializer
	currentUser func() *identity.User
	logger      *slog.Logger
}

// Option configures a Container.
type Option func(*Container)

// WithSerializer sets the timestamp serializer (default en-US, UTC).
func WithSerializer(ts *timestamp.Serializer) Option {
	return func(c *Container) { c.ts = ts }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Container) { c.logger = logger }
}

// New creates the container. currentUser reads the signed-in user from
// the auth state.
func New(d engine.Dispatcher, docs docstore.Store, currentUser func() *identity.User, opts ...Option) *Container {
	c := &Container{
		d:           d,
		docs:        docs,
		ts:          timestamp.Default,
		currentUser: currentUser,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchAll loads every post in natural order, filtered by query when it
// is non-empty.
func (c *Container) FetchAll(ctx context.Context, query string) *engine.Handle {
	return c.d.Dispatch(ctx, ActionFetchAll, query, func(ctx context.Context) engine.Outcome {
		docs, err := c.docs.GetAll(ctx, Collection)
		if err != nil {
			return engine.Remote(err)
		}
		return engine.Success{Data: Filter(c.decodeAll(docs), query)}
	})
}

// FetchPopular loads the most viewed posts.
func (c *Container) FetchPopular(ctx context.Context) *engine.Handle {
	return c.d.Dispatch(ctx, ActionFetchPopular, nil, func(ctx context.Context) engine.Outcome {
		docs, err := c.docs.Query(ctx, Collection, docstore.Query{
			OrderBy: "views",
			Desc:    true,
			Limit:   PopularLimit,
		})
		if err != nil {
			return engine.Remote(err)
		}
		return engine.Success{Data: c.decodeAll(docs)}
	})
}

// FetchByID loads one post and makes it the open post.
func (c *Container) FetchByID(ctx context.Context, id string) *engine.Handle {
	return c.d.Dispatch(ctx, ActionFetchByID, id, func(ctx context.Context) engine.Outcome {
		d, err := c.docs.Get(ctx, Collection, id)
		if err != nil {
			return storeFailure(err)
		}
		return engine.Success{Data: DecodePost(d.ID, d.Data, c.ts)}
	})
}

// Like toggles the signed-in user's like on a post.
func (c *Container) Like(ctx context.Context, id string) *engine.Handle {
	user := c.currentUser()
	return c.d.Dispatch(ctx, ActionLike, id, func(ctx context.Context) engine.Outcome {
		if user == nil || user.ID == "" {
			return engine.ValidationFailure{Message: "sign in to like posts"}
		}

		d, err := c.docs.Get(ctx, Collection, id)
		if err != nil {
			return storeFailure(err)
		}
		post := DecodePost(d.ID, d.Data, c.ts)

		var op docstore.FieldOp
		var likes []string
		if post.LikedBy(user.ID) {
			op = docstore.ArrayRemove("likes", doc.String(user.ID))
			likes = make([]string, 0, len(post.Likes))
			for _, l := range post.Likes {
				if l != user.ID {
					likes = append(likes, l)
				}
			}
		} else {
			op = docstore.ArrayUnion("likes", doc.String(user.ID))
			likes = append(post.Likes, user.ID)
		}

		if err := c.docs.Update(ctx, Collection, id, docstore.Patch{op}); err != nil {
			return storeFailure(err)
		}
		return engine.Success{Data: LikeResult{ID: id, Likes: likes}}
	})
}

// AddComment appends a comment to a post's comment sequence.
func (c *Container) AddComment(ctx context.Context, id string, in CommentInput) *engine.Handle {
	return c.d.Dispatch(ctx, ActionAddComment, id, func(ctx context.Context) engine.Outcome {
		if in.Author.ID == "" {
			return engine.ValidationFailure{Message: "sign in to comment"}
		}
		if strings.TrimSpace(in.Body) == "" {
			return engine.ValidationFailure{Message: "comment body is required"}
		}

		published := doc.NewTimestamp(in.Published)
		stored := doc.Object{
			"author":    EncodeUser(in.Author),
			"body":      doc.String(in.Body),
			"published": published,
		}
		err := c.rewriteComments(ctx, id, func(comments doc.Array) (doc.Array, bool) {
			return append(comments, stored), true
		})
		if err != nil {
			return storeFailure(err)
		}
		return engine.Success{Data: CommentResult{
			ID: id,
			Comment: Comment{
				Author:    in.Author,
				Body:      in.Body,
				Published: c.ts.Serialize(published),
			},
		}}
	})
}

// RemoveComment removes the comment at index. An out-of-range index is a
// successful no-op.
func (c *Container) RemoveComment(ctx context.Context, id string, index int) *engine.Handle {
	return c.d.Dispatch(ctx, ActionRemoveComment, RemoveInput{ID: id, Index: index}, func(ctx context.Context) engine.Outcome {
		err := c.rewriteComments(ctx, id, func(comments doc.Array) (doc.Array, bool) {
			if index < 0 || index >= len(comments) {
				return comments, false
			}
			return append(comments[:index:index], comments[index+1:]...), true
		})
		if err != nil {
			return storeFailure(err)
		}
		return engine.Success{Data: RemoveResult{ID: id, Index: index}}
	})
}

// UpdateViews increments the post's view counter by one.
func (c *Container) UpdateViews(ctx context.Context, id string) *engine.Handle {
	return c.d.Dispatch(ctx, ActionUpdateViews, id, func(ctx context.Context) engine.Outcome {
		if err := c.docs.Update(ctx, Collection, id, docstore.Patch{docstore.Increment("views", 1)}); err != nil {
			return storeFailure(err)
		}
		return engine.Success{Data: ViewsResult{ID: id}}
	})
}

// rewriteComments reads the comment sequence, applies edit and writes the
// whole sequence back conditionally on the version read. A concurrent
// change causes a re-read, up to MaxCommentAttempts times.
func (c *Container) rewriteComments(ctx context.Context, id string, edit func(doc.Array) (doc.Array, bool)) error {
	for attempt := 1; ; attempt++ {
		d, err := c.docs.Get(ctx, Collection, id)
		if err != nil {
			return err
		}
		current := append(doc.Array{}, d.Data.Arr("comments")...)
		next, changed := edit(current)
		if !changed {
			return nil
		}

		err = c.docs.UpdateIf(ctx, Collection, id, d.Version, docstore.Patch{docstore.Set("comments", next)})
		if err == nil {
			return nil
		}
		if !errors.Is(err, docstore.ErrVersionMismatch) || attempt >= MaxCommentAttempts {
			return err
		}
		c.logger.Debug("comment write conflict, re-reading",
			"id", id,
			"attempt", attempt,
		)
	}
}

func (c *Container) decodeAll(docs []docstore.Document) []Post {
	posts := make([]Post, 0, len(docs))
	for _, d := range docs {
		posts = append(posts, DecodePost(d.ID, d.Data, c.ts))
	}
	return posts
}

// storeFailure maps document store errors onto outcomes.
func storeFailure(err error) engine.Outcome {
	if errors.Is(err, docstore.ErrNotFound) {
		return engine.NotFound{Message: MsgNotFound}
	}
	if errors.Is(err, docstore.ErrVersionMismatch) {
		return engine.RemoteFailure{Message: fmt.Sprintf("post changed concurrently %d times, try again", MaxCommentAttempts)}
	}
	return engine.Remote(err)
}
