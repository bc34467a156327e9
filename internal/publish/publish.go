// Package publish is the blog creation state container.
//
// Creating a post uploads the cover image to the blob store, resolves its
// download URL and inserts the post document. Upload progress is only
// logged; it never reaches the state.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/roach88/inkwell/internal/blobstore"
	"github.com/roach88/inkwell/internal/blog"
	"github.com/roach88/inkwell/internal/doc"
	"github.com/roach88/inkwell/internal/docstore"
	"github.com/roach88/inkwell/internal/engine"
	"github.com/roach88/inkwell/internal/identity"
)

// ActionCreate is the only action of this container.
const ActionCreate = "createBlog/createBlog"

// ImagePrefix is the blob store directory cover images are uploaded to.
const ImagePrefix = "images/"

// Categories are the category options offered when creating a post.
var Categories = []string{
	"Technology",
	"Programming",
	"Web Development",
	"React",
	"JavaScript",
	"Python",
	"Java",
	"C++",
	"Blockchain",
}

// ValidCategory reports whether c is one of Categories.
func ValidCategory(c string) bool {
	return slices.Contains(Categories, c)
}

// State is the creation container state.
type State struct {
	IsLoading bool   `json:"isLoading"`
	Error     string `json:"error,omitempty"`
}

// InitialState returns the idle state.
func InitialState() State {
	return State{}
}

// Reduce applies one event. Events of other containers are ignored.
func Reduce(s State, ev engine.Event) State {
	if ev.Type != ActionCreate {
		return s
	}
	switch ev.Phase {
	case engine.PhasePending:
		s.IsLoading = true
		s.Error = ""
	case engine.PhaseFulfilled:
		s.IsLoading = false
		s.Error = ""
	case engine.PhaseRejected:
		s.IsLoading = false
		s.Error = ev.Error
	}
	return s
}

// Image is the cover image of a draft.
type Image struct {
	Name    string
	Size    int64
	Content io.Reader
}

// Draft is a post about to be created.
type Draft struct {
	Title     string
	Body      string
	Tags      string
	Category  string
	Author    *identity.User
	Image     *Image
	Published time.Time
}

// Validate checks the draft for missing fields.
func (d Draft) Validate() error {
	if d.Author == nil || d.Author.ID == "" {
		return errors.New("sign in to create a post")
	}
	if strings.TrimSpace(d.Title) == "" ||
		strings.TrimSpace(d.Body) == "" ||
		strings.TrimSpace(d.Tags) == "" ||
		strings.TrimSpace(d.Category) == "" {
		return errors.New("title, body, tags and category are required")
	}
	if d.Image == nil || d.Image.Content == nil || d.Image.Name == "" {
		return errors.New("a cover image is required")
	}
	return nil
}

// Created is the fulfilled payload.
type Created struct {
	ID       string `json:"id"`
	ImageURL string `json:"imageUrl"`
}

// Container runs the create action.
type Container struct {
	d      engine.Dispatcher
	docs   docstore.Store
	blobs  blobstore.Store
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Container.
type Option func(*Container)

// WithLogger sets the logger upload progress is reported to.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Container) { c.logger = logger }
}

// WithNow sets the clock used when a draft carries no publish time.
func WithNow(now func() time.Time) Option {
	return func(c *Container) { c.now = now }
}

// New creates the container.
func New(d engine.Dispatcher, docs docstore.Store, blobs blobstore.Store, opts ...Option) *Container {
	c := &Container{
		d:      d,
		docs:   docs,
		blobs:  blobs,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateBlog uploads the draft's image and inserts the post. A failed
// insert leaves the uploaded image in place.
func (c *Container) CreateBlog(ctx context.Context, draft Draft) *engine.Handle {
	arg := draft.Title
	return c.d.Dispatch(ctx, ActionCreate, arg, func(ctx context.Context) engine.Outcome {
		if err := draft.Validate(); err != nil {
			return engine.ValidationFailure{Message: err.Error()}
		}

		objectPath := ImagePrefix + draft.Image.Name
		task := c.blobs.Upload(ctx, objectPath, draft.Image.Content, draft.Image.Size)
		go c.logProgress(objectPath, task)

		ref, err := task.Wait(ctx)
		if err != nil {
			return engine.Remote(err)
		}
		url, err := c.blobs.DownloadURL(ctx, ref)
		if err != nil {
			return engine.Remote(err)
		}

		id, err := c.docs.Insert(ctx, blog.Collection, c.document(draft, url))
		if err != nil {
			c.logger.Warn("post insert failed, image left in place",
				"path", ref.Path,
				"error", err,
			)
			return engine.Remote(err)
		}
		return engine.Success{Data: Created{ID: id, ImageURL: url}}
	})
}

func (c *Container) logProgress(objectPath string, task *blobstore.UploadTask) {
	for p := range task.Progress() {
		c.logger.Debug("upload progress",
			"path", objectPath,
			"percent", fmt.Sprintf("%.0f", p.Percent()),
		)
	}
}

func (c *Container) document(d Draft, imageURL string) doc.Object {
	published := d.Published
	if published.IsZero() {
		published = c.now()
	}
	ts := doc.NewTimestamp(published)
	return doc.Object{
		"title":     doc.String(d.Title),
		"body":      doc.String(d.Body),
		"imageUrl":  doc.String(imageURL),
		"author":    blog.EncodeUser(*d.Author),
		"tags":      doc.String(d.Tags),
		"category":  doc.String(d.Category),
		"likes":     doc.Array{},
		"views":     doc.Int(0),
		"comments":  doc.Array{},
		"published": ts,
		"updated":   ts,
	}
}
