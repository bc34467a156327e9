package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/roach88/inkwell/internal/app"
	"github.com/roach88/inkwell/internal/blobstore"
	"github.com/roach88/inkwell/internal/blog"
	"github.com/roach88/inkwell/internal/doc"
	"github.com/roach88/inkwell/internal/docstore"
	"github.com/roach88/inkwell/internal/engine"
	"github.com/roach88/inkwell/internal/identity"
	"github.com/roach88/inkwell/internal/publish"
	"github.com/roach88/inkwell/internal/testutil"
)

// StepTimeout bounds how long one step may take to settle.
const StepTimeout = 10 * time.Second

// Harness is the execution environment of one scenario.
type Harness struct {
	client   *app.Client
	docs     *testutil.FlakyStore
	provider *testutil.FakeProvider
	clock    *testutil.ManualClock
	rec      *recorder
	logger   *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Create a fresh SQLite document store and blob directory
//  2. Insert seeded posts
//  3. Start the client with a recorder subscribed before its first event
//     and wait for the initial auth state
//  4. Execute flow steps one at a time, checking expect clauses
//  5. Drain and close the client, then evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "inkwell-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	inner, err := docstore.OpenSQLite(
		filepath.Join(dir, "docs.db"),
		docstore.WithIDGenerator(testutil.NewSequentialIDs("post")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create document store: %w", err)
	}
	defer inner.Close()

	fs, err := blobstore.NewFS(filepath.Join(dir, "blobs"), "http://localhost/blobs")
	if err != nil {
		return nil, fmt.Errorf("failed to create blob store: %w", err)
	}

	ctx := context.Background()
	if err := seedPosts(ctx, inner, scenario.Posts); err != nil {
		return nil, fmt.Errorf("failed to seed posts: %w", err)
	}

	now := scenario.Now
	if now.IsZero() {
		now = DefaultNow
	}

	var initial, next *identity.User
	if scenario.User != nil {
		next = scenario.User.identity()
		if scenario.SignedIn {
			initial = next
		}
	}

	h := &Harness{
		docs:     testutil.NewFlakyStore(inner),
		provider: testutil.NewFakeProvider(initial),
		clock:    testutil.NewManualClock(now),
		rec:      &recorder{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	h.provider.WillSignIn(next)

	h.client, err = app.NewClient(app.Deps{
		Identity:  h.provider,
		Docs:      h.docs,
		Blobs:     fs,
		Logger:    h.logger,
		Clock:     engine.NewClock(),
		Observers: []func(app.State, engine.Event){h.rec.observe},
	})
	if err != nil {
		return nil, err
	}

	result := NewResult()
	flowErr := h.waitStartup()
	if flowErr == nil {
		flowErr = h.executeFlow(ctx, scenario.Flow, result)
	}

	if err := h.client.Close(); err != nil && flowErr == nil {
		flowErr = fmt.Errorf("failed to close client: %w", err)
	}
	if flowErr != nil {
		return nil, flowErr
	}

	result.Trace = h.rec.snapshot()
	result.State = h.client.State()

	actx := &AssertionContext{Ctx: ctx, Docs: inner}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// waitStartup blocks until the first identity observation is applied, so
// the first step sees the initial user.
func (h *Harness) waitStartup() error {
	deadline := time.Now().Add(StepTimeout)
	for h.client.State().Auth.IsLoading {
		if time.Now().After(deadline) {
			return errors.New("timed out waiting for the initial auth state")
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}

// executeFlow runs every step and records expect mismatches on result.
// Fault-injection steps produce no events.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) error {
	for i, step := range flow {
		handle, err := h.invoke(ctx, step)
		if err != nil {
			return fmt.Errorf("flow step %d (%s): %w", i, step.Invoke, err)
		}
		if handle == nil {
			continue
		}

		wctx, cancel := context.WithTimeout(ctx, StepTimeout)
		out, err := handle.Wait(wctx)
		cancel()
		if err != nil {
			return fmt.Errorf("flow step %d (%s): %w", i, step.Invoke, err)
		}

		if msg := checkExpect(step.Expect, out); msg != "" {
			result.AddError(fmt.Sprintf("flow step %d (%s): %s", i, step.Invoke, msg))
		}

		h.logger.Debug("flow step completed",
			"step", i,
			"invoke", step.Invoke,
			"outcome", engine.Kind(out),
		)
	}
	return nil
}

func (h *Harness) invoke(ctx context.Context, step FlowStep) (*engine.Handle, error) {
	args := stepArgs(step.Args)
	c := h.client

	switch step.Invoke {
	case StepSignIn:
		return c.SignIn(ctx), nil
	case StepSignOut:
		return c.SignOut(ctx), nil
	case StepSetLoading:
		loading, err := args.boolean("loading")
		if err != nil {
			return nil, err
		}
		return c.SetAuthLoading(loading), nil

	case StepFetchBlogs:
		query, err := args.optionalString("query")
		if err != nil {
			return nil, err
		}
		return c.FetchBlogs(ctx, query), nil
	case StepFetchPopular:
		return c.FetchPopularBlogs(ctx), nil
	case StepFetchByID:
		id, err := args.str("id")
		if err != nil {
			return nil, err
		}
		return c.FetchBlogByID(ctx, id), nil
	case StepLike:
		id, err := args.str("id")
		if err != nil {
			return nil, err
		}
		return c.LikeBlog(ctx, id), nil
	case StepAddComment:
		id, err := args.str("id")
		if err != nil {
			return nil, err
		}
		body, err := args.optionalString("body")
		if err != nil {
			return nil, err
		}
		in := blog.CommentInput{Body: body, Published: h.clock.Now()}
		if u := c.State().Auth.User; u != nil {
			in.Author = *u
		}
		return c.AddCommentToBlog(ctx, id, in), nil
	case StepRemoveComment:
		id, err := args.str("id")
		if err != nil {
			return nil, err
		}
		index, err := args.integer("index")
		if err != nil {
			return nil, err
		}
		return c.RemoveCommentFromBlog(ctx, id, index), nil
	case StepUpdateViews:
		id, err := args.str("id")
		if err != nil {
			return nil, err
		}
		return c.UpdateBlogViews(ctx, id), nil
	case StepCreateBlog:
		draft, err := h.draft(args)
		if err != nil {
			return nil, err
		}
		return c.CreateBlog(ctx, draft), nil

	case StepFailStore:
		method, err := args.str("method")
		if err != nil {
			return nil, err
		}
		message, err := args.str("message")
		if err != nil {
			return nil, err
		}
		h.docs.Fail(method, errors.New(message))
		return nil, nil
	case StepHealStore:
		method, err := args.str("method")
		if err != nil {
			return nil, err
		}
		h.docs.Heal(method)
		return nil, nil
	case StepFailSignIn:
		message, err := args.str("message")
		if err != nil {
			return nil, err
		}
		h.provider.FailSignIn(errors.New(message))
		return nil, nil
	}
	return nil, fmt.Errorf("unknown step %q", step.Invoke)
}

// draft builds a post draft authored by the signed-in user. The image is
// optional so validation failures can be exercised.
func (h *Harness) draft(args stepArgs) (publish.Draft, error) {
	d := publish.Draft{
		Author:    h.client.State().Auth.User,
		Published: h.clock.Now(),
	}
	var err error
	for key, dst := range map[string]*string{
		"title":    &d.Title,
		"body":     &d.Body,
		"tags":     &d.Tags,
		"category": &d.Category,
	} {
		if *dst, err = args.optionalString(key); err != nil {
			return publish.Draft{}, err
		}
	}

	name, err := args.optionalString("image")
	if err != nil {
		return publish.Draft{}, err
	}
	if name != "" {
		content, err := args.optionalString("content")
		if err != nil {
			return publish.Draft{}, err
		}
		d.Image = &publish.Image{
			Name:    name,
			Size:    int64(len(content)),
			Content: strings.NewReader(content),
		}
	}
	return d, nil
}

// checkExpect returns a mismatch description, or "" when out matches.
func checkExpect(expect *ExpectClause, out engine.Outcome) string {
	if expect == nil {
		return ""
	}
	if kind := engine.Kind(out); kind != expect.Outcome {
		msg, _ := engine.Failure(out)
		return fmt.Sprintf("expected outcome %s, got %s %q", expect.Outcome, kind, msg)
	}
	if expect.Error != "" {
		if msg, _ := engine.Failure(out); msg != expect.Error {
			return fmt.Sprintf("expected error %q, got %q", expect.Error, msg)
		}
	}
	return ""
}

func seedPosts(ctx context.Context, docs docstore.Store, posts []Post) error {
	for i, p := range posts {
		if _, err := docs.Insert(ctx, blog.Collection, p.object()); err != nil {
			return fmt.Errorf("post %d: %w", i, err)
		}
	}
	return nil
}

func (u User) identity() *identity.User {
	return &identity.User{ID: u.ID, Name: u.Name, Email: u.Email, PhotoURL: u.PhotoURL}
}

func (p Post) object() doc.Object {
	likes := make(doc.Array, 0, len(p.Likes))
	for _, l := range p.Likes {
		likes = append(likes, doc.String(l))
	}
	comments := make(doc.Array, 0, len(p.Comments))
	for _, c := range p.Comments {
		comments = append(comments, doc.Object{
			"author":    blog.EncodeUser(*c.Author.identity()),
			"body":      doc.String(c.Body),
			"published": doc.NewTimestamp(c.Published),
		})
	}
	published := doc.NewTimestamp(p.Published)
	return doc.Object{
		"title":     doc.String(p.Title),
		"body":      doc.String(p.Body),
		"imageUrl":  doc.String(p.ImageURL),
		"author":    blog.EncodeUser(*p.Author.identity()),
		"tags":      doc.String(p.Tags),
		"category":  doc.String(p.Category),
		"likes":     likes,
		"views":     doc.Int(p.Views),
		"comments":  comments,
		"published": published,
		"updated":   published,
	}
}

// stepArgs reads typed step arguments decoded from YAML.
type stepArgs map[string]any

func (a stepArgs) str(key string) (string, error) {
	v, ok := a[key]
	if !ok {
		return "", fmt.Errorf("arg %q is required", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("arg %q: expected string, got %T", key, v)
	}
	return s, nil
}

func (a stepArgs) optionalString(key string) (string, error) {
	if _, ok := a[key]; !ok {
		return "", nil
	}
	return a.str(key)
}

func (a stepArgs) integer(key string) (int, error) {
	v, ok := a[key]
	if !ok {
		return 0, fmt.Errorf("arg %q is required", key)
	}
	n, ok := v.(int)
	if !ok {
		return 0, fmt.Errorf("arg %q: expected integer, got %T", key, v)
	}
	return n, nil
}

func (a stepArgs) boolean(key string) (bool, error) {
	v, ok := a[key]
	if !ok {
		return false, fmt.Errorf("arg %q is required", key)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("arg %q: expected bool, got %T", key, v)
	}
	return b, nil
}
