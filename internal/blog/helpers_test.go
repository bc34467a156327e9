package blog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/inkwell/internal/doc"
	"github.com/roach88/inkwell/internal/docstore"
	"github.com/roach88/inkwell/internal/engine"
	"github.com/roach88/inkwell/internal/identity"
	"github.com/roach88/inkwell/internal/testutil"
	"github.com/roach88/inkwell/internal/timestamp"
)

var (
	ada   = &identity.User{ID: "u1", Name: "Ada", Email: "ada@example.com"}
	grace = &identity.User{ID: "u2", Name: "Grace", Email: "grace@example.com"}

	jan15 = time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)
)

type fixture struct {
	eng  *engine.Engine[State]
	c    *Container
	docs *testutil.FlakyStore
	user *identity.User
	ctx  context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	inner, err := docstore.OpenSQLite(
		filepath.Join(t.TempDir(), "docs.db"),
		docstore.WithIDGenerator(testutil.NewSequentialIDs("post")),
	)
	require.NoError(t, err)
	t.Cleanup(func() { inner.Close() })

	f := &fixture{
		eng:  engine.New(InitialState(), Reduce),
		docs: testutil.NewFlakyStore(inner),
		user: ada,
		ctx:  context.Background(),
	}
	f.c = New(f.eng, f.docs, func() *identity.User { return f.user })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.eng.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return f
}

func (f *fixture) seed(t *testing.T, title, body, tags, category string, views int64) string {
	t.Helper()
	id, err := f.docs.Insert(f.ctx, Collection, doc.Object{
		"title":     doc.String(title),
		"body":      doc.String(body),
		"imageUrl":  doc.String("http://localhost/blobs/images/" + title + ".png"),
		"author":    EncodeUser(*grace),
		"tags":      doc.String(tags),
		"category":  doc.String(category),
		"likes":     doc.Array{},
		"views":     doc.Int(views),
		"comments":  doc.Array{},
		"published": doc.NewTimestamp(jan15),
		"updated":   doc.NewTimestamp(jan15),
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) wait(t *testing.T, h *engine.Handle) engine.Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := h.Wait(ctx)
	require.NoError(t, err)
	return out
}

func (f *fixture) stored(t *testing.T, id string) Post {
	t.Helper()
	d, err := f.docs.Store.Get(f.ctx, Collection, id)
	require.NoError(t, err)
	return DecodePost(d.ID, d.Data, timestamp.Default)
}
