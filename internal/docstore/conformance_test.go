package docstore

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/inkwell/internal/doc"
)

// runConformance exercises the Store contract against one backend.
func runConformance(t *testing.T, open func(t *testing.T, opts ...Option) Store) {
	ctx := context.Background()

	t.Run("insert and get", func(t *testing.T) {
		s := open(t, WithIDGenerator(NewFixedGenerator("a")))
		id, err := s.Insert(ctx, "blogs", post("First", 0))
		require.NoError(t, err)
		assert.Equal(t, "a", id)

		got, err := s.Get(ctx, "blogs", "a")
		require.NoError(t, err)
		assert.Equal(t, "a", got.ID)
		assert.Equal(t, "First", got.Data.Str("title"))
		want, err := doc.Version(post("First", 0))
		require.NoError(t, err)
		assert.Equal(t, want, got.Version)
	})

	t.Run("get missing", func(t *testing.T) {
		s := open(t)
		_, err := s.Get(ctx, "blogs", "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("collections are separate", func(t *testing.T) {
		s := open(t, WithIDGenerator(NewFixedGenerator("a", "b")))
		_, err := s.Insert(ctx, "blogs", post("A", 0))
		require.NoError(t, err)
		_, err = s.Insert(ctx, "drafts", post("B", 0))
		require.NoError(t, err)

		_, err = s.Get(ctx, "drafts", "a")
		assert.ErrorIs(t, err, ErrNotFound)
		all, err := s.GetAll(ctx, "blogs")
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("get all keeps insertion order", func(t *testing.T) {
		s := open(t, WithIDGenerator(NewFixedGenerator("z", "m", "a")))
		for _, title := range []string{"one", "two", "three"} {
			_, err := s.Insert(ctx, "blogs", post(title, 0))
			require.NoError(t, err)
		}
		all, err := s.GetAll(ctx, "blogs")
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{"z", "m", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})
	})

	t.Run("get all empty", func(t *testing.T) {
		s := open(t)
		all, err := s.GetAll(ctx, "blogs")
		require.NoError(t, err)
		assert.NotNil(t, all)
		assert.Empty(t, all)
	})

	t.Run("query orders and limits", func(t *testing.T) {
		s := open(t, WithIDGenerator(NewFixedGenerator("p1", "p2", "p3", "p4", "p5", "p6")))
		for i, views := range []int64{5, 40, 12, 40, 1} {
			_, err := s.Insert(ctx, "blogs", post(string(rune('A'+i)), views))
			require.NoError(t, err)
		}
		noViews := doc.Object{"title": doc.String("no views")}
		_, err := s.Insert(ctx, "blogs", noViews)
		require.NoError(t, err)

		top, err := s.Query(ctx, "blogs", Query{OrderBy: "views", Desc: true, Limit: 3})
		require.NoError(t, err)
		require.Len(t, top, 3)
		assert.Equal(t, "p2", top[0].ID)
		assert.Equal(t, "p4", top[1].ID)
		assert.Equal(t, "p3", top[2].ID)
	})

	t.Run("query rejects bad field", func(t *testing.T) {
		s := open(t)
		_, err := s.Query(ctx, "blogs", Query{OrderBy: "views; DROP TABLE documents"})
		assert.Error(t, err)
	})

	t.Run("update applies patch", func(t *testing.T) {
		s := open(t, WithIDGenerator(NewFixedGenerator("a")))
		_, err := s.Insert(ctx, "blogs", post("First", 2))
		require.NoError(t, err)

		err = s.Update(ctx, "blogs", "a", Patch{
			Increment("views", 1),
			ArrayUnion("likes", doc.String("u1")),
			Set("title", doc.String("Renamed")),
		})
		require.NoError(t, err)

		got, err := s.Get(ctx, "blogs", "a")
		require.NoError(t, err)
		assert.Equal(t, int64(3), got.Data.Int64("views"))
		assert.Equal(t, doc.Array{doc.String("u1")}, got.Data.Arr("likes"))
		assert.Equal(t, "Renamed", got.Data.Str("title"))
	})

	t.Run("update missing", func(t *testing.T) {
		s := open(t)
		err := s.Update(ctx, "blogs", "nope", Patch{Increment("views", 1)})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("update if version", func(t *testing.T) {
		s := open(t, WithIDGenerator(NewFixedGenerator("a")))
		_, err := s.Insert(ctx, "blogs", post("First", 0))
		require.NoError(t, err)
		before, err := s.Get(ctx, "blogs", "a")
		require.NoError(t, err)

		require.NoError(t, s.UpdateIf(ctx, "blogs", "a", before.Version, Patch{Increment("views", 1)}))

		err = s.UpdateIf(ctx, "blogs", "a", before.Version, Patch{Increment("views", 1)})
		assert.ErrorIs(t, err, ErrVersionMismatch)

		after, err := s.Get(ctx, "blogs", "a")
		require.NoError(t, err)
		assert.Equal(t, int64(1), after.Data.Int64("views"))
		assert.NotEqual(t, before.Version, after.Version)
	})

	t.Run("timestamps survive storage", func(t *testing.T) {
		s := open(t, WithIDGenerator(NewFixedGenerator("a")))
		ts := doc.NewTimestamp(mustTime(t, "2024-01-15T09:30:00Z"))
		_, err := s.Insert(ctx, "blogs", doc.Object{"published": ts})
		require.NoError(t, err)

		got, err := s.Get(ctx, "blogs", "a")
		require.NoError(t, err)
		assert.True(t, doc.Equal(ts, got.Data["published"]))
	})

	t.Run("concurrent increments are not lost", func(t *testing.T) {
		s := open(t, WithIDGenerator(NewFixedGenerator("a")))
		_, err := s.Insert(ctx, "blogs", post("First", 0))
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, s.Update(ctx, "blogs", "a", Patch{Increment("views", 1)}))
			}()
		}
		wg.Wait()

		got, err := s.Get(ctx, "blogs", "a")
		require.NoError(t, err)
		assert.Equal(t, int64(20), got.Data.Int64("views"))
	})
}
