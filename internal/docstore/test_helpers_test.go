package docstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/roach88/inkwell/internal/doc"
)

// createTestSQLite opens a fresh SQLite store in a temp dir.
func createTestSQLite(t *testing.T, opts ...Option) *SQLite {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := OpenSQLite(path, opts...)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestPostgres connects to INKWELL_TEST_POSTGRES_DSN or skips.
// The documents table is truncated before use.
func createTestPostgres(t *testing.T, opts ...Option) *Postgres {
	t.Helper()
	dsn := os.Getenv("INKWELL_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("INKWELL_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	p, err := OpenPostgres(ctx, dsn, opts...)
	if err != nil {
		t.Fatalf("OpenPostgres() failed: %v", err)
	}
	if _, err := p.pool.Exec(ctx, "TRUNCATE documents"); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func post(title string, views int64) doc.Object {
	return doc.Object{
		"title": doc.String(title),
		"views": doc.Int(views),
		"likes": doc.Array{},
	}
}
