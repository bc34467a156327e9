package docstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/inkwell/internal/doc"
)

//go:embed schema.sql
var sqliteSchema string

// Schema version tracking:
// 0 - Initial schema
// 1 - Expression index on views for the popular-posts query
const currentSchemaVersion = 1

// SQLite is a Store backed by a single SQLite file.
type SQLite struct {
	db  *sql.DB
	ids IDGenerator
}

var _ Store = (*SQLite)(nil)

// OpenSQLite creates or opens a SQLite document database at path.
// Applies pragmas and migrations; safe to call on an existing file.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
func OpenSQLite(path string, opts ...Option) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite has one writer; a single connection also serializes patch
	// transactions so read-modify-write cannot interleave.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	o := buildOptions(opts)
	return &SQLite{db: db, ids: o.ids}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_documents_views
		ON documents(collection, json_extract(data, '$.views'))
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// GetAll returns every document of the collection in insertion order.
func (s *SQLite) GetAll(ctx context.Context, collection string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, data, version FROM documents
		WHERE collection = ?
		ORDER BY seq ASC
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("get all %s: %w", collection, err)
	}
	docs, err := scanDocuments(rows)
	if err != nil {
		return nil, fmt.Errorf("get all %s: %w", collection, err)
	}
	return docs, nil
}

// Get returns one document or ErrNotFound.
func (s *SQLite) Get(ctx context.Context, collection, id string) (Document, error) {
	var raw, version string
	err := s.db.QueryRowContext(ctx, `
		SELECT data, version FROM documents
		WHERE collection = ? AND id = ?
	`, collection, id).Scan(&raw, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("get %s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	d, err := decodeDocument(id, raw, version)
	if err != nil {
		return Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return d, nil
}

// Query returns documents that carry q.OrderBy, sorted by it. Ties keep
// insertion order.
func (s *SQLite) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	sqlStr, args := compileSQLiteQuery(collection, q)
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	docs, err := scanDocuments(rows)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	return docs, nil
}

func compileSQLiteQuery(collection string, q Query) (string, []any) {
	path := "$." + q.OrderBy
	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}
	limit := -1
	if q.Limit > 0 {
		limit = q.Limit
	}
	sqlStr := fmt.Sprintf(`
		SELECT id, data, version FROM documents
		WHERE collection = ? AND json_type(data, ?) IS NOT NULL
		ORDER BY json_extract(data, ?) %s, seq ASC
		LIMIT ?
	`, dir)
	return sqlStr, []any{collection, path, path, limit}
}

// Update applies patch to the document.
func (s *SQLite) Update(ctx context.Context, collection, id string, patch Patch) error {
	if err := s.update(ctx, collection, id, "", patch); err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return nil
}

// UpdateIf applies patch only when the stored version equals version.
func (s *SQLite) UpdateIf(ctx context.Context, collection, id, version string, patch Patch) error {
	if version == "" {
		return fmt.Errorf("update %s/%s: empty version", collection, id)
	}
	if err := s.update(ctx, collection, id, version, patch); err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *SQLite) update(ctx context.Context, collection, id, expected string, patch Patch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var raw, stored string
	err = tx.QueryRowContext(ctx, `
		SELECT data, version FROM documents
		WHERE collection = ? AND id = ?
	`, collection, id).Scan(&raw, &stored)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	data, version, err := applyPatch(raw, stored, expected, patch)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE documents
		SET data = ?, version = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		WHERE collection = ? AND id = ?
	`, data, version, collection, id)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Insert stores data under a fresh id and returns the id.
func (s *SQLite) Insert(ctx context.Context, collection string, data doc.Object) (string, error) {
	raw, version, err := encode(data)
	if err != nil {
		return "", fmt.Errorf("insert %s: %w", collection, err)
	}
	id := s.ids.Generate()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data, version)
		VALUES (?, ?, ?, ?)
	`, collection, id, raw, version)
	if err != nil {
		return "", fmt.Errorf("insert %s: %w", collection, err)
	}
	return id, nil
}

func scanDocuments(rows *sql.Rows) ([]Document, error) {
	defer rows.Close()
	docs := []Document{}
	for rows.Next() {
		var id, raw, version string
		if err := rows.Scan(&id, &raw, &version); err != nil {
			return nil, err
		}
		d, err := decodeDocument(id, raw, version)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func decodeDocument(id, raw, version string) (Document, error) {
	obj, err := doc.UnmarshalObject([]byte(raw))
	if err != nil {
		return Document{}, fmt.Errorf("decode %s: %w", id, err)
	}
	return Document{ID: id, Data: obj, Version: version}, nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *SQLite) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
