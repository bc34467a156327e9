package docstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roach88/inkwell/internal/doc"
)

//go:embed schema_postgres.sql
var postgresSchema string

// Postgres is a Store backed by a PostgreSQL jsonb table.
type Postgres struct {
	pool *pgxpool.Pool
	ids  IDGenerator
}

var _ Store = (*Postgres)(nil)

// OpenPostgres connects to dsn and applies the schema.
func OpenPostgres(ctx context.Context, dsn string, opts ...Option) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	o := buildOptions(opts)
	return &Postgres{pool: pool, ids: o.ids}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) GetAll(ctx context.Context, collection string) ([]Document, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, data::text, version FROM documents
		WHERE collection = $1
		ORDER BY seq ASC
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("get all %s: %w", collection, err)
	}
	docs, err := collectDocuments(rows)
	if err != nil {
		return nil, fmt.Errorf("get all %s: %w", collection, err)
	}
	return docs, nil
}

func (p *Postgres) Get(ctx context.Context, collection, id string) (Document, error) {
	var raw, version string
	err := p.pool.QueryRow(ctx, `
		SELECT data::text, version FROM documents
		WHERE collection = $1 AND id = $2
	`, collection, id).Scan(&raw, &version)
	if errors.Is(err, pgx.ErrNoRows) {
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

func (p *Postgres) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	sqlStr, args := compilePostgresQuery(collection, q)
	rows, err := p.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	docs, err := collectDocuments(rows)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	return docs, nil
}

func compilePostgresQuery(collection string, q Query) (string, []any) {
	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}
	sqlStr := fmt.Sprintf(`
		SELECT id, data::text, version FROM documents
		WHERE collection = $1 AND jsonb_exists(data, $2::text)
		ORDER BY (data->($2::text)) %s, seq ASC
	`, dir)
	args := []any{collection, q.OrderBy}
	if q.Limit > 0 {
		sqlStr += " LIMIT $3"
		args = append(args, q.Limit)
	}
	return sqlStr, args
}

func (p *Postgres) Update(ctx context.Context, collection, id string, patch Patch) error {
	if err := p.update(ctx, collection, id, "", patch); err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return nil
}

func (p *Postgres) UpdateIf(ctx context.Context, collection, id, version string, patch Patch) error {
	if version == "" {
		return fmt.Errorf("update %s/%s: empty version", collection, id)
	}
	if err := p.update(ctx, collection, id, version, patch); err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return nil
}

func (p *Postgres) update(ctx context.Context, collection, id, expected string, patch Patch) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		var raw, stored string
		err := tx.QueryRow(ctx, `
			SELECT data::text, version FROM documents
			WHERE collection = $1 AND id = $2
			FOR UPDATE
		`, collection, id).Scan(&raw, &stored)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		data, version, err := applyPatch(raw, stored, expected, patch)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE documents
			SET data = $1::jsonb, version = $2, updated_at = now()
			WHERE collection = $3 AND id = $4
		`, data, version, collection, id)
		return err
	})
}

func (p *Postgres) Insert(ctx context.Context, collection string, data doc.Object) (string, error) {
	raw, version, err := encode(data)
	if err != nil {
		return "", fmt.Errorf("insert %s: %w", collection, err)
	}
	id := p.ids.Generate()
	_, err = p.pool.Exec(ctx, `
		INSERT INTO documents (collection, id, data, version)
		VALUES ($1, $2, $3::jsonb, $4)
	`, collection, id, raw, version)
	if err != nil {
		return "", fmt.Errorf("insert %s: %w", collection, err)
	}
	return id, nil
}

func collectDocuments(rows pgx.Rows) ([]Document, error) {
	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Document, error) {
		var id, raw, version string
		if err := row.Scan(&id, &raw, &version); err != nil {
			return Document{}, err
		}
		return decodeDocument(id, raw, version)
	})
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []Document{}
	}
	return docs, nil
}
