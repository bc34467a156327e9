package docstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/roach88/inkwell/internal/doc"
)

var (
	// ErrNotFound is returned when a document id does not exist in the collection.
	ErrNotFound = errors.New("document not found")

	// ErrVersionMismatch is returned by UpdateIf when the stored version
	// differs from the expected one.
	ErrVersionMismatch = errors.New("document version mismatch")
)

// Document is one stored record.
type Document struct {
	ID      string
	Data    doc.Object
	Version string
}

// Query selects documents ordered by a single top-level field.
// Documents that lack the field are excluded, as in most document databases.
type Query struct {
	OrderBy string
	Desc    bool
	Limit   int // 0 means no limit
}

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks the query before it is compiled to SQL.
func (q Query) Validate() error {
	if !fieldName.MatchString(q.OrderBy) {
		return fmt.Errorf("invalid order field %q", q.OrderBy)
	}
	if q.Limit < 0 {
		return fmt.Errorf("invalid limit %d", q.Limit)
	}
	return nil
}

// Store is the document database contract.
type Store interface {
	GetAll(ctx context.Context, collection string) ([]Document, error)
	Get(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, collection string, q Query) ([]Document, error)
	Update(ctx context.Context, collection, id string, patch Patch) error
	UpdateIf(ctx context.Context, collection, id, version string, patch Patch) error
	Insert(ctx context.Context, collection string, data doc.Object) (string, error)
	Close() error
}

// Option configures a backend.
type Option func(*options)

type options struct {
	ids IDGenerator
}

// WithIDGenerator overrides the document id generator (tests use
// FixedGenerator for deterministic ids).
func WithIDGenerator(g IDGenerator) Option {
	return func(o *options) {
		o.ids = g
	}
}

func buildOptions(opts []Option) options {
	o := options{ids: UUIDv7Generator{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// encode marshals a document and computes its version.
func encode(data doc.Object) (string, string, error) {
	raw, err := doc.Marshal(data)
	if err != nil {
		return "", "", err
	}
	version, err := doc.Version(data)
	if err != nil {
		return "", "", err
	}
	return string(raw), version, nil
}

// applyPatch decodes the stored data, checks the expected version and
// applies the patch. It returns the re-encoded data and new version.
func applyPatch(raw, stored, expected string, patch Patch) (string, string, error) {
	if expected != "" && stored != expected {
		return "", "", ErrVersionMismatch
	}
	obj, err := doc.UnmarshalObject([]byte(raw))
	if err != nil {
		return "", "", err
	}
	if err := patch.Apply(obj); err != nil {
		return "", "", err
	}
	return encode(obj)
}
