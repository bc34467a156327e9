package testutil

import (
	"context"
	"io"
	"sync"

	"github.com/roach88/inkwell/internal/blobstore"
	"github.com/roach88/inkwell/internal/doc"
	"github.com/roach88/inkwell/internal/docstore"
)

// Store method names accepted by FlakyStore.Fail.
const (
	MethodGetAll   = "GetAll"
	MethodGet      = "Get"
	MethodQuery    = "Query"
	MethodUpdate   = "Update"
	MethodUpdateIf = "UpdateIf"
	MethodInsert   = "Insert"
)

// FlakyStore wraps a docstore.Store and injects failures per method.
type FlakyStore struct {
	docstore.Store

	mu       sync.Mutex
	failures map[string]error
	calls    map[string]int
	beforeIf func(collection, id string)
}

// NewFlakyStore wraps inner.
func NewFlakyStore(inner docstore.Store) *FlakyStore {
	return &FlakyStore{
		Store:    inner,
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

// Fail makes method return err until Heal.
func (f *FlakyStore) Fail(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method] = err
}

// Heal removes an injected failure.
func (f *FlakyStore) Heal(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.failures, method)
}

// BeforeUpdateIf installs a hook run before each conditional write,
// used to simulate a concurrent writer.
func (f *FlakyStore) BeforeUpdateIf(hook func(collection, id string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beforeIf = hook
}

// Calls returns how many times method was invoked.
func (f *FlakyStore) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *FlakyStore) check(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	return f.failures[method]
}

func (f *FlakyStore) GetAll(ctx context.Context, collection string) ([]docstore.Document, error) {
	if err := f.check(MethodGetAll); err != nil {
		return nil, err
	}
	return f.Store.GetAll(ctx, collection)
}

func (f *FlakyStore) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	if err := f.check(MethodGet); err != nil {
		return docstore.Document{}, err
	}
	return f.Store.Get(ctx, collection, id)
}

func (f *FlakyStore) Query(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	if err := f.check(MethodQuery); err != nil {
		return nil, err
	}
	return f.Store.Query(ctx, collection, q)
}

func (f *FlakyStore) Update(ctx context.Context, collection, id string, patch docstore.Patch) error {
	if err := f.check(MethodUpdate); err != nil {
		return err
	}
	return f.Store.Update(ctx, collection, id, patch)
}

func (f *FlakyStore) UpdateIf(ctx context.Context, collection, id, version string, patch docstore.Patch) error {
	if err := f.check(MethodUpdateIf); err != nil {
		return err
	}
	f.mu.Lock()
	hook := f.beforeIf
	f.mu.Unlock()
	if hook != nil {
		hook(collection, id)
	}
	return f.Store.UpdateIf(ctx, collection, id, version, patch)
}

func (f *FlakyStore) Insert(ctx context.Context, collection string, data doc.Object) (string, error) {
	if err := f.check(MethodInsert); err != nil {
		return "", err
	}
	return f.Store.Insert(ctx, collection, data)
}

// FlakyBlobs wraps a blobstore.Store and can fail uploads or URL lookups.
type FlakyBlobs struct {
	blobstore.Store

	mu        sync.Mutex
	uploadErr error
	urlErr    error
	uploads   []string
}

// NewFlakyBlobs wraps inner.
func NewFlakyBlobs(inner blobstore.Store) *FlakyBlobs {
	return &FlakyBlobs{Store: inner}
}

// FailUploads makes every upload fail with err after reading its input;
// nil restores success.
func (b *FlakyBlobs) FailUploads(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploadErr = err
}

// FailDownloadURL makes DownloadURL return err; nil restores success.
func (b *FlakyBlobs) FailDownloadURL(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.urlErr = err
}

// Uploads returns the object paths uploads were attempted for.
func (b *FlakyBlobs) Uploads() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.uploads...)
}

func (b *FlakyBlobs) Upload(ctx context.Context, objectPath string, r io.Reader, size int64) *blobstore.UploadTask {
	b.mu.Lock()
	err := b.uploadErr
	b.uploads = append(b.uploads, objectPath)
	b.mu.Unlock()

	if err != nil {
		return b.Store.Upload(ctx, objectPath, &failingReader{err: err}, size)
	}
	return b.Store.Upload(ctx, objectPath, r, size)
}

func (b *FlakyBlobs) DownloadURL(ctx context.Context, ref blobstore.Ref) (string, error) {
	b.mu.Lock()
	err := b.urlErr
	b.mu.Unlock()
	if err != nil {
		return "", err
	}
	return b.Store.DownloadURL(ctx, ref)
}

type failingReader struct{ err error }

func (r *failingReader) Read([]byte) (int, error) { return 0, r.err }
