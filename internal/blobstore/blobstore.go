// Package blobstore stores uploaded binary objects (post cover images) and
// resolves them to download URLs.
//
// Uploads are asynchronous: Upload returns an UploadTask immediately. The
// task reports progress on a channel and Wait blocks until the object is
// committed. Objects become visible atomically (temp file + rename).
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	// ErrInvalidPath is returned for empty, absolute or escaping object paths.
	ErrInvalidPath = errors.New("invalid object path")

	// ErrNotFound is returned when a referenced object does not exist.
	ErrNotFound = errors.New("object not found")
)

// Ref identifies a committed object.
type Ref struct {
	Path string
	Size int64
}

// Progress is a snapshot of an in-flight upload. Total is -1 when unknown.
type Progress struct {
	Transferred int64
	Total       int64
}

// Percent returns completion in [0, 100], or 0 when Total is unknown.
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Transferred) / float64(p.Total) * 100
}

// Store is the blob storage contract.
type Store interface {
	Upload(ctx context.Context, objectPath string, r io.Reader, size int64) *UploadTask
	DownloadURL(ctx context.Context, ref Ref) (string, error)
}

// FS stores objects under a root directory.
type FS struct {
	root    string
	baseURL string
	chunk   int
}

var _ Store = (*FS)(nil)

// FSOption configures an FS store.
type FSOption func(*FS)

// WithChunkSize sets the copy buffer size, which is also the progress
// reporting granularity.
func WithChunkSize(n int) FSOption {
	return func(f *FS) {
		if n > 0 {
			f.chunk = n
		}
	}
}

// NewFS creates the root directory if needed. baseURL prefixes every
// download URL.
func NewFS(root, baseURL string, opts ...FSOption) (*FS, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	f := &FS{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		chunk:   32 * 1024,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Root returns the directory objects are stored under.
func (f *FS) Root() string {
	return f.root
}

// Clean validates an object path and returns its normalized slash form.
func Clean(objectPath string) (string, error) {
	if objectPath == "" || strings.HasPrefix(objectPath, "/") || strings.Contains(objectPath, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, objectPath)
	}
	cleaned := path.Clean(objectPath)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, objectPath)
	}
	return cleaned, nil
}

// Upload starts copying r to objectPath. size may be -1 when unknown.
func (f *FS) Upload(ctx context.Context, objectPath string, r io.Reader, size int64) *UploadTask {
	task := newUploadTask()
	go func() {
		ref, err := f.write(ctx, objectPath, r, size, task)
		task.finish(ref, err)
	}()
	return task
}

func (f *FS) write(ctx context.Context, objectPath string, r io.Reader, size int64, task *UploadTask) (Ref, error) {
	cleaned, err := Clean(objectPath)
	if err != nil {
		return Ref{}, err
	}
	dst := filepath.Join(f.root, filepath.FromSlash(cleaned))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return Ref{}, fmt.Errorf("upload %s: %w", cleaned, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return Ref{}, fmt.Errorf("upload %s: %w", cleaned, err)
	}
	defer os.Remove(tmp.Name())

	written, err := copyWithProgress(ctx, tmp, r, size, f.chunk, task.report)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return Ref{}, fmt.Errorf("upload %s: %w", cleaned, err)
	}
	if size >= 0 && written != size {
		return Ref{}, fmt.Errorf("upload %s: short write: %d of %d bytes", cleaned, written, size)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return Ref{}, fmt.Errorf("upload %s: %w", cleaned, err)
	}
	return Ref{Path: cleaned, Size: written}, nil
}

func copyWithProgress(ctx context.Context, w io.Writer, r io.Reader, total int64, chunk int, report func(Progress)) (int64, error) {
	buf := make([]byte, chunk)
	var written int64
	report(Progress{Transferred: 0, Total: total})
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return written, werr
			}
			written += int64(n)
			report(Progress{Transferred: written, Total: total})
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

// DownloadURL returns the public URL of a committed object.
func (f *FS) DownloadURL(_ context.Context, ref Ref) (string, error) {
	cleaned, err := Clean(ref.Path)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(filepath.Join(f.root, filepath.FromSlash(cleaned))); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("download url %s: %w", cleaned, ErrNotFound)
		}
		return "", fmt.Errorf("download url %s: %w", cleaned, err)
	}
	segments := strings.Split(cleaned, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return f.baseURL + "/" + strings.Join(segments, "/"), nil
}

// Open returns a reader for a committed object.
func (f *FS) Open(objectPath string) (*os.File, error) {
	cleaned, err := Clean(objectPath)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(filepath.Join(f.root, filepath.FromSlash(cleaned)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("open %s: %w", cleaned, ErrNotFound)
	}
	return file, err
}
