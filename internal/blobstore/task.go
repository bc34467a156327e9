package blobstore

import (
	"context"
	"sync"
)

// UploadTask tracks one in-flight upload.
//
// Progress delivers snapshots until the upload finishes, then is closed.
// Snapshots are dropped rather than blocking the copy when the consumer
// falls behind; the latest value is always available from Latest.
type UploadTask struct {
	progress chan Progress
	done     chan struct{}

	mu     sync.Mutex
	latest Progress
	ref    Ref
	err    error
}

func newUploadTask() *UploadTask {
	return &UploadTask{
		progress: make(chan Progress, 16),
		done:     make(chan struct{}),
	}
}

// Progress returns the progress channel.
func (t *UploadTask) Progress() <-chan Progress {
	return t.progress
}

// Latest returns the most recent progress snapshot.
func (t *UploadTask) Latest() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest
}

// Done is closed when the upload has finished.
func (t *UploadTask) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the upload finishes or ctx is done.
func (t *UploadTask) Wait(ctx context.Context) (Ref, error) {
	select {
	case <-t.done:
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.ref, t.err
	case <-ctx.Done():
		return Ref{}, ctx.Err()
	}
}

func (t *UploadTask) report(p Progress) {
	t.mu.Lock()
	t.latest = p
	t.mu.Unlock()

	select {
	case t.progress <- p:
	default:
	}
}

func (t *UploadTask) finish(ref Ref, err error) {
	t.mu.Lock()
	t.ref, t.err = ref, err
	t.mu.Unlock()
	close(t.progress)
	close(t.done)
}
