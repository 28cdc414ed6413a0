package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lewisedginton/financial_qa/internal/storage"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T, opts ...StoreOption) (*Store, *fakeClock, *storage.LocalFileProvider) {
	t.Helper()
	files := storage.NewLocalFileProvider(t.TempDir())
	clock := newFakeClock()
	s, err := NewStore(files, append([]StoreOption{WithClock(clock.Now)}, opts...)...)
	require.NoError(t, err)
	return s, clock, files
}

// flakyIndex fails index writes while failIndex is set.
type flakyIndex struct {
	storage.FileProvider
	mu        sync.Mutex
	failIndex bool
}

func (f *flakyIndex) setFail(v bool) {
	f.mu.Lock()
	f.failIndex = v
	f.mu.Unlock()
}

func (f *flakyIndex) Write(ctx context.Context, path string, data []byte) error {
	f.mu.Lock()
	fail := f.failIndex
	f.mu.Unlock()
	if fail && path == IndexFileName {
		return errors.New("disk full")
	}
	return f.FileProvider.Write(ctx, path, data)
}

func seconds(v float64) *float64 { return &v }
