package cache

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lewisedginton/financial_qa/internal/storage"
	"github.com/stretchr/testify/require"
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

func newTestManager(t *testing.T, opts ...Option) (*Manager, *fakeClock, string) {
	t.Helper()
	dir := t.TempDir()
	clock := newFakeClock()
	base := []Option{WithDir(dir), WithClock(clock.Now)}
	m, err := New(append(base, opts...)...)
	require.NoError(t, err)
	return m, clock, dir
}

func fileExists(t *testing.T, dir, key string) bool {
	t.Helper()
	_, err := os.Stat(filepath.Join(dir, key+".json"))
	return err == nil
}

// gatedFiles pauses the first Read or Write of path after the underlying call
// completes, until release is closed.
type gatedFiles struct {
	storage.FileProvider
	path    string
	op      string
	held    atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func newGatedFiles(inner storage.FileProvider, op, key string) *gatedFiles {
	return &gatedFiles{
		FileProvider: inner,
		path:         key + ".json",
		op:           op,
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
}

func (g *gatedFiles) hold(op, path string) {
	if op != g.op || path != g.path {
		return
	}
	if g.held.CompareAndSwap(false, true) {
		close(g.entered)
		<-g.release
	}
}

func (g *gatedFiles) Read(ctx context.Context, path string) ([]byte, error) {
	data, err := g.FileProvider.Read(ctx, path)
	g.hold("read", path)
	return data, err
}

func (g *gatedFiles) Write(ctx context.Context, path string, data []byte) error {
	err := g.FileProvider.Write(ctx, path, data)
	g.hold("write", path)
	return err
}
