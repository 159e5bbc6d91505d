package service

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/layerkv/layerkv/internal/core/domain"
	"github.com/layerkv/layerkv/internal/storage"
	"github.com/layerkv/layerkv/internal/storage/overlay"
	"github.com/layerkv/layerkv/internal/telemetry/metric"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// syncBuffer is a bytes.Buffer safe for one writer goroutine and one reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type testEnv struct {
	d       *Dispatcher
	engine  *storage.Engine
	clock   *testClock
	notify  *syncBuffer
	metrics *metric.Registry
}

func newTestEnv(t *testing.T, capacity int64) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := newTestClock()

	f, err := overlay.NewFactory(overlay.Config{
		Dir:    filepath.Join(t.TempDir(), "temp"),
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("NewFactory() error = %v", err)
	}
	engine, err := storage.New(context.Background(), storage.Config{
		CapacityBytes: capacity,
		Overlay:       f,
		Now:           clock.Now,
		Logger:        logger,
	})
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}

	env := &testEnv{
		engine:  engine,
		clock:   clock,
		notify:  &syncBuffer{},
		metrics: metric.NewRegistry(),
	}
	env.d, err = NewDispatcher(Config{
		Store:        engine,
		PollInterval: 5 * time.Millisecond,
		Notify:       env.notify,
		Metrics:      env.metrics,
		Now:          clock.Now,
		Logger:       logger,
	})
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	t.Cleanup(func() { env.d.Close() })
	return env
}

// run dispatches line without propagation and fails the test on a parse error.
func (env *testEnv) run(t *testing.T, line string) domain.Response {
	t.Helper()
	cmd, err := domain.Parse(line)
	if err != nil {
		t.Fatalf("Parse(%q) error = %v", line, err)
	}
	return env.d.Dispatch(context.Background(), cmd, false)
}

func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
