package metric

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}
	if r.registry == nil {
		t.Error("registry field is nil")
	}
	if r.CommandsTotal == nil || r.MemoryBytes == nil || r.SyncCommands == nil {
		t.Error("metrics not initialized")
	}
}

func TestRegistry_Independent(t *testing.T) {
	// Two registries in one process must not collide.
	a := NewRegistry()
	b := NewRegistry()
	a.ObserveExpired(3)
	if got := testutil.ToFloat64(b.ExpiredKeys); got != 0 {
		t.Errorf("second registry ExpiredKeys = %v, want 0", got)
	}
	if got := testutil.ToFloat64(a.ExpiredKeys); got != 3 {
		t.Errorf("ExpiredKeys = %v, want 3", got)
	}
}

func TestRegistry_Observe(t *testing.T) {
	r := NewRegistry()

	r.ObserveCommand("SET", true, 0.001)
	r.ObserveCommand("SET", true, 0.001)
	r.ObserveCommand("GET", false, 0.001)
	r.ObserveStore(42, 1000, 3)
	r.ObserveSync(DirectionSent, 5)
	r.ObservePropagation(false)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"set ok", testutil.ToFloat64(r.CommandsTotal.WithLabelValues("SET", ResultOK)), 2},
		{"get error", testutil.ToFloat64(r.CommandsTotal.WithLabelValues("GET", ResultError)), 1},
		{"memory", testutil.ToFloat64(r.MemoryBytes), 42},
		{"capacity", testutil.ToFloat64(r.CapacityBytes), 1000},
		{"depth", testutil.ToFloat64(r.StackDepth), 3},
		{"sync sent", testutil.ToFloat64(r.SyncCommands.WithLabelValues(DirectionSent)), 5},
		{"propagation error", testutil.ToFloat64(r.Propagated.WithLabelValues(ResultError)), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestRegistry_NilSafe(t *testing.T) {
	var r *Registry
	// Should not panic
	r.ObserveCommand("SET", true, 0)
	r.ObserveStore(1, 2, 3)
	r.ObserveExpired(1)
	r.ObserveSync(DirectionReceived, 1)
	r.ObservePropagation(true)
}

func TestCollector(t *testing.T) {
	var n atomic.Uint64
	n.Store(7)

	r := NewRegistry()
	r.MustRegister(NewCollector().Counter("overlay_writes_total", "Overlay writes", n.Load))

	if got := testutil.CollectAndCount(NewCollector().Counter("x_total", "x", n.Load)); got != 1 {
		t.Errorf("CollectAndCount() = %d, want 1", got)
	}

	body := scrape(t, r)
	if !strings.Contains(body, "layerkv_overlay_writes_total 7") {
		t.Errorf("scrape missing collector value:\n%s", body)
	}
}

func TestHandler(t *testing.T) {
	r := NewRegistry()
	r.ObserveCommand("PUSH", true, 0.0001)

	body := scrape(t, r)
	for _, want := range []string{
		`layerkv_commands_total{result="ok",verb="PUSH"} 1`,
		"layerkv_command_duration_seconds_bucket",
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func scrape(t *testing.T, r *Registry) string {
	t.Helper()
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}
