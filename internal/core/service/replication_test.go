package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"slices"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/layerkv/layerkv/internal/core/domain"
	"github.com/layerkv/layerkv/internal/telemetry/metric"
	"github.com/layerkv/layerkv/pkg/frame"
)

func readFrames(t *testing.T, r io.Reader) []string {
	t.Helper()
	fr := frame.NewReader(r)
	var out []string
	for {
		payload, err := fr.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame() error = %v after %q", err, out)
		}
		if frame.IsSentinel(payload) {
			return append(out, "<EOT>")
		}
		out = append(out, string(payload))
	}
}

func TestSendState_Scenario(t *testing.T) {
	env := newTestEnv(t, 1000)
	env.run(t, "SET p val1 30")
	env.run(t, "PUSH")
	env.run(t, "SET q val2 5")

	var buf bytes.Buffer
	n, err := env.d.SendState(context.Background(), &buf)
	if err != nil {
		t.Fatalf("SendState() error = %v", err)
	}
	if n != 4 {
		t.Errorf("SendState() = %d, want 4", n)
	}

	got := readFrames(t, &buf)
	want := []string{
		"SET p val1 30",
		"PUSH",
		"SET q val2 5",
		"SET p val1 30",
		"<EOT>",
	}
	if !slices.Equal(got, want) {
		t.Errorf("frames = %q, want %q", got, want)
	}
	if got := testutil.ToFloat64(env.metrics.SyncCommands.WithLabelValues(metric.DirectionSent)); got != 4 {
		t.Errorf("sync sent = %v, want 4", got)
	}
}

func TestSendState_TopLayerDiverges(t *testing.T) {
	env := newTestEnv(t, 1000)
	env.run(t, "SET p val1 30")
	env.run(t, "PUSH")
	env.run(t, "DELETE p")
	env.run(t, "SET q val2 5")

	var buf bytes.Buffer
	n, err := env.d.SendState(context.Background(), &buf)
	if err != nil {
		t.Fatalf("SendState() error = %v", err)
	}
	if n != 3 {
		t.Errorf("SendState() = %d, want 3", n)
	}

	got := readFrames(t, &buf)
	want := []string{
		"SET p val1 30",
		"PUSH",
		"SET q val2 5",
		"<EOT>",
	}
	if !slices.Equal(got, want) {
		t.Errorf("frames = %q, want %q", got, want)
	}
}

func TestSendState_RemainingLifetime(t *testing.T) {
	env := newTestEnv(t, 1000)
	env.run(t, "SET long v 30")
	env.run(t, "SET short v 2")
	env.clock.Advance(2500 * time.Millisecond)

	var buf bytes.Buffer
	if _, err := env.d.SendState(context.Background(), &buf); err != nil {
		t.Fatal(err)
	}
	got := readFrames(t, &buf)
	want := []string{"SET long v 28", "<EOT>"}
	if !slices.Equal(got, want) {
		t.Errorf("frames = %q, want %q", got, want)
	}
}

func TestSendState_EmptyStore(t *testing.T) {
	env := newTestEnv(t, 1000)
	var buf bytes.Buffer
	if n, err := env.d.SendState(context.Background(), &buf); err != nil || n != 0 {
		t.Fatalf("SendState() = %d, %v", n, err)
	}
	if got := readFrames(t, &buf); !slices.Equal(got, []string{"<EOT>"}) {
		t.Errorf("frames = %q, want only the sentinel", got)
	}
}

// pauseCheckWriter records whether the reclaimer ran during writes.
type pauseCheckWriter struct {
	r       *Reclaimer
	buf     bytes.Buffer
	running bool
}

func (w *pauseCheckWriter) Write(p []byte) (int, error) {
	if w.r.Running() {
		w.running = true
	}
	return w.buf.Write(p)
}

func TestSendState_PausesReclaimer(t *testing.T) {
	env := newTestEnv(t, 1000)
	env.d.Start()
	env.run(t, "SET k v 60")

	w := &pauseCheckWriter{r: env.d.Reclaimer()}
	if _, err := env.d.SendState(context.Background(), w); err != nil {
		t.Fatal(err)
	}
	if w.running {
		t.Error("reclaimer ran while state was being sent")
	}
	if !env.d.Reclaimer().Running() {
		t.Error("reclaimer not resumed after SendState()")
	}
}

func TestSendState_RateLimited(t *testing.T) {
	env := newTestEnv(t, 1000)
	env.d.syncRate = 64
	env.run(t, "SET k v 60")

	var buf bytes.Buffer
	if n, err := env.d.SendState(context.Background(), &buf); err != nil || n != 1 {
		t.Fatalf("SendState() = %d, %v", n, err)
	}
}

func TestSendState_WriteError(t *testing.T) {
	env := newTestEnv(t, 1000)
	env.d.Start()
	env.run(t, "SET k v 60")

	_, err := env.d.SendState(context.Background(), failingWriter{})
	if err == nil {
		t.Fatal("SendState() to failing writer should fail")
	}
	if !env.d.Reclaimer().Running() {
		t.Error("reclaimer not resumed after failed SendState()")
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestApplyState_RebuildsLayers(t *testing.T) {
	src := newTestEnv(t, 12)
	dst := newTestEnv(t, 12)

	src.run(t, "SET p val1 30")
	src.run(t, "SET big 0123456789 30")
	src.run(t, "PUSH")
	src.run(t, "SET q val2 5")
	src.run(t, "DELETE p")

	// Local state on the receiver is discarded.
	dst.run(t, "SET junk x 60")
	dst.run(t, "PUSH")
	dst.run(t, "PUSH")
	dst.run(t, "SET more y 60")

	var buf bytes.Buffer
	if _, err := src.d.SendState(context.Background(), &buf); err != nil {
		t.Fatal(err)
	}
	n, err := dst.d.ApplyState(context.Background(), &buf)
	if err != nil {
		t.Fatalf("ApplyState() error = %v", err)
	}
	// base: big, p; PUSH; top: q, big
	if n != 5 {
		t.Errorf("ApplyState() = %d, want 5", n)
	}

	want, _ := src.engine.Fingerprints(context.Background())
	got, _ := dst.engine.Fingerprints(context.Background())
	if !slices.Equal(got, want) {
		t.Errorf("fingerprints = %x, want %x", got, want)
	}
	if dst.engine.Depth() != 2 {
		t.Errorf("Depth() = %d, want 2", dst.engine.Depth())
	}

	for line, want := range map[string]string{
		"GET q":    `"val2"`,
		"GET big":  `"0123456789"`,
		"GET p":    `Key "p" not found`,
		"GET junk": `Key "junk" not found`,
	} {
		if resp := dst.run(t, line); resp.Value != want {
			t.Errorf("%s = %q, want %q", line, resp.Value, want)
		}
	}

	dst.run(t, "POP")
	if resp := dst.run(t, "GET p"); resp.Value != `"val1"` {
		t.Errorf("GET p in base = %q, want \"val1\"", resp.Value)
	}
	if resp := dst.run(t, "GET q"); resp.Success {
		t.Errorf("GET q in base = %q, want not found", resp.Value)
	}
	if got := testutil.ToFloat64(dst.metrics.SyncCommands.WithLabelValues(metric.DirectionReceived)); got != 5 {
		t.Errorf("sync received = %v, want 5", got)
	}
}

func TestApplyState_PreservesTTL(t *testing.T) {
	src := newTestEnv(t, 1000)
	dst := newTestEnv(t, 1000)
	dst.d.Start()

	src.run(t, "SET k v 5")
	src.clock.Advance(2 * time.Second)

	var buf bytes.Buffer
	src.d.SendState(context.Background(), &buf)
	if _, err := dst.d.ApplyState(context.Background(), &buf); err != nil {
		t.Fatal(err)
	}

	dst.clock.Advance(2 * time.Second)
	time.Sleep(30 * time.Millisecond)
	if resp := dst.run(t, "GET k"); !resp.Success {
		t.Fatal("k expired before its remaining lifetime")
	}
	dst.clock.Advance(time.Second)
	ok := waitFor(t, func() bool {
		return errors.Is(dst.run(t, "GET k").Err, domain.ErrKeyNotFound)
	})
	if !ok {
		t.Error("k not reclaimed after its remaining lifetime")
	}
}

func TestApplyState_SkipsInvalidFrames(t *testing.T) {
	env := newTestEnv(t, 1000)

	var buf bytes.Buffer
	fw := frame.NewWriter(&buf)
	fw.WriteFrame([]byte("SET a 1 60"))
	fw.WriteFrame([]byte("BOGUS"))
	fw.WriteFrame([]byte("SET b 2 0"))
	fw.WriteFrame([]byte("SET c 3 60"))
	fw.WriteSentinel()

	n, err := env.d.ApplyState(context.Background(), &buf)
	if err != nil || n != 2 {
		t.Fatalf("ApplyState() = %d, %v; want 2, nil", n, err)
	}
}

func TestApplyState_Truncated(t *testing.T) {
	env := newTestEnv(t, 1000)
	env.d.Start()

	var buf bytes.Buffer
	frame.NewWriter(&buf).WriteFrame([]byte("SET a 1 60"))

	n, err := env.d.ApplyState(context.Background(), &buf)
	if err == nil {
		t.Fatal("ApplyState() without sentinel should fail")
	}
	if !errors.Is(err, io.EOF) {
		t.Errorf("ApplyState() error = %v, want io.EOF", err)
	}
	if n != 1 {
		t.Errorf("ApplyState() = %d, want 1", n)
	}
	if !env.d.Reclaimer().Running() {
		t.Error("reclaimer not resumed after failed ApplyState()")
	}
}
