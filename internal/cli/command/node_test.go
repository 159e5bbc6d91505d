package command

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/layerkv/layerkv/internal/cli/repl"
	"github.com/layerkv/layerkv/internal/server/config"
	"github.com/layerkv/layerkv/internal/server/peer"
	"github.com/layerkv/layerkv/internal/telemetry/logger"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func testConfig(t *testing.T, relayAddr string) *config.Config {
	cfg := config.Default()
	cfg.Store.TempDir = t.TempDir()
	cfg.Store.PollInterval = 10 * time.Millisecond
	cfg.Relay.Addr = relayAddr
	return cfg
}

func startNode(t *testing.T, ctx context.Context, cfg *config.Config) (*node, *lockedBuffer) {
	t.Helper()
	out := &lockedBuffer{}
	n, err := newNode(logger.WithLogger(ctx, logger.Discard()), cfg, repl.NewConsole(out))
	if err != nil {
		t.Fatalf("newNode() error = %v", err)
	}
	if err := n.attach(ctx, false, ""); err != nil {
		t.Fatalf("attach() error = %v", err)
	}
	n.dispatcher.Start()
	return n, out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNode_BootstrapAndPropagate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addr := freeAddr(t)

	cfgA := testConfig(t, addr)
	a, _ := startNode(t, ctx, cfgA)
	if a.relay == nil {
		t.Fatal("first node should start the relay")
	}

	cfgB := testConfig(t, addr)
	b, outB := startNode(t, ctx, cfgB)
	if b.relay != nil {
		t.Fatal("second node should join the existing relay")
	}
	waitFor(t, "both peers registered", func() bool { return a.relay.PeerCount() == 2 })

	if res := a.dispatcher.DispatchLine(ctx, "SET k v 100", true); !res.Success {
		t.Fatalf("SET failed: %s", res.Value)
	}
	waitFor(t, "propagated SET", func() bool { return strings.Contains(outB.String(), `"k" = "v"`) })

	if res := b.dispatcher.DispatchLine(ctx, "GET k", false); res.Value != `"v"` {
		t.Errorf("GET on peer = %q, want \"v\"", res.Value)
	}

	st := a.status()
	if !st.Connected || st.Engine != "file" || st.Relay != addr || st.Depth != 1 || st.MemoryBytes != 2 {
		t.Errorf("status() = %+v", st)
	}

	if err := b.close(ctx); err != nil {
		t.Errorf("close(b) error = %v", err)
	}
	if err := a.close(ctx); err != nil {
		t.Errorf("close(a) error = %v", err)
	}
	for _, dir := range []string{cfgA.Store.TempDir, cfgB.Store.TempDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 0 {
			t.Errorf("%s holds %d overlay objects after close", dir, len(entries))
		}
	}
	waitFor(t, "session end", func() bool { return !a.connected() })
}

func TestNode_Sync(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addr := freeAddr(t)

	a, _ := startNode(t, ctx, testConfig(t, addr))
	defer a.close(ctx)

	if _, err := a.session.Sync(ctx); !errors.Is(err, peer.ErrNoPeer) {
		t.Fatalf("Sync() alone error = %v, want ErrNoPeer", err)
	}

	for _, line := range []string{"SET p val1 30", "PUSH", "SET q val2 30"} {
		a.dispatcher.DispatchLine(ctx, line, false)
	}

	b, outB := startNode(t, ctx, testConfig(t, addr))
	defer b.close(ctx)
	waitFor(t, "both peers registered", func() bool { return a.relay.PeerCount() == 2 })

	n, err := b.session.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Sync() applied %d commands, want 3", n)
	}
	if !strings.Contains(outB.String(), repl.MsgSyncing) {
		t.Errorf("sync start not announced, output %q", outB.String())
	}
	if got := b.status().Depth; got != 2 {
		t.Errorf("stack depth after sync = %d, want 2", got)
	}
}

func TestDialRelay_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if _, err := dialRelay(ctx, freeAddr(t), nil, peer.Config{}); err == nil {
		t.Error("dialRelay() to a closed port should fail")
	}
}
