package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/layerkv/layerkv/internal/cli/repl"
	"github.com/layerkv/layerkv/internal/core/service"
	"github.com/layerkv/layerkv/internal/infra/buildinfo"
	"github.com/layerkv/layerkv/internal/server/config"
	"github.com/layerkv/layerkv/internal/server/httpserver"
	"github.com/layerkv/layerkv/internal/server/peer"
	"github.com/layerkv/layerkv/internal/server/relayserver"
	"github.com/layerkv/layerkv/internal/storage"
	"github.com/layerkv/layerkv/internal/storage/overlay"
	"github.com/layerkv/layerkv/internal/telemetry/logger"
	"github.com/layerkv/layerkv/internal/telemetry/metric"
)

// dialTimeout bounds the wait for a freshly started relay.
const dialTimeout = 5 * time.Second

// node is one store process: the store, its dispatcher and its relay
// session.
type node struct {
	cfg     *config.Config
	logger  *slog.Logger
	console *repl.Console

	metrics    *metric.Registry
	factory    *overlay.Factory
	engine     *storage.Engine
	dispatcher *service.Dispatcher

	session *peer.Session
	relay   *relayserver.Server
}

// newNode opens the store, logging to the logger carried by ctx. The
// reclaimer is not started.
func newNode(ctx context.Context, cfg *config.Config, console *repl.Console) (*node, error) {
	log := logger.FromContext(ctx)

	var sealer *overlay.Sealer
	if cfg.Overlay.EncryptionKey != "" {
		s, err := overlay.NewSealer(cfg.Overlay.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("init overlay sealing: %w", err)
		}
		sealer = s
	}

	factory, err := overlay.NewFactory(overlay.Config{
		Engine:           cfg.Overlay.Engine,
		Dir:              cfg.Store.TempDir,
		Sealer:           sealer,
		BadgerGCInterval: cfg.Overlay.BadgerGCInterval,
		Logger:           log.With("component", "overlay"),
	})
	if err != nil {
		return nil, fmt.Errorf("init overlay: %w", err)
	}

	engine, err := storage.New(ctx, storage.Config{
		CapacityBytes: cfg.Store.CapacityBytes,
		Overlay:       factory,
		Logger:        log.With("component", "storage"),
	})
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	metrics := metric.NewRegistry()
	stats := engine.Stats()
	metrics.MustRegister(metric.NewCollector().
		Counter("overlay_writes_total", "Entries written to the overlay tier", stats.OverlayWrites.Load).
		Counter("promotions_total", "Overlay entries promoted back into memory on GET", stats.Promotions.Load))

	d, err := service.NewDispatcher(service.Config{
		Store:         engine,
		PollInterval:  cfg.Store.PollInterval,
		Notify:        console,
		SyncRateBytes: cfg.Sync.MaxRateBytesPerSec,
		Metrics:       metrics,
		Logger:        log.With("component", "dispatcher"),
	})
	if err != nil {
		_ = engine.Close()
		return nil, err
	}

	return &node{
		cfg:        cfg,
		logger:     log,
		console:    console,
		metrics:    metrics,
		factory:    factory,
		engine:     engine,
		dispatcher: d,
	}, nil
}

// attach joins the relay at relay.addr, starting one first when the
// address is free. With spawn the relay runs as a detached process that
// outlives this one; otherwise, or where spawning is unsupported, it runs
// inside this process.
func (n *node) attach(ctx context.Context, spawn bool, configFile string) error {
	addr := n.cfg.Relay.Addr
	if ln, err := net.Listen("tcp", addr); err == nil {
		n.logger.Info("no relay running, starting one", "address", addr, "detached", spawn)
		if err := n.startRelay(ln, spawn, configFile); err != nil {
			return err
		}
	} else {
		n.logger.Debug("relay address in use, joining", "address", addr, "error", err)
	}

	s, err := dialRelay(ctx, addr, n.dispatcher, peer.Config{
		Output:      n.console,
		OnSyncStart: func() { n.console.Println(repl.MsgSyncing) },
		Logger:      n.logger.With("component", "peer"),
	})
	if err != nil {
		return err
	}
	n.session = s
	n.dispatcher.SetPropagator(s)

	go func() {
		if err := s.Run(ctx); err != nil {
			n.logger.Error("relay session failed", "error", err)
		}
		n.dispatcher.SetPropagator(nil)
		if ctx.Err() == nil {
			n.logger.Warn("disconnected from relay, continuing without peers")
		}
	}()
	n.logger.Info("joined relay", "address", addr)
	return nil
}

func (n *node) startRelay(ln net.Listener, spawn bool, configFile string) error {
	if spawn {
		err := spawnRelay(ln, n.cfg.Relay, configFile)
		if err == nil {
			// The child holds its own copy of the socket.
			return ln.Close()
		}
		if !errors.Is(err, errSpawnUnsupported) {
			_ = ln.Close()
			return fmt.Errorf("start relay: %w", err)
		}
		n.logger.Warn("cannot detach relay on this platform, running it in-process")
	}

	srv := relayserver.New(&relayserver.Config{
		Address: n.cfg.Relay.Addr,
		Linger:  n.cfg.Relay.Linger,
	}, n.logger.With("component", "relay"))
	srv.SetListener(ln)
	go func() {
		if err := srv.Serve(context.Background()); err != nil {
			n.logger.Error("relay failed", "error", err)
		}
	}()
	n.relay = srv
	return nil
}

// dialRelay connects to addr, retrying until dialTimeout while a relay
// that was just started comes up.
func dialRelay(ctx context.Context, addr string, d peer.Dispatcher, cfg peer.Config) (*peer.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	for {
		s, err := peer.Dial(ctx, addr, d, cfg)
		if err == nil {
			return s, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connect to relay: %w", err)
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (n *node) connected() bool {
	if n.session == nil {
		return false
	}
	select {
	case <-n.session.Done():
		return false
	default:
		return true
	}
}

// status reports the node for GET /status.
func (n *node) status() httpserver.Status {
	return httpserver.Status{
		StoreStatus: n.dispatcher.Status(),
		InstanceID:  n.engine.InstanceID(),
		Engine:      n.factory.Engine(),
		Relay:       n.cfg.Relay.Addr,
		Connected:   n.connected(),
		Version:     buildinfo.Get().Version,
	}
}

// close leaves the relay, stops the reclaimer and removes every overlay
// object.
func (n *node) close(ctx context.Context) error {
	var errs []error
	if n.session != nil {
		n.dispatcher.SetPropagator(nil)
		if err := n.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close session: %w", err))
		}
	}
	if err := n.dispatcher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	if n.relay != nil {
		if err := n.relay.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop relay: %w", err))
		}
	}
	return errors.Join(errs...)
}
