package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/layerkv/layerkv/internal/cli/repl"
	"github.com/layerkv/layerkv/internal/infra/shutdown"
	"github.com/layerkv/layerkv/internal/server/config"
	"github.com/layerkv/layerkv/internal/server/httpserver"
	"github.com/layerkv/layerkv/internal/server/peer"
	"github.com/layerkv/layerkv/internal/telemetry/logger"
)

// RunCommand returns the run command.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:   "run",
		Usage:  "Open a store, join the relay and read commands from stdin",
		Flags:  runFlags(),
		Action: runAction,
	}
}

func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:  "capacity",
			Usage: "Memory tier budget in bytes",
		},
		&cli.DurationFlag{
			Name:  "poll-interval",
			Usage: "TTL reclaimer poll interval",
		},
		&cli.StringFlag{
			Name:  "temp-dir",
			Usage: "Directory holding the overlay objects",
		},
		&cli.StringFlag{
			Name:  "engine",
			Usage: "Overlay engine: file, badger",
		},
		&cli.IntFlag{
			Name:  "sync-rate",
			Usage: "Outgoing state transfer limit in bytes per second (0: unlimited)",
		},
		&cli.StringFlag{
			Name:    "relay",
			Aliases: []string{"r"},
			Usage:   "Relay address, host:port",
		},
		&cli.BoolFlag{
			Name:  "linger",
			Usage: "Keep a relay started by this process running after the last peer leaves",
		},
		&cli.StringFlag{
			Name:  "metrics-addr",
			Usage: "Serve /health, /status and /metrics on this address",
		},
		&cli.BoolFlag{
			Name:  "no-spawn",
			Usage: "Run a relay started by this process in-process instead of detaching it",
		},
	}
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log, logCloser, err := setupLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	h := shutdown.NewHandler(shutdownTimeout)
	h.OnShutdown(func(context.Context) error { return logCloser.Close() })

	log.Debug("configuration loaded", "config", config.Sanitize(cfg))

	ctx, cancel := context.WithCancel(logger.WithLogger(c.Context, log))
	defer cancel()

	console := repl.NewConsole(c.App.Writer)
	n, err := newNode(ctx, cfg, console)
	if err != nil {
		_ = h.Shutdown()
		return err
	}
	h.OnShutdown(n.close)

	if err := n.attach(ctx, !c.Bool("no-spawn"), c.String("config")); err != nil {
		_ = h.Shutdown()
		return err
	}
	n.dispatcher.Start()

	if cfg.Metrics.Addr != "" {
		srv := httpserver.New(cfg.Metrics.Addr, httpserver.NewRouter(&httpserver.RouterConfig{
			Metrics: n.metrics,
			Status:  n.status,
			Logger:  log.With("component", "http"),
		}), log)
		if err := srv.Listen(); err != nil {
			_ = h.Shutdown()
			return fmt.Errorf("listen %s: %w", cfg.Metrics.Addr, err)
		}
		go func() {
			if err := srv.Serve(); err != nil {
				log.Error("ops server failed", "error", err)
			}
		}()
		h.OnShutdown(srv.Shutdown)
	}

	if file := c.String("config"); file != "" {
		w, err := watchConfig(c, file, log)
		if err != nil {
			log.Warn("config watch disabled", "path", file, "error", err)
		} else {
			h.OnShutdown(func(context.Context) error { return w.Stop() })
		}
	}

	history := repl.NewHistory(repl.DefaultHistoryFile())
	if err := history.Load(); err != nil {
		log.Warn("cannot load command history", "error", err)
	}
	h.OnShutdown(func(context.Context) error { return history.Save() })

	log.Info("store ready",
		"instance", n.engine.InstanceID(),
		"capacity_bytes", cfg.Store.CapacityBytes,
		"overlay_engine", cfg.Overlay.Engine,
		"relay", cfg.Relay.Addr)

	r := repl.New(repl.Config{
		In:         c.App.Reader,
		Out:        console,
		Dispatcher: n.dispatcher,
		Syncer:     n.session,
		NoPeer:     func(err error) bool { return errors.Is(err, peer.ErrNoPeer) },
		History:    history,
		Logger:     log,
	})

	replCtx, stopREPL := context.WithCancel(ctx)
	defer stopREPL()
	replErr := make(chan error, 1)
	go func() {
		replErr <- r.Run(replCtx)
		stopREPL()
	}()

	// Returns on SIGINT/SIGTERM or when the REPL ends.
	shutdownErr := h.Wait(replCtx)
	stopREPL()
	if err := <-replErr; err != nil {
		return fmt.Errorf("read commands: %w", err)
	}
	if shutdownErr != nil {
		return fmt.Errorf("shutdown: %w", shutdownErr)
	}
	return nil
}
