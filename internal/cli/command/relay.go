package command

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/layerkv/layerkv/internal/infra/shutdown"
	"github.com/layerkv/layerkv/internal/server/relayserver"
)

// RelayCommand returns the relay command.
func RelayCommand() *cli.Command {
	return &cli.Command{
		Name:  "relay",
		Usage: "Serve the relay that connects store processes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "listen",
				Aliases: []string{"l"},
				Usage:   "Listen address, host:port",
			},
			&cli.BoolFlag{
				Name:  "linger",
				Usage: "Keep running after the last peer leaves",
			},
			&cli.IntFlag{
				Name:   "listen-fd",
				Usage:  "Serve on an inherited listening socket",
				Hidden: true,
			},
		},
		Action: relayAction,
	}
}

func relayAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log, logCloser, err := setupLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logCloser.Close()

	srv := relayserver.New(&relayserver.Config{
		Address: cfg.Relay.Addr,
		Linger:  cfg.Relay.Linger,
	}, log.With("component", "relay"))

	if fd := c.Int("listen-fd"); fd > 0 {
		ln, err := inheritedListener(fd)
		if err != nil {
			return err
		}
		srv.SetListener(ln)
	} else if err := srv.Listen(); err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Relay.Addr, err)
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	h := shutdown.NewHandler(shutdownTimeout)
	h.OnShutdown(srv.Shutdown)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ctx)
		cancel()
	}()

	if err := h.Wait(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-serveErr
}

func inheritedListener(fd int) (net.Listener, error) {
	f := os.NewFile(uintptr(fd), "relay-listener")
	if f == nil {
		return nil, fmt.Errorf("invalid listener fd %d", fd)
	}
	defer f.Close()

	ln, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("inherit listener fd %d: %w", fd, err)
	}
	return ln, nil
}
