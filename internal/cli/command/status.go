package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/layerkv/layerkv/internal/cli/connection"
	"github.com/layerkv/layerkv/internal/cli/output"
	"github.com/layerkv/layerkv/internal/server/httpserver"
)

// StatusCommand returns the status command.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the status of a running store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Aliases: []string{"a"},
				Usage:   "Ops endpoint address (default: metrics.addr)",
			},
			outputFlag(),
		},
		Action: statusAction,
	}
}

func statusAction(c *cli.Context) error {
	format, err := output.ParseFormat(c.String("output"))
	if err != nil {
		return err
	}

	addr := c.String("addr")
	if addr == "" {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		addr = cfg.Metrics.Addr
	}
	if addr == "" {
		return errors.New("no ops endpoint: pass --addr or set metrics.addr")
	}

	ctx, cancel := context.WithTimeout(c.Context, connection.DefaultTimeout)
	defer cancel()

	var st httpserver.Status
	if err := connection.NewHTTPClient(addr, 0).GetJSON(ctx, "/status", &st); err != nil {
		return fmt.Errorf("query %s: %w", addr, err)
	}
	return output.NewFormatter(format).Format(c.App.Writer, st)
}
