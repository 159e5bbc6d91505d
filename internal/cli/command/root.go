package command

import (
	"fmt"
	"io"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/layerkv/layerkv/internal/cli/output"
	"github.com/layerkv/layerkv/internal/infra/buildinfo"
)

// shutdownTimeout bounds the shutdown hooks of run and relay.
const shutdownTimeout = 10 * time.Second

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:           "layerkv",
		Usage:          "Layered key-value store with snapshots and peer sync",
		Version:        buildinfo.String(),
		Flags:          globalFlags(),
		DefaultCommand: "run",
		Commands: []*cli.Command{
			RunCommand(),
			RelayCommand(),
			StatusCommand(),
			VersionCommand(),
		},
	}
}

// globalFlags returns the flags shared by every command.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to a YAML configuration file",
			EnvVars: []string{"LAYERKV_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "Log format: text, json",
		},
		&cli.StringFlag{
			Name:  "log-output",
			Usage: "Log destination: stderr, stdout or a file path",
		},
	}
}

func outputFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "Output format: table, json, yaml",
		Value:   string(output.FormatTable),
	}
}

// VersionCommand returns the version command.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print build information",
		Flags: []cli.Flag{outputFlag()},
		Action: func(c *cli.Context) error {
			format, err := output.ParseFormat(c.String("output"))
			if err != nil {
				return err
			}
			if format == output.FormatTable {
				_, err := fmt.Fprintf(c.App.Writer, "layerkv %s\n", buildinfo.String())
				return err
			}
			return output.NewFormatter(format).Format(c.App.Writer, buildinfo.Get())
		},
	}
}

// PrintError prints an error the way main reports fatal errors.
func PrintError(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %v\n", err)
}
