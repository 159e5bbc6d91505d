package command

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/urfave/cli/v2"

	"github.com/layerkv/layerkv/internal/infra/confloader"
	"github.com/layerkv/layerkv/internal/server/config"
	"github.com/layerkv/layerkv/internal/telemetry/logger"
)

// configFlags maps command-line flags to configuration keys. Only flags
// given explicitly override the file and environment.
var configFlags = []struct {
	flag string
	key  string
}{
	{"capacity", "store.capacity_bytes"},
	{"poll-interval", "store.poll_interval"},
	{"temp-dir", "store.temp_dir"},
	{"engine", "overlay.engine"},
	{"sync-rate", "sync.max_rate_bytes_per_sec"},
	{"relay", "relay.addr"},
	{"listen", "relay.addr"},
	{"linger", "relay.linger"},
	{"metrics-addr", "metrics.addr"},
	{"log-level", "log.level"},
	{"log-format", "log.format"},
	{"log-output", "log.output"},
}

func flagOverrides(c *cli.Context) map[string]any {
	out := map[string]any{}
	for _, f := range configFlags {
		if c.IsSet(f.flag) {
			out[f.key] = c.Value(f.flag)
		}
	}
	return out
}

// loadConfig builds the configuration from defaults, the --config file,
// the environment and the flags of c, and verifies it.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()

	opts := []confloader.Option{confloader.WithFlags(flagOverrides(c))}
	if file := c.String("config"); file != "" {
		opts = append(opts, confloader.WithConfigFile(file))
	}
	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setupLogger opens the configured log output and installs the logger as
// the slog default.
func setupLogger(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	w, closer, err := logger.Open(cfg.Log.Output)
	if err != nil {
		return nil, nil, err
	}
	log := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: w,
	})
	slog.SetDefault(log)
	return log, closer, nil
}

// watchConfig reloads the log level whenever the configuration file
// changes.
func watchConfig(c *cli.Context, file string, log *slog.Logger) (*confloader.Watcher, error) {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}
	if err := w.Watch(file); err != nil {
		_ = w.Stop()
		return nil, err
	}
	w.OnChange(func(path string) {
		cfg, err := loadConfig(c)
		if err != nil {
			log.Warn("config reload failed, keeping current settings", "path", path, "error", err)
			return
		}
		logger.SetLevel(cfg.Log.Level)
		log.Info("configuration reloaded", "path", path, "log_level", logger.GetLevel())
	})
	w.StartAsync()
	return w, nil
}
