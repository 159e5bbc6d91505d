package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/layerkv/layerkv/internal/storage/overlay"
)

// Verify validates the configuration and creates the overlay directory.
// Every problem found is reported.
func Verify(cfg *Config) error {
	var errs []error
	errs = append(errs, verifyStore(&cfg.Store)...)
	errs = append(errs, verifyOverlay(&cfg.Overlay)...)
	if cfg.Sync.MaxRateBytesPerSec < 0 {
		errs = append(errs, errors.New("sync.max_rate_bytes_per_sec must not be negative"))
	}
	if err := verifyAddr("relay.addr", cfg.Relay.Addr, true); err != nil {
		errs = append(errs, err)
	}
	if err := verifyAddr("metrics.addr", cfg.Metrics.Addr, false); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "json", "text", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be json or text", cfg.Log.Format))
	}
	return errors.Join(errs...)
}

func verifyStore(cfg *StoreSection) []error {
	var errs []error
	if cfg.CapacityBytes < 0 {
		errs = append(errs, errors.New("store.capacity_bytes must not be negative"))
	}
	if cfg.PollInterval <= 0 {
		errs = append(errs, errors.New("store.poll_interval must be positive"))
	}
	if cfg.TempDir == "" {
		errs = append(errs, errors.New("store.temp_dir is required"))
	} else if err := os.MkdirAll(cfg.TempDir, 0o750); err != nil {
		errs = append(errs, fmt.Errorf("cannot create temp directory: %w", err))
	}
	return errs
}

func verifyOverlay(cfg *OverlaySection) []error {
	var errs []error
	if cfg.Engine != overlay.EngineFile && cfg.Engine != overlay.EngineBadger {
		errs = append(errs, fmt.Errorf("overlay.engine %q must be %s or %s", cfg.Engine, overlay.EngineFile, overlay.EngineBadger))
	}
	if cfg.BadgerGCInterval < 0 {
		errs = append(errs, errors.New("overlay.badger_gc_interval must not be negative"))
	}
	return errs
}

func verifyAddr(field, addr string, required bool) error {
	if addr == "" {
		if required {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	return nil
}
