// Package overlay provides the persistent cold tier of a store layer.
//
// Each layer of the snapshot stack owns exactly one overlay object: an
// on-disk key→value mapping holding the entries that did not fit into the
// layer's memory budget. Overlays are scratch space; they are created with
// their layer and removed with it.
//
// Two backends are available:
//
//   - file: one JSON document per layer, rewritten as a whole on every
//     mutation (read-modify-rewrite).
//   - badger: one Badger v3 directory per layer.
//
// Both can seal their values at rest with a Sealer.
package overlay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Engine names.
const (
	EngineFile   = "file"
	EngineBadger = "badger"
)

// ErrClosed is returned by operations on a removed overlay.
var ErrClosed = errors.New("overlay: closed")

// ErrInvalidUTF8 is returned by the file backend for keys or values it cannot
// encode without loss.
var ErrInvalidUTF8 = errors.New("overlay: key or value is not valid UTF-8")

// Store is one layer's overlay object.
type Store interface {
	// Name returns the object name (file or directory base name).
	Name() string

	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)

	// Put stores key=value, replacing any previous value.
	Put(ctx context.Context, key, value string) error

	// Delete removes key and reports whether it was present.
	Delete(ctx context.Context, key string) (bool, error)

	// All loads the whole mapping.
	All(ctx context.Context) (map[string]string, error)

	// Remove closes the overlay and deletes its on-disk object.
	Remove() error
}

// Config configures overlay creation.
type Config struct {
	// Engine selects the backend ("file" or "badger").
	Engine string

	// Dir is the directory holding every overlay object.
	Dir string

	// Sealer optionally encrypts values at rest.
	Sealer *Sealer

	// BadgerGCInterval is the value-log GC interval of badger overlays.
	// Zero disables the GC loop.
	BadgerGCInterval time.Duration

	// Logger is the structured logger.
	Logger *slog.Logger
}

// Factory creates overlay objects of the configured engine.
type Factory struct {
	cfg Config
}

// NewFactory validates cfg and ensures the overlay directory exists.
func NewFactory(cfg Config) (*Factory, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("overlay: dir is required")
	}
	if cfg.Engine == "" {
		cfg.Engine = EngineFile
	}
	if cfg.Engine != EngineFile && cfg.Engine != EngineBadger {
		return nil, fmt.Errorf("overlay: unknown engine %q", cfg.Engine)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("overlay: create dir: %w", err)
	}
	return &Factory{cfg: cfg}, nil
}

// Engine returns the configured backend name.
func (f *Factory) Engine() string {
	return f.cfg.Engine
}

// Dir returns the overlay directory.
func (f *Factory) Dir() string {
	return f.cfg.Dir
}

// Create creates the overlay object called name, seeded with seed.
// An existing object of the same name is replaced.
func (f *Factory) Create(ctx context.Context, name string, seed map[string]string) (Store, error) {
	switch f.cfg.Engine {
	case EngineBadger:
		return openBadger(ctx, f.cfg, name, seed)
	default:
		return createFile(f.cfg, name, seed)
	}
}
