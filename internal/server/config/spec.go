package config

import "time"

// Config is the root configuration of a layerkv process.
type Config struct {
	Store   StoreSection   `koanf:"store"`
	Overlay OverlaySection `koanf:"overlay"`
	Sync    SyncSection    `koanf:"sync"`
	Relay   RelaySection   `koanf:"relay"`
	Metrics MetricsSection `koanf:"metrics"`
	Log     LogSection     `koanf:"log"`
}

// StoreSection configures the layered store.
type StoreSection struct {
	// CapacityBytes is the memory tier budget of every layer. Zero keeps
	// every entry in the overlay.
	CapacityBytes int64 `koanf:"capacity_bytes"`

	// PollInterval is the TTL reclaimer poll interval.
	PollInterval time.Duration `koanf:"poll_interval"`

	// TempDir holds the overlay objects.
	TempDir string `koanf:"temp_dir"`
}

// OverlaySection configures the on-disk tier.
type OverlaySection struct {
	// Engine is "file" or "badger".
	Engine string `koanf:"engine"`

	// EncryptionKey seals overlay values at rest when set.
	EncryptionKey string `koanf:"encryption_key"`

	// BadgerGCInterval is the value-log GC interval of badger overlays.
	BadgerGCInterval time.Duration `koanf:"badger_gc_interval"`
}

// SyncSection configures full-state sync.
type SyncSection struct {
	// MaxRateBytesPerSec limits outgoing state transfers. Zero disables it.
	MaxRateBytesPerSec int `koanf:"max_rate_bytes_per_sec"`
}

// RelaySection configures the relay.
type RelaySection struct {
	Addr string `koanf:"addr"`

	// Linger keeps the relay running after the last peer leaves.
	Linger bool `koanf:"linger"`
}

// MetricsSection configures the ops HTTP endpoint.
type MetricsSection struct {
	// Addr serves /metrics and /health when non-empty.
	Addr string `koanf:"addr"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`

	// Output is "stderr", "stdout" or a file path.
	Output string `koanf:"output"`
}
