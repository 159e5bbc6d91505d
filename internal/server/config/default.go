package config

import (
	"time"

	"github.com/layerkv/layerkv/internal/storage/overlay"
)

// Default configuration values.
const (
	DefaultCapacityBytes = 1000
	DefaultPollInterval  = time.Second
	DefaultTempDir       = "./temp"

	DefaultOverlayEngine    = overlay.EngineFile
	DefaultBadgerGCInterval = 5 * time.Minute

	DefaultRelayAddr = "127.0.0.1:7070"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
	DefaultLogOutput = "stderr"
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Store: StoreSection{
			CapacityBytes: DefaultCapacityBytes,
			PollInterval:  DefaultPollInterval,
			TempDir:       DefaultTempDir,
		},
		Overlay: OverlaySection{
			Engine:           DefaultOverlayEngine,
			BadgerGCInterval: DefaultBadgerGCInterval,
		},
		Relay: RelaySection{
			Addr: DefaultRelayAddr,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
			Output: DefaultLogOutput,
		},
	}
}
