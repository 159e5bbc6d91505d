package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/layerkv/layerkv/internal/core/service"
	"github.com/layerkv/layerkv/internal/infra/buildinfo"
	"github.com/layerkv/layerkv/internal/telemetry/metric"
)

// Status is the body of GET /status.
type Status struct {
	service.StoreStatus

	InstanceID string `json:"instance_id"`
	Engine     string `json:"overlay_engine"`
	Relay      string `json:"relay"`
	Connected  bool   `json:"connected"`
	Version    string `json:"version"`
}

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// Metrics is exposed on /metrics when set.
	Metrics *metric.Registry

	// Status reports the process status. Required.
	Status func() Status

	// Logger for request logging.
	Logger *slog.Logger
}

// NewRouter creates the ops router.
func NewRouter(cfg *RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		st := cfg.Status()
		if st.Version == "" {
			st.Version = buildinfo.Get().Version
		}
		writeJSON(w, http.StatusOK, st)
	})
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics.Handler())
	}

	return Chain(mux, RequestID(), AccessLog(logger), Recover(logger))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
