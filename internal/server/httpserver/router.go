package httpserver

import (
	"log/slog"
	"net/http"
)

// RouterConfig holds the handlers behind each route.
type RouterConfig struct {
	// Metrics serves GET /metrics when set.
	Metrics http.Handler

	// Hub serves GET /watch when set.
	Hub *Hub

	// Health reports readiness for GET /healthz. Nil means always healthy.
	Health func() error

	Logger *slog.Logger
}

// NewRouter builds the handler for cfg.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"status": "ok"}
		if cfg.Hub != nil {
			body["clients"] = cfg.Hub.Clients()
		}
		if cfg.Health != nil {
			if err := cfg.Health(); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, body)
	})
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}
	if cfg.Hub != nil {
		mux.Handle("GET /watch", cfg.Hub)
	}

	return Chain(mux, Recover(log), RequestID())
}
