package server

import (
	"log/slog"
	"net/http"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
	// APIKeys maps caller API keys to owner ids.
	APIKeys map[string]string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing. Everything except the
// health check sits behind the auth middleware.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /jobs", h.CreateJob)
	api.HandleFunc("GET /jobs", h.ListJobs)
	api.HandleFunc("GET /jobs/{id}/status", h.GetJobStatus)
	api.HandleFunc("POST /jobs/{id}/cancel", h.CancelJob)
	api.HandleFunc("GET /clips", h.ListClips)
	api.HandleFunc("GET /metadata", h.GetMetadata)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("/", AuthMiddleware(cfg.APIKeys)(api))

	// Apply middleware chain
	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
