// Package api implements the HTTP status surface: read-only state
// endpoints, the command dispatch endpoint, the WebSocket push upgrade,
// health, and Prometheus metrics.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/snapzone/snapzone/internal/metric"
)

// NewRouter creates the main HTTP router. push may be nil when the
// realtime channel is disabled.
func NewRouter(store StateReader, commands Dispatcher, push http.Handler, metrics *metric.Metrics) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware)
	r.Use(middleware.CleanPath)

	h := &Handlers{store: store, commands: commands, metrics: metrics}

	r.Get("/healthz", h.health)

	r.Get("/api/state", h.getState)
	r.Get("/api/zones", h.getZones)
	r.Get("/api/zones/{index}", h.getZone)
	r.Get("/api/clients", h.getClients)
	r.Get("/api/clients/{index}", h.getClient)
	r.Post("/api/command/{op}", h.postCommand)

	if push != nil {
		r.Get("/ws", push.ServeHTTP)
	}
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	return r
}

// corsMiddleware adds permissive CORS headers for local network access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
