package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/truthlayer-systems/truthfeed/internal/handlers"
	"github.com/truthlayer-systems/truthfeed/internal/middleware"
)

// NewRouter constructs a ServeMux with the engine API routes registered.
func NewRouter(h *handlers.Handler) http.Handler {
	mux := http.NewServeMux()

	// Health check and metrics
	mux.HandleFunc("/healthz", h.HealthCheck)
	mux.Handle("/metrics", promhttp.Handler())

	// Feed API routes: events, rss, analytics, verify
	mux.HandleFunc("/api/v1/feeds/", h.Feeds)

	// Subscription API routes
	mux.HandleFunc("/api/v1/subscriptions", h.Subscriptions)
	mux.HandleFunc("/api/v1/subscriptions/", h.Subscriptions)

	// Subject API routes: trust-score, attestations, validations, integrity
	mux.HandleFunc("/api/v1/subjects/", h.Subjects)

	// Stream-mode websocket attach
	mux.HandleFunc("/ws/subscriptions/", h.StreamAttach)

	return middleware.RequestID(mux)
}
