package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	ballothandler "github.com/cyvote/backend-cyvote-sub001/internal/ballot/handler"
	credentialhandler "github.com/cyvote/backend-cyvote-sub001/internal/credential/handler"
	handshakehandler "github.com/cyvote/backend-cyvote-sub001/internal/handshake/handler"
	"github.com/cyvote/backend-cyvote-sub001/internal/platform/metrics"
	"github.com/cyvote/backend-cyvote-sub001/internal/platform/middleware"
	"github.com/cyvote/backend-cyvote-sub001/internal/transport/http/shared"
)

// healthChecker reports readiness of an external collaborator.
type healthChecker interface {
	Health(ctx context.Context) error
}

// newRouter assembles the HTTP surface: public handshake, authenticated
// ballot, token-guarded admin, plus health and metrics.
func newRouter(
	logger *slog.Logger,
	m *metrics.Metrics,
	handshake *handshakehandler.Handler,
	ballot *ballothandler.Handler,
	admin *credentialhandler.Handler,
	health map[string]healthChecker,
) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Device)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.ContentTypeJSON)
	r.Use(middleware.Latency(m))

	handshake.Register(r)
	ballot.Register(r)
	admin.Register(r)

	r.Get("/healthz", handleHealth(health))
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func handleHealth(checkers map[string]healthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		detail := make(map[string]string, len(checkers)+1)
		detail["status"] = "ok"
		for name, c := range checkers {
			if err := c.Health(ctx); err != nil {
				status = http.StatusServiceUnavailable
				detail["status"] = "degraded"
				detail[name] = err.Error()
			} else {
				detail[name] = "ok"
			}
		}
		shared.WriteJSON(w, status, detail)
	}
}
