package observability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"docsync/internal/docsync"
)

// HealthFunc reports the engine's current state for /healthz.
type HealthFunc func(ctx context.Context) Health

// Health is the /healthz response body.
type Health struct {
	Status    string     `json:"status"`
	State     string     `json:"state"`
	LastCycle *LastCycle `json:"last_cycle,omitempty"`
}

// LastCycle summarizes the most recent finished cycle.
type LastCycle struct {
	Generation string    `json:"generation"`
	Status     string    `json:"status"`
	FinishedAt time.Time `json:"finished_at"`
	Failed     int       `json:"failed"`
}

// Server exposes /metrics and /healthz.
type Server struct {
	srv    *http.Server
	logger docsync.Logger
}

func NewServer(listen string, metrics *Metrics, health HealthFunc, logger docsync.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              listen,
			Handler:           Routes(metrics, health),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Routes builds the HTTP handler.
func Routes(metrics *Metrics, health HealthFunc) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		h := Health{Status: "ok"}
		if health != nil {
			h = health(r.Context())
		}
		w.Header().Set("Content-Type", "application/json")
		if h.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(h)
	})

	if metrics != nil {
		r.Get("/metrics", metrics.Handler().ServeHTTP)
	}
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.srv.Addr, err)
	}
	s.logger.Info("metrics server listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down metrics server: %w", err)
		}
		return nil
	}
}
