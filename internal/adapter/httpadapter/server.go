package httpadapter

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/quake-alert-service/internal/domain"
	"github.com/couchcryptid/quake-alert-service/internal/pipeline"
)

// Admin runs the operator-triggered pipeline passes.
type Admin interface {
	Renotify(ctx context.Context) (pipeline.Report, error)
	Seed(ctx context.Context, event domain.Event) error
}

// SubscriberRegistrar stores subscriber registrations.
type SubscriberRegistrar interface {
	UpsertSubscriber(ctx context.Context, sub domain.Subscriber) error
}

// Server exposes health, readiness, metrics, admin, and registration endpoints.
type Server struct {
	httpServer *http.Server
	admin      Admin
	registrar  SubscriberRegistrar
	now        func() time.Time
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics, /users,
// and /admin routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, admin Admin, registrar SubscriberRegistrar, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		admin:     admin,
		registrar: registrar,
		now:       time.Now,
		logger:    logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /users", s.handleRegister)
	mux.HandleFunc("POST /admin/renotify", s.handleRenotify)
	mux.HandleFunc("POST /admin/seed", s.handleSeed)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
