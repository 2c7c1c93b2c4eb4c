package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"spool/internal/bus"
	"spool/internal/config"
	"spool/internal/logging"
	"spool/internal/queue"
)

// QueueController is the scheduler surface the API depends on.
type QueueController interface {
	Pause()
	Resume(ctx context.Context)
	Paused() bool
	Cancel(itemID string) bool
	RunOnce(ctx context.Context)
}

// AuthController is the authorization dialogue surface the API depends on.
type AuthController interface {
	Begin(ctx context.Context, accountName string) (string, error)
	Complete(ctx context.Context, responseURL string) (string, error)
	Cancel() bool
	Locked() bool
}

// Server serves the control API.
type Server struct {
	cfg    *config.Config
	store  *queue.Store
	bus    *bus.Bus
	queue  QueueController
	auth   AuthController
	logger *slog.Logger

	httpServer *http.Server
}

// New assembles the API server.
func New(cfg *config.Config, store *queue.Store, eventBus *bus.Bus, queueCtl QueueController, authCtl AuthController, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Server{
		cfg:    cfg,
		store:  store,
		bus:    eventBus,
		queue:  queueCtl,
		auth:   authCtl,
		logger: logger.With(logging.String(logging.FieldComponent, "httpapi")),
	}
}

// Routes builds the router. Exposed separately so tests can drive the
// handlers without a listener.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/events", s.handleEvents)

		r.Post("/scheduler/pause", s.handlePause)
		r.Post("/scheduler/resume", s.handleResume)

		r.Route("/queue", func(r chi.Router) {
			r.Get("/", s.handleListJobs)
			r.Post("/", s.handleEnqueue)
			r.Route("/{jobID}", func(r chi.Router) {
				r.Get("/", s.handleGetJob)
				r.Delete("/", s.handleDismiss)
				r.Post("/retry", s.handleRetry)
			})
		})

		r.Post("/items/{itemID}/cancel", s.handleCancelItem)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/", s.handleAuthBegin)
			r.Post("/response", s.handleAuthComplete)
			r.Delete("/", s.handleAuthCancel)
		})

		r.Get("/accounts", s.handleListAccounts)
	})

	return r
}

// Start binds the configured address and serves until the context ends.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Paths.APIBind)
	if err != nil {
		return err
	}
	s.httpServer = &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("api listening", logging.String("addr", listener.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.Serve(listener) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
