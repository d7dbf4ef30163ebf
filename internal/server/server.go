package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mallhunt/treasurehunt/internal/device"
	"github.com/mallhunt/treasurehunt/internal/photo"
	"github.com/mallhunt/treasurehunt/internal/progress"
	"github.com/mallhunt/treasurehunt/internal/telemetry"
)

// Deps are the collaborators the HTTP layer is built from.
type Deps struct {
	Store         Store
	Engine        *progress.Engine
	Tokens        *TokenIssuer
	Photos        PhotoStore
	Devices       *device.Cache
	Guard         SubmitGuard
	Metrics       *telemetry.Metrics
	PhotoMaxBytes int64
	SPADir        string
}

type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// New builds the HTTP server. mount receives the router before the API
// routes are added, for infrastructure endpoints such as /healthz.
func New(addr string, logger *slog.Logger, deps Deps, mount func(r chi.Router)) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewHandler(logger, deps, mount),
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler returns the routed handler without a listener.
func NewHandler(logger *slog.Logger, deps Deps, mount func(r chi.Router)) http.Handler {
	if deps.Guard == nil {
		deps.Guard = noopGuard{}
	}
	if deps.Metrics == nil {
		deps.Metrics = telemetry.NewMetrics()
	}
	if deps.Devices == nil {
		deps.Devices = device.NewCache(12 * time.Hour)
	}
	if deps.Photos == nil {
		deps.Photos = photo.NewMemoryStore()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(newStructuredLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(deps.Metrics.Middleware)

	if mount != nil {
		mount(r)
	}
	addRoutes(r, logger, deps, NewBroker())
	return r
}

func (s *Server) Run(_ context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.srv.Addr, err)
	}

	err = s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func newStructuredLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Info("http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration_ms", time.Since(start).Milliseconds(),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
