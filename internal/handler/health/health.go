// Package health serves /healthz from a set of dependency checks.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
)

// Checker verifies that an infrastructure dependency is reachable.
type Checker interface {
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to Checker.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

type check struct {
	name     string
	checker  Checker
	optional bool
}

type Handler struct {
	checks  []check
	logger  *slog.Logger
	timeout time.Duration
}

// NewHandler registers required checks. A failing required check turns
// the response into a 503.
func NewHandler(logger *slog.Logger, checks map[string]Checker) *Handler {
	h := &Handler{logger: logger, timeout: 3 * time.Second}
	for name, c := range checks {
		h.checks = append(h.checks, check{name: name, checker: c})
	}
	return h
}

// Optional registers a check whose failure is reported as "degraded"
// without failing the probe.
func (h *Handler) Optional(name string, c Checker) *Handler {
	h.checks = append(h.checks, check{name: name, checker: c, optional: true})
	return h
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.check)
	return r
}

type result struct {
	Status string `json:"status"`
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		results = make(map[string]result, len(h.checks))
		status  = http.StatusOK
	)

	var g errgroup.Group
	for _, c := range h.checks {
		g.Go(func() error {
			err := c.checker.Check(ctx)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				results[c.name] = result{Status: "ok"}
			case c.optional:
				h.logger.Warn("optional health check failed", "name", c.name, "error", err)
				results[c.name] = result{Status: "degraded"}
			default:
				h.logger.Error("health check failed", "name", c.name, "error", err)
				results[c.name] = result{Status: "error"}
				status = http.StatusServiceUnavailable
			}
			return nil
		})
	}
	g.Wait()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(results)
}
