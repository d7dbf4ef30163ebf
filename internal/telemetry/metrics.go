package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can build several servers
// without duplicate registration panics.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	scans         *prometheus.CounterVec
	photos        *prometheus.CounterVec
	answers       *prometheus.CounterVec
	registrations *prometheus.CounterVec
	eventClients  prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"route", "method"}),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hunt_scans_total",
			Help: "QR scans by result",
		}, []string{"result"}),
		photos: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hunt_photos_total",
			Help: "Photo stage submissions by outcome",
		}, []string{"outcome"}),
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hunt_answers_total",
			Help: "Quiz submissions by outcome",
		}, []string{"outcome"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hunt_registrations_total",
			Help: "Registration attempts by outcome",
		}, []string{"outcome"}),
		eventClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hunt_event_clients",
			Help: "Connected SSE and WebSocket clients",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpDuration,
		m.scans, m.photos, m.answers, m.registrations, m.eventClients,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Middleware records request counts and latency labelled by chi route
// pattern, so path parameters do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) Scan(result string) { m.scans.WithLabelValues(result).Inc() }
func (m *Metrics) Photo(outcome string) { m.photos.WithLabelValues(outcome).Inc() }
func (m *Metrics) Answer(outcome string) { m.answers.WithLabelValues(outcome).Inc() }
func (m *Metrics) Registration(outcome string) { m.registrations.WithLabelValues(outcome).Inc() }
func (m *Metrics) ClientConnected() { m.eventClients.Inc() }
func (m *Metrics) ClientDisconnected() { m.eventClients.Dec() }
