// Package api serves the monitor's HTTP and websocket surface: reading
// submission, snapshot and alert queries, live event streaming, health and
// metrics endpoints.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"facilio.dev/envmon/internal/bus"
	"facilio.dev/envmon/internal/pipeline"
	"facilio.dev/envmon/internal/sensor"
	"facilio.dev/envmon/internal/store"
	"facilio.dev/envmon/pkg/metrics"
)

// Config holds the API handler configuration.
type Config struct {
	Logger   *slog.Logger
	Registry *sensor.Registry
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Bus      *bus.Bus
	// Metrics is optional.
	Metrics *metrics.APIMetrics
}

// Handler carries the dependencies behind the HTTP routes.
type Handler struct {
	logger   *slog.Logger
	registry *sensor.Registry
	store    store.Store
	pipeline *pipeline.Pipeline
	bus      *bus.Bus
	metrics  *metrics.APIMetrics
}

// NewHandler creates an API handler from the given configuration.
func NewHandler(cfg *Config) (*Handler, error) {
	if cfg == nil {
		return nil, errors.New("api config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Registry == nil {
		return nil, errors.New("registry cannot be nil")
	}
	if cfg.Store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if cfg.Pipeline == nil {
		return nil, errors.New("pipeline cannot be nil")
	}
	if cfg.Bus == nil {
		return nil, errors.New("bus cannot be nil")
	}

	return &Handler{
		logger:   cfg.Logger.With(slog.String("component", "api")),
		registry: cfg.Registry,
		store:    cfg.Store,
		pipeline: cfg.Pipeline,
		bus:      cfg.Bus,
		metrics:  cfg.Metrics,
	}, nil
}

// Router builds the route tree.
func (h *Handler) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.instrument)

	r.Route("/api", func(r chi.Router) {
		r.Post("/readings", h.handleIngest)
		r.Get("/snapshots", h.handleListSnapshots)
		r.Get("/sensors", h.handleListSensors)
		r.Get("/sensors/{name}/readings", h.handleListReadings)
		r.Get("/alerts", h.handleListAlerts)
		r.Delete("/alerts", h.handleClearAlerts)
	})

	r.Get("/ws", h.handleWebsocket)
	r.Get("/healthz", h.handleHealthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return r
}
