package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"facilio.dev/envmon/internal/pipeline"
	"facilio.dev/envmon/internal/store"
)

const (
	// defaultLimit applies when list queries omit or mangle ?limit=.
	defaultLimit = 50
	// maxLimit caps list queries regardless of what the client asks for.
	maxLimit = 500

	healthTimeout = 2 * time.Second
)

// handleIngest accepts one reading submission and returns the refreshed
// snapshot.
func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	var sub pipeline.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Errorf("decode submission: %w", err))
		return
	}

	snapshot, err := h.pipeline.Ingest(r.Context(), pipeline.SourceHTTP, sub)
	if err != nil {
		h.respondPipelineError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, snapshot)
}

func (h *Handler) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	snapshots, err := h.store.ListSnapshots(r.Context())
	if err != nil {
		h.respondError(w, http.StatusServiceUnavailable, err)
		return
	}
	if snapshots == nil {
		snapshots = []store.Snapshot{}
	}

	h.respondJSON(w, http.StatusOK, snapshots)
}

func (h *Handler) handleListSensors(w http.ResponseWriter, _ *http.Request) {
	h.respondJSON(w, http.StatusOK, h.registry.List())
}

func (h *Handler) handleListReadings(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}

	if _, ok := h.registry.Lookup(name); !ok {
		h.respondError(w, http.StatusNotFound, fmt.Errorf("unknown sensor %q", name))
		return
	}

	readings, err := h.store.ListReadings(r.Context(), name, parseLimit(r))
	if err != nil {
		h.respondError(w, http.StatusServiceUnavailable, err)
		return
	}
	if readings == nil {
		readings = []store.Reading{}
	}

	h.respondJSON(w, http.StatusOK, readings)
}

func (h *Handler) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.store.ListAlerts(r.Context(), parseLimit(r))
	if err != nil {
		h.respondError(w, http.StatusServiceUnavailable, err)
		return
	}
	if alerts == nil {
		alerts = []store.AlertRecord{}
	}

	h.respondJSON(w, http.StatusOK, alerts)
}

func (h *Handler) handleClearAlerts(w http.ResponseWriter, r *http.Request) {
	if err := h.pipeline.ClearAlerts(r.Context()); err != nil {
		h.respondPipelineError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondPipelineError maps the pipeline's error classes onto status codes.
func (h *Handler) respondPipelineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrInvalidInput):
		h.respondError(w, http.StatusBadRequest, err)
	case errors.Is(err, pipeline.ErrStoreUnavailable):
		h.respondError(w, http.StatusServiceUnavailable, err)
	default:
		h.respondError(w, http.StatusInternalServerError, err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, err error) {
	h.respondJSON(w, status, map[string]string{"error": err.Error()})
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func parseLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultLimit
	}
	if n > maxLimit {
		return maxLimit
	}
	return n
}
