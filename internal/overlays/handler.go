package overlays

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"overlay-studio/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the overlay CRUD endpoints using go-chi.
type Handler struct {
	svc     *Service
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler returns a Handler that uses the given Service, Logger, and
// optional Metrics. Metrics may be nil to disable metric recording.
func NewHandler(svc *Service, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{svc: svc, log: log, metrics: m}
}

// List handles GET /api/overlays?stream_id=<id>.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	streamID := r.URL.Query().Get("stream_id")
	if streamID == "" {
		writeError(w, http.StatusBadRequest, "stream_id query parameter is required")
		return
	}

	items, err := h.svc.ListByStream(r.Context(), streamID)
	if err != nil {
		h.log.Error("list overlays failed", slog.String("stream_id", streamID), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "list overlays failed")
		return
	}
	if items == nil {
		items = []Overlay{}
	}
	writeJSON(w, http.StatusOK, items)
}

// Create handles POST /api/overlays.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var draft Draft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		h.log.Debug("invalid overlay draft", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "invalid overlay payload")
		return
	}

	o, err := h.svc.Create(r.Context(), draft)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidKind), errors.Is(err, ErrEmptyContent), errors.Is(err, ErrMissingStream):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.log.Error("create overlay failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "create overlay failed")
		}
		return
	}

	h.log.Debug("overlay created",
		slog.String("overlay_id", o.ID),
		slog.String("stream_id", o.StreamID),
		slog.String("kind", string(o.Kind)))
	writeJSON(w, http.StatusCreated, o)
	if h.metrics != nil {
		h.metrics.IncOverlaysCreated()
	}
}

// Update handles PUT /api/overlays/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "overlay id is required")
		return
	}

	var patch Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.log.Debug("invalid overlay patch", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "invalid overlay payload")
		return
	}

	o, err := h.svc.Update(r.Context(), id, patch)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			writeError(w, http.StatusNotFound, "overlay not found")
		case errors.Is(err, ErrEmptyContent):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.log.Error("update overlay failed", slog.String("overlay_id", id), slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "update overlay failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, o)
	if h.metrics != nil {
		h.metrics.IncOverlaysUpdated()
	}
}

// Delete handles DELETE /api/overlays/{id}. Deleting an unknown id still
// acknowledges with 204 so the operation is idempotent; a client deleting an
// overlay whose create it never saw confirmed must not get an error.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "overlay id is required")
		return
	}

	deleted, err := h.svc.Delete(r.Context(), id)
	if err != nil {
		h.log.Error("delete overlay failed", slog.String("overlay_id", id), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "delete overlay failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
	if deleted && h.metrics != nil {
		h.metrics.IncOverlaysDeleted()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
