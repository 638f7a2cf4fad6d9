package converter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"overlay-studio/internal/platform/metrics"
)

// Handler exposes the conversion endpoint.
type Handler struct {
	conv    *Converter
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler returns a Handler. Metrics may be nil.
func NewHandler(conv *Converter, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{conv: conv, log: log, metrics: m}
}

type convertRequest struct {
	RTSPURL string `json:"rtsp_url"`
}

// Convert handles POST /api/convert.
// Body: {"rtsp_url": "rtsp://..."}. Response: {"hls_url": ..., "stream_id": ...}.
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if req.RTSPURL == "" {
		writeError(w, http.StatusBadRequest, "RTSP URL is required")
		return
	}

	res, err := h.conv.Start(r.Context(), req.RTSPURL)
	if err != nil {
		if h.metrics != nil {
			h.metrics.IncConversionFailures()
		}
		switch {
		case errors.Is(err, ErrEmptySource):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrShuttingDown):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			h.log.Error("conversion failed",
				slog.String("source", req.RTSPURL),
				slog.String("error", err.Error()))
			writeError(w, http.StatusBadGateway, "stream conversion failed")
		}
		return
	}

	h.log.Info("conversion ready",
		slog.String("stream_id", res.StreamID),
		slog.String("hls_url", res.HLSURL))
	writeJSON(w, http.StatusOK, res)
	if h.metrics != nil {
		h.metrics.IncConversions()
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
