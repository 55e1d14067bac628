package handler

import (
	"net/http"
	"time"
)

// StatusHandler serves the backend status (mode, alert threshold) for the
// dashboard.
type StatusHandler struct {
	Mode           string
	AlertThreshold float64
	StartedAt      time.Time
}

// NewStatusHandler creates a StatusHandler with the given mode and threshold.
func NewStatusHandler(mode string, alertThreshold float64) *StatusHandler {
	return &StatusHandler{
		Mode:           mode,
		AlertThreshold: alertThreshold,
		StartedAt:      time.Now().UTC(),
	}
}

// GetStatus responds with the current backend mode and detector settings.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":            h.Mode,
		"alert_threshold": h.AlertThreshold,
		"uptime_seconds":  int64(time.Since(h.StartedAt).Seconds()),
	})
}
