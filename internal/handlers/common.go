// Package handlers exposes the capture session machine over HTTP. The
// HTTP surface is the interactive caller: it enqueues requests and reads
// snapshots, it never owns session state.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mealsnap/mealsnap/internal/access"
	"github.com/mealsnap/mealsnap/internal/persist"
	"github.com/mealsnap/mealsnap/internal/scan"
	"github.com/mealsnap/mealsnap/internal/session"
)

type Handler struct {
	machine *session.Machine
	ledger  persist.Ledger
	signals *access.Signals
}

// New builds the HTTP handler set.
func New(machine *session.Machine, ledger persist.Ledger, signals *access.Signals) *Handler {
	return &Handler{
		machine: machine,
		ledger:  ledger,
		signals: signals,
	}
}

// Register wires all routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/capture", h.HandleCapture)
	mux.HandleFunc("/api/upload", h.HandleUpload)
	mux.HandleFunc("/api/analyze", h.HandleAnalyze)
	mux.HandleFunc("/api/clear", h.HandleClear)
	mux.HandleFunc("/api/reset", h.HandleReset)
	mux.HandleFunc("/api/mode", h.HandleMode)
	mux.HandleFunc("/api/focus", h.HandleFocus)
	mux.HandleFunc("/api/flash", h.HandleFlash)
	mux.HandleFunc("/api/session", h.HandleSession)
	mux.HandleFunc("/api/scans", h.HandleScans)
	mux.HandleFunc("/api/auth", h.HandleAuth)
	mux.HandleFunc("/api/entitlement", h.HandleEntitlement)
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	slog.Error(message)
	http.Error(w, message, code)
}

// writeDomainError maps session errors onto HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, scan.ErrAccessDenied):
		code = http.StatusForbidden
	case errors.Is(err, scan.ErrSessionBusy),
		errors.Is(err, scan.ErrCaptureAlreadyInFlight),
		errors.Is(err, scan.ErrAnalysisAlreadyInFlight):
		code = http.StatusConflict
	case errors.Is(err, scan.ErrDeviceUnavailable):
		code = http.StatusServiceUnavailable
	}
	h.writeError(w, err.Error(), code)
}

func (h *Handler) requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != "POST" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}
