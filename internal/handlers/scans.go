package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/mealsnap/mealsnap/internal/persist"
	"github.com/mealsnap/mealsnap/internal/scan"
)

// HandleScans lists persisted scans. Query params: user (per-user ledger,
// default global) and limit (default 50).
func (h *Handler) HandleScans(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := persist.GlobalLedgerPath
	if user := r.URL.Query().Get("user"); user != "" {
		path = persist.UserLedgerPath(user)
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.writeError(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	records, err := h.ledger.List(r.Context(), path, limit)
	if err != nil {
		h.writeError(w, "Failed to list scans: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []scan.ScanRecord{}
	}
	h.writeJSON(w, records)
}

// HandleAuth feeds the auth boundary signal: {"user_id": "..."} signs in,
// an empty user_id signs out.
func (h *Handler) HandleAuth(w http.ResponseWriter, r *http.Request) {
	if !h.requirePost(w, r) {
		return
	}

	var request struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	h.signals.SetUser(request.UserID)
	h.writeJSON(w, map[string]any{"signed_in": request.UserID != ""})
}

// HandleEntitlement feeds the entitlement boundary signal.
func (h *Handler) HandleEntitlement(w http.ResponseWriter, r *http.Request) {
	if !h.requirePost(w, r) {
		return
	}

	var request struct {
		HasAccess bool `json:"has_access"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	h.signals.SetEntitlement(request.HasAccess)
	h.writeJSON(w, map[string]any{"has_access": request.HasAccess})
}
