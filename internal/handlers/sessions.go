package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/mealsnap/mealsnap/internal/device"
	"github.com/mealsnap/mealsnap/internal/scan"
)

// HandleCapture starts a capture cycle. Body: {"analyze": bool}; analyze
// defaults to true (capture & analyze).
func (h *Handler) HandleCapture(w http.ResponseWriter, r *http.Request) {
	if !h.requirePost(w, r) {
		return
	}

	request := struct {
		Analyze *bool `json:"analyze"`
	}{}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&request)
	}

	var err error
	if request.Analyze != nil && !*request.Analyze {
		err = h.machine.Capture()
	} else {
		err = h.machine.CaptureAndAnalyze()
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, map[string]any{"message": "capture started"})
}

// HandleAnalyze manually triggers analysis of a captured frame.
func (h *Handler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	if !h.requirePost(w, r) {
		return
	}
	if err := h.machine.Analyze(); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, map[string]any{"message": "analysis started"})
}

// HandleClear discards a captured frame.
func (h *Handler) HandleClear(w http.ResponseWriter, r *http.Request) {
	if !h.requirePost(w, r) {
		return
	}
	if err := h.machine.Clear(); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, map[string]any{"message": "cleared"})
}

// HandleReset returns a terminal session to idle.
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	if !h.requirePost(w, r) {
		return
	}
	if err := h.machine.Reset(); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, map[string]any{"message": "reset"})
}

// HandleMode requests a capture mode switch.
func (h *Handler) HandleMode(w http.ResponseWriter, r *http.Request) {
	if !h.requirePost(w, r) {
		return
	}

	var request struct {
		Mode scan.CaptureMode `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if !request.Mode.Valid() {
		h.writeError(w, "Invalid mode. Must be 'standard' or 'volumetric'", http.StatusBadRequest)
		return
	}
	if err := h.machine.SwitchMode(request.Mode); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, map[string]any{"message": "mode switch requested", "mode": request.Mode})
}

// HandleFocus signals a point of interest.
func (h *Handler) HandleFocus(w http.ResponseWriter, r *http.Request) {
	if !h.requirePost(w, r) {
		return
	}

	var request struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	h.machine.Focus(device.FocusPoint{X: request.X, Y: request.Y})
	h.writeJSON(w, map[string]any{"message": "focus requested"})
}

// HandleFlash toggles the torch.
func (h *Handler) HandleFlash(w http.ResponseWriter, r *http.Request) {
	if !h.requirePost(w, r) {
		return
	}

	var request struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.machine.SetFlash(request.Enabled); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, map[string]any{"message": "flash updated", "enabled": request.Enabled})
}

// HandleSession returns a snapshot of the live session.
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := h.machine.Snapshot()
	response := map[string]any{
		"state": snap.State,
		"mode":  snap.Mode,
	}
	if snap.PendingMode != "" {
		response["pending_mode"] = snap.PendingMode
	}
	if snap.Image != nil {
		response["image_base64"] = base64.StdEncoding.EncodeToString(snap.Image)
	}
	if snap.DepthFrame != nil {
		response["depth_frame"] = snap.DepthFrame
	}
	if snap.Result != nil {
		response["result"] = snap.Result
	}
	if snap.Err != nil {
		response["error"] = snap.Err.Error()
	}
	h.writeJSON(w, response)
}
