package handlers

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// maxUploadBytes bounds an uploaded image.
const maxUploadBytes = 10 * 1024 * 1024

// HandleUpload runs a user-supplied image through the analyze cycle
// ("upload & analyze"). Accepts a multipart file or a JSON body with
// image_base64.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if !h.requirePost(w, r) {
		return
	}

	contentType := r.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/json") {
		h.handleJSONUpload(w, r)
		return
	}
	h.handleFileUpload(w, r)
}

func (h *Handler) handleJSONUpload(w http.ResponseWriter, r *http.Request) {
	var request struct {
		ImageBase64 string `json:"image_base64"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if request.ImageBase64 == "" {
		h.writeError(w, "image_base64 is required", http.StatusBadRequest)
		return
	}

	image, err := base64.StdEncoding.DecodeString(request.ImageBase64)
	if err != nil {
		h.writeError(w, "Invalid base64 image: "+err.Error(), http.StatusBadRequest)
		return
	}
	h.dispatchUpload(w, image)
}

func (h *Handler) handleFileUpload(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("files")
	if err != nil {
		file, _, err = r.FormFile("file")
		if err != nil {
			h.writeError(w, "Failed to read file: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	defer file.Close()

	image, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		h.writeError(w, "Failed to read file contents: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if len(image) >= maxUploadBytes {
		h.writeError(w, "File too large (max 10MB)", http.StatusBadRequest)
		return
	}
	h.dispatchUpload(w, image)
}

func (h *Handler) dispatchUpload(w http.ResponseWriter, image []byte) {
	if err := h.machine.AnalyzeUpload(image); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, map[string]any{
		"message": "upload accepted, analysis started",
		"bytes":   len(image),
	})
}
