package wopi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/waffleoffice/wopihost/internal/store"
)

// Settings handles GET /wopi/settings?type=userconfig|systemconfig.
func (h *Handler) Settings(w http.ResponseWriter, r *http.Request) {
	catalog, err := h.settings.Catalog(r.URL.Query().Get("type"))
	if err != nil {
		if errors.Is(err, store.ErrUnknownKind) {
			writeError(w, http.StatusBadRequest, "Invalid type parameter")
			return
		}
		h.log.Error("settings catalog failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	writeJSON(w, http.StatusOK, catalog)
}

// uploadResponse is the settings upload payload.
type uploadResponse struct {
	Status   string        `json:"status"`
	Filename string        `json:"filename"`
	Details  uploadDetails `json:"details"`
}

type uploadDetails struct {
	Stamp string `json:"stamp"`
	URI   string `json:"uri"`
}

// SettingsUpload handles POST /wopi/settings/upload?fileId=<relative path>
// with a single multipart file part.
func (h *Handler) SettingsUpload(w http.ResponseWriter, r *http.Request) {
	fileID := r.URL.Query().Get("fileId")
	if fileID == "" {
		writeError(w, http.StatusBadRequest, "Missing fileId or file")
		return
	}
	if err := r.ParseMultipartForm(h.maxBody); err != nil {
		writeError(w, http.StatusBadRequest, "Missing fileId or file")
		return
	}
	part, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing fileId or file")
		return
	}
	defer part.Close()

	stamp, uri, err := h.settings.Write(fileID, part)
	if err != nil {
		if errors.Is(err, store.ErrPathEscape) {
			writeError(w, http.StatusBadRequest, "Invalid fileId")
			return
		}
		h.log.Error("settings upload failed", zap.String("fileId", fileID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Upload failed")
		return
	}
	h.log.Info("settings file stored",
		zap.String("fileId", fileID),
		zap.String("name", header.Filename))
	writeJSON(w, http.StatusOK, uploadResponse{
		Status:   "success",
		Filename: header.Filename,
		Details:  uploadDetails{Stamp: stamp, URI: uri},
	})
}

// CollaboraURL handles GET /wopi/collaboraUrl: it resolves the editor and
// settings entry points from the document server's discovery catalog.
func (h *Handler) CollaboraURL(w http.ResponseWriter, r *http.Request) {
	eps, err := h.discovery.Lookup(r.Context())
	if err != nil {
		h.log.Error("discovery lookup failed", zap.Error(err))
		writeError(w, http.StatusNotFound, "Document server discovery failed")
		return
	}
	writeJSON(w, http.StatusOK, eps)
}
