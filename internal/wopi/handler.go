// Package wopi implements the host side of the WOPI protocol: file metadata,
// content I/O, the override-driven lock state machine, and the settings
// catalog. Status codes and X-WOPI-* headers follow the contract the editor
// depends on byte-for-byte.
package wopi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/waffleoffice/wopihost/internal/auth"
	"github.com/waffleoffice/wopihost/internal/discovery"
	"github.com/waffleoffice/wopihost/internal/encoding/utf7"
	"github.com/waffleoffice/wopihost/internal/lock"
	"github.com/waffleoffice/wopihost/internal/store"
	"github.com/waffleoffice/wopihost/internal/token"
)

// Override values dispatched by the generic POST /wopi/files/{id} endpoint.
const (
	overrideLock          = "LOCK"
	overrideUnlock        = "UNLOCK"
	overrideGetLock       = "GET_LOCK"
	overrideRefreshLock   = "REFRESH_LOCK"
	overrideRelock        = "UNLOCK_AND_RELOCK"
	overrideRename        = "RENAME_FILE"
	overridePutRelative   = "PUT_RELATIVE"
	headerLock            = "X-WOPI-Lock"
	headerOldLock         = "X-WOPI-OldLock"
	headerOverride        = "X-WOPI-Override"
	headerRequestedName   = "X-WOPI-RequestedName"
	headerSuggestedTarget = "X-WOPI-SuggestedTarget"
)

// Handler is the WOPI protocol engine. It assumes the authorization gate has
// already attached a session to every request it sees.
type Handler struct {
	store     *store.Store
	settings  *store.Settings
	locks     lock.Table
	discovery *discovery.Client
	publicURL string
	maxBody   int64
	log       *zap.Logger
}

// NewHandler wires the engine. publicURL is this host's externally visible
// base URL, used when minting file references for the client. maxBody caps
// document upload sizes.
func NewHandler(st *store.Store, settings *store.Settings, locks lock.Table, disc *discovery.Client, publicURL string, maxBody int64, log *zap.Logger) *Handler {
	return &Handler{
		store:     st,
		settings:  settings,
		locks:     locks,
		discovery: disc,
		publicURL: strings.TrimRight(publicURL, "/"),
		maxBody:   maxBody,
		log:       log,
	}
}

// fileInfoResponse is the CheckFileInfo payload.
type fileInfoResponse struct {
	BaseFileName            string `json:"BaseFileName"`
	Size                    int64  `json:"Size"`
	UserFriendlyName        string `json:"UserFriendlyName"`
	UserCanWrite            bool   `json:"UserCanWrite"`
	IsAdminUser             bool   `json:"IsAdminUser"`
	Version                 string `json:"Version"`
	SupportsLocks           bool   `json:"SupportsLocks"`
	SupportsGetLock         bool   `json:"SupportsGetLock"`
	SupportsRename          bool   `json:"SupportsRename"`
	UserCanRename           bool   `json:"UserCanRename"`
	UserCanNotWriteRelative bool   `json:"UserCanNotWriteRelative"`
}

// CheckFileInfo handles GET /wopi/files/{id}.
func (h *Handler) CheckFileInfo(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing access token")
		return
	}
	info, err := h.store.Stat(r.PathValue("id"))
	if err != nil {
		h.fileError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fileInfoResponse{
		BaseFileName:            info.Name,
		Size:                    info.Size,
		UserFriendlyName:        sess.Identity.Name,
		UserCanWrite:            sess.Identity.CanWrite,
		IsAdminUser:             sess.Identity.IsAdminUser,
		Version:                 version(info.ModTime),
		SupportsLocks:           true,
		SupportsGetLock:         true,
		SupportsRename:          true,
		UserCanRename:           sess.Identity.CanWrite,
		UserCanNotWriteRelative: false,
	})
}

// GetFile handles GET /wopi/files/{id}/contents.
func (h *Handler) GetFile(w http.ResponseWriter, r *http.Request) {
	rc, err := h.store.Open(r.PathValue("id"))
	if err != nil {
		h.fileError(w, r, err)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, rc); err != nil {
		// Headers are gone; all we can do is note the broken stream.
		h.log.Warn("content stream aborted", zap.String("file", r.PathValue("id")), zap.Error(err))
	}
}

// PutFile handles POST /wopi/files/{id}/contents.
func (h *Handler) PutFile(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.FromContext(r.Context())
	if sess == nil || !sess.Identity.CanWrite {
		writeError(w, http.StatusForbidden, "Read-only access")
		return
	}
	body := http.MaxBytesReader(w, r.Body, h.maxBody)
	defer body.Close()

	info, err := h.store.Write(r.PathValue("id"), body)
	if err != nil {
		if errors.Is(err, store.ErrPathEscape) || errors.Is(err, token.ErrInvalidToken) {
			h.fileError(w, r, err)
			return
		}
		h.log.Error("put file failed", zap.String("file", r.PathValue("id")), zap.Error(err))
		writeError(w, http.StatusNotFound, "Not possible to store the file content")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"LastModifiedTime": info.ModTime.UTC().Format(time.RFC3339Nano),
	})
}

// Override handles POST /wopi/files/{id}, dispatching on X-WOPI-Override.
func (h *Handler) Override(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.FromContext(r.Context())
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "Missing access token")
		return
	}
	id := r.PathValue("id")
	override := r.Header.Get(headerOverride)
	h.log.Debug("override request", zap.String("override", override), zap.String("file", id))

	if override != overrideGetLock && !sess.Identity.CanWrite {
		writeError(w, http.StatusForbidden, "Read-only access")
		return
	}

	switch override {
	case overrideLock:
		h.lockResult(w, h.locks.Acquire(r.Context(), id, r.Header.Get(headerLock)))
	case overrideUnlock:
		h.lockResult(w, h.locks.Release(r.Context(), id, r.Header.Get(headerLock)))
	case overrideRefreshLock:
		h.lockResult(w, h.locks.Refresh(r.Context(), id, r.Header.Get(headerLock)))
	case overrideRelock:
		h.lockResult(w, h.locks.Transfer(r.Context(), id, r.Header.Get(headerOldLock), r.Header.Get(headerLock)))
	case overrideGetLock:
		h.getLock(w, r, id)
	case overrideRename:
		h.renameFile(w, r, sess, id)
	case overridePutRelative:
		h.putRelative(w, r, sess, id)
	default:
		writeError(w, http.StatusBadRequest, "Unsupported X-WOPI-Override")
	}
}

// lockResult maps a lock-table outcome onto the wire: 200 on success, 409
// with the holder's value in X-WOPI-Lock on conflict.
func (h *Handler) lockResult(w http.ResponseWriter, err error) {
	if err == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	var conflict *lock.ConflictError
	if errors.As(err, &conflict) {
		w.Header().Set(headerLock, conflict.Current)
		w.WriteHeader(http.StatusConflict)
		return
	}
	h.log.Error("lock operation failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "Lock operation failed")
}

func (h *Handler) getLock(w http.ResponseWriter, r *http.Request, id string) {
	l, err := h.locks.Get(r.Context(), id)
	if err != nil {
		h.log.Error("get lock failed", zap.String("file", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Lock operation failed")
		return
	}
	value := ""
	if l != nil {
		value = l.Value
	}
	w.Header().Set(headerLock, value)
	w.WriteHeader(http.StatusOK)
}

// renameFile implements the RENAME_FILE override: the requested name arrives
// UTF-7 encoded and without an extension; the original extension is kept.
// An existing target is overwritten (documented collision policy).
func (h *Handler) renameFile(w http.ResponseWriter, r *http.Request, sess *auth.Session, id string) {
	requested, err := utf7.Decode(r.Header.Get(headerRequestedName))
	if err != nil || requested == "" {
		writeError(w, http.StatusBadRequest, "Invalid requested name")
		return
	}
	info, err := h.store.Stat(id)
	if err != nil {
		h.fileError(w, r, err)
		return
	}
	newBase := requested + path.Ext(info.Name)
	newRel, err := h.store.Rename(id, newBase)
	if err != nil {
		h.fileError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"Name": newBase,
		"Url":  h.fileURL(newRel, sess.Token),
	})
}

// putRelative implements the PUT_RELATIVE override (save-as). The suggested
// target arrives UTF-7 encoded, possibly with a leading "." marker. The new
// file lands next to the source, subject to the store's escape check; an
// existing target is overwritten (documented collision policy).
func (h *Handler) putRelative(w http.ResponseWriter, r *http.Request, sess *auth.Session, id string) {
	suggested, err := utf7.Decode(r.Header.Get(headerSuggestedTarget))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid suggested target")
		return
	}
	name := strings.TrimPrefix(suggested, ".")
	if name == "" {
		writeError(w, http.StatusBadRequest, "Invalid suggested target")
		return
	}
	body := http.MaxBytesReader(w, r.Body, h.maxBody)
	defer body.Close()

	newRel, _, err := h.store.WriteRelative(id, name, body)
	if err != nil {
		h.fileError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"Name": name,
		"Url":  h.fileURL(newRel, sess.Token),
	})
}

// fileURL mints the WOPI reference for a relative path, carrying the
// caller's access token so the editor can keep using it.
func (h *Handler) fileURL(rel, accessToken string) string {
	return h.publicURL + "/wopi/files/" + url.PathEscape(h.store.Ref(rel)) +
		"?access_token=" + url.QueryEscape(accessToken)
}

// fileError maps store and token failures onto the protocol's status codes.
func (h *Handler) fileError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "File not found")
	case errors.Is(err, store.ErrPathEscape):
		writeError(w, http.StatusBadRequest, "Invalid file path")
	case errors.Is(err, token.ErrInvalidToken):
		writeError(w, http.StatusBadRequest, "Invalid file token")
	default:
		h.log.Error("file operation failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error")
	}
}

// version derives the protocol's opaque version string from the store's
// modification clock. Two writes within one clock tick may share a version.
func version(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
