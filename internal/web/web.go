// Package web serves the browser UI: the document list, the editor iframe
// pages and the settings administration page.
package web

import (
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/waffleoffice/wopihost/internal/auth"
	"github.com/waffleoffice/wopihost/internal/discovery"
	"github.com/waffleoffice/wopihost/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// supportedExtensions are the document types shown on the index page.
var supportedExtensions = []string{".docx", ".xlsx", ".pptx"}

// Handler renders the browser pages. All of its routes sit behind the
// login gate, so a session is always present on the request context.
type Handler struct {
	store     *store.Store
	settings  *store.Settings
	disc      *discovery.Client
	publicURL string
	log       *zap.Logger
}

func NewHandler(st *store.Store, settings *store.Settings, disc *discovery.Client, publicURL string, log *zap.Logger) *Handler {
	return &Handler{
		store:     st,
		settings:  settings,
		disc:      disc,
		publicURL: strings.TrimRight(publicURL, "/"),
		log:       log,
	}
}

type fileLink struct {
	Name string
	Ref  string
}

// Index lists the stored documents with edit and delete controls.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.FromContext(r.Context())
	files, err := h.store.ListDocuments(supportedExtensions)
	if err != nil {
		h.log.Error("list documents failed", zap.Error(err))
		http.Error(w, "Failed to list documents", http.StatusInternalServerError)
		return
	}
	links := make([]fileLink, 0, len(files))
	for _, f := range files {
		links = append(links, fileLink{Name: f.Name, Ref: url.PathEscape(h.store.Ref(f.Rel))})
	}
	h.render(w, "index.html", map[string]interface{}{
		"Host":  h.publicURL,
		"User":  sess.Identity.Name,
		"Files": links,
	})
}

// EditPage embeds the document editor in an iframe. The editor address comes
// from the discovery catalog; the form posts the session's access token so
// the editor can call back into the protocol endpoints.
func (h *Handler) EditPage(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.FromContext(r.Context())
	id := r.PathValue("id")

	info, err := h.store.Stat(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "File not found", http.StatusNotFound)
			return
		}
		h.log.Error("stat for edit page failed", zap.String("file", id), zap.Error(err))
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	eps, err := h.disc.Lookup(r.Context())
	if err != nil {
		h.log.Error("discovery lookup failed", zap.Error(err))
		http.Error(w, "Document server unavailable", http.StatusBadGateway)
		return
	}
	wopiSrc := h.publicURL + "/wopi/files/" + url.PathEscape(h.store.Ref(info.Rel))
	h.render(w, "edit.html", map[string]interface{}{
		"Host":        h.publicURL,
		"Name":        info.Name,
		"Action":      template.URL(editorAction(eps.Editor) + "WOPISrc=" + url.QueryEscape(wopiSrc)),
		"AccessToken": sess.Token,
	})
}

// DeleteFile removes a document. Wired to DELETE /edit/{id} so the index
// page's delete button shares the edit route's addressing.
func (h *Handler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.store.Remove(id); err != nil {
		status := http.StatusInternalServerError
		msg := "Error deleting file."
		if errors.Is(err, store.ErrNotFound) {
			status, msg = http.StatusNotFound, "File not found"
		} else {
			h.log.Error("delete failed", zap.String("file", id), zap.Error(err))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{"error": msg})
		return
	}
	io.WriteString(w, "File deleted successfully.")
}

// CreateFile makes a new empty document from the index page's form and sends
// the browser straight to its edit page.
func (h *Handler) CreateFile(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("filetype")
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	name := sanitizeName(r.PostFormValue("filename"))
	if name == "" {
		http.Error(w, "Document name required", http.StatusBadRequest)
		return
	}
	name = name + "." + kind

	err := h.store.CreateEmpty(name, kind)
	switch {
	case errors.Is(err, store.ErrExists):
		io.WriteString(w, "Error: File exists. <a href='/'>Back</a>")
		return
	case err != nil:
		h.log.Error("create document failed", zap.String("file", name), zap.Error(err))
		io.WriteString(w, "Error creating file. <a href='/'>Back</a>")
		return
	}
	http.Redirect(w, r, "/edit/"+url.PathEscape(h.store.Ref(name)), http.StatusFound)
}

// SettingsPage embeds the editor's settings app in an iframe pointed at the
// configuration endpoints.
func (h *Handler) SettingsPage(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.FromContext(r.Context())
	kind := "user"
	if r.URL.Query().Get("iframe_type") == "admin" {
		kind = "admin"
	}
	eps, err := h.disc.Lookup(r.Context())
	if err != nil || eps.Settings == "" {
		h.log.Error("settings discovery failed", zap.Error(err))
		http.Error(w, "Document server unavailable", http.StatusBadGateway)
		return
	}
	h.render(w, "settings.html", map[string]interface{}{
		"Action":         template.URL(eps.Settings),
		"AccessToken":    sess.Token,
		"Type":           kind,
		"SettingBaseURL": h.publicURL + "/wopi/settings",
	})
}

// ServeSettingsFile streams one configuration file, addressed by the
// relative path the settings catalog advertised.
func (h *Handler) ServeSettingsFile(w http.ResponseWriter, r *http.Request) {
	rel := r.PathValue("path")
	f, err := h.settings.Open(rel)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrPathEscape) {
			http.NotFound(w, r)
			return
		}
		h.log.Error("serve settings file failed", zap.String("file", rel), zap.Error(err))
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", "application/octet-stream")
	io.Copy(w, f)
}

// Favicon answers the browser's probe so it does not show up as an error in
// the access log.
func (h *Handler) Favicon(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) render(w http.ResponseWriter, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		h.log.Error("template render failed", zap.String("template", name), zap.Error(err))
	}
}

// editorAction normalizes a discovery urlsrc so a query parameter can be
// appended directly.
func editorAction(u string) string {
	switch {
	case strings.HasSuffix(u, "?") || strings.HasSuffix(u, "&"):
		return u
	case strings.Contains(u, "?"):
		return u + "&"
	default:
		return u + "?"
	}
}

// sanitizeName strips path and shell metacharacters from a user-supplied
// document name and maps spaces and colons to underscores.
func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '?', '%', '*', '|', '"', '<', '>':
			return -1
		case ' ', ':':
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
}
