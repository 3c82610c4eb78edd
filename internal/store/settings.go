package store

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrUnknownKind is returned for a settings catalog type that is neither
// userconfig nor systemconfig.
var ErrUnknownKind = errors.New("unknown settings kind")

// SettingsEntry is one configuration file in a settings catalog.
type SettingsEntry struct {
	Stamp string `json:"stamp"`
	URI   string `json:"uri"`
}

// SettingsCatalog groups the configuration files of one kind by category.
type SettingsCatalog struct {
	Kind           string          `json:"kind"`
	Autotext       []SettingsEntry `json:"autotext"`
	XCU            []SettingsEntry `json:"xcu"`
	BrowserSetting []SettingsEntry `json:"browsersetting"`
}

// Settings is the configuration file tree the editor reads styles, autotext
// and browser settings from.
type Settings struct {
	root    string
	baseURL string
}

// NewSettings creates a Settings tree rooted at root. baseURL is the public
// prefix for the URIs handed back to the editor.
func NewSettings(root, baseURL string) (*Settings, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve settings root %q: %w", root, err)
	}
	return &Settings{root: filepath.Clean(abs), baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Catalog walks the subtree for the requested kind ("userconfig" or
// "systemconfig") and classifies every file by path substring. Stamps are
// modification times in milliseconds.
func (s *Settings) Catalog(kind string) (*SettingsCatalog, error) {
	var subdir, kindName string
	switch kind {
	case "userconfig":
		subdir, kindName = "userconfig", "user"
	case "systemconfig":
		subdir, kindName = "systemconfig", "shared"
	default:
		return nil, ErrUnknownKind
	}

	catalog := &SettingsCatalog{
		Kind:           kindName,
		Autotext:       []SettingsEntry{},
		XCU:            []SettingsEntry{},
		BrowserSetting: []SettingsEntry{},
	}

	dir := filepath.Join(s.root, subdir)
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == dir {
				// An empty kind is an empty catalog, not an error.
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		fi, err := d.Info()
		if err != nil {
			return err
		}
		// The URI path is root-relative so it resolves through the same
		// route Open serves.
		entry := SettingsEntry{
			Stamp: strconv.FormatInt(fi.ModTime().UnixMilli(), 10),
			URI:   s.baseURL + "/settings/" + subdir + "/" + rel,
		}
		switch {
		case strings.Contains(rel, "autotext"):
			catalog.Autotext = append(catalog.Autotext, entry)
		case strings.Contains(rel, "xcu"):
			catalog.XCU = append(catalog.XCU, entry)
		case strings.Contains(rel, "browsersetting"):
			catalog.BrowserSetting = append(catalog.BrowserSetting, entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk settings %s: %w", kind, err)
	}
	return catalog, nil
}

// Open returns a reader over the configuration file at the slash-delimited
// relative path rel, for serving catalog URIs back to the editor.
func (s *Settings) Open(rel string) (io.ReadCloser, error) {
	if rel == "" || filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return nil, ErrPathEscape
	}
	abs := filepath.Clean(filepath.Join(s.root, filepath.FromSlash(rel)))
	if abs != s.root && !strings.HasPrefix(abs, s.root+string(os.PathSeparator)) {
		return nil, ErrPathEscape
	}
	f, err := os.Open(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open settings file %s: %w", rel, err)
	}
	return f, nil
}

// Write stores an uploaded configuration blob at the slash-delimited relative
// path fileID, creating intermediate directories as needed. The editor
// addresses uploads as "settings/<kind>/<category>/<name>"; the leading
// "settings" segment is the route prefix, not part of the tree, so it is
// stripped before anchoring under the root. It returns the new stamp and the
// canonical URI, which round-trips through Open.
func (s *Settings) Write(fileID string, r io.Reader) (stamp, uri string, err error) {
	parts := make([]string, 0, 8)
	for _, p := range strings.Split(fileID, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) > 0 && parts[0] == "settings" {
		parts = parts[1:]
	}
	if len(parts) == 0 {
		return "", "", ErrPathEscape
	}
	rel := strings.Join(parts, "/")
	abs := filepath.Clean(filepath.Join(s.root, filepath.FromSlash(rel)))
	if abs != s.root && !strings.HasPrefix(abs, s.root+string(os.PathSeparator)) {
		return "", "", ErrPathEscape
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", "", fmt.Errorf("create settings dirs: %w", err)
	}
	if err := writeAtomic(abs, r); err != nil {
		return "", "", err
	}
	return strconv.FormatInt(time.Now().UnixMilli(), 10), s.baseURL + "/settings/" + rel, nil
}
