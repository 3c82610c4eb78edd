package store

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func newSettings(t *testing.T) (*Settings, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSettings(dir, "https://host.example")
	if err != nil {
		t.Fatalf("NewSettings failed: %v", err)
	}
	return s, dir
}

func TestSettings_Catalog(t *testing.T) {
	s, dir := newSettings(t)
	writeFixture(t, dir, "userconfig/xcu/a.xcu", "<xcu/>")
	writeFixture(t, dir, "userconfig/autotext/b.bau", "bau")

	catalog, err := s.Catalog("userconfig")
	if err != nil {
		t.Fatalf("Catalog failed: %v", err)
	}
	if catalog.Kind != "user" {
		t.Errorf("Expected kind 'user', got %q", catalog.Kind)
	}
	if len(catalog.XCU) != 1 || len(catalog.Autotext) != 1 || len(catalog.BrowserSetting) != 0 {
		t.Fatalf("Unexpected catalog: %+v", catalog)
	}
	if catalog.XCU[0].URI != "https://host.example/settings/userconfig/xcu/a.xcu" {
		t.Errorf("Unexpected xcu uri: %q", catalog.XCU[0].URI)
	}

	fi, err := os.Stat(filepath.Join(dir, "userconfig", "xcu", "a.xcu"))
	if err != nil {
		t.Fatalf("stat fixture: %v", err)
	}
	wantStamp := strconv.FormatInt(fi.ModTime().UnixMilli(), 10)
	if catalog.XCU[0].Stamp != wantStamp {
		t.Errorf("Expected stamp %q, got %q", wantStamp, catalog.XCU[0].Stamp)
	}
}

func TestSettings_CatalogSystemKind(t *testing.T) {
	s, dir := newSettings(t)
	writeFixture(t, dir, "systemconfig/browsersetting/theme.json", "{}")

	catalog, err := s.Catalog("systemconfig")
	if err != nil {
		t.Fatalf("Catalog failed: %v", err)
	}
	if catalog.Kind != "shared" {
		t.Errorf("Expected kind 'shared', got %q", catalog.Kind)
	}
	if len(catalog.BrowserSetting) != 1 {
		t.Errorf("Unexpected catalog: %+v", catalog)
	}
}

func TestSettings_CatalogUnknownKind(t *testing.T) {
	s, _ := newSettings(t)
	if _, err := s.Catalog("whatever"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Expected ErrUnknownKind, got %v", err)
	}
}

func TestSettings_CatalogEmptyTree(t *testing.T) {
	s, _ := newSettings(t)
	catalog, err := s.Catalog("userconfig")
	if err != nil {
		t.Fatalf("Catalog failed on missing subtree: %v", err)
	}
	if len(catalog.XCU) != 0 || len(catalog.Autotext) != 0 || len(catalog.BrowserSetting) != 0 {
		t.Errorf("Expected empty catalog, got %+v", catalog)
	}
}

func TestSettings_Write(t *testing.T) {
	s, dir := newSettings(t)

	stamp, uri, err := s.Write("settings/userconfig/xcu/styles.xcu", strings.NewReader("<xcu/>"))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if stamp == "" {
		t.Error("Expected a stamp")
	}
	if uri != "https://host.example/settings/userconfig/xcu/styles.xcu" {
		t.Errorf("Unexpected uri: %q", uri)
	}
	got, err := os.ReadFile(filepath.Join(dir, "userconfig", "xcu", "styles.xcu"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(got) != "<xcu/>" {
		t.Errorf("Unexpected content: %q", got)
	}
}

func TestSettings_URIsRoundTrip(t *testing.T) {
	s, dir := newSettings(t)
	writeFixture(t, dir, "userconfig/xcu/a.xcu", "<xcu/>")

	// Every URI the catalog advertises must open through the serving path,
	// and a written file must show up in the next catalog.
	_, uri, err := s.Write("settings/userconfig/autotext/b.bau", strings.NewReader("bau"))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	catalog, err := s.Catalog("userconfig")
	if err != nil {
		t.Fatalf("Catalog failed: %v", err)
	}
	if len(catalog.Autotext) != 1 || catalog.Autotext[0].URI != uri {
		t.Fatalf("Written file must appear in the catalog under the same uri, got %+v", catalog.Autotext)
	}

	for _, entry := range append(catalog.XCU, catalog.Autotext...) {
		rel := strings.TrimPrefix(entry.URI, "https://host.example/settings/")
		f, err := s.Open(rel)
		if err != nil {
			t.Errorf("Advertised uri %q does not open: %v", entry.URI, err)
			continue
		}
		f.Close()
	}
}

func TestSettings_WriteEscapeRejected(t *testing.T) {
	s, _ := newSettings(t)
	if _, _, err := s.Write("../outside.xcu", strings.NewReader("x")); !errors.Is(err, ErrPathEscape) {
		t.Errorf("Expected ErrPathEscape, got %v", err)
	}
	if _, _, err := s.Write("///", strings.NewReader("x")); !errors.Is(err, ErrPathEscape) {
		t.Errorf("Expected ErrPathEscape for empty path, got %v", err)
	}
}
