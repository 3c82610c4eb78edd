package store

import (
	"archive/zip"
	"errors"
	"path/filepath"
	"testing"
)

func TestCreateEmpty(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, ModeRaw, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for _, kind := range []string{"docx", "xlsx", "pptx"} {
		name := "new." + kind
		if err := s.CreateEmpty(name, kind); err != nil {
			t.Fatalf("CreateEmpty(%s) failed: %v", kind, err)
		}
		zr, err := zip.OpenReader(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("%s is not a zip package: %v", name, err)
		}
		found := false
		for _, f := range zr.File {
			if f.Name == "[Content_Types].xml" {
				found = true
			}
		}
		zr.Close()
		if !found {
			t.Errorf("%s is missing [Content_Types].xml", name)
		}
	}
}

func TestCreateEmpty_ExistingNotReplaced(t *testing.T) {
	dir := t.TempDir()
	s, _ := New(dir, ModeRaw, nil)

	if err := s.CreateEmpty("doc.docx", "docx"); err != nil {
		t.Fatalf("First create failed: %v", err)
	}
	if err := s.CreateEmpty("doc.docx", "docx"); !errors.Is(err, ErrExists) {
		t.Errorf("Expected ErrExists, got %v", err)
	}
}

func TestCreateEmpty_Rejections(t *testing.T) {
	dir := t.TempDir()
	s, _ := New(dir, ModeRaw, nil)

	if err := s.CreateEmpty("../out.docx", "docx"); !errors.Is(err, ErrPathEscape) {
		t.Errorf("Expected ErrPathEscape, got %v", err)
	}
	if err := s.CreateEmpty("doc.exe", "exe"); err == nil {
		t.Error("Expected error for unsupported type")
	}
}
