// Package store implements the file address resolver and the disk-backed
// document store. Every path handed to the operating system goes through the
// resolver's root-descendant check first.
package store

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/waffleoffice/wopihost/internal/token"
)

var (
	// ErrNotFound is returned when the resolved path does not exist.
	ErrNotFound = errors.New("file not found")
	// ErrPathEscape is returned when a path would leave the store root.
	ErrPathEscape = errors.New("path escapes store root")
)

// Mode selects how file identifiers address documents.
type Mode string

const (
	// ModeRaw treats the identifier as a store-relative path. Legacy; only
	// safe for flat stores.
	ModeRaw Mode = "raw"
	// ModeToken treats the identifier as a signed file capability token.
	// Required whenever the store exposes nested folders.
	ModeToken Mode = "token"
)

// FileInfo describes a stored document.
type FileInfo struct {
	Name    string
	Rel     string
	Size    int64
	ModTime time.Time
}

// Store is a document store rooted at a single directory.
type Store struct {
	root   string
	mode   Mode
	signer *token.FileSigner
}

// New creates a Store over root. In ModeToken the signer is used to decode
// incoming identifiers and to mint references for new files.
func New(root string, mode Mode, signer *token.FileSigner) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve store root %q: %w", root, err)
	}
	if mode == ModeToken && signer == nil {
		return nil, fmt.Errorf("token addressing mode requires a file signer")
	}
	return &Store{root: filepath.Clean(abs), mode: mode, signer: signer}, nil
}

// Ref returns the file identifier for a store-relative path under the
// configured addressing mode.
func (s *Store) Ref(rel string) string {
	if s.mode == ModeToken {
		return s.signer.SignPath(rel)
	}
	return rel
}

// resolve maps an identifier to its relative and absolute paths.
func (s *Store) resolve(id string) (rel, abs string, err error) {
	rel = id
	if s.mode == ModeToken {
		rel, err = s.signer.VerifyPath(id)
		if err != nil {
			return "", "", err
		}
	}
	abs, err = s.join(rel)
	if err != nil {
		return "", "", err
	}
	return path.Clean(strings.ReplaceAll(rel, "\\", "/")), abs, nil
}

// join anchors rel under the store root and rejects everything that would
// land outside it. The descendant check is prefix-plus-separator so that a
// sibling such as /store2 never passes for root /store.
func (s *Store) join(rel string) (string, error) {
	if rel == "" || filepath.IsAbs(rel) || strings.HasPrefix(strings.ReplaceAll(rel, "\\", "/"), "/") {
		return "", ErrPathEscape
	}
	abs := filepath.Clean(filepath.Join(s.root, filepath.FromSlash(rel)))
	if abs != s.root && !strings.HasPrefix(abs, s.root+string(os.PathSeparator)) {
		return "", ErrPathEscape
	}
	return abs, nil
}

// Stat returns metadata for the identified file.
func (s *Store) Stat(id string) (*FileInfo, error) {
	rel, abs, err := s.resolve(id)
	if err != nil {
		return nil, err
	}
	return statFile(rel, abs)
}

// Open returns a streaming reader over the identified file. The caller owns
// the close.
func (s *Store) Open(id string) (io.ReadCloser, error) {
	_, abs, err := s.resolve(id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open %s: %w", abs, err)
	}
	return f, nil
}

// Write atomically replaces the identified file's content: the bytes go to a
// temp file in the target directory first and the final rename is the commit
// point, so a failed write never leaves a truncated document.
func (s *Store) Write(id string, r io.Reader) (*FileInfo, error) {
	rel, abs, err := s.resolve(id)
	if err != nil {
		return nil, err
	}
	if err := writeAtomic(abs, r); err != nil {
		return nil, err
	}
	return statFile(rel, abs)
}

// Rename moves the identified file to newBase in the same directory and
// returns the new relative path. An existing target is overwritten; that is
// the documented collision policy for client-driven renames.
func (s *Store) Rename(id, newBase string) (string, error) {
	rel, abs, err := s.resolve(id)
	if err != nil {
		return "", err
	}
	newRel := path.Join(path.Dir(rel), newBase)
	newAbs, err := s.join(newRel)
	if err != nil {
		return "", err
	}
	if err := os.Rename(abs, newAbs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("rename %s: %w", rel, err)
	}
	return newRel, nil
}

// WriteRelative writes content under a new name in the same directory as the
// identified source file. Used by save-as; an existing target is overwritten.
func (s *Store) WriteRelative(sourceID, name string, r io.Reader) (string, *FileInfo, error) {
	rel, _, err := s.resolve(sourceID)
	if err != nil {
		return "", nil, err
	}
	newRel := path.Join(path.Dir(rel), name)
	newAbs, err := s.join(newRel)
	if err != nil {
		return "", nil, err
	}
	if err := writeAtomic(newAbs, r); err != nil {
		return "", nil, err
	}
	info, err := statFile(newRel, newAbs)
	if err != nil {
		return "", nil, err
	}
	return newRel, info, nil
}

// Remove deletes the identified file.
func (s *Store) Remove(id string) error {
	_, abs, err := s.resolve(id)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("remove %s: %w", abs, err)
	}
	return nil
}

// ListDocuments walks the store and returns every file whose extension is in
// exts, sorted by relative path.
func (s *Store) ListDocuments(exts []string) ([]FileInfo, error) {
	var out []FileInfo
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		matched := false
		for _, ext := range exts {
			if strings.HasSuffix(d.Name(), ext) {
				matched = true
				break
			}
		}
		if !matched {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, FileInfo{
			Name:    d.Name(),
			Rel:     filepath.ToSlash(rel),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rel < out[j].Rel })
	return out, nil
}

func statFile(rel, abs string) (*FileInfo, error) {
	fi, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("stat %s: %w", abs, err)
	}
	if fi.IsDir() {
		return nil, ErrNotFound
	}
	return &FileInfo{
		Name:    filepath.Base(abs),
		Rel:     rel,
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
	}, nil
}

// writeAtomic streams r into a temp file next to dest and renames it over
// dest on success. The temp file is removed on every failure path.
func writeAtomic(dest string, r io.Reader) error {
	dir := filepath.Dir(dest)
	tmp := filepath.Join(dir, "."+uuid.NewString()+".tmp")
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write content: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit write: %w", err)
	}
	return nil
}
