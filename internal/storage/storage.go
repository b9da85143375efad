package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrTooLarge is returned when an upload exceeds MaxBytes.
var ErrTooLarge = errors.New("file exceeds upload limit")

// Store keeps uploaded attachments under Dir with generated names.
type Store struct {
	Dir      string
	MaxBytes int64
}

// Save copies r into a new file and returns its path relative to Dir.
// The original extension is kept; the name is a fresh UUID.
func (s Store) Save(r io.Reader, originalName string) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", err
	}
	ext := strings.ToLower(filepath.Ext(filepath.Base(originalName)))
	name := uuid.NewString() + ext
	full := filepath.Join(s.Dir, name)
	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", err
	}
	src := r
	if s.MaxBytes > 0 {
		src = io.LimitReader(r, s.MaxBytes+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && s.MaxBytes > 0 && n > s.MaxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		os.Remove(full)
		return "", err
	}
	return name, nil
}

// Open returns a reader for a stored file.
func (s Store) Open(rel string) (*os.File, error) {
	full, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

// Remove deletes a stored file; missing files are not an error.
func (s Store) Remove(rel string) error {
	if rel == "" {
		return nil
	}
	full, err := s.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s Store) resolve(rel string) (string, error) {
	clean := filepath.Clean(rel)
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid attachment path %q", rel)
	}
	return filepath.Join(s.Dir, clean), nil
}
