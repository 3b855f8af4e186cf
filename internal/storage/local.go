// Package storage is the object store behind file uploads. Only the
// reference it returns (name, url, display size) is registered against a
// project; the bytes never touch the database.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/iliyamo/agency-portal/internal/model"
)

// ErrTooLarge is returned when an upload exceeds the store's limit.
var ErrTooLarge = errors.New("file too large")

// LocalStore keeps objects in a directory served under BaseURL.
type LocalStore struct {
	Dir      string
	BaseURL  string // e.g. "https://portal.example.com/uploads" or "/uploads"
	MaxBytes int64
}

// NewLocalStore creates dir if needed.
func NewLocalStore(dir, baseURL string, maxBytes int64) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	if maxBytes <= 0 {
		maxBytes = 50 << 20
	}
	return &LocalStore{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/"), MaxBytes: maxBytes}, nil
}

// Save copies r into a new object named after name and returns its
// reference. The stored key is prefixed with a uuid so identical names
// never collide.
func (s *LocalStore) Save(name string, r io.Reader) (model.FileMeta, error) {
	name = SanitizeName(name)
	key := uuid.NewString() + "-" + name

	tmp, err := os.CreateTemp(s.Dir, ".upload-*")
	if err != nil {
		return model.FileMeta{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmp.Name())
		}
	}()

	n, err := io.Copy(tmp, io.LimitReader(r, s.MaxBytes+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return model.FileMeta{}, err
	}
	if n > s.MaxBytes {
		return model.FileMeta{}, ErrTooLarge
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.Dir, key)); err != nil {
		return model.FileMeta{}, err
	}
	committed = true

	return model.FileMeta{
		Name: name,
		Size: humanize.Bytes(uint64(n)),
		URL:  s.BaseURL + "/" + key,
	}, nil
}

// SanitizeName strips directories and characters that do not belong in a
// file name. An empty result becomes "file".
func SanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == 0 || r < 0x20:
		case r == ' ':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "file"
	}
	return out
}
