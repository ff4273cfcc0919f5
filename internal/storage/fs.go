package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

type FSStore struct{ base string }

func NewFSStore(base string) (*FSStore, error) {
	if base == "" {
		base = "./data"
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, errors.Wrap(err, "create blob dir")
	}
	return &FSStore{base: base}, nil
}

// path maps key below the base directory, refusing keys that climb out of it.
func (s *FSStore) path(key string) (string, error) {
	clean := filepath.Clean("/" + strings.TrimSpace(key))
	if key == "" || clean == "/" {
		return "", errors.New("empty key")
	}
	return filepath.Join(s.base, clean), nil
}

// Put writes to a temp file first so a reader never sees a partial blob.
func (s *FSStore) Put(key string, r io.Reader) (string, error) {
	dst, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", errors.Wrap(err, "create blob dir")
	}
	f, err := os.CreateTemp(filepath.Dir(dst), ".put-*")
	if err != nil {
		return "", errors.Wrap(err, "create blob")
	}
	defer os.Remove(f.Name())
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", errors.Wrapf(err, "write blob %s", key)
	}
	if err := f.Close(); err != nil {
		return "", errors.Wrapf(err, "write blob %s", key)
	}
	if err := os.Rename(f.Name(), dst); err != nil {
		return "", errors.Wrapf(err, "write blob %s", key)
	}
	return filepath.ToSlash(strings.TrimPrefix(dst, filepath.Clean(s.base)+string(filepath.Separator))), nil
}

// Get opens key. The returned *os.File also satisfies io.ReadSeeker, which
// lets the HTTP layer serve byte ranges.
func (s *FSStore) Get(key string) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(ErrNotFound, "blob %s", key)
	}
	return f, err
}

func (s *FSStore) Delete(key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if os.IsNotExist(err) {
		return errors.Wrapf(ErrNotFound, "blob %s", key)
	}
	return err
}
