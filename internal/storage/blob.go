package storage

import (
	"io"

	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("blob not found")

// BlobStore holds training videos and fingerprint templates by key.
type BlobStore interface {
	Put(key string, r io.Reader) (string, error) // returns canonical key
	Get(key string) (io.ReadCloser, error)
	Delete(key string) error
}
