package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotExist is returned by Get when nothing is stored at the path
var ErrNotExist = errors.New("object does not exist")

// Adapter defines the interface for storage backends.
// Paths are slash-separated keys such as "books/<id>/metadata.json".
type Adapter interface {
	// Put stores data at the given path
	Put(ctx context.Context, path string, data io.Reader) error

	// Get retrieves data from the given path
	Get(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes data at the given path
	Delete(ctx context.Context, path string) error

	// Exists checks if data exists at the given path
	Exists(ctx context.Context, path string) (bool, error)

	// List returns paths matching the given prefix
	List(ctx context.Context, prefix string) ([]string, error)

	// Close cleans up any resources
	Close() error
}

// DeletePrefix removes every object under prefix and returns how many were removed
func DeletePrefix(ctx context.Context, a Adapter, prefix string) (int, error) {
	paths, err := a.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	for i, p := range paths {
		if err := a.Delete(ctx, p); err != nil {
			return i, err
		}
	}
	return len(paths), nil
}
