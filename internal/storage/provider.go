// Package storage defines where run artifacts are written.
// Implementations live in the local, memory and gcs subpackages.
package storage

import (
	"context"
	"io"
	"path"
	"strings"
)

// BlobStore writes an object and returns a URI for it.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// ObjectPath joins an optional prefix and name using forward slashes.
func ObjectPath(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}
