// Package objectstore defines the blob storage port used for expense
// attachments and the signed URLs that expose them to browsers.
package objectstore

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

var (
	ErrNotFound    = errors.New("object not found")
	ErrInvalidPath = errors.New("invalid object path")
)

// DefaultContentType is reported for blobs stored without one.
const DefaultContentType = "application/octet-stream"

// Object is a downloaded blob.
type Object struct {
	Path        string
	ContentType string
	Data        []byte
}

// Store is a path-addressed blob store.
type Store interface {
	Upload(ctx context.Context, path, contentType string, r io.Reader) error
	Download(ctx context.Context, path string) (*Object, error)
	// Remove deletes every path. Missing paths are not an error.
	Remove(ctx context.Context, paths ...string) error
	// List returns the paths under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// CleanPath validates an object path and returns it in canonical form.
// Absolute paths, empty segments and ".." are rejected.
func CleanPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return "", ErrInvalidPath
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", ErrInvalidPath
		}
	}
	return path.Clean(p), nil
}

// ContentTypeOrDefault maps an empty content type to DefaultContentType.
func ContentTypeOrDefault(contentType string) string {
	if strings.TrimSpace(contentType) == "" {
		return DefaultContentType
	}
	return contentType
}
