package backend

import (
	"context"

	"notaspese/internal/objectstore"
)

// CleanupFunc releases resources held by a backend.
type CleanupFunc func() error

// BackendResult contains the object store and an optional cleanup function
type BackendResult struct {
	Store   objectstore.Store
	Cleanup CleanupFunc
}

// Factory creates object stores based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// Local filesystem
	StorageDir string

	// Google Cloud Storage
	GCSBucket             string
	GoogleCredentialsFile string
	GoogleCredentialsJSON string
}

// BackendType names an attachment storage backend
type BackendType string

const (
	LocalBackend  BackendType = "local"
	GCSBackend    BackendType = "gcs"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case LocalBackend, GCSBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
