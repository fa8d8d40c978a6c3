package backend

import (
	"context"
	"fmt"
	"log/slog"

	"notaspese/internal/objectstore/gcs"
	"notaspese/internal/objectstore/local"
	"notaspese/internal/objectstore/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case LocalBackend:
		return f.createLocalBackend(config)
	case GCSBackend:
		return f.createGCSBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createLocalBackend(config Config) (*BackendResult, error) {
	store, err := local.New(config.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize local object store: %w", err)
	}

	f.logger.Info("Initialized local object store", "storage_dir", config.StorageDir)
	return &BackendResult{Store: store}, nil
}

func (f *DefaultFactory) createGCSBackend(ctx context.Context, config Config) (*BackendResult, error) {
	store, err := gcs.New(ctx, config.GCSBucket,
		GoogleClientOptions(config.GoogleCredentialsFile, config.GoogleCredentialsJSON)...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCS object store: %w", err)
	}

	f.logger.Info("Initialized GCS object store", "bucket", config.GCSBucket)
	return &BackendResult{Store: store}, nil
}

func (f *DefaultFactory) createMemoryBackend() (*BackendResult, error) {
	f.logger.Warn("Using in-memory object store, attachments are lost on restart")
	return &BackendResult{Store: memory.New()}, nil
}
