// Package gcs stores blobs in a Google Cloud Storage bucket through the JSON API.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gstorage "google.golang.org/api/storage/v1"

	"notaspese/internal/objectstore"
)

type Store struct {
	svc    *gstorage.Service
	bucket string
}

var _ objectstore.Store = (*Store)(nil)

// New creates a bucket-scoped store. Authentication follows the given client
// options, or Application Default Credentials when none are passed.
func New(ctx context.Context, bucket string, opts ...option.ClientOption) (*Store, error) {
	if bucket == "" {
		return nil, errors.New("gcs object store: empty bucket name")
	}
	opts = append([]option.ClientOption{option.WithScopes(gstorage.DevstorageReadWriteScope)}, opts...)
	svc, err := gstorage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage service: %w", err)
	}
	slog.InfoContext(ctx, "Initialized GCS object store", "bucket", bucket)
	return &Store{svc: svc, bucket: bucket}, nil
}

func (s *Store) Upload(ctx context.Context, p, contentType string, r io.Reader) error {
	name, err := objectstore.CleanPath(p)
	if err != nil {
		return err
	}
	contentType = objectstore.ContentTypeOrDefault(contentType)
	_, err = s.svc.Objects.Insert(s.bucket, &gstorage.Object{Name: name, ContentType: contentType}).
		Media(r, googleapi.ContentType(contentType)).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	return nil
}

func (s *Store) Download(ctx context.Context, p string) (*objectstore.Object, error) {
	resp, err := s.svc.Objects.Get(s.bucket, p).Context(ctx).Download()
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s: %w", p, objectstore.ErrNotFound)
		}
		return nil, fmt.Errorf("download %s: %w", p, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return &objectstore.Object{
		Path:        p,
		ContentType: objectstore.ContentTypeOrDefault(resp.Header.Get("Content-Type")),
		Data:        data,
	}, nil
}

func (s *Store) Remove(ctx context.Context, paths ...string) error {
	var errs []error
	for _, p := range paths {
		if err := s.svc.Objects.Delete(s.bucket, p).Context(ctx).Do(); err != nil && !isNotFound(err) {
			errs = append(errs, fmt.Errorf("remove %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	err := s.svc.Objects.List(s.bucket).Prefix(prefix).Fields("nextPageToken", "items/name").
		Pages(ctx, func(page *gstorage.Objects) error {
			for _, obj := range page.Items {
				out = append(out, obj.Name)
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	sort.Strings(out)
	return out, nil
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}
