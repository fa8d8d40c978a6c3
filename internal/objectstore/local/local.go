// Package local stores blobs as files under a root directory.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"notaspese/internal/objectstore"
)

// metaSuffix names the sidecar file holding the content type of a blob. The
// sidecar is hidden, and hidden names are never valid object names.
const metaSuffix = ".meta"

type Store struct {
	root string
}

var _ objectstore.Store = (*Store)(nil)

func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("local object store: empty root directory")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &Store{root: abs}, nil
}

func (s *Store) resolve(p string) (string, error) {
	clean, err := objectstore.CleanPath(p)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(path.Base(clean), ".") {
		return "", objectstore.ErrInvalidPath
	}
	full := filepath.Join(s.root, filepath.FromSlash(clean))
	if !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", objectstore.ErrInvalidPath
	}
	return full, nil
}

func (s *Store) Upload(ctx context.Context, p, contentType string, r io.Reader) error {
	full, err := s.resolve(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, contextReader{ctx: ctx, r: r}); err != nil {
		tmp.Close()
		return fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close object: %w", err)
	}
	if err := os.WriteFile(metaPath(full), []byte(objectstore.ContentTypeOrDefault(contentType)), 0o644); err != nil {
		return fmt.Errorf("write object metadata: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return fmt.Errorf("commit object: %w", err)
	}

	slog.DebugContext(ctx, "Object stored", "path", p, "content_type", contentType)
	return nil
}

func (s *Store) Download(ctx context.Context, p string) (*objectstore.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", p, objectstore.ErrNotFound)
		}
		return nil, fmt.Errorf("read object: %w", err)
	}
	contentType := objectstore.DefaultContentType
	if meta, err := os.ReadFile(metaPath(full)); err == nil {
		contentType = objectstore.ContentTypeOrDefault(string(meta))
	}
	return &objectstore.Object{Path: p, ContentType: contentType, Data: data}, nil
}

func (s *Store) Remove(ctx context.Context, paths ...string) error {
	var errs []error
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		full, err := s.resolve(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
			continue
		}
		for _, f := range []string{full, metaPath(full)} {
			if err := os.Remove(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, fmt.Errorf("remove %s: %w", p, err))
			}
		}
	}
	return errors.Join(errs...)
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(s.root, func(full string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(s.root, full)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, prefix) {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

func metaPath(full string) string {
	return filepath.Join(filepath.Dir(full), "."+filepath.Base(full)+metaSuffix)
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
