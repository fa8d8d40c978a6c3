// Package memory is an in-process object store for development and tests.
package memory

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"notaspese/internal/objectstore"
)

type Store struct {
	mu      sync.RWMutex
	objects map[string]objectstore.Object
}

var _ objectstore.Store = (*Store)(nil)

func New() *Store {
	return &Store{objects: make(map[string]objectstore.Object)}
}

func (s *Store) Upload(ctx context.Context, p, contentType string, r io.Reader) error {
	clean, err := objectstore.CleanPath(p)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read upload: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[clean] = objectstore.Object{
		Path:        clean,
		ContentType: objectstore.ContentTypeOrDefault(contentType),
		Data:        data,
	}
	return nil
}

func (s *Store) Download(ctx context.Context, p string) (*objectstore.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[p]
	if !ok {
		return nil, fmt.Errorf("%s: %w", p, objectstore.ErrNotFound)
	}
	data := make([]byte, len(obj.Data))
	copy(data, obj.Data)
	obj.Data = data
	return &obj, nil
}

func (s *Store) Remove(ctx context.Context, paths ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range paths {
		delete(s.objects, p)
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for p := range s.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Has reports whether p is stored.
func (s *Store) Has(p string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[p]
	return ok
}

// Len returns the number of stored objects.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
