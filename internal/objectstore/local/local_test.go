package local

import (
	"context"
	"errors"
	"strings"
	"testing"

	"notaspese/internal/objectstore"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestStore_UploadDownload(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	if err := s.Upload(ctx, "u1/receipt.png", "image/png", strings.NewReader("png-bytes")); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	obj, err := s.Download(ctx, "u1/receipt.png")
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if string(obj.Data) != "png-bytes" {
		t.Errorf("Data = %q, want png-bytes", obj.Data)
	}
	if obj.ContentType != "image/png" {
		t.Errorf("ContentType = %q, want image/png", obj.ContentType)
	}
}

func TestStore_DefaultContentType(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	if err := s.Upload(ctx, "u1/blob", "", strings.NewReader("x")); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	obj, err := s.Download(ctx, "u1/blob")
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if obj.ContentType != objectstore.DefaultContentType {
		t.Errorf("ContentType = %q, want %q", obj.ContentType, objectstore.DefaultContentType)
	}
}

func TestStore_DownloadMissing(t *testing.T) {
	_, err := newStore(t).Download(context.Background(), "u1/missing.png")
	if !errors.Is(err, objectstore.ErrNotFound) {
		t.Errorf("Download() error = %v, want ErrNotFound", err)
	}
}

func TestStore_RejectsTraversal(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	for _, p := range []string{"../escape", "u1/../../escape", "/etc/passwd", "", "u1//x", "u1/.x.meta"} {
		if err := s.Upload(ctx, p, "text/plain", strings.NewReader("x")); !errors.Is(err, objectstore.ErrInvalidPath) {
			t.Errorf("Upload(%q) error = %v, want ErrInvalidPath", p, err)
		}
	}
}

func TestStore_MetaExtensionIsAnOrdinaryName(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	if err := s.Upload(ctx, "u1/notes.meta", "text/plain", strings.NewReader("notes")); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	obj, err := s.Download(ctx, "u1/notes.meta")
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if string(obj.Data) != "notes" || obj.ContentType != "text/plain" {
		t.Errorf("Download() = %q %q", obj.Data, obj.ContentType)
	}

	got, err := s.List(ctx, "u1/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 1 || got[0] != "u1/notes.meta" {
		t.Errorf("List(u1/) = %v, want only the object", got)
	}
}

func TestStore_RemoveAndList(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	for _, p := range []string{"u1/a.png", "u1/b.pdf", "u2/c.png"} {
		if err := s.Upload(ctx, p, "application/octet-stream", strings.NewReader(p)); err != nil {
			t.Fatalf("Upload(%q) error = %v", p, err)
		}
	}

	got, err := s.List(ctx, "u1/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 2 || got[0] != "u1/a.png" || got[1] != "u1/b.pdf" {
		t.Errorf("List(u1/) = %v", got)
	}

	if err := s.Remove(ctx, "u1/a.png", "u1/missing.png"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := s.Download(ctx, "u1/a.png"); !errors.Is(err, objectstore.ErrNotFound) {
		t.Errorf("removed object still downloadable: %v", err)
	}

	got, _ = s.List(ctx, "u1/")
	if len(got) != 1 || got[0] != "u1/b.pdf" {
		t.Errorf("List after remove = %v", got)
	}
}
