package services

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"notaspese/internal/core"
	"notaspese/internal/objectstore"
	"notaspese/internal/objectstore/memory"
	"notaspese/internal/storage"
)

var errInjected = errors.New("injected failure")

// countingStore wraps a memory store, counts calls and injects failures.
type countingStore struct {
	*memory.Store

	mu          sync.Mutex
	calls       int
	uploadErr   error
	removeErr   error
	listErr     error
	downloadErr map[string]error
}

func newCountingStore() *countingStore {
	return &countingStore{Store: memory.New(), downloadErr: map[string]error{}}
}

func (s *countingStore) count() {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
}

func (s *countingStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *countingStore) Upload(ctx context.Context, p, contentType string, r io.Reader) error {
	s.count()
	if s.uploadErr != nil {
		return s.uploadErr
	}
	return s.Store.Upload(ctx, p, contentType, r)
}

func (s *countingStore) Download(ctx context.Context, p string) (*objectstore.Object, error) {
	s.count()
	if err := s.downloadErr[p]; err != nil {
		return nil, err
	}
	return s.Store.Download(ctx, p)
}

func (s *countingStore) Remove(ctx context.Context, paths ...string) error {
	s.count()
	if s.removeErr != nil {
		return s.removeErr
	}
	return s.Store.Remove(ctx, paths...)
}

func (s *countingStore) List(ctx context.Context, prefix string) ([]string, error) {
	s.count()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.Store.List(ctx, prefix)
}

// failingExpenseStore injects row-level failures in front of the repository.
type failingExpenseStore struct {
	ExpenseStore
	createErr error
	updateErr error
	deleteErr error
}

func (s *failingExpenseStore) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if s.createErr != nil {
		return core.Expense{}, s.createErr
	}
	return s.ExpenseStore.CreateExpense(ctx, e)
}

func (s *failingExpenseStore) UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if s.updateErr != nil {
		return core.Expense{}, s.updateErr
	}
	return s.ExpenseStore.UpdateExpense(ctx, e)
}

func (s *failingExpenseStore) DeleteExpense(ctx context.Context, userID, id string) (core.Expense, error) {
	if s.deleteErr != nil {
		return core.Expense{}, s.deleteErr
	}
	return s.ExpenseStore.DeleteExpense(ctx, userID, id)
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []core.Orphan
}

func (p *recordingPublisher) PublishOrphanedAttachment(_ context.Context, o core.Orphan) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, o)
	return nil
}

func (p *recordingPublisher) Published() []core.Orphan {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]core.Orphan(nil), p.published...)
}

func newTestRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "services.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func upload(name, contentType, body string) *Upload {
	return &Upload{
		Filename:    name,
		ContentType: contentType,
		Size:        int64(len(body)),
		Body:        strings.NewReader(body),
	}
}

func coffee() core.Expense {
	return core.Expense{
		Date:     core.NewDate(2024, 1, 5),
		Merchant: "Coffee Shop",
		Amount:   core.Money{Cents: 450},
		Category: "coworking",
	}
}
