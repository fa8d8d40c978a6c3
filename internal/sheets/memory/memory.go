package memory

import (
	"context"
	"fmt"
	"sync"

	"notaspese/internal/core"
	ports "notaspese/internal/sheets"
)

// Store keeps exported reports in memory, one tab per month.
type Store struct {
	mu   sync.Mutex
	tabs map[string][][]string
}

var _ ports.ReportExporter = (*Store)(nil)

func New() *Store {
	return &Store{tabs: make(map[string][][]string)}
}

// ExportMonth replaces the tab of month m.
func (s *Store) ExportMonth(_ context.Context, m core.Month, values [][]string) (string, error) {
	if m.IsZero() {
		return "", fmt.Errorf("invalid month")
	}
	tab := ports.TabName(m)
	copied := make([][]string, len(values))
	for i, row := range values {
		copied[i] = append([]string(nil), row...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tabs[tab] = copied
	return fmt.Sprintf("mem:%s!A1", tab), nil
}

// Tab returns the values written to tab, if any.
func (s *Store) Tab(tab string) ([][]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.tabs[tab]
	return v, ok
}
