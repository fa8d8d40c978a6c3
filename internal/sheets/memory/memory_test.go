package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notaspese/internal/core"
)

func TestExportMonthReplacesTab(t *testing.T) {
	s := New()
	m := core.Month{Year: 2024, Month: time.March}

	ref, err := s.ExportMonth(context.Background(), m, [][]string{{"a"}, {"b"}})
	require.NoError(t, err)
	assert.Equal(t, "mem:2024-03!A1", ref)

	_, err = s.ExportMonth(context.Background(), m, [][]string{{"c"}})
	require.NoError(t, err)

	got, ok := s.Tab("2024-03")
	require.True(t, ok)
	assert.Equal(t, [][]string{{"c"}}, got)
}

func TestExportMonthCopiesValues(t *testing.T) {
	s := New()
	values := [][]string{{"a"}}
	_, err := s.ExportMonth(context.Background(), core.Month{Year: 2024, Month: time.March}, values)
	require.NoError(t, err)

	values[0][0] = "mutated"
	got, _ := s.Tab("2024-03")
	assert.Equal(t, "a", got[0][0])
}

func TestExportMonthRejectsZeroMonth(t *testing.T) {
	_, err := New().ExportMonth(context.Background(), core.Month{}, nil)
	assert.Error(t, err)
}
