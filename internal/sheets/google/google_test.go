package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	goption "google.golang.org/api/option"

	"notaspese/internal/core"
)

// fakeSheets serves the handful of Sheets v4 endpoints the exporter calls.
type fakeSheets struct {
	mu      sync.Mutex
	tabs    map[string]bool
	cleared []string
	added   []string
	updates map[string][][]string
}

func newFakeSheets(tabs ...string) *fakeSheets {
	f := &fakeSheets{tabs: map[string]bool{}, updates: map[string][][]string{}}
	for _, t := range tabs {
		f.tabs[t] = true
	}
	return f
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := strings.TrimPrefix(r.URL.Path, "/v4/spreadsheets/sheet-id")
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && p == "":
		type props struct {
			Title string `json:"title"`
		}
		type sheet struct {
			Properties props `json:"properties"`
		}
		var sheets []sheet
		for t := range f.tabs {
			sheets = append(sheets, sheet{Properties: props{Title: t}})
		}
		json.NewEncoder(w).Encode(map[string]any{"sheets": sheets})

	case r.Method == http.MethodPost && p == ":batchUpdate":
		var req struct {
			Requests []struct {
				AddSheet struct {
					Properties struct {
						Title string `json:"title"`
					} `json:"properties"`
				} `json:"addSheet"`
			} `json:"requests"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, rq := range req.Requests {
			title := rq.AddSheet.Properties.Title
			f.tabs[title] = true
			f.added = append(f.added, title)
		}
		w.Write([]byte(`{"spreadsheetId":"sheet-id"}`))

	case r.Method == http.MethodPost && strings.HasPrefix(p, "/values/") && strings.HasSuffix(p, ":clear"):
		rng := strings.TrimSuffix(strings.TrimPrefix(p, "/values/"), ":clear")
		f.cleared = append(f.cleared, rng)
		w.Write([]byte(`{"clearedRange":"` + rng + `"}`))

	case r.Method == http.MethodPut && strings.HasPrefix(p, "/values/"):
		rng := strings.TrimPrefix(p, "/values/")
		if r.URL.Query().Get("valueInputOption") != "RAW" {
			http.Error(w, "valueInputOption", http.StatusBadRequest)
			return
		}
		var vr struct {
			Values [][]string `json:"values"`
		}
		if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.updates[rng] = vr.Values
		json.NewEncoder(w).Encode(map[string]any{"updatedRange": rng, "updatedRows": len(vr.Values)})

	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), "sheet-id", nil,
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c
}

var reportValues = [][]string{
	{"giorno", "descrizione", "aliquota", "imponibile", "imposta", "imponibile", "imposta", "totale spese documentate"},
	{"5", "coworking", "", "", "", "", "", "4.50"},
}

func TestExportMonthCreatesTab(t *testing.T) {
	fake := newFakeSheets("2023-12")
	c := newTestClient(t, fake)

	ref, err := c.ExportMonth(context.Background(), core.Month{Year: 2024, Month: time.January}, reportValues)
	require.NoError(t, err)

	assert.Equal(t, "'2024-01'!A1", ref)
	assert.Equal(t, []string{"2024-01"}, fake.added)
	assert.Empty(t, fake.cleared)
	assert.Equal(t, reportValues, fake.updates["'2024-01'!A1"])
}

func TestExportMonthClearsExistingTab(t *testing.T) {
	fake := newFakeSheets("2024-01")
	c := newTestClient(t, fake)

	_, err := c.ExportMonth(context.Background(), core.Month{Year: 2024, Month: time.January}, reportValues)
	require.NoError(t, err)

	assert.Empty(t, fake.added)
	assert.Equal(t, []string{"'2024-01'"}, fake.cleared)
}

func TestNewRequiresSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), "  ", nil, goption.WithoutAuthentication())
	assert.Error(t, err)
}

func TestQuoteTab(t *testing.T) {
	assert.Equal(t, "'2024-01'", quoteTab("2024-01"))
	assert.Equal(t, "'it''s'", quoteTab("it's"))
}
