package services

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"notaspese/internal/cache"
	"notaspese/internal/core"
	sheetsmem "notaspese/internal/sheets/memory"
	"notaspese/internal/storage"
)

var january = core.Month{Year: 2024, Month: time.January}

type ReportServiceTestSuite struct {
	suite.Suite
	ctx     context.Context
	repo    *storage.SQLiteRepository
	blobs   *countingStore
	months  *cache.LRUCache[[]core.MonthCount]
	service *ReportService
	user    core.User
}

func (s *ReportServiceTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.repo = newTestRepo(s.T())
	s.blobs = newCountingStore()
	s.months = cache.NewLRUCache[[]core.MonthCount](10, time.Minute)
	s.service = NewReportService(s.repo, s.blobs, s.months, nil)

	var err error
	s.user, err = s.repo.CreateUser(s.ctx, "alice@example.com", "hash")
	require.NoError(s.T(), err)
}

func (s *ReportServiceTestSuite) add(date, merchant string, cents int64, category, attachment string) core.Expense {
	d, err := core.ParseDate(date)
	require.NoError(s.T(), err)
	e, err := s.repo.CreateExpense(s.ctx, core.Expense{
		UserID:     s.user.ID,
		Date:       d,
		Merchant:   merchant,
		Amount:     core.Money{Cents: cents},
		Category:   category,
		Attachment: attachment,
	})
	require.NoError(s.T(), err)
	return e
}

func (s *ReportServiceTestSuite) TestMonthCSV() {
	s.add("2024-01-05", "Coffee Shop", 450, "coworking", "")
	s.add("2024-01-12", "Hub", 1000, "coworking", "")
	s.add("2024-01-12", "Hub", 250, "coworking", "")
	s.add("2024-01-12", "Lab", 99, "test", "")
	s.add("2024-02-01", "Elsewhere", 100, "coworking", "")

	var buf bytes.Buffer
	require.NoError(s.T(), s.service.WriteMonthCSV(s.ctx, &buf, s.user.ID, january))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(s.T(), lines, 4)
	assert.Equal(s.T(), "giorno,descrizione,aliquota,imponibile,imposta,imponibile,imposta,totale spese documentate", lines[0])
	assert.Equal(s.T(), "5,coworking,,,,,,4.50", lines[1])
	assert.Equal(s.T(), "12,coworking,,,,,,12.50", lines[2])
	assert.Equal(s.T(), "12,test,,,,,,0.99", lines[3])
}

func (s *ReportServiceTestSuite) TestMonthCSVEmptyMonth() {
	var buf bytes.Buffer
	require.NoError(s.T(), s.service.WriteMonthCSV(s.ctx, &buf, s.user.ID, january))
	assert.Equal(s.T(), strings.Join(CSVHeader, ",")+"\n", buf.String())
}

func (s *ReportServiceTestSuite) TestMonthsCachedUntilChanged() {
	s.add("2024-01-05", "a", 100, "test", "")

	months, err := s.service.Months(s.ctx, s.user.ID)
	require.NoError(s.T(), err)
	require.Len(s.T(), months, 1)

	s.add("2024-03-05", "b", 100, "test", "")
	months, err = s.service.Months(s.ctx, s.user.ID)
	require.NoError(s.T(), err)
	assert.Len(s.T(), months, 1, "served from cache")

	s.service.ExpensesChanged(s.user.ID)
	months, err = s.service.Months(s.ctx, s.user.ID)
	require.NoError(s.T(), err)
	require.Len(s.T(), months, 2)
	assert.Equal(s.T(), core.Month{Year: 2024, Month: time.March}, months[0].Month)
}

func (s *ReportServiceTestSuite) TestAttachmentBundle() {
	png := s.user.ID + "/one.png"
	require.NoError(s.T(), s.blobs.Upload(s.ctx, png, "image/png", strings.NewReader("png-bytes")))
	pdf := s.user.ID + "/two"
	require.NoError(s.T(), s.blobs.Upload(s.ctx, pdf, "application/pdf", strings.NewReader("pdf-bytes")))

	first := s.add("2024-01-05", "Coffee Shop", 450, "coworking", png)
	second := s.add("2024-01-20", "Print & Co", 1200, "test", pdf)
	s.add("2024-01-21", "Gone", 100, "test", s.user.ID+"/missing.png")
	s.add("2024-01-22", "None", 100, "test", "")
	s.add("2024-02-05", "Later", 100, "test", png)

	var buf bytes.Buffer
	result, err := s.service.WriteAttachmentBundle(s.ctx, &buf, s.user.ID, january)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 1, result.Skipped)

	wantFirst := "2024-01-05-coworking-coffee-shop-" + first.ID + ".png"
	wantSecond := "2024-01-20-test-print-co-" + second.ID + ".pdf"
	assert.Equal(s.T(), []string{wantFirst, wantSecond}, result.Entries)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(s.T(), err)
	require.Len(s.T(), zr.File, 2)
	assert.Equal(s.T(), wantFirst, zr.File[0].Name)

	rc, err := zr.File[0].Open()
	require.NoError(s.T(), err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "png-bytes", string(data))
}

func (s *ReportServiceTestSuite) TestAttachmentBundleNoAttachments() {
	s.add("2024-01-05", "a", 100, "test", "")

	var buf bytes.Buffer
	_, err := s.service.WriteAttachmentBundle(s.ctx, &buf, s.user.ID, january)
	assert.ErrorIs(s.T(), err, ErrNoAttachments)
	assert.Zero(s.T(), buf.Len())
}

func (s *ReportServiceTestSuite) TestAttachmentBundleSkipsFailedDownloads() {
	p := s.user.ID + "/flaky.png"
	require.NoError(s.T(), s.blobs.Upload(s.ctx, p, "image/png", strings.NewReader("x")))
	s.blobs.downloadErr[p] = errInjected
	s.add("2024-01-05", "a", 100, "test", p)

	var buf bytes.Buffer
	result, err := s.service.WriteAttachmentBundle(s.ctx, &buf, s.user.ID, january)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), result.Entries)
	assert.Equal(s.T(), 1, result.Skipped)
}

func (s *ReportServiceTestSuite) TestExportMonth() {
	_, err := s.service.ExportMonth(s.ctx, s.user.ID, january)
	assert.ErrorIs(s.T(), err, ErrExportDisabled)

	exporter := sheetsmem.New()
	s.service.SetExporter(exporter)
	assert.True(s.T(), s.service.CanExport())

	s.add("2024-01-05", "Coffee Shop", 450, "coworking", "")
	_, err = s.service.ExportMonth(s.ctx, s.user.ID, january)
	require.NoError(s.T(), err)

	tab, ok := exporter.Tab("2024-01")
	require.True(s.T(), ok)
	require.Len(s.T(), tab, 2)
	assert.Equal(s.T(), CSVHeader, tab[0])
	assert.Equal(s.T(), []string{"5", "coworking", "", "", "", "", "", "4.50"}, tab[1])
}

func TestReportServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ReportServiceTestSuite))
}

func TestReportFilenames(t *testing.T) {
	assert.Equal(t, "2024-01-expense-report.zip", BundleFilename(january))
	assert.Equal(t, "2024-01-expense-report.csv", CSVFilename(january))
	assert.Equal(t, "2023-11-expense-report.zip", BundleFilename(core.Month{Year: 2023, Month: time.November}))
}

func TestReportRowRecord(t *testing.T) {
	row := ReportRow{Day: 5, Category: "coworking", Total: core.Money{Cents: 450}}
	assert.Equal(t, []string{"5", "coworking", "", "", "", "", "", "4.50"}, row.Record())
}
