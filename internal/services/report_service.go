package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"notaspese/internal/cache"
	"notaspese/internal/core"
	"notaspese/internal/log"
	"notaspese/internal/objectstore"
)

// CSVHeader is the first record of every monthly report.
var CSVHeader = []string{
	"giorno",
	"descrizione",
	"aliquota",
	"imponibile",
	"imposta",
	"imponibile",
	"imposta",
	"totale spese documentate",
}

const (
	downloadConcurrency = 4
	monthCacheTTL       = 5 * time.Minute
)

// ReportStore provides the aggregates and rows the reports are built from.
type ReportStore interface {
	ListMonthCounts(ctx context.Context, userID string) ([]core.MonthCount, error)
	ListDailyCategoryTotals(ctx context.Context, userID string, m core.Month) ([]core.DailyCategoryTotal, error)
	ListExpensesWithAttachment(ctx context.Context, userID string, from, to core.Date) ([]core.Expense, error)
}

// ReportRow is one line of a monthly report: a day, a category and its total.
type ReportRow struct {
	Day      int
	Category string
	Total    core.Money
}

// Record formats the row with the five tax columns left empty.
func (r ReportRow) Record() []string {
	return []string{strconv.Itoa(r.Day), r.Category, "", "", "", "", "", r.Total.String()}
}

// BundleResult describes a written attachment archive.
type BundleResult struct {
	Entries []string
	Skipped int
}

// MonthExporter publishes the rows of a monthly report, header included.
type MonthExporter interface {
	ExportMonth(ctx context.Context, m core.Month, values [][]string) (string, error)
}

type ReportService struct {
	store    ReportStore
	blobs    objectstore.Store
	months   cache.Cache[[]core.MonthCount]
	exporter MonthExporter
	logger   *log.Logger
}

// NewReportService caches month listings in months when it is not nil.
func NewReportService(store ReportStore, blobs objectstore.Store, months cache.Cache[[]core.MonthCount], logger *log.Logger) *ReportService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &ReportService{
		store:  store,
		blobs:  blobs,
		months: months,
		logger: logger.WithComponent(log.ComponentReport),
	}
}

// ExpensesChanged drops the cached month listing of userID.
func (s *ReportService) ExpensesChanged(userID string) {
	if s.months != nil {
		s.months.Delete(userID)
	}
}

// Months lists the months holding at least one expense, newest first.
func (s *ReportService) Months(ctx context.Context, userID string) ([]core.MonthCount, error) {
	if s.months != nil {
		if cached, ok := s.months.Get(userID); ok {
			return cached, nil
		}
	}
	months, err := s.store.ListMonthCounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list months: %w", err)
	}
	if s.months != nil {
		s.months.SetWithTTL(userID, months, monthCacheTTL)
	}
	return months, nil
}

// MonthRows returns the per-day, per-category totals of month m.
func (s *ReportService) MonthRows(ctx context.Context, userID string, m core.Month) ([]ReportRow, error) {
	totals, err := s.store.ListDailyCategoryTotals(ctx, userID, m)
	if err != nil {
		return nil, fmt.Errorf("list daily totals: %w", err)
	}
	rows := make([]ReportRow, 0, len(totals))
	for _, t := range totals {
		if !m.Contains(t.Date) || t.Category == "" || t.Total.Cents == 0 {
			continue
		}
		rows = append(rows, ReportRow{Day: t.Date.Day(), Category: t.Category, Total: t.Total})
	}
	return rows, nil
}

// WriteMonthCSV writes the CSV report of month m to w.
func (s *ReportService) WriteMonthCSV(ctx context.Context, w io.Writer, userID string, m core.Month) error {
	rows, err := s.MonthRows(ctx, userID, m)
	if err != nil {
		return err
	}
	return WriteCSV(w, rows)
}

// WriteCSV writes the header followed by one record per row.
func WriteCSV(w io.Writer, rows []ReportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.Record()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SetExporter enables ExportMonth.
func (s *ReportService) SetExporter(e MonthExporter) {
	s.exporter = e
}

func (s *ReportService) CanExport() bool {
	return s.exporter != nil
}

// ExportMonth sends the report of month m to the configured exporter.
func (s *ReportService) ExportMonth(ctx context.Context, userID string, m core.Month) (string, error) {
	if s.exporter == nil {
		return "", ErrExportDisabled
	}
	rows, err := s.MonthRows(ctx, userID, m)
	if err != nil {
		return "", err
	}
	values := make([][]string, 0, len(rows)+1)
	values = append(values, CSVHeader)
	for _, r := range rows {
		values = append(values, r.Record())
	}
	ref, err := s.exporter.ExportMonth(ctx, m, values)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to export report",
			log.FieldUserID, userID,
			log.FieldMonth, m.String(),
			log.FieldError, err)
		return "", stepError(MsgExportReport, err)
	}
	return ref, nil
}

// MonthAttachments returns the expenses of month m that carry an attachment.
func (s *ReportService) MonthAttachments(ctx context.Context, userID string, m core.Month) ([]core.Expense, error) {
	expenses, err := s.store.ListExpensesWithAttachment(ctx, userID, m.Start(), m.End())
	if err != nil {
		return nil, stepError(MsgRetrieveAttachments, err)
	}
	return expenses, nil
}

// WriteAttachmentBundle downloads every attachment of month m and writes them
// as a zip archive to w. Blobs that cannot be downloaded are left out.
// ErrNoAttachments is returned, before anything is written, when the month
// has no attachments.
func (s *ReportService) WriteAttachmentBundle(ctx context.Context, w io.Writer, userID string, m core.Month) (BundleResult, error) {
	expenses, err := s.MonthAttachments(ctx, userID, m)
	if err != nil {
		return BundleResult{}, err
	}
	if len(expenses) == 0 {
		return BundleResult{}, ErrNoAttachments
	}

	objects := make([]*objectstore.Object, len(expenses))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(downloadConcurrency)
	for i, e := range expenses {
		g.Go(func() error {
			obj, err := s.blobs.Download(gctx, e.Attachment)
			if err != nil {
				s.logger.WarnContext(gctx, "Skipping attachment that could not be downloaded",
					log.FieldExpenseID, e.ID,
					log.FieldAttachment, e.Attachment,
					log.FieldError, err)
				return nil
			}
			objects[i] = obj
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BundleResult{}, stepError(MsgRetrieveAttachments, err)
	}
	if err := ctx.Err(); err != nil {
		return BundleResult{}, err
	}

	var result BundleResult
	zw := zip.NewWriter(w)
	for i, e := range expenses {
		obj := objects[i]
		if obj == nil {
			result.Skipped++
			continue
		}
		name := core.AttachmentEntryName(e, obj.ContentType)
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: e.UpdatedAt,
		})
		if err != nil {
			return result, fmt.Errorf("create zip entry %s: %w", name, err)
		}
		if _, err := io.Copy(fw, bytes.NewReader(obj.Data)); err != nil {
			return result, fmt.Errorf("write zip entry %s: %w", name, err)
		}
		result.Entries = append(result.Entries, name)
	}
	if err := zw.Close(); err != nil {
		return result, fmt.Errorf("close zip: %w", err)
	}

	s.logger.InfoContext(ctx, "Attachment bundle written",
		log.FieldUserID, userID,
		log.FieldMonth, m.String(),
		"entries", len(result.Entries),
		"skipped", result.Skipped)
	return result, nil
}

// CSVFilename is the download name of the CSV report of m.
func CSVFilename(m core.Month) string {
	return m.String() + "-expense-report.csv"
}

// BundleFilename is the download name of the attachment archive of m.
func BundleFilename(m core.Month) string {
	return fmt.Sprintf("%d-%02d-expense-report.zip", m.Year, int(m.Month))
}
