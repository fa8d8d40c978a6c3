package http

import (
	"bytes"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"notaspese/internal/core"
	"notaspese/internal/log"
	"notaspese/internal/services"
)

// reportView is the data of the report page.
type reportView struct {
	Months      []core.MonthCount
	Selected    string
	Rows        []services.ReportRow
	Attachments int
	CanExport   bool
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromRequest(r)
	ctx := r.Context()

	months, err := s.deps.Reports.Months(ctx, user.ID)
	if err != nil {
		log.FromContext(ctx).WithComponent(log.ComponentReport).ErrorContext(ctx, "Failed to list report months", log.FieldError, err)
		s.render(w, r, http.StatusInternalServerError, "report.html", view{Title: "Report", Error: services.UserMessage(err), Data: reportView{}})
		return
	}

	data := reportView{Months: months, CanExport: s.deps.Reports.CanExport()}
	v := view{Title: "Report"}
	if ref := r.URL.Query().Get("exported"); ref != "" {
		v.Notice = "Report exported: " + ref
	}

	status := http.StatusOK
	raw := r.URL.Query().Get("month")
	if raw == "" && len(months) > 0 {
		raw = months[0].Month.String()
	}
	if m, ok := parseMonthParam(raw); ok {
		data.Selected = m.String()
		if data.Rows, err = s.deps.Reports.MonthRows(ctx, user.ID, m); err != nil {
			log.FromContext(ctx).ErrorContext(ctx, "Failed to load report rows", log.FieldMonth, m.String(), log.FieldError, err)
			v.Error, status = services.UserMessage(err), http.StatusInternalServerError
		}
		attachments, err := s.deps.Reports.MonthAttachments(ctx, user.ID, m)
		if err != nil {
			log.FromContext(ctx).ErrorContext(ctx, "Failed to load report attachments", log.FieldMonth, m.String(), log.FieldError, err)
			v.Error, status = services.UserMessage(err), http.StatusInternalServerError
		}
		data.Attachments = len(attachments)
	} else if raw != "" {
		v.Error, status = "Invalid month "+strconv.Quote(raw), http.StatusBadRequest
	}

	v.Data = data
	s.render(w, r, status, "report.html", v)
}

func (s *Server) handleReportCSV(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromRequest(r)
	m, ok := parseMonthParam(chi.URLParam(r, "month"))
	if !ok {
		BadRequestError("Invalid month").Write(w)
		return
	}

	var buf bytes.Buffer
	if err := s.deps.Reports.WriteMonthCSV(r.Context(), &buf, user.ID, m); err != nil {
		log.FromContext(r.Context()).WithComponent(log.ComponentReport).ErrorContext(r.Context(), "Failed to build CSV report",
			log.FieldMonth, m.String(),
			log.FieldError, err)
		InternalServerError(services.UserMessage(err)).Write(w)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", attachmentDisposition(services.CSVFilename(m)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleReportAttachments(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromRequest(r)
	m, ok := parseMonthParam(chi.URLParam(r, "month"))
	if !ok {
		BadRequestError("Invalid month").Write(w)
		return
	}

	zw := &lazyDownload{w: w, contentType: "application/zip", filename: services.BundleFilename(m)}
	_, err := s.deps.Reports.WriteAttachmentBundle(r.Context(), zw, user.ID, m)
	switch {
	case err == nil:
		zw.flushHeader()
	case errors.Is(err, services.ErrNoAttachments):
		NotFoundError(services.MsgNoAttachments).Write(w)
	case zw.started:
		// headers are gone; the client sees a truncated archive
		log.FromContext(r.Context()).WithComponent(log.ComponentReport).ErrorContext(r.Context(), "Attachment bundle interrupted",
			log.FieldMonth, m.String(),
			log.FieldError, err)
	default:
		log.FromContext(r.Context()).WithComponent(log.ComponentReport).ErrorContext(r.Context(), "Failed to build attachment bundle",
			log.FieldMonth, m.String(),
			log.FieldError, err)
		InternalServerError(services.UserMessage(err)).Write(w)
	}
}

func (s *Server) handleReportExport(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromRequest(r)
	m, ok := parseMonthParam(chi.URLParam(r, "month"))
	if !ok {
		BadRequestError("Invalid month").Write(w)
		return
	}

	ref, err := s.deps.Reports.ExportMonth(r.Context(), user.ID, m)
	if err != nil {
		if errors.Is(err, services.ErrExportDisabled) {
			NotFoundError("Report export is not configured").Write(w)
			return
		}
		InternalServerError(services.UserMessage(err)).Write(w)
		return
	}

	log.FromContext(r.Context()).WithComponent(log.ComponentReport).InfoContext(r.Context(), "Report exported",
		log.FieldMonth, m.String(),
		log.FieldOperation, log.OpExport)
	q := url.Values{"month": {m.String()}, "exported": {ref}}
	http.Redirect(w, r, "/report?"+q.Encode(), http.StatusFound)
}

// lazyDownload defers the download headers until the first byte is
// written, so a failure before that can still produce an error page.
type lazyDownload struct {
	w           http.ResponseWriter
	contentType string
	filename    string
	started     bool
}

func (l *lazyDownload) Write(p []byte) (int, error) {
	l.flushHeader()
	return l.w.Write(p)
}

func (l *lazyDownload) flushHeader() {
	if l.started {
		return
	}
	l.started = true
	l.w.Header().Set("Content-Type", l.contentType)
	l.w.Header().Set("Content-Disposition", attachmentDisposition(l.filename))
	l.w.WriteHeader(http.StatusOK)
}

func attachmentDisposition(filename string) string {
	return `attachment; filename="` + filename + `"`
}
