package http

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"notaspese/internal/core"
	"notaspese/internal/log"
)

const layoutTemplate = "templates/layout.html"

// view is the data every page receives.
type view struct {
	Title  string
	User   *core.User
	Error  string
	Notice string
	Data   any
}

// pages holds one template set per page, each combined with the layout.
type pages map[string]*template.Template

var templateFuncs = template.FuncMap{
	"euros":   formatEuros,
	"isImage": core.IsImagePath,
	"monthLabel": func(mc core.MonthCount) string {
		return fmt.Sprintf("%s [%d expenses]", mc.Month.Label(), mc.Count)
	},
}

func parsePages(fsys fs.FS) (pages, error) {
	files, err := fs.Glob(fsys, "templates/*.html")
	if err != nil {
		return nil, err
	}
	p := make(pages)
	for _, f := range files {
		if f == layoutTemplate {
			continue
		}
		t, err := template.New(path.Base(f)).Funcs(templateFuncs).ParseFS(fsys, layoutTemplate, f)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", f, err)
		}
		p[path.Base(f)] = t
	}
	return p, nil
}

// render executes a page into a buffer first so that a template error can
// still produce a clean 500.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, v view) {
	if user, ok := userFromRequest(r); ok && v.User == nil {
		v.User = &user
	}

	t, ok := s.pages[name]
	if !ok {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Unknown template", "template", name)
		InternalServerError("Page not available").Write(w)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", v); err != nil {
		log.FromContext(r.Context()).WithComponent(log.ComponentTemplate).ErrorContext(r.Context(), "Template execution failed",
			"template", name,
			log.FieldOperation, log.OpRender,
			log.FieldError, err)
		InternalServerError("Page not available").Write(w)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// formatEuros formats an amount as a Euro currency string (e.g., "€12,34").
func formatEuros(m core.Money) string {
	s := strings.Replace(m.String(), ".", ",", 1)
	if strings.HasPrefix(s, "-") {
		return "-€" + s[1:]
	}
	return "€" + s
}
