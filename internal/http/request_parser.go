// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// the expense forms, their optional attachment and the month path parameter.

package http

import (
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"path"
	"strings"

	"notaspese/internal/core"
	"notaspese/internal/services"
)

const (
	// multipartMemory is how much of a multipart body is kept in memory
	// before spilling file parts to disk.
	multipartMemory = 8 << 20
	// formOverhead is allowed on top of the attachment for the other fields.
	formOverhead = 1 << 20
)

var errAttachmentTooLarge = errors.New("attachment too large")

// expenseForm holds the raw values of the new and edit forms, kept as typed
// so that a rejected submission can be shown again.
type expenseForm struct {
	ID                 string
	Date               string
	Merchant           string
	Amount             string
	Category           string
	PreviousAttachment string
	RemovePrevious     bool
}

// Expense converts the form into expense fields. Owner, id and attachment
// are left for the service to fill.
func (f expenseForm) Expense() (core.Expense, error) {
	date, err := core.ParseDate(f.Date)
	if err != nil {
		return core.Expense{}, err
	}
	amount, err := core.ParseAmount(f.Amount)
	if err != nil {
		return core.Expense{}, err
	}
	return core.Expense{
		Date:     date,
		Merchant: f.Merchant,
		Amount:   amount,
		Category: f.Category,
	}, nil
}

// expenseFormFromExpense prefills the edit form.
func expenseFormFromExpense(e core.Expense) expenseForm {
	return expenseForm{
		ID:                 e.ID,
		Date:               e.Date.String(),
		Merchant:           e.Merchant,
		Amount:             e.Amount.String(),
		Category:           e.Category,
		PreviousAttachment: e.Attachment,
	}
}

// parseExpenseForm reads a multipart (or urlencoded) expense form. The
// returned upload is nil when no file was sent; its body stays valid until
// the request's multipart form is removed.
func parseExpenseForm(w http.ResponseWriter, r *http.Request, maxUpload int64) (expenseForm, *services.Upload, error) {
	if maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxUpload+formOverhead)
	}

	if isMultipart(r) {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return expenseForm{}, nil, formError(err)
		}
	} else if err := r.ParseForm(); err != nil {
		return expenseForm{}, nil, formError(err)
	}

	form := expenseForm{
		ID:                 sanitizeInput(r.FormValue("expense_id")),
		Date:               sanitizeInput(r.FormValue("date")),
		Merchant:           sanitizeInput(r.FormValue("merchant_name")),
		Amount:             sanitizeInput(r.FormValue("amount")),
		Category:           sanitizeInput(r.FormValue("category")),
		PreviousAttachment: sanitizeInput(r.FormValue("previous_attachment")),
		RemovePrevious:     checkboxValue(r.FormValue("remove_original_attachment")),
	}

	upload, err := formUpload(r, maxUpload)
	if err != nil {
		return form, nil, err
	}
	return form, upload, nil
}

func formUpload(r *http.Request, maxUpload int64) (*services.Upload, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	file, header, err := r.FormFile("attachment")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, formError(err)
	}
	if maxUpload > 0 && header.Size > maxUpload {
		file.Close()
		return nil, errAttachmentTooLarge
	}

	upload := &services.Upload{
		Filename:    path.Base(header.Filename),
		ContentType: uploadContentType(header),
		Size:        header.Size,
		Body:        file,
	}
	if !upload.Present() {
		file.Close()
		return nil, nil
	}
	return upload, nil
}

// uploadContentType trusts the part header, then the file extension.
func uploadContentType(h *multipart.FileHeader) string {
	if ct := h.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	if ct := mime.TypeByExtension(path.Ext(h.Filename)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func formError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) || errors.Is(err, multipart.ErrMessageTooLarge) {
		return errAttachmentTooLarge
	}
	return fmt.Errorf("invalid form: %w", err)
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

func checkboxValue(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}

// closeUpload releases the temporary files of a multipart form.
func closeUpload(r *http.Request, u *services.Upload) {
	if u != nil {
		if c, ok := u.Body.(multipart.File); ok {
			c.Close()
		}
	}
	if r.MultipartForm != nil {
		_ = r.MultipartForm.RemoveAll()
	}
}

// parseMonthParam reads a YYYY-MM value from the query or a path parameter.
func parseMonthParam(v string) (core.Month, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return core.Month{}, false
	}
	m, err := core.ParseMonth(v)
	if err != nil {
		return core.Month{}, false
	}
	return m, true
}

// credentialsForm is the body of the login and signup forms.
type credentialsForm struct {
	Email    string
	Password string
}

func parseCredentials(r *http.Request) (credentialsForm, error) {
	if err := r.ParseForm(); err != nil {
		return credentialsForm{}, fmt.Errorf("invalid form: %w", err)
	}
	return credentialsForm{
		Email:    sanitizeInput(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s))
}
