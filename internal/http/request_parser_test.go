package http

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"
)

func multipartRequest(t *testing.T, fields map[string]string, filename, contentType string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if filename != "" || content != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="attachment"; filename="`+filename+`"`)
		if contentType != "" {
			h.Set("Content-Type", contentType)
		}
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		part.Write(content)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/expense/new", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestParseExpenseForm_Fields(t *testing.T) {
	req := multipartRequest(t, map[string]string{
		"date":                       "2024-01-05",
		"merchant_name":              "  Talent Garden \x00",
		"amount":                     "4.50",
		"category":                   "coworking",
		"previous_attachment":        "u1/old.png",
		"remove_original_attachment": "on",
	}, "", "", nil)

	form, upload, err := parseExpenseForm(httptest.NewRecorder(), req, 1<<20)
	defer closeUpload(req, upload)
	if err != nil {
		t.Fatalf("parseExpenseForm() error = %v", err)
	}
	if upload != nil {
		t.Errorf("upload = %+v, want nil without a file", upload)
	}
	if form.Merchant != "Talent Garden" {
		t.Errorf("Merchant = %q, want %q", form.Merchant, "Talent Garden")
	}
	if !form.RemovePrevious {
		t.Error("RemovePrevious should be true for a checked box")
	}
	if form.PreviousAttachment != "u1/old.png" {
		t.Errorf("PreviousAttachment = %q", form.PreviousAttachment)
	}

	e, err := form.Expense()
	if err != nil {
		t.Fatalf("Expense() error = %v", err)
	}
	if e.Amount.String() != "4.50" {
		t.Errorf("Amount = %s, want 4.50", e.Amount)
	}
	if e.Date.String() != "2024-01-05" {
		t.Errorf("Date = %s, want 2024-01-05", e.Date)
	}
}

func TestParseExpenseForm_EmptyFilePartIsNoUpload(t *testing.T) {
	req := multipartRequest(t, map[string]string{"date": "2024-01-05"}, "empty.png", "image/png", []byte{})

	_, upload, err := parseExpenseForm(httptest.NewRecorder(), req, 1<<20)
	defer closeUpload(req, upload)
	if err != nil {
		t.Fatalf("parseExpenseForm() error = %v", err)
	}
	if upload != nil {
		t.Errorf("upload = %+v, want nil for an empty file input", upload)
	}
}

func TestParseExpenseForm_Upload(t *testing.T) {
	req := multipartRequest(t, map[string]string{"date": "2024-01-05"}, "../receipt.png", "image/png", []byte("png-bytes"))

	_, upload, err := parseExpenseForm(httptest.NewRecorder(), req, 1<<20)
	defer closeUpload(req, upload)
	if err != nil {
		t.Fatalf("parseExpenseForm() error = %v", err)
	}
	if upload == nil {
		t.Fatal("expected an upload")
	}
	if upload.Filename != "receipt.png" {
		t.Errorf("Filename = %q, want receipt.png", upload.Filename)
	}
	if upload.ContentType != "image/png" {
		t.Errorf("ContentType = %q, want image/png", upload.ContentType)
	}
	data, _ := io.ReadAll(upload.Body)
	if string(data) != "png-bytes" {
		t.Errorf("Body = %q", data)
	}
}

func TestParseExpenseForm_TooLarge(t *testing.T) {
	req := multipartRequest(t, map[string]string{"date": "2024-01-05"}, "big.pdf", "application/pdf", bytes.Repeat([]byte("x"), 2048))

	_, upload, err := parseExpenseForm(httptest.NewRecorder(), req, 1024)
	defer closeUpload(req, upload)
	if !errors.Is(err, errAttachmentTooLarge) {
		t.Fatalf("error = %v, want errAttachmentTooLarge", err)
	}
}

func TestParseExpenseForm_URLEncoded(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/expense/new", strings.NewReader("date=2024-02-01&merchant_name=bar&amount=1&category=food"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	form, upload, err := parseExpenseForm(httptest.NewRecorder(), req, 1<<20)
	if err != nil {
		t.Fatalf("parseExpenseForm() error = %v", err)
	}
	if upload != nil {
		t.Error("urlencoded forms carry no upload")
	}
	if form.Category != "food" {
		t.Errorf("Category = %q, want food", form.Category)
	}
}

func TestExpenseFormRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		form expenseForm
	}{
		{"bad date", expenseForm{Date: "05/01/2024", Amount: "1"}},
		{"bad amount", expenseForm{Date: "2024-01-05", Amount: "abc"}},
		{"zero amount", expenseForm{Date: "2024-01-05", Amount: "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.form.Expense(); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestParseMonthParam(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"2024-01", "2024-01", true},
		{" 2023-12 ", "2023-12", true},
		{"2024-01-17", "2024-01", true},
		{"", "", false},
		{"2024-13", "", false},
		{"january", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			m, ok := parseMonthParam(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && m.String() != tt.want {
				t.Errorf("month = %s, want %s", m, tt.want)
			}
			if ok && m.Month < time.January {
				t.Errorf("month out of range: %d", m.Month)
			}
		})
	}
}

func TestParseCredentials(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("email=+a%40b.it+&password=+secret+"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	form, err := parseCredentials(req)
	if err != nil {
		t.Fatalf("parseCredentials() error = %v", err)
	}
	if form.Email != "a@b.it" {
		t.Errorf("Email = %q, want a@b.it", form.Email)
	}
	if form.Password != " secret " {
		t.Errorf("Password = %q, passwords must not be trimmed", form.Password)
	}
}

func TestCheckboxValue(t *testing.T) {
	for in, want := range map[string]bool{"on": true, "TRUE": true, "1": true, "": false, "off": false} {
		if got := checkboxValue(in); got != want {
			t.Errorf("checkboxValue(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSanitizeInput(t *testing.T) {
	if got := sanitizeInput("  a\x01b\tc  "); got != "ab\tc" {
		t.Errorf("sanitizeInput() = %q", got)
	}
}
