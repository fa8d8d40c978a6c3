package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"notaspese/internal/core"
	"notaspese/internal/log"
	"notaspese/internal/services"
	"notaspese/internal/storage"
)

// expenseRow is one line of the expense list.
type expenseRow struct {
	Expense       core.Expense
	AttachmentURL string
}

type expenseListView struct {
	Rows []expenseRow
}

// expenseFormView is the data of the new and edit pages.
type expenseFormView struct {
	Action        string
	Form          expenseForm
	Categories    []string
	AttachmentURL string
	Editing       bool
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromRequest(r)
	expenses, err := s.deps.Expenses.List(r.Context(), user.ID)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to list expenses", log.FieldOperation, log.OpList, log.FieldError, err)
		s.render(w, r, http.StatusInternalServerError, "expenses.html", view{Title: "Expenses", Error: "Error while loading expenses. " + err.Error(), Data: expenseListView{}})
		return
	}

	rows := make([]expenseRow, len(expenses))
	for i, e := range expenses {
		rows[i] = expenseRow{Expense: e, AttachmentURL: s.signedURL(r, e.Attachment)}
	}
	s.render(w, r, http.StatusOK, "expenses.html", view{Title: "Expenses", Data: expenseListView{Rows: rows}})
}

func (s *Server) handleNewExpenseForm(w http.ResponseWriter, r *http.Request) {
	form := expenseForm{Date: time.Now().Format(core.DateLayout)}
	s.renderExpenseForm(w, r, http.StatusOK, "", expenseFormView{Action: "/expense/new", Form: form})
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromRequest(r)

	form, upload, err := parseExpenseForm(w, r, s.opts.MaxUploadBytes)
	defer closeUpload(r, upload)
	data := expenseFormView{Action: "/expense/new", Form: form}
	if err != nil {
		s.renderExpenseForm(w, r, formErrorStatus(err), formErrorMessage(err), data)
		return
	}

	fields, err := form.Expense()
	if err != nil {
		s.renderExpenseForm(w, r, http.StatusUnprocessableEntity, services.MsgInvalidExpense+" "+err.Error(), data)
		return
	}

	if _, err := s.deps.Expenses.Create(r.Context(), user.ID, fields, upload); err != nil {
		s.renderExpenseForm(w, r, serviceErrorStatus(err), services.UserMessage(err), data)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleEditExpenseForm(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromRequest(r)
	id := chi.URLParam(r, "id")

	e, err := s.deps.Expenses.Get(r.Context(), user.ID, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			NotFoundError(services.MsgMissingExpenseID).Write(w)
			return
		}
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to load expense",
			log.FieldExpenseID, id, log.FieldOperation, log.OpRead, log.FieldError, err)
		InternalServerError(services.UserMessage(err)).Write(w)
		return
	}

	s.renderExpenseForm(w, r, http.StatusOK, "", expenseFormView{
		Action:        "/expense/edit/" + e.ID,
		Form:          expenseFormFromExpense(e),
		AttachmentURL: s.signedURL(r, e.Attachment),
		Editing:       true,
	})
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromRequest(r)
	id := chi.URLParam(r, "id")

	form, upload, err := parseExpenseForm(w, r, s.opts.MaxUploadBytes)
	defer closeUpload(r, upload)
	form.ID = id
	data := expenseFormView{
		Action:        "/expense/edit/" + id,
		Form:          form,
		AttachmentURL: s.signedURL(r, form.PreviousAttachment),
		Editing:       true,
	}
	if err != nil {
		s.renderExpenseForm(w, r, formErrorStatus(err), formErrorMessage(err), data)
		return
	}

	fields, err := form.Expense()
	if err != nil {
		s.renderExpenseForm(w, r, http.StatusUnprocessableEntity, services.MsgInvalidExpense+" "+err.Error(), data)
		return
	}

	_, err = s.deps.Expenses.Update(r.Context(), user.ID, services.UpdateRequest{
		ID:                 id,
		Fields:             fields,
		PreviousAttachment: form.PreviousAttachment,
		RemovePrevious:     form.RemovePrevious,
		File:               upload,
	})
	if err != nil {
		s.renderExpenseForm(w, r, serviceErrorStatus(err), services.UserMessage(err), data)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromRequest(r)
	if err := r.ParseForm(); err != nil {
		BadRequestError("Invalid form submission").Write(w)
		return
	}

	id := sanitizeInput(r.PostFormValue("expense_id"))
	if err := s.deps.Expenses.Delete(r.Context(), user.ID, id); err != nil {
		ErrorResponse(serviceErrorStatus(err), services.UserMessage(err)).Write(w)
		return
	}
	http.Redirect(w, r, "/expenses", http.StatusFound)
}

func (s *Server) renderExpenseForm(w http.ResponseWriter, r *http.Request, status int, message string, data expenseFormView) {
	user, _ := userFromRequest(r)
	categories, err := s.deps.Expenses.Categories(r.Context(), user.ID)
	if err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Failed to load categories", log.FieldError, err)
		categories = services.DefaultCategories
	}
	data.Categories = categories

	title := "New expense"
	if data.Editing {
		title = "Edit expense"
	}
	s.render(w, r, status, "expense_form.html", view{Title: title, Error: message, Data: data})
}

// signedURL returns a preview link for an attachment, or "" when there is
// none or it cannot be signed.
func (s *Server) signedURL(r *http.Request, attachment string) string {
	if attachment == "" || s.deps.Signer == nil {
		return ""
	}
	u, err := s.deps.Signer.CreateSignedURL(attachment, s.opts.SignedURLTTL)
	if err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Failed to sign attachment URL",
			log.FieldAttachment, attachment, log.FieldError, err)
		return ""
	}
	return u
}

// serviceErrorStatus maps a lifecycle failure onto a status code.
func serviceErrorStatus(err error) int {
	var se *services.StepError
	if errors.As(err, &se) {
		switch se.Message {
		case services.MsgMissingExpenseID:
			return http.StatusBadRequest
		case services.MsgInvalidExpense:
			return http.StatusUnprocessableEntity
		case services.MsgFetchUser:
			return http.StatusUnauthorized
		}
	}
	if errors.Is(err, storage.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func formErrorStatus(err error) int {
	if errors.Is(err, errAttachmentTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func formErrorMessage(err error) string {
	if errors.Is(err, errAttachmentTooLarge) {
		return services.MsgUploadAttachment + " " + err.Error()
	}
	return strings.TrimSpace("Invalid form submission. " + err.Error())
}
