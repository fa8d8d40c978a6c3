package services

import (
	"errors"
	"strings"
)

// User-facing messages, one per lifecycle step. Upstream error text is
// appended after the message.
const (
	MsgFetchUser           = "Error while fetching user information."
	MsgMissingExpenseID    = "Error: could not find expense id"
	MsgInvalidExpense      = "Error: invalid expense."
	MsgUploadAttachment    = "Error while uploading attachment."
	MsgInsertExpense       = "Error while adding expense to the database."
	MsgUpdateExpense       = "Error while updating expense in the database."
	MsgRemovePrevious      = "Error while deleting previous attachment from storage."
	MsgDeleteExpense       = "Error while deleting expense from the database."
	MsgDeleteAttachment    = "Error while deleting expense's attachment from storage."
	MsgDeleteExpenseData   = "Error while deleting expense data."
	MsgListAttachments     = "Error while retrieving expense attachments."
	MsgDeleteAttachments   = "Error while deleting expense attachments."
	MsgSignOut             = "Error while signing user out."
	MsgDeleteUser          = "Error while deleting user from the database."
	MsgRetrieveAttachments = "Error while retrieving attachments data."
	MsgNoAttachments       = "No attachments available"
	MsgExportReport        = "Error while exporting report."
)

var (
	ErrMissingExpenseID = errors.New("missing expense id")
	ErrNoAttachments    = errors.New(MsgNoAttachments)
	ErrExportDisabled   = errors.New("report export is not configured")
)

// StepError reports which step of a multi-step operation failed. Steps that
// ran before it are not undone.
type StepError struct {
	Message string
	Err     error
}

func (e *StepError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + " " + e.Err.Error()
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func stepError(msg string, err error) *StepError {
	return &StepError{Message: msg, Err: err}
}

// UserMessage returns the text shown to the user for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var se *StepError
	if errors.As(err, &se) {
		return strings.TrimSpace(se.Error())
	}
	return err.Error()
}
