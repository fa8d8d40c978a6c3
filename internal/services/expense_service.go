package services

import (
	"context"
	"errors"
	"io"
	"strings"

	"notaspese/internal/core"
	"notaspese/internal/log"
	"notaspese/internal/objectstore"
	"notaspese/internal/storage"
)

// DefaultCategories are suggested to users who have not recorded anything yet.
var DefaultCategories = []string{"coworking", "test"}

// ExpenseStore is the relational side of the expense lifecycle.
type ExpenseStore interface {
	CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
	GetExpense(ctx context.Context, userID, id string) (core.Expense, error)
	ListExpenses(ctx context.Context, userID string) ([]core.Expense, error)
	UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
	DeleteExpense(ctx context.Context, userID, id string) (core.Expense, error)
	ListCategories(ctx context.Context, userID string) ([]string, error)
}

// ChangeListener is told whenever a user's expenses change.
type ChangeListener interface {
	ExpensesChanged(userID string)
}

// Upload is a file submitted with an expense form.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Present reports whether the form actually carried a file.
func (u *Upload) Present() bool {
	return u != nil && u.Size > 0 && strings.TrimSpace(u.Filename) != "" && u.Body != nil
}

// UpdateRequest carries an edit form submission.
type UpdateRequest struct {
	ID                 string
	Fields             core.Expense
	PreviousAttachment string
	RemovePrevious     bool
	File               *Upload
}

// ExpenseService runs the create/edit/delete lifecycle of an expense and its
// optional attachment. The steps are not transactional: each failure is
// reported with the step it happened in, and blobs left unreferenced are
// handed to the orphan recorder.
type ExpenseService struct {
	store     ExpenseStore
	blobs     objectstore.Store
	orphans   *OrphanRecorder
	listeners []ChangeListener
	logger    *log.Logger
}

func NewExpenseService(store ExpenseStore, blobs objectstore.Store, orphans *OrphanRecorder, logger *log.Logger) *ExpenseService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &ExpenseService{
		store:   store,
		blobs:   blobs,
		orphans: orphans,
		logger:  logger.WithComponent(log.ComponentExpense),
	}
}

// Subscribe registers l for change notifications. Not safe for use after
// the service starts serving requests.
func (s *ExpenseService) Subscribe(l ChangeListener) {
	s.listeners = append(s.listeners, l)
}

func (s *ExpenseService) changed(userID string) {
	for _, l := range s.listeners {
		l.ExpensesChanged(userID)
	}
}

// Create uploads the optional file, then inserts the row. An upload failure
// aborts before the insert; an insert failure leaves the uploaded blob behind.
func (s *ExpenseService) Create(ctx context.Context, userID string, fields core.Expense, file *Upload) (core.Expense, error) {
	if userID == "" {
		return core.Expense{}, stepError(MsgFetchUser, core.ErrMissingUser)
	}

	e := fields
	e.ID = ""
	e.UserID = userID
	e.Attachment = ""
	if err := e.Validate(); err != nil {
		return core.Expense{}, stepError(MsgInvalidExpense, err)
	}

	if file.Present() {
		path, err := s.upload(ctx, userID, file)
		if err != nil {
			return core.Expense{}, stepError(MsgUploadAttachment, err)
		}
		e.Attachment = path
	}

	created, err := s.store.CreateExpense(ctx, e)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to insert expense",
			log.NewFields().WithExpense("", userID, e.Merchant, e.Amount.Cents, e.Category).WithAttachment(e.Attachment).WithError(err).ToSlice()...)
		s.orphans.Record(ctx, userID, e.Attachment, core.OrphanInsertFailed)
		return core.Expense{}, stepError(MsgInsertExpense, err)
	}

	s.logger.InfoContext(ctx, "Expense created",
		log.NewFields().WithOperation(log.OpCreate).WithExpense(created.ID, userID, created.Merchant, created.Amount.Cents, created.Category).WithAttachment(created.Attachment).ToSlice()...)
	s.changed(userID)
	return created, nil
}

// Update applies an edit. A new upload always wins over the previous
// attachment; the removal flag only decides whether the previous blob is
// deleted and, without a new upload, whether the row keeps it.
func (s *ExpenseService) Update(ctx context.Context, userID string, req UpdateRequest) (core.Expense, error) {
	if userID == "" {
		return core.Expense{}, stepError(MsgFetchUser, core.ErrMissingUser)
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return core.Expense{}, stepError(MsgMissingExpenseID, nil)
	}

	previous := core.NormalizeAttachment(req.PreviousAttachment)
	if previous != "" {
		if clean, err := objectstore.CleanPath(previous); err != nil || clean != previous {
			return core.Expense{}, stepError(MsgInvalidExpense, objectstore.ErrInvalidPath)
		}
		if !core.AttachmentOwnedBy(previous, userID) {
			return core.Expense{}, stepError(MsgInvalidExpense, core.ErrForeignAttachment)
		}
	}

	e := req.Fields
	e.ID = id
	e.UserID = userID
	e.Attachment = ""
	if err := e.Validate(); err != nil {
		return core.Expense{}, stepError(MsgInvalidExpense, err)
	}

	var uploaded string
	if req.File.Present() {
		path, err := s.upload(ctx, userID, req.File)
		if err != nil {
			return core.Expense{}, stepError(MsgUploadAttachment, err)
		}
		uploaded = path
	}

	e.Attachment = nextAttachment(previous, uploaded, req.RemovePrevious)

	updated, err := s.store.UpdateExpense(ctx, e)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to update expense",
			log.NewFields().WithExpense(id, userID, e.Merchant, e.Amount.Cents, e.Category).WithError(err).ToSlice()...)
		s.orphans.Record(ctx, userID, uploaded, core.OrphanUpdateFailed)
		return core.Expense{}, stepError(MsgUpdateExpense, err)
	}
	s.changed(userID)

	switch {
	case req.RemovePrevious && previous != "":
		if err := s.blobs.Remove(ctx, previous); err != nil {
			s.logger.ErrorContext(ctx, "Failed to remove previous attachment",
				log.NewFields().WithExpense(id, userID, e.Merchant, e.Amount.Cents, e.Category).WithAttachment(previous).WithError(err).ToSlice()...)
			s.orphans.Record(ctx, userID, previous, core.OrphanRemoveFailed)
			return updated, stepError(MsgRemovePrevious, err)
		}
	case uploaded != "" && previous != "":
		s.orphans.Record(ctx, userID, previous, core.OrphanSuperseded)
	}

	s.logger.InfoContext(ctx, "Expense updated",
		log.NewFields().WithOperation(log.OpUpdate).WithExpense(updated.ID, userID, updated.Merchant, updated.Amount.Cents, updated.Category).WithAttachment(updated.Attachment).ToSlice()...)
	return updated, nil
}

// nextAttachment computes the attachment an edited row ends up with.
func nextAttachment(previous, uploaded string, removePrevious bool) string {
	if uploaded != "" {
		return uploaded
	}
	if removePrevious {
		return ""
	}
	return previous
}

// Delete removes the row, then the blob it referenced. Deleting an id the
// user does not own, or that no longer exists, is a no-op.
func (s *ExpenseService) Delete(ctx context.Context, userID, id string) error {
	if userID == "" {
		return stepError(MsgFetchUser, core.ErrMissingUser)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return stepError(MsgMissingExpenseID, nil)
	}

	deleted, err := s.store.DeleteExpense(ctx, userID, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.InfoContext(ctx, "Expense to delete not found", log.FieldExpenseID, id, log.FieldUserID, userID)
			return nil
		}
		return stepError(MsgDeleteExpense, err)
	}
	s.changed(userID)

	if deleted.HasAttachment() {
		if err := s.blobs.Remove(ctx, deleted.Attachment); err != nil {
			s.logger.ErrorContext(ctx, "Failed to remove attachment of deleted expense",
				log.NewFields().WithExpense(id, userID, deleted.Merchant, deleted.Amount.Cents, deleted.Category).WithAttachment(deleted.Attachment).WithError(err).ToSlice()...)
			s.orphans.Record(ctx, userID, deleted.Attachment, core.OrphanRemoveFailed)
			return stepError(MsgDeleteAttachment, err)
		}
	}

	s.logger.InfoContext(ctx, "Expense deleted",
		log.NewFields().WithOperation(log.OpDelete).WithExpense(id, userID, deleted.Merchant, deleted.Amount.Cents, deleted.Category).WithAttachment(deleted.Attachment).ToSlice()...)
	return nil
}

func (s *ExpenseService) Get(ctx context.Context, userID, id string) (core.Expense, error) {
	if strings.TrimSpace(id) == "" {
		return core.Expense{}, stepError(MsgMissingExpenseID, nil)
	}
	return s.store.GetExpense(ctx, userID, id)
}

func (s *ExpenseService) List(ctx context.Context, userID string) ([]core.Expense, error) {
	return s.store.ListExpenses(ctx, userID)
}

// Categories returns the user's past categories, or the defaults when there
// are none.
func (s *ExpenseService) Categories(ctx context.Context, userID string) ([]string, error) {
	categories, err := s.store.ListCategories(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(categories) == 0 {
		return append([]string(nil), DefaultCategories...), nil
	}
	return categories, nil
}

func (s *ExpenseService) upload(ctx context.Context, userID string, file *Upload) (string, error) {
	path := core.NewAttachmentPath(userID, file.Filename)
	if err := s.blobs.Upload(ctx, path, file.ContentType, file.Body); err != nil {
		s.logger.ErrorContext(ctx, "Failed to upload attachment",
			log.FieldUserID, userID,
			log.FieldAttachment, path,
			log.FieldErrorType, log.ErrorTypeStorage,
			log.FieldError, err)
		return "", err
	}
	s.logger.DebugContext(ctx, "Attachment uploaded", log.FieldUserID, userID, log.FieldAttachment, path, "size", file.Size)
	return path, nil
}
