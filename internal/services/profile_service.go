package services

import (
	"context"

	"notaspese/internal/core"
	"notaspese/internal/log"
	"notaspese/internal/objectstore"
)

// UserExpenseStore removes every expense of a user.
type UserExpenseStore interface {
	DeleteUserExpenses(ctx context.Context, userID string) (int64, error)
}

// Identity is the part of the account service profile deletion needs.
type Identity interface {
	SignOut(ctx context.Context, token string) error
	DeleteUser(ctx context.Context, userID string) error
}

type ProfileService struct {
	expenses UserExpenseStore
	blobs    objectstore.Store
	identity Identity
	orphans  *OrphanRecorder
	logger   *log.Logger
}

func NewProfileService(expenses UserExpenseStore, blobs objectstore.Store, identity Identity, orphans *OrphanRecorder, logger *log.Logger) *ProfileService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &ProfileService{
		expenses: expenses,
		blobs:    blobs,
		identity: identity,
		orphans:  orphans,
		logger:   logger.WithComponent(log.ComponentAuth),
	}
}

// DeleteProfile removes the user's expenses, then their blobs, signs the
// session out and finally deletes the account. It stops at the first
// failing step.
func (s *ProfileService) DeleteProfile(ctx context.Context, userID, sessionToken string) error {
	if userID == "" {
		return stepError(MsgFetchUser, core.ErrMissingUser)
	}

	n, err := s.expenses.DeleteUserExpenses(ctx, userID)
	if err != nil {
		return stepError(MsgDeleteExpenseData, err)
	}

	prefix := core.UserPrefix(userID)
	paths, err := s.blobs.List(ctx, prefix)
	if err != nil {
		// The worker sweeps a prefix entry as a whole
		s.orphans.Record(ctx, userID, prefix, core.OrphanRemoveFailed)
		return stepError(MsgListAttachments, err)
	}
	if len(paths) > 0 {
		if err := s.blobs.Remove(ctx, paths...); err != nil {
			for _, p := range paths {
				s.orphans.Record(ctx, userID, p, core.OrphanRemoveFailed)
			}
			return stepError(MsgDeleteAttachments, err)
		}
	}

	if err := s.identity.SignOut(ctx, sessionToken); err != nil {
		return stepError(MsgSignOut, err)
	}
	if err := s.identity.DeleteUser(ctx, userID); err != nil {
		return stepError(MsgDeleteUser, err)
	}

	s.logger.InfoContext(ctx, "Profile deleted",
		log.FieldUserID, userID,
		log.FieldOperation, log.OpDelete,
		"expenses", n,
		"attachments", len(paths))
	return nil
}
