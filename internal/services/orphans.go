package services

import (
	"context"

	"notaspese/internal/core"
	"notaspese/internal/log"
)

// OrphanLog persists blobs left behind by partially completed operations.
type OrphanLog interface {
	RecordOrphan(ctx context.Context, userID, path string, reason core.OrphanReason) (core.Orphan, error)
}

// OrphanPublisher hands log entries to the reclaim worker.
type OrphanPublisher interface {
	PublishOrphanedAttachment(ctx context.Context, o core.Orphan) error
}

// OrphanRecorder appends to the orphan log and optionally notifies the
// worker. Its failures are logged only; they never change the outcome of the
// operation that left the blob behind. A nil recorder records nothing.
type OrphanRecorder struct {
	log       OrphanLog
	publisher OrphanPublisher
	logger    *log.Logger
}

func NewOrphanRecorder(orphanLog OrphanLog, publisher OrphanPublisher, logger *log.Logger) *OrphanRecorder {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &OrphanRecorder{log: orphanLog, publisher: publisher, logger: logger.WithComponent(log.ComponentExpense)}
}

func (r *OrphanRecorder) Record(ctx context.Context, userID, path string, reason core.OrphanReason) {
	if r == nil || r.log == nil || path == "" {
		return
	}
	// Use a context that survives the request being cancelled
	ctx = context.WithoutCancel(ctx)

	o, err := r.log.RecordOrphan(ctx, userID, path, reason)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to record orphaned attachment",
			log.FieldUserID, userID,
			log.FieldAttachment, path,
			log.FieldReason, reason,
			log.FieldError, err)
		return
	}
	if r.publisher == nil {
		return
	}
	if err := r.publisher.PublishOrphanedAttachment(ctx, o); err != nil {
		r.logger.WarnContext(ctx, "Failed to publish orphaned attachment, the worker sweep will pick it up",
			log.FieldAttachment, path,
			log.FieldError, err)
	}
}
