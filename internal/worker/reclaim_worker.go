package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"notaspese/internal/amqp"
	"notaspese/internal/core"
	"notaspese/internal/log"
	"notaspese/internal/objectstore"
	"notaspese/internal/storage"
)

// OrphanStore is the part of the repository the reclaim worker reads and
// updates.
type OrphanStore interface {
	GetOrphan(ctx context.Context, id int64) (core.Orphan, error)
	ListPendingOrphans(ctx context.Context, limit int) ([]core.Orphan, error)
	MarkOrphanReclaimed(ctx context.Context, id int64) error
	AttachmentReferenced(ctx context.Context, path string) (bool, error)
}

// ReclaimWorker removes blobs recorded in the orphan log once no expense
// references them any more.
type ReclaimWorker struct {
	store     OrphanStore
	blobs     objectstore.Store
	batchSize int
	logger    *log.Logger
}

func NewReclaimWorker(store OrphanStore, blobs objectstore.Store, batchSize int, logger *log.Logger) *ReclaimWorker {
	if batchSize <= 0 {
		batchSize = 50
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &ReclaimWorker{
		store:     store,
		blobs:     blobs,
		batchSize: batchSize,
		logger:    logger.WithComponent(log.ComponentWorker),
	}
}

// HandleOrphanMessage processes a single orphan notification from AMQP. The
// log entry is re-read so that redelivered messages are harmless.
func (w *ReclaimWorker) HandleOrphanMessage(ctx context.Context, msg *amqp.OrphanedAttachmentMessage) error {
	w.logger.InfoContext(ctx, "Processing orphan message",
		"orphan_id", msg.OrphanID,
		log.FieldAttachment, msg.Path,
		log.FieldReason, msg.Reason)

	o, err := w.store.GetOrphan(ctx, msg.OrphanID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			w.logger.WarnContext(ctx, "Orphan entry not found, dropping message", "orphan_id", msg.OrphanID)
			return nil
		}
		return fmt.Errorf("get orphan: %w", err)
	}
	return w.Reclaim(ctx, o)
}

// Reclaim removes the blob (or every blob under the prefix) of o that is not
// referenced by an expense, then marks the entry reclaimed. Blobs already
// gone count as reclaimed.
func (w *ReclaimWorker) Reclaim(ctx context.Context, o core.Orphan) error {
	if !o.ReclaimedAt.IsZero() {
		return nil
	}

	paths := []string{o.Path}
	if strings.HasSuffix(o.Path, "/") {
		listed, err := w.blobs.List(ctx, o.Path)
		if err != nil {
			return fmt.Errorf("list %s: %w", o.Path, err)
		}
		paths = listed
	}

	removed := 0
	for _, p := range paths {
		referenced, err := w.store.AttachmentReferenced(ctx, p)
		if err != nil {
			return fmt.Errorf("check references of %s: %w", p, err)
		}
		if referenced {
			w.logger.InfoContext(ctx, "Attachment still referenced, keeping it",
				"orphan_id", o.ID, log.FieldAttachment, p)
			continue
		}
		if err := w.blobs.Remove(ctx, p); err != nil {
			switch {
			case errors.Is(err, objectstore.ErrNotFound):
			case errors.Is(err, objectstore.ErrInvalidPath):
				// no store can ever hold such a path, retrying would only block the queue
				w.logger.WarnContext(ctx, "Orphan path is not a valid object path, dropping it",
					"orphan_id", o.ID, log.FieldAttachment, p, log.FieldError, err)
				continue
			default:
				return fmt.Errorf("remove %s: %w", p, err)
			}
		}
		removed++
	}

	if err := w.store.MarkOrphanReclaimed(ctx, o.ID); err != nil {
		return fmt.Errorf("mark orphan %d reclaimed: %w", o.ID, err)
	}

	w.logger.InfoContext(ctx, "Orphan reclaimed",
		"orphan_id", o.ID,
		log.FieldUserID, o.UserID,
		log.FieldAttachment, o.Path,
		log.FieldReason, o.Reason,
		"removed", removed)
	return nil
}

// ProcessPending reclaims a batch of pending entries. This is the backup
// path for lost or unpublished AMQP messages.
func (w *ReclaimWorker) ProcessPending(ctx context.Context) (int, error) {
	pending, err := w.store.ListPendingOrphans(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending orphans: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	w.logger.InfoContext(ctx, "Processing pending orphans", "count", len(pending))

	reclaimed := 0
	for _, o := range pending {
		if err := ctx.Err(); err != nil {
			return reclaimed, err
		}
		if err := w.Reclaim(ctx, o); err != nil {
			w.logger.ErrorContext(ctx, "Failed to reclaim orphan",
				"orphan_id", o.ID,
				log.FieldAttachment, o.Path,
				log.FieldError, err)
			continue
		}
		reclaimed++
	}
	return reclaimed, nil
}

// Run sweeps pending entries every interval until ctx is done.
func (w *ReclaimWorker) Run(ctx context.Context, interval time.Duration) {
	if _, err := w.ProcessPending(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Startup orphan sweep failed", log.FieldError, err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.ProcessPending(ctx); err != nil && ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "Periodic orphan sweep failed", log.FieldError, err)
			}
		}
	}
}
