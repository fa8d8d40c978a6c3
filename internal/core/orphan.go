package core

import "time"

// OrphanReason explains why a blob is no longer referenced by any expense.
type OrphanReason string

const (
	OrphanInsertFailed OrphanReason = "insert_failed"
	OrphanUpdateFailed OrphanReason = "update_failed"
	OrphanSuperseded   OrphanReason = "superseded"
	OrphanRemoveFailed OrphanReason = "remove_failed"
)

// Orphan is an entry of the compensating-action log: a blob left behind by a
// partially completed lifecycle operation.
type Orphan struct {
	ID          int64
	UserID      string
	Path        string
	Reason      OrphanReason
	CreatedAt   time.Time
	ReclaimedAt time.Time
}
