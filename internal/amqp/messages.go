package amqp

import (
	"encoding/json"
	"time"

	"notaspese/internal/core"
)

// OrphanedAttachmentMessage announces a blob that no expense references any
// more. The worker re-reads the log entry before acting on it.
type OrphanedAttachmentMessage struct {
	OrphanID  int64     `json:"orphan_id"`
	UserID    string    `json:"user_id"`
	Path      string    `json:"path"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

func NewOrphanedAttachmentMessage(o core.Orphan) *OrphanedAttachmentMessage {
	return &OrphanedAttachmentMessage{
		OrphanID:  o.ID,
		UserID:    o.UserID,
		Path:      o.Path,
		Reason:    string(o.Reason),
		Timestamp: time.Now(),
	}
}

func (m *OrphanedAttachmentMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func OrphanedAttachmentMessageFromJSON(data []byte) (*OrphanedAttachmentMessage, error) {
	var msg OrphanedAttachmentMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
