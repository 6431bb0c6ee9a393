package audit

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"clinivoice-server-go/internal/platform/errors"
	"clinivoice-server-go/internal/platform/storage"
)

// Record is the persisted form of an audit event. Append-only: no
// update or delete path exists in this module.
type Record struct {
	ID        uint           `gorm:"primaryKey"`
	EventID   string         `gorm:"uniqueIndex;size:36"`
	Seq       uint64         `gorm:"index"`
	SessionID string         `gorm:"index;size:64"`
	TurnID    string         `gorm:"size:64"`
	Type      string         `gorm:"index;size:48"`
	Mode      string         `gorm:"size:16"`
	At        time.Time      `gorm:"index"`
	Payload   datatypes.JSON `gorm:"type:json"`
	CreatedAt time.Time
}

func (Record) TableName() string {
	return "audit_events"
}

// SQLiteSink writes events to the audit_events table.
type SQLiteSink struct {
	db *storage.Database
}

func NewSQLiteSink(db *storage.Database) (*SQLiteSink, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, err
	}
	return &SQLiteSink{db: db}, nil
}

func (s *SQLiteSink) Write(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return errors.AuditSinkError("audit.SQLiteSink.Write", err)
	}

	rec := Record{
		EventID:   event.ID,
		Seq:       event.Seq,
		SessionID: event.SessionID,
		TurnID:    event.TurnID,
		Type:      event.Type,
		Mode:      event.Mode,
		At:        event.At,
		Payload:   datatypes.JSON(payload),
	}
	if err := s.db.DB().WithContext(ctx).Create(&rec).Error; err != nil {
		return errors.AuditSinkError("audit.SQLiteSink.Write", err)
	}
	return nil
}

// Query returns up to limit events, newest first, optionally filtered
// by session and type. Serves the operator audit endpoint.
func (s *SQLiteSink) Query(ctx context.Context, sessionID, eventType string, limit int) ([]Record, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := s.db.DB().WithContext(ctx).Model(&Record{}).Order("seq desc").Limit(limit)
	if sessionID != "" {
		q = q.Where("session_id = ?", sessionID)
	}
	if eventType != "" {
		q = q.Where("type = ?", eventType)
	}
	var recs []Record
	if err := q.Find(&recs).Error; err != nil {
		return nil, errors.AuditSinkError("audit.SQLiteSink.Query", err)
	}
	return recs, nil
}

func (s *SQLiteSink) Close() error {
	return nil
}
