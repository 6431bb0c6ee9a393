package action

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"clinivoice-server-go/internal/platform/errors"
	"clinivoice-server-go/internal/platform/logging"
	"clinivoice-server-go/internal/platform/storage"
)

// OrderRecord is one executed payload. Append-only, like the audit
// table: executed orders are never updated or deleted here.
type OrderRecord struct {
	ID        uint           `gorm:"primaryKey"`
	OrderID   string         `gorm:"uniqueIndex;size:36"`
	SessionID string         `gorm:"index;size:64"`
	Kind      string         `gorm:"index;size:32"`
	Summary   string         `gorm:"size:256"`
	Args      datatypes.JSON `gorm:"type:json"`
	CreatedAt time.Time
}

func (OrderRecord) TableName() string {
	return "order_log"
}

// OrderLogExecutor records confirmed clinical actions durably and
// acknowledges them. It stands in for the EHR integration, which is
// outside this service.
type OrderLogExecutor struct {
	db        *storage.Database
	sessionID string
	logger    *logging.Logger
}

func NewOrderLogExecutor(db *storage.Database, sessionID string, logger *logging.Logger) (*OrderLogExecutor, error) {
	if err := db.AutoMigrate(&OrderRecord{}); err != nil {
		return nil, err
	}
	return &OrderLogExecutor{db: db, sessionID: sessionID, logger: logger}, nil
}

func (e *OrderLogExecutor) Execute(ctx context.Context, payload Payload) (Result, error) {
	args, err := json.Marshal(payload.Args)
	if err != nil {
		return Result{}, errors.Wrap(errors.KindStorage, "action.OrderLogExecutor.Execute", "encode args", err)
	}

	rec := OrderRecord{
		OrderID:   uuid.New().String(),
		SessionID: e.sessionID,
		Kind:      payload.Kind,
		Summary:   payload.Summary,
		Args:      datatypes.JSON(args),
	}
	if err := e.db.DB().WithContext(ctx).Create(&rec).Error; err != nil {
		return Result{}, errors.Wrap(errors.KindStorage, "action.OrderLogExecutor.Execute", "persist order", err)
	}

	e.logger.InfoTag("ACTION", "executed kind=%s summary=%q order=%s", payload.Kind, payload.Summary, rec.OrderID)
	return Result{
		OK:      true,
		Message: fmt.Sprintf("Done. I've placed the %s.", payload.Summary),
	}, nil
}

// Recent returns the latest executed orders for the operator API.
func (e *OrderLogExecutor) Recent(ctx context.Context, limit int) ([]OrderRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var recs []OrderRecord
	err := e.db.DB().WithContext(ctx).Order("id desc").Limit(limit).Find(&recs).Error
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "action.OrderLogExecutor.Recent", "query order log", err)
	}
	return recs, nil
}
