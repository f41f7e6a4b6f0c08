package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/clearledger/backoffice/pkg/enums"
)

// ProcessedEvent records one handled upstream event. The unique event_id index
// is the idempotency gate: a racing duplicate insert fails with a unique
// violation and the second delivery is treated as already handled.
type ProcessedEvent struct {
	ID           uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventID      string                `gorm:"column:event_id;type:varchar(100);not null;uniqueIndex:ux_processed_events_event_id"`
	EventType    string                `gorm:"column:event_type;type:varchar(100);not null"`
	Result       enums.ProcessedResult `gorm:"column:result;type:processed_result_enum;not null"`
	ErrorMessage *string               `gorm:"column:error_message;type:text"`
	ProcessedAt  time.Time             `gorm:"column:processed_at;autoCreateTime"`
}

// TableName overrides GORM's pluralization.
func (ProcessedEvent) TableName() string {
	return "processed_events"
}
