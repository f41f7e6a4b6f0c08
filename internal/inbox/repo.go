package inbox

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/clearledger/backoffice/pkg/db"
	"github.com/clearledger/backoffice/pkg/db/models"
	"github.com/clearledger/backoffice/pkg/enums"
)

// ErrAlreadyProcessed marks a duplicate insert losing the unique-index race.
var ErrAlreadyProcessed = errors.New("event already processed")

// Repository is the durable idempotency ledger for inbound events.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByEventID(ctx context.Context, eventID string) (*models.ProcessedEvent, error)
	Record(ctx context.Context, event *models.ProcessedEvent) error
	List(ctx context.Context, result *enums.ProcessedResult, limit int) ([]models.ProcessedEvent, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a processed-event repository bound to the database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByEventID(ctx context.Context, eventID string) (*models.ProcessedEvent, error) {
	var event models.ProcessedEvent
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// Record inserts the processed marker. A unique violation on event_id means a
// concurrent delivery won the race; callers treat that as already processed.
func (r *repository) Record(ctx context.Context, event *models.ProcessedEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	err := r.db.WithContext(ctx).Create(event).Error
	if err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_processed_events_event_id") {
			return ErrAlreadyProcessed
		}
		return err
	}
	return nil
}

func (r *repository) List(ctx context.Context, result *enums.ProcessedResult, limit int) ([]models.ProcessedEvent, error) {
	q := r.db.WithContext(ctx).Model(&models.ProcessedEvent{})
	if result != nil {
		q = q.Where("result = ?", *result)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.ProcessedEvent
	err := q.Order("processed_at DESC").Find(&rows).Error
	return rows, err
}
