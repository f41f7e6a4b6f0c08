package periods

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clearledger/backoffice/pkg/db/models"
	"github.com/clearledger/backoffice/pkg/enums"
)

// ErrVersionConflict reports a lost optimistic-lock race on a period transition.
var ErrVersionConflict = errors.New("fiscal period version conflict")

// Repository manages persistence for fiscal periods.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, period *models.FiscalPeriod) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.FiscalPeriod, error)
	FindByYearMonth(ctx context.Context, year, month int) (*models.FiscalPeriod, error)
	List(ctx context.Context, year *int) ([]models.FiscalPeriod, error)
	ExistsSettledAfter(ctx context.Context, year, month int) (bool, error)
	FirstUnsettledBefore(ctx context.Context, year, month int) (*models.FiscalPeriod, error)
	SaveStatusCAS(ctx context.Context, period *models.FiscalPeriod, expectedVersion int) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a period repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, period *models.FiscalPeriod) error {
	if period.ID == uuid.Nil {
		period.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(period).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.FiscalPeriod, error) {
	var period models.FiscalPeriod
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&period).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &period, nil
}

func (r *repository) FindByYearMonth(ctx context.Context, year, month int) (*models.FiscalPeriod, error) {
	var period models.FiscalPeriod
	err := r.db.WithContext(ctx).
		Where("fiscal_year = ? AND fiscal_month = ?", year, month).
		First(&period).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &period, nil
}

func (r *repository) List(ctx context.Context, year *int) ([]models.FiscalPeriod, error) {
	q := r.db.WithContext(ctx).Model(&models.FiscalPeriod{})
	if year != nil {
		q = q.Where("fiscal_year = ?", *year)
	}
	var rows []models.FiscalPeriod
	err := q.Order("fiscal_year ASC, fiscal_month ASC").Find(&rows).Error
	return rows, err
}

func (r *repository) ExistsSettledAfter(ctx context.Context, year, month int) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.FiscalPeriod{}).
		Where("(fiscal_year > ? OR (fiscal_year = ? AND fiscal_month > ?)) AND status IN ?",
			year, year, month,
			[]enums.FiscalPeriodStatus{enums.FiscalPeriodStatusClosed, enums.FiscalPeriodStatusLocked}).
		Count(&count).Error
	return count > 0, err
}

// FirstUnsettledBefore returns the earliest period before (year, month) that
// is still open, or nil when every earlier period is settled. Months that
// never saw activity have no row and do not count.
func (r *repository) FirstUnsettledBefore(ctx context.Context, year, month int) (*models.FiscalPeriod, error) {
	var period models.FiscalPeriod
	err := r.db.WithContext(ctx).
		Where("(fiscal_year < ? OR (fiscal_year = ? AND fiscal_month < ?)) AND status = ?",
			year, year, month, enums.FiscalPeriodStatusOpen).
		Order("fiscal_year ASC, fiscal_month ASC").
		First(&period).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &period, nil
}

// SaveStatusCAS persists a lifecycle transition guarded by the period's version.
func (r *repository) SaveStatusCAS(ctx context.Context, period *models.FiscalPeriod, expectedVersion int) error {
	res := r.db.WithContext(ctx).
		Model(&models.FiscalPeriod{}).
		Where("id = ? AND version = ?", period.ID, expectedVersion).
		Updates(map[string]any{
			"status":        period.Status,
			"closed_at":     period.ClosedAt,
			"closed_by":     period.ClosedBy,
			"reopened_at":   period.ReopenedAt,
			"reopened_by":   period.ReopenedBy,
			"reopen_reason": period.ReopenReason,
			"locked_at":     period.LockedAt,
			"version":       expectedVersion + 1,
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	period.Version = expectedVersion + 1
	return nil
}
