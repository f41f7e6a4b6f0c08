package journal

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clearledger/backoffice/pkg/db/models"
	"github.com/clearledger/backoffice/pkg/enums"
	"github.com/clearledger/backoffice/pkg/pagination"
)

// ErrVersionConflict reports a lost optimistic-lock race on a status change.
var ErrVersionConflict = errors.New("journal entry version conflict")

// Repository manages persistence for journal entries and their lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.JournalEntry) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.JournalEntry, error)
	FindBySourceReference(ctx context.Context, ref string) (*models.JournalEntry, error)
	List(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.JournalEntry, string, error)
	CountForPeriod(ctx context.Context, year, month int) (int64, error)
	CountByStatusForPeriod(ctx context.Context, year, month int, status enums.JournalEntryStatus) (int64, error)
	SaveStatusCAS(ctx context.Context, entry *models.JournalEntry, expectedVersion int) error
}

// ListFilter narrows journal entry listings.
type ListFilter struct {
	FiscalYear  *int
	FiscalMonth *int
	Status      *enums.JournalEntryStatus
	EntryType   *enums.JournalEntryType
	AccountID   *uuid.UUID
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a journal repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.JournalEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	for i := range entry.Lines {
		if entry.Lines[i].ID == uuid.Nil {
			entry.Lines[i].ID = uuid.New()
		}
		entry.Lines[i].EntryID = entry.ID
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.JournalEntry, error) {
	var entry models.JournalEntry
	err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("line_no ASC") }).
		Where("id = ?", id).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *repository) FindBySourceReference(ctx context.Context, ref string) (*models.JournalEntry, error) {
	var entry models.JournalEntry
	err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("line_no ASC") }).
		Where("source_reference_id = ?", ref).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.JournalEntry, string, error) {
	q := r.db.WithContext(ctx).Model(&models.JournalEntry{})
	if filter.FiscalYear != nil {
		q = q.Where("fiscal_year = ?", *filter.FiscalYear)
	}
	if filter.FiscalMonth != nil {
		q = q.Where("fiscal_month = ?", *filter.FiscalMonth)
	}
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.EntryType != nil {
		q = q.Where("entry_type = ?", *filter.EntryType)
	}
	if filter.AccountID != nil {
		q = q.Where("id IN (?)", r.db.Model(&models.JournalLine{}).
			Select("entry_id").
			Where("account_id = ?", *filter.AccountID))
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}
	if cursor != nil {
		q = q.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	limit := pagination.NormalizeLimit(params.Limit)
	var rows []models.JournalEntry
	err = q.Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("line_no ASC") }).
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, "", err
	}

	nextCursor := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return rows, nextCursor, nil
}

func (r *repository) CountForPeriod(ctx context.Context, year, month int) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.JournalEntry{}).
		Where("fiscal_year = ? AND fiscal_month = ?", year, month).
		Count(&count).Error
	return count, err
}

func (r *repository) CountByStatusForPeriod(ctx context.Context, year, month int, status enums.JournalEntryStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.JournalEntry{}).
		Where("fiscal_year = ? AND fiscal_month = ? AND status = ?", year, month, status).
		Count(&count).Error
	return count, err
}

// SaveStatusCAS persists a status transition guarded by the entry's version.
// A zero row count means another writer won the race.
func (r *repository) SaveStatusCAS(ctx context.Context, entry *models.JournalEntry, expectedVersion int) error {
	res := r.db.WithContext(ctx).
		Model(&models.JournalEntry{}).
		Where("id = ? AND version = ?", entry.ID, expectedVersion).
		Updates(map[string]any{
			"status":      entry.Status,
			"posted_at":   entry.PostedAt,
			"voided_at":   entry.VoidedAt,
			"void_reason": entry.VoidReason,
			"version":     expectedVersion + 1,
			"updated_at":  time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	entry.Version = expectedVersion + 1
	return nil
}
