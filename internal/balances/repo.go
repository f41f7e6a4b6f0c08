package balances

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/clearledger/backoffice/pkg/db/models"
	"github.com/clearledger/backoffice/pkg/enums"
)

// PostedLine is the minimal line projection the balance engine aggregates.
type PostedLine struct {
	AccountID uuid.UUID
	Direction enums.LineDirection
	Amount    decimal.Decimal
}

// Repository manages persisted balance snapshots and the posted-line reads
// they are derived from.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListPostedLines(ctx context.Context, year, month int) ([]PostedLine, error)
	Upsert(ctx context.Context, balances []models.AccountBalance) error
	FindForPeriod(ctx context.Context, year, month int) ([]models.AccountBalance, error)
	FindForAccount(ctx context.Context, accountID uuid.UUID, year, month int) (*models.AccountBalance, error)
	MarkStaleForPeriod(ctx context.Context, year, month int) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a balance repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) ListPostedLines(ctx context.Context, year, month int) ([]PostedLine, error) {
	var rows []PostedLine
	err := r.db.WithContext(ctx).
		Model(&models.JournalLine{}).
		Select("journal_lines.account_id, journal_lines.direction, journal_lines.amount").
		Joins("JOIN journal_entries ON journal_entries.id = journal_lines.entry_id").
		Where("journal_entries.fiscal_year = ? AND journal_entries.fiscal_month = ? AND journal_entries.status = ?",
			year, month, enums.JournalEntryStatusPosted).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Upsert(ctx context.Context, balances []models.AccountBalance) error {
	if len(balances) == 0 {
		return nil
	}
	for i := range balances {
		if balances[i].ID == uuid.Nil {
			balances[i].ID = uuid.New()
		}
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "account_id"}, {Name: "fiscal_year"}, {Name: "fiscal_month"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"opening_balance", "debit_total", "credit_total", "closing_balance", "stale", "updated_at",
			}),
		}).
		Create(&balances).Error
}

func (r *repository) FindForPeriod(ctx context.Context, year, month int) ([]models.AccountBalance, error) {
	var rows []models.AccountBalance
	err := r.db.WithContext(ctx).
		Where("fiscal_year = ? AND fiscal_month = ?", year, month).
		Find(&rows).Error
	return rows, err
}

func (r *repository) FindForAccount(ctx context.Context, accountID uuid.UUID, year, month int) (*models.AccountBalance, error) {
	var row models.AccountBalance
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND fiscal_year = ? AND fiscal_month = ?", accountID, year, month).
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *repository) MarkStaleForPeriod(ctx context.Context, year, month int) error {
	return r.db.WithContext(ctx).
		Model(&models.AccountBalance{}).
		Where("fiscal_year = ? AND fiscal_month = ?", year, month).
		Update("stale", true).Error
}
