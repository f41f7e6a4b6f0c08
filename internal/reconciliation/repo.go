package reconciliation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/clearledger/backoffice/pkg/db/models"
	"github.com/clearledger/backoffice/pkg/enums"
)

// CandidateLine is a posted journal line on the bank GL account that no bank
// transaction has claimed yet.
type CandidateLine struct {
	LineID    uuid.UUID           `json:"line_id"`
	EntryDate time.Time           `json:"entry_date"`
	Direction enums.LineDirection `json:"direction"`
	Amount    decimal.Decimal     `json:"amount"`
}

// SignedAmount is the line's effect on the bank balance: debits deposit,
// credits withdraw.
func (c CandidateLine) SignedAmount() decimal.Decimal {
	if c.Direction == enums.LineDirectionDebit {
		return c.Amount
	}
	return c.Amount.Neg()
}

// Repository persists bank transactions and reconciliation records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateTransactions(ctx context.Context, txns []models.BankTransaction) error
	ListUnmatched(ctx context.Context, bankAccountID uuid.UUID, from, to time.Time) ([]models.BankTransaction, error)
	SaveTransaction(ctx context.Context, txn *models.BankTransaction) error
	ListCandidateLines(ctx context.Context, bankAccountID uuid.UUID, from, to time.Time) ([]CandidateLine, error)
	BookBalance(ctx context.Context, bankAccountID uuid.UUID, asOf time.Time) (decimal.Decimal, error)
	CreateReconciliation(ctx context.Context, rec *models.BankReconciliation) error
	SaveReconciliation(ctx context.Context, rec *models.BankReconciliation) error
	FindReconciliationByID(ctx context.Context, id uuid.UUID) (*models.BankReconciliation, error)
	ListReconciliations(ctx context.Context, bankAccountID uuid.UUID) ([]models.BankReconciliation, error)
	CountUnbalancedForPeriod(ctx context.Context, year, month int) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a reconciliation repository bound to the database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateTransactions(ctx context.Context, txns []models.BankTransaction) error {
	if len(txns) == 0 {
		return nil
	}
	for i := range txns {
		if txns[i].ID == uuid.Nil {
			txns[i].ID = uuid.New()
		}
	}
	return r.db.WithContext(ctx).Create(&txns).Error
}

func (r *repository) ListUnmatched(ctx context.Context, bankAccountID uuid.UUID, from, to time.Time) ([]models.BankTransaction, error) {
	var rows []models.BankTransaction
	err := r.db.WithContext(ctx).
		Where("bank_account_id = ? AND matched = ? AND transaction_date >= ? AND transaction_date <= ?",
			bankAccountID, false, from, to).
		Order("transaction_date ASC, created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) SaveTransaction(ctx context.Context, txn *models.BankTransaction) error {
	return r.db.WithContext(ctx).Save(txn).Error
}

// ListCandidateLines excludes lines another bank transaction already claimed.
func (r *repository) ListCandidateLines(ctx context.Context, bankAccountID uuid.UUID, from, to time.Time) ([]CandidateLine, error) {
	var rows []CandidateLine
	err := r.db.WithContext(ctx).
		Table("journal_lines").
		Select("journal_lines.id AS line_id, journal_entries.entry_date, journal_lines.direction, journal_lines.amount").
		Joins("JOIN journal_entries ON journal_entries.id = journal_lines.entry_id").
		Where("journal_lines.account_id = ?", bankAccountID).
		Where("journal_entries.status = ?", enums.JournalEntryStatusPosted).
		Where("journal_entries.entry_date >= ? AND journal_entries.entry_date <= ?", from, to).
		Where("journal_lines.id NOT IN (?)",
			r.db.Table("bank_transactions").
				Select("matched_line_id").
				Where("matched = ? AND matched_line_id IS NOT NULL", true)).
		Order("journal_entries.entry_date ASC, journal_lines.created_at ASC").
		Scan(&rows).Error
	return rows, err
}

func (r *repository) BookBalance(ctx context.Context, bankAccountID uuid.UUID, asOf time.Time) (decimal.Decimal, error) {
	type sums struct {
		Debits  decimal.Decimal
		Credits decimal.Decimal
	}
	var s sums
	err := r.db.WithContext(ctx).
		Table("journal_lines").
		Select(`COALESCE(SUM(CASE WHEN journal_lines.direction = 'debit' THEN journal_lines.amount ELSE 0 END), 0) AS debits,
			COALESCE(SUM(CASE WHEN journal_lines.direction = 'credit' THEN journal_lines.amount ELSE 0 END), 0) AS credits`).
		Joins("JOIN journal_entries ON journal_entries.id = journal_lines.entry_id").
		Where("journal_lines.account_id = ?", bankAccountID).
		Where("journal_entries.status = ?", enums.JournalEntryStatusPosted).
		Where("journal_entries.entry_date <= ?", asOf).
		Scan(&s).Error
	if err != nil {
		return decimal.Zero, err
	}
	return s.Debits.Sub(s.Credits), nil
}

func (r *repository) CreateReconciliation(ctx context.Context, rec *models.BankReconciliation) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *repository) SaveReconciliation(ctx context.Context, rec *models.BankReconciliation) error {
	return r.db.WithContext(ctx).Save(rec).Error
}

func (r *repository) FindReconciliationByID(ctx context.Context, id uuid.UUID) (*models.BankReconciliation, error) {
	var rec models.BankReconciliation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (r *repository) ListReconciliations(ctx context.Context, bankAccountID uuid.UUID) ([]models.BankReconciliation, error) {
	var rows []models.BankReconciliation
	err := r.db.WithContext(ctx).
		Where("bank_account_id = ?", bankAccountID).
		Order("fiscal_year ASC, fiscal_month ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) CountUnbalancedForPeriod(ctx context.Context, year, month int) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.BankReconciliation{}).
		Where("fiscal_year = ? AND fiscal_month = ? AND balanced = ?", year, month, false).
		Count(&count).Error
	return count, err
}
