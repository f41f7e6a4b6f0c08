package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/clearledger/backoffice/pkg/db/types"
)

// BankTransaction is one imported bank statement line. Matching marks it
// consumed so it can never satisfy two journal lines.
type BankTransaction struct {
	ID                 uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BankAccountID      uuid.UUID       `gorm:"column:bank_account_id;type:uuid;not null;index"`
	TransactionDate    time.Time       `gorm:"column:transaction_date;type:date;not null;index"`
	Amount             decimal.Decimal `gorm:"column:amount;type:decimal(18,4);not null"`
	Description        string          `gorm:"column:description;type:varchar(500)"`
	Matched            bool            `gorm:"column:matched;not null;default:false"`
	MatchedLineID      *uuid.UUID      `gorm:"column:matched_line_id;type:uuid"`
	ReconciliationID   *uuid.UUID      `gorm:"column:reconciliation_id;type:uuid;index"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides GORM's pluralization.
func (BankTransaction) TableName() string {
	return "bank_transactions"
}

// BankReconciliation records one reconciliation attempt for a bank account
// and period. Balanced means adjusted bank equals adjusted book.
type BankReconciliation struct {
	ID                   uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BankAccountID        uuid.UUID         `gorm:"column:bank_account_id;type:uuid;not null;index:ix_bank_reconciliations_period"`
	FiscalYear           int               `gorm:"column:fiscal_year;not null;index:ix_bank_reconciliations_period"`
	FiscalMonth          int               `gorm:"column:fiscal_month;not null;index:ix_bank_reconciliations_period"`
	StatementBalance     decimal.Decimal   `gorm:"column:statement_balance;type:decimal(18,4);not null"`
	BookBalance          decimal.Decimal   `gorm:"column:book_balance;type:decimal(18,4);not null"`
	AdjustedBankBalance  decimal.Decimal   `gorm:"column:adjusted_bank_balance;type:decimal(18,4);not null"`
	AdjustedBookBalance  decimal.Decimal   `gorm:"column:adjusted_book_balance;type:decimal(18,4);not null"`
	Balanced             bool              `gorm:"column:balanced;not null;default:false"`
	MatchedLineIDs       dbtypes.UUIDArray `gorm:"column:matched_line_ids;type:uuid[]"`
	AdjustingEntryID     *uuid.UUID        `gorm:"column:adjusting_entry_id;type:uuid"`
	CompletedAt          *time.Time        `gorm:"column:completed_at"`
	CreatedAt            time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides GORM's pluralization.
func (BankReconciliation) TableName() string {
	return "bank_reconciliations"
}
