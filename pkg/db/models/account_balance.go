package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountBalance is the persisted per-account snapshot written when a period
// closes. It is immutable while the period stays closed; reopening marks the
// row stale until the period is reclosed and the balance recomputed.
type AccountBalance struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AccountID      uuid.UUID       `gorm:"column:account_id;type:uuid;not null;uniqueIndex:ux_account_balances_account_period"`
	FiscalYear     int             `gorm:"column:fiscal_year;not null;uniqueIndex:ux_account_balances_account_period"`
	FiscalMonth    int             `gorm:"column:fiscal_month;not null;uniqueIndex:ux_account_balances_account_period"`
	OpeningBalance decimal.Decimal `gorm:"column:opening_balance;type:decimal(18,4);not null"`
	DebitTotal     decimal.Decimal `gorm:"column:debit_total;type:decimal(18,4);not null"`
	CreditTotal    decimal.Decimal `gorm:"column:credit_total;type:decimal(18,4);not null"`
	ClosingBalance decimal.Decimal `gorm:"column:closing_balance;type:decimal(18,4);not null"`
	Stale          bool            `gorm:"column:stale;not null;default:false"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides GORM's pluralization.
func (AccountBalance) TableName() string {
	return "account_balances"
}
