package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clearledger/backoffice/pkg/enums"
)

// FiscalPeriod is one calendar month of the ledger. Periods are totally
// ordered by (year, month) and close strictly in sequence.
type FiscalPeriod struct {
	ID           uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	FiscalYear   int                      `gorm:"column:fiscal_year;not null;uniqueIndex:ux_fiscal_periods_year_month"`
	FiscalMonth  int                      `gorm:"column:fiscal_month;not null;uniqueIndex:ux_fiscal_periods_year_month"`
	Status       enums.FiscalPeriodStatus `gorm:"column:status;type:fiscal_period_status_enum;not null;default:'open'"`
	ClosedAt     *time.Time               `gorm:"column:closed_at"`
	ClosedBy     *string                  `gorm:"column:closed_by;type:varchar(100)"`
	ReopenedAt   *time.Time               `gorm:"column:reopened_at"`
	ReopenedBy   *string                  `gorm:"column:reopened_by;type:varchar(100)"`
	ReopenReason *string                  `gorm:"column:reopen_reason;type:varchar(500)"`
	LockedAt     *time.Time               `gorm:"column:locked_at"`
	Version      int                      `gorm:"column:version;not null;default:1"`
	CreatedAt    time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides GORM's pluralization.
func (FiscalPeriod) TableName() string {
	return "fiscal_periods"
}

// Label renders the period as YYYY-MM.
func (p FiscalPeriod) Label() string {
	return fmt.Sprintf("%04d-%02d", p.FiscalYear, p.FiscalMonth)
}

// PreviousPeriod returns the (year, month) immediately before this period.
func (p FiscalPeriod) PreviousPeriod() (year, month int) {
	if p.FiscalMonth == 1 {
		return p.FiscalYear - 1, 12
	}
	return p.FiscalYear, p.FiscalMonth - 1
}

// EndDate returns the last instant of the period's month in UTC.
func (p FiscalPeriod) EndDate() time.Time {
	firstOfNext := time.Date(p.FiscalYear, time.Month(p.FiscalMonth), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return firstOfNext.Add(-time.Nanosecond)
}
