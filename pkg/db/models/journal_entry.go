package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clearledger/backoffice/pkg/enums"
)

// JournalEntry is an append-only double-entry record. Lines are immutable
// once the entry exists; post/void only transition status.
type JournalEntry struct {
	ID                uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EntryNumber       string                   `gorm:"column:entry_number;type:varchar(20);not null;uniqueIndex:ux_journal_entries_number"`
	EntryDate         time.Time                `gorm:"column:entry_date;type:date;not null;index"`
	FiscalYear        int                      `gorm:"column:fiscal_year;not null;index:ix_journal_entries_period"`
	FiscalMonth       int                      `gorm:"column:fiscal_month;not null;index:ix_journal_entries_period"`
	Status            enums.JournalEntryStatus `gorm:"column:status;type:journal_entry_status_enum;not null;default:'draft'"`
	EntryType         enums.JournalEntryType   `gorm:"column:entry_type;type:journal_entry_type_enum;not null;default:'manual'"`
	Description       string                   `gorm:"column:description;type:text"`
	SourceService     *string                  `gorm:"column:source_service;type:varchar(50)"`
	SourceReferenceID *string                  `gorm:"column:source_reference_id;type:varchar(100);uniqueIndex:ux_journal_entries_source_ref"`
	CreatedBy         string                   `gorm:"column:created_by;type:varchar(100)"`
	PostedAt          *time.Time               `gorm:"column:posted_at"`
	VoidedAt          *time.Time               `gorm:"column:voided_at"`
	VoidReason        *string                  `gorm:"column:void_reason;type:varchar(500)"`
	Version           int                      `gorm:"column:version;not null;default:1"`
	CreatedAt         time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                `gorm:"column:updated_at;autoUpdateTime"`

	Lines []JournalLine `gorm:"foreignKey:EntryID;references:ID"`
}

// TableName overrides GORM's pluralization.
func (JournalEntry) TableName() string {
	return "journal_entries"
}

// TotalDebit sums the entry's debit lines.
func (e JournalEntry) TotalDebit() decimal.Decimal {
	total := decimal.Zero
	for _, line := range e.Lines {
		if line.Direction == enums.LineDirectionDebit {
			total = total.Add(line.Amount)
		}
	}
	return total
}

// TotalCredit sums the entry's credit lines.
func (e JournalEntry) TotalCredit() decimal.Decimal {
	total := decimal.Zero
	for _, line := range e.Lines {
		if line.Direction == enums.LineDirectionCredit {
			total = total.Add(line.Amount)
		}
	}
	return total
}

// JournalLine is one debit or credit leg of a journal entry. Optional
// warehouse/product dimensions support downstream analysis.
type JournalLine struct {
	ID          uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EntryID     uuid.UUID           `gorm:"column:entry_id;type:uuid;not null;index"`
	LineNo      int                 `gorm:"column:line_no;not null"`
	AccountID   uuid.UUID           `gorm:"column:account_id;type:uuid;not null;index"`
	Direction   enums.LineDirection `gorm:"column:direction;type:line_direction_enum;not null"`
	Amount      decimal.Decimal     `gorm:"column:amount;type:decimal(18,4);not null"`
	Memo        string              `gorm:"column:memo;type:varchar(500)"`
	WarehouseID *uuid.UUID          `gorm:"column:warehouse_id;type:uuid"`
	ProductID   *uuid.UUID          `gorm:"column:product_id;type:uuid"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
}

// TableName overrides GORM's pluralization.
func (JournalLine) TableName() string {
	return "journal_lines"
}
