package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clearledger/backoffice/pkg/enums"
)

// EntryLine is the denormalized line detail carried on journal events so
// consumers can act without a follow-up query.
type EntryLine struct {
	AccountID   uuid.UUID           `json:"account_id"`
	AccountCode string              `json:"account_code"`
	Direction   enums.LineDirection `json:"direction"`
	Amount      decimal.Decimal     `json:"amount"`
}

// JournalEntryPostedEvent is emitted when an entry transitions to Posted.
type JournalEntryPostedEvent struct {
	EntryID     uuid.UUID       `json:"entry_id"`
	EntryNumber string          `json:"entry_number"`
	EntryDate   time.Time       `json:"entry_date"`
	FiscalYear  int             `json:"fiscal_year"`
	FiscalMonth int             `json:"fiscal_month"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Accounts    []EntryLine     `json:"accounts"`
}

// JournalEntryVoidedEvent is emitted when a posted entry is voided.
type JournalEntryVoidedEvent struct {
	EntryID     uuid.UUID `json:"entry_id"`
	EntryNumber string    `json:"entry_number"`
	FiscalYear  int       `json:"fiscal_year"`
	FiscalMonth int       `json:"fiscal_month"`
	Reason      string    `json:"reason"`
	VoidedAt    time.Time `json:"voided_at"`
}

// PeriodBalance is one account's final snapshot carried on close events.
type PeriodBalance struct {
	AccountID      uuid.UUID       `json:"account_id"`
	AccountCode    string          `json:"account_code"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	DebitTotal     decimal.Decimal `json:"debit_total"`
	CreditTotal    decimal.Decimal `json:"credit_total"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
}

// FiscalPeriodClosedEvent is emitted after a period closes successfully.
type FiscalPeriodClosedEvent struct {
	PeriodID      uuid.UUID       `json:"period_id"`
	FiscalYear    int             `json:"fiscal_year"`
	FiscalMonth   int             `json:"fiscal_month"`
	ClosedBy      string          `json:"closed_by"`
	ClosedAt      time.Time       `json:"closed_at"`
	FinalBalances []PeriodBalance `json:"final_balances"`
}

// FiscalPeriodReopenedEvent is emitted when a settled period is reopened.
type FiscalPeriodReopenedEvent struct {
	PeriodID    uuid.UUID `json:"period_id"`
	FiscalYear  int       `json:"fiscal_year"`
	FiscalMonth int       `json:"fiscal_month"`
	ReopenedBy  string    `json:"reopened_by"`
	ReopenedAt  time.Time `json:"reopened_at"`
	Reason      string    `json:"reason"`
}
