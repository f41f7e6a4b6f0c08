package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type_enum enum in Postgres.
type OutboxAggregateType string

const (
	AggregateJournalEntry OutboxAggregateType = "journal_entry"
	AggregateFiscalPeriod OutboxAggregateType = "fiscal_period"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateJournalEntry,
	AggregateFiscalPeriod,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type_enum enum in Postgres.
type OutboxEventType string

const (
	EventJournalEntryPosted   OutboxEventType = "journal_entry_posted"
	EventJournalEntryVoided   OutboxEventType = "journal_entry_voided"
	EventFiscalPeriodClosed   OutboxEventType = "fiscal_period_closed"
	EventFiscalPeriodReopened OutboxEventType = "fiscal_period_reopened"
)

var validOutboxEventTypes = []OutboxEventType{
	EventJournalEntryPosted,
	EventJournalEntryVoided,
	EventFiscalPeriodClosed,
	EventFiscalPeriodReopened,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
