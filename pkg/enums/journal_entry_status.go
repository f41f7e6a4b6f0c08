package enums

import "fmt"

// JournalEntryStatus maps to the journal_entry_status_enum enum in Postgres.
type JournalEntryStatus string

const (
	JournalEntryStatusDraft  JournalEntryStatus = "draft"
	JournalEntryStatusPosted JournalEntryStatus = "posted"
	JournalEntryStatusVoided JournalEntryStatus = "voided"
)

var validJournalEntryStatuses = []JournalEntryStatus{
	JournalEntryStatusDraft,
	JournalEntryStatusPosted,
	JournalEntryStatusVoided,
}

// IsValid reports whether the value matches the canonical journal_entry_status enum.
func (s JournalEntryStatus) IsValid() bool {
	for _, candidate := range validJournalEntryStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseJournalEntryStatus converts raw input into JournalEntryStatus.
func ParseJournalEntryStatus(value string) (JournalEntryStatus, error) {
	for _, candidate := range validJournalEntryStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid journal entry status %q", value)
}
