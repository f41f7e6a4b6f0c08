package enums

import "fmt"

// JournalEntryType maps to the journal_entry_type_enum enum in Postgres.
type JournalEntryType string

const (
	JournalEntryTypeManual JournalEntryType = "manual"
	JournalEntryTypeSystem JournalEntryType = "system"
)

var validJournalEntryTypes = []JournalEntryType{
	JournalEntryTypeManual,
	JournalEntryTypeSystem,
}

// IsValid reports whether the value matches the canonical journal_entry_type enum.
func (t JournalEntryType) IsValid() bool {
	for _, candidate := range validJournalEntryTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseJournalEntryType converts raw input into JournalEntryType.
func ParseJournalEntryType(value string) (JournalEntryType, error) {
	for _, candidate := range validJournalEntryTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid journal entry type %q", value)
}
