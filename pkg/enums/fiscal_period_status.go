package enums

import "fmt"

// FiscalPeriodStatus maps to the fiscal_period_status_enum enum in Postgres.
type FiscalPeriodStatus string

const (
	FiscalPeriodStatusOpen   FiscalPeriodStatus = "open"
	FiscalPeriodStatusClosed FiscalPeriodStatus = "closed"
	FiscalPeriodStatusLocked FiscalPeriodStatus = "locked"
)

var validFiscalPeriodStatuses = []FiscalPeriodStatus{
	FiscalPeriodStatusOpen,
	FiscalPeriodStatusClosed,
	FiscalPeriodStatusLocked,
}

// IsValid reports whether the value matches the canonical fiscal_period_status enum.
func (s FiscalPeriodStatus) IsValid() bool {
	for _, candidate := range validFiscalPeriodStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseFiscalPeriodStatus converts raw input into FiscalPeriodStatus.
func ParseFiscalPeriodStatus(value string) (FiscalPeriodStatus, error) {
	for _, candidate := range validFiscalPeriodStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fiscal period status %q", value)
}

// IsSettled reports whether the period no longer accepts postings.
func (s FiscalPeriodStatus) IsSettled() bool {
	return s == FiscalPeriodStatusClosed || s == FiscalPeriodStatusLocked
}
