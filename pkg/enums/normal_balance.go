package enums

import "fmt"

// NormalBalance maps to the normal_balance_enum enum in Postgres.
type NormalBalance string

const (
	NormalBalanceDebit  NormalBalance = "debit"
	NormalBalanceCredit NormalBalance = "credit"
)

var validNormalBalances = []NormalBalance{
	NormalBalanceDebit,
	NormalBalanceCredit,
}

// IsValid reports whether the value matches the canonical normal_balance enum.
func (n NormalBalance) IsValid() bool {
	for _, candidate := range validNormalBalances {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNormalBalance converts raw input into NormalBalance.
func ParseNormalBalance(value string) (NormalBalance, error) {
	for _, candidate := range validNormalBalances {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid normal balance %q", value)
}
