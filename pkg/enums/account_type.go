package enums

import "fmt"

// AccountType maps to the account_type_enum enum in Postgres.
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity    AccountType = "equity"
	AccountTypeRevenue   AccountType = "revenue"
	AccountTypeCOGS      AccountType = "cogs"
	AccountTypeExpense   AccountType = "expense"
)

var validAccountTypes = []AccountType{
	AccountTypeAsset,
	AccountTypeLiability,
	AccountTypeEquity,
	AccountTypeRevenue,
	AccountTypeCOGS,
	AccountTypeExpense,
}

// codeRanges binds each account type to its inclusive 4-digit code range.
var codeRanges = map[AccountType][2]int{
	AccountTypeAsset:     {1000, 1999},
	AccountTypeLiability: {2000, 2999},
	AccountTypeEquity:    {3000, 3999},
	AccountTypeRevenue:   {4000, 4999},
	AccountTypeCOGS:      {5000, 5399},
	AccountTypeExpense:   {6000, 8999},
}

// IsValid reports whether the value matches the canonical account_type enum.
func (t AccountType) IsValid() bool {
	for _, candidate := range validAccountTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseAccountType converts raw input into AccountType.
func ParseAccountType(value string) (AccountType, error) {
	for _, candidate := range validAccountTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid account type %q", value)
}

// CodeRange returns the inclusive numeric code range assigned to the type.
func (t AccountType) CodeRange() (low, high int, ok bool) {
	r, ok := codeRanges[t]
	if !ok {
		return 0, 0, false
	}
	return r[0], r[1], true
}

// ContainsCode reports whether the numeric account code falls in the type's range.
func (t AccountType) ContainsCode(code int) bool {
	low, high, ok := t.CodeRange()
	if !ok {
		return false
	}
	return code >= low && code <= high
}

// NormalBalance returns the side on which the account type naturally increases.
func (t AccountType) NormalBalance() NormalBalance {
	switch t {
	case AccountTypeAsset, AccountTypeExpense, AccountTypeCOGS:
		return NormalBalanceDebit
	default:
		return NormalBalanceCredit
	}
}
