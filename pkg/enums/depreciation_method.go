package enums

import "fmt"

// DepreciationMethod maps to the depreciation_method_enum enum in Postgres.
type DepreciationMethod string

const (
	DepreciationStraightLine     DepreciationMethod = "straight_line"
	DepreciationDecliningBalance DepreciationMethod = "declining_balance"
	DepreciationSumOfYearsDigits DepreciationMethod = "sum_of_years_digits"
)

var validDepreciationMethods = []DepreciationMethod{
	DepreciationStraightLine,
	DepreciationDecliningBalance,
	DepreciationSumOfYearsDigits,
}

// IsValid reports whether the value matches the canonical depreciation_method enum.
func (m DepreciationMethod) IsValid() bool {
	for _, candidate := range validDepreciationMethods {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseDepreciationMethod converts raw input into DepreciationMethod.
func ParseDepreciationMethod(value string) (DepreciationMethod, error) {
	for _, candidate := range validDepreciationMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid depreciation method %q", value)
}
