package enums

import "fmt"

// LineDirection maps to the line_direction_enum enum in Postgres.
type LineDirection string

const (
	LineDirectionDebit  LineDirection = "debit"
	LineDirectionCredit LineDirection = "credit"
)

var validLineDirections = []LineDirection{
	LineDirectionDebit,
	LineDirectionCredit,
}

// IsValid reports whether the value matches the canonical line_direction enum.
func (d LineDirection) IsValid() bool {
	for _, candidate := range validLineDirections {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseLineDirection converts raw input into LineDirection.
func ParseLineDirection(value string) (LineDirection, error) {
	for _, candidate := range validLineDirections {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid line direction %q", value)
}
