package enums

import "fmt"

// ProcessedResult maps to the processed_result_enum enum in Postgres.
type ProcessedResult string

const (
	ProcessedResultSuccess ProcessedResult = "success"
	ProcessedResultFailed  ProcessedResult = "failed"
	ProcessedResultSkipped ProcessedResult = "skipped"
)

var validProcessedResults = []ProcessedResult{
	ProcessedResultSuccess,
	ProcessedResultFailed,
	ProcessedResultSkipped,
}

// IsValid reports whether the value matches the canonical processed_result enum.
func (r ProcessedResult) IsValid() bool {
	for _, candidate := range validProcessedResults {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseProcessedResult converts raw input into ProcessedResult.
func ParseProcessedResult(value string) (ProcessedResult, error) {
	for _, candidate := range validProcessedResults {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid processed result %q", value)
}
