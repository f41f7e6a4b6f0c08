package enums

import "fmt"

// InventoryAdjustmentType is the adjustment taxonomy published by the inventory service.
type InventoryAdjustmentType string

const (
	AdjustmentTypeIncrease InventoryAdjustmentType = "INCREASE"
	AdjustmentTypeDecrease InventoryAdjustmentType = "DECREASE"
	AdjustmentTypeTransfer InventoryAdjustmentType = "TRANSFER"
	AdjustmentTypeWriteOff InventoryAdjustmentType = "WRITE_OFF"
	AdjustmentTypeRecount  InventoryAdjustmentType = "RECOUNT"
)

var validInventoryAdjustmentTypes = []InventoryAdjustmentType{
	AdjustmentTypeIncrease,
	AdjustmentTypeDecrease,
	AdjustmentTypeTransfer,
	AdjustmentTypeWriteOff,
	AdjustmentTypeRecount,
}

// IsValid reports whether the value matches the inventory service's taxonomy.
func (t InventoryAdjustmentType) IsValid() bool {
	for _, candidate := range validInventoryAdjustmentTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseInventoryAdjustmentType converts raw input into InventoryAdjustmentType.
func ParseInventoryAdjustmentType(value string) (InventoryAdjustmentType, error) {
	for _, candidate := range validInventoryAdjustmentTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid inventory adjustment type %q", value)
}

// HasGLImpact reports whether the adjustment changes the general ledger.
// TRANSFER moves stock between warehouses without changing total value.
func (t InventoryAdjustmentType) HasGLImpact() bool {
	return t != AdjustmentTypeTransfer
}
