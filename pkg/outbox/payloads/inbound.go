package payloads

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clearledger/backoffice/pkg/enums"
)

// Inbound event types published by the upstream inventory and order services.
const (
	InboundInventoryAdjusted = "inventory.adjusted"
	InboundCOGSCalculated    = "cogs.calculated"
	InboundOrderCompleted    = "order.completed"
	InboundOrderCancelled    = "order.cancelled"
)

// InboundEnvelope is the wire shape upstream services publish. EventID comes
// from the producer and is the idempotency key on our side.
type InboundEnvelope struct {
	EventID    string          `json:"eventId"`
	EventType  string          `json:"eventType"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

// InventoryAdjustedEvent describes a stock adjustment with its GL value
// impact. TotalValue is positive for gains and negative for losses; TRANSFER
// adjustments move stock between warehouses and carry no value change.
type InventoryAdjustedEvent struct {
	AdjustmentID   string                        `json:"adjustment_id"`
	AdjustmentType enums.InventoryAdjustmentType `json:"adjustment_type"`
	WarehouseID    *uuid.UUID                    `json:"warehouse_id,omitempty"`
	ProductID      *uuid.UUID                    `json:"product_id,omitempty"`
	QuantityChange int                           `json:"quantity_change"`
	TotalValue     decimal.Decimal               `json:"total_value"`
	AdjustedAt     time.Time                     `json:"adjusted_at"`
}

// COGSCalculatedEvent carries the cost of goods sold computed for an order.
type COGSCalculatedEvent struct {
	OrderID      string          `json:"order_id"`
	TotalCOGS    decimal.Decimal `json:"total_cogs"`
	CalculatedAt time.Time       `json:"calculated_at"`
}

// OrderCompletedEvent signals revenue recognition for a fulfilled order.
type OrderCompletedEvent struct {
	OrderID     string          `json:"order_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CompletedAt time.Time       `json:"completed_at"`
}

// OrderCancelledEvent reverses a previously recognized order.
type OrderCancelledEvent struct {
	OrderID     string          `json:"order_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CancelledAt time.Time       `json:"cancelled_at"`
}
