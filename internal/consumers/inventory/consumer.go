package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/clearledger/backoffice/internal/inbox"
	"github.com/clearledger/backoffice/internal/journal"
	"github.com/clearledger/backoffice/pkg/config"
	"github.com/clearledger/backoffice/pkg/db/models"
	"github.com/clearledger/backoffice/pkg/enums"
	apperrors "github.com/clearledger/backoffice/pkg/errors"
	"github.com/clearledger/backoffice/pkg/logger"
	"github.com/clearledger/backoffice/pkg/metrics"
	"github.com/clearledger/backoffice/pkg/outbox/payloads"
)

const consumerName = "ledger-inventory"

type entryPoster interface {
	CreatePostedTx(ctx context.Context, tx *gorm.DB, input journal.CreateEntryInput) (*models.JournalEntry, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type accountResolver interface {
	FindByCode(ctx context.Context, code string) (*models.Account, error)
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer turns inventory adjustments and COGS calculations into posted
// journal entries, at most one per upstream event.
type Consumer struct {
	poster       entryPoster
	processed    inbox.Repository
	accounts     accountResolver
	subscription *pubsub.Subscriber
	idempotency  idempotencyChecker
	tx           txRunner
	cfg          config.LedgerConfig
	metrics      *metrics.ConsumerMetrics
	logg         *logger.Logger
}

// NewConsumer builds the inventory event consumer.
func NewConsumer(poster entryPoster, processed inbox.Repository, accounts accountResolver, subscription *pubsub.Subscriber, manager idempotencyChecker, tx txRunner, cfg config.LedgerConfig, consumerMetrics *metrics.ConsumerMetrics, logg *logger.Logger) (*Consumer, error) {
	if poster == nil {
		return nil, fmt.Errorf("entry poster required")
	}
	if processed == nil {
		return nil, fmt.Errorf("processed event repository required")
	}
	if accounts == nil {
		return nil, fmt.Errorf("account resolver required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("inventory subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		poster:       poster,
		processed:    processed,
		accounts:     accounts,
		subscription: subscription,
		idempotency:  manager,
		tx:           tx,
		cfg:          cfg,
		metrics:      consumerMetrics,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack    bool
	nack   bool
	result enums.ProcessedResult
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	outcome := c.handleMessage(ctx, msg)
	if c.metrics != nil {
		label := "nack"
		if outcome.ack {
			label = string(outcome.result)
			if label == "" {
				label = "ignored"
			}
		}
		c.metrics.IncProcessed(consumerName, label)
	}
	return outcome
}

func (c *Consumer) handleMessage(ctx context.Context, msg *pubsub.Message) processResult {
	var envelope payloads.InboundEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(ctx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_id":   envelope.EventID,
		"event_type": envelope.EventType,
	})

	switch envelope.EventType {
	case payloads.InboundInventoryAdjusted, payloads.InboundCOGSCalculated:
	default:
		c.logg.Info(logCtx, "event not handled by inventory consumer")
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, consumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	// One transaction covers the inbox check, the posted entry, and the
	// processed-event record, so a crash never leaves a partial result.
	var result enums.ProcessedResult
	txErr := c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txProcessed := c.processed.WithTx(tx)

		marker, err := txProcessed.FindByEventID(ctx, envelope.EventID)
		if err != nil {
			return err
		}
		if marker != nil {
			result = marker.Result
			return nil
		}

		result, err = c.dispatch(logCtx, tx, envelope)
		if err != nil {
			return err
		}
		return c.record(ctx, txProcessed, envelope, result)
	})
	if txErr != nil {
		c.logg.Error(logCtx, "inventory event handling failed", txErr)
		_ = c.idempotency.Delete(ctx, consumerName, eventID)
		return processResult{nack: true}
	}

	c.logg.Info(logCtx, "inventory event processed")
	return processResult{ack: true, result: result}
}

func (c *Consumer) dispatch(ctx context.Context, tx *gorm.DB, envelope payloads.InboundEnvelope) (enums.ProcessedResult, error) {
	switch envelope.EventType {
	case payloads.InboundInventoryAdjusted:
		return c.handleAdjustment(ctx, tx, envelope)
	case payloads.InboundCOGSCalculated:
		return c.handleCOGS(ctx, tx, envelope)
	default:
		return "", fmt.Errorf("unexpected event type %q", envelope.EventType)
	}
}

func (c *Consumer) handleAdjustment(ctx context.Context, tx *gorm.DB, envelope payloads.InboundEnvelope) (enums.ProcessedResult, error) {
	var payload payloads.InventoryAdjustedEvent
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		return "", fmt.Errorf("parse adjustment payload: %w", err)
	}
	if payload.AdjustmentID == "" {
		return "", fmt.Errorf("adjustment id missing")
	}
	if !payload.AdjustmentType.IsValid() {
		return "", fmt.Errorf("unknown adjustment type %q", payload.AdjustmentType)
	}

	// Transfers move stock between warehouses; the ledger total is unchanged.
	if !payload.AdjustmentType.HasGLImpact() || payload.TotalValue.IsZero() {
		return enums.ProcessedResultSkipped, nil
	}

	inventoryID, err := c.accountID(ctx, c.cfg.InventoryAccountCode)
	if err != nil {
		return "", err
	}

	value := payload.TotalValue
	var lines []journal.LineInput
	var description string
	if value.IsPositive() {
		gainID, err := c.accountID(ctx, c.cfg.AdjustmentGainAccountCode)
		if err != nil {
			return "", err
		}
		description = fmt.Sprintf("Inventory adjustment gain %s", payload.AdjustmentID)
		lines = []journal.LineInput{
			{AccountID: inventoryID, Direction: enums.LineDirectionDebit, Amount: value, WarehouseID: payload.WarehouseID, ProductID: payload.ProductID},
			{AccountID: gainID, Direction: enums.LineDirectionCredit, Amount: value},
		}
	} else {
		lossID, err := c.accountID(ctx, c.cfg.AdjustmentLossAccountCode)
		if err != nil {
			return "", err
		}
		loss := value.Abs()
		description = fmt.Sprintf("Inventory adjustment loss %s", payload.AdjustmentID)
		lines = []journal.LineInput{
			{AccountID: lossID, Direction: enums.LineDirectionDebit, Amount: loss},
			{AccountID: inventoryID, Direction: enums.LineDirectionCredit, Amount: loss, WarehouseID: payload.WarehouseID, ProductID: payload.ProductID},
		}
	}

	ref := fmt.Sprintf("inv-adj-%s", payload.AdjustmentID)
	return c.post(ctx, tx, envelope, ref, description, lines)
}

func (c *Consumer) handleCOGS(ctx context.Context, tx *gorm.DB, envelope payloads.InboundEnvelope) (enums.ProcessedResult, error) {
	var payload payloads.COGSCalculatedEvent
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		return "", fmt.Errorf("parse cogs payload: %w", err)
	}
	if payload.OrderID == "" {
		return "", fmt.Errorf("order id missing")
	}
	if payload.TotalCOGS.LessThanOrEqual(decimal.Zero) {
		return enums.ProcessedResultSkipped, nil
	}

	cogsID, err := c.accountID(ctx, c.cfg.COGSAccountCode)
	if err != nil {
		return "", err
	}
	inventoryID, err := c.accountID(ctx, c.cfg.InventoryAccountCode)
	if err != nil {
		return "", err
	}

	ref := fmt.Sprintf("cogs-%s", payload.OrderID)
	description := fmt.Sprintf("COGS for order %s", payload.OrderID)
	lines := []journal.LineInput{
		{AccountID: cogsID, Direction: enums.LineDirectionDebit, Amount: payload.TotalCOGS},
		{AccountID: inventoryID, Direction: enums.LineDirectionCredit, Amount: payload.TotalCOGS},
	}
	return c.post(ctx, tx, envelope, ref, description, lines)
}

// post creates the entry; a source-reference conflict means an earlier
// delivery already journaled this event, which counts as success.
func (c *Consumer) post(ctx context.Context, tx *gorm.DB, envelope payloads.InboundEnvelope, ref, description string, lines []journal.LineInput) (enums.ProcessedResult, error) {
	source := "inventory"
	_, err := c.poster.CreatePostedTx(ctx, tx, journal.CreateEntryInput{
		EntryDate:         envelope.OccurredAt,
		Description:       description,
		EntryType:         enums.JournalEntryTypeSystem,
		SourceService:     &source,
		SourceReferenceID: &ref,
		CreatedBy:         consumerName,
		Lines:             lines,
	})
	if err != nil {
		if appErr := apperrors.As(err); appErr != nil && appErr.Code() == apperrors.CodeConflict {
			return enums.ProcessedResultSuccess, nil
		}
		return "", err
	}
	return enums.ProcessedResultSuccess, nil
}

func (c *Consumer) record(ctx context.Context, processed inbox.Repository, envelope payloads.InboundEnvelope, result enums.ProcessedResult) error {
	event := &models.ProcessedEvent{
		EventID:   envelope.EventID,
		EventType: envelope.EventType,
		Result:    result,
	}
	if err := processed.Record(ctx, event); err != nil {
		if errors.Is(err, inbox.ErrAlreadyProcessed) {
			return nil
		}
		return err
	}
	return nil
}

func (c *Consumer) accountID(ctx context.Context, code string) (uuid.UUID, error) {
	account, err := c.accounts.FindByCode(ctx, code)
	if err != nil {
		return uuid.Nil, err
	}
	if account == nil {
		return uuid.Nil, apperrors.New(apperrors.CodeDependency,
			fmt.Sprintf("posting account %s is missing from the chart of accounts", code))
	}
	return account.ID, nil
}
