package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

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
	"github.com/clearledger/backoffice/pkg/outbox/payloads"
)

type stubPoster struct {
	inputs  []journal.CreateEntryInput
	txs     []*gorm.DB
	postErr error
}

func (s *stubPoster) CreatePostedTx(ctx context.Context, tx *gorm.DB, input journal.CreateEntryInput) (*models.JournalEntry, error) {
	if s.postErr != nil {
		return nil, s.postErr
	}
	s.inputs = append(s.inputs, input)
	s.txs = append(s.txs, tx)
	return &models.JournalEntry{ID: uuid.New(), Status: enums.JournalEntryStatusPosted}, nil
}

type stubTx struct {
	handed *gorm.DB
}

func (s *stubTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	s.handed = &gorm.DB{}
	return fn(s.handed)
}

type stubProcessed struct {
	records   []models.ProcessedEvent
	existing  map[string]*models.ProcessedEvent
	recordErr error
}

func newStubProcessed() *stubProcessed {
	return &stubProcessed{existing: make(map[string]*models.ProcessedEvent)}
}

func (s *stubProcessed) WithTx(tx *gorm.DB) inbox.Repository { return s }

func (s *stubProcessed) FindByEventID(ctx context.Context, eventID string) (*models.ProcessedEvent, error) {
	return s.existing[eventID], nil
}

func (s *stubProcessed) Record(ctx context.Context, event *models.ProcessedEvent) error {
	if s.recordErr != nil {
		return s.recordErr
	}
	if _, ok := s.existing[event.EventID]; ok {
		return inbox.ErrAlreadyProcessed
	}
	s.records = append(s.records, *event)
	s.existing[event.EventID] = event
	return nil
}

func (s *stubProcessed) List(ctx context.Context, result *enums.ProcessedResult, limit int) ([]models.ProcessedEvent, error) {
	return nil, nil
}

type stubAccounts struct {
	byCode map[string]*models.Account
}

func (s *stubAccounts) FindByCode(ctx context.Context, code string) (*models.Account, error) {
	return s.byCode[code], nil
}

type stubIdempotency struct {
	seen    map[uuid.UUID]bool
	deleted []uuid.UUID
	err     error
}

func newStubIdempotency() *stubIdempotency {
	return &stubIdempotency{seen: make(map[uuid.UUID]bool)}
}

func (s *stubIdempotency) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if s.seen[eventID] {
		return true, nil
	}
	s.seen[eventID] = true
	return false, nil
}

func (s *stubIdempotency) Delete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	s.deleted = append(s.deleted, eventID)
	delete(s.seen, eventID)
	return nil
}

type consumerEnv struct {
	consumer  *Consumer
	poster    *stubPoster
	processed *stubProcessed
	redis     *stubIdempotency
	tx        *stubTx
}

func newConsumerEnv(t *testing.T) *consumerEnv {
	t.Helper()
	poster := &stubPoster{}
	processed := newStubProcessed()
	redis := newStubIdempotency()
	txr := &stubTx{}
	accounts := &stubAccounts{byCode: map[string]*models.Account{
		"1300": {ID: uuid.New(), Code: "1300", Type: enums.AccountTypeAsset},
		"4900": {ID: uuid.New(), Code: "4900", Type: enums.AccountTypeRevenue},
		"6900": {ID: uuid.New(), Code: "6900", Type: enums.AccountTypeExpense},
		"5000": {ID: uuid.New(), Code: "5000", Type: enums.AccountTypeCOGS},
	}}
	cfg := config.LedgerConfig{
		InventoryAccountCode:      "1300",
		AdjustmentGainAccountCode: "4900",
		AdjustmentLossAccountCode: "6900",
		COGSAccountCode:           "5000",
	}
	logg := logger.New(logger.Options{ServiceName: "test"})
	consumer, err := NewConsumer(poster, processed, accounts, &pubsub.Subscriber{}, redis, txr, cfg, nil, logg)
	if err != nil {
		t.Fatalf("NewConsumer: %v", err)
	}
	return &consumerEnv{consumer: consumer, poster: poster, processed: processed, redis: redis, tx: txr}
}

func buildMessage(t *testing.T, eventID, eventType string, payload any) *pubsub.Message {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	envelope, err := json.Marshal(payloads.InboundEnvelope{
		EventID:    eventID,
		EventType:  eventType,
		OccurredAt: time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC),
		Data:       data,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return &pubsub.Message{ID: "m-1", Data: envelope}
}

func TestAdjustmentLossPostsEntry(t *testing.T) {
	env := newConsumerEnv(t)

	msg := buildMessage(t, uuid.NewString(), payloads.InboundInventoryAdjusted, payloads.InventoryAdjustedEvent{
		AdjustmentID:   "adj-77",
		AdjustmentType: enums.AdjustmentTypeWriteOff,
		QuantityChange: -3,
		TotalValue:     decimal.RequireFromString("-45.50"),
	})

	result := env.consumer.process(context.Background(), msg)
	if !result.ack || result.nack {
		t.Fatalf("expected ack, got %+v", result)
	}
	if result.result != enums.ProcessedResultSuccess {
		t.Fatalf("expected success result, got %q", result.result)
	}

	if len(env.poster.inputs) != 1 {
		t.Fatalf("expected one posted entry, got %d", len(env.poster.inputs))
	}
	input := env.poster.inputs[0]
	if input.SourceReferenceID == nil || *input.SourceReferenceID != "inv-adj-adj-77" {
		t.Fatalf("unexpected source reference %v", input.SourceReferenceID)
	}
	if len(input.Lines) != 2 {
		t.Fatalf("expected two lines, got %d", len(input.Lines))
	}
	if input.Lines[0].Direction != enums.LineDirectionDebit || !input.Lines[0].Amount.Equal(decimal.RequireFromString("45.50")) {
		t.Fatalf("expected loss debited 45.50, got %+v", input.Lines[0])
	}

	if len(env.processed.records) != 1 || env.processed.records[0].Result != enums.ProcessedResultSuccess {
		t.Fatalf("expected success marker, got %+v", env.processed.records)
	}
}

func TestAdjustmentGainDebitsInventory(t *testing.T) {
	env := newConsumerEnv(t)

	msg := buildMessage(t, uuid.NewString(), payloads.InboundInventoryAdjusted, payloads.InventoryAdjustedEvent{
		AdjustmentID:   "adj-88",
		AdjustmentType: enums.AdjustmentTypeRecount,
		QuantityChange: 2,
		TotalValue:     decimal.RequireFromString("30"),
	})

	result := env.consumer.process(context.Background(), msg)
	if !result.ack {
		t.Fatalf("expected ack, got %+v", result)
	}
	input := env.poster.inputs[0]
	if input.Lines[0].Direction != enums.LineDirectionDebit {
		t.Fatalf("expected inventory debited on gain")
	}
	if input.Lines[1].Direction != enums.LineDirectionCredit {
		t.Fatalf("expected gain credited")
	}
}

func TestTransferAdjustmentIsSkipped(t *testing.T) {
	env := newConsumerEnv(t)

	msg := buildMessage(t, uuid.NewString(), payloads.InboundInventoryAdjusted, payloads.InventoryAdjustedEvent{
		AdjustmentID:   "adj-90",
		AdjustmentType: enums.AdjustmentTypeTransfer,
		QuantityChange: 5,
		TotalValue:     decimal.RequireFromString("120"),
	})

	result := env.consumer.process(context.Background(), msg)
	if !result.ack {
		t.Fatalf("expected ack, got %+v", result)
	}
	if result.result != enums.ProcessedResultSkipped {
		t.Fatalf("expected skipped result, got %q", result.result)
	}
	if len(env.poster.inputs) != 0 {
		t.Fatalf("expected no entry for transfer, got %d", len(env.poster.inputs))
	}
	if len(env.processed.records) != 1 || env.processed.records[0].Result != enums.ProcessedResultSkipped {
		t.Fatalf("expected skipped marker, got %+v", env.processed.records)
	}
}

func TestZeroValueAdjustmentIsSkipped(t *testing.T) {
	env := newConsumerEnv(t)

	msg := buildMessage(t, uuid.NewString(), payloads.InboundInventoryAdjusted, payloads.InventoryAdjustedEvent{
		AdjustmentID:   "adj-91",
		AdjustmentType: enums.AdjustmentTypeRecount,
		TotalValue:     decimal.Zero,
	})

	result := env.consumer.process(context.Background(), msg)
	if result.result != enums.ProcessedResultSkipped {
		t.Fatalf("expected skipped result, got %q", result.result)
	}
	if len(env.poster.inputs) != 0 {
		t.Fatalf("expected no entry")
	}
}

func TestDuplicateCOGSEventPostsOneEntry(t *testing.T) {
	env := newConsumerEnv(t)
	eventID := uuid.NewString()

	payload := payloads.COGSCalculatedEvent{
		OrderID:   "ord-501",
		TotalCOGS: decimal.RequireFromString("80"),
	}

	first := env.consumer.process(context.Background(), buildMessage(t, eventID, payloads.InboundCOGSCalculated, payload))
	if !first.ack || first.result != enums.ProcessedResultSuccess {
		t.Fatalf("expected first delivery processed, got %+v", first)
	}

	second := env.consumer.process(context.Background(), buildMessage(t, eventID, payloads.InboundCOGSCalculated, payload))
	if !second.ack {
		t.Fatalf("expected duplicate acked, got %+v", second)
	}

	if len(env.poster.inputs) != 1 {
		t.Fatalf("expected exactly one entry, got %d", len(env.poster.inputs))
	}
	input := env.poster.inputs[0]
	if input.SourceReferenceID == nil || *input.SourceReferenceID != "cogs-ord-501" {
		t.Fatalf("unexpected source reference %v", input.SourceReferenceID)
	}
}

func TestDuplicateSurvivesRedisReset(t *testing.T) {
	env := newConsumerEnv(t)
	eventID := uuid.NewString()

	payload := payloads.COGSCalculatedEvent{
		OrderID:   "ord-502",
		TotalCOGS: decimal.RequireFromString("10"),
	}

	first := env.consumer.process(context.Background(), buildMessage(t, eventID, payloads.InboundCOGSCalculated, payload))
	if first.result != enums.ProcessedResultSuccess {
		t.Fatalf("expected success, got %+v", first)
	}

	// Fast path forgets; the durable marker still blocks the retry.
	env.redis.seen = make(map[uuid.UUID]bool)

	second := env.consumer.process(context.Background(), buildMessage(t, eventID, payloads.InboundCOGSCalculated, payload))
	if !second.ack {
		t.Fatalf("expected ack, got %+v", second)
	}
	if len(env.poster.inputs) != 1 {
		t.Fatalf("expected one entry after redis reset, got %d", len(env.poster.inputs))
	}
}

func TestSourceReferenceConflictCountsAsProcessed(t *testing.T) {
	env := newConsumerEnv(t)
	env.poster.postErr = apperrors.New(apperrors.CodeConflict, "an entry already exists for this source reference")

	msg := buildMessage(t, uuid.NewString(), payloads.InboundCOGSCalculated, payloads.COGSCalculatedEvent{
		OrderID:   "ord-503",
		TotalCOGS: decimal.RequireFromString("25"),
	})

	result := env.consumer.process(context.Background(), msg)
	if !result.ack || result.result != enums.ProcessedResultSuccess {
		t.Fatalf("expected conflict treated as processed, got %+v", result)
	}
	if len(env.processed.records) != 1 {
		t.Fatalf("expected marker recorded, got %d", len(env.processed.records))
	}
}

func TestHandlerErrorNacksAndReleasesFastPath(t *testing.T) {
	env := newConsumerEnv(t)
	env.poster.postErr = errors.New("db down")

	msg := buildMessage(t, uuid.NewString(), payloads.InboundCOGSCalculated, payloads.COGSCalculatedEvent{
		OrderID:   "ord-504",
		TotalCOGS: decimal.RequireFromString("25"),
	})

	result := env.consumer.process(context.Background(), msg)
	if !result.nack {
		t.Fatalf("expected nack, got %+v", result)
	}
	if len(env.redis.deleted) != 1 {
		t.Fatalf("expected fast-path key released, got %d", len(env.redis.deleted))
	}
	if len(env.processed.records) != 0 {
		t.Fatalf("expected no marker on failure, got %d", len(env.processed.records))
	}
}

func TestPostAndMarkerShareOneTransaction(t *testing.T) {
	env := newConsumerEnv(t)

	msg := buildMessage(t, uuid.NewString(), payloads.InboundCOGSCalculated, payloads.COGSCalculatedEvent{
		OrderID:   "ord-505",
		TotalCOGS: decimal.RequireFromString("40"),
	})

	result := env.consumer.process(context.Background(), msg)
	if !result.ack {
		t.Fatalf("expected ack, got %+v", result)
	}
	if len(env.poster.txs) != 1 || env.poster.txs[0] != env.tx.handed {
		t.Fatalf("entry must post inside the consumer transaction")
	}
}

func TestRecordFailureNacksWholeMessage(t *testing.T) {
	env := newConsumerEnv(t)
	env.processed.recordErr = errors.New("connection reset")

	msg := buildMessage(t, uuid.NewString(), payloads.InboundCOGSCalculated, payloads.COGSCalculatedEvent{
		OrderID:   "ord-506",
		TotalCOGS: decimal.RequireFromString("40"),
	})

	result := env.consumer.process(context.Background(), msg)
	if !result.nack {
		t.Fatalf("expected nack when the marker write fails, got %+v", result)
	}
	if len(env.redis.deleted) != 1 {
		t.Fatalf("expected fast-path key released, got %d", len(env.redis.deleted))
	}
}

func TestUnknownEventTypeAcked(t *testing.T) {
	env := newConsumerEnv(t)

	msg := buildMessage(t, uuid.NewString(), "warehouse.created", map[string]string{"id": "w-1"})
	result := env.consumer.process(context.Background(), msg)
	if !result.ack {
		t.Fatalf("expected ack, got %+v", result)
	}
	if len(env.poster.inputs) != 0 || len(env.processed.records) != 0 {
		t.Fatalf("expected no side effects")
	}
}

func TestMalformedEnvelopeAcked(t *testing.T) {
	env := newConsumerEnv(t)

	result := env.consumer.process(context.Background(), &pubsub.Message{ID: "m-2", Data: []byte("not json")})
	if !result.ack {
		t.Fatalf("expected poison message acked, got %+v", result)
	}
}
