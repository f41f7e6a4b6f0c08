package orders

import (
	"context"
	"encoding/json"
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
	"github.com/clearledger/backoffice/pkg/logger"
	"github.com/clearledger/backoffice/pkg/outbox/payloads"
)

type stubPoster struct {
	inputs []journal.CreateEntryInput
	txs    []*gorm.DB
}

func (s *stubPoster) CreatePostedTx(ctx context.Context, tx *gorm.DB, input journal.CreateEntryInput) (*models.JournalEntry, error) {
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
	records  []models.ProcessedEvent
	existing map[string]*models.ProcessedEvent
}

func newStubProcessed() *stubProcessed {
	return &stubProcessed{existing: make(map[string]*models.ProcessedEvent)}
}

func (s *stubProcessed) WithTx(tx *gorm.DB) inbox.Repository { return s }

func (s *stubProcessed) FindByEventID(ctx context.Context, eventID string) (*models.ProcessedEvent, error) {
	return s.existing[eventID], nil
}

func (s *stubProcessed) Record(ctx context.Context, event *models.ProcessedEvent) error {
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
	receivableID uuid.UUID
	revenueID    uuid.UUID
}

func (s *stubAccounts) FindByCode(ctx context.Context, code string) (*models.Account, error) {
	switch code {
	case "1200":
		return &models.Account{ID: s.receivableID, Code: code, Type: enums.AccountTypeAsset}, nil
	case "4000":
		return &models.Account{ID: s.revenueID, Code: code, Type: enums.AccountTypeRevenue}, nil
	default:
		return nil, nil
	}
}

type stubIdempotency struct {
	seen map[uuid.UUID]bool
}

func (s *stubIdempotency) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	if s.seen[eventID] {
		return true, nil
	}
	s.seen[eventID] = true
	return false, nil
}

func (s *stubIdempotency) Delete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	delete(s.seen, eventID)
	return nil
}

type orderEnv struct {
	consumer *Consumer
	poster   *stubPoster
	accounts *stubAccounts
	tx       *stubTx
}

func newOrderEnv(t *testing.T) *orderEnv {
	t.Helper()
	poster := &stubPoster{}
	accounts := &stubAccounts{receivableID: uuid.New(), revenueID: uuid.New()}
	txr := &stubTx{}
	cfg := config.LedgerConfig{
		ReceivableAccountCode:   "1200",
		SalesRevenueAccountCode: "4000",
	}
	logg := logger.New(logger.Options{ServiceName: "test"})
	consumer, err := NewConsumer(poster, newStubProcessed(), accounts, &pubsub.Subscriber{},
		&stubIdempotency{seen: make(map[uuid.UUID]bool)}, txr, cfg, nil, logg)
	if err != nil {
		t.Fatalf("NewConsumer: %v", err)
	}
	return &orderEnv{consumer: consumer, poster: poster, accounts: accounts, tx: txr}
}

func buildMessage(t *testing.T, eventType string, payload any) *pubsub.Message {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	envelope, err := json.Marshal(payloads.InboundEnvelope{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		OccurredAt: time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC),
		Data:       data,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return &pubsub.Message{ID: "m-1", Data: envelope}
}

func TestOrderCompletionRecognizesRevenue(t *testing.T) {
	env := newOrderEnv(t)

	msg := buildMessage(t, payloads.InboundOrderCompleted, payloads.OrderCompletedEvent{
		OrderID:     "ord-600",
		TotalAmount: decimal.RequireFromString("250"),
	})

	result := env.consumer.process(context.Background(), msg)
	if !result.ack || result.result != enums.ProcessedResultSuccess {
		t.Fatalf("expected success, got %+v", result)
	}

	if len(env.poster.inputs) != 1 {
		t.Fatalf("expected one entry, got %d", len(env.poster.inputs))
	}
	input := env.poster.inputs[0]
	if input.SourceReferenceID == nil || *input.SourceReferenceID != "order-ord-600" {
		t.Fatalf("unexpected source reference %v", input.SourceReferenceID)
	}
	if input.Lines[0].AccountID != env.accounts.receivableID || input.Lines[0].Direction != enums.LineDirectionDebit {
		t.Fatalf("expected receivable debited, got %+v", input.Lines[0])
	}
	if input.Lines[1].AccountID != env.accounts.revenueID || input.Lines[1].Direction != enums.LineDirectionCredit {
		t.Fatalf("expected revenue credited, got %+v", input.Lines[1])
	}
}

func TestOrderCancellationReversesRevenue(t *testing.T) {
	env := newOrderEnv(t)

	msg := buildMessage(t, payloads.InboundOrderCancelled, payloads.OrderCancelledEvent{
		OrderID:     "ord-601",
		TotalAmount: decimal.RequireFromString("250"),
	})

	result := env.consumer.process(context.Background(), msg)
	if !result.ack || result.result != enums.ProcessedResultSuccess {
		t.Fatalf("expected success, got %+v", result)
	}

	input := env.poster.inputs[0]
	if input.SourceReferenceID == nil || *input.SourceReferenceID != "order-cancel-ord-601" {
		t.Fatalf("unexpected source reference %v", input.SourceReferenceID)
	}
	if input.Lines[0].AccountID != env.accounts.revenueID || input.Lines[0].Direction != enums.LineDirectionDebit {
		t.Fatalf("expected revenue debited on reversal, got %+v", input.Lines[0])
	}
	if input.Lines[1].AccountID != env.accounts.receivableID || input.Lines[1].Direction != enums.LineDirectionCredit {
		t.Fatalf("expected receivable credited on reversal, got %+v", input.Lines[1])
	}
}

func TestZeroAmountOrderIsSkipped(t *testing.T) {
	env := newOrderEnv(t)

	msg := buildMessage(t, payloads.InboundOrderCompleted, payloads.OrderCompletedEvent{
		OrderID:     "ord-602",
		TotalAmount: decimal.Zero,
	})

	result := env.consumer.process(context.Background(), msg)
	if result.result != enums.ProcessedResultSkipped {
		t.Fatalf("expected skipped, got %+v", result)
	}
	if len(env.poster.inputs) != 0 {
		t.Fatalf("expected no entry for zero amount order")
	}
}

func TestDuplicateOrderEventPostsOnce(t *testing.T) {
	env := newOrderEnv(t)

	msg := buildMessage(t, payloads.InboundOrderCompleted, payloads.OrderCompletedEvent{
		OrderID:     "ord-604",
		TotalAmount: decimal.RequireFromString("99.95"),
	})

	first := env.consumer.process(context.Background(), msg)
	if !first.ack || first.result != enums.ProcessedResultSuccess {
		t.Fatalf("expected first delivery to succeed, got %+v", first)
	}
	second := env.consumer.process(context.Background(), msg)
	if !second.ack {
		t.Fatalf("expected redelivery to ack, got %+v", second)
	}
	if len(env.poster.inputs) != 1 {
		t.Fatalf("expected a single entry across deliveries, got %d", len(env.poster.inputs))
	}
}

func TestOrderEntryPostsInsideConsumerTransaction(t *testing.T) {
	env := newOrderEnv(t)

	msg := buildMessage(t, payloads.InboundOrderCompleted, payloads.OrderCompletedEvent{
		OrderID:     "ord-605",
		TotalAmount: decimal.RequireFromString("75"),
	})

	result := env.consumer.process(context.Background(), msg)
	if !result.ack {
		t.Fatalf("expected ack, got %+v", result)
	}
	if len(env.poster.txs) != 1 || env.poster.txs[0] != env.tx.handed {
		t.Fatalf("entry must post inside the consumer transaction")
	}
}

func TestMissingPostingAccountNacks(t *testing.T) {
	env := newOrderEnv(t)

	// Point the config at a code the registry does not carry.
	cfg := config.LedgerConfig{ReceivableAccountCode: "1299", SalesRevenueAccountCode: "4000"}
	logg := logger.New(logger.Options{ServiceName: "test"})
	consumer, err := NewConsumer(env.poster, newStubProcessed(), env.accounts, &pubsub.Subscriber{},
		&stubIdempotency{seen: make(map[uuid.UUID]bool)}, &stubTx{}, cfg, nil, logg)
	if err != nil {
		t.Fatalf("NewConsumer: %v", err)
	}

	msg := buildMessage(t, payloads.InboundOrderCompleted, payloads.OrderCompletedEvent{
		OrderID:     "ord-603",
		TotalAmount: decimal.RequireFromString("10"),
	})

	result := consumer.process(context.Background(), msg)
	if !result.nack {
		t.Fatalf("expected nack when posting account mapping missing, got %+v", result)
	}
}
