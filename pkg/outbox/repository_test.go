package outbox

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/clearledger/backoffice/pkg/db/models"
	"github.com/clearledger/backoffice/pkg/enums"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}

	// Mirrors the outbox migration, with sqlite column affinities.
	ddl := []string{
		`CREATE TABLE outbox_events (
			id text PRIMARY KEY,
			event_type text NOT NULL,
			aggregate_type text NOT NULL,
			aggregate_id text NOT NULL,
			payload text NOT NULL,
			created_at datetime,
			published_at datetime,
			attempt_count integer NOT NULL DEFAULT 0,
			last_error text
		)`,
		`CREATE INDEX ix_outbox_events_event_aggregate ON outbox_events (event_type, aggregate_type, aggregate_id)`,
		`CREATE INDEX ix_outbox_events_unpublished ON outbox_events (created_at) WHERE published_at IS NULL`,
	}
	for _, stmt := range ddl {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("failed to apply schema: %v", err)
		}
	}
	return conn
}

func closedPeriodEvent(aggregateID uuid.UUID) models.OutboxEvent {
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventFiscalPeriodClosed,
		AggregateType: enums.AggregateFiscalPeriod,
		AggregateID:   aggregateID,
		Payload:       json.RawMessage(`{"fiscal_year":2024,"fiscal_month":5}`),
	}
}

// A period can close, reopen, and close again; every close queues its own
// event for the same aggregate.
func TestInsertAllowsRepeatedLifecycleEvents(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	periodID := uuid.New()

	if err := repo.Insert(db, closedPeriodEvent(periodID)); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if err := repo.Insert(db, closedPeriodEvent(periodID)); err != nil {
		t.Fatalf("second close of the same period must queue a new event: %v", err)
	}

	var count int64
	if err := db.Model(&models.OutboxEvent{}).
		Where("aggregate_id = ? AND event_type = ?", periodID, enums.EventFiscalPeriodClosed).
		Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 queued events, got %d", count)
	}
}

func TestMarkPublishedExcludesRowFromNextFetch(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)

	event := closedPeriodEvent(uuid.New())
	if err := repo.Insert(db, event); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := repo.MarkPublishedTx(db, event.ID); err != nil {
		t.Fatalf("mark published failed: %v", err)
	}

	rows, err := repo.FetchUnpublished(10)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no pending rows, got %d", len(rows))
	}
}
