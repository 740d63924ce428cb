package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Querier is the subset of pgxpool.Pool used by PGStore.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore persists domain events into the domain_events table.
type PGStore struct {
	DB  Querier
	Now func() time.Time
}

const insertDomainEvent = `INSERT INTO domain_events (id, topic, aggregate_id, payload, occurred_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, topic, aggregate_id, payload, occurred_at`

// InsertDomainEvent implements EventStore.
func (s PGStore) InsertDomainEvent(ctx context.Context, ev NewEvent) (Event, error) {
	if s.DB == nil {
		return Event{}, errors.New("events: database not configured")
	}
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	var out Event
	var payload []byte
	err := s.DB.QueryRow(ctx, insertDomainEvent, uuid.New(), ev.Topic, ev.AggregateID, ev.Payload, now.UTC()).
		Scan(&out.ID, &out.Topic, &out.AggregateID, &payload, &out.OccurredAt)
	if err != nil {
		return Event{}, err
	}
	out.Payload = payload
	return out, nil
}

// MemoryStore keeps events in memory when no database is configured.
type MemoryStore struct {
	mu     sync.Mutex
	events []Event
}

// InsertDomainEvent implements EventStore.
func (m *MemoryStore) InsertDomainEvent(_ context.Context, ev NewEvent) (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := Event{
		ID:          uuid.New(),
		Topic:       ev.Topic,
		AggregateID: ev.AggregateID,
		Payload:     append([]byte(nil), ev.Payload...),
		OccurredAt:  time.Now().UTC(),
	}
	m.events = append(m.events, out)
	return out, nil
}

// Events returns the recorded events in emission order.
func (m *MemoryStore) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}
