package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/events"
)

type captureScheduler struct {
	events []events.Event
	err    error
}

func (c *captureScheduler) Schedule(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return c.err
}

type captureNotifier struct {
	events []events.Event
}

func (c *captureNotifier) Notify(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return nil
}

func TestEmitPersistsEvent(t *testing.T) {
	store := &events.MemoryStore{}
	scheduler := &captureScheduler{}
	notifier := &captureNotifier{}
	bus := events.Bus{
		Store:     store,
		Scheduler: scheduler,
		Notifiers: []events.Notifier{notifier},
	}

	payload := map[string]any{"orderIds": []string{"o-1"}}
	event, err := bus.Emit(context.Background(), events.TopicOrderPlaced, "session-1", payload)
	require.NoError(t, err)

	stored := store.Events()
	require.Len(t, stored, 1)
	require.Equal(t, events.TopicOrderPlaced, stored[0].Topic)
	require.JSONEq(t, `{"orderIds":["o-1"]}`, string(stored[0].Payload))
	require.Len(t, scheduler.events, 1)
	require.Len(t, notifier.events, 1)
	require.Equal(t, event.ID, scheduler.events[0].ID)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	require.Contains(t, decoded, "orderIds")
}

func TestEmitValidatesInput(t *testing.T) {
	bus := events.Bus{Store: &events.MemoryStore{}}
	_, err := bus.Emit(context.Background(), " ", "s", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicOrderPlaced, "", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicOrderPlaced, "s", "not json")
	require.Error(t, err)
}

func TestEmitJoinsSchedulerError(t *testing.T) {
	store := &events.MemoryStore{}
	bus := events.Bus{Store: store, Scheduler: &captureScheduler{err: errors.New("redis down")}}
	ev, err := bus.Emit(context.Background(), events.TopicCheckoutAbandoned, "s", nil)
	require.ErrorContains(t, err, "redis down")
	require.NotEqual(t, uuid.Nil, ev.ID)
	require.Len(t, store.Events(), 1)
}

func TestDeliveryTaskCarriesEvent(t *testing.T) {
	ev := events.Event{ID: uuid.New(), Topic: events.TopicOrderPlaced, AggregateID: "s-1", Payload: json.RawMessage(`{"a":1}`), OccurredAt: time.Now().UTC().Truncate(time.Second)}
	task, err := events.NewDeliveryTask(ev)
	require.NoError(t, err)
	require.Equal(t, events.TaskDeliverEvent, task.Type())

	decoded, err := events.ParseDeliveryTask(task)
	require.NoError(t, err)
	require.Equal(t, ev.ID, decoded.ID)
	require.Equal(t, ev.AggregateID, decoded.AggregateID)
	require.JSONEq(t, `{"a":1}`, string(decoded.Payload))
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *uuid.UUID:
			*p = r.values[i].(uuid.UUID)
		case *string:
			*p = r.values[i].(string)
		case *[]byte:
			*p = r.values[i].([]byte)
		case *time.Time:
			*p = r.values[i].(time.Time)
		}
	}
	return nil
}

type fakeQuerier struct {
	args []any
	err  error
}

func (q *fakeQuerier) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	q.args = args
	return fakeRow{values: args, err: q.err}
}

func TestPGStoreInsertsRow(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	q := &fakeQuerier{}
	store := events.PGStore{DB: q, Now: func() time.Time { return at }}

	ev, err := store.InsertDomainEvent(context.Background(), events.NewEvent{Topic: events.TopicOrderPlaced, AggregateID: "s-1", Payload: []byte(`{}`)})
	require.NoError(t, err)
	require.Len(t, q.args, 5)
	require.Equal(t, "s-1", ev.AggregateID)
	require.Equal(t, at, ev.OccurredAt)

	q.err = pgx.ErrNoRows
	_, err = store.InsertDomainEvent(context.Background(), events.NewEvent{Topic: "x", AggregateID: "y"})
	require.ErrorIs(t, err, pgx.ErrNoRows)
}
