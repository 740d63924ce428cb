package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// TaskDeliverEvent is the asynq task type carrying one event to the webhook worker.
const TaskDeliverEvent = "events:deliver"

// AsynqScheduler enqueues one delivery task per event. The event id doubles as
// the task id so a re-emitted event is not delivered twice.
type AsynqScheduler struct {
	Client    *asynq.Client
	Queue     string
	MaxRetry  int
	Retention time.Duration
}

// Schedule implements DeliveryScheduler.
func (s AsynqScheduler) Schedule(ctx context.Context, event Event) error {
	if s.Client == nil {
		return errors.New("events: asynq client not configured")
	}
	task, err := NewDeliveryTask(event)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.TaskID(event.ID.String())}
	if s.Queue != "" {
		opts = append(opts, asynq.Queue(s.Queue))
	}
	if s.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(s.MaxRetry))
	}
	if s.Retention > 0 {
		opts = append(opts, asynq.Retention(s.Retention))
	}
	if _, err := s.Client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("enqueue %s: %w", event.ID, err)
	}
	return nil
}

// NewDeliveryTask wraps the event into an asynq task.
func NewDeliveryTask(event Event) (*asynq.Task, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDeliverEvent, payload), nil
}

// ParseDeliveryTask extracts the event carried by a delivery task.
func ParseDeliveryTask(task *asynq.Task) (Event, error) {
	if task == nil || task.Type() != TaskDeliverEvent {
		return Event{}, fmt.Errorf("events: unexpected task type")
	}
	var ev Event
	if err := json.Unmarshal(task.Payload(), &ev); err != nil {
		return Event{}, fmt.Errorf("events: decode task: %w", err)
	}
	return ev, nil
}
