package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/lock"
)

// DeliveryWorker wraps webhook delivery execution with a per-event lock so two
// worker processes never post the same event concurrently.
type DeliveryWorker struct {
	Dispatcher *Dispatcher
	Locker     lock.Runner
	LockTTL    time.Duration
}

// ProcessTask implements asynq.Handler.
func (w DeliveryWorker) ProcessTask(ctx context.Context, task *asynq.Task) error {
	if w.Dispatcher == nil {
		return errors.New("webhook worker: dispatcher not configured")
	}
	ev, err := events.ParseDeliveryTask(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if w.Locker == nil {
		return w.Dispatcher.Deliver(ctx, ev)
	}
	ttl := w.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return w.Locker.WithLock(ctx, "webhook:event:"+ev.ID.String(), ttl, func(ctx context.Context) error {
		return w.Dispatcher.Deliver(ctx, ev)
	})
}
