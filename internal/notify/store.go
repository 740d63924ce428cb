package notify

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is the subset of pgxpool.Pool used by PGDeliveryLog.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGDeliveryLog appends delivery attempts to the webhook_deliveries table.
type PGDeliveryLog struct {
	DB Execer
}

const insertDelivery = `INSERT INTO webhook_deliveries (event_id, endpoint, attempt, status_code, error)
VALUES ($1, $2, $3, NULLIF($4, 0), NULLIF($5, ''))`

// Record implements DeliveryLog.
func (l PGDeliveryLog) Record(ctx context.Context, res Result) error {
	if l.DB == nil {
		return nil
	}
	var reason string
	if res.Err != nil {
		reason = res.Err.Error()
	}
	_, err := l.DB.Exec(ctx, insertDelivery, res.EventID, res.Endpoint, res.Attempt, res.StatusCode, reason)
	return err
}
