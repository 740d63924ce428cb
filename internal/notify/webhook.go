package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/obs"
	"github.com/noah-isme/toko-checkout/internal/resilience"
)

// Dispatcher delivers domain events to the configured webhook endpoints.
type Dispatcher struct {
	Endpoints []string
	Secret    string
	HTTP      *resilience.HTTPClient
	Replay    ReplayGuard
	ReplayTTL time.Duration
	Log       DeliveryLog
	Logger    zerolog.Logger
}

// Result is the outcome of one delivery attempt to one endpoint.
type Result struct {
	EventID    string
	Endpoint   string
	Attempt    int
	StatusCode int
	Err        error
}

// DeliveryLog records delivery attempts.
type DeliveryLog interface {
	Record(ctx context.Context, res Result) error
}

// Deliver posts the event to every endpoint. Endpoints that already accepted
// the event are skipped through the replay guard, so a retried task only hits
// the endpoints that failed.
func (d *Dispatcher) Deliver(ctx context.Context, ev events.Event) error {
	if d == nil || d.HTTP == nil {
		return errors.New("webhook: dispatcher not configured")
	}
	attempt, _ := asynq.GetRetryCount(ctx)
	var joined error
	for _, endpoint := range d.Endpoints {
		start := time.Now()
		status, err := d.deliverOne(ctx, endpoint, ev, attempt+1)
		result := "delivered"
		if err == nil && (status < 200 || status >= 300) {
			err = fmt.Errorf("unexpected status %d", status)
		}
		if err != nil {
			result = "failed"
			joined = errors.Join(joined, fmt.Errorf("deliver %s to %s: %w", ev.ID, endpoint, err))
		}
		obs.ObserveWebhookDelivery(result, obs.DurationMillis(time.Since(start)))
		if d.Log != nil {
			if logErr := d.Log.Record(ctx, Result{EventID: ev.ID.String(), Endpoint: endpoint, Attempt: attempt + 1, StatusCode: status, Err: err}); logErr != nil {
				d.Logger.Warn().Err(logErr).Str("event_id", ev.ID.String()).Msg("record webhook delivery")
			}
		}
	}
	return joined
}

func (d *Dispatcher) deliverOne(ctx context.Context, endpoint string, ev events.Event, attempt int) (int, error) {
	ctx, span := otel.Tracer("notify.Dispatcher").Start(ctx, "Dispatcher.deliver")
	defer span.End()
	span.SetAttributes(
		attribute.String("webhook.endpoint", endpoint),
		attribute.String("webhook.event_id", ev.ID.String()),
		attribute.String("webhook.topic", ev.Topic),
		attribute.Int("webhook.attempt", attempt),
	)
	if err := validateURL(endpoint); err != nil {
		span.RecordError(err)
		return 0, err
	}
	eventID := ev.ID.String()
	key := replayKey(endpoint, eventID)
	guarded := d.Replay != nil && d.ReplayTTL > 0
	if guarded {
		ok, err := d.Replay.Claim(ctx, key)
		if err != nil {
			span.RecordError(err)
			return 0, err
		}
		if !ok {
			span.AddEvent("delivery replay prevented")
			return http.StatusOK, nil
		}
	}
	status, err := d.post(ctx, endpoint, ev, attempt)
	if guarded {
		if err == nil && status >= 200 && status < 300 {
			if cerr := d.Replay.Confirm(context.WithoutCancel(ctx), key, d.ReplayTTL); cerr != nil {
				d.Logger.Warn().Err(cerr).Str("event_id", eventID).Msg("delivery confirmation not stored")
			}
		} else {
			// allow the retry to reach this endpoint again
			_ = d.Replay.Forget(context.WithoutCancel(ctx), key)
		}
	}
	if err != nil {
		span.RecordError(err)
	}
	span.SetAttributes(attribute.Int("http.status_code", status))
	return status, err
}

func (d *Dispatcher) post(ctx context.Context, endpoint string, ev events.Event, attempt int) (int, error) {
	occurred := ev.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	payload := struct {
		EventID     string          `json:"eventId"`
		Topic       string          `json:"topic"`
		AggregateID string          `json:"aggregateId"`
		Data        json.RawMessage `json:"data"`
		OccurredAt  time.Time       `json:"occurredAt"`
	}{
		EventID:     ev.ID.String(),
		Topic:       ev.Topic,
		AggregateID: ev.AggregateID,
		Data:        ev.Payload,
		OccurredAt:  occurred,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	ts := time.Now().Unix()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "toko-checkout-webhooks/1.0")
	req.Header.Set("X-Event-ID", payload.EventID)
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Attempt", strconv.Itoa(attempt))
	req.Header.Set(common.IdempotencyHeader, common.Digest(endpoint, payload.EventID))
	req.Header.Set("X-Signature", ComputeSignature(d.Secret, ts, payload.EventID, body))
	resp, err := d.HTTP.Do(ctx, req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid endpoint url: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return errors.New("webhook url must be http or https")
	}
	if parsed.Scheme == "http" {
		host := parsed.Hostname()
		if host != "localhost" && host != "127.0.0.1" {
			return errors.New("http webhook only allowed for localhost")
		}
	}
	if parsed.Host == "" {
		return errors.New("webhook url must include host")
	}
	return nil
}

// ComputeSignature calculates the webhook signature for the provided payload. The
// format is HMAC-SHA256 over "<ts>.<eventID>.<body>" using the shared secret.
func ComputeSignature(secret string, ts int64, eventID string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write([]byte(eventID))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// ReplayGuard tracks which endpoint already accepted which event.
type ReplayGuard interface {
	Claim(ctx context.Context, key string) (bool, error)
	Confirm(ctx context.Context, key string, ttl time.Duration) error
	Forget(ctx context.Context, key string) error
}

func replayKey(endpoint, eventID string) string {
	return fmt.Sprintf("wh:%s:%s", common.Digest(strings.TrimSpace(endpoint))[:16], eventID)
}
