package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/resilience"
)

// Options configures the resilient transport shared by every collaborator client.
type Options struct {
	Timeout             time.Duration
	MaxAttempts         int
	BaseBackoff         time.Duration
	Jitter              float64
	CircuitMinRequests  int
	CircuitFailureRatio float64
	CircuitOpenFor      time.Duration
	Logger              *zerolog.Logger
}

// NewHTTP builds a retrying, circuit-broken client for one collaborator.
func NewHTTP(target string, opts Options) *resilience.HTTPClient {
	breaker := resilience.NewBreaker(opts.CircuitMinRequests, opts.CircuitFailureRatio, opts.CircuitOpenFor).WithTarget(target)
	if opts.Logger != nil {
		breaker = breaker.WithLogger(*opts.Logger)
	}
	return &resilience.HTTPClient{
		Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		Breaker:     breaker,
		BaseBackoff: opts.BaseBackoff,
		MaxAttempts: opts.MaxAttempts,
		Jitter:      opts.Jitter,
		Timeout:     opts.Timeout,
		Target:      target,
		Logger:      opts.Logger,
	}
}

// StatusError is returned when a collaborator answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 256 {
		body = body[:256]
	}
	if body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, body)
}

// base performs JSON requests against one collaborator.
type base struct {
	target  string
	baseURL string
	http    *resilience.HTTPClient
}

func newBase(target, baseURL string, client *resilience.HTTPClient) base {
	return base{target: target, baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"), http: client}
}

func (b base) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	if b.http == nil || b.baseURL == "" {
		return common.Remote(b.target, errors.New("client not configured"))
	}
	endpoint := b.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var (
		body io.Reader
		data []byte
	)
	if in != nil {
		var err error
		if data, err = json.Marshal(in); err != nil {
			return fmt.Errorf("%s: encode request: %w", b.target, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return common.Remote(b.target, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID, ok := common.UserID(ctx); ok && userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	if key := common.OutboundKey(ctx); key != "" && method == http.MethodPost {
		parts := []string{key, b.target, path}
		if key == contentKeyed {
			parts = append(parts, string(data))
		}
		req.Header.Set(common.IdempotencyHeader, common.Digest(parts...))
	}
	resp, err := b.http.Do(ctx, req)
	if err != nil {
		return common.Remote(b.target, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return common.Remote(b.target, &StatusError{StatusCode: resp.StatusCode, Body: string(data)})
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return common.Remote(b.target, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// contentKeyed makes do derive the idempotency key from the request body.
const contentKeyed = "content"

// query POSTs a read-only request. Pricing lookups change nothing remotely,
// so they are keyed by content and retried like a GET.
func (b base) query(ctx context.Context, path string, in, out any) error {
	return b.do(common.WithOutboundKey(ctx, contentKeyed), http.MethodPost, path, nil, in, out)
}
