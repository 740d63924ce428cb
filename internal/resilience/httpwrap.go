package resilience

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// maxRetryAfter bounds how long a Retry-After header may stall a checkout call.
const maxRetryAfter = 5 * time.Second

// HTTPClient wraps an http.Client with per-attempt timeouts, retries and a
// circuit breaker. Only requests that are safe to repeat are retried: those
// with an idempotent method and those carrying an Idempotency-Key header.
// A POST that creates orders or payments is therefore sent once unless the
// caller supplied a key.
type HTTPClient struct {
	Client      *http.Client
	Breaker     *Breaker
	BaseBackoff time.Duration
	MaxAttempts int
	Jitter      float64
	Timeout     time.Duration
	// Target names the collaborator in metrics and logs.
	Target string
	Logger *zerolog.Logger
}

// AttemptError reports the last failure after every allowed attempt was used.
type AttemptError struct {
	Target   string
	Attempts int
	Err      error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("%s: gave up after %d attempt(s): %v", e.Target, e.Attempts, e.Err)
}

func (e *AttemptError) Unwrap() error { return e.Err }

// Do sends req. The body is buffered so it can be replayed. A response with a
// status below 500 other than 429 is returned to the caller as is.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	breaker := cl.Breaker
	if breaker == nil {
		breaker = NewBreaker(1, 1, time.Second)
	}
	breaker.adopt(cl.Target, cl.Logger)
	target := breaker.targetLabel()

	attempts := cl.MaxAttempts
	if attempts <= 0 || !Retryable(req) {
		attempts = 1
	}
	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	made := 0
	for attempt := 1; attempt <= attempts; attempt++ {
		if !breaker.Allow(ctx) {
			recordAttempt(target, "rejected")
			if lastErr == nil {
				lastErr = ErrOpenCircuit
			} else {
				lastErr = errors.Join(lastErr, ErrOpenCircuit)
			}
			break
		}
		made++
		resp, err := cl.doOnce(ctx, req, body)
		wait, retry := time.Duration(0), false
		switch {
		case err != nil:
			breaker.Report(ctx, false)
			recordAttempt(target, "error")
			lastErr, retry = err, ctx.Err() == nil
		case resp.StatusCode == http.StatusTooManyRequests:
			// throttling is not a health signal for the breaker
			breaker.Release()
			recordAttempt(target, "throttled")
			wait = retryAfter(resp.Header.Get("Retry-After"))
			lastErr, retry = fmt.Errorf("status %d", resp.StatusCode), true
			drain(resp)
		case resp.StatusCode >= http.StatusInternalServerError:
			breaker.Report(ctx, false)
			recordAttempt(target, "server_error")
			lastErr, retry = fmt.Errorf("status %d", resp.StatusCode), true
			drain(resp)
		default:
			breaker.Report(ctx, true)
			recordAttempt(target, "ok")
			return resp, nil
		}
		if cl.Logger != nil {
			cl.Logger.Warn().Err(lastErr).Str("target", target).Int("attempt", attempt).Str("method", req.Method).Msg("outbound request failed")
		}
		if !retry || attempt == attempts {
			break
		}
		if wait <= 0 {
			wait = Backoff(cl.BaseBackoff, attempt, cl.Jitter)
		}
		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, &AttemptError{Target: target, Attempts: made, Err: lastErr}
}

// Retryable reports whether req may be sent more than once.
func Retryable(req *http.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	}
	return strings.TrimSpace(req.Header.Get("Idempotency-Key")) != ""
}

func (cl HTTPClient) doOnce(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	timeout := cl.Timeout
	if timeout <= 0 {
		timeout = cl.Client.Timeout
	}
	callCtx, cancel := context.WithCancel(ctx)
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	attemptReq := req.Clone(callCtx)
	if body != nil {
		attemptReq.Body = io.NopCloser(bytes.NewReader(body))
		attemptReq.ContentLength = int64(len(body))
	}
	resp, err := cl.Client.Do(attemptReq)
	if err != nil {
		cancel()
		return nil, err
	}
	// the per-attempt deadline must outlive Do so the caller can read the body
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("resilience: buffer request body: %w", err)
	}
	req.Body = io.NopCloser(bytes.NewReader(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return data, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}

func retryAfter(header string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, maxRetryAfter)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
