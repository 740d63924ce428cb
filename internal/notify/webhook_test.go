package notify_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/lock"
	"github.com/noah-isme/toko-checkout/internal/notify"
	"github.com/noah-isme/toko-checkout/internal/resilience"
)

func newHTTP(client *http.Client) *resilience.HTTPClient {
	return &resilience.HTTPClient{
		Client:      client,
		Breaker:     resilience.NewBreaker(100, 1, time.Second),
		MaxAttempts: 1,
		Timeout:     time.Second,
		Target:      "webhook-delivery",
	}
}

func sampleEvent() events.Event {
	return events.Event{
		ID:          uuid.New(),
		Topic:       events.TopicOrderPlaced,
		AggregateID: "session-1",
		Payload:     json.RawMessage(`{"orders":["o-1"]}`),
		OccurredAt:  time.Now().UTC(),
	}
}

type memoryLog struct {
	mu      sync.Mutex
	results []notify.Result
}

func (m *memoryLog) Record(_ context.Context, res notify.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, res)
	return nil
}

func TestSignatureAndHeaders(t *testing.T) {
	type recorded struct {
		header http.Header
		body   []byte
	}
	received := make(chan recorded, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- recorded{header: r.Header.Clone(), body: body}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	log := &memoryLog{}
	dispatcher := &notify.Dispatcher{Endpoints: []string{srv.URL}, Secret: "secret", HTTP: newHTTP(srv.Client()), Log: log}
	ev := sampleEvent()
	require.NoError(t, dispatcher.Deliver(context.Background(), ev))

	got := <-received
	require.Equal(t, ev.ID.String(), got.header.Get("X-Event-ID"))
	ts, err := strconv.ParseInt(got.header.Get("X-Timestamp"), 10, 64)
	require.NoError(t, err)
	require.Equal(t, notify.ComputeSignature("secret", ts, ev.ID.String(), got.body), got.header.Get("X-Signature"))
	require.Equal(t, "1", got.header.Get("X-Attempt"))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(got.body, &payload))
	require.Equal(t, events.TopicOrderPlaced, payload["topic"])
	require.Equal(t, "session-1", payload["aggregateId"])

	require.Len(t, log.results, 1)
	require.Equal(t, http.StatusOK, log.results[0].StatusCode)
	require.NoError(t, log.results[0].Err)
}

func TestReplayGuardSkipsDeliveredEndpoints(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	var okHits, failHits int32
	okSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&okHits, 1)
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(okSrv.Close)
	failSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&failHits, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	t.Cleanup(failSrv.Close)

	dispatcher := &notify.Dispatcher{
		Endpoints: []string{okSrv.URL, failSrv.URL},
		Secret:    "secret",
		HTTP:      newHTTP(&http.Client{Timeout: time.Second}),
		Replay:    notify.RedisReplayGuard{Client: rdb},
		ReplayTTL: time.Hour,
	}
	ev := sampleEvent()

	require.Error(t, dispatcher.Deliver(context.Background(), ev))
	require.Error(t, dispatcher.Deliver(context.Background(), ev))
	require.Equal(t, int32(1), atomic.LoadInt32(&okHits))
	require.Equal(t, int32(2), atomic.LoadInt32(&failHits))
}

func TestRejectsPlainHTTPForRemoteHosts(t *testing.T) {
	log := &memoryLog{}
	dispatcher := &notify.Dispatcher{Endpoints: []string{"http://hooks.example.com/x"}, HTTP: newHTTP(http.DefaultClient), Log: log}
	err := dispatcher.Deliver(context.Background(), sampleEvent())
	require.ErrorContains(t, err, "only allowed for localhost")
	require.Len(t, log.results, 1)
}

func TestDeliveryWorkerProcessesTask(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	worker := notify.DeliveryWorker{
		Dispatcher: &notify.Dispatcher{Endpoints: []string{srv.URL}, HTTP: newHTTP(srv.Client())},
		Locker:     lock.NewLocal(),
	}
	task, err := events.NewDeliveryTask(sampleEvent())
	require.NoError(t, err)
	require.NoError(t, worker.ProcessTask(context.Background(), task))
	require.Equal(t, int32(1), atomic.LoadInt32(&hits))
}
