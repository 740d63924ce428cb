package obs_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/obs"
)

func TestDomainMetricsCountOutcomes(t *testing.T) {
	obs.MustRegisterDomainMetrics("checkout_test", prometheus.NewRegistry())

	obs.IncVoucherApply("platform", "order", obs.Outcome(nil))
	obs.IncVoucherApply("platform", "order", obs.Outcome(errors.New("boom")))
	obs.IncShippingRefresh("success")
	obs.IncOrderPlace("cod", "success")

	require.Equal(t, 1.0, testutil.ToFloat64(obs.VoucherApplyTotal.WithLabelValues("platform", "order", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(obs.VoucherApplyTotal.WithLabelValues("platform", "order", "error")))
	require.Equal(t, 1.0, testutil.ToFloat64(obs.ShippingRefreshTotal.WithLabelValues("success")))
	require.Equal(t, 1.0, testutil.ToFloat64(obs.OrderPlaceTotal.WithLabelValues("cod", "success")))
}

func TestRequestLoggerIncludesSessionID(t *testing.T) {
	var buf bytes.Buffer
	logger := obs.RequestLogger{Logger: zerolog.New(&buf)}
	handler := logger.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		obs.SetSessionID(r.Context(), "sess-42")
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/checkout/sessions/sess-42", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.Contains(t, buf.String(), `"session_id":"sess-42"`)
	require.Empty(t, obs.SessionIDFromContext(context.Background()))
}
