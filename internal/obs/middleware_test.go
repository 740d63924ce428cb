package obs_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/obs"
)

func instrumentedRouter(metrics *obs.HTTPMetrics, logs *bytes.Buffer) chi.Router {
	r := chi.NewRouter()
	r.Use(obs.RequestInfoMiddleware)
	r.Use(obs.TracingMiddleware)
	r.Use(obs.HTTPObs{Metrics: metrics}.Middleware)
	r.Use(obs.RequestLogger{Logger: zerolog.New(logs)}.Middleware)
	r.Group(func(g chi.Router) {
		g.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				obs.SetUserID(r.Context(), "u-7")
				next.ServeHTTP(w, r)
			})
		})
		g.Get("/v1/checkout/sessions/{sessionID}", func(w http.ResponseWriter, r *http.Request) {
			obs.SetSessionID(r.Context(), chi.URLParam(r, "sessionID"))
			w.WriteHeader(http.StatusConflict)
		})
	})
	return r
}

func TestHTTPMetricsUseRoutePatternAndStatusClass(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("checkout", []float64{1, 10}, registry)
	var logs bytes.Buffer
	router := instrumentedRouter(metrics, &logs)

	for _, id := range []string{"s-1", "s-2"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/checkout/sessions/"+id, nil))
		require.Equal(t, http.StatusConflict, rec.Code)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/wp-login.php", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	route := "/v1/checkout/sessions/{sessionID}"
	require.Equal(t, 2.0, testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, route, "4xx")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "unmatched", "4xx")))
	require.Equal(t, 0.0, testutil.ToFloat64(metrics.InFlight))
	require.Positive(t, testutil.CollectAndCount(metrics.ReqDur))
}

func TestRequestLoggerSeesValuesSetDownstream(t *testing.T) {
	var logs bytes.Buffer
	router := instrumentedRouter(obs.NewHTTPMetrics("checkout", nil, prometheus.NewRegistry()), &logs)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/checkout/sessions/s-9", nil))

	line := logs.String()
	require.Contains(t, line, `"session_id":"s-9"`)
	require.Contains(t, line, `"user_id":"u-7"`)
	require.Contains(t, line, `"route":"/v1/checkout/sessions/{sessionID}"`)
	require.Contains(t, line, `"level":"warn"`)
}

func TestNewHTTPMetricsReusesRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := obs.NewHTTPMetrics("checkout", nil, registry)
	second := obs.NewHTTPMetrics("checkout", nil, registry)
	require.Same(t, first.ReqTotal, second.ReqTotal)
}

func TestParseBucketsCSV(t *testing.T) {
	require.Equal(t, []float64{5, 50}, obs.ParseBucketsCSV(" 5, x, -1, 50 "))
	require.Nil(t, obs.ParseBucketsCSV(""))
}
