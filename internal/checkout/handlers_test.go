package checkout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/common"
)

func newTestRouter(f *fixture, userID string) http.Handler {
	r := chi.NewRouter()
	if userID != "" {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(common.WithUserID(req.Context(), userID)))
			})
		})
	}
	h := &Handler{Svc: f.svc}
	r.Route("/v1", func(r chi.Router) { h.Routes(r, Middlewares{}) })
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Data  json.RawMessage  `json:"data"`
	Error common.ErrorBody `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestHandlerRequiresAuth(t *testing.T) {
	f := newFixture(t)
	rec := do(t, newTestRouter(f, ""), http.MethodPost, "/v1/checkout/sessions", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlerCheckoutFlow(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f, "u1")

	rec := do(t, router, http.MethodPost, "/v1/checkout/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var view View
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &view))
	base := "/v1/checkout/sessions/" + view.SessionID

	rec = do(t, router, http.MethodGet, base+"/vouchers?issuer=platform&type=order", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "PLAT10")

	rec = do(t, router, http.MethodPost, base+"/vouchers", `{"issuer":"platform","type":"order","code":"PLAT10"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &view))
	require.Equal(t, int64(15000), view.Totals.PlatformDiscountAmountItems)

	rec = do(t, router, http.MethodPost, base+"/vouchers", `{"issuer":"platform","type":"freeship","code":"NOPE"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "voucher_not_found", decodeEnvelope(t, rec).Error.Code)

	rec = do(t, router, http.MethodDelete, base+"/vouchers", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodPut, base+"/address", `{"address_id":"a2"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodPost, base+"/orders", "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "payment_method_required", decodeEnvelope(t, rec).Error.Code)

	rec = do(t, router, http.MethodPut, base+"/payment-method", `{"method_id":"cod"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodPost, base+"/orders", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var res PlaceResult
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &res))
	require.Equal(t, NextOrderList, res.Next)

	rec = do(t, router, http.MethodGet, base, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerValidatesPayloads(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f, "u1")
	view, err := f.svc.Start(context.Background(), f.sc)
	require.NoError(t, err)
	base := "/v1/checkout/sessions/" + view.SessionID

	rec := do(t, router, http.MethodPut, base+"/address", `{`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPut, base+"/address", `{}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "invalid_payload", decodeEnvelope(t, rec).Error.Code)

	rec = do(t, router, http.MethodPost, base+"/vouchers", `{"issuer":"shop","type":"order","code":"A5K"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, router, http.MethodGet, base+"/vouchers?issuer=galaxy&type=order", "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandlerNormalizesVoucherScope(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f, "u1")
	view, err := f.svc.Start(context.Background(), f.sc)
	require.NoError(t, err)
	base := "/v1/checkout/sessions/" + view.SessionID

	rec := do(t, router, http.MethodGet, base+"/vouchers?issuer=Shop&seller_id=A&type=ORDER", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodPost, base+"/vouchers", `{"issuer":"Shop","seller_id":" A ","type":"ORDER","code":"a5k"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodPost, base+"/vouchers", `{"issuer":" Platform ","type":"Order","code":"plat10"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHandlerAbandon(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f, "u1")
	view, err := f.svc.Start(context.Background(), f.sc)
	require.NoError(t, err)

	rec := do(t, newTestRouter(f, "u2"), http.MethodDelete, "/v1/checkout/sessions/"+view.SessionID, "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodDelete, "/v1/checkout/sessions/"+view.SessionID, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
}
