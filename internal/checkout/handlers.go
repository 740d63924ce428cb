package checkout

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/obs"
	"github.com/noah-isme/toko-checkout/internal/voucher"
)

// Handler exposes the checkout session API.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

// Middlewares are optional per-route guards. Nil entries are skipped.
type Middlewares struct {
	StartLimit   func(http.Handler) http.Handler
	VoucherLimit func(http.Handler) http.Handler
	Idempotency  func(http.Handler) http.Handler
}

type addressInput struct {
	AddressID string `json:"address_id" validate:"required"`
}

type paymentMethodInput struct {
	MethodID string `json:"method_id" validate:"required"`
}

type applyVoucherInput struct {
	voucher.Scope
	Code string `json:"code" validate:"required"`
}

func (in *applyVoucherInput) normalize() { in.Scope = in.Scope.Normalize() }

// Routes mounts the session routes under the given router.
func (h *Handler) Routes(r chi.Router, mw Middlewares) {
	r.Route("/checkout/sessions", func(r chi.Router) {
		r.With(optional(mw.StartLimit)).Post("/", h.Start)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.Summary)
			r.Delete("/", h.Abandon)
			r.Put("/address", h.ChangeAddress)
			r.Put("/payment-method", h.SelectPaymentMethod)
			r.Get("/vouchers", h.ListVouchers)
			r.With(optional(mw.VoucherLimit)).Post("/vouchers", h.ApplyVoucher)
			r.Delete("/vouchers", h.RemoveVouchers)
			r.With(optional(mw.Idempotency)).Post("/orders", h.PlaceOrder)
		})
	})
}

func optional(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if mw == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return mw
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.session(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.Start(r.Context(), sc)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, view)
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.session(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.Summary(r.Context(), sc, chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

func (h *Handler) Abandon(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := h.Svc.Abandon(r.Context(), sc, chi.URLParam(r, "sessionID")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ChangeAddress(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.session(w, r)
	if !ok {
		return
	}
	var in addressInput
	if !h.decode(w, r, &in) {
		return
	}
	view, err := h.Svc.ChangeAddress(r.Context(), sc, chi.URLParam(r, "sessionID"), in.AddressID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

func (h *Handler) SelectPaymentMethod(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.session(w, r)
	if !ok {
		return
	}
	var in paymentMethodInput
	if !h.decode(w, r, &in) {
		return
	}
	view, err := h.Svc.SelectPaymentMethod(r.Context(), sc, chi.URLParam(r, "sessionID"), in.MethodID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

func (h *Handler) ListVouchers(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.session(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	scope := voucher.Scope{
		Issuer:   voucher.IssuerType(q.Get("issuer")),
		SellerID: q.Get("seller_id"),
		Type:     voucher.Type(q.Get("type")),
	}.Normalize()
	if err := h.validator().Struct(scope); err != nil {
		h.writeValidation(w, err)
		return
	}
	list, err := h.Svc.ListVouchers(r.Context(), sc, chi.URLParam(r, "sessionID"), scope)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, list)
}

func (h *Handler) ApplyVoucher(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.session(w, r)
	if !ok {
		return
	}
	var in applyVoucherInput
	if !h.decode(w, r, &in) {
		return
	}
	view, err := h.Svc.ApplyVoucher(r.Context(), sc, chi.URLParam(r, "sessionID"), in.Scope, in.Code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

func (h *Handler) RemoveVouchers(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.session(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.RemoveVouchers(r.Context(), sc, chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.session(w, r)
	if !ok {
		return
	}
	out, err := h.Svc.PlaceOrder(r.Context(), sc, chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, out)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (common.SessionContext, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return common.SessionContext{}, false
	}
	sc, ok := common.SessionFromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return common.SessionContext{}, false
	}
	if id := chi.URLParam(r, "sessionID"); id != "" {
		obs.SetSessionID(r.Context(), id)
	}
	return sc, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return false
	}
	if n, ok := dst.(interface{ normalize() }); ok {
		n.normalize()
	}
	if err := h.validator().Struct(dst); err != nil {
		h.writeValidation(w, err)
		return false
	}
	return true
}

var defaultValidate = validator.New()

func (h *Handler) validator() *validator.Validate {
	if h.Validate == nil {
		return defaultValidate
	}
	return h.Validate
}

func (h *Handler) writeValidation(w http.ResponseWriter, err error) {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		fields := make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields[fe.Field()] = fe.Tag()
		}
		common.JSONError(w, http.StatusUnprocessableEntity, "invalid_payload", "payload validation failed", fields)
		return
	}
	common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if err == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unknown error", nil)
		return
	}
	if common.WriteAppError(w, err, http.StatusBadRequest) {
		return
	}
	if h.Svc != nil {
		h.Svc.Logger.Error().Err(err).Msg("checkout request failed")
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}
