package clients

import (
	"context"
	"net/http"

	"github.com/noah-isme/toko-checkout/internal/order"
	"github.com/noah-isme/toko-checkout/internal/payment"
	"github.com/noah-isme/toko-checkout/internal/resilience"
)

// Payment talks to the payment service.
type Payment struct{ base }

// NewPayment constructs a payment client.
func NewPayment(baseURL string, client *resilience.HTTPClient) *Payment {
	return &Payment{newBase("payment", baseURL, client)}
}

// Methods implements payment.Provider.
func (c *Payment) Methods(ctx context.Context) ([]payment.Method, error) {
	var out struct {
		Methods []payment.Method `json:"methods"`
	}
	if err := c.do(ctx, http.MethodGet, "/payment-methods", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Methods, nil
}

// CreateCOD implements payment.Provider.
func (c *Payment) CreateCOD(ctx context.Context, orders []order.Order) ([]payment.Payment, error) {
	in := struct {
		Orders []order.Order `json:"orders"`
	}{Orders: orders}
	var out struct {
		Payments []payment.Payment `json:"payments"`
	}
	if err := c.do(ctx, http.MethodPost, "/cod-payment", nil, in, &out); err != nil {
		return nil, err
	}
	return out.Payments, nil
}

// GatewayURL implements payment.Provider.
func (c *Payment) GatewayURL(ctx context.Context, req payment.GatewayRequest) (payment.GatewayResult, error) {
	var out payment.GatewayResult
	err := c.do(ctx, http.MethodPost, "/gateway-payment-url", nil, req, &out)
	return out, err
}
