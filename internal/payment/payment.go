package payment

import (
	"context"
	"errors"
	"strings"

	"github.com/noah-isme/toko-checkout/internal/order"
	"github.com/noah-isme/toko-checkout/internal/pricing"
)

// Kind distinguishes cash on delivery from redirect-based gateway payments.
type Kind string

const (
	// KindCOD settles on delivery; the checkout ends on the order list.
	KindCOD Kind = "cod"
	// KindGateway requires redirecting the buyer to a payment page.
	KindGateway Kind = "gateway"
)

// ErrMethodNotFound is returned when a selected method is not offered.
var ErrMethodNotFound = errors.New("payment method not found")

// Method is a payment option offered to the buyer.
type Method struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
	Bank string `json:"bank,omitempty"`
}

// Payment is a payment record created for one order.
type Payment struct {
	ID       string        `json:"id"`
	OrderID  string        `json:"order_id"`
	Provider string        `json:"provider"`
	Amount   pricing.Money `json:"amount"`
	Status   string        `json:"status"`
}

// GatewayRequest asks the payment service for a redirect URL covering the orders.
type GatewayRequest struct {
	Orders   []order.Order `json:"orders"`
	Bank     string        `json:"bank,omitempty"`
	Language string        `json:"language,omitempty"`
}

// GatewayResult is the redirect URL plus the payment records opened for it.
type GatewayResult struct {
	URL      string    `json:"url"`
	Payments []Payment `json:"payments"`
}

// Provider abstracts the operations required from the payment service.
type Provider interface {
	Methods(ctx context.Context) ([]Method, error)
	CreateCOD(ctx context.Context, orders []order.Order) ([]Payment, error)
	GatewayURL(ctx context.Context, req GatewayRequest) (GatewayResult, error)
}

// FindMethod returns the method with the given id from a loaded list.
func FindMethod(list []Method, id string) (Method, error) {
	id = strings.TrimSpace(id)
	for _, m := range list {
		if strings.EqualFold(m.ID, id) {
			return m, nil
		}
	}
	return Method{}, ErrMethodNotFound
}
