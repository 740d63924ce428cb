package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-checkout/internal/order"
)

// Midtrans implements Provider for Midtrans SNAP style redirects without
// performing a network call. A deterministic token drives the rest of the flow
// in development and integration tests.
type Midtrans struct {
	BaseURL string
	Sandbox bool
}

// Methods offers cash on delivery plus the SNAP gateway.
func (m Midtrans) Methods(_ context.Context) ([]Method, error) {
	return []Method{
		{ID: "cod", Name: "Cash on Delivery", Kind: KindCOD},
		{ID: "midtrans", Name: "Midtrans", Kind: KindGateway},
		{ID: "midtrans-bca", Name: "BCA Virtual Account", Kind: KindGateway, Bank: "bca"},
	}, nil
}

// CreateCOD opens one pending cash-on-delivery payment per order.
func (m Midtrans) CreateCOD(_ context.Context, orders []order.Order) ([]Payment, error) {
	if len(orders) == 0 {
		return nil, errors.New("no orders to pay")
	}
	out := make([]Payment, 0, len(orders))
	for _, o := range orders {
		out = append(out, Payment{ID: uuid.NewString(), OrderID: o.ID, Provider: "cod", Amount: o.Total, Status: "PENDING"})
	}
	return out, nil
}

// GatewayURL issues a SNAP-like redirect covering every order.
func (m Midtrans) GatewayURL(_ context.Context, req GatewayRequest) (GatewayResult, error) {
	if len(req.Orders) == 0 {
		return GatewayResult{}, errors.New("no orders to pay")
	}
	ids := make([]string, 0, len(req.Orders))
	payments := make([]Payment, 0, len(req.Orders))
	for _, o := range req.Orders {
		if strings.TrimSpace(o.ID) == "" {
			return GatewayResult{}, errors.New("order id is required")
		}
		ids = append(ids, o.ID)
		payments = append(payments, Payment{ID: uuid.NewString(), OrderID: o.ID, Provider: "midtrans", Amount: o.Total, Status: "PENDING"})
	}
	sum := sha256.Sum256([]byte(strings.Join(ids, ",")))
	token := fmt.Sprintf("SNAP-%s", hex.EncodeToString(sum[:8]))
	url := fmt.Sprintf("%s/snap/v2/vtweb/%s", strings.TrimRight(m.snapHost(), "/"), token)
	if bank := strings.TrimSpace(req.Bank); bank != "" {
		url += "?bank=" + bank
	}
	return GatewayResult{URL: url, Payments: payments}, nil
}

func (m Midtrans) snapHost() string {
	host := strings.TrimSpace(m.BaseURL)
	if host == "" {
		if m.Sandbox {
			return "https://app.sandbox.midtrans.com"
		}
		return "https://app.midtrans.com"
	}
	return host
}
