package clients

import (
	"context"

	"github.com/noah-isme/toko-checkout/internal/pricing"
	"github.com/noah-isme/toko-checkout/internal/resilience"
	"github.com/noah-isme/toko-checkout/internal/shipping"
)

// Shipping talks to the shipping fee service.
type Shipping struct{ base }

// NewShipping constructs a shipping client.
func NewShipping(baseURL string, client *resilience.HTTPClient) *Shipping {
	return &Shipping{newBase("shipping", baseURL, client)}
}

type storeFee struct {
	OriginalShippingFee pricing.Money `json:"original_shipping_fee"`
}

// Fees implements shipping.Client.
func (c *Shipping) Fees(ctx context.Context, req shipping.FeeRequest) (map[string]pricing.Money, error) {
	var out map[string]storeFee
	if err := c.query(ctx, "/shipping-fee", req, &out); err != nil {
		return nil, err
	}
	fees := make(map[string]pricing.Money, len(out))
	for id, fee := range out {
		fees[id] = fee.OriginalShippingFee
	}
	return fees, nil
}
