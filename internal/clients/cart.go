package clients

import (
	"context"
	"net/http"
	"net/url"

	"github.com/noah-isme/toko-checkout/internal/cart"
	"github.com/noah-isme/toko-checkout/internal/resilience"
)

// Cart talks to the cart service.
type Cart struct{ base }

// NewCart constructs a cart client.
func NewCart(baseURL string, client *resilience.HTTPClient) *Cart {
	return &Cart{newBase("cart", baseURL, client)}
}

// CheckoutSnapshot implements cart.Source.
func (c *Cart) CheckoutSnapshot(ctx context.Context, userID string) ([]cart.Item, error) {
	var out struct {
		Items []cart.Item `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/checkout-snapshot", url.Values{"user_id": {userID}}, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}
