package clients

import (
	"context"
	"net/http"

	"github.com/noah-isme/toko-checkout/internal/order"
	"github.com/noah-isme/toko-checkout/internal/resilience"
)

// Order talks to the order service.
type Order struct{ base }

// NewOrder constructs an order client.
func NewOrder(baseURL string, client *resilience.HTTPClient) *Order {
	return &Order{newBase("order", baseURL, client)}
}

// Create implements order.Creator.
func (c *Order) Create(ctx context.Context, req order.CreateRequest) ([]order.Order, error) {
	var out struct {
		Orders []order.Order `json:"orders"`
	}
	if err := c.do(ctx, http.MethodPost, "/orders", nil, req, &out); err != nil {
		return nil, err
	}
	return out.Orders, nil
}
