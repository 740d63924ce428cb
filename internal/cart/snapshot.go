package cart

import (
	"context"
	"sync"

	"github.com/noah-isme/toko-checkout/internal/pricing"
)

// Item is a priced cart line as returned by the cart service checkout snapshot.
type Item struct {
	ProductID  string        `json:"product_id"`
	Name       string        `json:"name"`
	ImageURL   string        `json:"image_url,omitempty"`
	Price      pricing.Money `json:"price"`
	Quantity   int           `json:"quantity"`
	SellerID   string        `json:"seller_id"`
	SellerName string        `json:"seller_name"`
	Stock      int           `json:"stock"`
}

// LineItem converts the wire record into the pricing model.
func (it Item) LineItem() pricing.CartLineItem {
	return pricing.CartLineItem{
		ProductID:  it.ProductID,
		Name:       it.Name,
		ImageURL:   it.ImageURL,
		UnitPrice:  it.Price,
		Quantity:   it.Quantity,
		SellerID:   it.SellerID,
		SellerName: it.SellerName,
		Stock:      it.Stock,
	}
}

// LineItems converts a checkout snapshot.
func LineItems(items []Item) []pricing.CartLineItem {
	out := make([]pricing.CartLineItem, 0, len(items))
	for _, it := range items {
		out = append(out, it.LineItem())
	}
	return out
}

// Source returns the selected cart lines a user is checking out.
type Source interface {
	CheckoutSnapshot(ctx context.Context, userID string) ([]Item, error)
}

// MemorySource is an in-process cart for development and tests.
type MemorySource struct {
	mu    sync.RWMutex
	carts map[string][]Item
}

// NewMemorySource constructs an empty MemorySource.
func NewMemorySource() *MemorySource {
	return &MemorySource{carts: make(map[string][]Item)}
}

// Put replaces the selected lines for the user.
func (m *MemorySource) Put(userID string, items ...Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[userID] = append([]Item(nil), items...)
}

// CheckoutSnapshot implements Source.
func (m *MemorySource) CheckoutSnapshot(_ context.Context, userID string) ([]Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Item{}, m.carts[userID]...), nil
}
