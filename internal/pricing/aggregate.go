package pricing

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidCartItem is returned when a cart line cannot be priced.
var ErrInvalidCartItem = errors.New("invalid cart item")

// BuildStoreOrders groups priced cart lines by seller, keeping the order in
// which sellers first appear. Every discount field starts at zero and every
// voucher slot starts NotApplied.
func BuildStoreOrders(items []CartLineItem) ([]StoreOrder, error) {
	index := make(map[string]int)
	stores := make([]StoreOrder, 0)
	for _, it := range items {
		sellerID := strings.TrimSpace(it.SellerID)
		if sellerID == "" {
			return nil, fmt.Errorf("%w: product %s has no seller", ErrInvalidCartItem, it.ProductID)
		}
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product %s has quantity %d", ErrInvalidCartItem, it.ProductID, it.Quantity)
		}
		if it.UnitPrice < 0 {
			return nil, fmt.Errorf("%w: product %s has negative price", ErrInvalidCartItem, it.ProductID)
		}
		pos, ok := index[sellerID]
		if !ok {
			pos = len(stores)
			index[sellerID] = pos
			stores = append(stores, StoreOrder{SellerID: sellerID, SellerName: it.SellerName})
		}
		store := &stores[pos]
		if store.SellerName == "" {
			store.SellerName = it.SellerName
		}
		it.SellerID = sellerID
		store.Items = append(store.Items, it)
		store.TotalQuantity += it.Quantity
		store.OriginalItemsTotal += it.Subtotal()
	}
	for i := range stores {
		stores[i].Recompute()
	}
	return stores, nil
}

// NewSnapshot aggregates the cart lines into a fresh snapshot.
func NewSnapshot(items []CartLineItem) (Snapshot, error) {
	stores, err := BuildStoreOrders(items)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Stores: stores}, nil
}
