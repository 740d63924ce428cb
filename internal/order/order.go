package order

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-checkout/internal/pricing"
)

// Payment statuses submitted with a new order.
const (
	PaymentStatusPending = "PENDING"
	PaymentStatusCOD     = "COD"
)

// Item is one line of a store order as submitted to the order service.
type Item struct {
	ProductID string        `json:"product_id"`
	Quantity  int           `json:"quantity"`
	UnitPrice pricing.Money `json:"unit_price"`
}

// StoreInput is the per-store breakdown of a checkout.
type StoreInput struct {
	SellerID                    string        `json:"seller_id"`
	AddressID                   string        `json:"address_id"`
	Items                       []Item        `json:"items"`
	OriginalItemsTotal          pricing.Money `json:"original_items_total"`
	OriginalShippingFee         pricing.Money `json:"original_shipping_fee"`
	DiscountAmountItems         pricing.Money `json:"discount_amount_items"`
	DiscountAmountShipping      pricing.Money `json:"discount_amount_shipping"`
	PlatformDiscountItems       pricing.Money `json:"discount_amount_items_platform_allocated"`
	PlatformDiscountShipping    pricing.Money `json:"discount_amount_shipping_platform_allocated"`
	FinalTotal                  pricing.Money `json:"final_total"`
	Payable                     pricing.Money `json:"payable"`
	OrderVoucherCode            string        `json:"order_voucher_code,omitempty"`
	FreeshipVoucherCode         string        `json:"freeship_voucher_code,omitempty"`
	PlatformOrderVoucherCode    string        `json:"platform_order_voucher_code,omitempty"`
	PlatformFreeshipVoucherCode string        `json:"platform_freeship_voucher_code,omitempty"`
}

// CreateRequest is the body sent to the order service.
type CreateRequest struct {
	UserID        string       `json:"user_id"`
	PaymentMethod string       `json:"payment_method"`
	PaymentStatus string       `json:"payment_status"`
	Stores        []StoreInput `json:"stores"`
}

// Order is one created order, one per store.
type Order struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	SellerID      string        `json:"seller_id"`
	Status        string        `json:"status"`
	PaymentMethod string        `json:"payment_method"`
	PaymentStatus string        `json:"payment_status"`
	Total         pricing.Money `json:"total"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Creator submits orders. Implementations call the order service.
type Creator interface {
	Create(ctx context.Context, req CreateRequest) ([]Order, error)
}

// StoreInputFrom converts a priced store order into its submission form.
// Payable is the final total minus the store's share of platform discounts.
func StoreInputFrom(store pricing.StoreOrder, addressID string) StoreInput {
	items := make([]Item, 0, len(store.Items))
	for _, it := range store.Items {
		items = append(items, Item{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	payable := store.FinalTotal - store.DiscountAmountItemsPlatformAllocated - store.DiscountAmountShippingPlatformAllocated
	if payable < 0 {
		payable = 0
	}
	return StoreInput{
		SellerID:                    store.SellerID,
		AddressID:                   addressID,
		Items:                       items,
		OriginalItemsTotal:          store.OriginalItemsTotal,
		OriginalShippingFee:         store.OriginalShippingFee,
		DiscountAmountItems:         store.DiscountAmountItems,
		DiscountAmountShipping:      store.DiscountAmountShipping,
		PlatformDiscountItems:       store.DiscountAmountItemsPlatformAllocated,
		PlatformDiscountShipping:    store.DiscountAmountShippingPlatformAllocated,
		FinalTotal:                  store.FinalTotal,
		Payable:                     payable,
		OrderVoucherCode:            store.OrderVoucher.Code(),
		FreeshipVoucherCode:         store.FreeshipVoucher.Code(),
		PlatformOrderVoucherCode:    store.PlatformOrderVoucher.Code(),
		PlatformFreeshipVoucherCode: store.PlatformFreeshipVoucher.Code(),
	}
}

// MemoryCreator records orders in memory. It backs local development and tests.
type MemoryCreator struct {
	Now func() time.Time

	mu       sync.Mutex
	orders   []Order
	requests []CreateRequest
}

// Create implements Creator.
func (m *MemoryCreator) Create(_ context.Context, req CreateRequest) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if m.Now != nil {
		now = m.Now()
	}
	out := make([]Order, 0, len(req.Stores))
	for _, st := range req.Stores {
		out = append(out, Order{
			ID:            uuid.NewString(),
			UserID:        req.UserID,
			SellerID:      st.SellerID,
			Status:        "PENDING_PAYMENT",
			PaymentMethod: strings.ToLower(req.PaymentMethod),
			PaymentStatus: req.PaymentStatus,
			Total:         st.Payable,
			CreatedAt:     now.UTC(),
		})
	}
	m.requests = append(m.requests, req)
	m.orders = append(m.orders, out...)
	return out, nil
}

// Requests returns the submitted requests in order.
func (m *MemoryCreator) Requests() []CreateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CreateRequest(nil), m.requests...)
}
