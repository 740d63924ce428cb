package pricing

// Money represents a monetary value stored in minor units.
type Money = int64

// CartLineItem is a priced cart line owned by exactly one StoreOrder.
type CartLineItem struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	ImageURL   string `json:"image_url,omitempty"`
	UnitPrice  Money  `json:"unit_price"`
	Quantity   int    `json:"quantity"`
	SellerID   string `json:"seller_id"`
	SellerName string `json:"seller_name"`
	Stock      int    `json:"stock"`
}

// Subtotal returns price multiplied by quantity.
func (it CartLineItem) Subtotal() Money {
	if it.Quantity <= 0 {
		return 0
	}
	return it.UnitPrice * Money(it.Quantity)
}

// AppliedVoucher is the payload of an occupied VoucherSlot. Values are never
// mutated after construction, so slots can be copied freely.
type AppliedVoucher struct {
	Code           string `json:"code"`
	VoucherID      string `json:"voucher_id"`
	DiscountAmount Money  `json:"discount_amount"`
}

// VoucherSlot is either NotApplied (zero value) or Applied with a voucher.
type VoucherSlot struct {
	Applied *AppliedVoucher `json:"applied,omitempty"`
}

// NotApplied returns an empty slot.
func NotApplied() VoucherSlot { return VoucherSlot{} }

// Applied returns a slot occupied by the given voucher.
func Applied(code, voucherID string, amount Money) VoucherSlot {
	return VoucherSlot{Applied: &AppliedVoucher{Code: code, VoucherID: voucherID, DiscountAmount: amount}}
}

// IsApplied reports whether the slot holds a voucher.
func (s VoucherSlot) IsApplied() bool { return s.Applied != nil }

// Code returns the applied voucher code or an empty string.
func (s VoucherSlot) Code() string {
	if s.Applied == nil {
		return ""
	}
	return s.Applied.Code
}

// Amount returns the applied discount amount or zero.
func (s VoucherSlot) Amount() Money {
	if s.Applied == nil {
		return 0
	}
	return s.Applied.DiscountAmount
}

// StoreOrder is the per-seller slice of a checkout.
type StoreOrder struct {
	SellerID   string         `json:"seller_id"`
	SellerName string         `json:"seller_name"`
	Items      []CartLineItem `json:"items"`

	TotalQuantity       int   `json:"total_quantity"`
	OriginalItemsTotal  Money `json:"original_items_total"`
	OriginalShippingFee Money `json:"original_shipping_fee"`

	DiscountAmountItems                     Money `json:"discount_amount_items"`
	DiscountAmountShipping                  Money `json:"discount_amount_shipping"`
	DiscountAmountItemsPlatformAllocated    Money `json:"discount_amount_items_platform_allocated"`
	DiscountAmountShippingPlatformAllocated Money `json:"discount_amount_shipping_platform_allocated"`

	ItemsTotalAfterDiscount  Money `json:"items_total_after_discount"`
	ShippingFeeAfterDiscount Money `json:"shipping_fee_after_discount"`
	FinalTotal               Money `json:"final_total"`

	OrderVoucher            VoucherSlot `json:"order_voucher"`
	FreeshipVoucher         VoucherSlot `json:"freeship_voucher"`
	PlatformOrderVoucher    VoucherSlot `json:"platform_order_voucher"`
	PlatformFreeshipVoucher VoucherSlot `json:"platform_freeship_voucher"`
}

// Recompute derives the after-discount figures and final total from the
// originals and the shop-voucher discounts.
func (s *StoreOrder) Recompute() {
	s.ItemsTotalAfterDiscount = clampZero(s.OriginalItemsTotal - s.DiscountAmountItems)
	s.ShippingFeeAfterDiscount = clampZero(s.OriginalShippingFee - s.DiscountAmountShipping)
	s.FinalTotal = s.ItemsTotalAfterDiscount + s.ShippingFeeAfterDiscount
}

// ClearPlatform drops the platform allocation mirrored onto the store.
func (s *StoreOrder) ClearPlatform() {
	s.DiscountAmountItemsPlatformAllocated = 0
	s.DiscountAmountShippingPlatformAllocated = 0
	s.PlatformOrderVoucher = NotApplied()
	s.PlatformFreeshipVoucher = NotApplied()
}

// ClearShop drops shop-voucher effects and restores the original figures.
func (s *StoreOrder) ClearShop() {
	s.DiscountAmountItems = 0
	s.DiscountAmountShipping = 0
	s.OrderVoucher = NotApplied()
	s.FreeshipVoucher = NotApplied()
	s.Recompute()
}

// CartSummary carries the cart-level platform voucher state.
type CartSummary struct {
	PlatformDiscountAmountItems    Money       `json:"platform_discount_amount_items"`
	PlatformDiscountAmountShipping Money       `json:"platform_discount_amount_shipping"`
	PlatformOrderVoucher           VoucherSlot `json:"platform_order_voucher"`
	PlatformFreeshipVoucher        VoucherSlot `json:"platform_freeship_voucher"`
}

// Snapshot is the pricing state of one checkout session. Transitions take a
// Snapshot and return a new one; callers must not share Stores slices.
type Snapshot struct {
	Stores  []StoreOrder `json:"stores"`
	Summary CartSummary  `json:"summary"`
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{Summary: s.Summary}
	if s.Stores == nil {
		return out
	}
	out.Stores = make([]StoreOrder, len(s.Stores))
	for i, store := range s.Stores {
		store.Items = append([]CartLineItem(nil), store.Items...)
		out.Stores[i] = store
	}
	return out
}

// StoreIndex returns the position of the seller in the snapshot or -1.
func (s Snapshot) StoreIndex(sellerID string) int {
	for i := range s.Stores {
		if s.Stores[i].SellerID == sellerID {
			return i
		}
	}
	return -1
}

// SellerIDs lists the sellers in snapshot order.
func (s Snapshot) SellerIDs() []string {
	ids := make([]string, 0, len(s.Stores))
	for _, store := range s.Stores {
		ids = append(ids, store.SellerID)
	}
	return ids
}

func clampZero(v Money) Money {
	if v < 0 {
		return 0
	}
	return v
}
