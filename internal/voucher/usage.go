package voucher

import (
	"context"

	"github.com/noah-isme/toko-checkout/internal/pricing"
)

// UsageEntry records the final voucher state of one placed store order.
type UsageEntry struct {
	SellerID                string              `json:"seller_id"`
	OrderID                 string              `json:"order_id"`
	OrderVoucher            pricing.VoucherSlot `json:"order_voucher"`
	FreeshipVoucher         pricing.VoucherSlot `json:"freeship_voucher"`
	PlatformOrderVoucher    pricing.VoucherSlot `json:"platform_order_voucher"`
	PlatformFreeshipVoucher pricing.VoucherSlot `json:"platform_freeship_voucher"`
}

// UsageRecord is the voucher-usage ledger submitted after order placement.
type UsageRecord struct {
	UserID string       `json:"user"`
	Stores []UsageEntry `json:"stores"`
}

// UsageRecorder persists voucher usage with the discount service.
type UsageRecorder interface {
	SaveUsage(ctx context.Context, rec UsageRecord) error
}

// HasVouchers reports whether any slot in the entry is applied.
func (e UsageEntry) HasVouchers() bool {
	return e.OrderVoucher.IsApplied() || e.FreeshipVoucher.IsApplied() ||
		e.PlatformOrderVoucher.IsApplied() || e.PlatformFreeshipVoucher.IsApplied()
}

// UsesVouchers reports whether any store in the record had a voucher applied.
// A record without one carries nothing for the discount service to count.
func (r UsageRecord) UsesVouchers() bool {
	for _, e := range r.Stores {
		if e.HasVouchers() {
			return true
		}
	}
	return false
}

// UsageFor builds the ledger entry for a store order and its placed order id.
func UsageFor(store pricing.StoreOrder, orderID string) UsageEntry {
	return UsageEntry{
		SellerID:                store.SellerID,
		OrderID:                 orderID,
		OrderVoucher:            store.OrderVoucher,
		FreeshipVoucher:         store.FreeshipVoucher,
		PlatformOrderVoucher:    store.PlatformOrderVoucher,
		PlatformFreeshipVoucher: store.PlatformFreeshipVoucher,
	}
}
