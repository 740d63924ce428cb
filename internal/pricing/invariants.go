package pricing

import (
	"errors"
	"fmt"
)

// ErrInvariant is wrapped by every violation reported by CheckInvariants.
var ErrInvariant = errors.New("pricing invariant violated")

// CheckInvariants verifies the consistency rules that must hold after every
// engine transition.
func CheckInvariants(s Snapshot) error {
	var itemsAllocated, shippingAllocated Money
	shopFreeship := false
	for _, store := range s.Stores {
		if store.FinalTotal != store.ItemsTotalAfterDiscount+store.ShippingFeeAfterDiscount {
			return fmt.Errorf("%w: store %s final total %d != %d + %d", ErrInvariant, store.SellerID,
				store.FinalTotal, store.ItemsTotalAfterDiscount, store.ShippingFeeAfterDiscount)
		}
		if store.ItemsTotalAfterDiscount < 0 || store.ShippingFeeAfterDiscount < 0 {
			return fmt.Errorf("%w: store %s has a negative total", ErrInvariant, store.SellerID)
		}
		if store.DiscountAmountItemsPlatformAllocated > store.ItemsTotalAfterDiscount {
			return fmt.Errorf("%w: store %s platform items allocation exceeds items total", ErrInvariant, store.SellerID)
		}
		if store.DiscountAmountShippingPlatformAllocated > store.ShippingFeeAfterDiscount {
			return fmt.Errorf("%w: store %s platform shipping allocation exceeds shipping fee", ErrInvariant, store.SellerID)
		}
		if store.FreeshipVoucher.IsApplied() {
			shopFreeship = true
		}
		itemsAllocated += store.DiscountAmountItemsPlatformAllocated
		shippingAllocated += store.DiscountAmountShippingPlatformAllocated
	}
	if itemsAllocated != s.Summary.PlatformDiscountAmountItems {
		return fmt.Errorf("%w: platform items allocation %d != cart discount %d", ErrInvariant, itemsAllocated, s.Summary.PlatformDiscountAmountItems)
	}
	if shippingAllocated != s.Summary.PlatformDiscountAmountShipping {
		return fmt.Errorf("%w: platform shipping allocation %d != cart discount %d", ErrInvariant, shippingAllocated, s.Summary.PlatformDiscountAmountShipping)
	}
	if !s.Summary.PlatformOrderVoucher.IsApplied() && s.Summary.PlatformDiscountAmountItems != 0 {
		return fmt.Errorf("%w: platform items discount without an order voucher", ErrInvariant)
	}
	if !s.Summary.PlatformFreeshipVoucher.IsApplied() && s.Summary.PlatformDiscountAmountShipping != 0 {
		return fmt.Errorf("%w: platform shipping discount without a freeship voucher", ErrInvariant)
	}
	if shopFreeship && s.Summary.PlatformFreeshipVoucher.IsApplied() {
		return fmt.Errorf("%w: shop and platform freeship vouchers are both active", ErrInvariant)
	}
	if PostDiscountGrandTotal(s) < 0 {
		return fmt.Errorf("%w: grand total is negative", ErrInvariant)
	}
	return nil
}
