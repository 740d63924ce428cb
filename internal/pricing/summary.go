package pricing

// Totals aggregates the cart-level figures derived from a snapshot.
type Totals struct {
	GrandItemsTotal                Money `json:"grand_items_total"`
	GrandShippingFee               Money `json:"grand_shipping_fee"`
	PreDiscountGrandTotal          Money `json:"pre_discount_grand_total"`
	PlatformDiscountAmountItems    Money `json:"platform_discount_amount_items"`
	PlatformDiscountAmountShipping Money `json:"platform_discount_amount_shipping"`
	PostDiscountGrandTotal         Money `json:"post_discount_grand_total"`
}

// GrandItemsTotal sums the after-discount merchandise totals.
func GrandItemsTotal(s Snapshot) Money {
	var total Money
	for _, store := range s.Stores {
		total += store.ItemsTotalAfterDiscount
	}
	return total
}

// GrandShippingFee sums the after-discount shipping fees.
func GrandShippingFee(s Snapshot) Money {
	var total Money
	for _, store := range s.Stores {
		total += store.ShippingFeeAfterDiscount
	}
	return total
}

// PreDiscountGrandTotal is the payable total before platform vouchers.
func PreDiscountGrandTotal(s Snapshot) Money {
	return GrandItemsTotal(s) + GrandShippingFee(s)
}

// PostDiscountGrandTotal subtracts the platform discounts exactly once.
func PostDiscountGrandTotal(s Snapshot) Money {
	return PreDiscountGrandTotal(s) - s.Summary.PlatformDiscountAmountItems - s.Summary.PlatformDiscountAmountShipping
}

// Summarize computes every cart-level total. It is recomputed on every read.
func Summarize(s Snapshot) Totals {
	items := GrandItemsTotal(s)
	shipping := GrandShippingFee(s)
	pre := items + shipping
	return Totals{
		GrandItemsTotal:                items,
		GrandShippingFee:               shipping,
		PreDiscountGrandTotal:          pre,
		PlatformDiscountAmountItems:    s.Summary.PlatformDiscountAmountItems,
		PlatformDiscountAmountShipping: s.Summary.PlatformDiscountAmountShipping,
		PostDiscountGrandTotal:         pre - s.Summary.PlatformDiscountAmountItems - s.Summary.PlatformDiscountAmountShipping,
	}
}
