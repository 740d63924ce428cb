package pricing_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/pricing"
)

func sampleItems() []pricing.CartLineItem {
	return []pricing.CartLineItem{
		{ProductID: "p1", Name: "Kaos", UnitPrice: 40_000, Quantity: 2, SellerID: "A", SellerName: "Toko A", Stock: 10},
		{ProductID: "p2", Name: "Topi", UnitPrice: 50_000, Quantity: 1, SellerID: "B", SellerName: "Toko B", Stock: 3},
		{ProductID: "p3", Name: "Kaos kaki", UnitPrice: 20_000, Quantity: 1, SellerID: "A", SellerName: "Toko A", Stock: 5},
	}
}

func TestBuildStoreOrdersGroupsBySeller(t *testing.T) {
	stores, err := pricing.BuildStoreOrders(sampleItems())
	require.NoError(t, err)
	require.Len(t, stores, 2)

	a := stores[0]
	require.Equal(t, "A", a.SellerID)
	require.Len(t, a.Items, 2)
	require.Equal(t, 3, a.TotalQuantity)
	require.Equal(t, pricing.Money(100_000), a.OriginalItemsTotal)
	require.Equal(t, a.OriginalItemsTotal, a.ItemsTotalAfterDiscount)
	require.Equal(t, a.OriginalItemsTotal, a.FinalTotal)
	require.False(t, a.OrderVoucher.IsApplied())
	require.False(t, a.PlatformFreeshipVoucher.IsApplied())

	b := stores[1]
	require.Equal(t, "B", b.SellerID)
	require.Equal(t, pricing.Money(50_000), b.OriginalItemsTotal)
}

func TestBuildStoreOrdersRejectsInvalidLines(t *testing.T) {
	_, err := pricing.BuildStoreOrders([]pricing.CartLineItem{{ProductID: "p1", UnitPrice: 1, Quantity: 0, SellerID: "A"}})
	require.ErrorIs(t, err, pricing.ErrInvalidCartItem)

	_, err = pricing.BuildStoreOrders([]pricing.CartLineItem{{ProductID: "p1", UnitPrice: 1, Quantity: 1}})
	require.ErrorIs(t, err, pricing.ErrInvalidCartItem)
}

func TestSummarize(t *testing.T) {
	snap, err := pricing.NewSnapshot(sampleItems())
	require.NoError(t, err)
	snap.Stores[0].OriginalShippingFee = 9_000
	snap.Stores[1].OriginalShippingFee = 11_000
	for i := range snap.Stores {
		snap.Stores[i].Recompute()
	}
	snap.Summary.PlatformOrderVoucher = pricing.Applied("PLAT10", "v1", 15_000)
	snap.Summary.PlatformDiscountAmountItems = 15_000
	snap.Stores[0].DiscountAmountItemsPlatformAllocated = 10_000
	snap.Stores[1].DiscountAmountItemsPlatformAllocated = 5_000

	totals := pricing.Summarize(snap)
	require.Equal(t, pricing.Money(150_000), totals.GrandItemsTotal)
	require.Equal(t, pricing.Money(20_000), totals.GrandShippingFee)
	require.Equal(t, pricing.Money(170_000), totals.PreDiscountGrandTotal)
	require.Equal(t, pricing.Money(155_000), totals.PostDiscountGrandTotal)
	require.NoError(t, pricing.CheckInvariants(snap))
}

func TestCheckInvariantsDetectsAllocationLoss(t *testing.T) {
	snap, err := pricing.NewSnapshot(sampleItems())
	require.NoError(t, err)
	snap.Summary.PlatformOrderVoucher = pricing.Applied("PLAT", "v1", 15_000)
	snap.Summary.PlatformDiscountAmountItems = 15_000
	snap.Stores[0].DiscountAmountItemsPlatformAllocated = 10_000

	require.ErrorIs(t, pricing.CheckInvariants(snap), pricing.ErrInvariant)
}

func TestCloneIsDeep(t *testing.T) {
	snap, err := pricing.NewSnapshot(sampleItems())
	require.NoError(t, err)
	clone := snap.Clone()
	clone.Stores[0].FinalTotal = 1
	clone.Stores[0].Items[0].Quantity = 99

	require.Equal(t, pricing.Money(100_000), snap.Stores[0].FinalTotal)
	require.Equal(t, 2, snap.Stores[0].Items[0].Quantity)
}
