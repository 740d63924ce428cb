package voucher

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/pricing"
)

var (
	// ErrConflictingFreeshipVoucher is returned when a platform freeship voucher
	// is applied while a shop freeship voucher is active on any store.
	ErrConflictingFreeshipVoucher = errors.New("conflicting freeship voucher")
	// ErrStoreNotInCart is returned when a shop voucher targets a seller absent from the checkout.
	ErrStoreNotInCart = errors.New("voucher store is not part of this checkout")
	// ErrAllocationMismatch is returned when a platform quote does not conserve its discount across stores.
	ErrAllocationMismatch = errors.New("platform voucher allocation mismatch")
	// ErrInvalidQuote is returned when a quote carries impossible amounts.
	ErrInvalidQuote = errors.New("invalid voucher quote")
)

// ShopQuoteRequest asks the discount service to price a shop voucher for one store.
type ShopQuoteRequest struct {
	UserID              string        `json:"user_id"`
	SellerID            string        `json:"seller_id"`
	Code                string        `json:"code"`
	Type                Type          `json:"type"`
	OriginalItemsTotal  pricing.Money `json:"original_items_total"`
	OriginalShippingFee pricing.Money `json:"original_shipping_fee"`
}

// ShopQuote is the discount service answer for a shop voucher.
type ShopQuote struct {
	DiscountAmountItems      pricing.Money `json:"discount_amount_items"`
	DiscountAmountShipping   pricing.Money `json:"discount_amount_shipping"`
	ItemsTotalAfterDiscount  pricing.Money `json:"items_total_after_discount"`
	ShippingFeeAfterDiscount pricing.Money `json:"shipping_fee_after_discount"`
}

// StoreTotals are the per-store figures a platform voucher is priced against.
type StoreTotals struct {
	SellerID                 string        `json:"seller_id"`
	ItemsTotalAfterDiscount  pricing.Money `json:"items_total_after_discount"`
	ShippingFeeAfterDiscount pricing.Money `json:"shipping_fee_after_discount"`
}

// PlatformQuoteRequest asks the discount service to price a platform voucher for the whole cart.
type PlatformQuoteRequest struct {
	UserID string        `json:"user_id"`
	Code   string        `json:"code"`
	Type   Type          `json:"type"`
	Stores []StoreTotals `json:"stores"`
}

// Allocation is one store's share of a platform voucher discount.
type Allocation struct {
	SellerID string        `json:"seller_id"`
	Type     Type          `json:"type"`
	Amount   pricing.Money `json:"amount"`
}

// PlatformQuote is the discount service answer for a platform voucher.
type PlatformQuote struct {
	DiscountAmountItems    pricing.Money `json:"discount_amount_items_platform"`
	DiscountAmountShipping pricing.Money `json:"discount_amount_shipping_platform"`
	Allocations            []Allocation  `json:"per_store_allocation"`
}

// Quoter prices vouchers. Implementations call the remote discount service.
type Quoter interface {
	QuoteShop(ctx context.Context, req ShopQuoteRequest) (ShopQuote, error)
	QuotePlatform(ctx context.Context, req PlatformQuoteRequest) (PlatformQuote, error)
}

// Engine applies and removes vouchers against a pricing snapshot. Every
// operation returns a new snapshot and leaves its input untouched.
type Engine struct {
	Quoter Quoter
}

// Apply prices the voucher with the discount service and returns the snapshot
// with the voucher applied. On any failure the input snapshot is returned
// unchanged together with the error.
func (e *Engine) Apply(ctx context.Context, sc common.SessionContext, v Voucher, snap pricing.Snapshot) (pricing.Snapshot, error) {
	if e == nil || e.Quoter == nil {
		return snap, errors.New("voucher engine not configured")
	}
	if err := v.Check(); err != nil {
		return snap, common.Validation("invalid_voucher", err)
	}
	ctx, span := otel.Tracer("voucher.Engine").Start(ctx, "VoucherEngine.Apply")
	defer span.End()
	span.SetAttributes(
		attribute.String("voucher.code", v.Code),
		attribute.String("voucher.type", string(v.Type)),
		attribute.String("voucher.issuer", string(v.IssuerType)),
	)

	if v.IssuerType == IssuerPlatform && v.Type == TypeFreeship {
		for _, store := range snap.Stores {
			if store.FreeshipVoucher.IsApplied() {
				return snap, common.Conflict("conflicting_freeship_voucher", ErrConflictingFreeshipVoucher)
			}
		}
	}

	var (
		next pricing.Snapshot
		err  error
	)
	switch v.IssuerType {
	case IssuerShop:
		next, err = e.applyShop(ctx, sc, v, snap)
	default:
		next, err = e.applyPlatform(ctx, sc, v, snap)
	}
	if err != nil {
		span.RecordError(err)
		return snap, err
	}
	if err := pricing.CheckInvariants(next); err != nil {
		span.RecordError(err)
		return snap, common.Remote("discount", err)
	}
	return next, nil
}

func (e *Engine) applyShop(ctx context.Context, sc common.SessionContext, v Voucher, snap pricing.Snapshot) (pricing.Snapshot, error) {
	idx := snap.StoreIndex(v.IssuerID)
	if idx < 0 {
		return snap, common.Validation("voucher_store_mismatch", fmt.Errorf("%w: %s", ErrStoreNotInCart, v.IssuerID))
	}
	next := clearPlatform(snap.Clone())
	store := next.Stores[idx]

	quote, err := e.Quoter.QuoteShop(ctx, ShopQuoteRequest{
		UserID:              sc.UserID,
		SellerID:            store.SellerID,
		Code:                v.Code,
		Type:                v.Type,
		OriginalItemsTotal:  store.OriginalItemsTotal,
		OriginalShippingFee: store.OriginalShippingFee,
	})
	if err != nil {
		return snap, asRemote(err)
	}

	switch v.Type {
	case TypeOrder:
		if quote.DiscountAmountItems < 0 || quote.DiscountAmountItems > store.OriginalItemsTotal {
			return snap, common.Remote("discount", fmt.Errorf("%w: items discount %d", ErrInvalidQuote, quote.DiscountAmountItems))
		}
		store.DiscountAmountItems = quote.DiscountAmountItems
		store.OrderVoucher = pricing.Applied(v.Code, v.ID, quote.DiscountAmountItems)
	case TypeFreeship:
		if quote.DiscountAmountShipping < 0 || quote.DiscountAmountShipping > store.OriginalShippingFee {
			return snap, common.Remote("discount", fmt.Errorf("%w: shipping discount %d", ErrInvalidQuote, quote.DiscountAmountShipping))
		}
		store.DiscountAmountShipping = quote.DiscountAmountShipping
		store.FreeshipVoucher = pricing.Applied(v.Code, v.ID, quote.DiscountAmountShipping)
	}
	store.Recompute()
	next.Stores[idx] = store
	return next, nil
}

func (e *Engine) applyPlatform(ctx context.Context, sc common.SessionContext, v Voucher, snap pricing.Snapshot) (pricing.Snapshot, error) {
	req := PlatformQuoteRequest{UserID: sc.UserID, Code: v.Code, Type: v.Type, Stores: make([]StoreTotals, 0, len(snap.Stores))}
	for _, store := range snap.Stores {
		req.Stores = append(req.Stores, StoreTotals{
			SellerID:                 store.SellerID,
			ItemsTotalAfterDiscount:  store.ItemsTotalAfterDiscount,
			ShippingFeeAfterDiscount: store.ShippingFeeAfterDiscount,
		})
	}
	quote, err := e.Quoter.QuotePlatform(ctx, req)
	if err != nil {
		return snap, asRemote(err)
	}

	total := quote.DiscountAmountItems
	if v.Type == TypeFreeship {
		total = quote.DiscountAmountShipping
	}
	if total < 0 {
		return snap, common.Remote("discount", fmt.Errorf("%w: negative platform discount", ErrInvalidQuote))
	}
	shares := make(map[string]pricing.Money, len(quote.Allocations))
	var allocated pricing.Money
	for _, alloc := range quote.Allocations {
		if alloc.Type != "" && alloc.Type != v.Type {
			continue
		}
		if alloc.Amount < 0 {
			return snap, common.Remote("discount", fmt.Errorf("%w: negative allocation for %s", ErrInvalidQuote, alloc.SellerID))
		}
		if snap.StoreIndex(alloc.SellerID) < 0 {
			return snap, common.Remote("discount", fmt.Errorf("%w: unknown store %s", ErrAllocationMismatch, alloc.SellerID))
		}
		if _, dup := shares[alloc.SellerID]; dup {
			return snap, common.Remote("discount", fmt.Errorf("%w: duplicate store %s", ErrAllocationMismatch, alloc.SellerID))
		}
		shares[alloc.SellerID] = alloc.Amount
		allocated += alloc.Amount
	}
	if allocated != total {
		return snap, common.Remote("discount", fmt.Errorf("%w: allocated %d of %d", ErrAllocationMismatch, allocated, total))
	}

	next := snap.Clone()
	for i := range next.Stores {
		store := &next.Stores[i]
		share, ok := shares[store.SellerID]
		switch v.Type {
		case TypeOrder:
			if share > store.ItemsTotalAfterDiscount {
				return snap, common.Remote("discount", fmt.Errorf("%w: store %s share exceeds items total", ErrAllocationMismatch, store.SellerID))
			}
			store.DiscountAmountItemsPlatformAllocated = share
			store.PlatformOrderVoucher = pricing.NotApplied()
			if ok {
				store.PlatformOrderVoucher = pricing.Applied(v.Code, v.ID, share)
			}
		case TypeFreeship:
			if share > store.ShippingFeeAfterDiscount {
				return snap, common.Remote("discount", fmt.Errorf("%w: store %s share exceeds shipping fee", ErrAllocationMismatch, store.SellerID))
			}
			store.DiscountAmountShippingPlatformAllocated = share
			store.PlatformFreeshipVoucher = pricing.NotApplied()
			if ok {
				store.PlatformFreeshipVoucher = pricing.Applied(v.Code, v.ID, share)
			}
		}
	}
	switch v.Type {
	case TypeOrder:
		next.Summary.PlatformDiscountAmountItems = total
		next.Summary.PlatformOrderVoucher = pricing.Applied(v.Code, v.ID, total)
	case TypeFreeship:
		next.Summary.PlatformDiscountAmountShipping = total
		next.Summary.PlatformFreeshipVoucher = pricing.Applied(v.Code, v.ID, total)
	}
	return next, nil
}

// RemoveAll clears every shop and platform voucher and restores the original
// totals. Applying it twice is a no-op the second time.
func RemoveAll(snap pricing.Snapshot) pricing.Snapshot {
	next := clearPlatform(snap.Clone())
	for i := range next.Stores {
		next.Stores[i].ClearShop()
	}
	return next
}

// RemoveAll is the engine-bound form of the package-level RemoveAll.
func (e *Engine) RemoveAll(snap pricing.Snapshot) pricing.Snapshot {
	return RemoveAll(snap)
}

// clearPlatform resets the cart-level platform state and every store's mirror.
// It mutates and returns the given snapshot, which must already be a copy.
func clearPlatform(snap pricing.Snapshot) pricing.Snapshot {
	snap.Summary = pricing.CartSummary{}
	for i := range snap.Stores {
		snap.Stores[i].ClearPlatform()
	}
	return snap
}

func asRemote(err error) error {
	if common.IsAppError(err) {
		return err
	}
	return common.Remote("discount", err)
}
