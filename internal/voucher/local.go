package voucher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/noah-isme/toko-checkout/internal/pricing"
)

// LocalService is an in-process stand-in for the discount service. It prices
// vouchers from a fixed catalog and keeps the usage ledger in memory. It is
// used when no discount service URL is configured and in tests.
type LocalService struct {
	Now func() time.Time

	mu       sync.Mutex
	vouchers []Voucher
	usage    []UsageRecord
}

// NewLocalService constructs a LocalService seeded with the given vouchers.
func NewLocalService(vouchers ...Voucher) *LocalService {
	return &LocalService{vouchers: append([]Voucher(nil), vouchers...)}
}

// Add registers another voucher.
func (s *LocalService) Add(v Voucher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vouchers = append(s.vouchers, v)
}

// PlatformVouchers implements Source.
func (s *LocalService) PlatformVouchers(_ context.Context, _ string, t Type) ([]Voucher, error) {
	return s.filter(func(v Voucher) bool { return v.IssuerType == IssuerPlatform && v.Type == t }), nil
}

// ShopVouchers implements Source.
func (s *LocalService) ShopVouchers(_ context.Context, _ string, sellerID string, t Type) ([]Voucher, error) {
	return s.filter(func(v Voucher) bool {
		return v.IssuerType == IssuerShop && v.IssuerID == sellerID && v.Type == t
	}), nil
}

// QuoteShop implements Quoter.
func (s *LocalService) QuoteShop(_ context.Context, req ShopQuoteRequest) (ShopQuote, error) {
	v, err := s.lookup(req.Code, IssuerShop, req.Type)
	if err != nil {
		return ShopQuote{}, err
	}
	if v.IssuerID != req.SellerID {
		return ShopQuote{}, fmt.Errorf("voucher %s does not belong to store %s", v.Code, req.SellerID)
	}
	if err := v.Validate(s.now(), req.OriginalItemsTotal); err != nil {
		return ShopQuote{}, err
	}
	quote := ShopQuote{ItemsTotalAfterDiscount: req.OriginalItemsTotal, ShippingFeeAfterDiscount: req.OriginalShippingFee}
	switch v.Type {
	case TypeOrder:
		quote.DiscountAmountItems = Compute(req.OriginalItemsTotal, v)
		quote.ItemsTotalAfterDiscount -= quote.DiscountAmountItems
	case TypeFreeship:
		quote.DiscountAmountShipping = Compute(req.OriginalShippingFee, v)
		quote.ShippingFeeAfterDiscount -= quote.DiscountAmountShipping
	}
	return quote, nil
}

// QuotePlatform implements Quoter. The discount is allocated across stores in
// proportion to each store's base amount.
func (s *LocalService) QuotePlatform(_ context.Context, req PlatformQuoteRequest) (PlatformQuote, error) {
	v, err := s.lookup(req.Code, IssuerPlatform, req.Type)
	if err != nil {
		return PlatformQuote{}, err
	}
	var itemsTotal pricing.Money
	weights := make([]pricing.Money, len(req.Stores))
	for i, st := range req.Stores {
		itemsTotal += st.ItemsTotalAfterDiscount
		if v.Type == TypeFreeship {
			weights[i] = st.ShippingFeeAfterDiscount
		} else {
			weights[i] = st.ItemsTotalAfterDiscount
		}
	}
	if err := v.Validate(s.now(), itemsTotal); err != nil {
		return PlatformQuote{}, err
	}
	var base pricing.Money
	for _, w := range weights {
		base += w
	}
	total := Compute(base, v)
	shares := Allocate(total, weights)
	quote := PlatformQuote{Allocations: make([]Allocation, 0, len(req.Stores))}
	for i, st := range req.Stores {
		quote.Allocations = append(quote.Allocations, Allocation{SellerID: st.SellerID, Type: v.Type, Amount: shares[i]})
	}
	if v.Type == TypeFreeship {
		quote.DiscountAmountShipping = total
	} else {
		quote.DiscountAmountItems = total
	}
	return quote, nil
}

// SaveUsage implements UsageRecorder.
func (s *LocalService) SaveUsage(_ context.Context, rec UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Stores = append([]UsageEntry(nil), rec.Stores...)
	s.usage = append(s.usage, rec)
	return nil
}

// Usage returns a copy of the recorded ledger.
func (s *LocalService) Usage() []UsageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]UsageRecord(nil), s.usage...)
}

func (s *LocalService) filter(keep func(Voucher) bool) []Voucher {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	out := make([]Voucher, 0)
	for _, v := range s.vouchers {
		if keep(v) && v.ActiveAt(now) {
			out = append(out, v)
		}
	}
	return out
}

func (s *LocalService) lookup(code string, issuer IssuerType, t Type) (Voucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := NormalizeCode(code)
	for _, v := range s.vouchers {
		if NormalizeCode(v.Code) == want && v.IssuerType == issuer && v.Type == t {
			return v, nil
		}
	}
	return Voucher{}, fmt.Errorf("%w: %s", ErrVoucherNotFound, code)
}

func (s *LocalService) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
