package clients

import (
	"context"
	"net/http"
	"net/url"

	"github.com/noah-isme/toko-checkout/internal/resilience"
	"github.com/noah-isme/toko-checkout/internal/voucher"
)

// Discount talks to the discount service. It serves as voucher source, quoter
// and usage recorder.
type Discount struct{ base }

// NewDiscount constructs a discount client.
func NewDiscount(baseURL string, client *resilience.HTTPClient) *Discount {
	return &Discount{newBase("discount", baseURL, client)}
}

type voucherList struct {
	Vouchers []voucher.Voucher `json:"vouchers"`
}

// PlatformVouchers implements voucher.Source.
func (c *Discount) PlatformVouchers(ctx context.Context, userID string, t voucher.Type) ([]voucher.Voucher, error) {
	var out voucherList
	q := url.Values{"type": {string(t)}, "user_id": {userID}}
	if err := c.do(ctx, http.MethodGet, "/platform-vouchers", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Vouchers, nil
}

// ShopVouchers implements voucher.Source.
func (c *Discount) ShopVouchers(ctx context.Context, userID, sellerID string, t voucher.Type) ([]voucher.Voucher, error) {
	var out voucherList
	q := url.Values{"seller_id": {sellerID}, "type": {string(t)}, "user_id": {userID}}
	if err := c.do(ctx, http.MethodGet, "/shop-vouchers", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Vouchers, nil
}

// QuoteShop implements voucher.Quoter.
func (c *Discount) QuoteShop(ctx context.Context, req voucher.ShopQuoteRequest) (voucher.ShopQuote, error) {
	var out voucher.ShopQuote
	err := c.query(ctx, "/apply-shop-voucher", req, &out)
	return out, err
}

// QuotePlatform implements voucher.Quoter.
func (c *Discount) QuotePlatform(ctx context.Context, req voucher.PlatformQuoteRequest) (voucher.PlatformQuote, error) {
	var out voucher.PlatformQuote
	err := c.query(ctx, "/apply-platform-voucher", req, &out)
	return out, err
}

// SaveUsage implements voucher.UsageRecorder.
func (c *Discount) SaveUsage(ctx context.Context, rec voucher.UsageRecord) error {
	return c.do(ctx, http.MethodPost, "/save-voucher-usage", nil, rec, nil)
}
