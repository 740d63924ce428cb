package voucher

import (
	"errors"
	"strings"
	"time"

	"github.com/noah-isme/toko-checkout/internal/pricing"
)

// Type selects what a voucher discounts.
type Type string

const (
	// TypeOrder discounts the merchandise subtotal.
	TypeOrder Type = "order"
	// TypeFreeship discounts the shipping fee.
	TypeFreeship Type = "freeship"
)

// IssuerType selects who issued a voucher and therefore its reach.
type IssuerType string

const (
	// IssuerPlatform vouchers apply to the whole cart.
	IssuerPlatform IssuerType = "platform"
	// IssuerShop vouchers apply to exactly one store order.
	IssuerShop IssuerType = "shop"
)

// Unit is the unit of Voucher.DiscountValue.
type Unit string

const (
	// UnitAmount discounts a fixed amount in minor units.
	UnitAmount Unit = "amount"
	// UnitPercent discounts a share expressed in basis points (1000 = 10%).
	UnitPercent Unit = "percent"
)

var (
	// ErrVoucherInactive is returned when attempting to use a voucher before its active window.
	ErrVoucherInactive = errors.New("voucher not active")
	// ErrVoucherExpired is returned when the voucher has already expired.
	ErrVoucherExpired = errors.New("voucher expired")
	// ErrMinimumSpendUnmet indicates the order total did not meet the voucher requirement.
	ErrMinimumSpendUnmet = errors.New("voucher minimum spend not met")
	// ErrInvalidVoucher is returned for vouchers with an unknown type or issuer.
	ErrInvalidVoucher = errors.New("invalid voucher")
)

// Voucher is a candidate voucher as published by the discount service.
type Voucher struct {
	ID            string        `json:"id"`
	Code          string        `json:"code"`
	Type          Type          `json:"type"`
	IssuerType    IssuerType    `json:"issuer_type"`
	IssuerID      string        `json:"issuer_id,omitempty"`
	IssuerName    string        `json:"issuer_name,omitempty"`
	DiscountUnit  Unit          `json:"discount_unit"`
	DiscountValue int64         `json:"discount_value"`
	MinOrderValue pricing.Money `json:"min_order_value"`
	MaxDiscount   pricing.Money `json:"max_discount"`
	ValidFrom     *time.Time    `json:"valid_from,omitempty"`
	ValidTo       *time.Time    `json:"valid_to,omitempty"`
}

// Check ensures the voucher carries a known type and issuer. Shop vouchers must name their store.
func (v Voucher) Check() error {
	switch v.Type {
	case TypeOrder, TypeFreeship:
	default:
		return errors.Join(ErrInvalidVoucher, errors.New("unknown voucher type "+string(v.Type)))
	}
	switch v.IssuerType {
	case IssuerPlatform:
	case IssuerShop:
		if strings.TrimSpace(v.IssuerID) == "" {
			return errors.Join(ErrInvalidVoucher, errors.New("shop voucher without issuer"))
		}
	default:
		return errors.Join(ErrInvalidVoucher, errors.New("unknown issuer type "+string(v.IssuerType)))
	}
	if strings.TrimSpace(v.Code) == "" {
		return errors.Join(ErrInvalidVoucher, errors.New("voucher without code"))
	}
	return nil
}

// Validate ensures the voucher can be used at the provided instant and order total.
func (v Voucher) Validate(now time.Time, orderTotal pricing.Money) error {
	if orderTotal < v.MinOrderValue {
		return ErrMinimumSpendUnmet
	}
	if v.ValidFrom != nil && now.Before(*v.ValidFrom) {
		return ErrVoucherInactive
	}
	if v.ValidTo != nil && now.After(*v.ValidTo) {
		return ErrVoucherExpired
	}
	return nil
}

// ActiveAt reports whether now falls inside the validity window.
func (v Voucher) ActiveAt(now time.Time) bool {
	if v.ValidFrom != nil && now.Before(*v.ValidFrom) {
		return false
	}
	if v.ValidTo != nil && now.After(*v.ValidTo) {
		return false
	}
	return true
}

// Compute determines the discount for the given base amount, honouring the
// percent unit, the max discount cap and the base itself as an upper bound.
func Compute(base pricing.Money, v Voucher) pricing.Money {
	if base <= 0 {
		return 0
	}
	discount := v.DiscountValue
	if v.DiscountUnit == UnitPercent {
		if v.DiscountValue <= 0 {
			return 0
		}
		discount, _ = mulDiv(base, min(v.DiscountValue, 10000), 10000)
	}
	if v.MaxDiscount > 0 && discount > v.MaxDiscount {
		discount = v.MaxDiscount
	}
	if discount > base {
		discount = base
	}
	if discount < 0 {
		return 0
	}
	return discount
}

// NormalizeCode trims and upper-cases a voucher code for comparison.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
