package voucher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/toko-checkout/internal/common"
)

// ErrVoucherNotFound is returned when an entered code matches no loaded candidate.
var ErrVoucherNotFound = errors.New("voucher not found")

// Source lists candidate vouchers. Implementations call the remote discount service.
type Source interface {
	PlatformVouchers(ctx context.Context, userID string, t Type) ([]Voucher, error)
	ShopVouchers(ctx context.Context, userID, sellerID string, t Type) ([]Voucher, error)
}

// Scope selects one candidate list: platform or a single shop, for one voucher type.
type Scope struct {
	Issuer   IssuerType `json:"issuer" validate:"required,oneof=platform shop"`
	SellerID string     `json:"seller_id,omitempty" validate:"required_if=Issuer shop"`
	Type     Type       `json:"type" validate:"required,oneof=order freeship"`
}

// Normalize lower-cases issuer and type and trims the seller id, so request
// values such as "Platform" or "FREESHIP" resolve to the same scope.
func (s Scope) Normalize() Scope {
	return Scope{
		Issuer:   IssuerType(strings.ToLower(strings.TrimSpace(string(s.Issuer)))),
		SellerID: strings.TrimSpace(s.SellerID),
		Type:     Type(strings.ToLower(strings.TrimSpace(string(s.Type)))),
	}
}

// Key identifies the scope inside a session's loaded candidate lists.
func (s Scope) Key() string {
	if s.Issuer == IssuerShop {
		return fmt.Sprintf("%s:%s:%s", s.Issuer, strings.TrimSpace(s.SellerID), s.Type)
	}
	return fmt.Sprintf("%s:%s", s.Issuer, s.Type)
}

// Catalog fetches candidate vouchers on demand. It holds no state of its own.
type Catalog struct {
	Source Source
}

// List fetches the candidates for a scope. Vouchers whose type or issuer do
// not match the requested scope are dropped.
func (c Catalog) List(ctx context.Context, sc common.SessionContext, scope Scope) ([]Voucher, error) {
	if c.Source == nil {
		return nil, errors.New("voucher catalog not configured")
	}
	var (
		list []Voucher
		err  error
	)
	switch scope.Issuer {
	case IssuerPlatform:
		list, err = c.Source.PlatformVouchers(ctx, sc.UserID, scope.Type)
	case IssuerShop:
		if strings.TrimSpace(scope.SellerID) == "" {
			return nil, common.Validation("seller_required", errors.New("seller id is required for shop vouchers"))
		}
		list, err = c.Source.ShopVouchers(ctx, sc.UserID, scope.SellerID, scope.Type)
	default:
		return nil, common.Validation("invalid_voucher_scope", fmt.Errorf("unknown issuer %q", scope.Issuer))
	}
	if err != nil {
		if common.IsAppError(err) {
			return nil, err
		}
		return nil, common.Remote("discount", err)
	}
	out := make([]Voucher, 0, len(list))
	for _, v := range list {
		if v.Type != scope.Type || v.IssuerType != scope.Issuer {
			continue
		}
		if scope.Issuer == IssuerShop && v.IssuerID != scope.SellerID {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// FindByCode resolves an entered code against a loaded candidate list.
func FindByCode(list []Voucher, code string) (Voucher, error) {
	want := NormalizeCode(code)
	if want == "" {
		return Voucher{}, common.Validation("voucher_code_required", errors.New("voucher code is required"))
	}
	for _, v := range list {
		if NormalizeCode(v.Code) == want {
			return v, nil
		}
	}
	return Voucher{}, common.NotFound("voucher_not_found", fmt.Errorf("%w: %s", ErrVoucherNotFound, strings.TrimSpace(code)))
}
