package shipping

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/pricing"
	"github.com/noah-isme/toko-checkout/internal/voucher"
)

var (
	// ErrMissingStoreFee is returned when the shipping service omits a requested store.
	ErrMissingStoreFee = errors.New("shipping fee missing for store")
	// ErrNegativeFee is returned when the shipping service reports a negative fee.
	ErrNegativeFee = errors.New("negative shipping fee")
	// ErrDestinationRequired is returned when a destination has no district.
	ErrDestinationRequired = errors.New("destination district is required")
)

// Resolver resolves per-store shipping fees and folds them into a snapshot.
type Resolver struct {
	Client Client
	Logger zerolog.Logger
}

// NewResolver constructs a Resolver around the given client.
func NewResolver(client Client, logger zerolog.Logger) *Resolver {
	return &Resolver{Client: client, Logger: logger}
}

// Resolve fetches one fee per store. The answer must cover every requested
// store with a non-negative fee, otherwise a remote error is returned.
func (r *Resolver) Resolve(ctx context.Context, dest Destination, storeIDs []string) (map[string]pricing.Money, error) {
	if r == nil || r.Client == nil {
		return nil, errors.New("shipping resolver not configured")
	}
	if strings.TrimSpace(dest.DistrictID) == "" {
		return nil, common.Validation("address_required", ErrDestinationRequired)
	}
	if len(storeIDs) == 0 {
		return map[string]pricing.Money{}, nil
	}
	ctx, span := otel.Tracer("shipping.Resolver").Start(ctx, "ShippingResolver.Resolve")
	defer span.End()
	span.SetAttributes(attribute.Int("shipping.stores", len(storeIDs)), attribute.String("shipping.district", dest.DistrictID))

	fees, err := r.Client.Fees(ctx, FeeRequest{Address: dest, StoreIDs: append([]string(nil), storeIDs...)})
	if err != nil {
		span.RecordError(err)
		if common.IsAppError(err) {
			return nil, err
		}
		return nil, common.Remote("shipping", err)
	}
	out := make(map[string]pricing.Money, len(storeIDs))
	for _, id := range storeIDs {
		fee, ok := fees[id]
		if !ok {
			return nil, common.Remote("shipping", fmt.Errorf("%w: %s", ErrMissingStoreFee, id))
		}
		if fee < 0 {
			return nil, common.Remote("shipping", fmt.Errorf("%w: %s=%d", ErrNegativeFee, id, fee))
		}
		out[id] = fee
	}
	return out, nil
}

// Refresh resolves fees for every store in the snapshot and returns a new
// snapshot carrying them with every voucher removed. On failure the input is
// returned untouched.
func (r *Resolver) Refresh(ctx context.Context, dest Destination, snap pricing.Snapshot) (pricing.Snapshot, error) {
	fees, err := r.Resolve(ctx, dest, snap.SellerIDs())
	if err != nil {
		r.Logger.Warn().Err(err).Str("district_id", dest.DistrictID).Msg("shipping refresh failed")
		return snap, err
	}
	next := voucher.RemoveAll(snap)
	for i := range next.Stores {
		next.Stores[i].OriginalShippingFee = fees[next.Stores[i].SellerID]
		next.Stores[i].Recompute()
	}
	if err := pricing.CheckInvariants(next); err != nil {
		return snap, common.Remote("shipping", err)
	}
	return next, nil
}
