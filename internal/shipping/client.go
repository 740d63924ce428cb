package shipping

import (
	"context"
	"hash/fnv"

	"github.com/noah-isme/toko-checkout/internal/pricing"
)

// Destination is the part of a delivery address the shipping service prices against.
type Destination struct {
	DistrictID string `json:"district_id"`
	WardCode   string `json:"ward_code"`
}

// FeeRequest asks for one shipping fee per store for a destination.
type FeeRequest struct {
	Address  Destination `json:"address"`
	StoreIDs []string    `json:"store_ids"`
}

// Client defines the behaviour required to quote per-store shipping fees.
type Client interface {
	Fees(ctx context.Context, req FeeRequest) (map[string]pricing.Money, error)
}

// MockClient returns deterministic fees and is useful for testing and development.
type MockClient struct {
	// Base is charged to every store. Zero means 15000.
	Base pricing.Money
	// Step spreads fees per district so an address change is observable.
	Step pricing.Money
}

// Fees returns Base plus a district-dependent surcharge for every requested store.
func (m MockClient) Fees(ctx context.Context, req FeeRequest) (map[string]pricing.Money, error) {
	_ = ctx
	base := m.Base
	if base <= 0 {
		base = 15000
	}
	var surcharge pricing.Money
	if m.Step > 0 && req.Address.DistrictID != "" {
		h := fnv.New32a()
		_, _ = h.Write([]byte(req.Address.DistrictID))
		surcharge = pricing.Money(h.Sum32()%5) * m.Step
	}
	out := make(map[string]pricing.Money, len(req.StoreIDs))
	for _, id := range req.StoreIDs {
		out[id] = base + surcharge
	}
	return out, nil
}
