package checkout

import (
	"time"

	"github.com/noah-isme/toko-checkout/internal/order"
	"github.com/noah-isme/toko-checkout/internal/payment"
	"github.com/noah-isme/toko-checkout/internal/pricing"
	"github.com/noah-isme/toko-checkout/internal/user"
	"github.com/noah-isme/toko-checkout/internal/voucher"
)

// Session is the server-side state of one checkout. It is owned by a single
// user and written only under the session lock with a version check.
type Session struct {
	ID                    string                       `json:"id"`
	UserID                string                       `json:"user_id"`
	Version               int64                        `json:"version"`
	Snapshot              pricing.Snapshot             `json:"snapshot"`
	Addresses             []user.Address               `json:"addresses"`
	SelectedAddressID     string                       `json:"selected_address_id,omitempty"`
	PaymentMethods        []payment.Method             `json:"payment_methods"`
	SelectedPaymentMethod string                       `json:"selected_payment_method,omitempty"`
	Candidates            map[string][]voucher.Voucher `json:"candidates,omitempty"`
	// PlacedOrders holds orders created by an attempt whose payment step
	// failed. Once set, pricing inputs are frozen and a retry only pays.
	PlacedOrders []order.Order `json:"placed_orders,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Clone returns a deep copy so a failed transition never leaks into the stored session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Snapshot = s.Snapshot.Clone()
	out.Addresses = append([]user.Address(nil), s.Addresses...)
	out.PaymentMethods = append([]payment.Method(nil), s.PaymentMethods...)
	out.PlacedOrders = append([]order.Order(nil), s.PlacedOrders...)
	if s.Candidates != nil {
		out.Candidates = make(map[string][]voucher.Voucher, len(s.Candidates))
		for k, v := range s.Candidates {
			out.Candidates[k] = append([]voucher.Voucher(nil), v...)
		}
	}
	return &out
}

// OrdersPlaced reports whether orders already exist for this session.
func (s *Session) OrdersPlaced() bool { return len(s.PlacedOrders) > 0 }

// SelectedAddress returns the chosen delivery address.
func (s *Session) SelectedAddress() (user.Address, bool) {
	if s.SelectedAddressID == "" {
		return user.Address{}, false
	}
	addr, err := user.Find(s.Addresses, s.SelectedAddressID)
	return addr, err == nil
}

// View is the read model returned to callers after every operation.
type View struct {
	SessionID             string               `json:"session_id"`
	Version               int64                `json:"version"`
	Stores                []pricing.StoreOrder `json:"stores"`
	Summary               pricing.CartSummary  `json:"summary"`
	Totals                pricing.Totals       `json:"totals"`
	Addresses             []user.Address       `json:"addresses"`
	SelectedAddressID     string               `json:"selected_address_id,omitempty"`
	PaymentMethods        []payment.Method     `json:"payment_methods"`
	SelectedPaymentMethod string               `json:"selected_payment_method,omitempty"`
	PlacedOrderIDs        []string             `json:"placed_order_ids,omitempty"`
}

// NewView derives the read model, recomputing totals from the snapshot.
func NewView(s *Session) View {
	return View{
		SessionID:             s.ID,
		Version:               s.Version,
		Stores:                s.Snapshot.Stores,
		Summary:               s.Snapshot.Summary,
		Totals:                pricing.Summarize(s.Snapshot),
		Addresses:             s.Addresses,
		SelectedAddressID:     s.SelectedAddressID,
		PaymentMethods:        s.PaymentMethods,
		SelectedPaymentMethod: s.SelectedPaymentMethod,
		PlacedOrderIDs:        orderIDs(s.PlacedOrders),
	}
}

func orderIDs(orders []order.Order) []string {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	return ids
}
