package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/toko-checkout/internal/cart"
	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/lock"
	"github.com/noah-isme/toko-checkout/internal/obs"
	"github.com/noah-isme/toko-checkout/internal/order"
	"github.com/noah-isme/toko-checkout/internal/payment"
	"github.com/noah-isme/toko-checkout/internal/pricing"
	"github.com/noah-isme/toko-checkout/internal/shipping"
	"github.com/noah-isme/toko-checkout/internal/user"
	"github.com/noah-isme/toko-checkout/internal/voucher"
)

var (
	// ErrAddressRequired is returned when an order is placed without a delivery address.
	ErrAddressRequired = errors.New("delivery address is required")
	// ErrPaymentMethodRequired is returned when an order is placed without a payment method.
	ErrPaymentMethodRequired = errors.New("payment method is required")
	// ErrEmptyCart is returned when the checkout has no store orders.
	ErrEmptyCart = errors.New("checkout has no items")
	// ErrOutOfStock is returned when an item has no stock left.
	ErrOutOfStock = errors.New("item is out of stock")
	// ErrOrdersPlaced is returned when a session whose orders already exist is edited.
	ErrOrdersPlaced = errors.New("orders were already created for this checkout")
	// ErrSessionExpired is returned when a session vanished or changed while an operation was running.
	ErrSessionExpired = errors.New("checkout session expired")
)

// Next steps returned after placing an order.
const (
	NextOrderList = "order_list"
	NextRedirect  = "redirect"
)

// PlaceResult is the outcome of a successful order placement.
type PlaceResult struct {
	Orders      []order.Order     `json:"orders"`
	Payments    []payment.Payment `json:"payments,omitempty"`
	Next        string            `json:"next"`
	RedirectURL string            `json:"redirect_url,omitempty"`
}

// Service orchestrates checkout sessions. Writes to a session are serialised by
// Locker and committed with a version check, so a write that lost a race is
// discarded instead of applied.
type Service struct {
	Sessions        Store
	Locker          lock.Runner
	LockTTL         time.Duration
	Cart            cart.Source
	Addresses       user.AddressBook
	Payments        payment.Provider
	Shipping        *shipping.Resolver
	Catalog         voucher.Catalog
	Engine          *voucher.Engine
	Usage           voucher.UsageRecorder
	Orders          order.Creator
	Events          events.Emitter
	Logger          zerolog.Logger
	Now             func() time.Time
	PaymentLanguage string
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) lockTTL() time.Duration {
	if s.LockTTL <= 0 {
		return 10 * time.Second
	}
	return s.LockTTL
}

// Start opens a checkout session for the caller's selected cart lines.
func (s *Service) Start(ctx context.Context, sc common.SessionContext) (View, error) {
	if !sc.Valid() {
		return View{}, common.Validation("user_required", errors.New("user id is required"))
	}

	var (
		items     []cart.Item
		addresses []user.Address
		methods   []payment.Method
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = s.Cart.CheckoutSnapshot(gctx, sc.UserID)
		return remote("cart", err)
	})
	g.Go(func() error {
		var err error
		addresses, err = s.Addresses.Addresses(gctx, sc.UserID)
		return remote("profile", err)
	})
	g.Go(func() error {
		var err error
		methods, err = s.Payments.Methods(gctx)
		return remote("payment", err)
	})
	if err := g.Wait(); err != nil {
		s.Logger.Warn().Err(err).Str("user_id", sc.UserID).Msg("checkout start fetch failed")
		return View{}, err
	}

	snap, err := pricing.NewSnapshot(cart.LineItems(items))
	if err != nil {
		return View{}, common.Validation("invalid_cart_item", err)
	}

	now := s.now()
	sess := &Session{
		ID:             uuid.NewString(),
		UserID:         sc.UserID,
		Version:        1,
		Snapshot:       snap,
		Addresses:      addresses,
		PaymentMethods: methods,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if addr, ok := user.Default(addresses); ok {
		sess.SelectedAddressID = addr.ID
		if len(snap.Stores) > 0 {
			refreshed, err := s.Shipping.Refresh(ctx, addr.Destination(), snap)
			obs.IncShippingRefresh(obs.Outcome(err))
			if err != nil {
				return View{}, err
			}
			sess.Snapshot = refreshed
		}
	}

	if err := s.Sessions.Create(ctx, sess); err != nil {
		return View{}, fmt.Errorf("checkout: create session: %w", err)
	}
	obs.SetSessionID(ctx, sess.ID)
	obs.IncSessionStarted()
	s.emit(ctx, events.TopicCheckoutStarted, sess.ID, map[string]any{
		"session_id": sess.ID,
		"user_id":    sc.UserID,
		"stores":     len(sess.Snapshot.Stores),
	})
	s.Logger.Info().Str("session_id", sess.ID).Int("stores", len(sess.Snapshot.Stores)).Msg("checkout session started")
	return NewView(sess), nil
}

// Summary returns the current state of a session.
func (s *Service) Summary(ctx context.Context, sc common.SessionContext, id string) (View, error) {
	sess, err := s.load(ctx, sc, id)
	if err != nil {
		return View{}, err
	}
	return NewView(sess), nil
}

// ChangeAddress selects another delivery address. Shipping fees are re-resolved
// and every voucher is removed; a failed resolution leaves the session as it was.
func (s *Service) ChangeAddress(ctx context.Context, sc common.SessionContext, id, addressID string) (View, error) {
	sess, err := s.mutate(ctx, sc, id, func(ctx context.Context, sess *Session) error {
		if err := frozen(sess); err != nil {
			return err
		}
		addr, err := user.Find(sess.Addresses, addressID)
		if err != nil {
			return common.NotFound("address_not_found", err)
		}
		next, err := s.Shipping.Refresh(ctx, addr.Destination(), sess.Snapshot)
		obs.IncShippingRefresh(obs.Outcome(err))
		if err != nil {
			return err
		}
		sess.Snapshot = next
		sess.SelectedAddressID = addr.ID
		return nil
	})
	if err != nil {
		return View{}, err
	}
	return NewView(sess), nil
}

// ListVouchers loads the candidates for a scope and records them on the session.
func (s *Service) ListVouchers(ctx context.Context, sc common.SessionContext, id string, scope voucher.Scope) ([]voucher.Voucher, error) {
	var list []voucher.Voucher
	_, err := s.mutate(ctx, sc, id, func(ctx context.Context, sess *Session) error {
		var err error
		list, err = s.loadCandidates(ctx, sc, sess, scope)
		return err
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

// ApplyVoucher resolves the code against the scope's candidates and applies it.
func (s *Service) ApplyVoucher(ctx context.Context, sc common.SessionContext, id string, scope voucher.Scope, code string) (View, error) {
	sess, err := s.mutate(ctx, sc, id, func(ctx context.Context, sess *Session) error {
		if err := frozen(sess); err != nil {
			return err
		}
		candidates, ok := sess.Candidates[scope.Key()]
		if !ok {
			var err error
			if candidates, err = s.loadCandidates(ctx, sc, sess, scope); err != nil {
				return err
			}
		}
		v, err := voucher.FindByCode(candidates, code)
		if err != nil {
			return err
		}
		next, err := s.Engine.Apply(ctx, sc, v, sess.Snapshot)
		obs.IncVoucherApply(string(v.IssuerType), string(v.Type), obs.Outcome(err))
		if err != nil {
			s.Logger.Info().Err(err).Str("session_id", sess.ID).Str("voucher_code", v.Code).Msg("voucher rejected")
			return err
		}
		sess.Snapshot = next
		s.Logger.Info().Str("session_id", sess.ID).Str("voucher_code", v.Code).Str("seller_id", v.IssuerID).Msg("voucher applied")
		return nil
	})
	if err != nil {
		return View{}, err
	}
	return NewView(sess), nil
}

// RemoveVouchers clears every voucher in the session.
func (s *Service) RemoveVouchers(ctx context.Context, sc common.SessionContext, id string) (View, error) {
	sess, err := s.mutate(ctx, sc, id, func(_ context.Context, sess *Session) error {
		if err := frozen(sess); err != nil {
			return err
		}
		sess.Snapshot = s.Engine.RemoveAll(sess.Snapshot)
		return nil
	})
	if err != nil {
		return View{}, err
	}
	return NewView(sess), nil
}

// SelectPaymentMethod picks one of the methods loaded at start.
func (s *Service) SelectPaymentMethod(ctx context.Context, sc common.SessionContext, id, methodID string) (View, error) {
	sess, err := s.mutate(ctx, sc, id, func(_ context.Context, sess *Session) error {
		m, err := payment.FindMethod(sess.PaymentMethods, methodID)
		if err != nil {
			return common.NotFound("payment_method_not_found", err)
		}
		// the placed orders carry the payment status of the method they were created with
		if sess.OrdersPlaced() && m.ID != sess.SelectedPaymentMethod {
			return common.Conflict("orders_already_placed", ErrOrdersPlaced)
		}
		sess.SelectedPaymentMethod = m.ID
		return nil
	})
	if err != nil {
		return View{}, err
	}
	return NewView(sess), nil
}

// Abandon deletes the session. Operations still running against it fail at save time.
func (s *Service) Abandon(ctx context.Context, sc common.SessionContext, id string) error {
	err := s.Locker.WithLock(ctx, lockKey(id), s.lockTTL(), func(ctx context.Context) error {
		if _, err := s.load(ctx, sc, id); err != nil {
			return err
		}
		if err := s.Sessions.Delete(ctx, id); err != nil && !errors.Is(err, ErrSessionNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.emit(ctx, events.TopicCheckoutAbandoned, id, map[string]any{"session_id": id, "user_id": sc.UserID})
	s.Logger.Info().Str("session_id", id).Msg("checkout session abandoned")
	return nil
}

// PlaceOrder validates the session and submits one order per store. The
// session is deleted once payment records or the redirect URL exist.
func (s *Service) PlaceOrder(ctx context.Context, sc common.SessionContext, id string) (PlaceResult, error) {
	var (
		result PlaceResult
		kind   payment.Kind
	)
	err := s.Locker.WithLock(ctx, lockKey(id), s.lockTTL(), func(ctx context.Context) error {
		sess, err := s.load(ctx, sc, id)
		if err != nil {
			return err
		}
		addr, method, err := validateForPlacement(sess)
		if err != nil {
			return err
		}
		kind = method.Kind
		result, err = s.place(ctx, sc, sess, addr, method)
		return err
	})
	if kind != "" {
		obs.IncOrderPlace(string(kind), obs.Outcome(err))
	}
	if err != nil {
		return PlaceResult{}, err
	}
	return result, nil
}

func validateForPlacement(sess *Session) (user.Address, payment.Method, error) {
	addr, ok := sess.SelectedAddress()
	if !ok {
		return user.Address{}, payment.Method{}, common.Validation("address_required", ErrAddressRequired)
	}
	if sess.SelectedPaymentMethod == "" {
		return user.Address{}, payment.Method{}, common.Validation("payment_method_required", ErrPaymentMethodRequired)
	}
	method, err := payment.FindMethod(sess.PaymentMethods, sess.SelectedPaymentMethod)
	if err != nil {
		return user.Address{}, payment.Method{}, common.Validation("payment_method_required", errors.Join(ErrPaymentMethodRequired, err))
	}
	if len(sess.Snapshot.Stores) == 0 {
		return user.Address{}, payment.Method{}, common.Validation("empty_cart", ErrEmptyCart)
	}
	for _, store := range sess.Snapshot.Stores {
		for _, it := range store.Items {
			if it.Stock <= 0 {
				appErr := common.Validation("out_of_stock", fmt.Errorf("%w: %s", ErrOutOfStock, it.ProductID))
				appErr.Details = map[string]string{"product_id": it.ProductID, "seller_id": store.SellerID}
				return user.Address{}, payment.Method{}, appErr
			}
		}
	}
	return addr, method, nil
}

func (s *Service) place(ctx context.Context, sc common.SessionContext, sess *Session, addr user.Address, method payment.Method) (PlaceResult, error) {
	logger := s.Logger.With().Str("session_id", sess.ID).Str("payment_method", method.ID).Logger()
	// collaborators dedupe retried writes for this session by key
	ctx = common.WithOutboundKey(ctx, "checkout:"+sess.ID)

	orders := sess.PlacedOrders
	if sess.OrdersPlaced() {
		logger.Info().Strs("order_ids", orderIDs(orders)).Msg("retrying payment for placed orders")
	} else {
		var err error
		if orders, err = s.submitOrders(ctx, sc, sess, addr, method); err != nil {
			logger.Error().Err(err).Msg("order submission failed")
			return PlaceResult{}, remote("order", err)
		}
		s.recordUsage(ctx, sc, sess, orders, logger)
	}

	result := PlaceResult{Orders: orders}
	switch method.Kind {
	case payment.KindCOD:
		payments, err := s.Payments.CreateCOD(ctx, orders)
		if err != nil {
			return PlaceResult{}, s.paymentFailed(ctx, sess, orders, err, logger)
		}
		result.Payments = payments
		result.Next = NextOrderList
	default:
		gw, err := s.Payments.GatewayURL(ctx, payment.GatewayRequest{Orders: orders, Bank: method.Bank, Language: s.PaymentLanguage})
		if err != nil {
			return PlaceResult{}, s.paymentFailed(ctx, sess, orders, err, logger)
		}
		result.Payments = gw.Payments
		result.Next = NextRedirect
		result.RedirectURL = gw.URL
	}

	if err := s.Sessions.Delete(ctx, sess.ID); err != nil && !errors.Is(err, ErrSessionNotFound) {
		logger.Warn().Err(err).Msg("placed session not deleted")
	}
	ids := orderIDs(orders)
	s.emit(ctx, events.TopicOrderPlaced, sess.ID, map[string]any{
		"session_id":     sess.ID,
		"user_id":        sc.UserID,
		"order_ids":      ids,
		"payment_method": method.ID,
		"total":          pricing.PostDiscountGrandTotal(sess.Snapshot),
	})
	logger.Info().Strs("order_ids", ids).Str("next", result.Next).Msg("order placed")
	return result, nil
}

func (s *Service) submitOrders(ctx context.Context, sc common.SessionContext, sess *Session, addr user.Address, method payment.Method) ([]order.Order, error) {
	status := order.PaymentStatusPending
	if method.Kind == payment.KindCOD {
		status = order.PaymentStatusCOD
	}
	req := order.CreateRequest{UserID: sc.UserID, PaymentMethod: method.ID, PaymentStatus: status}
	for _, store := range sess.Snapshot.Stores {
		req.Stores = append(req.Stores, order.StoreInputFrom(store, addr.ID))
	}
	return s.Orders.Create(ctx, req)
}

func (s *Service) recordUsage(ctx context.Context, sc common.SessionContext, sess *Session, orders []order.Order, logger zerolog.Logger) {
	if s.Usage == nil {
		return
	}
	usage := voucher.UsageRecord{UserID: sc.UserID}
	bySeller := make(map[string]string, len(orders))
	for _, o := range orders {
		bySeller[o.SellerID] = o.ID
	}
	for _, store := range sess.Snapshot.Stores {
		usage.Stores = append(usage.Stores, voucher.UsageFor(store, bySeller[store.SellerID]))
	}
	if !usage.UsesVouchers() {
		return
	}
	if err := s.Usage.SaveUsage(ctx, usage); err != nil {
		logger.Warn().Err(err).Msg("voucher usage not recorded")
	}
}

// paymentFailed keeps the created orders on the session so a retry pays for
// them instead of creating a second set. The caller holds the session lock.
func (s *Service) paymentFailed(ctx context.Context, sess *Session, orders []order.Order, cause error, logger zerolog.Logger) error {
	if !sess.OrdersPlaced() {
		next := sess.Clone()
		next.PlacedOrders = append([]order.Order(nil), orders...)
		next.UpdatedAt = s.now()
		if err := s.Sessions.CompareAndSwap(context.WithoutCancel(ctx), next, sess.Version); err != nil {
			logger.Error().Err(err).Strs("order_ids", orderIDs(orders)).Msg("placed orders not stored on session")
		}
	}
	appErr := common.Remote("payment", cause)
	appErr.Details = map[string]any{"target": "payment", "order_ids": orderIDs(orders)}
	return appErr
}

// mutate runs fn on a copy of the session under the session lock and commits
// the copy only if the stored version is still the one that was read.
func (s *Service) mutate(ctx context.Context, sc common.SessionContext, id string, fn func(context.Context, *Session) error) (*Session, error) {
	var out *Session
	err := s.Locker.WithLock(ctx, lockKey(id), s.lockTTL(), func(ctx context.Context) error {
		current, err := s.load(ctx, sc, id)
		if err != nil {
			return err
		}
		next := current.Clone()
		if err := fn(ctx, next); err != nil {
			return err
		}
		next.UpdatedAt = s.now()
		if err := s.Sessions.CompareAndSwap(ctx, next, current.Version); err != nil {
			switch {
			case errors.Is(err, ErrSessionNotFound):
				return common.Conflict("session_expired", ErrSessionExpired)
			case errors.Is(err, ErrVersionConflict):
				return common.Conflict("session_version_conflict", err)
			}
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) load(ctx context.Context, sc common.SessionContext, id string) (*Session, error) {
	if !sc.Valid() {
		return nil, common.Validation("user_required", errors.New("user id is required"))
	}
	obs.SetSessionID(ctx, id)
	sess, err := s.Sessions.Get(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, common.NotFound("session_not_found", err)
	}
	if err != nil {
		return nil, err
	}
	if sess.UserID != sc.UserID {
		return nil, common.NotFound("session_not_found", ErrSessionNotFound)
	}
	return sess, nil
}

func (s *Service) loadCandidates(ctx context.Context, sc common.SessionContext, sess *Session, scope voucher.Scope) ([]voucher.Voucher, error) {
	if scope.Issuer == voucher.IssuerShop && sess.Snapshot.StoreIndex(scope.SellerID) < 0 {
		return nil, common.Validation("voucher_store_mismatch", fmt.Errorf("%w: %s", voucher.ErrStoreNotInCart, scope.SellerID))
	}
	list, err := s.Catalog.List(ctx, sc, scope)
	if err != nil {
		return nil, err
	}
	if sess.Candidates == nil {
		sess.Candidates = make(map[string][]voucher.Voucher)
	}
	sess.Candidates[scope.Key()] = list
	return list, nil
}

func (s *Service) emit(ctx context.Context, topic, aggregateID string, payload any) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, topic, aggregateID, payload); err != nil {
		s.Logger.Warn().Err(err).Str("topic", topic).Str("session_id", aggregateID).Msg("domain event not emitted")
	}
}

func lockKey(id string) string {
	return "checkout:lock:" + id
}

func remote(target string, err error) error {
	if err == nil || common.IsAppError(err) {
		return err
	}
	return common.Remote(target, err)
}

// frozen rejects edits that would change what the placed orders were priced on.
func frozen(sess *Session) error {
	if sess.OrdersPlaced() {
		return common.Conflict("orders_already_placed", ErrOrdersPlaced)
	}
	return nil
}
