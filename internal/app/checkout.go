package app

import (
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-checkout/internal/cart"
	"github.com/noah-isme/toko-checkout/internal/checkout"
	"github.com/noah-isme/toko-checkout/internal/clients"
	"github.com/noah-isme/toko-checkout/internal/obs"
	"github.com/noah-isme/toko-checkout/internal/order"
	"github.com/noah-isme/toko-checkout/internal/payment"
	"github.com/noah-isme/toko-checkout/internal/pricing"
	"github.com/noah-isme/toko-checkout/internal/resilience"
	"github.com/noah-isme/toko-checkout/internal/shipping"
	"github.com/noah-isme/toko-checkout/internal/user"
	"github.com/noah-isme/toko-checkout/internal/voucher"
)

// Checkout wires the checkout service. Each collaborator uses its HTTP client
// when a base URL is configured and an in-process implementation otherwise.
func (d *Dependencies) Checkout() *checkout.Service {
	cfg := d.Config
	logger := obs.Component(d.Logger, "checkout")

	svc := &checkout.Service{
		Locker:          d.Locker(),
		LockTTL:         cfg.LockTTL,
		Events:          d.EventBus(),
		Logger:          logger,
		PaymentLanguage: cfg.PaymentLanguage,
	}
	if cfg.SessionStore == "redis" && d.Redis != nil {
		svc.Sessions = checkout.RedisStore{R: d.Redis, TTL: cfg.SessionTTL, Prefix: cfg.SessionKeyPrefix}
	} else {
		svc.Sessions = checkout.NewMemoryStore(cfg.SessionTTL)
	}

	if cfg.CartServiceURL != "" {
		svc.Cart = clients.NewCart(cfg.CartServiceURL, d.outbound("cart"))
	} else {
		svc.Cart = demoCart()
	}
	if cfg.ProfileServiceURL != "" {
		svc.Addresses = clients.NewProfile(cfg.ProfileServiceURL, d.outbound("profile"))
	} else {
		svc.Addresses = demoAddresses()
	}
	if cfg.PaymentServiceURL != "" {
		svc.Payments = clients.NewPayment(cfg.PaymentServiceURL, d.outbound("payment"))
	} else {
		svc.Payments = payment.Midtrans{Sandbox: !cfg.IsProduction()}
	}
	var fees shipping.Client = shipping.MockClient{Step: 1000}
	if cfg.ShippingServiceURL != "" {
		fees = clients.NewShipping(cfg.ShippingServiceURL, d.outbound("shipping"))
	}
	svc.Shipping = shipping.NewResolver(fees, obs.Component(d.Logger, "shipping"))

	if cfg.DiscountServiceURL != "" {
		discount := clients.NewDiscount(cfg.DiscountServiceURL, d.outbound("discount"))
		svc.Catalog = voucher.Catalog{Source: discount}
		svc.Engine = &voucher.Engine{Quoter: discount}
		svc.Usage = discount
	} else {
		local := demoVouchers()
		svc.Catalog = voucher.Catalog{Source: local}
		svc.Engine = &voucher.Engine{Quoter: local}
		svc.Usage = local
	}
	if cfg.OrderServiceURL != "" {
		svc.Orders = clients.NewOrder(cfg.OrderServiceURL, d.outbound("order"))
	} else {
		svc.Orders = &order.MemoryCreator{}
	}
	return svc
}

func (d *Dependencies) outbound(target string) *resilience.HTTPClient {
	logger := obs.Component(d.Logger, target).With().Str("target", target).Logger()
	return clients.NewHTTP(target, clientOptions(d, &logger))
}

func clientOptions(d *Dependencies, logger *zerolog.Logger) clients.Options {
	cfg := d.Config
	return clients.Options{
		Timeout:             cfg.OutboundTimeout,
		MaxAttempts:         cfg.RetryMaxAttempts,
		BaseBackoff:         cfg.RetryBase,
		Jitter:              cfg.RetryJitterPercent,
		CircuitMinRequests:  cfg.CircuitMinRequests,
		CircuitFailureRatio: cfg.CircuitFailureRatio,
		CircuitOpenFor:      cfg.CircuitOpenFor,
		Logger:              logger,
	}
}

// demo data lets a local run walk the whole flow for the "demo-user" account
const demoUser = "demo-user"

func demoCart() *cart.MemorySource {
	src := cart.NewMemorySource()
	src.Put(demoUser,
		cart.Item{ProductID: "sku-kopi-250", Name: "Kopi Gayo 250g", Price: 85_000, Quantity: 2, SellerID: "seller-gayo", SellerName: "Gayo Roastery", Stock: 12},
		cart.Item{ProductID: "sku-v60", Name: "Dripper V60", Price: 120_000, Quantity: 1, SellerID: "seller-brew", SellerName: "Brew Supply", Stock: 4},
		cart.Item{ProductID: "sku-filter", Name: "Paper Filter 100pcs", Price: 45_000, Quantity: 1, SellerID: "seller-brew", SellerName: "Brew Supply", Stock: 30},
	)
	return src
}

func demoAddresses() *user.MemoryBook {
	book := user.NewMemoryBook()
	book.Put(demoUser,
		user.Address{ID: "addr-home", Label: "Home", ReceiverName: "Demo", City: "Jakarta Selatan", DistrictID: "3174", WardCode: "317401", IsDefault: true},
		user.Address{ID: "addr-office", Label: "Office", ReceiverName: "Demo", City: "Bandung", DistrictID: "3273", WardCode: "327301"},
	)
	return book
}

func demoVouchers() *voucher.LocalService {
	return voucher.NewLocalService(
		voucher.Voucher{ID: "v-plat-10", Code: "HEMAT10", Type: voucher.TypeOrder, IssuerType: voucher.IssuerPlatform, DiscountUnit: voucher.UnitPercent, DiscountValue: 1000, MaxDiscount: 50_000},
		voucher.Voucher{ID: "v-plat-ongkir", Code: "ONGKIR", Type: voucher.TypeFreeship, IssuerType: voucher.IssuerPlatform, DiscountUnit: voucher.UnitAmount, DiscountValue: 20_000},
		voucher.Voucher{ID: "v-gayo-15", Code: "GAYO15K", Type: voucher.TypeOrder, IssuerType: voucher.IssuerShop, IssuerID: "seller-gayo", IssuerName: "Gayo Roastery", DiscountUnit: voucher.UnitAmount, DiscountValue: 15_000, MinOrderValue: pricing.Money(100_000)},
		voucher.Voucher{ID: "v-brew-ship", Code: "BREWSHIP", Type: voucher.TypeFreeship, IssuerType: voucher.IssuerShop, IssuerID: "seller-brew", IssuerName: "Brew Supply", DiscountUnit: voucher.UnitAmount, DiscountValue: 10_000},
	)
}
