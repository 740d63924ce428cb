package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CheckoutSessionsStarted counts checkout sessions opened.
	CheckoutSessionsStarted prometheus.Counter
	// VoucherApplyTotal counts voucher applications by issuer, type and outcome.
	VoucherApplyTotal *prometheus.CounterVec
	// ShippingRefreshTotal counts shipping fee refresh outcomes.
	ShippingRefreshTotal *prometheus.CounterVec
	// OrderPlaceTotal counts order placement outcomes per payment kind.
	OrderPlaceTotal *prometheus.CounterVec
	// WebhookDeliveriesTotal tracks webhook dispatch outcomes.
	WebhookDeliveriesTotal *prometheus.CounterVec
	// WebhookAttemptLatency records delivery attempt latency in milliseconds.
	WebhookAttemptLatency *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CheckoutSessionsStarted = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_sessions_started_total",
			Help:      "Number of checkout sessions opened.",
		})
		VoucherApplyTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voucher_apply_total",
			Help:      "Count of voucher applications by outcome.",
		}, []string{"issuer", "type", "result"})
		ShippingRefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shipping_refresh_total",
			Help:      "Count of shipping fee refreshes by outcome.",
		}, []string{"result"})
		OrderPlaceTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_place_total",
			Help:      "Count of order placements by payment kind and outcome.",
		}, []string{"payment_kind", "result"})
		WebhookDeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Count of webhook delivery outcomes.",
		}, []string{"result"})
		WebhookAttemptLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_attempt_duration_ms",
			Help:      "Latency for webhook delivery attempts in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"result"})

		mustRegisterCollector(reg, CheckoutSessionsStarted, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				CheckoutSessionsStarted = v
			}
		})
		mustRegisterCollector(reg, VoucherApplyTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				VoucherApplyTotal = v
			}
		})
		mustRegisterCollector(reg, ShippingRefreshTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ShippingRefreshTotal = v
			}
		})
		mustRegisterCollector(reg, OrderPlaceTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				OrderPlaceTotal = v
			}
		})
		mustRegisterCollector(reg, WebhookDeliveriesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				WebhookDeliveriesTotal = v
			}
		})
		mustRegisterCollector(reg, WebhookAttemptLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				WebhookAttemptLatency = v
			}
		})
	})
}

// Outcome maps an error to the result label used by domain counters.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// IncSessionStarted is a no-op until MustRegisterDomainMetrics has run.
func IncSessionStarted() {
	if CheckoutSessionsStarted != nil {
		CheckoutSessionsStarted.Inc()
	}
}

// IncVoucherApply records a voucher application outcome.
func IncVoucherApply(issuer, voucherType, result string) {
	if VoucherApplyTotal != nil {
		VoucherApplyTotal.WithLabelValues(issuer, voucherType, result).Inc()
	}
}

// IncShippingRefresh records a shipping refresh outcome.
func IncShippingRefresh(result string) {
	if ShippingRefreshTotal != nil {
		ShippingRefreshTotal.WithLabelValues(result).Inc()
	}
}

// IncOrderPlace records an order placement outcome.
func IncOrderPlace(paymentKind, result string) {
	if OrderPlaceTotal != nil {
		OrderPlaceTotal.WithLabelValues(paymentKind, result).Inc()
	}
}

// ObserveWebhookDelivery records one webhook attempt.
func ObserveWebhookDelivery(result string, latencyMs float64) {
	if WebhookDeliveriesTotal != nil {
		WebhookDeliveriesTotal.WithLabelValues(result).Inc()
	}
	if WebhookAttemptLatency != nil {
		WebhookAttemptLatency.WithLabelValues(result).Observe(latencyMs)
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register metric: %w", err))
	}
}
