package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CommerceMetrics counts checkout pipeline outcomes.
type CommerceMetrics struct {
	quotes        *prometheus.CounterVec
	checkouts     *prometheus.CounterVec
	webhookEvents *prometheus.CounterVec
	redemptions   *prometheus.CounterVec
}

// NewCommerceMetrics registers the commerce counters on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewCommerceMetrics(reg prometheus.Registerer) *CommerceMetrics {
	if reg == nil {
		return &CommerceMetrics{}
	}
	quotes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_quotes_total",
		Help: "Delivery quote resolutions by kind.",
	}, []string{"kind"})
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_sessions_total",
		Help: "Checkout session attempts by outcome.",
	}, []string{"outcome"})
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stripe_webhook_events_total",
		Help: "Stripe webhook events by type and outcome.",
	}, []string{"type", "outcome"})
	redemptions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "referral_redemptions_total",
		Help: "Referral redemption attempts by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(quotes, checkouts, webhookEvents, redemptions)
	return &CommerceMetrics{
		quotes:        quotes,
		checkouts:     checkouts,
		webhookEvents: webhookEvents,
		redemptions:   redemptions,
	}
}

func (m *CommerceMetrics) IncQuote(kind string) {
	if m == nil || m.quotes == nil {
		return
	}
	m.quotes.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *CommerceMetrics) IncCheckout(outcome string) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *CommerceMetrics) IncWebhookEvent(eventType, outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func (m *CommerceMetrics) IncRedemption(outcome string) {
	if m == nil || m.redemptions == nil {
		return
	}
	m.redemptions.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
