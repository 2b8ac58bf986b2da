package metrics

import "github.com/prometheus/client_golang/prometheus"

// Settlement callback outcomes.
const (
	SettlementOutcomeAccepted  = "accepted"
	SettlementOutcomeDuplicate = "duplicate"
	SettlementOutcomeRejected  = "rejected"
)

// MarketplaceMetrics records order and settlement activity.
type MarketplaceMetrics struct {
	ordersCreated       prometheus.Counter
	settlementCallbacks *prometheus.CounterVec
	outboxPublished     prometheus.Counter
	outboxFailures      prometheus.Counter
}

// NewMarketplaceMetrics registers the marketplace metrics on the provided registerer.
func NewMarketplaceMetrics(reg prometheus.Registerer) *MarketplaceMetrics {
	if reg == nil {
		return &MarketplaceMetrics{}
	}
	ordersCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Orders successfully created.",
	})
	settlementCallbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_callbacks_total",
		Help: "Payment settlement callbacks by outcome.",
	}, []string{"outcome"})
	outboxPublished := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_events_published_total",
		Help: "Outbox events successfully published.",
	})
	outboxFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_publish_failures_total",
		Help: "Outbox publish attempts that failed.",
	})
	reg.MustRegister(ordersCreated, settlementCallbacks, outboxPublished, outboxFailures)
	return &MarketplaceMetrics{
		ordersCreated:       ordersCreated,
		settlementCallbacks: settlementCallbacks,
		outboxPublished:     outboxPublished,
		outboxFailures:      outboxFailures,
	}
}

// IncOrdersCreated increments the created-orders counter.
func (m *MarketplaceMetrics) IncOrdersCreated() {
	if m == nil || m.ordersCreated == nil {
		return
	}
	m.ordersCreated.Inc()
}

// IncSettlementCallback increments the settlement counter for the given outcome.
func (m *MarketplaceMetrics) IncSettlementCallback(outcome string) {
	if m == nil || m.settlementCallbacks == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.settlementCallbacks.WithLabelValues(outcome).Inc()
}

// IncOutboxPublished increments the published-events counter.
func (m *MarketplaceMetrics) IncOutboxPublished() {
	if m == nil || m.outboxPublished == nil {
		return
	}
	m.outboxPublished.Inc()
}

// IncOutboxFailure increments the failed-publish counter.
func (m *MarketplaceMetrics) IncOutboxFailure() {
	if m == nil || m.outboxFailures == nil {
		return
	}
	m.outboxFailures.Inc()
}
