package metrics

import (
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestMarketplaceMetricsExportCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMarketplaceMetrics(reg)

	m.IncOrdersCreated()
	m.IncOrdersCreated()
	m.IncSettlementCallback(SettlementOutcomeAccepted)
	m.IncSettlementCallback(SettlementOutcomeDuplicate)
	m.IncSettlementCallback(SettlementOutcomeDuplicate)
	m.IncOutboxPublished()
	m.IncOutboxFailure()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got := counterValue(t, mfs, "orders_created_total", "", ""); got != 2 {
		t.Fatalf("expected orders_created_total=2, got %f", got)
	}
	if got := counterValue(t, mfs, "settlement_callbacks_total", "outcome", SettlementOutcomeAccepted); got != 1 {
		t.Fatalf("expected accepted=1, got %f", got)
	}
	if got := counterValue(t, mfs, "settlement_callbacks_total", "outcome", SettlementOutcomeDuplicate); got != 2 {
		t.Fatalf("expected duplicate=2, got %f", got)
	}
	if got := counterValue(t, mfs, "outbox_events_published_total", "", ""); got != 1 {
		t.Fatalf("expected published=1, got %f", got)
	}
	if got := counterValue(t, mfs, "outbox_publish_failures_total", "", ""); got != 1 {
		t.Fatalf("expected failures=1, got %f", got)
	}
}

func TestMarketplaceMetricsNilSafe(t *testing.T) {
	var m *MarketplaceMetrics
	m.IncOrdersCreated()
	m.IncSettlementCallback("")

	unregistered := NewMarketplaceMetrics(nil)
	unregistered.IncOrdersCreated()
	unregistered.IncOutboxPublished()
}

func counterValue(t *testing.T, mfs []*dto.MetricFamily, name, label, value string) float64 {
	t.Helper()
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if label == "" {
				return metric.GetCounter().GetValue()
			}
			for _, pair := range metric.GetLabel() {
				if pair.GetName() == label && pair.GetValue() == value {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s not found", fmt.Sprintf("%s{%s=%q}", name, label, value))
	return 0
}
