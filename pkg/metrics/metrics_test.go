package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestFulfillmentMetricsExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewFulfillmentMetrics(reg)

	m.OrderSplit(2)
	m.PayoutReleased(150000)
	m.PayoutRejected("not_delivered")
	m.PayoutRejected("not_delivered")
	m.CodeVerification("")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got := fetchPlainCounter(t, mfs, "purchase_orders_created_total"); got != 2 {
		t.Fatalf("expected 2 purchase orders, got %f", got)
	}
	if got := fetchPlainCounter(t, mfs, "payouts_released_minor_units_total"); got != 150000 {
		t.Fatalf("expected released amount 150000, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "payout_rejections_total", "reason", "not_delivered"); err != nil {
		t.Fatalf("fetch rejections: %v", err)
	} else if got != 2 {
		t.Fatalf("expected 2 rejections, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "delivery_code_verifications_total", "outcome", "unknown"); err != nil {
		t.Fatalf("fetch verifications: %v", err)
	} else if got != 1 {
		t.Fatalf("expected unknown outcome=1, got %f", got)
	}
}

func TestOutboxMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.ObservePublish("payout_released", 250*time.Millisecond)
	m.IncFailure("payout_released")
	m.IncDeadLetter("max_attempts")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "outbox_published_total", "event_type", "payout_released"); err != nil {
		t.Fatalf("fetch published: %v", err)
	} else if got != 1 {
		t.Fatalf("expected published=1, got %f", got)
	}
	if got, err := fetchHistogramSum(mfs, "outbox_publish_duration_seconds", "event_type", "payout_released"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "outbox_dead_lettered_total", "reason", "max_attempts"); err != nil {
		t.Fatalf("fetch dlq: %v", err)
	} else if got != 1 {
		t.Fatalf("expected dlq=1, got %f", got)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var f *FulfillmentMetrics
	f.PayoutReleased(1)
	f.RefundTransition("CLOSED")
	var o *OutboxMetrics
	o.IncFailure("x")
	NewFulfillmentMetrics(nil).LedgerEntry("refund_debit")
}

func fetchPlainCounter(t *testing.T, mfs []*dto.MetricFamily, name string) float64 {
	t.Helper()
	mf := findMetricFamily(mfs, name)
	if mf == nil || len(mf.GetMetric()) == 0 {
		t.Fatalf("metric %q not found", name)
	}
	return mf.GetMetric()[0].GetCounter().GetValue()
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
