package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// FulfillmentMetrics counts the money-moving and verification outcomes of the
// fulfillment services. A nil receiver records nothing.
type FulfillmentMetrics struct {
	ordersSplit          prometheus.Counter
	purchaseOrders       prometheus.Counter
	codesIssued          prometheus.Counter
	codeVerifications    *prometheus.CounterVec
	payoutsReleased      prometheus.Counter
	payoutAmountMinor    prometheus.Counter
	payoutRejections     *prometheus.CounterVec
	refunds              *prometheus.CounterVec
	ledgerEntries        *prometheus.CounterVec
	notificationFailures *prometheus.CounterVec
}

// NewFulfillmentMetrics registers the fulfillment metrics on the provided registerer.
func NewFulfillmentMetrics(reg prometheus.Registerer) *FulfillmentMetrics {
	if reg == nil {
		return &FulfillmentMetrics{}
	}
	m := &FulfillmentMetrics{
		ordersSplit: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_split_total",
			Help: "Paid orders split into purchase orders.",
		}),
		purchaseOrders: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "purchase_orders_created_total",
			Help: "Purchase orders created by the splitter.",
		}),
		codesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "delivery_codes_issued_total",
			Help: "Delivery codes issued.",
		}),
		codeVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "delivery_code_verifications_total",
			Help: "Delivery code verification attempts by outcome.",
		}, []string{"outcome"}),
		payoutsReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payouts_released_total",
			Help: "Supplier allocations transitioned to paid.",
		}),
		payoutAmountMinor: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payouts_released_minor_units_total",
			Help: "Sum of released allocation amounts in minor units.",
		}),
		payoutRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payout_rejections_total",
			Help: "Payout release attempts rejected by reason.",
		}, []string{"reason"}),
		refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "refund_transitions_total",
			Help: "Refund status transitions by resulting status.",
		}, []string{"status"}),
		ledgerEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "supplier_ledger_entries_total",
			Help: "Supplier ledger entries written by type.",
		}, []string{"type"}),
		notificationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_failures_total",
			Help: "Notifications that could not be handed to the broker.",
		}, []string{"template"}),
	}
	reg.MustRegister(
		m.ordersSplit,
		m.purchaseOrders,
		m.codesIssued,
		m.codeVerifications,
		m.payoutsReleased,
		m.payoutAmountMinor,
		m.payoutRejections,
		m.refunds,
		m.ledgerEntries,
		m.notificationFailures,
	)
	return m
}

func (m *FulfillmentMetrics) OrderSplit(created int) {
	if m == nil || m.ordersSplit == nil {
		return
	}
	m.ordersSplit.Inc()
	if created > 0 {
		m.purchaseOrders.Add(float64(created))
	}
}

func (m *FulfillmentMetrics) CodeIssued() {
	if m == nil || m.codesIssued == nil {
		return
	}
	m.codesIssued.Inc()
}

func (m *FulfillmentMetrics) CodeVerification(outcome string) {
	if m == nil || m.codeVerifications == nil {
		return
	}
	m.codeVerifications.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *FulfillmentMetrics) PayoutReleased(amountMinor int64) {
	if m == nil || m.payoutsReleased == nil {
		return
	}
	m.payoutsReleased.Inc()
	if amountMinor > 0 {
		m.payoutAmountMinor.Add(float64(amountMinor))
	}
}

func (m *FulfillmentMetrics) PayoutRejected(reason string) {
	if m == nil || m.payoutRejections == nil {
		return
	}
	m.payoutRejections.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *FulfillmentMetrics) RefundTransition(status string) {
	if m == nil || m.refunds == nil {
		return
	}
	m.refunds.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *FulfillmentMetrics) LedgerEntry(entryType string) {
	if m == nil || m.ledgerEntries == nil {
		return
	}
	m.ledgerEntries.WithLabelValues(normalizeLabel(entryType)).Inc()
}

func (m *FulfillmentMetrics) NotificationFailed(template string) {
	if m == nil || m.notificationFailures == nil {
		return
	}
	m.notificationFailures.WithLabelValues(normalizeLabel(template)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
