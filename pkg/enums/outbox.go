package enums

import (
	"fmt"
	"slices"
)

// OutboxAggregateType is the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateOrder          OutboxAggregateType = "order"
	AggregatePurchaseOrder  OutboxAggregateType = "purchase_order"
	AggregateRefund         OutboxAggregateType = "refund"
	AggregateSupplierLedger OutboxAggregateType = "supplier_ledger"
)

func (a OutboxAggregateType) IsValid() bool {
	return slices.ContainsFunc(outboxEventTypes, func(t OutboxEventType) bool { return eventAggregates[t] == a })
}

// OutboxEventType is the event_type column of outbox_events.
type OutboxEventType string

const (
	EventOrderPaid            OutboxEventType = "order_paid"
	EventOrderCanceled        OutboxEventType = "order_canceled"
	EventPurchaseOrderCreated OutboxEventType = "purchase_order_created"
	EventPurchaseOrderShipped OutboxEventType = "purchase_order_shipped"
	EventDeliveryCodeIssued   OutboxEventType = "delivery_code_issued"
	EventDeliveryConfirmed    OutboxEventType = "delivery_confirmed"
	EventPayoutReleased       OutboxEventType = "payout_released"
	EventRefundRequested      OutboxEventType = "refund_requested"
	EventRefundResponded      OutboxEventType = "refund_responded"
	EventRefundClosed         OutboxEventType = "refund_closed"
	EventLedgerEntryRecorded  OutboxEventType = "ledger_entry_recorded"
)

var outboxEventTypes = []OutboxEventType{
	EventOrderPaid,
	EventOrderCanceled,
	EventPurchaseOrderCreated,
	EventPurchaseOrderShipped,
	EventDeliveryCodeIssued,
	EventDeliveryConfirmed,
	EventPayoutReleased,
	EventRefundRequested,
	EventRefundResponded,
	EventRefundClosed,
	EventLedgerEntryRecorded,
}

// eventAggregates fixes the aggregate every event type is recorded against.
var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventOrderPaid:            AggregateOrder,
	EventOrderCanceled:        AggregateOrder,
	EventPurchaseOrderCreated: AggregatePurchaseOrder,
	EventPurchaseOrderShipped: AggregatePurchaseOrder,
	EventDeliveryCodeIssued:   AggregatePurchaseOrder,
	EventDeliveryConfirmed:    AggregatePurchaseOrder,
	EventPayoutReleased:       AggregatePurchaseOrder,
	EventRefundRequested:      AggregateRefund,
	EventRefundResponded:      AggregateRefund,
	EventRefundClosed:         AggregateRefund,
	EventLedgerEntryRecorded:  AggregateSupplierLedger,
}

func (e OutboxEventType) IsValid() bool {
	return slices.Contains(outboxEventTypes, e)
}

// Aggregate returns the aggregate type e belongs to, or "" for unknown types.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregates[e]
}

// OutboxEventTypes lists every known event type in declaration order.
func OutboxEventTypes() []OutboxEventType {
	return slices.Clone(outboxEventTypes)
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	if e := OutboxEventType(value); e.IsValid() {
		return e, nil
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}
