// Package registry maps outbox event types to broker topics and decodes the
// typed payload of a stored row.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/pkg/config"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox/payloads"
)

// maxEnvelopeVersion is the newest envelope layout this build can decode.
const maxEnvelopeVersion = 1

type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	decode        func(json.RawMessage) (any, error)
}

type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a row that will fail the same way on every
// attempt and belongs in the dead-letter table.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func permanent(format string, args ...any) error {
	return NonRetryableError{Err: fmt.Errorf(format, args...)}
}

// decoderFor returns a decoder producing *T.
func decoderFor[T any]() func(json.RawMessage) (any, error) {
	return func(raw json.RawMessage) (any, error) {
		payload := new(T)
		if err := json.Unmarshal(raw, payload); err != nil {
			return nil, err
		}
		return payload, nil
	}
}

// NewEventRegistry routes order and purchase order events to the orders
// topic, payout and ledger events to the payouts topic and refund events to
// the refunds topic. Kafka uses the same names.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	var missing []error
	for family, topic := range map[string]string{
		"orders":  cfg.OrdersTopic,
		"payouts": cfg.PayoutsTopic,
		"refunds": cfg.RefundsTopic,
	} {
		if topic == "" {
			missing = append(missing, fmt.Errorf("%s topic is required", family))
		}
	}
	if err := errors.Join(missing...); err != nil {
		return nil, err
	}

	decoders := map[enums.OutboxEventType]func(json.RawMessage) (any, error){
		enums.EventOrderPaid:            decoderFor[payloads.OrderPaidEvent](),
		enums.EventOrderCanceled:        decoderFor[payloads.OrderCanceledEvent](),
		enums.EventPurchaseOrderCreated: decoderFor[payloads.PurchaseOrderCreatedEvent](),
		enums.EventPurchaseOrderShipped: decoderFor[payloads.PurchaseOrderShippedEvent](),
		enums.EventDeliveryCodeIssued:   decoderFor[payloads.DeliveryCodeIssuedEvent](),
		enums.EventDeliveryConfirmed:    decoderFor[payloads.DeliveryConfirmedEvent](),
		enums.EventPayoutReleased:       decoderFor[payloads.PayoutReleasedEvent](),
		enums.EventLedgerEntryRecorded:  decoderFor[payloads.LedgerEntryRecordedEvent](),
		enums.EventRefundRequested:      decoderFor[payloads.RefundRequestedEvent](),
		enums.EventRefundResponded:      decoderFor[payloads.RefundRespondedEvent](),
		enums.EventRefundClosed:         decoderFor[payloads.RefundClosedEvent](),
	}
	topics := map[enums.OutboxAggregateType]string{
		enums.AggregateOrder:          cfg.OrdersTopic,
		enums.AggregatePurchaseOrder:  cfg.OrdersTopic,
		enums.AggregateRefund:         cfg.RefundsTopic,
		enums.AggregateSupplierLedger: cfg.PayoutsTopic,
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(decoders))}
	for _, eventType := range enums.OutboxEventTypes() {
		decode, ok := decoders[eventType]
		if !ok {
			return nil, fmt.Errorf("no payload type registered for %s", eventType)
		}
		aggregate := eventType.Aggregate()
		topic := topics[aggregate]
		if eventType == enums.EventPayoutReleased {
			topic = cfg.PayoutsTopic
		}
		reg.entries[eventType] = EventDescriptor{
			EventType:     eventType,
			AggregateType: aggregate,
			Topic:         topic,
			decode:        decode,
		}
	}
	return reg, nil
}

func (r *EventRegistry) Descriptor(eventType enums.OutboxEventType) (EventDescriptor, bool) {
	desc, ok := r.entries[eventType]
	return desc, ok
}

// Resolve checks the row against its descriptor and decodes the payload.
// Every failure is permanent.
func (r *EventRegistry) Resolve(row models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[row.EventType]
	switch {
	case !ok:
		return nil, permanent("unsupported event type %s", row.EventType)
	case desc.AggregateType != row.AggregateType:
		return nil, permanent("aggregate mismatch: %s belongs to %s, row says %s", row.EventType, desc.AggregateType, row.AggregateType)
	case row.AggregateID == uuid.Nil:
		return nil, permanent("missing aggregate_id")
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(row.Payload, &envelope); err != nil {
		return nil, permanent("decode envelope: %w", err)
	}
	if envelope.Version > maxEnvelopeVersion {
		return nil, permanent("envelope version %d not supported", envelope.Version)
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, permanent("payload missing for %s", row.EventType)
	}

	payload, err := desc.decode(data)
	if err != nil {
		return nil, permanent("decode %s payload: %w", row.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
