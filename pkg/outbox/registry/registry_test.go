package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/pkg/config"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/fulfillment-backend/pkg/types"
)

var testTopics = config.PubSubConfig{
	OrdersTopic:       "orders-topic",
	PayoutsTopic:      "payouts-topic",
	RefundsTopic:      "refunds-topic",
	NotificationTopic: "notification-topic",
}

func TestResolveDecodesTypedPayload(t *testing.T) {
	reg := mustRegistry(t)
	allocationID := uuid.New()
	data, err := json.Marshal(payloads.PayoutReleasedEvent{
		PurchaseOrderID: uuid.New(),
		AllocationID:    allocationID,
		SupplierID:      uuid.New(),
		AmountMinor:     1500000,
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	resolved, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventPayoutReleased,
		AggregateType: enums.AggregatePurchaseOrder,
		AggregateID:   uuid.New(),
		Payload:       envelopeJSON(t, 1, data),
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Descriptor.Topic != "payouts-topic" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
	payload, ok := resolved.Payload.(*payloads.PayoutReleasedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if payload.AllocationID != allocationID || payload.AmountMinor != 1500000 {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if resolved.Envelope.EventID == "" || resolved.Envelope.OccurredAt.IsZero() {
		t.Fatalf("envelope metadata lost: %+v", resolved.Envelope)
	}
}

func TestEveryEventTypeIsRouted(t *testing.T) {
	reg := mustRegistry(t)
	want := map[enums.OutboxEventType]string{
		enums.EventOrderPaid:            "orders-topic",
		enums.EventOrderCanceled:        "orders-topic",
		enums.EventPurchaseOrderCreated: "orders-topic",
		enums.EventPurchaseOrderShipped: "orders-topic",
		enums.EventDeliveryCodeIssued:   "orders-topic",
		enums.EventDeliveryConfirmed:    "orders-topic",
		enums.EventPayoutReleased:       "payouts-topic",
		enums.EventLedgerEntryRecorded:  "payouts-topic",
		enums.EventRefundRequested:      "refunds-topic",
		enums.EventRefundResponded:      "refunds-topic",
		enums.EventRefundClosed:         "refunds-topic",
	}
	for _, eventType := range enums.OutboxEventTypes() {
		desc, ok := reg.Descriptor(eventType)
		if !ok {
			t.Fatalf("%s not registered", eventType)
		}
		if desc.Topic != want[eventType] {
			t.Fatalf("%s routed to %q, want %q", eventType, desc.Topic, want[eventType])
		}
		if desc.AggregateType != eventType.Aggregate() {
			t.Fatalf("%s registered against %s", eventType, desc.AggregateType)
		}
	}
}

func TestResolveRejectsRowsPermanently(t *testing.T) {
	reg := mustRegistry(t)
	cases := map[string]models.OutboxEvent{
		"unknown event type": {
			EventType:     enums.OutboxEventType("inventory_synced"),
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       envelopeJSON(t, 1, []byte(`{"reason":"none"}`)),
		},
		"aggregate mismatch": {
			EventType:     enums.EventRefundRequested,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       envelopeJSON(t, 1, []byte(`{}`)),
		},
		"missing aggregate id": {
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			Payload:       envelopeJSON(t, 1, []byte(`{}`)),
		},
		"null payload": {
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       envelopeJSON(t, 1, []byte("null")),
		},
		"future envelope": {
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       envelopeJSON(t, maxEnvelopeVersion+1, []byte(`{}`)),
		},
		"garbage envelope": {
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       types.JSON(`[1,2`),
		},
	}
	for name, row := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(row)
			var nonRetry NonRetryableError
			if !errors.As(err, &nonRetry) {
				t.Fatalf("expected non-retryable error, got %v", err)
			}
		})
	}
}

func TestNewEventRegistryRequiresTopics(t *testing.T) {
	if _, err := NewEventRegistry(config.PubSubConfig{OrdersTopic: "orders"}); err == nil {
		t.Fatalf("expected error for missing topics")
	}
}

func mustRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(testTopics)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func envelopeJSON(t *testing.T, version int, data []byte) types.JSON {
	t.Helper()
	raw, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    version,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return types.JSON(raw)
}
