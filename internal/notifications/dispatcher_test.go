package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/fulfillment-backend/internal/activity"
	"github.com/angelmondragon/fulfillment-backend/pkg/broker"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/dbtest"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/metrics"
	"github.com/angelmondragon/fulfillment-backend/pkg/types"
)

type fakePublisher struct {
	publishFn func(ctx context.Context, msg broker.Message) error
	messages  []broker.Message
}

func (f *fakePublisher) Publish(ctx context.Context, msg broker.Message) error {
	if f.publishFn != nil {
		if err := f.publishFn(ctx, msg); err != nil {
			return err
		}
	}
	f.messages = append(f.messages, msg)
	return nil
}

type fakeRecorder struct {
	entries []activity.Entry
}

func (f *fakeRecorder) Record(ctx context.Context, entry activity.Entry) error {
	f.entries = append(f.entries, entry)
	return nil
}

func TestNewDispatcherValidatesDependencies(t *testing.T) {
	_, err := NewDispatcher(nil, "topic", &fakeRecorder{}, nil, nil)
	assert.Error(t, err)
	_, err = NewDispatcher(&fakePublisher{}, " ", &fakeRecorder{}, nil, nil)
	assert.Error(t, err)
	_, err = NewDispatcher(&fakePublisher{}, "topic", nil, nil, nil)
	assert.Error(t, err)
}

func TestNotifyPublishesToTopic(t *testing.T) {
	pub := &fakePublisher{}
	d, err := NewDispatcher(pub, "fulfillment-notifications", &fakeRecorder{}, nil, logger.Nop())
	require.NoError(t, err)

	po := models.PurchaseOrder{
		ID:                uuid.New(),
		SupplierID:        uuid.New(),
		SupplierReference: "PO-ABCD2345",
		AmountOwedMinor:   750000,
	}
	d.Notify(context.Background(), PurchaseOrderCreated(po, &models.SupplierPayoutProfile{ContactEmail: "ops@supplier.test"}))

	require.Len(t, pub.messages, 1)
	msg := pub.messages[0]
	assert.Equal(t, "fulfillment-notifications", msg.Topic)
	assert.Equal(t, "ops@supplier.test", msg.Key)
	assert.Equal(t, string(TemplatePurchaseOrderCreated), msg.Attributes["template"])
	assert.Equal(t, "email", msg.Attributes["channel"])

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Data, &body))
	data := body["data"].(map[string]any)
	assert.Equal(t, "7500.00", data["amount_owed"])
	assert.Equal(t, "PO-ABCD2345", data["supplier_reference"])
}

func TestNotifyRecordsFailuresWithoutPropagating(t *testing.T) {
	pub := &fakePublisher{publishFn: func(ctx context.Context, msg broker.Message) error {
		if msg.Key == AdminRecipient {
			return errors.New("broker unavailable")
		}
		return nil
	}}
	recorder := &fakeRecorder{}
	reg := prometheus.NewRegistry()
	d, err := NewDispatcher(pub, "topic", recorder, metrics.NewFulfillmentMetrics(reg), logger.Nop())
	require.NoError(t, err)

	refund := models.Refund{
		ID:              uuid.New(),
		PurchaseOrderID: uuid.New(),
		SupplierID:      uuid.New(),
		RequestedBy:     uuid.New(),
		Status:          enums.RefundStatusSupplierReview,
		Reason:          "damaged",
		TotalMinor:      1200,
	}
	d.Notify(context.Background(), RefundRequested(refund, nil)...)

	require.Len(t, pub.messages, 1)
	assert.Equal(t, "supplier:"+refund.SupplierID.String(), pub.messages[0].Key)

	require.Len(t, recorder.entries, 1)
	entry := recorder.entries[0]
	assert.Equal(t, ActionFailed, entry.Action)
	assert.Equal(t, activity.SubjectRefund, entry.SubjectType)
	assert.Equal(t, refund.ID, entry.SubjectID)
	assert.Equal(t, "broker unavailable", entry.Metadata["error"])

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() != "notification_failures_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			if m.GetCounter().GetValue() == 1 {
				found = true
			}
		}
	}
	assert.True(t, found)
}

func TestNotifyRejectsInvalidNotification(t *testing.T) {
	pub := &fakePublisher{}
	recorder := &fakeRecorder{}
	d, err := NewDispatcher(pub, "topic", recorder, nil, logger.Nop())
	require.NoError(t, err)

	d.Notify(context.Background(), Notification{
		Channel:     enums.NotificationChannel("pigeon"),
		Recipient:   "someone",
		Template:    TemplateOrderCanceled,
		SubjectType: activity.SubjectOrder,
		SubjectID:   uuid.New(),
	})
	assert.Empty(t, pub.messages)
	assert.Len(t, recorder.entries, 1)
}

func TestNotifyFailureLandsInActivityLog(t *testing.T) {
	conn := dbtest.Open(t)
	pub := &fakePublisher{publishFn: func(ctx context.Context, msg broker.Message) error {
		return errors.New("timeout")
	}}
	d, err := NewDispatcher(pub, "topic", activity.NewRepository(conn), nil, logger.Nop())
	require.NoError(t, err)

	order := models.Order{ID: uuid.New(), CustomerID: uuid.New(), TotalMinor: 1500000}
	d.Notify(context.Background(), OrderCanceled(order))

	logs, err := activity.NewRepository(conn).ListForSubject(context.Background(), activity.SubjectOrder, order.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, ActionFailed, logs[0].Action)
	assert.Contains(t, string(logs[0].Metadata), "timeout")
}

func TestCustomerPhoneRecipient(t *testing.T) {
	phone := "+2348000000000"
	order := &models.Order{CustomerID: uuid.New(), ShippingAddress: &types.Address{Phone: &phone}}
	channel, recipient := CustomerPhoneRecipient(order)
	assert.Equal(t, enums.NotificationChannelSMS, channel)
	assert.Equal(t, phone, recipient)

	order.ShippingAddress = nil
	channel, recipient = CustomerPhoneRecipient(order)
	assert.Equal(t, enums.NotificationChannelInApp, channel)
	assert.Equal(t, "user:"+order.CustomerID.String(), recipient)
}
