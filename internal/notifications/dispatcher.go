package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/fulfillment-backend/internal/activity"
	"github.com/angelmondragon/fulfillment-backend/pkg/broker"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/metrics"
)

// ActionFailed is the activity log action written when a notification cannot
// be handed to the broker.
const ActionFailed = "notification.failed"

// Notifier hands notifications to the delivery pipeline. It never reports
// failures to the caller.
type Notifier interface {
	Notify(ctx context.Context, notes ...Notification)
}

// Notification is one outbound message decision. SubjectType and SubjectID
// name the record the message is about.
type Notification struct {
	Channel     enums.NotificationChannel
	Recipient   string
	Template    Template
	SubjectType string
	SubjectID   uuid.UUID
	Data        map[string]any
}

type wireNotification struct {
	ID          uuid.UUID      `json:"id"`
	Channel     string         `json:"channel"`
	Recipient   string         `json:"recipient"`
	Template    string         `json:"template"`
	SubjectType string         `json:"subject_type"`
	SubjectID   uuid.UUID      `json:"subject_id"`
	Data        map[string]any `json:"data,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

type publisher interface {
	Publish(ctx context.Context, msg broker.Message) error
}

type activityRecorder interface {
	Record(ctx context.Context, entry activity.Entry) error
}

// Dispatcher publishes notifications to the broker's notification topic.
type Dispatcher struct {
	publisher publisher
	topic     string
	activity  activityRecorder
	metrics   *metrics.FulfillmentMetrics
	logg      *logger.Logger
	now       func() time.Time
}

// NewDispatcher builds a broker-backed notifier.
func NewDispatcher(pub publisher, topic string, recorder activityRecorder, m *metrics.FulfillmentMetrics, logg *logger.Logger) (*Dispatcher, error) {
	if pub == nil {
		return nil, fmt.Errorf("notification publisher required")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, fmt.Errorf("notification topic required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("activity recorder required")
	}
	return &Dispatcher{
		publisher: pub,
		topic:     topic,
		activity:  recorder,
		metrics:   m,
		logg:      logg,
		now:       time.Now,
	}, nil
}

// Notify publishes each notification. Callers invoke it after their
// transaction commits; failures are logged and recorded, never returned.
func (d *Dispatcher) Notify(ctx context.Context, notes ...Notification) {
	var errs error
	for _, note := range notes {
		if err := d.send(ctx, note); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s to %s: %w", note.Template, note.Recipient, err))
			d.recordFailure(ctx, note, err)
		}
	}
	if errs != nil {
		failed := multierr.Errors(errs)
		logCtx := d.logg.WithFields(ctx, map[string]any{
			"failed": len(failed),
			"total":  len(notes),
			"error":  errs.Error(),
		})
		d.logg.Warn(logCtx, "notification.dispatch_incomplete")
	}
}

func (d *Dispatcher) send(ctx context.Context, note Notification) error {
	if !note.Channel.IsValid() {
		return fmt.Errorf("invalid channel %q", note.Channel)
	}
	if strings.TrimSpace(note.Recipient) == "" {
		return fmt.Errorf("recipient required")
	}
	if note.Template == "" {
		return fmt.Errorf("template required")
	}

	body, err := json.Marshal(wireNotification{
		ID:          uuid.New(),
		Channel:     string(note.Channel),
		Recipient:   note.Recipient,
		Template:    string(note.Template),
		SubjectType: note.SubjectType,
		SubjectID:   note.SubjectID,
		Data:        note.Data,
		CreatedAt:   d.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	return d.publisher.Publish(ctx, broker.Message{
		Topic: d.topic,
		Key:   note.Recipient,
		Data:  body,
		Attributes: map[string]string{
			"template": string(note.Template),
			"channel":  string(note.Channel),
		},
	})
}

func (d *Dispatcher) recordFailure(ctx context.Context, note Notification, cause error) {
	d.metrics.NotificationFailed(string(note.Template))
	logCtx := d.logg.WithFields(ctx, map[string]any{
		"template":     string(note.Template),
		"channel":      string(note.Channel),
		"subject_type": note.SubjectType,
		"subject_id":   note.SubjectID.String(),
		"error":        cause.Error(),
	})
	d.logg.Warn(logCtx, "notification.failed")

	if note.SubjectType == "" || note.SubjectID == uuid.Nil {
		return
	}
	err := d.activity.Record(ctx, activity.Entry{
		SubjectType: note.SubjectType,
		SubjectID:   note.SubjectID,
		Action:      ActionFailed,
		Metadata: map[string]any{
			"template":  string(note.Template),
			"channel":   string(note.Channel),
			"recipient": note.Recipient,
			"error":     cause.Error(),
		},
	})
	if err != nil {
		d.logg.Error(logCtx, "record notification failure", err)
	}
}
