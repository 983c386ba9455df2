// Package broker publishes outbox events and notifications to the configured
// message broker (Google Pub/Sub or Kafka).
package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/fulfillment-backend/pkg/config"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/pubsub"
)

// Message is a broker-neutral record. Key orders messages for the same
// aggregate where the broker supports it.
type Message struct {
	Topic      string
	Key        string
	Data       []byte
	Attributes map[string]string
}

// Publisher delivers a message and waits for the broker acknowledgement.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Ping(ctx context.Context) error
	Close() error
}

var ErrTopicRequired = errors.New("broker topic is required")

// New builds the publisher selected by the outbox broker setting.
func New(ctx context.Context, cfg *config.Config, logg *logger.Logger) (Publisher, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	switch cfg.Outbox.BrokerKind() {
	case config.BrokerKafka:
		return NewKafkaPublisher(cfg.Kafka, logg)
	case config.BrokerPubSub:
		client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			return nil, err
		}
		return NewPubSubPublisher(client), nil
	default:
		return nil, fmt.Errorf("unsupported broker %q", cfg.Outbox.Broker)
	}
}
