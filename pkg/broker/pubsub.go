package broker

import (
	"context"
	"errors"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/fulfillment-backend/pkg/pubsub"
)

// topicPublisher is the slice of *pubsub.Publisher used here.
type topicPublisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	ResumePublish(orderingKey string)
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// PubSubPublisher keys messages by aggregate so events for one purchase
// order arrive in the order they were committed.
type PubSubPublisher struct {
	client *pubsub.Client
	topic  func(name string) topicPublisher
}

func NewPubSubPublisher(client *pubsub.Client) *PubSubPublisher {
	return &PubSubPublisher{
		client: client,
		topic: func(name string) topicPublisher {
			pub := client.Publisher(name)
			if pub == nil {
				return nil
			}
			return gcpTopic{pub}
		},
	}
}

// Publish waits for the server ack. A failed ordering key is resumed so the
// next attempt for that aggregate is not rejected outright.
func (p *PubSubPublisher) Publish(ctx context.Context, msg Message) error {
	if msg.Topic == "" {
		return ErrTopicRequired
	}
	pub := p.topic(msg.Topic)
	if pub == nil {
		return fmt.Errorf("no publisher for topic %s", msg.Topic)
	}
	result := pub.Publish(ctx, &gcppubsub.Message{
		Data:        msg.Data,
		Attributes:  msg.Attributes,
		OrderingKey: msg.Key,
	})
	if _, err := result.Get(ctx); err != nil {
		if msg.Key != "" {
			pub.ResumePublish(msg.Key)
		}
		return fmt.Errorf("publish to %s: %w", msg.Topic, err)
	}
	return nil
}

func (p *PubSubPublisher) Ping(ctx context.Context) error {
	if p.client == nil {
		return errors.New("pubsub client not initialized")
	}
	return p.client.Ping(ctx)
}

func (p *PubSubPublisher) Close() error {
	return p.client.Close()
}

type gcpTopic struct {
	*gcppubsub.Publisher
}

func (t gcpTopic) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return t.Publisher.Publish(ctx, msg)
}
