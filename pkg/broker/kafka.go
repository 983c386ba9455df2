package broker

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/angelmondragon/fulfillment-backend/pkg/config"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes to Kafka with one shared writer; the topic is set per message.
type KafkaPublisher struct {
	writer  messageWriter
	brokers []string
	now     func() time.Time
}

func NewKafkaPublisher(cfg config.KafkaConfig, logg *logger.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		WriteTimeout: cfg.WriteTimeout,
		Transport:    &kafka.Transport{ClientID: cfg.ClientID},
	}
	logg.Info(logg.WithField(context.Background(), "brokers", cfg.Brokers), "kafka writer initialized")
	return &KafkaPublisher{writer: writer, brokers: cfg.Brokers, now: time.Now}, nil
}

func (k *KafkaPublisher) Publish(ctx context.Context, msg Message) error {
	if msg.Topic == "" {
		return ErrTopicRequired
	}
	headers := make([]kafka.Header, 0, len(msg.Attributes))
	for key, value := range msg.Attributes {
		headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Topic:   msg.Topic,
		Key:     []byte(msg.Key),
		Value:   msg.Data,
		Headers: headers,
		Time:    k.now().UTC(),
	})
}

// Ping dials the first reachable broker.
func (k *KafkaPublisher) Ping(ctx context.Context) error {
	var lastErr error
	for _, addr := range k.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	if lastErr == nil {
		lastErr = errors.New("kafka brokers are required")
	}
	return lastErr
}

func (k *KafkaPublisher) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
