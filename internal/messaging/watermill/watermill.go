// Package watermill adapts watermill publishers and subscribers, Kafka through
// sarama or an in-process Go channel, to the messaging interfaces.
package watermill

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"

	"github.com/sijan324/nepshop/internal/messaging"
)

const keyMetadata = "partition_key"

type broker struct {
	publisher     message.Publisher
	newSubscriber func(groupID string) (message.Subscriber, error)
	logger        watermill.LoggerAdapter

	mu      sync.Mutex
	closers []func() error
}

// NewGoChannel returns an in-process broker. Messages are not persisted and
// every subscriber gets every message.
func NewGoChannel(logger *slog.Logger) messaging.Broker {
	wlogger := watermill.NewSlogLogger(logger)
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, wlogger)
	return &broker{
		publisher:     pubSub,
		newSubscriber: func(string) (message.Subscriber, error) { return pubSub, nil },
		closers:       []func() error{pubSub.Close},
		logger:        wlogger,
	}
}

// NewKafka returns a Kafka broker built on watermill-kafka and sarama.
func NewKafka(brokers []string, logger *slog.Logger) (messaging.Broker, error) {
	wlogger := watermill.NewSlogLogger(logger)

	saramaPub := kafka.DefaultSaramaSyncPublisherConfig()
	saramaPub.Producer.RequiredAcks = sarama.WaitForAll

	publisher, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers: brokers,
		Marshaler: kafka.NewWithPartitioningMarshaler(func(topic string, msg *message.Message) (string, error) {
			return msg.Metadata.Get(keyMetadata), nil
		}),
		OverwriteSaramaConfig: saramaPub,
	}, wlogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka publisher: %w", err)
	}

	b := &broker{
		publisher: publisher,
		closers:   []func() error{publisher.Close},
		logger:    wlogger,
	}
	b.newSubscriber = func(groupID string) (message.Subscriber, error) {
		saramaSub := kafka.DefaultSaramaSubscriberConfig()
		saramaSub.Consumer.Offsets.Initial = sarama.OffsetOldest

		sub, err := kafka.NewSubscriber(kafka.SubscriberConfig{
			Brokers:               brokers,
			Unmarshaler:           kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: saramaSub,
			ConsumerGroup:         groupID,
		}, wlogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka subscriber: %w", err)
		}
		b.mu.Lock()
		b.closers = append(b.closers, sub.Close)
		b.mu.Unlock()
		return sub, nil
	}
	return b, nil
}

func (b *broker) PublishEvent(ctx context.Context, topic string, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set(keyMetadata, key)
	msg.SetContext(ctx)

	if err := b.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

func (b *broker) Consume(ctx context.Context, topic string, groupID string, handler func(ctx context.Context, payload []byte) error) {
	sub, err := b.newSubscriber(groupID)
	if err != nil {
		slog.Error("Error creating subscriber", "topic", topic, "err", err)
		return
	}

	messages, err := sub.Subscribe(ctx, topic)
	if err != nil {
		slog.Error("Error subscribing", "topic", topic, "err", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("Consumer shutting down", "topic", topic)
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if err := handler(ctx, msg.Payload); err != nil {
				slog.Error("Error handling message", "topic", topic, "message_uuid", msg.UUID, "err", err)
			}
			msg.Ack()
		}
	}
}

func (b *broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
