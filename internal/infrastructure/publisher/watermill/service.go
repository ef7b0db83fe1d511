package watermillpublisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/arkade-os/marketd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

const (
	topicPrefix = "marketd."
	topicKey    = "topic"
)

type service struct {
	publisher message.Publisher
}

// NewService returns a publisher that forwards every event as a JSON watermill message.
func NewService(publisher message.Publisher) ports.EventPublisher {
	return &service{publisher}
}

// NewInProcessService returns a publisher backed by a go channel pub/sub together with
// the subscriber in-process consumers read the events from. Events published while
// nobody is subscribed are dropped.
func NewInProcessService(bufferSize int64) (ports.EventPublisher, message.Subscriber) {
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: bufferSize,
	}, watermill.NopLogger{})
	return NewService(pubsub), pubsub
}

func (s *service) Publish(ctx context.Context, topic ports.Topic, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(topicKey, string(topic))
	msg.SetContext(ctx)

	if err := s.publisher.Publish(Topic(topic), msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (s *service) Close() {
	if err := s.publisher.Close(); err != nil {
		log.WithError(err).Warn("failed to close watermill publisher")
	}
}

// Topic returns the watermill topic events of the given topic are published on.
func Topic(topic ports.Topic) string {
	name := strings.ReplaceAll(strings.ToLower(string(topic)), " ", "_")
	return topicPrefix + name
}

// TopicOf returns the event topic carried by the given message.
func TopicOf(msg *message.Message) ports.Topic {
	return ports.Topic(msg.Metadata.Get(topicKey))
}
