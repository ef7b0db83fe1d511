package redispublisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/arkade-os/marketd/internal/core/ports"
	"github.com/redis/go-redis/v9"
)

const channelPrefix = "marketd:"

type service struct {
	rdb *redis.Client
}

// NewService returns a publisher that sends every event as JSON on the redis channel
// marketd:<topic>, with the topic lowercased and spaces replaced by underscores.
func NewService(redisUrl string) (ports.EventPublisher, error) {
	opts, err := redis.ParseURL(redisUrl)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewServiceWithClient(redis.NewClient(opts)), nil
}

func NewServiceWithClient(rdb *redis.Client) ports.EventPublisher {
	return &service{rdb}
}

func (s *service) Publish(ctx context.Context, topic ports.Topic, message any) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := s.rdb.Publish(ctx, Channel(topic), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (s *service) Close() {
	// nolint:all
	s.rdb.Close()
}

// Channel returns the redis channel events of the given topic are published on.
func Channel(topic ports.Topic) string {
	name := strings.ReplaceAll(strings.ToLower(string(topic)), " ", "_")
	return channelPrefix + name
}
