package application

import (
	"context"
	"time"

	"github.com/arkade-os/marketd/internal/core/domain"
	"github.com/arkade-os/marketd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

// publishEvent is called after the change has been committed, a failure to publish never
// undoes it.
func (s *service) publishEvent(topic ports.Topic, event domain.MarketEvent) {
	if s.publisher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		log.WithError(err).WithField("topic", topic).Warn("failed to publish event")
	}
}
