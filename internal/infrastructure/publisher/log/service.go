package logpublisher

import (
	"context"

	"github.com/arkade-os/marketd/internal/core/domain"
	"github.com/arkade-os/marketd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

type service struct {
	logger log.FieldLogger
}

// NewService returns a publisher that writes every event to the given logger, or to the
// standard one if nil.
func NewService(logger log.FieldLogger) ports.EventPublisher {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &service{logger}
}

func (s *service) Publish(_ context.Context, topic ports.Topic, message any) error {
	entry := s.logger.WithField("topic", topic)
	if event, ok := message.(domain.MarketEvent); ok {
		fields := log.Fields{
			"event":     event.Type,
			"market_id": event.MarketId,
			"timestamp": event.Timestamp,
		}
		if len(event.Owner) > 0 {
			fields["owner"] = event.Owner
		}
		if event.Amount > 0 {
			fields["amount"] = event.Amount
		}
		if len(event.Winner) > 0 {
			fields["winner"] = event.Winner
		}
		entry.WithFields(fields).Info("market event")
		return nil
	}

	entry.WithField("message", message).Info("event")
	return nil
}

func (s *service) Close() {}
