package application

import (
	"context"
	"fmt"

	"github.com/arkade-os/marketd/internal/core/domain"
	"github.com/arkade-os/marketd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

// restoreExpiryWatchers schedules the expiry notification of every open market. Markets that
// expired while the engine was down are notified right away.
func (s *service) restoreExpiryWatchers(ctx context.Context) error {
	markets, err := s.repoManager.Markets().ListMarkets(ctx)
	if err != nil {
		return fmt.Errorf("failed to list markets: %s", err)
	}

	count := 0
	for _, market := range markets {
		if s.scheduleExpiryWatcher(market) {
			count++
		}
	}
	log.Debugf("restored %d expiry watchers", count)
	return nil
}

func (s *service) scheduleExpiryWatcher(market domain.Market) bool {
	if s.scheduler == nil || market.Expiry <= 0 || market.IsResolved() {
		return false
	}

	marketId := market.Id
	if err := s.scheduler.ScheduleTaskOnce(market.Expiry, func() {
		s.onMarketExpired(marketId)
	}); err != nil {
		log.WithError(err).Warnf("failed to schedule expiry watcher for market %s", marketId)
		return false
	}
	log.Debugf("scheduled expiry watcher for market %s at %d", marketId, market.Expiry)
	return true
}

func (s *service) onMarketExpired(marketId string) {
	defer func() {
		if r := recover(); r != nil {
			log.WithError(fmt.Errorf("panic: %v", r)).Error("panic while processing market expiry")
		}
	}()

	market, err := s.repoManager.Markets().GetMarket(context.Background(), marketId)
	if err != nil {
		log.WithError(err).Warnf("failed to get market %s, skipping expiry", marketId)
		return
	}
	// Resolution may land between the scheduling and the expiry.
	if market == nil || market.IsResolved() {
		return
	}

	log.Infof("market %s expired, waiting for resolution by oracle %s", marketId, market.Oracle)
	s.publishEvent(ports.MarketExpired, domain.MarketEvent{
		Type:      domain.EventMarketExpired,
		MarketId:  marketId,
		Timestamp: s.clock.Now().Unix(),
	})
}
