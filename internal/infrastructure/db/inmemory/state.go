package inmemorydb

import (
	"context"

	"github.com/arkade-os/marketd/internal/core/domain"
	"github.com/arkade-os/marketd/internal/infrastructure/db/dbutil"
)

// state is the committed data. It is not safe for concurrent use, the store guards it.
type state struct {
	markets      map[string]domain.Market
	assets       map[string]domain.Asset
	holdings     map[string]domain.Holding
	holdingIndex map[string]string
}

func newState() *state {
	return &state{
		markets:      make(map[string]domain.Market),
		assets:       make(map[string]domain.Asset),
		holdings:     make(map[string]domain.Holding),
		holdingIndex: make(map[string]string),
	}
}

func (s *state) GetMarket(_ context.Context, id string) (*domain.Market, error) {
	market, ok := s.markets[id]
	if !ok {
		return nil, nil
	}
	m := dbutil.CloneMarket(market)
	return &m, nil
}

func (s *state) ListMarkets(_ context.Context) ([]domain.Market, error) {
	markets := make([]domain.Market, 0, len(s.markets))
	for _, m := range s.markets {
		markets = append(markets, dbutil.CloneMarket(m))
	}
	dbutil.SortMarkets(markets)
	return markets, nil
}

func (s *state) GetAsset(_ context.Context, id string) (*domain.Asset, error) {
	asset, ok := s.assets[id]
	if !ok {
		return nil, nil
	}
	return &asset, nil
}

func (s *state) GetHolding(_ context.Context, id string) (*domain.Holding, error) {
	holding, ok := s.holdings[id]
	if !ok {
		return nil, nil
	}
	return &holding, nil
}

func (s *state) FindHolding(_ context.Context, owner, assetId string) (*domain.Holding, error) {
	id, ok := s.holdingIndex[dbutil.HoldingKey(owner, assetId)]
	if !ok {
		return nil, nil
	}
	holding := s.holdings[id]
	return &holding, nil
}

func (s *state) apply(changes dbutil.Changes) {
	for _, m := range changes.Markets {
		s.markets[m.Id] = m
	}
	for _, a := range changes.Assets {
		s.assets[a.Id] = a
	}
	for _, h := range changes.Holdings {
		s.holdings[h.Id] = h
		key := dbutil.HoldingKey(h.Owner, h.AssetId)
		if _, ok := s.holdingIndex[key]; !ok {
			s.holdingIndex[key] = h.Id
		}
	}
}
