package dbutil

import (
	"context"
	"fmt"

	"github.com/arkade-os/marketd/internal/core/domain"
)

// Reader gives read access to the committed state of a store.
type Reader interface {
	GetMarket(ctx context.Context, id string) (*domain.Market, error)
	ListMarkets(ctx context.Context) ([]domain.Market, error)
	GetAsset(ctx context.Context, id string) (*domain.Asset, error)
	GetHolding(ctx context.Context, id string) (*domain.Holding, error)
	FindHolding(ctx context.Context, owner, assetId string) (*domain.Holding, error)
}

// Changes lists what a transaction wrote, in write order.
type Changes struct {
	Markets  []domain.Market
	Assets   []domain.Asset
	Holdings []domain.Holding
}

func (c Changes) IsEmpty() bool {
	return len(c.Markets) == 0 && len(c.Assets) == 0 && len(c.Holdings) == 0
}

// TxBuffer collects the writes of a transaction on top of a committed state, for stores
// with no native multi-key transactions. Reads made through the buffer see the pending
// writes. Nothing reaches the store until the caller applies Changes().
type TxBuffer struct {
	base Reader

	markets     map[string]domain.Market
	marketIds   []string
	assets      map[string]domain.Asset
	assetIds    []string
	holdings    map[string]domain.Holding
	holdingIds  []string
	newHoldings []string
}

func NewTxBuffer(base Reader) *TxBuffer {
	return &TxBuffer{
		base:     base,
		markets:  make(map[string]domain.Market),
		assets:   make(map[string]domain.Asset),
		holdings: make(map[string]domain.Holding),
	}
}

func (b *TxBuffer) Markets() domain.MarketRepository {
	return &bufferedMarkets{b}
}

func (b *TxBuffer) Ledger() domain.LedgerRepository {
	return &bufferedLedger{b}
}

func (b *TxBuffer) Changes() Changes {
	changes := Changes{
		Markets:  make([]domain.Market, 0, len(b.marketIds)),
		Assets:   make([]domain.Asset, 0, len(b.assetIds)),
		Holdings: make([]domain.Holding, 0, len(b.holdingIds)),
	}
	for _, id := range b.marketIds {
		changes.Markets = append(changes.Markets, CloneMarket(b.markets[id]))
	}
	for _, id := range b.assetIds {
		changes.Assets = append(changes.Assets, b.assets[id])
	}
	for _, id := range b.holdingIds {
		changes.Holdings = append(changes.Holdings, b.holdings[id])
	}
	return changes
}

func (b *TxBuffer) putMarket(market domain.Market) {
	if _, ok := b.markets[market.Id]; !ok {
		b.marketIds = append(b.marketIds, market.Id)
	}
	b.markets[market.Id] = CloneMarket(market)
}

func (b *TxBuffer) putAsset(asset domain.Asset) {
	if _, ok := b.assets[asset.Id]; !ok {
		b.assetIds = append(b.assetIds, asset.Id)
	}
	b.assets[asset.Id] = asset
}

func (b *TxBuffer) putHolding(holding domain.Holding) {
	if _, ok := b.holdings[holding.Id]; !ok {
		b.holdingIds = append(b.holdingIds, holding.Id)
	}
	b.holdings[holding.Id] = holding
}

type bufferedMarkets struct {
	*TxBuffer
}

func (r *bufferedMarkets) AddMarket(ctx context.Context, market domain.Market) error {
	existing, err := r.GetMarket(ctx, market.Id)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("market %s already exists", market.Id)
	}
	r.putMarket(market)
	return nil
}

func (r *bufferedMarkets) GetMarket(ctx context.Context, id string) (*domain.Market, error) {
	if market, ok := r.markets[id]; ok {
		m := CloneMarket(market)
		return &m, nil
	}
	return r.base.GetMarket(ctx, id)
}

func (r *bufferedMarkets) UpdateMarket(ctx context.Context, market domain.Market) error {
	existing, err := r.GetMarket(ctx, market.Id)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("market %s not found", market.Id)
	}
	r.putMarket(market)
	return nil
}

func (r *bufferedMarkets) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	committed, err := r.base.ListMarkets(ctx)
	if err != nil {
		return nil, err
	}
	markets := make([]domain.Market, 0, len(committed)+len(r.marketIds))
	seen := make(map[string]struct{}, len(committed))
	for _, m := range committed {
		seen[m.Id] = struct{}{}
		if pending, ok := r.markets[m.Id]; ok {
			m = CloneMarket(pending)
		}
		markets = append(markets, m)
	}
	for _, id := range r.marketIds {
		if _, ok := seen[id]; ok {
			continue
		}
		markets = append(markets, CloneMarket(r.markets[id]))
	}
	SortMarkets(markets)
	return markets, nil
}

type bufferedLedger struct {
	*TxBuffer
}

func (r *bufferedLedger) AddAsset(ctx context.Context, asset domain.Asset) error {
	existing, err := r.GetAsset(ctx, asset.Id)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("asset %s already exists", asset.Id)
	}
	r.putAsset(asset)
	return nil
}

func (r *bufferedLedger) GetAsset(ctx context.Context, id string) (*domain.Asset, error) {
	if asset, ok := r.assets[id]; ok {
		return &asset, nil
	}
	return r.base.GetAsset(ctx, id)
}

func (r *bufferedLedger) UpdateAsset(ctx context.Context, asset domain.Asset) error {
	existing, err := r.GetAsset(ctx, asset.Id)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("asset %s not found", asset.Id)
	}
	r.putAsset(asset)
	return nil
}

func (r *bufferedLedger) AddHolding(ctx context.Context, holding domain.Holding) error {
	existing, err := r.GetHolding(ctx, holding.Id)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("holding %s already exists", holding.Id)
	}
	r.putHolding(holding)
	r.newHoldings = append(r.newHoldings, holding.Id)
	return nil
}

func (r *bufferedLedger) GetHolding(ctx context.Context, id string) (*domain.Holding, error) {
	if holding, ok := r.holdings[id]; ok {
		return &holding, nil
	}
	return r.base.GetHolding(ctx, id)
}

func (r *bufferedLedger) FindHolding(
	ctx context.Context, owner, assetId string,
) (*domain.Holding, error) {
	holding, err := r.base.FindHolding(ctx, owner, assetId)
	if err != nil {
		return nil, err
	}
	if holding != nil {
		if pending, ok := r.holdings[holding.Id]; ok {
			return &pending, nil
		}
		return holding, nil
	}
	for _, id := range r.newHoldings {
		h := r.holdings[id]
		if h.Owner == owner && h.AssetId == assetId {
			return &h, nil
		}
	}
	return nil, nil
}

func (r *bufferedLedger) UpdateHolding(ctx context.Context, holding domain.Holding) error {
	existing, err := r.GetHolding(ctx, holding.Id)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("holding %s not found", holding.Id)
	}
	// Owner and asset never change.
	holding.Owner = existing.Owner
	holding.AssetId = existing.AssetId
	r.putHolding(holding)
	return nil
}
