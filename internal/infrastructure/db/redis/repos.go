package redisdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/arkade-os/marketd/internal/core/domain"
	"github.com/arkade-os/marketd/internal/infrastructure/db/dbutil"
	"github.com/redis/go-redis/v9"
)

// hashReader is implemented by both *redis.Client and *redis.Tx.
type hashReader interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

type reader struct {
	rdb hashReader
}

func (r *reader) GetMarket(ctx context.Context, id string) (*domain.Market, error) {
	var dto marketDTO
	found, err := r.get(ctx, marketsKey, id, &dto)
	if err != nil || !found {
		return nil, err
	}
	market := dto.toDomain()
	return &market, nil
}

func (r *reader) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	values, err := r.rdb.HGetAll(ctx, marketsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list markets: %w", err)
	}
	markets := make([]domain.Market, 0, len(values))
	for _, value := range values {
		var dto marketDTO
		if err := json.Unmarshal([]byte(value), &dto); err != nil {
			return nil, fmt.Errorf("failed to decode market: %w", err)
		}
		markets = append(markets, dto.toDomain())
	}
	dbutil.SortMarkets(markets)
	return markets, nil
}

func (r *reader) GetAsset(ctx context.Context, id string) (*domain.Asset, error) {
	var dto assetDTO
	found, err := r.get(ctx, assetsKey, id, &dto)
	if err != nil || !found {
		return nil, err
	}
	asset := dto.toDomain()
	return &asset, nil
}

func (r *reader) GetHolding(ctx context.Context, id string) (*domain.Holding, error) {
	var dto holdingDTO
	found, err := r.get(ctx, holdingsKey, id, &dto)
	if err != nil || !found {
		return nil, err
	}
	holding := dto.toDomain()
	return &holding, nil
}

func (r *reader) FindHolding(
	ctx context.Context, owner, assetId string,
) (*domain.Holding, error) {
	id, err := r.rdb.HGet(ctx, holdingIndexKey, dbutil.HoldingKey(owner, assetId)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find holding: %w", err)
	}
	return r.GetHolding(ctx, id)
}

func (r *reader) get(ctx context.Context, key, field string, dto any) (bool, error) {
	value, err := r.rdb.HGet(ctx, key, field).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get %s from %s: %w", field, key, err)
	}
	if err := json.Unmarshal([]byte(value), dto); err != nil {
		return false, fmt.Errorf("failed to decode %s from %s: %w", field, key, err)
	}
	return true, nil
}

type markets struct {
	m *repoManager
}

func (r *markets) AddMarket(ctx context.Context, market domain.Market) error {
	return r.m.RunInTx(ctx, func(
		ctx context.Context, markets domain.MarketRepository, _ domain.LedgerRepository,
	) error {
		return markets.AddMarket(ctx, market)
	})
}

func (r *markets) GetMarket(ctx context.Context, id string) (*domain.Market, error) {
	return (&reader{r.m.rdb}).GetMarket(ctx, id)
}

func (r *markets) UpdateMarket(ctx context.Context, market domain.Market) error {
	return r.m.RunInTx(ctx, func(
		ctx context.Context, markets domain.MarketRepository, _ domain.LedgerRepository,
	) error {
		return markets.UpdateMarket(ctx, market)
	})
}

func (r *markets) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	return (&reader{r.m.rdb}).ListMarkets(ctx)
}

type ledger struct {
	m *repoManager
}

func (r *ledger) AddAsset(ctx context.Context, asset domain.Asset) error {
	return r.m.RunInTx(ctx, func(
		ctx context.Context, _ domain.MarketRepository, ledger domain.LedgerRepository,
	) error {
		return ledger.AddAsset(ctx, asset)
	})
}

func (r *ledger) GetAsset(ctx context.Context, id string) (*domain.Asset, error) {
	return (&reader{r.m.rdb}).GetAsset(ctx, id)
}

func (r *ledger) UpdateAsset(ctx context.Context, asset domain.Asset) error {
	return r.m.RunInTx(ctx, func(
		ctx context.Context, _ domain.MarketRepository, ledger domain.LedgerRepository,
	) error {
		return ledger.UpdateAsset(ctx, asset)
	})
}

func (r *ledger) AddHolding(ctx context.Context, holding domain.Holding) error {
	return r.m.RunInTx(ctx, func(
		ctx context.Context, _ domain.MarketRepository, ledger domain.LedgerRepository,
	) error {
		return ledger.AddHolding(ctx, holding)
	})
}

func (r *ledger) GetHolding(ctx context.Context, id string) (*domain.Holding, error) {
	return (&reader{r.m.rdb}).GetHolding(ctx, id)
}

func (r *ledger) FindHolding(
	ctx context.Context, owner, assetId string,
) (*domain.Holding, error) {
	return (&reader{r.m.rdb}).FindHolding(ctx, owner, assetId)
}

func (r *ledger) UpdateHolding(ctx context.Context, holding domain.Holding) error {
	return r.m.RunInTx(ctx, func(
		ctx context.Context, _ domain.MarketRepository, ledger domain.LedgerRepository,
	) error {
		return ledger.UpdateHolding(ctx, holding)
	})
}
