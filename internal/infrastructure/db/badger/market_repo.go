package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arkade-os/marketd/internal/core/domain"
	"github.com/arkade-os/marketd/internal/infrastructure/db/dbutil"
	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
)

type marketRepository struct {
	store *badgerhold.Store
}

type marketDTO struct {
	domain.Market
	UpdatedAt int64
}

func (r *marketRepository) AddMarket(ctx context.Context, market domain.Market) error {
	dto := marketDTO{
		Market:    market,
		UpdatedAt: time.Now().UnixMilli(),
	}
	return update(ctx, r.store, func(tx *badger.Txn) error {
		if err := r.store.TxInsert(tx, market.Id, dto); err != nil {
			if errors.Is(err, badgerhold.ErrKeyExists) {
				return fmt.Errorf("market %s already exists", market.Id)
			}
			return err
		}
		return nil
	})
}

func (r *marketRepository) GetMarket(ctx context.Context, id string) (*domain.Market, error) {
	var dto marketDTO
	err := view(ctx, r.store, func(tx *badger.Txn) error {
		return r.store.TxGet(tx, id, &dto)
	})
	if err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &dto.Market, nil
}

func (r *marketRepository) UpdateMarket(ctx context.Context, market domain.Market) error {
	dto := marketDTO{
		Market:    market,
		UpdatedAt: time.Now().UnixMilli(),
	}
	return update(ctx, r.store, func(tx *badger.Txn) error {
		if err := r.store.TxUpdate(tx, market.Id, dto); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return fmt.Errorf("market %s not found", market.Id)
			}
			return err
		}
		return nil
	})
}

func (r *marketRepository) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	var dtos []marketDTO
	if err := view(ctx, r.store, func(tx *badger.Txn) error {
		return r.store.TxFind(tx, &dtos, nil)
	}); err != nil {
		return nil, err
	}

	markets := make([]domain.Market, 0, len(dtos))
	for _, dto := range dtos {
		markets = append(markets, dto.Market)
	}
	dbutil.SortMarkets(markets)
	return markets, nil
}
