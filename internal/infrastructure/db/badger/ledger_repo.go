package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/arkade-os/marketd/internal/core/domain"
	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
)

type ledgerRepository struct {
	store *badgerhold.Store
}

type assetDTO struct {
	domain.Asset
	UpdatedAt int64
}

type holdingDTO struct {
	domain.Holding
	CreatedAt int64
	UpdatedAt int64
}

func (r *ledgerRepository) AddAsset(ctx context.Context, asset domain.Asset) error {
	dto := assetDTO{
		Asset:     asset,
		UpdatedAt: time.Now().UnixMilli(),
	}
	return update(ctx, r.store, func(tx *badger.Txn) error {
		if err := r.store.TxInsert(tx, asset.Id, dto); err != nil {
			if errors.Is(err, badgerhold.ErrKeyExists) {
				return fmt.Errorf("asset %s already exists", asset.Id)
			}
			return err
		}
		return nil
	})
}

func (r *ledgerRepository) GetAsset(ctx context.Context, id string) (*domain.Asset, error) {
	var dto assetDTO
	err := view(ctx, r.store, func(tx *badger.Txn) error {
		return r.store.TxGet(tx, id, &dto)
	})
	if err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &dto.Asset, nil
}

func (r *ledgerRepository) UpdateAsset(ctx context.Context, asset domain.Asset) error {
	dto := assetDTO{
		Asset:     asset,
		UpdatedAt: time.Now().UnixMilli(),
	}
	return update(ctx, r.store, func(tx *badger.Txn) error {
		if err := r.store.TxUpdate(tx, asset.Id, dto); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return fmt.Errorf("asset %s not found", asset.Id)
			}
			return err
		}
		return nil
	})
}

func (r *ledgerRepository) AddHolding(ctx context.Context, holding domain.Holding) error {
	now := time.Now().UnixNano()
	dto := holdingDTO{
		Holding:   holding,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return update(ctx, r.store, func(tx *badger.Txn) error {
		if err := r.store.TxInsert(tx, holding.Id, dto); err != nil {
			if errors.Is(err, badgerhold.ErrKeyExists) {
				return fmt.Errorf("holding %s already exists", holding.Id)
			}
			return err
		}
		return nil
	})
}

func (r *ledgerRepository) GetHolding(ctx context.Context, id string) (*domain.Holding, error) {
	dto, err := r.getHolding(ctx, id)
	if err != nil {
		return nil, err
	}
	if dto == nil {
		return nil, nil
	}
	return &dto.Holding, nil
}

func (r *ledgerRepository) FindHolding(
	ctx context.Context, owner, assetId string,
) (*domain.Holding, error) {
	query := badgerhold.Where("Owner").Eq(owner).And("AssetId").Eq(assetId)

	var dtos []holdingDTO
	if err := view(ctx, r.store, func(tx *badger.Txn) error {
		return r.store.TxFind(tx, &dtos, query)
	}); err != nil {
		return nil, err
	}
	if len(dtos) <= 0 {
		return nil, nil
	}

	// The oldest holding is the one used for lookups.
	sort.SliceStable(dtos, func(i, j int) bool {
		return dtos[i].CreatedAt < dtos[j].CreatedAt
	})
	return &dtos[0].Holding, nil
}

func (r *ledgerRepository) UpdateHolding(ctx context.Context, holding domain.Holding) error {
	return update(ctx, r.store, func(tx *badger.Txn) error {
		var dto holdingDTO
		if err := r.store.TxGet(tx, holding.Id, &dto); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return fmt.Errorf("holding %s not found", holding.Id)
			}
			return err
		}
		dto.Balance = holding.Balance
		dto.UpdatedAt = time.Now().UnixNano()
		return r.store.TxUpdate(tx, holding.Id, dto)
	})
}

func (r *ledgerRepository) getHolding(ctx context.Context, id string) (*holdingDTO, error) {
	var dto holdingDTO
	err := view(ctx, r.store, func(tx *badger.Txn) error {
		return r.store.TxGet(tx, id, &dto)
	})
	if err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &dto, nil
}
