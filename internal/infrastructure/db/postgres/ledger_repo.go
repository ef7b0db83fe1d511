package pgdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/arkade-os/marketd/internal/core/domain"
)

const (
	insertAsset = `
INSERT INTO assets (id, decimals, mint_authority, supply, updated_at) VALUES ($1, $2, $3, $4, $5)`
	selectAsset = `
SELECT id, decimals, mint_authority, supply FROM assets WHERE id = $1`
	updateAssetSupply = `
UPDATE assets SET supply = $1, updated_at = $2 WHERE id = $3`
	insertHolding = `
INSERT INTO holdings (id, owner, asset_id, balance, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	selectHolding = `
SELECT id, owner, asset_id, balance FROM holdings WHERE id = $1`
	selectHoldingByOwnerAndAsset = `
SELECT id, owner, asset_id, balance FROM holdings WHERE owner = $1 AND asset_id = $2
ORDER BY created_at, id LIMIT 1`
	updateHoldingBalance = `
UPDATE holdings SET balance = $1, updated_at = $2 WHERE id = $3`
)

type ledgerRepository struct {
	db *sql.DB
}

func (r *ledgerRepository) AddAsset(ctx context.Context, asset domain.Asset) error {
	if _, err := getQuerier(ctx, r.db).ExecContext(
		ctx, insertAsset, asset.Id, asset.Decimals, asset.MintAuthority,
		formatAmount(asset.Supply), time.Now().UnixMilli(),
	); err != nil {
		return fmt.Errorf("failed to insert asset: %w", err)
	}
	return nil
}

func (r *ledgerRepository) GetAsset(ctx context.Context, id string) (*domain.Asset, error) {
	var asset domain.Asset
	var supply string
	if err := getQuerier(ctx, r.db).QueryRowContext(ctx, selectAsset, id).Scan(
		&asset.Id, &asset.Decimals, &asset.MintAuthority, &supply,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	amount, err := parseAmount(supply)
	if err != nil {
		return nil, err
	}
	asset.Supply = amount
	return &asset, nil
}

func (r *ledgerRepository) UpdateAsset(ctx context.Context, asset domain.Asset) error {
	res, err := getQuerier(ctx, r.db).ExecContext(
		ctx, updateAssetSupply, formatAmount(asset.Supply), time.Now().UnixMilli(), asset.Id,
	)
	if err != nil {
		return fmt.Errorf("failed to update asset: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("asset %s not found", asset.Id)
	}
	return nil
}

func (r *ledgerRepository) AddHolding(ctx context.Context, holding domain.Holding) error {
	now := time.Now().UnixNano()
	if _, err := getQuerier(ctx, r.db).ExecContext(
		ctx, insertHolding, holding.Id, holding.Owner, holding.AssetId,
		formatAmount(holding.Balance), now, now,
	); err != nil {
		return fmt.Errorf("failed to insert holding: %w", err)
	}
	return nil
}

func (r *ledgerRepository) GetHolding(ctx context.Context, id string) (*domain.Holding, error) {
	return r.queryHolding(ctx, selectHolding, id)
}

func (r *ledgerRepository) FindHolding(
	ctx context.Context, owner, assetId string,
) (*domain.Holding, error) {
	return r.queryHolding(ctx, selectHoldingByOwnerAndAsset, owner, assetId)
}

func (r *ledgerRepository) UpdateHolding(ctx context.Context, holding domain.Holding) error {
	res, err := getQuerier(ctx, r.db).ExecContext(
		ctx, updateHoldingBalance, formatAmount(holding.Balance), time.Now().UnixNano(),
		holding.Id,
	)
	if err != nil {
		return fmt.Errorf("failed to update holding: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("holding %s not found", holding.Id)
	}
	return nil
}

func (r *ledgerRepository) queryHolding(
	ctx context.Context, query string, args ...any,
) (*domain.Holding, error) {
	var holding domain.Holding
	var balance string
	if err := getQuerier(ctx, r.db).QueryRowContext(ctx, query, args...).Scan(
		&holding.Id, &holding.Owner, &holding.AssetId, &balance,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get holding: %w", err)
	}
	amount, err := parseAmount(balance)
	if err != nil {
		return nil, err
	}
	holding.Balance = amount
	return &holding, nil
}
