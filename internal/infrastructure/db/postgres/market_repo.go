package pgdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/arkade-os/marketd/internal/core/domain"
)

const (
	insertMarket = `
INSERT INTO markets (
    id, oracle, collateral_asset_id, vault_id, authority, authority_nonce, expiry, winner,
    created_at, resolved_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	insertOutcome = `
INSERT INTO market_outcomes (market_id, position, asset_id, name) VALUES ($1, $2, $3, $4)`
	selectMarket = `
SELECT id, oracle, collateral_asset_id, vault_id, authority, authority_nonce, expiry, winner,
    created_at, resolved_at
FROM markets WHERE id = $1`
	selectAllMarkets = `
SELECT id, oracle, collateral_asset_id, vault_id, authority, authority_nonce, expiry, winner,
    created_at, resolved_at
FROM markets ORDER BY created_at, id`
	selectOutcomes = `
SELECT market_id, asset_id, name FROM market_outcomes WHERE market_id = $1 ORDER BY position`
	selectAllOutcomes = `
SELECT market_id, asset_id, name FROM market_outcomes ORDER BY market_id, position`
	updateMarketResolution = `
UPDATE markets SET winner = $1, resolved_at = $2 WHERE id = $3`
)

type marketRepository struct {
	db *sql.DB
}

func (r *marketRepository) AddMarket(ctx context.Context, market domain.Market) error {
	q := getQuerier(ctx, r.db)
	if _, err := q.ExecContext(
		ctx, insertMarket, market.Id, market.Oracle, market.CollateralAssetId, market.VaultId,
		market.Authority, market.AuthorityNonce, market.Expiry, market.Winner, market.CreatedAt,
		market.ResolvedAt,
	); err != nil {
		return fmt.Errorf("failed to insert market: %w", err)
	}
	for i, outcome := range market.Outcomes {
		if _, err := q.ExecContext(
			ctx, insertOutcome, market.Id, i, outcome.AssetId, outcome.Name,
		); err != nil {
			return fmt.Errorf("failed to insert market outcome: %w", err)
		}
	}
	return nil
}

func (r *marketRepository) GetMarket(ctx context.Context, id string) (*domain.Market, error) {
	q := getQuerier(ctx, r.db)
	market, err := scanMarket(q.QueryRowContext(ctx, selectMarket, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get market: %w", err)
	}

	rows, err := q.QueryContext(ctx, selectOutcomes, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get market outcomes: %w", err)
	}
	outcomes, err := scanOutcomes(rows)
	if err != nil {
		return nil, err
	}
	market.Outcomes = outcomes[id]
	return market, nil
}

func (r *marketRepository) UpdateMarket(ctx context.Context, market domain.Market) error {
	q := getQuerier(ctx, r.db)
	res, err := q.ExecContext(
		ctx, updateMarketResolution, market.Winner, market.ResolvedAt, market.Id,
	)
	if err != nil {
		return fmt.Errorf("failed to update market: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("market %s not found", market.Id)
	}
	return nil
}

func (r *marketRepository) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	q := getQuerier(ctx, r.db)
	rows, err := q.QueryContext(ctx, selectAllMarkets)
	if err != nil {
		return nil, fmt.Errorf("failed to list markets: %w", err)
	}
	markets := make([]domain.Market, 0)
	for rows.Next() {
		market, err := scanMarket(rows)
		if err != nil {
			// nolint:all
			rows.Close()
			return nil, fmt.Errorf("failed to scan market: %w", err)
		}
		markets = append(markets, *market)
	}
	// nolint:all
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = q.QueryContext(ctx, selectAllOutcomes)
	if err != nil {
		return nil, fmt.Errorf("failed to list market outcomes: %w", err)
	}
	outcomes, err := scanOutcomes(rows)
	if err != nil {
		return nil, err
	}
	for i := range markets {
		markets[i].Outcomes = outcomes[markets[i].Id]
	}
	return markets, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMarket(row rowScanner) (*domain.Market, error) {
	var m domain.Market
	if err := row.Scan(
		&m.Id, &m.Oracle, &m.CollateralAssetId, &m.VaultId, &m.Authority, &m.AuthorityNonce,
		&m.Expiry, &m.Winner, &m.CreatedAt, &m.ResolvedAt,
	); err != nil {
		return nil, err
	}
	return &m, nil
}

func scanOutcomes(rows *sql.Rows) (map[string][]domain.Outcome, error) {
	// nolint:all
	defer rows.Close()

	outcomes := make(map[string][]domain.Outcome)
	for rows.Next() {
		var marketId string
		var o domain.Outcome
		if err := rows.Scan(&marketId, &o.AssetId, &o.Name); err != nil {
			return nil, fmt.Errorf("failed to scan market outcome: %w", err)
		}
		outcomes[marketId] = append(outcomes[marketId], o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}
