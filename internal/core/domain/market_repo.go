package domain

import "context"

type MarketRepository interface {
	AddMarket(ctx context.Context, market Market) error
	// GetMarket returns nil if the market does not exist.
	GetMarket(ctx context.Context, id string) (*Market, error)
	UpdateMarket(ctx context.Context, market Market) error
	ListMarkets(ctx context.Context) ([]Market, error)
}

type LedgerRepository interface {
	AddAsset(ctx context.Context, asset Asset) error
	// GetAsset returns nil if the asset does not exist.
	GetAsset(ctx context.Context, id string) (*Asset, error)
	UpdateAsset(ctx context.Context, asset Asset) error
	AddHolding(ctx context.Context, holding Holding) error
	// GetHolding returns nil if the holding does not exist.
	GetHolding(ctx context.Context, id string) (*Holding, error)
	// FindHolding returns the first holding of the given asset owned by the given address,
	// or nil if there is none.
	FindHolding(ctx context.Context, owner, assetId string) (*Holding, error)
	UpdateHolding(ctx context.Context, holding Holding) error
}
