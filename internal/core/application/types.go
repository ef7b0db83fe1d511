package application

import (
	"context"

	"github.com/arkade-os/marketd/internal/core/domain"
	"github.com/arkade-os/marketd/pkg/errors"
)

type Service interface {
	Start() errors.Error
	Stop()
	InitializeMarket(ctx context.Context, req InitMarketRequest) (*domain.Market, errors.Error)
	MintCompleteSets(ctx context.Context, marketId, depositor string, amount uint64) errors.Error
	RedeemCompleteSets(ctx context.Context, marketId, holder string, amount uint64) errors.Error
	ResolveMarket(ctx context.Context, marketId, oracle, winnerAssetId string) errors.Error
	Redeem(ctx context.Context, marketId, holder string, amount uint64) errors.Error
	ClaimProfits(ctx context.Context, marketId, holder string, amount uint64) errors.Error
	GetMarket(ctx context.Context, marketId string) (*domain.Market, errors.Error)
	ListMarkets(ctx context.Context) ([]domain.Market, errors.Error)
	GetBalances(ctx context.Context, marketId, owner string) (*MarketBalances, errors.Error)
	GetMarketStats(ctx context.Context, marketId string) (*MarketStats, errors.Error)
}

// LedgerService exposes the asset ledger to operators. Signers are x-only public keys,
// market authorities can't be impersonated through it.
type LedgerService interface {
	CreateAsset(ctx context.Context, decimals uint8, mintAuthority string) (string, errors.Error)
	CreateHolding(ctx context.Context, owner, assetId string) (string, errors.Error)
	Mint(
		ctx context.Context, assetId, holdingId string, amount uint64, minter string,
	) errors.Error
	Burn(ctx context.Context, assetId, holdingId string, amount uint64, owner string) errors.Error
	Transfer(
		ctx context.Context, assetId, from, to string, amount uint64, owner string,
	) errors.Error
	BalanceOf(ctx context.Context, holdingId string) (uint64, errors.Error)
	GetAsset(ctx context.Context, assetId string) (*domain.Asset, errors.Error)
	GetHolding(ctx context.Context, holdingId string) (*domain.Holding, errors.Error)
}

type InitMarketRequest struct {
	SignerSeed        []byte
	Oracle            string
	CollateralAssetId string
	VaultId           string
	Authority         string
	Nonce             uint8
	// Expiry is a unix timestamp, zero means the market never expires.
	Expiry   int64
	Outcomes []domain.Outcome
}

type OutcomeBalance struct {
	AssetId string
	Name    string
	Amount  uint64
}

type MarketBalances struct {
	MarketId   string
	Owner      string
	Collateral uint64
	Outcomes   []OutcomeBalance
}

type MarketStats struct {
	MarketId string
	Vault    uint64
	// Outcomes reports the circulating supply of every outcome asset.
	Outcomes []OutcomeBalance
	Expired  bool
	Winner   string
}
