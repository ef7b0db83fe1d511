package application

import (
	"context"
	"fmt"
	"time"

	"github.com/arkade-os/marketd/internal/core/domain"
	"github.com/arkade-os/marketd/internal/core/ports"
	"github.com/arkade-os/marketd/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type service struct {
	// services
	repoManager ports.RepoManager
	publisher   ports.EventPublisher
	scheduler   ports.SchedulerService
	clock       ports.Clock
	metrics     *opMetrics

	// config
	enforceExpiryOnResolve bool
}

func NewService(
	repoManager ports.RepoManager,
	publisher ports.EventPublisher,
	scheduler ports.SchedulerService,
	clock ports.Clock,
	enforceExpiryOnResolve bool,
) (Service, error) {
	if repoManager == nil {
		return nil, fmt.Errorf("missing repo manager")
	}
	if clock == nil {
		clock = systemClock{}
	}
	metrics, err := newOpMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to init metrics: %s", err)
	}

	return &service{
		repoManager:            repoManager,
		publisher:              publisher,
		scheduler:              scheduler,
		clock:                  clock,
		metrics:                metrics,
		enforceExpiryOnResolve: enforceExpiryOnResolve,
	}, nil
}

func (s *service) Start() errors.Error {
	if s.scheduler == nil {
		return nil
	}
	s.scheduler.Start()

	if err := s.restoreExpiryWatchers(context.Background()); err != nil {
		return errors.INTERNAL_ERROR.Wrap(err)
	}
	log.Debug("expiry watchers restored")
	return nil
}

func (s *service) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
		log.Debug("stopped scheduler")
	}
	if s.publisher != nil {
		s.publisher.Close()
		log.Debug("closed event publisher")
	}
	s.repoManager.Close()
	log.Debug("closed connection to db")
}

func (s *service) InitializeMarket(
	ctx context.Context, req InitMarketRequest,
) (market *domain.Market, err errors.Error) {
	defer func() { s.metrics.record(ctx, "initialize_market", err) }()

	marketId := domain.MarketId(req.SignerSeed)
	now := s.clock.Now().Unix()

	err = s.runInTx(ctx, func(
		ctx context.Context, markets domain.MarketRepository, ledger *AssetLedger,
	) errors.Error {
		existing, err := markets.GetMarket(ctx, marketId)
		if err != nil {
			return errors.INTERNAL_ERROR.Wrap(err)
		}
		if existing != nil {
			return errors.ALREADY_INITIALIZED.New("market %s already initialized", marketId).
				WithMetadata(errors.AlreadyInitializedMetadata{
					MarketId:  marketId,
					CreatedAt: existing.CreatedAt,
				})
		}

		authority, err := domain.RecoverAuthority(req.SignerSeed, req.Nonce)
		if err != nil {
			return errors.UNAUTHORIZED.Wrap(err).
				WithMetadata(errors.UnauthorizedMetadata{Got: req.Authority})
		}
		if authority.Address() != req.Authority {
			return errors.UNAUTHORIZED.New("authority does not match signer seed and nonce").
				WithMetadata(errors.UnauthorizedMetadata{
					Expected: authority.Address(),
					Got:      req.Authority,
				})
		}

		m, err := domain.NewMarket(
			req.SignerSeed, req.Oracle, req.CollateralAssetId, req.VaultId, authority,
			req.Outcomes, req.Expiry, now,
		)
		if err != nil {
			return invalidMarketConfig(marketId, err)
		}
		if err := validateMarketAssets(ctx, ledger, *m); err != nil {
			return err
		}

		if err := markets.AddMarket(ctx, *m); err != nil {
			return errors.INTERNAL_ERROR.Wrap(err)
		}
		market = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Debugf("initialized market %s with %d outcomes", market.Id, len(market.Outcomes))
	s.publishEvent(ports.MarketInitialized, domain.MarketEvent{
		Type:      domain.EventMarketInitialized,
		MarketId:  market.Id,
		Timestamp: now,
	})
	s.scheduleExpiryWatcher(*market)
	return market, nil
}

func (s *service) MintCompleteSets(
	ctx context.Context, marketId, depositor string, amount uint64,
) (err errors.Error) {
	defer func() { s.metrics.record(ctx, "mint_complete_sets", err) }()

	if err := validateAmount(amount); err != nil {
		return err
	}
	owner, err := parseSigner(depositor)
	if err != nil {
		return err
	}
	now := s.clock.Now().Unix()

	err = s.runInTx(ctx, func(
		ctx context.Context, markets domain.MarketRepository, ledger *AssetLedger,
	) errors.Error {
		market, err := getMarket(ctx, markets, marketId)
		if err != nil {
			return err
		}
		if market.IsResolved() {
			return errors.MARKET_ALREADY_RESOLVED.New("market %s is resolved", marketId).
				WithMetadata(errors.MarketResolvedMetadata{
					MarketId: marketId,
					Winner:   market.Winner,
				})
		}
		if market.IsExpired(now) {
			return errors.MARKET_EXPIRED.New("market %s expired", marketId).
				WithMetadata(errors.MarketExpiryMetadata{
					MarketId: marketId,
					Expiry:   market.Expiry,
					Now:      now,
				})
		}

		holding, err := findHolding(ctx, ledger, owner.Address(), market.CollateralAssetId)
		if err != nil {
			return err
		}
		if holding == nil {
			return missingHolding(owner.Address(), market.CollateralAssetId, amount)
		}
		if err := ledger.Transfer(
			ctx, market.CollateralAssetId, holding.Id, market.VaultId, amount, owner,
		); err != nil {
			return err
		}

		authority, err := marketSigner(*market)
		if err != nil {
			return err
		}
		for _, outcome := range market.Outcomes {
			holdingId, err := ledger.findOrCreateHolding(ctx, owner.Address(), outcome.AssetId)
			if err != nil {
				return err
			}
			if err := ledger.Mint(ctx, outcome.AssetId, holdingId, amount, authority); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Debugf("minted %d complete sets of market %s to %s", amount, marketId, depositor)
	s.publishEvent(ports.CompleteSetsMinted, domain.MarketEvent{
		Type:      domain.EventCompleteSetsMinted,
		MarketId:  marketId,
		Owner:     owner.Address(),
		Amount:    amount,
		Timestamp: now,
	})
	return nil
}

func (s *service) RedeemCompleteSets(
	ctx context.Context, marketId, holder string, amount uint64,
) (err errors.Error) {
	defer func() { s.metrics.record(ctx, "redeem_complete_sets", err) }()

	if err := s.redeemCompleteSets(ctx, marketId, holder, amount, false); err != nil {
		return err
	}

	log.Debugf("redeemed %d complete sets of market %s for %s", amount, marketId, holder)
	s.publishEvent(ports.CompleteSetsRedeemed, domain.MarketEvent{
		Type:      domain.EventCompleteSetsRedeemed,
		MarketId:  marketId,
		Owner:     holder,
		Amount:    amount,
		Timestamp: s.clock.Now().Unix(),
	})
	return nil
}

func (s *service) ResolveMarket(
	ctx context.Context, marketId, oracle, winnerAssetId string,
) (err errors.Error) {
	defer func() { s.metrics.record(ctx, "resolve_market", err) }()

	now := s.clock.Now().Unix()

	err = s.runInTx(ctx, func(
		ctx context.Context, markets domain.MarketRepository, _ *AssetLedger,
	) errors.Error {
		market, err := getMarket(ctx, markets, marketId)
		if err != nil {
			return err
		}
		if market.IsResolved() {
			return errors.MARKET_ALREADY_RESOLVED.New("market %s already resolved", marketId).
				WithMetadata(errors.MarketResolvedMetadata{
					MarketId: marketId,
					Winner:   market.Winner,
				})
		}
		if oracle != market.Oracle {
			return errors.UNAUTHORIZED.New("signer is not the oracle of market %s", marketId).
				WithMetadata(errors.UnauthorizedMetadata{
					Expected: market.Oracle,
					Got:      oracle,
				})
		}
		if !market.HasOutcome(winnerAssetId) {
			return errors.INVALID_WINNER_ASSET.New(
				"asset %s is not an outcome of market %s", winnerAssetId, marketId,
			).WithMetadata(errors.InvalidWinnerMetadata{
				MarketId: marketId,
				Winner:   winnerAssetId,
				Outcomes: market.OutcomeIds(),
			})
		}
		if s.enforceExpiryOnResolve && market.Expiry > 0 && !market.IsExpired(now) {
			return errors.MARKET_NOT_EXPIRED.New("market %s not expired yet", marketId).
				WithMetadata(errors.MarketExpiryMetadata{
					MarketId: marketId,
					Expiry:   market.Expiry,
					Now:      now,
				})
		}

		if err := market.Resolve(winnerAssetId, now); err != nil {
			return errors.INTERNAL_ERROR.Wrap(err)
		}
		if err := markets.UpdateMarket(ctx, *market); err != nil {
			return errors.INTERNAL_ERROR.Wrap(err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Debugf("resolved market %s with winner %s", marketId, winnerAssetId)
	s.publishEvent(ports.MarketResolved, domain.MarketEvent{
		Type:      domain.EventMarketResolved,
		MarketId:  marketId,
		Winner:    winnerAssetId,
		Timestamp: now,
	})
	return nil
}

func (s *service) Redeem(
	ctx context.Context, marketId, holder string, amount uint64,
) (err errors.Error) {
	defer func() { s.metrics.record(ctx, "redeem", err) }()

	if err := s.redeemCompleteSets(ctx, marketId, holder, amount, true); err != nil {
		return err
	}

	log.Debugf("redeemed %d sets of resolved market %s for %s", amount, marketId, holder)
	s.publishEvent(ports.WinningsRedeemed, domain.MarketEvent{
		Type:      domain.EventWinningsRedeemed,
		MarketId:  marketId,
		Owner:     holder,
		Amount:    amount,
		Timestamp: s.clock.Now().Unix(),
	})
	return nil
}

func (s *service) ClaimProfits(
	ctx context.Context, marketId, holder string, amount uint64,
) (err errors.Error) {
	defer func() { s.metrics.record(ctx, "claim_profits", err) }()

	if err := validateAmount(amount); err != nil {
		return err
	}
	owner, err := parseSigner(holder)
	if err != nil {
		return err
	}

	var winner string
	err = s.runInTx(ctx, func(
		ctx context.Context, markets domain.MarketRepository, ledger *AssetLedger,
	) errors.Error {
		market, err := getMarket(ctx, markets, marketId)
		if err != nil {
			return err
		}
		if !market.IsResolved() {
			return marketNotResolved(marketId)
		}
		winner = market.Winner

		holding, err := findHolding(ctx, ledger, owner.Address(), market.Winner)
		if err != nil {
			return err
		}
		if holding == nil {
			return missingHolding(owner.Address(), market.Winner, amount)
		}
		if err := ledger.Burn(ctx, market.Winner, holding.Id, amount, owner); err != nil {
			return err
		}

		return payFromVault(ctx, ledger, *market, owner.Address(), amount)
	})
	if err != nil {
		return err
	}

	log.Debugf("claimed %d profits of market %s for %s", amount, marketId, holder)
	s.publishEvent(ports.ProfitsClaimed, domain.MarketEvent{
		Type:      domain.EventProfitsClaimed,
		MarketId:  marketId,
		Owner:     owner.Address(),
		Amount:    amount,
		Winner:    winner,
		Timestamp: s.clock.Now().Unix(),
	})
	return nil
}

func (s *service) GetMarket(ctx context.Context, marketId string) (*domain.Market, errors.Error) {
	return getMarket(ctx, s.repoManager.Markets(), marketId)
}

func (s *service) ListMarkets(ctx context.Context) ([]domain.Market, errors.Error) {
	markets, err := s.repoManager.Markets().ListMarkets(ctx)
	if err != nil {
		return nil, errors.INTERNAL_ERROR.Wrap(err)
	}
	return markets, nil
}

func (s *service) GetBalances(
	ctx context.Context, marketId, owner string,
) (*MarketBalances, errors.Error) {
	market, err := getMarket(ctx, s.repoManager.Markets(), marketId)
	if err != nil {
		return nil, err
	}
	ledger := NewAssetLedger(s.repoManager.Ledger())

	collateral, err := holdingBalance(ctx, ledger, owner, market.CollateralAssetId)
	if err != nil {
		return nil, err
	}
	balances := &MarketBalances{
		MarketId:   marketId,
		Owner:      owner,
		Collateral: collateral,
		Outcomes:   make([]OutcomeBalance, 0, len(market.Outcomes)),
	}
	for _, outcome := range market.Outcomes {
		amount, err := holdingBalance(ctx, ledger, owner, outcome.AssetId)
		if err != nil {
			return nil, err
		}
		balances.Outcomes = append(balances.Outcomes, OutcomeBalance{
			AssetId: outcome.AssetId,
			Name:    outcome.Name,
			Amount:  amount,
		})
	}
	return balances, nil
}

func (s *service) GetMarketStats(ctx context.Context, marketId string) (*MarketStats, errors.Error) {
	market, err := getMarket(ctx, s.repoManager.Markets(), marketId)
	if err != nil {
		return nil, err
	}
	ledger := NewAssetLedger(s.repoManager.Ledger())

	vault, err := ledger.BalanceOf(ctx, market.VaultId)
	if err != nil {
		return nil, err
	}
	stats := &MarketStats{
		MarketId: marketId,
		Vault:    vault,
		Outcomes: make([]OutcomeBalance, 0, len(market.Outcomes)),
		Expired:  market.IsExpired(s.clock.Now().Unix()),
		Winner:   market.Winner,
	}
	for _, outcome := range market.Outcomes {
		asset, err := ledger.getAsset(ctx, outcome.AssetId)
		if err != nil {
			return nil, err
		}
		stats.Outcomes = append(stats.Outcomes, OutcomeBalance{
			AssetId: outcome.AssetId,
			Name:    outcome.Name,
			Amount:  asset.Supply,
		})
	}
	return stats, nil
}

// redeemCompleteSets burns amount of every outcome asset owned by holder and pays back the
// same amount of collateral from the vault.
func (s *service) redeemCompleteSets(
	ctx context.Context, marketId, holder string, amount uint64, requireResolved bool,
) errors.Error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	owner, err := parseSigner(holder)
	if err != nil {
		return err
	}

	return s.runInTx(ctx, func(
		ctx context.Context, markets domain.MarketRepository, ledger *AssetLedger,
	) errors.Error {
		market, err := getMarket(ctx, markets, marketId)
		if err != nil {
			return err
		}
		if requireResolved && !market.IsResolved() {
			return marketNotResolved(marketId)
		}

		for _, outcome := range market.Outcomes {
			holding, err := findHolding(ctx, ledger, owner.Address(), outcome.AssetId)
			if err != nil {
				return err
			}
			if holding == nil {
				return missingHolding(owner.Address(), outcome.AssetId, amount)
			}
			if err := ledger.Burn(ctx, outcome.AssetId, holding.Id, amount, owner); err != nil {
				return err
			}
		}

		return payFromVault(ctx, ledger, *market, owner.Address(), amount)
	})
}

func (s *service) runInTx(
	ctx context.Context,
	fn func(
		ctx context.Context, markets domain.MarketRepository, ledger *AssetLedger,
	) errors.Error,
) errors.Error {
	err := s.repoManager.RunInTx(ctx, func(
		ctx context.Context, markets domain.MarketRepository, repo domain.LedgerRepository,
	) error {
		if err := fn(ctx, markets, NewAssetLedger(repo)); err != nil {
			return err
		}
		return nil
	})
	return toError(err)
}

// validateMarketAssets makes sure the market is backed by a fresh set of assets: outcome
// assets with no supply that only the market authority can mint, and an empty collateral
// vault owned by the authority.
func validateMarketAssets(
	ctx context.Context, ledger *AssetLedger, market domain.Market,
) errors.Error {
	if _, err := ledger.getAsset(ctx, market.CollateralAssetId); err != nil {
		return invalidMarketConfig(market.Id, err)
	}
	for _, outcome := range market.Outcomes {
		asset, err := ledger.getAsset(ctx, outcome.AssetId)
		if err != nil {
			return invalidMarketConfig(market.Id, err)
		}
		if asset.MintAuthority != market.Authority {
			return invalidMarketConfig(market.Id, fmt.Errorf(
				"mint authority of outcome %s is not the market authority", outcome.AssetId,
			))
		}
		if asset.Supply != 0 {
			return invalidMarketConfig(market.Id, fmt.Errorf(
				"outcome %s has non-zero supply %d", outcome.AssetId, asset.Supply,
			))
		}
	}

	vault, err := ledger.getHolding(ctx, market.VaultId, market.CollateralAssetId)
	if err != nil {
		return invalidMarketConfig(market.Id, err)
	}
	if vault.Owner != market.Authority {
		return invalidMarketConfig(
			market.Id, fmt.Errorf("vault %s is not owned by the market authority", vault.Id),
		)
	}
	if vault.Balance != 0 {
		return invalidMarketConfig(
			market.Id, fmt.Errorf("vault %s is not empty: %d", vault.Id, vault.Balance),
		)
	}
	return nil
}

// payFromVault moves amount collateral from the market vault to the holder's collateral
// holding, signing with the market authority.
func payFromVault(
	ctx context.Context, ledger *AssetLedger, market domain.Market, holder string, amount uint64,
) errors.Error {
	authority, err := marketSigner(market)
	if err != nil {
		return err
	}
	holdingId, err := ledger.findOrCreateHolding(ctx, holder, market.CollateralAssetId)
	if err != nil {
		return err
	}
	return ledger.Transfer(
		ctx, market.CollateralAssetId, market.VaultId, holdingId, amount, authority,
	)
}

func getMarket(
	ctx context.Context, markets domain.MarketRepository, marketId string,
) (*domain.Market, errors.Error) {
	market, err := markets.GetMarket(ctx, marketId)
	if err != nil {
		return nil, errors.INTERNAL_ERROR.Wrap(err)
	}
	if market == nil {
		return nil, errors.MARKET_NOT_FOUND.New("market %s not found", marketId).
			WithMetadata(errors.MarketMetadata{MarketId: marketId})
	}
	return market, nil
}

func findHolding(
	ctx context.Context, ledger *AssetLedger, owner, assetId string,
) (*domain.Holding, errors.Error) {
	holding, err := ledger.repo.FindHolding(ctx, owner, assetId)
	if err != nil {
		return nil, errors.INTERNAL_ERROR.Wrap(err)
	}
	return holding, nil
}

func holdingBalance(
	ctx context.Context, ledger *AssetLedger, owner, assetId string,
) (uint64, errors.Error) {
	holding, err := findHolding(ctx, ledger, owner, assetId)
	if err != nil {
		return 0, err
	}
	if holding == nil {
		return 0, nil
	}
	return holding.Balance, nil
}

func marketSigner(market domain.Market) (domain.Authority, errors.Error) {
	authority, err := market.Signer()
	if err != nil {
		return domain.Authority{}, errors.INTERNAL_ERROR.Wrap(err)
	}
	return authority, nil
}

func missingHolding(owner, assetId string, amount uint64) errors.Error {
	return errors.INSUFFICIENT_BALANCE.New(
		"%s has no holding of asset %s", owner, assetId,
	).WithMetadata(errors.InsufficientBalanceMetadata{
		AssetId:  assetId,
		Balance:  0,
		Required: amount,
	})
}

func marketNotResolved(marketId string) errors.Error {
	return errors.MARKET_NOT_RESOLVED.New("market %s not resolved yet", marketId).
		WithMetadata(errors.MarketMetadata{MarketId: marketId})
}

func invalidMarketConfig(marketId string, err error) errors.Error {
	return errors.INVALID_MARKET_CONFIG.Wrap(err).
		WithMetadata(map[string]any{"market_id": marketId})
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}
