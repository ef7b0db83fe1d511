package application

import (
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/arkade-os/marketd/internal/core/domain"
	"github.com/arkade-os/marketd/internal/core/ports"
	inmemorydb "github.com/arkade-os/marketd/internal/infrastructure/db/inmemory"
	"github.com/arkade-os/marketd/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNewService(t *testing.T) {
	svc, err := NewService(nil, nil, nil, nil, true)
	require.Error(t, err)
	require.Nil(t, svc)

	svc, err = NewService(inmemorydb.NewRepoManager(), nil, nil, nil, true)
	require.NoError(t, err)
	require.NotNil(t, svc)
	require.Nil(t, svc.Start())
	svc.Stop()
}

func TestMarketLifecycle(t *testing.T) {
	env := newTestEnv(t, true)
	expiry := testNow + 3600
	market := env.newMarket(t, expiry, 2)
	yes, no := market.Outcomes[0].AssetId, market.Outcomes[1].AssetId

	alice := env.newUser(t, 1000)
	bob := env.newUser(t, 500)

	err := env.svc.MintCompleteSets(ctx, market.Id, alice, 300)
	require.Nil(t, err)
	err = env.svc.MintCompleteSets(ctx, market.Id, bob, 500)
	require.Nil(t, err)
	env.requireVaultBacksSupply(t, market.Id)

	balances := env.balances(t, market.Id, alice)
	require.Equal(t, uint64(700), balances.Collateral)
	require.Len(t, balances.Outcomes, 2)
	for _, o := range balances.Outcomes {
		require.Equal(t, uint64(300), o.Amount)
	}

	// Alice exits part of her position before resolution.
	err = env.svc.RedeemCompleteSets(ctx, market.Id, alice, 100)
	require.Nil(t, err)
	env.requireVaultBacksSupply(t, market.Id)
	require.Equal(t, uint64(800), env.balances(t, market.Id, alice).Collateral)

	// Bob sells his losing tokens to alice.
	aliceNo, ferr := env.repo.Ledger().FindHolding(ctx, alice, no)
	require.NoError(t, ferr)
	bobNo, ferr := env.repo.Ledger().FindHolding(ctx, bob, no)
	require.NoError(t, ferr)
	err = env.ledger.Transfer(ctx, no, bobNo.Id, aliceNo.Id, 500, bob)
	require.Nil(t, err)

	env.clock.set(expiry)
	err = env.svc.ResolveMarket(ctx, market.Id, env.oracle, yes)
	require.Nil(t, err)
	env.requireVaultBacksSupply(t, market.Id)

	resolved, err := env.svc.GetMarket(ctx, market.Id)
	require.Nil(t, err)
	require.Equal(t, yes, resolved.Winner)
	require.Equal(t, expiry, resolved.ResolvedAt)

	// Alice holds 200 complete sets plus 500 losing tokens.
	err = env.svc.Redeem(ctx, market.Id, alice, 200)
	require.Nil(t, err)
	env.requireVaultBacksSupply(t, market.Id)

	err = env.svc.ClaimProfits(ctx, market.Id, bob, 500)
	require.Nil(t, err)
	env.requireVaultBacksSupply(t, market.Id)

	err = env.svc.ClaimProfits(ctx, market.Id, alice, 1)
	requireErrorCode(t, errors.INSUFFICIENT_BALANCE, err)

	aliceBalances := env.balances(t, market.Id, alice)
	require.Equal(t, uint64(1000), aliceBalances.Collateral)
	require.Equal(t, uint64(0), aliceBalances.Outcomes[0].Amount)
	require.Equal(t, uint64(500), aliceBalances.Outcomes[1].Amount)

	bobBalances := env.balances(t, market.Id, bob)
	require.Equal(t, uint64(500), bobBalances.Collateral)
	require.Equal(t, uint64(0), bobBalances.Outcomes[0].Amount)
	require.Equal(t, uint64(0), bobBalances.Outcomes[1].Amount)

	stats := env.stats(t, market.Id)
	require.Zero(t, stats.Vault)
	require.True(t, stats.Expired)
	require.Equal(t, yes, stats.Winner)
	require.Equal(t, uint64(0), stats.Outcomes[0].Amount)
	require.Equal(t, uint64(500), stats.Outcomes[1].Amount)

	require.Len(t, env.publisher.published(ports.MarketInitialized), 1)
	require.Len(t, env.publisher.published(ports.CompleteSetsMinted), 2)
	require.Len(t, env.publisher.published(ports.CompleteSetsRedeemed), 1)
	require.Len(t, env.publisher.published(ports.MarketResolved), 1)
	require.Len(t, env.publisher.published(ports.WinningsRedeemed), 1)
	require.Len(t, env.publisher.published(ports.ProfitsClaimed), 1)

	claimed := env.publisher.published(ports.ProfitsClaimed)[0]
	require.Equal(t, domain.EventProfitsClaimed, claimed.Type)
	require.Equal(t, market.Id, claimed.MarketId)
	require.Equal(t, bob, claimed.Owner)
	require.Equal(t, uint64(500), claimed.Amount)
	require.Equal(t, yes, claimed.Winner)
}

func TestInitializeMarket(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		env := newTestEnv(t, true)
		fixture := env.newMarketFixture(t, 3)

		market, err := env.svc.InitializeMarket(
			ctx, fixture.request(env.oracle, env.collateral, testNow+60),
		)
		require.Nil(t, err)
		require.Equal(t, domain.MarketId(fixture.seed), market.Id)
		require.Equal(t, fixture.authority.Address(), market.Authority)
		require.Equal(t, fixture.vault, market.VaultId)
		require.Equal(t, testNow, market.CreatedAt)
		require.False(t, market.IsResolved())
		require.Len(t, market.Outcomes, 3)

		stored, err := env.svc.GetMarket(ctx, market.Id)
		require.Nil(t, err)
		require.Equal(t, *market, *stored)

		events := env.publisher.published(ports.MarketInitialized)
		require.Len(t, events, 1)
		require.Equal(t, market.Id, events[0].MarketId)
		require.Equal(t, testNow, events[0].Timestamp)

		tasks := env.scheduler.scheduled()
		require.Len(t, tasks, 1)
		require.Equal(t, testNow+60, tasks[0].at)

		// No expiry, no watcher.
		env.newMarket(t, 0, 2)
		require.Len(t, env.scheduler.scheduled(), 1)
	})

	t.Run("invalid", func(t *testing.T) {
		env := newTestEnv(t, true)

		t.Run("already initialized", func(t *testing.T) {
			fixture := env.newMarketFixture(t, 2)
			req := fixture.request(env.oracle, env.collateral, 0)
			_, err := env.svc.InitializeMarket(ctx, req)
			require.Nil(t, err)

			_, err = env.svc.InitializeMarket(ctx, req)
			requireErrorCode(t, errors.ALREADY_INITIALIZED, err)
		})

		t.Run("authority mismatch", func(t *testing.T) {
			fixture := env.newMarketFixture(t, 2)
			req := fixture.request(env.oracle, env.collateral, 0)
			req.Authority = newPubkey(t)
			_, err := env.svc.InitializeMarket(ctx, req)
			requireErrorCode(t, errors.UNAUTHORIZED, err)

			other, derr := domain.DeriveAuthority([]byte("other"))
			require.NoError(t, derr)
			req = fixture.request(env.oracle, env.collateral, 0)
			req.Authority = other.Address()
			req.Nonce = other.Nonce()
			_, err = env.svc.InitializeMarket(ctx, req)
			requireErrorCode(t, errors.UNAUTHORIZED, err)
		})

		t.Run("invalid seed", func(t *testing.T) {
			fixture := env.newMarketFixture(t, 2)
			req := fixture.request(env.oracle, env.collateral, 0)
			req.SignerSeed = make([]byte, domain.MaxSeedLen+1)
			_, err := env.svc.InitializeMarket(ctx, req)
			requireErrorCode(t, errors.UNAUTHORIZED, err)
		})

		fixtures := []struct {
			name  string
			setup func(t *testing.T, f *marketFixture, req *InitMarketRequest)
		}{
			{
				name: "single outcome",
				setup: func(_ *testing.T, _ *marketFixture, req *InitMarketRequest) {
					req.Outcomes = req.Outcomes[:1]
				},
			},
			{
				name: "too many outcomes",
				setup: func(_ *testing.T, _ *marketFixture, req *InitMarketRequest) {
					for i := 0; i < domain.MaxOutcomes; i++ {
						req.Outcomes = append(req.Outcomes, domain.Outcome{
							AssetId: fmt.Sprintf("extra-%d", i),
						})
					}
				},
			},
			{
				name: "missing oracle",
				setup: func(_ *testing.T, _ *marketFixture, req *InitMarketRequest) {
					req.Oracle = ""
				},
			},
			{
				name: "negative expiry",
				setup: func(_ *testing.T, _ *marketFixture, req *InitMarketRequest) {
					req.Expiry = -1
				},
			},
			{
				name: "unknown collateral",
				setup: func(t *testing.T, _ *marketFixture, req *InitMarketRequest) {
					req.CollateralAssetId = "unknown"
				},
			},
			{
				name: "unknown outcome asset",
				setup: func(_ *testing.T, _ *marketFixture, req *InitMarketRequest) {
					req.Outcomes[1].AssetId = "unknown"
				},
			},
			{
				name: "outcome minted by someone else",
				setup: func(t *testing.T, _ *marketFixture, req *InitMarketRequest) {
					assetId, err := env.ledger.CreateAsset(ctx, 8, newPubkey(t))
					require.Nil(t, err)
					req.Outcomes[0].AssetId = assetId
				},
			},
			{
				name: "outcome with supply",
				setup: func(t *testing.T, f *marketFixture, req *InitMarketRequest) {
					assetId := f.outcomes[0].AssetId
					holdingId, err := env.ledger.CreateHolding(ctx, newPubkey(t), assetId)
					require.Nil(t, err)
					err = NewAssetLedger(env.repo.Ledger()).
						Mint(ctx, assetId, holdingId, 1, f.authority)
					require.Nil(t, err)
				},
			},
			{
				name: "vault of other asset",
				setup: func(t *testing.T, f *marketFixture, req *InitMarketRequest) {
					vault, err := env.ledger.CreateHolding(
						ctx, f.authority.Address(), f.outcomes[0].AssetId,
					)
					require.Nil(t, err)
					req.VaultId = vault
				},
			},
			{
				name: "vault owned by someone else",
				setup: func(t *testing.T, _ *marketFixture, req *InitMarketRequest) {
					vault, err := env.ledger.CreateHolding(ctx, newPubkey(t), env.collateral)
					require.Nil(t, err)
					req.VaultId = vault
				},
			},
			{
				name: "vault not empty",
				setup: func(t *testing.T, f *marketFixture, req *InitMarketRequest) {
					issuerHolding, err := env.ledger.CreateHolding(ctx, env.issuer, env.collateral)
					require.Nil(t, err)
					err = env.ledger.Mint(ctx, env.collateral, issuerHolding, 10, env.issuer)
					require.Nil(t, err)
					err = env.ledger.Transfer(
						ctx, env.collateral, issuerHolding, f.vault, 10, env.issuer,
					)
					require.Nil(t, err)
				},
			},
		}
		for _, f := range fixtures {
			t.Run(f.name, func(t *testing.T) {
				fixture := env.newMarketFixture(t, 2)
				req := fixture.request(env.oracle, env.collateral, 0)
				f.setup(t, &fixture, &req)

				market, err := env.svc.InitializeMarket(ctx, req)
				requireErrorCode(t, errors.INVALID_MARKET_CONFIG, err)
				require.Nil(t, market)

				_, err = env.svc.GetMarket(ctx, domain.MarketId(fixture.seed))
				requireErrorCode(t, errors.MARKET_NOT_FOUND, err)
			})
		}
	})
}

func TestMintCompleteSets(t *testing.T) {
	env := newTestEnv(t, true)
	expiry := testNow + 3600
	market := env.newMarket(t, expiry, 3)

	t.Run("valid", func(t *testing.T) {
		user := env.newUser(t, 100)

		err := env.svc.MintCompleteSets(ctx, market.Id, user, 40)
		require.Nil(t, err)
		err = env.svc.MintCompleteSets(ctx, market.Id, user, 60)
		require.Nil(t, err)

		balances := env.balances(t, market.Id, user)
		require.Zero(t, balances.Collateral)
		for _, o := range balances.Outcomes {
			require.Equal(t, uint64(100), o.Amount)
		}
		env.requireVaultBacksSupply(t, market.Id)

		events := env.publisher.published(ports.CompleteSetsMinted)
		require.Len(t, events, 2)
		require.Equal(t, user, events[1].Owner)
		require.Equal(t, uint64(60), events[1].Amount)
	})

	t.Run("invalid", func(t *testing.T) {
		fixtures := []struct {
			name      string
			marketId  string
			depositor func(t *testing.T) string
			amount    uint64
			expected  string
		}{
			{
				name:      "zero amount",
				marketId:  market.Id,
				depositor: func(t *testing.T) string { return env.newUser(t, 10) },
				amount:    0,
				expected:  errors.INVALID_AMOUNT.Name,
			},
			{
				name:      "invalid depositor",
				marketId:  market.Id,
				depositor: func(*testing.T) string { return market.Authority },
				amount:    1,
				expected:  errors.UNAUTHORIZED.Name,
			},
			{
				name:      "unknown market",
				marketId:  "aabbcc",
				depositor: func(t *testing.T) string { return env.newUser(t, 10) },
				amount:    1,
				expected:  errors.MARKET_NOT_FOUND.Name,
			},
			{
				name:      "insufficient collateral",
				marketId:  market.Id,
				depositor: func(t *testing.T) string { return env.newUser(t, 10) },
				amount:    11,
				expected:  errors.INSUFFICIENT_BALANCE.Name,
			},
			{
				name:      "no collateral holding",
				marketId:  market.Id,
				depositor: newPubkey,
				amount:    1,
				expected:  errors.INSUFFICIENT_BALANCE.Name,
			},
		}
		for _, f := range fixtures {
			t.Run(f.name, func(t *testing.T) {
				before := env.stats(t, market.Id)
				depositor := f.depositor(t)

				err := env.svc.MintCompleteSets(ctx, f.marketId, depositor, f.amount)
				require.NotNil(t, err)
				require.Equal(t, f.expected, err.CodeName(), err.Error())

				require.Equal(t, before, env.stats(t, market.Id))
			})
		}
	})

	t.Run("expired", func(t *testing.T) {
		user := env.newUser(t, 10)
		env.clock.set(expiry)
		defer env.clock.set(testNow)

		err := env.svc.MintCompleteSets(ctx, market.Id, user, 1)
		requireErrorCode(t, errors.MARKET_EXPIRED, err)
		require.Equal(t, uint64(10), env.balances(t, market.Id, user).Collateral)
	})

	t.Run("resolved", func(t *testing.T) {
		env := newTestEnv(t, false)
		market := env.newMarket(t, 0, 2)
		user := env.newUser(t, 10)

		err := env.svc.ResolveMarket(ctx, market.Id, env.oracle, market.Outcomes[0].AssetId)
		require.Nil(t, err)

		err = env.svc.MintCompleteSets(ctx, market.Id, user, 1)
		requireErrorCode(t, errors.MARKET_ALREADY_RESOLVED, err)
	})

	t.Run("max amount", func(t *testing.T) {
		env := newTestEnv(t, true)
		market := env.newMarket(t, 0, 2)
		whale := env.newUser(t, math.MaxUint64)

		err := env.svc.MintCompleteSets(ctx, market.Id, whale, math.MaxUint64)
		require.Nil(t, err)
		require.Equal(t, uint64(math.MaxUint64), env.stats(t, market.Id).Vault)
		env.requireVaultBacksSupply(t, market.Id)

		err = env.svc.RedeemCompleteSets(ctx, market.Id, whale, math.MaxUint64)
		require.Nil(t, err)
		require.Equal(t, uint64(math.MaxUint64), env.balances(t, market.Id, whale).Collateral)
	})
}

func TestRedeemCompleteSets(t *testing.T) {
	env := newTestEnv(t, true)
	market := env.newMarket(t, testNow+3600, 2)
	user := env.newUser(t, 100)
	other := env.newUser(t, 0)

	err := env.svc.MintCompleteSets(ctx, market.Id, user, 100)
	require.Nil(t, err)

	t.Run("valid", func(t *testing.T) {
		err := env.svc.RedeemCompleteSets(ctx, market.Id, user, 10)
		require.Nil(t, err)

		balances := env.balances(t, market.Id, user)
		require.Equal(t, uint64(10), balances.Collateral)
		for _, o := range balances.Outcomes {
			require.Equal(t, uint64(90), o.Amount)
		}
		env.requireVaultBacksSupply(t, market.Id)

		events := env.publisher.published(ports.CompleteSetsRedeemed)
		require.Len(t, events, 1)
		require.Equal(t, uint64(10), events[0].Amount)
	})

	t.Run("incomplete set", func(t *testing.T) {
		no := market.Outcomes[1].AssetId
		userNo, ferr := env.repo.Ledger().FindHolding(ctx, user, no)
		require.NoError(t, ferr)
		otherNo, err := env.ledger.CreateHolding(ctx, other, no)
		require.Nil(t, err)
		err = env.ledger.Transfer(ctx, no, userNo.Id, otherNo, 50, user)
		require.Nil(t, err)

		before := env.stats(t, market.Id)

		err = env.svc.RedeemCompleteSets(ctx, market.Id, user, 60)
		requireErrorCode(t, errors.INSUFFICIENT_BALANCE, err)

		// The burn of the first outcome is rolled back.
		require.Equal(t, before, env.stats(t, market.Id))
		balances := env.balances(t, market.Id, user)
		require.Equal(t, uint64(90), balances.Outcomes[0].Amount)
		require.Equal(t, uint64(40), balances.Outcomes[1].Amount)

		err = env.svc.RedeemCompleteSets(ctx, market.Id, other, 1)
		requireErrorCode(t, errors.INSUFFICIENT_BALANCE, err)
	})

	t.Run("after resolution", func(t *testing.T) {
		env := newTestEnv(t, false)
		market := env.newMarket(t, 0, 2)
		user := env.newUser(t, 10)

		err := env.svc.MintCompleteSets(ctx, market.Id, user, 10)
		require.Nil(t, err)
		err = env.svc.ResolveMarket(ctx, market.Id, env.oracle, market.Outcomes[1].AssetId)
		require.Nil(t, err)

		err = env.svc.RedeemCompleteSets(ctx, market.Id, user, 10)
		require.Nil(t, err)
		require.Equal(t, uint64(10), env.balances(t, market.Id, user).Collateral)
		require.Zero(t, env.stats(t, market.Id).Vault)
	})

	t.Run("invalid amount", func(t *testing.T) {
		err := env.svc.RedeemCompleteSets(ctx, market.Id, user, 0)
		requireErrorCode(t, errors.INVALID_AMOUNT, err)
	})
}

func TestResolveMarket(t *testing.T) {
	expiry := testNow + 3600

	t.Run("valid", func(t *testing.T) {
		env := newTestEnv(t, true)
		market := env.newMarket(t, expiry, 3)
		winner := market.Outcomes[2].AssetId

		env.clock.set(expiry + 1)
		err := env.svc.ResolveMarket(ctx, market.Id, env.oracle, winner)
		require.Nil(t, err)

		resolved, err := env.svc.GetMarket(ctx, market.Id)
		require.Nil(t, err)
		require.Equal(t, winner, resolved.Winner)
		require.Equal(t, expiry+1, resolved.ResolvedAt)

		events := env.publisher.published(ports.MarketResolved)
		require.Len(t, events, 1)
		require.Equal(t, winner, events[0].Winner)
	})

	t.Run("without expiry", func(t *testing.T) {
		env := newTestEnv(t, true)
		market := env.newMarket(t, 0, 2)

		err := env.svc.ResolveMarket(ctx, market.Id, env.oracle, market.Outcomes[0].AssetId)
		require.Nil(t, err)
	})

	t.Run("before expiry if not enforced", func(t *testing.T) {
		env := newTestEnv(t, false)
		market := env.newMarket(t, expiry, 2)

		err := env.svc.ResolveMarket(ctx, market.Id, env.oracle, market.Outcomes[0].AssetId)
		require.Nil(t, err)
	})

	t.Run("invalid", func(t *testing.T) {
		env := newTestEnv(t, true)
		market := env.newMarket(t, expiry, 2)
		winner := market.Outcomes[0].AssetId

		err := env.svc.ResolveMarket(ctx, market.Id, env.oracle, winner)
		requireErrorCode(t, errors.MARKET_NOT_EXPIRED, err)

		env.clock.set(expiry)

		err = env.svc.ResolveMarket(ctx, "aabbcc", env.oracle, winner)
		requireErrorCode(t, errors.MARKET_NOT_FOUND, err)

		err = env.svc.ResolveMarket(ctx, market.Id, newPubkey(t), winner)
		requireErrorCode(t, errors.UNAUTHORIZED, err)

		err = env.svc.ResolveMarket(ctx, market.Id, env.oracle, env.collateral)
		requireErrorCode(t, errors.INVALID_WINNER_ASSET, err)

		stored, err := env.svc.GetMarket(ctx, market.Id)
		require.Nil(t, err)
		require.False(t, stored.IsResolved())
		require.Empty(t, env.publisher.published(ports.MarketResolved))

		err = env.svc.ResolveMarket(ctx, market.Id, env.oracle, winner)
		require.Nil(t, err)

		err = env.svc.ResolveMarket(ctx, market.Id, env.oracle, market.Outcomes[1].AssetId)
		requireErrorCode(t, errors.MARKET_ALREADY_RESOLVED, err)

		stored, err = env.svc.GetMarket(ctx, market.Id)
		require.Nil(t, err)
		require.Equal(t, winner, stored.Winner)
	})
}

func TestRedeem(t *testing.T) {
	env := newTestEnv(t, false)
	market := env.newMarket(t, 0, 2)
	user := env.newUser(t, 50)

	err := env.svc.MintCompleteSets(ctx, market.Id, user, 50)
	require.Nil(t, err)

	err = env.svc.Redeem(ctx, market.Id, user, 10)
	requireErrorCode(t, errors.MARKET_NOT_RESOLVED, err)

	err = env.svc.ResolveMarket(ctx, market.Id, env.oracle, market.Outcomes[0].AssetId)
	require.Nil(t, err)

	err = env.svc.Redeem(ctx, market.Id, user, 0)
	requireErrorCode(t, errors.INVALID_AMOUNT, err)

	err = env.svc.Redeem(ctx, market.Id, user, 51)
	requireErrorCode(t, errors.INSUFFICIENT_BALANCE, err)

	err = env.svc.Redeem(ctx, market.Id, user, 50)
	require.Nil(t, err)

	balances := env.balances(t, market.Id, user)
	require.Equal(t, uint64(50), balances.Collateral)
	for _, o := range balances.Outcomes {
		require.Zero(t, o.Amount)
	}
	require.Zero(t, env.stats(t, market.Id).Vault)
	require.Len(t, env.publisher.published(ports.WinningsRedeemed), 1)
}

func TestClaimProfits(t *testing.T) {
	env := newTestEnv(t, false)
	market := env.newMarket(t, 0, 2)
	yes, no := market.Outcomes[0].AssetId, market.Outcomes[1].AssetId
	winner := env.newUser(t, 100)
	loser := env.newUser(t, 0)
	// The buyer never held collateral.
	buyer := newPubkey(t)

	err := env.svc.MintCompleteSets(ctx, market.Id, winner, 100)
	require.Nil(t, err)

	// The winner sells all the losing tokens and some of the winning ones.
	winnerNo, ferr := env.repo.Ledger().FindHolding(ctx, winner, no)
	require.NoError(t, ferr)
	loserNo, err := env.ledger.CreateHolding(ctx, loser, no)
	require.Nil(t, err)
	err = env.ledger.Transfer(ctx, no, winnerNo.Id, loserNo, 100, winner)
	require.Nil(t, err)

	winnerYes, ferr := env.repo.Ledger().FindHolding(ctx, winner, yes)
	require.NoError(t, ferr)
	buyerYes, err := env.ledger.CreateHolding(ctx, buyer, yes)
	require.Nil(t, err)
	err = env.ledger.Transfer(ctx, yes, winnerYes.Id, buyerYes, 20, winner)
	require.Nil(t, err)

	err = env.svc.ClaimProfits(ctx, market.Id, winner, 10)
	requireErrorCode(t, errors.MARKET_NOT_RESOLVED, err)

	err = env.svc.ResolveMarket(ctx, market.Id, env.oracle, yes)
	require.Nil(t, err)

	t.Run("invalid", func(t *testing.T) {
		before := env.stats(t, market.Id)

		err := env.svc.ClaimProfits(ctx, market.Id, loser, 1)
		requireErrorCode(t, errors.INSUFFICIENT_BALANCE, err)

		err = env.svc.ClaimProfits(ctx, market.Id, winner, 81)
		requireErrorCode(t, errors.INSUFFICIENT_BALANCE, err)

		err = env.svc.ClaimProfits(ctx, market.Id, winner, 0)
		requireErrorCode(t, errors.INVALID_AMOUNT, err)

		err = env.svc.ClaimProfits(ctx, market.Id, "not-a-pubkey", 1)
		requireErrorCode(t, errors.UNAUTHORIZED, err)

		err = env.svc.ClaimProfits(ctx, "aabbcc", winner, 1)
		requireErrorCode(t, errors.MARKET_NOT_FOUND, err)

		require.Equal(t, before, env.stats(t, market.Id))
	})

	t.Run("valid", func(t *testing.T) {
		err := env.svc.ClaimProfits(ctx, market.Id, winner, 30)
		require.Nil(t, err)
		err = env.svc.ClaimProfits(ctx, market.Id, winner, 50)
		require.Nil(t, err)
		err = env.svc.ClaimProfits(ctx, market.Id, buyer, 20)
		require.Nil(t, err)

		balances := env.balances(t, market.Id, winner)
		require.Equal(t, uint64(80), balances.Collateral)
		require.Zero(t, balances.Outcomes[0].Amount)

		balances = env.balances(t, market.Id, buyer)
		require.Equal(t, uint64(20), balances.Collateral)
		require.Zero(t, balances.Outcomes[0].Amount)

		stats := env.stats(t, market.Id)
		require.Zero(t, stats.Vault)
		require.Zero(t, stats.Outcomes[0].Amount)
		require.Equal(t, uint64(100), stats.Outcomes[1].Amount)
		require.Len(t, env.publisher.published(ports.ProfitsClaimed), 3)
	})
}

func TestPublishFailure(t *testing.T) {
	repo := inmemorydb.NewRepoManager()
	publisher := &mockPublisher{}
	publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).
		Return(fmt.Errorf("broker unreachable"))
	svc, err := NewService(repo, publisher, nil, &fixedClock{now: testNow}, false)
	require.NoError(t, err)

	env := &testEnv{
		svc:       svc,
		ledger:    NewLedgerService(repo),
		repo:      repo,
		publisher: publisher,
		oracle:    newPubkey(t),
		issuer:    newPubkey(t),
	}
	collateral, lerr := env.ledger.CreateAsset(ctx, 8, env.issuer)
	require.Nil(t, lerr)
	env.collateral = collateral

	market := env.newMarket(t, 0, 2)
	user := env.newUser(t, 10)

	err = env.svc.MintCompleteSets(ctx, market.Id, user, 10)
	require.NoError(t, err)
	require.Equal(t, uint64(10), env.stats(t, market.Id).Vault)
	publisher.AssertNumberOfCalls(t, "Publish", 2)
}

func TestExpiryWatcher(t *testing.T) {
	expiry := testNow + 3600

	t.Run("notify expiry", func(t *testing.T) {
		env := newTestEnv(t, true)
		market := env.newMarket(t, expiry, 2)

		env.clock.set(expiry)
		env.scheduler.fire()

		events := env.publisher.published(ports.MarketExpired)
		require.Len(t, events, 1)
		require.Equal(t, market.Id, events[0].MarketId)
		require.Equal(t, domain.EventMarketExpired, events[0].Type)
		require.Equal(t, expiry, events[0].Timestamp)
		require.True(t, env.stats(t, market.Id).Expired)
	})

	t.Run("skip resolved", func(t *testing.T) {
		env := newTestEnv(t, false)
		market := env.newMarket(t, expiry, 2)

		err := env.svc.ResolveMarket(ctx, market.Id, env.oracle, market.Outcomes[0].AssetId)
		require.Nil(t, err)

		env.scheduler.fire()
		require.Empty(t, env.publisher.published(ports.MarketExpired))
	})

	t.Run("restore on start", func(t *testing.T) {
		env := newTestEnv(t, false)
		open := env.newMarket(t, expiry, 2)
		env.newMarket(t, 0, 2)
		resolved := env.newMarket(t, expiry, 2)
		err := env.svc.ResolveMarket(
			ctx, resolved.Id, env.oracle, resolved.Outcomes[0].AssetId,
		)
		require.Nil(t, err)

		scheduler := &mockScheduler{}
		svc, serr := NewService(env.repo, env.publisher, scheduler, env.clock, false)
		require.NoError(t, serr)
		require.Nil(t, svc.Start())

		tasks := scheduler.scheduled()
		require.Len(t, tasks, 1)
		require.Equal(t, open.Expiry, tasks[0].at)

		env.clock.set(expiry + 10)
		scheduler.fire()
		events := env.publisher.published(ports.MarketExpired)
		require.Len(t, events, 1)
		require.Equal(t, open.Id, events[0].MarketId)
	})
}

func TestQueries(t *testing.T) {
	env := newTestEnv(t, true)

	markets, err := env.svc.ListMarkets(ctx)
	require.Nil(t, err)
	require.Empty(t, markets)

	first := env.newMarket(t, 0, 2)
	env.clock.set(testNow + 1)
	second := env.newMarket(t, 0, 4)

	markets, err = env.svc.ListMarkets(ctx)
	require.Nil(t, err)
	require.Len(t, markets, 2)
	require.Equal(t, first.Id, markets[0].Id)
	require.Equal(t, second.Id, markets[1].Id)

	stranger := newPubkey(t)
	balances := env.balances(t, second.Id, stranger)
	require.Equal(t, second.Id, balances.MarketId)
	require.Equal(t, stranger, balances.Owner)
	require.Zero(t, balances.Collateral)
	require.Len(t, balances.Outcomes, 4)
	for i, o := range balances.Outcomes {
		require.Equal(t, second.Outcomes[i].AssetId, o.AssetId)
		require.Equal(t, second.Outcomes[i].Name, o.Name)
		require.Zero(t, o.Amount)
	}

	stats := env.stats(t, second.Id)
	require.Zero(t, stats.Vault)
	require.False(t, stats.Expired)
	require.Empty(t, stats.Winner)
	require.Len(t, stats.Outcomes, 4)

	_, err = env.svc.GetBalances(ctx, "aabbcc", stranger)
	requireErrorCode(t, errors.MARKET_NOT_FOUND, err)
	_, err = env.svc.GetMarketStats(ctx, "aabbcc")
	requireErrorCode(t, errors.MARKET_NOT_FOUND, err)
}

func TestConcurrentMints(t *testing.T) {
	env := newTestEnv(t, true)
	market := env.newMarket(t, 0, 2)

	const numOfUsers, numOfMints = 5, 20
	users := make([]string, 0, numOfUsers)
	for i := 0; i < numOfUsers; i++ {
		users = append(users, env.newUser(t, numOfMints))
	}

	errs := make(chan errors.Error, numOfUsers*numOfMints)
	wg := &sync.WaitGroup{}
	wg.Add(numOfUsers * numOfMints)
	for _, user := range users {
		for j := 0; j < numOfMints; j++ {
			go func(user string) {
				defer wg.Done()
				errs <- env.svc.MintCompleteSets(ctx, market.Id, user, 1)
			}(user)
		}
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.Nil(t, err)
	}

	env.requireVaultBacksSupply(t, market.Id)
	require.Equal(t, uint64(numOfUsers*numOfMints), env.stats(t, market.Id).Vault)
	for _, user := range users {
		balances := env.balances(t, market.Id, user)
		require.Zero(t, balances.Collateral)
		for _, o := range balances.Outcomes {
			require.Equal(t, uint64(numOfMints), o.Amount)
		}
	}
}
