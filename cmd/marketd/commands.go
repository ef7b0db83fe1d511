package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/arkade-os/marketd/internal/core/application"
	"github.com/arkade-os/marketd/internal/core/domain"
	"github.com/arkade-os/marketd/internal/core/ports"
	watermillpublisher "github.com/arkade-os/marketd/internal/infrastructure/publisher/watermill"
	"github.com/arkade-os/marketd/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var (
	authorityCommand = cli.Command{
		Name:  "authority",
		Usage: "Derive market authorities",
		Subcommands: cli.Commands{
			{
				Name:   "derive",
				Usage:  "Derive the authority and bump nonce of a signer seed",
				Action: deriveAuthority,
				Flags:  []cli.Flag{seedFlag(true)},
			},
		},
	}
	assetCommand = cli.Command{
		Name:  "asset",
		Usage: "Manage ledger assets",
		Subcommands: cli.Commands{
			{
				Name:   "create",
				Usage:  "Create a new asset",
				Action: createAsset,
				Flags:  []cli.Flag{decimalsFlag, mintAuthorityFlag},
			},
			{
				Name:   "mint",
				Usage:  "Mint an amount of asset into a holding",
				Action: mintAsset,
				Flags:  []cli.Flag{assetFlag, holdingFlag, amountFlag, authorityFlag},
			},
			{
				Name:   "get",
				Usage:  "Show an asset",
				Action: getAsset,
				Flags:  []cli.Flag{assetFlag},
			},
		},
	}
	holdingCommand = cli.Command{
		Name:  "holding",
		Usage: "Manage ledger holdings",
		Subcommands: cli.Commands{
			{
				Name:   "create",
				Usage:  "Create an empty holding of an asset",
				Action: createHolding,
				Flags:  []cli.Flag{holdingOwnerFlag, assetFlag},
			},
			{
				Name:   "transfer",
				Usage:  "Transfer an amount of asset between two holdings",
				Action: transfer,
				Flags:  []cli.Flag{assetFlag, fromFlag, toFlag, amountFlag, ownerFlag},
			},
			{
				Name:   "balance",
				Usage:  "Show the balance of a holding",
				Action: holdingBalance,
				Flags:  []cli.Flag{holdingFlag},
			},
		},
	}
	marketCommand = cli.Command{
		Name:  "market",
		Usage: "Manage prediction markets",
		Subcommands: cli.Commands{
			{
				Name:   "init",
				Usage:  "Initialize a market on top of existing assets",
				Action: initMarket,
				Flags: []cli.Flag{
					seedFlag(true), oracleFlag, collateralFlag, vaultFlag, authorityFlag,
					nonceFlag, expiryFlag, outcomeFlag,
				},
			},
			{
				Name:   "create",
				Usage:  "Create the outcome assets and the vault of a new market and initialize it",
				Action: createMarket,
				Flags: []cli.Flag{
					seedFlag(false), oracleFlag, collateralFlag, expiryFlag, outcomesFlag,
				},
			},
			{
				Name:   "mint",
				Usage:  "Deposit collateral in exchange for complete sets of outcome tokens",
				Action: mintCompleteSets,
				Flags:  []cli.Flag{marketFlag, ownerFlag, amountFlag},
			},
			{
				Name:   "redeem-sets",
				Usage:  "Burn complete sets of outcome tokens in exchange for collateral",
				Action: redeemCompleteSets,
				Flags:  []cli.Flag{marketFlag, ownerFlag, amountFlag},
			},
			{
				Name:   "resolve",
				Usage:  "Declare the winning outcome of a market",
				Action: resolveMarket,
				Flags:  []cli.Flag{marketFlag, oracleFlag, winnerFlag},
			},
			{
				Name:   "redeem",
				Usage:  "Burn complete sets of a resolved market in exchange for collateral",
				Action: redeem,
				Flags:  []cli.Flag{marketFlag, ownerFlag, amountFlag},
			},
			{
				Name:   "claim",
				Usage:  "Burn winning tokens of a resolved market in exchange for collateral",
				Action: claimProfits,
				Flags:  []cli.Flag{marketFlag, ownerFlag, amountFlag},
			},
			{
				Name:   "info",
				Usage:  "Show a market",
				Action: marketInfo,
				Flags:  []cli.Flag{marketFlag},
			},
			{
				Name:   "list",
				Usage:  "List all markets",
				Action: listMarkets,
			},
			{
				Name:   "balances",
				Usage:  "Show the collateral and outcome balances of an owner in a market",
				Action: marketBalances,
				Flags:  []cli.Flag{marketFlag, ownerFlag},
			},
			{
				Name:   "stats",
				Usage:  "Show the vault balance and outcome supplies of a market",
				Action: marketStats,
				Flags:  []cli.Flag{marketFlag},
			},
		},
	}
	watchCommand = cli.Command{
		Name:   "watch",
		Usage:  "Watch market expiries until interrupted, streaming events with the watermill publisher",
		Action: watch,
	}
)

func deriveAuthority(ctx *cli.Context) error {
	seed, err := parseSeed(ctx.String(seedFlagName))
	if err != nil {
		return err
	}
	authority, err := domain.DeriveAuthority(seed)
	if err != nil {
		return err
	}
	return printJSON(map[string]interface{}{
		"market_id": domain.MarketId(seed),
		"authority": authority.Address(),
		"nonce":     authority.Nonce(),
	})
}

func createAsset(ctx *cli.Context) error {
	decimals := ctx.Uint(decimalsFlagName)
	if decimals > 255 {
		return fmt.Errorf("invalid decimals %d", decimals)
	}
	return withServices(func(_ application.Service, ledger application.LedgerService) error {
		assetId, err := ledger.CreateAsset(
			ctx.Context, uint8(decimals), ctx.String(mintAuthorityFlagName),
		)
		if err != nil {
			return logError(err)
		}
		return printJSON(map[string]string{"asset_id": assetId})
	})
}

func mintAsset(ctx *cli.Context) error {
	return withServices(func(_ application.Service, ledger application.LedgerService) error {
		if err := ledger.Mint(
			ctx.Context, ctx.String(assetFlagName), ctx.String(holdingFlagName),
			ctx.Uint64(amountFlagName), ctx.String(authorityFlagName),
		); err != nil {
			return logError(err)
		}
		balance, err := ledger.BalanceOf(ctx.Context, ctx.String(holdingFlagName))
		if err != nil {
			return logError(err)
		}
		return printJSON(map[string]interface{}{
			"holding_id": ctx.String(holdingFlagName),
			"balance":    balance,
		})
	})
}

func getAsset(ctx *cli.Context) error {
	return withServices(func(_ application.Service, ledger application.LedgerService) error {
		asset, err := ledger.GetAsset(ctx.Context, ctx.String(assetFlagName))
		if err != nil {
			return logError(err)
		}
		return printJSON(map[string]interface{}{
			"asset_id":       asset.Id,
			"decimals":       asset.Decimals,
			"mint_authority": asset.MintAuthority,
			"supply":         asset.Supply,
		})
	})
}

func createHolding(ctx *cli.Context) error {
	return withServices(func(_ application.Service, ledger application.LedgerService) error {
		holdingId, err := ledger.CreateHolding(
			ctx.Context, ctx.String(ownerFlagName), ctx.String(assetFlagName),
		)
		if err != nil {
			return logError(err)
		}
		return printJSON(map[string]string{"holding_id": holdingId})
	})
}

func transfer(ctx *cli.Context) error {
	return withServices(func(_ application.Service, ledger application.LedgerService) error {
		if err := ledger.Transfer(
			ctx.Context, ctx.String(assetFlagName), ctx.String(fromFlagName),
			ctx.String(toFlagName), ctx.Uint64(amountFlagName), ctx.String(ownerFlagName),
		); err != nil {
			return logError(err)
		}
		return nil
	})
}

func holdingBalance(ctx *cli.Context) error {
	return withServices(func(_ application.Service, ledger application.LedgerService) error {
		holding, err := ledger.GetHolding(ctx.Context, ctx.String(holdingFlagName))
		if err != nil {
			return logError(err)
		}
		return printJSON(map[string]interface{}{
			"holding_id": holding.Id,
			"owner":      holding.Owner,
			"asset_id":   holding.AssetId,
			"balance":    holding.Balance,
		})
	})
}

func initMarket(ctx *cli.Context) error {
	seed, err := parseSeed(ctx.String(seedFlagName))
	if err != nil {
		return err
	}
	nonce := ctx.Uint(nonceFlagName)
	if nonce > 255 {
		return fmt.Errorf("invalid nonce %d", nonce)
	}
	outcomes, err := parseOutcomes(ctx.StringSlice(outcomeFlagName))
	if err != nil {
		return err
	}

	return withServices(func(svc application.Service, _ application.LedgerService) error {
		market, err := svc.InitializeMarket(ctx.Context, application.InitMarketRequest{
			SignerSeed:        seed,
			Oracle:            ctx.String(oracleFlagName),
			CollateralAssetId: ctx.String(collateralFlagName),
			VaultId:           ctx.String(vaultFlagName),
			Authority:         ctx.String(authorityFlagName),
			Nonce:             uint8(nonce),
			Expiry:            ctx.Int64(expiryFlagName),
			Outcomes:          outcomes,
		})
		if err != nil {
			return logError(err)
		}
		return printJSON(marketView(*market))
	})
}

// createMarket bootstraps a market: it derives the authority of the seed, creates one
// outcome asset per name and the empty vault, then initializes the market on top of them.
func createMarket(ctx *cli.Context) error {
	seed, err := parseSeed(ctx.String(seedFlagName))
	if err != nil {
		return err
	}
	authority, err := domain.DeriveAuthority(seed)
	if err != nil {
		return err
	}
	names := ctx.StringSlice(outcomesFlagName)
	collateral := ctx.String(collateralFlagName)

	return withServices(func(svc application.Service, ledger application.LedgerService) error {
		outcomes := make([]domain.Outcome, 0, len(names))
		for _, name := range names {
			assetId, err := ledger.CreateAsset(
				ctx.Context, domain.OutcomeDecimals, authority.Address(),
			)
			if err != nil {
				return logError(err)
			}
			outcomes = append(outcomes, domain.Outcome{AssetId: assetId, Name: name})
		}
		vaultId, err := ledger.CreateHolding(ctx.Context, authority.Address(), collateral)
		if err != nil {
			return logError(err)
		}

		market, err := svc.InitializeMarket(ctx.Context, application.InitMarketRequest{
			SignerSeed:        seed,
			Oracle:            ctx.String(oracleFlagName),
			CollateralAssetId: collateral,
			VaultId:           vaultId,
			Authority:         authority.Address(),
			Nonce:             authority.Nonce(),
			Expiry:            ctx.Int64(expiryFlagName),
			Outcomes:          outcomes,
		})
		if err != nil {
			return logError(err)
		}
		return printJSON(marketView(*market))
	})
}

func mintCompleteSets(ctx *cli.Context) error {
	return withServices(func(svc application.Service, _ application.LedgerService) error {
		if err := svc.MintCompleteSets(
			ctx.Context, ctx.String(marketFlagName), ctx.String(ownerFlagName),
			ctx.Uint64(amountFlagName),
		); err != nil {
			return logError(err)
		}
		return printBalances(ctx, svc)
	})
}

func redeemCompleteSets(ctx *cli.Context) error {
	return withServices(func(svc application.Service, _ application.LedgerService) error {
		if err := svc.RedeemCompleteSets(
			ctx.Context, ctx.String(marketFlagName), ctx.String(ownerFlagName),
			ctx.Uint64(amountFlagName),
		); err != nil {
			return logError(err)
		}
		return printBalances(ctx, svc)
	})
}

func resolveMarket(ctx *cli.Context) error {
	return withServices(func(svc application.Service, _ application.LedgerService) error {
		if err := svc.ResolveMarket(
			ctx.Context, ctx.String(marketFlagName), ctx.String(oracleFlagName),
			ctx.String(winnerFlagName),
		); err != nil {
			return logError(err)
		}
		market, err := svc.GetMarket(ctx.Context, ctx.String(marketFlagName))
		if err != nil {
			return logError(err)
		}
		return printJSON(marketView(*market))
	})
}

func redeem(ctx *cli.Context) error {
	return withServices(func(svc application.Service, _ application.LedgerService) error {
		if err := svc.Redeem(
			ctx.Context, ctx.String(marketFlagName), ctx.String(ownerFlagName),
			ctx.Uint64(amountFlagName),
		); err != nil {
			return logError(err)
		}
		return printBalances(ctx, svc)
	})
}

func claimProfits(ctx *cli.Context) error {
	return withServices(func(svc application.Service, _ application.LedgerService) error {
		if err := svc.ClaimProfits(
			ctx.Context, ctx.String(marketFlagName), ctx.String(ownerFlagName),
			ctx.Uint64(amountFlagName),
		); err != nil {
			return logError(err)
		}
		return printBalances(ctx, svc)
	})
}

func marketInfo(ctx *cli.Context) error {
	return withServices(func(svc application.Service, _ application.LedgerService) error {
		market, err := svc.GetMarket(ctx.Context, ctx.String(marketFlagName))
		if err != nil {
			return logError(err)
		}
		return printJSON(marketView(*market))
	})
}

func listMarkets(ctx *cli.Context) error {
	return withServices(func(svc application.Service, _ application.LedgerService) error {
		markets, err := svc.ListMarkets(ctx.Context)
		if err != nil {
			return logError(err)
		}
		list := make([]map[string]interface{}, 0, len(markets))
		for _, m := range markets {
			list = append(list, marketView(m))
		}
		return printJSON(list)
	})
}

func marketBalances(ctx *cli.Context) error {
	return withServices(func(svc application.Service, _ application.LedgerService) error {
		return printBalances(ctx, svc)
	})
}

func marketStats(ctx *cli.Context) error {
	return withServices(func(svc application.Service, _ application.LedgerService) error {
		stats, err := svc.GetMarketStats(ctx.Context, ctx.String(marketFlagName))
		if err != nil {
			return logError(err)
		}
		return printJSON(map[string]interface{}{
			"market_id": stats.MarketId,
			"vault":     stats.Vault,
			"supplies":  outcomeBalancesView(stats.Outcomes),
			"expired":   stats.Expired,
			"winner":    stats.Winner,
		})
	})
}

func watch(ctx *cli.Context) error {
	return withServices(func(svc application.Service, _ application.LedgerService) error {
		sigCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if subscriber := cfg.EventSubscriber(); subscriber != nil {
			if err := streamEvents(sigCtx, subscriber); err != nil {
				return err
			}
		}
		if err := svc.Start(); err != nil {
			return logError(err)
		}
		log.Info("watching market expiries, press Ctrl+C to stop")

		<-sigCtx.Done()

		log.Info("shutting down")
		return nil
	})
}

// streamEvents prints every event published on the in-process bus as a line of JSON.
func streamEvents(ctx context.Context, subscriber message.Subscriber) error {
	for _, topic := range ports.Topics {
		messages, err := subscriber.Subscribe(ctx, watermillpublisher.Topic(topic))
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s events: %s", topic, err)
		}
		go func() {
			for msg := range messages {
				fmt.Printf("%s: %s\n", watermillpublisher.TopicOf(msg), msg.Payload)
				msg.Ack()
			}
		}()
	}
	return nil
}

// withServices opens the store for the duration of fn.
func withServices(
	fn func(svc application.Service, ledger application.LedgerService) error,
) error {
	svc, ledger, err := getServices()
	if err != nil {
		return err
	}
	defer svc.Stop()
	return fn(svc, ledger)
}

func printBalances(ctx *cli.Context, svc application.Service) error {
	balances, err := svc.GetBalances(
		ctx.Context, ctx.String(marketFlagName), ctx.String(ownerFlagName),
	)
	if err != nil {
		return logError(err)
	}
	return printJSON(map[string]interface{}{
		"market_id":  balances.MarketId,
		"owner":      balances.Owner,
		"collateral": balances.Collateral,
		"outcomes":   outcomeBalancesView(balances.Outcomes),
	})
}

func marketView(m domain.Market) map[string]interface{} {
	outcomes := make([]map[string]string, 0, len(m.Outcomes))
	for _, o := range m.Outcomes {
		outcomes = append(outcomes, map[string]string{"asset_id": o.AssetId, "name": o.Name})
	}
	view := map[string]interface{}{
		"market_id":       m.Id,
		"oracle":          m.Oracle,
		"collateral":      m.CollateralAssetId,
		"vault":           m.VaultId,
		"authority":       m.Authority,
		"authority_nonce": m.AuthorityNonce,
		"outcomes":        outcomes,
		"created_at":      formatTime(m.CreatedAt),
	}
	if m.Expiry > 0 {
		view["expiry"] = formatTime(m.Expiry)
	}
	if m.IsResolved() {
		view["winner"] = m.Winner
		view["resolved_at"] = formatTime(m.ResolvedAt)
	}
	return view
}

func outcomeBalancesView(balances []application.OutcomeBalance) []map[string]interface{} {
	list := make([]map[string]interface{}, 0, len(balances))
	for _, b := range balances {
		list = append(list, map[string]interface{}{
			"asset_id": b.AssetId,
			"name":     b.Name,
			"amount":   b.Amount,
		})
	}
	return list
}

func parseSeed(seedHex string) ([]byte, error) {
	if seedHex == "" {
		seed := make([]byte, domain.MaxSeedLen)
		if _, err := rand.Read(seed); err != nil {
			return nil, fmt.Errorf("failed to generate seed: %s", err)
		}
		return seed, nil
	}
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("invalid seed format: %s", err)
	}
	if len(seed) > domain.MaxSeedLen {
		return nil, fmt.Errorf("seed must be at most %d bytes", domain.MaxSeedLen)
	}
	return seed, nil
}

// parseOutcomes parses a list of <asset id>[:<name>] strings.
func parseOutcomes(list []string) ([]domain.Outcome, error) {
	outcomes := make([]domain.Outcome, 0, len(list))
	for _, s := range list {
		assetId, name, _ := strings.Cut(s, ":")
		if assetId == "" {
			return nil, fmt.Errorf("invalid outcome %q", s)
		}
		outcomes = append(outcomes, domain.Outcome{AssetId: assetId, Name: name})
	}
	return outcomes, nil
}

func formatTime(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}

func logError(err errors.Error) error {
	err.Log().Debug(err.Error())
	return err
}

func printJSON(resp interface{}) error {
	jsonBytes, err := json.MarshalIndent(resp, "", "\t")
	if err != nil {
		return err
	}
	fmt.Println(string(jsonBytes))
	return nil
}
