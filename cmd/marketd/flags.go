package main

import (
	"github.com/urfave/cli/v2"
)

const (
	seedFlagName          = "seed"
	nonceFlagName         = "nonce"
	authorityFlagName     = "authority"
	decimalsFlagName      = "decimals"
	mintAuthorityFlagName = "mint-authority"
	assetFlagName         = "asset"
	holdingFlagName       = "holding"
	ownerFlagName         = "owner"
	fromFlagName          = "from"
	toFlagName            = "to"
	amountFlagName        = "amount"
	marketFlagName        = "market"
	oracleFlagName        = "oracle"
	collateralFlagName    = "collateral"
	vaultFlagName         = "vault"
	expiryFlagName        = "expiry"
	outcomeFlagName       = "outcome"
	outcomesFlagName      = "outcomes"
	winnerFlagName        = "winner"
)

var (
	seedFlag = func(required bool) *cli.StringFlag {
		return &cli.StringFlag{
			Name:     seedFlagName,
			Usage:    "hex encoded signer seed of the market, at most 32 bytes",
			Required: required,
		}
	}
	nonceFlag = &cli.UintFlag{
		Name:     nonceFlagName,
		Usage:    "bump nonce of the market authority",
		Required: true,
	}
	authorityFlag = &cli.StringFlag{
		Name:     authorityFlagName,
		Usage:    "address of the market authority",
		Required: true,
	}
	decimalsFlag = &cli.UintFlag{
		Name:  decimalsFlagName,
		Usage: "number of decimals of the asset",
		Value: 8,
	}
	mintAuthorityFlag = &cli.StringFlag{
		Name:     mintAuthorityFlagName,
		Usage:    "address allowed to mint the asset",
		Required: true,
	}
	assetFlag = &cli.StringFlag{
		Name:     assetFlagName,
		Usage:    "id of the asset",
		Required: true,
	}
	holdingFlag = &cli.StringFlag{
		Name:     holdingFlagName,
		Usage:    "id of the holding",
		Required: true,
	}
	ownerFlag = &cli.StringFlag{
		Name:     ownerFlagName,
		Usage:    "hex encoded x-only public key of the owner",
		Required: true,
	}
	holdingOwnerFlag = &cli.StringFlag{
		Name:     ownerFlagName,
		Usage:    "address of the owner of the holding",
		Required: true,
	}
	fromFlag = &cli.StringFlag{
		Name:     fromFlagName,
		Usage:    "id of the holding to debit",
		Required: true,
	}
	toFlag = &cli.StringFlag{
		Name:     toFlagName,
		Usage:    "id of the holding to credit",
		Required: true,
	}
	amountFlag = &cli.Uint64Flag{
		Name:     amountFlagName,
		Usage:    "amount in base units",
		Required: true,
	}
	marketFlag = &cli.StringFlag{
		Name:     marketFlagName,
		Usage:    "id of the market",
		Required: true,
	}
	oracleFlag = &cli.StringFlag{
		Name:     oracleFlagName,
		Usage:    "address of the market oracle",
		Required: true,
	}
	collateralFlag = &cli.StringFlag{
		Name:     collateralFlagName,
		Usage:    "id of the collateral asset",
		Required: true,
	}
	vaultFlag = &cli.StringFlag{
		Name:     vaultFlagName,
		Usage:    "id of the collateral holding owned by the market authority",
		Required: true,
	}
	expiryFlag = &cli.Int64Flag{
		Name:  expiryFlagName,
		Usage: "unix timestamp after which the market stops accepting deposits, 0 for none",
	}
	outcomeFlag = &cli.StringSliceFlag{
		Name:     outcomeFlagName,
		Usage:    "outcome of the market in the form <asset id>[:<name>], repeatable",
		Required: true,
	}
	outcomesFlag = &cli.StringSliceFlag{
		Name:  outcomesFlagName,
		Usage: "names of the outcomes to create",
		Value: cli.NewStringSlice("yes", "no"),
	}
	winnerFlag = &cli.StringFlag{
		Name:     winnerFlagName,
		Usage:    "asset id of the winning outcome",
		Required: true,
	}
)
