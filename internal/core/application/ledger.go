package application

import (
	"context"
	stderrors "errors"

	"github.com/arkade-os/marketd/internal/core/domain"
	"github.com/arkade-os/marketd/internal/core/ports"
	"github.com/arkade-os/marketd/pkg/errors"
	"github.com/google/uuid"
)

// AssetLedger moves balances of fungible assets between holdings. It works on top of a
// single ledger repository, usually the transactional one handed over by RunInTx.
type AssetLedger struct {
	repo domain.LedgerRepository
}

func NewAssetLedger(repo domain.LedgerRepository) *AssetLedger {
	return &AssetLedger{repo}
}

func (l *AssetLedger) CreateAsset(
	ctx context.Context, decimals uint8, mintAuthority string,
) (string, errors.Error) {
	asset := domain.Asset{
		Id:            uuid.New().String(),
		Decimals:      decimals,
		MintAuthority: mintAuthority,
	}
	if err := l.repo.AddAsset(ctx, asset); err != nil {
		return "", errors.INTERNAL_ERROR.Wrap(err)
	}
	return asset.Id, nil
}

func (l *AssetLedger) CreateHolding(
	ctx context.Context, owner, assetId string,
) (string, errors.Error) {
	if owner == "" {
		return "", errors.UNAUTHORIZED.New("missing holding owner")
	}
	if _, err := l.getAsset(ctx, assetId); err != nil {
		return "", err
	}

	holding := domain.Holding{
		Id:      uuid.New().String(),
		Owner:   owner,
		AssetId: assetId,
	}
	if err := l.repo.AddHolding(ctx, holding); err != nil {
		return "", errors.INTERNAL_ERROR.Wrap(err)
	}
	return holding.Id, nil
}

func (l *AssetLedger) Mint(
	ctx context.Context, assetId, holdingId string, amount uint64, authority domain.Signer,
) errors.Error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	asset, err := l.getAsset(ctx, assetId)
	if err != nil {
		return err
	}
	if asset.MintAuthority == "" || authority.Address() != asset.MintAuthority {
		return errors.UNAUTHORIZED.New("signer is not the mint authority of asset %s", assetId).
			WithMetadata(errors.UnauthorizedMetadata{
				Expected: asset.MintAuthority,
				Got:      authority.Address(),
			})
	}
	holding, err := l.getHolding(ctx, holdingId, assetId)
	if err != nil {
		return err
	}

	if err := asset.IncreaseSupply(amount); err != nil {
		return errors.INVALID_AMOUNT.Wrap(err).
			WithMetadata(errors.AmountMetadata{Amount: amount})
	}
	if err := holding.Credit(amount); err != nil {
		return errors.INVALID_AMOUNT.Wrap(err).
			WithMetadata(errors.AmountMetadata{Amount: amount})
	}

	if err := l.repo.UpdateAsset(ctx, *asset); err != nil {
		return errors.INTERNAL_ERROR.Wrap(err)
	}
	if err := l.repo.UpdateHolding(ctx, *holding); err != nil {
		return errors.INTERNAL_ERROR.Wrap(err)
	}
	return nil
}

func (l *AssetLedger) Burn(
	ctx context.Context, assetId, holdingId string, amount uint64, owner domain.Signer,
) errors.Error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	asset, err := l.getAsset(ctx, assetId)
	if err != nil {
		return err
	}
	holding, err := l.getHolding(ctx, holdingId, assetId)
	if err != nil {
		return err
	}
	if err := checkOwner(*holding, owner); err != nil {
		return err
	}
	if err := debit(holding, amount); err != nil {
		return err
	}
	if err := asset.DecreaseSupply(amount); err != nil {
		return errors.INTERNAL_ERROR.Wrap(err)
	}

	if err := l.repo.UpdateHolding(ctx, *holding); err != nil {
		return errors.INTERNAL_ERROR.Wrap(err)
	}
	if err := l.repo.UpdateAsset(ctx, *asset); err != nil {
		return errors.INTERNAL_ERROR.Wrap(err)
	}
	return nil
}

func (l *AssetLedger) Transfer(
	ctx context.Context, assetId, from, to string, amount uint64, owner domain.Signer,
) errors.Error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	if _, err := l.getAsset(ctx, assetId); err != nil {
		return err
	}
	src, err := l.getHolding(ctx, from, assetId)
	if err != nil {
		return err
	}
	dst, err := l.getHolding(ctx, to, assetId)
	if err != nil {
		return err
	}
	if err := checkOwner(*src, owner); err != nil {
		return err
	}
	if err := debit(src, amount); err != nil {
		return err
	}
	// Self transfers only need the balance check.
	if src.Id == dst.Id {
		return nil
	}
	if err := dst.Credit(amount); err != nil {
		return errors.INVALID_AMOUNT.Wrap(err).
			WithMetadata(errors.AmountMetadata{Amount: amount})
	}

	if err := l.repo.UpdateHolding(ctx, *src); err != nil {
		return errors.INTERNAL_ERROR.Wrap(err)
	}
	if err := l.repo.UpdateHolding(ctx, *dst); err != nil {
		return errors.INTERNAL_ERROR.Wrap(err)
	}
	return nil
}

func (l *AssetLedger) BalanceOf(ctx context.Context, holdingId string) (uint64, errors.Error) {
	holding, err := l.repo.GetHolding(ctx, holdingId)
	if err != nil {
		return 0, errors.INTERNAL_ERROR.Wrap(err)
	}
	if holding == nil {
		return 0, errors.HOLDING_NOT_FOUND.New("holding %s not found", holdingId).
			WithMetadata(errors.HoldingMetadata{HoldingId: holdingId})
	}
	return holding.Balance, nil
}

// findOrCreateHolding returns the holding of the given asset owned by owner, creating an
// empty one if missing.
func (l *AssetLedger) findOrCreateHolding(
	ctx context.Context, owner, assetId string,
) (string, errors.Error) {
	holding, err := l.repo.FindHolding(ctx, owner, assetId)
	if err != nil {
		return "", errors.INTERNAL_ERROR.Wrap(err)
	}
	if holding != nil {
		return holding.Id, nil
	}
	return l.CreateHolding(ctx, owner, assetId)
}

func (l *AssetLedger) getAsset(ctx context.Context, assetId string) (*domain.Asset, errors.Error) {
	asset, err := l.repo.GetAsset(ctx, assetId)
	if err != nil {
		return nil, errors.INTERNAL_ERROR.Wrap(err)
	}
	if asset == nil {
		return nil, errors.ASSET_NOT_FOUND.New("asset %s not found", assetId).
			WithMetadata(errors.AssetMetadata{AssetId: assetId})
	}
	return asset, nil
}

func (l *AssetLedger) getHolding(
	ctx context.Context, holdingId, assetId string,
) (*domain.Holding, errors.Error) {
	holding, err := l.repo.GetHolding(ctx, holdingId)
	if err != nil {
		return nil, errors.INTERNAL_ERROR.Wrap(err)
	}
	if holding == nil {
		return nil, errors.HOLDING_NOT_FOUND.New("holding %s not found", holdingId).
			WithMetadata(errors.HoldingMetadata{HoldingId: holdingId})
	}
	if holding.AssetId != assetId {
		return nil, errors.ASSET_MISMATCH.New(
			"holding %s does not hold asset %s", holdingId, assetId,
		).WithMetadata(errors.AssetMismatchMetadata{
			HoldingId: holdingId,
			Expected:  assetId,
			Got:       holding.AssetId,
		})
	}
	return holding, nil
}

func checkOwner(holding domain.Holding, owner domain.Signer) errors.Error {
	if owner.Address() != holding.Owner {
		return errors.UNAUTHORIZED.New("signer is not the owner of holding %s", holding.Id).
			WithMetadata(errors.UnauthorizedMetadata{
				Expected: holding.Owner,
				Got:      owner.Address(),
			})
	}
	return nil
}

func debit(holding *domain.Holding, amount uint64) errors.Error {
	balance := holding.Balance
	if err := holding.Debit(amount); err != nil {
		return errors.INSUFFICIENT_BALANCE.Wrap(err).
			WithMetadata(errors.InsufficientBalanceMetadata{
				AssetId:   holding.AssetId,
				HoldingId: holding.Id,
				Balance:   balance,
				Required:  amount,
			})
	}
	return nil
}

func validateAmount(amount uint64) errors.Error {
	if amount == 0 {
		return errors.INVALID_AMOUNT.New("amount must be greater than zero").
			WithMetadata(errors.AmountMetadata{Amount: amount})
	}
	return nil
}

type ledgerService struct {
	repoManager ports.RepoManager
}

func NewLedgerService(repoManager ports.RepoManager) LedgerService {
	return &ledgerService{repoManager}
}

func (s *ledgerService) CreateAsset(
	ctx context.Context, decimals uint8, mintAuthority string,
) (assetId string, err errors.Error) {
	err = s.runInTx(ctx, func(ctx context.Context, ledger *AssetLedger) errors.Error {
		id, err := ledger.CreateAsset(ctx, decimals, mintAuthority)
		assetId = id
		return err
	})
	return
}

func (s *ledgerService) CreateHolding(
	ctx context.Context, owner, assetId string,
) (holdingId string, err errors.Error) {
	err = s.runInTx(ctx, func(ctx context.Context, ledger *AssetLedger) errors.Error {
		id, err := ledger.CreateHolding(ctx, owner, assetId)
		holdingId = id
		return err
	})
	return
}

func (s *ledgerService) Mint(
	ctx context.Context, assetId, holdingId string, amount uint64, minter string,
) errors.Error {
	signer, err := parseSigner(minter)
	if err != nil {
		return err
	}
	return s.runInTx(ctx, func(ctx context.Context, ledger *AssetLedger) errors.Error {
		return ledger.Mint(ctx, assetId, holdingId, amount, signer)
	})
}

func (s *ledgerService) Burn(
	ctx context.Context, assetId, holdingId string, amount uint64, owner string,
) errors.Error {
	signer, err := parseSigner(owner)
	if err != nil {
		return err
	}
	return s.runInTx(ctx, func(ctx context.Context, ledger *AssetLedger) errors.Error {
		return ledger.Burn(ctx, assetId, holdingId, amount, signer)
	})
}

func (s *ledgerService) Transfer(
	ctx context.Context, assetId, from, to string, amount uint64, owner string,
) errors.Error {
	signer, err := parseSigner(owner)
	if err != nil {
		return err
	}
	return s.runInTx(ctx, func(ctx context.Context, ledger *AssetLedger) errors.Error {
		return ledger.Transfer(ctx, assetId, from, to, amount, signer)
	})
}

func (s *ledgerService) BalanceOf(ctx context.Context, holdingId string) (uint64, errors.Error) {
	return NewAssetLedger(s.repoManager.Ledger()).BalanceOf(ctx, holdingId)
}

func (s *ledgerService) GetAsset(ctx context.Context, assetId string) (*domain.Asset, errors.Error) {
	return NewAssetLedger(s.repoManager.Ledger()).getAsset(ctx, assetId)
}

func (s *ledgerService) GetHolding(
	ctx context.Context, holdingId string,
) (*domain.Holding, errors.Error) {
	holding, err := s.repoManager.Ledger().GetHolding(ctx, holdingId)
	if err != nil {
		return nil, errors.INTERNAL_ERROR.Wrap(err)
	}
	if holding == nil {
		return nil, errors.HOLDING_NOT_FOUND.New("holding %s not found", holdingId).
			WithMetadata(errors.HoldingMetadata{HoldingId: holdingId})
	}
	return holding, nil
}

func (s *ledgerService) runInTx(
	ctx context.Context, fn func(ctx context.Context, ledger *AssetLedger) errors.Error,
) errors.Error {
	err := s.repoManager.RunInTx(ctx, func(
		ctx context.Context, _ domain.MarketRepository, repo domain.LedgerRepository,
	) error {
		if err := fn(ctx, NewAssetLedger(repo)); err != nil {
			return err
		}
		return nil
	})
	return toError(err)
}

// toError returns the typed error carried by err, if any, or wraps it as internal error.
func toError(err error) errors.Error {
	if err == nil {
		return nil
	}
	var typedErr errors.Error
	if stderrors.As(err, &typedErr) {
		return typedErr
	}
	return errors.INTERNAL_ERROR.Wrap(err)
}

func parseSigner(pubkey string) (domain.Signer, errors.Error) {
	owner, err := domain.NewOwner(pubkey)
	if err != nil {
		return nil, errors.UNAUTHORIZED.Wrap(err).
			WithMetadata(errors.UnauthorizedMetadata{Got: pubkey})
	}
	return owner, nil
}
