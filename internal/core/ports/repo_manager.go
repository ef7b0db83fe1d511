package ports

import (
	"context"

	"github.com/arkade-os/marketd/internal/core/domain"
)

// TxBody is run by RepoManager.RunInTx. The given repositories, and only those, see the
// changes made within the transaction.
type TxBody func(
	ctx context.Context, markets domain.MarketRepository, ledger domain.LedgerRepository,
) error

type RepoManager interface {
	Markets() domain.MarketRepository
	Ledger() domain.LedgerRepository
	// RunInTx commits every change made by txBody or none of them if it returns an error.
	RunInTx(ctx context.Context, txBody TxBody) error
	Close()
}
