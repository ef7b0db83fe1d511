package pgdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/arkade-os/marketd/internal/core/domain"
	"github.com/arkade-os/marketd/internal/core/ports"
)

type repoManager struct {
	db      *sql.DB
	markets *marketRepository
	ledger  *ledgerRepository
}

func NewRepoManager(config ...interface{}) (ports.RepoManager, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config: expected 1 argument, got %d", len(config))
	}
	db, ok := config[0].(*sql.DB)
	if !ok {
		return nil, fmt.Errorf("cannot open market store: expected *sql.DB but got %T", config[0])
	}

	return &repoManager{
		db:      db,
		markets: &marketRepository{db},
		ledger:  &ledgerRepository{db},
	}, nil
}

func (m *repoManager) Markets() domain.MarketRepository {
	return m.markets
}

func (m *repoManager) Ledger() domain.LedgerRepository {
	return m.ledger
}

func (m *repoManager) RunInTx(ctx context.Context, txBody ports.TxBody) error {
	return execTx(ctx, m.db, func(ctx context.Context) error {
		return txBody(ctx, m.markets, m.ledger)
	})
}

func (m *repoManager) Close() {
	// nolint:all
	m.db.Close()
}
