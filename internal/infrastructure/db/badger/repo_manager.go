package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/arkade-os/marketd/internal/core/domain"
	"github.com/arkade-os/marketd/internal/core/ports"
	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
)

const marketStoreDir = "markets"

type repoManager struct {
	store   *badgerhold.Store
	markets *marketRepository
	ledger  *ledgerRepository
}

// NewRepoManager opens the store in the given base directory, or in memory if the directory
// is empty. Both markets and ledger live in the same store so they can share transactions.
func NewRepoManager(config ...interface{}) (ports.RepoManager, error) {
	if len(config) != 2 {
		return nil, fmt.Errorf("invalid config")
	}
	baseDir, ok := config[0].(string)
	if !ok {
		return nil, fmt.Errorf("invalid base directory")
	}
	var logger badger.Logger
	if config[1] != nil {
		logger, ok = config[1].(badger.Logger)
		if !ok {
			return nil, fmt.Errorf("invalid logger")
		}
	}

	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, marketStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open market store: %s", err)
	}

	return &repoManager{
		store:   store,
		markets: &marketRepository{store},
		ledger:  &ledgerRepository{store},
	}, nil
}

func (m *repoManager) Markets() domain.MarketRepository {
	return m.markets
}

func (m *repoManager) Ledger() domain.LedgerRepository {
	return m.ledger
}

func (m *repoManager) RunInTx(ctx context.Context, txBody ports.TxBody) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		err = func() error {
			tx := m.store.Badger().NewTransaction(true)
			defer tx.Discard()

			txCtx := context.WithValue(ctx, txKey{}, tx)
			if err := txBody(txCtx, m.markets, m.ledger); err != nil {
				return err
			}
			return tx.Commit()
		}()
		if err == nil {
			return nil
		}

		if errors.Is(err, badger.ErrConflict) {
			time.Sleep(100 * time.Millisecond)
			continue
		}
		return err
	}

	return err
}

func (m *repoManager) Close() {
	// nolint:all
	m.store.Close()
}
