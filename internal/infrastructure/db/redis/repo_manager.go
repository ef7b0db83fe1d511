package redisdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arkade-os/marketd/internal/core/domain"
	"github.com/arkade-os/marketd/internal/core/ports"
	"github.com/arkade-os/marketd/internal/infrastructure/db/dbutil"
	"github.com/redis/go-redis/v9"
)

const (
	marketsKey      = "marketd:markets"
	assetsKey       = "marketd:assets"
	holdingsKey     = "marketd:holdings"
	holdingIndexKey = "marketd:holdings:index"
)

var watchedKeys = []string{marketsKey, assetsKey, holdingsKey, holdingIndexKey}

type repoManager struct {
	rdb          *redis.Client
	numOfRetries int
	retryDelay   time.Duration
}

// NewRepoManager returns a store backed by redis hashes. Transactions buffer their writes
// and flush them in a single MULTI/EXEC, guarded by WATCH on every hash, so that a
// concurrent commit makes them retry from scratch.
func NewRepoManager(config ...interface{}) (ports.RepoManager, error) {
	if len(config) != 2 {
		return nil, fmt.Errorf("invalid config")
	}
	rdb, ok := config[0].(*redis.Client)
	if !ok {
		return nil, fmt.Errorf("invalid redis client")
	}
	numOfRetries, ok := config[1].(int)
	if !ok || numOfRetries <= 0 {
		return nil, fmt.Errorf("invalid number of retries")
	}

	return &repoManager{
		rdb:          rdb,
		numOfRetries: numOfRetries,
		retryDelay:   10 * time.Millisecond,
	}, nil
}

func (m *repoManager) Markets() domain.MarketRepository {
	return &markets{m}
}

func (m *repoManager) Ledger() domain.LedgerRepository {
	return &ledger{m}
}

func (m *repoManager) RunInTx(ctx context.Context, txBody ports.TxBody) error {
	var err error
	for i := 0; i < m.numOfRetries; i++ {
		var bodyErr error
		err = m.rdb.Watch(ctx, func(tx *redis.Tx) error {
			buf := dbutil.NewTxBuffer(&reader{tx})
			if bodyErr = txBody(ctx, buf.Markets(), buf.Ledger()); bodyErr != nil {
				return bodyErr
			}
			return flush(ctx, tx, buf.Changes())
		}, watchedKeys...)
		if err == nil {
			return nil
		}
		if bodyErr != nil {
			return bodyErr
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		time.Sleep(m.retryDelay)
	}
	return fmt.Errorf("failed to commit transaction after max number of retries: %v", err)
}

func (m *repoManager) Close() {
	// nolint:all
	m.rdb.Close()
}

func flush(ctx context.Context, tx *redis.Tx, changes dbutil.Changes) error {
	if changes.IsEmpty() {
		return nil
	}

	marketFields := make([]any, 0, 2*len(changes.Markets))
	for _, m := range changes.Markets {
		value, err := newMarketDTO(m).serialize()
		if err != nil {
			return err
		}
		marketFields = append(marketFields, m.Id, value)
	}
	assetFields := make([]any, 0, 2*len(changes.Assets))
	for _, a := range changes.Assets {
		value, err := newAssetDTO(a).serialize()
		if err != nil {
			return err
		}
		assetFields = append(assetFields, a.Id, value)
	}
	holdingFields := make([]any, 0, 2*len(changes.Holdings))
	for _, h := range changes.Holdings {
		value, err := newHoldingDTO(h).serialize()
		if err != nil {
			return err
		}
		holdingFields = append(holdingFields, h.Id, value)
	}

	_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(marketFields) > 0 {
			pipe.HSet(ctx, marketsKey, marketFields...)
		}
		if len(assetFields) > 0 {
			pipe.HSet(ctx, assetsKey, assetFields...)
		}
		if len(holdingFields) > 0 {
			pipe.HSet(ctx, holdingsKey, holdingFields...)
			for _, h := range changes.Holdings {
				pipe.HSetNX(ctx, holdingIndexKey, dbutil.HoldingKey(h.Owner, h.AssetId), h.Id)
			}
		}
		return nil
	})
	return err
}
