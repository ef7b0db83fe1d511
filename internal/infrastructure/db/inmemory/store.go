package inmemorydb

import (
	"context"
	"sync"

	"github.com/arkade-os/marketd/internal/core/domain"
	"github.com/arkade-os/marketd/internal/core/ports"
	"github.com/arkade-os/marketd/internal/infrastructure/db/dbutil"
)

type store struct {
	lock *sync.RWMutex
	data *state
}

// NewRepoManager returns a volatile store. Transactions are serialized and their writes
// are applied at once on commit.
func NewRepoManager() ports.RepoManager {
	return &store{
		lock: &sync.RWMutex{},
		data: newState(),
	}
}

func (s *store) Markets() domain.MarketRepository {
	return &lockedMarkets{s}
}

func (s *store) Ledger() domain.LedgerRepository {
	return &lockedLedger{s}
}

func (s *store) RunInTx(ctx context.Context, txBody ports.TxBody) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	buf := dbutil.NewTxBuffer(s.data)
	if err := txBody(ctx, buf.Markets(), buf.Ledger()); err != nil {
		return err
	}
	s.data.apply(buf.Changes())
	return nil
}

func (s *store) Close() {}

// write runs a single-statement transaction.
func (s *store) write(ctx context.Context, fn func(buf *dbutil.TxBuffer) error) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	buf := dbutil.NewTxBuffer(s.data)
	if err := fn(buf); err != nil {
		return err
	}
	s.data.apply(buf.Changes())
	return nil
}

type lockedMarkets struct {
	s *store
}

func (r *lockedMarkets) AddMarket(ctx context.Context, market domain.Market) error {
	return r.s.write(ctx, func(buf *dbutil.TxBuffer) error {
		return buf.Markets().AddMarket(ctx, market)
	})
}

func (r *lockedMarkets) GetMarket(ctx context.Context, id string) (*domain.Market, error) {
	r.s.lock.RLock()
	defer r.s.lock.RUnlock()
	return r.s.data.GetMarket(ctx, id)
}

func (r *lockedMarkets) UpdateMarket(ctx context.Context, market domain.Market) error {
	return r.s.write(ctx, func(buf *dbutil.TxBuffer) error {
		return buf.Markets().UpdateMarket(ctx, market)
	})
}

func (r *lockedMarkets) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	r.s.lock.RLock()
	defer r.s.lock.RUnlock()
	return r.s.data.ListMarkets(ctx)
}

type lockedLedger struct {
	s *store
}

func (r *lockedLedger) AddAsset(ctx context.Context, asset domain.Asset) error {
	return r.s.write(ctx, func(buf *dbutil.TxBuffer) error {
		return buf.Ledger().AddAsset(ctx, asset)
	})
}

func (r *lockedLedger) GetAsset(ctx context.Context, id string) (*domain.Asset, error) {
	r.s.lock.RLock()
	defer r.s.lock.RUnlock()
	return r.s.data.GetAsset(ctx, id)
}

func (r *lockedLedger) UpdateAsset(ctx context.Context, asset domain.Asset) error {
	return r.s.write(ctx, func(buf *dbutil.TxBuffer) error {
		return buf.Ledger().UpdateAsset(ctx, asset)
	})
}

func (r *lockedLedger) AddHolding(ctx context.Context, holding domain.Holding) error {
	return r.s.write(ctx, func(buf *dbutil.TxBuffer) error {
		return buf.Ledger().AddHolding(ctx, holding)
	})
}

func (r *lockedLedger) GetHolding(ctx context.Context, id string) (*domain.Holding, error) {
	r.s.lock.RLock()
	defer r.s.lock.RUnlock()
	return r.s.data.GetHolding(ctx, id)
}

func (r *lockedLedger) FindHolding(
	ctx context.Context, owner, assetId string,
) (*domain.Holding, error) {
	r.s.lock.RLock()
	defer r.s.lock.RUnlock()
	return r.s.data.FindHolding(ctx, owner, assetId)
}

func (r *lockedLedger) UpdateHolding(ctx context.Context, holding domain.Holding) error {
	return r.s.write(ctx, func(buf *dbutil.TxBuffer) error {
		return buf.Ledger().UpdateHolding(ctx, holding)
	})
}
