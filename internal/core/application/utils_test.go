package application

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"github.com/arkade-os/marketd/internal/core/domain"
	"github.com/arkade-os/marketd/internal/core/ports"
	inmemorydb "github.com/arkade-os/marketd/internal/infrastructure/db/inmemory"
	"github.com/arkade-os/marketd/pkg/errors"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testNow = int64(1_700_000_000)

var ctx = context.Background()

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, topic ports.Topic, message any) error {
	args := m.Called(ctx, topic, message)
	return args.Error(0)
}

func (m *mockPublisher) Close() {}

// published returns the events delivered for the given topic.
func (m *mockPublisher) published(topic ports.Topic) []domain.MarketEvent {
	events := make([]domain.MarketEvent, 0)
	for _, call := range m.Calls {
		if call.Method != "Publish" || call.Arguments.Get(1) != topic {
			continue
		}
		events = append(events, call.Arguments.Get(2).(domain.MarketEvent))
	}
	return events
}

type scheduledTask struct {
	at   int64
	task func()
}

type mockScheduler struct {
	mu    sync.Mutex
	tasks []scheduledTask
}

func (s *mockScheduler) Start() {}

func (s *mockScheduler) Stop() {}

func (s *mockScheduler) AddNow(lifetime int64) int64 {
	return testNow + lifetime
}

func (s *mockScheduler) AfterNow(expiry int64) bool {
	return expiry > testNow
}

func (s *mockScheduler) ScheduleTaskOnce(at int64, task func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, scheduledTask{at, task})
	return nil
}

func (s *mockScheduler) scheduled() []scheduledTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scheduledTask{}, s.tasks...)
}

// fire runs all the scheduled tasks, like if their time came.
func (s *mockScheduler) fire() {
	for _, t := range s.scheduled() {
		t.task()
	}
}

type fixedClock struct {
	mu  sync.Mutex
	now int64
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Unix(c.now, 0)
}

func (c *fixedClock) set(now int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

type testEnv struct {
	svc       Service
	ledger    LedgerService
	repo      ports.RepoManager
	publisher *mockPublisher
	scheduler *mockScheduler
	clock     *fixedClock

	issuer     string
	oracle     string
	collateral string
}

func newTestEnv(t *testing.T, enforceExpiryOnResolve bool) *testEnv {
	t.Helper()

	repo := inmemorydb.NewRepoManager()
	publisher := &mockPublisher{}
	publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	scheduler := &mockScheduler{}
	clock := &fixedClock{now: testNow}

	svc, err := NewService(repo, publisher, scheduler, clock, enforceExpiryOnResolve)
	require.NoError(t, err)
	ledger := NewLedgerService(repo)

	issuer := newPubkey(t)
	collateral, lerr := ledger.CreateAsset(ctx, 8, issuer)
	require.Nil(t, lerr)

	return &testEnv{
		svc:        svc,
		ledger:     ledger,
		repo:       repo,
		publisher:  publisher,
		scheduler:  scheduler,
		clock:      clock,
		issuer:     issuer,
		oracle:     newPubkey(t),
		collateral: collateral,
	}
}

// newUser returns the pubkey of a new owner funded with the given amount of collateral.
func (e *testEnv) newUser(t *testing.T, amount uint64) string {
	t.Helper()

	user := newPubkey(t)
	holdingId, err := e.ledger.CreateHolding(ctx, user, e.collateral)
	require.Nil(t, err)
	if amount > 0 {
		err = e.ledger.Mint(ctx, e.collateral, holdingId, amount, e.issuer)
		require.Nil(t, err)
	}
	return user
}

type marketFixture struct {
	seed      []byte
	authority domain.Authority
	outcomes  []domain.Outcome
	vault     string
}

// newMarketFixture creates the outcome assets and the vault of a market without
// initializing it.
func (e *testEnv) newMarketFixture(t *testing.T, numOfOutcomes int) marketFixture {
	t.Helper()

	seed := make([]byte, 32)
	_, err := rand.Read(seed)
	require.NoError(t, err)
	authority, err := domain.DeriveAuthority(seed)
	require.NoError(t, err)

	names := []string{"yes", "no", "maybe", "later"}
	outcomes := make([]domain.Outcome, 0, numOfOutcomes)
	for i := 0; i < numOfOutcomes; i++ {
		assetId, err := e.ledger.CreateAsset(ctx, domain.OutcomeDecimals, authority.Address())
		require.Nil(t, err)
		outcomes = append(outcomes, domain.Outcome{AssetId: assetId, Name: names[i%len(names)]})
	}
	vault, lerr := e.ledger.CreateHolding(ctx, authority.Address(), e.collateral)
	require.Nil(t, lerr)

	return marketFixture{seed, authority, outcomes, vault}
}

func (f marketFixture) request(oracle, collateral string, expiry int64) InitMarketRequest {
	return InitMarketRequest{
		SignerSeed:        f.seed,
		Oracle:            oracle,
		CollateralAssetId: collateral,
		VaultId:           f.vault,
		Authority:         f.authority.Address(),
		Nonce:             f.authority.Nonce(),
		Expiry:            expiry,
		Outcomes:          f.outcomes,
	}
}

func (e *testEnv) newMarket(t *testing.T, expiry int64, numOfOutcomes int) *domain.Market {
	t.Helper()

	fixture := e.newMarketFixture(t, numOfOutcomes)
	market, err := e.svc.InitializeMarket(ctx, fixture.request(e.oracle, e.collateral, expiry))
	require.Nil(t, err)
	require.NotNil(t, market)
	return market
}

func (e *testEnv) balances(t *testing.T, marketId, owner string) *MarketBalances {
	t.Helper()

	balances, err := e.svc.GetBalances(ctx, marketId, owner)
	require.Nil(t, err)
	return balances
}

func (e *testEnv) stats(t *testing.T, marketId string) *MarketStats {
	t.Helper()

	stats, err := e.svc.GetMarketStats(ctx, marketId)
	require.Nil(t, err)
	return stats
}

// requireVaultBacksSupply checks that, before resolution, every outcome is fully backed by
// the vault, while after it only the winning one is.
func (e *testEnv) requireVaultBacksSupply(t *testing.T, marketId string) {
	t.Helper()

	stats := e.stats(t, marketId)
	for _, o := range stats.Outcomes {
		if stats.Winner == "" || o.AssetId == stats.Winner {
			require.Equal(t, stats.Vault, o.Amount, "supply of outcome %s", o.Name)
		}
	}
}

func newPubkey(t *testing.T) string {
	t.Helper()

	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return hex.EncodeToString(schnorr.SerializePubKey(key.PubKey()))
}

func requireErrorCode[MT any](t *testing.T, code errors.Code[MT], err errors.Error) {
	t.Helper()

	require.NotNil(t, err, "expected %s", code)
	require.Equal(t, code.Name, err.CodeName(), err.Error())
}
