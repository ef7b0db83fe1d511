package domain

import (
	"encoding/hex"
	"fmt"
)

const (
	MinOutcomes = 2
	MaxOutcomes = 10

	OutcomeDecimals = 8
)

type Outcome struct {
	AssetId string
	Name    string
}

// Market is the state of a prediction market. Everything but the winner and the resolution
// time is fixed at initialization.
type Market struct {
	Id                string
	Oracle            string
	CollateralAssetId string
	VaultId           string
	Authority         string
	AuthorityNonce    uint8
	Outcomes          []Outcome
	Expiry            int64
	Winner            string
	CreatedAt         int64
	ResolvedAt        int64
}

// MarketId returns the id of the market created with the given signer seed.
func MarketId(seed []byte) string {
	return hex.EncodeToString(seed)
}

func NewMarket(
	seed []byte, oracle, collateralAssetId, vaultId string, authority Authority,
	outcomes []Outcome, expiry, now int64,
) (*Market, error) {
	if len(oracle) <= 0 {
		return nil, fmt.Errorf("missing oracle")
	}
	if len(collateralAssetId) <= 0 {
		return nil, fmt.Errorf("missing collateral asset")
	}
	if len(vaultId) <= 0 {
		return nil, fmt.Errorf("missing vault")
	}
	if authority.IsZero() {
		return nil, fmt.Errorf("missing authority")
	}
	if expiry < 0 {
		return nil, fmt.Errorf("invalid expiry %d", expiry)
	}
	if len(outcomes) < MinOutcomes || len(outcomes) > MaxOutcomes {
		return nil, fmt.Errorf(
			"number of outcomes must be in range [%d, %d], got %d",
			MinOutcomes, MaxOutcomes, len(outcomes),
		)
	}

	seen := make(map[string]struct{}, len(outcomes))
	list := make([]Outcome, 0, len(outcomes))
	for i, o := range outcomes {
		if len(o.AssetId) <= 0 {
			return nil, fmt.Errorf("missing asset for outcome %d", i)
		}
		if o.AssetId == collateralAssetId {
			return nil, fmt.Errorf("outcome %d must not be the collateral asset", i)
		}
		if _, ok := seen[o.AssetId]; ok {
			return nil, fmt.Errorf("duplicated outcome asset %s", o.AssetId)
		}
		seen[o.AssetId] = struct{}{}

		name := o.Name
		if name == "" {
			name = fmt.Sprintf("outcome-%d", i)
		}
		list = append(list, Outcome{o.AssetId, name})
	}

	return &Market{
		Id:                MarketId(seed),
		Oracle:            oracle,
		CollateralAssetId: collateralAssetId,
		VaultId:           vaultId,
		Authority:         authority.Address(),
		AuthorityNonce:    authority.Nonce(),
		Outcomes:          list,
		Expiry:            expiry,
		CreatedAt:         now,
	}, nil
}

func (m Market) IsResolved() bool {
	return m.Winner != ""
}

// IsExpired returns whether the market stopped accepting deposits. A zero expiry means the
// market never expires.
func (m Market) IsExpired(now int64) bool {
	return m.Expiry > 0 && now >= m.Expiry
}

func (m Market) HasOutcome(assetId string) bool {
	for _, o := range m.Outcomes {
		if o.AssetId == assetId {
			return true
		}
	}
	return false
}

func (m Market) OutcomeIds() []string {
	ids := make([]string, 0, len(m.Outcomes))
	for _, o := range m.Outcomes {
		ids = append(ids, o.AssetId)
	}
	return ids
}

// Signer re-derives the authority of the market from its id and nonce.
func (m Market) Signer() (Authority, error) {
	seed, err := hex.DecodeString(m.Id)
	if err != nil {
		return Authority{}, fmt.Errorf("invalid market id: %s", err)
	}
	authority, err := RecoverAuthority(seed, m.AuthorityNonce)
	if err != nil {
		return Authority{}, err
	}
	if authority.Address() != m.Authority {
		return Authority{}, fmt.Errorf("authority mismatch for market %s", m.Id)
	}
	return authority, nil
}

// Resolve sets the winning outcome. It can happen only once.
func (m *Market) Resolve(winner string, at int64) error {
	if m.IsResolved() {
		return fmt.Errorf("market %s already resolved", m.Id)
	}
	if !m.HasOutcome(winner) {
		return fmt.Errorf("asset %s is not an outcome of market %s", winner, m.Id)
	}
	m.Winner = winner
	m.ResolvedAt = at
	return nil
}
