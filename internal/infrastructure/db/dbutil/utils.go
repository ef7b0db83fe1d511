package dbutil

import (
	"cmp"
	"slices"

	"github.com/arkade-os/marketd/internal/core/domain"
)

// HoldingKey is the lookup key of the holding of an asset owned by an address.
func HoldingKey(owner, assetId string) string {
	return owner + "|" + assetId
}

// SortMarkets orders markets by creation time, then by id.
func SortMarkets(markets []domain.Market) {
	slices.SortFunc(markets, func(a, b domain.Market) int {
		if c := cmp.Compare(a.CreatedAt, b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Id, b.Id)
	})
}

func CloneMarket(m domain.Market) domain.Market {
	m.Outcomes = slices.Clone(m.Outcomes)
	return m
}
