package redisdb

import (
	"encoding/json"
	"strconv"

	"github.com/arkade-os/marketd/internal/core/domain"
)

type outcomeDTO struct {
	AssetId string `json:"assetId"`
	Name    string `json:"name"`
}

type marketDTO struct {
	Id                string       `json:"id"`
	Oracle            string       `json:"oracle"`
	CollateralAssetId string       `json:"collateralAssetId"`
	VaultId           string       `json:"vaultId"`
	Authority         string       `json:"authority"`
	AuthorityNonce    uint8        `json:"authorityNonce"`
	Outcomes          []outcomeDTO `json:"outcomes"`
	Expiry            int64        `json:"expiry"`
	Winner            string       `json:"winner"`
	CreatedAt         int64        `json:"createdAt"`
	ResolvedAt        int64        `json:"resolvedAt"`
}

func newMarketDTO(m domain.Market) marketDTO {
	outcomes := make([]outcomeDTO, 0, len(m.Outcomes))
	for _, o := range m.Outcomes {
		outcomes = append(outcomes, outcomeDTO{o.AssetId, o.Name})
	}
	return marketDTO{
		Id:                m.Id,
		Oracle:            m.Oracle,
		CollateralAssetId: m.CollateralAssetId,
		VaultId:           m.VaultId,
		Authority:         m.Authority,
		AuthorityNonce:    m.AuthorityNonce,
		Outcomes:          outcomes,
		Expiry:            m.Expiry,
		Winner:            m.Winner,
		CreatedAt:         m.CreatedAt,
		ResolvedAt:        m.ResolvedAt,
	}
}

func (d marketDTO) serialize() (string, error) {
	buf, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

func (d marketDTO) toDomain() domain.Market {
	outcomes := make([]domain.Outcome, 0, len(d.Outcomes))
	for _, o := range d.Outcomes {
		outcomes = append(outcomes, domain.Outcome{AssetId: o.AssetId, Name: o.Name})
	}
	return domain.Market{
		Id:                d.Id,
		Oracle:            d.Oracle,
		CollateralAssetId: d.CollateralAssetId,
		VaultId:           d.VaultId,
		Authority:         d.Authority,
		AuthorityNonce:    d.AuthorityNonce,
		Outcomes:          outcomes,
		Expiry:            d.Expiry,
		Winner:            d.Winner,
		CreatedAt:         d.CreatedAt,
		ResolvedAt:        d.ResolvedAt,
	}
}

// Amounts are encoded as strings, json numbers lose precision above 2^53 for most readers.
type assetDTO struct {
	Id            string `json:"id"`
	Decimals      uint8  `json:"decimals"`
	MintAuthority string `json:"mintAuthority"`
	Supply        string `json:"supply"`
}

func newAssetDTO(a domain.Asset) assetDTO {
	return assetDTO{
		Id:            a.Id,
		Decimals:      a.Decimals,
		MintAuthority: a.MintAuthority,
		Supply:        strconv.FormatUint(a.Supply, 10),
	}
}

func (d assetDTO) serialize() (string, error) {
	buf, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

func (d assetDTO) toDomain() domain.Asset {
	supply, _ := strconv.ParseUint(d.Supply, 10, 64)
	return domain.Asset{
		Id:            d.Id,
		Decimals:      d.Decimals,
		MintAuthority: d.MintAuthority,
		Supply:        supply,
	}
}

type holdingDTO struct {
	Id      string `json:"id"`
	Owner   string `json:"owner"`
	AssetId string `json:"assetId"`
	Balance string `json:"balance"`
}

func newHoldingDTO(h domain.Holding) holdingDTO {
	return holdingDTO{
		Id:      h.Id,
		Owner:   h.Owner,
		AssetId: h.AssetId,
		Balance: strconv.FormatUint(h.Balance, 10),
	}
}

func (d holdingDTO) serialize() (string, error) {
	buf, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

func (d holdingDTO) toDomain() domain.Holding {
	balance, _ := strconv.ParseUint(d.Balance, 10, 64)
	return domain.Holding{
		Id:      d.Id,
		Owner:   d.Owner,
		AssetId: d.AssetId,
		Balance: balance,
	}
}
