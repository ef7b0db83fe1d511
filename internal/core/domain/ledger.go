package domain

import (
	"fmt"
	"math"
)

type Asset struct {
	Id            string
	Decimals      uint8
	MintAuthority string
	Supply        uint64
}

type Holding struct {
	Id      string
	Owner   string
	AssetId string
	Balance uint64
}

// ErrAmountOverflow is returned when crediting an amount would exceed the uint64 range.
var ErrAmountOverflow = fmt.Errorf("amount overflow")

func (a *Asset) IncreaseSupply(amount uint64) error {
	if amount > math.MaxUint64-a.Supply {
		return ErrAmountOverflow
	}
	a.Supply += amount
	return nil
}

func (a *Asset) DecreaseSupply(amount uint64) error {
	if amount > a.Supply {
		return fmt.Errorf("supply of asset %s is lower than %d", a.Id, amount)
	}
	a.Supply -= amount
	return nil
}

func (h *Holding) Credit(amount uint64) error {
	if amount > math.MaxUint64-h.Balance {
		return ErrAmountOverflow
	}
	h.Balance += amount
	return nil
}

func (h *Holding) Debit(amount uint64) error {
	if amount > h.Balance {
		return fmt.Errorf("balance of holding %s is lower than %d", h.Id, amount)
	}
	h.Balance -= amount
	return nil
}
