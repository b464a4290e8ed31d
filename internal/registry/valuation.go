package registry

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/fundmanager/internal/protocol"
	"github.com/elys-network/fundmanager/internal/types"
)

var ErrHoldingsMismatch = errors.New("adapter holdings don't match the position coins")

// PriceCache fetches each denom's price at most once for the lifetime of the cache. A cache
// is meant to live for a single fund operation.
type PriceCache struct {
	oracle protocol.Oracle
	proofs types.PriceProofs
	prices map[string]sdkmath.LegacyDec
}

func NewPriceCache(oracle protocol.Oracle, proofs types.PriceProofs) *PriceCache {
	return &PriceCache{
		oracle: oracle,
		proofs: proofs,
		prices: make(map[string]sdkmath.LegacyDec),
	}
}

// Price returns the USD price of denom.
func (c *PriceCache) Price(ctx context.Context, denom string) (sdkmath.LegacyDec, error) {
	if price, ok := c.prices[denom]; ok {
		return price, nil
	}
	price, err := c.oracle.GetPrice(ctx, denom, c.proofs)
	if err != nil {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("price of %s: %w", denom, err)
	}
	if price.IsNil() || price.IsNegative() {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("price of %s: invalid value %v", denom, price)
	}
	c.prices[denom] = price
	return price, nil
}

// Fetched returns how many distinct prices were requested from the oracle.
func (c *PriceCache) Fetched() int {
	return len(c.prices)
}

// Value prices holdings of position p.
func (c *PriceCache) Value(ctx context.Context, p *Position, h protocol.Holdings) (sdkmath.LegacyDec, error) {
	if h.Coin.IsNil() {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %s reported no %s amount", ErrHoldingsMismatch, p.Name, p.Coin)
	}
	price, err := c.Price(ctx, p.Coin)
	if err != nil {
		return sdkmath.LegacyZeroDec(), err
	}
	value := h.Coin.Mul(price)

	if !p.HasOtherCoin() {
		return value, nil
	}
	if h.Other == nil {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %s reported no %s amount", ErrHoldingsMismatch, p.Name, p.OtherCoin)
	}
	otherPrice, err := c.Price(ctx, p.OtherCoin)
	if err != nil {
		return sdkmath.LegacyZeroDec(), err
	}
	return value.Add(h.Other.Mul(otherPrice)), nil
}
