package simulations

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/fundmanager/internal/protocol"
)

var ErrNoRoute = errors.New("no swap route")

type pair struct{ from, to string }

// RouteDex swaps along configured pair rates, hopping through the base asset when no
// direct pair exists. Outputs are truncated to a fixed number of decimals; the truncated
// dust is kept per denom and added back to a later swap that asks for remainders.
type RouteDex struct {
	mu         sync.Mutex
	base       string
	scale      int64
	rates      map[pair]sdkmath.LegacyDec
	remainders map[string]sdkmath.LegacyDec
}

var _ protocol.Dex = (*RouteDex)(nil)
var _ protocol.Checkpointer = (*RouteDex)(nil)

// NewRouteDex creates a router hopping through base, truncating outputs to decimals places.
func NewRouteDex(base string, decimals int) *RouteDex {
	scale := int64(1)
	for i := 0; i < decimals; i++ {
		scale *= 10
	}
	return &RouteDex{
		base:       base,
		scale:      scale,
		rates:      make(map[pair]sdkmath.LegacyDec),
		remainders: make(map[string]sdkmath.LegacyDec),
	}
}

// SetRate registers how many to units one from unit buys, and the inverse pair.
func (d *RouteDex) SetRate(from, to string, rate sdkmath.LegacyDec) error {
	if !rate.IsPositive() {
		return fmt.Errorf("rate %s/%s must be positive", from, to)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rates[pair{from, to}] = rate
	d.rates[pair{to, from}] = sdkmath.LegacyOneDec().Quo(rate)
	return nil
}

// Remainder returns the dust carried for denom.
func (d *RouteDex) Remainder(denom string) sdkmath.LegacyDec {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok := d.remainders[denom]; ok {
		return r
	}
	return sdkmath.LegacyZeroDec()
}

func (d *RouteDex) rate(from, to string) (sdkmath.LegacyDec, error) {
	if r, ok := d.rates[pair{from, to}]; ok {
		return r, nil
	}
	first, ok1 := d.rates[pair{from, d.base}]
	second, ok2 := d.rates[pair{d.base, to}]
	if ok1 && ok2 {
		return first.Mul(second), nil
	}
	return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %s -> %s", ErrNoRoute, from, to)
}

func (d *RouteDex) Swap(_ context.Context, in sdk.DecCoin, outDenom string, useRemainder bool) (sdk.DecCoin, error) {
	if in.Amount.IsNegative() {
		return sdk.DecCoin{}, ErrNegativeAmount
	}
	if in.Denom == outDenom {
		return in, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	rate, err := d.rate(in.Denom, outDenom)
	if err != nil {
		return sdk.DecCoin{}, err
	}
	out := in.Amount.Mul(rate)

	carried, ok := d.remainders[outDenom]
	if !ok {
		carried = sdkmath.LegacyZeroDec()
	}
	if useRemainder {
		out = out.Add(carried)
		carried = sdkmath.LegacyZeroDec()
	}

	truncated := out.MulInt64(d.scale).TruncateDec().QuoInt64(d.scale)
	d.remainders[outDenom] = carried.Add(out.Sub(truncated))

	return protocol.Coin(outDenom, truncated), nil
}

func (d *RouteDex) Checkpoint() func() {
	d.mu.Lock()
	rates := make(map[pair]sdkmath.LegacyDec, len(d.rates))
	for k, v := range d.rates {
		rates[k] = v
	}
	remainders := make(map[string]sdkmath.LegacyDec, len(d.remainders))
	for k, v := range d.remainders {
		remainders[k] = v
	}
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.rates, d.remainders = rates, remainders
	}
}
