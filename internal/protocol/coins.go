package protocol

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// Coin builds a bucket without the denom validation panics of sdk.NewDecCoinFromDec.
func Coin(denom string, amount sdkmath.LegacyDec) sdk.DecCoin {
	return sdk.DecCoin{Denom: denom, Amount: amount}
}

// CoinPtr is Coin returning a pointer, for optional buckets.
func CoinPtr(denom string, amount sdkmath.LegacyDec) *sdk.DecCoin {
	c := Coin(denom, amount)
	return &c
}

// ZeroCoin is an empty bucket of denom.
func ZeroCoin(denom string) sdk.DecCoin {
	return Coin(denom, sdkmath.LegacyZeroDec())
}

// Merge adds two buckets of the same denom.
func Merge(a, b sdk.DecCoin) (sdk.DecCoin, error) {
	if a.Denom != b.Denom {
		return sdk.DecCoin{}, fmt.Errorf("can't merge %s into %s", b.Denom, a.Denom)
	}
	return Coin(a.Denom, a.Amount.Add(b.Amount)), nil
}

// OtherOrZero returns the secondary amount or zero.
func (h Holdings) OtherOrZero() sdkmath.LegacyDec {
	if h.Other == nil {
		return sdkmath.LegacyZeroDec()
	}
	return *h.Other
}

// DecPtr returns a pointer to d.
func DecPtr(d sdkmath.LegacyDec) *sdkmath.LegacyDec {
	return &d
}
