package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/fundmanager/internal/fund"
)

var ErrNoStake = errors.New("stakers hold no stake")

// Stake is the amount staked by an account with the validator.
type Stake struct {
	Account string
	Amount  sdkmath.LegacyDec
}

// StaticStakers serves a fixed staker set, shares proportional to stake.
type StaticStakers []Stake

func (s StaticStakers) Stakers(context.Context) ([]fund.StakerShare, error) {
	return Shares(s)
}

// Shares converts stakes to distribution shares. Shares are truncated so they never sum
// above 1; the truncation dust is burned by the final distribution chunk. Accounts are
// sorted to keep chunks stable across cycles.
func Shares(stakes []Stake) ([]fund.StakerShare, error) {
	total := sdkmath.LegacyZeroDec()
	for _, s := range stakes {
		if s.Amount.IsNil() || s.Amount.IsNegative() {
			return nil, fmt.Errorf("invalid stake for %s: %v", s.Account, s.Amount)
		}
		total = total.Add(s.Amount)
	}
	if len(stakes) == 0 {
		return nil, nil
	}
	if !total.IsPositive() {
		return nil, ErrNoStake
	}

	shares := make([]fund.StakerShare, 0, len(stakes))
	for _, s := range stakes {
		if s.Amount.IsZero() {
			continue
		}
		shares = append(shares, fund.StakerShare{Account: s.Account, Share: s.Amount.QuoTruncate(total)})
	}
	sort.Slice(shares, func(i, j int) bool { return shares[i].Account < shares[j].Account })
	return shares, nil
}
