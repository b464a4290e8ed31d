package registry

import (
	sdkmath "cosmossdk.io/math"
)

var hundred = sdkmath.LegacyNewDec(100)

// ActualPercentage is 100*value/total; a zero total yields zero for every position.
func ActualPercentage(value, total sdkmath.LegacyDec) sdkmath.LegacyDec {
	if total.IsNil() || !total.IsPositive() {
		return sdkmath.LegacyZeroDec()
	}
	return value.Mul(hundred).Quo(total)
}

func allocationDiff(p *Position, total sdkmath.LegacyDec) sdkmath.LegacyDec {
	return ActualPercentage(p.Value, total).Sub(sdkmath.LegacyNewDec(int64(p.DesiredPercentage)))
}

// FindWhereToDepositTo returns the most under-allocated position, that is the one with the
// smallest actual% - desired%. Ties go to the first position in registry order.
func (r *Registry) FindWhereToDepositTo(total sdkmath.LegacyDec) (*Position, error) {
	if len(r.entries) == 0 {
		return nil, ErrNoPositions
	}

	best := r.entries[0]
	bestDiff := allocationDiff(best, total)
	for _, p := range r.entries[1:] {
		if d := allocationDiff(p, total); d.LT(bestDiff) {
			best, bestDiff = p, d
		}
	}
	return best, nil
}

// FindWhereToWithdrawFrom picks the source for a withdrawal of target USD.
//
// Among positions whose cached value covers target the most over-allocated wins (first on
// ties) and target is returned unchanged. When no position covers target, the position
// with the largest value is returned together with that value.
func (r *Registry) FindWhereToWithdrawFrom(total, target sdkmath.LegacyDec) (*Position, sdkmath.LegacyDec, error) {
	if len(r.entries) == 0 {
		return nil, sdkmath.LegacyZeroDec(), ErrNoPositions
	}

	var best *Position
	var bestDiff sdkmath.LegacyDec
	for _, p := range r.entries {
		if p.Value.LT(target) {
			continue
		}
		if d := allocationDiff(p, total); best == nil || d.GT(bestDiff) {
			best, bestDiff = p, d
		}
	}
	if best != nil {
		return best, target, nil
	}

	var largest *Position
	for _, p := range r.entries {
		if p.Value.IsPositive() && (largest == nil || p.Value.GT(largest.Value)) {
			largest = p
		}
	}
	if largest == nil {
		return nil, sdkmath.LegacyZeroDec(), ErrNothingToWithdraw
	}
	return largest, largest.Value, nil
}
