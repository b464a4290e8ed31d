package fund

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/fundmanager/internal/auth"
	"github.com/elys-network/fundmanager/internal/protocol"
)

// StakerShare is the fraction (0 to 1) of the current distribution batch owed to Account.
type StakerShare struct {
	Account string
	Share   sdkmath.LegacyDec
}

// FundUnitsDistribution pays the units minted by the last FinishUnstake to stakers. Large
// staker sets are split in chunks: every chunk but the last is sent with more set, and
// what the locker hands back goes back to the pending vault. After the last chunk the
// leftovers are burned and a new unstake can be finished.
func (f *FundManager) FundUnitsDistribution(ctx context.Context, bot auth.BotCredential, stakers []StakerShare, more bool) error {
	return f.transact(ctx, opDistribution, func(t *txn) error {
		if err := t.verifyBot(bot); err != nil {
			return err
		}

		claimants := make([]protocol.Claimant, 0, len(stakers))
		total := sdkmath.LegacyZeroDec()
		for _, s := range stakers {
			if s.Share.IsNil() || s.Share.IsNegative() || s.Share.GT(sdkmath.LegacyOneDec()) {
				return fmt.Errorf("%w: %s has %v", ErrShareOutOfRange, s.Account, s.Share)
			}
			amount := s.Share.MulTruncate(t.st.unitsToDistribute)
			total = total.Add(amount)
			claimants = append(claimants, protocol.Claimant{Account: s.Account, Amount: amount})
		}
		if total.GT(t.st.pendingUnits) {
			return fmt.Errorf("%w: chunk needs %s, %s pending", ErrInsufficientUnits, total, t.st.pendingUnits)
		}

		bucket := protocol.Coin(t.fm.unitDenom, t.st.pendingUnits)
		t.st.pendingUnits = sdkmath.LegacyZeroDec()

		rest, err := t.locker().Airdrop(t.ctx, claimants, bucket, true)
		if err != nil {
			return fmt.Errorf("airdrop: %w", err)
		}
		leftover := sdkmath.LegacyZeroDec()
		if !rest.Amount.IsNil() {
			if rest.Denom != t.fm.unitDenom {
				return fmt.Errorf("%w: locker returned %s", ErrWrongResource, rest.Denom)
			}
			leftover = rest.Amount
		}

		if more {
			t.st.pendingUnits = leftover
			return nil
		}
		t.st.unitSupply = t.st.unitSupply.Sub(leftover)
		t.st.unitsToDistribute = sdkmath.LegacyZeroDec()
		fundLogger.Info().Str("burned", leftover.String()).Msg("Distribution completed")
		return nil
	})
}
