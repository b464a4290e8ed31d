package fund

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/fundmanager/internal/auth"
	"github.com/elys-network/fundmanager/internal/protocol"
	"github.com/elys-network/fundmanager/internal/registry"
	"github.com/elys-network/fundmanager/internal/types"
	"github.com/elys-network/fundmanager/internal/utils"
)

// Stake lifecycle: locked -> unlocking (StartUnlockOwnerStakeUnits) -> unlocked ->
// claim pending (StartUnstake) -> claimable -> claimed and invested (FinishUnstake).

// StartUnlockOwnerStakeUnits starts unlocking amount of the validator owner's stake units.
func (f *FundManager) StartUnlockOwnerStakeUnits(ctx context.Context, bot auth.BotCredential, amount sdkmath.LegacyDec) error {
	return f.transact(ctx, opStartUnlock, func(t *txn) error {
		if err := t.verifyBot(bot); err != nil {
			return err
		}
		if amount.IsNil() || !amount.IsPositive() {
			return fmt.Errorf("%w: unlock %v", ErrInvalidAmount, amount)
		}
		validator, err := t.ownedValidator()
		if err != nil {
			return err
		}
		return validator.StartUnlockOwnerStakeUnits(t.ctx, amount)
	})
}

// StartUnstake completes the pending unlock, unstakes the unlocked stake units and keeps
// the claim receipt. It returns the claim id.
func (f *FundManager) StartUnstake(ctx context.Context, bot auth.BotCredential) (string, error) {
	var claimID string
	err := f.transact(ctx, opStartUnstake, func(t *txn) error {
		if err := t.verifyBot(bot); err != nil {
			return err
		}
		validator, err := t.ownedValidator()
		if err != nil {
			return err
		}
		stake, err := validator.FinishUnlockOwnerStakeUnits(t.ctx)
		if err != nil {
			return fmt.Errorf("finish unlock: %w", err)
		}
		if stake.Denom != t.fm.stakeDenom {
			return fmt.Errorf("%w: expected %s, got %s", ErrWrongResource, t.fm.stakeDenom, stake.Denom)
		}
		if stake.Amount.IsNil() || !stake.Amount.IsPositive() {
			return ErrNoStakeUnits
		}

		receipt, err := validator.Unstake(t.ctx, stake)
		if err != nil {
			return fmt.Errorf("unstake: %w", err)
		}
		if _, dup := t.st.claims[receipt.ID]; dup {
			return fmt.Errorf("%w: duplicate claim receipt %s", ErrWrongResource, receipt.ID)
		}
		t.st.claims[receipt.ID] = receipt
		claimID = receipt.ID

		t.emit(types.EventUnstakeStarted, types.UnstakeStarted{
			StakeUnitAmount: stake.Amount,
			ClaimID:         receipt.ID,
		})
		return nil
	})
	return claimID, err
}

// FinishUnstake redeems a claim receipt, sends the buyback share away, invests the rest in
// the most under-allocated position and mints the fund units to distribute. The units keep
// the gross unit value of the fund unchanged.
//
// A position that needs a signed price finds it in proofs; callers that can't know which
// position is picked should send every proof they have.
func (f *FundManager) FinishUnstake(ctx context.Context, bot auth.BotCredential, claimID string, proofs types.PriceProofs) error {
	return f.transact(ctx, opFinishUnstake, func(t *txn) error {
		if err := t.verifyBot(bot); err != nil {
			return err
		}
		if !t.st.pendingUnits.IsZero() {
			return fmt.Errorf("%w: %s units left", ErrDistributionPending, t.st.pendingUnits)
		}

		receipt, ok := t.st.claims[claimID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrClaimNotFound, claimID)
		}
		delete(t.st.claims, claimID)

		claimed, err := t.validator().Claim(t.ctx, receipt)
		if err != nil {
			return fmt.Errorf("claim %s: %w", claimID, err)
		}
		if claimed.Denom != t.fm.baseDenom {
			return fmt.Errorf("%w: claimed %s instead of %s", ErrWrongResource, claimed.Denom, t.fm.baseDenom)
		}

		buyback := utils.PercentOf(claimed.Amount, t.st.buybackPercentage)
		if buyback.IsPositive() {
			if err := t.accounts().Deposit(t.ctx, t.st.buybackAccount, protocol.Coin(t.fm.baseDenom, buyback)); err != nil {
				return fmt.Errorf("buyback deposit: %w", err)
			}
		}
		bucket := protocol.Coin(t.fm.baseDenom, claimed.Amount.Sub(buyback))

		prices, err := t.prices(proofs)
		if err != nil {
			return err
		}
		basePrice, err := prices.Price(t.ctx, t.fm.baseDenom)
		if err != nil {
			return err
		}
		// Units are priced before the investment changes the total value.
		gross, err := t.st.grossUnitValue()
		if err != nil {
			return err
		}
		units := bucket.Amount.Mul(basePrice).Quo(gross)

		p, err := t.st.positions.FindWhereToDepositTo(t.st.totalValue)
		if err != nil {
			return err
		}
		holdings, err := t.invest(p, bucket, proofs)
		if err != nil {
			return err
		}
		value, err := prices.Value(t.ctx, p, holdings)
		if err != nil {
			return err
		}
		t.revalue(p, value)

		t.st.unitSupply = t.st.unitSupply.Add(units)
		t.st.pendingUnits = units
		t.st.unitsToDistribute = units

		t.emit(types.EventUnstakeCompleted, types.UnstakeCompleted{
			ClaimID:           claimID,
			BaseAmount:        bucket.Amount,
			BuybackAmount:     buyback,
			PositionName:      p.Name,
			UnitsToDistribute: units,
			PositionValue:     value,
			TotalValue:        t.st.totalValue,
		})
		fundLogger.Info().
			Str("claimID", claimID).
			Str("position", p.Name).
			Str("invested", bucket.Amount.String()).
			Str("units", units.String()).
			Msg("Unstake completed and invested")
		return nil
	})
}

// invest deposits a base asset bucket into p, swapping it first when p takes neither
// coin as the base asset.
func (t *txn) invest(p *registry.Position, bucket sdk.DecCoin, proofs types.PriceProofs) (protocol.Holdings, error) {
	adapter, err := t.adapter(p)
	if err != nil {
		return protocol.Holdings{}, err
	}
	proof, err := proofFor(p, proofs)
	if err != nil {
		return protocol.Holdings{}, err
	}

	switch {
	case p.Coin == bucket.Denom:
		return adapter.DepositCoin(t.ctx, bucket, nil, proof)
	case p.OtherCoin == bucket.Denom:
		return adapter.DepositCoin(t.ctx, protocol.ZeroCoin(p.Coin), &bucket, proof)
	default:
		dex, err := t.dex()
		if err != nil {
			return protocol.Holdings{}, err
		}
		swapped, err := dex.Swap(t.ctx, bucket, p.Coin, true)
		if err != nil {
			return protocol.Holdings{}, fmt.Errorf("swap %s to %s: %w", bucket.Denom, p.Coin, err)
		}
		if swapped.Denom != p.Coin {
			return protocol.Holdings{}, fmt.Errorf("%w: swap returned %s instead of %s", ErrWrongResource, swapped.Denom, p.Coin)
		}
		return adapter.DepositCoin(t.ctx, swapped, nil, proof)
	}
}
