package fund

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/fundmanager/internal/protocol"
	"github.com/elys-network/fundmanager/internal/types"
	"github.com/elys-network/fundmanager/internal/utils"
)

// acceptableValueDifference is the relative gap between the units a withdrawal should
// burn and the units handed in that is treated as an exact match.
var acceptableValueDifference = sdkmath.LegacyNewDecWithPrec(1, 1)

// WithdrawResult is what a withdrawal hands back to the caller.
type WithdrawResult struct {
	Coin  sdk.DecCoin
	Other *sdk.DecCoin // Second coin of two-coin positions when not swapped
	Units sdk.DecCoin  // Fund units that were not burned
}

// Withdraw redeems fund units for the coins of a single position. When swapTo is set every
// returned coin is converted to it. If the chosen position can't cover the whole value,
// the units that were not redeemed are returned.
func (f *FundManager) Withdraw(ctx context.Context, units sdk.DecCoin, swapTo string, proofs types.PriceProofs) (WithdrawResult, error) {
	var result WithdrawResult
	err := f.transact(ctx, opWithdraw, func(t *txn) error {
		if err := t.requireInitialized(); err != nil {
			return err
		}
		if units.Denom != t.fm.unitDenom {
			return fmt.Errorf("%w: expected %s, got %s", ErrWrongResource, t.fm.unitDenom, units.Denom)
		}
		amount := units.Amount
		if amount.IsNil() || !amount.IsPositive() {
			return fmt.Errorf("%w: withdraw %v units", ErrInvalidAmount, amount)
		}
		if circulating := t.st.unitSupply.Sub(t.st.pendingUnits); amount.GT(circulating) {
			return fmt.Errorf("%w: %s requested, %s in circulation", ErrInsufficientUnits, amount, circulating)
		}

		net, _, err := t.st.unitValue()
		if err != nil {
			return err
		}
		gross, err := t.st.grossUnitValue()
		if err != nil {
			return err
		}

		p, withdrawable, err := t.st.positions.FindWhereToWithdrawFrom(t.st.totalValue, amount.Mul(net))
		if err != nil {
			return err
		}
		prices, err := t.prices(proofs)
		if err != nil {
			return err
		}
		coinPrice, err := prices.Price(t.ctx, p.Coin)
		if err != nil {
			return err
		}
		coinAmount, err := utils.SafeQuo(withdrawable, coinPrice)
		if err != nil {
			return fmt.Errorf("price of %s: %w", p.Coin, err)
		}

		var ratio *sdkmath.LegacyDec
		otherPrice := sdkmath.LegacyZeroDec()
		if p.HasOtherCoin() {
			if otherPrice, err = prices.Price(t.ctx, p.OtherCoin); err != nil {
				return err
			}
			ratio = protocol.DecPtr(otherPrice.Quo(coinPrice))
		}

		adapter, err := t.adapter(p)
		if err != nil {
			return err
		}
		w, err := adapter.WithdrawCoin(t.ctx, coinAmount, ratio)
		if err != nil {
			return fmt.Errorf("withdraw from %s: %w", p.Name, err)
		}
		if w.Coin.Denom != p.Coin || (w.Other != nil && w.Other.Denom != p.OtherCoin) {
			return fmt.Errorf("%w: %s returned unexpected coins", ErrWrongResource, p.Name)
		}

		bucketsValue := w.Coin.Amount.Mul(coinPrice)
		if w.Other != nil {
			bucketsValue = bucketsValue.Add(w.Other.Amount.Mul(otherPrice))
		}
		value, err := prices.Value(t.ctx, p, w.Remaining)
		if err != nil {
			return err
		}
		t.revalue(p, value)

		coin, other := w.Coin, w.Other
		if swapTo != "" {
			if coin, other, err = t.swapAll(coin, other, swapTo); err != nil {
				return err
			}
		}
		if other != nil && other.Denom == coin.Denom {
			if coin, err = protocol.Merge(coin, *other); err != nil {
				return err
			}
			other = nil
		}

		burn := bucketsValue.Quo(gross)
		one := sdkmath.LegacyOneDec()
		if burn.GT(amount) {
			if !burn.LT(amount.Mul(one.Add(acceptableValueDifference))) {
				return fmt.Errorf("%w: %s units worth of value for %s units", ErrTooMuchValueWithdrawn, burn, amount)
			}
			burn = amount
		} else if burn.GT(amount.Mul(one.Sub(acceptableValueDifference))) {
			burn = amount
		}
		t.st.unitSupply = t.st.unitSupply.Sub(burn)

		t.emit(types.EventWithdrawalCompleted, types.WithdrawalCompleted{
			UnitsBurned:   burn,
			UnitsReturned: amount.Sub(burn),
			PositionName:  p.Name,
			PositionValue: value,
			TotalValue:    t.st.totalValue,
		})

		result = WithdrawResult{
			Coin:  coin,
			Other: other,
			Units: protocol.Coin(t.fm.unitDenom, amount.Sub(burn)),
		}
		return nil
	})
	return result, err
}

// swapAll converts coin and other to denom, merging them into a single bucket.
func (t *txn) swapAll(coin sdk.DecCoin, other *sdk.DecCoin, denom string) (sdk.DecCoin, *sdk.DecCoin, error) {
	swap := func(in sdk.DecCoin) (sdk.DecCoin, error) {
		if in.Denom == denom {
			return in, nil
		}
		dex, err := t.dex()
		if err != nil {
			return sdk.DecCoin{}, err
		}
		out, err := dex.Swap(t.ctx, in, denom, false)
		if err != nil {
			return sdk.DecCoin{}, fmt.Errorf("swap %s to %s: %w", in.Denom, denom, err)
		}
		if out.Denom != denom {
			return sdk.DecCoin{}, fmt.Errorf("%w: swap returned %s instead of %s", ErrWrongResource, out.Denom, denom)
		}
		return out, nil
	}

	coin, err := swap(coin)
	if err != nil {
		return sdk.DecCoin{}, nil, err
	}
	if other == nil {
		return coin, nil, nil
	}
	swapped, err := swap(*other)
	if err != nil {
		return sdk.DecCoin{}, nil, err
	}
	merged, err := protocol.Merge(coin, swapped)
	if err != nil {
		return sdk.DecCoin{}, nil, err
	}
	return merged, nil, nil
}
