package fund

import (
	"context"
	"encoding/hex"
	"fmt"

	sdkmath "cosmossdk.io/math"
	cmtsecp256k1 "github.com/cometbft/cometbft/crypto/secp256k1"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/elys-network/fundmanager/internal/auth"
	"github.com/elys-network/fundmanager/internal/protocol"
	"github.com/elys-network/fundmanager/internal/types"
)

// Operations in this file need a single admin credential so that one admin can react to
// incidents without waiting for quorum.

// DepositValidatorBadge gives the validator owner badge back to the fund.
func (f *FundManager) DepositValidatorBadge(ctx context.Context, cred auth.AdminCredential, badge auth.Badge) error {
	return f.transact(ctx, opDepositValidatorBadge, func(t *txn) error {
		if _, err := t.verifyAdmin(cred); err != nil {
			return err
		}
		if badge.Kind != auth.ValidatorOwnerBadge {
			return fmt.Errorf("%w: %s is not a validator owner badge", ErrWrongResource, badge.Kind)
		}
		if t.st.validatorBadge != nil {
			return fmt.Errorf("%w: validator owner badge", ErrBadgePresent)
		}
		t.st.validatorBadge = &badge
		return nil
	})
}

// DepositFundManagerBadge gives the fund manager badge back to the fund.
func (f *FundManager) DepositFundManagerBadge(ctx context.Context, cred auth.AdminCredential, badge auth.Badge) error {
	return f.transact(ctx, opDepositManagerBadge, func(t *txn) error {
		if _, err := t.verifyAdmin(cred); err != nil {
			return err
		}
		if badge.Kind != auth.FundManagerBadge {
			return fmt.Errorf("%w: %s is not a fund manager badge", ErrWrongResource, badge.Kind)
		}
		if t.st.fundManagerBadge != nil {
			return fmt.Errorf("%w: fund manager badge", ErrBadgePresent)
		}
		t.st.fundManagerBadge = &badge
		return nil
	})
}

// RegisterValidator registers (register=true) or unregisters the validator node.
func (f *FundManager) RegisterValidator(ctx context.Context, cred auth.AdminCredential, register bool) error {
	return f.transact(ctx, opRegisterValidator, func(t *txn) error {
		if _, err := t.verifyAdmin(cred); err != nil {
			return err
		}
		validator, err := t.ownedValidator()
		if err != nil {
			return err
		}
		if register {
			return validator.Register(t.ctx)
		}
		return validator.Unregister(t.ctx)
	})
}

// SignalProtocolUpdateReadiness casts the validator vote for a protocol update.
func (f *FundManager) SignalProtocolUpdateReadiness(ctx context.Context, cred auth.AdminCredential, vote string) error {
	return f.transact(ctx, opSignalReadiness, func(t *txn) error {
		if _, err := t.verifyAdmin(cred); err != nil {
			return err
		}
		validator, err := t.ownedValidator()
		if err != nil {
			return err
		}
		return validator.SignalProtocolUpdateReadiness(t.ctx, vote)
	})
}

// UpdateNodeKey moves the validator to the node with the given hex encoded secp256k1
// public key, compressed or not.
func (f *FundManager) UpdateNodeKey(ctx context.Context, cred auth.AdminCredential, key string) error {
	return f.transact(ctx, opUpdateNodeKey, func(t *txn) error {
		if _, err := t.verifyAdmin(cred); err != nil {
			return err
		}
		raw, err := hex.DecodeString(key)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidKey, err)
		}
		pub, err := secp256k1.ParsePubKey(raw)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidKey, err)
		}
		validator, err := t.ownedValidator()
		if err != nil {
			return err
		}
		return validator.UpdateKey(t.ctx, cmtsecp256k1.PubKey(pub.SerializeCompressed()))
	})
}

// DepositCoin invests coins in the named position. With mint set it returns fund units
// worth the deposited coins at the gross unit value before the deposit.
func (f *FundManager) DepositCoin(ctx context.Context, cred auth.AdminCredential, name string, coin sdk.DecCoin, other *sdk.DecCoin, proofs types.PriceProofs, mint bool) (*sdk.DecCoin, error) {
	var minted *sdk.DecCoin
	err := f.transact(ctx, opDepositCoin, func(t *txn) error {
		if _, err := t.verifyAdmin(cred); err != nil {
			return err
		}
		p, err := t.st.positions.Get(name)
		if err != nil {
			return err
		}
		if coin.Denom != p.Coin {
			return fmt.Errorf("%w: %s takes %s, got %s", ErrWrongResource, name, p.Coin, coin.Denom)
		}
		if other != nil && other.Denom != p.OtherCoin {
			return fmt.Errorf("%w: %s doesn't take %s", ErrWrongResource, name, other.Denom)
		}

		prices, err := t.prices(proofs)
		if err != nil {
			return err
		}
		coinPrice, err := prices.Price(t.ctx, p.Coin)
		if err != nil {
			return err
		}
		bucketsValue := coin.Amount.Mul(coinPrice)
		if other != nil {
			otherPrice, err := prices.Price(t.ctx, p.OtherCoin)
			if err != nil {
				return err
			}
			bucketsValue = bucketsValue.Add(other.Amount.Mul(otherPrice))
		}

		units := sdkmath.LegacyZeroDec()
		if mint {
			gross, err := t.st.grossUnitValue()
			if err != nil {
				return err
			}
			units = bucketsValue.Quo(gross)
		}

		proof, err := proofFor(p, proofs)
		if err != nil {
			return err
		}
		adapter, err := t.adapter(p)
		if err != nil {
			return err
		}
		holdings, err := adapter.DepositCoin(t.ctx, coin, other, proof)
		if err != nil {
			return fmt.Errorf("deposit into %s: %w", name, err)
		}
		value, err := prices.Value(t.ctx, p, holdings)
		if err != nil {
			return err
		}
		t.revalue(p, value)

		if mint {
			t.st.unitSupply = t.st.unitSupply.Add(units)
			minted = protocol.CoinPtr(t.fm.unitDenom, units)
		}
		t.emit(types.EventAdminDeposit, types.AdminDeposit{
			PositionName:  name,
			PositionValue: value,
			TotalValue:    t.st.totalValue,
			UnitsMinted:   units,
		})
		return nil
	})
	return minted, err
}

// DepositProtocolToken deposits receipt tokens of the named position. With mint set it
// returns fund units worth the value the deposit added to the position.
func (f *FundManager) DepositProtocolToken(ctx context.Context, cred auth.AdminCredential, name string, token sdk.DecCoin, proofs types.PriceProofs, mint bool) (*sdk.DecCoin, error) {
	var minted *sdk.DecCoin
	err := f.transact(ctx, opDepositProtocolToken, func(t *txn) error {
		if _, err := t.verifyAdmin(cred); err != nil {
			return err
		}
		p, err := t.st.positions.Get(name)
		if err != nil {
			return err
		}
		if token.Denom != p.ProtocolToken {
			return fmt.Errorf("%w: %s takes %s tokens, got %s", ErrWrongResource, name, p.ProtocolToken, token.Denom)
		}

		adapter, err := t.adapter(p)
		if err != nil {
			return err
		}
		prices, err := t.prices(proofs)
		if err != nil {
			return err
		}
		before, err := adapter.GetCoinAmounts(t.ctx)
		if err != nil {
			return fmt.Errorf("coin amounts of %s: %w", name, err)
		}
		valueBefore, err := prices.Value(t.ctx, p, before)
		if err != nil {
			return err
		}

		var gross sdkmath.LegacyDec
		if mint {
			if gross, err = t.st.grossUnitValue(); err != nil {
				return err
			}
		}

		holdings, err := adapter.DepositAll(t.ctx, protocol.Assets{Token: token})
		if err != nil {
			return fmt.Errorf("deposit tokens into %s: %w", name, err)
		}
		value, err := prices.Value(t.ctx, p, holdings)
		if err != nil {
			return err
		}
		t.revalue(p, value)

		units := sdkmath.LegacyZeroDec()
		if mint {
			if added := value.Sub(valueBefore); added.IsPositive() {
				units = added.Quo(gross)
			}
			t.st.unitSupply = t.st.unitSupply.Add(units)
			minted = protocol.CoinPtr(t.fm.unitDenom, units)
		}
		t.emit(types.EventAdminDeposit, types.AdminDeposit{
			PositionName:  name,
			PositionValue: value,
			TotalValue:    t.st.totalValue,
			UnitsMinted:   units,
		})
		return nil
	})
	return minted, err
}
