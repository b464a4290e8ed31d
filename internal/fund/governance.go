package fund

import (
	"context"
	"fmt"

	"github.com/elys-network/fundmanager/internal/auth"
	"github.com/elys-network/fundmanager/internal/protocol"
)

// Operations in this file need the authorization of min_authorizers other admins. Admins
// must agree on the discriminating parameters too: an authorization for a 5% fee can't be
// used to set a 6% one.

// WithdrawValidatorBadge hands the validator owner badge over to the caller.
func (f *FundManager) WithdrawValidatorBadge(ctx context.Context, cred auth.AdminCredential) (auth.Badge, error) {
	var badge auth.Badge
	err := f.transact(ctx, auth.WithdrawValidatorBadge.String(), func(t *txn) error {
		if err := t.authorized(cred, auth.WithdrawValidatorBadge, auth.Params{}); err != nil {
			return err
		}
		if t.st.validatorBadge == nil {
			return fmt.Errorf("%w: validator owner badge", ErrBadgeMissing)
		}
		badge = *t.st.validatorBadge
		t.st.validatorBadge = nil
		return nil
	})
	return badge, err
}

// WithdrawFundManagerBadge hands the fund manager badge over to the caller. Without it
// the fund can't operate its positions until the badge is deposited back.
func (f *FundManager) WithdrawFundManagerBadge(ctx context.Context, cred auth.AdminCredential) (auth.Badge, error) {
	var badge auth.Badge
	err := f.transact(ctx, auth.WithdrawFundManagerBadge.String(), func(t *txn) error {
		if err := t.authorized(cred, auth.WithdrawFundManagerBadge, auth.Params{}); err != nil {
			return err
		}
		if t.st.fundManagerBadge == nil {
			return fmt.Errorf("%w: fund manager badge", ErrBadgeMissing)
		}
		badge = *t.st.fundManagerBadge
		t.st.fundManagerBadge = nil
		return nil
	})
	return badge, err
}

// IncreaseMinAuthorizers raises the quorum by one. The new quorum applies from the next
// operation.
func (f *FundManager) IncreaseMinAuthorizers(ctx context.Context, cred auth.AdminCredential) error {
	return f.transact(ctx, auth.IncreaseMinAuthorizers.String(), func(t *txn) error {
		if err := t.authorized(cred, auth.IncreaseMinAuthorizers, auth.Params{}); err != nil {
			return err
		}
		if t.st.minAuthorizers+1 >= t.st.issuer.AdminCount() {
			return ErrMinAuthorizers
		}
		t.st.minAuthorizers++
		return nil
	})
}

// DecreaseMinAuthorizers lowers the quorum by one. At zero any single admin can perform
// multisig operations.
func (f *FundManager) DecreaseMinAuthorizers(ctx context.Context, cred auth.AdminCredential) error {
	return f.transact(ctx, auth.DecreaseMinAuthorizers.String(), func(t *txn) error {
		if err := t.authorized(cred, auth.DecreaseMinAuthorizers, auth.Params{}); err != nil {
			return err
		}
		if t.st.minAuthorizers == 0 {
			return fmt.Errorf("%w: already zero", ErrMinAuthorizers)
		}
		t.st.minAuthorizers--
		return nil
	})
}

// MintAdminBadge mints a new admin credential and delivers it to account.
func (f *FundManager) MintAdminBadge(ctx context.Context, cred auth.AdminCredential, account string) (auth.AdminCredential, error) {
	var minted auth.AdminCredential
	err := f.transact(ctx, auth.MintAdminBadge.String(), func(t *txn) error {
		if err := t.authorized(cred, auth.MintAdminBadge, auth.Params{Account: account}); err != nil {
			return err
		}
		next, err := t.st.issuer.MintAdmin()
		if err != nil {
			return err
		}
		if err := t.accounts().DepositCredential(t.ctx, account, next); err != nil {
			return fmt.Errorf("deliver admin badge to %s: %w", account, err)
		}
		minted = next
		return nil
	})
	return minted, err
}

// RevokeAdminBadge destroys the credential of admin id together with every pending
// authorization given by or to it.
func (f *FundManager) RevokeAdminBadge(ctx context.Context, cred auth.AdminCredential, id uint8) error {
	return f.transact(ctx, auth.RevokeAdminBadge.String(), func(t *txn) error {
		if err := t.authorized(cred, auth.RevokeAdminBadge, auth.Params{AdminID: id}); err != nil {
			return err
		}
		if err := t.st.issuer.RevokeAdmin(id); err != nil {
			return err
		}
		t.st.ledger.DropAdmin(id)
		if t.st.minAuthorizers >= t.st.issuer.AdminCount() {
			return ErrMinAuthorizers
		}
		return nil
	})
}

// MintBotBadge mints a bot credential and delivers it to account.
func (f *FundManager) MintBotBadge(ctx context.Context, cred auth.AdminCredential, account string) error {
	return f.transact(ctx, auth.MintBotBadge.String(), func(t *txn) error {
		if err := t.authorized(cred, auth.MintBotBadge, auth.Params{Account: account}); err != nil {
			return err
		}
		bot := t.st.issuer.MintBot()
		if err := t.accounts().DepositCredential(t.ctx, account, bot); err != nil {
			return fmt.Errorf("deliver bot badge to %s: %w", account, err)
		}
		return nil
	})
}

// SetDexComponent replaces the swap router.
func (f *FundManager) SetDexComponent(ctx context.Context, cred auth.AdminCredential, dex protocol.Dex) error {
	return f.transact(ctx, auth.SetDexComponent.String(), func(t *txn) error {
		if err := t.authorized(cred, auth.SetDexComponent, auth.Params{}); err != nil {
			return err
		}
		if dex == nil {
			return fmt.Errorf("%w: dex", ErrComponentMissing)
		}
		t.st.dex = dex
		return nil
	})
}

// SetOracleComponent replaces the price oracle.
func (f *FundManager) SetOracleComponent(ctx context.Context, cred auth.AdminCredential, oracle protocol.Oracle) error {
	return f.transact(ctx, auth.SetOracleComponent.String(), func(t *txn) error {
		if err := t.authorized(cred, auth.SetOracleComponent, auth.Params{}); err != nil {
			return err
		}
		if oracle == nil {
			return fmt.Errorf("%w: oracle", ErrComponentMissing)
		}
		t.st.oracle = oracle
		return nil
	})
}

// SetWithdrawalFee sets the percentage of every withdrawal kept by the fund.
func (f *FundManager) SetWithdrawalFee(ctx context.Context, cred auth.AdminCredential, percentage uint8) error {
	return f.transact(ctx, auth.SetWithdrawalFee.String(), func(t *txn) error {
		if err := t.authorized(cred, auth.SetWithdrawalFee, auth.Params{Percentage: auth.Percent(percentage)}); err != nil {
			return err
		}
		if percentage >= 100 {
			return fmt.Errorf("%w: withdrawal fee %d", ErrInvalidPercentage, percentage)
		}
		t.st.withdrawalFee = percentage
		return nil
	})
}

// SetBuybackFund sets the share of every claimed unstake sent to account.
func (f *FundManager) SetBuybackFund(ctx context.Context, cred auth.AdminCredential, percentage uint8, account string) error {
	return f.transact(ctx, auth.SetBuybackFund.String(), func(t *txn) error {
		params := auth.Params{Percentage: auth.Percent(percentage), Account: account}
		if err := t.authorized(cred, auth.SetBuybackFund, params); err != nil {
			return err
		}
		if percentage >= 100 {
			return fmt.Errorf("%w: buyback %d", ErrInvalidPercentage, percentage)
		}
		if account == "" {
			return fmt.Errorf("buyback account cannot be empty")
		}
		t.st.buybackPercentage = percentage
		t.st.buybackAccount = account
		return nil
	})
}
