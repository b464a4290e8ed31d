package simulations

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/fundmanager/internal/auth"
	"github.com/elys-network/fundmanager/internal/protocol"
)

var (
	ErrBucketTooSmall = errors.New("airdrop exceeds bucket")
	ErrNoAccount      = errors.New("empty account address")
)

type balances map[string]map[string]sdkmath.LegacyDec

func (b balances) add(account, denom string, amount sdkmath.LegacyDec) {
	byDenom, ok := b[account]
	if !ok {
		byDenom = make(map[string]sdkmath.LegacyDec)
		b[account] = byDenom
	}
	if cur, ok := byDenom[denom]; ok {
		amount = cur.Add(amount)
	}
	byDenom[denom] = amount
}

func (b balances) get(account, denom string) sdkmath.LegacyDec {
	if amount, ok := b[account][denom]; ok {
		return amount
	}
	return sdkmath.LegacyZeroDec()
}

func (b balances) clone() balances {
	c := make(balances, len(b))
	for account, byDenom := range b {
		m := make(map[string]sdkmath.LegacyDec, len(byDenom))
		for denom, amount := range byDenom {
			m[denom] = amount
		}
		c[account] = m
	}
	return c
}

// MemoryAccounts is an in-memory account directory.
type MemoryAccounts struct {
	mu          sync.Mutex
	balances    balances
	credentials map[string][]auth.Credential
}

var _ protocol.Accounts = (*MemoryAccounts)(nil)
var _ protocol.Checkpointer = (*MemoryAccounts)(nil)

func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{
		balances:    make(balances),
		credentials: make(map[string][]auth.Credential),
	}
}

func (a *MemoryAccounts) Deposit(_ context.Context, account string, coin sdk.DecCoin) error {
	if account == "" {
		return ErrNoAccount
	}
	if coin.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balances.add(account, coin.Denom, coin.Amount)
	return nil
}

func (a *MemoryAccounts) DepositCredential(_ context.Context, account string, cred auth.Credential) error {
	if account == "" {
		return ErrNoAccount
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.credentials[account] = append(a.credentials[account], cred)
	return nil
}

func (a *MemoryAccounts) Balance(account, denom string) sdkmath.LegacyDec {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balances.get(account, denom)
}

// Credentials returns what has been delivered to account.
func (a *MemoryAccounts) Credentials(account string) []auth.Credential {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]auth.Credential(nil), a.credentials[account]...)
}

// BotCredential returns the last bot credential delivered to account.
func (a *MemoryAccounts) BotCredential(account string) (auth.BotCredential, bool) {
	creds := a.Credentials(account)
	for i := len(creds) - 1; i >= 0; i-- {
		if bot, ok := creds[i].(auth.BotCredential); ok {
			return bot, true
		}
	}
	return auth.BotCredential{}, false
}

// AdminCredential returns the last admin credential delivered to account.
func (a *MemoryAccounts) AdminCredential(account string) (auth.AdminCredential, bool) {
	creds := a.Credentials(account)
	for i := len(creds) - 1; i >= 0; i-- {
		if admin, ok := creds[i].(auth.AdminCredential); ok {
			return admin, true
		}
	}
	return auth.AdminCredential{}, false
}

func (a *MemoryAccounts) Checkpoint() func() {
	a.mu.Lock()
	saved := a.balances.clone()
	creds := make(map[string][]auth.Credential, len(a.credentials))
	for k, v := range a.credentials {
		creds[k] = append([]auth.Credential(nil), v...)
	}
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.balances, a.credentials = saved, creds
	}
}

// MemoryLocker is an in-memory batched airdrop utility. Accounts marked as refusing
// direct deposits get their share stored for a later claim.
type MemoryLocker struct {
	mu        sync.Mutex
	delivered balances
	claimable balances
	refusing  map[string]bool
}

var _ protocol.AccountLocker = (*MemoryLocker)(nil)
var _ protocol.Checkpointer = (*MemoryLocker)(nil)

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		delivered: make(balances),
		claimable: make(balances),
		refusing:  make(map[string]bool),
	}
}

// RefuseDirect marks account as not accepting direct deposits.
func (l *MemoryLocker) RefuseDirect(account string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refusing[account] = true
}

func (l *MemoryLocker) Delivered(account, denom string) sdkmath.LegacyDec {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.delivered.get(account, denom)
}

func (l *MemoryLocker) Claimable(account, denom string) sdkmath.LegacyDec {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.claimable.get(account, denom)
}

func (l *MemoryLocker) Airdrop(_ context.Context, claimants []protocol.Claimant, bucket sdk.DecCoin, tryDirect bool) (sdk.DecCoin, error) {
	total := sdkmath.LegacyZeroDec()
	for _, c := range claimants {
		if c.Account == "" {
			return sdk.DecCoin{}, ErrNoAccount
		}
		if c.Amount.IsNegative() {
			return sdk.DecCoin{}, ErrNegativeAmount
		}
		total = total.Add(c.Amount)
	}
	if total.GT(bucket.Amount) {
		return sdk.DecCoin{}, fmt.Errorf("%w: %s > %s", ErrBucketTooSmall, total, bucket.Amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range claimants {
		if tryDirect && !l.refusing[c.Account] {
			l.delivered.add(c.Account, bucket.Denom, c.Amount)
		} else {
			l.claimable.add(c.Account, bucket.Denom, c.Amount)
		}
	}
	return protocol.Coin(bucket.Denom, bucket.Amount.Sub(total)), nil
}

func (l *MemoryLocker) Checkpoint() func() {
	l.mu.Lock()
	delivered, claimable := l.delivered.clone(), l.claimable.clone()
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.delivered, l.claimable = delivered, claimable
	}
}
