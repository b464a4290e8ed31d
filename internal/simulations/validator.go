package simulations

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	cmtsecp256k1 "github.com/cometbft/cometbft/crypto/secp256k1"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/fundmanager/internal/protocol"
)

var (
	ErrInsufficientStake = errors.New("not enough locked owner stake units")
	ErrUnknownClaim      = errors.New("unknown claim receipt")
	ErrClaimNotReady     = errors.New("claim receipt not yet claimable")
	ErrInvalidNodeKey    = errors.New("invalid node key")
)

type pendingClaim struct {
	amount  sdkmath.LegacyDec
	matured bool
}

// MemoryValidator simulates the staking primitive of a validator node. Unlocks and
// unstakes mature on Advance, which stands for the passing of an epoch.
type MemoryValidator struct {
	mu sync.Mutex

	baseDenom    string
	stakeDenom   string
	exchangeRate sdkmath.LegacyDec // Base asset per stake unit

	locked    sdkmath.LegacyDec
	unlocking sdkmath.LegacyDec
	unlocked  sdkmath.LegacyDec
	claims    map[string]pendingClaim
	nextClaim int

	registered bool
	key        cmtsecp256k1.PubKey
	votes      []string
}

var _ protocol.Validator = (*MemoryValidator)(nil)
var _ protocol.Checkpointer = (*MemoryValidator)(nil)

func NewMemoryValidator(baseDenom, stakeDenom string, locked, exchangeRate sdkmath.LegacyDec) *MemoryValidator {
	return &MemoryValidator{
		baseDenom:    baseDenom,
		stakeDenom:   stakeDenom,
		exchangeRate: exchangeRate,
		locked:       locked,
		unlocking:    sdkmath.LegacyZeroDec(),
		unlocked:     sdkmath.LegacyZeroDec(),
		claims:       make(map[string]pendingClaim),
	}
}

// AccrueRewards adds owner stake units earned by the validator.
func (v *MemoryValidator) AccrueRewards(amount sdkmath.LegacyDec) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.locked = v.locked.Add(amount)
}

// Advance completes pending unlocks and matures every claim.
func (v *MemoryValidator) Advance() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.unlocked = v.unlocked.Add(v.unlocking)
	v.unlocking = sdkmath.LegacyZeroDec()
	for id, c := range v.claims {
		c.matured = true
		v.claims[id] = c
	}
}

// Balances returns the locked, unlocking and unlocked owner stake units.
func (v *MemoryValidator) Balances() (locked, unlocking, unlocked sdkmath.LegacyDec) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.locked, v.unlocking, v.unlocked
}

func (v *MemoryValidator) Registered() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.registered
}

func (v *MemoryValidator) Key() cmtsecp256k1.PubKey {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.key
}

func (v *MemoryValidator) Votes() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.votes...)
}

func (v *MemoryValidator) StartUnlockOwnerStakeUnits(_ context.Context, amount sdkmath.LegacyDec) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !amount.IsPositive() || amount.GT(v.locked) {
		return fmt.Errorf("%w: requested %s, locked %s", ErrInsufficientStake, amount, v.locked)
	}
	v.locked = v.locked.Sub(amount)
	v.unlocking = v.unlocking.Add(amount)
	return nil
}

func (v *MemoryValidator) FinishUnlockOwnerStakeUnits(_ context.Context) (sdk.DecCoin, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := protocol.Coin(v.stakeDenom, v.unlocked)
	v.unlocked = sdkmath.LegacyZeroDec()
	return out, nil
}

func (v *MemoryValidator) Unstake(_ context.Context, stakeUnits sdk.DecCoin) (protocol.ClaimReceipt, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if stakeUnits.Denom != v.stakeDenom {
		return protocol.ClaimReceipt{}, fmt.Errorf("%w: expected %s, got %s", ErrWrongDenom, v.stakeDenom, stakeUnits.Denom)
	}
	if !stakeUnits.Amount.IsPositive() {
		return protocol.ClaimReceipt{}, ErrInsufficientStake
	}
	v.nextClaim++
	id := fmt.Sprintf("claim-%d", v.nextClaim)
	v.claims[id] = pendingClaim{amount: stakeUnits.Amount}
	return protocol.ClaimReceipt{ID: id, Amount: stakeUnits.Amount}, nil
}

func (v *MemoryValidator) Claim(_ context.Context, receipt protocol.ClaimReceipt) (sdk.DecCoin, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	c, ok := v.claims[receipt.ID]
	if !ok {
		return sdk.DecCoin{}, fmt.Errorf("%w: %s", ErrUnknownClaim, receipt.ID)
	}
	if !c.matured {
		return sdk.DecCoin{}, fmt.Errorf("%w: %s", ErrClaimNotReady, receipt.ID)
	}
	delete(v.claims, receipt.ID)
	return protocol.Coin(v.baseDenom, c.amount.Mul(v.exchangeRate)), nil
}

func (v *MemoryValidator) Register(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.registered = true
	return nil
}

func (v *MemoryValidator) Unregister(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.registered = false
	return nil
}

func (v *MemoryValidator) SignalProtocolUpdateReadiness(_ context.Context, vote string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.votes = append(v.votes, vote)
	return nil
}

func (v *MemoryValidator) UpdateKey(_ context.Context, key cmtsecp256k1.PubKey) error {
	if len(key) != cmtsecp256k1.PubKeySize {
		return fmt.Errorf("%w: %d bytes", ErrInvalidNodeKey, len(key))
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.key = append(cmtsecp256k1.PubKey(nil), key...)
	return nil
}

func (v *MemoryValidator) Checkpoint() func() {
	v.mu.Lock()
	locked, unlocking, unlocked := v.locked, v.unlocking, v.unlocked
	nextClaim, registered := v.nextClaim, v.registered
	key := v.key
	votes := append([]string(nil), v.votes...)
	claims := make(map[string]pendingClaim, len(v.claims))
	for k, c := range v.claims {
		claims[k] = c
	}
	v.mu.Unlock()

	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.locked, v.unlocking, v.unlocked = locked, unlocking, unlocked
		v.nextClaim, v.registered, v.key, v.votes = nextClaim, registered, key, votes
		v.claims = claims
	}
}
