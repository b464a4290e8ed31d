package protocol

import (
	"context"

	sdkmath "cosmossdk.io/math"
	cmtsecp256k1 "github.com/cometbft/cometbft/crypto/secp256k1"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/fundmanager/internal/auth"
	"github.com/elys-network/fundmanager/internal/types"
)

// Holdings are the coin amounts held by a position adapter. Other is nil for
// single-coin positions.
type Holdings struct {
	Coin  sdkmath.LegacyDec
	Other *sdkmath.LegacyDec
}

// Assets is everything a position adapter holds, used when migrating a position.
type Assets struct {
	Token sdk.DecCoin  // Position receipt tokens
	Coin  *sdk.DecCoin // Loose primary coin
	Other *sdk.DecCoin // Loose secondary coin
}

// Withdrawal is the result of a partial withdrawal from a position adapter.
type Withdrawal struct {
	Coin      sdk.DecCoin
	Other     *sdk.DecCoin
	Remaining Holdings
}

// DefiProtocol is the uniform contract of an external yield position. Each adapter wraps
// one external protocol and one (or two) coins. Adapters must never call back into the
// fund while handling a call.
type DefiProtocol interface {
	// DepositAll moves receipt tokens and loose coins into the adapter and returns the
	// resulting holdings.
	DepositAll(ctx context.Context, assets Assets) (Holdings, error)

	// WithdrawAll empties the adapter.
	WithdrawAll(ctx context.Context) (Assets, error)

	// DepositCoin invests coins. proof is set when the adapter requires a signed price.
	DepositCoin(ctx context.Context, coin sdk.DecCoin, other *sdk.DecCoin, proof *types.SignedPrice) (Holdings, error)

	// WithdrawCoin withdraws amount worth of the primary coin. For two-coin positions
	// ratio is the price of the secondary coin expressed in primary coin units.
	WithdrawCoin(ctx context.Context, amount sdkmath.LegacyDec, ratio *sdkmath.LegacyDec) (Withdrawal, error)

	// GetCoinAmounts reports the current holdings.
	GetCoinAmounts(ctx context.Context) (Holdings, error)

	// WithdrawAccountBadge returns the control credential of the adapter's custody
	// account. The adapter stops working afterwards.
	WithdrawAccountBadge(ctx context.Context) (auth.Badge, error)
}

// Dex swaps coins.
type Dex interface {
	// Swap converts in into outDenom. When useRemainder is set the router may add
	// leftovers carried from previous swaps to the output.
	Swap(ctx context.Context, in sdk.DecCoin, outDenom string, useRemainder bool) (sdk.DecCoin, error)
}

// Oracle prices coins in USD.
type Oracle interface {
	GetPrice(ctx context.Context, denom string, proofs types.PriceProofs) (sdkmath.LegacyDec, error)
}

// ClaimReceipt represents a pending unstake request.
type ClaimReceipt struct {
	ID     string
	Amount sdkmath.LegacyDec // Stake units being unstaked
}

// Validator is the staking primitive for the validator node the fund operates.
// Calls that need owner rights are only made while the fund holds the validator badge.
type Validator interface {
	StartUnlockOwnerStakeUnits(ctx context.Context, amount sdkmath.LegacyDec) error
	FinishUnlockOwnerStakeUnits(ctx context.Context) (sdk.DecCoin, error)
	Unstake(ctx context.Context, stakeUnits sdk.DecCoin) (ClaimReceipt, error)
	Claim(ctx context.Context, receipt ClaimReceipt) (sdk.DecCoin, error)
	Register(ctx context.Context) error
	Unregister(ctx context.Context) error
	SignalProtocolUpdateReadiness(ctx context.Context, vote string) error
	UpdateKey(ctx context.Context, key cmtsecp256k1.PubKey) error
}

// Claimant is one recipient of an airdrop.
type Claimant struct {
	Account string
	Amount  sdkmath.LegacyDec
}

// AccountLocker distributes a bucket to many accounts, holding the share of accounts that
// refuse direct deposits until they claim it.
type AccountLocker interface {
	// Airdrop sends each claimant its amount out of bucket and returns what is left.
	Airdrop(ctx context.Context, claimants []Claimant, bucket sdk.DecCoin, tryDirect bool) (sdk.DecCoin, error)
}

// Accounts delivers coins and credentials to named accounts.
type Accounts interface {
	Deposit(ctx context.Context, account string, coin sdk.DecCoin) error
	DepositCredential(ctx context.Context, account string, cred auth.Credential) error
}

// Checkpointer is implemented by collaborators that can undo their own state. Checkpoint
// captures the current state and returns a function restoring it. Implementations must be
// comparable (typically pointers).
type Checkpointer interface {
	Checkpoint() (restore func())
}
