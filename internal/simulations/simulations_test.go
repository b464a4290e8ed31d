package simulations

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	cmtsecp256k1 "github.com/cometbft/cometbft/crypto/secp256k1"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/fundmanager/internal/auth"
	"github.com/elys-network/fundmanager/internal/protocol"
	"github.com/elys-network/fundmanager/internal/types"
)

func dec(s string) sdkmath.LegacyDec {
	return sdkmath.LegacyMustNewDecFromStr(s)
}

// ---------------------------------------------------------------------------
// Position adapters
// ---------------------------------------------------------------------------

func TestMemoryProtocolDepositAndWithdraw(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProtocol("lend", "xusdc", "w-xusdc")

	h, err := p.DepositCoin(ctx, protocol.Coin("xusdc", dec("100")), nil, nil)
	require.NoError(t, err)
	assert.True(t, h.Coin.Equal(dec("100")))
	assert.Nil(t, h.Other)

	w, err := p.WithdrawCoin(ctx, dec("30"), nil)
	require.NoError(t, err)
	assert.True(t, w.Coin.Amount.Equal(dec("30")))
	assert.True(t, w.Remaining.Coin.Equal(dec("70")))

	// Asking for more than held returns what is there.
	w, err = p.WithdrawCoin(ctx, dec("500"), nil)
	require.NoError(t, err)
	assert.True(t, w.Coin.Amount.Equal(dec("70")))
	assert.True(t, w.Remaining.Coin.IsZero())
}

func TestMemoryProtocolRejectsWrongDenom(t *testing.T) {
	p := NewMemoryProtocol("lend", "xusdc", "w-xusdc")
	_, err := p.DepositCoin(context.Background(), protocol.Coin("xrd", dec("1")), nil, nil)
	assert.ErrorIs(t, err, ErrWrongDenom)
}

func TestMemoryPairProtocolWithdrawsProportionally(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPairProtocol("pool", "xusdc", "xrd", "lp")
	p.Seed(dec("100"), dec("400"))

	// One xrd is worth 0.25 xusdc, so the position is worth 200 xusdc.
	w, err := p.WithdrawCoin(ctx, dec("50"), protocol.DecPtr(dec("0.25")))
	require.NoError(t, err)
	assert.True(t, w.Coin.Amount.Equal(dec("25")))
	require.NotNil(t, w.Other)
	assert.True(t, w.Other.Amount.Equal(dec("100")))
	assert.True(t, w.Remaining.Coin.Equal(dec("75")))
	assert.True(t, w.Remaining.Other.Equal(dec("300")))

	_, err = p.WithdrawCoin(ctx, dec("1"), nil)
	assert.ErrorIs(t, err, ErrMissingRatio)
}

func TestMemoryProtocolMigration(t *testing.T) {
	ctx := context.Background()
	old := NewMemoryPairProtocol("pool", "xusdc", "xrd", "lp")
	old.Seed(dec("10"), dec("20"))

	assets, err := old.WithdrawAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "lp", assets.Token.Denom)

	next := NewMemoryPairProtocol("pool", "xusdc", "xrd", "lp")
	h, err := next.DepositAll(ctx, assets)
	require.NoError(t, err)
	assert.True(t, h.Coin.Equal(dec("10")))
	assert.True(t, h.Other.Equal(dec("20")))

	c, o := old.Amounts()
	assert.True(t, c.IsZero())
	assert.True(t, o.IsZero())
}

func TestMemoryProtocolProofAndDetach(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProtocol("perp", "xusdc", "w").RequirePriceProof()
	_, err := p.DepositCoin(ctx, protocol.Coin("xusdc", dec("1")), nil, nil)
	assert.ErrorIs(t, err, ErrMissingProof)

	_, err = p.DepositCoin(ctx, protocol.Coin("xusdc", dec("1")), nil, &types.SignedPrice{Message: "m", Signature: "s"})
	require.NoError(t, err)

	badge, err := p.WithdrawAccountBadge(ctx)
	require.NoError(t, err)
	assert.Equal(t, auth.AccountControlBadge, badge.Kind)

	_, err = p.GetCoinAmounts(ctx)
	assert.ErrorIs(t, err, ErrDetached)
}

func TestMemoryProtocolCheckpoint(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProtocol("lend", "xusdc", "w")
	p.Seed(dec("5"), sdkmath.LegacyZeroDec())

	restore := p.Checkpoint()
	_, err := p.DepositCoin(ctx, protocol.Coin("xusdc", dec("10")), nil, nil)
	require.NoError(t, err)
	restore()

	c, _ := p.Amounts()
	assert.True(t, c.Equal(dec("5")))
}

func TestMemoryProtocolFailNext(t *testing.T) {
	p := NewMemoryProtocol("lend", "xusdc", "w")
	p.FailNext()
	_, err := p.WithdrawAll(context.Background())
	assert.ErrorIs(t, err, ErrInjectedFailure)
	_, err = p.WithdrawAll(context.Background())
	assert.NoError(t, err)
}

// ---------------------------------------------------------------------------
// Oracle
// ---------------------------------------------------------------------------

func TestMultiOracleFixedAndMultiplier(t *testing.T) {
	ctx := context.Background()
	o := NewMultiOracle(nil)
	o.SetFixedPrice("xrd", dec("0.02"))
	o.SetFixedMultiplier("lsu", "xrd", dec("1.5"))

	price, err := o.GetPrice(ctx, "lsu", nil)
	require.NoError(t, err)
	assert.True(t, price.Equal(dec("0.03")))

	_, err = o.GetPrice(ctx, "nope", nil)
	assert.ErrorIs(t, err, ErrUnknownDenom)
}

func TestMultiOracleDetectsLoops(t *testing.T) {
	o := NewMultiOracle(nil)
	o.SetFixedMultiplier("a", "b", dec("1"))
	o.SetFixedMultiplier("b", "a", dec("1"))
	_, err := o.GetPrice(context.Background(), "a", nil)
	assert.ErrorIs(t, err, ErrSourceLoop)
}

func TestMultiOracleSignedPrices(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	o := NewMultiOracle(func() time.Time { return now })

	key, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	o.SetSignedSource("xbtc", "BTC/USD", key.PubKey(), time.Minute)

	_, err = o.GetPrice(ctx, "xbtc", nil)
	assert.ErrorIs(t, err, ErrMissingPrice)

	fresh := SignPrice(key, "BTC/USD", dec("65000"), now.Add(-10*time.Second))
	price, err := o.GetPrice(ctx, "xbtc", types.PriceProofs{"xbtc": fresh})
	require.NoError(t, err)
	assert.True(t, price.Equal(dec("65000")))

	stale := SignPrice(key, "BTC/USD", dec("65000"), now.Add(-time.Minute))
	_, err = o.GetPrice(ctx, "xbtc", types.PriceProofs{"xbtc": stale})
	assert.ErrorIs(t, err, ErrStalePrice)

	wrongMarket := SignPrice(key, "ETH/USD", dec("3000"), now)
	_, err = o.GetPrice(ctx, "xbtc", types.PriceProofs{"xbtc": wrongMarket})
	assert.ErrorIs(t, err, ErrMarketMismatch)

	other, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	forged := SignPrice(other, "BTC/USD", dec("1"), now)
	_, err = o.GetPrice(ctx, "xbtc", types.PriceProofs{"xbtc": forged})
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifySignedPriceRejectsTampering(t *testing.T) {
	key, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	proof := SignPrice(key, "BTC/USD", dec("10"), time.Unix(1700000000, 0))
	proof.Message = "BTC/USD|11.000000000000000000|1700000000"

	_, _, _, err = VerifySignedPrice(key.PubKey(), proof)
	assert.ErrorIs(t, err, ErrBadSignature)
}

// ---------------------------------------------------------------------------
// Dex
// ---------------------------------------------------------------------------

func TestRouteDexDirectAndHop(t *testing.T) {
	ctx := context.Background()
	d := NewRouteDex("xrd", 6)
	require.NoError(t, d.SetRate("xrd", "xusdc", dec("0.02")))
	require.NoError(t, d.SetRate("xrd", "xeth", dec("0.00001")))

	out, err := d.Swap(ctx, protocol.Coin("xrd", dec("1000")), "xusdc", false)
	require.NoError(t, err)
	assert.Equal(t, "xusdc", out.Denom)
	assert.True(t, out.Amount.Equal(dec("20")))

	// xusdc -> xrd -> xeth
	out, err = d.Swap(ctx, protocol.Coin("xusdc", dec("20")), "xeth", false)
	require.NoError(t, err)
	assert.True(t, out.Amount.Equal(dec("0.01")))

	_, err = d.Swap(ctx, protocol.Coin("foo", dec("1")), "xeth", false)
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestRouteDexCarriesRemainders(t *testing.T) {
	ctx := context.Background()
	d := NewRouteDex("xrd", 2)
	require.NoError(t, d.SetRate("xrd", "xusdc", dec("0.333")))

	out, err := d.Swap(ctx, protocol.Coin("xrd", dec("1")), "xusdc", false)
	require.NoError(t, err)
	assert.True(t, out.Amount.Equal(dec("0.33")))
	assert.True(t, d.Remainder("xusdc").Equal(dec("0.003")))

	out, err = d.Swap(ctx, protocol.Coin("xrd", dec("1")), "xusdc", true)
	require.NoError(t, err)
	assert.True(t, out.Amount.Equal(dec("0.33")))
	assert.True(t, d.Remainder("xusdc").Equal(dec("0.006")))
}

func TestRouteDexSameDenom(t *testing.T) {
	d := NewRouteDex("xrd", 6)
	in := protocol.Coin("xrd", dec("3"))
	out, err := d.Swap(context.Background(), in, "xrd", true)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

// ---------------------------------------------------------------------------
// Validator
// ---------------------------------------------------------------------------

func TestMemoryValidatorLifecycle(t *testing.T) {
	ctx := context.Background()
	v := NewMemoryValidator("xrd", "lsu", dec("100"), dec("2"))

	require.NoError(t, v.StartUnlockOwnerStakeUnits(ctx, dec("40")))
	assert.ErrorIs(t, v.StartUnlockOwnerStakeUnits(ctx, dec("61")), ErrInsufficientStake)

	unlocked, err := v.FinishUnlockOwnerStakeUnits(ctx)
	require.NoError(t, err)
	assert.True(t, unlocked.Amount.IsZero())

	v.Advance()
	unlocked, err = v.FinishUnlockOwnerStakeUnits(ctx)
	require.NoError(t, err)
	assert.True(t, unlocked.Amount.Equal(dec("40")))

	receipt, err := v.Unstake(ctx, unlocked)
	require.NoError(t, err)
	_, err = v.Claim(ctx, receipt)
	assert.ErrorIs(t, err, ErrClaimNotReady)

	v.Advance()
	out, err := v.Claim(ctx, receipt)
	require.NoError(t, err)
	assert.Equal(t, "xrd", out.Denom)
	assert.True(t, out.Amount.Equal(dec("80")))

	_, err = v.Claim(ctx, receipt)
	assert.ErrorIs(t, err, ErrUnknownClaim)
}

func TestMemoryValidatorNodeControls(t *testing.T) {
	ctx := context.Background()
	v := NewMemoryValidator("xrd", "lsu", dec("0"), dec("1"))
	require.NoError(t, v.Register(ctx))
	assert.True(t, v.Registered())
	require.NoError(t, v.Unregister(ctx))
	assert.False(t, v.Registered())

	require.NoError(t, v.SignalProtocolUpdateReadiness(ctx, "v2"))
	assert.Equal(t, []string{"v2"}, v.Votes())

	assert.ErrorIs(t, v.UpdateKey(ctx, cmtsecp256k1.PubKey{1, 2}), ErrInvalidNodeKey)
	key := cmtsecp256k1.GenPrivKey().PubKey().(cmtsecp256k1.PubKey)
	require.NoError(t, v.UpdateKey(ctx, key))
	assert.Equal(t, key, v.Key())
}

// ---------------------------------------------------------------------------
// Accounts and locker
// ---------------------------------------------------------------------------

func TestMemoryLockerAirdrop(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()
	l.RefuseDirect("bob")

	rest, err := l.Airdrop(ctx, []protocol.Claimant{
		{Account: "alice", Amount: dec("30")},
		{Account: "bob", Amount: dec("20")},
	}, protocol.Coin("funit", dec("60")), true)
	require.NoError(t, err)
	assert.True(t, rest.Amount.Equal(dec("10")))
	assert.True(t, l.Delivered("alice", "funit").Equal(dec("30")))
	assert.True(t, l.Claimable("bob", "funit").Equal(dec("20")))
	assert.True(t, l.Delivered("bob", "funit").IsZero())

	_, err = l.Airdrop(ctx, []protocol.Claimant{{Account: "alice", Amount: dec("61")}}, protocol.Coin("funit", dec("60")), true)
	assert.ErrorIs(t, err, ErrBucketTooSmall)
}

func TestMemoryAccountsCredentials(t *testing.T) {
	ctx := context.Background()
	a := NewMemoryAccounts()
	issuer := auth.NewIssuer()
	bot := issuer.MintBot()

	require.NoError(t, a.DepositCredential(ctx, "ops", bot))
	got, ok := a.BotCredential("ops")
	require.True(t, ok)
	assert.NoError(t, issuer.VerifyBot(got))

	_, ok = a.AdminCredential("ops")
	assert.False(t, ok)

	restore := a.Checkpoint()
	require.NoError(t, a.Deposit(ctx, "ops", protocol.Coin("xrd", dec("5"))))
	assert.True(t, a.Balance("ops", "xrd").Equal(dec("5")))
	restore()
	assert.True(t, a.Balance("ops", "xrd").IsZero())

	assert.ErrorIs(t, a.Deposit(ctx, "", protocol.Coin("xrd", dec("1"))), ErrNoAccount)
}
