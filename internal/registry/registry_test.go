package registry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/fundmanager/internal/auth"
	"github.com/elys-network/fundmanager/internal/protocol"
	"github.com/elys-network/fundmanager/internal/types"
)

// nopAdapter satisfies protocol.DefiProtocol for registry bookkeeping tests.
type nopAdapter struct{}

func (nopAdapter) DepositAll(context.Context, protocol.Assets) (protocol.Holdings, error) {
	return protocol.Holdings{}, nil
}
func (nopAdapter) WithdrawAll(context.Context) (protocol.Assets, error) { return protocol.Assets{}, nil }
func (nopAdapter) DepositCoin(context.Context, sdk.DecCoin, *sdk.DecCoin, *types.SignedPrice) (protocol.Holdings, error) {
	return protocol.Holdings{}, nil
}
func (nopAdapter) WithdrawCoin(context.Context, sdkmath.LegacyDec, *sdkmath.LegacyDec) (protocol.Withdrawal, error) {
	return protocol.Withdrawal{}, nil
}
func (nopAdapter) GetCoinAmounts(context.Context) (protocol.Holdings, error) {
	return protocol.Holdings{}, nil
}
func (nopAdapter) WithdrawAccountBadge(context.Context) (auth.Badge, error) { return auth.Badge{}, nil }

func pos(name string, value int64, desired uint8) Position {
	return Position{
		Name:              name,
		Value:             sdkmath.LegacyNewDec(value),
		DesiredPercentage: desired,
		Adapter:           nopAdapter{},
		Coin:              "xusdc",
		ProtocolToken:     "w-" + name,
	}
}

func build(t *testing.T, entries ...Position) *Registry {
	t.Helper()
	r := New()
	for _, p := range entries {
		_, err := r.Upsert(p)
		require.NoError(t, err)
	}
	return r
}

// ---------------------------------------------------------------------------
// Bookkeeping
// ---------------------------------------------------------------------------

func TestUpsertKeepsOrderAndReplacesInPlace(t *testing.T) {
	r := build(t, pos("a", 1, 10), pos("b", 2, 20), pos("c", 3, 30))
	old, err := r.Upsert(pos("b", 9, 50))
	require.NoError(t, err)
	require.NotNil(t, old)
	assert.True(t, old.Value.Equal(sdkmath.LegacyNewDec(2)))
	assert.Equal(t, []string{"a", "b", "c"}, r.Names())

	b, err := r.Get("b")
	require.NoError(t, err)
	assert.Equal(t, uint8(50), b.DesiredPercentage)
}

func TestUpsertValidates(t *testing.T) {
	r := New()
	bad := pos("x", 0, 101)
	_, err := r.Upsert(bad)
	assert.ErrorIs(t, err, ErrPercentageOutOfRange)

	noAdapter := pos("y", 0, 1)
	noAdapter.Adapter = nil
	_, err = r.Upsert(noAdapter)
	assert.ErrorIs(t, err, ErrInvalidPosition)

	twice := pos("z", 0, 1)
	twice.OtherCoin = twice.Coin
	_, err = r.Upsert(twice)
	assert.ErrorIs(t, err, ErrInvalidPosition)
}

func TestRegistryCapacity(t *testing.T) {
	r := New()
	for i := 0; i < MaxPositions; i++ {
		_, err := r.Upsert(pos(fmt.Sprintf("p%d", i), 0, 0))
		require.NoError(t, err)
	}
	_, err := r.Upsert(pos("overflow", 0, 0))
	assert.ErrorIs(t, err, ErrRegistryFull)

	// Updating an existing name still works at capacity.
	_, err = r.Upsert(pos("p7", 5, 5))
	assert.NoError(t, err)
}

func TestRemoveReindexes(t *testing.T) {
	r := build(t, pos("a", 1, 0), pos("b", 2, 0), pos("c", 3, 0))
	removed, err := r.Remove("a")
	require.NoError(t, err)
	assert.Equal(t, "a", removed.Name)

	c, err := r.Get("c")
	require.NoError(t, err)
	assert.Equal(t, "c", c.Name)
	assert.Equal(t, []string{"b", "c"}, r.Names())

	_, err = r.Remove("a")
	assert.ErrorIs(t, err, ErrPositionNotFound)
	_, err = r.Get("missing")
	assert.ErrorIs(t, err, ErrPositionNotFound)
}

func TestSetDesiredPercentagesIsAllOrNothing(t *testing.T) {
	r := build(t, pos("a", 1, 10), pos("b", 2, 20))
	err := r.SetDesiredPercentages(map[string]uint8{"a": 40, "missing": 10})
	assert.ErrorIs(t, err, ErrPositionNotFound)
	a, _ := r.Get("a")
	assert.Equal(t, uint8(10), a.DesiredPercentage)

	assert.ErrorIs(t, r.SetDesiredPercentages(map[string]uint8{"a": 101}), ErrPercentageOutOfRange)
	require.NoError(t, r.SetDesiredPercentages(map[string]uint8{"a": 0, "b": 100}))
	b, _ := r.Get("b")
	assert.Equal(t, uint8(100), b.DesiredPercentage)
}

func TestCloneIsDeep(t *testing.T) {
	r := build(t, pos("a", 1, 10))
	c := r.Clone()
	a, _ := r.Get("a")
	a.Value = sdkmath.LegacyNewDec(100)
	ca, _ := c.Get("a")
	assert.True(t, ca.Value.Equal(sdkmath.LegacyNewDec(1)))
	assert.True(t, r.TotalValue().Equal(sdkmath.LegacyNewDec(100)))
}

// ---------------------------------------------------------------------------
// Allocation
// ---------------------------------------------------------------------------

func TestFindWhereToDepositTo(t *testing.T) {
	// a: 50% vs 40 (+10), b: 30% vs 40 (-10), c: 20% vs 20 (0)
	r := build(t, pos("a", 500, 40), pos("b", 300, 40), pos("c", 200, 20))
	p, err := r.FindWhereToDepositTo(r.TotalValue())
	require.NoError(t, err)
	assert.Equal(t, "b", p.Name)
}

func TestFindWhereToDepositToTieGoesToFirst(t *testing.T) {
	r := build(t, pos("a", 100, 60), pos("b", 100, 60))
	p, err := r.FindWhereToDepositTo(r.TotalValue())
	require.NoError(t, err)
	assert.Equal(t, "a", p.Name)
}

func TestFindWhereToDepositToZeroTotal(t *testing.T) {
	r := build(t, pos("a", 0, 10), pos("b", 0, 70))
	p, err := r.FindWhereToDepositTo(sdkmath.LegacyZeroDec())
	require.NoError(t, err)
	assert.Equal(t, "b", p.Name, "with nothing invested the largest target wins")
}

func TestFindOnEmptyRegistry(t *testing.T) {
	r := New()
	_, err := r.FindWhereToDepositTo(sdkmath.LegacyZeroDec())
	assert.ErrorIs(t, err, ErrNoPositions)
	_, _, err = r.FindWhereToWithdrawFrom(sdkmath.LegacyZeroDec(), sdkmath.LegacyOneDec())
	assert.ErrorIs(t, err, ErrNoPositions)
}

func TestFindWhereToWithdrawFromPrefersOverAllocated(t *testing.T) {
	// a: 50% vs 20 (+30), b: 30% vs 10 (+20), c: 20% vs 70 (-50)
	r := build(t, pos("a", 500, 20), pos("b", 300, 10), pos("c", 200, 70))
	p, amount, err := r.FindWhereToWithdrawFrom(r.TotalValue(), sdkmath.LegacyNewDec(250))
	require.NoError(t, err)
	assert.Equal(t, "a", p.Name)
	assert.True(t, amount.Equal(sdkmath.LegacyNewDec(250)))

	// Only b and a qualify for 300; a is still more over-allocated.
	p, _, err = r.FindWhereToWithdrawFrom(r.TotalValue(), sdkmath.LegacyNewDec(300))
	require.NoError(t, err)
	assert.Equal(t, "a", p.Name)
}

func TestFindWhereToWithdrawFromSkipsTooSmall(t *testing.T) {
	// b is the most over-allocated but can't cover 400.
	r := build(t, pos("a", 600, 60), pos("b", 400, 0))
	p, _, err := r.FindWhereToWithdrawFrom(r.TotalValue(), sdkmath.LegacyNewDec(401))
	require.NoError(t, err)
	assert.Equal(t, "a", p.Name)
}

func TestFindWhereToWithdrawFromFallsBackToLargest(t *testing.T) {
	r := build(t, pos("a", 40, 50), pos("b", 100, 50))
	p, amount, err := r.FindWhereToWithdrawFrom(r.TotalValue(), sdkmath.LegacyNewDec(105))
	require.NoError(t, err)
	assert.Equal(t, "b", p.Name)
	assert.True(t, amount.Equal(sdkmath.LegacyNewDec(100)), amount.String())
}

func TestFindWhereToWithdrawFromNothingHeld(t *testing.T) {
	r := build(t, pos("a", 0, 50))
	_, _, err := r.FindWhereToWithdrawFrom(sdkmath.LegacyZeroDec(), sdkmath.LegacyNewDec(5))
	assert.ErrorIs(t, err, ErrNothingToWithdraw)
}

// ---------------------------------------------------------------------------
// Valuation
// ---------------------------------------------------------------------------

type countingOracle struct {
	prices map[string]sdkmath.LegacyDec
	calls  map[string]int
}

func (o *countingOracle) GetPrice(_ context.Context, denom string, _ types.PriceProofs) (sdkmath.LegacyDec, error) {
	o.calls[denom]++
	p, ok := o.prices[denom]
	if !ok {
		return sdkmath.LegacyZeroDec(), errors.New("no price")
	}
	return p, nil
}

func TestPriceCacheFetchesOnce(t *testing.T) {
	oracle := &countingOracle{
		prices: map[string]sdkmath.LegacyDec{"xusdc": sdkmath.LegacyOneDec(), "xrd": sdkmath.LegacyNewDecWithPrec(2, 2)},
		calls:  map[string]int{},
	}
	cache := NewPriceCache(oracle, nil)

	single := pos("a", 0, 0)
	pair := pos("b", 0, 0)
	pair.OtherCoin = "xrd"

	v, err := cache.Value(context.Background(), &single, protocol.Holdings{Coin: sdkmath.LegacyNewDec(10)})
	require.NoError(t, err)
	assert.True(t, v.Equal(sdkmath.LegacyNewDec(10)))

	v, err = cache.Value(context.Background(), &pair, protocol.Holdings{
		Coin:  sdkmath.LegacyNewDec(10),
		Other: protocol.DecPtr(sdkmath.LegacyNewDec(100)),
	})
	require.NoError(t, err)
	assert.True(t, v.Equal(sdkmath.LegacyNewDec(12)), v.String())

	assert.Equal(t, 1, oracle.calls["xusdc"])
	assert.Equal(t, 1, oracle.calls["xrd"])
	assert.Equal(t, 2, cache.Fetched())
}

func TestPriceCacheErrors(t *testing.T) {
	oracle := &countingOracle{prices: map[string]sdkmath.LegacyDec{"xusdc": sdkmath.LegacyOneDec()}, calls: map[string]int{}}
	cache := NewPriceCache(oracle, nil)

	pair := pos("b", 0, 0)
	pair.OtherCoin = "xrd"
	_, err := cache.Value(context.Background(), &pair, protocol.Holdings{Coin: sdkmath.LegacyOneDec()})
	assert.ErrorIs(t, err, ErrHoldingsMismatch)

	_, err = cache.Value(context.Background(), &pair, protocol.Holdings{
		Coin:  sdkmath.LegacyOneDec(),
		Other: protocol.DecPtr(sdkmath.LegacyOneDec()),
	})
	assert.Error(t, err)
}

func TestActualPercentage(t *testing.T) {
	assert.True(t, ActualPercentage(sdkmath.LegacyNewDec(25), sdkmath.LegacyNewDec(200)).Equal(sdkmath.LegacyMustNewDecFromStr("12.5")))
	assert.True(t, ActualPercentage(sdkmath.LegacyNewDec(25), sdkmath.LegacyZeroDec()).IsZero())
}
