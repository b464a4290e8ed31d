package auth

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestAuthorizeRejectsSelfAuthorization(t *testing.T) {
	l := NewLedger()
	err := l.Authorize(t0, 1, 1, RemoveDefiProtocol, Params{ProtocolName: "weft-usdc"})
	assert.ErrorIs(t, err, ErrSelfAuthorization)
	assert.Equal(t, 0, l.Len())
}

func TestAuthorizeRejectsDuplicates(t *testing.T) {
	l := NewLedger()
	p := Params{ProtocolName: "weft-usdc"}
	require.NoError(t, l.Authorize(t0, 1, 2, RemoveDefiProtocol, p))

	err := l.Authorize(t0.Add(time.Minute), 1, 2, RemoveDefiProtocol, p)
	assert.ErrorIs(t, err, ErrDuplicateAuth)

	// Different parameters are a different authorization.
	require.NoError(t, l.Authorize(t0, 1, 2, RemoveDefiProtocol, Params{ProtocolName: "root-xrd"}))
	assert.Equal(t, 2, l.Len())
}

func TestAuthorizeRejectsUnknownOperation(t *testing.T) {
	l := NewLedger()
	err := l.Authorize(t0, 1, 2, OperationKind(200), Params{})
	assert.ErrorIs(t, err, ErrUnknownOperation)
}

func TestAuthorizeCapacity(t *testing.T) {
	l := NewLedger()
	for i := 0; i < MaxAuthorizations; i++ {
		require.NoError(t, l.Authorize(t0, 1, 2, AddDefiProtocol, Params{ProtocolName: fmt.Sprintf("p%d", i)}))
	}
	err := l.Authorize(t0, 1, 2, AddDefiProtocol, Params{ProtocolName: "one-too-many"})
	assert.ErrorIs(t, err, ErrAuthorizationsFull)

	// Once the records expire there is room again.
	later := t0.Add(AuthorizationTimeout)
	require.NoError(t, l.Authorize(later, 1, 2, AddDefiProtocol, Params{ProtocolName: "one-too-many"}))
	assert.Equal(t, 1, l.Len())
}

func TestCheckCountsOnlyMatchingRecords(t *testing.T) {
	l := NewLedger()
	name := Params{ProtocolName: "weft-usdc"}
	require.NoError(t, l.Authorize(t0, 1, 2, RemoveDefiProtocol, name))
	require.NoError(t, l.Authorize(t0, 3, 2, RemoveDefiProtocol, Params{ProtocolName: "other"}))
	require.NoError(t, l.Authorize(t0, 3, 1, RemoveDefiProtocol, name))

	err := l.Check(t0, 2, RemoveDefiProtocol, name, 2)
	assert.ErrorIs(t, err, ErrNotAuthorized)
	assert.Equal(t, 3, l.Len(), "failed checks consume nothing")

	require.NoError(t, l.Authorize(t0, 3, 2, RemoveDefiProtocol, name))
	require.NoError(t, l.Check(t0, 2, RemoveDefiProtocol, name, 2))

	// The two matching records are consumed, the others survive.
	records := l.Records(t0)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.False(t, r.AllowedID == 2 && r.Params.Equal(name))
	}

	// Authorizations can't be replayed.
	assert.ErrorIs(t, l.Check(t0, 2, RemoveDefiProtocol, name, 2), ErrNotAuthorized)
}

func TestCheckDistinguishesPercentages(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Authorize(t0, 1, 2, SetWithdrawalFee, Params{Percentage: Percent(5)}))
	require.NoError(t, l.Authorize(t0, 3, 2, SetWithdrawalFee, Params{Percentage: Percent(6)}))

	assert.ErrorIs(t, l.Check(t0, 2, SetWithdrawalFee, Params{Percentage: Percent(5)}, 2), ErrNotAuthorized)
	require.NoError(t, l.Check(t0, 2, SetWithdrawalFee, Params{Percentage: Percent(5)}, 1))
	// The 6% authorization was not consumed by the 5% check.
	require.NoError(t, l.Check(t0, 2, SetWithdrawalFee, Params{Percentage: Percent(6)}, 1))
}

func TestCheckIgnoresExpiredRecords(t *testing.T) {
	l := NewLedger()
	p := Params{Account: "account_rdx1bot"}
	require.NoError(t, l.Authorize(t0, 1, 3, MintBotBadge, p))
	require.NoError(t, l.Authorize(t0.Add(time.Hour), 2, 3, MintBotBadge, p))

	// Exactly at the timeout the first record no longer counts.
	at := t0.Add(AuthorizationTimeout)
	assert.ErrorIs(t, l.Check(at, 3, MintBotBadge, p, 2), ErrNotAuthorized)
	assert.Equal(t, 1, l.Len(), "expired record purged lazily")
	require.NoError(t, l.Check(at, 3, MintBotBadge, p, 1))
}

func TestZeroThresholdAlwaysPasses(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Check(t0, 1, SetDexComponent, Params{}, 0))
}

func TestDropAdmin(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Authorize(t0, 1, 2, SetDexComponent, Params{}))
	require.NoError(t, l.Authorize(t0, 2, 3, SetDexComponent, Params{}))
	require.NoError(t, l.Authorize(t0, 3, 1, SetDexComponent, Params{}))
	l.DropAdmin(2)
	records := l.Records(t0)
	require.Len(t, records, 1)
	assert.Equal(t, uint8(3), records[0].AllowerID)
}

func TestCloneIsIndependent(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Authorize(t0, 1, 2, SetWithdrawalFee, Params{Percentage: Percent(3)}))
	c := l.Clone()
	require.NoError(t, l.Check(t0, 2, SetWithdrawalFee, Params{Percentage: Percent(3)}, 1))
	assert.Equal(t, 0, l.Len())
	assert.Equal(t, 1, c.Len())
}

func TestOperationFromCode(t *testing.T) {
	op, err := OperationFromCode(2)
	require.NoError(t, err)
	assert.Equal(t, RemoveDefiProtocol, op)
	assert.Equal(t, "remove_defi_protocol", op.String())

	_, err = OperationFromCode(uint8(operationKindCount))
	assert.ErrorIs(t, err, ErrUnknownOperation)
	assert.Contains(t, OperationKind(99).String(), "unknown_operation")
}
