package fund

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/fundmanager/internal/auth"
	"github.com/elys-network/fundmanager/internal/protocol"
	"github.com/elys-network/fundmanager/internal/registry"
	"github.com/elys-network/fundmanager/internal/simulations"
	"github.com/elys-network/fundmanager/internal/types"
)

const (
	base  = "xrd"
	unit  = "funit"
	stake = "lsu"
	usdc  = "xusdc"
	eth   = "xeth"
)

func dec(s string) sdkmath.LegacyDec {
	return sdkmath.LegacyMustNewDecFromStr(s)
}

func assertDec(t *testing.T, want string, got sdkmath.LegacyDec, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), append([]any{"want %s, got %s", want, got}, msgAndArgs...)...)
}

type recordingObserver struct {
	operations []string
	failures   int
	snapshots  int
	last       types.FundSnapshot
}

func (o *recordingObserver) ObserveOperation(op string, err error) {
	o.operations = append(o.operations, op)
	if err != nil {
		o.failures++
	}
}

func (o *recordingObserver) ObserveSnapshot(s types.FundSnapshot) {
	o.snapshots++
	o.last = s
}

type options struct {
	admins  uint8
	min     uint8
	supply  string
	fee     uint8
	buyback uint8
}

func defaults() options {
	return options{admins: 3, min: 1, supply: "1000"}
}

type harness struct {
	t   *testing.T
	ctx context.Context
	now time.Time

	fm        *FundManager
	validator *simulations.MemoryValidator
	locker    *simulations.MemoryLocker
	accounts  *simulations.MemoryAccounts
	oracle    *simulations.MultiOracle
	dex       *simulations.RouteDex
	sink      *simulations.RecordingSink
	observer  *recordingObserver

	admins []auth.AdminCredential
	bot    auth.BotCredential
}

func newHarness(t *testing.T, opts options) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		ctx:       context.Background(),
		now:       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		validator: simulations.NewMemoryValidator(base, stake, dec("1000"), dec("1")),
		locker:    simulations.NewMemoryLocker(),
		accounts:  simulations.NewMemoryAccounts(),
		dex:       simulations.NewRouteDex(base, 6),
		sink:      &simulations.RecordingSink{},
		observer:  &recordingObserver{},
	}
	h.oracle = simulations.NewMultiOracle(h.clock)
	h.oracle.SetFixedPrice(base, dec("0.02"))
	h.oracle.SetFixedPrice(usdc, dec("1"))
	h.oracle.SetFixedPrice(eth, dec("2000"))
	require.NoError(t, h.dex.SetRate(base, usdc, dec("0.02")))
	require.NoError(t, h.dex.SetRate(base, eth, dec("0.00001")))

	fm, err := New(Config{
		BaseDenom:         base,
		UnitDenom:         unit,
		StakeUnitDenom:    stake,
		WithdrawalFee:     opts.fee,
		BuybackPercentage: opts.buyback,
		BuybackAccount:    "buyback",
		Validator:         h.validator,
		AccountLocker:     h.locker,
		Accounts:          h.accounts,
		Oracle:            h.oracle,
		Dex:               h.dex,
		ValidatorBadge:    &auth.Badge{Kind: auth.ValidatorOwnerBadge, ID: "validator"},
		Clock:             h.clock,
		Sinks:             []EventSink{h.sink},
		Observer:          h.observer,
	})
	require.NoError(t, err)
	h.fm = fm

	admins, units, err := fm.Init(h.ctx, opts.admins, opts.min, dec(opts.supply))
	require.NoError(t, err)
	require.Len(t, admins, int(opts.admins))
	assert.Equal(t, unit, units.Denom)
	h.admins = admins

	h.approve(0, auth.MintBotBadge, auth.Params{Account: "bot"})
	require.NoError(t, fm.MintBotBadge(h.ctx, admins[0], "bot"))
	bot, ok := h.accounts.BotCredential("bot")
	require.True(t, ok)
	h.bot = bot
	return h
}

func (h *harness) clock() time.Time { return h.now }

func (h *harness) advance(d time.Duration) { h.now = h.now.Add(d) }

// approve has the first min_authorizers other admins authorize admin number allowed.
func (h *harness) approve(allowed int, op auth.OperationKind, params auth.Params) {
	h.t.Helper()
	need := h.fm.Snapshot().MinAuthorizers
	given := uint8(0)
	for i, cred := range h.admins {
		if given == need {
			break
		}
		if i == allowed {
			continue
		}
		require.NoError(h.t, h.fm.AuthorizeAdminOperation(h.ctx, cred, h.admins[allowed].ID(), op, params))
		given++
	}
	require.Equal(h.t, need, given, "not enough admins to approve")
}

func (h *harness) add(p registry.Position) {
	h.t.Helper()
	h.approve(0, auth.AddDefiProtocol, auth.Params{ProtocolName: p.Name})
	require.NoError(h.t, h.fm.AddDefiProtocol(h.ctx, h.admins[0], p))
}

// lend registers a single-coin usdc position and funds it without minting units.
func (h *harness) lend(name string, amount string, desired uint8) *simulations.MemoryProtocol {
	h.t.Helper()
	adapter := simulations.NewMemoryProtocol(name, usdc, "w-"+name)
	h.add(registry.Position{Name: name, DesiredPercentage: desired, Adapter: adapter, Coin: usdc, ProtocolToken: "w-" + name})
	if amount != "0" {
		_, err := h.fm.DepositCoin(h.ctx, h.admins[0], name, protocol.Coin(usdc, dec(amount)), nil, nil, false)
		require.NoError(h.t, err)
	}
	return adapter
}

func coin(denom, amount string) sdk.DecCoin {
	return protocol.Coin(denom, dec(amount))
}

func coinPtr(denom, amount string) *sdk.DecCoin {
	return protocol.CoinPtr(denom, dec(amount))
}

func registryPosition(name string, adapter protocol.DefiProtocol, coin, other, token string) registry.Position {
	return registry.Position{Name: name, DesiredPercentage: 100, Adapter: adapter, Coin: coin, OtherCoin: other, ProtocolToken: token}
}

// assertBalanced checks that the total value is the sum of the cached position values.
func (h *harness) assertBalanced() {
	h.t.Helper()
	sum := sdkmath.LegacyZeroDec()
	for _, p := range h.fm.FundDetails() {
		sum = sum.Add(p.Value)
	}
	assertDec(h.t, sum.String(), h.fm.Snapshot().TotalValue)
}

// ---------------------------------------------------------------------------
// Setup
// ---------------------------------------------------------------------------

func TestNewValidatesConfig(t *testing.T) {
	valid := Config{
		BaseDenom:      base,
		UnitDenom:      unit,
		StakeUnitDenom: stake,
		Validator:      simulations.NewMemoryValidator(base, stake, dec("0"), dec("1")),
		AccountLocker:  simulations.NewMemoryLocker(),
		Accounts:       simulations.NewMemoryAccounts(),
	}
	_, err := New(valid)
	require.NoError(t, err)

	cfg := valid
	cfg.UnitDenom = "x"
	_, err = New(cfg)
	assert.Error(t, err)

	cfg = valid
	cfg.WithdrawalFee = 100
	_, err = New(cfg)
	assert.ErrorIs(t, err, ErrInvalidPercentage)

	cfg = valid
	cfg.BuybackPercentage = 5
	_, err = New(cfg)
	assert.Error(t, err, "buyback without account")

	cfg = valid
	cfg.ValidatorBadge = &auth.Badge{Kind: auth.FundManagerBadge, ID: "x"}
	_, err = New(cfg)
	assert.ErrorIs(t, err, ErrWrongResource)
}

func TestInitRunsOnce(t *testing.T) {
	h := newHarness(t, defaults())
	_, _, err := h.fm.Init(h.ctx, 3, 1, dec("1"))
	assert.ErrorIs(t, err, ErrAlreadyInitialized)

	fm, err := New(Config{
		BaseDenom: base, UnitDenom: unit, StakeUnitDenom: stake,
		Validator: h.validator, AccountLocker: h.locker, Accounts: h.accounts,
	})
	require.NoError(t, err)
	_, _, err = fm.Init(h.ctx, 2, 2, dec("1"))
	assert.ErrorIs(t, err, ErrMinAuthorizers)
	_, _, err = fm.Init(h.ctx, 0, 0, dec("1"))
	assert.ErrorIs(t, err, ErrMinAuthorizers)

	_, err = fm.Withdraw(h.ctx, protocol.Coin(unit, dec("1")), "", nil)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

// ---------------------------------------------------------------------------
// Multisig
// ---------------------------------------------------------------------------

func TestRemoveDefiProtocolWithQuorum(t *testing.T) {
	opts := defaults()
	opts.min = 2
	h := newHarness(t, opts)
	h.lend("weft-usdc", "400", 40)
	h.lend("other", "600", 60)
	a, b, c := h.admins[0], h.admins[1], h.admins[2]
	params := auth.Params{ProtocolName: "weft-usdc"}

	require.NoError(t, h.fm.AuthorizeAdminOperation(h.ctx, a, b.ID(), auth.RemoveDefiProtocol, params))
	_, err := h.fm.RemoveDefiProtocol(h.ctx, b, "weft-usdc")
	assert.ErrorIs(t, err, auth.ErrNotAuthorized)
	assert.Len(t, h.fm.FundDetails(), 2)

	require.NoError(t, h.fm.AuthorizeAdminOperation(h.ctx, c, b.ID(), auth.RemoveDefiProtocol, params))
	badge, err := h.fm.RemoveDefiProtocol(h.ctx, b, "weft-usdc")
	require.NoError(t, err)
	assert.Equal(t, auth.AccountControlBadge, badge.Kind)
	assert.Equal(t, "weft-usdc", badge.ID)

	details := h.fm.FundDetails()
	require.Len(t, details, 1)
	assert.Equal(t, "other", details[0].Name)
	assertDec(t, "600", h.fm.Snapshot().TotalValue)
	assert.Contains(t, h.sink.Kinds(), types.EventPositionRemoved)

	// The authorizations were spent.
	_, err = h.fm.RemoveDefiProtocol(h.ctx, b, "other")
	assert.ErrorIs(t, err, auth.ErrNotAuthorized)
}

func TestAuthorizationsExpire(t *testing.T) {
	h := newHarness(t, defaults())
	h.approve(0, auth.SetWithdrawalFee, auth.Params{Percentage: auth.Percent(5)})

	h.advance(auth.AuthorizationTimeout)
	err := h.fm.SetWithdrawalFee(h.ctx, h.admins[0], 5)
	assert.ErrorIs(t, err, auth.ErrNotAuthorized)
	assert.Empty(t, h.fm.Authorizations())
}

func TestAuthorizationParametersMustMatch(t *testing.T) {
	h := newHarness(t, defaults())
	h.approve(0, auth.SetWithdrawalFee, auth.Params{Percentage: auth.Percent(5)})

	assert.ErrorIs(t, h.fm.SetWithdrawalFee(h.ctx, h.admins[0], 6), auth.ErrNotAuthorized)
	require.NoError(t, h.fm.SetWithdrawalFee(h.ctx, h.admins[0], 5))
	assert.Equal(t, uint8(5), h.fm.Snapshot().WithdrawalFee)
	assert.ErrorIs(t, h.fm.SetWithdrawalFee(h.ctx, h.admins[0], 5), auth.ErrNotAuthorized)

	h.approve(0, auth.SetWithdrawalFee, auth.Params{Percentage: auth.Percent(100)})
	assert.ErrorIs(t, h.fm.SetWithdrawalFee(h.ctx, h.admins[0], 100), ErrInvalidPercentage)
}

func TestAuthorizeRejectsBadCredentials(t *testing.T) {
	h := newHarness(t, defaults())
	me := h.admins[0]
	assert.ErrorIs(t, h.fm.AuthorizeAdminOperation(h.ctx, me, me.ID(), auth.SetDexComponent, auth.Params{}), auth.ErrSelfAuthorization)

	other := newHarness(t, defaults())
	err := h.fm.AuthorizeAdminOperation(h.ctx, other.admins[1], me.ID(), auth.SetDexComponent, auth.Params{})
	assert.ErrorIs(t, err, auth.ErrInvalidCredential)

	assert.ErrorIs(t, h.fm.StartUnlockOwnerStakeUnits(h.ctx, other.bot, dec("1")), auth.ErrInvalidCredential)
}

func TestMinAuthorizersStaysBelowAdmins(t *testing.T) {
	h := newHarness(t, defaults())

	h.approve(0, auth.IncreaseMinAuthorizers, auth.Params{})
	require.NoError(t, h.fm.IncreaseMinAuthorizers(h.ctx, h.admins[0]))
	assert.Equal(t, uint8(2), h.fm.Snapshot().MinAuthorizers)

	h.approve(0, auth.IncreaseMinAuthorizers, auth.Params{})
	assert.ErrorIs(t, h.fm.IncreaseMinAuthorizers(h.ctx, h.admins[0]), ErrMinAuthorizers)
	assert.Equal(t, uint8(2), h.fm.Snapshot().MinAuthorizers)

	h.approve(0, auth.DecreaseMinAuthorizers, auth.Params{})
	require.NoError(t, h.fm.DecreaseMinAuthorizers(h.ctx, h.admins[0]))
	assert.Equal(t, uint8(1), h.fm.Snapshot().MinAuthorizers)
}

func TestRevokeAdminBadge(t *testing.T) {
	h := newHarness(t, defaults())
	third := h.admins[2]

	h.approve(0, auth.RevokeAdminBadge, auth.Params{AdminID: third.ID()})
	require.NoError(t, h.fm.RevokeAdminBadge(h.ctx, h.admins[0], third.ID()))
	assert.Equal(t, uint8(2), h.fm.Snapshot().NumberOfAdmins)
	err := h.fm.AuthorizeAdminOperation(h.ctx, third, h.admins[0].ID(), auth.SetDexComponent, auth.Params{})
	assert.ErrorIs(t, err, auth.ErrInvalidCredential)

	// Two admins left with a quorum of one: revoking another would break the invariant.
	h.admins = h.admins[:2]
	h.approve(0, auth.RevokeAdminBadge, auth.Params{AdminID: h.admins[1].ID()})
	assert.ErrorIs(t, h.fm.RevokeAdminBadge(h.ctx, h.admins[0], h.admins[1].ID()), ErrMinAuthorizers)
	assert.Equal(t, uint8(2), h.fm.Snapshot().NumberOfAdmins)
}

func TestMintAdminBadgeDeliversWorkingCredential(t *testing.T) {
	h := newHarness(t, defaults())
	h.approve(0, auth.MintAdminBadge, auth.Params{Account: "newcomer"})
	minted, err := h.fm.MintAdminBadge(h.ctx, h.admins[0], "newcomer")
	require.NoError(t, err)
	assert.Equal(t, uint8(4), minted.ID())

	delivered, ok := h.accounts.AdminCredential("newcomer")
	require.True(t, ok)
	assert.NoError(t, h.fm.AuthorizeAdminOperation(h.ctx, delivered, h.admins[0].ID(), auth.SetDexComponent, auth.Params{}))
	assert.Equal(t, uint8(4), h.fm.Snapshot().NumberOfAdmins)
}

func TestBadgesRoundTrip(t *testing.T) {
	h := newHarness(t, defaults())

	badge := auth.Badge{Kind: auth.ValidatorOwnerBadge, ID: "validator"}
	assert.ErrorIs(t, h.fm.DepositValidatorBadge(h.ctx, h.admins[0], badge), ErrBadgePresent)

	h.approve(1, auth.WithdrawValidatorBadge, auth.Params{})
	got, err := h.fm.WithdrawValidatorBadge(h.ctx, h.admins[1])
	require.NoError(t, err)
	assert.Equal(t, badge, got)

	assert.ErrorIs(t, h.fm.RegisterValidator(h.ctx, h.admins[0], true), ErrBadgeMissing)
	assert.ErrorIs(t, h.fm.DepositValidatorBadge(h.ctx, h.admins[0], auth.Badge{Kind: auth.FundManagerBadge}), ErrWrongResource)
	require.NoError(t, h.fm.DepositValidatorBadge(h.ctx, h.admins[0], got))

	require.NoError(t, h.fm.RegisterValidator(h.ctx, h.admins[2], true))
	assert.True(t, h.validator.Registered())
	require.NoError(t, h.fm.SignalProtocolUpdateReadiness(h.ctx, h.admins[2], "cuttlefish"))
	assert.Equal(t, []string{"cuttlefish"}, h.validator.Votes())
}

func TestWithdrawnFundManagerBadgeFreezesPositions(t *testing.T) {
	h := newHarness(t, defaults())
	h.lend("lend", "1000", 100)

	h.approve(0, auth.WithdrawFundManagerBadge, auth.Params{})
	badge, err := h.fm.WithdrawFundManagerBadge(h.ctx, h.admins[0])
	require.NoError(t, err)

	_, err = h.fm.Withdraw(h.ctx, protocol.Coin(unit, dec("10")), "", nil)
	assert.ErrorIs(t, err, ErrBadgeMissing)

	require.NoError(t, h.fm.DepositFundManagerBadge(h.ctx, h.admins[1], badge))
	_, err = h.fm.Withdraw(h.ctx, protocol.Coin(unit, dec("10")), "", nil)
	assert.NoError(t, err)
}

// ---------------------------------------------------------------------------
// Observability
// ---------------------------------------------------------------------------

func TestEventsAndObserverFollowCommits(t *testing.T) {
	h := newHarness(t, defaults())
	h.lend("lend", "1000", 100)
	h.sink.Reset()
	failuresBefore := h.observer.failures

	_, err := h.fm.Withdraw(h.ctx, protocol.Coin(unit, dec("5000")), "", nil)
	assert.ErrorIs(t, err, ErrInsufficientUnits)
	assert.Empty(t, h.sink.Events())
	assert.Equal(t, failuresBefore+1, h.observer.failures)

	_, err = h.fm.Withdraw(h.ctx, protocol.Coin(unit, dec("10")), "", nil)
	require.NoError(t, err)
	assert.Equal(t, []types.EventKind{types.EventWithdrawalCompleted}, h.sink.Kinds())
	assert.Equal(t, opWithdraw, h.sink.Events()[0].Operation)
	assertDec(t, "990", h.observer.last.TotalValue)
}

func TestSnapshotAndQueries(t *testing.T) {
	h := newHarness(t, defaults())
	h.lend("a", "250", 30)
	h.lend("b", "750", 70)

	net, gross, err := h.fm.FundUnitValue()
	require.NoError(t, err)
	assertDec(t, "1", gross)
	assertDec(t, "1", net)

	s := h.fm.Snapshot()
	assert.True(t, s.Initialized)
	assert.Equal(t, []string{"a", "b"}, s.PositionNames())
	assertDec(t, "25", s.Positions[0].ActualPercentage)
	assertDec(t, "75", s.Positions[1].ActualPercentage)
	assert.True(t, s.HasValidatorBadge)
	assert.True(t, s.HasManagerBadge)
	assert.Equal(t, uint8(3), s.NumberOfAdmins)
}

func TestSetBuybackFundRedirectsClaims(t *testing.T) {
	h := newHarness(t, defaults())
	h.lend("lend", "1000", 100)

	assert.ErrorIs(t, h.fm.SetBuybackFund(h.ctx, h.admins[0], 20, "treasury"), auth.ErrNotAuthorized)

	h.approve(0, auth.SetBuybackFund, auth.Params{Percentage: auth.Percent(20), Account: "treasury"})
	require.NoError(t, h.fm.SetBuybackFund(h.ctx, h.admins[0], 20, "treasury"))
	s := h.fm.Snapshot()
	assert.Equal(t, uint8(20), s.BuybackPercentage)
	assert.Equal(t, "treasury", s.BuybackAccount)

	claimID := h.unstaked()
	require.NoError(t, h.fm.FinishUnstake(h.ctx, h.bot, claimID, nil))
	assertDec(t, "20", h.accounts.Balance("treasury", base))
	assertDec(t, "1.6", h.fm.PendingUnits())

	h.approve(0, auth.SetBuybackFund, auth.Params{Percentage: auth.Percent(100), Account: "treasury"})
	assert.ErrorIs(t, h.fm.SetBuybackFund(h.ctx, h.admins[0], 100, "treasury"), ErrInvalidPercentage)
	assert.Equal(t, uint8(20), h.fm.Snapshot().BuybackPercentage)
}

func TestSetOracleComponentRepricesPositions(t *testing.T) {
	h := newHarness(t, defaults())
	h.lend("lend", "1000", 100)

	h.approve(0, auth.SetOracleComponent, auth.Params{})
	assert.ErrorIs(t, h.fm.SetOracleComponent(h.ctx, h.admins[0], nil), ErrComponentMissing)

	repriced := simulations.NewMultiOracle(h.clock)
	repriced.SetFixedPrice(base, dec("0.02"))
	repriced.SetFixedPrice(usdc, dec("0.5"))
	// The failed call left the approval unconsumed.
	require.NoError(t, h.fm.SetOracleComponent(h.ctx, h.admins[0], repriced))

	require.NoError(t, h.fm.UpdateDefiProtocolsValue(h.ctx, h.bot, []string{"lend"}, nil))
	assertDec(t, "500", h.fm.Snapshot().TotalValue)
	h.assertBalanced()
}
