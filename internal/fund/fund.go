package fund

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/google/uuid"

	"github.com/elys-network/fundmanager/internal/auth"
	"github.com/elys-network/fundmanager/internal/logger"
	"github.com/elys-network/fundmanager/internal/protocol"
	"github.com/elys-network/fundmanager/internal/registry"
	"github.com/elys-network/fundmanager/internal/types"
)

var fundLogger = logger.GetForComponent("fund_manager")

// EventSink receives the events of every committed operation.
type EventSink interface {
	Publish(ctx context.Context, events []types.Event) error
}

// Observer is notified after every operation, committed or not.
type Observer interface {
	ObserveOperation(operation string, err error)
	ObserveSnapshot(snapshot types.FundSnapshot)
}

// Config holds the configuration for creating a new FundManager instance
type Config struct {
	BaseDenom      string // Asset staked by the validator and claimed on unstake
	UnitDenom      string // Fund unit
	StakeUnitDenom string // Validator owner stake units

	WithdrawalFee     uint8
	BuybackPercentage uint8
	BuybackAccount    string

	Validator     protocol.Validator
	AccountLocker protocol.AccountLocker
	Accounts      protocol.Accounts
	Oracle        protocol.Oracle // Optional, can be set later by governance
	Dex           protocol.Dex    // Optional, can be set later by governance

	ValidatorBadge   *auth.Badge // Nil until an admin deposits it
	FundManagerBadge *auth.Badge // Minted when nil

	Clock    func() time.Time
	Sinks    []EventSink
	Observer Observer
}

// FundManager is the fund orchestration and accounting engine. Every exported mutating
// method is one atomic operation: it either completes or leaves no trace.
type FundManager struct {
	mu sync.Mutex

	baseDenom  string
	unitDenom  string
	stakeDenom string

	validator protocol.Validator
	locker    protocol.AccountLocker
	accounts  protocol.Accounts

	clock    func() time.Time
	sinks    []EventSink
	observer Observer

	st *state
}

// state is everything an aborted operation must leave untouched.
type state struct {
	initialized bool

	totalValue sdkmath.LegacyDec
	unitSupply sdkmath.LegacyDec

	withdrawalFee     uint8
	buybackPercentage uint8
	buybackAccount    string
	minAuthorizers    uint8

	issuer    *auth.Issuer
	ledger    *auth.Ledger
	positions *registry.Registry

	pendingUnits      sdkmath.LegacyDec // Minted units waiting for distribution
	unitsToDistribute sdkmath.LegacyDec // Size of the current distribution batch

	validatorBadge   *auth.Badge
	fundManagerBadge *auth.Badge
	claims           map[string]protocol.ClaimReceipt

	oracle protocol.Oracle
	dex    protocol.Dex
}

func (s *state) clone() *state {
	c := *s
	c.issuer = s.issuer.Clone()
	c.ledger = s.ledger.Clone()
	c.positions = s.positions.Clone()
	c.claims = make(map[string]protocol.ClaimReceipt, len(s.claims))
	for id, r := range s.claims {
		c.claims[id] = r
	}
	return &c
}

// unitValue returns the net (withdrawal fee deducted) and gross USD value of a fund unit.
func (s *state) unitValue() (net, gross sdkmath.LegacyDec, err error) {
	if !s.unitSupply.IsPositive() {
		return sdkmath.LegacyZeroDec(), sdkmath.LegacyZeroDec(), fmt.Errorf("%w: no fund units in circulation", ErrZeroUnitValue)
	}
	gross = s.totalValue.Quo(s.unitSupply)
	net = gross.MulInt64(int64(100 - s.withdrawalFee)).QuoInt64(100)
	return net, gross, nil
}

// grossUnitValue is the gross value usable as a divisor.
func (s *state) grossUnitValue() (sdkmath.LegacyDec, error) {
	_, gross, err := s.unitValue()
	if err != nil {
		return sdkmath.LegacyZeroDec(), err
	}
	if !gross.IsPositive() {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: total value is %s", ErrZeroUnitValue, s.totalValue)
	}
	return gross, nil
}

// New creates a FundManager. Init must be called before any other operation.
func New(cfg Config) (*FundManager, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("fund manager configuration validation failed: %w", err)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	managerBadge := cfg.FundManagerBadge
	if managerBadge == nil {
		managerBadge = &auth.Badge{Kind: auth.FundManagerBadge, ID: uuid.NewString()}
	}

	fm := &FundManager{
		baseDenom:  cfg.BaseDenom,
		unitDenom:  cfg.UnitDenom,
		stakeDenom: cfg.StakeUnitDenom,
		validator:  cfg.Validator,
		locker:     cfg.AccountLocker,
		accounts:   cfg.Accounts,
		clock:      clock,
		sinks:      cfg.Sinks,
		observer:   cfg.Observer,
		st: &state{
			totalValue:        sdkmath.LegacyZeroDec(),
			unitSupply:        sdkmath.LegacyZeroDec(),
			withdrawalFee:     cfg.WithdrawalFee,
			buybackPercentage: cfg.BuybackPercentage,
			buybackAccount:    cfg.BuybackAccount,
			issuer:            auth.NewIssuer(),
			ledger:            auth.NewLedger(),
			positions:         registry.New(),
			pendingUnits:      sdkmath.LegacyZeroDec(),
			unitsToDistribute: sdkmath.LegacyZeroDec(),
			validatorBadge:    cfg.ValidatorBadge,
			fundManagerBadge:  managerBadge,
			claims:            make(map[string]protocol.ClaimReceipt),
			oracle:            cfg.Oracle,
			dex:               cfg.Dex,
		},
	}

	fundLogger.Info().
		Str("baseDenom", fm.baseDenom).
		Str("unitDenom", fm.unitDenom).
		Uint8("withdrawalFee", cfg.WithdrawalFee).
		Uint8("buybackPercentage", cfg.BuybackPercentage).
		Bool("hasValidatorBadge", cfg.ValidatorBadge != nil).
		Msg("Fund manager created")

	return fm, nil
}

func validateConfig(cfg Config) error {
	for _, denom := range []string{cfg.BaseDenom, cfg.UnitDenom, cfg.StakeUnitDenom} {
		if err := sdk.ValidateDenom(denom); err != nil {
			return fmt.Errorf("invalid denom %q: %w", denom, err)
		}
	}
	if cfg.UnitDenom == cfg.BaseDenom || cfg.UnitDenom == cfg.StakeUnitDenom {
		return fmt.Errorf("unit denom %s must differ from the base and stake unit denoms", cfg.UnitDenom)
	}
	if cfg.WithdrawalFee >= 100 {
		return fmt.Errorf("withdrawal fee: %w", ErrInvalidPercentage)
	}
	if cfg.BuybackPercentage >= 100 {
		return fmt.Errorf("buyback percentage: %w", ErrInvalidPercentage)
	}
	if cfg.BuybackPercentage > 0 && cfg.BuybackAccount == "" {
		return fmt.Errorf("buyback account cannot be empty")
	}
	if cfg.Validator == nil {
		return fmt.Errorf("validator cannot be nil")
	}
	if cfg.AccountLocker == nil {
		return fmt.Errorf("account locker cannot be nil")
	}
	if cfg.Accounts == nil {
		return fmt.Errorf("accounts cannot be nil")
	}
	if cfg.ValidatorBadge != nil && cfg.ValidatorBadge.Kind != auth.ValidatorOwnerBadge {
		return fmt.Errorf("%w: expected a validator owner badge", ErrWrongResource)
	}
	if cfg.FundManagerBadge != nil && cfg.FundManagerBadge.Kind != auth.FundManagerBadge {
		return fmt.Errorf("%w: expected a fund manager badge", ErrWrongResource)
	}
	return nil
}

// UnitDenom returns the denom of the fund units.
func (f *FundManager) UnitDenom() string { return f.unitDenom }

// BaseDenom returns the denom of the staked asset.
func (f *FundManager) BaseDenom() string { return f.baseDenom }

// Init mints the admin credentials and the initial supply of fund units. It can be called
// just once.
func (f *FundManager) Init(ctx context.Context, admins, minAuthorizers uint8, initialSupply sdkmath.LegacyDec) ([]auth.AdminCredential, sdk.DecCoin, error) {
	var creds []auth.AdminCredential
	var units sdk.DecCoin

	err := f.transact(ctx, opInit, func(t *txn) error {
		if t.st.initialized {
			return ErrAlreadyInitialized
		}
		if admins == 0 {
			return fmt.Errorf("%w: create at least one admin", ErrMinAuthorizers)
		}
		if minAuthorizers >= admins {
			return ErrMinAuthorizers
		}
		if initialSupply.IsNil() || initialSupply.IsNegative() {
			return fmt.Errorf("%w: initial supply %v", ErrInvalidAmount, initialSupply)
		}

		for n := uint8(0); n < admins; n++ {
			cred, err := t.st.issuer.MintAdmin()
			if err != nil {
				return err
			}
			creds = append(creds, cred)
		}
		t.st.minAuthorizers = minAuthorizers
		t.st.unitSupply = initialSupply
		t.st.initialized = true
		units = protocol.Coin(f.unitDenom, initialSupply)
		return nil
	})
	if err != nil {
		return nil, sdk.DecCoin{}, err
	}
	return creds, units, nil
}

// AuthorizeAdminOperation records the consent of the credential holder for admin allowedID
// to perform op with params.
func (f *FundManager) AuthorizeAdminOperation(ctx context.Context, cred auth.AdminCredential, allowedID uint8, op auth.OperationKind, params auth.Params) error {
	return f.transact(ctx, opAuthorize, func(t *txn) error {
		allowerID, err := t.verifyAdmin(cred)
		if err != nil {
			return err
		}
		return t.st.ledger.Authorize(t.now, allowerID, allowedID, op, params)
	})
}

// FundUnitValue returns the net (withdrawal fee deducted) and gross USD value of a unit.
func (f *FundManager) FundUnitValue() (net, gross sdkmath.LegacyDec, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st.unitValue()
}

// PositionValue is one entry of FundDetails.
type PositionValue struct {
	Name  string            `json:"name"`
	Value sdkmath.LegacyDec `json:"value"`
}

// FundDetails lists the positions and their cached USD value in registry order.
func (f *FundManager) FundDetails() []PositionValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]PositionValue, 0, f.st.positions.Len())
	for _, p := range f.st.positions.All() {
		out = append(out, PositionValue{Name: p.Name, Value: p.Value})
	}
	return out
}

// ClaimIDs returns the ids of the stored claim receipts, sorted.
func (f *FundManager) ClaimIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st.claimIDs()
}

func (s *state) claimIDs() []string {
	ids := make([]string, 0, len(s.claims))
	for id := range s.claims {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PendingUnits returns the minted units still waiting to be distributed.
func (f *FundManager) PendingUnits() sdkmath.LegacyDec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st.pendingUnits
}

// Authorizations returns the live authorization records.
func (f *FundManager) Authorizations() []auth.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st.ledger.Records(f.clock())
}

// Snapshot returns the current read model of the fund.
func (f *FundManager) Snapshot() types.FundSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

func (f *FundManager) snapshotLocked() types.FundSnapshot {
	st := f.st
	net, gross, err := st.unitValue()
	if err != nil {
		net, gross = sdkmath.LegacyZeroDec(), sdkmath.LegacyZeroDec()
	}

	positions := make([]types.PositionSnapshot, 0, st.positions.Len())
	for _, p := range st.positions.All() {
		positions = append(positions, types.PositionSnapshot{
			Name:              p.Name,
			Value:             p.Value,
			DesiredPercentage: p.DesiredPercentage,
			ActualPercentage:  registry.ActualPercentage(p.Value, st.totalValue),
			Coin:              p.Coin,
			OtherCoin:         p.OtherCoin,
			ProtocolToken:     p.ProtocolToken,
			NeededPriceProof:  p.NeededPriceProof,
		})
	}

	now := f.clock()
	return types.FundSnapshot{
		Timestamp:         now,
		Initialized:       st.initialized,
		TotalValue:        st.totalValue,
		UnitSupply:        st.unitSupply,
		GrossUnitValue:    gross,
		NetUnitValue:      net,
		PendingUnits:      st.pendingUnits,
		UnitsToDistribute: st.unitsToDistribute,
		WithdrawalFee:     st.withdrawalFee,
		BuybackPercentage: st.buybackPercentage,
		BuybackAccount:    st.buybackAccount,
		MinAuthorizers:    st.minAuthorizers,
		NumberOfAdmins:    st.issuer.AdminCount(),
		Authorizations:    len(st.ledger.Records(now)),
		PendingClaims:     st.claimIDs(),
		HasValidatorBadge: st.validatorBadge != nil,
		HasManagerBadge:   st.fundManagerBadge != nil,
		Positions:         positions,
	}
}
