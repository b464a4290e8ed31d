package fund

import (
	"context"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/fundmanager/internal/auth"
	"github.com/elys-network/fundmanager/internal/protocol"
	"github.com/elys-network/fundmanager/internal/registry"
	"github.com/elys-network/fundmanager/internal/types"
)

// Names of the operations that don't go through multisig. Multisig operations use the
// name of their auth.OperationKind.
const (
	opInit                  = "init"
	opAuthorize             = "authorize_admin_operation"
	opStartUnlock           = "start_unlock_owner_stake_units"
	opStartUnstake          = "start_unstake"
	opFinishUnstake         = "finish_unstake"
	opDistribution          = "fund_units_distribution"
	opUpdateValues          = "update_defi_protocols_value"
	opSetPercentages        = "set_defi_protocols_percentage"
	opWithdraw              = "withdraw"
	opDepositValidatorBadge = "deposit_validator_badge"
	opDepositManagerBadge   = "deposit_fund_manager_badge"
	opRegisterValidator     = "register_validator"
	opSignalReadiness       = "signal_protocol_update_readiness"
	opUpdateNodeKey         = "update_node_key"
	opDepositCoin           = "deposit_coin"
	opDepositProtocolToken  = "deposit_protocol_token"
)

// txn is the working set of one operation. It mutates a private copy of the fund state;
// collaborators are checkpointed the first time the operation reaches them.
type txn struct {
	ctx context.Context
	fm  *FundManager
	op  string
	now time.Time
	st  *state

	restores []func()
	touched  map[protocol.Checkpointer]struct{}
	events   []types.Event
}

// transact runs fn as one atomic operation. On error or panic the state copy is dropped
// and every checkpointed collaborator is restored in reverse order; on success the copy
// replaces the fund state and the buffered events are published.
func (f *FundManager) transact(ctx context.Context, op string, fn func(t *txn) error) (err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := &txn{
		ctx:     ctx,
		fm:      f,
		op:      op,
		now:     f.clock(),
		st:      f.st.clone(),
		touched: make(map[protocol.Checkpointer]struct{}),
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s panicked: %v", ErrAborted, op, r)
		}
		if err != nil {
			t.rollback()
			fundLogger.Warn().Err(err).Str("operation", op).Int("restored", len(t.restores)).Msg("Operation aborted")
			f.observeOperation(op, err)
			return
		}

		f.st = t.st
		f.publish(ctx, op, t.events)
		fundLogger.Info().
			Str("operation", op).
			Int("events", len(t.events)).
			Str("totalValue", f.st.totalValue.String()).
			Str("unitSupply", f.st.unitSupply.String()).
			Msg("Operation committed")
		f.observeOperation(op, nil)
		if f.observer != nil {
			f.observer.ObserveSnapshot(f.snapshotLocked())
		}
	}()

	return fn(t)
}

func (f *FundManager) publish(ctx context.Context, op string, events []types.Event) {
	if len(events) == 0 {
		return
	}
	for _, sink := range f.sinks {
		if err := sink.Publish(ctx, events); err != nil {
			// The operation is already committed; a failing sink only loses the audit trail.
			fundLogger.Error().Err(err).Str("operation", op).Int("events", len(events)).Msg("Failed to publish events")
		}
	}
}

func (f *FundManager) observeOperation(op string, err error) {
	if f.observer != nil {
		f.observer.ObserveOperation(op, err)
	}
}

func (t *txn) rollback() {
	for i := len(t.restores) - 1; i >= 0; i-- {
		t.restores[i]()
	}
}

// touch checkpoints c once per operation if it can undo its own state.
func (t *txn) touch(c any) {
	cp, ok := c.(protocol.Checkpointer)
	if !ok {
		return
	}
	if _, seen := t.touched[cp]; seen {
		return
	}
	t.touched[cp] = struct{}{}
	t.restores = append(t.restores, cp.Checkpoint())
}

func (t *txn) emit(kind types.EventKind, payload any) {
	t.events = append(t.events, types.NewEvent(kind, t.op, t.now, payload))
}

// ---------------------------------------------------------------------------
// Credentials
// ---------------------------------------------------------------------------

func (t *txn) requireInitialized() error {
	if !t.st.initialized {
		return ErrNotInitialized
	}
	return nil
}

func (t *txn) verifyAdmin(cred auth.AdminCredential) (uint8, error) {
	if err := t.requireInitialized(); err != nil {
		return 0, err
	}
	return t.st.issuer.VerifyAdmin(cred)
}

// authorized checks the credential and consumes the quorum of authorizations for op.
func (t *txn) authorized(cred auth.AdminCredential, op auth.OperationKind, params auth.Params) error {
	adminID, err := t.verifyAdmin(cred)
	if err != nil {
		return err
	}
	return t.st.ledger.Check(t.now, adminID, op, params, t.st.minAuthorizers)
}

func (t *txn) verifyBot(cred auth.BotCredential) error {
	if err := t.requireInitialized(); err != nil {
		return err
	}
	return t.st.issuer.VerifyBot(cred)
}

// ---------------------------------------------------------------------------
// Collaborators
// ---------------------------------------------------------------------------

// ownedValidator is the validator for calls that need the validator owner badge.
func (t *txn) ownedValidator() (protocol.Validator, error) {
	if t.st.validatorBadge == nil {
		return nil, fmt.Errorf("%w: validator owner badge", ErrBadgeMissing)
	}
	return t.validator(), nil
}

func (t *txn) validator() protocol.Validator {
	t.touch(t.fm.validator)
	return t.fm.validator
}

// adapter returns the adapter of p; adapter calls need the fund manager badge.
func (t *txn) adapter(p *registry.Position) (protocol.DefiProtocol, error) {
	if t.st.fundManagerBadge == nil {
		return nil, fmt.Errorf("%w: fund manager badge", ErrBadgeMissing)
	}
	t.touch(p.Adapter)
	return p.Adapter, nil
}

func (t *txn) dex() (protocol.Dex, error) {
	if t.st.dex == nil {
		return nil, fmt.Errorf("%w: dex", ErrComponentMissing)
	}
	if t.st.fundManagerBadge == nil {
		return nil, fmt.Errorf("%w: fund manager badge", ErrBadgeMissing)
	}
	t.touch(t.st.dex)
	return t.st.dex, nil
}

// prices returns a price cache living for the rest of the operation.
func (t *txn) prices(proofs types.PriceProofs) (*registry.PriceCache, error) {
	if t.st.oracle == nil {
		return nil, fmt.Errorf("%w: oracle", ErrComponentMissing)
	}
	t.touch(t.st.oracle)
	return registry.NewPriceCache(t.st.oracle, proofs), nil
}

func (t *txn) locker() protocol.AccountLocker {
	t.touch(t.fm.locker)
	return t.fm.locker
}

func (t *txn) accounts() protocol.Accounts {
	t.touch(t.fm.accounts)
	return t.fm.accounts
}

// proofFor extracts the signed price p needs from proofs.
func proofFor(p *registry.Position, proofs types.PriceProofs) (*types.SignedPrice, error) {
	if p.NeededPriceProof == "" {
		return nil, nil
	}
	proof, ok := proofs.Lookup(p.NeededPriceProof)
	if !ok {
		return nil, fmt.Errorf("%w: %s needs %s", ErrMissingPriceProof, p.Name, p.NeededPriceProof)
	}
	return &proof, nil
}

// revalue sets the cached value of p and moves total value by the same delta.
func (t *txn) revalue(p *registry.Position, value sdkmath.LegacyDec) {
	t.st.totalValue = t.st.totalValue.Add(value.Sub(p.Value))
	p.Value = value
}
