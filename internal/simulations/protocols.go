package simulations

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/fundmanager/internal/auth"
	"github.com/elys-network/fundmanager/internal/logger"
	"github.com/elys-network/fundmanager/internal/protocol"
	"github.com/elys-network/fundmanager/internal/types"
)

var (
	ErrWrongDenom      = errors.New("wrong denom")
	ErrDetached        = errors.New("adapter account badge was withdrawn")
	ErrMissingProof    = errors.New("adapter needs a signed price")
	ErrMissingRatio    = errors.New("two-coin withdrawal needs a price ratio")
	ErrNegativeAmount  = errors.New("negative amount")
	ErrInjectedFailure = errors.New("injected failure")
)

var protocolLogger = logger.GetForComponent("paper_protocol")

// MemoryProtocol is an in-memory position adapter managing one or two coins. Receipt
// tokens are redeemable 1:1 for the primary coin.
type MemoryProtocol struct {
	mu sync.Mutex

	name         string
	coin         string
	other        string
	token        string
	requireProof bool

	coinAmount  sdkmath.LegacyDec
	otherAmount sdkmath.LegacyDec
	detached    bool
	failNext    bool
}

var _ protocol.DefiProtocol = (*MemoryProtocol)(nil)
var _ protocol.Checkpointer = (*MemoryProtocol)(nil)

// NewMemoryProtocol creates a single-coin adapter.
func NewMemoryProtocol(name, coin, token string) *MemoryProtocol {
	return &MemoryProtocol{
		name:        name,
		coin:        coin,
		token:       token,
		coinAmount:  sdkmath.LegacyZeroDec(),
		otherAmount: sdkmath.LegacyZeroDec(),
	}
}

// NewMemoryPairProtocol creates a two-coin adapter, such as a liquidity pool position.
func NewMemoryPairProtocol(name, coin, other, token string) *MemoryProtocol {
	m := NewMemoryProtocol(name, coin, token)
	m.other = other
	return m
}

// RequirePriceProof makes DepositCoin fail without a signed price.
func (m *MemoryProtocol) RequirePriceProof() *MemoryProtocol {
	m.requireProof = true
	return m
}

// Seed sets the holdings directly.
func (m *MemoryProtocol) Seed(coin, other sdkmath.LegacyDec) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coinAmount = coin
	m.otherAmount = other
}

// Accrue grows the holdings by rate (0.01 is 1%), simulating yield.
func (m *MemoryProtocol) Accrue(rate sdkmath.LegacyDec) {
	m.mu.Lock()
	defer m.mu.Unlock()
	factor := sdkmath.LegacyOneDec().Add(rate)
	m.coinAmount = m.coinAmount.Mul(factor)
	m.otherAmount = m.otherAmount.Mul(factor)
}

// FailNext makes the next mutating call fail.
func (m *MemoryProtocol) FailNext() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = true
}

// Amounts returns the raw holdings.
func (m *MemoryProtocol) Amounts() (sdkmath.LegacyDec, sdkmath.LegacyDec) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.coinAmount, m.otherAmount
}

func (m *MemoryProtocol) holdings() protocol.Holdings {
	h := protocol.Holdings{Coin: m.coinAmount}
	if m.other != "" {
		h.Other = protocol.DecPtr(m.otherAmount)
	}
	return h
}

func (m *MemoryProtocol) usable() error {
	if m.detached {
		return fmt.Errorf("%s: %w", m.name, ErrDetached)
	}
	if m.failNext {
		m.failNext = false
		return fmt.Errorf("%s: %w", m.name, ErrInjectedFailure)
	}
	return nil
}

func (m *MemoryProtocol) DepositAll(_ context.Context, assets protocol.Assets) (protocol.Holdings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.usable(); err != nil {
		return protocol.Holdings{}, err
	}
	if assets.Token.Denom != m.token {
		return protocol.Holdings{}, fmt.Errorf("%w: expected %s tokens, got %s", ErrWrongDenom, m.token, assets.Token.Denom)
	}
	if assets.Coin != nil && assets.Coin.Denom != m.coin {
		return protocol.Holdings{}, fmt.Errorf("%w: expected %s, got %s", ErrWrongDenom, m.coin, assets.Coin.Denom)
	}
	if assets.Other != nil && (m.other == "" || assets.Other.Denom != m.other) {
		return protocol.Holdings{}, fmt.Errorf("%w: unexpected %s", ErrWrongDenom, assets.Other.Denom)
	}

	m.coinAmount = m.coinAmount.Add(assets.Token.Amount)
	if assets.Coin != nil {
		m.coinAmount = m.coinAmount.Add(assets.Coin.Amount)
	}
	if assets.Other != nil {
		m.otherAmount = m.otherAmount.Add(assets.Other.Amount)
	}
	return m.holdings(), nil
}

func (m *MemoryProtocol) WithdrawAll(_ context.Context) (protocol.Assets, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.usable(); err != nil {
		return protocol.Assets{}, err
	}

	assets := protocol.Assets{Token: protocol.Coin(m.token, m.coinAmount)}
	if m.other != "" && m.otherAmount.IsPositive() {
		assets.Other = protocol.CoinPtr(m.other, m.otherAmount)
	}
	m.coinAmount = sdkmath.LegacyZeroDec()
	m.otherAmount = sdkmath.LegacyZeroDec()

	protocolLogger.Debug().Str("protocol", m.name).Str("tokens", assets.Token.Amount.String()).Msg("Withdrew all holdings")
	return assets, nil
}

func (m *MemoryProtocol) DepositCoin(_ context.Context, coin sdk.DecCoin, other *sdk.DecCoin, proof *types.SignedPrice) (protocol.Holdings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.usable(); err != nil {
		return protocol.Holdings{}, err
	}
	if m.requireProof && (proof == nil || proof.Message == "") {
		return protocol.Holdings{}, fmt.Errorf("%s: %w", m.name, ErrMissingProof)
	}
	if coin.Denom != m.coin {
		return protocol.Holdings{}, fmt.Errorf("%w: expected %s, got %s", ErrWrongDenom, m.coin, coin.Denom)
	}
	if coin.Amount.IsNegative() {
		return protocol.Holdings{}, ErrNegativeAmount
	}
	if other != nil {
		if m.other == "" || other.Denom != m.other {
			return protocol.Holdings{}, fmt.Errorf("%w: unexpected %s", ErrWrongDenom, other.Denom)
		}
		if other.Amount.IsNegative() {
			return protocol.Holdings{}, ErrNegativeAmount
		}
		m.otherAmount = m.otherAmount.Add(other.Amount)
	}
	m.coinAmount = m.coinAmount.Add(coin.Amount)
	return m.holdings(), nil
}

func (m *MemoryProtocol) WithdrawCoin(_ context.Context, amount sdkmath.LegacyDec, ratio *sdkmath.LegacyDec) (protocol.Withdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.usable(); err != nil {
		return protocol.Withdrawal{}, err
	}
	if amount.IsNegative() {
		return protocol.Withdrawal{}, ErrNegativeAmount
	}

	if m.other == "" {
		take := sdkmath.LegacyMinDec(amount, m.coinAmount)
		m.coinAmount = m.coinAmount.Sub(take)
		return protocol.Withdrawal{Coin: protocol.Coin(m.coin, take), Remaining: m.holdings()}, nil
	}

	if ratio == nil {
		return protocol.Withdrawal{}, ErrMissingRatio
	}
	// Express the whole position in primary coin units and withdraw the same share of both.
	total := m.coinAmount.Add(m.otherAmount.Mul(*ratio))
	share := sdkmath.LegacyZeroDec()
	if total.IsPositive() {
		share = sdkmath.LegacyMinDec(sdkmath.LegacyOneDec(), amount.Quo(total))
	}
	takeCoin := m.coinAmount.Mul(share)
	takeOther := m.otherAmount.Mul(share)
	if share.Equal(sdkmath.LegacyOneDec()) {
		takeCoin, takeOther = m.coinAmount, m.otherAmount
	}
	m.coinAmount = m.coinAmount.Sub(takeCoin)
	m.otherAmount = m.otherAmount.Sub(takeOther)

	return protocol.Withdrawal{
		Coin:      protocol.Coin(m.coin, takeCoin),
		Other:     protocol.CoinPtr(m.other, takeOther),
		Remaining: m.holdings(),
	}, nil
}

func (m *MemoryProtocol) GetCoinAmounts(_ context.Context) (protocol.Holdings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.detached {
		return protocol.Holdings{}, fmt.Errorf("%s: %w", m.name, ErrDetached)
	}
	return m.holdings(), nil
}

func (m *MemoryProtocol) WithdrawAccountBadge(_ context.Context) (auth.Badge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.usable(); err != nil {
		return auth.Badge{}, err
	}
	m.detached = true
	return auth.Badge{Kind: auth.AccountControlBadge, ID: m.name}, nil
}

func (m *MemoryProtocol) Checkpoint() func() {
	m.mu.Lock()
	coinAmount, otherAmount, detached := m.coinAmount, m.otherAmount, m.detached
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.coinAmount, m.otherAmount, m.detached = coinAmount, otherAmount, detached
	}
}
