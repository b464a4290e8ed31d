package main

import (
	"context"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/fundmanager/internal/auth"
	"github.com/elys-network/fundmanager/internal/bot"
	"github.com/elys-network/fundmanager/internal/config"
	"github.com/elys-network/fundmanager/internal/fund"
	"github.com/elys-network/fundmanager/internal/protocol"
	"github.com/elys-network/fundmanager/internal/registry"
	"github.com/elys-network/fundmanager/internal/simulations"
	"github.com/elys-network/fundmanager/internal/types"
)

const botAccount = "bot"

type paperPosition struct {
	name    string
	adapter *simulations.MemoryProtocol
	yield   sdkmath.LegacyDec
}

// paperWorld holds the in-memory collaborators of a paper fund.
type paperWorld struct {
	validator *simulations.MemoryValidator
	locker    *simulations.MemoryLocker
	accounts  *simulations.MemoryAccounts
	oracle    *simulations.MultiOracle
	dex       *simulations.RouteDex
	positions []paperPosition
	rewards   sdkmath.LegacyDec
	stakers   bot.StaticStakers
}

func newPaperWorld(layout *config.Layout, clock func() time.Time) (*paperWorld, error) {
	w := &paperWorld{
		validator: simulations.NewMemoryValidator(
			config.BaseDenom, config.StakeUnitDenom,
			config.Amount(layout.Validator.LockedStakeUnits),
			config.Amount(layout.Validator.ExchangeRate),
		),
		locker:   simulations.NewMemoryLocker(),
		accounts: simulations.NewMemoryAccounts(),
		oracle:   simulations.NewMultiOracle(clock),
		dex:      simulations.NewRouteDex(config.BaseDenom, layout.Dex.Decimals),
		rewards:  config.Amount(layout.Validator.RewardsPerEpoch),
	}

	for _, p := range layout.Oracle {
		if p.Reference != "" {
			w.oracle.SetFixedMultiplier(p.Denom, p.Reference, config.Amount(p.Multiplier))
			continue
		}
		w.oracle.SetFixedPrice(p.Denom, config.Amount(p.Price))
	}
	for _, src := range layout.SignedSources {
		key, err := src.Key()
		if err != nil {
			return nil, fmt.Errorf("signed source %s: %w", src.Denom, err)
		}
		maxAge, err := src.MaxAge()
		if err != nil {
			return nil, fmt.Errorf("signed source %s: %w", src.Denom, err)
		}
		w.oracle.SetSignedSource(src.Denom, src.MarketID, key, maxAge)
	}
	for _, r := range layout.Dex.Rates {
		if err := w.dex.SetRate(r.From, r.To, config.Amount(r.Rate)); err != nil {
			return nil, fmt.Errorf("dex route %s->%s: %w", r.From, r.To, err)
		}
	}
	for _, p := range layout.Positions {
		var adapter *simulations.MemoryProtocol
		if p.OtherCoin != "" {
			adapter = simulations.NewMemoryPairProtocol(p.Name, p.Coin, p.OtherCoin, p.ProtocolToken)
		} else {
			adapter = simulations.NewMemoryProtocol(p.Name, p.Coin, p.ProtocolToken)
		}
		if p.NeededPriceProof != "" {
			adapter.RequirePriceProof()
		}
		w.positions = append(w.positions, paperPosition{name: p.Name, adapter: adapter, yield: config.Amount(p.YieldPerEpoch)})
	}
	for _, s := range layout.Stakers {
		w.stakers = append(w.stakers, bot.Stake{Account: s.Account, Amount: config.Amount(s.Stake)})
	}
	return w, nil
}

// epoch advances the paper chain: rewards accrue, unlocks and claims mature, positions earn yield.
func (w *paperWorld) epoch(context.Context) error {
	if w.rewards.IsPositive() {
		w.validator.AccrueRewards(w.rewards)
	}
	w.validator.Advance()
	for _, p := range w.positions {
		if p.yield.IsPositive() {
			p.adapter.Accrue(p.yield)
		}
	}
	log.Debug().Int("positions", len(w.positions)).Msg("Paper epoch advanced")
	return nil
}

// paperFund is an initialized fund with its positions opened and a bot credential minted.
type paperFund struct {
	fm     *fund.FundManager
	admins []auth.AdminCredential
	bot    auth.BotCredential
}

// bootstrapFund initializes the fund, opens and seeds the layout positions and mints the
// bot credential. Proofs, when set, supply the signed prices the seed deposits need.
func bootstrapFund(ctx context.Context, w *paperWorld, layout *config.Layout, proofs bot.ProofSource, sinks []fund.EventSink, observer fund.Observer) (*paperFund, error) {
	fm, err := fund.New(fund.Config{
		BaseDenom:         config.BaseDenom,
		UnitDenom:         config.UnitDenom,
		StakeUnitDenom:    config.StakeUnitDenom,
		WithdrawalFee:     config.WithdrawalFee,
		BuybackPercentage: config.BuybackPercentage,
		BuybackAccount:    config.BuybackAccount,
		Validator:         w.validator,
		AccountLocker:     w.locker,
		Accounts:          w.accounts,
		Oracle:            w.oracle,
		Dex:               w.dex,
		ValidatorBadge:    &auth.Badge{Kind: auth.ValidatorOwnerBadge, ID: uuid.NewString()},
		Sinks:             sinks,
		Observer:          observer,
	})
	if err != nil {
		return nil, err
	}

	admins, _, err := fm.Init(ctx, config.AdminCount, config.MinAuthorizers, config.InitialSupply)
	if err != nil {
		return nil, fmt.Errorf("init fund: %w", err)
	}
	pf := &paperFund{fm: fm, admins: admins}

	var seedProofs types.PriceProofs
	if proofs != nil {
		if seedProofs, err = proofs.PriceProofs(ctx); err != nil {
			return nil, fmt.Errorf("seed price proofs: %w", err)
		}
	}

	for i, p := range layout.Positions {
		if err := pf.approve(ctx, auth.AddDefiProtocol, auth.Params{ProtocolName: p.Name}); err != nil {
			return nil, err
		}
		err := fm.AddDefiProtocol(ctx, admins[0], registry.Position{
			Name:              p.Name,
			DesiredPercentage: p.DesiredPercentage,
			Adapter:           w.positions[i].adapter,
			Coin:              p.Coin,
			OtherCoin:         p.OtherCoin,
			ProtocolToken:     p.ProtocolToken,
			NeededPriceProof:  p.NeededPriceProof,
		})
		if err != nil {
			return nil, fmt.Errorf("add position %s: %w", p.Name, err)
		}

		deposit := config.Amount(p.Deposit)
		if !deposit.IsPositive() {
			continue
		}
		var other *sdk.DecCoin
		if p.OtherCoin != "" {
			other = protocol.CoinPtr(p.OtherCoin, config.Amount(p.DepositOther))
		}
		if _, err := fm.DepositCoin(ctx, admins[0], p.Name, protocol.Coin(p.Coin, deposit), other, seedProofs, false); err != nil {
			return nil, fmt.Errorf("seed position %s: %w", p.Name, err)
		}
	}

	if err := pf.approve(ctx, auth.MintBotBadge, auth.Params{Account: botAccount}); err != nil {
		return nil, err
	}
	if err := fm.MintBotBadge(ctx, admins[0], botAccount); err != nil {
		return nil, fmt.Errorf("mint bot badge: %w", err)
	}
	cred, ok := w.accounts.BotCredential(botAccount)
	if !ok {
		return nil, fmt.Errorf("bot credential was not delivered to %s", botAccount)
	}
	pf.bot = cred

	snapshot := fm.Snapshot()
	log.Info().
		Int("positions", len(snapshot.Positions)).
		Str("totalValue", snapshot.TotalValue.String()).
		Str("unitSupply", snapshot.UnitSupply.String()).
		Str("grossUnitValue", snapshot.GrossUnitValue.String()).
		Msg("Paper fund bootstrapped")
	return pf, nil
}

// approve has the quorum of other admins authorize the first admin.
func (pf *paperFund) approve(ctx context.Context, op auth.OperationKind, params auth.Params) error {
	need := int(pf.fm.Snapshot().MinAuthorizers)
	for i := 1; i <= need; i++ {
		if err := pf.fm.AuthorizeAdminOperation(ctx, pf.admins[i], pf.admins[0].ID(), op, params); err != nil {
			return fmt.Errorf("authorize %s: %w", op, err)
		}
	}
	return nil
}
