package fund

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/fundmanager/internal/auth"
	"github.com/elys-network/fundmanager/internal/registry"
	"github.com/elys-network/fundmanager/internal/types"
)

// AddDefiProtocol registers position p under p.Name; p.Value is ignored. When the name is
// already taken, everything held by the old adapter moves to the new one and the cached
// value is carried over until the next valuation update.
func (f *FundManager) AddDefiProtocol(ctx context.Context, cred auth.AdminCredential, p registry.Position) error {
	return f.transact(ctx, auth.AddDefiProtocol.String(), func(t *txn) error {
		if err := t.authorized(cred, auth.AddDefiProtocol, auth.Params{ProtocolName: p.Name}); err != nil {
			return err
		}
		if err := p.Validate(); err != nil {
			return err
		}
		p.Value = sdkmath.LegacyZeroDec()

		if t.st.positions.Has(p.Name) {
			old, err := t.st.positions.Get(p.Name)
			if err != nil {
				return err
			}
			p.Value = old.Value

			oldAdapter, err := t.adapter(old)
			if err != nil {
				return err
			}
			newAdapter, err := t.adapter(&p)
			if err != nil {
				return err
			}
			assets, err := oldAdapter.WithdrawAll(t.ctx)
			if err != nil {
				return fmt.Errorf("withdraw all from old %s adapter: %w", p.Name, err)
			}
			if _, err := newAdapter.DepositAll(t.ctx, assets); err != nil {
				return fmt.Errorf("deposit all into new %s adapter: %w", p.Name, err)
			}
			fundLogger.Info().Str("position", p.Name).Str("tokens", assets.Token.Amount.String()).Msg("Migrated position to a new adapter")
		}

		_, err := t.st.positions.Upsert(p)
		return err
	})
}

// RemoveDefiProtocol detaches the named position and returns the control badge of the
// adapter's custody account. The adapter stops working afterwards.
func (f *FundManager) RemoveDefiProtocol(ctx context.Context, cred auth.AdminCredential, name string) (auth.Badge, error) {
	var badge auth.Badge
	err := f.transact(ctx, auth.RemoveDefiProtocol.String(), func(t *txn) error {
		if err := t.authorized(cred, auth.RemoveDefiProtocol, auth.Params{ProtocolName: name}); err != nil {
			return err
		}
		removed, err := t.st.positions.Remove(name)
		if err != nil {
			return err
		}
		t.st.totalValue = t.st.totalValue.Sub(removed.Value)
		t.emit(types.EventPositionRemoved, types.PositionRemoved{
			PositionName: name,
			RemovedValue: removed.Value,
			TotalValue:   t.st.totalValue,
		})

		adapter, err := t.adapter(removed)
		if err != nil {
			return err
		}
		badge, err = adapter.WithdrawAccountBadge(t.ctx)
		return err
	})
	return badge, err
}

// UpdateDefiProtocolsValue refreshes the cached value of the named positions from their
// adapters' holdings. Each price is fetched once per call; duplicated names are refreshed
// once.
func (f *FundManager) UpdateDefiProtocolsValue(ctx context.Context, bot auth.BotCredential, names []string, proofs types.PriceProofs) error {
	return f.transact(ctx, opUpdateValues, func(t *txn) error {
		if err := t.verifyBot(bot); err != nil {
			return err
		}
		prices, err := t.prices(proofs)
		if err != nil {
			return err
		}

		change := sdkmath.LegacyZeroDec()
		seen := make(map[string]struct{}, len(names))
		for _, name := range names {
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}

			p, err := t.st.positions.Get(name)
			if err != nil {
				return err
			}
			adapter, err := t.adapter(p)
			if err != nil {
				return err
			}
			holdings, err := adapter.GetCoinAmounts(t.ctx)
			if err != nil {
				return fmt.Errorf("coin amounts of %s: %w", name, err)
			}
			value, err := prices.Value(t.ctx, p, holdings)
			if err != nil {
				return err
			}

			change = change.Add(value.Sub(p.Value))
			p.Value = value
			t.emit(types.EventPositionValueUpdated, types.PositionValueUpdated{
				PositionName:  name,
				PositionValue: value,
				TotalValue:    t.st.totalValue.Add(change),
			})
		}
		t.st.totalValue = t.st.totalValue.Add(change)
		return nil
	})
}

// SetDefiProtocolsPercentage updates the desired allocation of one or more positions
// without moving funds. Percentages are independent targets and need not sum to 100.
func (f *FundManager) SetDefiProtocolsPercentage(ctx context.Context, cred auth.AdminCredential, weights map[string]uint8) error {
	return f.transact(ctx, opSetPercentages, func(t *txn) error {
		if _, err := t.verifyAdmin(cred); err != nil {
			return err
		}
		return t.st.positions.SetDesiredPercentages(weights)
	})
}
