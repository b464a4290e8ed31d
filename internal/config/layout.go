package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"gopkg.in/yaml.v3"

	"github.com/elys-network/fundmanager/internal/utils"
)

// Layout describes the paper world the fund runs against: the validator, the prices and
// swap routes, the positions to open and the stakers paid by distributions. Amounts are
// decimal strings.
type Layout struct {
	Validator ValidatorLayout  `yaml:"validator"`
	Oracle    []PriceLayout    `yaml:"oracle"`
	// SignedSources are oracle denoms only priced from signed messages of a provider.
	SignedSources []SignedSourceLayout `yaml:"signed_sources"`
	Dex       DexLayout        `yaml:"dex"`
	Positions []PositionLayout `yaml:"positions"`
	Stakers   []StakerLayout   `yaml:"stakers"`
}

type ValidatorLayout struct {
	LockedStakeUnits string `yaml:"locked_stake_units"`
	ExchangeRate     string `yaml:"exchange_rate"`        // Base asset per stake unit
	RewardsPerEpoch  string `yaml:"rewards_per_epoch"`    // Owner stake units earned every epoch
	EpochCron        string `yaml:"epoch_cron,omitempty"` // Matures unlocks and claims
}

// PriceLayout is either a fixed USD price or a multiplier over the price of Reference.
type PriceLayout struct {
	Denom      string `yaml:"denom"`
	Price      string `yaml:"price,omitempty"`
	Reference  string `yaml:"reference,omitempty"`
	Multiplier string `yaml:"multiplier,omitempty"`
}

// SignedSourceLayout accepts prices for Denom signed by PublicKey (hex, compressed
// secp256k1) for MarketID, no older than Lifetime.
type SignedSourceLayout struct {
	Denom     string `yaml:"denom"`
	MarketID  string `yaml:"market_id"`
	PublicKey string `yaml:"public_key"`
	Lifetime  string `yaml:"lifetime,omitempty"` // Go duration, 5m when empty
}

// Key parses the provider public key.
func (s SignedSourceLayout) Key() (*secp256k1.PublicKey, error) {
	raw, err := hex.DecodeString(s.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	return secp256k1.ParsePubKey(raw)
}

// MaxAge returns the proof lifetime.
func (s SignedSourceLayout) MaxAge() (time.Duration, error) {
	if s.Lifetime == "" {
		return 5 * time.Minute, nil
	}
	d, err := time.ParseDuration(s.Lifetime)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("lifetime must be positive, got %s", s.Lifetime)
	}
	return d, nil
}

type DexLayout struct {
	Decimals int           `yaml:"decimals"`
	Rates    []RouteLayout `yaml:"rates"`
}

type RouteLayout struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
	Rate string `yaml:"rate"`
}

type PositionLayout struct {
	Name              string `yaml:"name"`
	Coin              string `yaml:"coin"`
	OtherCoin         string `yaml:"other_coin,omitempty"`
	ProtocolToken     string `yaml:"protocol_token"`
	DesiredPercentage uint8  `yaml:"desired_percentage"`
	YieldPerEpoch     string `yaml:"yield_per_epoch,omitempty"` // 0.001 is 0.1%
	Deposit           string `yaml:"deposit,omitempty"`         // Initial amount of Coin
	DepositOther      string `yaml:"deposit_other,omitempty"`   // Initial amount of OtherCoin
	NeededPriceProof  string `yaml:"needed_price_proof,omitempty"` // Signed source denom the adapter requires
}

type StakerLayout struct {
	Account string `yaml:"account"`
	Stake   string `yaml:"stake"`
}

// LoadLayout reads and validates the YAML fund layout at path.
func LoadLayout(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layout: %w", err)
	}
	return ParseLayout(data)
}

// ParseLayout parses and validates a YAML fund layout.
func ParseLayout(data []byte) (*Layout, error) {
	layout := &Layout{}
	if err := yaml.Unmarshal(data, layout); err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	if layout.Dex.Decimals == 0 {
		layout.Dex.Decimals = 6
	}
	if layout.Validator.ExchangeRate == "" {
		layout.Validator.ExchangeRate = "1"
	}
	if layout.Validator.EpochCron == "" {
		layout.Validator.EpochCron = "0 */30 * * * *"
	}
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	return layout, nil
}

// Validate checks names, amounts and the desired percentages.
func (l *Layout) Validate() error {
	var errs []error
	check := func(what, value string) {
		if _, err := utils.ParseAmount(value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", what, err))
		}
	}

	check("validator.locked_stake_units", l.Validator.LockedStakeUnits)
	check("validator.exchange_rate", l.Validator.ExchangeRate)
	check("validator.rewards_per_epoch", l.Validator.RewardsPerEpoch)

	for _, p := range l.Oracle {
		switch {
		case p.Denom == "":
			errs = append(errs, errors.New("oracle entry without denom"))
		case p.Price != "" && p.Reference != "":
			errs = append(errs, fmt.Errorf("oracle %s: price and reference are exclusive", p.Denom))
		case p.Reference != "":
			check("oracle "+p.Denom+" multiplier", p.Multiplier)
		default:
			check("oracle "+p.Denom+" price", p.Price)
		}
	}
	signed := make(map[string]bool)
	for _, src := range l.SignedSources {
		if src.Denom == "" || src.MarketID == "" {
			errs = append(errs, errors.New("signed source needs denom and market_id"))
			continue
		}
		signed[src.Denom] = true
		if _, err := src.Key(); err != nil {
			errs = append(errs, fmt.Errorf("signed source %s: %w", src.Denom, err))
		}
		if _, err := src.MaxAge(); err != nil {
			errs = append(errs, fmt.Errorf("signed source %s lifetime: %w", src.Denom, err))
		}
	}
	for _, p := range l.Oracle {
		if signed[p.Denom] {
			errs = append(errs, fmt.Errorf("oracle %s is also a signed source", p.Denom))
		}
	}
	for _, r := range l.Dex.Rates {
		if r.From == "" || r.To == "" {
			errs = append(errs, errors.New("dex rate needs from and to"))
		}
		check("dex "+r.From+"->"+r.To, r.Rate)
	}

	seen := make(map[string]bool)
	total := 0
	for _, p := range l.Positions {
		if p.Name == "" || p.Coin == "" || p.ProtocolToken == "" {
			errs = append(errs, fmt.Errorf("position %q needs name, coin and protocol_token", p.Name))
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("duplicate position %q", p.Name))
		}
		seen[p.Name] = true
		total += int(p.DesiredPercentage)
		check("position "+p.Name+" yield", p.YieldPerEpoch)
		check("position "+p.Name+" deposit", p.Deposit)
		check("position "+p.Name+" deposit_other", p.DepositOther)
		if p.NeededPriceProof != "" && !signed[p.NeededPriceProof] {
			errs = append(errs, fmt.Errorf("position %q needs a proof for %s, which is not a signed source", p.Name, p.NeededPriceProof))
		}
		if p.OtherCoin == "" && p.DepositOther != "" {
			errs = append(errs, fmt.Errorf("position %q has deposit_other but no other_coin", p.Name))
		}
	}
	if len(l.Positions) > 0 && total != 100 {
		errs = append(errs, fmt.Errorf("desired percentages sum to %d, expected 100", total))
	}

	for _, s := range l.Stakers {
		if s.Account == "" {
			errs = append(errs, errors.New("staker without account"))
		}
		check("staker "+s.Account, s.Stake)
	}
	return errors.Join(errs...)
}

// Amount parses a validated layout amount; empty strings are zero.
func Amount(value string) sdkmath.LegacyDec {
	amount, err := utils.ParseAmount(value)
	if err != nil {
		return sdkmath.LegacyZeroDec()
	}
	return amount
}
