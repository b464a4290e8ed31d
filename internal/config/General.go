package config

import (
	"errors"
	"os"
	"strconv"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/fundmanager/internal/utils"
)

// PaperMode is the only mode this daemon runs in: every collaborator is simulated in memory.
const PaperMode = "paper"

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// Mode must be "paper". It is a safety switch against running with real assets.
	Mode string

	// BaseDenom is the asset staked with the validator and received when unstaking.
	BaseDenom string
	// UnitDenom is the denom of the fund units.
	UnitDenom string
	// StakeUnitDenom is the denom of the validator owner stake units.
	StakeUnitDenom string

	// WithdrawalFee is the percentage kept by the fund on withdrawals.
	WithdrawalFee uint8
	// BuybackPercentage is the share of every claim sent to BuybackAccount.
	BuybackPercentage uint8
	// BuybackAccount receives the buyback share.
	BuybackAccount string

	// AdminCount is the number of admin credentials minted at init.
	AdminCount uint8
	// MinAuthorizers is the initial multisig quorum.
	MinAuthorizers uint8
	// InitialSupply is the number of fund units minted at init.
	InitialSupply sdkmath.LegacyDec

	// LayoutFile is the YAML fund layout (positions, prices, routes, stakers).
	LayoutFile string

	// ValuationCron and CycleCron schedule the bot jobs (seconds field included).
	ValuationCron string
	CycleCron     string
	// UnlockAmount is the number of owner stake units unlocked every cycle.
	UnlockAmount sdkmath.LegacyDec
	// DistributionChunk is the number of stakers paid per airdrop call.
	DistributionChunk int
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// FUND_MODE is required; everything else falls back to the defaults in Parameters.go.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	Mode, err = getEnv("FUND_MODE")
	if err != nil {
		return err
	}

	BaseDenom = getEnvOrDefault("FUND_BASE_DENOM", DefaultBaseDenom)
	UnitDenom = getEnvOrDefault("FUND_UNIT_DENOM", DefaultUnitDenom)
	StakeUnitDenom = getEnvOrDefault("FUND_STAKE_UNIT_DENOM", DefaultStakeUnitDenom)

	if WithdrawalFee, err = getEnvAsUint8("FUND_WITHDRAWAL_FEE", DefaultWithdrawalFee); err != nil {
		return err
	}
	if BuybackPercentage, err = getEnvAsUint8("FUND_BUYBACK_PERCENTAGE", DefaultBuybackPercentage); err != nil {
		return err
	}
	BuybackAccount = getEnvOrDefault("FUND_BUYBACK_ACCOUNT", DefaultBuybackAccount)

	if AdminCount, err = getEnvAsUint8("FUND_ADMIN_COUNT", DefaultAdminCount); err != nil {
		return err
	}
	if MinAuthorizers, err = getEnvAsUint8("FUND_MIN_AUTHORIZERS", DefaultMinAuthorizers); err != nil {
		return err
	}
	if InitialSupply, err = getEnvAsDec("FUND_INITIAL_SUPPLY", DefaultInitialSupply); err != nil {
		return err
	}

	LayoutFile = getEnvOrDefault("FUND_LAYOUT_FILE", DefaultLayoutFile)

	ValuationCron = getEnvOrDefault("BOT_VALUATION_CRON", DefaultValuationCron)
	CycleCron = getEnvOrDefault("BOT_CYCLE_CRON", DefaultCycleCron)
	if UnlockAmount, err = getEnvAsDec("BOT_UNLOCK_AMOUNT", DefaultUnlockAmount); err != nil {
		return err
	}
	if DistributionChunk, err = getEnvAsInt("BOT_DISTRIBUTION_CHUNK", DefaultDistributionChunk); err != nil {
		return err
	}

	// Load endpoint configuration
	if err := loadEndpointConfig(); err != nil {
		return err
	}

	if err := validate(); err != nil {
		return err
	}

	log.Debug().
		Str("Mode", Mode).
		Str("BaseDenom", BaseDenom).
		Str("UnitDenom", UnitDenom).
		Uint8("AdminCount", AdminCount).
		Uint8("MinAuthorizers", MinAuthorizers).
		Str("LayoutFile", LayoutFile).
		Msg("Configuration loaded successfully.")

	return nil
}

func validate() error {
	if Mode != PaperMode {
		return errors.New("FUND_MODE must be '" + PaperMode + "', got: " + Mode)
	}
	if WithdrawalFee >= 100 || BuybackPercentage >= 100 {
		return errors.New("FUND_WITHDRAWAL_FEE and FUND_BUYBACK_PERCENTAGE must be below 100")
	}
	if MinAuthorizers >= AdminCount {
		return errors.New("FUND_MIN_AUTHORIZERS must be smaller than FUND_ADMIN_COUNT")
	}
	if !InitialSupply.IsPositive() {
		return errors.New("FUND_INITIAL_SUPPLY must be positive")
	}
	if UnlockAmount.IsNegative() {
		return errors.New("BOT_UNLOCK_AMOUNT cannot be negative")
	}
	if DistributionChunk <= 0 {
		return errors.New("BOT_DISTRIBUTION_CHUNK must be positive")
	}
	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOrDefault retrieves a string environment variable, or def when unset or empty.
func getEnvOrDefault(key, def string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return def
}

// getEnvAsUint8 retrieves an environment variable as a uint8. Returns error if invalid.
func getEnvAsUint8(key string, def uint8) (uint8, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return def, nil
	}
	value, err := strconv.ParseUint(valueStr, 10, 8)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a number from 0 to 255, got: " + valueStr)
	}
	return uint8(value), nil
}

// getEnvAsInt retrieves an environment variable as an int. Returns error if invalid.
func getEnvAsInt(key string, def int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return def, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid int, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsDec retrieves an environment variable as a decimal amount. Returns error if invalid.
func getEnvAsDec(key, def string) (sdkmath.LegacyDec, error) {
	valueStr := getEnvOrDefault(key, def)
	value, err := utils.ParseAmount(valueStr)
	if err != nil {
		return sdkmath.LegacyDec{}, errors.New("environment variable " + key + " must be a decimal amount, got: " + valueStr)
	}
	return value, nil
}
