/*

This file contains the default parameters of the fund manager daemon.

They describe a small paper fund: a handful of admins, a quorum of two, no withdrawal fee
and no buyback. Every value can be overridden from the environment.

*/

package config

const (
	DefaultBaseDenom      = "xrd"
	DefaultUnitDenom      = "funit"
	DefaultStakeUnitDenom = "lsu"

	DefaultWithdrawalFee uint8 = 0 // Withdrawals return the full gross value.
	// A fee above a few percent makes early withdrawals very expensive for stakers.

	DefaultBuybackPercentage uint8 = 0
	DefaultBuybackAccount          = "buyback"

	DefaultAdminCount     uint8 = 3
	DefaultMinAuthorizers uint8 = 2 // Every multisig operation needs two other admins.
	// Must stay below the number of admins, otherwise no admin can ever be authorized.

	DefaultInitialSupply = "1000000"

	DefaultLayoutFile = "fund.yaml"

	DefaultValuationCron = "0 */10 * * * *" // Every 10 minutes.
	DefaultCycleCron     = "0 0 * * * *"    // Hourly; one lifecycle stage advances per cycle.

	DefaultUnlockAmount = "1000" // Owner stake units unlocked per cycle.
	// Unlocking everything at once would leave no stake units for later cycles.

	DefaultDistributionChunk = 50 // Stakers per airdrop call.

	DefaultWebPort  = "8080"
	DefaultGRPCPort = "9090"
)
