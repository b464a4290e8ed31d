/*

This file contains the read models of the fund: a point-in-time snapshot of the fund
state that is served by the web API, exported as metrics and persisted by the bot.

*/

package types

import (
	"encoding/json"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

type PositionSnapshot struct {
	Name              string            `json:"name"`
	Value             sdkmath.LegacyDec `json:"value"` // Cached USD value
	DesiredPercentage uint8             `json:"desired_percentage"`
	ActualPercentage  sdkmath.LegacyDec `json:"actual_percentage"`
	Coin              string            `json:"coin"`
	OtherCoin         string            `json:"other_coin,omitempty"`
	ProtocolToken     string            `json:"protocol_token"`
	NeededPriceProof  string            `json:"needed_price_proof,omitempty"`
}

type FundSnapshot struct {
	Timestamp         time.Time          `json:"timestamp"`
	Initialized       bool               `json:"initialized"`
	TotalValue        sdkmath.LegacyDec  `json:"total_value"`
	UnitSupply        sdkmath.LegacyDec  `json:"unit_supply"`
	GrossUnitValue    sdkmath.LegacyDec  `json:"gross_unit_value"`
	NetUnitValue      sdkmath.LegacyDec  `json:"net_unit_value"`
	PendingUnits      sdkmath.LegacyDec  `json:"pending_units"`
	UnitsToDistribute sdkmath.LegacyDec  `json:"units_to_distribute"`
	WithdrawalFee     uint8              `json:"withdrawal_fee"`
	BuybackPercentage uint8              `json:"buyback_percentage"`
	BuybackAccount    string             `json:"buyback_account"`
	MinAuthorizers    uint8              `json:"min_authorizers"`
	NumberOfAdmins    uint8              `json:"number_of_admins"`
	Authorizations    int                `json:"authorizations"`
	PendingClaims     []string           `json:"pending_claims"`
	HasValidatorBadge bool               `json:"has_validator_badge"`
	HasManagerBadge   bool               `json:"has_fund_manager_badge"`
	Positions         []PositionSnapshot `json:"positions"`
}

// PositionNames returns the names of the positions in registry order.
func (s FundSnapshot) PositionNames() []string {
	names := make([]string, 0, len(s.Positions))
	for _, p := range s.Positions {
		names = append(names, p.Name)
	}
	return names
}

// JournalEntry is an event as read back from the journal.
type JournalEntry struct {
	ID         uuid.UUID       `json:"id"`
	Kind       EventKind       `json:"kind"`
	Operation  string          `json:"operation"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// StoredSnapshot is a fund snapshot as read back from the database.
type StoredSnapshot struct {
	SnapshotID  int64           `json:"snapshot_id"`
	CycleNumber int             `json:"cycle_number"`
	TakenAt     time.Time       `json:"taken_at"`
	TotalValue  float64         `json:"total_value"`
	UnitSupply  float64         `json:"unit_supply"`
	GrossValue  float64         `json:"gross_unit_value"`
	Positions   []string        `json:"positions"`
	Snapshot    json.RawMessage `json:"snapshot"`
}
