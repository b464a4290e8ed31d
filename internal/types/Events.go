/*

This file contains the audit events emitted by the fund manager. Events are buffered
during an operation and only published once the operation commits.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

type EventKind string

const (
	EventUnstakeStarted       EventKind = "UNSTAKE_STARTED"
	EventUnstakeCompleted     EventKind = "UNSTAKE_COMPLETED"
	EventWithdrawalCompleted  EventKind = "WITHDRAWAL_COMPLETED"
	EventAdminDeposit         EventKind = "ADMIN_DEPOSIT"
	EventPositionValueUpdated EventKind = "POSITION_VALUE_UPDATED"
	EventPositionRemoved      EventKind = "POSITION_REMOVED"
)

// Event is the envelope persisted by the journal.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Kind      EventKind `json:"kind"`
	Operation string    `json:"operation"` // Fund operation that produced the event
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// NewEvent wraps a payload in an envelope with a fresh id.
func NewEvent(kind EventKind, operation string, at time.Time, payload any) Event {
	return Event{
		ID:        uuid.New(),
		Kind:      kind,
		Operation: operation,
		Timestamp: at,
		Payload:   payload,
	}
}

// UnstakeStarted is emitted when owner stake units are unstaked and a claim receipt is stored.
type UnstakeStarted struct {
	StakeUnitAmount sdkmath.LegacyDec `json:"stake_unit_amount"`
	ClaimID         string            `json:"claim_id"`
}

// UnstakeCompleted is emitted once the claimed base asset has been invested.
type UnstakeCompleted struct {
	ClaimID           string            `json:"claim_id"`
	BaseAmount        sdkmath.LegacyDec `json:"base_amount"`    // Invested amount, buyback excluded
	BuybackAmount     sdkmath.LegacyDec `json:"buyback_amount"` // Sent to the buyback account
	PositionName      string            `json:"position_name"`
	UnitsToDistribute sdkmath.LegacyDec `json:"units_to_distribute"`
	PositionValue     sdkmath.LegacyDec `json:"position_value"`
	TotalValue        sdkmath.LegacyDec `json:"total_value"`
}

// WithdrawalCompleted is emitted when fund units are redeemed.
type WithdrawalCompleted struct {
	UnitsBurned   sdkmath.LegacyDec `json:"units_burned"`
	UnitsReturned sdkmath.LegacyDec `json:"units_returned"`
	PositionName  string            `json:"position_name"`
	PositionValue sdkmath.LegacyDec `json:"position_value"`
	TotalValue    sdkmath.LegacyDec `json:"total_value"`
}

// AdminDeposit is emitted when an admin deposits coins or protocol tokens into a position.
type AdminDeposit struct {
	PositionName  string            `json:"position_name"`
	PositionValue sdkmath.LegacyDec `json:"position_value"`
	TotalValue    sdkmath.LegacyDec `json:"total_value"`
	UnitsMinted   sdkmath.LegacyDec `json:"units_minted"`
}

// PositionValueUpdated is emitted for each position refreshed by a valuation update.
// TotalValue is the running total at the time the position was processed.
type PositionValueUpdated struct {
	PositionName  string            `json:"position_name"`
	PositionValue sdkmath.LegacyDec `json:"position_value"`
	TotalValue    sdkmath.LegacyDec `json:"total_value"`
}

// PositionRemoved is emitted when a position is detached from the fund.
type PositionRemoved struct {
	PositionName string            `json:"position_name"`
	RemovedValue sdkmath.LegacyDec `json:"removed_value"`
	TotalValue   sdkmath.LegacyDec `json:"total_value"`
}
