package auth

import (
	"fmt"
)

// OperationKind identifies a governance operation that needs quorum from other admins.
// The numeric codes are stable and are what admins submit when authorizing.
type OperationKind uint8

const (
	WithdrawValidatorBadge OperationKind = iota
	AddDefiProtocol
	RemoveDefiProtocol
	SetDexComponent
	DecreaseMinAuthorizers
	IncreaseMinAuthorizers
	MintAdminBadge
	SetOracleComponent
	WithdrawFundManagerBadge
	SetWithdrawalFee
	MintBotBadge
	SetBuybackFund
	RevokeAdminBadge

	operationKindCount
)

var operationNames = [...]string{
	"withdraw_validator_badge",
	"add_defi_protocol",
	"remove_defi_protocol",
	"set_dex_component",
	"decrease_min_authorizers",
	"increase_min_authorizers",
	"mint_admin_badge",
	"set_oracle_component",
	"withdraw_fund_manager_badge",
	"set_withdrawal_fee",
	"mint_bot_badge",
	"set_buyback_fund",
	"revoke_admin_badge",
}

func (k OperationKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("unknown_operation(%d)", uint8(k))
	}
	return operationNames[k]
}

// Valid reports whether k is one of the known operation kinds.
func (k OperationKind) Valid() bool {
	return k < operationKindCount
}

// OperationFromCode converts a numeric code into an OperationKind.
func OperationFromCode(code uint8) (OperationKind, error) {
	kind := OperationKind(code)
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrUnknownOperation, code)
	}
	return kind, nil
}

// Params are the discriminating parameters of an authorization. Unused fields stay at
// their zero value; a nil Percentage means "no percentage" and is distinct from 0%.
type Params struct {
	ProtocolName string `json:"protocol_name,omitempty"`
	Percentage   *uint8 `json:"percentage,omitempty"`
	Account      string `json:"account,omitempty"`
	AdminID      uint8  `json:"admin_id,omitempty"`
}

// Percent is a helper to build the optional Percentage field.
func Percent(p uint8) *uint8 {
	return &p
}

// Equal compares every discriminating parameter.
func (p Params) Equal(o Params) bool {
	if p.ProtocolName != o.ProtocolName || p.Account != o.Account || p.AdminID != o.AdminID {
		return false
	}
	switch {
	case p.Percentage == nil && o.Percentage == nil:
		return true
	case p.Percentage == nil || o.Percentage == nil:
		return false
	default:
		return *p.Percentage == *o.Percentage
	}
}

func (p Params) clone() Params {
	if p.Percentage != nil {
		p.Percentage = Percent(*p.Percentage)
	}
	return p
}
