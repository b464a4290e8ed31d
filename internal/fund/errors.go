package fund

import "errors"

var (
	ErrAlreadyInitialized    = errors.New("fund manager already initialized")
	ErrNotInitialized        = errors.New("fund manager not initialized")
	ErrDistributionPending   = errors.New("previous distribution was not finished")
	ErrNoStakeUnits          = errors.New("no unlocked owner stake units available")
	ErrBadgeMissing          = errors.New("control badge not held by the fund")
	ErrBadgePresent          = errors.New("control badge already held by the fund")
	ErrClaimNotFound         = errors.New("claim receipt not found")
	ErrWrongResource         = errors.New("wrong resource")
	ErrMissingPriceProof     = errors.New("missing signed price needed by the position")
	ErrTooMuchValueWithdrawn = errors.New("too much value withdrawn")
	ErrZeroUnitValue         = errors.New("fund unit value is zero")
	ErrMinAuthorizers        = errors.New("the minimum number of authorizers must be smaller than the number of admins")
	ErrInvalidKey            = errors.New("invalid node key")
	ErrShareOutOfRange       = errors.New("staker share out of the 0-1 range")
	ErrInsufficientUnits     = errors.New("not enough fund units")
	ErrInvalidPercentage     = errors.New("percentage must be a number from 0 to 100 (excluded)")
	ErrComponentMissing      = errors.New("component not configured")
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrAborted               = errors.New("operation aborted")
)
