/*
This file contains common utility functions for converting between decimal amounts,
percentages and float64 values used by metrics and configuration parsing.
*/

package utils

import (
	"errors"
	"fmt"
	"math"
	"strings"

	sdkmath "cosmossdk.io/math"
)

// Error definitions for zero-tolerance error handling
var (
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
	ErrDivisionByZero   = errors.New("division by zero")
)

// DecToFloat64 converts a LegacyDec to float64 for reporting purposes only.
func DecToFloat64(amount sdkmath.LegacyDec) (float64, error) {
	if amount.IsNil() {
		return 0, ErrAmountNil
	}

	result, err := amount.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}

	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, result)
	}

	return result, nil
}

// ParseAmount parses a non-negative decimal string such as "1500.25".
func ParseAmount(value string) (sdkmath.LegacyDec, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return sdkmath.LegacyZeroDec(), nil
	}

	amount, err := sdkmath.LegacyNewDecFromStr(value)
	if err != nil {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %q: %w", ErrConversionFailed, value, err)
	}
	if amount.IsNegative() {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %s", ErrAmountNegative, value)
	}

	return amount, nil
}

// PercentOf returns amount * percentage / 100.
func PercentOf(amount sdkmath.LegacyDec, percentage uint8) sdkmath.LegacyDec {
	return amount.MulInt64(int64(percentage)).QuoInt64(100)
}

// SafeQuo divides a by b, returning ErrDivisionByZero instead of panicking.
func SafeQuo(a, b sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	if b.IsNil() || b.IsZero() {
		return sdkmath.LegacyZeroDec(), ErrDivisionByZero
	}
	return a.Quo(b), nil
}

// ApproxEqual reports whether a and b differ by at most tolerance.
func ApproxEqual(a, b, tolerance sdkmath.LegacyDec) bool {
	return a.Sub(b).Abs().LTE(tolerance)
}
