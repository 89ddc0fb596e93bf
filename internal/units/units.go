// Package units parses and formats token and currency amounts expressed
// with an optional denomination suffix. Every amount in the auction is an
// integer count of base units (1 ether = 10^18 wei).
package units

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Supported denominations.
const (
	Wei   = "wei"
	Gwei  = "gwei"
	Ether = "ether"
)

var exponents = map[string]int32{
	Wei:   0,
	Gwei:  9,
	Ether: 18,
	"eth": 18,
}

// amountRegex matches: [-]{number}[{denomination}]
// Examples: 1000, 2.5ether, 30 gwei, -5
// The sign is accepted so that range checks, not the parser, reject negatives.
var amountRegex = regexp.MustCompile(`^(-?[0-9]+(?:\.[0-9]+)?)\s*([a-z]*)$`)

var (
	ErrInvalidAmount = errors.New("units: invalid amount")
	ErrInvalidUnit   = errors.New("units: unsupported denomination")
	ErrFractional    = errors.New("units: amount is not a whole number of base units")
)

// Parse converts s into base units. A bare number is already in base units.
func Parse(s string) (decimal.Decimal, error) {
	matches := amountRegex.FindStringSubmatch(strings.ToLower(strings.TrimSpace(s)))
	if matches == nil {
		return decimal.Zero, fmt.Errorf("%w: %q (expected {number}[wei|gwei|ether])", ErrInvalidAmount, s)
	}

	number, unit := matches[1], matches[2]
	if unit == "" {
		unit = Wei
	}
	exp, ok := exponents[unit]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidUnit, unit)
	}

	v, err := decimal.NewFromString(number)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	v = v.Shift(exp)
	if !v.IsInteger() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrFractional, s)
	}
	return v, nil
}

// MustParse is Parse for constants; it panics on error.
func MustParse(s string) decimal.Decimal {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Format renders base units in the given denomination, trimming trailing zeros.
func Format(v decimal.Decimal, unit string) (string, error) {
	exp, ok := exponents[unit]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrInvalidUnit, unit)
	}
	return v.Shift(-exp).String() + unit, nil
}

// Amount is a base-unit amount that accepts denominated strings when
// decoded from JSON or YAML. It encodes back as a plain base-unit string.
type Amount struct {
	decimal.Decimal
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Amount) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	a.Decimal = v
	return nil
}

// UnmarshalJSON accepts both quoted strings and bare JSON numbers.
func (a *Amount) UnmarshalJSON(b []byte) error {
	return a.UnmarshalText([]byte(strings.Trim(string(b), `"`)))
}

// MarshalText implements encoding.TextMarshaler.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}
