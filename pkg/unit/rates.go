// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package unit provides a set of types for dealing with bitcoin fee rates and
// transaction sizes.
package unit

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
)

const (
	// SatsPerKilo is the number of satoshis in a kilo-satoshi.
	SatsPerKilo = 1000

	// floatStringPrecision is the number of decimal places to use when
	// converting a fee rate to a string.
	floatStringPrecision = 2
)

// ErrInvalidFeeRate is returned when a fee rate can't be parsed or is
// negative.
var ErrInvalidFeeRate = errors.New("invalid fee rate")

// SatPerVByte represents a fee rate in sat/vbyte. The fee rate is encoded
// as a big.Rat to allow for fractional (sub-satoshi) fee rates.
type SatPerVByte struct {
	*big.Rat
}

// NewSatPerVByte creates a new fee rate in sat/vb. The given fee and vbytes
// are used to calculate the fee rate.
func NewSatPerVByte(fee btcutil.Amount, vb VByte) SatPerVByte {
	if vb.val == 0 {
		return SatPerVByte{big.NewRat(0, 1)}
	}

	return SatPerVByte{
		big.NewRat(int64(fee), safeUint64ToInt64(vb.val)),
	}
}

// ParseSatPerVByte parses a decimal sat/vb rate such as "1", "2.5" or
// "12 sat/vb".
func ParseSatPerVByte(s string) (SatPerVByte, error) {
	s = strings.TrimSpace(strings.TrimSuffix(s, "sat/vb"))

	r, ok := new(big.Rat).SetString(s)
	if !ok || r.Sign() < 0 {
		return SatPerVByte{}, fmt.Errorf("%w: %q", ErrInvalidFeeRate, s)
	}

	return SatPerVByte{r}, nil
}

// FeeForVSize calculates the fee for the given vsize, rounding any fraction
// of a satoshi up.
func (s SatPerVByte) FeeForVSize(vb VByte) btcutil.Amount {
	if s.Rat == nil {
		return 0
	}

	feeRat := new(big.Rat).Mul(
		s.Rat, new(big.Rat).SetInt64(safeUint64ToInt64(vb.val)),
	)

	return ceilAmount(feeRat)
}

// FeePerKVByte converts the current fee rate from sat/vb to sat/kvb.
func (s SatPerVByte) FeePerKVByte() SatPerKVByte {
	kvbRate := new(big.Rat).Mul(s.Rat, big.NewRat(SatsPerKilo, 1))
	return SatPerKVByte{kvbRate}
}

// IsZero reports whether the rate is unset or zero.
func (s SatPerVByte) IsZero() bool {
	return s.Rat == nil || s.Sign() == 0
}

// String returns a human-readable string of the fee rate.
func (s SatPerVByte) String() string {
	if s.Rat == nil {
		return "0.00 sat/vb"
	}
	return s.FloatString(floatStringPrecision) + " sat/vb"
}

// LessThan returns true if the fee rate is less than the other fee rate.
func (s SatPerVByte) LessThan(other SatPerVByte) bool {
	return s.Cmp(other.Rat) < 0
}

// SatPerKVByte represents a fee rate in sat/kvb. This is the unit relay
// policy is expressed in.
type SatPerKVByte struct {
	*big.Rat
}

// NewSatPerKVByte creates a fee rate from a whole number of sat/kvb.
func NewSatPerKVByte(fee btcutil.Amount) SatPerKVByte {
	return SatPerKVByte{big.NewRat(int64(fee), 1)}
}

// FeeForVSize calculates the fee resulting from this fee rate and the given
// vsize in vbytes, rounding up.
func (s SatPerKVByte) FeeForVSize(vb VByte) btcutil.Amount {
	fee := new(big.Rat).Mul(
		s.Rat, big.NewRat(safeUint64ToInt64(vb.val), SatsPerKilo),
	)
	return ceilAmount(fee)
}

// FeePerVByte converts the current fee rate from sat/kvb to sat/vb.
func (s SatPerKVByte) FeePerVByte() SatPerVByte {
	vbRate := new(big.Rat).Mul(s.Rat, big.NewRat(1, SatsPerKilo))
	return SatPerVByte{vbRate}
}

// String returns a human-readable string of the fee rate.
func (s SatPerKVByte) String() string {
	return s.FloatString(floatStringPrecision) + " sat/kvb"
}

// ceilAmount rounds a non-negative big.Rat up to the next whole satoshi using
// (numerator + denominator - 1) / denominator.
func ceilAmount(r *big.Rat) btcutil.Amount {
	num := new(big.Int).Set(r.Num())
	den := r.Denom()
	num.Add(num, den)
	num.Sub(num, big.NewInt(1))
	num.Div(num, den)

	return btcutil.Amount(num.Int64())
}

// safeUint64ToInt64 converts a uint64 to an int64, capping at math.MaxInt64.
// Sizes are bounded by consensus so the cap is never reached in practice.
func safeUint64ToInt64(u uint64) int64 {
	if u > math.MaxInt64 {
		return math.MaxInt64
	}

	return int64(u)
}
