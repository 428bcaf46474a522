// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package btcunit provides a set of types for dealing with transaction sizes
// and fee rates.
package btcunit

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
)

const (
	// kilo is a generic multiplier for kilo units.
	kilo = 1000

	// floatStringPrecision is the number of decimal places to use when
	// converting a fee rate to a string.
	floatStringPrecision = 3
)

var (
	// ErrInvalidFeeRate is returned when a fee rate cannot be parsed or is
	// negative.
	ErrInvalidFeeRate = errors.New("invalid fee rate")

	// ZeroSatPerVByte is a fee rate of 0 sat/vb.
	ZeroSatPerVByte = NewSatPerVByte(0)
)

// SatPerVByte represents a fee rate in sat/vbyte. The rate is kept as an exact
// rational so that fractional rates such as 1.5 sat/vb survive conversion to
// the sat/kvb integer rate consumed by the transaction author.
type SatPerVByte struct {
	rate *big.Rat
}

// NewSatPerVByte creates a new whole-number fee rate in sat/vb.
func NewSatPerVByte(rate btcutil.Amount) SatPerVByte {
	return SatPerVByte{rate: big.NewRat(int64(rate), 1)}
}

// CalcSatPerVByte calculates the fee rate paid by fee over the given virtual
// size. A zero size yields a zero rate.
func CalcSatPerVByte(fee btcutil.Amount, size VByte) SatPerVByte {
	if size.vb == 0 {
		return ZeroSatPerVByte
	}

	return SatPerVByte{rate: big.NewRat(
		int64(fee), safeUint64ToInt64(size.vb),
	)}
}

// ParseSatPerVByte parses a decimal fee rate such as "2" or "1.25".
func ParseSatPerVByte(s string) (SatPerVByte, error) {
	rate, ok := new(big.Rat).SetString(s)
	if !ok {
		return ZeroSatPerVByte, fmt.Errorf("%w: %q", ErrInvalidFeeRate, s)
	}

	if rate.Sign() < 0 {
		return ZeroSatPerVByte, fmt.Errorf("%w: %q is negative",
			ErrInvalidFeeRate, s)
	}

	return SatPerVByte{rate: rate}, nil
}

// IsPositive reports whether the rate is strictly greater than zero.
func (s SatPerVByte) IsPositive() bool {
	return s.rat().Sign() > 0
}

// FeeForVByte returns the fee for the given virtual size, rounded up to the
// next whole satoshi.
func (s SatPerVByte) FeeForVByte(size VByte) btcutil.Amount {
	fee := new(big.Rat).Mul(
		s.rat(), new(big.Rat).SetUint64(size.vb),
	)

	return ceilRat(fee)
}

// FeeForWeight returns the fee for the given weight, rounded up.
func (s SatPerVByte) FeeForWeight(weight WeightUnit) btcutil.Amount {
	fee := new(big.Rat).Mul(s.rat(), big.NewRat(
		safeUint64ToInt64(weight.wu), blockchain.WitnessScaleFactor,
	))

	return ceilRat(fee)
}

// ToSatPerKVByte converts the rate to sat/kvb, rounded up to a whole satoshi
// so the resulting rate never pays less than requested.
func (s SatPerVByte) ToSatPerKVByte() SatPerKVByte {
	kvb := new(big.Rat).Mul(s.rat(), big.NewRat(kilo, 1))

	return SatPerKVByte(ceilRat(kvb))
}

// Equal returns true if the fee rate is equal to the other fee rate.
func (s SatPerVByte) Equal(other SatPerVByte) bool {
	return s.rat().Cmp(other.rat()) == 0
}

// String returns a human-readable string of the fee rate.
func (s SatPerVByte) String() string {
	return s.rat().FloatString(floatStringPrecision) + " sat/vb"
}

// rat returns the rational rate, treating the zero value as zero.
func (s SatPerVByte) rat() *big.Rat {
	if s.rate == nil {
		return new(big.Rat)
	}

	return s.rate
}

// SatPerKVByte is a fee rate in satoshis per kilo-virtual-byte, the unit used
// by the btcwallet transaction author and relay rules.
type SatPerKVByte btcutil.Amount

// Amount returns the rate as the btcutil.Amount txauthor expects.
func (k SatPerKVByte) Amount() btcutil.Amount {
	return btcutil.Amount(k)
}

// String returns a human-readable string of the fee rate.
func (k SatPerKVByte) String() string {
	return fmt.Sprintf("%d sat/kvb", int64(k))
}

// ceilRat rounds a non-negative rational up to a whole satoshi amount,
// saturating at math.MaxInt64.
func ceilRat(r *big.Rat) btcutil.Amount {
	num := new(big.Int).Set(r.Num())
	den := r.Denom()

	num.Add(num, den)
	num.Sub(num, big.NewInt(1))
	num.Div(num, den)

	if !num.IsInt64() {
		return btcutil.Amount(math.MaxInt64)
	}

	return btcutil.Amount(num.Int64())
}

// safeUint64ToInt64 clamps v into the int64 range.
func safeUint64ToInt64(v uint64) int64 {
	const maxInt64 = 1<<63 - 1
	if v > maxInt64 {
		return maxInt64
	}

	return int64(v)
}
