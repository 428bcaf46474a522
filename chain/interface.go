// Package chain defines the read-only boundary the engine uses to learn the
// spendable coins of an address and the current fee rates.
package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/snapwallet/btcengine/pkg/btcunit"
	"github.com/snapwallet/btcengine/wallet/coinselect"
)

var (
	// ErrUnknownSpeed is returned when a fee rate is requested for a speed
	// the source does not provide.
	ErrUnknownSpeed = errors.New("unknown fee speed")
)

// Speed is a confirmation target class of a fee estimate.
type Speed string

const (
	// SpeedFast targets the next block.
	SpeedFast Speed = "fast"

	// SpeedNormal targets confirmation within a few blocks.
	SpeedNormal Speed = "normal"

	// SpeedSlow targets confirmation within a day.
	SpeedSlow Speed = "slow"
)

// UtxoSource provides the unspent outputs of an address and fee estimates.
// It never changes chain state.
type UtxoSource interface {
	// Utxos returns the unspent outputs locked to address.
	Utxos(ctx context.Context, address string) ([]coinselect.Utxo, error)

	// FeeRates returns the current fee estimates.
	FeeRates(ctx context.Context) (*FeeRates, error)
}

// FeeRates holds one fee estimate per speed.
type FeeRates struct {
	Fast   btcunit.SatPerVByte
	Normal btcunit.SatPerVByte
	Slow   btcunit.SatPerVByte
}

// Pick returns the rate of the named speed.
func (f *FeeRates) Pick(speed Speed) (btcunit.SatPerVByte, error) {
	var rate btcunit.SatPerVByte

	switch Speed(strings.ToLower(string(speed))) {
	case SpeedFast:
		rate = f.Fast

	case SpeedNormal:
		rate = f.Normal

	case SpeedSlow:
		rate = f.Slow

	default:
		return btcunit.ZeroSatPerVByte, fmt.Errorf("%w: %q",
			ErrUnknownSpeed, speed)
	}

	if !rate.IsPositive() {
		return btcunit.ZeroSatPerVByte, fmt.Errorf("%w: no %s rate",
			ErrUnknownSpeed, speed)
	}

	return rate, nil
}
