package btcunit

import (
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
)

// MaxStandardTxWeight is the largest transaction weight relayed by default
// policy. Anything heavier is refused by the PSBT finalizer.
var MaxStandardTxWeight = NewWeightUnit(400_000)

// WeightUnit defines a unit to express the transaction size. One weight unit
// is 1/4_000_000 of the max block size. The tx weight is calculated using
// `Base tx size * 3 + Total tx size`.
type WeightUnit struct {
	wu uint64
}

// NewWeightUnit creates a new WeightUnit from a uint64 value.
func NewWeightUnit(val uint64) WeightUnit {
	return WeightUnit{wu: val}
}

// TxWeight returns the BIP141 weight of the given transaction.
func TxWeight(tx *wire.MsgTx) WeightUnit {
	weight := blockchain.GetTransactionWeight(btcutil.NewTx(tx))

	return NewWeightUnit(uint64(weight))
}

// Uint64 returns the raw weight.
func (w WeightUnit) Uint64() uint64 {
	return w.wu
}

// ToVB converts the weight to virtual bytes, rounding up.
func (w WeightUnit) ToVB() VByte {
	vbytes := (w.wu + blockchain.WitnessScaleFactor - 1) /
		blockchain.WitnessScaleFactor

	return VByte{vb: vbytes}
}

// Exceeds reports whether w is strictly heavier than limit.
func (w WeightUnit) Exceeds(limit WeightUnit) bool {
	return w.wu > limit.wu
}

// String returns the string representation of the weight unit.
func (w WeightUnit) String() string {
	return fmt.Sprintf("%d wu", w.wu)
}

// VByte defines a unit to express the transaction size. One virtual byte is
// 1/4th of a weight unit.
type VByte struct {
	vb uint64
}

// NewVByte creates a new VByte from a uint64 value.
func NewVByte(val uint64) VByte {
	return VByte{vb: val}
}

// Uint64 returns the raw virtual size.
func (v VByte) Uint64() uint64 {
	return v.vb
}

// ToWU converts the virtual size to weight units.
func (v VByte) ToWU() WeightUnit {
	return NewWeightUnit(v.vb * blockchain.WitnessScaleFactor)
}

// String returns the string representation of the virtual byte.
func (v VByte) String() string {
	return fmt.Sprintf("%d vb", v.vb)
}
