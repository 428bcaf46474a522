// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coinselect

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Utxo is an unspent output owned by the spending account, as reported by an
// external UTXO provider.
type Utxo struct {
	// BlockHeight is the confirmation height, or -1 when unconfirmed.
	BlockHeight int32 `json:"block_height"`

	// TxHash is the big-endian hex hash of the funding transaction.
	TxHash string `json:"tx_hash"`

	// OutputIndex is the output's position in the funding transaction.
	OutputIndex uint32 `json:"output_index"`

	// Value is the output amount.
	Value btcutil.Amount `json:"value"`
}

// ID returns the stable identifier of the UTXO: the sha256 of its hash,
// height, index and value. Two records only share an ID if every field is
// equal.
func (u Utxo) ID() chainhash.Hash {
	buf := make([]byte, 0, len(u.TxHash)+16)
	buf = append(buf, u.TxHash...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(u.BlockHeight))
	buf = binary.BigEndian.AppendUint32(buf, u.OutputIndex)
	buf = binary.BigEndian.AppendUint64(buf, uint64(u.Value))

	return chainhash.HashH(buf)
}

// OutPoint parses the outpoint the UTXO refers to.
func (u Utxo) OutPoint() (*wire.OutPoint, error) {
	hash, err := chainhash.NewHashFromStr(u.TxHash)
	if err != nil {
		return nil, fmt.Errorf("invalid tx hash %q: %w", u.TxHash, err)
	}

	return wire.NewOutPoint(hash, u.OutputIndex), nil
}

// SpendTarget is an amount to pay to an address.
type SpendTarget struct {
	// Address is the encoded destination address.
	Address string `json:"address"`

	// Value is the amount to pay.
	Value btcutil.Amount `json:"value"`
}

// Selection is the result of coin selection. The sum of the inputs always
// equals the sum of the outputs plus the fee.
type Selection struct {
	// Inputs are the chosen UTXOs in transaction order.
	Inputs []Utxo `json:"inputs"`

	// Outputs are the spend targets followed by the change output, if
	// any.
	Outputs []SpendTarget `json:"outputs"`

	// Fee is the amount left to miners.
	Fee btcutil.Amount `json:"fee"`

	// ChangeIndex is the position of the change output in Outputs, or -1
	// when the leftover was folded into the fee.
	ChangeIndex int `json:"change_index"`
}

// InputTotal returns the sum of the selected inputs.
func (s *Selection) InputTotal() btcutil.Amount {
	var total btcutil.Amount
	for _, utxo := range s.Inputs {
		total += utxo.Value
	}

	return total
}

// OutputTotal returns the sum of the outputs, change included.
func (s *Selection) OutputTotal() btcutil.Amount {
	var total btcutil.Amount
	for _, target := range s.Outputs {
		total += target.Value
	}

	return total
}
