// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package psbtbuilder

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
	"github.com/snapwallet/btcengine/pkg/btcunit"
)

// Finalize builds the witnesses of every input, extracts the network
// transaction and returns it hex encoded. Only a verified builder can be
// finalized.
func (b *Builder) Finalize() (string, error) {
	if b.state != StateVerified {
		return "", &PsbtServiceError{
			Reason: ReasonState,
			Err:    fmt.Errorf("%w: %v", ErrBadState, b.state),
		}
	}

	if err := psbt.MaybeFinalizeAll(b.packet); err != nil {
		return "", b.fail(ReasonFinalize, err)
	}

	tx, err := psbt.Extract(b.packet)
	if err != nil {
		return "", b.fail(ReasonFinalize, err)
	}

	weight := btcunit.TxWeight(tx)
	if weight.Exceeds(btcunit.MaxStandardTxWeight) {
		return "", b.fail(ReasonTooLarge, fmt.Errorf("weight %v exceeds "+
			"%v", weight, btcunit.MaxStandardTxWeight))
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", b.fail(ReasonFinalize, err)
	}

	b.finalTx = tx
	b.state = StateFinalized

	log.Infof("Finalized transaction %v (%v, %d inputs, %d outputs)",
		tx.TxHash(), weight.ToVB(), len(tx.TxIn), len(tx.TxOut))

	return hex.EncodeToString(buf.Bytes()), nil
}

// FinalTx returns the extracted transaction of a finalized builder.
func (b *Builder) FinalTx() (*wire.MsgTx, error) {
	if b.state != StateFinalized || b.finalTx == nil {
		return nil, &PsbtServiceError{
			Reason: ReasonState,
			Err:    fmt.Errorf("%w: %v", ErrBadState, b.state),
		}
	}

	return b.finalTx, nil
}
