// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/snapwallet/btcengine/pkg/btcunit"
	"github.com/snapwallet/btcengine/wallet/coinselect"
	"github.com/snapwallet/btcengine/wallet/psbtbuilder"
)

// TxRequest describes a payment from one account.
type TxRequest struct {
	// Utxos are the coins of the account the payment may spend.
	Utxos []coinselect.Utxo

	// Recipients are the payments to make, in output order.
	Recipients []coinselect.SpendTarget

	// FeeRate is the fee rate the transaction pays.
	FeeRate btcunit.SatPerVByte

	// Replaceable opts every input into BIP125 replacement.
	Replaceable bool

	// SkipFinalize returns the signed PSBT without extracting the network
	// transaction.
	SkipFinalize bool
}

// TxSummary describes a created transaction.
type TxSummary struct {
	// TxID is the id of the final transaction. Empty when the PSBT was
	// not finalized.
	TxID string `json:"txid,omitempty"`

	// Network is the name of the network.
	Network string `json:"network"`

	// From is the address of the spending account.
	From string `json:"from"`

	// Inputs are the spent UTXOs in transaction order.
	Inputs []coinselect.Utxo `json:"inputs"`

	// Outputs are the payments followed by change, if any.
	Outputs []coinselect.SpendTarget `json:"outputs"`

	// ChangeIndex is the position of the change output, or -1.
	ChangeIndex int `json:"change_index"`

	// Fee is the amount left to miners.
	Fee btcutil.Amount `json:"fee"`

	// FeeRate is the requested fee rate.
	FeeRate string `json:"fee_rate"`

	// VSize is the virtual size of the final transaction.
	VSize uint64 `json:"vsize,omitempty"`

	// Replaceable reports whether the inputs signal BIP125.
	Replaceable bool `json:"replaceable"`

	// Finalized reports whether TxHex holds the network transaction.
	Finalized bool `json:"finalized"`
}

// TxResult is the outcome of CreateTransaction.
type TxResult struct {
	// TxHex is the hex encoded network transaction. Empty when the request
	// skipped finalization.
	TxHex string

	// Psbt is the base64 encoded signed PSBT.
	Psbt string

	// Summary describes the transaction.
	Summary *TxSummary
}

// CreateTransaction selects coins of account for the request, assembles a
// PSBT, signs and verifies every input and finalizes it into a network
// transaction.
func (m *Manager) CreateTransaction(ctx context.Context, account *Account,
	req *TxRequest) (*TxResult, error) {

	if err := m.validateTxRequest(account, req); err != nil {
		return nil, &WalletError{Reason: ReasonCreateTx, Err: err}
	}

	from, err := account.Address()
	if err != nil {
		return nil, &WalletError{Reason: ReasonCreateTx, Err: err}
	}

	selector, err := coinselect.NewSelector(
		m.cfg.Params, account.ScriptType(), from,
	)
	if err != nil {
		return nil, err
	}

	selection, err := selector.SelectCoins(
		req.Utxos, req.Recipients, req.FeeRate,
	)
	if err != nil {
		return nil, err
	}

	inputParams, err := accountInputParams(account, req.Replaceable)
	if err != nil {
		return nil, &WalletError{Reason: ReasonCreateTx, Err: err}
	}

	builder, err := psbtbuilder.New(m.cfg.Params)
	if err != nil {
		return nil, err
	}

	if err := builder.AddInputs(selection.Inputs, inputParams); err != nil {
		return nil, err
	}

	if err := builder.AddOutputs(selection.Outputs); err != nil {
		return nil, err
	}

	if selection.ChangeIndex >= 0 {
		err := builder.AddChangeDerivation(
			selection.ChangeIndex, inputParams,
		)
		if err != nil {
			return nil, err
		}
	}

	if err := builder.SignAndVerify(ctx, account.Signer()); err != nil {
		return nil, err
	}

	packet, err := builder.ToBase64()
	if err != nil {
		return nil, err
	}

	summary := &TxSummary{
		Network:     m.cfg.Params.Name,
		From:        from,
		Inputs:      selection.Inputs,
		Outputs:     selection.Outputs,
		ChangeIndex: selection.ChangeIndex,
		Fee:         selection.Fee,
		FeeRate:     req.FeeRate.String(),
		Replaceable: req.Replaceable,
	}
	result := &TxResult{Psbt: packet, Summary: summary}

	if req.SkipFinalize {
		log.Infof("Signed PSBT from %s: %d inputs, %d outputs, fee=%v",
			from, len(selection.Inputs), len(selection.Outputs),
			selection.Fee)

		return result, nil
	}

	txHex, err := builder.Finalize()
	if err != nil {
		return nil, err
	}

	tx, err := builder.FinalTx()
	if err != nil {
		return nil, err
	}

	result.TxHex = txHex
	summary.TxID = tx.TxHash().String()
	summary.VSize = btcunit.TxWeight(tx).ToVB().Uint64()
	summary.Finalized = true

	log.Infof("Created transaction %s from %s: fee=%v, vsize=%d",
		summary.TxID, from, summary.Fee, summary.VSize)

	return result, nil
}

// validateTxRequest checks the parts of a request coin selection does not.
func (m *Manager) validateTxRequest(account *Account, req *TxRequest) error {
	switch {
	case account == nil:
		return ErrNilAccount

	case req == nil || len(req.Recipients) == 0:
		return ErrNoRecipients

	case !req.FeeRate.IsPositive():
		return ErrMissingFeeRate
	}

	if account.Params().Net != m.cfg.Params.Net {
		return fmt.Errorf("%w: account is on %s, manager on %s",
			ErrWalletParams, account.Params().Name, m.cfg.Params.Name)
	}

	maxRate := m.cfg.MaxFeeRate.ToSatPerKVByte()
	if req.FeeRate.ToSatPerKVByte() > maxRate {
		return fmt.Errorf("%w: %v, max is %v", ErrFeeRateTooLarge,
			req.FeeRate, m.cfg.MaxFeeRate)
	}

	return nil
}

// accountInputParams returns the PSBT input parameters of the account key.
func accountInputParams(account *Account,
	replaceable bool) (psbtbuilder.InputParams, error) {

	script, err := account.OutputScript()
	if err != nil {
		return psbtbuilder.InputParams{}, err
	}

	redeemScript, err := account.RedeemScript()
	if err != nil {
		return psbtbuilder.InputParams{}, err
	}

	return psbtbuilder.InputParams{
		MasterFingerprint: account.MasterFingerprint(),
		PubKey:            account.PubKey(),
		Script:            script,
		RedeemScript:      redeemScript,
		HDPath:            account.HDPath(),
		Replaceable:       replaceable,
	}, nil
}
