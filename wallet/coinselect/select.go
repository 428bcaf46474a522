// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package coinselect picks the inputs and change output of a transaction
// paying a set of targets at a given fee rate.
package coinselect

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txauthor"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/snapwallet/btcengine/pkg/btcunit"
	"github.com/snapwallet/btcengine/waddrmgr"
)

// MaxFeeRatePerKb is the highest fee rate, in sat/kvb, a selection accepts:
// the rate at which a standard sized transaction would pay every satoshi in
// existence. It keeps the fee arithmetic of txauthor within int64.
const MaxFeeRatePerKb btcutil.Amount = btcutil.MaxSatoshi /
	maxStandardVBytes * 1000

// maxStandardVBytes is the virtual size of a transaction at the standard
// weight limit.
const maxStandardVBytes = 100_000

var (
	// ErrNoTargets is returned when there is nothing to pay.
	ErrNoTargets = errors.New("no spend targets")

	// ErrInvalidFeeRate is returned for a fee rate that is not positive or
	// exceeds MaxFeeRatePerKb.
	ErrInvalidFeeRate = errors.New("invalid fee rate")

	// ErrInvalidAddress is returned for an address that cannot be decoded
	// for the selector's network.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrDuplicateUtxo is returned when the same outpoint is offered
	// twice.
	ErrDuplicateUtxo = errors.New("duplicate utxo")

	// ErrInvalidUtxo is returned for a UTXO with a malformed hash or a
	// non-positive value.
	ErrInvalidUtxo = errors.New("invalid utxo")

	// ErrConservation is returned if the authored transaction does not
	// balance. It indicates a bug.
	ErrConservation = errors.New("inputs do not cover outputs")
)

// UtxoServiceError is returned for every selection failure other than a lack
// of funds.
type UtxoServiceError struct {
	// Reason is the human readable failure.
	Reason string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *UtxoServiceError) Error() string {
	if e.Err == nil {
		return e.Reason
	}

	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

// Unwrap returns the underlying cause.
func (e *UtxoServiceError) Unwrap() error {
	return e.Err
}

// InsufficientFundsError is returned when the offered UTXOs cannot cover the
// targets plus the fee.
type InsufficientFundsError struct {
	// Available is the total value of the usable UTXOs.
	Available btcutil.Amount

	// Target is the total value of the spend targets, fee excluded.
	Target btcutil.Amount
}

// Error implements the error interface.
func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("Not enough funds: have %v, need %v plus fee",
		e.Available, e.Target)
}

// Selector selects coins owned by a single source address. Change is paid
// back to the same address.
type Selector struct {
	params *chaincfg.Params

	source           btcutil.Address
	sourceScript     []byte
	changeScriptSize int
}

// NewSelector creates a selector for UTXOs locked to source, which must be an
// address of the given script type on params.
func NewSelector(params *chaincfg.Params, scriptType waddrmgr.ScriptType,
	source string) (*Selector, error) {

	schema, err := waddrmgr.LookupScriptType(scriptType)
	if err != nil {
		return nil, &UtxoServiceError{
			Reason: "Unsupported source script type",
			Err:    err,
		}
	}

	addr, pkScript, err := decodeAddress(source, params)
	if err != nil {
		return nil, &UtxoServiceError{
			Reason: "Invalid source address",
			Err:    err,
		}
	}

	return &Selector{
		params:           params,
		source:           addr,
		sourceScript:     pkScript,
		changeScriptSize: schema.PkScriptSize,
	}, nil
}

// SourceScript returns the output script of the source address.
func (s *Selector) SourceScript() []byte {
	return bytes.Clone(s.sourceScript)
}

// SelectCoins picks inputs from utxos paying targets at feeRate. The result
// is deterministic: candidates are tried largest first, ties broken by their
// stable ID, and change is always appended after the targets.
func (s *Selector) SelectCoins(utxos []Utxo, targets []SpendTarget,
	feeRate btcunit.SatPerVByte) (*Selection, error) {

	if !feeRate.IsPositive() {
		return nil, &UtxoServiceError{
			Reason: "Invalid fee rate",
			Err:    fmt.Errorf("%w: %v", ErrInvalidFeeRate, feeRate),
		}
	}

	feeRatePerKb := feeRate.ToSatPerKVByte().Amount()
	if feeRatePerKb > MaxFeeRatePerKb {
		return nil, &UtxoServiceError{
			Reason: "Invalid fee rate",
			Err: fmt.Errorf("%w: %v exceeds %v", ErrInvalidFeeRate,
				feeRate.ToSatPerKVByte(),
				btcunit.SatPerKVByte(MaxFeeRatePerKb)),
		}
	}

	outputs, targetTotal, err := s.targetOutputs(targets)
	if err != nil {
		return nil, err
	}

	candidates, byID, err := s.candidates(utxos, feeRatePerKb)
	if err != nil {
		return nil, err
	}

	var available btcutil.Amount
	for _, c := range candidates {
		available += c.utxo.Value
	}

	// The input source records the IDs it hands out so the authored inputs
	// can be mapped back to the caller's records.
	var picked []chainhash.Hash
	inputSource := makeInputSource(candidates, s.sourceScript, &picked)

	changeSource := &txauthor.ChangeSource{
		ScriptSize: s.changeScriptSize,
		NewScript: func() ([]byte, error) {
			return s.SourceScript(), nil
		},
	}

	authored, err := txauthor.NewUnsignedTransaction(
		outputs, feeRatePerKb, inputSource, changeSource,
	)
	if err != nil {
		var inputErr txauthor.InputSourceError
		if errors.As(err, &inputErr) {
			log.Debugf("Insufficient funds: available=%v, target=%v, "+
				"fee rate=%v", available, targetTotal, feeRate)

			return nil, &InsufficientFundsError{
				Available: available,
				Target:    targetTotal,
			}
		}

		return nil, &UtxoServiceError{
			Reason: "Coin selection failed",
			Err:    err,
		}
	}

	selection, err := s.toSelection(authored, targets, picked, byID)
	if err != nil {
		return nil, err
	}

	log.Debugf("Selected %d of %d utxos: in=%v, out=%v, fee=%v, "+
		"change_index=%d", len(selection.Inputs), len(utxos),
		selection.InputTotal(), selection.OutputTotal(), selection.Fee,
		selection.ChangeIndex)

	return selection, nil
}

// targetOutputs turns the spend targets into transaction outputs, refusing
// malformed addresses and dust.
func (s *Selector) targetOutputs(targets []SpendTarget) ([]*wire.TxOut,
	btcutil.Amount, error) {

	if len(targets) == 0 {
		return nil, 0, &UtxoServiceError{
			Reason: "Invalid spend targets",
			Err:    ErrNoTargets,
		}
	}

	var total btcutil.Amount
	outputs := make([]*wire.TxOut, 0, len(targets))
	for _, target := range targets {
		_, pkScript, err := decodeAddress(target.Address, s.params)
		if err != nil {
			return nil, 0, &UtxoServiceError{
				Reason: "Invalid spend targets",
				Err:    err,
			}
		}

		output := wire.NewTxOut(int64(target.Value), pkScript)
		err = txrules.CheckOutput(output, txrules.DefaultRelayFeePerKb)
		if err != nil {
			return nil, 0, &UtxoServiceError{
				Reason: "Invalid spend targets",
				Err: fmt.Errorf("output to %s: %w",
					target.Address, err),
			}
		}

		outputs = append(outputs, output)
		total += target.Value
	}

	return outputs, total, nil
}

// candidate is a UTXO tagged with its stable ID and parsed outpoint.
type candidate struct {
	id       chainhash.Hash
	outPoint wire.OutPoint
	utxo     Utxo
}

// candidates validates and orders the UTXOs. Inputs that would cost more in
// fees than they carry are skipped.
func (s *Selector) candidates(utxos []Utxo,
	feeRatePerKb btcutil.Amount) ([]candidate, map[chainhash.Hash]Utxo,
	error) {

	seen := fn.NewSet[wire.OutPoint]()
	byID := make(map[chainhash.Hash]Utxo, len(utxos))
	eligible := make([]candidate, 0, len(utxos))

	for _, utxo := range utxos {
		outPoint, err := utxo.OutPoint()
		if err != nil {
			return nil, nil, &UtxoServiceError{
				Reason: "Invalid utxo",
				Err:    fmt.Errorf("%w: %w", ErrInvalidUtxo, err),
			}
		}

		if utxo.Value <= 0 || utxo.Value > btcutil.MaxSatoshi {
			return nil, nil, &UtxoServiceError{
				Reason: "Invalid utxo",
				Err: fmt.Errorf("%w: %v has value %v",
					ErrInvalidUtxo, outPoint, utxo.Value),
			}
		}

		if seen.Contains(*outPoint) {
			return nil, nil, &UtxoServiceError{
				Reason: "Invalid utxo",
				Err: fmt.Errorf("%w: %v", ErrDuplicateUtxo,
					outPoint),
			}
		}
		seen.Add(*outPoint)

		if !inputYieldsPositively(s.sourceScript, utxo.Value,
			feeRatePerKb) {

			log.Tracef("Skipping uneconomic utxo %v (%v)", outPoint,
				utxo.Value)

			continue
		}

		id := utxo.ID()
		byID[id] = utxo
		eligible = append(eligible, candidate{
			id:       id,
			outPoint: *outPoint,
			utxo:     utxo,
		})
	}

	slices.SortFunc(eligible, func(a, b candidate) int {
		if c := cmp.Compare(b.utxo.Value, a.utxo.Value); c != 0 {
			return c
		}

		return bytes.Compare(a.id[:], b.id[:])
	})

	return eligible, byID, nil
}

// makeInputSource returns a largest-first input source over the ordered
// candidates. Inputs accumulate across calls, as txauthor retries with a
// higher target when the fee grows.
func makeInputSource(eligible []candidate, pkScript []byte,
	picked *[]chainhash.Hash) txauthor.InputSource {

	currentTotal := btcutil.Amount(0)
	currentInputs := make([]*wire.TxIn, 0, len(eligible))
	currentScripts := make([][]byte, 0, len(eligible))
	currentInputValues := make([]btcutil.Amount, 0, len(eligible))

	return func(target btcutil.Amount) (btcutil.Amount, []*wire.TxIn,
		[]btcutil.Amount, [][]byte, error) {

		for currentTotal < target && len(eligible) != 0 {
			next := eligible[0]
			eligible = eligible[1:]

			outPoint := next.outPoint
			currentTotal += next.utxo.Value
			currentInputs = append(
				currentInputs, wire.NewTxIn(&outPoint, nil, nil),
			)
			currentScripts = append(currentScripts, pkScript)
			currentInputValues = append(
				currentInputValues, next.utxo.Value,
			)
			*picked = append(*picked, next.id)
		}

		return currentTotal, currentInputs, currentInputValues,
			currentScripts, nil
	}
}

// toSelection maps the authored transaction back onto the caller's records
// and checks that it balances.
func (s *Selector) toSelection(authored *txauthor.AuthoredTx,
	targets []SpendTarget, picked []chainhash.Hash,
	byID map[chainhash.Hash]Utxo) (*Selection, error) {

	if len(picked) != len(authored.Tx.TxIn) {
		return nil, &UtxoServiceError{
			Reason: "Coin selection failed",
			Err: fmt.Errorf("picked %d inputs, authored %d",
				len(picked), len(authored.Tx.TxIn)),
		}
	}

	selection := &Selection{
		Inputs:      make([]Utxo, 0, len(picked)),
		Outputs:     make([]SpendTarget, 0, len(authored.Tx.TxOut)),
		ChangeIndex: authored.ChangeIndex,
	}

	for _, id := range picked {
		selection.Inputs = append(selection.Inputs, byID[id])
	}

	selection.Outputs = append(selection.Outputs, targets...)
	if authored.ChangeIndex >= 0 {
		change := authored.Tx.TxOut[authored.ChangeIndex]
		selection.Outputs = append(selection.Outputs, SpendTarget{
			Address: s.source.EncodeAddress(),
			Value:   btcutil.Amount(change.Value),
		})
	}

	selection.Fee = selection.InputTotal() - selection.OutputTotal()
	if selection.Fee < 0 || selection.InputTotal() != authored.TotalInput {
		return nil, &UtxoServiceError{
			Reason: "Coin selection failed",
			Err: fmt.Errorf("%w: in=%v out=%v", ErrConservation,
				selection.InputTotal(), selection.OutputTotal()),
		}
	}

	return selection, nil
}

// inputYieldsPositively reports whether spending an output of the given
// script and value adds more than its own fee at the given rate.
func inputYieldsPositively(pkScript []byte, value,
	feeRatePerKb btcutil.Amount) bool {

	inputSize := txsizes.GetMinInputVirtualSize(pkScript)
	inputFee := feeRatePerKb * btcutil.Amount(inputSize) / 1000

	return inputFee < value
}

// decodeAddress decodes an address for params and returns its output script.
func decodeAddress(address string,
	params *chaincfg.Params) (btcutil.Address, []byte, error) {

	addr, err := btcutil.DecodeAddress(address, params)
	if err != nil {
		return nil, nil, fmt.Errorf("%w %q: %w", ErrInvalidAddress,
			address, err)
	}

	if !addr.IsForNet(params) {
		return nil, nil, fmt.Errorf("%w %q: not a %s address",
			ErrInvalidAddress, address, params.Name)
	}

	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, nil, fmt.Errorf("%w %q: %w", ErrInvalidAddress,
			address, err)
	}

	return addr, pkScript, nil
}
