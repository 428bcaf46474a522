// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package psbtbuilder assembles a BIP174 PSBT from selected coins, signs it
// with an HD signer, checks every signature against the keys recorded in the
// packet and finalizes it into a raw transaction.
//
// A builder moves through the states
//
//	Draft -> InputsAdded / OutputsAdded -> Ready -> Signed -> Verified ->
//	Finalized
//
// and ends in Errored after any failed transition. Finalized and Errored are
// terminal.
package psbtbuilder

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/snapwallet/btcengine/waddrmgr"
	"github.com/snapwallet/btcengine/wallet/coinselect"
)

// txVersion is the version of every transaction the builder creates.
const txVersion = 2

// State is the lifecycle position of a Builder.
type State uint8

const (
	// StateDraft is a builder with neither inputs nor outputs.
	StateDraft State = iota

	// StateInputsAdded is a builder with inputs only.
	StateInputsAdded

	// StateOutputsAdded is a builder with outputs only.
	StateOutputsAdded

	// StateReady is a builder with inputs and outputs, ready to sign.
	StateReady

	// StateSigned is a builder whose inputs all carry signatures.
	StateSigned

	// StateVerified is a signed builder whose signatures verified.
	StateVerified

	// StateFinalized is a builder that produced its final transaction.
	StateFinalized

	// StateErrored is a builder that failed a transition.
	StateErrored
)

// String returns the name of the state.
func (s State) String() string {
	switch s {
	case StateDraft:
		return "Draft"
	case StateInputsAdded:
		return "InputsAdded"
	case StateOutputsAdded:
		return "OutputsAdded"
	case StateReady:
		return "Ready"
	case StateSigned:
		return "Signed"
	case StateVerified:
		return "Verified"
	case StateFinalized:
		return "Finalized"
	case StateErrored:
		return "Errored"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// InputParams describes the key that owns a batch of inputs.
type InputParams struct {
	// MasterFingerprint is the fingerprint of the master key.
	MasterFingerprint uint32

	// PubKey is the compressed public key locking the inputs.
	PubKey []byte

	// Script is the output script of the UTXOs being spent.
	Script []byte

	// RedeemScript is the P2WPKH program of nested segwit inputs.
	RedeemScript []byte

	// HDPath is the absolute derivation path of PubKey.
	HDPath waddrmgr.DerivationPath

	// Replaceable opts the inputs into BIP125 replacement.
	Replaceable bool
}

// Builder accumulates one PSBT through its lifecycle. It is not safe for
// concurrent use.
type Builder struct {
	params *chaincfg.Params
	packet *psbt.Packet
	state  State

	finalTx *wire.MsgTx
}

// New creates an empty version 2 PSBT for params.
func New(params *chaincfg.Params) (*Builder, error) {
	packet, err := psbt.NewFromUnsignedTx(wire.NewMsgTx(txVersion))
	if err != nil {
		return nil, &PsbtServiceError{Reason: ReasonSerialize, Err: err}
	}

	return &Builder{params: params, packet: packet, state: StateDraft}, nil
}

// FromBase64 decodes a base64 PSBT. A packet that already carries
// signatures starts in StateSigned and must pass Verify before it can be
// finalized.
func FromBase64(params *chaincfg.Params, b64 string) (*Builder, error) {
	packet, err := psbt.NewFromRawBytes(strings.NewReader(b64), true)
	if err != nil {
		return nil, &PsbtServiceError{Reason: ReasonSerialize, Err: err}
	}

	b := &Builder{params: params, packet: packet}
	b.state = b.assemblyState()

	for _, in := range packet.Inputs {
		if len(in.PartialSigs) != 0 || len(in.TaprootKeySpendSig) != 0 {
			b.state = StateSigned
			break
		}
	}

	return b, nil
}

// ToBase64 encodes the PSBT.
func (b *Builder) ToBase64() (string, error) {
	encoded, err := b.packet.B64Encode()
	if err != nil {
		return "", &PsbtServiceError{Reason: ReasonSerialize, Err: err}
	}

	return encoded, nil
}

// State returns the current lifecycle state.
func (b *Builder) State() State {
	return b.state
}

// Packet returns the underlying PSBT.
func (b *Builder) Packet() *psbt.Packet {
	return b.packet
}

// Fee returns the sum of the input values minus the sum of the outputs.
func (b *Builder) Fee() (btcutil.Amount, error) {
	in, err := psbt.SumUtxoInputValues(b.packet)
	if err != nil {
		return 0, &PsbtServiceError{Reason: ReasonSerialize, Err: err}
	}

	var out int64
	for _, txOut := range b.packet.UnsignedTx.TxOut {
		out += txOut.Value
	}

	return btcutil.Amount(in - out), nil
}

// AddInputs adds one input per UTXO, all owned by the key in params.
func (b *Builder) AddInputs(utxos []coinselect.Utxo, params InputParams) error {
	if err := b.expectAssembling(); err != nil {
		return err
	}

	if len(utxos) == 0 {
		return b.fail(ReasonAddInputs, ErrNoInputs)
	}

	derivation, err := newDerivation(params)
	if err != nil {
		return b.fail(ReasonAddInputs, err)
	}

	witnessV1, err := checkInputScript(params, derivation.PubKey)
	if err != nil {
		return b.fail(ReasonAddInputs, err)
	}

	sequence := wire.MaxTxInSequenceNum
	if params.Replaceable {
		sequence = wire.MaxTxInSequenceNum - 2
	}

	txIns := make([]*wire.TxIn, 0, len(utxos))
	pIns := make([]psbt.PInput, 0, len(utxos))
	for _, utxo := range utxos {
		outPoint, err := utxo.OutPoint()
		if err != nil {
			return b.fail(ReasonAddInputs, err)
		}

		if utxo.Value <= 0 {
			return b.fail(ReasonAddInputs, fmt.Errorf("utxo %v has "+
				"value %v", outPoint, utxo.Value))
		}

		txIn := wire.NewTxIn(outPoint, nil, nil)
		txIn.Sequence = sequence

		prevOut := wire.NewTxOut(int64(utxo.Value), params.Script)

		var pIn psbt.PInput
		if witnessV1 {
			addInputInfoSegWitV1(&pIn, prevOut, derivation)
		} else {
			addInputInfoSegWitV0(
				&pIn, prevOut, derivation, params.RedeemScript,
			)
		}

		txIns = append(txIns, txIn)
		pIns = append(pIns, pIn)
	}

	b.packet.UnsignedTx.TxIn = append(b.packet.UnsignedTx.TxIn, txIns...)
	b.packet.Inputs = append(b.packet.Inputs, pIns...)

	if err := checkUniqueOutPoints(b.packet.UnsignedTx); err != nil {
		return b.fail(ReasonAddInputs, err)
	}

	if err := b.packet.SanityCheck(); err != nil {
		return b.fail(ReasonAddInputs, err)
	}

	log.Debugf("Added %d inputs (sequence=%#x)", len(utxos), sequence)

	b.state = b.assemblyState()

	return nil
}

// AddOutputs appends one output per target.
func (b *Builder) AddOutputs(targets []coinselect.SpendTarget) error {
	if err := b.expectAssembling(); err != nil {
		return err
	}

	if len(targets) == 0 {
		return b.fail(ReasonAddOutputs, ErrNoOutputs)
	}

	txOuts := make([]*wire.TxOut, 0, len(targets))
	for _, target := range targets {
		addr, err := btcutil.DecodeAddress(target.Address, b.params)
		if err != nil {
			return b.fail(ReasonAddOutputs, err)
		}

		if !addr.IsForNet(b.params) {
			return b.fail(ReasonAddOutputs, fmt.Errorf("address %s "+
				"is not for %s", target.Address, b.params.Name))
		}

		pkScript, err := txscript.PayToAddrScript(addr)
		if err != nil {
			return b.fail(ReasonAddOutputs, err)
		}

		if target.Value <= 0 {
			return b.fail(ReasonAddOutputs, fmt.Errorf("output to "+
				"%s has value %v", target.Address, target.Value))
		}

		txOuts = append(txOuts, wire.NewTxOut(
			int64(target.Value), pkScript,
		))
	}

	for _, txOut := range txOuts {
		b.packet.UnsignedTx.AddTxOut(txOut)
		b.packet.Outputs = append(b.packet.Outputs, psbt.POutput{})
	}

	log.Debugf("Added %d outputs", len(txOuts))

	b.state = b.assemblyState()

	return nil
}

// AddChangeDerivation records the derivation of our own key on the output at
// index, so external signers can recognize it as change.
func (b *Builder) AddChangeDerivation(index int, params InputParams) error {
	if err := b.expectAssembling(); err != nil {
		return err
	}

	if index < 0 || index >= len(b.packet.Outputs) {
		return b.fail(ReasonAddOutputs, fmt.Errorf("change index %d "+
			"out of range", index))
	}

	derivation, err := newDerivation(params)
	if err != nil {
		return b.fail(ReasonAddOutputs, err)
	}

	txOut := b.packet.UnsignedTx.TxOut[index]
	if !bytes.Equal(txOut.PkScript, params.Script) {
		return b.fail(ReasonAddOutputs, fmt.Errorf("output %d does "+
			"not pay to the change script", index))
	}

	b.packet.Outputs[index] = createOutputInfo(txOut, derivation)

	return nil
}

// expectAssembling fails unless inputs and outputs may still be added.
func (b *Builder) expectAssembling() error {
	switch b.state {
	case StateDraft, StateInputsAdded, StateOutputsAdded, StateReady:
		return nil

	default:
		return &PsbtServiceError{
			Reason: ReasonState,
			Err:    fmt.Errorf("%w: %v", ErrBadState, b.state),
		}
	}
}

// assemblyState derives the pre-signing state from the packet contents.
func (b *Builder) assemblyState() State {
	hasInputs := len(b.packet.UnsignedTx.TxIn) > 0
	hasOutputs := len(b.packet.UnsignedTx.TxOut) > 0

	switch {
	case hasInputs && hasOutputs:
		return StateReady
	case hasInputs:
		return StateInputsAdded
	case hasOutputs:
		return StateOutputsAdded
	default:
		return StateDraft
	}
}

// fail moves the builder to StateErrored and wraps err.
func (b *Builder) fail(reason string, err error) error {
	log.Debugf("PSBT transition from %v failed: %s: %v", b.state, reason,
		err)

	b.state = StateErrored

	return &PsbtServiceError{Reason: reason, Err: err}
}

// newDerivation builds the BIP32 derivation record of params.
func newDerivation(params InputParams) (*psbt.Bip32Derivation, error) {
	pubKey, err := btcec.ParsePubKey(params.PubKey)
	if err != nil {
		return nil, fmt.Errorf("invalid public key: %w", err)
	}

	return &psbt.Bip32Derivation{
		PubKey:               pubKey.SerializeCompressed(),
		MasterKeyFingerprint: params.MasterFingerprint,
		Bip32Path:            []uint32(params.HDPath.Child()),
	}, nil
}

// checkInputScript checks that the input script is a witness output locked
// to pubKey and reports whether it is a taproot output.
func checkInputScript(params InputParams, pubKey []byte) (bool, error) {
	script := params.Script
	keyHash := btcutil.Hash160(pubKey)

	switch {
	case txscript.IsPayToPubKeyHash(script):
		return false, ErrLegacyInput

	case txscript.IsPayToWitnessPubKeyHash(script):
		if !bytes.Equal(script[2:], keyHash) {
			return false, ErrKeyMismatch
		}

		return false, nil

	case txscript.IsPayToScriptHash(script):
		redeem := params.RedeemScript
		if !txscript.IsPayToWitnessPubKeyHash(redeem) ||
			!bytes.Equal(redeem[2:], keyHash) ||
			!bytes.Equal(script[2:22], btcutil.Hash160(redeem)) {

			return false, fmt.Errorf("%w: redeem script does not "+
				"match", ErrKeyMismatch)
		}

		return false, nil

	case txscript.IsPayToTaproot(script):
		internalKey, err := btcec.ParsePubKey(pubKey)
		if err != nil {
			return false, err
		}

		outputKey := txscript.ComputeTaprootKeyNoScript(internalKey)
		if !bytes.Equal(script[2:], schnorr.SerializePubKey(outputKey)) {
			return false, ErrKeyMismatch
		}

		return true, nil

	default:
		return false, ErrUnknownScript
	}
}

// checkUniqueOutPoints fails if the transaction spends an outpoint twice.
func checkUniqueOutPoints(tx *wire.MsgTx) error {
	seen := make(map[wire.OutPoint]struct{}, len(tx.TxIn))
	for _, txIn := range tx.TxIn {
		if _, ok := seen[txIn.PreviousOutPoint]; ok {
			return fmt.Errorf("duplicate input %v",
				txIn.PreviousOutPoint)
		}
		seen[txIn.PreviousOutPoint] = struct{}{}
	}

	return nil
}

// addInputInfoSegWitV0 adds the UTXO and BIP32 derivation info for a SegWit
// v0 PSBT input (p2wkh, np2wkh).
func addInputInfoSegWitV0(in *psbt.PInput, utxo *wire.TxOut,
	derivation *psbt.Bip32Derivation, redeemScript []byte) {

	in.WitnessUtxo = utxo
	in.SighashType = txscript.SigHashAll
	in.Bip32Derivation = []*psbt.Bip32Derivation{derivation}

	// Nested P2WKH needs the redeem script so an offline signer can
	// compute the script code. For native P2WKH this is nil.
	if len(redeemScript) != 0 {
		in.RedeemScript = bytes.Clone(redeemScript)
	}
}

// addInputInfoSegWitV1 adds the UTXO and BIP32 derivation info for a SegWit v1
// PSBT input (p2tr key path).
func addInputInfoSegWitV1(in *psbt.PInput, utxo *wire.TxOut,
	derivation *psbt.Bip32Derivation) {

	in.WitnessUtxo = utxo
	in.SighashType = txscript.SigHashDefault
	in.Bip32Derivation = []*psbt.Bip32Derivation{derivation}

	xOnly := derivation.PubKey[1:]
	in.TaprootBip32Derivation = []*psbt.TaprootBip32Derivation{{
		XOnlyPubKey:          xOnly,
		MasterKeyFingerprint: derivation.MasterKeyFingerprint,
		Bip32Path:            derivation.Bip32Path,
	}}
	in.TaprootInternalKey = xOnly
}

// createOutputInfo creates the BIP32 derivation info for a change output.
func createOutputInfo(txOut *wire.TxOut,
	derivation *psbt.Bip32Derivation) psbt.POutput {

	out := psbt.POutput{
		Bip32Derivation: []*psbt.Bip32Derivation{derivation},
	}

	if txscript.IsPayToTaproot(txOut.PkScript) {
		xOnly := derivation.PubKey[1:]
		out.TaprootBip32Derivation = []*psbt.TaprootBip32Derivation{{
			XOnlyPubKey:          xOnly,
			MasterKeyFingerprint: derivation.MasterKeyFingerprint,
			Bip32Path:            derivation.Bip32Path,
		}}
		out.TaprootInternalKey = xOnly
	}

	return out
}
