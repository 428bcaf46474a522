// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package psbtbuilder

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/snapwallet/btcengine/waddrmgr"
)

// KeySigner signs digests with one private key.
type KeySigner interface {
	// PubKey returns the compressed public key.
	PubKey() []byte

	// Sign returns a DER encoded ECDSA signature of a 32-byte digest.
	Sign(ctx context.Context, hash []byte) ([]byte, error)

	// SignSchnorr returns a BIP340 signature of a 32-byte digest with the
	// key tweaked for the given taproot script root. A nil root selects the
	// BIP86 key-path-only tweak.
	SignSchnorr(ctx context.Context, hash, tapScriptRoot []byte) ([]byte,
		error)
}

// HDSigner hands out key signers for paths below one master key.
type HDSigner interface {
	// MasterFingerprint returns the fingerprint of the master key.
	MasterFingerprint() uint32

	// DeriveKey returns the signer of the key at an absolute path.
	DeriveKey(path waddrmgr.DerivationPath) (KeySigner, error)
}

// SignAndVerify signs every input with keys derived from signer according
// to each input's recorded BIP32 derivation, then verifies every signature
// against the recorded public keys without consulting the signer.
func (b *Builder) SignAndVerify(ctx context.Context, signer HDSigner) error {
	if b.state != StateReady {
		return &PsbtServiceError{
			Reason: ReasonState,
			Err:    fmt.Errorf("%w: %v", ErrBadState, b.state),
		}
	}

	if err := b.sign(ctx, signer); err != nil {
		var svcErr *PsbtServiceError
		if errors.As(err, &svcErr) {
			return b.fail(svcErr.Reason, svcErr.Err)
		}

		return b.fail(ReasonSign, err)
	}
	b.state = StateSigned

	return b.Verify()
}

// sign adds a signature to every input.
func (b *Builder) sign(ctx context.Context, signer HDSigner) error {
	tx := b.packet.UnsignedTx
	fetcher := prevOutFetcher(b.packet)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	fingerprint := signer.MasterFingerprint()

	for idx := range b.packet.Inputs {
		pIn := &b.packet.Inputs[idx]
		if pIn.WitnessUtxo == nil {
			return fmt.Errorf("input %d: %w", idx, ErrUnknownScript)
		}

		var (
			signed bool
			err    error
		)
		if txscript.IsPayToTaproot(pIn.WitnessUtxo.PkScript) {
			signed, err = signTaprootInput(
				ctx, signer, fingerprint, pIn, idx, sigHashes,
				b.packet,
			)
		} else {
			signed, err = signWitnessV0Input(
				ctx, signer, fingerprint, pIn, idx, sigHashes,
				b.packet,
			)
		}
		if err != nil {
			return fmt.Errorf("input %d: %w", idx, err)
		}

		// An input none of our derivations matches cannot be finished by
		// this signer.
		if !signed {
			return &PsbtServiceError{
				Reason: ReasonInvalidSignature,
				Err: fmt.Errorf("input %d: %w", idx,
					ErrNoSignature),
			}
		}
	}

	log.Debugf("Signed %d inputs", len(b.packet.Inputs))

	return nil
}

// signWitnessV0Input adds a partial signature for every BIP32 derivation of
// the input that belongs to the signer.
func signWitnessV0Input(ctx context.Context, signer HDSigner,
	fingerprint uint32, pIn *psbt.PInput, idx int,
	sigHashes *txscript.TxSigHashes, packet *psbt.Packet) (bool, error) {

	hashType := pIn.SighashType
	if hashType == 0 {
		hashType = txscript.SigHashAll
	}

	program := witnessProgram(pIn)

	signed := false
	for _, derivation := range pIn.Bip32Derivation {
		if derivation.MasterKeyFingerprint != fingerprint {
			continue
		}

		key, err := signer.DeriveKey(derivation.Bip32Path)
		if err != nil {
			return false, err
		}

		if !bytes.Equal(key.PubKey(), derivation.PubKey) {
			return false, ErrKeyMismatch
		}

		sigHash, err := txscript.CalcWitnessSigHash(
			program, sigHashes, hashType, packet.UnsignedTx, idx,
			pIn.WitnessUtxo.Value,
		)
		if err != nil {
			return false, err
		}

		sig, err := key.Sign(ctx, sigHash)
		if err != nil {
			return false, err
		}

		pIn.PartialSigs = append(pIn.PartialSigs, &psbt.PartialSig{
			PubKey:    derivation.PubKey,
			Signature: append(sig, byte(hashType)),
		})
		signed = true
	}

	return signed, nil
}

// signTaprootInput adds the key spend signature of a BIP86 taproot input.
func signTaprootInput(ctx context.Context, signer HDSigner,
	fingerprint uint32, pIn *psbt.PInput, idx int,
	sigHashes *txscript.TxSigHashes, packet *psbt.Packet) (bool, error) {

	for _, derivation := range pIn.TaprootBip32Derivation {
		if derivation.MasterKeyFingerprint != fingerprint {
			continue
		}

		key, err := signer.DeriveKey(derivation.Bip32Path)
		if err != nil {
			return false, err
		}

		if !bytes.Equal(key.PubKey()[1:], derivation.XOnlyPubKey) {
			return false, ErrKeyMismatch
		}

		sigHash, err := txscript.CalcTaprootSignatureHash(
			sigHashes, pIn.SighashType, packet.UnsignedTx, idx,
			prevOutFetcher(packet),
		)
		if err != nil {
			return false, err
		}

		sig, err := key.SignSchnorr(ctx, sigHash, nil)
		if err != nil {
			return false, err
		}

		if pIn.SighashType != txscript.SigHashDefault {
			sig = append(sig, byte(pIn.SighashType))
		}
		pIn.TaprootKeySpendSig = sig

		return true, nil
	}

	return false, nil
}

// witnessProgram returns the program whose script code is signed: the
// redeem script for nested inputs, the output script otherwise.
func witnessProgram(pIn *psbt.PInput) []byte {
	if len(pIn.RedeemScript) != 0 {
		return pIn.RedeemScript
	}

	return pIn.WitnessUtxo.PkScript
}

// prevOutFetcher returns a txscript.PrevOutputFetcher built from the witness
// UTXOs of a PSBT packet.
func prevOutFetcher(packet *psbt.Packet) *txscript.MultiPrevOutFetcher {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for idx, txIn := range packet.UnsignedTx.TxIn {
		in := packet.Inputs[idx]

		// Skip any input that has no UTXO.
		if in.WitnessUtxo == nil {
			continue
		}

		fetcher.AddPrevOut(txIn.PreviousOutPoint, in.WitnessUtxo)
	}

	return fetcher
}
