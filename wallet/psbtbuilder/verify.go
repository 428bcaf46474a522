package psbtbuilder

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Verify checks every input signature against the public key recorded in the
// PSBT and the output script it spends. A builder in StateSigned moves to
// StateVerified on success and to StateErrored otherwise.
func (b *Builder) Verify() error {
	if b.state != StateSigned && b.state != StateVerified {
		return &PsbtServiceError{
			Reason: ReasonState,
			Err:    fmt.Errorf("%w: %v", ErrBadState, b.state),
		}
	}

	fetcher := prevOutFetcher(b.packet)
	sigHashes := txscript.NewTxSigHashes(b.packet.UnsignedTx, fetcher)

	for idx := range b.packet.Inputs {
		pIn := &b.packet.Inputs[idx]
		if pIn.WitnessUtxo == nil {
			return b.fail(ReasonInvalidSignature, fmt.Errorf("input "+
				"%d: %w", idx, ErrUnknownScript))
		}

		var err error
		if txscript.IsPayToTaproot(pIn.WitnessUtxo.PkScript) {
			err = verifyTaprootInput(pIn, idx, sigHashes, b)
		} else {
			err = verifyWitnessV0Input(pIn, idx, sigHashes, b)
		}
		if err != nil {
			return b.fail(ReasonInvalidSignature, fmt.Errorf("input "+
				"%d: %w", idx, err))
		}
	}

	b.state = StateVerified

	return nil
}

// verifyWitnessV0Input checks the partial signatures of a P2WPKH or nested
// P2WPKH input.
func verifyWitnessV0Input(pIn *psbt.PInput, idx int,
	sigHashes *txscript.TxSigHashes, b *Builder) error {

	if len(pIn.PartialSigs) == 0 {
		return ErrNoSignature
	}

	pkScript := pIn.WitnessUtxo.PkScript
	program := witnessProgram(pIn)

	switch {
	case txscript.IsPayToWitnessPubKeyHash(pkScript):
		if len(pIn.RedeemScript) != 0 {
			return fmt.Errorf("%w: redeem script on native input",
				ErrUnknownScript)
		}

	case txscript.IsPayToScriptHash(pkScript):
		if !txscript.IsPayToWitnessPubKeyHash(program) ||
			!bytes.Equal(pkScript[2:22], btcutil.Hash160(program)) {

			return fmt.Errorf("%w: redeem script does not match",
				ErrKeyMismatch)
		}

	case txscript.IsPayToPubKeyHash(pkScript):
		return ErrLegacyInput

	default:
		return ErrUnknownScript
	}

	for _, partial := range pIn.PartialSigs {
		if len(partial.Signature) < 2 {
			return ErrInvalidSignature
		}

		pubKey, err := secp256k1.ParsePubKey(partial.PubKey)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}

		if !bytes.Equal(program[2:], btcutil.Hash160(partial.PubKey)) {
			return ErrKeyMismatch
		}

		der := partial.Signature[:len(partial.Signature)-1]
		hashType := txscript.SigHashType(
			partial.Signature[len(partial.Signature)-1],
		)

		sig, err := ecdsa.ParseDERSignature(der)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}

		sigHash, err := txscript.CalcWitnessSigHash(
			program, sigHashes, hashType, b.packet.UnsignedTx, idx,
			pIn.WitnessUtxo.Value,
		)
		if err != nil {
			return err
		}

		if !sig.Verify(sigHash, pubKey) {
			return ErrInvalidSignature
		}
	}

	return nil
}

// verifyTaprootInput checks the key spend signature of a taproot input
// against the output key of the script it spends.
func verifyTaprootInput(pIn *psbt.PInput, idx int,
	sigHashes *txscript.TxSigHashes, b *Builder) error {

	rawSig := pIn.TaprootKeySpendSig
	switch len(rawSig) {
	case 0:
		return ErrNoSignature

	case schnorr.SignatureSize, schnorr.SignatureSize + 1:

	default:
		return ErrInvalidSignature
	}

	hashType := txscript.SigHashDefault
	if len(rawSig) == schnorr.SignatureSize+1 {
		hashType = txscript.SigHashType(rawSig[schnorr.SignatureSize])
	}

	outputKey, err := schnorr.ParsePubKey(pIn.WitnessUtxo.PkScript[2:34])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	sig, err := schnorr.ParseSignature(rawSig[:schnorr.SignatureSize])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	sigHash, err := txscript.CalcTaprootSignatureHash(
		sigHashes, hashType, b.packet.UnsignedTx, idx,
		prevOutFetcher(b.packet),
	)
	if err != nil {
		return err
	}

	if !sig.Verify(sigHash, outputKey) {
		return ErrInvalidSignature
	}

	return nil
}
