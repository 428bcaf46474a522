// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package psbtbuilder

import (
	"errors"
	"fmt"
)

// Reasons reported by PsbtServiceError.
const (
	// ReasonAddInputs is reported when an input cannot be added.
	ReasonAddInputs = "Failed to add inputs in PSBT"

	// ReasonAddOutputs is reported when an output cannot be added.
	ReasonAddOutputs = "Failed to add outputs in PSBT"

	// ReasonInvalidSignature is reported when an input signature does not
	// verify against the public key recorded in the PSBT.
	ReasonInvalidSignature = "Invalid signature to sign the PSBT's inputs"

	// ReasonSign is reported when the signer cannot produce a signature.
	ReasonSign = "Failed to sign the PSBT's inputs"

	// ReasonTooLarge is reported when the final transaction is heavier than
	// the standard weight limit.
	ReasonTooLarge = "Transaction is too large"

	// ReasonFinalize is reported for any other finalization failure.
	ReasonFinalize = "Failed to finalize the PSBT"

	// ReasonSerialize is reported when the PSBT cannot be encoded or
	// decoded.
	ReasonSerialize = "Failed to serialize the PSBT"

	// ReasonState is reported when an operation is not allowed in the
	// builder's current state.
	ReasonState = "Invalid PSBT state"
)

var (
	// ErrBadState is returned when an operation is attempted in a state
	// that does not allow it.
	ErrBadState = errors.New("operation not allowed in current state")

	// ErrLegacyInput is returned for P2PKH inputs, which need the full
	// previous transaction the engine does not have.
	ErrLegacyInput = errors.New("legacy p2pkh inputs are not supported")

	// ErrUnknownScript is returned for an input script the builder cannot
	// sign or verify.
	ErrUnknownScript = errors.New("unsupported input script")

	// ErrNoSignature is returned when an input has no signature after
	// signing.
	ErrNoSignature = errors.New("input has no signature")

	// ErrInvalidSignature is returned when a signature does not verify.
	ErrInvalidSignature = errors.New("signature does not verify")

	// ErrKeyMismatch is returned when the key a signer derives for a path
	// differs from the key recorded for that path.
	ErrKeyMismatch = errors.New("derived key does not match input key")

	// ErrNoInputs is returned when AddInputs is called without UTXOs.
	ErrNoInputs = errors.New("no inputs")

	// ErrNoOutputs is returned when AddOutputs is called without targets.
	ErrNoOutputs = errors.New("no outputs")
)

// PsbtServiceError is returned for every PSBT assembly, signing or
// finalization failure.
type PsbtServiceError struct {
	// Reason is the human readable failure.
	Reason string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *PsbtServiceError) Error() string {
	if e.Err == nil {
		return e.Reason
	}

	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

// Unwrap returns the underlying cause.
func (e *PsbtServiceError) Unwrap() error {
	return e.Err
}
