package wallet

import (
	"errors"
	"fmt"
)

// Reasons reported by WalletError.
const (
	// ReasonInvalidScriptType is reported when an account is requested for
	// a script type the registry does not know.
	ReasonInvalidScriptType = "Invalid script type"

	// ReasonUnlock is reported when the keys of an account cannot be
	// derived.
	ReasonUnlock = "Failed to unlock account"

	// ReasonCreateTx is reported when a transaction request is rejected
	// before coin selection.
	ReasonCreateTx = "Failed to create transaction"
)

var (
	// ErrPaymentAddressMissing is returned when the output script of an
	// account has no address form.
	ErrPaymentAddressMissing = errors.New("Payment address is missing")

	// ErrNoSigningKey is returned when a signer was built from a public
	// only node.
	ErrNoSigningKey = errors.New("signer has no private key")

	// ErrPathOutsideSigner is returned when an absolute path does not
	// extend the path of the signer's node.
	ErrPathOutsideSigner = errors.New("path is not below the signer")

	// ErrInvalidHash is returned when a digest to sign is not 32 bytes.
	ErrInvalidHash = errors.New("hash must be 32 bytes")

	// ErrNilAccount is returned when a transaction is requested without an
	// account.
	ErrNilAccount = errors.New("nil account")

	// ErrNoRecipients is returned when a transaction request has no
	// recipients.
	ErrNoRecipients = errors.New("tx has no recipients")

	// ErrMissingFeeRate is returned when a transaction request has no fee
	// rate.
	ErrMissingFeeRate = errors.New("missing fee rate")

	// ErrFeeRateTooLarge is returned when the fee rate of a request is
	// above the configured maximum.
	ErrFeeRateTooLarge = errors.New("fee rate too large")
)

// WalletError is returned by the Manager for account level failures.
//
//nolint:revive
type WalletError struct {
	// Reason is the human readable failure.
	Reason string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *WalletError) Error() string {
	if e.Err == nil {
		return e.Reason
	}

	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

// Unwrap returns the underlying cause.
func (e *WalletError) Unwrap() error {
	return e.Err
}
