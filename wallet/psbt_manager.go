package wallet

import (
	"context"

	"github.com/snapwallet/btcengine/wallet/psbtbuilder"
)

// SignPsbt signs every input of an unsigned base64 PSBT that belongs to the
// key scope of account, verifies all signatures and returns the signed PSBT.
// A PSBT that already carries signatures is only verified.
func (m *Manager) SignPsbt(ctx context.Context, account *Account,
	b64 string) (string, error) {

	if account == nil {
		return "", &WalletError{Reason: ReasonCreateTx, Err: ErrNilAccount}
	}

	builder, err := psbtbuilder.FromBase64(m.cfg.Params, b64)
	if err != nil {
		return "", err
	}

	if builder.State() == psbtbuilder.StateSigned {
		err = builder.Verify()
	} else {
		err = builder.SignAndVerify(ctx, account.Signer())
	}
	if err != nil {
		return "", err
	}

	log.Debugf("Signed PSBT with %d inputs for %v",
		len(builder.Packet().Inputs), account)

	return builder.ToBase64()
}

// FinalizePsbt verifies every signature of a signed base64 PSBT and returns
// the hex encoded network transaction.
func (m *Manager) FinalizePsbt(b64 string) (string, error) {
	builder, err := psbtbuilder.FromBase64(m.cfg.Params, b64)
	if err != nil {
		return "", err
	}

	if err := builder.Verify(); err != nil {
		return "", err
	}

	return builder.Finalize()
}
