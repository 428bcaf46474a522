package wallet

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/snapwallet/btcengine/waddrmgr"
	"github.com/stretchr/testify/require"
)

// TestSignerDerivePath checks relative and absolute derivation from the
// scope signer.
func TestSignerDerivePath(t *testing.T) {
	t.Parallel()

	_, account := unlockTestAccount(t, 2, waddrmgr.P2WPKH)
	scope := account.Signer()
	require.Equal(t, "m/84'/0'", scope.Path().String())

	testCases := []struct {
		name string
		path string
	}{
		{name: "relative", path: "0'/0/2"},
		{name: "relative h", path: "0h/0/2"},
		{name: "absolute", path: "m/84'/0'/0'/0/2"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			signer, err := scope.DerivePath(tc.path)
			require.NoError(t, err)

			require.Equal(t, account.PubKey(), signer.PubKey())
			require.Equal(t, account.HDPath(), signer.Path())
			require.Equal(t, testMasterFingerprint,
				signer.MasterFingerprint())
		})
	}
}

// TestSignerDerivePathErrors checks the rejected paths.
func TestSignerDerivePathErrors(t *testing.T) {
	t.Parallel()

	_, account := unlockTestAccount(t, 0, waddrmgr.P2WPKH)
	scope := account.Signer()

	testCases := []struct {
		name  string
		path  string
		cause error
	}{
		{name: "empty", path: "", cause: waddrmgr.ErrInvalidPath},
		{name: "letters", path: "0'/x/1", cause: waddrmgr.ErrInvalidPath},
		{name: "empty segment", path: "0'//1", cause: waddrmgr.ErrInvalidPath},
		{
			name:  "other scope",
			path:  "m/49'/0'/0'/0/0",
			cause: ErrPathOutsideSigner,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := scope.DerivePath(tc.path)
			require.ErrorIs(t, err, tc.cause)
		})
	}

	require.EqualError(t, waddrmgr.ErrInvalidPath, "invalid path")
}

// TestSignerSignVerify checks ECDSA signing and verification.
func TestSignerSignVerify(t *testing.T) {
	t.Parallel()

	// Arrange.
	_, account := unlockTestAccount(t, 0, waddrmgr.P2WPKH)
	hash := chainhash.HashB([]byte("message"))

	// Act.
	sig, err := account.Sign(context.Background(), hash)

	// Assert.
	require.NoError(t, err)
	require.True(t, account.Verify(hash, sig))

	other := chainhash.HashB([]byte("other message"))
	require.False(t, account.Verify(other, sig))

	sig[len(sig)-1] ^= 0x01
	require.False(t, account.Verify(hash, sig))
	require.False(t, account.Verify(hash, []byte{0x30}))

	_, err = account.Sign(context.Background(), hash[:31])
	require.ErrorIs(t, err, ErrInvalidHash)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = account.Sign(ctx, hash)
	require.ErrorIs(t, err, context.Canceled)
}

// TestSignerSignSchnorr checks that the schnorr signature verifies against
// the BIP86 output key.
func TestSignerSignSchnorr(t *testing.T) {
	t.Parallel()

	_, account := unlockTestAccount(t, 0, waddrmgr.P2TR)
	hash := chainhash.HashB([]byte("taproot"))

	key, err := account.Signer().DerivePath("0'/0/0")
	require.NoError(t, err)

	sig, err := key.SignSchnorr(context.Background(), hash, nil)
	require.NoError(t, err)

	parsed, err := schnorr.ParseSignature(sig)
	require.NoError(t, err)

	internalKey := key.node.PublicKey()
	outputKey := txscript.ComputeTaprootKeyNoScript(internalKey)
	require.True(t, parsed.Verify(hash, outputKey))
	require.False(t, parsed.Verify(hash, internalKey))

	pkScript, err := account.OutputScript()
	require.NoError(t, err)
	require.Equal(t, schnorr.SerializePubKey(outputKey), pkScript[2:])
}

// TestSignerPublicOnly checks that a neutered node cannot sign.
func TestSignerPublicOnly(t *testing.T) {
	t.Parallel()

	_, account := unlockTestAccount(t, 0, waddrmgr.P2WPKH)

	neutered, err := account.key.node.Neuter()
	require.NoError(t, err)

	signer := NewSigner(neutered)
	_, err = signer.Sign(
		context.Background(), chainhash.HashB([]byte("message")),
	)
	require.ErrorIs(t, err, ErrNoSigningKey)
}
