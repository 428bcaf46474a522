package wallet

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/snapwallet/btcengine/waddrmgr"
	"github.com/stretchr/testify/require"
)

// TestAccountScriptCache checks that the output script is built once and
// that every accessor reads the same script.
func TestAccountScriptCache(t *testing.T) {
	t.Parallel()

	_, account := unlockTestAccount(t, 0, waddrmgr.P2SHP2WPKH)
	require.True(t, account.script.IsNone())

	first, err := account.Address()
	require.NoError(t, err)
	require.True(t, account.script.IsSome())

	cached, err := account.script.UnwrapOrErr(ErrPaymentAddressMissing)
	require.NoError(t, err)

	second, err := account.Address()
	require.NoError(t, err)
	require.Equal(t, first, second)

	pkScript, err := account.OutputScript()
	require.NoError(t, err)
	require.Equal(t, cached.PkScript, pkScript)
	require.True(t, txscript.IsPayToScriptHash(pkScript))

	redeem, err := account.RedeemScript()
	require.NoError(t, err)
	require.True(t, txscript.IsPayToWitnessPubKeyHash(redeem))

	// The returned scripts are copies.
	pkScript[0] ^= 0xff
	again, err := account.OutputScript()
	require.NoError(t, err)
	require.Equal(t, cached.PkScript, again)
}

// TestAccountRedeemScript checks that only nested accounts have a redeem
// script.
func TestAccountRedeemScript(t *testing.T) {
	t.Parallel()

	for _, st := range []waddrmgr.ScriptType{
		waddrmgr.P2PKH, waddrmgr.P2WPKH, waddrmgr.P2TR,
	} {
		_, account := unlockTestAccount(t, 0, st)

		redeem, err := account.RedeemScript()
		require.NoError(t, err)
		require.Empty(t, redeem, st.String())
	}
}

// TestNewAccountErrors checks the validation of account parameters.
func TestNewAccountErrors(t *testing.T) {
	t.Parallel()

	_, account := unlockTestAccount(t, 0, waddrmgr.P2WPKH)
	valid := AccountParams{
		MasterFingerprint: account.MasterFingerprint(),
		HDPath:            account.HDPath(),
		PubKeyHex:         account.PubKeyHex(),
		Params:            &chainParams,
		ScriptType:        waddrmgr.P2WPKH,
		Signer:            account.Signer(),
		Key:               account.key,
	}

	_, err := NewAccount(valid)
	require.NoError(t, err)

	testCases := []struct {
		name   string
		modify func(*AccountParams)
		cause  error
	}{
		{
			name:   "bad hex",
			modify: func(p *AccountParams) { p.PubKeyHex = "zz" },
			cause:  waddrmgr.ErrInvalidPubKey,
		},
		{
			name: "other key",
			modify: func(p *AccountParams) {
				p.PubKeyHex = "03aaeb52dd7494c361049de67cc680e83ebcbbbdb" +
					"eb13637d92cd845f70308af5e"
			},
			cause: waddrmgr.ErrInvalidPubKey,
		},
		{
			name: "unknown script type",
			modify: func(p *AccountParams) {
				p.ScriptType = waddrmgr.ScriptTypeUnknown
			},
			cause: waddrmgr.ErrUnsupportedScriptType,
		},
		{
			name:   "no network",
			modify: func(p *AccountParams) { p.Params = nil },
			cause:  waddrmgr.ErrUnknownNetwork,
		},
		{
			name:   "no signer",
			modify: func(p *AccountParams) { p.Key = nil },
			cause:  ErrNoSigningKey,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			params := valid
			tc.modify(&params)

			_, err := NewAccount(params)
			require.ErrorIs(t, err, tc.cause)
		})
	}
}

// TestCapability checks the CAIP-2 chain ids.
func TestCapability(t *testing.T) {
	t.Parallel()

	require.Equal(
		t, "bip122:000000000019d6689c085ae165831e93",
		Capability(&chaincfg.MainNetParams),
	)
	require.Equal(
		t, "bip122:000000000933ea01ad0ee984209779ba",
		Capability(&chaincfg.TestNet3Params),
	)
}
