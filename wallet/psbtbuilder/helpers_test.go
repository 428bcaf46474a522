package psbtbuilder

import (
	"context"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/snapwallet/btcengine/hdkey"
	"github.com/snapwallet/btcengine/waddrmgr"
	"github.com/snapwallet/btcengine/wallet/coinselect"
	"github.com/stretchr/testify/require"
	"github.com/tyler-smith/go-bip39"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon " +
	"abandon abandon abandon abandon abandon about"

var chainParams = &chaincfg.MainNetParams

// testKey signs with the private key of an hdkey node.
type testKey struct {
	node *hdkey.Node

	// tamper flips a bit of every signature when set.
	tamper bool
}

var _ KeySigner = (*testKey)(nil)

func (k *testKey) PubKey() []byte {
	return k.node.PubKey()
}

func (k *testKey) Sign(_ context.Context, hash []byte) ([]byte, error) {
	priv, err := k.node.PrivateKey()
	if err != nil {
		return nil, err
	}

	sig := ecdsa.Sign(priv, hash).Serialize()
	if k.tamper {
		sig[len(sig)-1] ^= 0x01
	}

	return sig, nil
}

func (k *testKey) SignSchnorr(_ context.Context, hash,
	root []byte) ([]byte, error) {

	priv, err := k.node.PrivateKey()
	if err != nil {
		return nil, err
	}

	sig, err := schnorr.Sign(txscript.TweakTaprootPrivKey(*priv, root), hash)
	if err != nil {
		return nil, err
	}

	raw := sig.Serialize()
	if k.tamper {
		raw[len(raw)-1] ^= 0x01
	}

	return raw, nil
}

// testSigner derives keys from a master node.
type testSigner struct {
	master      *hdkey.Node
	fingerprint uint32
	tamper      bool
}

var _ HDSigner = (*testSigner)(nil)

func (s *testSigner) MasterFingerprint() uint32 {
	return s.fingerprint
}

func (s *testSigner) DeriveKey(path waddrmgr.DerivationPath) (KeySigner,
	error) {

	node, err := s.master.DerivePath(path)
	if err != nil {
		return nil, err
	}

	return &testKey{node: node, tamper: s.tamper}, nil
}

// newTestSigner returns a signer over the test mnemonic.
func newTestSigner(t *testing.T) *testSigner {
	t.Helper()

	seed := bip39.NewSeed(testMnemonic, "")
	master, err := hdkey.FromSeed(seed, chainParams)
	require.NoError(t, err)

	return &testSigner{
		master:      master,
		fingerprint: master.MasterFingerprint(),
	}
}

// hardened returns the hardened form of index.
func hardened(index uint32) uint32 {
	return index + hdkeychain.HardenedKeyStart
}

// inputParams returns the input parameters of the first receive key of the
// default account of st.
func inputParams(t *testing.T, signer *testSigner,
	st waddrmgr.ScriptType) InputParams {

	t.Helper()

	schema, err := waddrmgr.LookupScriptType(st)
	require.NoError(t, err)

	path := waddrmgr.DerivationPath{
		hardened(schema.Purpose), hardened(0), hardened(0), 0, 0,
	}

	node, err := signer.master.DerivePath(path)
	require.NoError(t, err)

	script, err := waddrmgr.BuildScript(st, node.PubKey(), chainParams)
	require.NoError(t, err)

	return InputParams{
		MasterFingerprint: signer.fingerprint,
		PubKey:            node.PubKey(),
		Script:            script.PkScript,
		RedeemScript:      script.RedeemScript,
		HDPath:            path,
	}
}

// destAddress returns a P2WPKH address not owned by the test signer.
func destAddress(t *testing.T) string {
	t.Helper()

	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		make([]byte, 20), chainParams,
	)
	require.NoError(t, err)

	return addr.EncodeAddress()
}

// testUtxo returns a UTXO with a hash derived from seed.
func testUtxo(seed string, index uint32,
	value btcutil.Amount) coinselect.Utxo {

	return coinselect.Utxo{
		BlockHeight: 800_000,
		TxHash:      strings.Repeat(seed, 64/len(seed)),
		OutputIndex: index,
		Value:       value,
	}
}

// readyBuilder returns a builder spending one UTXO of value to dest with the
// rest going to fee.
func readyBuilder(t *testing.T, params InputParams, value,
	send btcutil.Amount) *Builder {

	t.Helper()

	b, err := New(chainParams)
	require.NoError(t, err)

	err = b.AddInputs([]coinselect.Utxo{testUtxo("ab", 0, value)}, params)
	require.NoError(t, err)

	err = b.AddOutputs([]coinselect.SpendTarget{{
		Address: destAddress(t), Value: send,
	}})
	require.NoError(t, err)
	require.Equal(t, StateReady, b.State())

	return b
}

// requireValidTx runs the script engine over every input of tx.
func requireValidTx(t *testing.T, tx *wire.MsgTx, prevOuts []*wire.TxOut) {
	t.Helper()

	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for idx, txIn := range tx.TxIn {
		fetcher.AddPrevOut(txIn.PreviousOutPoint, prevOuts[idx])
	}
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	for idx, prevOut := range prevOuts {
		vm, err := txscript.NewEngine(
			prevOut.PkScript, tx, idx, txscript.StandardVerifyFlags,
			nil, sigHashes, prevOut.Value, fetcher,
		)
		require.NoError(t, err)
		require.NoError(t, vm.Execute(), "input %d", idx)
	}
}
