package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/davecgh/go-spew/spew"
	"github.com/snapwallet/btcengine/hdkey"
	"github.com/snapwallet/btcengine/hdkey/hostentropy"
	"github.com/snapwallet/btcengine/waddrmgr"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	// testMnemonic is the mnemonic of the BIP84 test vectors.
	testMnemonic = "abandon abandon abandon abandon abandon abandon " +
		"abandon abandon abandon abandon abandon about"

	// testMasterFingerprint is 73c5da0a read little-endian.
	testMasterFingerprint uint32 = 0x0adac573
)

var (
	errMock = errors.New("mock error")

	chainParams = chaincfg.MainNetParams
)

// hardened returns the hardened form of index.
func hardened(index uint32) uint32 {
	return index + hdkeychain.HardenedKeyStart
}

// newTestHost returns a mnemonic host for testMnemonic on params.
func newTestHost(t *testing.T,
	params *chaincfg.Params) *hostentropy.Mnemonic {

	t.Helper()

	host, err := hostentropy.New(testMnemonic, "", params)
	require.NoError(t, err)

	return host
}

// newTestManager returns a manager deriving from testMnemonic through the
// BIP44 seed interface.
func newTestManager(t *testing.T, params *chaincfg.Params) *Manager {
	t.Helper()

	host := newTestHost(t, params)

	m, err := NewManager(Config{
		Params:  params,
		Deriver: hdkey.NewBip44Deriver(host, params),
	})
	require.NoError(t, err)

	return m
}

// unlockTestAccount unlocks the account at index on mainnet.
func unlockTestAccount(t *testing.T, index uint32,
	st waddrmgr.ScriptType) (*Manager, *Account) {

	t.Helper()

	m := newTestManager(t, &chainParams)

	account, err := m.Unlock(context.Background(), index, st)
	require.NoError(t, err)

	return m, account
}

// requireValidTx runs the script engine over every input of tx, each
// spending an output of value locked by pkScript.
func requireValidTx(t *testing.T, tx *wire.MsgTx, pkScript []byte,
	values []btcutil.Amount) {

	t.Helper()

	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for idx, txIn := range tx.TxIn {
		fetcher.AddPrevOut(
			txIn.PreviousOutPoint,
			wire.NewTxOut(int64(values[idx]), pkScript),
		)
	}
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	for idx := range tx.TxIn {
		vm, err := txscript.NewEngine(
			pkScript, tx, idx, txscript.StandardVerifyFlags, nil,
			sigHashes, int64(values[idx]), fetcher,
		)
		require.NoError(t, err)
		require.NoError(t, vm.Execute(), "input %d of %v", idx,
			spew.Sdump(tx))
	}
}

var _ hdkey.Deriver = (*mockDeriver)(nil)

// mockDeriver is a mock implementation of hdkey.Deriver.
type mockDeriver struct {
	mock.Mock
}

func (m *mockDeriver) Root(ctx context.Context,
	path waddrmgr.DerivationPath) (*hdkey.Node, error) {

	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*hdkey.Node), args.Error(1)
}

func (m *mockDeriver) Child(root *hdkey.Node, index uint32) (*hdkey.Node,
	error) {

	args := m.Called(root, index)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*hdkey.Node), args.Error(1)
}
