package hdkey

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/snapwallet/btcengine/waddrmgr"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tyler-smith/go-bip39"
)

const (
	// testMnemonic is the BIP84 test vector mnemonic.
	testMnemonic = "abandon abandon abandon abandon abandon abandon " +
		"abandon abandon abandon abandon abandon about"

	// bip84FirstPubKey is m/84'/0'/0'/0/0 of testMnemonic.
	bip84FirstPubKey = "0330d54fd0dd420a6e5f8d3624f5f3482cae350f79d5f0753b" +
		"f5beef9c2d91af3c"

	// testMasterFingerprint is 73c5da0a read little-endian.
	testMasterFingerprint uint32 = 0x0adac573
)

var (
	errMock = errors.New("mock error")

	chainParams = &chaincfg.MainNetParams
)

var _ HostEntropyProvider = (*mockHost)(nil)

// mockHost is a mock implementation of HostEntropyProvider.
type mockHost struct {
	mock.Mock
}

func (m *mockHost) Bip32Entropy(ctx context.Context,
	path waddrmgr.DerivationPath, curve Curve) (*NodeMaterial, error) {

	args := m.Called(ctx, path, curve)
	material, _ := args.Get(0).(*NodeMaterial)

	return material, args.Error(1)
}

func (m *mockHost) Bip44Entropy(ctx context.Context,
	coinType uint32) (*Bip44Material, error) {

	args := m.Called(ctx, coinType)
	material, _ := args.Get(0).(*Bip44Material)

	return material, args.Error(1)
}

// testSeed returns the seed of testMnemonic.
func testSeed(t *testing.T) []byte {
	t.Helper()

	seed, err := bip39.NewSeedWithErrorChecking(testMnemonic, "")
	require.NoError(t, err)

	return seed
}

// materialAt derives the host material at path from testMnemonic.
func materialAt(t *testing.T, path waddrmgr.DerivationPath) *NodeMaterial {
	t.Helper()

	master, err := FromSeed(testSeed(t), chainParams)
	require.NoError(t, err)

	node, err := master.DerivePath(path)
	require.NoError(t, err)

	privKey, err := node.PrivateKey()
	require.NoError(t, err)

	return &NodeMaterial{
		PrivateKey:        privKey.Serialize(),
		ChainCode:         node.ChainCode(),
		PublicKey:         node.PubKey(),
		Depth:             node.Depth(),
		ChildIndex:        node.ChildIndex(),
		ParentFingerprint: node.ParentFingerprint(),
		MasterFingerprint: node.MasterFingerprint(),
	}
}

func mustParsePath(t *testing.T, path string) waddrmgr.DerivationPath {
	t.Helper()

	parsed, err := waddrmgr.ParsePath(path)
	require.NoError(t, err)

	return parsed
}

func mustDecodeHex(t *testing.T, s string) []byte {
	t.Helper()

	b, err := hex.DecodeString(s)
	require.NoError(t, err)

	return b
}
