// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package hostentropy implements a local BIP39 mnemonic backed entropy host.
// It stands in for an external key host in tests and in the command line
// tool.
package hostentropy

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/snapwallet/btcengine/hdkey"
	"github.com/snapwallet/btcengine/waddrmgr"
	"github.com/tyler-smith/go-bip39"
)

var (
	// ErrInvalidMnemonic is returned for a mnemonic that fails the BIP39
	// word list or checksum validation.
	ErrInvalidMnemonic = errors.New("invalid mnemonic")

	// ErrCoinTypeDenied is returned when a seed is requested for a coin
	// type other than the host's network.
	ErrCoinTypeDenied = errors.New("coin type not permitted")
)

// Mnemonic releases key material derived from a BIP39 mnemonic.
type Mnemonic struct {
	seed   []byte
	params *chaincfg.Params
}

// A compile-time assertion to ensure Mnemonic implements the host interface.
var _ hdkey.HostEntropyProvider = (*Mnemonic)(nil)

// New creates a host from a mnemonic and an optional passphrase.
func New(mnemonic, passphrase string,
	params *chaincfg.Params) (*Mnemonic, error) {

	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMnemonic, err)
	}

	return &Mnemonic{seed: seed, params: params}, nil
}

// Generate creates a fresh mnemonic of the given entropy size in bits (128 to
// 256, multiple of 32) and returns the host together with its words.
func Generate(bitSize int, params *chaincfg.Params) (*Mnemonic, string,
	error) {

	entropy, err := bip39.NewEntropy(bitSize)
	if err != nil {
		return nil, "", fmt.Errorf("unable to create entropy: %w", err)
	}

	words, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, "", fmt.Errorf("unable to create mnemonic: %w", err)
	}

	host, err := New(words, "", params)
	if err != nil {
		return nil, "", err
	}

	return host, words, nil
}

// Bip32Entropy returns the extended private key at path.
func (m *Mnemonic) Bip32Entropy(ctx context.Context,
	path waddrmgr.DerivationPath, curve hdkey.Curve) (*hdkey.NodeMaterial,
	error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if curve != hdkey.CurveSecp256k1 {
		return nil, fmt.Errorf("%w: %s", hdkey.ErrUnsupportedCurve, curve)
	}

	master, err := hdkey.FromSeed(m.seed, m.params)
	if err != nil {
		return nil, err
	}

	node, err := master.DerivePath(path)
	if err != nil {
		return nil, err
	}

	privKey, err := node.PrivateKey()
	if err != nil {
		return nil, err
	}

	return &hdkey.NodeMaterial{
		PrivateKey:        privKey.Serialize(),
		ChainCode:         node.ChainCode(),
		PublicKey:         node.PubKey(),
		Depth:             node.Depth(),
		ChildIndex:        node.ChildIndex(),
		ParentFingerprint: node.ParentFingerprint(),
		MasterFingerprint: node.MasterFingerprint(),
	}, nil
}

// Bip44Entropy returns a copy of the seed if coinType belongs to the host's
// network.
func (m *Mnemonic) Bip44Entropy(ctx context.Context,
	coinType uint32) (*hdkey.Bip44Material, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if coinType != m.params.HDCoinType {
		return nil, fmt.Errorf("%w: %d on %s", ErrCoinTypeDenied,
			coinType, m.params.Name)
	}

	return &hdkey.Bip44Material{
		Seed:     bytes.Clone(m.seed),
		CoinType: coinType,
	}, nil
}

// Zero wipes the seed. The host is unusable afterwards.
func (m *Mnemonic) Zero() {
	for i := range m.seed {
		m.seed[i] = 0
	}
	m.seed = nil
}
