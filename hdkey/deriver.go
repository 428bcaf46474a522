// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package hdkey obtains HD root key material from a host entropy provider and
// derives the child nodes that accounts sign with.
package hdkey

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/snapwallet/btcengine/waddrmgr"
)

// Curve names the elliptic curve a host derives keys on.
type Curve string

// CurveSecp256k1 is the only curve bitcoin keys use.
const CurveSecp256k1 Curve = "secp256k1"

const (
	// reasonPrivateKeyMissing is reported when the host answers a BIP32
	// entropy request without a private key.
	reasonPrivateKeyMissing = "Deriver private key is missing"

	// reasonSeedMissing is reported when the host answers a BIP44 entropy
	// request without a seed.
	reasonSeedMissing = "Deriver seed is missing"

	// reasonHostFailed is reported when the host call itself fails.
	reasonHostFailed = "Deriver host request failed"

	// reasonDerivation is reported for any local derivation failure.
	reasonDerivation = "Deriver failed to derive key"
)

var (
	// ErrPrivateKeyMissing is the cause of a DeriverError raised when the
	// host withholds the private key.
	ErrPrivateKeyMissing = errors.New("private key missing")

	// ErrSeedMissing is the cause of a DeriverError raised when the host
	// withholds the seed.
	ErrSeedMissing = errors.New("seed missing")

	// ErrPubKeyMismatch is returned when the public key reported by the
	// host does not belong to the private key it returned.
	ErrPubKeyMismatch = errors.New("host public key does not match " +
		"private key")

	// ErrUnsupportedCurve is returned for any curve other than secp256k1.
	ErrUnsupportedCurve = errors.New("unsupported curve")

	// ErrShortPath is returned when a BIP44 root is requested for a path
	// without hardened purpose and coin type levels.
	ErrShortPath = errors.New("path must start with hardened purpose " +
		"and coin type")
)

// DeriverError is returned for every failure to obtain or derive key
// material. The underlying cause is reachable with errors.Is/As.
type DeriverError struct {
	// Reason is the human readable failure.
	Reason string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *DeriverError) Error() string {
	if e.Err == nil {
		return e.Reason
	}

	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

// Unwrap returns the underlying cause.
func (e *DeriverError) Unwrap() error {
	return e.Err
}

// newDeriverError wraps err unless it already is a DeriverError.
func newDeriverError(reason string, err error) error {
	var derr *DeriverError
	if errors.As(err, &derr) {
		return err
	}

	return &DeriverError{Reason: reason, Err: err}
}

// NodeMaterial is the extended private key material a host returns for an
// exact path.
type NodeMaterial struct {
	// PrivateKey is the 32-byte private key. Empty when withheld.
	PrivateKey []byte

	// ChainCode is the 32-byte chain code.
	ChainCode []byte

	// PublicKey is the optional compressed public key of PrivateKey.
	PublicKey []byte

	// Depth is the depth of the node.
	Depth uint8

	// ChildIndex is the child number of the node.
	ChildIndex uint32

	// ParentFingerprint is the fingerprint of the parent node.
	ParentFingerprint uint32

	// MasterFingerprint is the BIP174 fingerprint of the master node.
	MasterFingerprint uint32
}

// Bip44Material is the seed a host returns for a coin type.
type Bip44Material struct {
	// Seed is the BIP32 seed. Empty when withheld.
	Seed []byte

	// CoinType is the coin type the seed was released for.
	CoinType uint32
}

// HostEntropyProvider is the host that owns the wallet secret. The engine
// only ever asks it for material and never keeps that material beyond one
// derivation.
type HostEntropyProvider interface {
	// Bip32Entropy returns the extended private key at an exact path.
	Bip32Entropy(ctx context.Context, path waddrmgr.DerivationPath,
		curve Curve) (*NodeMaterial, error)

	// Bip44Entropy returns the seed released for a coin type.
	Bip44Entropy(ctx context.Context, coinType uint32) (*Bip44Material,
		error)
}

// Deriver produces root nodes for a key scope and the account children below
// them.
type Deriver interface {
	// Root returns the node at the given absolute path.
	Root(ctx context.Context, path waddrmgr.DerivationPath) (*Node, error)

	// Child returns the receive key at index below a scope root.
	Child(root *Node, index uint32) (*Node, error)
}

// Child derives root/0'/0/index: account 0, external chain, address index.
// The account and branch are fixed.
func Child(root *Node, index uint32) (*Node, error) {
	if root == nil {
		return nil, &DeriverError{
			Reason: reasonDerivation,
			Err:    errors.New("nil root node"),
		}
	}

	child, err := root.DerivePath(waddrmgr.DerivationPath{
		waddrmgr.DefaultAccountNum + hdkeychain.HardenedKeyStart,
		waddrmgr.ExternalBranch,
		index,
	})
	if err != nil {
		return nil, newDeriverError(reasonDerivation, err)
	}

	log.Debugf("Derived child %v", child)

	return child, nil
}

// Bip32Deriver asks the host for the extended private key of the exact path
// and reconstructs the node locally.
type Bip32Deriver struct {
	host   HostEntropyProvider
	params *chaincfg.Params
}

// A compile-time assertion to ensure Bip32Deriver implements Deriver.
var _ Deriver = (*Bip32Deriver)(nil)

// NewBip32Deriver creates a deriver backed by the host's BIP32 entropy.
func NewBip32Deriver(host HostEntropyProvider,
	params *chaincfg.Params) *Bip32Deriver {

	return &Bip32Deriver{host: host, params: params}
}

// Root returns the node at path.
func (d *Bip32Deriver) Root(ctx context.Context,
	path waddrmgr.DerivationPath) (*Node, error) {

	material, err := d.host.Bip32Entropy(ctx, path, CurveSecp256k1)
	if err != nil {
		return nil, newDeriverError(reasonHostFailed, err)
	}

	if material == nil || len(material.PrivateKey) == 0 {
		return nil, &DeriverError{
			Reason: reasonPrivateKeyMissing,
			Err:    ErrPrivateKeyMissing,
		}
	}

	node, err := FromPrivateKey(
		material.PrivateKey, material.ChainCode, NodeMeta{
			Path:              path,
			Depth:             material.Depth,
			ChildIndex:        material.ChildIndex,
			ParentFingerprint: material.ParentFingerprint,
			MasterFingerprint: material.MasterFingerprint,
		}, d.params,
	)
	if err != nil {
		return nil, newDeriverError(reasonDerivation, err)
	}

	if len(material.PublicKey) != 0 &&
		!bytes.Equal(material.PublicKey, node.PubKey()) {

		return nil, &DeriverError{
			Reason: reasonDerivation,
			Err:    ErrPubKeyMismatch,
		}
	}

	log.Debugf("Reconstructed root %v from host material", node)

	return node, nil
}

// Child returns root/0'/0/index.
func (d *Bip32Deriver) Child(root *Node, index uint32) (*Node, error) {
	return Child(root, index)
}

// Bip44Deriver asks the host for the seed of the path's coin type, builds the
// master node and derives the requested levels itself.
type Bip44Deriver struct {
	host   HostEntropyProvider
	params *chaincfg.Params
}

// A compile-time assertion to ensure Bip44Deriver implements Deriver.
var _ Deriver = (*Bip44Deriver)(nil)

// NewBip44Deriver creates a deriver backed by the host's BIP44 entropy.
func NewBip44Deriver(host HostEntropyProvider,
	params *chaincfg.Params) *Bip44Deriver {

	return &Bip44Deriver{host: host, params: params}
}

// Root returns the node at path, which must start with a hardened purpose and
// coin type.
func (d *Bip44Deriver) Root(ctx context.Context,
	path waddrmgr.DerivationPath) (*Node, error) {

	if len(path) < 2 || path[0] < hdkeychain.HardenedKeyStart ||
		path[1] < hdkeychain.HardenedKeyStart {

		return nil, &DeriverError{
			Reason: reasonDerivation,
			Err:    fmt.Errorf("%w: %v", ErrShortPath, path),
		}
	}

	coinType := path[1] - hdkeychain.HardenedKeyStart

	material, err := d.host.Bip44Entropy(ctx, coinType)
	if err != nil {
		return nil, newDeriverError(reasonHostFailed, err)
	}

	if material == nil || len(material.Seed) == 0 {
		return nil, &DeriverError{
			Reason: reasonSeedMissing,
			Err:    ErrSeedMissing,
		}
	}

	master, err := FromSeed(material.Seed, d.params)
	if err != nil {
		return nil, newDeriverError(reasonDerivation, err)
	}

	node, err := master.DerivePath(path)
	if err != nil {
		return nil, newDeriverError(reasonDerivation, err)
	}

	log.Debugf("Derived root %v from host seed for coin type %d", node,
		coinType)

	return node, nil
}

// Child returns root/0'/0/index.
func (d *Bip44Deriver) Child(root *Node, index uint32) (*Node, error) {
	return Child(root, index)
}
