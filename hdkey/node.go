// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package hdkey

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/snapwallet/btcengine/waddrmgr"
)

// chainCodeLen is the length of a BIP32 chain code.
const chainCodeLen = 32

var (
	// ErrNoPrivateKey is returned when a private operation is requested
	// from a public-only node.
	ErrNoPrivateKey = errors.New("node has no private key")

	// ErrInvalidKeyMaterial is returned when host supplied key material
	// does not describe a valid secp256k1 node.
	ErrInvalidKeyMaterial = errors.New("invalid key material")
)

// Node is an immutable HD node. Every derived node remembers the fingerprint
// of the master key it descends from and its absolute path, which is what a
// PSBT records in its BIP32 derivation fields.
type Node struct {
	key *hdkeychain.ExtendedKey

	masterFingerprint uint32

	path waddrmgr.DerivationPath
}

// NodeMeta is the position of a node reconstructed from raw key material.
type NodeMeta struct {
	// Path is the absolute path of the node.
	Path waddrmgr.DerivationPath

	// Depth is the depth of the node. It must equal len(Path).
	Depth uint8

	// ChildIndex is the child number of the node within its parent.
	ChildIndex uint32

	// ParentFingerprint is the fingerprint of the parent node.
	ParentFingerprint uint32

	// MasterFingerprint is the fingerprint of the master node. For a
	// master node it may be left zero and is then computed.
	MasterFingerprint uint32
}

// Fingerprint returns the BIP174 fingerprint of a public key: the first four
// bytes of its hash160 read as a little-endian integer, so that the PSBT
// encoder writes them back in their original order.
func Fingerprint(pubKey []byte) uint32 {
	return binary.LittleEndian.Uint32(btcutil.Hash160(pubKey)[:4])
}

// FromSeed creates a master node from a BIP32 seed.
func FromSeed(seed []byte, params *chaincfg.Params) (*Node, error) {
	master, err := hdkeychain.NewMaster(seed, params)
	if err != nil {
		return nil, fmt.Errorf("unable to create master key: %w", err)
	}

	pubKey, err := master.ECPubKey()
	if err != nil {
		return nil, err
	}

	return &Node{
		key:               master,
		masterFingerprint: Fingerprint(pubKey.SerializeCompressed()),
		path:              waddrmgr.DerivationPath{},
	}, nil
}

// FromPrivateKey reconstructs a node from a raw 32-byte private key and chain
// code at the given position.
func FromPrivateKey(privKey, chainCode []byte, meta NodeMeta,
	params *chaincfg.Params) (*Node, error) {

	if len(privKey) != btcec.PrivKeyBytesLen {
		return nil, fmt.Errorf("%w: private key is %d bytes",
			ErrInvalidKeyMaterial, len(privKey))
	}

	var scalar btcec.ModNScalar
	if overflow := scalar.SetByteSlice(privKey); overflow ||
		scalar.IsZero() {

		return nil, fmt.Errorf("%w: private key out of range",
			ErrInvalidKeyMaterial)
	}

	if len(chainCode) != chainCodeLen {
		return nil, fmt.Errorf("%w: chain code is %d bytes",
			ErrInvalidKeyMaterial, len(chainCode))
	}

	if int(meta.Depth) != len(meta.Path) {
		return nil, fmt.Errorf("%w: depth %d does not match path %v",
			ErrInvalidKeyMaterial, meta.Depth, meta.Path)
	}

	var parentFP [4]byte
	binary.BigEndian.PutUint32(parentFP[:], meta.ParentFingerprint)

	key := hdkeychain.NewExtendedKey(
		params.HDPrivateKeyID[:], privKey, chainCode, parentFP[:],
		meta.Depth, meta.ChildIndex, true,
	)

	node := &Node{
		key:               key,
		masterFingerprint: meta.MasterFingerprint,
		path:              meta.Path.Child(),
	}

	if meta.Depth == 0 && meta.MasterFingerprint == 0 {
		node.masterFingerprint = Fingerprint(node.PubKey())
	}

	return node, nil
}

// Derive returns the child node at index. Hardened children are requested
// with hdkeychain.HardenedKeyStart added to the index.
func (n *Node) Derive(index uint32) (*Node, error) {
	child, err := n.key.Derive(index)
	if err != nil {
		return nil, fmt.Errorf("unable to derive child %d: %w", index,
			err)
	}

	return &Node{
		key:               child,
		masterFingerprint: n.masterFingerprint,
		path:              n.path.Child(index),
	}, nil
}

// DerivePath derives every segment of path from n in order.
func (n *Node) DerivePath(path waddrmgr.DerivationPath) (*Node, error) {
	node := n
	for _, index := range path {
		child, err := node.Derive(index)
		if err != nil {
			return nil, err
		}

		node = child
	}

	return node, nil
}

// Neuter returns a public-only copy of the node.
func (n *Node) Neuter() (*Node, error) {
	pub, err := n.key.Neuter()
	if err != nil {
		return nil, err
	}

	return &Node{
		key:               pub,
		masterFingerprint: n.masterFingerprint,
		path:              n.path,
	}, nil
}

// MasterFingerprint returns the fingerprint of the master node.
func (n *Node) MasterFingerprint() uint32 {
	return n.masterFingerprint
}

// Path returns the absolute path of the node.
func (n *Node) Path() waddrmgr.DerivationPath {
	return n.path.Child()
}

// Depth returns the depth of the node.
func (n *Node) Depth() uint8 {
	return n.key.Depth()
}

// ChildIndex returns the child number of the node within its parent.
func (n *Node) ChildIndex() uint32 {
	return n.key.ChildIndex()
}

// ParentFingerprint returns the fingerprint of the parent node as encoded in
// serialized extended keys.
func (n *Node) ParentFingerprint() uint32 {
	return n.key.ParentFingerprint()
}

// ChainCode returns a copy of the chain code.
func (n *Node) ChainCode() []byte {
	return bytes.Clone(n.key.ChainCode())
}

// HasPrivateKey reports whether the node can sign.
func (n *Node) HasPrivateKey() bool {
	return n.key.IsPrivate()
}

// PublicKey returns the parsed public key of the node.
func (n *Node) PublicKey() *btcec.PublicKey {
	// ECPubKey only fails for malformed public extended keys, which a Node
	// never holds.
	pubKey, _ := n.key.ECPubKey()

	return pubKey
}

// PubKey returns the compressed public key of the node.
func (n *Node) PubKey() []byte {
	return n.PublicKey().SerializeCompressed()
}

// PrivateKey returns the private key of the node.
func (n *Node) PrivateKey() (*btcec.PrivateKey, error) {
	if !n.key.IsPrivate() {
		return nil, ErrNoPrivateKey
	}

	return n.key.ECPrivKey()
}

// String returns the path and master fingerprint of the node. It never
// includes key material.
func (n *Node) String() string {
	return fmt.Sprintf("%08x/%v", n.masterFingerprint, n.path)
}
