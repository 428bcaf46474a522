// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/snapwallet/btcengine/hdkey"
	"github.com/snapwallet/btcengine/waddrmgr"
	"github.com/snapwallet/btcengine/wallet/psbtbuilder"
)

// Signer signs with the key of one HD node and derives signers for the keys
// below it. Every derived signer carries the master fingerprint of the node
// it was created from.
type Signer struct {
	node              *hdkey.Node
	masterFingerprint uint32
}

// A compile time check to ensure that Signer can sign PSBT inputs.
var (
	_ psbtbuilder.HDSigner  = (*Signer)(nil)
	_ psbtbuilder.KeySigner = (*Signer)(nil)
)

// NewSigner wraps node.
func NewSigner(node *hdkey.Node) *Signer {
	return &Signer{
		node:              node,
		masterFingerprint: node.MasterFingerprint(),
	}
}

// DerivePath returns the signer of path. A relative path such as "0'/0/1" is
// derived from the signer's node. An absolute path such as "m/84'/0'/0'/0/1"
// must extend the node's own path and only the remaining segments are
// derived.
func (s *Signer) DerivePath(path string) (*Signer, error) {
	parsed, err := waddrmgr.ParsePath(path)
	if err != nil {
		return nil, err
	}

	if waddrmgr.IsAbsolute(path) {
		return s.derive(parsed)
	}

	return s.deriveRelative(parsed)
}

// DeriveKey returns the key signer of the absolute path.
func (s *Signer) DeriveKey(
	path waddrmgr.DerivationPath) (psbtbuilder.KeySigner, error) {

	return s.derive(path)
}

// derive returns the signer of the absolute path.
func (s *Signer) derive(path waddrmgr.DerivationPath) (*Signer, error) {
	own := s.node.Path()
	if !path.HasPrefix(own) {
		return nil, fmt.Errorf("%w: %v is not below %v",
			ErrPathOutsideSigner, path, own)
	}

	return s.deriveRelative(path[len(own):])
}

// deriveRelative returns the signer of the node reached by deriving path from
// the signer's node.
func (s *Signer) deriveRelative(path waddrmgr.DerivationPath) (*Signer,
	error) {

	node, err := s.node.DerivePath(path)
	if err != nil {
		return nil, err
	}

	return &Signer{node: node, masterFingerprint: s.masterFingerprint}, nil
}

// Sign returns the DER encoded ECDSA signature of a 32-byte digest.
func (s *Signer) Sign(ctx context.Context, hash []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(hash) != chainhash.HashSize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidHash, len(hash))
	}

	privKey, err := s.node.PrivateKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSigningKey, err)
	}

	return ecdsa.Sign(privKey, hash).Serialize(), nil
}

// SignSchnorr returns the BIP340 signature of a 32-byte digest made with the
// node's key tweaked by the taproot script root. A nil root signs for a BIP86
// key spend.
func (s *Signer) SignSchnorr(ctx context.Context, hash,
	tapScriptRoot []byte) ([]byte, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(hash) != chainhash.HashSize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidHash, len(hash))
	}

	privKey, err := s.node.PrivateKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSigningKey, err)
	}

	tweaked := txscript.TweakTaprootPrivKey(*privKey, tapScriptRoot)

	sig, err := schnorr.Sign(tweaked, hash)
	if err != nil {
		return nil, err
	}

	return sig.Serialize(), nil
}

// Verify reports whether sig is a valid DER encoded ECDSA signature of hash
// by the node's public key.
func (s *Signer) Verify(hash, sig []byte) bool {
	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false
	}

	return parsed.Verify(hash, s.node.PublicKey())
}

// PubKey returns the compressed public key of the node.
func (s *Signer) PubKey() []byte {
	return s.node.PubKey()
}

// MasterFingerprint returns the fingerprint of the master key.
func (s *Signer) MasterFingerprint() uint32 {
	return s.masterFingerprint
}

// Path returns the absolute path of the node.
func (s *Signer) Path() waddrmgr.DerivationPath {
	return s.node.Path()
}

// String returns the fingerprint and path of the signer.
func (s *Signer) String() string {
	return s.node.String()
}
