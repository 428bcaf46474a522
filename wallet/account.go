// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/snapwallet/btcengine/waddrmgr"
)

// capabilityPrefix is the CAIP-2 namespace of bitcoin chains.
const capabilityPrefix = "bip122:"

// AccountParams holds everything an Account is built from.
type AccountParams struct {
	// MasterFingerprint is the fingerprint of the master key.
	MasterFingerprint uint32

	// Index is the address index of the account key.
	Index uint32

	// HDPath is the absolute path of the account key.
	HDPath waddrmgr.DerivationPath

	// PubKeyHex is the hex encoded compressed public key.
	PubKeyHex string

	// Params is the network of the account.
	Params *chaincfg.Params

	// ScriptType selects the output script built for the key.
	ScriptType waddrmgr.ScriptType

	// Capability identifies the chain the account belongs to.
	Capability string

	// Signer signs for the account key and the keys next to it.
	Signer *Signer

	// Key signs with the account key. It must sit at HDPath below
	// Signer.
	Key *Signer
}

// Account is one derived key bound to a script type and network. Its output
// script and address are built on first use and cached.
type Account struct {
	masterFingerprint uint32
	index             uint32
	hdPath            waddrmgr.DerivationPath
	pubKey            []byte
	params            *chaincfg.Params
	scriptType        waddrmgr.ScriptType
	capability        string

	signer *Signer
	key    *Signer

	// script is written once by the first accessor and never cleared.
	script fn.Option[*waddrmgr.Script]
}

// NewAccount validates params and creates the account.
func NewAccount(params AccountParams) (*Account, error) {
	pubKey, err := hex.DecodeString(params.PubKeyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", waddrmgr.ErrInvalidPubKey, err)
	}

	if _, err := waddrmgr.LookupScriptType(params.ScriptType); err != nil {
		return nil, err
	}

	if params.Params == nil {
		return nil, fmt.Errorf("%w: nil network", waddrmgr.ErrUnknownNetwork)
	}

	if params.Signer == nil || params.Key == nil {
		return nil, ErrNoSigningKey
	}

	if !bytes.Equal(params.Key.PubKey(), pubKey) {
		return nil, fmt.Errorf("%w: key does not match account",
			waddrmgr.ErrInvalidPubKey)
	}

	capability := params.Capability
	if capability == "" {
		capability = Capability(params.Params)
	}

	return &Account{
		masterFingerprint: params.MasterFingerprint,
		index:             params.Index,
		hdPath:            params.HDPath.Child(),
		pubKey:            pubKey,
		params:            params.Params,
		scriptType:        params.ScriptType,
		capability:        capability,
		signer:            params.Signer,
		key:               params.Key,
		script:            fn.None[*waddrmgr.Script](),
	}, nil
}

// Capability returns the CAIP-2 chain id of a network: the bip122 namespace
// followed by the first 32 hex characters of the genesis block hash.
func Capability(params *chaincfg.Params) string {
	return capabilityPrefix + params.GenesisHash.String()[:32]
}

// outputScript returns the cached script, building it on first use.
func (a *Account) outputScript() (*waddrmgr.Script, error) {
	if a.script.IsSome() {
		return a.script.UnwrapOrErr(ErrPaymentAddressMissing)
	}

	script, err := waddrmgr.BuildScript(a.scriptType, a.pubKey, a.params)
	if err != nil {
		return nil, err
	}

	a.script = fn.Some(script)

	return script, nil
}

// Address returns the encoded address of the account's output script.
func (a *Account) Address() (string, error) {
	script, err := a.outputScript()
	if err != nil {
		return "", err
	}

	if script.Address == nil {
		return "", ErrPaymentAddressMissing
	}

	return script.Address.EncodeAddress(), nil
}

// OutputScript returns the output script paying to the account.
func (a *Account) OutputScript() ([]byte, error) {
	script, err := a.outputScript()
	if err != nil {
		return nil, err
	}

	return bytes.Clone(script.PkScript), nil
}

// RedeemScript returns the P2WPKH redeem script of a nested segwit account and
// nil for every other script type.
func (a *Account) RedeemScript() ([]byte, error) {
	script, err := a.outputScript()
	if err != nil {
		return nil, err
	}

	return bytes.Clone(script.RedeemScript), nil
}

// Sign signs a 32-byte digest with the account key.
func (a *Account) Sign(ctx context.Context, hash []byte) ([]byte, error) {
	return a.key.Sign(ctx, hash)
}

// Verify reports whether sig is a valid signature of hash by the account key.
func (a *Account) Verify(hash, sig []byte) bool {
	return a.key.Verify(hash, sig)
}

// MasterFingerprint returns the fingerprint of the master key.
func (a *Account) MasterFingerprint() uint32 {
	return a.masterFingerprint
}

// Index returns the address index of the account key.
func (a *Account) Index() uint32 {
	return a.index
}

// HDPath returns the absolute path of the account key.
func (a *Account) HDPath() waddrmgr.DerivationPath {
	return a.hdPath.Child()
}

// PubKey returns the compressed public key of the account.
func (a *Account) PubKey() []byte {
	return bytes.Clone(a.pubKey)
}

// PubKeyHex returns the hex encoded public key of the account.
func (a *Account) PubKeyHex() string {
	return hex.EncodeToString(a.pubKey)
}

// Params returns the network of the account.
func (a *Account) Params() *chaincfg.Params {
	return a.params
}

// ScriptType returns the script type of the account.
func (a *Account) ScriptType() waddrmgr.ScriptType {
	return a.scriptType
}

// Capability returns the chain id of the account.
func (a *Account) Capability() string {
	return a.capability
}

// Signer returns the signer of the account's key scope.
func (a *Account) Signer() *Signer {
	return a.signer
}

// String returns the script type and path of the account.
func (a *Account) String() string {
	return fmt.Sprintf("%v account %v", a.scriptType, a.hdPath)
}
