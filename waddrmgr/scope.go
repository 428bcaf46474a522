// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package waddrmgr maps script types to their BIP44-style key scopes and
// output script rules, and parses HD derivation paths.
package waddrmgr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
)

const (
	// ExternalBranch is the child number of the receive chain.
	ExternalBranch uint32 = 0

	// InternalBranch is the child number of the change chain.
	InternalBranch uint32 = 1

	// DefaultAccountNum is the only account an unlocked wallet derives.
	DefaultAccountNum uint32 = 0
)

var (
	// ErrUnsupportedScriptType is returned when a script type has no entry
	// in the registry.
	ErrUnsupportedScriptType = errors.New("unsupported script type")

	// ErrInvalidPubKey is returned when a public key cannot be parsed.
	ErrInvalidPubKey = errors.New("invalid public key")
)

// ScriptType is the locking script template of an account.
type ScriptType uint8

const (
	// ScriptTypeUnknown is the zero value and never valid.
	ScriptTypeUnknown ScriptType = iota

	// P2PKH is a legacy pay-to-pubkey-hash output.
	P2PKH

	// P2SHP2WPKH is a P2WPKH program nested in a P2SH output.
	P2SHP2WPKH

	// P2WPKH is a native segwit v0 pay-to-witness-pubkey-hash output.
	P2WPKH

	// P2TR is a segwit v1 taproot key-path output with no script tree.
	P2TR
)

// scriptTypeNames holds the string tag of each script type.
var scriptTypeNames = map[ScriptType]string{
	P2PKH:      "p2pkh",
	P2SHP2WPKH: "p2sh-p2wpkh",
	P2WPKH:     "p2wpkh",
	P2TR:       "p2tr",
}

// String returns the tag of the script type.
func (s ScriptType) String() string {
	if name, ok := scriptTypeNames[s]; ok {
		return name
	}

	return fmt.Sprintf("unknown(%d)", uint8(s))
}

// ParseScriptType maps a tag such as "p2wpkh" back to its script type.
func ParseScriptType(tag string) (ScriptType, error) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	for st, name := range scriptTypeNames {
		if name == tag {
			return st, nil
		}
	}

	return ScriptTypeUnknown, fmt.Errorf("%w: %q", ErrUnsupportedScriptType,
		tag)
}

// KeyScope represents a restricted key scope from the primary root key within
// the HD chain. The purpose is the BIP43 purpose and the coin is the SLIP44
// coin type of the network.
type KeyScope struct {
	// Purpose is the purpose of this key scope.
	Purpose uint32

	// Coin is the coin type of this key scope.
	Coin uint32
}

// Path returns the hardened purpose/coin path of the scope.
func (k KeyScope) Path() DerivationPath {
	return DerivationPath{
		k.Purpose + hdkeychain.HardenedKeyStart,
		k.Coin + hdkeychain.HardenedKeyStart,
	}
}

// String returns a human readable version describing the key scope.
func (k KeyScope) String() string {
	return k.Path().String()
}

// Script is the output script material of one public key.
type Script struct {
	// PkScript is the output script paying to the key.
	PkScript []byte

	// RedeemScript is set for P2SH wrapped programs only.
	RedeemScript []byte

	// Address is the encoded address of PkScript. It is nil when the
	// script has no address form on the network.
	Address btcutil.Address
}

// ScriptSchema is the static metadata of a script type.
type ScriptSchema struct {
	// Purpose is the BIP43 purpose used to derive keys of this type.
	Purpose uint32

	// PkScriptSize is the size of the output script, used to size the
	// change output during coin selection.
	PkScriptSize int

	// Build constructs the output script for a compressed public key.
	Build func(pubKey []byte, params *chaincfg.Params) (*Script, error)
}

// ScriptTypes is the registry from script type to schema. Adding a script
// type only requires adding an entry here.
var ScriptTypes = map[ScriptType]ScriptSchema{
	P2PKH: {
		Purpose:      44,
		PkScriptSize: txsizes.P2PKHPkScriptSize,
		Build:        buildP2PKH,
	},
	P2SHP2WPKH: {
		Purpose:      49,
		PkScriptSize: txsizes.NestedP2WPKHPkScriptSize,
		Build:        buildNestedP2WPKH,
	},
	P2WPKH: {
		Purpose:      84,
		PkScriptSize: txsizes.P2WPKHPkScriptSize,
		Build:        buildP2WPKH,
	},
	P2TR: {
		Purpose:      86,
		PkScriptSize: txsizes.P2TRPkScriptSize,
		Build:        buildP2TR,
	},
}

// LookupScriptType returns the schema of the script type.
func LookupScriptType(st ScriptType) (ScriptSchema, error) {
	schema, ok := ScriptTypes[st]
	if !ok {
		return ScriptSchema{}, fmt.Errorf("%w: %v",
			ErrUnsupportedScriptType, st)
	}

	return schema, nil
}

// ScopeFor returns the key scope of the script type on the network, e.g.
// m/84'/0' for P2WPKH on mainnet.
func ScopeFor(st ScriptType, params *chaincfg.Params) (KeyScope, error) {
	schema, err := LookupScriptType(st)
	if err != nil {
		return KeyScope{}, err
	}

	return KeyScope{Purpose: schema.Purpose, Coin: params.HDCoinType}, nil
}

// BuildScript builds the output script of pubKey for the script type.
func BuildScript(st ScriptType, pubKey []byte,
	params *chaincfg.Params) (*Script, error) {

	schema, err := LookupScriptType(st)
	if err != nil {
		return nil, err
	}

	if _, err := btcec.ParsePubKey(pubKey); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPubKey, err)
	}

	return schema.Build(pubKey, params)
}

// scriptForAddress pairs an address with its output script.
func scriptForAddress(addr btcutil.Address) (*Script, error) {
	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, fmt.Errorf("unable to create pkScript: %w", err)
	}

	return &Script{PkScript: pkScript, Address: addr}, nil
}

func buildP2PKH(pubKey []byte, params *chaincfg.Params) (*Script, error) {
	addr, err := btcutil.NewAddressPubKeyHash(
		btcutil.Hash160(pubKey), params,
	)
	if err != nil {
		return nil, err
	}

	return scriptForAddress(addr)
}

func buildP2WPKH(pubKey []byte, params *chaincfg.Params) (*Script, error) {
	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(pubKey), params,
	)
	if err != nil {
		return nil, err
	}

	return scriptForAddress(addr)
}

func buildNestedP2WPKH(pubKey []byte,
	params *chaincfg.Params) (*Script, error) {

	// The redeem script is the witness program the P2SH output commits
	// to.
	witness, err := buildP2WPKH(pubKey, params)
	if err != nil {
		return nil, err
	}

	addr, err := btcutil.NewAddressScriptHash(witness.PkScript, params)
	if err != nil {
		return nil, err
	}

	script, err := scriptForAddress(addr)
	if err != nil {
		return nil, err
	}
	script.RedeemScript = witness.PkScript

	return script, nil
}

func buildP2TR(pubKey []byte, params *chaincfg.Params) (*Script, error) {
	internalKey, err := btcec.ParsePubKey(pubKey)
	if err != nil {
		return nil, err
	}

	// BIP86: key path only, the output key commits to an empty script
	// root.
	outputKey := txscript.ComputeTaprootKeyNoScript(internalKey)

	addr, err := btcutil.NewAddressTaproot(
		schnorr.SerializePubKey(outputKey), params,
	)
	if err != nil {
		return nil, err
	}

	return scriptForAddress(addr)
}
