// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wallet binds derived keys to script types and ties coin selection
// and PSBT assembly into a single transaction flow.
package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/snapwallet/btcengine/hdkey"
	"github.com/snapwallet/btcengine/pkg/btcunit"
	"github.com/snapwallet/btcengine/waddrmgr"
)

var (
	// ErrWalletParams is returned when the manager configuration is
	// invalid.
	ErrWalletParams = errors.New("invalid wallet params")
)

var (
	// DefaultMaxFeeRate is the highest fee rate the manager accepts when
	// the configuration sets none.
	//
	//nolint:mnd // 1000 sat/vb default max fee.
	DefaultMaxFeeRate = btcunit.NewSatPerVByte(1_000)
)

// Config holds the collaborators of a Manager.
type Config struct {
	// Params is the network every account is created on.
	Params *chaincfg.Params

	// Deriver provides the scope roots of unlocked accounts.
	Deriver hdkey.Deriver

	// MaxFeeRate caps the fee rate of created transactions. The zero value
	// selects DefaultMaxFeeRate.
	MaxFeeRate btcunit.SatPerVByte
}

// Manager unlocks accounts and creates transactions for them. It keeps no
// state between calls.
type Manager struct {
	cfg Config
}

// NewManager validates cfg and creates a manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Params == nil {
		return nil, fmt.Errorf("%w: missing network", ErrWalletParams)
	}

	if cfg.Deriver == nil {
		return nil, fmt.Errorf("%w: missing deriver", ErrWalletParams)
	}

	if !cfg.MaxFeeRate.IsPositive() {
		cfg.MaxFeeRate = DefaultMaxFeeRate
	}

	return &Manager{cfg: cfg}, nil
}

// Params returns the network of the manager.
func (m *Manager) Params() *chaincfg.Params {
	return m.cfg.Params
}

// Unlock derives the receive key at index of the scope of scriptType and
// returns its account.
func (m *Manager) Unlock(ctx context.Context, index uint32,
	scriptType waddrmgr.ScriptType) (*Account, error) {

	scope, err := waddrmgr.ScopeFor(scriptType, m.cfg.Params)
	if err != nil {
		return nil, &WalletError{
			Reason: ReasonInvalidScriptType,
			Err:    err,
		}
	}

	root, err := m.cfg.Deriver.Root(ctx, scope.Path())
	if err != nil {
		return nil, &WalletError{Reason: ReasonUnlock, Err: err}
	}

	child, err := m.cfg.Deriver.Child(root, index)
	if err != nil {
		return nil, &WalletError{Reason: ReasonUnlock, Err: err}
	}

	signer := NewSigner(root)

	account, err := NewAccount(AccountParams{
		MasterFingerprint: root.MasterFingerprint(),
		Index:             index,
		HDPath:            child.Path(),
		PubKeyHex:         fmt.Sprintf("%x", child.PubKey()),
		Params:            m.cfg.Params,
		ScriptType:        scriptType,
		Capability:        Capability(m.cfg.Params),
		Signer:            signer,
		Key:               NewSigner(child),
	})
	if err != nil {
		return nil, &WalletError{Reason: ReasonUnlock, Err: err}
	}

	log.Infof("Unlocked %v (fingerprint=%08x)", account,
		account.MasterFingerprint())

	return account, nil
}

// UnlockByTag is Unlock with the script type given by its tag, such as
// "p2wpkh".
func (m *Manager) UnlockByTag(ctx context.Context, index uint32,
	tag string) (*Account, error) {

	scriptType, err := waddrmgr.ParseScriptType(tag)
	if err != nil {
		return nil, &WalletError{
			Reason: ReasonInvalidScriptType,
			Err:    err,
		}
	}

	return m.Unlock(ctx, index, scriptType)
}
