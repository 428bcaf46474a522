// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	flags "github.com/jessevdk/go-flags"
	"github.com/snapwallet/btcengine/chain"
	"github.com/snapwallet/btcengine/pkg/btcunit"
	"github.com/snapwallet/btcengine/waddrmgr"
	"github.com/snapwallet/btcengine/wallet/coinselect"
)

const (
	defaultLogFilename = "btcengine.log"
	defaultNetwork     = "mainnet"
	defaultScriptType  = "p2wpkh"
	defaultFeeRate     = "normal"
	defaultLogLevel    = "info"
)

var (
	// defaultLogDir is where the log file is written unless --logdir is
	// given.
	defaultLogDir = filepath.Join(
		btcutil.AppDataDir("btcengine", false), "logs",
	)

	// errInvalidRecipient is returned for a malformed --to value.
	errInvalidRecipient = errors.New("recipient must be address:sats")
)

// config defines the command line options.
type config struct {
	Network      string   `short:"n" long:"network" description:"Network to use: mainnet, testnet, regtest, signet or simnet"`
	ScriptType   string   `short:"s" long:"scripttype" description:"Script type of the spending account: p2pkh, p2sh-p2wpkh, p2wpkh or p2tr"`
	Index        uint32   `short:"i" long:"index" description:"Address index of the spending account"`
	UtxoFile     string   `short:"u" long:"utxofile" description:"JSON snapshot with the account's UTXOs and fee rates"`
	To           []string `short:"t" long:"to" description:"Payment as address:sats; may be repeated"`
	FeeRate      string   `short:"f" long:"feerate" description:"Fee rate in sat/vb, or fast, normal or slow from the snapshot"`
	Replaceable  bool     `long:"replaceable" description:"Signal BIP125 replaceability on every input"`
	NoFinalize   bool     `long:"nofinalize" description:"Print the signed PSBT without extracting the transaction"`
	MnemonicFile string   `long:"mnemonicfile" description:"File holding the BIP39 mnemonic; prompt on the terminal when unset"`
	Bip32        bool     `long:"bip32" description:"Derive through the BIP32 key interface instead of the seed interface"`
	NewMnemonic  bool     `long:"newmnemonic" description:"Print a fresh 24 word mnemonic with its first address and exit"`
	LogDir       string   `long:"logdir" description:"Directory to log output"`
	DebugLevel   string   `short:"d" long:"debuglevel" description:"Logging level: trace, debug, info, warn, error, critical or off"`
}

// loadConfig parses the command line and resolves the network.
func loadConfig(args []string) (*config, *chaincfg.Params, error) {
	cfg := &config{
		Network:    defaultNetwork,
		ScriptType: defaultScriptType,
		FeeRate:    defaultFeeRate,
		LogDir:     defaultLogDir,
		DebugLevel: defaultLogLevel,
	}

	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, nil, err
	}

	params, err := waddrmgr.NetParams(cfg.Network)
	if err != nil {
		return nil, nil, err
	}

	if cfg.NewMnemonic {
		return cfg, params, nil
	}

	if cfg.UtxoFile == "" {
		return nil, nil, errors.New("--utxofile is required")
	}

	if len(cfg.To) == 0 {
		return nil, nil, errors.New("at least one --to is required")
	}

	cfg.UtxoFile = cleanAndExpandPath(cfg.UtxoFile)
	cfg.MnemonicFile = cleanAndExpandPath(cfg.MnemonicFile)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)

	return cfg, params, nil
}

// recipients parses every --to value.
func (c *config) recipients() ([]coinselect.SpendTarget, error) {
	targets := make([]coinselect.SpendTarget, 0, len(c.To))
	for _, to := range c.To {
		target, err := parseRecipient(to)
		if err != nil {
			return nil, err
		}

		targets = append(targets, target)
	}

	return targets, nil
}

// parseRecipient parses "address:sats".
func parseRecipient(value string) (coinselect.SpendTarget, error) {
	address, amount, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok || address == "" {
		return coinselect.SpendTarget{}, fmt.Errorf("%w: %q",
			errInvalidRecipient, value)
	}

	sats, err := strconv.ParseInt(amount, 10, 64)
	if err != nil || sats <= 0 {
		return coinselect.SpendTarget{}, fmt.Errorf("%w: bad amount "+
			"in %q", errInvalidRecipient, value)
	}

	return coinselect.SpendTarget{
		Address: address,
		Value:   btcutil.Amount(sats),
	}, nil
}

// resolveFeeRate reads --feerate as a decimal sat/vb rate or as a speed
// whose rate is taken from source.
func resolveFeeRate(ctx context.Context, value string,
	source chain.UtxoSource) (btcunit.SatPerVByte, error) {

	rate, err := btcunit.ParseSatPerVByte(value)
	if err == nil {
		return rate, nil
	}

	rates, err := source.FeeRates(ctx)
	if err != nil {
		return btcunit.ZeroSatPerVByte, err
	}

	return rates.Pick(chain.Speed(value))
}

// cleanAndExpandPath expands environment variables and a leading ~ in path.
func cleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = strings.Replace(path, "~", home, 1)
		}
	}

	return filepath.Clean(os.ExpandEnv(path))
}
