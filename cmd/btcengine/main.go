// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Command btcengine builds, signs and finalizes a payment from one HD account
// using a UTXO snapshot, and prints the result as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
	flags "github.com/jessevdk/go-flags"
	"github.com/snapwallet/btcengine/chain"
	"github.com/snapwallet/btcengine/hdkey"
	"github.com/snapwallet/btcengine/hdkey/hostentropy"
	"github.com/snapwallet/btcengine/wallet"
	"golang.org/x/term"
)

// newMnemonicBits is the entropy of generated mnemonics.
const newMnemonicBits = 256

// output is what the command prints on success.
type output struct {
	Summary *wallet.TxSummary `json:"summary"`
	TxHex   string            `json:"tx_hex,omitempty"`
	Psbt    string            `json:"psbt"`
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}

		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run executes the command with args and writes the result to out.
func run(args []string, out io.Writer) error {
	cfg, params, err := loadConfig(args)
	if err != nil {
		return err
	}

	if err := setLogLevels(cfg.DebugLevel); err != nil {
		return err
	}

	if cfg.LogDir != "" {
		err := initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename))
		if err != nil {
			return err
		}
		defer logRotator.Close()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if cfg.NewMnemonic {
		return newMnemonic(ctx, cfg, params, out)
	}

	targets, err := cfg.recipients()
	if err != nil {
		return err
	}

	words, err := readMnemonic(cfg.MnemonicFile)
	if err != nil {
		return err
	}

	host, err := hostentropy.New(words, "", params)
	if err != nil {
		return err
	}
	defer host.Zero()

	manager, err := wallet.NewManager(wallet.Config{
		Params:  params,
		Deriver: newDeriver(cfg, host, params),
	})
	if err != nil {
		return err
	}

	account, err := manager.UnlockByTag(ctx, cfg.Index, cfg.ScriptType)
	if err != nil {
		return err
	}

	address, err := account.Address()
	if err != nil {
		return err
	}

	source, err := chain.NewFileSource(cfg.UtxoFile, params)
	if err != nil {
		return err
	}

	utxos, err := source.Utxos(ctx, address)
	if err != nil {
		return err
	}

	feeRate, err := resolveFeeRate(ctx, cfg.FeeRate, source)
	if err != nil {
		return err
	}

	log.Infof("Spending from %s (%v) with %d utxos at %v", address,
		account.HDPath(), len(utxos), feeRate)

	result, err := manager.CreateTransaction(ctx, account, &wallet.TxRequest{
		Utxos:        utxos,
		Recipients:   targets,
		FeeRate:      feeRate,
		Replaceable:  cfg.Replaceable,
		SkipFinalize: cfg.NoFinalize,
	})
	if err != nil {
		return err
	}

	return writeJSON(out, output{
		Summary: result.Summary,
		TxHex:   result.TxHex,
		Psbt:    result.Psbt,
	})
}

// newDeriver returns the deriver selected by the configuration.
func newDeriver(cfg *config, host hdkey.HostEntropyProvider,
	params *chaincfg.Params) hdkey.Deriver {

	if cfg.Bip32 {
		return hdkey.NewBip32Deriver(host, params)
	}

	return hdkey.NewBip44Deriver(host, params)
}

// newMnemonic prints a fresh mnemonic with the first address of the
// configured account.
func newMnemonic(ctx context.Context, cfg *config, params *chaincfg.Params,
	out io.Writer) error {

	host, words, err := hostentropy.Generate(newMnemonicBits, params)
	if err != nil {
		return err
	}
	defer host.Zero()

	manager, err := wallet.NewManager(wallet.Config{
		Params:  params,
		Deriver: newDeriver(cfg, host, params),
	})
	if err != nil {
		return err
	}

	account, err := manager.UnlockByTag(ctx, cfg.Index, cfg.ScriptType)
	if err != nil {
		return err
	}

	address, err := account.Address()
	if err != nil {
		return err
	}

	return writeJSON(out, struct {
		Mnemonic string `json:"mnemonic"`
		Path     string `json:"path"`
		Address  string `json:"address"`
	}{
		Mnemonic: words,
		Path:     account.HDPath().String(),
		Address:  address,
	})
}

// readMnemonic reads the mnemonic from path, or from the terminal without
// echo when path is empty.
func readMnemonic(path string) (string, error) {
	if path != "" {
		// #nosec G304 -- the path is chosen by the operator.
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("unable to read mnemonic: %w", err)
		}

		return strings.Join(strings.Fields(string(raw)), " "), nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no --mnemonicfile given and stdin is not " +
			"a terminal")
	}

	fmt.Fprint(os.Stderr, "Mnemonic: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("unable to read mnemonic: %w", err)
	}

	return strings.Join(strings.Fields(string(raw)), " "), nil
}

// writeJSON writes v as indented JSON.
func writeJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")

	return encoder.Encode(v)
}
