package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/snapwallet/btcengine/pkg/btcunit"
	"github.com/snapwallet/btcengine/waddrmgr"
	"github.com/snapwallet/btcengine/wallet/coinselect"
)

var (
	// ErrInvalidSnapshot is returned when a snapshot file cannot be used.
	ErrInvalidSnapshot = errors.New("invalid utxo snapshot")

	// ErrNetworkMismatch is returned when a snapshot was taken on another
	// network.
	ErrNetworkMismatch = errors.New("snapshot network mismatch")
)

// snapshot is the on-disk form of a FileSource:
//
//	{
//	  "network": "mainnet",
//	  "fee_rates": {"fast": 12, "normal": "5.5", "slow": 1},
//	  "utxos": {"bc1q...": [{"block_height": 1, "tx_hash": "...",
//	    "output_index": 0, "value": 100000}]}
//	}
type snapshot struct {
	Network  string                       `json:"network"`
	FeeRates snapshotRates                `json:"fee_rates"`
	Utxos    map[string][]coinselect.Utxo `json:"utxos"`
}

type snapshotRates struct {
	Fast   json.Number `json:"fast"`
	Normal json.Number `json:"normal"`
	Slow   json.Number `json:"slow"`
}

// FileSource serves a UTXO snapshot read from a JSON file.
type FileSource struct {
	rates FeeRates
	utxos map[string][]coinselect.Utxo
}

// A compile-time assertion to ensure FileSource implements UtxoSource.
var _ UtxoSource = (*FileSource)(nil)

// NewFileSource reads the snapshot at path. The snapshot network, when set,
// must be params.
func NewFileSource(path string, params *chaincfg.Params) (*FileSource,
	error) {

	// #nosec G304 -- the path is chosen by the operator.
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read snapshot: %w", err)
	}

	return ParseSnapshot(raw, params)
}

// ParseSnapshot decodes a JSON snapshot.
func ParseSnapshot(raw []byte, params *chaincfg.Params) (*FileSource,
	error) {

	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}

	if snap.Network != "" {
		net, err := waddrmgr.NetParams(snap.Network)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
		}

		if net.Net != params.Net {
			return nil, fmt.Errorf("%w: snapshot is %s, want %s",
				ErrNetworkMismatch, net.Name, params.Name)
		}
	}

	rates, err := snap.FeeRates.parse()
	if err != nil {
		return nil, err
	}

	utxos := make(map[string][]coinselect.Utxo, len(snap.Utxos))
	for address, list := range snap.Utxos {
		addr, err := btcutil.DecodeAddress(address, params)
		if err != nil || !addr.IsForNet(params) {
			return nil, fmt.Errorf("%w: address %q is not for %s",
				ErrInvalidSnapshot, address, params.Name)
		}

		utxos[addr.EncodeAddress()] = list
	}

	log.Debugf("Loaded snapshot with %d addresses (fast=%v, normal=%v, "+
		"slow=%v)", len(utxos), rates.Fast, rates.Normal, rates.Slow)

	return &FileSource{rates: *rates, utxos: utxos}, nil
}

// parse converts the decimal rates. Missing rates stay zero.
func (r snapshotRates) parse() (*FeeRates, error) {
	var rates FeeRates

	fields := []struct {
		name  string
		value json.Number
		dest  *btcunit.SatPerVByte
	}{
		{name: "fast", value: r.Fast, dest: &rates.Fast},
		{name: "normal", value: r.Normal, dest: &rates.Normal},
		{name: "slow", value: r.Slow, dest: &rates.Slow},
	}

	for _, field := range fields {
		if field.value == "" {
			*field.dest = btcunit.ZeroSatPerVByte
			continue
		}

		rate, err := btcunit.ParseSatPerVByte(field.value.String())
		if err != nil {
			return nil, fmt.Errorf("%w: %s fee rate: %w",
				ErrInvalidSnapshot, field.name, err)
		}
		*field.dest = rate
	}

	return &rates, nil
}

// Utxos returns a copy of the snapshot outputs of address. An address that
// is not in the snapshot has none.
func (f *FileSource) Utxos(ctx context.Context,
	address string) ([]coinselect.Utxo, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return slices.Clone(f.utxos[address]), nil
}

// FeeRates returns the snapshot fee rates.
func (f *FileSource) FeeRates(ctx context.Context) (*FeeRates, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rates := f.rates

	return &rates, nil
}
