// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package waddrmgr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

var (
	// ErrInvalidPath is returned when a derivation path has a malformed
	// segment.
	ErrInvalidPath = errors.New("invalid path")

	// ErrUnknownNetwork is returned for a network name with no chain
	// parameters.
	ErrUnknownNetwork = errors.New("unknown network")
)

// DerivationPath is an ordered list of BIP32 child numbers. Hardened children
// carry hdkeychain.HardenedKeyStart.
type DerivationPath []uint32

// ParsePath parses a path such as "m/84'/0'/0'/0/3" or a relative path such
// as "0'/0/3". Both ' and h mark a hardened segment.
func ParsePath(path string) (DerivationPath, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPath)
	}

	segments := strings.Split(path, "/")
	if segments[0] == "m" || segments[0] == "M" {
		segments = segments[1:]
	}

	parsed := make(DerivationPath, 0, len(segments))
	for _, segment := range segments {
		index, err := parseSegment(segment)
		if err != nil {
			return nil, err
		}

		parsed = append(parsed, index)
	}

	return parsed, nil
}

// parseSegment parses a single path component.
func parseSegment(segment string) (uint32, error) {
	hardened := strings.HasSuffix(segment, "'") ||
		strings.HasSuffix(segment, "h") ||
		strings.HasSuffix(segment, "H")
	if hardened {
		segment = segment[:len(segment)-1]
	}

	index, err := strconv.ParseUint(segment, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: segment %q", ErrInvalidPath, segment)
	}

	if uint32(index) >= hdkeychain.HardenedKeyStart {
		return 0, fmt.Errorf("%w: segment %q out of range",
			ErrInvalidPath, segment)
	}

	if hardened {
		return uint32(index) + hdkeychain.HardenedKeyStart, nil
	}

	return uint32(index), nil
}

// IsAbsolute reports whether a path string is rooted at the master key.
func IsAbsolute(path string) bool {
	path = strings.TrimSpace(path)

	return path == "m" || strings.HasPrefix(path, "m/") ||
		path == "M" || strings.HasPrefix(path, "M/")
}

// HasPrefix reports whether p starts with prefix.
func (p DerivationPath) HasPrefix(prefix DerivationPath) bool {
	if len(prefix) > len(p) {
		return false
	}

	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}

	return true
}

// Child returns a new path extended by the given children.
func (p DerivationPath) Child(children ...uint32) DerivationPath {
	out := make(DerivationPath, 0, len(p)+len(children))
	out = append(out, p...)

	return append(out, children...)
}

// String renders the path with a leading "m" and ' for hardened segments.
func (p DerivationPath) String() string {
	var b strings.Builder
	b.WriteString("m")

	for _, index := range p {
		b.WriteString("/")
		if index >= hdkeychain.HardenedKeyStart {
			b.WriteString(strconv.FormatUint(
				uint64(index-hdkeychain.HardenedKeyStart), 10,
			))
			b.WriteString("'")

			continue
		}

		b.WriteString(strconv.FormatUint(uint64(index), 10))
	}

	return b.String()
}

// NetParams returns the chain parameters of a network by name.
func NetParams(name string) (*chaincfg.Params, error) {
	switch strings.ToLower(name) {
	case "mainnet", "bitcoin":
		return &chaincfg.MainNetParams, nil

	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params, nil

	case "regtest", "regression":
		return &chaincfg.RegressionNetParams, nil

	case "signet":
		return &chaincfg.SigNetParams, nil

	case "simnet":
		return &chaincfg.SimNetParams, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNetwork, name)
	}
}
