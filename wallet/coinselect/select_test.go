package coinselect

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/snapwallet/btcengine/pkg/btcunit"
	"github.com/snapwallet/btcengine/waddrmgr"
	"github.com/stretchr/testify/require"
)

var chainParams = &chaincfg.MainNetParams

const (
	sourcePubKey = "0330d54fd0dd420a6e5f8d3624f5f3482cae350f79d5f0753bf5beef" +
		"9c2d91af3c"
	destPubKey = "03aaeb52dd7494c361049de67cc680e83ebcbbbdbeb13637d92cd845" +
		"f70308af5e"
)

// p2wpkhAddress returns the P2WPKH address of a hex public key.
func p2wpkhAddress(t *testing.T, pubKeyHex string) string {
	t.Helper()

	pubKey, err := hex.DecodeString(pubKeyHex)
	require.NoError(t, err)

	script, err := waddrmgr.BuildScript(waddrmgr.P2WPKH, pubKey, chainParams)
	require.NoError(t, err)

	return script.Address.EncodeAddress()
}

// testUtxo returns a UTXO with a hash derived from seed.
func testUtxo(seed byte, index uint32, value btcutil.Amount) Utxo {
	return Utxo{
		BlockHeight: 800_000 + int32(seed),
		TxHash:      strings.Repeat(hex.EncodeToString([]byte{seed}), 32),
		OutputIndex: index,
		Value:       value,
	}
}

func newTestSelector(t *testing.T) (*Selector, string, string) {
	t.Helper()

	source := p2wpkhAddress(t, sourcePubKey)
	dest := p2wpkhAddress(t, destPubKey)

	selector, err := NewSelector(chainParams, waddrmgr.P2WPKH, source)
	require.NoError(t, err)

	return selector, source, dest
}

// assertConservation checks that inputs equal outputs plus fee.
func assertConservation(t *testing.T, selection *Selection) {
	t.Helper()

	require.GreaterOrEqual(t, selection.Fee, btcutil.Amount(0))
	require.Equal(
		t, selection.InputTotal(),
		selection.OutputTotal()+selection.Fee,
	)
}

// TestSelectCoinsSingleP2WPKH covers the one input, two output P2WPKH spend
// at 1 sat/vb.
func TestSelectCoinsSingleP2WPKH(t *testing.T) {
	t.Parallel()

	// Arrange.
	selector, source, dest := newTestSelector(t)
	utxos := []Utxo{testUtxo(1, 0, 100_000)}
	targets := []SpendTarget{{Address: dest, Value: 50_000}}

	// Act.
	selection, err := selector.SelectCoins(
		utxos, targets, btcunit.NewSatPerVByte(1),
	)

	// Assert.
	require.NoError(t, err)
	require.Len(t, selection.Inputs, 1)
	require.Len(t, selection.Outputs, 2)
	require.Equal(t, utxos[0], selection.Inputs[0])
	require.Equal(t, targets[0], selection.Outputs[0])
	require.Equal(t, 1, selection.ChangeIndex)
	require.Equal(t, source, selection.Outputs[1].Address)

	require.Equal(
		t, selection.Inputs[0].Value-selection.OutputTotal(),
		selection.Fee,
	)
	require.GreaterOrEqual(t, selection.Fee, btcutil.Amount(110))
	require.LessOrEqual(t, selection.Fee, btcutil.Amount(200))
	assertConservation(t, selection)
}

// TestSelectCoinsDeterministic checks that the input order does not change the
// result and that larger coins are used first.
func TestSelectCoinsDeterministic(t *testing.T) {
	t.Parallel()

	selector, _, dest := newTestSelector(t)
	a := testUtxo(1, 0, 30_000)
	b := testUtxo(2, 1, 70_000)
	c := testUtxo(3, 0, 20_000)
	targets := []SpendTarget{{Address: dest, Value: 80_000}}
	rate := btcunit.NewSatPerVByte(2)

	first, err := selector.SelectCoins([]Utxo{a, b, c}, targets, rate)
	require.NoError(t, err)

	second, err := selector.SelectCoins([]Utxo{c, a, b}, targets, rate)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, []Utxo{b, a}, first.Inputs)
	assertConservation(t, first)
}

// TestSelectCoinsEqualValues checks that ties are broken by the stable ID.
func TestSelectCoinsEqualValues(t *testing.T) {
	t.Parallel()

	selector, _, dest := newTestSelector(t)
	a := testUtxo(4, 0, 60_000)
	b := testUtxo(5, 0, 60_000)
	targets := []SpendTarget{{Address: dest, Value: 10_000}}

	first, err := selector.SelectCoins(
		[]Utxo{a, b}, targets, btcunit.NewSatPerVByte(1),
	)
	require.NoError(t, err)

	second, err := selector.SelectCoins(
		[]Utxo{b, a}, targets, btcunit.NewSatPerVByte(1),
	)
	require.NoError(t, err)

	require.Len(t, first.Inputs, 1)
	require.Equal(t, first.Inputs, second.Inputs)
}

// TestSelectCoinsFoldsDustChange checks that a leftover below the dust limit
// is paid to the fee instead of a change output.
func TestSelectCoinsFoldsDustChange(t *testing.T) {
	t.Parallel()

	selector, _, dest := newTestSelector(t)

	selection, err := selector.SelectCoins(
		[]Utxo{testUtxo(1, 0, 50_300)},
		[]SpendTarget{{Address: dest, Value: 50_000}},
		btcunit.NewSatPerVByte(1),
	)
	require.NoError(t, err)

	require.Len(t, selection.Outputs, 1)
	require.Equal(t, -1, selection.ChangeIndex)
	require.Equal(t, btcutil.Amount(300), selection.Fee)
	assertConservation(t, selection)
}

// TestSelectCoinsSkipsUneconomicUtxos checks that inputs worth less than
// their own fee are never selected.
func TestSelectCoinsSkipsUneconomicUtxos(t *testing.T) {
	t.Parallel()

	selector, _, dest := newTestSelector(t)
	dust := testUtxo(9, 0, 100)

	selection, err := selector.SelectCoins(
		[]Utxo{dust, testUtxo(1, 0, 100_000)},
		[]SpendTarget{{Address: dest, Value: 99_000}},
		btcunit.NewSatPerVByte(10),
	)

	// The big coin alone cannot pay 99k plus the fee at 10 sat/vb and the
	// dust coin is not usable.
	var fundsErr *InsufficientFundsError
	require.ErrorAs(t, err, &fundsErr)
	require.Nil(t, selection)
	require.Equal(t, btcutil.Amount(100_000), fundsErr.Available)
}

// TestSelectCoinsInsufficientFunds checks the lack of funds error.
func TestSelectCoinsInsufficientFunds(t *testing.T) {
	t.Parallel()

	selector, _, dest := newTestSelector(t)

	_, err := selector.SelectCoins(
		[]Utxo{testUtxo(1, 0, 50_000)},
		[]SpendTarget{{Address: dest, Value: 50_000}},
		btcunit.NewSatPerVByte(1),
	)

	var fundsErr *InsufficientFundsError
	require.ErrorAs(t, err, &fundsErr)
	require.ErrorContains(t, err, "Not enough funds")
	require.Equal(t, btcutil.Amount(50_000), fundsErr.Target)

	_, err = selector.SelectCoins(
		nil, []SpendTarget{{Address: dest, Value: 1_000}},
		btcunit.NewSatPerVByte(1),
	)
	require.ErrorAs(t, err, &fundsErr)
}

// TestSelectCoinsInvalidRequests checks the validation errors.
func TestSelectCoinsInvalidRequests(t *testing.T) {
	t.Parallel()

	selector, _, dest := newTestSelector(t)
	good := testUtxo(1, 0, 100_000)
	target := []SpendTarget{{Address: dest, Value: 10_000}}
	rate := btcunit.NewSatPerVByte(1)

	testCases := []struct {
		name    string
		utxos   []Utxo
		targets []SpendTarget
		rate    btcunit.SatPerVByte
		cause   error
	}{
		{
			name:    "zero fee rate",
			utxos:   []Utxo{good},
			targets: target,
			rate:    btcunit.ZeroSatPerVByte,
			cause:   ErrInvalidFeeRate,
		},
		{
			name:  "no targets",
			utxos: []Utxo{good},
			rate:  rate,
			cause: ErrNoTargets,
		},
		{
			name:  "dust target",
			utxos: []Utxo{good},
			targets: []SpendTarget{
				{Address: dest, Value: 100},
			},
			rate:  rate,
			cause: txrules.ErrOutputIsDust,
		},
		{
			name:  "testnet address",
			utxos: []Utxo{good},
			targets: []SpendTarget{{
				Address: "tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx",
				Value:   10_000,
			}},
			rate:  rate,
			cause: ErrInvalidAddress,
		},
		{
			name:    "duplicate utxo",
			utxos:   []Utxo{good, good},
			targets: target,
			rate:    rate,
			cause:   ErrDuplicateUtxo,
		},
		{
			name: "bad hash",
			utxos: []Utxo{{
				TxHash: "zz", Value: 1_000,
			}},
			targets: target,
			rate:    rate,
			cause:   ErrInvalidUtxo,
		},
		{
			name:    "zero value utxo",
			utxos:   []Utxo{testUtxo(2, 0, 0)},
			targets: target,
			rate:    rate,
			cause:   ErrInvalidUtxo,
		},
		{
			name: "utxo above max supply",
			utxos: []Utxo{
				good, testUtxo(3, 0, btcutil.MaxSatoshi+1),
			},
			targets: target,
			rate:    rate,
			cause:   ErrInvalidUtxo,
		},
		{
			name:    "fee rate above max",
			utxos:   []Utxo{good},
			targets: target,
			rate:    btcunit.NewSatPerVByte(MaxFeeRatePerKb/1000 + 1),
			cause:   ErrInvalidFeeRate,
		},
		{
			name:    "fee rate beyond int64",
			utxos:   []Utxo{good},
			targets: target,
			rate:    btcunit.NewSatPerVByte(1e17),
			cause:   ErrInvalidFeeRate,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := selector.SelectCoins(tc.utxos, tc.targets, tc.rate)

			var svcErr *UtxoServiceError
			require.ErrorAs(t, err, &svcErr)
			require.ErrorIs(t, err, tc.cause)
		})
	}
}

// TestNewSelectorErrors checks the selector construction errors.
func TestNewSelectorErrors(t *testing.T) {
	t.Parallel()

	_, err := NewSelector(chainParams, waddrmgr.P2WPKH, "not-an-address")
	require.ErrorIs(t, err, ErrInvalidAddress)

	_, err = NewSelector(
		chainParams, waddrmgr.ScriptTypeUnknown,
		p2wpkhAddress(t, sourcePubKey),
	)
	require.ErrorIs(t, err, waddrmgr.ErrUnsupportedScriptType)
}

// TestUtxoID checks that every field feeds the stable identifier.
func TestUtxoID(t *testing.T) {
	t.Parallel()

	base := testUtxo(1, 0, 1_000)
	require.Equal(t, base.ID(), base.ID())

	changed := []Utxo{base, base, base, base}
	changed[0].TxHash = testUtxo(2, 0, 1_000).TxHash
	changed[1].BlockHeight++
	changed[2].OutputIndex++
	changed[3].Value++

	for _, utxo := range changed {
		require.NotEqual(t, base.ID(), utxo.ID())
	}
}
