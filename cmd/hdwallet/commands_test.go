// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"os"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/hdwallet/netparams"
	"github.com/btcsuite/hdwallet/waddrmgr"
	"github.com/btcsuite/hdwallet/wallet/txauthor"
	"github.com/stretchr/testify/require"
)

const (
	testTxID = "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"

	// testZpub is the BIP84 account key of the all "abandon" mnemonic.
	testZpub = "zpub6rFR7y4Q2AijBEqTUquhVz398htDFrtymD9xYYfG1m4wAcvP" +
		"hXNfE3EfH1r1ADqtfSdVCToUG868RvUUkgDKf31mGDtKsAYz2oz2AGutZYs"
)

// TestParseTarget checks the address=amount forms.
func TestParseTarget(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		in      string
		value   btcutil.Amount
		max     bool
		wantErr bool
	}{
		{"btc", "bc1qaddr=0.001", 100_000, false, false},
		{"sats", "bc1qaddr=1500sat", 1_500, false, false},
		{"max", "bc1qaddr=MAX", 0, true, false},
		{"no amount", "bc1qaddr", 0, false, true},
		{"no address", "=1", 0, false, true},
		{"negative", "bc1qaddr=-1", 0, false, true},
		{"zero", "bc1qaddr=0", 0, false, true},
		{"garbage", "bc1qaddr=lots", 0, false, true},
	}

	for _, tc := range testCases {
		target, err := parseTarget(tc.in)
		if tc.wantErr {
			require.Error(t, err, tc.name)
			continue
		}
		require.NoError(t, err, tc.name)
		require.Equal(t, "bc1qaddr", target.Address, tc.name)

		if tc.max {
			require.True(t, target.Value.IsNone(), tc.name)
			continue
		}
		require.Equal(t, tc.value, target.Value.UnwrapOr(0), tc.name)
	}
}

// TestParseOutpoint checks txid:vout parsing.
func TestParseOutpoint(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		in      string
		vout    uint32
		wantErr bool
	}{
		{"valid", testTxID + ":3", 3, false},
		{"no index", testTxID, 0, true},
		{"short txid", "abcd:1", 0, true},
		{"bad index", testTxID + ":x", 0, true},
		{"index overflow", testTxID + ":4294967296", 0, true},
	}

	for _, tc := range testCases {
		txid, vout, err := parseOutpoint(tc.in)
		if tc.wantErr {
			require.Error(t, err, tc.name)
			continue
		}
		require.NoError(t, err, tc.name)
		require.Equal(t, testTxID, txid, tc.name)
		require.Equal(t, tc.vout, vout, tc.name)
	}
}

// TestParseCosigner checks fingerprint:xpub[:path] parsing.
func TestParseCosigner(t *testing.T) {
	t.Parallel()

	c, err := parseCosigner("73c5da0a:" + testZpub + ":m/84'/0'/0'")
	require.NoError(t, err)
	require.True(t, c.IsWatchOnly())
	require.Equal(t, "73c5da0a", waddrmgr.FormatFingerprint(c.Fingerprint()))

	_, err = parseCosigner(testZpub)
	require.Error(t, err)

	_, err = parseCosigner("zz:" + testZpub)
	require.Error(t, err)

	_, err = parseCosigner("73c5da0a:" + testZpub + ":m/x")
	require.Error(t, err)
}

// TestParseStrategy checks the selection strategy names.
func TestParseStrategy(t *testing.T) {
	t.Parallel()

	s, err := parseStrategy("constant")
	require.NoError(t, err)
	require.Equal(t, txauthor.ConstantSelection, s)

	_, err = parseStrategy("random")
	require.Error(t, err)
}

// TestDecodeTransactions checks that psbts decode from hex and base64 and
// that raw transactions round trip.
func TestDecodeTransactions(t *testing.T) {
	t.Parallel()

	hash, err := chainhash.NewHashFromStr(testTxID)
	require.NoError(t, err)

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, 1), nil, nil))
	tx.AddTxOut(wire.NewTxOut(1_000, []byte{0x51}))

	raw, err := encodeTx(tx)
	require.NoError(t, err)
	decoded, err := decodeTx(raw)
	require.NoError(t, err)
	require.Equal(t, tx.TxHash(), decoded.TxHash())

	packet, err := psbt.NewFromUnsignedTx(tx)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, packet.Serialize(&buf))

	for _, encoded := range []string{
		base64.StdEncoding.EncodeToString(buf.Bytes()),
		"  " + strings.ToUpper(hex.EncodeToString(buf.Bytes())) + "\n",
	} {
		p, err := decodePsbt(encoded)
		require.NoError(t, err)
		require.Equal(t, tx.TxHash(), p.UnsignedTx.TxHash())
	}

	// An unsigned packet is not a broadcastable transaction.
	_, err = decodeTx(base64.StdEncoding.EncodeToString(buf.Bytes()))
	require.Error(t, err)

	_, err = decodeTx("not a transaction")
	require.Error(t, err)
}

// TestWatchOnlyWalletCommands runs the offline commands against a wallet
// imported from an account key.
func TestWatchOnlyWalletCommands(t *testing.T) {
	var out bytes.Buffer
	stdout = &out
	t.Cleanup(func() {
		stdout = os.Stdout
	})

	cfg := defaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.activeNet = &netparams.MainNetParams

	ctx := context.Background()

	importCmd := &importXPubCommand{Fingerprint: "73c5da0a", GapLimit: 5}
	require.Error(t, importCmd.run(ctx, &cfg, nil))
	require.NoError(t, importCmd.run(ctx, &cfg, []string{testZpub}))
	require.Contains(t, out.String(), "wpkh([73c5da0a/84'/0'/0']")

	// The database exists now.
	require.Error(t, importCmd.run(ctx, &cfg, []string{testZpub}))

	out.Reset()
	addrCmd := &addressCommand{WIF: true}
	require.NoError(t, addrCmd.run(ctx, &cfg, nil))
	require.Contains(t, out.String(),
		"bc1qcr8te4kr609gcawutmrza0j4xv80jy8z306fyu")
	require.Contains(t, out.String(), "[73c5da0a/84'/0'/0'/0/0]")
	require.Contains(t, out.String(), "wif: unavailable")

	out.Reset()
	require.NoError(t, (&receiveCommand{}).run(ctx, &cfg, nil))
	require.True(t, strings.HasPrefix(out.String(),
		"bc1qcr8te4kr609gcawutmrza0j4xv80jy8z306fyu"))

	out.Reset()
	require.NoError(t, (&infoCommand{}).run(ctx, &cfg, nil))
	require.Contains(t, out.String(), "account key: "+testZpub)
	require.Contains(t, out.String(), "gap limit: 5")

	out.Reset()
	require.NoError(t, (&balanceCommand{}).run(ctx, &cfg, nil))
	require.Contains(t, out.String(), "spendable: 0 BTC")

	// Nothing is cached, so there is nothing to freeze.
	freezeCmd := &freezeCommand{}
	require.Error(t, freezeCmd.run(ctx, &cfg, []string{testTxID + ":0"}))
	require.Error(t, freezeCmd.run(ctx, &cfg, nil))

	out.Reset()
	convertCmd := &convertCommand{}
	require.NoError(t, convertCmd.run(ctx, nil, []string{testZpub, "xpub"}))
	require.True(t, strings.HasPrefix(out.String(), "xpub"))
	require.Error(t, convertCmd.run(ctx, nil, []string{testZpub}))
}
