// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/hdwallet/chain"
	"github.com/btcsuite/hdwallet/waddrmgr"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	abandonMnemonic = "abandon abandon abandon abandon abandon abandon " +
		"abandon abandon abandon abandon abandon about"

	legalMnemonic = "legal winner thank year wave sausage worth useful " +
		"legal winner thank yellow"

	letterMnemonic = "letter advice cage absurd amount doctor acoustic " +
		"avoid letter advice cage above"
)

// testTime is the start time of every test clock.
var testTime = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

// mockBackend is a mock implementation of the chain.Backend interface.
type mockBackend struct {
	mock.Mock
}

// A compile-time assertion to ensure that mockBackend implements the Backend
// interface.
var _ chain.Backend = (*mockBackend)(nil)

// MultiGetHistoryByAddress implements the chain.Backend interface.
func (m *mockBackend) MultiGetHistoryByAddress(ctx context.Context,
	addrs []string) (map[string][]chain.HistoryItem, error) {

	args := m.Called(ctx, addrs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string][]chain.HistoryItem), args.Error(1)
}

// MultiGetTransactionByTxid implements the chain.Backend interface.
func (m *mockBackend) MultiGetTransactionByTxid(ctx context.Context,
	txids []string) (map[string]*chain.Transaction, error) {

	args := m.Called(ctx, txids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]*chain.Transaction), args.Error(1)
}

// MultiGetBalanceByAddress implements the chain.Backend interface.
func (m *mockBackend) MultiGetBalanceByAddress(ctx context.Context,
	addrs []string) (map[string]chain.Balance, error) {

	args := m.Called(ctx, addrs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]chain.Balance), args.Error(1)
}

// MultiGetUtxoByAddress implements the chain.Backend interface.
func (m *mockBackend) MultiGetUtxoByAddress(ctx context.Context,
	addrs []string) (map[string][]chain.Utxo, error) {

	args := m.Called(ctx, addrs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string][]chain.Utxo), args.Error(1)
}

// Broadcast implements the chain.Backend interface.
func (m *mockBackend) Broadcast(ctx context.Context,
	rawTxHex string) (string, error) {

	args := m.Called(ctx, rawTxHex)
	return args.String(0), args.Error(1)
}

// EstimateCurrentBlockHeight implements the chain.Backend interface.
func (m *mockBackend) EstimateCurrentBlockHeight(
	ctx context.Context) (int64, error) {

	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// seedCosigner returns a cosigner holding the seed of mnemonic.
func seedCosigner(t *testing.T, mnemonic string) *waddrmgr.Cosigner {
	t.Helper()

	seed, err := waddrmgr.NewMnemonicSeed(mnemonic, "")
	require.NoError(t, err)

	return waddrmgr.NewSeedCosigner(seed, fn.None[waddrmgr.Path]())
}

// singleSigIdentity returns a mainnet identity of the abandon mnemonic.
func singleSigIdentity(t *testing.T,
	scriptType waddrmgr.ScriptType) *waddrmgr.Identity {

	t.Helper()

	id, err := waddrmgr.NewSingleSigIdentity(
		&chaincfg.MainNetParams, scriptType,
		seedCosigner(t, abandonMnemonic),
	)
	require.NoError(t, err)

	return id
}

// watchOnly returns a copy of a bound cosigner without its seed.
func watchOnly(t *testing.T, c *waddrmgr.Cosigner) *waddrmgr.Cosigner {
	t.Helper()

	xpub, err := waddrmgr.NewXPubCosigner(
		c.XPub(), c.Fingerprint(), fn.Some(c.Path()),
	)
	require.NoError(t, err)

	return xpub
}

// multisigIdentity returns a 2-of-3 identity over the abandon, legal and
// letter mnemonics where only the cosigners at signers hold their seed.
func multisigIdentity(t *testing.T, scriptType waddrmgr.ScriptType,
	signers ...int) *waddrmgr.Identity {

	t.Helper()

	mnemonics := []string{abandonMnemonic, legalMnemonic, letterMnemonic}
	seeded := make([]*waddrmgr.Cosigner, len(mnemonics))
	for i, m := range mnemonics {
		seeded[i] = seedCosigner(t, m)
	}

	full, err := waddrmgr.NewMultisigIdentity(
		&chaincfg.MainNetParams, scriptType, 2, seeded,
	)
	require.NoError(t, err)

	cosigners := make([]*waddrmgr.Cosigner, len(mnemonics))
	for i, c := range full.Cosigners() {
		cosigners[i] = watchOnly(t, c)
	}
	for _, i := range signers {
		cosigners[i] = seeded[i]
	}

	id, err := waddrmgr.NewMultisigIdentity(
		&chaincfg.MainNetParams, scriptType, 2, cosigners,
	)
	require.NoError(t, err)

	return id
}

// newTestWallet returns a wallet over id and backend with a gap limit of
// five and a test clock.
func newTestWallet(t *testing.T, id *waddrmgr.Identity,
	backend chain.Backend) (*Wallet, *clock.TestClock) {

	t.Helper()

	testClock := clock.NewTestClock(testTime)
	w, err := New(Config{
		Identity: id,
		Backend:  backend,
		GapLimit: 5,
		Clock:    testClock,
	})
	require.NoError(t, err)
	t.Cleanup(w.Close)

	return w, testClock
}

// mustAddress derives a wallet address or fails the test.
func mustAddress(t *testing.T, w *Wallet, branch waddrmgr.Branch,
	index uint32) *waddrmgr.AddressRecord {

	t.Helper()

	rec, err := w.Address(branch, index)
	require.NoError(t, err)

	return rec
}
