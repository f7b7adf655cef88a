// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/hdwallet/chain"
	"github.com/btcsuite/hdwallet/waddrmgr"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// bucket returns a copy of the cached transactions of one address.
func bucket(w *Wallet, branch waddrmgr.Branch, index uint32) []Transaction {
	w.stateMtx.RLock()
	defer w.stateMtx.RUnlock()

	return append([]Transaction(nil), w.state.branch(branch).Txs[index]...)
}

// txids lists the ids of txs in order.
func txids(txs []Transaction) []string {
	ids := make([]string, 0, len(txs))
	for _, tx := range txs {
		ids = append(ids, tx.TxID)
	}
	return ids
}

// TestBalanceSpendable checks that pending spends reduce the spendable
// balance while pending receives do not add to it.
func TestBalanceSpendable(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		balance   Balance
		spendable btcutil.Amount
	}{
		{
			name:      "confirmed only",
			balance:   Balance{Confirmed: 1_000},
			spendable: 1_000,
		},
		{
			name:      "pending spend",
			balance:   Balance{Confirmed: 1_000, Unconfirmed: -300},
			spendable: 700,
		},
		{
			name:      "pending receive",
			balance:   Balance{Confirmed: 1_000, Unconfirmed: 500},
			spendable: 1_000,
		},
		{
			name:      "only pending",
			balance:   Balance{Unconfirmed: 500},
			spendable: 0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tc.spendable, tc.balance.Spendable())
		})
	}
}

// TestFetchBalanceCatchUp checks that a synced wallet advances its cursor
// window by window, at most MaxCatchUp windows per sync.
func TestFetchBalanceCatchUp(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	idx := newFakeIndex()
	w, err := New(Config{
		Identity:   singleSigIdentity(t, waddrmgr.WitnessPubKey),
		Backend:    idx,
		GapLimit:   5,
		MaxCatchUp: 2,
		Clock:      clock.NewTestClock(testTime),
	})
	require.NoError(t, err)
	t.Cleanup(w.Close)

	idx.fund(t, mustAddress(t, w, waddrmgr.ExternalBranch, 0), 1_000, 10)
	require.NoError(t, w.FetchBalance(ctx))
	require.EqualValues(t, 1, w.NextFree(waddrmgr.ExternalBranch))

	// Addresses handed out since, all of them used.
	for i := uint32(1); i < 30; i++ {
		idx.fund(t, mustAddress(t, w, waddrmgr.ExternalBranch, i),
			1_000, 10)
	}

	for _, want := range []uint32{11, 21, 30, 30} {
		require.NoError(t, w.FetchBalance(ctx))
		require.Equal(t, want, w.NextFree(waddrmgr.ExternalBranch))
	}
	require.Equal(t, btcutil.Amount(30_000), w.Balance().Confirmed)
}

// TestFetchBalanceDropsStaleTxs checks that a balance change invalidates
// the transactions cached for that address only.
func TestFetchBalanceDropsStaleTxs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	idx := newFakeIndex()
	w, _ := newTestWallet(t, singleSigIdentity(t, waddrmgr.WitnessPubKey),
		idx)

	rec0 := mustAddress(t, w, waddrmgr.ExternalBranch, 0)
	rec1 := mustAddress(t, w, waddrmgr.ExternalBranch, 1)
	idx.fund(t, rec0, 10_000, 10)
	idx.fund(t, rec1, 20_000, 10)

	require.NoError(t, w.Sync(ctx))
	require.Len(t, bucket(w, waddrmgr.ExternalBranch, 0), 1)
	require.Len(t, bucket(w, waddrmgr.ExternalBranch, 1), 1)

	idx.setBalance(rec0.EncodeAddress(), chain.Balance{
		Confirmed: 10_000, Unconfirmed: -4_000,
	})
	require.NoError(t, w.FetchBalance(ctx))

	require.Empty(t, bucket(w, waddrmgr.ExternalBranch, 0))
	require.Len(t, bucket(w, waddrmgr.ExternalBranch, 1), 1)
	require.Equal(t, Balance{Confirmed: 30_000, Unconfirmed: -4_000},
		w.Balance())
	require.Equal(t, btcutil.Amount(26_000), w.Balance().Spendable())

	// A balance dropping to zero leaves no entry behind.
	idx.setBalance(rec0.EncodeAddress(), chain.Balance{})
	require.NoError(t, w.FetchBalance(ctx))

	w.stateMtx.RLock()
	_, ok := w.state.branch(waddrmgr.ExternalBranch).Balances[0]
	w.stateMtx.RUnlock()
	require.False(t, ok)
}

// TestFetchTransactionsRefetchRules checks which addresses are queried
// again: empty buckets, shallow confirmations and pending balances.
func TestFetchTransactionsRefetchRules(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	idx := newFakeIndex()
	w, _ := newTestWallet(t, singleSigIdentity(t, waddrmgr.WitnessPubKey),
		idx)

	settled := mustAddress(t, w, waddrmgr.ExternalBranch, 0)
	shallow := mustAddress(t, w, waddrmgr.ExternalBranch, 1)
	unused := mustAddress(t, w, waddrmgr.ExternalBranch, 2)
	idx.fund(t, settled, 10_000, 10)
	shallowTx := idx.fund(t, shallow, 20_000, 3)

	require.NoError(t, w.Sync(ctx))
	require.Equal(t, []string{shallowTx.TxID},
		txids(bucket(w, waddrmgr.ExternalBranch, 1)))

	idx.resetQueries()
	require.NoError(t, w.FetchTransactions(ctx))
	require.False(t, idx.queriedHistory(settled.EncodeAddress()))
	require.True(t, idx.queriedHistory(shallow.EncodeAddress()))
	require.True(t, idx.queriedHistory(unused.EncodeAddress()))

	idx.setConfirmations(shallowTx.TxID, 8)
	require.NoError(t, w.FetchTransactions(ctx))

	cached := bucket(w, waddrmgr.ExternalBranch, 1)
	require.Len(t, cached, 1)
	require.EqualValues(t, 8, cached[0].Confirmations)

	idx.resetQueries()
	require.NoError(t, w.FetchTransactions(ctx))
	require.False(t, idx.queriedHistory(shallow.EncodeAddress()))
	require.Equal(t, idx.height, w.BestHeight())
}

// TestFetchTransactionsPurgesUnconfirmed checks that unconfirmed entries
// that vanished from the index are dropped and the rest replaced in place.
func TestFetchTransactionsPurgesUnconfirmed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	idx := newFakeIndex()
	w, _ := newTestWallet(t, singleSigIdentity(t, waddrmgr.WitnessPubKey),
		idx)

	rec := mustAddress(t, w, waddrmgr.ExternalBranch, 0)
	confirmed := idx.fund(t, rec, 10_000, 10)
	evicted := idx.fund(t, rec, 2_000, 0)
	pending := idx.fund(t, rec, 3_000, 0)

	require.NoError(t, w.Sync(ctx))
	require.Equal(t,
		[]string{confirmed.TxID, evicted.TxID, pending.TxID},
		txids(bucket(w, waddrmgr.ExternalBranch, 0)))

	idx.drop(evicted.TxID)
	idx.setConfirmations(pending.TxID, 1)
	require.NoError(t, w.FetchTransactions(ctx))

	cached := bucket(w, waddrmgr.ExternalBranch, 0)
	require.Equal(t, []string{confirmed.TxID, pending.TxID}, txids(cached))
	require.EqualValues(t, 1, cached[1].Confirmations)
	require.Equal(t, idx.height, cached[1].BlockHeight)
}

// TestFetchTransactionsResolvesInputs checks that spent outputs are looked
// up so the history carries the value leaving the wallet.
func TestFetchTransactionsResolvesInputs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	idx := newFakeIndex()
	w, testClock := newTestWallet(
		t, singleSigIdentity(t, waddrmgr.WitnessPubKey), idx,
	)

	recv := mustAddress(t, w, waddrmgr.ExternalBranch, 0)
	change := mustAddress(t, w, waddrmgr.InternalBranch, 0)

	funding := idx.fund(t, recv, 50_000, 10)
	send := idx.spend(
		funding, 2, foreignOutput(t, 20_000),
		walletOutput(change, 29_000),
	)
	pending := idx.fund(t, mustAddress(t, w, waddrmgr.ExternalBranch, 1),
		7_000, 0)

	require.NoError(t, w.Sync(ctx))
	require.EqualValues(t, 1, w.NextFree(waddrmgr.InternalBranch))

	sendBucket := bucket(w, waddrmgr.InternalBranch, 0)
	require.Len(t, sendBucket, 1)
	require.Equal(t, recv.EncodeAddress(), sendBucket[0].Inputs[0].Address)
	require.Equal(t, btcutil.Amount(50_000), sendBucket[0].Inputs[0].Value)

	history, err := w.Transactions()
	require.NoError(t, err)
	require.Len(t, history, 3)

	require.Equal(t, pending.TxID, history[0].TxID)
	require.Equal(t, btcutil.Amount(7_000), history[0].Value)
	require.Equal(t, testClock.Now().Add(-30*time.Second), history[0].Time)

	require.Equal(t, send.TxID, history[1].TxID)
	require.Equal(t, btcutil.Amount(-21_000), history[1].Value)

	require.Equal(t, funding.TxID, history[2].TxID)
	require.Equal(t, btcutil.Amount(50_000), history[2].Value)
	require.Equal(t, time.Unix(funding.BlockTime, 0), history[2].Time)
}

// TestFetchUtxoSorted checks that unspent outputs are cached in ascending
// value order with their location.
func TestFetchUtxoSorted(t *testing.T) {
	t.Parallel()

	idx := newFakeIndex()
	w, _ := newTestWallet(t, singleSigIdentity(t, waddrmgr.WitnessPubKey),
		idx)

	values := []btcutil.Amount{3_000, 1_000, 2_000}
	for i, v := range values {
		idx.fund(t, mustAddress(t, w, waddrmgr.ExternalBranch,
			uint32(i)), v, 10)
	}

	require.NoError(t, w.Sync(context.Background()))

	utxos := w.UnspentOutputs(OutputSelectionPolicy{})
	require.Len(t, utxos, 3)
	for i, want := range []btcutil.Amount{1_000, 2_000, 3_000} {
		require.Equal(t, want, utxos[i].Value)
	}
	require.Equal(t, uint32(1), utxos[0].Index)
	require.Equal(t, waddrmgr.ExternalBranch, utxos[0].Branch)
	require.Equal(t, mustAddress(t, w, waddrmgr.ExternalBranch, 1).
		EncodeAddress(), utxos[0].Address)
}

// TestFetchUtxoFallback checks that outputs are derived from cached
// transactions when the index cannot list them.
func TestFetchUtxoFallback(t *testing.T) {
	t.Parallel()

	idx := newFakeIndex()
	idx.noUtxo = true
	w, _ := newTestWallet(t, singleSigIdentity(t, waddrmgr.WitnessPubKey),
		idx)

	recv := mustAddress(t, w, waddrmgr.ExternalBranch, 0)
	change := mustAddress(t, w, waddrmgr.InternalBranch, 0)
	funding := idx.fund(t, recv, 50_000, 10)
	send := idx.spend(
		funding, 2, foreignOutput(t, 20_000),
		walletOutput(change, 29_000),
	)
	kept := idx.fund(t, mustAddress(t, w, waddrmgr.ExternalBranch, 1),
		4_000, 10)

	require.NoError(t, w.Sync(context.Background()))

	utxos := w.UnspentOutputs(OutputSelectionPolicy{})
	require.Len(t, utxos, 2)

	require.Equal(t, kept.TxID, utxos[0].TxID)
	require.Equal(t, btcutil.Amount(4_000), utxos[0].Value)

	require.Equal(t, send.TxID, utxos[1].TxID)
	require.Equal(t, uint32(1), utxos[1].Vout)
	require.Equal(t, waddrmgr.InternalBranch, utxos[1].Branch)
	require.Equal(t, btcutil.Amount(29_000), utxos[1].Value)
}

// TestSyncKeepsStateOnError checks that a failing backend leaves the cached
// view untouched.
func TestSyncKeepsStateOnError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	idx := newFakeIndex()
	w, testClock := newTestWallet(
		t, singleSigIdentity(t, waddrmgr.WitnessPubKey), idx,
	)

	idx.fund(t, mustAddress(t, w, waddrmgr.ExternalBranch, 0), 10_000, 10)
	idx.fund(t, mustAddress(t, w, waddrmgr.ExternalBranch, 1), 5_000, 0)
	require.NoError(t, w.Sync(ctx))

	before, err := w.Snapshot()
	require.NoError(t, err)

	idx.setErr(chain.ErrBackendUnavailable)
	testClock.SetTime(testTime.Add(time.Hour))

	phases := []struct {
		name string
		run  func(context.Context) error
	}{
		{"sync", w.Sync},
		{"balance", w.FetchBalance},
		{"transactions", w.FetchTransactions},
		{"utxo", w.FetchUtxo},
	}
	for _, p := range phases {
		require.ErrorIs(t, p.run(ctx), chain.ErrBackendUnavailable,
			p.name)
	}

	after, err := w.Snapshot()
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.Equal(t, Balance{Confirmed: 10_000, Unconfirmed: 5_000},
		w.Balance())
}

// TestFetchBalanceBackendError checks a failed discovery with a mocked
// backend.
func TestFetchBalanceBackendError(t *testing.T) {
	t.Parallel()

	backend := &mockBackend{}
	backend.On("MultiGetHistoryByAddress", mock.Anything, mock.Anything).
		Return(nil, chain.ErrBackendUnavailable).Once()

	w, _ := newTestWallet(t, singleSigIdentity(t, waddrmgr.WitnessPubKey),
		backend)

	err := w.FetchBalance(context.Background())
	require.ErrorIs(t, err, chain.ErrBackendUnavailable)
	require.Zero(t, w.NextFree(waddrmgr.ExternalBranch))

	// Nothing holds a balance, so there is nothing to list.
	require.NoError(t, w.FetchUtxo(context.Background()))

	backend.AssertExpectations(t)
	backend.AssertNotCalled(t, "MultiGetBalanceByAddress",
		mock.Anything, mock.Anything)
	backend.AssertNotCalled(t, "MultiGetUtxoByAddress",
		mock.Anything, mock.Anything)
}

// TestSyncWithoutBackend checks that a wallet without a backend refuses to
// sync.
func TestSyncWithoutBackend(t *testing.T) {
	t.Parallel()

	w, _ := newTestWallet(t, singleSigIdentity(t, waddrmgr.WitnessPubKey),
		nil)

	require.ErrorIs(t, w.Sync(context.Background()), ErrNoBackend)
	require.ErrorIs(t, w.Start(), ErrNoBackend)
}
