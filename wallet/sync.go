// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/btcsuite/hdwallet/chain"
	"github.com/btcsuite/hdwallet/waddrmgr"
)

// syncFailed logs a failed sync phase.  The cached state is untouched when
// it is called, so the wallet keeps serving the last good view.
func syncFailed(phase string, err error) error {
	log.Warnf("%s sync failed, keeping cached state: %v", phase, err)
	return fmt.Errorf("%s sync: %w", phase, err)
}

// Sync runs the balance, transaction and utxo phases in order and saves a
// snapshot if the wallet has a database.  It stops at the first failing
// phase.
func (w *Wallet) Sync(ctx context.Context) error {
	if err := w.FetchBalance(ctx); err != nil {
		return err
	}
	if err := w.FetchTransactions(ctx); err != nil {
		return err
	}
	if err := w.FetchUtxo(ctx); err != nil {
		return err
	}

	if w.cfg.DB == nil {
		return nil
	}
	return w.Save()
}

// FetchBalance refreshes the cursors and the per address balances.  A
// pristine wallet first discovers both chains.  Each chain is then probed
// one gap limit window past its cursor, advancing while addresses beyond it
// turn out used, at most MaxCatchUp times.  Finally the balance of every
// address in [0, next_free + gap_limit) is queried; an address whose balance
// changed loses its cached transactions so the next transaction sync
// fetches them again.
func (w *Wallet) FetchBalance(ctx context.Context) error {
	backend, err := w.backend()
	if err != nil {
		return err
	}

	w.syncMtx.Lock()
	defer w.syncMtx.Unlock()

	w.stateMtx.RLock()
	d := w.deriver
	pristine := w.state.isPristine()
	cursors := make(map[waddrmgr.Branch]uint32, len(waddrmgr.Branches))
	for _, b := range waddrmgr.Branches {
		cursors[b] = w.state.branch(b).NextFree
	}
	w.stateMtx.RUnlock()

	if pristine {
		for _, b := range waddrmgr.Branches {
			next, err := w.discover(ctx, backend, d, b)
			if err != nil {
				return syncFailed("balance", err)
			}
			cursors[b] = next
		}
	}

	for _, b := range waddrmgr.Branches {
		next, err := w.catchUp(ctx, backend, d, b, cursors[b])
		if err != nil {
			return syncFailed("balance", err)
		}
		cursors[b] = next
	}

	var addrs []string
	locs := make(map[string]ownedAddr)
	for _, b := range waddrmgr.Branches {
		window, err := w.addressRange(
			d, b, 0, w.windowEnd(cursors[b]),
		)
		if err != nil {
			return err
		}
		for i, addr := range window {
			locs[addr] = ownedAddr{branch: b, index: uint32(i)}
		}
		addrs = append(addrs, window...)
	}

	balances, err := backend.MultiGetBalanceByAddress(ctx, addrs)
	if err != nil {
		return syncFailed("balance", err)
	}

	w.stateMtx.Lock()
	defer w.stateMtx.Unlock()

	for _, b := range waddrmgr.Branches {
		bs := w.state.branch(b)
		if cursors[b] > bs.NextFree {
			bs.NextFree = cursors[b]
		}
	}

	changed := 0
	for addr, bal := range balances {
		loc, ok := locs[addr]
		if !ok {
			continue
		}

		bs := w.state.branch(loc.branch)
		fresh := AddressBalance{
			Confirmed:   bal.Confirmed,
			Unconfirmed: bal.Unconfirmed,
		}
		if bs.Balances[loc.index] == fresh {
			continue
		}

		delete(bs.Txs, loc.index)
		if fresh.IsZero() {
			delete(bs.Balances, loc.index)
		} else {
			bs.Balances[loc.index] = fresh
		}
		changed++
	}
	w.state.LastBalanceSync = w.cfg.Clock.Now()

	log.Debugf("Balance sync: %d %s changed, cursors external=%d "+
		"internal=%d", changed, pickNoun(changed, "address", "addresses"),
		cursors[waddrmgr.ExternalBranch],
		cursors[waddrmgr.InternalBranch])

	return nil
}

// catchUp advances the cursor of branch while the window past it has used
// addresses, probing at most MaxCatchUp windows.
func (w *Wallet) catchUp(ctx context.Context, backend chain.Backend,
	d *waddrmgr.Deriver, branch waddrmgr.Branch,
	next uint32) (uint32, error) {

	for i := 0; i < w.cfg.MaxCatchUp; i++ {
		addrs, err := w.addressRange(d, branch, next, w.windowEnd(next))
		if err != nil {
			return 0, err
		}

		hist, err := backend.MultiGetHistoryByAddress(ctx, addrs)
		if err != nil {
			return 0, err
		}

		found := lastUsedInWindow(next, addrs, hist)
		if found == next {
			return next, nil
		}

		log.Debugf("Advancing %v chain from %d to %d", branch, next,
			found)
		next = found
	}

	log.Warnf("Catch-up on %v chain stopped after %d windows at index %d",
		branch, w.cfg.MaxCatchUp, next)

	return next, nil
}

// FetchTransactions refreshes the transaction buckets of every address in
// the sync window that is empty, holds a transaction with fewer than seven
// confirmations or has a pending balance.  Histories are fetched first, then
// the transactions, then the transactions their inputs spend.  Only then is
// the cache touched: the unconfirmed transactions of the refetched addresses
// are dropped and the fetched ones merged in by txid.
func (w *Wallet) FetchTransactions(ctx context.Context) error {
	backend, err := w.backend()
	if err != nil {
		return err
	}

	w.syncMtx.Lock()
	defer w.syncMtx.Unlock()

	w.stateMtx.RLock()
	d := w.deriver
	var refetch []string
	locs := make(map[string]ownedAddr)
	for _, b := range waddrmgr.Branches {
		bs := w.state.branch(b)
		end := w.windowEnd(bs.NextFree)
		for i := uint32(0); i < end; i++ {
			if !bs.needsRefetch(i) {
				continue
			}

			addr, err := d.AddressString(b, i)
			if err != nil {
				w.stateMtx.RUnlock()
				return err
			}
			refetch = append(refetch, addr)
			locs[addr] = ownedAddr{branch: b, index: i}
		}
	}
	w.stateMtx.RUnlock()

	height, err := backend.EstimateCurrentBlockHeight(ctx)
	if err != nil {
		return syncFailed("transaction", err)
	}

	if len(refetch) == 0 {
		w.stateMtx.Lock()
		w.state.BestHeight = height
		w.state.LastTxSync = w.cfg.Clock.Now()
		w.stateMtx.Unlock()
		return nil
	}

	hist, err := backend.MultiGetHistoryByAddress(ctx, refetch)
	if err != nil {
		return syncFailed("transaction", err)
	}

	var txids []string
	seen := make(map[string]struct{})
	for _, addr := range refetch {
		for _, item := range hist[addr] {
			if _, ok := seen[item.TxID]; ok {
				continue
			}
			seen[item.TxID] = struct{}{}
			txids = append(txids, item.TxID)
		}
	}

	txs, err := backend.MultiGetTransactionByTxid(ctx, txids)
	if err != nil {
		return syncFailed("transaction", err)
	}

	// The index does not embed spent outputs, so fetch the transactions
	// the inputs spend to learn their addresses and values.
	var prevIDs []string
	for _, txid := range txids {
		tx, ok := txs[txid]
		if !ok {
			continue
		}
		for _, in := range tx.Vin {
			if in.IsCoinbase {
				continue
			}
			if _, ok := seen[in.TxID]; ok {
				continue
			}
			seen[in.TxID] = struct{}{}
			prevIDs = append(prevIDs, in.TxID)
		}
	}

	prevTxs := make(map[string]*chain.Transaction, len(txs)+len(prevIDs))
	for txid, tx := range txs {
		prevTxs[txid] = tx
	}
	if len(prevIDs) > 0 {
		prev, err := backend.MultiGetTransactionByTxid(ctx, prevIDs)
		if err != nil {
			return syncFailed("transaction", err)
		}
		for txid, tx := range prev {
			prevTxs[txid] = tx
		}
	}

	converted := make(map[string]Transaction, len(txs))
	for txid, tx := range txs {
		c, err := newTransaction(tx, prevTxs)
		if err != nil {
			return syncFailed("transaction", err)
		}
		converted[txid] = c
	}

	w.stateMtx.Lock()
	defer w.stateMtx.Unlock()

	for _, addr := range refetch {
		loc := locs[addr]
		bs := w.state.branch(loc.branch)

		fetched := make([]Transaction, 0, len(hist[addr]))
		for _, item := range hist[addr] {
			if tx, ok := converted[item.TxID]; ok {
				fetched = append(fetched, tx)
			}
		}

		merged := mergeBucket(bs.Txs[loc.index], fetched)
		if len(merged) == 0 {
			delete(bs.Txs, loc.index)
			continue
		}
		bs.Txs[loc.index] = merged
	}
	w.state.BestHeight = height
	w.state.LastTxSync = w.cfg.Clock.Now()

	log.Debugf("Transaction sync: refetched %d %s, %d %s",
		len(refetch), pickNoun(len(refetch), "address", "addresses"),
		len(converted), pickNoun(len(converted), "transaction",
			"transactions"))

	return nil
}

// FetchUtxo replaces the cached unspent outputs with those of every address
// holding a balance, sorted by ascending value.  If the index cannot list
// unspent outputs they are derived from the transaction cache instead.
func (w *Wallet) FetchUtxo(ctx context.Context) error {
	backend, err := w.backend()
	if err != nil {
		return err
	}

	w.syncMtx.Lock()
	defer w.syncMtx.Unlock()

	w.stateMtx.RLock()
	d := w.deriver
	var addrs []string
	locs := make(map[string]ownedAddr)
	for _, b := range waddrmgr.Branches {
		for idx, bal := range w.state.branch(b).Balances {
			if bal.IsZero() {
				continue
			}

			addr, err := d.AddressString(b, idx)
			if err != nil {
				w.stateMtx.RUnlock()
				return err
			}
			if _, ok := locs[addr]; ok {
				continue
			}
			locs[addr] = ownedAddr{branch: b, index: idx}
			addrs = append(addrs, addr)
		}
	}
	w.stateMtx.RUnlock()

	sort.Strings(addrs)

	var utxos []Utxo
	if len(addrs) > 0 {
		res, err := backend.MultiGetUtxoByAddress(ctx, addrs)
		switch {
		case errors.Is(err, chain.ErrUtxoQueryUnsupported):
			log.Debugf("Backend cannot list utxos, deriving them " +
				"from cached transactions")

			w.stateMtx.Lock()
			defer w.stateMtx.Unlock()

			utxos, err = w.utxosFromTxCache()
			if err != nil {
				return err
			}
			w.setUtxos(utxos)
			return nil

		case err != nil:
			return syncFailed("utxo", err)
		}

		for _, addr := range addrs {
			loc := locs[addr]
			for _, u := range res[addr] {
				utxos = append(utxos, Utxo{
					TxID:    u.TxID,
					Vout:    u.Vout,
					Value:   u.Value,
					Height:  u.Height,
					Address: addr,
					Branch:  loc.branch,
					Index:   loc.index,
				})
			}
		}
	}

	w.stateMtx.Lock()
	defer w.stateMtx.Unlock()

	w.setUtxos(utxos)
	return nil
}

// setUtxos stores utxos in ascending value order.  The caller must hold
// stateMtx for writing.
func (w *Wallet) setUtxos(utxos []Utxo) {
	sortUtxos(utxos)
	w.state.Utxos = utxos
	w.state.LastUtxoSync = w.cfg.Clock.Now()

	log.Debugf("Utxo sync: %d %s", len(utxos),
		pickNoun(len(utxos), "output", "outputs"))
}

// sortUtxos orders utxos by ascending value, then by outpoint.
func sortUtxos(utxos []Utxo) {
	sort.SliceStable(utxos, func(i, j int) bool {
		a, b := utxos[i], utxos[j]
		if a.Value != b.Value {
			return a.Value < b.Value
		}
		if a.TxID != b.TxID {
			return a.TxID < b.TxID
		}
		return a.Vout < b.Vout
	})
}

// utxosFromTxCache derives the unspent outputs from cached transactions:
// every output paying a wallet address that no cached input spends.  The
// caller must hold stateMtx.
func (w *Wallet) utxosFromTxCache() ([]Utxo, error) {
	owned, err := w.ownedWindow()
	if err != nil {
		return nil, err
	}

	txs := w.uniqueTxs()

	spent := make(map[string]struct{})
	for _, tx := range txs {
		for _, in := range tx.Inputs {
			spent[UtxoKey(in.TxID, in.Vout)] = struct{}{}
		}
	}

	var utxos []Utxo
	for _, tx := range txs {
		for vout, out := range tx.Outputs {
			loc, ok := owned[out.Address]
			if !ok {
				continue
			}
			if _, ok := spent[UtxoKey(tx.TxID, uint32(vout))]; ok {
				continue
			}

			utxos = append(utxos, Utxo{
				TxID:    tx.TxID,
				Vout:    uint32(vout),
				Value:   out.Value,
				Height:  tx.BlockHeight,
				Address: out.Address,
				Branch:  loc.branch,
				Index:   loc.index,
			})
		}
	}

	return utxos, nil
}

// uniqueTxs returns every cached transaction once, external chain first,
// each chain in index order.  The caller must hold stateMtx.
func (w *Wallet) uniqueTxs() []*Transaction {
	var txs []*Transaction
	seen := make(map[string]struct{})
	for _, bucket := range w.buckets() {
		for i := range bucket {
			if _, ok := seen[bucket[i].TxID]; ok {
				continue
			}
			seen[bucket[i].TxID] = struct{}{}
			txs = append(txs, &bucket[i])
		}
	}
	return txs
}

// buckets returns the transaction buckets, external chain first, each chain
// in index order.  The caller must hold stateMtx.
func (w *Wallet) buckets() [][]Transaction {
	var buckets [][]Transaction
	for _, b := range waddrmgr.Branches {
		bs := w.state.branch(b)

		indexes := make([]uint32, 0, len(bs.Txs))
		for idx := range bs.Txs {
			indexes = append(indexes, idx)
		}
		sort.Slice(indexes, func(i, j int) bool {
			return indexes[i] < indexes[j]
		})

		for _, idx := range indexes {
			buckets = append(buckets, bs.Txs[idx])
		}
	}
	return buckets
}
