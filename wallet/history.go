// Copyright (c) 2015-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"sort"
	"time"

	"github.com/btcsuite/btcd/btcutil"
)

// HistoryEntry is a wallet transaction with its net effect.
type HistoryEntry struct {
	Transaction

	// Value is the amount received by wallet addresses minus the amount
	// spent from them.  It is negative for sends.
	Value btcutil.Amount

	// Time is the block time, or a placeholder slightly before now while
	// unconfirmed.
	Time time.Time
}

// Transactions returns the wallet history, newest first.  A transaction
// touching several wallet addresses appears once.
func (w *Wallet) Transactions() ([]HistoryEntry, error) {
	w.stateMtx.RLock()
	defer w.stateMtx.RUnlock()

	owned, err := w.ownedWindow()
	if err != nil {
		return nil, err
	}

	return aggregateTransactions(w.buckets(), owned, w.cfg.Clock.Now()), nil
}

// aggregateTransactions merges the per address buckets into one history.
// The first occurrence of a txid wins.  Values are computed against owned,
// which the caller builds once.
func aggregateTransactions(buckets [][]Transaction,
	owned map[string]ownedAddr, now time.Time) []HistoryEntry {

	placeholder := now.Add(-unconfirmedTimeOffset)

	var entries []HistoryEntry
	seen := make(map[string]struct{})
	for _, bucket := range buckets {
		for _, tx := range bucket {
			if _, ok := seen[tx.TxID]; ok {
				continue
			}
			seen[tx.TxID] = struct{}{}

			entry := HistoryEntry{
				Transaction: tx,
				Value:       netValue(&tx, owned),
				Time:        placeholder,
			}
			if tx.BlockTime > 0 {
				entry.Time = time.Unix(tx.BlockTime, 0)
			}
			entries = append(entries, entry)
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Time.After(entries[j].Time)
	})

	return entries
}

// netValue sums the outputs paying owned addresses minus the inputs spending
// from them.
func netValue(tx *Transaction, owned map[string]ownedAddr) btcutil.Amount {
	var value btcutil.Amount
	for _, out := range tx.Outputs {
		if _, ok := owned[out.Address]; ok {
			value += out.Value
		}
	}
	for _, in := range tx.Inputs {
		if _, ok := owned[in.Address]; ok {
			value -= in.Value
		}
	}
	return value
}
