// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"

	"github.com/btcsuite/hdwallet/chain"
	"github.com/btcsuite/hdwallet/waddrmgr"
)

// HistoryFunc batch queries the history of addresses.
type HistoryFunc func(ctx context.Context,
	addrs []string) (map[string][]chain.HistoryItem, error)

// AddressFunc returns the address at an index of one chain.
type AddressFunc func(index uint32) (string, error)

// DiscoverLastUsedIndex finds the first unused index of an address chain.
// The chain is probed in chunks of gapLimit addresses until a chunk without
// any history, or until upperBound.  The result is one past the highest used
// index of the last chunk that had history, or zero for an unused chain.
func DiscoverLastUsedIndex(ctx context.Context, gapLimit, upperBound uint32,
	addrAt AddressFunc, histories HistoryFunc) (uint32, error) {

	if upperBound == 0 {
		upperBound = gapLimit * MaxDiscoveryChunks
	}

	var (
		lastChunk []string
		lastStart uint32
		lastHist  map[string][]chain.HistoryItem
	)
	for start := uint32(0); start < upperBound; start += gapLimit {
		end := start + gapLimit
		if end > upperBound {
			end = upperBound
		}

		chunk := make([]string, 0, end-start)
		for i := start; i < end; i++ {
			addr, err := addrAt(i)
			if err != nil {
				return 0, err
			}
			chunk = append(chunk, addr)
		}

		hist, err := histories(ctx, chunk)
		if err != nil {
			return 0, err
		}
		if !anyHistory(chunk, hist) {
			break
		}

		lastChunk, lastStart, lastHist = chunk, start, hist
	}

	if lastChunk == nil {
		return 0, nil
	}

	// Scan the last used chunk address by address.
	return lastUsedInWindow(lastStart, lastChunk, lastHist), nil
}

// anyHistory reports whether any of addrs has history.
func anyHistory(addrs []string, hist map[string][]chain.HistoryItem) bool {
	for _, addr := range addrs {
		if len(hist[addr]) > 0 {
			return true
		}
	}
	return false
}

// lastUsedInWindow returns one past the highest index in [from, from+len)
// with history, or from if none has.
func lastUsedInWindow(from uint32, addrs []string,
	hist map[string][]chain.HistoryItem) uint32 {

	next := from
	for i, addr := range addrs {
		if len(hist[addr]) > 0 {
			next = from + uint32(i) + 1
		}
	}
	return next
}

// discover runs DiscoverLastUsedIndex on one chain of the wallet.
func (w *Wallet) discover(ctx context.Context, backend chain.Backend,
	d *waddrmgr.Deriver, branch waddrmgr.Branch) (uint32, error) {

	next, err := DiscoverLastUsedIndex(
		ctx, w.cfg.GapLimit, 0,
		func(i uint32) (string, error) {
			return d.AddressString(branch, i)
		},
		backend.MultiGetHistoryByAddress,
	)
	if err != nil {
		return 0, err
	}

	log.Infof("Discovered %v chain up to index %d", branch, next)

	return next, nil
}
