// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/btcsuite/hdwallet/chain"
	"github.com/btcsuite/hdwallet/waddrmgr"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// indexAddr names the address at index i of a synthetic chain.
func indexAddr(i uint32) (string, error) {
	return fmt.Sprintf("addr-%d", i), nil
}

// usedHistories answers history queries for a synthetic chain where the
// indexes in used have one transaction each.  Every query is recorded.
func usedHistories(used []uint32, queries *[][]string) HistoryFunc {
	set := make(map[string]struct{}, len(used))
	for _, i := range used {
		addr, _ := indexAddr(i)
		set[addr] = struct{}{}
	}

	return func(_ context.Context,
		addrs []string) (map[string][]chain.HistoryItem, error) {

		if queries != nil {
			*queries = append(*queries, addrs)
		}

		res := make(map[string][]chain.HistoryItem)
		for _, addr := range addrs {
			if _, ok := set[addr]; ok {
				res[addr] = []chain.HistoryItem{{
					TxID: "tx-" + addr, Height: 1,
				}}
			}
		}
		return res, nil
	}
}

// TestDiscoverLastUsedIndex checks the chunked gap limit scan.
func TestDiscoverLastUsedIndex(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		used        []uint32
		gapLimit    uint32
		upperBound  uint32
		expected    uint32
		wantQueries int
	}{
		{
			name:        "unused chain",
			gapLimit:    5,
			expected:    0,
			wantQueries: 1,
		},
		{
			name:        "gap inside the first chunk",
			used:        []uint32{0, 1, 2, 5, 6},
			gapLimit:    5,
			expected:    7,
			wantQueries: 3,
		},
		{
			name:        "last index of a chunk",
			used:        []uint32{0, 4, 9},
			gapLimit:    5,
			expected:    10,
			wantQueries: 3,
		},
		{
			name:        "usage behind an empty chunk is ignored",
			used:        []uint32{12},
			gapLimit:    5,
			expected:    0,
			wantQueries: 1,
		},
		{
			name:        "upper bound stops the scan",
			used:        []uint32{0, 3, 6, 9, 12},
			gapLimit:    5,
			upperBound:  10,
			expected:    10,
			wantQueries: 2,
		},
		{
			name:        "upper bound truncates the last chunk",
			used:        []uint32{0, 3, 6, 9},
			gapLimit:    5,
			upperBound:  8,
			expected:    7,
			wantQueries: 2,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var queries [][]string
			next, err := DiscoverLastUsedIndex(
				context.Background(), tc.gapLimit, tc.upperBound,
				indexAddr, usedHistories(tc.used, &queries),
			)
			require.NoError(t, err)
			require.Equal(t, tc.expected, next)
			require.Len(t, queries, tc.wantQueries)
		})
	}
}

// TestDiscoverLastUsedIndexErrors checks that derivation and backend errors
// abort the scan.
func TestDiscoverLastUsedIndexErrors(t *testing.T) {
	t.Parallel()

	errDerive := errors.New("derive failed")
	_, err := DiscoverLastUsedIndex(
		context.Background(), 5, 0,
		func(uint32) (string, error) {
			return "", errDerive
		},
		usedHistories(nil, nil),
	)
	require.ErrorIs(t, err, errDerive)

	_, err = DiscoverLastUsedIndex(
		context.Background(), 5, 0, indexAddr,
		func(context.Context,
			[]string) (map[string][]chain.HistoryItem, error) {

			return nil, chain.ErrBackendUnavailable
		},
	)
	require.ErrorIs(t, err, chain.ErrBackendUnavailable)
}

// TestDiscoverLastUsedIndexProperty checks that a chain whose used indexes
// are never more than a gap limit apart is discovered up to its last used
// index.
func TestDiscoverLastUsedIndexProperty(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		gap := uint32(rapid.IntRange(1, 10).Draw(t, "gap"))
		steps := rapid.SliceOfN(
			rapid.IntRange(1, int(gap)), 0, 30,
		).Draw(t, "steps")
		first := uint32(rapid.IntRange(0, int(gap)-1).Draw(t, "first"))

		used := []uint32{first}
		for _, s := range steps {
			used = append(used, used[len(used)-1]+uint32(s))
		}

		next, err := DiscoverLastUsedIndex(
			context.Background(), gap, 0, indexAddr,
			usedHistories(used, nil),
		)
		require.NoError(t, err)
		require.Equal(t, used[len(used)-1]+1, next)
	})
}

// TestWalletDiscovery checks that the first balance sync of a pristine
// wallet discovers both chains.
func TestWalletDiscovery(t *testing.T) {
	t.Parallel()

	idx := newFakeIndex()
	w, _ := newTestWallet(t, singleSigIdentity(t, waddrmgr.WitnessPubKey),
		idx)

	for _, i := range []uint32{0, 1, 2, 5, 6} {
		idx.fund(t, mustAddress(t, w, waddrmgr.ExternalBranch, i),
			10_000, 10)
	}
	idx.fund(t, mustAddress(t, w, waddrmgr.InternalBranch, 0), 5_000, 10)

	require.NoError(t, w.FetchBalance(context.Background()))

	require.EqualValues(t, 7, w.NextFree(waddrmgr.ExternalBranch))
	require.EqualValues(t, 1, w.NextFree(waddrmgr.InternalBranch))
	require.Equal(t, Balance{Confirmed: 55_000}, w.Balance())

	next, err := w.NextReceiveAddress()
	require.NoError(t, err)
	require.Equal(t, uint32(7), next.Index)

	change, err := w.NextChangeAddress()
	require.NoError(t, err)
	require.Equal(t, waddrmgr.InternalBranch, change.Branch)
	require.Equal(t, uint32(1), change.Index)
}
