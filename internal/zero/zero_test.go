// Copyright (c) 2015-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package zero_test

import (
	"testing"

	. "github.com/btcsuite/hdwallet/internal/zero"
	"github.com/stretchr/testify/require"
)

func makeOneBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = 1
	}
	return b
}

// TestBytes checks that slices of assorted lengths are fully cleared.
func TestBytes(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 31, 32, 33, 64, 127, 128, 129, 512, 513} {
		b := makeOneBytes(n)
		Bytes(b)
		require.Equal(t, make([]byte, n), b, "n=%d", n)
	}
}

// TestStrings checks that every word reference is dropped.
func TestStrings(t *testing.T) {
	t.Parallel()

	words := []string{"abandon", "ability", "able"}
	Strings(words)
	require.Equal(t, []string{"", "", ""}, words)
}
