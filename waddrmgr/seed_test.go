// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package waddrmgr

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// abandonMnemonic is the well known all-zero entropy test mnemonic.
const abandonMnemonic = "abandon abandon abandon abandon abandon abandon " +
	"abandon abandon abandon abandon abandon about"

// TestMnemonicSeed checks validation, normalization and the BIP39 seed of
// the reference mnemonic.
func TestMnemonicSeed(t *testing.T) {
	t.Parallel()

	m, err := NewMnemonicSeed("  ABANDON "+abandonMnemonic[8:]+"\n", "")
	require.NoError(t, err)
	require.Equal(t, abandonMnemonic, m.Mnemonic())

	seed, err := m.Seed()
	require.NoError(t, err)
	require.Equal(t,
		"5eb00bbddcf069084889a8ab9155568165f5c453ccb85e70811aaed6f6da5fc1"+
			"9a5ac40b389cd370d086206dec8aa6c43daea6690f20ad3d8d48b2d2ce9e38e4",
		hex.EncodeToString(seed),
	)

	// The passphrase changes the seed.
	withPass, err := NewMnemonicSeed(abandonMnemonic, "TREZOR")
	require.NoError(t, err)
	other, err := withPass.Seed()
	require.NoError(t, err)
	require.NotEqual(t, seed, other)

	_, err = NewMnemonicSeed("abandon abandon abandon", "")
	require.True(t, IsError(err, ErrInvalidMnemonic))

	bad := strings.Replace(abandonMnemonic, "about", "abandon", 1)
	_, err = NewMnemonicSeed(bad, "")
	require.True(t, IsError(err, ErrInvalidMnemonic))
}

// TestNewMnemonic checks generated mnemonics validate and have the expected
// word count.
func TestNewMnemonic(t *testing.T) {
	t.Parallel()

	for bits, words := range map[int]int{128: 12, 256: 24} {
		mnemonic, err := NewMnemonic(bits)
		require.NoError(t, err)
		require.Len(t, strings.Fields(mnemonic), words)

		_, err = NewMnemonicSeed(mnemonic, "")
		require.NoError(t, err)
	}

	_, err := NewMnemonic(100)
	require.Error(t, err)
}

// TestRawSeed checks hex seeds and their length bounds.
func TestRawSeed(t *testing.T) {
	t.Parallel()

	seed, err := NewRawSeed(hex.EncodeToString(testSeed))
	require.NoError(t, err)

	got, err := seed.Seed()
	require.NoError(t, err)
	require.Equal(t, testSeed, got)

	// The returned seed is a copy.
	got[0] = 0xff
	require.Equal(t, byte(0x00), seed[0])

	_, err = NewRawSeed("zz")
	require.True(t, IsError(err, ErrInvalidMnemonic))

	_, err = NewRawSeed("0011")
	require.True(t, IsError(err, ErrInvalidMnemonic))
}

// TestNormalizeMnemonic checks case folding and whitespace collapsing.
func TestNormalizeMnemonic(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		mnemonic string
		expected string
	}{
		{"already normal", "abandon about", "abandon about"},
		{"mixed case", "Abandon ABOUT", "abandon about"},
		{"extra whitespace", "  abandon\t\nabout  ", "abandon about"},
		{"empty", "   ", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tc.expected, NormalizeMnemonic(tc.mnemonic))
		})
	}
}
