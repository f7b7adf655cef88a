// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cfgutil

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/hdwallet/pkg/unit"
	"github.com/stretchr/testify/require"
)

// TestAmountFlag checks BTC and satoshi denominated inputs.
func TestAmountFlag(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		value  string
		amount btcutil.Amount
		fail   bool
	}{
		{name: "btc", value: "0.5", amount: 50_000_000},
		{name: "btc suffix", value: "1 BTC", amount: 100_000_000},
		{name: "sats", value: "50000sat", amount: 50_000},
		{name: "sats spaced", value: "1200 sat", amount: 1_200},
		{name: "junk", value: "lots", fail: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := NewAmountFlag(0)
			err := f.UnmarshalFlag(tc.value)
			if tc.fail {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.amount, f.Amount)
		})
	}
}

// TestFeeRateFlag checks the default and parsed fee rates.
func TestFeeRateFlag(t *testing.T) {
	t.Parallel()

	f := NewFeeRateFlag(2)
	s, err := f.MarshalFlag()
	require.NoError(t, err)
	require.Equal(t, "2.00 sat/vb", s)

	require.NoError(t, f.UnmarshalFlag("12.5"))
	require.Equal(
		t, btcutil.Amount(1250), f.FeeForVSize(unit.NewVByte(100)),
	)
	require.Error(t, f.UnmarshalFlag("-3"))
}
