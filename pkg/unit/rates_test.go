// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package unit

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"
)

// TestFeeForVSize checks fee computation for whole and fractional rates.
func TestFeeForVSize(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		rate  string
		vsize uint64
		fee   btcutil.Amount
	}{
		{name: "1 sat/vb", rate: "1", vsize: 141, fee: 141},
		{name: "fraction rounds up", rate: "1.5", vsize: 141, fee: 212},
		{name: "suffix accepted", rate: "3 sat/vb", vsize: 100, fee: 300},
		{name: "zero", rate: "0", vsize: 100, fee: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rate, err := ParseSatPerVByte(tc.rate)
			require.NoError(t, err)
			require.Equal(t, tc.fee, rate.FeeForVSize(NewVByte(tc.vsize)))
		})
	}
}

// TestParseSatPerVByteInvalid ensures junk and negative rates are rejected.
func TestParseSatPerVByteInvalid(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"", "abc", "-1"} {
		_, err := ParseSatPerVByte(s)
		require.ErrorIs(t, err, ErrInvalidFeeRate, s)
	}
}

// TestFeeRateConversions checks that converting between sat/vb and sat/kvb
// round trips.
func TestFeeRateConversions(t *testing.T) {
	t.Parallel()

	vb := NewSatPerVByte(2, NewVByte(1))
	kvb := vb.FeePerKVByte()
	require.Equal(t, "2000.00 sat/kvb", kvb.String())
	require.Zero(t, vb.Cmp(kvb.FeePerVByte().Rat))
	require.Equal(t, btcutil.Amount(500), kvb.FeeForVSize(NewVByte(250)))

	relay := NewSatPerKVByte(1000)
	require.Equal(t, "1.00 sat/vb", relay.FeePerVByte().String())
	require.True(t, relay.FeePerVByte().LessThan(vb))
	require.False(t, vb.LessThan(relay.FeePerVByte()))
	require.False(t, vb.LessThan(vb))
	require.True(t, SatPerVByte{}.IsZero())
}
