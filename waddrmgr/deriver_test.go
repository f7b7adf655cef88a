// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package waddrmgr

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestDeriveAddressVectors checks the published BIP44/49/84/86 vectors of
// the reference mnemonic.
func TestDeriveAddressVectors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		scriptType ScriptType
		branch     Branch
		index      uint32
		address    string
	}{
		{
			name:       "bip44 receive",
			scriptType: PubKeyHash,
			address:    "1LqBGSKuX5yYUonjxT5qGfpUsXKYYWeabA",
		},
		{
			name:       "bip49 receive",
			scriptType: NestedWitnessPubKey,
			address:    "37VucYSaXLCAsxYyAPfbSi9eh4iEcbShgf",
		},
		{
			name:       "bip84 receive",
			scriptType: WitnessPubKey,
			address:    "bc1qcr8te4kr609gcawutmrza0j4xv80jy8z306fyu",
		},
		{
			name:       "bip84 change",
			scriptType: WitnessPubKey,
			branch:     InternalBranch,
			address:    "bc1q8c6fshw2dlwun7ekn9qwf37cu2rn755upcp6el",
		},
		{
			name:       "bip86 receive",
			scriptType: TaprootPubKey,
			address: "bc1p5cyxnuxmeuwuvkwfem96lqzszd02n6xdcjrs" +
				"20cac6yqjjwudpxqkedrcr",
		},
		{
			name:       "bip86 change",
			scriptType: TaprootPubKey,
			branch:     InternalBranch,
			address: "bc1p3qkhfews2uk44qtvauqyr2ttdsw7svhkl9nk" +
				"m9s9c3x4ax5h60wqwruhk7",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			id := singleSigIdentity(t, tc.scriptType)
			d := NewDeriver(id)

			addr, err := d.AddressString(tc.branch, tc.index)
			require.NoError(t, err)
			require.Equal(t, tc.address, addr)

			// The watch-only twin derives the same address.
			wo := NewDeriver(watchOnlyCopy(t, id))
			woAddr, err := wo.AddressString(tc.branch, tc.index)
			require.NoError(t, err)
			require.Equal(t, tc.address, woAddr)

			rec, err := d.Address(tc.branch, tc.index)
			require.NoError(t, err)
			require.Len(t, rec.Derivations, 1)
			require.Equal(t, abandonFingerprint,
				FormatFingerprint(rec.Derivations[0].Fingerprint))
			require.Equal(t,
				id.AccountPath().Child(uint32(tc.branch), tc.index),
				rec.Derivations[0].Path,
			)

			got, ok := d.Lookup(tc.address)
			require.True(t, ok)
			require.Same(t, rec, got)
		})
	}
}

// TestAddressScripts checks the script data attached to each single key
// form.
func TestAddressScripts(t *testing.T) {
	t.Parallel()

	p2pkh, err := NewDeriver(singleSigIdentity(t, PubKeyHash)).
		Address(ExternalBranch, 0)
	require.NoError(t, err)
	require.Nil(t, p2pkh.RedeemScript)
	require.True(t, txscript.IsPayToPubKeyHash(p2pkh.PkScript))

	nested, err := NewDeriver(singleSigIdentity(t, NestedWitnessPubKey)).
		Address(ExternalBranch, 0)
	require.NoError(t, err)
	require.True(t, txscript.IsPayToWitnessPubKeyHash(nested.RedeemScript))
	require.True(t, txscript.IsPayToScriptHash(nested.PkScript))

	taproot, err := NewDeriver(singleSigIdentity(t, TaprootPubKey)).
		Address(ExternalBranch, 0)
	require.NoError(t, err)
	require.True(t, txscript.IsPayToTaproot(taproot.PkScript))
	require.Nil(t, taproot.WitnessScript)
}

// TestDeriveWIF checks private key export and the watch-only result.
func TestDeriveWIF(t *testing.T) {
	t.Parallel()

	id := singleSigIdentity(t, WitnessPubKey)
	wif, err := NewDeriver(id).WIF(ExternalBranch, 0)
	require.NoError(t, err)
	require.True(t, wif.IsSome())
	require.Equal(t,
		"KyZpNDKnfs94vbrwhJneDi77V6jF64PWPF8x5cdJb8ifgg2DUc9d",
		wif.UnsafeFromSome().String(),
	)

	wo := NewDeriver(watchOnlyCopy(t, id))
	none, err := wo.WIF(ExternalBranch, 0)
	require.NoError(t, err)
	require.True(t, none.IsNone())

	keys, err := wo.SigningKeys(ExternalBranch, 0)
	require.NoError(t, err)
	require.Empty(t, keys)

	pub, err := wo.PubKey(ExternalBranch, 0)
	require.NoError(t, err)
	require.True(t, pub.IsEqual(
		wif.UnsafeFromSome().PrivKey.PubKey(),
	))
}

// TestDeriveInvalidPath checks the configuration errors of bad indices.
func TestDeriveInvalidPath(t *testing.T) {
	t.Parallel()

	d := NewDeriver(singleSigIdentity(t, WitnessPubKey))

	_, err := d.Address(Branch(2), 0)
	require.True(t, IsError(err, ErrInvalidPath))

	_, err = d.Address(ExternalBranch, 1<<31)
	require.True(t, IsError(err, ErrInvalidPath))

	_, err = d.SigningKeys(ExternalBranch, 1<<31)
	require.True(t, IsError(err, ErrInvalidPath))
}

// TestMultisigAddress checks that multisig addresses ignore the cosigner
// order, sort keys per BIP67 and carry per cosigner derivations.
func TestMultisigAddress(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		scriptType ScriptType
		check      func(t *testing.T, rec *AddressRecord)
	}{
		{
			name:       "p2sh",
			scriptType: MultiSigScriptHash,
			check: func(t *testing.T, rec *AddressRecord) {
				require.True(t, txscript.IsPayToScriptHash(
					rec.PkScript,
				))
				require.Nil(t, rec.WitnessScript)
				require.Equal(t, txscript.MultiSigTy,
					txscript.GetScriptClass(rec.RedeemScript))
			},
		},
		{
			name:       "p2sh-p2wsh",
			scriptType: MultiSigNestedWitness,
			check: func(t *testing.T, rec *AddressRecord) {
				require.True(t, txscript.IsPayToScriptHash(
					rec.PkScript,
				))
				require.True(t, txscript.IsPayToWitnessScriptHash(
					rec.RedeemScript,
				))
				require.Equal(t, txscript.MultiSigTy,
					txscript.GetScriptClass(rec.WitnessScript))
			},
		},
		{
			name:       "p2wsh",
			scriptType: MultiSigWitness,
			check: func(t *testing.T, rec *AddressRecord) {
				require.True(t, txscript.IsPayToWitnessScriptHash(
					rec.PkScript,
				))
				require.Nil(t, rec.RedeemScript)
				require.Equal(t, txscript.MultiSigTy,
					txscript.GetScriptClass(rec.WitnessScript))
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			a := NewDeriver(multisigIdentity(
				t, tc.scriptType, abandonMnemonic,
				legalMnemonic, letterMnemonic,
			))
			b := NewDeriver(multisigIdentity(
				t, tc.scriptType, letterMnemonic,
				abandonMnemonic, legalMnemonic,
			))

			for _, branch := range Branches {
				recA, err := a.Address(branch, 3)
				require.NoError(t, err)
				recB, err := b.Address(branch, 3)
				require.NoError(t, err)

				require.Equal(t, recA.EncodeAddress(),
					recB.EncodeAddress())
				require.Len(t, recA.PubKeys, 3)
				for i := 1; i < len(recA.PubKeys); i++ {
					require.Negative(t, bytes.Compare(
						recA.PubKeys[i-1].SerializeCompressed(),
						recA.PubKeys[i].SerializeCompressed(),
					))
				}

				require.Len(t, recA.Derivations, 3)
				for i, c := range a.Identity().Cosigners() {
					kd := recA.Derivations[i]
					require.Equal(t, c.Fingerprint(),
						kd.Fingerprint)
					require.Equal(t, c.Path().Child(
						uint32(branch), 3,
					), kd.Path)
				}

				tc.check(t, recA)
			}

			_, err := a.PubKey(ExternalBranch, 0)
			require.True(t, IsError(err, ErrInvalidPolicy))

			_, err = a.WIF(ExternalBranch, 0)
			require.True(t, IsError(err, ErrInvalidPolicy))
		})
	}
}

// TestMultisigWatchOnly checks that xpub cosigners derive the same
// addresses as their seeds and contribute no signing keys.
func TestMultisigWatchOnly(t *testing.T) {
	t.Parallel()

	seeded := multisigIdentity(t, MultiSigWitness)
	wo := watchOnlyCopy(t, seeded)
	require.True(t, wo.IsWatchOnly())

	a, err := NewDeriver(seeded).AddressString(InternalBranch, 9)
	require.NoError(t, err)
	b, err := NewDeriver(wo).AddressString(InternalBranch, 9)
	require.NoError(t, err)
	require.Equal(t, a, b)

	// Only the remaining seed signs.
	mixed, err := wo.WithCosigner(2, mnemonicCosigner(t, letterMnemonic))
	require.NoError(t, err)

	keys, err := NewDeriver(mixed).SigningKeys(InternalBranch, 9)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.Equal(t, 2, keys[0].Cosigner)

	rec, err := NewDeriver(mixed).Address(InternalBranch, 9)
	require.NoError(t, err)
	require.True(t, keys[0].PubKey.IsEqual(rec.Derivations[2].PubKey))
}

// TestDeriveDeterministic asserts derivation is a pure function of the
// identity, branch and index, and that the passphrase changes it.
func TestDeriveDeterministic(t *testing.T) {
	t.Parallel()

	id := singleSigIdentity(t, WitnessPubKey)

	pass, err := NewMnemonicSeed(abandonMnemonic, "TREZOR")
	require.NoError(t, err)
	withPass, err := NewSingleSigIdentity(
		&chaincfg.MainNetParams, WitnessPubKey,
		NewSeedCosigner(pass, fn.None[Path]()),
	)
	require.NoError(t, err)

	shared := NewDeriver(id)

	rapid.Check(t, func(t *rapid.T) {
		branch := rapid.SampledFrom(Branches).Draw(t, "branch")
		index := uint32(rapid.IntRange(0, 500).Draw(t, "index"))

		first, err := shared.AddressString(branch, index)
		require.NoError(t, err)

		fresh, err := NewDeriver(id).AddressString(branch, index)
		require.NoError(t, err)
		require.Equal(t, first, fresh)

		other, err := NewDeriver(withPass).AddressString(branch, index)
		require.NoError(t, err)
		require.NotEqual(t, first, other)
	})

	shared.Reset()
	_, ok := shared.Lookup(
		"bc1qcr8te4kr609gcawutmrza0j4xv80jy8z306fyu",
	)
	require.False(t, ok)
}
