// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package waddrmgr

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/hdwallet/internal/zero"
	"github.com/tyler-smith/go-bip39"
)

// DefaultEntropyBits is the entropy of freshly generated mnemonics, 24 words.
const DefaultEntropyBits = 256

// SeedProvider supplies the BIP32 master seed for an identity.  It is
// injected into identities rather than baked into them, so any seed scheme
// (BIP39, raw hex, hardware backed) can stand behind a wallet.
type SeedProvider interface {
	// Seed returns a fresh copy of the master seed.  Callers wipe it once
	// the master key has been derived.
	Seed() ([]byte, error)
}

// MnemonicSeed is a BIP39 mnemonic with an optional passphrase.
type MnemonicSeed struct {
	mnemonic   string
	passphrase string
}

// A compile-time assertion to ensure MnemonicSeed implements SeedProvider.
var _ SeedProvider = (*MnemonicSeed)(nil)

// NewMnemonicSeed validates a mnemonic and returns a seed provider for it.
// Whitespace is collapsed and words are lower-cased before validation.
func NewMnemonicSeed(mnemonic, passphrase string) (*MnemonicSeed, error) {
	mnemonic = NormalizeMnemonic(mnemonic)
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, managerError(
			ErrInvalidMnemonic, "mnemonic failed validation", nil,
		)
	}

	return &MnemonicSeed{mnemonic: mnemonic, passphrase: passphrase}, nil
}

// Seed derives the 64 byte BIP39 seed.
//
// NOTE: Part of the SeedProvider interface.
func (m *MnemonicSeed) Seed() ([]byte, error) {
	seed, err := bip39.NewSeedWithErrorChecking(m.mnemonic, m.passphrase)
	if err != nil {
		return nil, managerError(
			ErrInvalidMnemonic, "unable to derive seed", err,
		)
	}
	return seed, nil
}

// Mnemonic returns the normalized mnemonic.
func (m *MnemonicSeed) Mnemonic() string {
	return m.mnemonic
}

// Passphrase returns the BIP39 passphrase.
func (m *MnemonicSeed) Passphrase() string {
	return m.passphrase
}

// RawSeed is a seed given directly as bytes, e.g. imported as hex.
type RawSeed []byte

// A compile-time assertion to ensure RawSeed implements SeedProvider.
var _ SeedProvider = RawSeed(nil)

// NewRawSeed decodes a hex seed and checks it against the BIP32 bounds.
func NewRawSeed(hexSeed string) (RawSeed, error) {
	seed, err := hex.DecodeString(strings.TrimSpace(hexSeed))
	if err != nil {
		return nil, managerError(ErrInvalidMnemonic, "seed is not hex", err)
	}
	if len(seed) < hdkeychain.MinSeedBytes ||
		len(seed) > hdkeychain.MaxSeedBytes {

		str := fmt.Sprintf("seed must be between %d and %d bytes",
			hdkeychain.MinSeedBytes, hdkeychain.MaxSeedBytes)
		return nil, managerError(ErrInvalidMnemonic, str, nil)
	}

	return RawSeed(seed), nil
}

// Seed returns a copy of the raw seed.
//
// NOTE: Part of the SeedProvider interface.
func (r RawSeed) Seed() ([]byte, error) {
	return append([]byte(nil), r...), nil
}

// NewMnemonic generates a new BIP39 mnemonic with the given entropy size in
// bits (128 to 256, a multiple of 32).
func NewMnemonic(entropyBits int) (string, error) {
	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return "", err
	}

	return bip39.NewMnemonic(entropy)
}

// NormalizeMnemonic lower-cases a mnemonic and collapses its whitespace to
// single spaces.
func NormalizeMnemonic(mnemonic string) string {
	words := strings.Fields(strings.ToLower(mnemonic))
	defer zero.Strings(words)

	return strings.Join(words, " ")
}
