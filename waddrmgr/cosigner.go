// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package waddrmgr

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/hdwallet/internal/zero"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Cosigner is one source of key material: a seed, or an account level
// extended public key with the fingerprint of the master key it came from.
// Single key identities hold exactly one cosigner.
//
// A cosigner is unbound until an Identity resolves its account path and
// derives its account key; bound cosigners are immutable.
type Cosigner struct {
	// seed is nil for watch-only cosigners.
	seed SeedProvider

	// xpub is the account key as it was imported, keeping its SLIP-132
	// prefix for persistence.
	xpub string

	// path is the custom account path, if any.  Bound cosigners always
	// carry the resolved path.
	path fn.Option[Path]

	// fingerprint is the master key fingerprint in the little-endian
	// uint32 form PSBT derivation records use.
	fingerprint uint32

	// accountKey is the neutered account key.  It is nil until bound.
	accountKey *hdkeychain.ExtendedKey
}

// NewSeedCosigner returns a cosigner backed by a seed.  The fingerprint is
// derived from the seed when the cosigner is bound.
func NewSeedCosigner(seed SeedProvider, path fn.Option[Path]) *Cosigner {
	return &Cosigner{seed: seed, path: path}
}

// NewXPubCosigner returns a watch-only cosigner from an account extended
// public key in any SLIP-132 encoding.  The fingerprint must be the one of
// the master key the account key was derived from.
func NewXPubCosigner(xpub string, fingerprint uint32,
	path fn.Option[Path]) (*Cosigner, error) {

	key, _, err := ParseExtendedKey(xpub)
	if err != nil {
		return nil, err
	}
	if key.IsPrivate() {
		return nil, managerError(
			ErrMalformedKey, "expected an extended public key", nil,
		)
	}

	return &Cosigner{
		xpub:        xpub,
		path:        path,
		fingerprint: fingerprint,
	}, nil
}

// ParseFingerprint parses an 8 character hex fingerprint such as "73c5da0a"
// into its PSBT form.
func ParseFingerprint(s string) (uint32, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 4 {
		str := fmt.Sprintf("invalid fingerprint %q", s)
		return 0, managerError(ErrMalformedKey, str, err)
	}
	return binary.LittleEndian.Uint32(b), nil
}

// FormatFingerprint renders a PSBT form fingerprint as 8 hex characters.
func FormatFingerprint(fp uint32) string {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], fp)
	return hex.EncodeToString(b[:])
}

// masterFingerprint returns the fingerprint of a master key: the first four
// bytes of the hash160 of its public key.
func masterFingerprint(master *hdkeychain.ExtendedKey) (uint32, error) {
	pub, err := master.ECPubKey()
	if err != nil {
		return 0, err
	}
	hash := btcutil.Hash160(pub.SerializeCompressed())
	return binary.LittleEndian.Uint32(hash[:4]), nil
}

// deriveAlong walks key down path.
func deriveAlong(key *hdkeychain.ExtendedKey,
	path Path) (*hdkeychain.ExtendedKey, error) {

	var err error
	for _, child := range path {
		key, err = key.Derive(child)
		if err != nil {
			return nil, managerError(
				ErrKeyDerivation, "failed to derive child", err,
			)
		}
	}
	return key, nil
}

// bind resolves the account path and account key of the cosigner for the
// given network, returning a bound copy.
func (c *Cosigner) bind(net *chaincfg.Params,
	defaultPath Path) (*Cosigner, error) {

	bound := &Cosigner{
		seed:        c.seed,
		xpub:        c.xpub,
		path:        fn.Some(c.path.UnwrapOr(defaultPath)),
		fingerprint: c.fingerprint,
	}

	if c.seed == nil {
		key, _, err := ParseExtendedKey(c.xpub)
		if err != nil {
			return nil, err
		}
		if !key.IsForNet(net) {
			str := fmt.Sprintf("extended key is not for %s",
				net.Name)
			return nil, managerError(ErrWrongNet, str, nil)
		}
		bound.accountKey = key
		return bound, nil
	}

	master, err := masterFromSeed(c.seed, net)
	if err != nil {
		return nil, err
	}
	defer master.Zero()

	bound.fingerprint, err = masterFingerprint(master)
	if err != nil {
		return nil, managerError(
			ErrKeyDerivation, "unable to compute fingerprint", err,
		)
	}

	account, err := deriveAlong(master, bound.Path())
	if err != nil {
		return nil, err
	}
	bound.accountKey, err = account.Neuter()
	if err != nil {
		return nil, managerError(
			ErrKeyDerivation, "unable to neuter account key", err,
		)
	}

	return bound, nil
}

// masterFromSeed derives the BIP32 master key and wipes the seed copy.
func masterFromSeed(seed SeedProvider,
	net *chaincfg.Params) (*hdkeychain.ExtendedKey, error) {

	raw, err := seed.Seed()
	if err != nil {
		return nil, err
	}
	defer zero.Bytes(raw)

	master, err := hdkeychain.NewMaster(raw, net)
	if err != nil {
		return nil, managerError(
			ErrKeyDerivation, "unable to create master key", err,
		)
	}

	return master, nil
}

// accountPrivKey derives the private account key from the seed.  This is
// the expensive path a Deriver caches.
func (c *Cosigner) accountPrivKey(
	net *chaincfg.Params) (*hdkeychain.ExtendedKey, error) {

	if c.seed == nil {
		return nil, managerError(
			ErrWatchingOnly, "cosigner holds no private key", nil,
		)
	}

	master, err := masterFromSeed(c.seed, net)
	if err != nil {
		return nil, err
	}
	defer master.Zero()

	return deriveAlong(master, c.Path())
}

// IsWatchOnly reports whether the cosigner lacks private key material.
func (c *Cosigner) IsWatchOnly() bool {
	return c.seed == nil
}

// Fingerprint returns the master key fingerprint in PSBT form.  It is zero
// for unbound seed cosigners.
func (c *Cosigner) Fingerprint() uint32 {
	return c.fingerprint
}

// Path returns the account path.  It is empty for unbound cosigners
// without a custom path.
func (c *Cosigner) Path() Path {
	return c.path.UnwrapOr(Path{})
}

// AccountKey returns the neutered account key of a bound cosigner.
func (c *Cosigner) AccountKey() *hdkeychain.ExtendedKey {
	return c.accountKey
}

// Seed returns the seed provider, if any.
func (c *Cosigner) Seed() fn.Option[SeedProvider] {
	if c.seed == nil {
		return fn.None[SeedProvider]()
	}
	return fn.Some(c.seed)
}

// XPub returns the account key as imported, or the plain BIP32 rendering of
// the derived account key for seed cosigners.
func (c *Cosigner) XPub() string {
	if c.xpub != "" || c.accountKey == nil {
		return c.xpub
	}
	return c.accountKey.String()
}

// String renders the cosigner as a key origin expression,
// [fingerprint/path]xpub.
func (c *Cosigner) String() string {
	origin := FormatFingerprint(c.fingerprint) + c.Path().String()[1:]
	return "[" + origin + "]" + c.XPub()
}
