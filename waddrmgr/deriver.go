// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package waddrmgr

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// KeyDerivation is the BIP32 origin of one public key in a script: the
// master fingerprint and the full path from the master key.
type KeyDerivation struct {
	PubKey      *btcec.PublicKey
	Fingerprint uint32
	Path        Path
}

// AddressRecord is everything needed to watch and spend one derived
// address.  It is a pure function of the identity, branch and index.
type AddressRecord struct {
	Branch  Branch
	Index   uint32
	Address btcutil.Address

	// PkScript is the output script paying Address.
	PkScript []byte

	// PubKeys holds the single derived key, or every cosigner key in
	// BIP67 order for multisig.
	PubKeys []*btcec.PublicKey

	// RedeemScript is set for every P2SH form.
	RedeemScript []byte

	// WitnessScript is set for the segwit multisig forms.
	WitnessScript []byte

	// Derivations holds one entry per cosigner in cosigner order.
	Derivations []KeyDerivation
}

// EncodeAddress returns the string form of the address.
func (r *AddressRecord) EncodeAddress() string {
	return r.Address.EncodeAddress()
}

// SigningKey is a private key one cosigner holds for an address.
type SigningKey struct {
	// Cosigner is the position of the owning cosigner in the identity.
	Cosigner int

	PrivKey *btcec.PrivateKey
	PubKey  *btcec.PublicKey
}

// derivedKeyHandles are the live key nodes a Deriver walks.  They are never
// persisted and are rebuilt from the identity on demand.
type derivedKeyHandles struct {
	// branchKeys holds the public branch node per cosigner and branch.
	branchKeys []map[Branch]*hdkeychain.ExtendedKey

	// accountPrivKeys holds the private account node per cosigner, nil
	// for watch-only cosigners or until first used.
	accountPrivKeys []*hdkeychain.ExtendedKey
}

// Deriver derives and caches addresses for an identity.  Derivation is
// deterministic, so cached entries are never invalidated.
type Deriver struct {
	id *Identity

	mu      sync.Mutex
	handles *derivedKeyHandles
	cache   map[Branch]map[uint32]*AddressRecord
	byAddr  map[string]*AddressRecord
}

// NewDeriver returns a deriver for id.
func NewDeriver(id *Identity) *Deriver {
	return &Deriver{
		id:     id,
		cache:  make(map[Branch]map[uint32]*AddressRecord),
		byAddr: make(map[string]*AddressRecord),
	}
}

// Identity returns the identity the deriver works for.
func (d *Deriver) Identity() *Identity {
	return d.id
}

// Reset drops all derived key nodes and cached addresses.
func (d *Deriver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.zeroHandles()
	d.cache = make(map[Branch]map[uint32]*AddressRecord)
	d.byAddr = make(map[string]*AddressRecord)
}

func (d *Deriver) zeroHandles() {
	if d.handles == nil {
		return
	}
	for _, k := range d.handles.accountPrivKeys {
		if k != nil {
			k.Zero()
		}
	}
	d.handles = nil
}

// loadHandles derives the public branch nodes once.  The caller must hold
// the mutex.
func (d *Deriver) loadHandles() (*derivedKeyHandles, error) {
	if d.handles != nil {
		return d.handles, nil
	}

	n := len(d.id.cosigners)
	h := &derivedKeyHandles{
		branchKeys:      make([]map[Branch]*hdkeychain.ExtendedKey, n),
		accountPrivKeys: make([]*hdkeychain.ExtendedKey, n),
	}
	for i, c := range d.id.cosigners {
		h.branchKeys[i] = make(map[Branch]*hdkeychain.ExtendedKey)
		for _, b := range Branches {
			key, err := c.accountKey.Derive(uint32(b))
			if err != nil {
				return nil, managerError(
					ErrKeyDerivation,
					"failed to derive branch key", err,
				)
			}
			h.branchKeys[i][b] = key
		}
	}

	d.handles = h
	return h, nil
}

func validateIndex(branch Branch, index uint32) error {
	if branch != ExternalBranch && branch != InternalBranch {
		str := fmt.Sprintf("invalid branch %d", branch)
		return managerError(ErrInvalidPath, str, nil)
	}
	if index >= hdkeychain.HardenedKeyStart {
		str := fmt.Sprintf("address index %d is hardened", index)
		return managerError(ErrInvalidPath, str, nil)
	}
	return nil
}

// Address returns the address record at branch/index, deriving and caching
// it on first use.
func (d *Deriver) Address(branch Branch, index uint32) (*AddressRecord,
	error) {

	if err := validateIndex(branch, index); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if rec, ok := d.cache[branch][index]; ok {
		return rec, nil
	}

	handles, err := d.loadHandles()
	if err != nil {
		return nil, err
	}

	derivations := make([]KeyDerivation, 0, len(d.id.cosigners))
	for i, c := range d.id.cosigners {
		child, err := handles.branchKeys[i][branch].Derive(index)
		if err != nil {
			return nil, managerError(
				ErrKeyDerivation, "failed to derive child", err,
			)
		}
		pub, err := child.ECPubKey()
		if err != nil {
			return nil, managerError(
				ErrKeyDerivation, "invalid child key", err,
			)
		}

		derivations = append(derivations, KeyDerivation{
			PubKey:      pub,
			Fingerprint: c.fingerprint,
			Path:        c.Path().Child(uint32(branch), index),
		})
	}

	pubKeys := make([]*btcec.PublicKey, len(derivations))
	for i, kd := range derivations {
		pubKeys[i] = kd.PubKey
	}

	rec, err := buildAddress(
		d.id.policy, d.id.params, d.id.threshold, pubKeys,
	)
	if err != nil {
		return nil, err
	}
	rec.Branch = branch
	rec.Index = index
	rec.Derivations = derivations

	if d.cache[branch] == nil {
		d.cache[branch] = make(map[uint32]*AddressRecord)
	}
	d.cache[branch][index] = rec
	d.byAddr[rec.EncodeAddress()] = rec

	log.Tracef("Derived %v address %d: %s", branch, index,
		rec.EncodeAddress())

	return rec, nil
}

// AddressString is a convenience wrapper returning only the encoded address.
func (d *Deriver) AddressString(branch Branch, index uint32) (string, error) {
	rec, err := d.Address(branch, index)
	if err != nil {
		return "", err
	}
	return rec.EncodeAddress(), nil
}

// PubKey returns the derived public key at branch/index.  Multisig
// identities have no single public key per address.
func (d *Deriver) PubKey(branch Branch, index uint32) (*btcec.PublicKey,
	error) {

	if d.id.IsMultisig() {
		return nil, managerError(
			ErrInvalidPolicy, "multisig addresses have no single "+
				"public key", nil,
		)
	}

	rec, err := d.Address(branch, index)
	if err != nil {
		return nil, err
	}
	return rec.PubKeys[0], nil
}

// WIF returns the private key at branch/index in wallet import format.  The
// result is None for watch-only identities.
func (d *Deriver) WIF(branch Branch,
	index uint32) (fn.Option[*btcutil.WIF], error) {

	none := fn.None[*btcutil.WIF]()
	if d.id.IsMultisig() {
		return none, managerError(
			ErrInvalidPolicy, "multisig addresses have no single "+
				"private key", nil,
		)
	}
	if d.id.IsWatchOnly() {
		return none, nil
	}

	keys, err := d.SigningKeys(branch, index)
	if err != nil {
		return none, err
	}
	if len(keys) == 0 {
		return none, nil
	}

	wif, err := btcutil.NewWIF(keys[0].PrivKey, d.id.params, true)
	if err != nil {
		return none, err
	}
	return fn.Some(wif), nil
}

// SigningKeys returns the private keys every seeded cosigner holds for the
// address at branch/index, in cosigner order.  Watch-only cosigners are
// skipped, so the result may be empty.
func (d *Deriver) SigningKeys(branch Branch, index uint32) ([]SigningKey,
	error) {

	if err := validateIndex(branch, index); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	handles, err := d.loadHandles()
	if err != nil {
		return nil, err
	}

	var keys []SigningKey
	for i, c := range d.id.cosigners {
		if c.IsWatchOnly() {
			continue
		}

		account := handles.accountPrivKeys[i]
		if account == nil {
			account, err = c.accountPrivKey(d.id.params)
			if err != nil {
				return nil, err
			}
			handles.accountPrivKeys[i] = account
		}

		key, err := deriveAlong(account, Path{uint32(branch), index})
		if err != nil {
			return nil, err
		}
		priv, err := key.ECPrivKey()
		if err != nil {
			return nil, managerError(
				ErrKeyDerivation, "invalid private key", err,
			)
		}

		keys = append(keys, SigningKey{
			Cosigner: i,
			PrivKey:  priv,
			PubKey:   priv.PubKey(),
		})
	}

	return keys, nil
}

// Lookup returns the cached record of an address previously derived by this
// deriver.
func (d *Deriver) Lookup(addr string) (*AddressRecord, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.byAddr[addr]
	return rec, ok
}

// SortPubKeys returns a copy of keys in BIP67 order: ascending by the
// compressed serialization.
func SortPubKeys(keys []*btcec.PublicKey) []*btcec.PublicKey {
	sorted := make([]*btcec.PublicKey, len(keys))
	copy(sorted, keys)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(
			sorted[i].SerializeCompressed(),
			sorted[j].SerializeCompressed(),
		) < 0
	})
	return sorted
}

// MultiSigScript returns the bare threshold-of-len(keys) CHECKMULTISIG
// script.  Keys are used in the given order.
func MultiSigScript(threshold int,
	keys []*btcec.PublicKey) ([]byte, error) {

	b := txscript.NewScriptBuilder().AddInt64(int64(threshold))
	for _, k := range keys {
		b.AddData(k.SerializeCompressed())
	}
	b.AddInt64(int64(len(keys))).AddOp(txscript.OP_CHECKMULTISIG)

	return b.Script()
}

// buildAddress builds the scripts and address of one branch/index from the
// derived cosigner keys.
func buildAddress(policy *Policy, params *chaincfg.Params, threshold int,
	pubKeys []*btcec.PublicKey) (*AddressRecord, error) {

	rec := &AddressRecord{PubKeys: pubKeys}

	var err error
	switch policy.Type {
	case PubKeyHash:
		rec.Address, err = btcutil.NewAddressPubKeyHash(
			btcutil.Hash160(pubKeys[0].SerializeCompressed()),
			params,
		)

	case NestedWitnessPubKey:
		var wpkh *btcutil.AddressWitnessPubKeyHash
		wpkh, err = btcutil.NewAddressWitnessPubKeyHash(
			btcutil.Hash160(pubKeys[0].SerializeCompressed()),
			params,
		)
		if err != nil {
			break
		}
		rec.RedeemScript, err = txscript.PayToAddrScript(wpkh)
		if err != nil {
			break
		}
		rec.Address, err = btcutil.NewAddressScriptHash(
			rec.RedeemScript, params,
		)

	case WitnessPubKey:
		rec.Address, err = btcutil.NewAddressWitnessPubKeyHash(
			btcutil.Hash160(pubKeys[0].SerializeCompressed()),
			params,
		)

	case TaprootPubKey:
		outputKey := txscript.ComputeTaprootKeyNoScript(pubKeys[0])
		rec.Address, err = btcutil.NewAddressTaproot(
			schnorr.SerializePubKey(outputKey), params,
		)

	case MultiSigScriptHash, MultiSigNestedWitness, MultiSigWitness:
		rec.PubKeys = SortPubKeys(pubKeys)
		err = buildMultiSigAddress(rec, policy, params, threshold)

	default:
		str := fmt.Sprintf("unsupported script type %v", policy.Type)
		return nil, managerError(ErrInvalidPolicy, str, nil)
	}
	if err != nil {
		return nil, managerError(
			ErrKeyDerivation, "unable to build address", err,
		)
	}

	rec.PkScript, err = txscript.PayToAddrScript(rec.Address)
	if err != nil {
		return nil, managerError(
			ErrKeyDerivation, "unable to build output script", err,
		)
	}

	return rec, nil
}

func buildMultiSigAddress(rec *AddressRecord, policy *Policy,
	params *chaincfg.Params, threshold int) error {

	script, err := MultiSigScript(threshold, rec.PubKeys)
	if err != nil {
		return err
	}

	if policy.Type == MultiSigScriptHash {
		rec.RedeemScript = script
		rec.Address, err = btcutil.NewAddressScriptHash(script, params)
		return err
	}

	rec.WitnessScript = script
	hash := sha256.Sum256(script)
	wsh, err := btcutil.NewAddressWitnessScriptHash(hash[:], params)
	if err != nil {
		return err
	}
	if policy.Type == MultiSigWitness {
		rec.Address = wsh
		return nil
	}

	rec.RedeemScript, err = txscript.PayToAddrScript(wsh)
	if err != nil {
		return err
	}
	rec.Address, err = btcutil.NewAddressScriptHash(rec.RedeemScript, params)
	return err
}
