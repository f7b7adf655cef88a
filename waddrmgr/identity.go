// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package waddrmgr

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/hdwallet/netparams"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Identity is the immutable key material of a wallet: the network, the
// script policy, and one cosigner for single key wallets or N cosigners with
// a threshold M for multisig wallets.
type Identity struct {
	params    *chaincfg.Params
	policy    *Policy
	threshold int
	cosigners []*Cosigner
}

// NewSingleSigIdentity binds a single cosigner to a single key script type.
// When the cosigner carries no custom path the policy's default account 0
// path is used.
func NewSingleSigIdentity(params *chaincfg.Params, scriptType ScriptType,
	c *Cosigner) (*Identity, error) {

	policy, err := PolicyFor(scriptType)
	if err != nil {
		return nil, err
	}
	if policy.MultiSig {
		str := fmt.Sprintf("%v requires a multisig identity", scriptType)
		return nil, managerError(ErrInvalidPolicy, str, nil)
	}

	bound, err := c.bind(
		params, policy.DefaultAccountPath(params.HDCoinType, 0),
	)
	if err != nil {
		return nil, err
	}

	return &Identity{
		params:    params,
		policy:    policy,
		threshold: 1,
		cosigners: []*Cosigner{bound},
	}, nil
}

// NewMultisigIdentity binds M-of-N cosigners to a multisig script type.
// Fingerprints must be unique within the set.
func NewMultisigIdentity(params *chaincfg.Params, scriptType ScriptType,
	threshold int, cosigners []*Cosigner) (*Identity, error) {

	policy, err := PolicyFor(scriptType)
	if err != nil {
		return nil, err
	}
	if !policy.MultiSig {
		str := fmt.Sprintf("%v is not a multisig script type",
			scriptType)
		return nil, managerError(ErrInvalidPolicy, str, nil)
	}

	n := len(cosigners)
	switch {
	case threshold < 1 || threshold > n:
		str := fmt.Sprintf("threshold %d out of range for %d "+
			"cosigners", threshold, n)
		return nil, managerError(ErrInvalidThreshold, str, nil)

	case n > policy.MaxCosigners():
		str := fmt.Sprintf("%v supports at most %d cosigners, got %d",
			scriptType, policy.MaxCosigners(), n)
		return nil, managerError(ErrInvalidThreshold, str, nil)
	}

	defaultPath := policy.DefaultAccountPath(params.HDCoinType, 0)
	bound := make([]*Cosigner, 0, n)
	seen := make(map[uint32]struct{}, n)
	for i, c := range cosigners {
		b, err := c.bind(params, defaultPath)
		if err != nil {
			return nil, fmt.Errorf("cosigner %d: %w", i, err)
		}

		if _, ok := seen[b.fingerprint]; ok {
			str := fmt.Sprintf("fingerprint %s appears more than "+
				"once", FormatFingerprint(b.fingerprint))
			return nil, managerError(
				ErrDuplicateFingerprint, str, nil,
			)
		}
		seen[b.fingerprint] = struct{}{}

		bound = append(bound, b)
	}

	return &Identity{
		params:    params,
		policy:    policy,
		threshold: threshold,
		cosigners: bound,
	}, nil
}

// WithCosigner returns a copy of the identity with the cosigner at idx
// replaced.  The replacement must come from the same master key and account
// as the cosigner it replaces, so only the spending capability changes.
func (id *Identity) WithCosigner(idx int, c *Cosigner) (*Identity, error) {
	if idx < 0 || idx >= len(id.cosigners) {
		str := fmt.Sprintf("no cosigner at index %d", idx)
		return nil, managerError(ErrInvalidPolicy, str, nil)
	}

	old := id.cosigners[idx]
	bound, err := c.bind(id.params, old.Path())
	if err != nil {
		return nil, err
	}

	if bound.fingerprint != old.fingerprint {
		str := fmt.Sprintf("fingerprint %s does not match %s",
			FormatFingerprint(bound.fingerprint),
			FormatFingerprint(old.fingerprint))
		return nil, managerError(ErrFingerprintMismatch, str, nil)
	}
	if bound.accountKey.String() != old.accountKey.String() {
		return nil, managerError(
			ErrFingerprintMismatch,
			"account key does not match the replaced cosigner", nil,
		)
	}

	cosigners := make([]*Cosigner, len(id.cosigners))
	copy(cosigners, id.cosigners)
	cosigners[idx] = bound

	return &Identity{
		params:    id.params,
		policy:    id.policy,
		threshold: id.threshold,
		cosigners: cosigners,
	}, nil
}

// Params returns the network of the identity.
func (id *Identity) Params() *chaincfg.Params {
	return id.params
}

// Policy returns the script policy of the identity.
func (id *Identity) Policy() *Policy {
	return id.policy
}

// Threshold returns M, the number of signatures an input needs.  It is 1 for
// single key identities.
func (id *Identity) Threshold() int {
	return id.threshold
}

// Cosigners returns the bound cosigners in their configured order.
func (id *Identity) Cosigners() []*Cosigner {
	out := make([]*Cosigner, len(id.cosigners))
	copy(out, id.cosigners)
	return out
}

// IsMultisig reports whether the identity is M-of-N.
func (id *Identity) IsMultisig() bool {
	return id.policy.MultiSig
}

// IsWatchOnly reports whether no cosigner can sign.
func (id *Identity) IsWatchOnly() bool {
	for _, c := range id.cosigners {
		if !c.IsWatchOnly() {
			return false
		}
	}
	return true
}

// MasterFingerprint returns the fingerprint of the first cosigner, which for
// single key identities is the wallet's own master key.
func (id *Identity) MasterFingerprint() uint32 {
	return id.cosigners[0].fingerprint
}

// AccountPath returns the account path of the first cosigner.
func (id *Identity) AccountPath() Path {
	return id.cosigners[0].Path()
}

// AccountXPub exports the account key of the first cosigner under a SLIP-132
// prefix.  An empty prefix selects the policy's own prefix.
func (id *Identity) AccountXPub(prefix string) (string, error) {
	if prefix == "" {
		prefix = id.policy.KeyPrefix(id.params.Net ==
			chaincfg.MainNetParams.Net)
	}
	return ConvertExtendedKey(id.cosigners[0].accountKey.String(), prefix)
}

// String renders the identity as an output descriptor without a checksum,
// e.g. wpkh([73c5da0a/84'/0'/0']xpub.../<0;1>/*).
func (id *Identity) String() string {
	keys := make([]string, len(id.cosigners))
	for i, c := range id.cosigners {
		origin := FormatFingerprint(c.fingerprint) +
			c.Path().String()[1:]
		keys[i] = "[" + origin + "]" + c.accountKey.String() +
			"/<0;1>/*"
	}

	switch id.policy.Type {
	case PubKeyHash:
		return "pkh(" + keys[0] + ")"
	case NestedWitnessPubKey:
		return "sh(wpkh(" + keys[0] + "))"
	case WitnessPubKey:
		return "wpkh(" + keys[0] + ")"
	case TaprootPubKey:
		return "tr(" + keys[0] + ")"
	}

	multi := fmt.Sprintf("sortedmulti(%d,%s)", id.threshold,
		strings.Join(keys, ","))
	switch id.policy.Type {
	case MultiSigScriptHash:
		return "sh(" + multi + ")"
	case MultiSigNestedWitness:
		return "sh(wsh(" + multi + "))"
	default:
		return "wsh(" + multi + ")"
	}
}

// CosignerRecord is the persisted form of a cosigner.  Exactly one of
// Mnemonic, Seed and XPub is set.
type CosignerRecord struct {
	Mnemonic    string `json:"mnemonic,omitempty"`
	Passphrase  string `json:"passphrase,omitempty"`
	Seed        string `json:"seed,omitempty"`
	XPub        string `json:"xpub,omitempty"`
	Fingerprint string `json:"fingerprint"`
	Path        string `json:"path"`
}

// IdentityRecord is the persisted form of an identity.  It never holds
// derived keys.
type IdentityRecord struct {
	Network    string           `json:"network"`
	ScriptType string           `json:"script_type"`
	Threshold  int              `json:"threshold"`
	Cosigners  []CosignerRecord `json:"cosigners"`
}

// Record returns the persisted form of the identity.
func (id *Identity) Record() (IdentityRecord, error) {
	rec := IdentityRecord{
		Network:    id.params.Name,
		ScriptType: id.policy.Name,
		Threshold:  id.threshold,
		Cosigners:  make([]CosignerRecord, 0, len(id.cosigners)),
	}

	for i, c := range id.cosigners {
		cr := CosignerRecord{
			Fingerprint: FormatFingerprint(c.fingerprint),
			Path:        c.Path().String(),
		}

		switch seed := c.seed.(type) {
		case nil:
			cr.XPub = c.xpub

		case *MnemonicSeed:
			cr.Mnemonic = seed.Mnemonic()
			cr.Passphrase = seed.Passphrase()

		case RawSeed:
			cr.Seed = hex.EncodeToString(seed)

		default:
			str := fmt.Sprintf("cosigner %d: seed provider %T "+
				"cannot be persisted", i, seed)
			return IdentityRecord{}, managerError(
				ErrInvalidPolicy, str, nil,
			)
		}

		rec.Cosigners = append(rec.Cosigners, cr)
	}

	return rec, nil
}

// IdentityFromRecord rebuilds an identity from its persisted form.
func IdentityFromRecord(rec IdentityRecord) (*Identity, error) {
	net, err := netparams.ByName(rec.Network)
	if err != nil {
		return nil, managerError(ErrInvalidPolicy, err.Error(), nil)
	}
	scriptType, err := ParseScriptType(rec.ScriptType)
	if err != nil {
		return nil, err
	}

	cosigners := make([]*Cosigner, 0, len(rec.Cosigners))
	for i, cr := range rec.Cosigners {
		c, err := cosignerFromRecord(cr)
		if err != nil {
			return nil, fmt.Errorf("cosigner %d: %w", i, err)
		}
		cosigners = append(cosigners, c)
	}

	if !scriptType.IsMultiSig() {
		if len(cosigners) != 1 {
			str := fmt.Sprintf("single key identity with %d "+
				"cosigners", len(cosigners))
			return nil, managerError(ErrInvalidPolicy, str, nil)
		}
		return NewSingleSigIdentity(
			net.Params, scriptType, cosigners[0],
		)
	}

	return NewMultisigIdentity(
		net.Params, scriptType, rec.Threshold, cosigners,
	)
}

func cosignerFromRecord(cr CosignerRecord) (*Cosigner, error) {
	path := fn.None[Path]()
	if cr.Path != "" {
		p, err := ParsePath(cr.Path)
		if err != nil {
			return nil, err
		}
		path = fn.Some(p)
	}

	switch {
	case cr.Mnemonic != "":
		seed, err := NewMnemonicSeed(cr.Mnemonic, cr.Passphrase)
		if err != nil {
			return nil, err
		}
		return NewSeedCosigner(seed, path), nil

	case cr.Seed != "":
		seed, err := NewRawSeed(cr.Seed)
		if err != nil {
			return nil, err
		}
		return NewSeedCosigner(seed, path), nil

	default:
		fp, err := ParseFingerprint(cr.Fingerprint)
		if err != nil {
			return nil, err
		}
		return NewXPubCosigner(cr.XPub, fp, path)
	}
}
