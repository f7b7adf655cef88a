// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package waddrmgr

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

// ScriptType is the closed set of output script forms a wallet can use.
type ScriptType uint8

const (
	// PubKeyHash is a legacy P2PKH output.
	PubKeyHash ScriptType = iota

	// NestedWitnessPubKey is a P2WPKH program wrapped in P2SH.
	NestedWitnessPubKey

	// WitnessPubKey is a native segwit v0 P2WPKH output.
	WitnessPubKey

	// TaprootPubKey is a BIP86 key path only P2TR output.
	TaprootPubKey

	// MultiSigScriptHash is a bare M-of-N multisig script in P2SH.
	MultiSigScriptHash

	// MultiSigNestedWitness is an M-of-N multisig witness script wrapped
	// in P2SH-P2WSH.
	MultiSigNestedWitness

	// MultiSigWitness is an M-of-N multisig witness script in native
	// P2WSH.
	MultiSigWitness
)

// Policy is the value object every derivation, sync and signing algorithm is
// parameterized by.  There is exactly one Policy per ScriptType.
type Policy struct {
	// Type is the script type the policy describes.
	Type ScriptType

	// Name is the short name used in configuration, e.g. "p2wpkh".
	Name string

	// MultiSig is true for the M-of-N variants.
	MultiSig bool

	// Witness is true when spends carry witness data, so only the spent
	// output needs to be embedded in a PSBT input.
	Witness bool

	// scope is the BIP44-like scope the default account path starts
	// with.
	scope KeyScope

	// bip48ScriptType is the trailing BIP48 level for segwit multisig
	// accounts, zero when unused.
	bip48ScriptType uint32

	// mainPrefix and testPrefix name the SLIP-132 public key versions
	// the account key is exported under.
	mainPrefix string
	testPrefix string
}

var policies = map[ScriptType]*Policy{
	PubKeyHash: {
		Type: PubKeyHash, Name: "p2pkh",
		scope:      KeyScopeBIP0044,
		mainPrefix: "xpub", testPrefix: "tpub",
	},
	NestedWitnessPubKey: {
		Type: NestedWitnessPubKey, Name: "p2sh-p2wpkh", Witness: true,
		scope:      KeyScopeBIP0049,
		mainPrefix: "ypub", testPrefix: "upub",
	},
	WitnessPubKey: {
		Type: WitnessPubKey, Name: "p2wpkh", Witness: true,
		scope:      KeyScopeBIP0084,
		mainPrefix: "zpub", testPrefix: "vpub",
	},
	TaprootPubKey: {
		Type: TaprootPubKey, Name: "p2tr", Witness: true,
		scope:      KeyScopeBIP0086,
		mainPrefix: "xpub", testPrefix: "tpub",
	},
	MultiSigScriptHash: {
		Type: MultiSigScriptHash, Name: "p2sh", MultiSig: true,
		scope:      KeyScope{Purpose: purposeBIP0045},
		mainPrefix: "xpub", testPrefix: "tpub",
	},
	MultiSigNestedWitness: {
		Type: MultiSigNestedWitness, Name: "p2sh-p2wsh",
		MultiSig: true, Witness: true,
		scope:           KeyScopeBIP0048,
		bip48ScriptType: 1,
		mainPrefix:      "Ypub", testPrefix: "Upub",
	},
	MultiSigWitness: {
		Type: MultiSigWitness, Name: "p2wsh",
		MultiSig: true, Witness: true,
		scope:           KeyScopeBIP0048,
		bip48ScriptType: 2,
		mainPrefix:      "Zpub", testPrefix: "Vpub",
	},
}

// PolicyFor returns the policy of a script type.
func PolicyFor(t ScriptType) (*Policy, error) {
	p, ok := policies[t]
	if !ok {
		str := fmt.Sprintf("unknown script type %d", t)
		return nil, managerError(ErrInvalidPolicy, str, nil)
	}
	return p, nil
}

// ParseScriptType maps a configuration name such as "p2wpkh" or "p2sh-p2wsh"
// to its script type.
func ParseScriptType(name string) (ScriptType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for t, p := range policies {
		if p.Name == name {
			return t, nil
		}
	}

	str := fmt.Sprintf("unknown script type %q", name)
	return 0, managerError(ErrInvalidPolicy, str, nil)
}

// String returns the configuration name of the script type.
func (t ScriptType) String() string {
	if p, ok := policies[t]; ok {
		return p.Name
	}
	return fmt.Sprintf("ScriptType(%d)", uint8(t))
}

// IsMultiSig reports whether t is one of the M-of-N script types.
func (t ScriptType) IsMultiSig() bool {
	p, ok := policies[t]
	return ok && p.MultiSig
}

// DefaultAccountPath returns the standard account path of the policy for the
// given coin type and account number.
func (p *Policy) DefaultAccountPath(coin, account uint32) Path {
	switch {
	// BIP45 cosigner paths stop at the purpose level.
	case p.scope.Purpose == purposeBIP0045:
		return Path{purposeBIP0045 + hdkeychain.HardenedKeyStart}

	case p.bip48ScriptType != 0:
		scope := KeyScope{Purpose: p.scope.Purpose, Coin: coin}
		return scope.AccountPath(account).Child(
			p.bip48ScriptType + hdkeychain.HardenedKeyStart,
		)

	default:
		scope := KeyScope{Purpose: p.scope.Purpose, Coin: coin}
		return scope.AccountPath(account)
	}
}

// KeyPrefix returns the SLIP-132 public key prefix the policy exports its
// account keys under.
func (p *Policy) KeyPrefix(mainNet bool) string {
	if mainNet {
		return p.mainPrefix
	}
	return p.testPrefix
}

// maxSmallIntCosigners is the largest N encodable as OP_1..OP_16.  Script
// classification and finalization only recognize multisig scripts whose
// counts are small integer opcodes.
const maxSmallIntCosigners = 16

// MaxCosigners returns the largest N an M-of-N script of this policy may
// have and still be signed and finalized.
func (p *Policy) MaxCosigners() int {
	if p.Type == MultiSigScriptHash {
		// The redeem script must stay under the 520 byte push limit.
		return 15
	}
	return maxSmallIntCosigners
}
