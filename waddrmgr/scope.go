// Copyright (c) 2017-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package waddrmgr

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

// Branch selects one of the two address chains below an account key.
type Branch uint32

const (
	// ExternalBranch is the chain of addresses handed out to receive
	// funds.
	ExternalBranch Branch = 0

	// InternalBranch is the chain of change addresses.  They are never
	// shown to a counterparty.
	InternalBranch Branch = 1
)

// Branches lists both address chains in derivation order.
var Branches = []Branch{ExternalBranch, InternalBranch}

// String returns the branch name.
func (b Branch) String() string {
	switch b {
	case ExternalBranch:
		return "external"
	case InternalBranch:
		return "internal"
	default:
		return fmt.Sprintf("branch(%d)", uint32(b))
	}
}

// Path is a BIP32 derivation path relative to a master key.  Hardened
// elements carry hdkeychain.HardenedKeyStart.
type Path []uint32

// ParsePath parses a path such as "m/84'/0'/0'" or "m/48h/1h/0h/2h".  The
// leading "m" is optional and "m" on its own is the empty path.
func ParsePath(s string) (Path, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "m")
	s = strings.TrimPrefix(s, "/")
	if s == "" {
		return Path{}, nil
	}

	parts := strings.Split(s, "/")
	path := make(Path, 0, len(parts))
	for _, part := range parts {
		hardened := strings.HasSuffix(part, "'") ||
			strings.HasSuffix(part, "h") ||
			strings.HasSuffix(part, "H")
		if hardened {
			part = part[:len(part)-1]
		}

		n, err := strconv.ParseUint(part, 10, 32)
		if err != nil || n >= hdkeychain.HardenedKeyStart {
			str := fmt.Sprintf("invalid path element %q in %q",
				part, s)
			return nil, managerError(ErrInvalidPath, str, err)
		}

		child := uint32(n)
		if hardened {
			child += hdkeychain.HardenedKeyStart
		}
		path = append(path, child)
	}

	return path, nil
}

// String renders the path with apostrophes for hardened elements.
func (p Path) String() string {
	var b strings.Builder
	b.WriteString("m")
	for _, child := range p {
		b.WriteString("/")
		if child >= hdkeychain.HardenedKeyStart {
			b.WriteString(strconv.FormatUint(
				uint64(child-hdkeychain.HardenedKeyStart), 10,
			))
			b.WriteString("'")
			continue
		}
		b.WriteString(strconv.FormatUint(uint64(child), 10))
	}

	return b.String()
}

// Child returns a copy of the path extended by the given elements.
func (p Path) Child(children ...uint32) Path {
	out := make(Path, 0, len(p)+len(children))
	out = append(out, p...)
	return append(out, children...)
}

// Equal reports whether both paths have the same elements.
func (p Path) Equal(other Path) bool {
	return slices.Equal(p, other)
}

// Purpose returns the unhardened first element of the path, if any.
func (p Path) Purpose() (uint32, bool) {
	if len(p) == 0 || p[0] < hdkeychain.HardenedKeyStart {
		return 0, false
	}
	return p[0] - hdkeychain.HardenedKeyStart, true
}

// DerivationPath represents the position of a key below an account: the
// account path itself, followed by one element for the branch and one for
// the index.  The key derived using this path will be exactly:
// <account path>/branch/index.
type DerivationPath struct {
	// Account is the full path of the account key, e.g. m/84'/0'/0'.
	Account Path

	// Branch is either ExternalBranch or InternalBranch.
	Branch Branch

	// Index is the final child in the derivation path.
	Index uint32
}

// Full returns the flattened path from the master key.
func (d DerivationPath) Full() Path {
	return d.Account.Child(uint32(d.Branch), d.Index)
}

// String returns the flattened path in apostrophe notation.
func (d DerivationPath) String() string {
	return d.Full().String()
}

// KeyScope represents a restricted key scope from the primary root key within
// the HD chain: m/purpose'/cointype'.  Accounts live one hardened level below.
type KeyScope struct {
	// Purpose is the purpose of this key scope. This is the first child of
	// the master HD key.
	Purpose uint32

	// Coin is a value that represents the particular coin which is the
	// child of the purpose key.
	Coin uint32
}

// String returns a human readable version describing the keypath encapsulated
// by the target key scope.
func (k KeyScope) String() string {
	return fmt.Sprintf("m/%v'/%v'", k.Purpose, k.Coin)
}

// AccountPath returns m/purpose'/coin'/account'.
func (k KeyScope) AccountPath(account uint32) Path {
	return Path{
		k.Purpose + hdkeychain.HardenedKeyStart,
		k.Coin + hdkeychain.HardenedKeyStart,
		account + hdkeychain.HardenedKeyStart,
	}
}

const (
	// purposeBIP0044 is the legacy P2PKH purpose.
	purposeBIP0044 = 44

	// purposeBIP0045 is the legacy P2SH multisig purpose.  It has no
	// coin type or account levels.
	purposeBIP0045 = 45

	// purposeBIP0048 is the multisig purpose, with a trailing script type
	// level: 1' for P2SH-P2WSH and 2' for P2WSH.
	purposeBIP0048 = 48

	// purposeBIP0049 is the P2SH-P2WPKH purpose.
	purposeBIP0049 = 49

	// purposeBIP0084 is the P2WPKH purpose.
	purposeBIP0084 = 84

	// purposeBIP0086 is the single key P2TR purpose.
	purposeBIP0086 = 86
)

var (
	// KeyScopeBIP0044 is the key scope for BIP0044 derivation.
	KeyScopeBIP0044 = KeyScope{Purpose: purposeBIP0044, Coin: 0}

	// KeyScopeBIP0048 is the key scope for BIP0048 multisig derivation.
	KeyScopeBIP0048 = KeyScope{Purpose: purposeBIP0048, Coin: 0}

	// KeyScopeBIP0049 is the key scope for BIP0049 derivation.
	KeyScopeBIP0049 = KeyScope{Purpose: purposeBIP0049, Coin: 0}

	// KeyScopeBIP0084 is the key scope for BIP0084 derivation.
	KeyScopeBIP0084 = KeyScope{Purpose: purposeBIP0084, Coin: 0}

	// KeyScopeBIP0086 is the key scope for BIP0086 derivation.
	KeyScopeBIP0086 = KeyScope{Purpose: purposeBIP0086, Coin: 0}
)
