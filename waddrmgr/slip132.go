// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package waddrmgr

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	// serializedKeyLen is the length of a BIP32 serialized extended key
	// without its checksum.
	serializedKeyLen = 78

	// checksumLen is the length of the base58check checksum.
	checksumLen = 4
)

// keyVersion describes one SLIP-132 registered version.
type keyVersion struct {
	prefix  string
	version [4]byte
	private bool
	mainNet bool

	// public names the public prefix a private version belongs to, so a
	// conversion keeps the key kind.
	public string
}

// slip132Versions lists every registered prefix this package understands.
var slip132Versions = []keyVersion{
	{"xpub", [4]byte{0x04, 0x88, 0xb2, 0x1e}, false, true, "xpub"},
	{"xprv", [4]byte{0x04, 0x88, 0xad, 0xe4}, true, true, "xpub"},
	{"ypub", [4]byte{0x04, 0x9d, 0x7c, 0xb2}, false, true, "ypub"},
	{"yprv", [4]byte{0x04, 0x9d, 0x78, 0x78}, true, true, "ypub"},
	{"zpub", [4]byte{0x04, 0xb2, 0x47, 0x46}, false, true, "zpub"},
	{"zprv", [4]byte{0x04, 0xb2, 0x43, 0x0c}, true, true, "zpub"},
	{"Ypub", [4]byte{0x02, 0x95, 0xb4, 0x3f}, false, true, "Ypub"},
	{"Yprv", [4]byte{0x02, 0x95, 0xb0, 0x05}, true, true, "Ypub"},
	{"Zpub", [4]byte{0x02, 0xaa, 0x7e, 0xd3}, false, true, "Zpub"},
	{"Zprv", [4]byte{0x02, 0xaa, 0x7a, 0x99}, true, true, "Zpub"},
	{"tpub", [4]byte{0x04, 0x35, 0x87, 0xcf}, false, false, "tpub"},
	{"tprv", [4]byte{0x04, 0x35, 0x83, 0x94}, true, false, "tpub"},
	{"upub", [4]byte{0x04, 0x4a, 0x52, 0x62}, false, false, "upub"},
	{"uprv", [4]byte{0x04, 0x4a, 0x4e, 0x28}, true, false, "upub"},
	{"vpub", [4]byte{0x04, 0x5f, 0x1c, 0xf6}, false, false, "vpub"},
	{"vprv", [4]byte{0x04, 0x5f, 0x18, 0xbc}, true, false, "vpub"},
	{"Upub", [4]byte{0x02, 0x42, 0x89, 0xef}, false, false, "Upub"},
	{"Uprv", [4]byte{0x02, 0x42, 0x85, 0xb5}, true, false, "Upub"},
	{"Vpub", [4]byte{0x02, 0x57, 0x54, 0x83}, false, false, "Vpub"},
	{"Vprv", [4]byte{0x02, 0x57, 0x50, 0x48}, true, false, "Vpub"},
}

// prefixScriptTypes maps the public prefixes that imply a script type.  The
// plain xpub/tpub prefixes are ambiguous and default to P2PKH.
var prefixScriptTypes = map[string]ScriptType{
	"xpub": PubKeyHash,
	"tpub": PubKeyHash,
	"ypub": NestedWitnessPubKey,
	"upub": NestedWitnessPubKey,
	"zpub": WitnessPubKey,
	"vpub": WitnessPubKey,
	"Ypub": MultiSigNestedWitness,
	"Upub": MultiSigNestedWitness,
	"Zpub": MultiSigWitness,
	"Vpub": MultiSigWitness,
}

func versionByPrefix(prefix string) (keyVersion, bool) {
	for _, v := range slip132Versions {
		if v.prefix == prefix {
			return v, true
		}
	}
	return keyVersion{}, false
}

func versionByBytes(version []byte) (keyVersion, bool) {
	for _, v := range slip132Versions {
		if bytes.Equal(v.version[:], version) {
			return v, true
		}
	}
	return keyVersion{}, false
}

// decodeExtendedKey base58 decodes key and verifies its checksum, returning
// the 78 byte payload.
func decodeExtendedKey(key string) ([]byte, error) {
	decoded := base58.Decode(key)
	if len(decoded) != serializedKeyLen+checksumLen {
		str := fmt.Sprintf("extended key has length %d", len(decoded))
		return nil, managerError(ErrMalformedKey, str, nil)
	}

	payload := decoded[:serializedKeyLen]
	checksum := chainhash.DoubleHashB(payload)[:checksumLen]
	if !bytes.Equal(checksum, decoded[serializedKeyLen:]) {
		return nil, managerError(
			ErrMalformedKey, "extended key checksum mismatch", nil,
		)
	}

	return payload, nil
}

// encodeExtendedKey appends a fresh checksum and base58 encodes payload.
func encodeExtendedKey(payload []byte) string {
	checksum := chainhash.DoubleHashB(payload)[:checksumLen]
	out := make([]byte, 0, len(payload)+checksumLen)
	out = append(out, payload...)
	out = append(out, checksum...)

	return base58.Encode(out)
}

// DetectPrefix returns the SLIP-132 prefix of an encoded extended key.
func DetectPrefix(key string) (string, error) {
	payload, err := decodeExtendedKey(key)
	if err != nil {
		return "", err
	}

	v, ok := versionByBytes(payload[:4])
	if !ok {
		str := fmt.Sprintf("unknown extended key version %x",
			payload[:4])
		return "", managerError(ErrUnknownPrefix, str, nil)
	}

	return v.prefix, nil
}

// ConvertExtendedKey swaps the version bytes of key for those of the target
// prefix.  The target is named by its public form ("zpub", "Ypub", ...); a
// private key is converted to the matching private version.  The key
// material and the network are left untouched, so converting back restores
// the original string exactly.
func ConvertExtendedKey(key, target string) (string, error) {
	payload, err := decodeExtendedKey(key)
	if err != nil {
		return "", err
	}

	from, ok := versionByBytes(payload[:4])
	if !ok {
		str := fmt.Sprintf("unknown extended key version %x",
			payload[:4])
		return "", managerError(ErrUnknownPrefix, str, nil)
	}

	to, ok := versionByPrefix(target)
	if !ok || to.private {
		str := fmt.Sprintf("unknown target prefix %q", target)
		return "", managerError(ErrUnknownPrefix, str, nil)
	}
	if to.mainNet != from.mainNet {
		str := fmt.Sprintf("can't convert %s key to %s", from.prefix,
			target)
		return "", managerError(ErrWrongNet, str, nil)
	}

	if from.private {
		for _, v := range slip132Versions {
			if v.private && v.public == to.prefix {
				to = v
				break
			}
		}
	}

	converted := make([]byte, serializedKeyLen)
	copy(converted, payload)
	copy(converted[:4], to.version[:])

	return encodeExtendedKey(converted), nil
}

// ScriptTypeForPrefix returns the script type a public prefix implies.
func ScriptTypeForPrefix(prefix string) (ScriptType, bool) {
	t, ok := prefixScriptTypes[prefix]
	return t, ok
}

// ParseExtendedKey decodes any SLIP-132 encoded key into an hdkeychain key
// carrying the plain BIP32 version of its network, so it can be neutered and
// rendered by hdkeychain.  The original prefix is returned alongside.
func ParseExtendedKey(key string) (*hdkeychain.ExtendedKey, string, error) {
	prefix, err := DetectPrefix(key)
	if err != nil {
		return nil, "", err
	}

	v, _ := versionByPrefix(prefix)
	base := "tpub"
	if v.mainNet {
		base = "xpub"
	}

	normalized, err := ConvertExtendedKey(key, base)
	if err != nil {
		return nil, "", err
	}

	extKey, err := hdkeychain.NewKeyFromString(normalized)
	if err != nil {
		return nil, "", managerError(
			ErrMalformedKey, "unable to parse extended key", err,
		)
	}

	return extKey, prefix, nil
}
