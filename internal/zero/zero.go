// Copyright (c) 2015-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package zero contains functions to clear seed and key material from
// memory once it is no longer needed.
package zero

// Bytes sets all bytes in the passed slice to zero.  This is used to
// explicitly clear BIP39 seeds and serialized private keys from memory.
func Bytes(b []byte) {
	clear(b)
}

// Strings drops every element of the passed slice.  Go strings are immutable
// so their backing memory can't be wiped, but releasing the references lets
// mnemonic words become unreachable as soon as possible.
func Strings(s []string) {
	clear(s)
}
