// Copyright (c) 2014-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package waddrmgr

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a kind of error.  Every code describes a
// configuration problem: the input can never succeed on retry.
type ErrorCode int

const (
	// ErrInvalidMnemonic indicates a mnemonic that fails the BIP39 word
	// list or checksum validation.
	ErrInvalidMnemonic ErrorCode = iota

	// ErrInvalidPath indicates a derivation path that can't be parsed or
	// that doesn't fit the selected script type.
	ErrInvalidPath

	// ErrMalformedKey indicates an extended key that fails to decode,
	// has a bad checksum, or is of the wrong kind (private vs public).
	ErrMalformedKey

	// ErrUnknownPrefix indicates an extended key version or a requested
	// SLIP-132 prefix that isn't known.
	ErrUnknownPrefix

	// ErrWrongNet indicates key material for a different network than the
	// one the identity is bound to.
	ErrWrongNet

	// ErrDuplicateFingerprint indicates two cosigners of one multisig set
	// share a master key fingerprint.
	ErrDuplicateFingerprint

	// ErrFingerprintMismatch indicates replacement key material whose
	// fingerprint or account key differs from the cosigner it replaces.
	ErrFingerprintMismatch

	// ErrInvalidThreshold indicates an M-of-N combination that can't be
	// expressed, such as M > N or N above the script limit.
	ErrInvalidThreshold

	// ErrInvalidPolicy indicates a script type that doesn't fit the
	// requested operation.
	ErrInvalidPolicy

	// ErrWatchingOnly indicates that private key material was requested
	// from an identity that only holds public keys.
	ErrWatchingOnly

	// ErrKeyDerivation indicates a BIP32 derivation failure, including the
	// astronomically unlikely invalid child.
	ErrKeyDerivation
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrInvalidMnemonic:      "ErrInvalidMnemonic",
	ErrInvalidPath:          "ErrInvalidPath",
	ErrMalformedKey:         "ErrMalformedKey",
	ErrUnknownPrefix:        "ErrUnknownPrefix",
	ErrWrongNet:             "ErrWrongNet",
	ErrDuplicateFingerprint: "ErrDuplicateFingerprint",
	ErrFingerprintMismatch:  "ErrFingerprintMismatch",
	ErrInvalidThreshold:     "ErrInvalidThreshold",
	ErrInvalidPolicy:        "ErrInvalidPolicy",
	ErrWatchingOnly:         "ErrWatchingOnly",
	ErrKeyDerivation:        "ErrKeyDerivation",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// ManagerError provides a single type for errors that can happen during
// address derivation and identity setup.  The caller can use errors.As or
// IsError to inspect the ErrorCode.
type ManagerError struct {
	ErrorCode   ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
	Err         error     // Underlying error
}

// Error satisfies the error interface and prints human-readable errors.
func (e ManagerError) Error() string {
	if e.Err != nil {
		return e.Description + ": " + e.Err.Error()
	}
	return e.Description
}

// Unwrap returns the underlying error, if any.
func (e ManagerError) Unwrap() error {
	return e.Err
}

// managerError creates a ManagerError given a set of arguments.
func managerError(c ErrorCode, desc string, err error) ManagerError {
	return ManagerError{ErrorCode: c, Description: desc, Err: err}
}

// IsError returns whether err is a ManagerError with a matching error code.
func IsError(err error, code ErrorCode) bool {
	var e ManagerError
	return errors.As(err, &e) && e.ErrorCode == code
}
