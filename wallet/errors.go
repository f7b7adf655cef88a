// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import "errors"

var (
	// ErrMissingSigningKey is returned when an input the wallet must sign
	// has no private key available.
	ErrMissingSigningKey = errors.New("no signing key available for " +
		"input")

	// ErrNotMine is returned when an address or output does not belong
	// to the wallet.
	ErrNotMine = errors.New("address does not belong to the wallet")

	// ErrUnknownUtxo is returned for operations on an outpoint the wallet
	// does not track.
	ErrUnknownUtxo = errors.New("unknown utxo")

	// ErrRawTxUnavailable is returned when a previous transaction needed
	// to spend a legacy or multisig output is not known.
	ErrRawTxUnavailable = errors.New("raw transaction unavailable")

	// ErrInvalidTarget is returned for a target that has neither an
	// address nor a script.
	ErrInvalidTarget = errors.New("target has no address or script")

	// ErrMissingFeeRate is returned when a transaction is requested
	// without a fee rate.
	ErrMissingFeeRate = errors.New("missing fee rate")

	// ErrFeeRateTooLow is returned when a transaction is requested at a
	// fee rate below the default minimum relay fee.
	ErrFeeRateTooLow = errors.New("fee rate below minimum relay fee")

	// ErrNoBackend is returned by network operations on a wallet
	// configured without a chain backend.
	ErrNoBackend = errors.New("wallet has no chain backend")

	// ErrNoPsbtsToCombine is returned when CombinePsbt is called without
	// packets.
	ErrNoPsbtsToCombine = errors.New("no psbts to combine")

	// ErrDifferentTransactions is returned when the packets to combine
	// spend different unsigned transactions.
	ErrDifferentTransactions = errors.New("psbts are for different " +
		"transactions")

	// ErrInputCountMismatch is returned when the packets to combine have
	// different input counts.
	ErrInputCountMismatch = errors.New("psbt input count mismatch")

	// ErrOutputCountMismatch is returned when the packets to combine have
	// different output counts.
	ErrOutputCountMismatch = errors.New("psbt output count mismatch")

	// ErrPsbtMergeConflict is returned when two packets disagree on an
	// immutable input or output field.
	ErrPsbtMergeConflict = errors.New("psbt merge conflict")

	// ErrNoSnapshot is returned when a database holds no wallet.
	ErrNoSnapshot = errors.New("no wallet snapshot in database")
)
