// Copyright (c) 2016-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txrules

import (
	"errors"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/hdwallet/pkg/unit"
)

const (
	// DefaultRelayFeePerKb is the default minimum relay fee policy for a
	// mempool.
	DefaultRelayFeePerKb btcutil.Amount = 1000

	// DefaultDustRelayFeePerKb is the fee rate dust limits are computed
	// at.
	DefaultDustRelayFeePerKb btcutil.Amount = 3000

	// legacySpendSize is the size of an input spending a compressed P2PKH
	// output.
	legacySpendSize = 32 + 4 + 1 + 107 + 4

	// witnessSpendSize is the virtual size of an input spending a witness
	// program, with its 107 byte witness discounted.
	witnessSpendSize = 32 + 4 + 1 + 107/blockchain.WitnessScaleFactor + 4
)

// Transaction rule violations
var (
	ErrAmountNegative   = errors.New("transaction output amount is negative")
	ErrAmountExceedsMax = errors.New("transaction output amount exceeds maximum value")
	ErrOutputIsDust     = errors.New("transaction output is dust")
)

// GetDustThreshold returns the smallest value an output with the given
// script can carry without being dust.
func GetDustThreshold(pkScript []byte,
	dustRelayFeePerKb btcutil.Amount) btcutil.Amount {

	size := 8 + wire.VarIntSerializeSize(uint64(len(pkScript))) +
		len(pkScript)
	if txscript.IsWitnessProgram(pkScript) {
		size += witnessSpendSize
	} else {
		size += legacySpendSize
	}

	return unit.NewSatPerKVByte(dustRelayFeePerKb).FeeForVSize(
		unit.NewVByte(uint64(size)),
	)
}

// IsDustAmount determines whether an output of the given value paying to
// pkScript would be dust.
func IsDustAmount(amount btcutil.Amount, pkScript []byte,
	dustRelayFeePerKb btcutil.Amount) bool {

	return amount < GetDustThreshold(pkScript, dustRelayFeePerKb)
}

// IsDustOutput determines whether a transaction output is considered dust.
// Transactions with dust outputs are not standard and are rejected by mempools
// with default policies.
func IsDustOutput(output *wire.TxOut, dustRelayFeePerKb btcutil.Amount) bool {
	// Unspendable outputs which solely carry data are not checked for dust.
	if txscript.GetScriptClass(output.PkScript) == txscript.NullDataTy {
		return false
	}

	// All other unspendable outputs are considered dust.
	if txscript.IsUnspendable(output.PkScript) {
		return true
	}

	return IsDustAmount(
		btcutil.Amount(output.Value), output.PkScript,
		dustRelayFeePerKb,
	)
}

// CheckOutput performs simple consensus and policy tests on a transaction
// output.
func CheckOutput(output *wire.TxOut, dustRelayFeePerKb btcutil.Amount) error {
	if output.Value < 0 {
		return ErrAmountNegative
	}
	if output.Value > btcutil.MaxSatoshi {
		return ErrAmountExceedsMax
	}
	if IsDustOutput(output, dustRelayFeePerKb) {
		return ErrOutputIsDust
	}
	return nil
}
