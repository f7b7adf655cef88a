// Copyright (c) 2016-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txsizes

import (
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/hdwallet/pkg/unit"
)

// Worst case script and input/output size estimates.
const (
	// RedeemP2PKHSigScriptSize is the worst case (largest) serialize size
	// of a transaction input script that redeems a compressed P2PKH output.
	// It is calculated as:
	//
	//   - OP_DATA_73
	//   - 72 bytes DER signature + 1 byte sighash
	//   - OP_DATA_33
	//   - 33 bytes serialized compressed pubkey
	RedeemP2PKHSigScriptSize = 1 + 73 + 1 + 33

	// P2PKHPkScriptSize is the size of a transaction output script that
	// pays to a compressed pubkey hash.
	P2PKHPkScriptSize = 1 + 1 + 1 + 20 + 1 + 1

	// RedeemP2PKHInputSize is the worst case (largest) serialize size of a
	// transaction input redeeming a compressed P2PKH output.  It is
	// calculated as:
	//
	//   - 32 bytes previous tx
	//   - 4 bytes output index
	//   - 1 byte compact int encoding value 107
	//   - 107 bytes signature script
	//   - 4 bytes sequence
	RedeemP2PKHInputSize = 32 + 4 + 1 + RedeemP2PKHSigScriptSize + 4

	// P2WPKHPkScriptSize is the size of a P2WPKH output script: OP_0,
	// OP_DATA_20 and the key hash.
	P2WPKHPkScriptSize = 1 + 1 + 20

	// P2WSHPkScriptSize is the size of a P2WSH output script: OP_0,
	// OP_DATA_32 and the script hash.
	P2WSHPkScriptSize = 1 + 1 + 32

	// P2SHPkScriptSize is the size of a P2SH output script: OP_HASH160,
	// OP_DATA_20, the script hash and OP_EQUAL.
	P2SHPkScriptSize = 1 + 1 + 20 + 1

	// P2TRPkScriptSize is the size of a P2TR output script: OP_1,
	// OP_DATA_32 and the output key.
	P2TRPkScriptSize = 1 + 1 + 32

	// witnessInputSize is the size of an input with an empty signature
	// script: previous outpoint, one byte script length and sequence.
	witnessInputSize = 32 + 4 + 1 + 4

	// RedeemNestedP2WPKHScriptSize is the size of the signature script
	// pushing a P2WPKH program: OP_DATA_22, OP_0, OP_DATA_20 and the key
	// hash.
	RedeemNestedP2WPKHScriptSize = 1 + 1 + 1 + 20

	// RedeemNestedP2WPKHInputSize is the worst case size of a
	// transaction input redeeming a P2SH-P2WPKH output.
	RedeemNestedP2WPKHInputSize = 32 + 4 + 1 +
		RedeemNestedP2WPKHScriptSize + 4

	// RedeemP2WPKHInputWitnessWeight is the worst case weight of
	// a witness for spending P2WPKH and nested P2WPKH outputs. It
	// is calculated as:
	//
	//   - 1 wu compact int encoding value 2 (number of items)
	//   - 1 wu compact int encoding value 73
	//   - 72 wu DER signature + 1 wu sighash
	//   - 1 wu compact int encoding value 33
	//   - 33 wu serialized compressed pubkey
	RedeemP2WPKHInputWitnessWeight = 1 + 1 + 73 + 1 + 33

	// RedeemP2TRInputWitnessWeight is the worst case weight of
	// a witness for spending P2TR outputs. It
	// is calculated as:
	//
	//   - 1 wu compact int encoding value 1 (number of items)
	//   - 1 wu compact int encoding value 65
	//   - 64 wu BIP-340 schnorr signature + 1 wu sighash
	RedeemP2TRInputWitnessWeight = 1 + 1 + 65

	// RedeemNestedP2WSHScriptSize is the size of the signature script
	// pushing a P2WSH program: OP_DATA_34 and the 34 byte program.
	RedeemNestedP2WSHScriptSize = 1 + P2WSHPkScriptSize

	// sigPushSize is a pushed worst case DER signature with sighash byte.
	sigPushSize = 1 + 73
)

// InputSize is what spending one output adds to a signed transaction.
type InputSize struct {
	// Base is the serialized size of the input without witness data.
	Base int

	// WitnessWeight is the weight of the witness stack, zero for legacy
	// inputs.
	WitnessWeight int
}

var (
	// P2PKHInput spends a compressed P2PKH output.
	P2PKHInput = InputSize{Base: RedeemP2PKHInputSize}

	// NestedP2WPKHInput spends a P2SH-P2WPKH output.
	NestedP2WPKHInput = InputSize{
		Base:          RedeemNestedP2WPKHInputSize,
		WitnessWeight: RedeemP2WPKHInputWitnessWeight,
	}

	// P2WPKHInput spends a P2WPKH output.
	P2WPKHInput = InputSize{
		Base:          witnessInputSize,
		WitnessWeight: RedeemP2WPKHInputWitnessWeight,
	}

	// P2TRInput spends a P2TR output through the key path.
	P2TRInput = InputSize{
		Base:          witnessInputSize,
		WitnessWeight: RedeemP2TRInputWitnessWeight,
	}
)

// Weight returns the weight the input adds.
func (s InputSize) Weight() unit.WeightUnit {
	return unit.NewWeightUnit(uint64(
		s.Base*blockchain.WitnessScaleFactor + s.WitnessWeight,
	))
}

// IsWitness reports whether the input carries witness data.
func (s InputSize) IsWitness() bool {
	return s.WitnessWeight > 0
}

// MultiSigScriptSize is the size of an m-of-n CHECKMULTISIG script with
// compressed keys: OP_m, n pushed keys, OP_n and OP_CHECKMULTISIG.
func MultiSigScriptSize(n int) int {
	return 1 + n*(1+33) + 1 + 1
}

// pushSize is the size of the opcode pushing l bytes.
func pushSize(l int) int {
	switch {
	case l < int(txscript.OP_PUSHDATA1):
		return 1
	case l <= 0xff:
		return 2
	default:
		return 3
	}
}

// multiSigWitnessWeight is the witness of an m-of-n witness script spend:
// the item count, the empty CHECKMULTISIG dummy, m signatures and the
// witness script.
func multiSigWitnessWeight(m, n int) int {
	script := MultiSigScriptSize(n)
	return wire.VarIntSerializeSize(uint64(m+2)) + 1 + m*sigPushSize +
		wire.VarIntSerializeSize(uint64(script)) + script
}

// MultiSigP2SHInput spends an m-of-n P2SH multisig output.  The signature
// script holds OP_0, m signatures and the pushed redeem script.
func MultiSigP2SHInput(m, n int) InputSize {
	script := MultiSigScriptSize(n)
	sigScript := 1 + m*sigPushSize + pushSize(script) + script

	return InputSize{
		Base: 32 + 4 + wire.VarIntSerializeSize(uint64(sigScript)) +
			sigScript + 4,
	}
}

// MultiSigNestedP2WSHInput spends an m-of-n P2SH-P2WSH multisig output.
func MultiSigNestedP2WSHInput(m, n int) InputSize {
	return InputSize{
		Base:          32 + 4 + 1 + RedeemNestedP2WSHScriptSize + 4,
		WitnessWeight: multiSigWitnessWeight(m, n),
	}
}

// MultiSigP2WSHInput spends an m-of-n P2WSH multisig output.
func MultiSigP2WSHInput(m, n int) InputSize {
	return InputSize{
		Base:          witnessInputSize,
		WitnessWeight: multiSigWitnessWeight(m, n),
	}
}

// InputSizeForPkScript guesses the spend size of an output from its script
// alone.  P2SH outputs are assumed to be nested P2WPKH and unknown scripts
// P2PKH.
func InputSizeForPkScript(pkScript []byte) InputSize {
	switch {
	case txscript.IsPayToScriptHash(pkScript):
		return NestedP2WPKHInput

	case txscript.IsPayToWitnessPubKeyHash(pkScript):
		return P2WPKHInput

	case txscript.IsPayToTaproot(pkScript):
		return P2TRInput

	default:
		return P2PKHInput
	}
}

// OutputSize is the serialized size of an output with a script of the given
// length.
func OutputSize(scriptSize int) int {
	return 8 + wire.VarIntSerializeSize(uint64(scriptSize)) + scriptSize
}

// SumOutputSerializeSizes sums up the serialized size of the supplied outputs.
func SumOutputSerializeSizes(outputs []*wire.TxOut) (serializeSize int) {
	for _, txOut := range outputs {
		serializeSize += txOut.SerializeSize()
	}
	return serializeSize
}

// EstimateWeight returns a worst case weight estimate for a signed
// transaction spending inputs and paying txOuts, plus a change output with a
// script of changeScriptSize bytes if that is positive.
func EstimateWeight(inputs []InputSize, txOuts []*wire.TxOut,
	changeScriptSize int) unit.WeightUnit {

	outputCount := len(txOuts)
	changeOutputSize := 0
	if changeScriptSize > 0 {
		changeOutputSize = OutputSize(changeScriptSize)
		outputCount++
	}

	// Version 4 bytes + LockTime 4 bytes + the counts + inputs without
	// witnesses + outputs.
	baseSize := 8 +
		wire.VarIntSerializeSize(uint64(len(inputs))) +
		wire.VarIntSerializeSize(uint64(outputCount)) +
		SumOutputSerializeSizes(txOuts) +
		changeOutputSize

	hasWitness := false
	for _, in := range inputs {
		baseSize += in.Base
		hasWitness = hasWitness || in.IsWitness()
	}

	weight := baseSize * blockchain.WitnessScaleFactor
	if !hasWitness {
		return unit.NewWeightUnit(uint64(weight))
	}

	// Segwit marker and flag, then one witness per input.  Legacy inputs
	// of a segwit transaction still carry an empty stack.
	weight += 2
	for _, in := range inputs {
		if in.IsWitness() {
			weight += in.WitnessWeight
		} else {
			weight++
		}
	}

	return unit.NewWeightUnit(uint64(weight))
}

// EstimateVirtualSize is EstimateWeight in virtual bytes, rounded up.
func EstimateVirtualSize(inputs []InputSize, txOuts []*wire.TxOut,
	changeScriptSize int) unit.VByte {

	return EstimateWeight(inputs, txOuts, changeScriptSize).ToVB()
}
