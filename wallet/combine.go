// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// CombinePsbt merges packets produced by independent signers for the same
// unsigned transaction and tries to finalize the result.
//
// If any packet is already complete its transaction is returned as is.
// Otherwise the partial signatures, scripts and derivations of every packet
// are merged into a fresh packet; the inputs are not mutated.  The returned
// transaction is None while the merged packet still lacks signatures.
func CombinePsbt(packets ...*psbt.Packet) (*psbt.Packet,
	fn.Option[*wire.MsgTx], error) {

	for _, p := range packets {
		if p == nil || !p.IsComplete() {
			continue
		}

		tx, err := psbt.Extract(p)
		if err != nil {
			return nil, fn.None[*wire.MsgTx](), err
		}

		log.Debugf("Psbt for %v is already finalized", tx.TxHash())

		return p, fn.Some(tx), nil
	}

	combined, err := validatePsbtMerge(packets)
	if err != nil {
		return nil, fn.None[*wire.MsgTx](), err
	}

	for _, p := range packets {
		for j := range combined.Inputs {
			err := mergePsbtInputs(&combined.Inputs[j], &p.Inputs[j])
			if err != nil {
				return nil, fn.None[*wire.MsgTx](),
					fmt.Errorf("input %d merge failed: %w",
						j, err)
			}
		}

		for j := range combined.Outputs {
			err := mergePsbtOutputs(
				&combined.Outputs[j], &p.Outputs[j],
			)
			if err != nil {
				return nil, fn.None[*wire.MsgTx](),
					fmt.Errorf("output %d merge failed: %w",
						j, err)
			}
		}
	}

	if err := psbt.InputsReadyToSign(combined); err != nil {
		return nil, fn.None[*wire.MsgTx](), fmt.Errorf("combined "+
			"psbt validation failed: %w", err)
	}

	tx, err := FinalizePsbt(combined)
	if err != nil {
		return nil, fn.None[*wire.MsgTx](), err
	}

	return combined, tx, nil
}

// validatePsbtMerge checks that packets spend the same unsigned transaction
// and returns an empty packet for it.
func validatePsbtMerge(packets []*psbt.Packet) (*psbt.Packet, error) {
	if len(packets) == 0 || packets[0] == nil {
		return nil, ErrNoPsbtsToCombine
	}

	base := packets[0]
	baseTxHash := base.UnsignedTx.TxHash()
	nInputs := len(base.Inputs)
	nOutputs := len(base.Outputs)

	for i, p := range packets[1:] {
		switch {
		case p == nil || p.UnsignedTx.TxHash() != baseTxHash:
			return nil, fmt.Errorf("%w: packet index %d",
				ErrDifferentTransactions, i+1)

		case len(p.Inputs) != nInputs:
			return nil, fmt.Errorf("%w: packet index %d",
				ErrInputCountMismatch, i+1)

		case len(p.Outputs) != nOutputs:
			return nil, fmt.Errorf("%w: packet index %d",
				ErrOutputCountMismatch, i+1)
		}
	}

	return &psbt.Packet{
		UnsignedTx: base.UnsignedTx.Copy(),
		Inputs:     make([]psbt.PInput, nInputs),
		Outputs:    make([]psbt.POutput, nOutputs),
		Unknowns:   base.Unknowns,
	}, nil
}

// mergeBytes sets *dest to src when dest is empty and fails if both are set
// and differ.
func mergeBytes(dest *[]byte, src []byte, field string) error {
	if len(*dest) > 0 && len(src) > 0 && !bytes.Equal(*dest, src) {
		return fmt.Errorf("%w: %s mismatch", ErrPsbtMergeConflict,
			field)
	}
	if len(*dest) == 0 {
		*dest = src
	}
	return nil
}

// mergePsbtInputs merges src into dest.  Partial signatures and derivations
// are deduplicated by public key; every other field must agree.
func mergePsbtInputs(dest, src *psbt.PInput) error {
	dest.PartialSigs = deduplicate(
		dest.PartialSigs, src.PartialSigs,
		func(a, b *psbt.PartialSig) bool {
			return bytes.Equal(a.PubKey, b.PubKey)
		},
	)
	dest.Bip32Derivation = deduplicate(
		dest.Bip32Derivation, src.Bip32Derivation, sameDerivation,
	)
	dest.TaprootBip32Derivation = deduplicate(
		dest.TaprootBip32Derivation, src.TaprootBip32Derivation,
		sameTaprootDerivation,
	)
	dest.TaprootScriptSpendSig = append(
		dest.TaprootScriptSpendSig, src.TaprootScriptSpendSig...,
	)

	if dest.SighashType != 0 && src.SighashType != 0 &&
		dest.SighashType != src.SighashType {

		return fmt.Errorf("%w: sighash type mismatch %v vs %v",
			ErrPsbtMergeConflict, dest.SighashType, src.SighashType)
	}
	if dest.SighashType == 0 {
		dest.SighashType = src.SighashType
	}

	fields := []struct {
		name      string
		dest, src *[]byte
	}{
		{"redeem script", &dest.RedeemScript, &src.RedeemScript},
		{"witness script", &dest.WitnessScript, &src.WitnessScript},
		{"final script sig", &dest.FinalScriptSig, &src.FinalScriptSig},
		{
			"final script witness", &dest.FinalScriptWitness,
			&src.FinalScriptWitness,
		},
		{
			"taproot key spend sig", &dest.TaprootKeySpendSig,
			&src.TaprootKeySpendSig,
		},
		{
			"taproot internal key", &dest.TaprootInternalKey,
			&src.TaprootInternalKey,
		},
	}
	for _, f := range fields {
		if err := mergeBytes(f.dest, *f.src, f.name); err != nil {
			return err
		}
	}

	if dest.WitnessUtxo != nil && src.WitnessUtxo != nil &&
		!psbt.TxOutsEqual(dest.WitnessUtxo, src.WitnessUtxo) {

		return fmt.Errorf("%w: witness utxo mismatch",
			ErrPsbtMergeConflict)
	}
	if dest.WitnessUtxo == nil {
		dest.WitnessUtxo = src.WitnessUtxo
	}

	if dest.NonWitnessUtxo != nil && src.NonWitnessUtxo != nil &&
		dest.NonWitnessUtxo.TxHash() != src.NonWitnessUtxo.TxHash() {

		return fmt.Errorf("%w: non-witness utxo mismatch",
			ErrPsbtMergeConflict)
	}
	if dest.NonWitnessUtxo == nil {
		dest.NonWitnessUtxo = src.NonWitnessUtxo
	}

	return nil
}

// mergePsbtOutputs merges src into dest.
func mergePsbtOutputs(dest, src *psbt.POutput) error {
	dest.Bip32Derivation = deduplicate(
		dest.Bip32Derivation, src.Bip32Derivation, sameDerivation,
	)
	dest.TaprootBip32Derivation = deduplicate(
		dest.TaprootBip32Derivation, src.TaprootBip32Derivation,
		sameTaprootDerivation,
	)

	err := mergeBytes(
		&dest.TaprootInternalKey, src.TaprootInternalKey,
		"taproot internal key",
	)
	if err != nil {
		return err
	}

	err = mergeBytes(&dest.RedeemScript, src.RedeemScript, "redeem script")
	if err != nil {
		return err
	}

	return mergeBytes(
		&dest.WitnessScript, src.WitnessScript, "witness script",
	)
}

// deduplicate appends the elements of src that dest lacks.
func deduplicate[T any](dest, src []T, same func(a, b T) bool) []T {
	for _, s := range src {
		if !slices.ContainsFunc(dest, func(d T) bool {
			return same(d, s)
		}) {

			dest = append(dest, s)
		}
	}
	return dest
}

func sameDerivation(a, b *psbt.Bip32Derivation) bool {
	return bytes.Equal(a.PubKey, b.PubKey)
}

func sameTaprootDerivation(a, b *psbt.TaprootBip32Derivation) bool {
	return bytes.Equal(a.XOnlyPubKey, b.XOnlyPubKey)
}
