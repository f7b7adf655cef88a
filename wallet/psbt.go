// Copyright (c) 2020-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/hdwallet/waddrmgr"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// needsPrevTx reports whether inputs of the policy must embed the full
// previous transaction.  Legacy spends sign over it and multisig signers
// verify the amount against it.
func needsPrevTx(policy *waddrmgr.Policy) bool {
	return !policy.Witness || policy.MultiSig
}

// bip32Derivations returns one derivation entry per cosigner of rec.  A
// fingerprint override replaces the fingerprint of a single key identity.
func bip32Derivations(rec *waddrmgr.AddressRecord,
	fpOverride fn.Option[uint32]) []*psbt.Bip32Derivation {

	derivations := make([]*psbt.Bip32Derivation, 0, len(rec.Derivations))
	for _, d := range rec.Derivations {
		fp := d.Fingerprint
		if len(rec.Derivations) == 1 {
			fp = fpOverride.UnwrapOr(fp)
		}

		derivations = append(derivations, &psbt.Bip32Derivation{
			PubKey:               d.PubKey.SerializeCompressed(),
			MasterKeyFingerprint: fp,
			Bip32Path:            d.Path,
		})
	}
	return derivations
}

// taprootDerivations mirrors derivations with x-only keys.
func taprootDerivations(
	derivations []*psbt.Bip32Derivation) []*psbt.TaprootBip32Derivation {

	tapDerivations := make(
		[]*psbt.TaprootBip32Derivation, 0, len(derivations),
	)
	for _, d := range derivations {
		tapDerivations = append(tapDerivations,
			&psbt.TaprootBip32Derivation{
				XOnlyPubKey:          d.PubKey[1:],
				MasterKeyFingerprint: d.MasterKeyFingerprint,
				Bip32Path:            d.Bip32Path,
			})
	}
	return tapDerivations
}

// decorateInput adds everything a signer needs to spend the output of rec
// worth value.  prevTx is required for legacy and multisig policies.
func decorateInput(in *psbt.PInput, rec *waddrmgr.AddressRecord,
	policy *waddrmgr.Policy, value int64, prevTx *wire.MsgTx,
	fpOverride fn.Option[uint32]) error {

	if needsPrevTx(policy) {
		if prevTx == nil {
			return fmt.Errorf("%w: spending %s",
				ErrRawTxUnavailable, rec.EncodeAddress())
		}
		in.NonWitnessUtxo = prevTx
	}

	if policy.Witness {
		in.WitnessUtxo = &wire.TxOut{
			Value:    value,
			PkScript: rec.PkScript,
		}
	}

	in.RedeemScript = rec.RedeemScript
	in.WitnessScript = rec.WitnessScript
	in.Bip32Derivation = bip32Derivations(rec, fpOverride)
	in.SighashType = txscript.SigHashAll

	if policy.Type == waddrmgr.TaprootPubKey {
		in.SighashType = txscript.SigHashDefault
		in.TaprootBip32Derivation = taprootDerivations(
			in.Bip32Derivation,
		)
		in.TaprootInternalKey = schnorr.SerializePubKey(rec.PubKeys[0])
	}

	return nil
}

// outputInfo returns the derivation data that lets a signer verify an
// output pays back to the wallet.
func outputInfo(rec *waddrmgr.AddressRecord, policy *waddrmgr.Policy,
	fpOverride fn.Option[uint32]) psbt.POutput {

	out := psbt.POutput{
		RedeemScript:    rec.RedeemScript,
		WitnessScript:   rec.WitnessScript,
		Bip32Derivation: bip32Derivations(rec, fpOverride),
	}

	if policy.Type == waddrmgr.TaprootPubKey {
		out.TaprootBip32Derivation = taprootDerivations(
			out.Bip32Derivation,
		)
		out.TaprootInternalKey = schnorr.SerializePubKey(
			rec.PubKeys[0],
		)
	}

	return out
}

// isFinalized reports whether an input carries its final scripts.
func isFinalized(in *psbt.PInput) bool {
	return len(in.FinalScriptSig) > 0 || len(in.FinalScriptWitness) > 0
}

// fetchPsbtUtxo returns the output spent by input idx.
func fetchPsbtUtxo(packet *psbt.Packet, idx int) (*wire.TxOut, error) {
	in := &packet.Inputs[idx]
	if in.WitnessUtxo != nil {
		return in.WitnessUtxo, nil
	}

	if in.NonWitnessUtxo != nil {
		prevIndex := packet.UnsignedTx.TxIn[idx].PreviousOutPoint.Index
		if int(prevIndex) >= len(in.NonWitnessUtxo.TxOut) {
			return nil, fmt.Errorf("input %d spends missing "+
				"output %d", idx, prevIndex)
		}
		return in.NonWitnessUtxo.TxOut[prevIndex], nil
	}

	return nil, fmt.Errorf("input %d has no utxo information", idx)
}

// multiSigThreshold returns the number of signatures the multisig script of
// an input requires, or false for single key inputs.
func multiSigThreshold(in *psbt.PInput) (int, bool) {
	script := in.WitnessScript
	if len(script) == 0 {
		script = in.RedeemScript
	}
	if txscript.GetScriptClass(script) != txscript.MultiSigTy {
		return 0, false
	}

	_, m, err := txscript.CalcMultiSigStats(script)
	if err != nil {
		return 0, false
	}
	return m, true
}

// hasPartialSig reports whether pubKey already signed the input.
func hasPartialSig(in *psbt.PInput, pubKey []byte) bool {
	for _, sig := range in.PartialSigs {
		if bytes.Equal(sig.PubKey, pubKey) {
			return true
		}
	}
	return false
}

// SignPsbt adds the signatures this wallet can make to every input it owns
// and returns how many it added.  Inputs that are not the wallet's are left
// alone.  A multisig input receives signatures until its threshold is met,
// never more.  ErrMissingSigningKey is returned when an owned input cannot
// be signed because no cosigner holds private key material.
func (w *Wallet) SignPsbt(packet *psbt.Packet) (int, error) {
	if err := psbt.InputsReadyToSign(packet); err != nil {
		return 0, err
	}

	d := w.keys()
	policy := d.Identity().Policy()

	tx := packet.UnsignedTx
	sigHashes := txscript.NewTxSigHashes(tx, PsbtPrevOutputFetcher(packet))

	updater, err := psbt.NewUpdater(packet)
	if err != nil {
		return 0, err
	}

	signed := 0
	for idx := range packet.Inputs {
		in := &packet.Inputs[idx]
		if isFinalized(in) || len(in.TaprootKeySpendSig) > 0 {
			continue
		}

		utxo, err := fetchPsbtUtxo(packet, idx)
		if err != nil {
			return signed, err
		}

		rec, err := w.recordForScript(utxo.PkScript)
		if errors.Is(err, ErrNotMine) {
			log.Tracef("Input %d is not ours, skipping", idx)
			continue
		}
		if err != nil {
			return signed, err
		}

		keys, err := d.SigningKeys(rec.Branch, rec.Index)
		if err != nil {
			return signed, err
		}
		if len(keys) == 0 {
			return signed, fmt.Errorf("input %d (%s): %w", idx,
				rec.EncodeAddress(), ErrMissingSigningKey)
		}

		n, err := signInput(
			updater, idx, sigHashes, utxo, policy, keys,
		)
		if err != nil {
			return signed, fmt.Errorf("sign input %d: %w", idx, err)
		}
		signed += n
	}

	log.Debugf("Added %d %s to psbt for %v", signed,
		pickNoun(signed, "signature", "signatures"), tx.TxHash())

	return signed, nil
}

// recordForScript resolves the wallet address a script pays to.
func (w *Wallet) recordForScript(pkScript []byte) (*waddrmgr.AddressRecord,
	error) {

	_, addrs, _, err := txscript.ExtractPkScriptAddrs(
		pkScript, w.ChainParams(),
	)
	if err != nil || len(addrs) != 1 {
		return nil, ErrNotMine
	}

	return w.lookupAddress(addrs[0].EncodeAddress())
}

// signInput signs input idx with keys and returns the number of signatures
// added.
func signInput(updater *psbt.Updater, idx int,
	sigHashes *txscript.TxSigHashes, utxo *wire.TxOut,
	policy *waddrmgr.Policy, keys []waddrmgr.SigningKey) (int, error) {

	packet := updater.Upsbt
	tx := packet.UnsignedTx
	in := &packet.Inputs[idx]

	if policy.Type == waddrmgr.TaprootPubKey {
		sig, err := txscript.RawTxInTaprootSignature(
			tx, sigHashes, idx, utxo.Value, utxo.PkScript, nil,
			txscript.SigHashDefault, keys[0].PrivKey,
		)
		if err != nil {
			return 0, err
		}
		in.TaprootKeySpendSig = sig
		return 1, nil
	}

	threshold := 1
	if m, ok := multiSigThreshold(in); ok {
		threshold = m
	}

	signed := 0
	for _, key := range keys {
		if len(in.PartialSigs) >= threshold {
			break
		}

		pubKey := key.PubKey.SerializeCompressed()
		if hasPartialSig(in, pubKey) {
			continue
		}

		var (
			sig []byte
			err error
		)
		switch {
		case !policy.Witness && policy.MultiSig:
			sig, err = txscript.RawTxInSignature(
				tx, idx, in.RedeemScript, txscript.SigHashAll,
				key.PrivKey,
			)

		case !policy.Witness:
			sig, err = txscript.RawTxInSignature(
				tx, idx, utxo.PkScript, txscript.SigHashAll,
				key.PrivKey,
			)

		case policy.MultiSig:
			sig, err = txscript.RawTxInWitnessSignature(
				tx, sigHashes, idx, utxo.Value,
				in.WitnessScript, txscript.SigHashAll,
				key.PrivKey,
			)

		default:
			// For nested P2WPKH the redeem script is the witness
			// program, which the sighash treats like P2PKH.
			program := utxo.PkScript
			if len(in.RedeemScript) > 0 {
				program = in.RedeemScript
			}
			sig, err = txscript.RawTxInWitnessSignature(
				tx, sigHashes, idx, utxo.Value, program,
				txscript.SigHashAll, key.PrivKey,
			)
		}
		if err != nil {
			return signed, err
		}

		outcome, err := updater.Sign(idx, sig, pubKey, nil, nil)
		if err != nil {
			return signed, err
		}
		if outcome == psbt.SignFinalized {
			break
		}
		signed++
	}

	return signed, nil
}

// readyToFinalize reports whether every input has enough signatures: one
// for single key inputs, the threshold for multisig inputs.
func readyToFinalize(packet *psbt.Packet) bool {
	for idx := range packet.Inputs {
		in := &packet.Inputs[idx]
		switch {
		case isFinalized(in), len(in.TaprootKeySpendSig) > 0:
			continue
		}

		threshold := 1
		if m, ok := multiSigThreshold(in); ok {
			threshold = m
		}
		if len(in.PartialSigs) < threshold {
			return false
		}
	}
	return true
}

// trimPartialSigs drops multisig signatures beyond the threshold; the
// finalizer rejects any other count.
func trimPartialSigs(packet *psbt.Packet) {
	for idx := range packet.Inputs {
		in := &packet.Inputs[idx]
		if isFinalized(in) {
			continue
		}
		if m, ok := multiSigThreshold(in); ok && len(in.PartialSigs) > m {
			in.PartialSigs = in.PartialSigs[:m]
		}
	}
}

// FinalizePsbt finalizes packet once every input has enough signatures and
// returns the broadcastable transaction.  The result is None, without an
// error, while signatures are still missing.
func FinalizePsbt(packet *psbt.Packet) (fn.Option[*wire.MsgTx], error) {
	if !packet.IsComplete() {
		if !readyToFinalize(packet) {
			log.Debugf("Psbt for %v awaits signatures",
				packet.UnsignedTx.TxHash())
			return fn.None[*wire.MsgTx](), nil
		}

		trimPartialSigs(packet)
		if err := psbt.MaybeFinalizeAll(packet); err != nil {
			return fn.None[*wire.MsgTx](), fmt.Errorf("error "+
				"finalizing psbt: %w", err)
		}
	}

	tx, err := psbt.Extract(packet)
	if err != nil {
		return fn.None[*wire.MsgTx](), err
	}

	log.Tracef("Finalized transaction %v: %v", tx.TxHash(),
		spewClosure(tx))

	return fn.Some(tx), nil
}

// PsbtPrevOutputFetcher returns a txscript.PrevOutFetcher built from the UTXO
// information in a PSBT packet.
func PsbtPrevOutputFetcher(packet *psbt.Packet) *txscript.MultiPrevOutFetcher {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for idx, txIn := range packet.UnsignedTx.TxIn {
		utxo, err := fetchPsbtUtxo(packet, idx)
		if err != nil {
			continue
		}
		fetcher.AddPrevOut(txIn.PreviousOutPoint, utxo)
	}

	return fetcher
}
