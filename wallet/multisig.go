// Copyright (c) 2016-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/hdwallet/waddrmgr"
)

// InputSignatures is the signing progress of one psbt input.
type InputSignatures struct {
	// Have counts the distinct signatures present.  A finalized input
	// counts as complete.
	Have int

	// Need is the number of signatures the input requires.
	Need int
}

// Complete reports whether the input has enough signatures.
func (s InputSignatures) Complete() bool {
	return s.Have >= s.Need
}

// SignatureStatus reports the signing progress of every input of packet.
func SignatureStatus(packet *psbt.Packet) []InputSignatures {
	status := make([]InputSignatures, len(packet.Inputs))
	for idx := range packet.Inputs {
		in := &packet.Inputs[idx]

		need := 1
		if m, ok := multiSigThreshold(in); ok {
			need = m
		}

		switch {
		case isFinalized(in):
			status[idx] = InputSignatures{Have: need, Need: need}

		case len(in.TaprootKeySpendSig) > 0:
			status[idx] = InputSignatures{Have: 1, Need: 1}

		default:
			status[idx] = InputSignatures{
				Have: len(in.PartialSigs),
				Need: need,
			}
		}
	}
	return status
}

// Cosigners returns the cosigners of the wallet in identity order.
func (w *Wallet) Cosigners() []*waddrmgr.Cosigner {
	return w.Identity().Cosigners()
}

// Threshold returns the number of signatures a spend needs.
func (w *Wallet) Threshold() int {
	return w.Identity().Threshold()
}

// SigningCosigners returns the positions of the cosigners that hold private
// key material.
func (w *Wallet) SigningCosigners() []int {
	var idx []int
	for i, c := range w.Cosigners() {
		if !c.IsWatchOnly() {
			idx = append(idx, i)
		}
	}
	return idx
}
