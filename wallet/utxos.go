// Copyright (c) 2016 The Decred developers
// Copyright (c) 2017-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"fmt"
)

// OutputSelectionPolicy describes the rules for selecting an output from the
// wallet.
type OutputSelectionPolicy struct {
	// RequiredConfirmations excludes outputs with fewer confirmations.
	// Zero admits unconfirmed outputs.
	RequiredConfirmations int32

	// IncludeFrozen admits frozen outputs.
	IncludeFrozen bool
}

func (p *OutputSelectionPolicy) meetsRequiredConfs(u *Utxo,
	curHeight int64) bool {

	if p.RequiredConfirmations <= 0 {
		return true
	}
	return u.Confirmations(curHeight) >= uint32(p.RequiredConfirmations)
}

// UnspentOutputs returns the cached unspent outputs matching policy in
// ascending value order, with their metadata joined.
func (w *Wallet) UnspentOutputs(policy OutputSelectionPolicy) []Utxo {
	w.stateMtx.RLock()
	defer w.stateMtx.RUnlock()

	var utxos []Utxo
	for _, u := range w.state.Utxos {
		meta := w.state.UtxoMeta[u.Key()]
		if meta.Frozen && !policy.IncludeFrozen {
			continue
		}
		if !policy.meetsRequiredConfs(&u, w.state.BestHeight) {
			continue
		}

		u.Frozen = meta.Frozen
		u.Memo = meta.Memo
		utxos = append(utxos, u)
	}
	return utxos
}

// FreezeUtxo sets or clears the frozen flag of an outpoint.  Frozen outputs
// are never picked by coin selection.
func (w *Wallet) FreezeUtxo(txid string, vout uint32, frozen bool) error {
	return w.updateUtxoMeta(txid, vout, func(m *UtxoMeta) {
		m.Frozen = frozen
	})
}

// SetUtxoMemo attaches a note to an outpoint.
func (w *Wallet) SetUtxoMemo(txid string, vout uint32, memo string) error {
	return w.updateUtxoMeta(txid, vout, func(m *UtxoMeta) {
		m.Memo = memo
	})
}

func (w *Wallet) updateUtxoMeta(txid string, vout uint32,
	update func(*UtxoMeta)) error {

	w.stateMtx.Lock()
	defer w.stateMtx.Unlock()

	key := UtxoKey(txid, vout)
	known := false
	for i := range w.state.Utxos {
		if w.state.Utxos[i].Key() == key {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownUtxo, key)
	}

	meta := w.state.UtxoMeta[key]
	update(&meta)
	if meta == (UtxoMeta{}) {
		delete(w.state.UtxoMeta, key)
	} else {
		w.state.UtxoMeta[key] = meta
	}

	log.Debugf("Updated metadata of %s: frozen=%v memo=%q", key,
		meta.Frozen, meta.Memo)

	return nil
}
