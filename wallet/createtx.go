// Copyright (c) 2013-2025 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/hdwallet/pkg/unit"
	"github.com/btcsuite/hdwallet/waddrmgr"
	"github.com/btcsuite/hdwallet/wallet/txauthor"
	"github.com/btcsuite/hdwallet/wallet/txrules"
	"github.com/btcsuite/hdwallet/wallet/txsizes"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// DefaultSequence is the input sequence of new transactions.  It signals
// replaceability and disables relative lock times.  Pass
// wire.MaxTxInSequenceNum to opt out of replace-by-fee.
const DefaultSequence uint32 = 0x80000000

// BuildState is the progress of one transaction build.
type BuildState uint8

const (
	// StateUnselected is the state before coin selection.
	StateUnselected BuildState = iota

	// StateSelected means inputs and outputs are fixed.
	StateSelected

	// StatePopulated means every input and the change output carry their
	// scripts and derivation data.
	StatePopulated

	// StatePartiallySigned means at least one input lacks signatures.
	StatePartiallySigned

	// StateFullySigned means every input has enough signatures.
	StateFullySigned

	// StateFinalized means the transaction can be broadcast.
	StateFinalized

	// StateAwaitingSignatures means the packet is valid but other
	// signers must still contribute.  It is not an error.
	StateAwaitingSignatures
)

// String returns the state name.
func (s BuildState) String() string {
	switch s {
	case StateUnselected:
		return "unselected"
	case StateSelected:
		return "selected"
	case StatePopulated:
		return "populated"
	case StatePartiallySigned:
		return "partially signed"
	case StateFullySigned:
		return "fully signed"
	case StateFinalized:
		return "finalized"
	case StateAwaitingSignatures:
		return "awaiting signatures"
	default:
		return fmt.Sprintf("BuildState(%d)", uint8(s))
	}
}

// IsTerminal reports whether a build ends in s.
func (s BuildState) IsTerminal() bool {
	return s == StateFinalized || s == StateAwaitingSignatures
}

var buildTransitions = map[BuildState][]BuildState{
	StateUnselected:      {StateSelected},
	StateSelected:        {StatePopulated},
	StatePopulated:       {StatePartiallySigned, StateFullySigned},
	StatePartiallySigned: {StateAwaitingSignatures},
	StateFullySigned:     {StateFinalized, StateAwaitingSignatures},
}

// advance moves a build from *s to next.
func advance(s *BuildState, next BuildState) error {
	for _, allowed := range buildTransitions[*s] {
		if allowed == next {
			log.Tracef("Transaction build %v -> %v", *s, next)
			*s = next
			return nil
		}
	}
	return fmt.Errorf("invalid build transition %v -> %v", *s, next)
}

// Target is one payment of a transaction.
type Target struct {
	// Address is the recipient.  Ignored when Script is set.
	Address string

	// Script is a raw output script, for scripts without an address
	// form.
	Script []byte

	// Value is the amount to send.  A lone target without a value sends
	// everything the selected coins can pay after fees.
	Value fn.Option[btcutil.Amount]
}

// TxRequest describes a transaction to build.
type TxRequest struct {
	// Utxos are the coins to select from, in preference order.  Empty
	// selects from the cached unfrozen outputs.
	Utxos []Utxo

	// Targets are the payments.
	Targets []Target

	// FeeRate is required.
	FeeRate unit.SatPerVByte

	// ChangeAddress receives the change.  Empty uses the next unused
	// internal address.
	ChangeAddress string

	// Sequence of every input, DefaultSequence when None.
	Sequence fn.Option[uint32]

	// SkipSigning returns the populated packet unsigned.
	SkipSigning bool

	// MasterFingerprint overrides the fingerprint written to the
	// derivation data of a single key wallet, for hardware signers whose
	// account key was imported without one.
	MasterFingerprint fn.Option[uint32]

	// Strategy is the coin selection strategy.
	Strategy txauthor.InputSelectionStrategy
}

// TxResult is the outcome of a transaction build.
type TxResult struct {
	// Packet is the populated, possibly signed, psbt.
	Packet *psbt.Packet

	// Tx is the broadcastable transaction once finalized.
	Tx fn.Option[*wire.MsgTx]

	// State is StateFinalized or StateAwaitingSignatures.
	State BuildState

	// Inputs are the spent coins in input order.
	Inputs []Utxo

	// Outputs are the transaction outputs, change included.
	Outputs []*wire.TxOut

	// Fee is the absolute fee.
	Fee btcutil.Amount

	// ChangeIndex is the output index of the change, or -1.
	ChangeIndex int
}

// inputSize returns the spend size of one wallet output under policy.
func inputSize(id *waddrmgr.Identity) txsizes.InputSize {
	m, n := id.Threshold(), len(id.Cosigners())

	switch id.Policy().Type {
	case waddrmgr.PubKeyHash:
		return txsizes.P2PKHInput
	case waddrmgr.NestedWitnessPubKey:
		return txsizes.NestedP2WPKHInput
	case waddrmgr.WitnessPubKey:
		return txsizes.P2WPKHInput
	case waddrmgr.TaprootPubKey:
		return txsizes.P2TRInput
	case waddrmgr.MultiSigScriptHash:
		return txsizes.MultiSigP2SHInput(m, n)
	case waddrmgr.MultiSigNestedWitness:
		return txsizes.MultiSigNestedP2WSHInput(m, n)
	default:
		return txsizes.MultiSigP2WSHInput(m, n)
	}
}

// targetScript returns the output script of a target.
func targetScript(t Target, w *Wallet) ([]byte, error) {
	if len(t.Script) > 0 {
		return t.Script, nil
	}
	if t.Address == "" {
		return nil, ErrInvalidTarget
	}

	addr, err := btcutil.DecodeAddress(t.Address, w.ChainParams())
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", t.Address, err)
	}
	if !addr.IsForNet(w.ChainParams()) {
		return nil, fmt.Errorf("address %q is not for %s", t.Address,
			w.ChainParams().Name)
	}

	return txscript.PayToAddrScript(addr)
}

// CreateTransaction selects coins for the request, builds a psbt with
// everything a signer needs and, unless the request or the identity forbids
// it, signs and finalizes it.
//
// Insufficient funds are reported as txauthor.ErrInsufficientFunds.  A
// result in StateAwaitingSignatures is returned, without an error, for watch
// only wallets, skipped signing and multisig spends below the threshold.
func (w *Wallet) CreateTransaction(ctx context.Context,
	req *TxRequest) (*TxResult, error) {

	if req.FeeRate.Rat == nil {
		return nil, ErrMissingFeeRate
	}
	minRelayFee := unit.NewSatPerKVByte(
		txrules.DefaultRelayFeePerKb,
	).FeePerVByte()
	if req.FeeRate.LessThan(minRelayFee) {
		return nil, fmt.Errorf("%w: %v is below %v", ErrFeeRateTooLow,
			req.FeeRate, minRelayFee)
	}

	state := StateUnselected
	d := w.keys()
	id := d.Identity()
	policy := id.Policy()

	utxos := req.Utxos
	if len(utxos) == 0 {
		utxos = w.UnspentOutputs(OutputSelectionPolicy{})
	}

	size := inputSize(id)
	candidates := make([]txauthor.Utxo, 0, len(utxos))
	byOutPoint := make(map[wire.OutPoint]Utxo, len(utxos))
	for _, u := range utxos {
		rec, err := d.Address(u.Branch, u.Index)
		if err != nil {
			return nil, err
		}
		if rec.EncodeAddress() != u.Address {
			return nil, fmt.Errorf("%w: %s", ErrNotMine, u.Address)
		}

		hash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return nil, err
		}
		op := wire.OutPoint{Hash: *hash, Index: u.Vout}

		byOutPoint[op] = u
		candidates = append(candidates, txauthor.Utxo{
			OutPoint: op,
			Value:    u.Value,
			PkScript: rec.PkScript,
			Size:     size,
		})
	}

	targets := make([]txauthor.Target, 0, len(req.Targets))
	for i, t := range req.Targets {
		script, err := targetScript(t, w)
		if err != nil {
			return nil, fmt.Errorf("target %d: %w", i, err)
		}
		targets = append(targets, txauthor.Target{
			PkScript: script,
			Value:    t.Value,
		})
	}

	changeRec, err := w.changeRecord(req.ChangeAddress)
	if err != nil {
		return nil, err
	}
	changeSource := &txauthor.ChangeSource{
		NewScript: func() ([]byte, error) {
			return changeRec.PkScript, nil
		},
		ScriptSize: len(changeRec.PkScript),
	}

	authored, err := txauthor.NewUnsignedTransaction(
		candidates, targets, req.FeeRate, req.Strategy, changeSource,
	)
	if err != nil {
		return nil, err
	}
	if err := advance(&state, StateSelected); err != nil {
		return nil, err
	}

	sequence := req.Sequence.UnwrapOr(DefaultSequence)
	for _, txIn := range authored.Tx.TxIn {
		txIn.Sequence = sequence
	}

	packet, err := psbt.NewFromUnsignedTx(authored.Tx)
	if err != nil {
		return nil, err
	}

	inputs := make([]Utxo, 0, len(authored.Inputs))
	var txids []string
	for _, in := range authored.Inputs {
		u := byOutPoint[in.OutPoint]
		inputs = append(inputs, u)
		txids = append(txids, u.TxID)
	}

	var prevTxs map[string]*wire.MsgTx
	if needsPrevTx(policy) {
		prevTxs, err = w.prevTransactions(ctx, txids)
		if err != nil {
			return nil, err
		}
	}

	for i, u := range inputs {
		rec, err := d.Address(u.Branch, u.Index)
		if err != nil {
			return nil, err
		}

		err = decorateInput(
			&packet.Inputs[i], rec, policy, int64(u.Value),
			prevTxs[u.TxID], req.MasterFingerprint,
		)
		if err != nil {
			return nil, err
		}
	}
	if authored.ChangeIndex >= 0 {
		packet.Outputs[authored.ChangeIndex] = outputInfo(
			changeRec, policy, req.MasterFingerprint,
		)
	}
	if err := advance(&state, StatePopulated); err != nil {
		return nil, err
	}

	result := &TxResult{
		Packet:      packet,
		Tx:          fn.None[*wire.MsgTx](),
		Inputs:      inputs,
		Outputs:     packet.UnsignedTx.TxOut,
		Fee:         authored.Fee,
		ChangeIndex: authored.ChangeIndex,
	}

	log.Infof("Built transaction %v spending %d %s, fee %v (%v)",
		packet.UnsignedTx.TxHash(), len(inputs),
		pickNoun(len(inputs), "input", "inputs"), authored.Fee,
		req.FeeRate.FeePerKVByte())

	if req.SkipSigning || id.IsWatchOnly() {
		log.Debugf("Not signing %v: skip=%v watch-only=%v",
			packet.UnsignedTx.TxHash(), req.SkipSigning,
			id.IsWatchOnly())

		if err := advance(&state, StatePartiallySigned); err != nil {
			return nil, err
		}
		if err := advance(&state, StateAwaitingSignatures); err != nil {
			return nil, err
		}
		result.State = state
		return result, nil
	}

	if _, err := w.SignPsbt(packet); err != nil {
		return nil, err
	}

	if !readyToFinalize(packet) {
		if err := advance(&state, StatePartiallySigned); err != nil {
			return nil, err
		}
		if err := advance(&state, StateAwaitingSignatures); err != nil {
			return nil, err
		}
		result.State = state
		return result, nil
	}
	if err := advance(&state, StateFullySigned); err != nil {
		return nil, err
	}

	tx, err := FinalizePsbt(packet)
	if err != nil {
		return nil, err
	}

	err = fn.MapOptionZ(tx, func(tx *wire.MsgTx) error {
		return validateMsgTx(tx, authored)
	})
	if err != nil {
		return nil, err
	}

	next := StateAwaitingSignatures
	if tx.IsSome() {
		next = StateFinalized
	}
	if err := advance(&state, next); err != nil {
		return nil, err
	}

	result.Tx = tx
	result.State = state
	return result, nil
}

// validateMsgTx runs every input of a finalized transaction through the
// script engine against the previous outputs the selector spent.
func validateMsgTx(tx *wire.MsgTx, authored *txauthor.AuthoredTx) error {
	fetcher, err := authored.PrevOutFetcher()
	if err != nil {
		return err
	}

	hashCache := txscript.NewTxSigHashes(tx, fetcher)
	for i, prevScript := range authored.PrevScripts {
		vm, err := txscript.NewEngine(
			prevScript, tx, i, txscript.StandardVerifyFlags, nil,
			hashCache, int64(authored.PrevInputValues[i]), fetcher,
		)
		if err != nil {
			return fmt.Errorf("cannot create script engine: %w", err)
		}
		if err := vm.Execute(); err != nil {
			return fmt.Errorf("cannot validate input %d: %w", i, err)
		}
	}

	return nil
}

// changeRecord resolves the change address of a request.
func (w *Wallet) changeRecord(addr string) (*waddrmgr.AddressRecord, error) {
	if addr == "" {
		return w.NextChangeAddress()
	}

	rec, err := w.lookupAddress(addr)
	if err != nil {
		return nil, fmt.Errorf("change address: %w", err)
	}
	return rec, nil
}

// prevTransactions returns the full transactions with the given ids from
// the cache, asking the backend for any the cache lacks.
func (w *Wallet) prevTransactions(ctx context.Context,
	txids []string) (map[string]*wire.MsgTx, error) {

	txs := make(map[string]*wire.MsgTx, len(txids))
	seen := make(map[string]struct{}, len(txids))
	var missing []string

	w.stateMtx.RLock()
	for _, txid := range txids {
		if _, ok := seen[txid]; ok {
			continue
		}
		seen[txid] = struct{}{}

		cached, ok := w.state.findTx(txid)
		if !ok {
			missing = append(missing, txid)
			continue
		}

		tx, err := cached.MsgTx()
		if errors.Is(err, ErrRawTxUnavailable) {
			missing = append(missing, txid)
			continue
		}
		if err != nil {
			w.stateMtx.RUnlock()
			return nil, err
		}
		txs[txid] = tx
	}
	w.stateMtx.RUnlock()

	if len(missing) == 0 {
		return txs, nil
	}

	backend, err := w.backend()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRawTxUnavailable, missing)
	}

	fetched, err := backend.MultiGetTransactionByTxid(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, txid := range missing {
		tx, ok := fetched[txid]
		if !ok || tx.Raw == nil {
			return nil, fmt.Errorf("transaction %s: %w", txid,
				ErrRawTxUnavailable)
		}
		txs[txid] = tx.Raw
	}

	return txs, nil
}
