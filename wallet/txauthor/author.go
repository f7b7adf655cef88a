// Copyright (c) 2016-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txauthor provides coin selection and unsigned transaction creation
// for wallets.
package txauthor

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/hdwallet/pkg/unit"
	"github.com/btcsuite/hdwallet/wallet/txrules"
	"github.com/btcsuite/hdwallet/wallet/txsizes"
	"github.com/lightningnetwork/lnd/fn/v2"
)

var (
	// ErrNoTargets is returned when a transaction without outputs is
	// requested.
	ErrNoTargets = errors.New("no transaction targets")

	// ErrMissingTargetValue is returned when a target without a value is
	// combined with other targets.  Only a lone target may omit its value
	// to sweep the offered coins.
	ErrMissingTargetValue = errors.New("target value missing; only a " +
		"single target may send the maximum")
)

// Utxo is a coin offered to the selector.
type Utxo struct {
	// OutPoint is the outpoint of the coin.
	OutPoint wire.OutPoint

	// Value is the value of the coin.
	Value btcutil.Amount

	// PkScript is the script the coin pays to.
	PkScript []byte

	// Size is the spend size hint for the coin.  When it is the zero value
	// the size is guessed from PkScript.
	Size txsizes.InputSize
}

// spendSize returns the size hint of the coin.
func (u Utxo) spendSize() txsizes.InputSize {
	if u.Size.Base == 0 {
		return txsizes.InputSizeForPkScript(u.PkScript)
	}

	return u.Size
}

// Target is a requested payment.  A target without a value asks for the
// maximum amount the offered coins can pay after fees.
type Target struct {
	// PkScript is the script to pay to.  Its encoded length is what the
	// size estimate uses, so non-standard scripts are accounted for.
	PkScript []byte

	// Value is the amount to pay.
	Value fn.Option[btcutil.Amount]
}

// SumOutputValues sums up the list of TxOuts and returns an Amount.
func SumOutputValues(outputs []*wire.TxOut) (totalOutput btcutil.Amount) {
	for _, txOut := range outputs {
		totalOutput += btcutil.Amount(txOut.Value)
	}
	return totalOutput
}

// AuthoredTx holds the state of a newly-created transaction and the change
// output (if one was added).
type AuthoredTx struct {
	Tx              *wire.MsgTx
	PrevScripts     [][]byte
	PrevInputValues []btcutil.Amount
	TotalInput      btcutil.Amount
	ChangeIndex     int // negative if no change

	// Fee is the absolute fee, the input total minus the output total.
	Fee btcutil.Amount

	// Inputs are the selected coins, in transaction input order.
	Inputs []Utxo
}

// ChangeSource provides change output scripts for transaction creation.
type ChangeSource struct {
	// NewScript is a closure that produces unique change output scripts per
	// invocation.
	NewScript func() ([]byte, error)

	// ScriptSize is the size in bytes of scripts produced by `NewScript`.
	ScriptSize int
}

// NewUnsignedTransaction creates an unsigned transaction paying to the
// targets.  An appropriate transaction fee is included based on the
// estimated transaction size at feeRate.
//
// A single target without a value sweeps every coin that is worth spending
// at the fee rate into that target and no change is created.  Otherwise coins
// are added according to the selection strategy until they cover the targets
// plus fees.  When the inputs overshoot, a change output is appended unless it
// would be dust, in which case the remainder goes to the fee.
//
// If the coins cannot pay for every output and the necessary fees an
// *InsufficientFundsError is returned.
func NewUnsignedTransaction(utxos []Utxo, targets []Target,
	feeRate unit.SatPerVByte, selectionStrategy InputSelectionStrategy,
	changeSource *ChangeSource) (*AuthoredTx, error) {

	if len(targets) == 0 {
		return nil, ErrNoTargets
	}

	if len(targets) == 1 && targets[0].Value.IsNone() {
		return newSweepTransaction(utxos, targets[0].PkScript, feeRate)
	}

	outputs := make([]*wire.TxOut, 0, len(targets))
	for i, target := range targets {
		if target.Value.IsNone() {
			return nil, ErrMissingTargetValue
		}

		out := wire.NewTxOut(
			int64(target.Value.UnwrapOr(0)), target.PkScript,
		)
		err := txrules.CheckOutput(out, txrules.DefaultDustRelayFeePerKb)
		if err != nil {
			return nil, fmt.Errorf("target %d: %w", i, err)
		}
		outputs = append(outputs, out)
	}

	changeScript, err := changeSource.NewScript()
	if err != nil {
		return nil, err
	}

	changeScriptSize := changeSource.ScriptSize
	if changeScriptSize == 0 {
		changeScriptSize = len(changeScript)
	}

	state := inputState{
		feeRate:           feeRate,
		targetAmount:      SumOutputValues(outputs),
		outputs:           outputs,
		selectionStrategy: selectionStrategy,
		changeScriptSize:  changeScriptSize,
		changeOutput: wire.TxOut{
			PkScript: changeScript,
		},
	}

	switch selectionStrategy {
	case ConstantSelection:
		state.add(utxos...)

	default:
		for _, utxo := range utxos {
			if state.enoughInput() {
				break
			}

			if !state.add(utxo) {
				log.Tracef("Skipping negative yielding coin %v "+
					"(%v)", utxo.OutPoint, utxo.Value)
			}
		}
	}

	// This check is needed to make sure our input amount suffices after
	// considering all eligible inputs.
	if !state.enoughInput() {
		return nil, state.insufficient()
	}

	tx := newMsgTx(state.inputs, state.outputs)

	// Default is no change output. The change is only added when it is
	// above dust.
	changeIndex := -1
	fee := state.inputTotal - state.targetAmount
	if !state.changeIsDust() {
		change := state.changeOutput
		tx.TxOut = append(tx.TxOut, &change)
		changeIndex = len(tx.TxOut) - 1
		fee -= btcutil.Amount(change.Value)
	}

	return authored(tx, state.inputs, changeIndex, fee), nil
}

// newSweepTransaction spends every coin worth spending to pkScript.
func newSweepTransaction(utxos []Utxo, pkScript []byte,
	feeRate unit.SatPerVByte) (*AuthoredTx, error) {

	sweep := &wire.TxOut{PkScript: pkScript}
	state := inputState{
		feeRate:           feeRate,
		outputs:           []*wire.TxOut{sweep},
		selectionStrategy: AccumulativeSelection,
	}

	// With no change script the change value is the amount left for the
	// sweep output, so the yield check drops coins that cost more in fees
	// than they carry.
	for _, utxo := range utxos {
		if !state.add(utxo) {
			log.Tracef("Sweep skips negative yielding coin %v (%v)",
				utxo.OutPoint, utxo.Value)
		}
	}

	value := state.inputTotal - state.txFee
	if len(state.inputs) == 0 || value <= 0 ||
		txrules.IsDustAmount(value, pkScript,
			txrules.DefaultDustRelayFeePerKb) {

		return nil, state.insufficient()
	}

	sweep.Value = int64(value)
	tx := newMsgTx(state.inputs, state.outputs)

	return authored(tx, state.inputs, -1, state.txFee), nil
}

// newMsgTx builds the unsigned transaction spending inputs.
func newMsgTx(inputs []Utxo, outputs []*wire.TxOut) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	for i := range inputs {
		tx.AddTxIn(wire.NewTxIn(&inputs[i].OutPoint, nil, nil))
	}

	l := len(outputs)
	tx.TxOut = outputs[:l:l]

	return tx
}

// authored collects the signing data of tx.
func authored(tx *wire.MsgTx, inputs []Utxo, changeIndex int,
	fee btcutil.Amount) *AuthoredTx {

	scripts := make([][]byte, 0, len(inputs))
	values := make([]btcutil.Amount, 0, len(inputs))

	var total btcutil.Amount
	for _, input := range inputs {
		scripts = append(scripts, input.PkScript)
		values = append(values, input.Value)
		total += input.Value
	}

	return &AuthoredTx{
		Tx:              tx,
		PrevScripts:     scripts,
		PrevInputValues: values,
		TotalInput:      total,
		ChangeIndex:     changeIndex,
		Fee:             fee,
		Inputs:          inputs,
	}
}

// PrevOutFetcher returns a txscript.PrevOutFetcher over the authored
// transaction's previous outputs.
func (tx *AuthoredTx) PrevOutFetcher() (*txscript.MultiPrevOutFetcher, error) {
	return TXPrevOutFetcher(tx.Tx, tx.PrevScripts, tx.PrevInputValues)
}

// TXPrevOutFetcher creates a txscript.PrevOutFetcher from a given slice of
// previous pk scripts and input values.
func TXPrevOutFetcher(tx *wire.MsgTx, prevPkScripts [][]byte,
	inputValues []btcutil.Amount) (*txscript.MultiPrevOutFetcher, error) {

	if len(tx.TxIn) != len(prevPkScripts) {
		return nil, errors.New("tx.TxIn and prevPkScripts slices " +
			"must have equal length")
	}
	if len(tx.TxIn) != len(inputValues) {
		return nil, errors.New("tx.TxIn and inputValues slices " +
			"must have equal length")
	}

	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for idx, txin := range tx.TxIn {
		fetcher.AddPrevOut(txin.PreviousOutPoint, &wire.TxOut{
			Value:    int64(inputValues[idx]),
			PkScript: prevPkScripts[idx],
		})
	}

	return fetcher, nil
}
