// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txauthor

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/hdwallet/pkg/unit"
	"github.com/btcsuite/hdwallet/wallet/txrules"
	"github.com/btcsuite/hdwallet/wallet/txsizes"
)

// ErrInsufficientFunds is matched by every error returned when the offered
// coins cannot pay for the targets and the fee.
var ErrInsufficientFunds = errors.New("insufficient funds")

// InsufficientFundsError signals the missing amount to the caller, so that
// one can retry with a smaller amount or a lower fee rate.
type InsufficientFundsError struct {
	// Target is the sum of the requested outputs.
	Target btcutil.Amount

	// Fee is the fee of the best selection that was found.
	Fee btcutil.Amount

	// Available is the value of the inputs that were considered.
	Available btcutil.Amount
}

// Error implements the error interface.
func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds available to construct "+
		"transaction: amount: %v, minimum fee: %v, available amount: %v",
		e.Target, e.Fee, e.Available)
}

// Unwrap lets errors.Is match ErrInsufficientFunds.
func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// InputSelectionStrategy defines how funds are selected when building an
// unsigned transaction.
type InputSelectionStrategy int

const (
	// AccumulativeSelection walks the coins in the given order and adds
	// every coin that raises the value left after fees, until the targets
	// and the fee are covered.  Coins that cost more to spend than they
	// carry are skipped.
	AccumulativeSelection InputSelectionStrategy = iota

	// ConstantSelection uses every coin that is offered, including the
	// negative yielding ones.
	ConstantSelection
)

// String returns the strategy name.
func (s InputSelectionStrategy) String() string {
	switch s {
	case AccumulativeSelection:
		return "accumulative"
	case ConstantSelection:
		return "constant"
	default:
		return fmt.Sprintf("InputSelectionStrategy(%d)", int(s))
	}
}

// inputState holds the current state of the transaction including all inputs
// which were selected so far.
type inputState struct {
	// feeRate is the fee rate used for fee calculation.
	feeRate unit.SatPerVByte

	// txFee is the fee of the current transaction state when serialized.
	txFee btcutil.Amount

	// inputTotal is the total value of all selected inputs.
	inputTotal btcutil.Amount

	// targetAmount is the amount we want to fund with the transaction,
	// not including the change.
	targetAmount btcutil.Amount

	// changeOutput is what is left over after subtracting the
	// targetAmount and the tx fee from the inputTotal.
	//
	// NOTE: The value might be below the dust limit, or even negative,
	// since it is the change remaining in case we pay the fee for a
	// change output.
	changeOutput wire.TxOut

	// changeScriptSize is the size hint of the change script.
	changeScriptSize int

	// inputs is the set of coins selected so far.
	inputs []Utxo

	// outputs are the outputs of the transaction not including the change.
	outputs []*wire.TxOut

	// selectionStrategy determines which criteria is used to make the
	// input selection.
	selectionStrategy InputSelectionStrategy
}

// inputSizes returns the spend size of every selected input.
func (t *inputState) inputSizes() []txsizes.InputSize {
	sizes := make([]txsizes.InputSize, 0, len(t.inputs))
	for _, input := range t.inputs {
		sizes = append(sizes, input.spendSize())
	}

	return sizes
}

// virtualSizeEstimate is the worst case tx size with the current set of
// inputs, with or without a change output.
func (t *inputState) virtualSizeEstimate(change bool) unit.VByte {
	changeScriptSize := 0
	if change {
		changeScriptSize = t.changeScriptSize
	}

	return txsizes.EstimateVirtualSize(
		t.inputSizes(), t.outputs, changeScriptSize,
	)
}

// changeIsDust reports whether the current change value would make a dust
// output.
func (t *inputState) changeIsDust() bool {
	return t.changeOutput.Value <= 0 || txrules.IsDustOutput(
		&t.changeOutput, txrules.DefaultDustRelayFeePerKb,
	)
}

// enoughInput returns true if we've accumulated enough inputs to pay the fees
// and have at least one output that meets the dust limit.
func (t *inputState) enoughInput() bool {
	if len(t.inputs) == 0 {
		return false
	}

	// If we have a change output above dust, then we certainly have enough
	// inputs to the transaction.
	if !t.changeIsDust() {
		return true
	}

	// We did not have enough input for a change output. Check if we have
	// enough input to pay the fees for a transaction with no change
	// output.
	t.txFee = t.feeRate.FeeForVSize(t.virtualSizeEstimate(false))
	if t.inputTotal < t.targetAmount+t.txFee {
		return false
	}

	// Without change there must still be something to pay to.
	return len(t.outputs) > 0
}

// clone copies the inputState.
func (t *inputState) clone() inputState {
	s := *t
	s.outputs = make([]*wire.TxOut, len(t.outputs))
	s.inputs = make([]Utxo, len(t.inputs))

	// Deep copy the outputs, otherwise changing the clone would change
	// the outputs of the original state.
	for idx, out := range t.outputs {
		cpy := *out
		s.outputs[idx] = &cpy
	}
	copy(s.inputs, t.inputs)

	return s
}

// totalOutput returns the total amount of the current tx selection meaning
// the sum of all outputs including the change output.
//
// NOTE: This might be dust or even negative.
func (t *inputState) totalOutput() btcutil.Amount {
	// Before the first input the total is pinned at zero, otherwise the
	// first input would have to overshoot the target on its own.
	if len(t.inputs) == 0 {
		return 0
	}

	return t.targetAmount + btcutil.Amount(t.changeOutput.Value)
}

// addToState returns the state with the given inputs added, or nil if the
// strategy rejects them because they decrease the value left after fees.
func (t *inputState) addToState(inputs ...Utxo) *inputState {
	next := t.clone()
	for _, input := range inputs {
		next.inputs = append(next.inputs, input)
		next.inputTotal += input.Value
	}

	next.txFee = next.feeRate.FeeForVSize(next.virtualSizeEstimate(true))
	next.changeOutput.Value = int64(
		next.inputTotal - next.targetAmount - next.txFee,
	)

	inputYield := next.totalOutput() - t.totalOutput()

	switch t.selectionStrategy {
	case AccumulativeSelection:
		if inputYield <= 0 {
			return nil
		}

	case ConstantSelection:
	}

	return &next
}

// add adds inputs to the state if the strategy accepts them.
func (t *inputState) add(inputs ...Utxo) bool {
	next := t.addToState(inputs...)
	if next == nil {
		return false
	}

	*t = *next
	return true
}

// insufficient builds the error describing the current state.
func (t *inputState) insufficient() error {
	return &InsufficientFundsError{
		Target:    t.targetAmount,
		Fee:       t.txFee,
		Available: t.inputTotal,
	}
}
