// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/hdwallet/chain"
	"github.com/btcsuite/hdwallet/waddrmgr"
)

// AddressBalance is the cached balance of one address.
type AddressBalance struct {
	Confirmed   btcutil.Amount `json:"confirmed"`
	Unconfirmed btcutil.Amount `json:"unconfirmed"`
}

// IsZero reports whether the address holds nothing, confirmed or pending.
func (b AddressBalance) IsZero() bool {
	return b.Confirmed == 0 && b.Unconfirmed == 0
}

// TxInput is a cached transaction input with its spent output resolved.
type TxInput struct {
	TxID     string `json:"txid"`
	Vout     uint32 `json:"vout"`
	Sequence uint32 `json:"sequence"`

	// Address and Value describe the spent output.  Address is empty
	// when the previous transaction could not be resolved or the script
	// has no address form.
	Address string         `json:"address,omitempty"`
	Value   btcutil.Amount `json:"value"`

	Coinbase bool `json:"coinbase,omitempty"`
}

// TxOutput is a cached transaction output.
type TxOutput struct {
	Value    btcutil.Amount `json:"value"`
	Address  string         `json:"address,omitempty"`
	PkScript []byte         `json:"pkScript"`
}

// Transaction is a cached transaction touching a wallet address.
type Transaction struct {
	TxID    string     `json:"txid"`
	Inputs  []TxInput  `json:"inputs"`
	Outputs []TxOutput `json:"outputs"`

	// Confirmations is zero while the transaction is unconfirmed.
	Confirmations uint32 `json:"confirmations"`
	BlockHeight   int64  `json:"blockHeight,omitempty"`
	BlockTime     int64  `json:"blockTime,omitempty"`

	// Raw is the serialized transaction, needed to spend its outputs
	// from legacy and multisig scripts.
	Raw []byte `json:"raw,omitempty"`
}

// IsConfirmed reports whether the transaction is mined.
func (t *Transaction) IsConfirmed() bool {
	return t.Confirmations > 0
}

// MsgTx deserializes the raw transaction.
func (t *Transaction) MsgTx() (*wire.MsgTx, error) {
	if len(t.Raw) == 0 {
		return nil, fmt.Errorf("transaction %s: %w", t.TxID,
			ErrRawTxUnavailable)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(t.Raw)); err != nil {
		return nil, fmt.Errorf("transaction %s: %w", t.TxID, err)
	}
	return tx, nil
}

// newTransaction converts an index transaction, resolving every input
// against prevTxs.
func newTransaction(tx *chain.Transaction,
	prevTxs map[string]*chain.Transaction) (Transaction, error) {

	cached := Transaction{
		TxID:          tx.TxID,
		Inputs:        make([]TxInput, 0, len(tx.Vin)),
		Outputs:       make([]TxOutput, 0, len(tx.Vout)),
		Confirmations: tx.Confirmations,
		BlockHeight:   tx.BlockHeight,
		BlockTime:     tx.BlockTime,
	}

	for _, in := range tx.Vin {
		input := TxInput{
			TxID:     in.TxID,
			Vout:     in.Vout,
			Sequence: in.Sequence,
			Coinbase: in.IsCoinbase,
		}
		if prev, ok := prevTxs[in.TxID]; ok &&
			int(in.Vout) < len(prev.Vout) {

			input.Address = prev.Vout[in.Vout].Address
			input.Value = prev.Vout[in.Vout].Value
		}
		cached.Inputs = append(cached.Inputs, input)
	}

	for _, out := range tx.Vout {
		cached.Outputs = append(cached.Outputs, TxOutput{
			Value:    out.Value,
			Address:  out.Address,
			PkScript: out.PkScript,
		})
	}

	if tx.Raw != nil {
		var buf bytes.Buffer
		buf.Grow(tx.Raw.SerializeSize())
		if err := tx.Raw.Serialize(&buf); err != nil {
			return Transaction{}, err
		}
		cached.Raw = buf.Bytes()
	}

	return cached, nil
}

// UtxoMeta is user supplied metadata of an unspent output.
type UtxoMeta struct {
	// Frozen outputs are skipped by coin selection.
	Frozen bool `json:"frozen,omitempty"`

	// Memo is a free form note.
	Memo string `json:"memo,omitempty"`
}

// Utxo is an unspent output of a wallet address.
type Utxo struct {
	TxID  string         `json:"txid"`
	Vout  uint32         `json:"vout"`
	Value btcutil.Amount `json:"value"`

	// Height is zero while the funding transaction is unconfirmed.
	Height int64 `json:"height"`

	Address string          `json:"address"`
	Branch  waddrmgr.Branch `json:"branch"`
	Index   uint32          `json:"index"`

	// Frozen and Memo are joined from the metadata on read.
	Frozen bool   `json:"-"`
	Memo   string `json:"-"`
}

// Confirmations returns the depth of the output with bestHeight as the chain
// tip.  It is zero while the output is unconfirmed or above the tip.
func (u *Utxo) Confirmations(bestHeight int64) uint32 {
	if u.Height <= 0 || bestHeight < u.Height {
		return 0
	}
	return uint32(bestHeight - u.Height + 1)
}

// Key returns the txid:vout key metadata is stored under.
func (u *Utxo) Key() string {
	return UtxoKey(u.TxID, u.Vout)
}

// UtxoKey formats the metadata key of an outpoint.
func UtxoKey(txid string, vout uint32) string {
	return fmt.Sprintf("%s:%d", txid, vout)
}

// BranchState is the sync state of one address chain.
type BranchState struct {
	// NextFree is the index of the first address that has never been
	// seen in a transaction.
	NextFree uint32 `json:"nextFree"`

	// Balances and Txs are keyed by address index.
	Balances map[uint32]AddressBalance `json:"balances"`
	Txs      map[uint32][]Transaction  `json:"txs"`
}

func newBranchState() *BranchState {
	return &BranchState{
		Balances: make(map[uint32]AddressBalance),
		Txs:      make(map[uint32][]Transaction),
	}
}

// SyncState is the serializable cache of a wallet: both cursors, the per
// address balance and transaction buckets, the unspent outputs and their
// metadata.  Derived keys never appear here.
type SyncState struct {
	Branches map[waddrmgr.Branch]*BranchState `json:"branches"`

	Utxos    []Utxo              `json:"utxos"`
	UtxoMeta map[string]UtxoMeta `json:"utxoMeta"`

	// BestHeight is the chain tip seen by the last transaction sync.
	BestHeight int64 `json:"bestHeight"`

	LastBalanceSync time.Time `json:"lastBalanceSync"`
	LastTxSync      time.Time `json:"lastTxSync"`
	LastUtxoSync    time.Time `json:"lastUtxoSync"`
}

// NewSyncState returns the state of a pristine wallet.
func NewSyncState() *SyncState {
	s := &SyncState{
		Branches: make(map[waddrmgr.Branch]*BranchState),
		UtxoMeta: make(map[string]UtxoMeta),
	}
	s.normalize()
	return s
}

// normalize fills in the maps a decoded snapshot may lack.
func (s *SyncState) normalize() {
	if s.Branches == nil {
		s.Branches = make(map[waddrmgr.Branch]*BranchState)
	}
	for _, b := range waddrmgr.Branches {
		bs := s.Branches[b]
		if bs == nil {
			bs = newBranchState()
			s.Branches[b] = bs
		}
		if bs.Balances == nil {
			bs.Balances = make(map[uint32]AddressBalance)
		}
		if bs.Txs == nil {
			bs.Txs = make(map[uint32][]Transaction)
		}
	}
	if s.UtxoMeta == nil {
		s.UtxoMeta = make(map[string]UtxoMeta)
	}
}

// branch returns the state of b.
func (s *SyncState) branch(b waddrmgr.Branch) *BranchState {
	return s.Branches[b]
}

// isPristine reports whether nothing was ever discovered.
func (s *SyncState) isPristine() bool {
	return s.branch(waddrmgr.ExternalBranch).NextFree == 0 &&
		s.branch(waddrmgr.InternalBranch).NextFree == 0
}

// needsRefetch reports whether the bucket of an address must be fetched
// again: it is empty, holds a transaction with fewer than
// refetchConfirmations confirmations, or the address has a pending balance.
func (bs *BranchState) needsRefetch(index uint32) bool {
	txs := bs.Txs[index]
	if len(txs) == 0 {
		return true
	}
	if bs.Balances[index].Unconfirmed != 0 {
		return true
	}
	for i := range txs {
		if txs[i].Confirmations < refetchConfirmations {
			return true
		}
	}
	return false
}

// mergeBucket strips every unconfirmed transaction from bucket, then adds
// fetched, replacing a transaction with the same txid in place.
func mergeBucket(bucket []Transaction, fetched []Transaction) []Transaction {
	merged := make([]Transaction, 0, len(bucket)+len(fetched))
	for _, tx := range bucket {
		if tx.IsConfirmed() {
			merged = append(merged, tx)
		}
	}

	for _, tx := range fetched {
		replaced := false
		for i := range merged {
			if merged[i].TxID == tx.TxID {
				merged[i] = tx
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, tx)
		}
	}

	return merged
}

// findTx returns a cached transaction by txid.
func (s *SyncState) findTx(txid string) (*Transaction, bool) {
	for _, b := range waddrmgr.Branches {
		for _, bucket := range s.branch(b).Txs {
			for i := range bucket {
				if bucket[i].TxID == txid {
					return &bucket[i], true
				}
			}
		}
	}
	return nil, false
}
