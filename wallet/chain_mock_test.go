// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/hdwallet/chain"
	"github.com/btcsuite/hdwallet/waddrmgr"
	"github.com/stretchr/testify/require"
)

// fakeIndex is an in-memory chain.Backend.  Funding helpers keep history,
// balances and utxos consistent the way a real index would.
type fakeIndex struct {
	mu sync.Mutex

	height int64
	nonce  uint32

	history  map[string][]chain.HistoryItem
	txs      map[string]*chain.Transaction
	balances map[string]chain.Balance
	utxos    map[string][]chain.Utxo

	// noUtxo makes MultiGetUtxoByAddress unsupported.
	noUtxo bool

	// err is returned by every query while set.
	err error

	calls          map[string]int
	historyQueries [][]string
	broadcast      []string
}

// A compile-time assertion to ensure that fakeIndex implements the Backend
// interface.
var _ chain.Backend = (*fakeIndex)(nil)

func newFakeIndex() *fakeIndex {
	return &fakeIndex{
		height:   800_000,
		history:  make(map[string][]chain.HistoryItem),
		txs:      make(map[string]*chain.Transaction),
		balances: make(map[string]chain.Balance),
		utxos:    make(map[string][]chain.Utxo),
		calls:    make(map[string]int),
	}
}

func (f *fakeIndex) call(name string) error {
	f.calls[name]++
	return f.err
}

func (f *fakeIndex) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[name]
}

func (f *fakeIndex) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.err = err
}

// MultiGetHistoryByAddress implements the chain.Backend interface.
func (f *fakeIndex) MultiGetHistoryByAddress(_ context.Context,
	addrs []string) (map[string][]chain.HistoryItem, error) {

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.call("history"); err != nil {
		return nil, err
	}
	f.historyQueries = append(f.historyQueries, addrs)

	res := make(map[string][]chain.HistoryItem)
	for _, addr := range addrs {
		if h, ok := f.history[addr]; ok {
			res[addr] = append([]chain.HistoryItem(nil), h...)
		}
	}
	return res, nil
}

// MultiGetTransactionByTxid implements the chain.Backend interface.
func (f *fakeIndex) MultiGetTransactionByTxid(_ context.Context,
	txids []string) (map[string]*chain.Transaction, error) {

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.call("tx"); err != nil {
		return nil, err
	}

	res := make(map[string]*chain.Transaction)
	for _, txid := range txids {
		if tx, ok := f.txs[txid]; ok {
			cp := *tx
			res[txid] = &cp
		}
	}
	return res, nil
}

// MultiGetBalanceByAddress implements the chain.Backend interface.
func (f *fakeIndex) MultiGetBalanceByAddress(_ context.Context,
	addrs []string) (map[string]chain.Balance, error) {

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.call("balance"); err != nil {
		return nil, err
	}

	res := make(map[string]chain.Balance, len(addrs))
	for _, addr := range addrs {
		res[addr] = f.balances[addr]
	}
	return res, nil
}

// MultiGetUtxoByAddress implements the chain.Backend interface.
func (f *fakeIndex) MultiGetUtxoByAddress(_ context.Context,
	addrs []string) (map[string][]chain.Utxo, error) {

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.call("utxo"); err != nil {
		return nil, err
	}
	if f.noUtxo {
		return nil, chain.ErrUtxoQueryUnsupported
	}

	res := make(map[string][]chain.Utxo)
	for _, addr := range addrs {
		if u, ok := f.utxos[addr]; ok {
			res[addr] = append([]chain.Utxo(nil), u...)
		}
	}
	return res, nil
}

// Broadcast implements the chain.Backend interface.
func (f *fakeIndex) Broadcast(_ context.Context,
	rawTxHex string) (string, error) {

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.call("broadcast"); err != nil {
		return "", err
	}

	raw, err := hex.DecodeString(rawTxHex)
	if err != nil {
		return "", err
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return "", err
	}

	f.broadcast = append(f.broadcast, rawTxHex)
	return tx.TxHash().String(), nil
}

// EstimateCurrentBlockHeight implements the chain.Backend interface.
func (f *fakeIndex) EstimateCurrentBlockHeight(
	_ context.Context) (int64, error) {

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.call("height"); err != nil {
		return 0, err
	}
	return f.height, nil
}

// fund creates a transaction paying value to rec with the given number of
// confirmations and indexes it.
func (f *fakeIndex) fund(t *testing.T, rec *waddrmgr.AddressRecord,
	value btcutil.Amount, confs uint32) *chain.Transaction {

	t.Helper()

	f.mu.Lock()
	defer f.mu.Unlock()

	f.nonce++
	var prev chainhash.Hash
	binary.LittleEndian.PutUint32(prev[:], f.nonce)
	prev[31] = 0xff

	msgTx := wire.NewMsgTx(2)
	msgTx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&prev, 0), nil, nil))
	msgTx.AddTxOut(wire.NewTxOut(int64(value), rec.PkScript))

	tx := &chain.Transaction{
		TxID: msgTx.TxHash().String(),
		Vin: []chain.TxIn{{
			TxID:     prev.String(),
			Vout:     0,
			Sequence: wire.MaxTxInSequenceNum,
		}},
		Vout: []chain.TxOut{{
			Value:    value,
			PkScript: rec.PkScript,
			Address:  rec.EncodeAddress(),
		}},
		Raw: msgTx,
	}
	f.confirm(tx, confs)

	addr := rec.EncodeAddress()
	f.txs[tx.TxID] = tx
	f.history[addr] = append(f.history[addr], chain.HistoryItem{
		TxID: tx.TxID, Height: tx.BlockHeight,
	})

	bal := f.balances[addr]
	if confs > 0 {
		bal.Confirmed += value
	} else {
		bal.Unconfirmed += value
	}
	f.balances[addr] = bal

	f.utxos[addr] = append(f.utxos[addr], chain.Utxo{
		TxID:   tx.TxID,
		Vout:   0,
		Value:  value,
		Height: tx.BlockHeight,
	})

	return tx
}

// confirm sets the confirmation data of tx.  The caller must hold mu.
func (f *fakeIndex) confirm(tx *chain.Transaction, confs uint32) {
	tx.Confirmations = confs
	tx.BlockHeight = 0
	tx.BlockTime = 0
	if confs > 0 {
		tx.BlockHeight = f.height - int64(confs) + 1
		tx.BlockTime = 1_700_000_000 - int64(confs-1)*600
	}
}

// setConfirmations updates an indexed transaction and its history entries.
func (f *fakeIndex) setConfirmations(txid string, confs uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()

	tx := f.txs[txid]
	f.confirm(tx, confs)
	for addr, items := range f.history {
		for i := range items {
			if items[i].TxID == txid {
				f.history[addr][i].Height = tx.BlockHeight
			}
		}
	}
}

// drop removes a transaction from the index, as a mempool eviction would.
func (f *fakeIndex) drop(txid string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.txs, txid)
	for addr, items := range f.history {
		kept := items[:0]
		for _, item := range items {
			if item.TxID != txid {
				kept = append(kept, item)
			}
		}
		f.history[addr] = kept
	}
}

// setBalance overrides the balance of addr.
func (f *fakeIndex) setBalance(addr string, bal chain.Balance) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.balances[addr] = bal
}

// queriedHistory reports whether addr was part of any history query.
func (f *fakeIndex) queriedHistory(addr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, q := range f.historyQueries {
		for _, a := range q {
			if a == addr {
				return true
			}
		}
	}
	return false
}

// resetQueries forgets recorded history queries.
func (f *fakeIndex) resetQueries() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.historyQueries = nil
}

// spend indexes a transaction spending output 0 of prev into outs and
// moves the balances and utxos accordingly.
func (f *fakeIndex) spend(prev *chain.Transaction, confs uint32,
	outs ...chain.TxOut) *chain.Transaction {

	f.mu.Lock()
	defer f.mu.Unlock()

	prevHash, _ := chainhash.NewHashFromStr(prev.TxID)
	msgTx := wire.NewMsgTx(2)
	msgTx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(prevHash, 0), nil, nil))
	for _, out := range outs {
		msgTx.AddTxOut(wire.NewTxOut(int64(out.Value), out.PkScript))
	}

	tx := &chain.Transaction{
		TxID: msgTx.TxHash().String(),
		Vin: []chain.TxIn{{
			TxID:     prev.TxID,
			Vout:     0,
			Sequence: wire.MaxTxInSequenceNum,
		}},
		Vout: outs,
		Raw:  msgTx,
	}
	f.confirm(tx, confs)
	f.txs[tx.TxID] = tx

	touched := []string{prev.Vout[0].Address}
	for _, out := range outs {
		touched = append(touched, out.Address)
	}
	for _, addr := range touched {
		f.history[addr] = append(f.history[addr], chain.HistoryItem{
			TxID: tx.TxID, Height: tx.BlockHeight,
		})
	}

	from := prev.Vout[0].Address
	bal := f.balances[from]
	if confs > 0 {
		bal.Confirmed -= prev.Vout[0].Value
	} else {
		bal.Unconfirmed -= prev.Vout[0].Value
	}
	f.balances[from] = bal

	kept := f.utxos[from][:0]
	for _, u := range f.utxos[from] {
		if u.TxID != prev.TxID {
			kept = append(kept, u)
		}
	}
	f.utxos[from] = kept

	for vout, out := range outs {
		bal := f.balances[out.Address]
		if confs > 0 {
			bal.Confirmed += out.Value
		} else {
			bal.Unconfirmed += out.Value
		}
		f.balances[out.Address] = bal

		f.utxos[out.Address] = append(f.utxos[out.Address], chain.Utxo{
			TxID:   tx.TxID,
			Vout:   uint32(vout),
			Value:  out.Value,
			Height: tx.BlockHeight,
		})
	}

	return tx
}

// foreignOutput pays value to an address outside of every test wallet.
func foreignOutput(t *testing.T, value btcutil.Amount) chain.TxOut {
	t.Helper()

	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		make([]byte, 20), &chaincfg.MainNetParams,
	)
	require.NoError(t, err)

	pkScript, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)

	return chain.TxOut{
		Value:    value,
		PkScript: pkScript,
		Address:  addr.EncodeAddress(),
	}
}

// walletOutput pays value to a wallet address.
func walletOutput(rec *waddrmgr.AddressRecord,
	value btcutil.Amount) chain.TxOut {

	return chain.TxOut{
		Value:    value,
		PkScript: rec.PkScript,
		Address:  rec.EncodeAddress(),
	}
}
