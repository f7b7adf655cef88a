// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
)

var (
	// ErrBackendUnavailable is returned when the index cannot be reached
	// or its circuit breaker is open.  Callers treat it as transient.
	ErrBackendUnavailable = errors.New("chain backend unavailable")

	// ErrUtxoQueryUnsupported is returned when the index refuses to list
	// the unspent outputs of an address.  Wallets fall back to deriving
	// them from cached transactions.
	ErrUtxoQueryUnsupported = errors.New("backend cannot serve utxo " +
		"queries")

	// ErrTxNotFound is returned when the index does not know a txid.
	ErrTxNotFound = errors.New("transaction not found")
)

// HistoryItem is one transaction touching an address.  Height is zero for
// unconfirmed transactions.
type HistoryItem struct {
	TxID   string
	Height int64
}

// TxIn is a transaction input as the index reports it.  The spent output is
// not embedded; resolve it by fetching the previous transaction.
type TxIn struct {
	TxID       string
	Vout       uint32
	Sequence   uint32
	IsCoinbase bool
}

// TxOut is a transaction output.  Address is empty for scripts without an
// address form.
type TxOut struct {
	Value    btcutil.Amount
	PkScript []byte
	Address  string
}

// Transaction is a transaction with its confirmation status.
type Transaction struct {
	TxID string
	Vin  []TxIn
	Vout []TxOut

	// Confirmations is zero while the transaction is in the mempool.
	Confirmations uint32

	// BlockHeight and BlockTime are zero while unconfirmed.  BlockTime
	// is a unix timestamp.
	BlockHeight int64
	BlockTime   int64

	// Raw is the full transaction, needed to spend legacy outputs.
	Raw *wire.MsgTx
}

// Balance is the confirmed and mempool balance of an address.  Unconfirmed
// is negative when pending transactions spend from the address.
type Balance struct {
	Confirmed   btcutil.Amount
	Unconfirmed btcutil.Amount
}

// Utxo is an unspent output of an address.  Height is zero while
// unconfirmed.
type Utxo struct {
	TxID   string
	Vout   uint32
	Value  btcutil.Amount
	Height int64
}

// Backend is the remote index a wallet syncs against.  Every query is
// batched and returns a map keyed by the requested address or txid; keys the
// index knows nothing about may be absent.
type Backend interface {
	// MultiGetHistoryByAddress returns the transactions touching each
	// address.
	MultiGetHistoryByAddress(ctx context.Context,
		addrs []string) (map[string][]HistoryItem, error)

	// MultiGetTransactionByTxid returns the transactions with the given
	// ids.
	MultiGetTransactionByTxid(ctx context.Context,
		txids []string) (map[string]*Transaction, error)

	// MultiGetBalanceByAddress returns the balance of each address.
	MultiGetBalanceByAddress(ctx context.Context,
		addrs []string) (map[string]Balance, error)

	// MultiGetUtxoByAddress returns the unspent outputs of each address.
	// It returns ErrUtxoQueryUnsupported if the index cannot serve it.
	MultiGetUtxoByAddress(ctx context.Context,
		addrs []string) (map[string][]Utxo, error)

	// Broadcast relays a hex encoded transaction and returns its txid.
	Broadcast(ctx context.Context, rawTxHex string) (string, error)

	// EstimateCurrentBlockHeight returns the height of the best block.
	EstimateCurrentBlockHeight(ctx context.Context) (int64, error)
}
