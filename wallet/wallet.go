// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wallet provides an HD bitcoin wallet engine that syncs against a
// remote index: gap limit discovery, a cached view of balances, transactions
// and unspent outputs, coin selection and PSBT based single and multi
// signature spending.
package wallet

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/btcsuite/hdwallet/chain"
	"github.com/btcsuite/hdwallet/waddrmgr"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/ticker"
)

const (
	// DefaultGapLimit is the number of consecutive unused addresses
	// probed past the last used one.
	DefaultGapLimit = 20

	// DefaultMaxCatchUp bounds the extra gap limit windows one balance
	// sync probes per chain.
	DefaultMaxCatchUp = 8

	// MaxDiscoveryChunks bounds discovery when no upper bound is given.
	MaxDiscoveryChunks = 100

	// DefaultSyncInterval is the period of the background sync loop.
	DefaultSyncInterval = 5 * time.Minute

	// refetchConfirmations is the confirmation depth below which a cached
	// transaction is fetched again.
	refetchConfirmations = 7

	// unconfirmedTimeOffset dates unconfirmed transactions slightly in
	// the past.
	unconfirmedTimeOffset = 30 * time.Second
)

// Config holds the collaborators and tunables of a wallet.
type Config struct {
	// Identity is the key material and script policy of the wallet.
	Identity *waddrmgr.Identity

	// Backend is the remote index.  A wallet without one can derive and
	// sign but not sync.
	Backend chain.Backend

	// DB persists snapshots.  Optional.
	DB walletdb.DB

	// GapLimit defaults to DefaultGapLimit.
	GapLimit uint32

	// MaxCatchUp defaults to DefaultMaxCatchUp.
	MaxCatchUp int

	// Clock defaults to the system clock.
	Clock clock.Clock

	// SyncInterval defaults to DefaultSyncInterval.
	SyncInterval time.Duration

	// SyncTicker overrides the ticker built from SyncInterval.
	SyncTicker ticker.Ticker
}

// validate checks the config and fills in defaults.
func (c *Config) validate() error {
	if c.Identity == nil {
		return errors.New("wallet identity is required")
	}
	if c.GapLimit == 0 {
		c.GapLimit = DefaultGapLimit
	}
	if c.MaxCatchUp <= 0 {
		c.MaxCatchUp = DefaultMaxCatchUp
	}
	if c.Clock == nil {
		c.Clock = clock.NewDefaultClock()
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = DefaultSyncInterval
	}
	return nil
}

// Balance is the aggregated balance of the wallet.
type Balance struct {
	// Confirmed is the sum of the confirmed balances of every address.
	Confirmed btcutil.Amount

	// Unconfirmed is the sum of the pending deltas of every address.
	Unconfirmed btcutil.Amount
}

// Spendable is the confirmed balance reduced by pending spends.  Pending
// receives are not counted until they confirm.
func (b Balance) Spendable() btcutil.Amount {
	if b.Unconfirmed < 0 {
		return b.Confirmed + b.Unconfirmed
	}
	return b.Confirmed
}

// Wallet is an HD wallet synced against a remote index.  The sync phases
// FetchBalance, FetchTransactions and FetchUtxo are serialized on one mutex,
// readers only take the state lock.
type Wallet struct {
	cfg Config

	// syncMtx serializes the sync phases.
	syncMtx sync.Mutex

	// stateMtx guards state, identity and deriver.
	stateMtx sync.RWMutex
	state    *SyncState
	identity *waddrmgr.Identity
	deriver  *waddrmgr.Deriver

	// syncTicker drives the sync loop.  It is paused between runs of the
	// loop and stopped on Close.
	syncTicker ticker.Ticker

	started bool
	quit    chan struct{}
	quitMu  sync.Mutex
	wg      sync.WaitGroup
}

// New returns a pristine wallet.
func New(cfg Config) (*Wallet, error) {
	return newWallet(cfg, NewSyncState())
}

func newWallet(cfg Config, state *SyncState) (*Wallet, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	state.normalize()

	return &Wallet{
		cfg:      cfg,
		state:    state,
		identity: cfg.Identity,
		deriver:  waddrmgr.NewDeriver(cfg.Identity),
		quit:     make(chan struct{}),
	}, nil
}

// Identity returns the current identity.
func (w *Wallet) Identity() *waddrmgr.Identity {
	w.stateMtx.RLock()
	defer w.stateMtx.RUnlock()

	return w.identity
}

// ChainParams returns the network the wallet is for.
func (w *Wallet) ChainParams() *chaincfg.Params {
	return w.Identity().Params()
}

// GapLimit returns the configured gap limit.
func (w *Wallet) GapLimit() uint32 {
	return w.cfg.GapLimit
}

// keys returns the current deriver.
func (w *Wallet) keys() *waddrmgr.Deriver {
	w.stateMtx.RLock()
	defer w.stateMtx.RUnlock()

	return w.deriver
}

// backend returns the chain backend or ErrNoBackend.
func (w *Wallet) backend() (chain.Backend, error) {
	if w.cfg.Backend == nil {
		return nil, ErrNoBackend
	}
	return w.cfg.Backend, nil
}

// Address derives the address at branch/index.
func (w *Wallet) Address(branch waddrmgr.Branch,
	index uint32) (*waddrmgr.AddressRecord, error) {

	return w.keys().Address(branch, index)
}

// WIF returns the private key of a single key address.  The result is None
// for watch-only wallets.
func (w *Wallet) WIF(branch waddrmgr.Branch,
	index uint32) (fn.Option[*btcutil.WIF], error) {

	return w.keys().WIF(branch, index)
}

// NextFree returns the cursor of branch.
func (w *Wallet) NextFree(branch waddrmgr.Branch) uint32 {
	w.stateMtx.RLock()
	defer w.stateMtx.RUnlock()

	return w.state.branch(branch).NextFree
}

// NextReceiveAddress returns the first external address never seen on
// chain.
func (w *Wallet) NextReceiveAddress() (*waddrmgr.AddressRecord, error) {
	return w.Address(
		waddrmgr.ExternalBranch, w.NextFree(waddrmgr.ExternalBranch),
	)
}

// NextChangeAddress returns the first internal address never seen on chain.
func (w *Wallet) NextChangeAddress() (*waddrmgr.AddressRecord, error) {
	return w.Address(
		waddrmgr.InternalBranch, w.NextFree(waddrmgr.InternalBranch),
	)
}

// windowEnd returns the end of the sync window of a cursor.
func (w *Wallet) windowEnd(nextFree uint32) uint32 {
	return nextFree + w.cfg.GapLimit
}

// addressRange derives the addresses [from, to) of branch.
func (w *Wallet) addressRange(d *waddrmgr.Deriver, branch waddrmgr.Branch,
	from, to uint32) ([]string, error) {

	addrs := make([]string, 0, to-from)
	for i := from; i < to; i++ {
		addr, err := d.AddressString(branch, i)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

// ownedAddr locates an address in the sync window.
type ownedAddr struct {
	branch waddrmgr.Branch
	index  uint32
}

// ownedWindow derives both chains over [0, next_free + gap_limit) and
// returns the owned address set.  The caller must hold stateMtx.
func (w *Wallet) ownedWindow() (map[string]ownedAddr, error) {
	owned := make(map[string]ownedAddr)
	for _, b := range waddrmgr.Branches {
		end := w.windowEnd(w.state.branch(b).NextFree)
		for i := uint32(0); i < end; i++ {
			addr, err := w.deriver.AddressString(b, i)
			if err != nil {
				return nil, err
			}
			owned[addr] = ownedAddr{branch: b, index: i}
		}
	}
	return owned, nil
}

// IsOwned reports whether addr is a wallet address within the sync window
// or previously derived.
func (w *Wallet) IsOwned(addr string) (bool, error) {
	if _, ok := w.keys().Lookup(addr); ok {
		return true, nil
	}

	w.stateMtx.RLock()
	defer w.stateMtx.RUnlock()

	owned, err := w.ownedWindow()
	if err != nil {
		return false, err
	}
	_, ok := owned[addr]
	return ok, nil
}

// lookupAddress returns the record of a wallet address.
func (w *Wallet) lookupAddress(addr string) (*waddrmgr.AddressRecord, error) {
	d := w.keys()
	if rec, ok := d.Lookup(addr); ok {
		return rec, nil
	}

	owned, err := w.IsOwned(addr)
	if err != nil {
		return nil, err
	}
	if rec, ok := d.Lookup(addr); owned && ok {
		return rec, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrNotMine, addr)
}

// Balance aggregates the cached per address balances.
func (w *Wallet) Balance() Balance {
	w.stateMtx.RLock()
	defer w.stateMtx.RUnlock()

	var bal Balance
	for _, b := range waddrmgr.Branches {
		for _, ab := range w.state.branch(b).Balances {
			bal.Confirmed += ab.Confirmed
			bal.Unconfirmed += ab.Unconfirmed
		}
	}
	return bal
}

// BestHeight returns the chain tip seen by the last transaction sync.
func (w *Wallet) BestHeight() int64 {
	w.stateMtx.RLock()
	defer w.stateMtx.RUnlock()

	return w.state.BestHeight
}

// ReplaceCosigner swaps the key material of one cosigner, for example to
// turn a seeded cosigner watch-only.  The new material must have the
// recorded fingerprint and account key.
func (w *Wallet) ReplaceCosigner(idx int, c *waddrmgr.Cosigner) error {
	w.stateMtx.Lock()
	defer w.stateMtx.Unlock()

	id, err := w.identity.WithCosigner(idx, c)
	if err != nil {
		return err
	}

	w.deriver.Reset()
	w.identity = id
	w.deriver = waddrmgr.NewDeriver(id)

	log.Infof("Replaced cosigner %d, wallet watch-only: %v", idx,
		id.IsWatchOnly())

	return nil
}

// PublishTransaction broadcasts a finalized transaction and returns its
// txid.
func (w *Wallet) PublishTransaction(ctx context.Context,
	tx *wire.MsgTx) (string, error) {

	backend, err := w.backend()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	buf.Grow(tx.SerializeSize())
	if err := tx.Serialize(&buf); err != nil {
		return "", err
	}

	txid, err := backend.Broadcast(ctx, hex.EncodeToString(buf.Bytes()))
	if err != nil {
		return "", fmt.Errorf("broadcast %v: %w", tx.TxHash(), err)
	}

	log.Infof("Published transaction %s", txid)

	return txid, nil
}

// Close zeroes derived key material.  The wallet must not be used
// afterwards.
func (w *Wallet) Close() {
	w.Stop()
	w.WaitForShutdown()
	w.stopTicker()

	w.stateMtx.Lock()
	w.deriver.Reset()
	w.stateMtx.Unlock()
}
