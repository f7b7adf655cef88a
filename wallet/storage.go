// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/btcsuite/hdwallet/waddrmgr"

	// The bolt driver registers itself with walletdb.
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
)

const (
	// dbDriver is the walletdb driver wallets are stored with.
	dbDriver = "bdb"

	// DefaultDBTimeout bounds waiting for the database file lock.
	DefaultDBTimeout = 60 * time.Second

	// snapshotVersion is the current snapshot layout.
	snapshotVersion = 1
)

var (
	// snapshotBucketKey is the top level bucket holding the wallet.
	snapshotBucketKey = []byte("hdwallet")

	// snapshotKey stores the encoded Snapshot.
	snapshotKey = []byte("snapshot")
)

// Snapshot is everything needed to restore a wallet: the identity record,
// the gap limit and the sync state.  Derived key handles are never part of
// it.
type Snapshot struct {
	Version  int                     `json:"version"`
	Identity waddrmgr.IdentityRecord `json:"identity"`
	GapLimit uint32                  `json:"gapLimit"`
	State    *SyncState              `json:"state"`
}

// CreateDB creates a new wallet database at path.
func CreateDB(path string, timeout time.Duration) (walletdb.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}

	return walletdb.Create(dbDriver, path, true, timeout, false)
}

// OpenDB opens an existing wallet database.
func OpenDB(path string, timeout time.Duration) (walletdb.DB, error) {
	return walletdb.Open(dbDriver, path, true, timeout, false)
}

// Snapshot captures the current identity and sync state.
func (w *Wallet) Snapshot() (*Snapshot, error) {
	w.stateMtx.RLock()
	defer w.stateMtx.RUnlock()

	rec, err := w.identity.Record()
	if err != nil {
		return nil, err
	}

	// Round trip the state so the snapshot shares nothing with the live
	// wallet.
	raw, err := json.Marshal(w.state)
	if err != nil {
		return nil, err
	}
	state := new(SyncState)
	if err := json.Unmarshal(raw, state); err != nil {
		return nil, err
	}
	state.normalize()

	return &Snapshot{
		Version:  snapshotVersion,
		Identity: rec,
		GapLimit: w.cfg.GapLimit,
		State:    state,
	}, nil
}

// Save writes a snapshot of the wallet to its database.
func (w *Wallet) Save() error {
	if w.cfg.DB == nil {
		return errors.New("wallet has no database")
	}

	snap, err := w.Snapshot()
	if err != nil {
		return err
	}
	if err := WriteSnapshot(w.cfg.DB, snap); err != nil {
		return err
	}

	log.Debugf("Saved wallet snapshot")

	return nil
}

// WriteSnapshot stores snap in db, replacing any previous one.
func WriteSnapshot(db walletdb.DB, snap *Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	return walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		bucket, err := tx.CreateTopLevelBucket(snapshotBucketKey)
		if err != nil {
			return err
		}
		return bucket.Put(snapshotKey, raw)
	})
}

// ReadSnapshot loads the snapshot stored in db.  ErrNoSnapshot is returned
// for a database without one.
func ReadSnapshot(db walletdb.DB) (*Snapshot, error) {
	snap := new(Snapshot)
	err := walletdb.View(db, func(tx walletdb.ReadTx) error {
		bucket := tx.ReadBucket(snapshotBucketKey)
		if bucket == nil {
			return ErrNoSnapshot
		}

		raw := bucket.Get(snapshotKey)
		if raw == nil {
			return ErrNoSnapshot
		}

		// The value is only valid for the life of the transaction,
		// decoding copies it out.
		return json.Unmarshal(raw, snap)
	})
	if err != nil {
		return nil, err
	}

	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d",
			snap.Version)
	}
	if snap.State == nil {
		snap.State = NewSyncState()
	}
	snap.State.normalize()

	return snap, nil
}

// Restore builds a wallet from a snapshot.  The identity and gap limit of
// cfg are replaced by the snapshot's.
func Restore(cfg Config, snap *Snapshot) (*Wallet, error) {
	id, err := waddrmgr.IdentityFromRecord(snap.Identity)
	if err != nil {
		return nil, err
	}

	cfg.Identity = id
	cfg.GapLimit = snap.GapLimit

	return newWallet(cfg, snap.State)
}

// Load opens the wallet stored in cfg.DB.
func Load(cfg Config) (*Wallet, error) {
	if cfg.DB == nil {
		return nil, errors.New("wallet database is required")
	}

	snap, err := ReadSnapshot(cfg.DB)
	if err != nil {
		return nil, err
	}

	w, err := Restore(cfg, snap)
	if err != nil {
		return nil, err
	}

	log.Infof("Loaded %v wallet, next receive index %d, next change "+
		"index %d", w.Identity().Policy().Name,
		w.NextFree(waddrmgr.ExternalBranch),
		w.NextFree(waddrmgr.InternalBranch))

	return w, nil
}
