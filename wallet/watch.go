// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"

	"github.com/lightningnetwork/lnd/ticker"
)

// Start launches the periodic sync loop.  A wallet without a backend cannot
// be started.
func (w *Wallet) Start() error {
	if _, err := w.backend(); err != nil {
		return err
	}

	w.quitMu.Lock()
	defer w.quitMu.Unlock()

	select {
	case <-w.quit:
		// Restart the wallet goroutines after shutdown finishes.
		w.WaitForShutdown()
		w.quit = make(chan struct{})
	default:
		if w.started {
			return nil
		}
	}
	w.started = true

	if w.syncTicker == nil {
		w.syncTicker = w.cfg.SyncTicker
		if w.syncTicker == nil {
			w.syncTicker = ticker.New(w.cfg.SyncInterval)
		}
	}

	w.wg.Add(1)
	go w.syncHandler(w.syncTicker, w.quit)

	log.Infof("Started periodic sync every %v", w.cfg.SyncInterval)

	return nil
}

// Stop signals the sync loop to quit.  It does not wait for it.
func (w *Wallet) Stop() {
	w.quitMu.Lock()
	defer w.quitMu.Unlock()

	select {
	case <-w.quit:
	default:
		close(w.quit)
		w.started = false
	}
}

// ShuttingDown reports whether Stop was called.
func (w *Wallet) ShuttingDown() bool {
	select {
	case <-w.quitChan():
		return true
	default:
		return false
	}
}

func (w *Wallet) quitChan() <-chan struct{} {
	w.quitMu.Lock()
	defer w.quitMu.Unlock()

	return w.quit
}

// WaitForShutdown blocks until the sync loop exits.
func (w *Wallet) WaitForShutdown() {
	w.wg.Wait()
}

// stopTicker releases the sync ticker.  The loop must have exited.
func (w *Wallet) stopTicker() {
	w.quitMu.Lock()
	defer w.quitMu.Unlock()

	if w.syncTicker != nil {
		w.syncTicker.Stop()
		w.syncTicker = nil
	}
}

// syncHandler runs Sync on every tick until quit closes.  A running sync is
// cancelled on shutdown.  Failures are logged by the sync phases and retried
// on the next tick.
func (w *Wallet) syncHandler(t ticker.Ticker, quit <-chan struct{}) {
	defer w.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	t.Resume()
	defer t.Pause()

	for {
		select {
		case <-t.Ticks():
			if err := w.Sync(ctx); err != nil {
				log.Debugf("Periodic sync failed: %v", err)
				continue
			}
			bal := w.Balance()
			log.Infof("Synced: confirmed %v, unconfirmed %v",
				bal.Confirmed, bal.Unconfirmed)

		case <-quit:
			log.Infof("Sync loop shutting down")
			return
		}
	}
}
