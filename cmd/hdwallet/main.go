// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Command hdwallet is a command line front-end of the wallet engine: it
// creates and restores HD wallets, syncs them against an Esplora index, and
// builds, signs, combines and broadcasts single and multisig transactions.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/btcsuite/hdwallet/chain"
	"github.com/btcsuite/hdwallet/internal/cfgutil"
	"github.com/btcsuite/hdwallet/wallet"
	flags "github.com/jessevdk/go-flags"
)

const (
	appMajor = 0
	appMinor = 1
	appPatch = 0
)

// version returns the application version as a semver string.
func version() string {
	return fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)
}

func main() {
	// Work around defer not working after os.Exit.
	if err := hdwalletMain(); err != nil {
		os.Exit(1)
	}
}

// hdwalletMain is a work-around main function that is required since deferred
// functions (such as log flushing) are not called with calls to os.Exit.
// Instead, main runs this function and checks for a non-nil error, at which
// point any defers have already run, and if the error is non-nil, the program
// can be exited with an error exit status.
func hdwalletMain() error {
	// Load configuration and parse command line.  This function also
	// initializes logging and configures it accordingly.
	cfg, cmds, name, args, err := loadConfig(os.Args[1:])
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil
		}
		return err
	}
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	cmd, ok := cmds.lookup(name)
	if !ok {
		err := fmt.Errorf("unknown command %q", name)
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addInterruptHandler("command context", cancel)

	log.Debugf("Running %s on %s", name, cfg.activeNet.Name)

	if err := cmd.run(ctx, cfg, args); err != nil {
		log.Errorf("%s: %v", name, err)
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		return err
	}

	return nil
}

// openWallet loads the wallet of the active network with an Esplora backend.
// The returned cleanup closes the wallet and its database.
func openWallet(cfg *config) (*wallet.Wallet, func(), error) {
	dbPath := cfg.dbPath()
	exists, err := cfgutil.FileExists(dbPath)
	if err != nil {
		return nil, nil, err
	}
	if !exists {
		return nil, nil, fmt.Errorf("the wallet does not exist, run the "+
			"create or importxpub command to create %v", dbPath)
	}

	db, err := wallet.OpenDB(dbPath, cfg.DBTimeout)
	if err != nil {
		return nil, nil, err
	}

	w, err := wallet.Load(wallet.Config{
		Backend:      chain.NewEsploraClient(cfg.esploraConfig()),
		DB:           db,
		MaxCatchUp:   cfg.MaxCatchUp,
		SyncInterval: cfg.SyncInterval,
	})
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	return w, func() {
		w.Close()
		if err := db.Close(); err != nil {
			log.Errorf("Unable to close wallet database: %v", err)
		}
	}, nil
}

// createWallet creates the wallet database of the active network and stores
// the first snapshot of the new wallet in it.  It fails when the database
// exists.
func createWallet(cfg *config, walletCfg wallet.Config) (*wallet.Wallet,
	func(), error) {

	dbPath := cfg.dbPath()
	exists, err := cfgutil.FileExists(dbPath)
	if err != nil {
		return nil, nil, err
	}
	if exists {
		return nil, nil, fmt.Errorf("the wallet database file `%v` "+
			"already exists", dbPath)
	}

	db, err := wallet.CreateDB(dbPath, cfg.DBTimeout)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if err := db.Close(); err != nil {
			log.Errorf("Unable to close wallet database: %v", err)
		}
	}

	walletCfg.DB = db
	walletCfg.Backend = chain.NewEsploraClient(cfg.esploraConfig())
	walletCfg.MaxCatchUp = cfg.MaxCatchUp
	w, err := wallet.New(walletCfg)
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	if err := w.Save(); err != nil {
		w.Close()
		closeDB()
		return nil, nil, err
	}

	log.Infof("Created wallet %v", dbPath)

	return w, func() {
		w.Close()
		closeDB()
	}, nil
}
