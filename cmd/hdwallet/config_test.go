// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btclog"
	"github.com/btcsuite/hdwallet/netparams"
	"github.com/stretchr/testify/require"
)

// TestParseAndSetDebugLevels checks the accepted debug level forms.
func TestParseAndSetDebugLevels(t *testing.T) {
	testCases := []struct {
		name    string
		level   string
		wantErr bool
	}{
		{"all subsystems", "debug", false},
		{"per subsystem", "WLLT=trace,CHAN=warn", false},
		{"invalid level", "loud", true},
		{"missing pair", "WLLT=trace,CHAN", true},
		{"unknown subsystem", "NOPE=info", true},
		{"invalid subsystem level", "WLLT=loud", true},
	}

	for _, tc := range testCases {
		err := parseAndSetDebugLevels(tc.level)
		if tc.wantErr {
			require.Error(t, err, tc.name)
			continue
		}
		require.NoError(t, err, tc.name)
	}

	require.NoError(t, parseAndSetDebugLevels("WLLT=trace,CHAN=warn"))
	require.Equal(t, btclog.LevelTrace, walletLog.Level())
	require.Equal(t, btclog.LevelWarn, chainLog.Level())

	require.Equal(t, []string{"AMGR", "CHAN", "HDWL", "TXAU", "WLLT"},
		supportedSubsystems())
}

// TestActiveNetParams checks network selection.
func TestActiveNetParams(t *testing.T) {
	t.Parallel()

	params, err := activeNetParams(&config{})
	require.NoError(t, err)
	require.Equal(t, &netparams.MainNetParams, params)

	params, err = activeNetParams(&config{SigNet: true})
	require.NoError(t, err)
	require.Equal(t, &netparams.SigNetParams, params)

	_, err = activeNetParams(&config{TestNet3: true, RegTest: true})
	require.Error(t, err)
}

// TestCleanAndExpandPath checks home and environment expansion.
func TestCleanAndExpandPath(t *testing.T) {
	t.Setenv("HDWALLET_TEST_DIR", "/tmp/hdwallet")

	require.Equal(t, "/tmp/hdwallet/db",
		cleanAndExpandPath("$HDWALLET_TEST_DIR/./db"))
	require.Equal(t,
		filepath.Join(filepath.Dir(hdwalletHomeDir), "wallets"),
		cleanAndExpandPath("~/wallets"))
}

// TestLoadConfig checks that the config file, the command line and the
// selected command are combined.
func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "hdwallet.conf")
	err := os.WriteFile(configFile, []byte("[Application Options]\n"+
		"esplora=http://127.0.0.1:3000\n"+
		"maxretries=7\n"), 0600)
	require.NoError(t, err)

	cfg, cmds, name, args, err := loadConfig([]string{
		"--configfile", configFile, "--datadir", dir,
		"--logdir", dir, "--testnet", "--maxretries", "1",
		"send", "--to", "tb1qxyz=0.001", "--feerate", "2.5",
		"extra",
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		logRotator.Close()
		logRotator = nil
	})

	require.Equal(t, "send", name)
	require.Equal(t, []string{"extra"}, args)
	require.Equal(t, &netparams.TestNet3Params, cfg.activeNet)
	require.Equal(t, filepath.Join(dir, "testnet3"), cfg.LogDir)
	require.Equal(t, filepath.Join(dir, "testnet3", walletDbName),
		cfg.dbPath())

	esplora := cfg.esploraConfig()
	require.Equal(t, "http://127.0.0.1:3000", esplora.URL)
	require.Equal(t, 1, esplora.MaxRetries)
	require.Equal(t, cfg.RequestTimeout,
		esplora.RequestTimeout)

	cmd, ok := cmds.lookup("send")
	require.True(t, ok)
	send := cmd.(*sendCommand)
	require.Equal(t, []string{"tb1qxyz=0.001"}, send.To)
	require.Equal(t, "2.50 sat/vb", send.FeeRate.String())
	require.EqualValues(t, -1, send.Sequence)
	require.Equal(t, "accumulative", send.Strategy)

	_, ok = cmds.lookup("nope")
	require.False(t, ok)
}

// TestEsploraConfigDefaults checks that the index URL follows the network.
func TestEsploraConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.activeNet = &netparams.SigNetParams
	require.Equal(t, netparams.SigNetParams.EsploraURL,
		cfg.esploraConfig().URL)
}
