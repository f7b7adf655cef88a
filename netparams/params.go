// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netparams

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
)

// Params is used to group parameters for various networks such as the main
// network and test networks.
type Params struct {
	*chaincfg.Params

	// EsploraURL is the default block index used when the caller doesn't
	// configure one.
	EsploraURL string
}

// MainNetParams contains parameters specific to the main network
// (wire.MainNet).
var MainNetParams = Params{
	Params:     &chaincfg.MainNetParams,
	EsploraURL: "https://blockstream.info/api",
}

// TestNet3Params contains parameters specific to the test network
// (version 3) (wire.TestNet3).
var TestNet3Params = Params{
	Params:     &chaincfg.TestNet3Params,
	EsploraURL: "https://blockstream.info/testnet/api",
}

// SigNetParams contains parameters specific to the default signet.
var SigNetParams = Params{
	Params:     &chaincfg.SigNetParams,
	EsploraURL: "https://mempool.space/signet/api",
}

// RegressionNetParams contains parameters specific to regtest. There is no
// public index for it, so a local one is assumed.
var RegressionNetParams = Params{
	Params:     &chaincfg.RegressionNetParams,
	EsploraURL: "http://127.0.0.1:3002",
}

// ByName returns the network parameters matching the chaincfg name of a
// network, e.g. "mainnet" or "testnet3".
func ByName(name string) (*Params, error) {
	for _, p := range []*Params{
		&MainNetParams, &TestNet3Params, &SigNetParams,
		&RegressionNetParams,
	} {
		if p.Name == name {
			return p, nil
		}
	}

	return nil, fmt.Errorf("unknown network %q", name)
}

// IsMainNet reports whether the params describe the main network. SLIP-132
// and BIP44 coin types only distinguish mainnet from everything else.
func (p *Params) IsMainNet() bool {
	return p.Net == chaincfg.MainNetParams.Net
}

// CoinType returns the BIP44 coin type for the network: 0 on mainnet and 1
// on every test network.
func (p *Params) CoinType() uint32 {
	if p.IsMainNet() {
		return 0
	}
	return 1
}
