// Copyright (c) 2015-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package build

import (
	"os"

	"github.com/btcsuite/btclog"
)

// Subsystem tags of the hdwallet packages.  The command line tool keys its
// per-subsystem log levels by these.
const (
	SubsystemMain     = "HDWL"
	SubsystemWallet   = "WLLT"
	SubsystemAddrMgr  = "AMGR"
	SubsystemChain    = "CHAN"
	SubsystemTxAuthor = "TXAU"
)

// LogType indicates the type of logging selected by the build flags.
type LogType byte

const (
	// LogTypeNone indicates no logging.
	LogTypeNone LogType = iota

	// LogTypeStdOut means all logging is written directly to stdout.
	LogTypeStdOut

	// LogTypeDefault routes logging through the sub-logger generator
	// supplied by the host application.
	LogTypeDefault
)

// String returns a human readable identifier for the logging type.
func (t LogType) String() string {
	switch t {
	case LogTypeNone:
		return "none"
	case LogTypeStdOut:
		return "stdout"
	case LogTypeDefault:
		return "default"
	default:
		return "unknown"
	}
}

// NewSubLogger returns the logger a library package starts with before the
// host calls its UseLogger.  A nil genSubLogger leaves the package silent
// except in stdlog development builds, where it logs to stdout at the
// build-selected level.
func NewSubLogger(subsystem string,
	genSubLogger func(string) btclog.Logger) btclog.Logger {

	useGenerator := Deployment == Production ||
		LoggingType == LogTypeDefault

	switch {
	case useGenerator && genSubLogger != nil:
		return genSubLogger(subsystem)

	case Deployment == Development && LoggingType == LogTypeStdOut:
		return stdoutLogger(subsystem)
	}

	return btclog.Disabled
}

func stdoutLogger(subsystem string) btclog.Logger {
	logger := btclog.NewBackend(os.Stdout).Logger(subsystem)

	// Unknown levels fall back to info.
	level, _ := btclog.LevelFromString(LogLevel)
	logger.SetLevel(level)

	return logger
}
