// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/hdwallet/chain"
	"github.com/btcsuite/hdwallet/internal/cfgutil"
	"github.com/btcsuite/hdwallet/netparams"
	"github.com/btcsuite/hdwallet/wallet"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "hdwallet.conf"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "hdwallet.log"
	defaultFeeRate        = 10

	walletDbName = "wallet.db"
)

var (
	hdwalletHomeDir   = btcutil.AppDataDir("hdwallet", false)
	defaultConfigFile = filepath.Join(hdwalletHomeDir, defaultConfigFilename)
	defaultDataDir    = hdwalletHomeDir
	defaultLogDir     = filepath.Join(hdwalletHomeDir, defaultLogDirname)
)

type config struct {
	// General application behavior
	ConfigFile  string `short:"C" long:"configfile" description:"Path to configuration file"`
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`
	DataDir     string `short:"b" long:"datadir" description:"Directory to store the wallet database"`
	LogDir      string `long:"logdir" description:"Directory to log output"`
	DebugLevel  string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	TestNet3    bool   `long:"testnet" description:"Use the test Bitcoin network (version 3)"`
	SigNet      bool   `long:"signet" description:"Use the default signet"`
	RegTest     bool   `long:"regtest" description:"Use the regression test network"`

	// Index options
	Esplora           string        `long:"esplora" description:"Base URL of the Esplora API (default depends on the network)"`
	RequestTimeout    time.Duration `long:"requesttimeout" description:"Timeout of a single index request"`
	MaxRetries        int           `long:"maxretries" description:"Retries of a failed index request"`
	RequestsPerSecond int           `long:"rps" description:"Maximum index requests per second, 0 to disable pacing"`
	BatchConcurrency  int           `long:"batchconcurrency" description:"Concurrent index requests of one batch query"`

	// Wallet options
	DBTimeout    time.Duration `long:"dbtimeout" description:"Timeout for acquiring the wallet database lock"`
	MaxCatchUp   int           `long:"maxcatchup" description:"Extra gap limit windows one balance sync probes per chain"`
	SyncInterval time.Duration `long:"syncinterval" description:"Period of the background sync of the watch command"`

	// activeNet is resolved from the network flags.
	activeNet *netparams.Params
}

// defaultConfig returns a config with every default set.
func defaultConfig() config {
	return config{
		DebugLevel:        defaultLogLevel,
		ConfigFile:        defaultConfigFile,
		DataDir:           defaultDataDir,
		LogDir:            defaultLogDir,
		DBTimeout:         wallet.DefaultDBTimeout,
		RequestTimeout:    chain.DefaultRequestTimeout,
		MaxRetries:        chain.DefaultMaxRetries,
		RequestsPerSecond: chain.DefaultRequestsPerSecond,
		BatchConcurrency:  chain.DefaultBatchConcurrency,
		MaxCatchUp:        wallet.DefaultMaxCatchUp,
		SyncInterval:      wallet.DefaultSyncInterval,
	}
}

// cleanAndExpandPath expands environement variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(hdwalletHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows cmd.exe-style
	// %VARIABLE%, but they variables can still be expanded via POSIX-style
	// $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// validLogLevel returns whether or not logLevel is a valid debug log level.
func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace":
		fallthrough
	case "debug":
		fallthrough
	case "info":
		fallthrough
	case "warn":
		fallthrough
	case "error":
		fallthrough
	case "critical":
		return true
	}
	return false
}

// supportedSubsystems returns a sorted slice of the supported subsystems for
// logging purposes.
func supportedSubsystems() []string {
	// Convert the subsystemLoggers map keys to a slice.
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}

	// Sort the subsytems for stable display.
	sort.Strings(subsystems)
	return subsystems
}

// parseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly.  An appropriate error is returned if anything is
// invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		// Validate debug log level.
		if !validLogLevel(debugLevel) {
			str := "The specified debug level [%v] is invalid"
			return fmt.Errorf(str, debugLevel)
		}

		// Change the logging level for all subsystems.
		setLogLevels(debugLevel)

		return nil
	}

	// Split the specified string into subsystem/level pairs while detecting
	// issues and update the log levels accordingly.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			str := "The specified debug level contains an invalid " +
				"subsystem/level pair [%v]"
			return fmt.Errorf(str, logLevelPair)
		}

		// Extract the specified subsystem and log level.
		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		// Validate subsystem.
		if _, exists := subsystemLoggers[subsysID]; !exists {
			str := "The specified subsystem [%v] is invalid -- " +
				"supported subsytems %v"
			return fmt.Errorf(str, subsysID, supportedSubsystems())
		}

		// Validate log level.
		if !validLogLevel(logLevel) {
			str := "The specified debug level [%v] is invalid"
			return fmt.Errorf(str, logLevel)
		}

		setLogLevel(subsysID, logLevel)
	}

	return nil
}

// activeNetParams returns the network selected by the flags.  Multiple
// networks can't be selected simultaneously.
func activeNetParams(cfg *config) (*netparams.Params, error) {
	activeNet := &netparams.MainNetParams
	numNets := 0
	if cfg.TestNet3 {
		activeNet = &netparams.TestNet3Params
		numNets++
	}
	if cfg.SigNet {
		activeNet = &netparams.SigNetParams
		numNets++
	}
	if cfg.RegTest {
		activeNet = &netparams.RegressionNetParams
		numNets++
	}
	if numNets > 1 {
		return nil, errors.New("the testnet, signet and regtest params " +
			"can't be used together -- choose one")
	}

	return activeNet, nil
}

// dbPath returns the wallet database file of the active network.
func (cfg *config) dbPath() string {
	return filepath.Join(cfg.DataDir, cfg.activeNet.Name, walletDbName)
}

// esploraConfig returns the index client config.
func (cfg *config) esploraConfig() *chain.EsploraConfig {
	url := cfg.Esplora
	if url == "" {
		url = cfg.activeNet.EsploraURL
	}

	c := chain.DefaultEsploraConfig(url)
	c.RequestTimeout = cfg.RequestTimeout
	c.MaxRetries = cfg.MaxRetries
	c.RequestsPerSecond = cfg.RequestsPerSecond
	c.BatchConcurrency = cfg.BatchConcurrency
	return c
}

// newParser builds the command line parser over cfg with every command
// registered.
func newParser(cfg *config, cmds *commands) (*flags.Parser, error) {
	parser := flags.NewParser(cfg, flags.Default)
	for _, c := range cmds.list() {
		_, err := parser.AddCommand(c.name, c.short, c.long, c.cmd)
		if err != nil {
			return nil, err
		}
	}
	return parser, nil
}

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in hdwallet functioning properly without any config
// settings while still allowing the user to override settings with config files
// and command line options.  Command line options always take precedence.
// The selected command and its remaining arguments are returned alongside.
func loadConfig(args []string) (*config, *commands, string, []string,
	error) {

	// Default config.
	cfg := defaultConfig()
	cmds := newCommands()

	// A config file in the current directory takes precedence.
	exists, err := cfgutil.FileExists(defaultConfigFilename)
	if err != nil {
		return nil, nil, "", nil, err
	}
	if exists {
		cfg.ConfigFile = defaultConfigFilename
	}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.  Command options are unknown
	// to the pre-parser and skipped.
	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.IgnoreUnknown)
	_, err = preParser.ParseArgs(args)
	if err != nil {
		return nil, nil, "", nil, err
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", version())
		os.Exit(0)
	}

	// Load additional config from file.
	var configFileError error
	parser, err := newParser(&cfg, cmds)
	if err != nil {
		return nil, nil, "", nil, err
	}
	err = flags.NewIniParser(parser).ParseFile(
		cleanAndExpandPath(preCfg.ConfigFile),
	)
	if err != nil {
		if _, ok := err.(*os.PathError); !ok {
			fmt.Fprintln(os.Stderr, err)
			parser.WriteHelp(os.Stderr)
			return nil, nil, "", nil, err
		}
		configFileError = err
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.ParseArgs(args)
	if err != nil {
		return nil, nil, "", nil, err
	}

	// Choose the active network params based on the selected network.
	cfg.activeNet, err = activeNetParams(&cfg)
	if err != nil {
		err := fmt.Errorf("loadConfig: %w", err)
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return nil, nil, "", nil, err
	}

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	// Append the network type to the log directory so it is "namespaced"
	// per network.
	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	cfg.LogDir = filepath.Join(cfg.LogDir, cfg.activeNet.Name)

	// Initialize log rotation.  After log rotation has been initialized,
	// the logger variables may be used.
	err = initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, "", nil, err
	}
	setLogLevels(defaultLogLevel)

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		err := fmt.Errorf("loadConfig: %w", err)
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return nil, nil, "", nil, err
	}

	// Warn about missing config file after the final command line parse
	// succeeds.  This prevents the warning on help messages and invalid
	// options.
	if configFileError != nil {
		log.Debugf("%v", configFileError)
	}

	if parser.Active == nil {
		return nil, nil, "", nil, errors.New("no command specified")
	}

	return &cfg, cmds, parser.Active.Name, remainingArgs, nil
}
