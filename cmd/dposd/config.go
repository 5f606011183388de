// Copyright (c) 2017-2018 The nox developers
// Copyright (c) 2015-2016 The Decred developers
// Copyright (c) 2013-2016 The btcsuite developers

package main

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/btcsuite/btcutil"
	"github.com/jessevdk/go-flags"
	"github.com/noxproject/dposd/config"
	"github.com/noxproject/dposd/log"
	"github.com/noxproject/dposd/params"
)

const (
	defaultConfigFilename    = "dposd.conf"
	defaultDataDirname       = "data"
	defaultLogLevel          = "info"
	defaultDebugPrintOrigins = false
	defaultLogDirname        = "logs"
	defaultLogFilename       = "dposd.log"
	defaultDbType            = "leveldb"
)

var (
	defaultHomeDir    = btcutil.AppDataDir("dposd", false)
	defaultConfigFile = filepath.Join(defaultHomeDir, defaultConfigFilename)
	defaultDataDir    = filepath.Join(defaultHomeDir, defaultDataDirname)
	defaultLogDir     = filepath.Join(defaultHomeDir, defaultLogDirname)
)

// knownDbTypes are the database backends with a registered driver.
var knownDbTypes = []string{"leveldb", "badger", "bolt"}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		var homeDir string
		if u, err := user.Current(); err == nil {
			homeDir = u.HomeDir
		} else {
			homeDir = filepath.Dir(defaultHomeDir)
		}
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but they variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// validDbType returns whether or not dbType is a supported database type.
func validDbType(dbType string) bool {
	for _, knownType := range knownDbTypes {
		if dbType == knownType {
			return true
		}
	}
	return false
}

// newConfigParser returns a new command line flags parser.
func newConfigParser(cfg *config.Config, options flags.Options) *flags.Parser {
	return flags.NewParser(cfg, options)
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
// The above results in dposd functioning properly without any config settings
// while still allowing the user to override settings with config files and
// command line options.  Command line options always take precedence.
func loadConfig() (*config.Config, *params.Params, error) {
	// Default config.
	cfg := config.Config{
		HomeDir:           defaultHomeDir,
		ConfigFile:        defaultConfigFile,
		DebugLevel:        defaultLogLevel,
		DebugPrintOrigins: defaultDebugPrintOrigins,
		DataDir:           defaultDataDir,
		LogDir:            defaultLogDir,
		DbType:            defaultDbType,
	}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.  Any errors aside from the
	// help message error can be ignored here since they will be caught by
	// the final parse below.
	preCfg := cfg
	preParser := newConfigParser(&preCfg, flags.HelpFlag)
	_, err := preParser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			os.Exit(0)
		}
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	if preCfg.ShowVersion {
		fmt.Printf("%s version %s (Go version %s)\n", appName, version(), runtime.Version())
		os.Exit(0)
	}
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)

	// Update the home directory if specified.  Since the home directory is
	// updated, other variables need to be updated to reflect the new
	// changes.
	if preCfg.HomeDir != "" {
		cfg.HomeDir, _ = filepath.Abs(preCfg.HomeDir)

		if preCfg.ConfigFile == defaultConfigFile {
			preCfg.ConfigFile = filepath.Join(cfg.HomeDir, defaultConfigFilename)
		}
		cfg.ConfigFile = preCfg.ConfigFile
		if preCfg.DataDir == defaultDataDir {
			cfg.DataDir = filepath.Join(cfg.HomeDir, defaultDataDirname)
		} else {
			cfg.DataDir = preCfg.DataDir
		}
		if preCfg.LogDir == defaultLogDir {
			cfg.LogDir = filepath.Join(cfg.HomeDir, defaultLogDirname)
		} else {
			cfg.LogDir = preCfg.LogDir
		}
	}

	// Load additional config from file.
	var configFileError error
	parser := newConfigParser(&cfg, flags.Default)
	err = flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile)
	if err != nil {
		if _, ok := err.(*os.PathError); !ok {
			fmt.Fprintf(os.Stderr, "Error parsing config file: %v\n", err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, nil, err
		}
		configFileError = err
	}

	// Parse command line options again to ensure they take precedence.
	if _, err := parser.Parse(); err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			fmt.Fprintln(os.Stderr, usageMessage)
		}
		return nil, nil, err
	}

	funcName := "loadConfig"
	if err := os.MkdirAll(cfg.HomeDir, 0700); err != nil {
		err := fmt.Errorf("%s: failed to create home directory: %v", funcName, err)
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	// Multiple networks can't be selected simultaneously.
	net := params.ActiveNetParams
	numNets := 0
	if cfg.TestNet {
		numNets++
		net = &params.TestNetParams
	}
	if cfg.PrivNet {
		numNets++
		net = &params.PrivNetParams
	}
	if numNets > 1 {
		err := fmt.Errorf("%s: the testnet and privnet params can't be "+
			"used together -- choose one", funcName)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}
	params.ActiveNetParams = net

	if !validDbType(cfg.DbType) {
		err := fmt.Errorf("%s: the specified database type [%v] is invalid -- "+
			"supported types %v", funcName, cfg.DbType, knownDbTypes)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	if cfg.MaxOrphanBlocks < 0 || cfg.ForkCacheSize < 0 || cfg.MaxTxs < 0 {
		err := fmt.Errorf("%s: --maxorphanblocks, --forkcachesize and "+
			"--maxtxs may not be negative", funcName)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	// Append the network type to the data directory so it is "namespaced"
	// per network.
	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.DataDir = filepath.Join(cfg.DataDir, net.Name)

	// Set logging file if presented
	if !cfg.NoFileLogging {
		cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
		cfg.LogDir = filepath.Join(cfg.LogDir, net.Name)

		// Initialize log rotation.  After log rotation has been initialized,
		// the logger variables may be used.
		if err := log.InitLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename)); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return nil, nil, err
		}
	}

	if err := log.SetLevel(cfg.DebugLevel); err != nil {
		err := fmt.Errorf("%s: the specified debug level [%v] is invalid",
			funcName, cfg.DebugLevel)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	if cfg.DebugPrintOrigins {
		log.PrintOrigins(true)
	}

	// Warn about missing config file only after all other configuration is
	// done.  This prevents the warning on help messages and invalid
	// options.
	if configFileError != nil {
		log.Warn("missing config file", "error", configFileError)
	}

	return &cfg, net, nil
}
