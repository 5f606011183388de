// Copyright (c) 2017-2018 The nox developers

package config

import "time"

type Config struct {
	HomeDir           string `short:"A" long:"appdata" description:"Path to application home directory"`
	ShowVersion       bool   `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile        string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir           string `short:"b" long:"datadir" description:"Directory to store data"`
	LogDir            string `long:"logdir" description:"Directory to log output."`
	NoFileLogging     bool   `long:"nofilelogging" description:"Disable file logging."`
	TestNet           bool   `long:"testnet" description:"Use the test network"`
	PrivNet           bool   `long:"privnet" description:"Use the private network"`
	DbType            string `long:"dbtype" description:"Database backend to use for the Block Chain {leveldb, badger, bolt}"`
	DebugLevel        string `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, crit} "`
	DebugPrintOrigins bool   `long:"printorigin" description:"Print log debug location (file:line) "`
	Cleanup           bool   `long:"cleanup" description:"Remove the block database and block files of the network and exit"`
	Metrics           bool   `long:"metrics" description:"Collect chain and process metrics, served by expvar"`

	// Chain
	MaxOrphanBlocks int           `long:"maxorphanblocks" description:"Max number of orphan blocks to keep in memory (0 uses the network default)"`
	ForkCacheSize   int           `long:"forkcachesize" description:"Max number of fork state snapshots to keep in memory (0 uses the network default)"`
	MaxForkDepth    uint32        `long:"maxforkdepth" description:"Reject competing branches forking more than this many blocks below the tip (0 uses the network default)"`
	FinalityTimeout time.Duration `long:"finalitytimeout" description:"How long stuck finality may block a better chain before the local finality point is released (0 uses the network default)"`
	BlockFileSize   uint32        `long:"blockfilesize" description:"Maximum size in bytes of a block or undo file before a new one is started"`

	// MemPool Config
	MaxTxs         int  `long:"maxtxs" description:"Max number of unconfirmed transactions to keep in memory"`
	PersistMempool bool `long:"persistmempool" description:"Save the mempool on shutdown and load it again on startup"`

	// Import
	Import string `long:"import" description:"Import blocks from the specified bootstrap file and exit when done"`
}
