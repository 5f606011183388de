// Copyright (c) 2017-2018 The nox developers
// Copyright (c) 2015-2016 The Decred developers
// Copyright (c) 2013-2016 The btcsuite developers

package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/noxproject/dposd/log"
	"github.com/noxproject/dposd/metrics"
	"github.com/noxproject/dposd/services/blkmgr"
	"github.com/noxproject/dposd/services/common"
	"github.com/pkg/errors"
)

const (
	appMajor uint = 0
	appMinor uint = 3
	appPatch uint = 0
)

// version returns the application version as a properly formed string.
func version() string {
	return fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)
}

func main() {
	// Use all processor cores.
	runtime.GOMAXPROCS(runtime.NumCPU())

	// Block and transaction processing can cause bursty allocations.  This
	// limits the garbage collector from excessively overallocating during
	// bursts.
	debug.SetGCPercent(20)

	// Work around defer not working after os.Exit()
	if err := dposdMain(); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

// dposdMain is the real main function for dposd.  It is necessary to work
// around the fact that deferred functions do not run when os.Exit() is called.
func dposdMain() error {
	// Load configuration and parse command line.  This function also
	// initializes logging and configures it accordingly.
	cfg, par, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() {
		if log.LogWrite() != nil {
			log.LogWrite().Close()
		}
	}()

	// Get a channel that will be closed when a shutdown signal has been
	// triggered either from an OS signal such as SIGINT (Ctrl+C) or from
	// another subsystem such as the block manager.
	interrupt := interruptListener()
	defer log.Info("Shutdown complete")

	log.Info("System info", "dposd version", version(), "Go version", runtime.Version())
	log.Info("System info", "Home dir", cfg.HomeDir, "network", par.Name)
	if cfg.NoFileLogging {
		log.Info("File logging disabled")
	}

	if cfg.Cleanup {
		common.CleanupBlockDB(cfg)
		return nil
	}

	// Load the block database.
	db, err := common.LoadBlockDB(cfg)
	if err != nil {
		log.Error("load block database", "error", err)
		return err
	}
	defer func() {
		// Ensure the database is sync'd and closed on shutdown.
		log.Info("Gracefully shutting down the database...")
		db.Close()
	}()

	// Return now if an interrupt signal was triggered.
	if interruptRequested(interrupt) {
		return nil
	}

	events := new(event.Feed)
	bm, err := blkmgr.NewBlockManager(db, cfg, par, nil, events)
	if err != nil {
		log.Error("Unable to load the chain", "error", err)
		return err
	}
	defer func() {
		if err := bm.Chain().Close(); err != nil {
			log.Warn("block files close error", "error", err)
		}
	}()
	bm.Start()
	defer func() {
		log.Info("Gracefully shutting down the block manager...")
		if err := bm.Stop(); err != nil {
			log.Warn("block manager stop error", "error", err)
		}
	}()

	if cfg.Metrics {
		quit := make(chan struct{})
		defer close(quit)
		go metrics.CollectProcessMetrics(3*time.Second, quit)
	}

	best := bm.Chain().BestSnapshot()
	log.Info("Chain state", "hash", best.Hash, "height", best.Height,
		"totaltxs", best.TotalTxns)

	if cfg.Import != "" {
		return importFile(bm, cfg.Import, interrupt)
	}

	// A storage failure leaves the chain state untrustworthy, so the node
	// shuts down.
	go func() {
		select {
		case <-bm.Halted():
			shutdownRequestChannel <- struct{}{}
		case <-interrupt:
		}
	}()

	// Wait until the interrupt signal is received from an OS signal or
	// shutdown is requested through one of the subsystems.
	<-interrupt
	select {
	case <-bm.Halted():
		return errors.New("block processing halted after a storage failure")
	default:
	}
	return nil
}
