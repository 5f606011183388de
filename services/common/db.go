// Copyright (c) 2017-2018 The nox developers

package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/noxproject/dposd/config"
	"github.com/noxproject/dposd/database"
	"github.com/noxproject/dposd/log"

	// Register the database drivers.
	_ "github.com/noxproject/dposd/database/badgerdb"
	_ "github.com/noxproject/dposd/database/boltdb"
	_ "github.com/noxproject/dposd/database/ldb"
)

const (
	// blockDbNamePrefix is the prefix for the block database name.  The
	// database type is appended to this value to form the full block
	// database name.
	blockDbNamePrefix = "blocks"
)

// LoadBlockDB loads (or creates when needed) the block database taking into
// account the selected database backend and returns a handle to it.
func LoadBlockDB(cfg *config.Config) (database.DB, error) {
	// The database name is based on the database type.
	dbPath := blockDbPath(cfg.DbType, cfg)

	log.Info("Loading block database", "dbPath", dbPath)
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, err
	}
	db, err := database.Open(cfg.DbType, dbPath)
	if err != nil {
		return nil, err
	}
	log.Info("Block database loaded")
	return db, nil
}

// blockDbPath returns the path to the block database given a database type.
func blockDbPath(dbType string, cfg *config.Config) string {
	// The database name is based on the database type.
	dbName := blockDbNamePrefix + "_" + dbType
	dbPath := filepath.Join(cfg.DataDir, dbName)
	return dbPath
}

// removeBlockDB removes the existing database
func removeBlockDB(dbPath string) error {
	// Remove the old database if it already exists.
	fi, err := os.Stat(dbPath)
	if err == nil {
		log.Info(fmt.Sprintf("Removing block database from '%s'", dbPath))
		if fi.IsDir() {
			return os.RemoveAll(dbPath)
		}
		return os.Remove(dbPath)
	}
	return nil
}

// CleanupBlockDB removes the block database and the block files of the
// configured network.
func CleanupBlockDB(cfg *config.Config) {
	dbPath := blockDbPath(cfg.DbType, cfg)
	if err := removeBlockDB(dbPath); err != nil {
		log.Error(err.Error())
	}
	if err := removeBlockDB(filepath.Join(cfg.DataDir, "blocks")); err != nil {
		log.Error(err.Error())
	}
	log.Info("Finished cleanup")
}
