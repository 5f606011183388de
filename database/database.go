// Copyright (c) 2017-2018 The nox developers

// Package database defines the persistent key-value store the chain state
// machine is built on and a registry of backend drivers.
//
// A backend only has to provide point reads and writes, prefix iteration and
// an atomic batch write.  Every state transition of the chain is committed
// as a single batch, so the crash atomicity of Write is what keeps the block
// index, the chain tip and the account state consistent with each other.
package database

import (
	"fmt"
	"sort"
	"sync"
)

// DB is the persistent key-value store.
type DB interface {
	// Get returns the value stored under key or ErrNotFound.
	Get(key []byte) ([]byte, error)

	Has(key []byte) (bool, error)

	Put(key, value []byte) error

	Delete(key []byte) error

	// Write applies every operation of the batch atomically.
	Write(batch *Batch) error

	// ForEach calls fn for every key with the given prefix in ascending
	// key order.  The slices passed to fn must not be retained.
	ForEach(prefix []byte, fn func(key, value []byte) error) error

	Close() error
}

// Driver opens a DB of a given type.
type Driver struct {
	// DbType is the identifier used to select the driver.
	DbType string

	// Open opens or creates a database at path.
	Open func(path string) (DB, error)
}

var (
	driversMtx sync.RWMutex
	drivers    = make(map[string]*Driver)
)

// RegisterDriver adds a backend database driver to available interfaces.
// ErrDbTypeRegistered will be returned if the database type for the driver has
// already been registered.
func RegisterDriver(driver Driver) error {
	driversMtx.Lock()
	defer driversMtx.Unlock()
	if _, exists := drivers[driver.DbType]; exists {
		return fmt.Errorf("driver %q is already registered", driver.DbType)
	}
	drivers[driver.DbType] = &driver
	return nil
}

// SupportedDrivers returns a slice of strings that represent the database
// drivers that have been registered and are therefore supported.
func SupportedDrivers() []string {
	driversMtx.RLock()
	defer driversMtx.RUnlock()
	supported := make([]string, 0, len(drivers))
	for k := range drivers {
		supported = append(supported, k)
	}
	sort.Strings(supported)
	return supported
}

// Open opens a database of dbType at path.
func Open(dbType string, path string) (DB, error) {
	driversMtx.RLock()
	drv, exists := drivers[dbType]
	driversMtx.RUnlock()
	if !exists {
		return nil, fmt.Errorf("driver %q is not registered", dbType)
	}
	return drv.Open(path)
}
