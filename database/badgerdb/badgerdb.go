// Copyright (c) 2017-2018 The nox developers

// Package badgerdb implements the database interface on badger.
package badgerdb

import (
	"os"

	"github.com/dgraph-io/badger"
	"github.com/noxproject/dposd/database"
)

const dbType = "badger"

// BadgerDB is a database.DB backed by badger.
type BadgerDB struct {
	db *badger.DB
}

// Open opens or creates a badger database in the directory path.
func Open(path string) (*BadgerDB, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, database.NewError("open", err)
	}
	opt := badger.DefaultOptions
	opt.Dir = path
	opt.ValueDir = path
	opt.SyncWrites = true
	db, err := badger.Open(opt)
	if err != nil {
		return nil, database.NewError("open", err)
	}
	return &BadgerDB{db: db}, nil
}

func (b *BadgerDB) Get(key []byte) ([]byte, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, database.NewError("get", err)
	}
	return value, nil
}

func (b *BadgerDB) Has(key []byte) (bool, error) {
	_, err := b.Get(key)
	if err == database.ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (b *BadgerDB) Put(key, value []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return database.NewError("put", err)
	}
	return nil
}

func (b *BadgerDB) Delete(key []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
	if err != nil {
		return database.NewError("delete", err)
	}
	return nil
}

// Write applies the batch inside one badger transaction.
func (b *BadgerDB) Write(batch *database.Batch) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return batch.Replay(txn.Set, txn.Delete)
	})
	if err != nil {
		return database.NewError("write", err)
	}
	return nil
}

func (b *BadgerDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			v, err := item.ValueCopy(nil)
			if err != nil {
				return database.NewError("iterate", err)
			}
			if err := fn(append([]byte{}, item.Key()...), v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerDB) Close() error {
	if err := b.db.Close(); err != nil {
		return database.NewError("close", err)
	}
	return nil
}

func init() {
	database.RegisterDriver(database.Driver{
		DbType: dbType,
		Open: func(path string) (database.DB, error) {
			return Open(path)
		},
	})
}
