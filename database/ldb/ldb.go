// Copyright (c) 2017-2018 The nox developers

// Package ldb implements the database interface on goleveldb.  It is the
// default backend.
package ldb

import (
	"github.com/noxproject/dposd/database"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const dbType = "leveldb"

// LevelDB is a database.DB backed by goleveldb.
type LevelDB struct {
	db *leveldb.DB
}

// Open opens or creates a leveldb database in the directory path.
func Open(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{
		BlockCacheCapacity: 32 * opt.MiB,
		WriteBuffer:        16 * opt.MiB,
	})
	if err != nil {
		return nil, database.NewError("open", err)
	}
	return &LevelDB{db: db}, nil
}

// NewMemDB returns a leveldb database kept entirely in memory.  Tests use it.
func NewMemDB() *LevelDB {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		// Opening a fresh memory storage cannot fail.
		panic(err)
	}
	return &LevelDB{db: db}
}

func (l *LevelDB) Get(key []byte) ([]byte, error) {
	v, err := l.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, database.NewError("get", err)
	}
	return v, nil
}

func (l *LevelDB) Has(key []byte) (bool, error) {
	ok, err := l.db.Has(key, nil)
	if err != nil {
		return false, database.NewError("has", err)
	}
	return ok, nil
}

func (l *LevelDB) Put(key, value []byte) error {
	if err := l.db.Put(key, value, nil); err != nil {
		return database.NewError("put", err)
	}
	return nil
}

func (l *LevelDB) Delete(key []byte) error {
	if err := l.db.Delete(key, nil); err != nil {
		return database.NewError("delete", err)
	}
	return nil
}

// Write commits the batch through a leveldb.Batch, which leveldb applies
// atomically.
func (l *LevelDB) Write(batch *database.Batch) error {
	lb := new(leveldb.Batch)
	_ = batch.Replay(func(k, v []byte) error {
		lb.Put(k, v)
		return nil
	}, func(k []byte) error {
		lb.Delete(k)
		return nil
	})
	if err := l.db.Write(lb, &opt.WriteOptions{Sync: true}); err != nil {
		return database.NewError("write", err)
	}
	return nil
}

func (l *LevelDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	iter := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	for iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	if err := iter.Error(); err != nil {
		return database.NewError("iterate", err)
	}
	return nil
}

func (l *LevelDB) Close() error {
	if err := l.db.Close(); err != nil {
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
