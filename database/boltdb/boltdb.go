// Copyright (c) 2017-2018 The nox developers

// Package boltdb implements the database interface on bbolt.  All keys live
// in a single bucket.
package boltdb

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/coreos/bbolt"
	"github.com/noxproject/dposd/database"
)

const dbType = "bolt"

var bucketName = []byte("dposd")

// BoltDB is a database.DB backed by bbolt.
type BoltDB struct {
	db *bolt.DB
}

// Open opens or creates a bolt database file inside the directory path.
func Open(path string) (*BoltDB, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, database.NewError("open", err)
	}
	db, err := bolt.Open(filepath.Join(path, "chain.db"), 0600, nil)
	if err != nil {
		return nil, database.NewError("open", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, database.NewError("open", err)
	}
	return &BoltDB{db: db}, nil
}

func (b *BoltDB) Get(key []byte) ([]byte, error) {
	var value []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get(key)
		if v != nil {
			// Values are only valid for the life of the transaction.
			value = append([]byte{}, v...)
		}
		return nil
	})
	if err != nil {
		return nil, database.NewError("get", err)
	}
	if value == nil {
		return nil, database.ErrNotFound
	}
	return value, nil
}

func (b *BoltDB) Has(key []byte) (bool, error) {
	var ok bool
	err := b.db.View(func(tx *bolt.Tx) error {
		ok = tx.Bucket(bucketName).Get(key) != nil
		return nil
	})
	if err != nil {
		return false, database.NewError("has", err)
	}
	return ok, nil
}

func (b *BoltDB) Put(key, value []byte) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(key, value)
	})
	if err != nil {
		return database.NewError("put", err)
	}
	return nil
}

func (b *BoltDB) Delete(key []byte) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete(key)
	})
	if err != nil {
		return database.NewError("delete", err)
	}
	return nil
}

// Write applies the batch inside one bolt read-write transaction.
func (b *BoltDB) Write(batch *database.Batch) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		return batch.Replay(bucket.Put, bucket.Delete)
	})
	if err != nil {
		return database.NewError("write", err)
	}
	return nil
}

func (b *BoltDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	return b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if err := fn(k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BoltDB) Close() error {
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
