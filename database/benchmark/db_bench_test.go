// Copyright (c) 2017-2018 The nox developers

package benchmark

// $ go test -run='^$' -bench=. -benchmem ./database/benchmark

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/noxproject/dposd/database"
	_ "github.com/noxproject/dposd/database/badgerdb"
	_ "github.com/noxproject/dposd/database/boltdb"
	_ "github.com/noxproject/dposd/database/ldb"
)

var (
	testKey       = []byte("testKey")
	testValue     = []byte("testValue")
	testValueSize = int64(len(testValue))
)

func openDB(b *testing.B, dbType string) database.DB {
	db, err := database.Open(dbType, filepath.Join(b.TempDir(), dbType))
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { db.Close() })
	return db
}

func BenchmarkGet(b *testing.B) {
	for _, dbType := range database.SupportedDrivers() {
		b.Run(dbType, func(b *testing.B) {
			db := openDB(b, dbType)
			if err := db.Put(testKey, testValue); err != nil {
				b.Fatal(err)
			}
			b.SetBytes(testValueSize)
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := db.Get(testKey); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkWriteBatch commits batches shaped like the state of one block.
func BenchmarkWriteBatch(b *testing.B) {
	for _, dbType := range database.SupportedDrivers() {
		for _, size := range []int{16, 256} {
			b.Run(fmt.Sprintf("%s/%d", dbType, size), func(b *testing.B) {
				db := openDB(b, dbType)
				var key [12]byte
				copy(key[:], "bal:")
				b.SetBytes(int64(size) * testValueSize)
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					batch := database.NewBatch()
					for j := 0; j < size; j++ {
						binary.BigEndian.PutUint64(key[4:], uint64(i*size+j))
						batch.Put(key[:], testValue)
					}
					if err := db.Write(batch); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}
