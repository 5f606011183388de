// Copyright (c) 2017-2018 The nox developers

// Package dbtest holds the conformance checks every database driver must
// pass.
package dbtest

import (
	"bytes"
	"testing"

	"github.com/noxproject/dposd/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDatabaseSuite runs the conformance checks against db.  The database
// must be empty.
func TestDatabaseSuite(t *testing.T, db database.DB) {
	t.Run("PutGet", func(t *testing.T) {
		require.NoError(t, db.Put([]byte("k1"), []byte("v1")))
		v, err := db.Get([]byte("k1"))
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), v)

		ok, err := db.Has([]byte("k1"))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := db.Get([]byte("missing"))
		assert.Equal(t, database.ErrNotFound, err)
		assert.False(t, database.IsStoreError(err))

		ok, err := db.Has([]byte("missing"))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, db.Put([]byte("del"), []byte("x")))
		require.NoError(t, db.Delete([]byte("del")))
		_, err := db.Get([]byte("del"))
		assert.Equal(t, database.ErrNotFound, err)
	})

	t.Run("Batch", func(t *testing.T) {
		require.NoError(t, db.Put([]byte("b/gone"), []byte("x")))

		batch := database.NewBatch()
		batch.Put([]byte("b/1"), []byte("one"))
		batch.Put([]byte("b/2"), []byte("two"))
		batch.Delete([]byte("b/gone"))
		batch.Put([]byte("b/1"), []byte("uno"))
		require.Equal(t, 4, batch.Len())
		require.NoError(t, db.Write(batch))

		v, err := db.Get([]byte("b/1"))
		require.NoError(t, err)
		assert.Equal(t, []byte("uno"), v)
		v, err = db.Get([]byte("b/2"))
		require.NoError(t, err)
		assert.Equal(t, []byte("two"), v)
		_, err = db.Get([]byte("b/gone"))
		assert.Equal(t, database.ErrNotFound, err)
	})

	t.Run("ForEach", func(t *testing.T) {
		require.NoError(t, db.Put([]byte("p/a"), []byte("1")))
		require.NoError(t, db.Put([]byte("p/b"), []byte("2")))
		require.NoError(t, db.Put([]byte("q/a"), []byte("3")))

		var keys [][]byte
		err := db.ForEach([]byte("p/"), func(k, v []byte) error {
			keys = append(keys, append([]byte{}, k...))
			return nil
		})
		require.NoError(t, err)
		require.Len(t, keys, 2)
		assert.True(t, bytes.Equal(keys[0], []byte("p/a")))
		assert.True(t, bytes.Equal(keys[1], []byte("p/b")))
	})
}
