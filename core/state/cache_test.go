// Copyright (c) 2017-2018 The nox developers

package state

import (
	"testing"

	"github.com/noxproject/dposd/common/hash"
	"github.com/noxproject/dposd/core/types"
	"github.com/noxproject/dposd/database"
	"github.com/noxproject/dposd/database/ldb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = types.NewAccountIDFromName("alice")
	bob   = types.NewAccountIDFromName("bob")
)

// dumpDB returns every key/value of db.
func dumpDB(t *testing.T, db database.DB) map[string]string {
	out := make(map[string]string)
	err := db.ForEach(nil, func(k, v []byte) error {
		out[string(k)] = string(v)
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestReadThrough(t *testing.T) {
	db := ldb.NewMemDB()
	defer db.Close()

	root := NewCache(db)
	require.NoError(t, root.SetBalance(alice, "NOX", 10))
	require.NoError(t, root.Flush())

	child := NewCache(db).NewChild()
	bal, err := child.Balance(alice, "NOX")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), bal)

	require.NoError(t, child.SetBalance(alice, "NOX", 4))
	bal, err = child.Parent().Balance(alice, "NOX")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), bal, "write leaked into parent before flush")

	require.NoError(t, child.Delete(SubsysAccount, AccountKey(alice, "NOX")))
	ok, err := child.Has(SubsysAccount, AccountKey(alice, "NOX"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNestedFlush(t *testing.T) {
	db := ldb.NewMemDB()
	defer db.Close()

	root := NewCache(db)
	mid := root.NewChild()
	leaf := mid.NewChild()

	require.NoError(t, leaf.SetBalance(bob, "NOX", 7))
	leaf.SetBestBlock(&hash.Hash{1})
	require.NoError(t, leaf.Flush())
	assert.Equal(t, 0, leaf.Len())
	require.NoError(t, mid.Flush())

	_, err := db.Get(SubsysAccount.dbKey(AccountKey(bob, "NOX")))
	assert.Equal(t, database.ErrNotFound, err, "root must not have written yet")

	require.NoError(t, root.Flush())
	fresh := NewCache(db)
	bal, err := fresh.Balance(bob, "NOX")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), bal)
	best, err := fresh.BestBlock()
	require.NoError(t, err)
	assert.Equal(t, hash.Hash{1}, best)
}

func TestForEachMergesLayers(t *testing.T) {
	db := ldb.NewMemDB()
	defer db.Close()

	root := NewCache(db)
	require.NoError(t, root.PutUint64(SubsysVote, []byte("a"), 1))
	require.NoError(t, root.PutUint64(SubsysVote, []byte("b"), 2))
	require.NoError(t, root.Flush())

	child := NewCache(db).NewChild()
	require.NoError(t, child.PutUint64(SubsysVote, []byte("c"), 3))
	require.NoError(t, child.Delete(SubsysVote, []byte("a")))

	var keys []string
	err := child.ForEach(SubsysVote, nil, func(k, v []byte) error {
		keys = append(keys, string(k))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, keys)
}

func TestCloneIsIndependent(t *testing.T) {
	c := NewCache(nil)
	require.NoError(t, c.SetBalance(alice, "NOX", 1))
	clone := c.Clone()
	require.NoError(t, clone.SetBalance(alice, "NOX", 2))

	bal, err := c.Balance(alice, "NOX")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), bal)
}

func TestUndoRoundTrip(t *testing.T) {
	db := ldb.NewMemDB()
	defer db.Close()

	base := NewCache(db)
	require.NoError(t, base.SetBalance(alice, "NOX", 100))
	require.NoError(t, base.SetFeeSymbols([]string{"NOX"}))
	base.SetBestBlock(&hash.Hash{0xaa})
	require.NoError(t, base.Flush())
	before := dumpDB(t, db)

	view := NewCache(db)
	undo := &BlockUndo{}

	tx1 := NewTxUndo(hash.Hash{1})
	view.SetUndoSink(tx1)
	require.NoError(t, view.SetBalance(alice, "NOX", 60))
	require.NoError(t, view.SetBalance(bob, "NOX", 40))
	undo.TxUndos = append(undo.TxUndos, tx1)

	tx2 := NewTxUndo(hash.Hash{2})
	view.SetUndoSink(tx2)
	require.NoError(t, view.SetBalance(alice, "NOX", 0))
	require.NoError(t, view.SetBalance(bob, "NOX", 100))
	require.NoError(t, view.SetFeeSymbols([]string{"NOX", "USD"}))
	undo.TxUndos = append(undo.TxUndos, tx2)
	view.SetUndoSink(nil)
	view.SetBestBlock(&hash.Hash{0xbb})
	require.NoError(t, view.Flush())
	assert.NotEqual(t, before, dumpDB(t, db))

	decoded, err := NewBlockUndoFromBytes(undo.Bytes())
	require.NoError(t, err)
	require.Len(t, decoded.TxUndos, 2)
	assert.Len(t, decoded.TxUndos[1].OpsFor(SubsysAccount), 2)

	view = NewCache(db)
	require.NoError(t, decoded.Apply(view))
	view.SetBestBlock(&hash.Hash{0xaa})
	require.NoError(t, view.Flush())
	assert.Equal(t, before, dumpDB(t, db))
}

func TestUndoRejectsUnknownSubsystem(t *testing.T) {
	undo := &BlockUndo{TxUndos: []*TxUndo{{
		Ops: []UndoOp{{Subsystem: SubsysReceipt, Key: []byte("k")}},
	}}}
	raw := undo.Bytes()
	// count, hash, op count, subsystem
	raw[1+hash.HashSize+1] = byte(numSubsystems)
	_, err := NewBlockUndoFromBytes(raw)
	assert.Error(t, err)
}

func TestSubsystemPrefixesDistinct(t *testing.T) {
	seen := make(map[string]Subsystem)
	for _, sub := range Subsystems() {
		p := string(sub.Prefix())
		require.Len(t, p, 4, sub.String())
		if other, ok := seen[p]; ok {
			t.Fatalf("%v and %v share prefix %q", sub, other, p)
		}
		seen[p] = sub
	}
}
