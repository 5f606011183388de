// Copyright (c) 2017-2018 The nox developers

package delegate

import (
	"testing"

	"github.com/noxproject/dposd/core/state"
	"github.com/noxproject/dposd/core/types"
	"github.com/noxproject/dposd/database/ldb"
	"github.com/noxproject/dposd/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDelegates() []types.AccountID {
	return []types.AccountID{
		params.DelegateID("privnet", 0),
		params.DelegateID("privnet", 1),
		params.DelegateID("privnet", 2),
		params.DelegateID("privnet", 3),
	}
}

// newTestCache seeds four candidates with decreasing votes, the first three
// active.
func newTestCache(t *testing.T) *state.Cache {
	db := ldb.NewMemDB()
	t.Cleanup(func() { db.Close() })

	cache := state.NewCache(db)
	ids := testDelegates()
	for i, id := range ids {
		require.NoError(t, cache.PutUint64(state.SubsysVote, state.DelegateKey(id), uint64(100-i)))
	}
	require.NoError(t, cache.SetActiveDelegates(ids[:3]))
	return cache
}

func testBlock(height uint32, miner types.AccountID) *types.Block {
	reward := &types.RewardTx{Version: 1, Height: height, Miner: miner}
	return types.NewBlock(types.BlockHeader{Version: 1, Height: height},
		[]types.Transaction{reward})
}

func TestProducerMustBeActive(t *testing.T) {
	cache := newTestCache(t)
	r := New(&params.PrivNetParams)
	ids := testDelegates()

	require.NoError(t, r.OnBlockConnected(testBlock(1, ids[1]), cache))
	produced, err := cache.GetUint64(state.SubsysDelegate, state.DelegateKey(ids[1]))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), produced)

	assert.Error(t, r.OnBlockConnected(testBlock(2, ids[3]), cache))
}

func TestRoundElection(t *testing.T) {
	cache := newTestCache(t)
	r := New(&params.PrivNetParams)
	ids := testDelegates()

	// The fourth candidate overtakes the third.
	require.NoError(t, cache.PutUint64(state.SubsysVote, state.DelegateKey(ids[3]), 99))
	require.NoError(t, cache.PutUint64(state.SubsysVote, state.DelegateKey(ids[2]), 1))

	require.NoError(t, r.OnBlockConnected(testBlock(2, ids[0]), cache))
	active, err := cache.ActiveDelegates()
	require.NoError(t, err)
	assert.Equal(t, ids[:3], active, "set changed off a round boundary")

	require.NoError(t, r.OnBlockConnected(testBlock(3, ids[0]), cache))
	active, err = cache.ActiveDelegates()
	require.NoError(t, err)
	require.Len(t, active, 3)
	assert.Equal(t, ids[0], active[0])
	assert.ElementsMatch(t, []types.AccountID{ids[0], ids[1], ids[3]}, active)

	ok, err := IsActive(cache, ids[2])
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRotationUndo(t *testing.T) {
	cache := newTestCache(t)
	r := New(&params.PrivNetParams)
	ids := testDelegates()
	require.NoError(t, cache.PutUint64(state.SubsysVote, state.DelegateKey(ids[3]), 200))

	block := testBlock(3, ids[0])
	undo := state.NewTxUndo(block.Transactions[0].TxHash())
	cache.SetUndoSink(undo)
	require.NoError(t, r.OnBlockConnected(block, cache))
	cache.SetUndoSink(nil)

	require.NoError(t, undo.Apply(cache))
	active, err := cache.ActiveDelegates()
	require.NoError(t, err)
	assert.Equal(t, ids[:3], active)
	produced, err := cache.GetUint64(state.SubsysDelegate, state.DelegateKey(ids[0]))
	require.NoError(t, err)
	assert.Zero(t, produced)
}
