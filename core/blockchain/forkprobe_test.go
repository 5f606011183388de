// Copyright (c) 2017-2018 The nox developers

package blockchain

import (
	"testing"

	"github.com/noxproject/dposd/common/hash"
	"github.com/noxproject/dposd/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCompetingBranchOvertakes grows a branch off A1 next to A1..A3.  The
// branch is probed while it has no more work than the active chain and
// activated once it has.
func TestCompetingBranchOvertakes(t *testing.T) {
	h := newChainHarness(t, nil)
	a := h.makeChain(h.params.GenesisBlock, 3, 0)
	h.process(a...)
	c := h.makeChain(a[0], 3, 1)
	h.drain()
	before := dumpState(t, h.db)

	for i, block := range c[:2] {
		isMain, isOrphan, err := h.chain.ProcessBlock(block, BFNone, "")
		require.NoError(t, err, "block %d", i)
		assert.False(t, isMain)
		assert.False(t, isOrphan)
	}
	// C2 only ties A3 and the earlier block keeps the tip.
	h.requireTip(a[2])
	require.Equal(t, 1, h.chain.ForkCacheLen())
	assert.Equal(t, []hash.Hash{*a[0].Hash()}, h.chain.forkCache.Keys())
	assert.Equal(t, before, dumpState(t, h.db))
	assert.Zero(t, countNotes(h.drain(), BlockDisconnected))

	isMain, _, err := h.chain.ProcessBlock(c[2], BFNone, "")
	require.NoError(t, err)
	assert.True(t, isMain)
	h.requireTip(c[2])
	assert.Zero(t, h.chain.ForkCacheLen())

	notes := h.drain()
	assert.Equal(t, 2, countNotes(notes, BlockDisconnected))
	var reorg *ReorganizationNotifyData
	for _, n := range notes {
		if n.Type == Reorganization {
			reorg = n.Data.(*ReorganizationNotifyData)
		}
	}
	require.NotNil(t, reorg)
	assert.Equal(t, *a[2].Hash(), *reorg.OldTip)
	assert.Equal(t, *c[2].Hash(), *reorg.NewTip)
	assert.Equal(t, uint32(3), reorg.OldHeight)
	assert.Equal(t, uint32(4), reorg.NewHeight)
	assert.Equal(t, 2, reorg.Disconnected)
	assert.Equal(t, 3, reorg.Connected)

	assert.Equal(t, uint64(10+10+11+12), h.balance(bob, "NOX"))

	// The transactions of A2 and A3 went back to the pool.
	assert.ElementsMatch(t, []hash.Hash{
		a[1].Transactions[1].TxHash(),
		a[2].Transactions[1].TxHash(),
	}, h.pool.reintroduced)
	dropped := a[2].Transactions[1].TxHash()
	loc, err := h.chain.FetchTxLocation(&dropped)
	require.NoError(t, err)
	assert.Nil(t, loc)
}

func TestForkTooDeep(t *testing.T) {
	h := newChainHarness(t, func(cfg *Config) { cfg.MaxForkDepth = 2 })
	a := h.makeChain(h.params.GenesisBlock, 5, 0)
	h.process(a...)

	deep := h.makeChain(a[0], 1, 1)[0]
	_, _, err := h.chain.ProcessBlock(deep, BFNone, "")
	requireRuleError(t, err, ErrForkTooDeep)
	assert.False(t, h.chain.HaveBlock(deep.Hash()))

	shallow := h.makeChain(a[2], 1, 1)[0]
	_, _, err = h.chain.ProcessBlock(shallow, BFNone, "")
	require.NoError(t, err)
	h.requireTip(a[4])
	assert.True(t, h.chain.HaveBlock(shallow.Hash()))
}

func TestForkCacheBounded(t *testing.T) {
	h := newChainHarness(t, func(cfg *Config) { cfg.ForkCacheSize = 2 })
	a := h.makeChain(h.params.GenesisBlock, 4, 0)
	h.process(a...)

	for i := 0; i < 3; i++ {
		sibling := h.makeChain(a[i], 1, uint32(i+1))[0]
		_, _, err := h.chain.ProcessBlock(sibling, BFNone, "")
		require.NoError(t, err)
	}
	h.requireTip(a[3])
	assert.Equal(t, []hash.Hash{*a[1].Hash(), *a[2].Hash()}, h.chain.forkCache.Keys())
}

// TestForkProbeReplaysBranch checks that a block extending a branch behind
// the cached snapshot tip is checked against its own ancestors.
func TestForkProbeReplaysBranch(t *testing.T) {
	h := newChainHarness(t, nil)
	a := h.makeChain(h.params.GenesisBlock, 4, 0)
	h.process(a...)

	c := h.makeChain(a[0], 2, 1)
	h.process(c...)
	// D forks off C1, away from the cached tip C2.
	d := h.makeChain(c[0], 2, 2)
	h.process(d...)
	h.requireTip(a[3])

	// Replaying the transfer of D1 fails on D's branch only.
	dup := d[0].Transactions[1].(*types.TransferTx)
	bad := h.makeBlock(d[1], 3, dup)
	_, _, err := h.chain.ProcessBlock(bad, BFNone, "")
	requireRuleError(t, err, ErrDuplicateConfirmedTx)

	ok := h.makeBlock(c[1], 3, dup)
	_, _, err = h.chain.ProcessBlock(ok, BFNone, "")
	require.NoError(t, err)
}
