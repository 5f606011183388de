// Copyright (c) 2017-2018 The nox developers

package blockchain

import (
	"testing"

	"github.com/noxproject/dposd/common/hash"
	"github.com/noxproject/dposd/core/state"
	"github.com/noxproject/dposd/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dumpStateNoTxIndex drops the transaction index, whose entries point into
// the block files and so depend on the order blocks were stored in.
func dumpStateNoTxIndex(t *testing.T, h *chainHarness) map[string]string {
	out := dumpState(t, h.db)
	prefix := string(state.SubsysTxIndex.Prefix())
	for k := range out {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(out, k)
		}
	}
	return out
}

func TestFinalizedBlockNotDisconnected(t *testing.T) {
	h := newChainHarness(t, nil)
	a := h.makeChain(h.params.GenesisBlock, 3, 0)
	h.process(a...)
	h.finality.finalized[*a[1].Hash()] = true

	c := h.makeChain(a[0], 3, 1)
	for _, block := range c {
		isMain, _, err := h.chain.ProcessBlock(block, BFNone, "")
		require.NoError(t, err)
		assert.False(t, isMain)
	}
	h.requireTip(a[2])
	assert.Equal(t, 1, h.finality.stuck)
	assert.Zero(t, countNotes(h.drain(), BlockDisconnected))

	// Nothing changed, so nothing moves.
	require.NoError(t, h.chain.ActivateBestChain())
	h.requireTip(a[2])
	assert.Equal(t, 2, h.finality.stuck)

	// Once the vote times out the better branch wins.
	h.finality.timedOut = true
	require.NoError(t, h.chain.ActivateBestChain())
	h.requireTip(c[2])
	assert.Equal(t, 2, countNotes(h.drain(), BlockDisconnected))
}

func TestGlobalFinalityKeepsTimeout(t *testing.T) {
	h := newChainHarness(t, nil)
	a := h.makeChain(h.params.GenesisBlock, 3, 0)
	h.process(a...)
	h.finality.global[*a[1].Hash()] = true
	h.finality.timedOut = true

	// The network agreed on A2, so the armed timeout is not spent on it.
	c := h.makeChain(a[0], 3, 1)
	h.process(c...)
	h.requireTip(a[2])
	assert.Equal(t, 1, h.finality.stuck)
	assert.True(t, h.finality.timedOut)

	// Local finality alone is released by the armed timeout.
	delete(h.finality.global, *a[1].Hash())
	h.finality.finalized[*a[1].Hash()] = true
	require.NoError(t, h.chain.ActivateBestChain())
	h.requireTip(c[2])
	assert.False(t, h.finality.timedOut)
}

func TestFinalizedForkPointAllowsReorg(t *testing.T) {
	h := newChainHarness(t, nil)
	a := h.makeChain(h.params.GenesisBlock, 3, 0)
	h.process(a...)
	// Only blocks above the fork point are disconnected.
	h.finality.finalized[*a[0].Hash()] = true

	c := h.makeChain(a[0], 3, 1)
	h.process(c...)
	h.requireTip(c[2])
	assert.Zero(t, h.finality.stuck)
}

func TestDisconnectRestoresState(t *testing.T) {
	h := newChainHarness(t, nil)
	a := h.makeChain(h.params.GenesisBlock, 3, 0)
	h.process(a[:2]...)
	before := dumpState(t, h.db)

	h.process(a[2])
	require.NotEqual(t, before, dumpState(t, h.db))
	require.NoError(t, h.chain.InvalidateBlock(a[2].Hash()))
	h.requireTip(a[1])
	assert.Equal(t, before, dumpState(t, h.db))
}

func TestInvalidateAndReconsider(t *testing.T) {
	h := newChainHarness(t, nil)
	a := h.makeChain(h.params.GenesisBlock, 3, 0)
	h.process(a...)
	c := h.makeChain(a[0], 2, 1)
	h.process(c...)
	h.requireTip(a[2])

	// A2 and A3 become invalid and C2 is the best valid tip left.
	require.NoError(t, h.chain.InvalidateBlock(a[1].Hash()))
	h.requireTip(c[1])
	_, _, err := h.chain.ProcessBlock(h.makeBlock(a[2], 0), BFNone, "")
	requireRuleError(t, err, ErrInvalidAncestorBlock)

	// A3 arrived first, so it takes the tip back on a tie.
	require.NoError(t, h.chain.ReconsiderBlock(a[1].Hash()))
	h.requireTip(a[2])

	assert.Error(t, h.chain.InvalidateBlock(h.params.GenesisHash))
	assert.Error(t, h.chain.ReconsiderBlock(&hash.Hash{0xff}))
}

func TestReorgDeterministic(t *testing.T) {
	h1 := newChainHarness(t, nil)
	a := h1.makeChain(h1.params.GenesisBlock, 3, 0)
	h1.process(a...)
	c := h1.makeChain(a[0], 3, 1)
	h1.process(c...)
	h1.requireTip(c[2])

	// A node that only ever saw the winning branch ends in the same state.
	h2 := newChainHarness(t, nil)
	h2.process(a[0])
	h2.process(c...)
	h2.requireTip(c[2])

	assert.Equal(t, dumpStateNoTxIndex(t, h2), dumpStateNoTxIndex(t, h1))
	assert.Equal(t, h2.chain.BestSnapshot().TotalTxns, h1.chain.BestSnapshot().TotalTxns)
}

func TestReorgSurvivesRestart(t *testing.T) {
	h := newChainHarness(t, nil)
	a := h.makeChain(h.params.GenesisBlock, 3, 0)
	h.process(a...)
	c := h.makeChain(a[0], 3, 1)
	h.process(c...)
	want := dumpState(t, h.db)

	h.reopen()
	h.requireTip(c[2])
	assert.Equal(t, want, dumpState(t, h.db))
	assert.Equal(t, uint64(1000000000-4*1000-10-10-11-12),
		h.balance(params.PrivNetRichAccount, "NOX"))

	// Side blocks are still known after the restart.
	assert.True(t, h.chain.HaveBlock(a[2].Hash()))
	got, err := h.chain.BlockByHash(a[2].Hash())
	require.NoError(t, err)
	assert.Equal(t, *a[2].Hash(), *got.Hash())

	// The old branch can still overtake again.
	more := h.makeChain(a[2], 2, 0)
	h.process(more...)
	h.requireTip(more[1])
}
