// Copyright (c) 2017-2018 The nox developers

package blockchain

import (
	"testing"

	"github.com/noxproject/dposd/core/state"
	"github.com/noxproject/dposd/core/types"
	"github.com/noxproject/dposd/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireRuleError(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	require.Error(t, err)
	rerr, ok := AsRuleError(err)
	require.True(t, ok, "not a rule error: %v", err)
	require.Equal(t, code, rerr.ErrorCode, "%v", err)
}

func countNotes(notes []*Notification, typ NotificationType) int {
	var n int
	for _, note := range notes {
		if note.Type == typ {
			n++
		}
	}
	return n
}

func TestGenesisSeededOnce(t *testing.T) {
	h := newChainHarness(t, nil)
	genesis := h.params.GenesisBlock
	h.requireTip(genesis)
	assert.Equal(t, uint64(1000000000), h.balance(params.PrivNetRichAccount, "NOX"))
	assert.Equal(t, uint64(1000000000), h.balance(params.PrivNetRichAccount, "NUSD"))

	blocks := h.makeChain(genesis, 2, 0)
	h.process(blocks...)
	h.requireTip(blocks[1])

	h.reopen()
	h.requireTip(blocks[1])
	best := h.chain.BestSnapshot()
	assert.Equal(t, uint32(2), best.Height)
	assert.Equal(t, uint64(len(genesis.Transactions)+4), best.TotalTxns)

	// Loading again must not apply the allocation a second time.
	assert.Equal(t, uint64(1000000000-10-1000-11-1000),
		h.balance(params.PrivNetRichAccount, "NOX"))
	assert.Equal(t, uint64(21), h.balance(bob, "NOX"))
	assert.Equal(t, uint64(2*(1000-testRunStep)), h.balance(testMiner, "NOX"))

	err := h.chain.ReadState(func(view *state.Cache) error {
		active, err := view.ActiveDelegates()
		if err != nil {
			return err
		}
		assert.Equal(t, []types.AccountID{
			params.DelegateID("privnet", 0),
			params.DelegateID("privnet", 1),
			params.DelegateID("privnet", 2),
		}, active)
		return nil
	})
	require.NoError(t, err)

	got, err := h.chain.BlockByHeight(1)
	require.NoError(t, err)
	assert.Equal(t, *blocks[0].Hash(), *got.Hash())
}

func TestProcessBlockNotifications(t *testing.T) {
	h := newChainHarness(t, nil)
	block := h.makeChain(h.params.GenesisBlock, 1, 0)[0]

	isMain, isOrphan, err := h.chain.ProcessBlock(block, BFNone, "")
	require.NoError(t, err)
	assert.True(t, isMain)
	assert.False(t, isOrphan)

	notes := h.drain()
	require.Len(t, notes, 2)
	assert.Equal(t, BlockAccepted, notes[0].Type)
	assert.Equal(t, block, notes[0].Data.(*BlockAcceptedNotifyData).Block)
	assert.Equal(t, BlockConnected, notes[1].Type)
	assert.Equal(t, block, notes[1].Data.(*types.Block))

	txHash := block.Transactions[1].TxHash()
	require.Len(t, h.pool.included, 1)
	assert.Equal(t, txHash, h.pool.included[0])

	loc, err := h.chain.FetchTxLocation(&txHash)
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, *block.Hash(), loc.Block)
}

func TestDuplicateBlock(t *testing.T) {
	h := newChainHarness(t, nil)
	blocks := h.makeChain(h.params.GenesisBlock, 3, 0)
	h.process(blocks[0])

	_, _, err := h.chain.ProcessBlock(blocks[0], BFNone, "")
	requireRuleError(t, err, ErrDuplicateBlock)

	_, isOrphan, err := h.chain.ProcessBlock(blocks[2], BFNone, "")
	require.NoError(t, err)
	require.True(t, isOrphan)
	_, _, err = h.chain.ProcessBlock(blocks[2], BFNone, "")
	requireRuleError(t, err, ErrDuplicateBlock)

	_, _, err = h.chain.ProcessBlock(h.params.GenesisBlock, BFNone, "")
	requireRuleError(t, err, ErrDuplicateBlock)
}

func TestOrphanConnectsWhenParentArrives(t *testing.T) {
	h := newChainHarness(t, nil)
	blocks := h.makeChain(h.params.GenesisBlock, 3, 0)

	for _, b := range []*types.Block{blocks[2], blocks[1]} {
		isMain, isOrphan, err := h.chain.ProcessBlock(b, BFNone, "peer1")
		require.NoError(t, err)
		assert.False(t, isMain)
		assert.True(t, isOrphan)
	}
	assert.Equal(t, 2, h.chain.OrphanCount())
	assert.Equal(t, *blocks[1].Hash(), *h.chain.GetOrphanRoot(blocks[2].Hash()))

	// The peer is asked for the blocks below the lowest missing one.
	require.Len(t, h.syncer.requests, 2)
	assert.Equal(t, syncRequest{source: "peer1", stop: *blocks[2].Hash()}, h.syncer.requests[0])
	assert.Equal(t, syncRequest{source: "peer1", stop: *blocks[1].Hash()}, h.syncer.requests[1])

	isMain, isOrphan, err := h.chain.ProcessBlock(blocks[0], BFNone, "peer1")
	require.NoError(t, err)
	assert.True(t, isMain)
	assert.False(t, isOrphan)
	h.requireTip(blocks[2])
	assert.Zero(t, h.chain.OrphanCount())
	assert.Equal(t, 3, countNotes(h.drain(), BlockConnected))
	assert.Len(t, h.syncer.requests, 2)
}

func TestLocalOrphanRequestsNothing(t *testing.T) {
	h := newChainHarness(t, nil)
	blocks := h.makeChain(h.params.GenesisBlock, 2, 0)
	_, isOrphan, err := h.chain.ProcessBlock(blocks[1], BFNone, "")
	require.NoError(t, err)
	assert.True(t, isOrphan)
	assert.Empty(t, h.syncer.requests)
}

func TestOrphanEviction(t *testing.T) {
	h := newChainHarness(t, func(cfg *Config) { cfg.MaxOrphanBlocks = 2 })
	blocks := h.makeChain(h.params.GenesisBlock, 5, 0)

	addOrphan := func(b *types.Block) error {
		_, isOrphan, err := h.chain.ProcessBlock(b, BFNone, "")
		if err == nil {
			require.True(t, isOrphan)
		}
		return err
	}
	require.NoError(t, addOrphan(blocks[4]))
	require.NoError(t, addOrphan(blocks[3]))

	// A full pool makes room by dropping the highest orphan.
	require.NoError(t, addOrphan(blocks[2]))
	assert.False(t, h.chain.IsKnownOrphan(blocks[4].Hash()))
	assert.True(t, h.chain.IsKnownOrphan(blocks[3].Hash()))
	require.NoError(t, addOrphan(blocks[1]))
	assert.False(t, h.chain.IsKnownOrphan(blocks[3].Hash()))
	assert.Equal(t, 2, h.chain.OrphanCount())

	// Nothing held is higher than the newcomer.
	requireRuleError(t, addOrphan(blocks[4]), ErrOrphanLimit)

	h.process(blocks[0])
	h.requireTip(blocks[2])
	assert.Zero(t, h.chain.OrphanCount())
}

func TestOrphanEvictionKeepsNextBlock(t *testing.T) {
	h := newChainHarness(t, func(cfg *Config) { cfg.MaxOrphanBlocks = 1 })
	genesis := h.params.GenesisBlock
	blocks := h.makeChain(genesis, 2, 0)
	side := h.makeChain(genesis, 1, 1)
	h.process(side...)

	// A height one block whose parent nobody knows.
	unknown := types.NewBlock(types.BlockHeader{
		Version:   h.params.BlockVersion,
		Timestamp: genesis.Header.Timestamp,
		Nonce:     5,
	}, nil)
	stray := h.makeBlock(unknown, 0)

	// The held orphan is the block the chain needs next, so it is not
	// evicted for a lower one.
	_, isOrphan, err := h.chain.ProcessBlock(blocks[1], BFNone, "")
	require.NoError(t, err)
	require.True(t, isOrphan)
	_, _, err = h.chain.ProcessBlock(stray, BFNone, "")
	requireRuleError(t, err, ErrOrphanLimit)
	assert.True(t, h.chain.IsKnownOrphan(blocks[1].Hash()))
	assert.False(t, h.chain.IsKnownOrphan(stray.Hash()))
}

func TestBadFuelRateRejected(t *testing.T) {
	h := newChainHarness(t, nil)
	good := h.makeChain(h.params.GenesisBlock, 2, 0)

	bad := types.NewBlock(good[0].Header, good[0].Transactions)
	bad.Header.FuelRate++
	bad = resign(bad)
	_, _, err := h.chain.ProcessBlock(bad, BFNone, "")
	requireRuleError(t, err, ErrBadFuelRate)
	h.requireTip(h.params.GenesisBlock)

	_, _, err = h.chain.ProcessBlock(bad, BFNone, "")
	requireRuleError(t, err, ErrKnownInvalidBlock)

	child := h.makeBlock(bad, 0)
	_, isOrphan, err := h.chain.ProcessBlock(child, BFNone, "")
	requireRuleError(t, err, ErrInvalidAncestorBlock)
	assert.False(t, isOrphan)

	h.process(good...)
	h.requireTip(good[1])
}

// TestRejectedRewardLeavesTip builds B1..B3, steps back to B2 and offers a
// replacement for B3 that overpays its producer.
func TestRejectedRewardLeavesTip(t *testing.T) {
	h := newChainHarness(t, nil)
	blocks := h.makeChain(h.params.GenesisBlock, 3, 0)
	h.process(blocks...)
	require.NoError(t, h.chain.InvalidateBlock(blocks[2].Hash()))
	h.requireTip(blocks[1])
	before := dumpState(t, h.db)

	bad := h.makeBlock(blocks[1], 1, transfer(99, 1000, 77))
	reward := *bad.Transactions[0].(*types.RewardTx)
	reward.Rewards = []types.Coin{{Symbol: "NOX", Amount: reward.Rewards[0].Amount + 1}}
	bad.Transactions[0] = &reward
	bad = resign(bad)

	isMain, _, err := h.chain.ProcessBlock(bad, BFNone, "")
	requireRuleError(t, err, ErrBadReward)
	assert.False(t, isMain)
	h.requireTip(blocks[1])
	assert.Equal(t, before, dumpState(t, h.db))

	require.NoError(t, h.chain.ReconsiderBlock(blocks[2].Hash()))
	h.requireTip(blocks[2])
	assert.Equal(t, uint64(10+11+12), h.balance(bob, "NOX"))
}

func TestBadRewardOnForkRejected(t *testing.T) {
	h := newChainHarness(t, nil)
	blocks := h.makeChain(h.params.GenesisBlock, 3, 0)
	h.process(blocks...)
	before := dumpState(t, h.db)

	// A sibling of the tip is only probed, never connected.
	bad := h.makeBlock(blocks[1], 1, transfer(99, 1000, 77))
	reward := *bad.Transactions[0].(*types.RewardTx)
	reward.Rewards = nil
	bad.Transactions[0] = &reward
	bad = resign(bad)

	_, _, err := h.chain.ProcessBlock(bad, BFNone, "")
	requireRuleError(t, err, ErrBadReward)
	h.requireTip(blocks[2])
	assert.Equal(t, before, dumpState(t, h.db))
	assert.Zero(t, countNotes(h.drain(), BlockDisconnected))
}
