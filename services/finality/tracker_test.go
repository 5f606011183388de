// Copyright (c) 2017-2018 The nox developers

package finality

import (
	"testing"
	"time"

	"github.com/noxproject/dposd/core/blockchain"
	"github.com/noxproject/dposd/core/types"
	"github.com/noxproject/dposd/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildChain returns nodes for a chain whose block at height i is produced by
// miners[i%len(miners)].
func buildChain(n int, miners ...types.AccountID) []*blockchain.BlockNode {
	nodes := make([]*blockchain.BlockNode, 0, n)
	var parent *blockchain.BlockNode
	for i := 0; i < n; i++ {
		header := types.BlockHeader{Version: 1, Height: uint32(i),
			Timestamp: time.Unix(1561939200+int64(i)*3, 0)}
		if parent != nil {
			header.PrevBlock = *parent.Hash()
		}
		node := blockchain.NewBlockNode(&header, parent, miners[i%len(miners)])
		nodes = append(nodes, node)
		parent = node
	}
	return nodes
}

func TestLocalFinality(t *testing.T) {
	a, b, c := params.DelegateID("privnet", 0), params.DelegateID("privnet", 1),
		params.DelegateID("privnet", 2)
	tr := NewTracker(3, time.Minute)

	// A single producer never finalizes anything.
	solo := buildChain(6, a)
	tr.RecordNewTip(solo[5])
	h, _ := tr.LocalFinalized()
	assert.Nil(t, h)

	nodes := buildChain(8, a, b, c)
	tr.RecordNewTip(nodes[3])
	h, height := tr.LocalFinalized()
	require.NotNil(t, h)
	assert.Equal(t, uint32(0), height)

	tr.RecordNewTip(nodes[7])
	h, height = tr.LocalFinalized()
	require.NotNil(t, h)
	assert.Equal(t, uint32(4), height)
	assert.True(t, tr.IsFinalized(nodes[4].Hash()))
	assert.False(t, tr.IsFinalized(nodes[3].Hash()))

	// Moving the tip back does not move finality back.
	tr.RecordNewTip(nodes[5])
	_, height = tr.LocalFinalized()
	assert.Equal(t, uint32(4), height)
}

func TestStuckTimeout(t *testing.T) {
	nodes := buildChain(5, params.DelegateID("privnet", 0), params.DelegateID("privnet", 1),
		params.DelegateID("privnet", 2))
	now := time.Unix(1561939200, 0)
	tr := NewTracker(3, 10*time.Second)
	tr.now = func() time.Time { return now }

	tr.RecordNewTip(nodes[4])
	final := nodes[1].Hash()
	require.True(t, tr.IsFinalized(final))
	tr.SetGlobalFinalized(nodes[0].Hash(), 0)

	assert.False(t, tr.TimedOut(), "not stuck yet")
	tr.NotifyFinalityStuck()
	now = now.Add(5 * time.Second)
	tr.NotifyFinalityStuck()
	assert.False(t, tr.TimedOut())

	now = now.Add(5 * time.Second)
	assert.True(t, tr.TimedOut())
	assert.False(t, tr.IsFinalized(final), "local point not released")
	assert.True(t, tr.IsFinalized(nodes[0].Hash()), "global point released")
	assert.True(t, tr.IsGlobalFinalized(nodes[0].Hash()))
	assert.False(t, tr.IsGlobalFinalized(final))
	assert.False(t, tr.TimedOut(), "override applies once")
}

func TestGlobalFinalityMonotonic(t *testing.T) {
	nodes := buildChain(3, params.DelegateID("privnet", 0))
	tr := NewTracker(3, time.Minute)
	tr.SetGlobalFinalized(nodes[2].Hash(), 2)
	tr.SetGlobalFinalized(nodes[1].Hash(), 1)
	h, height := tr.GlobalFinalized()
	require.NotNil(t, h)
	assert.Equal(t, uint32(2), height)
	assert.True(t, tr.IsFinalized(nodes[2].Hash()))
}
