// Copyright (c) 2017-2018 The nox developers
// Copyright (c) 2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"testing"

	"github.com/noxproject/dposd/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// branch returns n nodes extending parent.  nonce tells branches apart.
func branch(parent *BlockNode, n int, nonce uint32) []*BlockNode {
	nodes := make([]*BlockNode, 0, n)
	for i := 0; i < n; i++ {
		header := &types.BlockHeader{
			PrevBlock: parent.hash,
			Height:    parent.height + 1,
			Nonce:     nonce,
		}
		parent = NewBlockNode(header, parent, types.AccountID{})
		nodes = append(nodes, parent)
	}
	return nodes
}

func tipOf(nodes []*BlockNode) *BlockNode {
	return nodes[len(nodes)-1]
}

func TestChainView(t *testing.T) {
	//   genesis -> 1 -> ... -> 5 -> 6  -> 7  -> 8
	//                           \-> 6a -> 7a
	best := linearNodes(9)
	side := branch(best[5], 2, 1)

	view := newChainView(tipOf(best))
	assert.Equal(t, int64(8), view.Height())
	assert.True(t, best[0] == view.Genesis())
	assert.True(t, best[8] == view.Tip())
	assert.True(t, best[3] == view.NodeByHeight(3))
	assert.Nil(t, view.NodeByHeight(9))

	assert.True(t, view.Contains(best[7]))
	assert.False(t, view.Contains(side[0]))
	assert.True(t, best[6] == view.Next(best[5]))
	assert.Nil(t, view.Next(best[8]))
	assert.Nil(t, view.Next(side[1]))

	assert.True(t, best[5] == view.FindFork(side[1]))
	assert.True(t, best[7] == view.FindFork(best[7]))
	assert.Nil(t, view.FindFork(nil))

	// Moving to the side branch keeps the shared prefix.
	view.SetTip(side[1])
	assert.Equal(t, int64(7), view.Height())
	assert.True(t, best[5] == view.NodeByHeight(5))
	assert.True(t, side[0] == view.NodeByHeight(6))
	assert.False(t, view.Contains(best[6]))
	assert.True(t, best[5] == view.FindFork(best[8]))

	view.SetTip(nil)
	assert.Equal(t, int64(-1), view.Height())
	assert.Nil(t, view.Tip())
	assert.Nil(t, view.FindFork(best[3]))
}

func TestFindForkUnrelatedChain(t *testing.T) {
	view := newChainView(tipOf(linearNodes(5)))
	other := NewBlockNode(&types.BlockHeader{Height: 0, Nonce: 9}, nil, types.AccountID{})
	other = tipOf(append([]*BlockNode{other}, branch(other, 4, 9)...))
	assert.Nil(t, view.FindFork(other))
}

func TestFindForkShorterBranch(t *testing.T) {
	best := linearNodes(30)
	side := branch(best[2], 3, 1)
	view := newChainView(tipOf(best))
	assert.True(t, best[2] == view.FindFork(tipOf(side)))
	assert.True(t, best[2] == view.FindFork(side[0]))
}

func TestBlockLocator(t *testing.T) {
	best := linearNodes(100)
	side := branch(best[80], 10, 1)
	view := newChainView(tipOf(best))

	locator := view.BlockLocator(nil)
	require.NotEmpty(t, locator)
	// Dense entries first, then doubling steps down to genesis.
	heights := make([]uint32, 0, len(locator))
	for _, h := range locator {
		heights = append(heights, uint32(0))
		for _, n := range best {
			if n.hash == *h {
				heights[len(heights)-1] = n.height
			}
		}
	}
	want := []uint32{99, 98, 97, 96, 95, 94, 93, 92, 91, 90, 89, 88, 86, 82, 74, 58, 26, 0}
	assert.Equal(t, want, heights)
	assert.Equal(t, best[0].hash, *locator[len(locator)-1])

	sideLocator := view.BlockLocator(tipOf(side))
	assert.Equal(t, tipOf(side).hash, *sideLocator[0])
	assert.Equal(t, best[0].hash, *sideLocator[len(sideLocator)-1])

	assert.Nil(t, newChainView(nil).BlockLocator(nil))
}
