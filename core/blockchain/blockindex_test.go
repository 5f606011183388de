// Copyright (c) 2017-2018 The nox developers

package blockchain

import (
	"testing"
	"time"

	"github.com/noxproject/dposd/core/types"
	"github.com/noxproject/dposd/database/ldb"
	"github.com/noxproject/dposd/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// headerChain returns the genesis header followed by n headers on top of it.
func headerChain(par *params.Params, n int) []types.BlockHeader {
	headers := []types.BlockHeader{par.GenesisBlock.Header}
	for i := 1; i <= n; i++ {
		prev := headers[i-1]
		headers = append(headers, types.BlockHeader{
			Version:   par.BlockVersion,
			PrevBlock: prev.BlockHash(),
			Timestamp: prev.Timestamp.Add(time.Second),
			Height:    uint32(i),
		})
	}
	return headers
}

// naiveAncestor walks parent links only.
func naiveAncestor(node *BlockNode, height uint32) *BlockNode {
	for node != nil && node.height > height {
		node = node.parent
	}
	return node
}

func TestInsertOutOfOrderBuildsSkips(t *testing.T) {
	par := params.PrivNetParams
	bi := newBlockIndex(ldb.NewMemDB(), &par)
	headers := headerChain(&par, 64)

	for i := 2; i < len(headers); i++ {
		bi.Insert(&headers[i])
	}
	first := bi.Insert(&headers[1])
	// Headers 1..64 form a subtree still cut off from genesis.
	assert.Nil(t, first.parent)
	bi.Insert(&headers[0])
	assert.NotNil(t, first.parent)

	h := headers[64].BlockHash()
	tip := bi.LookupNode(&h)
	require.NotNil(t, tip)
	assert.True(t, naiveAncestor(tip, 0) == bi.LookupNode(par.GenesisHash))

	for n := tip; n.height > 0; n = n.parent {
		require.NotNil(t, n.parent, "height %d", n.height)
		want := naiveAncestor(n.parent, skipHeight(n.height))
		assert.True(t, n.skip == want, "skip of height %d", n.height)
		assert.Equal(t, uint64(n.height)+1, n.workSum)
	}
	for i, n := range bi.nodes {
		assert.Equal(t, NodeID(i), n.ID())
	}
}

func TestInsertOutOfOrderMarksInvalidDescendants(t *testing.T) {
	par := params.PrivNetParams
	bi := newBlockIndex(ldb.NewMemDB(), &par)
	headers := headerChain(&par, 5)
	bi.Insert(&headers[0])
	bad := bi.Insert(&headers[1])
	bi.SetStatusFlags(bad, statusValidateFailed)

	var late []*BlockNode
	for i := 3; i < len(headers); i++ {
		late = append(late, bi.Insert(&headers[i]))
	}
	for _, n := range late {
		assert.False(t, n.status.KnownInvalid())
	}

	bi.Insert(&headers[2])
	for _, n := range late {
		assert.True(t, n.status.KnownInvalid(), "height %d", n.height)
		assert.Equal(t, uint64(n.height)+1, n.workSum)
	}
}
