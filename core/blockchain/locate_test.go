// Copyright (c) 2017-2018 The nox developers

package blockchain

import (
	"testing"

	"github.com/noxproject/dposd/common/hash"
	"github.com/noxproject/dposd/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blockHashes(blocks []*types.Block) []hash.Hash {
	out := make([]hash.Hash, len(blocks))
	for i, b := range blocks {
		out[i] = *b.Hash()
	}
	return out
}

func TestLocateBlocks(t *testing.T) {
	h := newChainHarness(t, nil)
	a := h.makeChain(h.params.GenesisBlock, 5, 0)
	h.process(a...)
	side := h.makeChain(a[1], 1, 1)
	h.process(side...)

	locator := h.chain.BlockLocatorFromHash(a[1].Hash())
	require.NotEmpty(t, locator)
	assert.Equal(t, *a[1].Hash(), *locator[0])
	assert.Equal(t, *h.params.GenesisHash, *locator[len(locator)-1])

	tests := []struct {
		name    string
		locator BlockLocator
		stop    *hash.Hash
		max     uint32
		want    []hash.Hash
	}{
		{"after locator", locator, nil, 10, blockHashes(a[2:])},
		{"up to stop", locator, a[3].Hash(), 10, blockHashes(a[2:4])},
		{"capped", locator, nil, 1, blockHashes(a[2:3])},
		{"stop only", nil, a[2].Hash(), 10, blockHashes(a[2:3])},
		{"unknown stop only", nil, &hash.Hash{0xff}, 10, nil},
		{"unknown locator", BlockLocator{&hash.Hash{0xff}}, nil, 10, blockHashes(a)},
		{"side block", h.chain.BlockLocatorFromHash(side[0].Hash()), nil, 10, blockHashes(a[2:])},
		{"at tip", h.chain.LatestBlockLocator(), nil, 10, nil},
	}
	for _, test := range tests {
		got := h.chain.LocateBlocks(test.locator, test.stop, test.max)
		assert.Equal(t, test.want, got, test.name)

		headers := h.chain.LocateHeaders(test.locator, test.stop, test.max)
		require.Len(t, headers, len(test.want), test.name)
		for i := range headers {
			assert.Equal(t, test.want[i], headers[i].BlockHash(), test.name)
		}
	}

	unknown := hash.Hash{0xee}
	assert.Equal(t, BlockLocator{&unknown}, h.chain.BlockLocatorFromHash(&unknown))
}

func TestLargeForkWarning(t *testing.T) {
	h := newChainHarness(t, nil)
	a := h.makeChain(h.params.GenesisBlock, 12, 0)
	h.process(a...)
	assert.Equal(t, ForkWarningNone, h.chain.ForkWarning())

	// Seven blocks of work past the fork point are tolerated.
	c := h.makeChain(a[0], 8, 1)
	h.process(c[:7]...)
	h.requireTip(a[11])
	assert.Equal(t, ForkWarningNone, h.chain.ForkWarning())

	h.process(c[7])
	h.requireTip(a[11])
	assert.Equal(t, ForkWarningLargeFork, h.chain.ForkWarning())
	assert.Equal(t, "large-work fork", h.chain.ForkWarning().String())
}
