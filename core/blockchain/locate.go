// Copyright (c) 2017-2018 The nox developers
// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"github.com/noxproject/dposd/common/hash"
	"github.com/noxproject/dposd/core/types"
)

// LatestBlockLocator returns a block locator for the latest known tip of the
// main (best) chain.
//
// This function is safe for concurrent access.
func (b *BlockChain) LatestBlockLocator() BlockLocator {
	b.chainLock.RLock()
	locator := b.bestChain.BlockLocator(nil)
	b.chainLock.RUnlock()
	return locator
}

// BlockLocatorFromHash returns a block locator for the passed block hash.
// See BlockLocator for details on the algorithm used to create a block
// locator.  An unknown hash yields a locator of just that hash.
//
// This function is safe for concurrent access.
func (b *BlockChain) BlockLocatorFromHash(h *hash.Hash) BlockLocator {
	b.chainLock.RLock()
	defer b.chainLock.RUnlock()
	node := b.index.LookupNode(h)
	if node == nil {
		return BlockLocator{h}
	}
	return b.bestChain.BlockLocator(node)
}

// locateInventory returns the node of the block after the first known block
// in the locator along with the number of subsequent nodes needed to either
// reach the provided stop hash or the provided max number of entries.
//
// In addition, there are two special cases:
//
//   - When no locators are provided, the stop hash is treated as a request for
//     that block, so it will either return the node associated with the stop
//     hash if it is known, or nil if it is unknown
//   - When locators are provided, but none of them are known, nodes starting
//     after the genesis block will be returned
//
// This function MUST be called with the chain state lock held (for reads).
func (b *BlockChain) locateInventory(locator BlockLocator, hashStop *hash.Hash, maxEntries uint32) (*BlockNode, uint32) {
	// There are no block locators so a specific block is being requested
	// as identified by the stop hash.
	var stopNode *BlockNode
	if hashStop != nil {
		stopNode = b.index.LookupNode(hashStop)
	}
	if len(locator) == 0 {
		if stopNode == nil {
			// No blocks with the stop hash were found so there is
			// nothing to do.
			return nil, 0
		}
		return stopNode, 1
	}

	// Find the most recent locator block hash in the main chain.  In the
	// case none of the hashes in the locator are in the main chain, fall
	// back to the genesis block.
	startNode := b.bestChain.Genesis()
	for _, h := range locator {
		node := b.index.LookupNode(h)
		if node != nil && b.bestChain.Contains(node) {
			startNode = node
			break
		}
	}

	// Start at the block after the most recently known block.  When there
	// is no next block it means the most recently known block is the tip of
	// the best chain, so there is nothing more to do.
	startNode = b.bestChain.Next(startNode)
	if startNode == nil {
		return nil, 0
	}

	// Calculate how many entries are needed.
	total := b.bestChain.Tip().height - startNode.height + 1
	if stopNode != nil && b.bestChain.Contains(stopNode) &&
		stopNode.height >= startNode.height {

		total = stopNode.height - startNode.height + 1
	}
	if total > maxEntries {
		total = maxEntries
	}
	return startNode, total
}

// LocateBlocks returns the hashes of the blocks after the first known block
// in the locator until the provided stop hash is reached, or up to the
// provided max number of block hashes.
//
// This function is safe for concurrent access.
func (b *BlockChain) LocateBlocks(locator BlockLocator, hashStop *hash.Hash, maxHashes uint32) []hash.Hash {
	b.chainLock.RLock()
	defer b.chainLock.RUnlock()

	node, total := b.locateInventory(locator, hashStop, maxHashes)
	if total == 0 {
		return nil
	}

	// Populate and return the found hashes.
	hashes := make([]hash.Hash, 0, total)
	for i := uint32(0); i < total && node != nil; i++ {
		hashes = append(hashes, node.hash)
		node = b.bestChain.Next(node)
	}
	return hashes
}

// LocateHeaders returns the headers of the blocks after the first known block
// in the locator until the provided stop hash is reached, or up to the
// provided max number of headers.
//
// This function is safe for concurrent access.
func (b *BlockChain) LocateHeaders(locator BlockLocator, hashStop *hash.Hash, maxHeaders uint32) []types.BlockHeader {
	b.chainLock.RLock()
	defer b.chainLock.RUnlock()

	node, total := b.locateInventory(locator, hashStop, maxHeaders)
	if total == 0 {
		return nil
	}
	headers := make([]types.BlockHeader, 0, total)
	for i := uint32(0); i < total && node != nil; i++ {
		headers = append(headers, node.Header())
		node = b.bestChain.Next(node)
	}
	return headers
}
