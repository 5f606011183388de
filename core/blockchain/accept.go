// Copyright (c) 2017-2018 The nox developers
// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2018 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"github.com/noxproject/dposd/core/types"
)

// maybeAcceptBlock potentially accepts a block into the block chain and, if
// accepted, reports whether it ended up on the main chain.  It performs the
// checks which depend on the position of the block within the block chain,
// stores the block, probes it when it extends a competing branch and finally
// lets the best chain be selected.
//
// The block is expected to have already gone through ProcessBlock before
// calling this function with it and its parent must be stored.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *BlockChain) maybeAcceptBlock(block *types.Block, flags BehaviorFlags) (bool, error) {
	blockHash := block.Hash()
	parent := b.index.LookupNode(&block.Header.PrevBlock)
	if parent == nil {
		return false, AssertError("maybeAcceptBlock: parent of " +
			blockHash.String() + " is not indexed")
	}

	// Children of invalid blocks are invalid too.
	if b.index.NodeStatus(parent).KnownInvalid() {
		node := b.index.Insert(&block.Header)
		b.index.SetStatusFlags(node, statusInvalidAncestor)
		if err := b.flushIndex(); err != nil {
			return false, err
		}
		return false, ruleErrorf(ErrInvalidAncestorBlock, "block %v builds "+
			"on invalid block %v", blockHash, parent.hash)
	}

	// The block must pass all of the validation rules which depend on the
	// position of the block within the block chain.  The header decides
	// the outcome, so the failure is remembered.
	if err := b.checkBlockContext(block, parent); err != nil {
		node := b.index.Insert(&block.Header)
		b.index.SetStatusFlags(node, statusValidateFailed)
		if ferr := b.flushIndex(); ferr != nil {
			return false, ferr
		}
		return false, err
	}

	// Competing branches must not reach too far back.
	tip := b.bestChain.Tip()
	extendsTip := parent == tip
	if !extendsTip {
		if _, err := b.checkForkDepth(parent); err != nil {
			return false, err
		}
	}

	// Insert the block into the block files and the index.  Even though
	// it is possible the block will ultimately fail to connect, it has
	// already passed every check that does not need chain state.
	pos, err := b.writeBlock(block)
	if err != nil {
		return false, err
	}
	node := b.index.Insert(&block.Header)
	node.blockPos = pos
	node.txCount = uint32(len(block.Transactions))
	node.miner = block.Miner()
	b.index.SetStatusFlags(node, statusDataStored|statusValidTx)

	if !extendsTip {
		if err := b.probeForkedChain(block, node); err != nil {
			if ferr := b.flushIndex(); ferr != nil {
				return false, ferr
			}
			return false, err
		}
	}

	b.candidates[node] = struct{}{}
	if err := b.flushIndex(); err != nil {
		return false, err
	}
	b.sendNotification(BlockAccepted, &BlockAcceptedNotifyData{
		Block: block,
		Flags: flags,
	})

	if err := b.activateBestChain(); err != nil {
		return false, err
	}
	b.checkForkWarningConditions(node)

	// Report the rule the block broke when connecting it failed.
	if b.index.NodeStatus(node).KnownInvalid() {
		if b.failedNode == node && b.failedErr != nil {
			return false, b.failedErr
		}
		return false, ruleErrorf(ErrInvalidAncestorBlock, "block %v builds "+
			"on a block that failed validation", blockHash)
	}
	return b.bestChain.Contains(node), nil
}
