// Copyright (c) 2017-2018 The nox developers

package blockchain

import (
	"github.com/noxproject/dposd/core/state"
	"github.com/noxproject/dposd/core/types"
)

// checkForkDepth rejects branches forking off the active chain further back
// than the configured depth.
//
// This function MUST be called with the chain state lock held (for reads).
func (b *BlockChain) checkForkDepth(parent *BlockNode) (*BlockNode, error) {
	tip := b.bestChain.Tip()
	fork := b.bestChain.FindFork(parent)
	if fork == nil {
		return nil, ruleErrorf(ErrForkTooDeep, "block parent %v does not "+
			"fork from the active chain", parent.hash)
	}
	if tip.height-fork.height > b.maxForkDepth {
		return nil, ruleErrorf(ErrForkTooDeep, "fork point %v at height %d "+
			"is %d blocks below the tip, max %d", fork.hash, fork.height,
			tip.height-fork.height, b.maxForkDepth)
	}
	return fork, nil
}

// probeForkedChain dry-runs the branch ending in node, whose parent is not
// the active tip, on a snapshot of the state at the fork point.  A block of
// the branch failing the rules is marked invalid and its error returned.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *BlockChain) probeForkedChain(block *types.Block, node *BlockNode) error {
	fork, err := b.checkForkDepth(node.parent)
	if err != nil {
		return err
	}

	snap, ok := b.forkCache.Get(&fork.hash)
	if !ok {
		base := state.NewCache(b.db)
		for n := b.bestChain.Tip(); n != fork; n = n.parent {
			blk, err := b.fetchBlock(n)
			if err != nil {
				return err
			}
			if err := b.disconnectBlock(blk, n, base); err != nil {
				return err
			}
		}
		snap = newForkSnapshot(fork, base)
		b.forkCache.Add(snap)
		log.Debug("Created fork snapshot", "fork", fork.hash, "height", fork.height,
			"tip", b.bestChain.Tip().hash)
	}

	// Extend the cached branch when the new block builds on it, otherwise
	// replay the branch from the fork point.
	start, parentLayer := fork, snap.base
	if snap.tipNode.IsAncestor(node.parent) {
		start, parentLayer = snap.tipNode, snap.tip
	}
	layer := parentLayer.NewChild()

	attach := make([]*BlockNode, 0, node.height-start.height)
	for n := node; n != start; n = n.parent {
		attach = append(attach, n)
	}
	for i := len(attach) - 1; i >= 0; i-- {
		n := attach[i]
		blk := block
		if n != node {
			if blk, err = b.fetchBlock(n); err != nil {
				return err
			}
		}
		if err := b.connectBlockDryRun(blk, n, layer); err != nil {
			if _, ok := AsRuleError(err); ok {
				b.invalidBlockFound(n, err)
				if n != node {
					b.index.SetStatusFlags(node, statusInvalidAncestor)
				}
			}
			return err
		}
	}

	if parentLayer == snap.tip {
		if err := layer.Flush(); err != nil {
			return err
		}
	} else {
		snap.tip = layer
	}
	snap.tipNode = node
	log.Trace("Probed forked chain", "hash", node.hash, "height", node.height,
		"fork", fork.hash)
	return nil
}
