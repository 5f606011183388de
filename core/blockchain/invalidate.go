// Copyright (c) 2017-2018 The nox developers

package blockchain

import (
	"github.com/noxproject/dposd/common/hash"
	"github.com/pkg/errors"
)

// InvalidateBlock manually marks a block and its descendants invalid.  When
// the block is on the active chain, the chain is first rolled back to its
// parent.  The best remaining chain is activated afterwards.
//
// This function is safe for concurrent access.
func (b *BlockChain) InvalidateBlock(h *hash.Hash) error {
	defer b.flushNotifications()
	b.chainLock.Lock()
	defer b.chainLock.Unlock()

	node := b.index.LookupNode(h)
	if node == nil {
		return errors.Errorf("block %v is not known", h)
	}
	if node.parent == nil {
		return AssertError("cannot invalidate the genesis block")
	}

	for b.bestChain.Contains(node) {
		if err := b.disconnectTip(); err != nil {
			return err
		}
	}

	b.index.SetStatusFlags(node, statusValidateFailed)
	b.index.forEach(func(n *BlockNode) {
		if n != node && node.IsAncestor(n) {
			b.index.SetStatusFlags(n, statusInvalidAncestor)
		}
	})
	if b.bestInvalid == nil || workLess(b.bestInvalid, node) {
		b.bestInvalid = node
	}
	b.rebuildCandidates()
	if err := b.flushIndex(); err != nil {
		return err
	}
	log.Info("Invalidated block", "hash", node.hash, "height", node.height)
	return b.activateBestChain()
}

// ReconsiderBlock clears the failure flags of a block, of its ancestors and
// of its descendants, and activates the best chain again.  It undoes
// InvalidateBlock and gives blocks that failed for a transient reason
// another chance.
//
// This function is safe for concurrent access.
func (b *BlockChain) ReconsiderBlock(h *hash.Hash) error {
	defer b.flushNotifications()
	b.chainLock.Lock()
	defer b.chainLock.Unlock()

	node := b.index.LookupNode(h)
	if node == nil {
		return errors.Errorf("block %v is not known", h)
	}

	const failed = statusValidateFailed | statusInvalidAncestor
	reset := func(n *BlockNode) {
		if b.index.NodeStatus(n).KnownInvalid() {
			b.index.UnsetStatusFlags(n, failed)
			if b.bestInvalid == n {
				b.bestInvalid = nil
			}
			if b.failedNode == n {
				b.failedNode, b.failedErr = nil, nil
			}
		}
	}
	b.index.forEach(func(n *BlockNode) {
		if node.IsAncestor(n) {
			reset(n)
		}
	})
	for n := node.parent; n != nil; n = n.parent {
		reset(n)
	}

	b.rebuildCandidates()
	if err := b.flushIndex(); err != nil {
		return err
	}
	log.Info("Reconsidered block", "hash", node.hash, "height", node.height)
	return b.activateBestChain()
}
