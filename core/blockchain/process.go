// Copyright (c) 2017-2018 The nox developers
// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2018 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"time"

	"github.com/noxproject/dposd/core/types"
	l "github.com/noxproject/dposd/log"
)

// ProcessBlock is the main workhorse for handling insertion of new blocks into
// the block chain.  It includes functionality such as rejecting duplicate
// blocks, ensuring blocks follow all rules, orphan handling, and insertion into
// the block chain along with best chain selection and reorganization.
//
// source names the peer the block came from, empty for local sources.  The
// peer is asked for the missing ancestors of an orphan.
//
// The first return value reports whether the block is on the main chain once
// processing finished.  The second indicates whether or not the block is an
// orphan.
//
// This function is safe for concurrent access.
func (b *BlockChain) ProcessBlock(block *types.Block, flags BehaviorFlags, source string) (bool, bool, error) {
	defer b.flushNotifications()
	b.chainLock.Lock()
	defer b.chainLock.Unlock()

	blockHash := block.Hash()
	log.Trace("Processing block", "hash", blockHash, "block", l.SpewClosure(block))
	currentTime := time.Now()
	defer func() {
		log.Debug("Finished block processing", "hash", blockHash,
			"height", block.Height(), "elapsed", time.Since(currentTime))
	}()

	// The block must not already exist in the main chain or side chains.
	if node := b.index.LookupNode(blockHash); node != nil {
		status := b.index.NodeStatus(node)
		if status.KnownInvalid() {
			return false, false, ruleErrorf(ErrKnownInvalidBlock,
				"block %v is known to be invalid", blockHash)
		}
		if status.HaveData() {
			return false, false, ruleErrorf(ErrDuplicateBlock,
				"already have block %v", blockHash)
		}
	}

	// The block must not already exist as an orphan.
	if _, exists := b.orphans[*blockHash]; exists {
		return false, false, ruleErrorf(ErrDuplicateBlock,
			"already have block (orphan) %v", blockHash)
	}
	b.expireOrphans()

	// Perform preliminary sanity checks on the block and its transactions.
	if err := checkBlockStructural(block, b.params, b.timeSource, flags); err != nil {
		return false, false, err
	}

	// Handle orphan blocks.
	prevHash := &block.Header.PrevBlock
	parent := b.index.LookupNode(prevHash)
	if parent == nil || (!b.index.NodeStatus(parent).HaveData() &&
		!b.index.NodeStatus(parent).KnownInvalid()) {
		log.Debug("Adding orphan block", "hash", blockHash, "parent", prevHash)
		if err := b.addOrphanBlock(block); err != nil {
			return false, false, err
		}
		if source != "" && b.syncer != nil {
			b.syncer.RequestBlocks(source, b.bestChain.BlockLocator(nil),
				b.orphanRoot(blockHash))
		}
		return false, true, nil
	}

	// The block has passed all context independent checks and appears sane
	// enough to potentially accept it into the block chain.
	isMainChain, err := b.maybeAcceptBlock(block, flags)
	if err != nil {
		return false, false, err
	}

	// Accept any orphan blocks that depend on this block (they are no
	// longer orphans) and repeat for those accepted blocks until there are
	// no more.
	if err := b.processOrphans(blockHash, flags); err != nil {
		return false, false, err
	}

	log.Debug("Accepted block", "hash", blockHash, "height", block.Height(),
		"mainchain", isMainChain)
	return isMainChain, false, nil
}
