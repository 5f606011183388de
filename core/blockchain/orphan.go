// Copyright (c) 2017-2018 The nox developers
// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"time"

	"github.com/noxproject/dposd/common/hash"
	"github.com/noxproject/dposd/core/types"
)

// IsKnownOrphan returns whether the passed hash is currently a known orphan.
// Keep in mind that only a limited number of orphans are held onto for a
// limited amount of time, so this function must not be used as an absolute
// way to test if a block is an orphan block.  A full block (as opposed to just
// its hash) must be passed to ProcessBlock for that purpose.
//
// This function is safe for concurrent access.
func (b *BlockChain) IsKnownOrphan(hash *hash.Hash) bool {
	b.chainLock.RLock()
	_, exists := b.orphans[*hash]
	b.chainLock.RUnlock()
	return exists
}

// OrphanCount returns the number of buffered orphans.
//
// This function is safe for concurrent access.
func (b *BlockChain) OrphanCount() int {
	b.chainLock.RLock()
	defer b.chainLock.RUnlock()
	return len(b.orphans)
}

// GetOrphanRoot returns the head of the chain for the provided hash from the
// map of orphan blocks.
//
// This function is safe for concurrent access.
func (b *BlockChain) GetOrphanRoot(hash *hash.Hash) *hash.Hash {
	b.chainLock.RLock()
	defer b.chainLock.RUnlock()
	return b.orphanRoot(hash)
}

// orphanRoot walks the orphan pool back from hash to the first orphan whose
// parent is not an orphan itself.
//
// This function MUST be called with the chain state lock held (for reads).
func (b *BlockChain) orphanRoot(h *hash.Hash) *hash.Hash {
	orphanRoot := h
	prevHash := h
	for {
		orphan, exists := b.orphans[*prevHash]
		if !exists {
			break
		}
		orphanRoot = prevHash
		prevHash = &orphan.block.Header.PrevBlock
	}
	return orphanRoot
}

// removeOrphanBlock removes the passed orphan block from the orphan pool and
// previous orphan index.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *BlockChain) removeOrphanBlock(orphan *orphanBlock) {
	// Remove the orphan block from the orphan pool.
	orphanHash := orphan.block.Hash()
	delete(b.orphans, *orphanHash)

	// Remove the reference from the previous orphan index too.  An indexing
	// for loop is intentionally used over a range here as range does not
	// reevaluate the slice on each iteration nor does it adjust the index
	// for the modified slice.
	prevHash := &orphan.block.Header.PrevBlock
	orphans := b.prevOrphans[*prevHash]
	for i := 0; i < len(orphans); i++ {
		h := orphans[i].block.Hash()
		if h.IsEqual(orphanHash) {
			copy(orphans[i:], orphans[i+1:])
			orphans[len(orphans)-1] = nil
			orphans = orphans[:len(orphans)-1]
			i--
		}
	}
	b.prevOrphans[*prevHash] = orphans

	// Remove the map entry altogether if there are no longer any orphans
	// which depend on the parent hash.
	if len(b.prevOrphans[*prevHash]) == 0 {
		delete(b.prevOrphans, *prevHash)
	}
	orphanGauge.Update(int64(len(b.orphans)))
}

// expireOrphans drops orphans held past their expiration.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *BlockChain) expireOrphans() {
	now := time.Now()
	for _, oBlock := range b.orphans {
		if now.After(oBlock.expiration) {
			log.Debug("Expired orphan block", "hash", oBlock.block.Hash())
			b.removeOrphanBlock(oBlock)
		}
	}
}

// addOrphanBlock adds the passed block (which is already determined to be
// an orphan prior calling this function) to the orphan pool.  When the pool
// is full the orphan of greatest height is evicted, but only if it is both
// higher than the new block and beyond the next block the chain needs.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *BlockChain) addOrphanBlock(block *types.Block) error {
	if len(b.orphans) >= b.maxOrphans {
		var highest *orphanBlock
		for _, o := range b.orphans {
			if highest == nil || o.block.Height() > highest.block.Height() ||
				(o.block.Height() == highest.block.Height() &&
					o.block.Hash().Compare(highest.block.Hash()) > 0) {
				highest = o
			}
		}
		next := b.bestChain.Tip().height + 1
		if highest == nil || highest.block.Height() <= block.Height() ||
			highest.block.Height() <= next {
			return ruleErrorf(ErrOrphanLimit, "orphan pool is full, cannot "+
				"hold block %v at height %d", block.Hash(), block.Height())
		}
		log.Debug("Evicting orphan block", "hash", highest.block.Hash(),
			"height", highest.block.Height())
		b.removeOrphanBlock(highest)
	}

	// Insert the block into the orphan map with an expiration time.
	oBlock := &orphanBlock{
		block:      block,
		expiration: time.Now().Add(b.params.OrphanExpiry),
	}
	b.orphans[*block.Hash()] = oBlock

	// Add to previous hash lookup index for faster dependency lookups.
	prevHash := &block.Header.PrevBlock
	b.prevOrphans[*prevHash] = append(b.prevOrphans[*prevHash], oBlock)
	orphanGauge.Update(int64(len(b.orphans)))
	return nil
}

// processOrphans determines if there are any orphans which depend on the passed
// block hash (they are no longer orphans if true) and potentially accepts them.
// It repeats the process for the newly accepted blocks (to detect further
// orphans which may no longer be orphans) until there are no more.
//
// The flags do not modify the behavior of this function directly, however they
// are needed to pass along to maybeAcceptBlock.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *BlockChain) processOrphans(h *hash.Hash, flags BehaviorFlags) error {
	// Start with processing at least the passed hash.  Leave a little room
	// for additional orphan blocks that need to be processed without
	// needing to grow the array in the common case.
	processHashes := make([]*hash.Hash, 0, 10)
	processHashes = append(processHashes, h)
	for len(processHashes) > 0 {
		// Pop the first hash to process from the slice.
		processHash := processHashes[0]
		processHashes[0] = nil // Prevent GC leak.
		processHashes = processHashes[1:]

		// Look up all orphans that are parented by the block we just
		// accepted.  This will typically only be one, but it could
		// be multiple if multiple blocks are mined and broadcast
		// around the same time.  The one with the most proof of work
		// will eventually win out.  An indexing for loop is
		// intentionally used over a range here as range does not
		// reevaluate the slice on each iteration nor does it adjust the
		// index for the modified slice.
		for i := 0; i < len(b.prevOrphans[*processHash]); i++ {
			orphan := b.prevOrphans[*processHash][i]
			if orphan == nil {
				log.Warn("Found a nil entry in the orphan dependency list",
					"index", i, "hash", processHash)
				continue
			}

			// Remove the orphan from the orphan pool.
			orphanHash := orphan.block.Hash()
			b.removeOrphanBlock(orphan)
			i--

			// Potentially accept the block into the block chain.
			_, err := b.maybeAcceptBlock(orphan.block, flags)
			if err != nil {
				if IsSystemError(err) {
					return err
				}
				log.Debug("Rejected orphan block", "hash", orphanHash, "err", err)
				continue
			}

			// Add this block to the list of blocks to process so
			// any orphan blocks that depend on this block are
			// handled too.
			processHashes = append(processHashes, orphanHash)
		}
	}
	return nil
}
