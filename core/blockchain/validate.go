// Copyright (c) 2017-2018 The nox developers
// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2018 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"github.com/noxproject/dposd/common/hash"
	"github.com/noxproject/dposd/core/types"
	"github.com/noxproject/dposd/params"
)

// BehaviorFlags is a bitmask defining tweaks to the normal behavior when
// performing chain processing and consensus rules checks.
type BehaviorFlags uint32

const (
	// BFFastAdd may be set to indicate that several checks can be avoided
	// for the block since it is already known to fit into the chain due to
	// coming from a trusted local source such as a block import file.  The
	// check of the timestamp against the local clock is skipped.
	BFFastAdd BehaviorFlags = 1 << iota

	// BFNone is a convenience value to specifically indicate no flags.
	BFNone BehaviorFlags = 0
)

// CheckBlockStructural performs the checks on a block that need nothing but
// the block itself, the network parameters and the clock.  It touches no
// chain state.
func CheckBlockStructural(block *types.Block, p *params.Params, timeSource MedianTimeSource) error {
	return checkBlockStructural(block, p, timeSource, BFNone)
}

func checkBlockStructural(block *types.Block, p *params.Params, timeSource MedianTimeSource, flags BehaviorFlags) error {
	header := &block.Header
	isGenesis := block.Hash().IsEqual(p.GenesisHash)

	// A block must not exceed the maximum allowed block payload when
	// serialized.
	size := block.SerializeSize()
	if size > p.MaxBlockSize {
		return ruleErrorf(ErrBlockTooBig, "serialized block is too big - got %d, "+
			"max %d", size, p.MaxBlockSize)
	}

	if !isGenesis && header.Version != p.BlockVersion {
		return ruleErrorf(ErrBadBlockVersion, "block version %d, required %d",
			header.Version, p.BlockVersion)
	}

	if header.Nonce > p.MaxNonce {
		return ruleErrorf(ErrBadNonce, "block nonce %d exceeds maximum %d",
			header.Nonce, p.MaxNonce)
	}

	// The timestamp may only run ahead of the network clock by one block
	// interval plus the tolerated skew.
	if flags&BFFastAdd == 0 && timeSource != nil {
		maxTimestamp := timeSource.AdjustedTime().Add(p.BlockInterval + p.MaxTimeOffset)
		if header.Timestamp.After(maxTimestamp) {
			return ruleErrorf(ErrTimeTooNew, "block timestamp of %v is too far "+
				"in the future", header.Timestamp)
		}
	}

	// A block must have at least one transaction.
	numTx := len(block.Transactions)
	if numTx == 0 {
		return ruleError(ErrNoTransactions, "block does not contain "+
			"any transactions")
	}

	// The first transaction in a block must be the reward, and no other
	// may be.
	reward, ok := block.RewardTx()
	if !ok {
		return ruleError(ErrFirstTxNotReward, "first transaction in "+
			"block is not the reward transaction")
	}
	for i, tx := range block.Transactions[1:] {
		if tx.IsReward() {
			return ruleErrorf(ErrMultipleRewardTxs, "block contains second "+
				"reward transaction at index %d", i+1)
		}
	}
	if reward.Height != header.Height {
		return ruleErrorf(ErrBadRewardHeight, "reward transaction height %d, "+
			"block height %d", reward.Height, header.Height)
	}

	// Check for duplicate transactions.  This check will be fairly quick
	// since the transaction hashes are already cached due to building the
	// merkle tree below.
	existingTxHashes := make(map[hash.Hash]struct{}, numTx)
	for _, tx := range block.Transactions {
		h := tx.TxHash()
		if _, exists := existingTxHashes[h]; exists {
			return ruleErrorf(ErrDuplicateTx, "block contains duplicate "+
				"transaction %v", h)
		}
		existingTxHashes[h] = struct{}{}
	}

	// Build merkle tree and ensure the calculated merkle root matches the
	// entry in the block header.
	calculatedMerkleRoot := block.CalcMerkleRoot()
	if !header.MerkleRoot.IsEqual(&calculatedMerkleRoot) {
		return ruleErrorf(ErrBadMerkleRoot, "block merkle root is invalid - "+
			"block header indicates %v, but calculated value is %v",
			header.MerkleRoot, calculatedMerkleRoot)
	}
	return nil
}

// checkBlockContext performs the checks that depend on the parent of the
// block but not on chain state.
//
// This function MUST be called with the chain state lock held (for reads).
func (b *BlockChain) checkBlockContext(block *types.Block, prev *BlockNode) error {
	header := &block.Header
	if header.Height != prev.height+1 {
		return ruleErrorf(ErrBadHeight, "block height %d does not follow "+
			"parent height %d", header.Height, prev.height)
	}

	minTimestamp := prev.Timestamp().Add(b.params.BlockInterval)
	if header.Timestamp.Before(minTimestamp) {
		return ruleErrorf(ErrTimeTooOld, "block timestamp of %v is not after "+
			"expected %v", header.Timestamp, minTimestamp)
	}

	return b.checkFuelRate(block, prev)
}

// checkFuelRate verifies the block declares the rate derived from prev.
func (b *BlockChain) checkFuelRate(block *types.Block, prev *BlockNode) error {
	expected := calcFuelRate(prev, b.params)
	if block.Header.FuelRate != expected {
		return ruleErrorf(ErrBadFuelRate, "block fuel rate %d, expected %d",
			block.Header.FuelRate, expected)
	}
	return nil
}
