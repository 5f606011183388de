// Copyright (c) 2017-2018 The nox developers
// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"time"

	"github.com/noxproject/dposd/common/hash"
	"github.com/noxproject/dposd/core/types"
	"github.com/noxproject/dposd/database/flatfile"
)

// blockStatus is a bit field representing the validation state of the block.
type blockStatus byte

// The following constants specify possible status bit flags for a block.
//
// NOTE: This section specifically does not use iota since the block status is
// serialized and must be stable for long-term storage.
const (
	// statusNone indicates that the block has no validation state flags set.
	statusNone blockStatus = 0

	// statusDataStored indicates that the block's payload is stored on disk.
	statusDataStored blockStatus = 1 << 0

	// statusUndoStored indicates that the block's undo record is stored on
	// disk.
	statusUndoStored blockStatus = 1 << 1

	// statusValidTx indicates the block passed every check that does not
	// need chain state.
	statusValidTx blockStatus = 1 << 2

	// statusValid indicates that the block has been connected to the chain
	// state at least once.
	statusValid blockStatus = 1 << 3

	// statusValidateFailed indicates that the block has failed validation.
	statusValidateFailed blockStatus = 1 << 4

	// statusInvalidAncestor indicates that one of the ancestors of the block
	// has failed validation, thus the block is also invalid.
	statusInvalidAncestor blockStatus = 1 << 5
)

// HaveData returns whether the full block data is stored on disk.  This
// will return false for a block node where only the header is known.
func (status blockStatus) HaveData() bool {
	return status&statusDataStored != 0
}

// HaveUndo returns whether the undo record of the block is stored on disk.
func (status blockStatus) HaveUndo() bool {
	return status&statusUndoStored != 0
}

// KnownValidTx returns whether the block passed its structural checks.
func (status blockStatus) KnownValidTx() bool {
	return status&statusValidTx != 0
}

// KnownValid returns whether the block is known to be valid.  This will return
// false for a valid block that has not been connected yet.
func (status blockStatus) KnownValid() bool {
	return status&statusValid != 0
}

// KnownInvalid returns whether the block is known to be invalid.  This will
// return false for invalid blocks that have not been proven invalid yet.
func (status blockStatus) KnownInvalid() bool {
	return status&(statusValidateFailed|statusInvalidAncestor) != 0
}

// NodeID is the stable handle of a node within a block index.
type NodeID uint32

// BlockNode represents a block within the block chain and is primarily used to
// aid in selecting the best chain to be the main chain.  Nodes are owned by
// the block index and live as long as it does.
type BlockNode struct {
	// parent is the parent block for this node.  It is nil for the genesis
	// block and for headers whose parent is not known yet.
	parent *BlockNode

	// skip points to an ancestor further back than parent so that
	// ancestor lookups take logarithmic steps.
	skip *BlockNode

	// hash is the hash of the block this node represents.
	hash hash.Hash

	// workSum is the total amount of work in the chain up to and including
	// this node.  Every block carries one unit of work.
	workSum uint64

	// sequenceID orders nodes of equal work by arrival.  Lower is earlier.
	sequenceID uint64

	id NodeID

	// Some fields from block headers to aid in best chain selection and
	// reconstructing headers from memory.  These must be treated as
	// immutable and are intentionally ordered to avoid padding on 64-bit
	// platforms.
	prevHash   hash.Hash
	merkleRoot hash.Hash
	timestamp  int64
	fuel       uint64
	version    uint32
	nonce      uint32
	height     uint32
	fuelRate   uint32

	// Location of the block payload and its undo record.
	blockPos flatfile.Pos
	undoPos  flatfile.Pos

	txCount uint32
	miner   types.AccountID

	status blockStatus
}

// initBlockNode initializes a block node from the given header.  The parent
// link is left to the block index.
func initBlockNode(node *BlockNode, header *types.BlockHeader) {
	*node = BlockNode{
		hash:       header.BlockHash(),
		prevHash:   header.PrevBlock,
		merkleRoot: header.MerkleRoot,
		timestamp:  header.Timestamp.Unix(),
		fuel:       header.Fuel,
		version:    header.Version,
		nonce:      header.Nonce,
		height:     header.Height,
		fuelRate:   header.FuelRate,
		blockPos:   flatfile.NullPos,
		undoPos:    flatfile.NullPos,
		workSum:    uint64(header.Height) + 1,
	}
}

// NewBlockNode returns a node for header that belongs to no index, linked to
// parent and recording miner as its producer.  It lets collaborators model
// chains without a BlockChain.
func NewBlockNode(header *types.BlockHeader, parent *BlockNode, miner types.AccountID) *BlockNode {
	node := new(BlockNode)
	initBlockNode(node, header)
	node.miner = miner
	if parent != nil {
		node.parent = parent
		node.workSum = parent.workSum + 1
		node.buildSkip()
	}
	return node
}

// Header constructs a block header from the node and returns it.
//
// This function is safe for concurrent access.
func (node *BlockNode) Header() types.BlockHeader {
	return types.BlockHeader{
		Version:    node.version,
		PrevBlock:  node.prevHash,
		MerkleRoot: node.merkleRoot,
		Timestamp:  time.Unix(node.timestamp, 0),
		Nonce:      node.nonce,
		Height:     node.height,
		FuelRate:   node.fuelRate,
		Fuel:       node.fuel,
	}
}

// Hash returns the hash of the block.
func (node *BlockNode) Hash() *hash.Hash {
	return &node.hash
}

// Height returns the height of the block.
func (node *BlockNode) Height() uint32 {
	return node.height
}

// Parent returns the parent node, nil for genesis.
func (node *BlockNode) Parent() *BlockNode {
	return node.parent
}

// ID returns the handle of the node within its index.
func (node *BlockNode) ID() NodeID {
	return node.id
}

// Timestamp returns the block time.
func (node *BlockNode) Timestamp() time.Time {
	return time.Unix(node.timestamp, 0)
}

// Miner returns the producer recorded for the block, the zero account until
// the block data has been stored.
func (node *BlockNode) Miner() types.AccountID {
	return node.miner
}

// FuelRate returns the fuel rate declared by the block.
func (node *BlockNode) FuelRate() uint32 {
	return node.fuelRate
}

// Fuel returns the total fuel declared by the block.
func (node *BlockNode) Fuel() uint64 {
	return node.fuel
}

// WorkSum returns the chain work up to and including the block.
func (node *BlockNode) WorkSum() uint64 {
	return node.workSum
}

// invertLowestOne turns the lowest 1 bit in the binary representation of a
// number into a 0.
func invertLowestOne(n uint32) uint32 {
	return n & (n - 1)
}

// skipHeight returns the height the skip pointer of a node at height points
// to.  Any height works as long as it is lower than the node's own; this one
// keeps ancestor lookups within O(log n) steps.
func skipHeight(height uint32) uint32 {
	if height < 2 {
		return 0
	}
	// Determine which height to jump back to.  Any number strictly lower
	// than height is acceptable, but the following expression seems to
	// perform well in simulations (max 110 steps to go back up to 2**18
	// blocks).
	if height&1 != 0 {
		return invertLowestOne(invertLowestOne(height-1)) + 1
	}
	return invertLowestOne(height)
}

// buildSkip sets the skip pointer from the parent chain.  The parent must
// already be linked.
func (node *BlockNode) buildSkip() {
	if node.parent != nil {
		node.skip = node.parent.Ancestor(skipHeight(node.height))
	}
}

// Ancestor returns the ancestor block node at the provided height by
// following the chain backwards from this node.  The returned block will be
// nil when a height is requested that is after the height of the passed node
// or when the chain is not linked that far back.
//
// This function is safe for concurrent access.
func (node *BlockNode) Ancestor(height uint32) *BlockNode {
	if height > node.height {
		return nil
	}

	n := node
	walk := node.height
	for walk > height {
		hSkip := skipHeight(walk)
		hSkipPrev := skipHeight(walk - 1)
		// Only follow the skip pointer if the parent's skip would not land
		// strictly closer to the target.
		if n.skip != nil && (hSkip == height ||
			(hSkip > height && !(hSkipPrev+2 < hSkip && hSkipPrev >= height))) {
			n = n.skip
			walk = hSkip
		} else {
			n = n.parent
			walk--
		}
		if n == nil {
			return nil
		}
	}
	return n
}

// RelativeAncestor returns the ancestor block node a relative 'distance' blocks
// before this node.  This is equivalent to calling Ancestor with the node's
// height minus provided distance.
//
// This function is safe for concurrent access.
func (node *BlockNode) RelativeAncestor(distance uint32) *BlockNode {
	if distance > node.height {
		return nil
	}
	return node.Ancestor(node.height - distance)
}

// IsAncestor reports whether node is an ancestor of (or equal to) other.
func (node *BlockNode) IsAncestor(other *BlockNode) bool {
	if other == nil {
		return false
	}
	return other.Ancestor(node.height) == node
}

// workLess reports whether a sorts strictly before b in the chain selection
// order: less work first, then later arrival, then the higher hash.  The
// order is total over distinct nodes.
func workLess(a, b *BlockNode) bool {
	if a.workSum != b.workSum {
		return a.workSum < b.workSum
	}
	if a.sequenceID != b.sequenceID {
		return a.sequenceID > b.sequenceID
	}
	return a.hash.Compare(&b.hash) > 0
}
