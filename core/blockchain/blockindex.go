// Copyright (c) 2017-2018 The nox developers
// Copyright (c) 2015-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"sort"
	"sync"

	"github.com/noxproject/dposd/common/hash"
	"github.com/noxproject/dposd/core/types"
	"github.com/noxproject/dposd/database"
	"github.com/noxproject/dposd/params"
	"github.com/pkg/errors"
)

// blockIndex provides facilities for keeping track of an in-memory index of the
// block chain.  Although the name block chain suggests a single chain of
// blocks, it is actually a tree-shaped structure where any node can have
// multiple children.  However, there can only be one active branch which does
// indeed form a chain from the tip all the way back to the genesis block.
//
// Nodes live in a slab and are addressed by their slab slot; the hash map
// only resolves hashes to slots.  Headers whose parent is not known yet are
// indexed but remain unlinked until the parent arrives.
type blockIndex struct {
	// The following fields are set when the instance is created and can't
	// be changed afterwards, so there is no need to protect them with a
	// separate mutex.
	db     database.DB
	params *params.Params

	sync.RWMutex
	nodes    []*BlockNode
	index    map[hash.Hash]*BlockNode
	unlinked map[hash.Hash][]*BlockNode
	dirty    map[*BlockNode]struct{}

	nextSequence uint64
}

// newBlockIndex returns a new empty instance of a block index.  The index will
// be dynamically populated as block nodes are loaded from the database and
// manually added.
func newBlockIndex(db database.DB, par *params.Params) *blockIndex {
	return &blockIndex{
		db:       db,
		params:   par,
		index:    make(map[hash.Hash]*BlockNode),
		unlinked: make(map[hash.Hash][]*BlockNode),
		dirty:    make(map[*BlockNode]struct{}),
	}
}

// lookupNode returns the block node identified by the provided hash.  It will
// return nil if there is no entry for the hash.
//
// This function MUST be called with the block index lock held (for reads).
func (bi *blockIndex) lookupNode(hash *hash.Hash) *BlockNode {
	return bi.index[*hash]
}

// LookupNode returns the block node identified by the provided hash.  It will
// return nil if there is no entry for the hash.
//
// This function is safe for concurrent access.
func (bi *blockIndex) LookupNode(hash *hash.Hash) *BlockNode {
	bi.RLock()
	node := bi.lookupNode(hash)
	bi.RUnlock()
	return node
}

// HaveBlock returns whether or not the block index contains the provided hash.
//
// This function is safe for concurrent access.
func (bi *blockIndex) HaveBlock(hash *hash.Hash) bool {
	bi.RLock()
	_, hasBlock := bi.index[*hash]
	bi.RUnlock()
	return hasBlock
}

// Len returns the number of indexed nodes.
func (bi *blockIndex) Len() int {
	bi.RLock()
	defer bi.RUnlock()
	return len(bi.nodes)
}

// Insert adds a node for the header unless one exists already, and returns
// the indexed node.  The node is linked to its parent when the parent is
// indexed, and any indexed children waiting on it are linked in turn.
//
// This function is safe for concurrent access.
func (bi *blockIndex) Insert(header *types.BlockHeader) *BlockNode {
	bi.Lock()
	defer bi.Unlock()

	h := header.BlockHash()
	if node := bi.index[h]; node != nil {
		return node
	}
	node := new(BlockNode)
	initBlockNode(node, header)
	node.sequenceID = bi.nextSequence
	bi.nextSequence++
	bi.addNode(node)
	bi.dirty[node] = struct{}{}
	return node
}

// addNode places the node in the slab and links it.
//
// This function MUST be called with the block index lock held (for writes).
func (bi *blockIndex) addNode(node *BlockNode) {
	node.id = NodeID(len(bi.nodes))
	bi.nodes = append(bi.nodes, node)
	bi.index[node.hash] = node

	if parent := bi.index[node.prevHash]; parent != nil {
		bi.link(node, parent)
	} else if !bi.isGenesis(node) {
		bi.unlinked[node.prevHash] = append(bi.unlinked[node.prevHash], node)
	}

	if waiting, ok := bi.unlinked[node.hash]; ok {
		delete(bi.unlinked, node.hash)
		var linked []*BlockNode
		for _, child := range waiting {
			bi.link(child, node)
			if child.parent == node {
				linked = append(linked, child)
			}
		}
		bi.relinkDescendants(linked)
	}
}

// relinkDescendants refreshes the nodes linked below roots while roots were
// cut off from the index.  Their skip pointers and work were computed
// without the missing ancestors.  Parents are visited before children.
//
// This function MUST be called with the block index lock held (for writes).
func (bi *blockIndex) relinkDescendants(roots []*BlockNode) {
	queue := roots
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		for _, child := range bi.children(parent) {
			child.workSum = parent.workSum + 1
			child.buildSkip()
			if parent.status.KnownInvalid() && !child.status.KnownInvalid() {
				child.status |= statusInvalidAncestor
				bi.dirty[child] = struct{}{}
			}
			queue = append(queue, child)
		}
	}
}

func (bi *blockIndex) isGenesis(node *BlockNode) bool {
	return node.height == 0 && node.hash.IsEqual(bi.params.GenesisHash)
}

// link attaches node to parent.  A node whose height does not follow its
// parent's is marked failed and left unlinked.
func (bi *blockIndex) link(node, parent *BlockNode) {
	if node.height != parent.height+1 {
		node.status |= statusValidateFailed
		bi.dirty[node] = struct{}{}
		return
	}
	node.parent = parent
	node.workSum = parent.workSum + 1
	node.buildSkip()
	if parent.status.KnownInvalid() && !node.status.KnownInvalid() {
		node.status |= statusInvalidAncestor
		bi.dirty[node] = struct{}{}
	}
}

// NodeStatus provides concurrent-safe access to the status field of a node.
//
// This function is safe for concurrent access.
func (bi *blockIndex) NodeStatus(node *BlockNode) blockStatus {
	bi.RLock()
	status := node.status
	bi.RUnlock()
	return status
}

// SetStatusFlags flips the provided status flags on the block node to on,
// regardless of whether they were on or off previously. This does not unset any
// flags currently on.
//
// This function is safe for concurrent access.
func (bi *blockIndex) SetStatusFlags(node *BlockNode, flags blockStatus) {
	bi.Lock()
	node.status |= flags
	bi.dirty[node] = struct{}{}
	bi.Unlock()
}

// UnsetStatusFlags flips the provided status flags on the block node to off,
// regardless of whether they were on or off previously.
//
// This function is safe for concurrent access.
func (bi *blockIndex) UnsetStatusFlags(node *BlockNode, flags blockStatus) {
	bi.Lock()
	node.status &^= flags
	bi.dirty[node] = struct{}{}
	bi.Unlock()
}

// children returns the indexed nodes whose parent is node.
//
// This function MUST be called with the block index lock held.
func (bi *blockIndex) children(node *BlockNode) []*BlockNode {
	var kids []*BlockNode
	for _, n := range bi.nodes {
		if n.parent == node {
			kids = append(kids, n)
		}
	}
	return kids
}

// forEach calls fn for every node in slab order.
func (bi *blockIndex) forEach(fn func(node *BlockNode)) {
	bi.RLock()
	nodes := bi.nodes
	bi.RUnlock()
	for _, n := range nodes {
		fn(n)
	}
}

// flushTo queues every dirty node onto batch.  The dirty set is cleared by
// clearDirty once the batch is committed.
func (bi *blockIndex) flushTo(batch *database.Batch) {
	bi.RLock()
	for node := range bi.dirty {
		dbPutBlockNode(batch, node)
	}
	bi.RUnlock()
}

func (bi *blockIndex) clearDirty() {
	bi.Lock()
	bi.dirty = make(map[*BlockNode]struct{})
	bi.Unlock()
}

// load populates the index from the stored node entries.  Nodes are added in
// (height, sequence) order and renumbered so sequence ids stay dense.
func (bi *blockIndex) load() error {
	var nodes []*storedNode
	err := bi.db.ForEach(blockIndexPrefix, func(key, value []byte) error {
		sn, err := deserializeBlockNode(value)
		if err != nil {
			return errors.Wrapf(err, "block index entry %x", key)
		}
		nodes = append(nodes, sn)
		return nil
	})
	if err != nil {
		return err
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].node.height != nodes[j].node.height {
			return nodes[i].node.height < nodes[j].node.height
		}
		return nodes[i].sequence < nodes[j].sequence
	})

	bi.Lock()
	defer bi.Unlock()
	for _, sn := range nodes {
		sn.node.sequenceID = bi.nextSequence
		bi.nextSequence++
		bi.addNode(sn.node)
	}
	return nil
}
