// Copyright (c) 2017-2018 The nox developers
// Copyright (c) 2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"sync"

	"github.com/noxproject/dposd/common/hash"
)

// locatorDenseEntries is the number of consecutive hashes a locator carries
// before the step starts doubling.
const locatorDenseEntries = 10

// chainView provides a flat view of a specific branch of the block chain from
// its tip back to the genesis block and provides various convenience functions
// for comparing chains.
//
// For example, assume a block chain with a side chain as depicted below:
//
//	genesis -> 1 -> 2 -> 3 -> 4  -> 5 ->  6  -> 7  -> 8
//	                      \-> 4a -> 5a -> 6a
//
// The chain view for the branch ending in 6a consists of:
//
//	genesis -> 1 -> 2 -> 3 -> 4a -> 5a -> 6a
type chainView struct {
	mtx   sync.Mutex
	nodes []*BlockNode
}

// newChainView returns a new chain view for the given tip block node.  Passing
// nil as the tip will result in a chain view that is not initialized.  The tip
// can be updated at any time via the setTip function.
func newChainView(tip *BlockNode) *chainView {
	var c chainView
	c.setTip(tip)
	return &c
}

// genesis returns the genesis block for the chain view.  This only differs
// from the exported version in that it is up to the caller to ensure the lock
// is held.
//
// This function MUST be called with the view mutex locked (for reads).
func (c *chainView) genesis() *BlockNode {
	if len(c.nodes) == 0 {
		return nil
	}
	return c.nodes[0]
}

// Genesis returns the genesis block for the chain view.
//
// This function is safe for concurrent access.
func (c *chainView) Genesis() *BlockNode {
	c.mtx.Lock()
	genesis := c.genesis()
	c.mtx.Unlock()
	return genesis
}

// tip returns the current tip block node for the chain view.  It will return
// nil if there is no tip.
//
// This function MUST be called with the view mutex locked (for reads).
func (c *chainView) tip() *BlockNode {
	if len(c.nodes) == 0 {
		return nil
	}
	return c.nodes[len(c.nodes)-1]
}

// Tip returns the current tip block node for the chain view.  It will return
// nil if there is no tip.
//
// This function is safe for concurrent access.
func (c *chainView) Tip() *BlockNode {
	c.mtx.Lock()
	tip := c.tip()
	c.mtx.Unlock()
	return tip
}

// setTip sets the chain view to use the provided block node as the current tip
// and ensures the view is consistent by populating it with the nodes obtained
// by walking backwards all the way to genesis block as necessary.  Further
// calls will only perform the minimum work needed, so switching between chain
// tips is efficient.
//
// This function MUST be called with the view mutex locked (for writes).
func (c *chainView) setTip(node *BlockNode) {
	if node == nil {
		c.nodes = nil
		return
	}

	needed := int(node.height) + 1
	if cap(c.nodes) < needed {
		nodes := make([]*BlockNode, needed, needed+needed/4)
		copy(nodes, c.nodes)
		c.nodes = nodes
	} else {
		prevLen := len(c.nodes)
		c.nodes = c.nodes[0:needed]
		for i := prevLen; i < needed; i++ {
			c.nodes[i] = nil
		}
	}

	for node != nil && c.nodes[node.height] != node {
		c.nodes[node.height] = node
		node = node.parent
	}
}

// SetTip sets the chain view to use the provided block node as the current tip
// and ensures the view is consistent by populating it with the nodes obtained
// by walking backwards all the way to genesis block as necessary.
//
// This function is safe for concurrent access.
func (c *chainView) SetTip(node *BlockNode) {
	c.mtx.Lock()
	c.setTip(node)
	c.mtx.Unlock()
}

// height returns the height of the tip of the chain view.  It will return -1
// if there is no tip.
//
// This function MUST be called with the view mutex locked (for reads).
func (c *chainView) height() int64 {
	return int64(len(c.nodes) - 1)
}

// Height returns the height of the tip of the chain view.  It will return -1 if
// there is no tip.
//
// This function is safe for concurrent access.
func (c *chainView) Height() int64 {
	c.mtx.Lock()
	height := c.height()
	c.mtx.Unlock()
	return height
}

// nodeByHeight returns the block node at the specified height.  Nil will be
// returned if the height does not exist.
//
// This function MUST be called with the view mutex locked (for reads).
func (c *chainView) nodeByHeight(height uint32) *BlockNode {
	if int64(height) > c.height() {
		return nil
	}
	return c.nodes[height]
}

// NodeByHeight returns the block node at the specified height.  Nil will be
// returned if the height does not exist.
//
// This function is safe for concurrent access.
func (c *chainView) NodeByHeight(height uint32) *BlockNode {
	c.mtx.Lock()
	node := c.nodeByHeight(height)
	c.mtx.Unlock()
	return node
}

// contains returns whether or not the chain view contains the passed block
// node.
//
// This function MUST be called with the view mutex locked (for reads).
func (c *chainView) contains(node *BlockNode) bool {
	return node != nil && c.nodeByHeight(node.height) == node
}

// Contains returns whether or not the chain view contains the passed block
// node.
//
// This function is safe for concurrent access.
func (c *chainView) Contains(node *BlockNode) bool {
	c.mtx.Lock()
	contains := c.contains(node)
	c.mtx.Unlock()
	return contains
}

// next returns the successor to the provided node for the chain view.  It will
// return nil if there is no successor or the provided node is not part of the
// view.
//
// This function MUST be called with the view mutex locked (for reads).
func (c *chainView) next(node *BlockNode) *BlockNode {
	if node == nil || !c.contains(node) {
		return nil
	}
	return c.nodeByHeight(node.height + 1)
}

// Next returns the successor to the provided node for the chain view.  It will
// return nil if there is no successor or the provided node is not part of the
// view.
//
// This function is safe for concurrent access.
func (c *chainView) Next(node *BlockNode) *BlockNode {
	c.mtx.Lock()
	next := c.next(node)
	c.mtx.Unlock()
	return next
}

// findFork returns the final common block between the provided node and the
// the chain view.  It will return nil if there is no common block.
//
// This function MUST be called with the view mutex locked (for reads).
func (c *chainView) findFork(node *BlockNode) *BlockNode {
	if node == nil {
		return nil
	}

	chainHeight := c.height()
	if chainHeight < 0 {
		return nil
	}
	top := node.height
	if int64(top) > chainHeight {
		top = uint32(chainHeight)
	}
	if c.contains(node.Ancestor(top)) {
		return c.nodes[top]
	}
	if !c.contains(node.Ancestor(0)) {
		return nil
	}

	// Once the two branches share a block they share every block below
	// it, so bisect on height.  lo always matches and hi never does.
	lo, hi := uint32(0), top
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		if c.contains(node.Ancestor(mid)) {
			lo = mid
		} else {
			hi = mid
		}
	}
	return c.nodes[lo]
}

// FindFork returns the final common block between the provided node and the
// the chain view.  It will return nil if there is no common block.
//
// For example, assume a block chain with a side chain as depicted below:
//
//	genesis -> 1 -> 2 -> ... -> 5 -> 6  -> 7  -> 8
//	                      \-> 6a -> 7a
//
// Further, assume the view is for the longer chain depicted above.  That is to
// say it consists of:
//
//	genesis -> 1 -> 2 -> ... -> 5 -> 6 -> 7 -> 8.
//
// Invoking this function with block node 7a would return block node 5 while
// invoking it with block node 7 would return itself since it is already part of
// the branch formed by the view.
//
// This function is safe for concurrent access.
func (c *chainView) FindFork(node *BlockNode) *BlockNode {
	c.mtx.Lock()
	fork := c.findFork(node)
	c.mtx.Unlock()
	return fork
}

// blockLocator returns a block locator for the passed block node.  The passed
// node can be nil in which case the block locator for the current tip
// associated with the view will be returned.
//
// This function MUST be called with the view mutex locked (for reads).
func (c *chainView) blockLocator(node *BlockNode) BlockLocator {
	if node == nil {
		node = c.tip()
	}
	if node == nil {
		return nil
	}

	var locator BlockLocator
	step := uint32(1)
	for node != nil {
		locator = append(locator, &node.hash)
		if node.height == 0 {
			break
		}

		height := uint32(0)
		if node.height > step {
			height = node.height - step
		}

		// When the node is in the current chain view, all of its ancestors
		// must be too, so use a much faster O(1) lookup in that case.
		// Otherwise, fall back to walking backwards through the nodes of
		// the other chain to the correct ancestor.
		if c.contains(node) {
			node = c.nodes[height]
		} else {
			node = node.Ancestor(height)
		}

		if len(locator) > locatorDenseEntries {
			step *= 2
		}
	}
	return locator
}

// BlockLocator returns a block locator for the passed block node.  The passed
// node can be nil in which case the block locator for the current tip
// associated with the view will be returned.
//
// See the BlockLocator type for details on the algorithm used to create a block
// locator.
//
// This function is safe for concurrent access.
func (c *chainView) BlockLocator(node *BlockNode) BlockLocator {
	c.mtx.Lock()
	locator := c.blockLocator(node)
	c.mtx.Unlock()
	return locator
}

// BlockLocator is used to help locate a specific block.  The algorithm for
// building the block locator is to add the hashes in reverse order until
// the genesis block is reached.  In order to keep the list of locator hashes
// to a reasonable number of entries, first the most recent previous 10 block
// hashes are added, then the step is doubled each loop iteration to
// exponentially decrease the number of hashes as a function of the distance
// from the block being located.
//
// For example, assume a block chain with a side chain as depicted below:
//
//	genesis -> 1 -> 2 -> ... -> 15 -> 16  -> 17  -> 18
//	                              \-> 16a -> 17a
//
// The block locator for block 17a would be the hashes of blocks:
// [17a 16a 15 14 13 12 11 10 9 8 7 6 4 genesis]
type BlockLocator []*hash.Hash
