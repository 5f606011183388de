// Copyright (c) 2017-2018 The nox developers
// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package merkle

import (
	"math"

	"github.com/noxproject/dposd/common/hash"
)

// nextPowerOfTwo returns the next highest power of two from a given number if
// it is not already a power of two.  This is a helper function used during the
// calculation of a merkle tree.
func nextPowerOfTwo(n int) int {
	// Return the number if it's already a power of 2.
	if n&(n-1) == 0 {
		return n
	}

	// Figure out and return the next power of two.
	exponent := uint(math.Log2(float64(n))) + 1
	return 1 << exponent // 2^exponent
}

// BuildMerkleTreeStore creates a merkle tree from a slice of leaf hashes,
// stores it using a linear array, and returns a slice of the backing array.  A
// linear array was chosen as opposed to an actual tree structure since it uses
// about half as much memory.  The following describes a merkle tree and how it
// is stored in a linear array.
//
// A merkle tree is a tree in which every non-leaf node is the hash of its
// children nodes.  A diagram depicting how this works for transactions
// where h(x) is a double hash follows:
//
//	         root = h1234 = h(h12 + h34)
//	        /                           \
//	  h12 = h(h1 + h2)            h34 = h(h3 + h4)
//	   /            \              /            \
//	h1 = h(tx1)  h2 = h(tx2)    h3 = h(tx3)  h4 = h(tx4)
//
// The above stored as a linear array is as follows:
//
//	[h1 h2 h3 h4 h12 h34 root]
//
// As the above shows, the merkle root is always the last element in the array.
//
// The number of inputs is not always a power of two which results in a
// balanced tree structure as above.  In that case, parent nodes with no
// children are also zero and parent nodes with only a single left node
// are calculated by concatenating the left node with itself before hashing.
func BuildMerkleTreeStore(leaves []hash.Hash) []*hash.Hash {
	if len(leaves) == 0 {
		return []*hash.Hash{&hash.ZeroHash}
	}

	// Calculate how many entries are required to hold the binary merkle
	// tree as a linear array and create an array of that size.
	nextPoT := nextPowerOfTwo(len(leaves))
	arraySize := nextPoT*2 - 1
	merkles := make([]*hash.Hash, arraySize)

	for i := range leaves {
		leaf := leaves[i]
		merkles[i] = &leaf
	}

	// Start the array offset after the last leaf and adjusted to the
	// next power of two.
	offset := nextPoT
	for i := 0; i < arraySize-1; i += 2 {
		switch {
		// When there is no left child node, the parent is nil too.
		case merkles[i] == nil:
			merkles[offset] = nil

		// When there is no right child, the parent is generated by
		// hashing the concatenation of the left child with itself.
		case merkles[i+1] == nil:
			merkles[offset] = hash.HashMerkleBranches(merkles[i], merkles[i])

		// The normal case sets the parent node to the double hash
		// of the concatentation of the left and right children.
		default:
			merkles[offset] = hash.HashMerkleBranches(merkles[i], merkles[i+1])
		}
		offset++
	}

	return merkles
}

// Root returns the root of a tree built by BuildMerkleTreeStore.
func Root(store []*hash.Hash) hash.Hash {
	return *store[len(store)-1]
}

// Branch returns the sibling hashes needed to prove that the leaf at index is
// committed to by the root of store.  The leaf count is required to know the
// width of the bottom layer.
func Branch(store []*hash.Hash, leafCount int, index int) []hash.Hash {
	if index < 0 || index >= leafCount {
		return nil
	}
	var branch []hash.Hash
	width := nextPowerOfTwo(leafCount)
	levelOffset := 0
	for width > 1 {
		sibling := index ^ 1
		h := store[levelOffset+sibling]
		if h == nil {
			// A missing right sibling is hashed as the node itself.
			h = store[levelOffset+index]
		}
		branch = append(branch, *h)
		levelOffset += width
		index >>= 1
		width >>= 1
	}
	return branch
}

// CheckBranch folds a leaf hash up the passed branch and returns the implied
// root.
func CheckBranch(leaf hash.Hash, branch []hash.Hash, index int) hash.Hash {
	cur := &leaf
	for i := range branch {
		sibling := branch[i]
		if index&1 == 1 {
			cur = hash.HashMerkleBranches(&sibling, cur)
		} else {
			cur = hash.HashMerkleBranches(cur, &sibling)
		}
		index >>= 1
	}
	return *cur
}
