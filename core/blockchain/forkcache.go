// Copyright (c) 2017-2018 The nox developers

package blockchain

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/noxproject/dposd/common/hash"
	"github.com/noxproject/dposd/core/state"
	"github.com/pkg/errors"
)

// forkSnapshot is the state of a competing branch.  base is the committed
// state rolled back to point; tip is a layer on base holding the branch up to
// tipNode.
type forkSnapshot struct {
	point   *BlockNode
	base    *state.Cache
	tipNode *BlockNode
	tip     *state.Cache
}

func newForkSnapshot(point *BlockNode, base *state.Cache) *forkSnapshot {
	return &forkSnapshot{
		point:   point,
		base:    base,
		tipNode: point,
		tip:     base.NewChild(),
	}
}

// forkCache keeps fork snapshots keyed by fork point.  Every snapshot is
// derived from the committed state, so the cache is purged whenever the
// active chain changes.
type forkCache struct {
	lru *lru.Cache[hash.Hash, *forkSnapshot]
}

func newForkCache(size int) (*forkCache, error) {
	if size <= 0 {
		size = 1
	}
	c, err := lru.New[hash.Hash, *forkSnapshot](size)
	if err != nil {
		return nil, errors.Wrap(err, "create fork cache")
	}
	return &forkCache{lru: c}, nil
}

func (fc *forkCache) Get(point *hash.Hash) (*forkSnapshot, bool) {
	return fc.lru.Get(*point)
}

func (fc *forkCache) Add(snap *forkSnapshot) {
	fc.lru.Add(snap.point.hash, snap)
	forkCacheGauge.Update(int64(fc.lru.Len()))
}

func (fc *forkCache) Purge() {
	if fc.lru.Len() == 0 {
		return
	}
	fc.lru.Purge()
	forkCacheGauge.Update(0)
}

func (fc *forkCache) Len() int {
	return fc.lru.Len()
}

// Keys returns the fork points held, oldest first.
func (fc *forkCache) Keys() []hash.Hash {
	return fc.lru.Keys()
}
