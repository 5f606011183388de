// Copyright (c) 2017-2018 The nox developers

// Package finality tracks the blocks the chain must never reorganize past.
//
// The local finality point is derived from the active chain: a block is
// final once more than two thirds of the active delegates produced blocks
// on top of it.  The global finality point is set from outside, by the
// consensus layer that gathers finality votes.
package finality

import (
	"sync"
	"time"

	"github.com/noxproject/dposd/common/hash"
	"github.com/noxproject/dposd/core/blockchain"
	"github.com/noxproject/dposd/core/types"
)

// maxWalk bounds how far below the tip finality is looked for.
const maxWalk = 1000

// point is a finalized block.
type point struct {
	hash   hash.Hash
	height uint32
}

// Tracker is the default blockchain.FinalityTracker.
type Tracker struct {
	mtx        sync.Mutex
	threshold  int
	timeout    time.Duration
	local      *point
	global     *point
	stuckSince time.Time

	// now is the clock, replaced in tests.
	now func() time.Time
}

// NewTracker returns a tracker for a producer set of delegateCount accounts
// that releases the local finality point after finality has been stuck for
// timeout.
func NewTracker(delegateCount int, timeout time.Duration) *Tracker {
	return &Tracker{
		threshold: delegateCount*2/3 + 1,
		timeout:   timeout,
		now:       time.Now,
	}
}

// IsFinalized reports whether h is the local or the global finality point.
func (t *Tracker) IsFinalized(h *hash.Hash) bool {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return (t.local != nil && t.local.hash.IsEqual(h)) ||
		(t.global != nil && t.global.hash.IsEqual(h))
}

// IsGlobalFinalized reports whether h is the global finality point.
func (t *Tracker) IsGlobalFinalized(h *hash.Hash) bool {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return t.global != nil && t.global.hash.IsEqual(h)
}

// NotifyFinalityStuck starts the stuck timer unless it already runs.
func (t *Tracker) NotifyFinalityStuck() {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if t.stuckSince.IsZero() {
		t.stuckSince = t.now()
		log.Warn("Finality is stuck", "local", t.localString(), "timeout", t.timeout)
	}
}

// TimedOut reports whether finality has been stuck for longer than the
// timeout.  A true result releases the local finality point and resets the
// timer, so the override applies once.
func (t *Tracker) TimedOut() bool {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if t.stuckSince.IsZero() || t.now().Sub(t.stuckSince) < t.timeout {
		return false
	}
	log.Warn("Finality timed out, releasing local finality point",
		"local", t.localString(), "stuck", t.now().Sub(t.stuckSince))
	t.local = nil
	t.stuckSince = time.Time{}
	return true
}

// RecordNewTip advances the local finality point along the chain ending at
// node.  The point never moves back while it is set.
func (t *Tracker) RecordNewTip(node *blockchain.BlockNode) {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	producers := make(map[types.AccountID]struct{}, t.threshold)
	for i, n := 0, node; i < maxWalk && n != nil && n.Parent() != nil; i, n = i+1, n.Parent() {
		if t.local != nil && n.Height() <= t.local.height {
			return
		}
		producers[n.Miner()] = struct{}{}
		if len(producers) < t.threshold {
			continue
		}
		final := n.Parent()
		if t.local != nil && final.Height() <= t.local.height {
			return
		}
		t.local = &point{hash: *final.Hash(), height: final.Height()}
		t.stuckSince = time.Time{}
		log.Debug("Local finality advanced", "hash", t.local.hash,
			"height", t.local.height)
		return
	}
}

// SetGlobalFinalized records the block the network agreed to be final.
func (t *Tracker) SetGlobalFinalized(h *hash.Hash, height uint32) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if t.global != nil && height <= t.global.height {
		return
	}
	t.global = &point{hash: *h, height: height}
	log.Info("Global finality advanced", "hash", h, "height", height)
}

// LocalFinalized returns the local finality point, nil when there is none.
func (t *Tracker) LocalFinalized() (*hash.Hash, uint32) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if t.local == nil {
		return nil, 0
	}
	h := t.local.hash
	return &h, t.local.height
}

// GlobalFinalized returns the global finality point, nil when there is none.
func (t *Tracker) GlobalFinalized() (*hash.Hash, uint32) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if t.global == nil {
		return nil, 0
	}
	h := t.global.hash
	return &h, t.global.height
}

func (t *Tracker) localString() string {
	if t.local == nil {
		return "none"
	}
	return t.local.hash.String()
}
