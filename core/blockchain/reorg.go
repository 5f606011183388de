// Copyright (c) 2017-2018 The nox developers
// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"time"

	"github.com/noxproject/dposd/common/hash"
	"github.com/noxproject/dposd/core/state"
	"github.com/noxproject/dposd/core/types"
)

// ActivateBestChain makes the most-work valid chain known to the index the
// active one, disconnecting and connecting blocks as needed.
//
// This function is safe for concurrent access.
func (b *BlockChain) ActivateBestChain() error {
	defer b.flushNotifications()
	b.chainLock.Lock()
	defer b.chainLock.Unlock()
	return b.activateBestChain()
}

// activateBestChain repeats reorganization steps until the active tip is the
// best candidate or no further progress can be made.  Only system errors are
// returned; blocks failing the rules are marked and excluded.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *BlockChain) activateBestChain() error {
	oldTip := b.bestChain.Tip()
	var disconnected, connected int
	refused := make(map[*BlockNode]struct{})
	for {
		candidate := b.findMostWorkChain(refused)
		tip := b.bestChain.Tip()
		if candidate == nil || candidate == tip || !workLess(tip, candidate) {
			break
		}
		d, c, ok, err := b.activateBestChainStep(candidate)
		disconnected += d
		connected += c
		if err != nil {
			return err
		}
		if !ok {
			refused[candidate] = struct{}{}
			if len(refused) == 1 {
				b.finality.NotifyFinalityStuck()
			}
		}
	}

	if disconnected > 0 {
		newTip := b.bestChain.Tip()
		log.Info("Chain reorganized", "old", oldTip.hash, "oldheight", oldTip.height,
			"new", newTip.hash, "newheight", newTip.height,
			"disconnected", disconnected, "connected", connected)
		reorgCounter.Inc(1)
		b.sendNotification(Reorganization, &ReorganizationNotifyData{
			OldTip:       &oldTip.hash,
			OldHeight:    oldTip.height,
			NewTip:       &newTip.hash,
			NewHeight:    newTip.height,
			Disconnected: disconnected,
			Connected:    connected,
		})
	}
	b.pruneCandidates()
	return nil
}

// activateBestChainStep moves the active chain towards candidate.  It
// returns the number of blocks disconnected and connected, and false when
// the finality guard refused the switch.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *BlockChain) activateBestChainStep(candidate *BlockNode) (int, int, bool, error) {
	fork := b.bestChain.FindFork(candidate)
	if fork == nil {
		return 0, 0, false, AssertError("candidate " + candidate.hash.String() +
			" does not fork from the active chain")
	}

	if !b.finalityAllows(fork) {
		return 0, 0, false, nil
	}

	var disconnected, connected int
	for b.bestChain.Tip() != fork {
		if err := b.disconnectTip(); err != nil {
			return disconnected, connected, true, err
		}
		disconnected++
	}

	attach := make([]*BlockNode, 0, candidate.height-fork.height)
	for n := candidate; n != fork; n = n.parent {
		attach = append(attach, n)
	}
	for i := len(attach) - 1; i >= 0; i-- {
		node := attach[i]
		block, err := b.fetchBlock(node)
		if err != nil {
			return disconnected, connected, true, err
		}
		if err := b.connectTip(node, block); err != nil {
			if _, ok := AsRuleError(err); ok {
				b.invalidBlockFound(node, err)
				return disconnected, connected, true, nil
			}
			return disconnected, connected, true, err
		}
		connected++
	}
	return disconnected, connected, true, nil
}

// finalityAllows walks the active chain from its tip down to fork and
// reports whether every block on the way may be disconnected.  A block
// finalized by the network always blocks the switch.  A locally finalized
// block blocks it unless the finality tracker reports it stuck past its
// timeout and releases it.
//
// This function MUST be called with the chain state lock held (for reads).
func (b *BlockChain) finalityAllows(fork *BlockNode) bool {
	var local []*BlockNode
	for n := b.bestChain.Tip(); n != nil && n != fork; n = n.parent {
		if !b.finality.IsFinalized(&n.hash) {
			continue
		}
		if b.finality.IsGlobalFinalized(&n.hash) {
			log.Warn("Refusing to disconnect globally finalized block",
				"hash", n.hash, "height", n.height, "fork", fork.hash)
			return false
		}
		local = append(local, n)
	}
	if len(local) == 0 {
		return true
	}

	// Only the local point is left in the way, so the override is worth
	// spending.
	if b.finality.TimedOut() {
		released := true
		for _, n := range local {
			if b.finality.IsFinalized(&n.hash) {
				released = false
				break
			}
		}
		if released {
			log.Warn("Finality timed out, reorganizing past released block",
				"hash", local[0].hash, "height", local[0].height)
			return true
		}
	}
	log.Warn("Refusing to disconnect finalized block", "hash", local[0].hash,
		"height", local[0].height, "fork", fork.hash)
	return false
}

// findMostWorkChain returns the best candidate whose branch off the active
// chain is fully stored and not known to be invalid.  Candidates passing
// through an invalid node are marked and dropped along the way.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *BlockChain) findMostWorkChain(skip map[*BlockNode]struct{}) *BlockNode {
	for {
		var best *BlockNode
		for node := range b.candidates {
			if _, ok := skip[node]; ok {
				continue
			}
			if best == nil || workLess(best, node) {
				best = node
			}
		}
		if best == nil {
			return nil
		}

		usable := true
		n := best
		for ; n != nil && !b.bestChain.Contains(n); n = n.parent {
			status := b.index.NodeStatus(n)
			if status.KnownInvalid() {
				for m := best; m != n; m = m.parent {
					b.index.SetStatusFlags(m, statusInvalidAncestor)
					delete(b.candidates, m)
				}
				if b.bestInvalid == nil || workLess(b.bestInvalid, best) {
					b.bestInvalid = best
				}
				usable = false
				break
			}
			if !status.HaveData() {
				delete(b.candidates, best)
				usable = false
				break
			}
		}
		if usable && n == nil {
			// The branch never reaches the active chain.
			delete(b.candidates, best)
			usable = false
		}
		if usable {
			return best
		}
	}
}

// pruneCandidates drops candidates that can no longer beat the tip.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *BlockChain) pruneCandidates() {
	tip := b.bestChain.Tip()
	for node := range b.candidates {
		if node != tip && workLess(node, tip) {
			delete(b.candidates, node)
		}
	}
}

// invalidBlockFound marks node as failed after it broke a rule.  Its
// descendants are marked lazily by findMostWorkChain.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *BlockChain) invalidBlockFound(node *BlockNode, err error) {
	log.Warn("Block failed validation", "hash", node.hash, "height", node.height,
		"err", err)
	b.index.SetStatusFlags(node, statusValidateFailed)
	b.failedNode, b.failedErr = node, err
	delete(b.candidates, node)
	if b.bestInvalid == nil || workLess(b.bestInvalid, node) {
		b.bestInvalid = node
	}
	b.checkForkWarningConditions(nil)
}

// connectTip connects block, the child of the active tip, commits the
// resulting state and advances the tip.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *BlockChain) connectTip(node *BlockNode, block *types.Block) error {
	start := time.Now()
	if node.parent != b.bestChain.Tip() {
		return AssertError("connectTip: block " + node.hash.String() +
			" does not extend the active tip")
	}

	view := state.NewCache(b.db)
	if _, err := b.connectBlockCommit(block, node, view); err != nil {
		return err
	}

	prev := b.BestSnapshot()
	numTxns := uint64(len(block.Transactions))
	snapshot := newBestState(node, numTxns, prev.TotalTxns+numTxns,
		calcFuelRate(node, b.params))
	if err := b.commitState(view, snapshot); err != nil {
		return err
	}
	b.bestChain.SetTip(node)
	b.forkCache.Purge()
	b.setBestState(snapshot)

	b.sendNotification(BlockConnected, block)
	if b.txPool != nil {
		txids := make([]hash.Hash, 0, len(block.Transactions)-1)
		for _, tx := range block.Transactions[1:] {
			txids = append(txids, tx.TxHash())
		}
		b.txPool.RemoveIncluded(txids)
	}
	b.finality.RecordNewTip(node)

	connectCounter.Inc(1)
	connectTimer.UpdateSince(start)
	log.Debug("Connected block", "hash", node.hash, "height", node.height,
		"txs", numTxns)
	return nil
}

// disconnectTip rolls the active tip back to its parent and commits the
// result.  Any failure is a system error.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *BlockChain) disconnectTip() error {
	node := b.bestChain.Tip()
	parent := node.parent
	if parent == nil {
		return AssertError("disconnectTip: cannot disconnect the genesis block")
	}
	block, err := b.fetchBlock(node)
	if err != nil {
		return err
	}

	view := state.NewCache(b.db)
	if err := b.disconnectBlock(block, node, view); err != nil {
		return err
	}

	prev := b.BestSnapshot()
	snapshot := newBestState(parent, uint64(parent.txCount),
		prev.TotalTxns-uint64(len(block.Transactions)), calcFuelRate(parent, b.params))
	if err := b.commitState(view, snapshot); err != nil {
		return err
	}
	b.bestChain.SetTip(parent)
	b.forkCache.Purge()
	b.setBestState(snapshot)

	b.sendNotification(BlockDisconnected, block)
	if b.txPool != nil {
		b.txPool.Reintroduce(block.Transactions[1:])
	}
	b.finality.RecordNewTip(parent)

	disconnectCounter.Inc(1)
	log.Debug("Disconnected block", "hash", node.hash, "height", node.height)
	return nil
}
