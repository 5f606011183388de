// Copyright (c) 2017-2018 The nox developers

package blockchain

import (
	"time"

	"github.com/noxproject/dposd/common/hash"
	"github.com/noxproject/dposd/core/state"
	"github.com/noxproject/dposd/core/types"
)

// ExecContext is what a transaction executes against.  Cache is the state
// layer of the block being connected; every mutation the executor makes must
// go through it so that it is captured for undo.
type ExecContext struct {
	Height    uint32
	Index     int
	FuelRate  uint32
	Timestamp time.Time
	Miner     types.AccountID
	BlockHash hash.Hash
	Cache     *state.Cache
}

// Receipt reports the cost of an executed transaction.
type Receipt struct {
	// RunStep is the metered execution effort.
	RunStep uint64

	// Fee is what the transaction paid.
	Fee types.Coin
}

// TxExecutor checks and applies transactions.  An error that is not a
// storage failure rejects the block as invalid.
type TxExecutor interface {
	CheckAndExecute(tx types.Transaction, ctx *ExecContext) (*Receipt, error)
}

// DelegateRotator updates the producer set.  It runs once per connected
// block, after the transactions, in commit and in dry-run mode alike.
type DelegateRotator interface {
	OnBlockConnected(block *types.Block, cache *state.Cache) error
}

// FinalityTracker guards blocks a reorganization must not undo.
type FinalityTracker interface {
	// IsFinalized reports whether the block may no longer be disconnected.
	IsFinalized(h *hash.Hash) bool

	// IsGlobalFinalized reports whether the block was finalized by the
	// network.  Such a block is never released by a timeout.
	IsGlobalFinalized(h *hash.Hash) bool

	// NotifyFinalityStuck is called when a better chain was refused
	// because it would undo a finalized block.
	NotifyFinalityStuck()

	// RecordNewTip is called after every change of the active tip.
	RecordNewTip(node *BlockNode)

	// TimedOut reports whether finality has been stuck long enough that
	// the locally derived finality point should be released.  Releasing
	// is a side effect of a true result.
	TimedOut() bool
}

// TxPool is the unconfirmed transaction pool.
type TxPool interface {
	// RemoveIncluded drops transactions confirmed by a connected block.
	RemoveIncluded(txids []hash.Hash)

	// Reintroduce returns transactions of a disconnected block.
	Reintroduce(txs []types.Transaction)
}

// PeerSyncer asks a peer for the blocks between a locator and stop.
type PeerSyncer interface {
	RequestBlocks(source string, locator BlockLocator, stop *hash.Hash)
}
