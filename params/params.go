// Copyright (c) 2017-2018 The nox developers
// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package params

import (
	"time"

	"github.com/noxproject/dposd/common/hash"
	"github.com/noxproject/dposd/core/types"
)

// GenesisAsset is an asset registered by the genesis block.
type GenesisAsset struct {
	Symbol string
	Owner  types.AccountID
}

// GenesisDelegate is a block producer known at genesis together with the
// votes it starts with.
type GenesisDelegate struct {
	ID    types.AccountID
	Votes uint64
}

// GenesisBalance is an initial account balance.
type GenesisBalance struct {
	ID   types.AccountID
	Coin types.Coin
}

// GenesisAlloc is the state seeded when the genesis block is connected.
type GenesisAlloc struct {
	Assets     []GenesisAsset
	FeeSymbols []string
	Delegates  []GenesisDelegate
	Balances   []GenesisBalance
}

// Params defines a network by its parameters.
type Params struct {
	// Name defines a human-readable identifier for the network.
	Name string

	// GenesisBlock defines the first block of the chain.
	GenesisBlock *types.Block

	// GenesisHash is the starting block hash.
	GenesisHash *hash.Hash

	// Genesis is the state the genesis block bootstraps.
	Genesis GenesisAlloc

	// NativeSymbol is the asset fuel is burned in.
	NativeSymbol string

	// BlockVersion is the header version every non-genesis block must carry.
	BlockVersion uint32

	// BlockInterval is the minimum spacing between a block and its parent.
	BlockInterval time.Duration

	// MaxTimeOffset is the clock skew tolerated for blocks from the future.
	MaxTimeOffset time.Duration

	// MaxBlockSize is the maximum serialized size of a block.
	MaxBlockSize int

	// MaxNonce is the largest nonce a producer may put in a header.
	MaxNonce uint32

	// Fuel rate derivation.  The rate of a block is derived from the fuel
	// used over the FuelRateWindow blocks before it relative to
	// MaxBlockRunStep.
	MaxBlockRunStep uint64
	InitFuelRate    uint32
	MinFuelRate     uint32
	FuelRateWindow  int

	// TxValidHeightWindow is how far a transaction's valid height may be
	// from the height of the block including it.
	TxValidHeightWindow uint32

	// DelegateCount is the number of producers in the active set.
	DelegateCount int

	// RoundBlocks is the number of blocks after which the active set is
	// recomputed from votes.
	RoundBlocks uint32

	// MaxOrphanBlocks is the number of orphans held before eviction.
	MaxOrphanBlocks int

	// OrphanExpiry is how long an orphan is held.
	OrphanExpiry time.Duration

	// MaxForkDepth is the oldest fork point, in blocks below the tip, a
	// competing branch may have.
	MaxForkDepth uint32

	// ForkCacheSize bounds the number of fork state snapshots kept.
	ForkCacheSize int

	// FinalityTimeout is how long a stuck finality vote blocks a reorg.
	FinalityTimeout time.Duration

	// Fork warning thresholds, in blocks of work.
	LargeForkLength  uint32
	LargeForkWindow  uint32
	InvalidChainLead uint32
}

// FuelRateBand returns the run step bounds between which the fuel rate is
// left unchanged.
func (p *Params) FuelRateBand() (low, high uint64) {
	return p.MaxBlockRunStep * 75 / 100, p.MaxBlockRunStep * 85 / 100
}
