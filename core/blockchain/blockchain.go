// Copyright (c) 2017-2018 The nox developers
// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2018 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/noxproject/dposd/common/hash"
	"github.com/noxproject/dposd/core/state"
	"github.com/noxproject/dposd/core/types"
	"github.com/noxproject/dposd/database"
	"github.com/noxproject/dposd/database/flatfile"
	l "github.com/noxproject/dposd/log"
	"github.com/noxproject/dposd/params"
	"github.com/pkg/errors"
)

// BlockChain provides functions for working with the block chain.  It
// includes functionality such as rejecting duplicate blocks, ensuring blocks
// follow all rules, orphan handling, fork probing and best chain selection
// with reorganization.
type BlockChain struct {
	// The following fields are set when the instance is created and can't
	// be changed afterwards, so there is no need to protect them with a
	// separate mutex.
	params     *params.Params
	db         database.DB
	blockFiles *flatfile.Store
	undoFiles  *flatfile.Store
	timeSource MedianTimeSource
	executor   TxExecutor
	rotator    DelegateRotator
	finality   FinalityTracker
	txPool     TxPool
	syncer     PeerSyncer
	events     *event.Feed

	maxOrphans   int
	maxForkDepth uint32

	// chainLock protects concurrent access to the vast majority of the
	// fields in this struct below this point.
	chainLock sync.RWMutex

	// These fields are related to the memory block index.  bestChain is
	// the chain whose state is committed to the database.  candidates
	// holds every node with stored data that may still become the tip.
	index      *blockIndex
	bestChain  *chainView
	candidates map[*BlockNode]struct{}

	// bestInvalid is the most-work node known to have failed validation.
	bestInvalid *BlockNode

	// The last node found invalid and the rule it broke.
	failedNode *BlockNode
	failedErr  error

	// forkCache holds the state of competing branches between probes.
	forkCache *forkCache

	// These fields are related to handling of orphan blocks.
	orphans     map[hash.Hash]*orphanBlock
	prevOrphans map[hash.Hash][]*orphanBlock

	// Bookkeeping of the block files.
	blockFileInfo map[int32]*BlockFileInfo
	dirtyFileInfo map[int32]struct{}
	lastBlockFile int32

	// Fork warning state.
	bestForkTip  *BlockNode
	bestForkBase *BlockNode
	forkWarning  ForkWarning

	// The state is used as a fairly efficient way to cache information
	// about the current best chain state that is returned to callers when
	// requested.  It operates on the principle of MVCC such that any time a
	// new block becomes the best block, the state pointer is replaced with
	// a new struct and the old state is left untouched.  In this way,
	// multiple callers can be pointing to different best chain states.
	stateLock     sync.RWMutex
	stateSnapshot *BestState

	// Notifications queued while the chain lock is held.
	notifyLock           sync.Mutex
	pendingNotifications []*Notification
}

// Config is a descriptor which specifies the blockchain instance configuration.
type Config struct {
	// DB defines the database which houses the block index and the chain
	// state.
	//
	// This field is required.
	DB database.DB

	// DataDir is the directory the block and undo files are kept under.
	//
	// This field is required.
	DataDir string

	// MaxFileSize bounds the size of a block or undo file.  Zero selects
	// the default.
	MaxFileSize uint32

	// Params identifies which chain parameters the chain is associated
	// with.
	//
	// This field is required.
	Params *params.Params

	// TimeSource defines the median time source to use for things such as
	// block processing and determining whether or not the chain is current.
	// The local clock is used when nil.
	TimeSource MedianTimeSource

	// Executor checks and applies transactions.
	//
	// This field is required.
	Executor TxExecutor

	// Rotator updates the delegate set after every block.  Nothing is
	// rotated when nil.
	Rotator DelegateRotator

	// Finality guards finalized blocks.  Nothing is finalized when nil.
	Finality FinalityTracker

	// TxPool receives the transactions of connected and disconnected
	// blocks.  This field can be nil.
	TxPool TxPool

	// Syncer is asked for the missing ancestors of orphans.  This field can
	// be nil.
	Syncer PeerSyncer

	// Events receives a *Notification for every chain event.  This field
	// can be nil if the caller is not interested in receiving
	// notifications.
	Events *event.Feed

	// Overrides of the network limits.  Zero keeps the value of Params.
	MaxOrphanBlocks int
	ForkCacheSize   int
	MaxForkDepth    uint32
}

// orphanBlock represents a block that we don't yet have the parent for.  It
// is a normal block plus an expiration time to prevent caching the orphan
// forever.
type orphanBlock struct {
	block      *types.Block
	expiration time.Time
}

// BestState houses information about the current best block and other info
// related to the state of the main chain as it exists from the point of view of
// the current best block.
//
// The BestSnapshot method can be used to obtain access to this information
// in a concurrent safe manner and the data will not be changed out from under
// the caller when chain state changes occur as the function name implies.
// However, the returned snapshot must be treated as immutable since it is
// shared by all callers.
type BestState struct {
	Hash         hash.Hash // The hash of the block.
	PrevHash     hash.Hash // The hash of the parent block.
	Height       uint32    // The height of the block.
	Timestamp    time.Time // The time of the block.
	NextFuelRate uint32    // The fuel rate the next block must declare.
	BlockTxns    uint64    // The number of txns in the block.
	TotalTxns    uint64    // The total number of txns in the chain.
}

// newBestState returns a new best stats instance for the given parameters.
func newBestState(node *BlockNode, blockTxns, totalTxns uint64, nextFuelRate uint32) *BestState {
	return &BestState{
		Hash:         node.hash,
		PrevHash:     node.prevHash,
		Height:       node.height,
		Timestamp:    node.Timestamp(),
		NextFuelRate: nextFuelRate,
		BlockTxns:    blockTxns,
		TotalTxns:    totalTxns,
	}
}

// BestSnapshot returns information about the current best chain block and
// related state as of the current point in time.  The returned instance must be
// treated as immutable since it is shared by all callers.
//
// This function is safe for concurrent access.
func (b *BlockChain) BestSnapshot() *BestState {
	b.stateLock.RLock()
	snapshot := b.stateSnapshot
	b.stateLock.RUnlock()
	return snapshot
}

func (b *BlockChain) setBestState(snapshot *BestState) {
	b.stateLock.Lock()
	b.stateSnapshot = snapshot
	b.stateLock.Unlock()
}

// nopRotator leaves the delegate set untouched.
type nopRotator struct{}

func (nopRotator) OnBlockConnected(*types.Block, *state.Cache) error { return nil }

// nopFinality finalizes nothing.
type nopFinality struct{}

func (nopFinality) IsFinalized(*hash.Hash) bool       { return false }
func (nopFinality) IsGlobalFinalized(*hash.Hash) bool { return false }
func (nopFinality) NotifyFinalityStuck()              {}
func (nopFinality) RecordNewTip(*BlockNode)           {}
func (nopFinality) TimedOut() bool                    { return false }

// New returns a BlockChain instance using the provided configuration details.
func New(config *Config) (*BlockChain, error) {
	// Enforce required config fields.
	if config.DB == nil {
		return nil, AssertError("blockchain.New database is nil")
	}
	if config.Params == nil {
		return nil, AssertError("blockchain.New chain parameters nil")
	}
	if config.Executor == nil {
		return nil, AssertError("blockchain.New transaction executor is nil")
	}
	if config.DataDir == "" {
		return nil, AssertError("blockchain.New data directory is empty")
	}

	par := config.Params
	b := &BlockChain{
		params:        par,
		db:            config.DB,
		timeSource:    config.TimeSource,
		executor:      config.Executor,
		rotator:       config.Rotator,
		finality:      config.Finality,
		txPool:        config.TxPool,
		syncer:        config.Syncer,
		events:        config.Events,
		maxOrphans:    par.MaxOrphanBlocks,
		maxForkDepth:  par.MaxForkDepth,
		index:         newBlockIndex(config.DB, par),
		bestChain:     newChainView(nil),
		candidates:    make(map[*BlockNode]struct{}),
		orphans:       make(map[hash.Hash]*orphanBlock),
		prevOrphans:   make(map[hash.Hash][]*orphanBlock),
		blockFileInfo: make(map[int32]*BlockFileInfo),
		dirtyFileInfo: make(map[int32]struct{}),
	}
	if b.timeSource == nil {
		b.timeSource = NewTimeSource()
	}
	if b.rotator == nil {
		b.rotator = nopRotator{}
	}
	if b.finality == nil {
		b.finality = nopFinality{}
	}
	if config.MaxOrphanBlocks > 0 {
		b.maxOrphans = config.MaxOrphanBlocks
	}
	if config.MaxForkDepth > 0 {
		b.maxForkDepth = config.MaxForkDepth
	}
	cacheSize := par.ForkCacheSize
	if config.ForkCacheSize > 0 {
		cacheSize = config.ForkCacheSize
	}
	fc, err := newForkCache(cacheSize)
	if err != nil {
		return nil, err
	}
	b.forkCache = fc

	blocksDir := filepath.Join(config.DataDir, "blocks")
	b.blockFiles, err = flatfile.Open(blocksDir, blockFilePrefix, config.MaxFileSize)
	if err != nil {
		return nil, err
	}
	b.undoFiles, err = flatfile.Open(blocksDir, undoFilePrefix, config.MaxFileSize)
	if err != nil {
		b.blockFiles.Close()
		return nil, err
	}

	// Initialize the chain state from the passed database.  When the db
	// does not yet contain any chain state, both it and the chain state
	// will be initialized to contain only the genesis block.
	if err := b.initChainState(); err != nil {
		b.blockFiles.Close()
		b.undoFiles.Close()
		return nil, err
	}
	b.flushNotifications()

	snapshot := b.BestSnapshot()
	log.Info("Chain state", "height", snapshot.Height, "hash", snapshot.Hash,
		"tx_num", snapshot.TotalTxns, "nodes", b.index.Len())
	return b, nil
}

// createChainState initializes both the database and the chain state to the
// genesis block.
func (b *BlockChain) createChainState() error {
	genesis := b.params.GenesisBlock
	pos, err := b.writeBlock(genesis)
	if err != nil {
		return err
	}
	node := b.index.Insert(&genesis.Header)
	node.blockPos = pos
	node.txCount = uint32(len(genesis.Transactions))
	node.miner = genesis.Miner()
	b.index.SetStatusFlags(node, statusDataStored|statusValidTx)

	view := state.NewCache(b.db)
	if _, err := b.connectBlockCommit(genesis, node, view); err != nil {
		return err
	}

	numTxns := uint64(len(genesis.Transactions))
	snapshot := newBestState(node, numTxns, numTxns, calcFuelRate(node, b.params))
	if err := b.commitState(view, snapshot); err != nil {
		return err
	}
	b.bestChain.SetTip(node)
	b.setBestState(snapshot)
	b.candidates[node] = struct{}{}
	b.finality.RecordNewTip(node)
	log.Info("Created chain state", "genesis", node.hash)
	return nil
}

// initChainState attempts to load and initialize the chain state from the
// database.  When the db does not yet contain any chain state, both it and the
// chain state are initialized to the genesis block.
func (b *BlockChain) initChainState() error {
	best, found, err := dbFetchBestState(b.db)
	if err != nil {
		return err
	}
	if !found {
		return b.createChainState()
	}

	log.Info("Loading block index...")
	bidxStart := time.Now()
	if err := b.index.load(); err != nil {
		return err
	}
	tip := b.index.LookupNode(&best.hash)
	if tip == nil {
		return AssertError(fmt.Sprintf("initChainState: cannot find "+
			"chain tip %s in block index", best.hash))
	}
	if genesis := tip.Ancestor(0); genesis == nil || !genesis.hash.IsEqual(b.params.GenesisHash) {
		return errors.Errorf("chain tip %v does not descend from the %s genesis",
			best.hash, b.params.Name)
	}
	stateBest, err := state.NewCache(b.db).BestBlock()
	if err != nil {
		return err
	}
	if !stateBest.IsEqual(&tip.hash) {
		return errors.Errorf("state is at block %v, chain tip is %v",
			stateBest, tip.hash)
	}
	log.Debug("Loaded block index", "nodes", b.index.Len(),
		"elapsed", time.Since(bidxStart))

	if v, err := b.db.Get(lastBlockFileKey); err == nil && len(v) == 4 {
		b.lastBlockFile = int32(binary.BigEndian.Uint32(v))
	} else if err != nil && err != database.ErrNotFound {
		return errors.Wrap(err, "fetch last block file")
	}

	b.bestChain.SetTip(tip)
	b.setBestState(newBestState(tip, uint64(tip.txCount), best.totalTxns,
		calcFuelRate(tip, b.params)))
	b.rebuildCandidates()
	b.finality.RecordNewTip(tip)

	// A crash between accepting a block and connecting it leaves better
	// candidates behind.
	return b.activateBestChain()
}

// commitState writes view together with the new best state, the dirty index
// entries and the block file bookkeeping in one atomic batch.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *BlockChain) commitState(view *state.Cache, snapshot *BestState) error {
	// The records the index is about to point at must be durable first.
	if err := b.blockFiles.Sync(); err != nil {
		return err
	}
	if err := b.undoFiles.Sync(); err != nil {
		return err
	}
	batch := database.NewBatch()
	view.FlushTo(batch)
	dbPutBestState(batch, snapshot)
	b.index.flushTo(batch)
	b.flushFileInfo(batch)
	if err := b.db.Write(batch); err != nil {
		return errors.Wrapf(err, "commit chain state at %v", snapshot.Hash)
	}
	b.index.clearDirty()
	return nil
}

// rebuildCandidates recomputes the set of nodes that may become the tip.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *BlockChain) rebuildCandidates() {
	tip := b.bestChain.Tip()
	b.candidates = make(map[*BlockNode]struct{})
	b.index.forEach(func(node *BlockNode) {
		status := b.index.NodeStatus(node)
		if !status.HaveData() || status.KnownInvalid() {
			return
		}
		if node.parent == nil && node != b.bestChain.Genesis() {
			return
		}
		if node == tip || workLess(tip, node) {
			b.candidates[node] = struct{}{}
		}
	})
}

// Params returns the network parameters of the chain.
func (b *BlockChain) Params() *params.Params {
	return b.params
}

// HaveBlock returns whether or not the chain instance has the block
// represented by the passed hash.  This includes checking the various places
// a block can be like part of the main chain, on another chain, or in the
// orphan pool.  Nodes known only by their header do not count.
//
// This function is safe for concurrent access.
func (b *BlockChain) HaveBlock(hash *hash.Hash) bool {
	b.chainLock.RLock()
	defer b.chainLock.RUnlock()
	if node := b.index.LookupNode(hash); node != nil && b.index.NodeStatus(node).HaveData() {
		return true
	}
	_, exists := b.orphans[*hash]
	return exists
}

// LookupNode returns the index node of a block, nil when unknown.
//
// This function is safe for concurrent access.
func (b *BlockChain) LookupNode(hash *hash.Hash) *BlockNode {
	return b.index.LookupNode(hash)
}

// NodeStatus returns the validation flags of a node.
//
// This function is safe for concurrent access.
func (b *BlockChain) NodeStatus(node *BlockNode) blockStatus {
	return b.index.NodeStatus(node)
}

// InsertHeader indexes a header ahead of its block, as done during
// headers-first sync.  The node takes part in chain selection once its block
// is processed.
//
// This function is safe for concurrent access.
func (b *BlockChain) InsertHeader(header *types.BlockHeader) *BlockNode {
	b.chainLock.Lock()
	defer b.chainLock.Unlock()
	return b.index.Insert(header)
}

// MainChainHasBlock returns whether or not the block with the given hash is in
// the main chain.
//
// This function is safe for concurrent access.
func (b *BlockChain) MainChainHasBlock(hash *hash.Hash) bool {
	node := b.index.LookupNode(hash)
	return node != nil && b.bestChain.Contains(node)
}

// BlockByHash returns the block from the main chain or a side chain with the
// given hash.
//
// This function is safe for concurrent access.
func (b *BlockChain) BlockByHash(hash *hash.Hash) (*types.Block, error) {
	b.chainLock.RLock()
	defer b.chainLock.RUnlock()
	node := b.index.LookupNode(hash)
	if node == nil || !b.index.NodeStatus(node).HaveData() {
		return nil, errors.Errorf("block %s is not known", hash)
	}
	return b.fetchBlock(node)
}

// BlockByHeight returns the block at the given height in the main chain.
//
// This function is safe for concurrent access.
func (b *BlockChain) BlockByHeight(height uint32) (*types.Block, error) {
	b.chainLock.RLock()
	defer b.chainLock.RUnlock()
	node := b.bestChain.NodeByHeight(height)
	if node == nil {
		return nil, errors.Errorf("no block at height %d exists", height)
	}
	return b.fetchBlock(node)
}

// BlockHashByHeight returns the hash of the main chain block at height.
//
// This function is safe for concurrent access.
func (b *BlockChain) BlockHashByHeight(height uint32) (*hash.Hash, error) {
	node := b.bestChain.NodeByHeight(height)
	if node == nil {
		return nil, errors.Errorf("no block at height %d exists", height)
	}
	return &node.hash, nil
}

// FetchTxLocation returns where a confirmed transaction is stored, nil when
// the transaction is not confirmed on the main chain.
//
// This function is safe for concurrent access.
func (b *BlockChain) FetchTxLocation(txHash *hash.Hash) (*TxLocation, error) {
	b.chainLock.RLock()
	defer b.chainLock.RUnlock()
	v, ok, err := state.NewCache(b.db).Get(state.SubsysTxIndex, state.TxKey(txHash))
	if err != nil || !ok {
		return nil, err
	}
	return deserializeTxLocation(v)
}

// FetchTransaction returns a confirmed transaction together with its
// location.
//
// This function is safe for concurrent access.
func (b *BlockChain) FetchTransaction(txHash *hash.Hash) (types.Transaction, *TxLocation, error) {
	loc, err := b.FetchTxLocation(txHash)
	if err != nil {
		return nil, nil, err
	}
	if loc == nil {
		return nil, nil, errors.Errorf("transaction %v is not confirmed", txHash)
	}
	block, err := b.BlockByHash(&loc.Block)
	if err != nil {
		return nil, nil, err
	}
	for _, tx := range block.Transactions {
		if h := tx.TxHash(); h.IsEqual(txHash) {
			return tx, loc, nil
		}
	}
	return nil, nil, errors.Errorf("block %v does not hold transaction %v",
		loc.Block, txHash)
}

// ReadState calls fn with a read-only view of the committed chain state.  The
// cache must not be retained or modified.
//
// This function is safe for concurrent access.
func (b *BlockChain) ReadState(fn func(view *state.Cache) error) error {
	b.chainLock.RLock()
	defer b.chainLock.RUnlock()
	return fn(state.NewCache(b.db))
}

// ForkCacheLen returns the number of cached fork snapshots.
func (b *BlockChain) ForkCacheLen() int {
	b.chainLock.RLock()
	defer b.chainLock.RUnlock()
	return b.forkCache.Len()
}

// Close flushes and closes the block and undo files.  The database is owned
// by the caller.
func (b *BlockChain) Close() error {
	b.chainLock.Lock()
	defer b.chainLock.Unlock()
	if err := b.flushIndex(); err != nil {
		log.Error("Failed to flush block index", "err", err, "at", l.Location(0))
	}
	berr := b.blockFiles.Close()
	uerr := b.undoFiles.Close()
	if berr != nil {
		return berr
	}
	return uerr
}
