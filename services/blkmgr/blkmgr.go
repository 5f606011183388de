// Copyright (c) 2017-2018 The nox developers
// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2018 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blkmgr

import (
	"sync"
	"sync/atomic"

	"github.com/deckarep/golang-set"
	"github.com/ethereum/go-ethereum/event"
	"github.com/noxproject/dposd/common/hash"
	"github.com/noxproject/dposd/config"
	"github.com/noxproject/dposd/core/blockchain"
	"github.com/noxproject/dposd/core/types"
	"github.com/noxproject/dposd/database"
	"github.com/noxproject/dposd/params"
	"github.com/noxproject/dposd/services/common/progresslog"
	"github.com/noxproject/dposd/services/delegate"
	"github.com/noxproject/dposd/services/executor"
	"github.com/noxproject/dposd/services/finality"
	"github.com/noxproject/dposd/services/mempool"
	"github.com/pkg/errors"
)

const (
	// msgChanSize is the number of queued requests the block handler
	// buffers before senders block.
	msgChanSize = 256

	// notifyChanSize is the buffer of the chain notification
	// subscription.
	notifyChanSize = 128
)

// ErrHalted is returned for every request once the block manager stopped
// processing blocks after a storage failure.
var ErrHalted = errors.New("block manager halted after a storage failure")

// processBlockResponse is a response sent to the reply channel of a
// processBlockMsg.
type processBlockResponse struct {
	isMainChain bool
	isOrphan    bool
	err         error
}

// processBlockMsg is a message type to be sent across the message channel
// for requested a block is processed.  Note this call differs from blockMsg
// above in that blockMsg is intended for blocks that came from peers and have
// extra handling whereas this message essentially is just a concurrent safe
// way to call ProcessBlock on the internal block chain instance.
type processBlockMsg struct {
	block  *types.Block
	flags  blockchain.BehaviorFlags
	source string
	reply  chan processBlockResponse
}

// invalidateBlockMsg manually invalidates or reconsiders a block.
type invalidateBlockMsg struct {
	hash       hash.Hash
	reconsider bool
	reply      chan error
}

// BlockManager provides a concurrency safe block manager for handling all
// incoming blocks.  Blocks are processed one at a time on its handler
// goroutine in arrival order.
type BlockManager struct {
	started  int32
	shutdown int32

	config *config.Config
	params *params.Params

	chain     *blockchain.BlockChain
	txMemPool *mempool.TxPool
	finality  *finality.Tracker
	sender    PeerSender
	events    *event.Feed

	// requestedBlocks holds the orphan roots asked from peers and not
	// received yet.
	requestedBlocks mapset.Set
	progressLogger  *progresslog.BlockProgressLogger

	msgChan chan interface{}

	haltOnce sync.Once
	haltErr  error
	halted   chan struct{}

	wg   sync.WaitGroup
	quit chan struct{}
}

// NewBlockManager returns a new block manager along with the chain it feeds.
// Use Start to begin processing blocks.
func NewBlockManager(db database.DB, cfg *config.Config, par *params.Params,
	sender PeerSender, events *event.Feed) (*BlockManager, error) {

	if events == nil {
		events = new(event.Feed)
	}
	bm := &BlockManager{
		config:          cfg,
		params:          par,
		sender:          sender,
		events:          events,
		requestedBlocks: mapset.NewSet(),
		progressLogger:  progresslog.NewBlockProgressLogger("Processed", log),
		msgChan:         make(chan interface{}, msgChanSize),
		halted:          make(chan struct{}),
		quit:            make(chan struct{}),
	}

	timeout := par.FinalityTimeout
	if cfg.FinalityTimeout > 0 {
		timeout = cfg.FinalityTimeout
	}
	bm.finality = finality.NewTracker(par.DelegateCount, timeout)

	bm.txMemPool = mempool.New(&mempool.Config{
		Policy:      mempool.Policy{MaxTxs: cfg.MaxTxs},
		ChainParams: par,
		BestHeight:  func() uint32 { return bm.chain.BestSnapshot().Height },
		IsConfirmed: func(txHash *hash.Hash) (bool, error) {
			loc, err := bm.chain.FetchTxLocation(txHash)
			return loc != nil, err
		},
	})

	// Create a new block chain instance with the appropriate configuration.
	var err error
	bm.chain, err = blockchain.New(&blockchain.Config{
		DB:              db,
		DataDir:         cfg.DataDir,
		MaxFileSize:     cfg.BlockFileSize,
		Params:          par,
		Executor:        executor.New(par),
		Rotator:         delegate.New(par),
		Finality:        bm.finality,
		TxPool:          bm.txMemPool,
		Syncer:          bm,
		Events:          events,
		MaxOrphanBlocks: cfg.MaxOrphanBlocks,
		ForkCacheSize:   cfg.ForkCacheSize,
		MaxForkDepth:    cfg.MaxForkDepth,
	})
	if err != nil {
		return nil, err
	}
	if cfg.PersistMempool {
		if err := bm.txMemPool.Load(cfg.DataDir); err != nil {
			log.Warn("Unable to load the saved mempool", "err", err)
		}
	}
	return bm, nil
}

// Chain returns the chain the block manager feeds.
func (b *BlockManager) Chain() *blockchain.BlockChain {
	return b.chain
}

// MemPool returns the unconfirmed transaction pool.
func (b *BlockManager) MemPool() *mempool.TxPool {
	return b.txMemPool
}

// Finality returns the finality tracker guarding the chain.
func (b *BlockManager) Finality() *finality.Tracker {
	return b.finality
}

// Start begins the core block handler which processes block messages and
// chain notifications.
func (b *BlockManager) Start() {
	// Already started?
	if atomic.AddInt32(&b.started, 1) != 1 {
		return
	}

	log.Trace("Starting block manager")
	notifyCh := make(chan *blockchain.Notification, notifyChanSize)
	sub := b.events.Subscribe(notifyCh)
	b.wg.Add(2)
	go b.blockHandler()
	go b.notificationHandler(notifyCh, sub)
}

// Stop gracefully shuts down the block manager by stopping all asynchronous
// handlers and waiting for them to finish.
func (b *BlockManager) Stop() error {
	if atomic.AddInt32(&b.shutdown, 1) != 1 {
		log.Warn("Block manager is already in the process of " +
			"shutting down")
		return nil
	}

	log.Info("Block manager shutting down")
	close(b.quit)
	b.wg.Wait()
	if b.config.PersistMempool {
		if _, err := b.txMemPool.Save(b.config.DataDir); err != nil {
			return err
		}
	}
	return nil
}

// Halted returns a channel closed once the block manager stopped processing
// blocks after a storage failure.
func (b *BlockManager) Halted() <-chan struct{} {
	return b.halted
}

// halt stops block processing for good.  The node can no longer trust its
// state once storage failed in the middle of a state transition.
func (b *BlockManager) halt(err error) {
	b.haltOnce.Do(func() {
		log.Error("Storage failure, halting block processing", "err", err)
		b.haltErr = err
		close(b.halted)
	})
}

// blockHandler is the main handler for the block manager.  It must be run as
// a goroutine.  It processes block requests in a separate goroutine from the
// peer handlers so the block (MsgBlock) messages are handled by a single
// thread without needing to lock memory data structures.
func (b *BlockManager) blockHandler() {
	defer b.wg.Done()
out:
	for {
		select {
		case m := <-b.msgChan:
			switch msg := m.(type) {
			case processBlockMsg:
				msg.reply <- b.handleProcessBlock(&msg)

			case invalidateBlockMsg:
				msg.reply <- b.handleInvalidateBlock(&msg)

			default:
				log.Warn("Invalid message type in block handler", "type", m)
			}

		case <-b.quit:
			break out
		}
	}
	log.Trace("Block handler done")
}

func (b *BlockManager) handleProcessBlock(msg *processBlockMsg) processBlockResponse {
	select {
	case <-b.halted:
		return processBlockResponse{err: errors.Wrap(b.haltErr, ErrHalted.Error())}
	default:
	}

	isMainChain, isOrphan, err := b.chain.ProcessBlock(msg.block, msg.flags, msg.source)
	if err != nil {
		if blockchain.IsSystemError(err) {
			b.halt(err)
		} else {
			log.Debug("Rejected block", "hash", msg.block.Hash(),
				"source", msg.source, "err", err)
		}
		return processBlockResponse{err: err}
	}
	if isOrphan {
		log.Debug("Orphan block", "hash", msg.block.Hash(),
			"parent", msg.block.Header.PrevBlock, "source", msg.source)
	}
	return processBlockResponse{isMainChain: isMainChain, isOrphan: isOrphan}
}

func (b *BlockManager) handleInvalidateBlock(msg *invalidateBlockMsg) error {
	var err error
	if msg.reconsider {
		err = b.chain.ReconsiderBlock(&msg.hash)
	} else {
		err = b.chain.InvalidateBlock(&msg.hash)
	}
	if err != nil && blockchain.IsSystemError(err) {
		b.halt(err)
	}
	return err
}

// notificationHandler reacts to chain events.  It must be run as a
// goroutine.
func (b *BlockManager) notificationHandler(ch <-chan *blockchain.Notification, sub event.Subscription) {
	defer b.wg.Done()
	defer sub.Unsubscribe()
	for {
		select {
		case n := <-ch:
			b.handleNotifyMsg(n)
		case err := <-sub.Err():
			if err != nil {
				log.Error("Chain notification subscription failed", "err", err)
			}
			return
		case <-b.quit:
			return
		}
	}
}

// handleNotifyMsg handles notifications from blockchain.  It does things such
// as request orphan block parents and relay accepted blocks to connected
// peers.
func (b *BlockManager) handleNotifyMsg(notification *blockchain.Notification) {
	switch notification.Type {
	// A block has been accepted into the block chain.
	case blockchain.BlockAccepted:
		data, ok := notification.Data.(*blockchain.BlockAcceptedNotifyData)
		if !ok {
			log.Warn("Chain accepted notification is not BlockAcceptedNotifyData.")
			break
		}
		b.requestedBlocks.Remove(*data.Block.Hash())

	// A block has been connected to the main block chain.
	case blockchain.BlockConnected:
		block, ok := notification.Data.(*types.Block)
		if !ok {
			log.Warn("Chain connected notification is not a block.")
			break
		}
		b.progressLogger.LogBlockHeight(block)
		b.txMemPool.PruneExpired()

	// A block has been disconnected from the main block chain.
	case blockchain.BlockDisconnected:
		block, ok := notification.Data.(*types.Block)
		if !ok {
			log.Warn("Chain disconnected notification is not a block.")
			break
		}
		log.Debug("Block disconnected", "hash", block.Hash(), "height", block.Height())

	case blockchain.Reorganization:
		rd, ok := notification.Data.(*blockchain.ReorganizationNotifyData)
		if !ok {
			log.Warn("Chain reorganization notification is malformed")
			break
		}
		log.Info("Chain reorganization", "old", rd.OldTip, "oldheight", rd.OldHeight,
			"new", rd.NewTip, "newheight", rd.NewHeight)
	}
}

// RequestBlocks asks source for the blocks between locator and stop, the
// root of an orphan chain.  A root already requested is not asked again
// until it arrived.
//
// It is called by the chain while it holds its lock and must not call back
// into it.
func (b *BlockManager) RequestBlocks(source string, locator blockchain.BlockLocator, stop *hash.Hash) {
	if b.sender == nil || stop == nil {
		return
	}
	if !b.requestedBlocks.Add(*stop) {
		return
	}
	if err := b.sender.SendGetBlocks(source, locator, stop); err != nil {
		b.requestedBlocks.Remove(*stop)
		log.Warn("Failed to request blocks", "peer", source, "stop", stop, "err", err)
	}
}

// ProcessBlock makes use of ProcessBlock on an internal instance of a block
// chain.  It is funneled through the block manager since blockchain is not
// safe for concurrent access.
func (b *BlockManager) ProcessBlock(block *types.Block, flags blockchain.BehaviorFlags,
	source string) (bool, bool, error) {

	reply := make(chan processBlockResponse, 1)
	select {
	case b.msgChan <- processBlockMsg{block: block, flags: flags, source: source, reply: reply}:
	case <-b.quit:
		return false, false, errors.New("block manager is shutting down")
	}
	select {
	case response := <-reply:
		return response.isMainChain, response.isOrphan, response.err
	case <-b.quit:
		return false, false, errors.New("block manager is shutting down")
	}
}

// InvalidateBlock marks a block invalid through the block handler.
func (b *BlockManager) InvalidateBlock(h *hash.Hash) error {
	return b.sendInvalidate(h, false)
}

// ReconsiderBlock clears a manual or transient invalidation through the
// block handler.
func (b *BlockManager) ReconsiderBlock(h *hash.Hash) error {
	return b.sendInvalidate(h, true)
}

func (b *BlockManager) sendInvalidate(h *hash.Hash, reconsider bool) error {
	reply := make(chan error, 1)
	select {
	case b.msgChan <- invalidateBlockMsg{hash: *h, reconsider: reconsider, reply: reply}:
	case <-b.quit:
		return errors.New("block manager is shutting down")
	}
	select {
	case err := <-reply:
		return err
	case <-b.quit:
		return errors.New("block manager is shutting down")
	}
}
