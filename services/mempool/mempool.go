// Copyright (c) 2017-2018 The nox developers
// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2017-2018 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deckarep/golang-set"
	"github.com/noxproject/dposd/common/hash"
	"github.com/noxproject/dposd/core/types"
)

// TxPool is used as a source of transactions that need to be mined into blocks
// and relayed to other peers.  It is safe for concurrent access from multiple
// peers.
type TxPool struct {
	// The following variables must only be used atomically.
	lastUpdated int64 // last time pool was updated.

	mtx       sync.RWMutex
	cfg       Config
	pool      map[hash.Hash]*TxDesc
	bySender  map[types.AccountID]mapset.Set
	nextOrder uint64
}

// New returns a new memory pool for validating and storing standalone
// transactions until they are mined into a block.
func New(cfg *Config) *TxPool {
	c := *cfg
	if c.Policy.MaxTxs == 0 {
		c.Policy.MaxTxs = DefaultMaxTxs
	}
	if c.Policy.MaxTxSize == 0 {
		c.Policy.MaxTxSize = maxStandardTxSize
	}
	return &TxPool{
		cfg:      c,
		pool:     make(map[hash.Hash]*TxDesc),
		bySender: make(map[types.AccountID]mapset.Set),
	}
}

// TxDesc is a descriptor containing a transaction in the mempool along with
// additional metadata.
type TxDesc struct {
	// Tx is the transaction associated with the entry.
	Tx types.Transaction

	// Added is the time when the entry was added to the source pool.
	Added time.Time

	// Height is the block height when the entry was added to the the source
	// pool.
	Height uint32

	// Fee is the fee the transaction pays.
	Fee types.Coin

	// order is the arrival rank used for mining order.
	order uint64
}

// sender returns the account paying for tx, false for transactions which are
// not fee bearing.
func sender(tx types.Transaction) (types.AccountID, types.Coin, bool) {
	switch t := tx.(type) {
	case *types.TransferTx:
		return t.From, t.Fee, true
	}
	return types.AccountID{}, types.Coin{}, false
}

// validHeight returns the valid height of tx, false when it has none.
func validHeight(tx types.Transaction) (uint32, bool) {
	if t, ok := tx.(*types.TransferTx); ok {
		return t.ValidHeight, true
	}
	return 0, false
}

// checkTransaction performs the checks that need no chain state.
func (mp *TxPool) checkTransaction(tx types.Transaction, height uint32) error {
	txHash := tx.TxHash()
	if tx.IsReward() {
		return txRuleError(RejectInvalid, "transaction %v is an individual "+
			"reward transaction", txHash)
	}
	if size := tx.SerializeSize(); size > mp.cfg.Policy.MaxTxSize {
		return txRuleError(RejectNonstandard, "transaction %v size %d "+
			"exceeds max %d", txHash, size, mp.cfg.Policy.MaxTxSize)
	}
	if vh, ok := validHeight(tx); ok && mp.expired(vh, height) {
		return txRuleError(RejectExpired, "transaction %v valid height %d "+
			"is outside the window of height %d", txHash, vh, height)
	}
	return nil
}

// expired reports whether a transaction with valid height vh can no longer
// be included in the block after height.
func (mp *TxPool) expired(vh, height uint32) bool {
	window := mp.cfg.ChainParams.TxValidHeightWindow
	next := height + 1
	return vh > next+window || next > vh+window
}

// maybeAcceptTransaction is the internal function which implements the public
// MaybeAcceptTransaction.  See the comment for MaybeAcceptTransaction for
// more details.
//
// Transactions returned by a disconnected block skip the confirmation
// lookup: they were confirmed only by that block, and the lookup would call
// back into the chain while it holds its lock.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) maybeAcceptTransaction(tx types.Transaction, isNew bool) (*TxDesc, error) {
	txHash := tx.TxHash()
	if _, exists := mp.pool[txHash]; exists {
		return nil, txRuleError(RejectDuplicate, "already have transaction %v", txHash)
	}

	height := mp.cfg.BestHeight()
	if err := mp.checkTransaction(tx, height); err != nil {
		return nil, err
	}

	if isNew && mp.cfg.IsConfirmed != nil {
		confirmed, err := mp.cfg.IsConfirmed(&txHash)
		if err != nil {
			return nil, err
		}
		if confirmed {
			return nil, txRuleError(RejectDuplicate, "transaction %v is "+
				"already confirmed", txHash)
		}
	}

	if len(mp.pool) >= mp.cfg.Policy.MaxTxs {
		return nil, txRuleError(RejectPoolFull, "pool holds %d transactions",
			len(mp.pool))
	}
	return mp.addTransaction(tx, height), nil
}

// addTransaction adds the passed transaction to the memory pool.  It should
// not be called directly as it doesn't perform any validation.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) addTransaction(tx types.Transaction, height uint32) *TxDesc {
	from, fee, _ := sender(tx)
	desc := &TxDesc{
		Tx:     tx,
		Added:  time.Now(),
		Height: height,
		Fee:    fee,
		order:  mp.nextOrder,
	}
	mp.nextOrder++

	txHash := tx.TxHash()
	mp.pool[txHash] = desc
	set, ok := mp.bySender[from]
	if !ok {
		set = mapset.NewSet()
		mp.bySender[from] = set
	}
	set.Add(txHash)
	atomic.StoreInt64(&mp.lastUpdated, time.Now().Unix())
	return desc
}

// MaybeAcceptTransaction is the main workhorse for handling insertion of new
// free-standing transactions into the memory pool.  It includes functionality
// such as rejecting duplicate and expired transactions.
//
// This function is safe for concurrent access.
func (mp *TxPool) MaybeAcceptTransaction(tx types.Transaction) (*TxDesc, error) {
	mp.mtx.Lock()
	desc, err := mp.maybeAcceptTransaction(tx, true)
	mp.mtx.Unlock()
	if err == nil {
		log.Debug("Accepted transaction", "tx", tx.TxHash(), "pool", mp.Count())
	}
	return desc, err
}

// removeTransaction is the internal function which implements the public
// RemoveTransaction.  See the comment for RemoveTransaction for more details.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) removeTransaction(txHash *hash.Hash) {
	desc, ok := mp.pool[*txHash]
	if !ok {
		return
	}
	delete(mp.pool, *txHash)
	from, _, _ := sender(desc.Tx)
	if set, ok := mp.bySender[from]; ok {
		set.Remove(*txHash)
		if set.Cardinality() == 0 {
			delete(mp.bySender, from)
		}
	}
	atomic.StoreInt64(&mp.lastUpdated, time.Now().Unix())
}

// RemoveTransaction removes the passed transaction from the mempool.
//
// This function is safe for concurrent access.
func (mp *TxPool) RemoveTransaction(txHash *hash.Hash) {
	mp.mtx.Lock()
	mp.removeTransaction(txHash)
	mp.mtx.Unlock()
}

// RemoveIncluded drops the transactions a connected block confirmed.
//
// This function is safe for concurrent access.
func (mp *TxPool) RemoveIncluded(txids []hash.Hash) {
	mp.mtx.Lock()
	for i := range txids {
		mp.removeTransaction(&txids[i])
	}
	mp.mtx.Unlock()
}

// Reintroduce returns the transactions of a disconnected block to the pool.
// Transactions which no longer qualify are dropped silently.
//
// This function is safe for concurrent access.
func (mp *TxPool) Reintroduce(txs []types.Transaction) {
	mp.mtx.Lock()
	defer mp.mtx.Unlock()
	for _, tx := range txs {
		if _, err := mp.maybeAcceptTransaction(tx, false); err != nil {
			log.Trace("Dropped transaction of disconnected block", "tx",
				tx.TxHash(), "err", err)
		}
	}
}

// PruneExpired removes the transactions that can no longer be included in
// the next block.
//
// This function is safe for concurrent access.
func (mp *TxPool) PruneExpired() {
	mp.mtx.Lock()
	defer mp.mtx.Unlock()
	height := mp.cfg.BestHeight()
	for txHash, desc := range mp.pool {
		if vh, ok := validHeight(desc.Tx); ok && mp.expired(vh, height) {
			h := txHash
			mp.removeTransaction(&h)
			log.Debug("Pruned expired transaction", "tx", h)
		}
	}
}

// FetchTransaction returns the requested transaction from the transaction
// pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) FetchTransaction(txHash *hash.Hash) (types.Transaction, error) {
	mp.mtx.RLock()
	desc, exists := mp.pool[*txHash]
	mp.mtx.RUnlock()
	if exists {
		return desc.Tx, nil
	}
	return nil, txRuleError(RejectInvalid, "transaction is not in the pool")
}

// HaveTransaction returns whether or not the passed transaction already
// exists in the pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) HaveTransaction(txHash *hash.Hash) bool {
	mp.mtx.RLock()
	_, exists := mp.pool[*txHash]
	mp.mtx.RUnlock()
	return exists
}

// TxHashesBySender returns the pooled transactions paid for by id.
//
// This function is safe for concurrent access.
func (mp *TxPool) TxHashesBySender(id types.AccountID) []hash.Hash {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()
	set, ok := mp.bySender[id]
	if !ok {
		return nil
	}
	hashes := make([]hash.Hash, 0, set.Cardinality())
	for _, v := range set.ToSlice() {
		hashes = append(hashes, v.(hash.Hash))
	}
	sort.Slice(hashes, func(i, j int) bool {
		return mp.pool[hashes[i]].order < mp.pool[hashes[j]].order
	})
	return hashes
}

// TxDescs returns a slice of descriptors for all the transactions in the
// pool in arrival order.  The descriptors are to be treated as read only.
//
// This function is safe for concurrent access.
func (mp *TxPool) TxDescs() []*TxDesc {
	mp.mtx.RLock()
	descs := make([]*TxDesc, 0, len(mp.pool))
	for _, desc := range mp.pool {
		descs = append(descs, desc)
	}
	mp.mtx.RUnlock()

	sort.Slice(descs, func(i, j int) bool { return descs[i].order < descs[j].order })
	return descs
}

// Count returns the number of transactions in the main pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) Count() int {
	mp.mtx.RLock()
	count := len(mp.pool)
	mp.mtx.RUnlock()
	return count
}

// LastUpdated returns the last time a transaction was added to or removed from
// the main pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) LastUpdated() time.Time {
	return time.Unix(atomic.LoadInt64(&mp.lastUpdated), 0)
}
