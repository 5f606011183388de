// Copyright (c) 2017-2018 The nox developers
// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/event"
	"github.com/noxproject/dposd/common/hash"
	"github.com/noxproject/dposd/core/state"
	"github.com/noxproject/dposd/core/types"
	"github.com/noxproject/dposd/database"
	"github.com/noxproject/dposd/database/ldb"
	"github.com/noxproject/dposd/params"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// testRunStep is what every transfer costs under testExecutor.
const testRunStep = 500

// testExecutor moves balances for transfers and credits rewards.
type testExecutor struct{}

func (testExecutor) CheckAndExecute(tx types.Transaction, ctx *ExecContext) (*Receipt, error) {
	switch t := tx.(type) {
	case *types.RewardTx:
		for _, c := range t.Rewards {
			if err := addBalance(ctx.Cache, t.Miner, c.Symbol, int64(c.Amount)); err != nil {
				return nil, err
			}
		}
		return &Receipt{}, nil

	case *types.TransferTx:
		if err := addBalance(ctx.Cache, t.From, t.Fee.Symbol, -int64(t.Fee.Amount)); err != nil {
			return nil, err
		}
		if err := addBalance(ctx.Cache, t.From, t.Amount.Symbol, -int64(t.Amount.Amount)); err != nil {
			return nil, err
		}
		if err := addBalance(ctx.Cache, t.To, t.Amount.Symbol, int64(t.Amount.Amount)); err != nil {
			return nil, err
		}
		return &Receipt{RunStep: testRunStep, Fee: t.Fee}, nil
	}
	return nil, fmt.Errorf("unsupported transaction type %v", tx.TxType())
}

func addBalance(c *state.Cache, id types.AccountID, symbol string, delta int64) error {
	cur, err := c.Balance(id, symbol)
	if err != nil {
		return err
	}
	if delta < 0 && uint64(-delta) > cur {
		return errors.Errorf("account %v holds %d %s, needs %d", id, cur, symbol, -delta)
	}
	return c.SetBalance(id, symbol, uint64(int64(cur)+delta))
}

// testFinality finalizes exactly the blocks it is told to.
type testFinality struct {
	finalized map[hash.Hash]bool
	global    map[hash.Hash]bool
	stuck     int
	timedOut  bool
}

func newTestFinality() *testFinality {
	return &testFinality{
		finalized: make(map[hash.Hash]bool),
		global:    make(map[hash.Hash]bool),
	}
}

func (f *testFinality) IsFinalized(h *hash.Hash) bool       { return f.finalized[*h] || f.global[*h] }
func (f *testFinality) IsGlobalFinalized(h *hash.Hash) bool { return f.global[*h] }
func (f *testFinality) NotifyFinalityStuck()                { f.stuck++ }
func (f *testFinality) RecordNewTip(*BlockNode)             {}

// TimedOut releases every locally finalized block once the timeout is armed.
func (f *testFinality) TimedOut() bool {
	if !f.timedOut {
		return false
	}
	f.finalized = make(map[hash.Hash]bool)
	f.timedOut = false
	return true
}

type testPool struct {
	mtx          sync.Mutex
	included     []hash.Hash
	reintroduced []hash.Hash
}

func (p *testPool) RemoveIncluded(txids []hash.Hash) {
	p.mtx.Lock()
	p.included = append(p.included, txids...)
	p.mtx.Unlock()
}

func (p *testPool) Reintroduce(txs []types.Transaction) {
	p.mtx.Lock()
	for _, tx := range txs {
		p.reintroduced = append(p.reintroduced, tx.TxHash())
	}
	p.mtx.Unlock()
}

type syncRequest struct {
	source string
	stop   hash.Hash
}

type testSyncer struct {
	requests []syncRequest
}

func (s *testSyncer) RequestBlocks(source string, locator BlockLocator, stop *hash.Hash) {
	s.requests = append(s.requests, syncRequest{source: source, stop: *stop})
}

// chainHarness wires a chain on an in-memory database to test
// collaborators.
type chainHarness struct {
	t        *testing.T
	params   *params.Params
	db       database.DB
	dataDir  string
	chain    *BlockChain
	finality *testFinality
	pool     *testPool
	syncer   *testSyncer
	events   *event.Feed
	notes    chan *Notification
	sub      event.Subscription
}

// newChainHarness returns a harness on a fresh privnet chain.  configure,
// when not nil, adjusts the chain config before the chain is created.
func newChainHarness(t *testing.T, configure func(*Config)) *chainHarness {
	par := params.PrivNetParams
	h := &chainHarness{
		t:       t,
		params:  &par,
		db:      ldb.NewMemDB(),
		dataDir: t.TempDir(),
	}
	h.open(configure)
	t.Cleanup(h.close)
	return h
}

func (h *chainHarness) open(configure func(*Config)) {
	h.finality = newTestFinality()
	h.pool = new(testPool)
	h.syncer = new(testSyncer)
	h.events = new(event.Feed)
	h.notes = make(chan *Notification, 1024)
	h.sub = h.events.Subscribe(h.notes)

	cfg := &Config{
		DB:       h.db,
		DataDir:  h.dataDir,
		Params:   h.params,
		Executor: testExecutor{},
		Finality: h.finality,
		TxPool:   h.pool,
		Syncer:   h.syncer,
		Events:   h.events,
	}
	if configure != nil {
		configure(cfg)
	}
	chain, err := New(cfg)
	require.NoError(h.t, err)
	h.chain = chain
}

func (h *chainHarness) close() {
	if h.chain == nil {
		return
	}
	h.sub.Unsubscribe()
	require.NoError(h.t, h.chain.Close())
	h.chain = nil
}

// reopen closes the chain and loads it again from the same storage.
func (h *chainHarness) reopen() {
	h.close()
	h.open(nil)
}

// drain returns the notifications delivered so far.
func (h *chainHarness) drain() []*Notification {
	var out []*Notification
	for {
		select {
		case n := <-h.notes:
			out = append(out, n)
		default:
			return out
		}
	}
}

var (
	testMiner = params.DelegateID("privnet", 0)
	bob       = types.NewAccountIDFromName("test/bob")
)

// transfer returns a transfer of amount NOX from the rich account to bob
// paying fee NOX.
func transfer(amount, fee, nonce uint64) *types.TransferTx {
	return &types.TransferTx{
		Version: 1,
		From:    params.PrivNetRichAccount,
		To:      bob,
		Amount:  types.Coin{Symbol: "NOX", Amount: amount},
		Fee:     types.Coin{Symbol: "NOX", Amount: fee},
		Nonce:   nonce,
	}
}

// makeBlock builds a valid block on parent holding txs.  nonce tells
// siblings apart.
func (h *chainHarness) makeBlock(parent *types.Block, nonce uint32, txs ...*types.TransferTx) *types.Block {
	height := parent.Height() + 1
	rate := h.params.InitFuelRate
	if node := h.chain.index.LookupNode(parent.Hash()); node != nil {
		rate = calcFuelRate(node, h.params)
	}

	receipts := make([]*Receipt, 0, len(txs))
	all := make([]types.Transaction, 0, len(txs)+1)
	all = append(all, nil)
	for _, tx := range txs {
		receipts = append(receipts, &Receipt{RunStep: testRunStep, Fee: tx.Fee})
		all = append(all, tx)
	}
	fuel, rewards := ExpectedReward(receipts, rate)
	all[0] = &types.RewardTx{Version: 1, Height: height, Miner: testMiner, Rewards: rewards}

	block := types.NewBlock(types.BlockHeader{
		Version:   h.params.BlockVersion,
		PrevBlock: *parent.Hash(),
		Timestamp: parent.Header.Timestamp.Add(h.params.BlockInterval),
		Nonce:     nonce,
		Height:    height,
		FuelRate:  rate,
		Fuel:      fuel,
	}, all)
	block.Header.MerkleRoot = block.CalcMerkleRoot()
	return block
}

// resign recomputes the merkle root after a block was tampered with.
func resign(block *types.Block) *types.Block {
	b := types.NewBlock(block.Header, block.Transactions)
	b.Header.MerkleRoot = b.CalcMerkleRoot()
	return b
}

// makeChain builds n blocks on parent, each holding one transfer.
func (h *chainHarness) makeChain(parent *types.Block, n int, nonce uint32) []*types.Block {
	blocks := make([]*types.Block, 0, n)
	for i := 0; i < n; i++ {
		tx := transfer(uint64(10+i), 1000, uint64(nonce)<<32|uint64(parent.Height()+1))
		parent = h.makeBlock(parent, nonce, tx)
		blocks = append(blocks, parent)
	}
	return blocks
}

// process submits blocks in order and fails the test on any error.
func (h *chainHarness) process(blocks ...*types.Block) {
	for _, block := range blocks {
		_, _, err := h.chain.ProcessBlock(block, BFNone, "")
		require.NoError(h.t, err, "block at height %d", block.Height())
	}
}

func (h *chainHarness) requireTip(block *types.Block) {
	best := h.chain.BestSnapshot()
	require.Equal(h.t, *block.Hash(), best.Hash, "tip height %d, want %d",
		best.Height, block.Height())
}

func (h *chainHarness) balance(id types.AccountID, symbol string) uint64 {
	var bal uint64
	err := h.chain.ReadState(func(view *state.Cache) error {
		var err error
		bal, err = view.Balance(id, symbol)
		return err
	})
	require.NoError(h.t, err)
	return bal
}

// dumpState returns every committed state key and value.
func dumpState(t *testing.T, db database.DB) map[string]string {
	out := make(map[string]string)
	for _, sub := range state.Subsystems() {
		err := db.ForEach(sub.Prefix(), func(k, v []byte) error {
			out[string(k)] = string(v)
			return nil
		})
		require.NoError(t, err)
	}
	return out
}
