// Copyright (c) 2017-2018 The nox developers

package blkmgr

import (
	"sync"
	"testing"
	"time"

	"github.com/noxproject/dposd/common/hash"
	"github.com/noxproject/dposd/config"
	"github.com/noxproject/dposd/core/blockchain"
	"github.com/noxproject/dposd/core/types"
	"github.com/noxproject/dposd/database/ldb"
	"github.com/noxproject/dposd/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type getBlocks struct {
	peer string
	stop hash.Hash
}

type recordingSender struct {
	mtx  sync.Mutex
	sent []getBlocks
}

func (s *recordingSender) SendGetBlocks(peer string, locator blockchain.BlockLocator, stop *hash.Hash) error {
	s.mtx.Lock()
	s.sent = append(s.sent, getBlocks{peer: peer, stop: *stop})
	s.mtx.Unlock()
	return nil
}

func (s *recordingSender) requests() []getBlocks {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return append([]getBlocks(nil), s.sent...)
}

func newTestManager(t *testing.T) (*BlockManager, *recordingSender) {
	par := &params.PrivNetParams
	cfg := &config.Config{DataDir: t.TempDir()}
	sender := new(recordingSender)
	bm, err := NewBlockManager(ldb.NewMemDB(), cfg, par, sender, nil)
	require.NoError(t, err)
	bm.Start()
	t.Cleanup(func() {
		bm.Stop()
		bm.Chain().Close()
	})
	return bm, sender
}

// nextBlock builds an empty block on parent produced by the strongest
// genesis delegate.
func nextBlock(parent *types.Block, fuelRate uint32) *types.Block {
	height := parent.Height() + 1
	miner := params.DelegateID("privnet", 0)
	reward := &types.RewardTx{Version: 1, Height: height, Miner: miner}
	block := types.NewBlock(types.BlockHeader{
		Version:   params.PrivNetParams.BlockVersion,
		PrevBlock: *parent.Hash(),
		Timestamp: parent.Header.Timestamp.Add(params.PrivNetParams.BlockInterval),
		Height:    height,
		FuelRate:  fuelRate,
	}, []types.Transaction{reward})
	block.Header.MerkleRoot = block.CalcMerkleRoot()
	return block
}

func TestProcessBlockExtendsChain(t *testing.T) {
	bm, _ := newTestManager(t)
	genesis := params.PrivNetParams.GenesisBlock
	rate := bm.Chain().BestSnapshot().NextFuelRate

	b1 := nextBlock(genesis, rate)
	isMain, isOrphan, err := bm.ProcessBlock(b1, blockchain.BFNone, "")
	require.NoError(t, err)
	assert.True(t, isMain)
	assert.False(t, isOrphan)

	best := bm.Chain().BestSnapshot()
	assert.Equal(t, uint32(1), best.Height)
	assert.Equal(t, *b1.Hash(), best.Hash)

	_, _, err = bm.ProcessBlock(b1, blockchain.BFNone, "")
	assert.True(t, blockchain.IsErrorCode(err, blockchain.ErrDuplicateBlock))
}

func TestOrphanParentRequestedOnce(t *testing.T) {
	bm, sender := newTestManager(t)
	genesis := params.PrivNetParams.GenesisBlock
	rate := bm.Chain().BestSnapshot().NextFuelRate

	b1 := nextBlock(genesis, rate)
	b2 := nextBlock(b1, rate)
	b3 := nextBlock(b2, rate)

	_, isOrphan, err := bm.ProcessBlock(b2, blockchain.BFNone, "peer1")
	require.NoError(t, err)
	assert.True(t, isOrphan)
	_, isOrphan, err = bm.ProcessBlock(b3, blockchain.BFNone, "peer1")
	require.NoError(t, err)
	assert.True(t, isOrphan)

	// Both orphans share the same root.
	sent := sender.requests()
	require.Len(t, sent, 1)
	assert.Equal(t, "peer1", sent[0].peer)
	assert.Equal(t, *b2.Hash(), sent[0].stop)

	isMain, _, err := bm.ProcessBlock(b1, blockchain.BFNone, "peer1")
	require.NoError(t, err)
	assert.True(t, isMain)
	assert.Equal(t, uint32(3), bm.Chain().BestSnapshot().Height)
	assert.Zero(t, bm.Chain().OrphanCount())

	// The accepted root is forgotten once the notification is handled.
	deadline := time.Now().Add(5 * time.Second)
	for bm.requestedBlocks.Contains(*b2.Hash()) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.False(t, bm.requestedBlocks.Contains(*b2.Hash()))
}

func TestRejectedBlockDoesNotHalt(t *testing.T) {
	bm, _ := newTestManager(t)
	genesis := params.PrivNetParams.GenesisBlock
	rate := bm.Chain().BestSnapshot().NextFuelRate

	bad := nextBlock(genesis, rate+1)
	bad.Header.MerkleRoot = bad.CalcMerkleRoot()
	_, _, err := bm.ProcessBlock(bad, blockchain.BFNone, "")
	require.Error(t, err)
	assert.True(t, blockchain.IsErrorCode(err, blockchain.ErrBadFuelRate))
	assert.False(t, blockchain.IsSystemError(err))

	select {
	case <-bm.Halted():
		t.Fatal("block manager halted on a rule violation")
	default:
	}

	good := nextBlock(genesis, rate)
	isMain, _, err := bm.ProcessBlock(good, blockchain.BFNone, "")
	require.NoError(t, err)
	assert.True(t, isMain)
}

func TestInvalidateAndReconsider(t *testing.T) {
	bm, _ := newTestManager(t)
	genesis := params.PrivNetParams.GenesisBlock
	rate := bm.Chain().BestSnapshot().NextFuelRate

	b1 := nextBlock(genesis, rate)
	_, _, err := bm.ProcessBlock(b1, blockchain.BFNone, "")
	require.NoError(t, err)

	require.NoError(t, bm.InvalidateBlock(b1.Hash()))
	assert.Equal(t, uint32(0), bm.Chain().BestSnapshot().Height)

	require.NoError(t, bm.ReconsiderBlock(b1.Hash()))
	assert.Equal(t, *b1.Hash(), bm.Chain().BestSnapshot().Hash)
}

func TestMempoolPersistedAcrossRestart(t *testing.T) {
	cfg := &config.Config{DataDir: t.TempDir(), PersistMempool: true}
	tx := &types.TransferTx{Version: 1, From: params.PrivNetRichAccount,
		To:     types.NewAccountIDFromName("test/carol"),
		Amount: types.Coin{Symbol: "NOX", Amount: 5},
		Fee:    types.Coin{Symbol: "NOX", Amount: 1000}, Nonce: 1}

	db := ldb.NewMemDB()
	bm, err := NewBlockManager(db, cfg, &params.PrivNetParams, nil, nil)
	require.NoError(t, err)
	bm.Start()
	_, err = bm.MemPool().MaybeAcceptTransaction(tx)
	require.NoError(t, err)
	require.NoError(t, bm.Stop())
	require.NoError(t, bm.Chain().Close())

	restarted, err := NewBlockManager(db, cfg, &params.PrivNetParams, nil, nil)
	require.NoError(t, err)
	defer restarted.Chain().Close()
	txHash := tx.TxHash()
	assert.True(t, restarted.MemPool().HaveTransaction(&txHash))
}
