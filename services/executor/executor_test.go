// Copyright (c) 2017-2018 The nox developers

package executor

import (
	"testing"

	"github.com/noxproject/dposd/core/blockchain"
	"github.com/noxproject/dposd/core/state"
	"github.com/noxproject/dposd/core/types"
	"github.com/noxproject/dposd/database/ldb"
	"github.com/noxproject/dposd/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = types.NewAccountIDFromName("alice")
	bob   = types.NewAccountIDFromName("bob")
	miner = params.DelegateID("privnet", 0)
)

func newTestContext(t *testing.T) *blockchain.ExecContext {
	db := ldb.NewMemDB()
	t.Cleanup(func() { db.Close() })

	cache := state.NewCache(db)
	require.NoError(t, cache.SetFeeSymbols([]string{"NOX", "NUSD"}))
	require.NoError(t, cache.Put(state.SubsysAsset, state.AssetKey("NOX"), alice[:]))
	require.NoError(t, cache.Put(state.SubsysAsset, state.AssetKey("NUSD"), alice[:]))
	require.NoError(t, cache.SetBalance(alice, "NOX", 10000))
	return &blockchain.ExecContext{Height: 10, Index: 1, FuelRate: 100,
		Miner: miner, Cache: cache.NewChild()}
}

func balance(t *testing.T, c *state.Cache, id types.AccountID, sym string) uint64 {
	bal, err := c.Balance(id, sym)
	require.NoError(t, err)
	return bal
}

func TestTransfer(t *testing.T) {
	ctx := newTestContext(t)
	e := New(&params.PrivNetParams)

	tx := &types.TransferTx{Version: 1, ValidHeight: 10, From: alice, To: bob,
		Amount: types.Coin{Symbol: "NOX", Amount: 1000},
		Fee:    types.Coin{Symbol: "NOX", Amount: 600}}
	receipt, err := e.CheckAndExecute(tx, ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(TransferRunStep), receipt.RunStep)
	assert.Equal(t, tx.Fee, receipt.Fee)

	assert.Equal(t, uint64(8400), balance(t, ctx.Cache, alice, "NOX"))
	assert.Equal(t, uint64(1000), balance(t, ctx.Cache, bob, "NOX"))

	txHash := tx.TxHash()
	stored, err := FetchReceipt(ctx.Cache, &txHash)
	require.NoError(t, err)
	assert.Equal(t, receipt, stored)
}

func TestTransferRejects(t *testing.T) {
	e := New(&params.PrivNetParams)
	nox := func(n uint64) types.Coin { return types.Coin{Symbol: "NOX", Amount: n} }

	tests := []struct {
		name string
		tx   *types.TransferTx
		code RejectCode
	}{
		{"valid height ahead", &types.TransferTx{ValidHeight: 10 + 501, From: alice,
			To: bob, Amount: nox(1), Fee: nox(500)}, RejectValidHeight},
		{"zero amount", &types.TransferTx{ValidHeight: 10, From: alice, To: bob,
			Amount: nox(0), Fee: nox(500)}, RejectZeroAmount},
		{"fee symbol", &types.TransferTx{ValidHeight: 10, From: alice, To: bob,
			Amount: nox(1), Fee: types.Coin{Symbol: "BTC", Amount: 500}}, RejectFeeSymbol},
		{"unknown asset", &types.TransferTx{ValidHeight: 10, From: alice, To: bob,
			Amount: types.Coin{Symbol: "XYZ", Amount: 1}, Fee: nox(500)}, RejectUnknownAsset},
		{"insufficient", &types.TransferTx{ValidHeight: 10, From: alice, To: bob,
			Amount: nox(9600), Fee: nox(500)}, RejectInsufficientFunds},
	}
	for _, test := range tests {
		ctx := newTestContext(t)
		_, err := e.CheckAndExecute(test.tx, ctx)
		require.Error(t, err, test.name)
		rerr, ok := err.(TxRuleError)
		require.True(t, ok, "%s: unexpected error type %T", test.name, err)
		assert.Equal(t, test.code, rerr.RejectCode, test.name)
	}
}

func TestRewardCreditsMiner(t *testing.T) {
	ctx := newTestContext(t)
	e := New(&params.PrivNetParams)

	reward := &types.RewardTx{Version: 1, Height: 10, Miner: miner,
		Rewards: []types.Coin{{Symbol: "NOX", Amount: 100}, {Symbol: "NUSD", Amount: 7}}}
	_, err := e.CheckAndExecute(reward, ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), balance(t, ctx.Cache, miner, "NOX"))
	assert.Equal(t, uint64(7), balance(t, ctx.Cache, miner, "NUSD"))

	reward.Miner = bob
	_, err = e.CheckAndExecute(reward, ctx)
	rerr, ok := err.(TxRuleError)
	require.True(t, ok)
	assert.Equal(t, RejectBadMiner, rerr.RejectCode)
}

func TestExecuteUndo(t *testing.T) {
	ctx := newTestContext(t)
	e := New(&params.PrivNetParams)

	tx := &types.TransferTx{ValidHeight: 10, From: alice, To: bob,
		Amount: types.Coin{Symbol: "NOX", Amount: 1},
		Fee:    types.Coin{Symbol: "NOX", Amount: 500}}
	undo := state.NewTxUndo(tx.TxHash())
	ctx.Cache.SetUndoSink(undo)
	_, err := e.CheckAndExecute(tx, ctx)
	require.NoError(t, err)
	ctx.Cache.SetUndoSink(nil)

	require.NoError(t, undo.Apply(ctx.Cache))
	assert.Equal(t, uint64(10000), balance(t, ctx.Cache, alice, "NOX"))
	assert.Equal(t, uint64(0), balance(t, ctx.Cache, bob, "NOX"))
	txHash := tx.TxHash()
	stored, err := FetchReceipt(ctx.Cache, &txHash)
	require.NoError(t, err)
	assert.Nil(t, stored)
}
