// Copyright (c) 2017-2018 The nox developers

package blockchain

import (
	"fmt"
	"sort"

	"github.com/noxproject/dposd/common/hash"
	"github.com/noxproject/dposd/core/state"
	"github.com/noxproject/dposd/core/types"
	"github.com/noxproject/dposd/database"
	"github.com/pkg/errors"
)

// CommitMode selects whether connecting a block leaves a durable trace.
type CommitMode int

const (
	// DryRun validates the block against a state layer.  Nothing but the
	// layer is modified.
	DryRun CommitMode = iota

	// Commit additionally persists the undo record of the block and
	// marks it valid.
	Commit
)

func (m CommitMode) String() string {
	if m == Commit {
		return "commit"
	}
	return "dry-run"
}

// connectBlockCommit connects a block on top of view and persists its undo
// record.  view must sit on the database and track the active tip.
func (b *BlockChain) connectBlockCommit(block *types.Block, node *BlockNode, view *state.Cache) (*state.BlockUndo, error) {
	return b.connectBlock(block, node, view, Commit)
}

// connectBlockDryRun validates a block against view, which may be any layer
// whose best block is the parent of the block.
func (b *BlockChain) connectBlockDryRun(block *types.Block, node *BlockNode, view *state.Cache) error {
	_, err := b.connectBlock(block, node, view, DryRun)
	return err
}

// connectBlock applies block to view.  On error view holds partial changes
// and must be discarded by the caller.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *BlockChain) connectBlock(block *types.Block, node *BlockNode, view *state.Cache, mode CommitMode) (*state.BlockUndo, error) {
	if node.hash.IsEqual(b.params.GenesisHash) {
		return nil, b.connectGenesis(block, node, view, mode)
	}

	best, err := view.BestBlock()
	if err != nil {
		return nil, err
	}
	if node.parent == nil || !best.IsEqual(&node.parent.hash) {
		return nil, AssertError(fmt.Sprintf("connect block %v on state at %v", node.hash, best))
	}

	if !node.status.KnownValid() {
		if err := checkBlockStructural(block, b.params, b.timeSource, BFFastAdd); err != nil {
			return nil, err
		}
	}
	if err := b.checkFuelRate(block, node.parent); err != nil {
		return nil, err
	}

	ctx := &ExecContext{
		Height:    node.height,
		FuelRate:  block.Header.FuelRate,
		Timestamp: block.Header.Timestamp,
		Miner:     block.Miner(),
		BlockHash: node.hash,
		Cache:     view,
	}
	defer view.SetUndoSink(nil)

	var (
		totalRunStep uint64
		totalFuel    uint64
		fees         = make(map[string]uint64)
		fuels        = make(map[string]uint64)
		offsets      = block.TxOffsets()
		undo         = &state.BlockUndo{TxUndos: make([]*state.TxUndo, 0, len(block.Transactions))}
	)
	for i, tx := range block.Transactions {
		txHash := tx.TxHash()
		txUndo := state.NewTxUndo(txHash)
		view.SetUndoSink(txUndo)

		if !tx.IsReward() {
			confirmed, err := view.Has(state.SubsysTxIndex, state.TxKey(&txHash))
			if err != nil {
				return nil, err
			}
			if confirmed {
				return nil, ruleErrorf(ErrDuplicateConfirmedTx, "transaction %v "+
					"in block %v is already confirmed", txHash, node.hash)
			}
		}

		ctx.Index = i
		receipt, err := b.executor.CheckAndExecute(tx, ctx)
		if err != nil {
			return nil, txError(err, txHash, i)
		}
		if tx.IsFeeBearing() && receipt != nil {
			totalRunStep += receipt.RunStep
			if totalRunStep > b.params.MaxBlockRunStep {
				return nil, ruleErrorf(ErrRunStepExceeded, "block %v uses "+
					"more than %d run steps", node.hash, b.params.MaxBlockRunStep)
			}
			fuel := txFuel(receipt.RunStep, block.Header.FuelRate)
			if receipt.Fee.Amount < fuel {
				return nil, ruleErrorf(ErrTxRejected, "transaction %v fee "+
					"%v does not cover fuel %d", txHash, receipt.Fee, fuel)
			}
			totalFuel += fuel
			fees[receipt.Fee.Symbol] += receipt.Fee.Amount
			fuels[receipt.Fee.Symbol] += fuel
		}

		loc := TxLocation{Block: node.hash, Pos: node.blockPos, TxOffset: offsets[i]}
		if err := view.Put(state.SubsysTxIndex, state.TxKey(&txHash),
			serializeTxLocation(&loc)); err != nil {
			return nil, err
		}
		undo.TxUndos = append(undo.TxUndos, txUndo)
	}

	if totalFuel != block.Header.Fuel {
		return nil, ruleErrorf(ErrBadFuel, "block %v declares fuel %d, "+
			"transactions burned %d", node.hash, block.Header.Fuel, totalFuel)
	}
	reward, _ := block.RewardTx()
	if err := checkReward(reward, fees, fuels); err != nil {
		return nil, err
	}

	// The rotation mutations belong to the last transaction of the block.
	view.SetUndoSink(undo.TxUndos[len(undo.TxUndos)-1])
	if err := b.rotator.OnBlockConnected(block, view); err != nil {
		if database.IsStoreError(err) {
			return nil, err
		}
		if _, ok := AsRuleError(err); ok {
			return nil, err
		}
		return nil, ruleErrorf(ErrBadDelegate, "block %v: %v", node.hash, err)
	}
	view.SetUndoSink(nil)
	view.SetBestBlock(&node.hash)

	if mode == Commit {
		if err := b.writeUndo(node, undo); err != nil {
			return nil, err
		}
		b.index.SetStatusFlags(node, statusValid)
	}
	return undo, nil
}

// txError classifies an executor failure.  Store failures stay system
// errors; anything else rejects the block.
func txError(err error, txHash hash.Hash, index int) error {
	if database.IsStoreError(err) {
		return errors.Wrapf(err, "execute transaction %v", txHash)
	}
	if _, ok := AsRuleError(err); ok {
		return err
	}
	return ruleErrorf(ErrTxRejected, "transaction %v at index %d: %v",
		txHash, index, err)
}

// checkReward verifies that the reward transaction pays, per symbol, exactly
// the fees collected less the fuel burned.  There is no tolerance.
func checkReward(reward *types.RewardTx, fees, fuels map[string]uint64) error {
	expected := make(map[string]uint64, len(fees))
	for sym, fee := range fees {
		if amt := fee - fuels[sym]; amt > 0 {
			expected[sym] = amt
		}
	}
	seen := make(map[string]struct{}, len(reward.Rewards))
	for _, c := range reward.Rewards {
		if _, dup := seen[c.Symbol]; dup {
			return ruleErrorf(ErrBadReward, "reward lists %s twice", c.Symbol)
		}
		seen[c.Symbol] = struct{}{}
		if c.Amount == 0 {
			return ruleErrorf(ErrBadReward, "reward lists zero %s", c.Symbol)
		}
		if c.Amount != expected[c.Symbol] {
			return ruleErrorf(ErrBadReward, "reward pays %d %s, expected %d",
				c.Amount, c.Symbol, expected[c.Symbol])
		}
	}
	for sym, amt := range expected {
		if _, ok := seen[sym]; !ok {
			return ruleErrorf(ErrBadReward, "reward omits %d %s", amt, sym)
		}
	}
	return nil
}

// ExpectedReward returns the reward coins a block with the given receipts
// must declare, sorted by symbol.  The first return is the total fuel burned.
func ExpectedReward(receipts []*Receipt, fuelRate uint32) (uint64, []types.Coin) {
	fees := make(map[string]uint64)
	var totalFuel uint64
	for _, r := range receipts {
		fuel := txFuel(r.RunStep, fuelRate)
		totalFuel += fuel
		if r.Fee.Amount > fuel {
			fees[r.Fee.Symbol] += r.Fee.Amount - fuel
		}
	}
	coins := make([]types.Coin, 0, len(fees))
	for sym, amt := range fees {
		if amt > 0 {
			coins = append(coins, types.Coin{Symbol: sym, Amount: amt})
		}
	}
	sort.Slice(coins, func(i, j int) bool { return coins[i].Symbol < coins[j].Symbol })
	return totalFuel, coins
}

// connectGenesis seeds the state with the genesis allocation.  It runs once,
// on an empty state.
func (b *BlockChain) connectGenesis(block *types.Block, node *BlockNode, view *state.Cache, mode CommitMode) error {
	best, err := view.BestBlock()
	if err != nil {
		return err
	}
	if !best.IsEqual(&hash.ZeroHash) {
		return AssertError("genesis connected on a non-empty state")
	}

	alloc := &b.params.Genesis
	for _, a := range alloc.Assets {
		if err := view.Put(state.SubsysAsset, state.AssetKey(a.Symbol), a.Owner[:]); err != nil {
			return err
		}
	}
	if err := view.SetFeeSymbols(alloc.FeeSymbols); err != nil {
		return err
	}

	delegates := make([]types.AccountID, 0, len(alloc.Delegates))
	var zero [8]byte
	for _, d := range alloc.Delegates {
		if err := view.Put(state.SubsysDelegate, state.DelegateKey(d.ID), zero[:]); err != nil {
			return err
		}
		if err := view.PutUint64(state.SubsysVote, state.DelegateKey(d.ID), d.Votes); err != nil {
			return err
		}
		delegates = append(delegates, d.ID)
	}
	if len(delegates) > b.params.DelegateCount {
		delegates = delegates[:b.params.DelegateCount]
	}
	if err := view.SetActiveDelegates(delegates); err != nil {
		return err
	}

	for _, bal := range alloc.Balances {
		cur, err := view.Balance(bal.ID, bal.Coin.Symbol)
		if err != nil {
			return err
		}
		if err := view.SetBalance(bal.ID, bal.Coin.Symbol, cur+bal.Coin.Amount); err != nil {
			return err
		}
	}

	offsets := block.TxOffsets()
	for i, tx := range block.Transactions {
		txHash := tx.TxHash()
		loc := TxLocation{Block: node.hash, Pos: node.blockPos, TxOffset: offsets[i]}
		if err := view.Put(state.SubsysTxIndex, state.TxKey(&txHash),
			serializeTxLocation(&loc)); err != nil {
			return err
		}
	}
	view.SetBestBlock(&node.hash)

	if mode == Commit {
		b.index.SetStatusFlags(node, statusValid)
	}
	return nil
}

// disconnectBlock rolls view back from block to its parent using the stored
// undo record.  Any failure is a system error: the node can no longer
// trust its state.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *BlockChain) disconnectBlock(block *types.Block, node *BlockNode, view *state.Cache) error {
	best, err := view.BestBlock()
	if err != nil {
		return err
	}
	if !best.IsEqual(&node.hash) || node.parent == nil {
		return AssertError(fmt.Sprintf("disconnect block %v from state at %v", node.hash, best))
	}

	undo, err := b.fetchUndo(node)
	if err != nil {
		return err
	}
	if len(undo.TxUndos) != len(block.Transactions) {
		return errors.Errorf("undo of block %v covers %d transactions, block has %d",
			node.hash, len(undo.TxUndos), len(block.Transactions))
	}
	if err := undo.Apply(view); err != nil {
		return errors.Wrapf(err, "apply undo of block %v", node.hash)
	}
	view.SetBestBlock(&node.parent.hash)
	return nil
}
