// Copyright (c) 2017-2018 The nox developers

// Package executor implements the reference transaction executor the chain
// runs every transaction of a connected block through.  It knows reward and
// transfer transactions; richer transaction kinds plug in behind the same
// blockchain.TxExecutor interface.
package executor

import (
	"bytes"
	"math"

	"github.com/noxproject/dposd/common/hash"
	"github.com/noxproject/dposd/core/blockchain"
	s "github.com/noxproject/dposd/core/serialization"
	"github.com/noxproject/dposd/core/state"
	"github.com/noxproject/dposd/core/types"
	"github.com/noxproject/dposd/params"
	"github.com/pkg/errors"
)

// TransferRunStep is the metered effort of one transfer.
const TransferRunStep = 500

// Executor is the default blockchain.TxExecutor.
type Executor struct {
	params *params.Params
}

// New returns an executor for the network described by p.
func New(p *params.Params) *Executor {
	return &Executor{params: p}
}

// CheckAndExecute validates tx against the state in ctx and applies it.
// Every mutation goes through ctx.Cache.
func (e *Executor) CheckAndExecute(tx types.Transaction, ctx *blockchain.ExecContext) (*blockchain.Receipt, error) {
	switch t := tx.(type) {
	case *types.RewardTx:
		return e.executeReward(t, ctx)
	case *types.TransferTx:
		return e.executeTransfer(t, ctx)
	}
	return nil, txRuleError(RejectUnknownType, "transaction %v has unsupported "+
		"type %v", tx.TxHash(), tx.TxType())
}

// executeReward credits the declared rewards to the producer.  Whether the
// amounts match the fees of the block is checked by the chain once all
// transactions ran.
func (e *Executor) executeReward(tx *types.RewardTx, ctx *blockchain.ExecContext) (*blockchain.Receipt, error) {
	if tx.Miner != ctx.Miner {
		return nil, txRuleError(RejectBadMiner, "reward pays %v, block is "+
			"produced by %v", tx.Miner, ctx.Miner)
	}
	for _, c := range tx.Rewards {
		if err := credit(ctx.Cache, tx.Miner, c); err != nil {
			return nil, err
		}
	}
	return &blockchain.Receipt{}, nil
}

func (e *Executor) executeTransfer(tx *types.TransferTx, ctx *blockchain.ExecContext) (*blockchain.Receipt, error) {
	txHash := tx.TxHash()
	if err := e.checkValidHeight(tx.ValidHeight, ctx.Height); err != nil {
		return nil, err
	}
	if tx.Amount.Amount == 0 {
		return nil, txRuleError(RejectZeroAmount, "transfer %v moves nothing", txHash)
	}

	cache := ctx.Cache
	if err := checkFeeSymbol(cache, tx.Fee.Symbol); err != nil {
		return nil, err
	}
	registered, err := cache.Has(state.SubsysAsset, state.AssetKey(tx.Amount.Symbol))
	if err != nil {
		return nil, err
	}
	if !registered {
		return nil, txRuleError(RejectUnknownAsset, "transfer %v of unknown "+
			"asset %s", txHash, tx.Amount.Symbol)
	}

	if err := debit(cache, tx.From, tx.Fee); err != nil {
		return nil, err
	}
	if err := debit(cache, tx.From, tx.Amount); err != nil {
		return nil, err
	}
	if err := credit(cache, tx.To, tx.Amount); err != nil {
		return nil, err
	}

	receipt := &blockchain.Receipt{RunStep: TransferRunStep, Fee: tx.Fee}
	if err := cache.Put(state.SubsysReceipt, state.TxKey(&txHash),
		serializeReceipt(receipt)); err != nil {
		return nil, err
	}
	log.Trace("Executed transfer", "tx", txHash, "from", tx.From, "to", tx.To,
		"amount", tx.Amount, "fee", tx.Fee)
	return receipt, nil
}

// checkValidHeight verifies a transaction is included within the window of
// blocks around its valid height.
func (e *Executor) checkValidHeight(validHeight, height uint32) error {
	window := e.params.TxValidHeightWindow
	if validHeight > height+window || height > validHeight+window {
		return txRuleError(RejectValidHeight, "valid height %d is more than "+
			"%d blocks from block height %d", validHeight, window, height)
	}
	return nil
}

func checkFeeSymbol(cache *state.Cache, symbol string) error {
	symbols, err := cache.FeeSymbols()
	if err != nil {
		return err
	}
	for _, sym := range symbols {
		if sym == symbol {
			return nil
		}
	}
	return txRuleError(RejectFeeSymbol, "fees may not be paid in %s", symbol)
}

func debit(cache *state.Cache, id types.AccountID, c types.Coin) error {
	bal, err := cache.Balance(id, c.Symbol)
	if err != nil {
		return err
	}
	if bal < c.Amount {
		return txRuleError(RejectInsufficientFunds, "account %v holds %d %s, "+
			"needs %d", id, bal, c.Symbol, c.Amount)
	}
	return cache.SetBalance(id, c.Symbol, bal-c.Amount)
}

func credit(cache *state.Cache, id types.AccountID, c types.Coin) error {
	bal, err := cache.Balance(id, c.Symbol)
	if err != nil {
		return err
	}
	if bal > math.MaxUint64-c.Amount {
		return errors.Errorf("balance of %v overflows crediting %v", id, c)
	}
	return cache.SetBalance(id, c.Symbol, bal+c.Amount)
}

func serializeReceipt(r *blockchain.Receipt) []byte {
	var buf bytes.Buffer
	// Writing to a bytes.Buffer cannot fail.
	_ = s.WriteElements(&buf, r.RunStep, r.Fee.Symbol, r.Fee.Amount)
	return buf.Bytes()
}

func deserializeReceipt(b []byte) (*blockchain.Receipt, error) {
	r := &blockchain.Receipt{}
	err := s.ReadElements(bytes.NewReader(b), &r.RunStep, &r.Fee.Symbol, &r.Fee.Amount)
	if err != nil {
		return nil, errors.Wrap(err, "decode receipt")
	}
	return r, nil
}

// FetchReceipt returns the receipt stored for a confirmed transaction, or
// nil when there is none.
func FetchReceipt(cache *state.Cache, txHash *hash.Hash) (*blockchain.Receipt, error) {
	v, ok, err := cache.Get(state.SubsysReceipt, state.TxKey(txHash))
	if err != nil || !ok {
		return nil, err
	}
	return deserializeReceipt(v)
}
