// Copyright (c) 2017-2018 The nox developers
// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package params

import (
	"time"

	"github.com/noxproject/dposd/core/types"
)

// defaultInitFuelRate is the fuel rate of the genesis block and of every
// block until enough history exists to derive one.
const defaultInitFuelRate = 100

// buildGenesisBlock returns the genesis block of a network.  It carries only
// a reward transaction naming the first delegate.  The block is valid by
// definition; its allocation is applied by the chain's bootstrap path.
func buildGenesisBlock(alloc *GenesisAlloc, ts time.Time) *types.Block {
	var miner types.AccountID
	if len(alloc.Delegates) > 0 {
		miner = alloc.Delegates[0].ID
	}
	reward := &types.RewardTx{Version: 1, Height: 0, Miner: miner}
	block := &types.Block{
		Header: types.BlockHeader{
			Version:   1,
			Timestamp: ts,
			Height:    0,
			FuelRate:  defaultInitFuelRate,
		},
		Transactions: []types.Transaction{reward},
	}
	block.Header.MerkleRoot = block.CalcMerkleRoot()
	return block
}

// genesisDelegates returns n delegates derived from the network name, each
// holding votes.
func genesisDelegates(net string, n int, votes uint64) []GenesisDelegate {
	dl := make([]GenesisDelegate, n)
	for i := range dl {
		dl[i] = GenesisDelegate{
			ID:    DelegateID(net, i),
			Votes: votes - uint64(i),
		}
	}
	return dl
}

// DelegateID returns the account of the i-th genesis delegate of a network.
func DelegateID(net string, i int) types.AccountID {
	return types.NewAccountIDFromName(net + "/delegate/" + string(rune('a'+i)))
}
