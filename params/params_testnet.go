// Copyright (c) 2017-2018 The nox developers
// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package params

import (
	"time"

	"github.com/noxproject/dposd/core/types"
)

var testNetAlloc = GenesisAlloc{
	Assets: []GenesisAsset{
		{Symbol: "NOX", Owner: types.NewAccountIDFromName("testnet/faucet")},
		{Symbol: "NUSD", Owner: types.NewAccountIDFromName("testnet/faucet")},
	},
	FeeSymbols: []string{"NOX", "NUSD"},
	Delegates:  genesisDelegates("testnet", 11, 1000000),
	Balances: []GenesisBalance{
		{ID: types.NewAccountIDFromName("testnet/faucet"), Coin: types.Coin{Symbol: "NOX", Amount: 210000000 * 1e8}},
		{ID: types.NewAccountIDFromName("testnet/faucet"), Coin: types.Coin{Symbol: "NUSD", Amount: 1000000 * 1e8}},
	},
}

var testNetGenesisBlock = buildGenesisBlock(&testNetAlloc, time.Unix(1561939200, 0))

var testNetGenesisHash = testNetGenesisBlock.Header.BlockHash()

// TestNetParams defines the network parameters for the test network.
var TestNetParams = Params{
	Name:         "testnet",
	GenesisBlock: testNetGenesisBlock,
	GenesisHash:  &testNetGenesisHash,
	Genesis:      testNetAlloc,
	NativeSymbol: "NOX",

	BlockVersion:  1,
	BlockInterval: 3 * time.Second,
	MaxTimeOffset: 12 * time.Minute,
	MaxBlockSize:  types.MaxBlockPayload,
	MaxNonce:      1000,

	MaxBlockRunStep: 12000000,
	InitFuelRate:    defaultInitFuelRate,
	MinFuelRate:     1,
	FuelRateWindow:  50,

	TxValidHeightWindow: 500,
	DelegateCount:       11,
	RoundBlocks:         11,

	MaxOrphanBlocks: 750,
	OrphanExpiry:    time.Hour,
	MaxForkDepth:    8640,
	ForkCacheSize:   32,
	FinalityTimeout: 90 * time.Second,

	LargeForkLength:  7,
	LargeForkWindow:  72,
	InvalidChainLead: 6,
}
