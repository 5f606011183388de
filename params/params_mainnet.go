// Copyright (c) 2017-2018 The nox developers
// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package params

import (
	"time"

	"github.com/noxproject/dposd/core/types"
)

var mainNetAlloc = GenesisAlloc{
	Assets: []GenesisAsset{
		{Symbol: "NOX", Owner: types.NewAccountIDFromName("mainnet/foundation")},
		{Symbol: "NUSD", Owner: types.NewAccountIDFromName("mainnet/foundation")},
	},
	FeeSymbols: []string{"NOX", "NUSD"},
	Delegates:  genesisDelegates("mainnet", 11, 1000000),
	Balances: []GenesisBalance{
		{ID: types.NewAccountIDFromName("mainnet/foundation"), Coin: types.Coin{Symbol: "NOX", Amount: 210000000 * 1e8}},
	},
}

var mainNetGenesisBlock = buildGenesisBlock(&mainNetAlloc, time.Unix(1561939200, 0))

var mainNetGenesisHash = mainNetGenesisBlock.Header.BlockHash()

// MainNetParams defines the network parameters for the main network.
var MainNetParams = Params{
	Name:         "mainnet",
	GenesisBlock: mainNetGenesisBlock,
	GenesisHash:  &mainNetGenesisHash,
	Genesis:      mainNetAlloc,
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
