// Copyright (c) 2017-2018 The nox developers
// Copyright (c) 2014-2016 The btcsuite developers
// Copyright (c) 2015-2017 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package params

import (
	"time"

	"github.com/noxproject/dposd/core/types"
)

// PrivNetRichAccount holds the bulk of the native and stable assets on the
// private network.
var PrivNetRichAccount = types.NewAccountIDFromName("privnet/rich")

var privNetAlloc = GenesisAlloc{
	Assets: []GenesisAsset{
		{Symbol: "NOX", Owner: PrivNetRichAccount},
		{Symbol: "NUSD", Owner: PrivNetRichAccount},
	},
	FeeSymbols: []string{"NOX", "NUSD"},
	Delegates:  genesisDelegates("privnet", 3, 1000),
	Balances: []GenesisBalance{
		{ID: PrivNetRichAccount, Coin: types.Coin{Symbol: "NOX", Amount: 1000000000}},
		{ID: PrivNetRichAccount, Coin: types.Coin{Symbol: "NUSD", Amount: 1000000000}},
	},
}

var privNetGenesisBlock = buildGenesisBlock(&privNetAlloc, time.Unix(1561939200, 0))

var privNetGenesisHash = privNetGenesisBlock.Header.BlockHash()

// PrivNetParams defines the network parameters for the private test network.
// Rounds are short and limits are small so that tests and simulations can
// reach every code path with a handful of blocks.
var PrivNetParams = Params{
	Name:         "privnet",
	GenesisBlock: privNetGenesisBlock,
	GenesisHash:  &privNetGenesisHash,
	Genesis:      privNetAlloc,
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
	DelegateCount:       3,
	RoundBlocks:         3,

	MaxOrphanBlocks: 750,
	OrphanExpiry:    time.Hour,
	MaxForkDepth:    100,
	ForkCacheSize:   8,
	FinalityTimeout: 10 * time.Second,

	LargeForkLength:  7,
	LargeForkWindow:  72,
	InvalidChainLead: 6,
}
