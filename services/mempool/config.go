// Copyright (c) 2017-2018 The nox developers
// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2017-2018 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"github.com/noxproject/dposd/common/hash"
	"github.com/noxproject/dposd/params"
)

// Config is a descriptor containing the memory pool configuration.
type Config struct {
	// Policy defines the various mempool configuration options related
	// to policy.
	Policy Policy

	// ChainParams identifies which chain parameters the txpool is
	// associated with.
	ChainParams *params.Params

	// BestHeight defines the function to use to access the block height of
	// the current best chain.
	BestHeight func() uint32

	// IsConfirmed reports whether a transaction is already part of the
	// best chain.
	IsConfirmed func(txHash *hash.Hash) (bool, error)
}
