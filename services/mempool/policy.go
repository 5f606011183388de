// Copyright (c) 2017-2018 The nox developers
// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2017-2018 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

const (
	// DefaultMaxTxs is the default number of transactions the pool holds.
	DefaultMaxTxs = 50000

	// maxStandardTxSize is the maximum size allowed for transactions that
	// are considered standard and will therefore be relayed and considered
	// for mining.
	maxStandardTxSize = 100000
)

// Policy houses the policy (configuration parameters) which is used to
// control the mempool.
type Policy struct {
	// MaxTxs is the number of transactions the pool holds before it
	// rejects new ones.
	MaxTxs int

	// MaxTxSize is the largest serialized transaction accepted.
	MaxTxSize int
}
