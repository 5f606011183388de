// Copyright (c) 2017-2018 The nox developers

package blkmgr

import (
	"github.com/noxproject/dposd/common/hash"
	"github.com/noxproject/dposd/core/blockchain"
)

// PeerSender delivers block requests to a peer.  The wire protocol behind it
// is not part of this package.
type PeerSender interface {
	// SendGetBlocks asks peer for the blocks after the first locator hash
	// it knows, up to stop.
	SendGetBlocks(peer string, locator blockchain.BlockLocator, stop *hash.Hash) error
}
