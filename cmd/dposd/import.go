// Copyright (c) 2017-2018 The nox developers
// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/noxproject/dposd/core/blockchain"
	"github.com/noxproject/dposd/core/types"
	"github.com/noxproject/dposd/log"
	"github.com/noxproject/dposd/services/common/progresslog"
	"github.com/pkg/errors"
)

// blockProcessor is the part of the block manager the importer feeds.
type blockProcessor interface {
	ProcessBlock(block *types.Block, flags blockchain.BehaviorFlags, source string) (bool, bool, error)
}

// importResults houses the stats and result as an import operation.
type importResults struct {
	blocksProcessed int64
	blocksImported  int64
	err             error
}

// readBlock reads the next record of a bootstrap file: a little-endian
// uint32 length followed by the serialized block.  io.EOF is returned at a
// clean end of file.
func readBlock(r io.Reader) (*types.Block, error) {
	var serializedLen [4]byte
	if _, err := io.ReadFull(r, serializedLen[:]); err != nil {
		return nil, err
	}
	blockLen := binary.LittleEndian.Uint32(serializedLen[:])
	if blockLen > types.MaxBlockPayload {
		return nil, errors.Errorf("block payload of %d bytes is larger "+
			"than the max allowed %d bytes", blockLen, types.MaxBlockPayload)
	}

	serializedBlock := make([]byte, blockLen)
	if _, err := io.ReadFull(r, serializedBlock); err != nil {
		return nil, errors.Wrap(err, "truncated block record")
	}
	return types.NewBlockFromBytes(serializedBlock)
}

// importBlocks feeds every block of r to bp in order.  Blocks come from a
// trusted local source so the check against the local clock is skipped.
// Blocks the chain already has are counted as processed, not imported.
func importBlocks(bp blockProcessor, r io.Reader, interrupt <-chan struct{}) *importResults {
	results := new(importResults)
	progress := progresslog.NewBlockProgressLogger("Imported", log.Root())
	for {
		if interruptRequested(interrupt) {
			break
		}
		block, err := readBlock(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			results.err = err
			break
		}
		results.blocksProcessed++

		_, isOrphan, err := bp.ProcessBlock(block, blockchain.BFFastAdd, "")
		if err != nil {
			if blockchain.IsErrorCode(err, blockchain.ErrDuplicateBlock) {
				continue
			}
			results.err = errors.Wrapf(err, "import of block %v at height %d",
				block.Hash(), block.Height())
			break
		}
		if isOrphan {
			results.err = errors.Errorf("import file contains an orphan "+
				"block: %v", block.Hash())
			break
		}
		results.blocksImported++
		progress.LogBlockHeight(block)
	}
	return results
}

// importFile imports the bootstrap file at path.
func importFile(bp blockProcessor, path string, interrupt <-chan struct{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	log.Info("Importing blocks", "file", path)
	results := importBlocks(bp, f, interrupt)
	log.Info("Import finished", "processed", results.blocksProcessed,
		"imported", results.blocksImported)
	return results.err
}
