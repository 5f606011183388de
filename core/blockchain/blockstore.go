// Copyright (c) 2017-2018 The nox developers

package blockchain

import (
	"github.com/noxproject/dposd/core/state"
	"github.com/noxproject/dposd/core/types"
	"github.com/noxproject/dposd/database"
	"github.com/noxproject/dposd/database/flatfile"
	"github.com/pkg/errors"
)

const (
	blockFilePrefix = "blk"
	undoFilePrefix  = "rev"
)

// fileInfo returns the bookkeeping entry of a block file, loading it on
// first use.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *BlockChain) fileInfo(file int32) (*BlockFileInfo, error) {
	if fi, ok := b.blockFileInfo[file]; ok {
		return fi, nil
	}
	fi, err := dbFetchBlockFileInfo(b.db, file)
	if err != nil {
		return nil, err
	}
	b.blockFileInfo[file] = fi
	return fi, nil
}

// writeBlock appends the block to the block files and accounts for it.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *BlockChain) writeBlock(block *types.Block) (flatfile.Pos, error) {
	raw, err := block.Bytes()
	if err != nil {
		return flatfile.NullPos, errors.Wrap(err, "serialize block")
	}
	pos, err := b.blockFiles.Write(block.Hash()[:], raw)
	if err != nil {
		return flatfile.NullPos, errors.Wrapf(err, "write block %v", block.Hash())
	}
	fi, err := b.fileInfo(pos.File)
	if err != nil {
		return flatfile.NullPos, err
	}
	fi.addBlock(block.Height(), block.Header.Timestamp.Unix(),
		flatfile.RecordSize(len(raw)))
	b.dirtyFileInfo[pos.File] = struct{}{}
	if pos.File > b.lastBlockFile {
		b.lastBlockFile = pos.File
	}
	return pos, nil
}

// fetchBlock reads the block of node from the block files.
//
// This function MUST be called with the chain state lock held (for reads).
func (b *BlockChain) fetchBlock(node *BlockNode) (*types.Block, error) {
	if !node.status.HaveData() || node.blockPos.IsNull() {
		return nil, AssertError("block data of " + node.hash.String() + " is not stored")
	}
	raw, err := b.blockFiles.Read(node.blockPos, node.hash[:])
	if err != nil {
		return nil, errors.Wrapf(err, "read block %v at %v", node.hash, node.blockPos)
	}
	block, err := types.NewBlockFromBytes(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "decode stored block %v", node.hash)
	}
	return block, nil
}

// writeUndo appends the undo record of node, salted with the parent hash so
// it can only ever be applied on top of the block it was produced for.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *BlockChain) writeUndo(node *BlockNode, undo *state.BlockUndo) error {
	raw := undo.Bytes()
	pos, err := b.undoFiles.Write(node.prevHash[:], raw)
	if err != nil {
		return errors.Wrapf(err, "write undo of %v", node.hash)
	}
	node.undoPos = pos
	if !node.blockPos.IsNull() {
		fi, err := b.fileInfo(node.blockPos.File)
		if err != nil {
			return err
		}
		fi.UndoSize += flatfile.RecordSize(len(raw))
		b.dirtyFileInfo[node.blockPos.File] = struct{}{}
	}
	b.index.SetStatusFlags(node, statusUndoStored)
	return nil
}

// fetchUndo reads the undo record of node.  A missing or damaged record is a
// system error.
//
// This function MUST be called with the chain state lock held (for reads).
func (b *BlockChain) fetchUndo(node *BlockNode) (*state.BlockUndo, error) {
	if !node.status.HaveUndo() || node.undoPos.IsNull() {
		return nil, errors.Errorf("no undo record for block %v", node.hash)
	}
	raw, err := b.undoFiles.Read(node.undoPos, node.prevHash[:])
	if err != nil {
		return nil, errors.Wrapf(err, "read undo of %v at %v", node.hash, node.undoPos)
	}
	undo, err := state.NewBlockUndoFromBytes(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "decode undo of %v", node.hash)
	}
	return undo, nil
}

// flushFileInfo queues the dirty block file entries onto batch.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *BlockChain) flushFileInfo(batch *database.Batch) {
	for file := range b.dirtyFileInfo {
		dbPutBlockFileInfo(batch, file, b.blockFileInfo[file])
	}
	if len(b.dirtyFileInfo) > 0 {
		dbPutLastBlockFile(batch, b.lastBlockFile)
	}
	b.dirtyFileInfo = make(map[int32]struct{})
}

// BlockFileInfo returns the bookkeeping of a block file.
//
// This function is safe for concurrent access.
func (b *BlockChain) BlockFileInfo(file int32) (BlockFileInfo, error) {
	b.chainLock.Lock()
	defer b.chainLock.Unlock()
	fi, err := b.fileInfo(file)
	if err != nil {
		return BlockFileInfo{}, err
	}
	return *fi, nil
}

// flushIndex writes the dirty index entries and file bookkeeping.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *BlockChain) flushIndex() error {
	batch := database.NewBatch()
	b.index.flushTo(batch)
	b.flushFileInfo(batch)
	if batch.Len() == 0 {
		return nil
	}
	if err := b.db.Write(batch); err != nil {
		return errors.Wrap(err, "flush block index")
	}
	b.index.clearDirty()
	return nil
}
