// Copyright (c) 2017-2018 The nox developers
// Copyright (c) 2015-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"bytes"
	"encoding/binary"

	"github.com/noxproject/dposd/common/hash"
	s "github.com/noxproject/dposd/core/serialization"
	"github.com/noxproject/dposd/core/types"
	"github.com/noxproject/dposd/database"
	"github.com/noxproject/dposd/database/flatfile"
	"github.com/pkg/errors"
)

var (
	// blockIndexPrefix prefixes the keys of block index entries.
	blockIndexPrefix = []byte("bidx")

	// bestChainStateKey holds the tip of the active chain.
	bestChainStateKey = []byte("bbst")

	// blockFileInfoPrefix prefixes the bookkeeping entry of a block file.
	blockFileInfoPrefix = []byte("bfni")

	// lastBlockFileKey holds the number of the block file being appended.
	lastBlockFileKey = []byte("ltbf")
)

// errDeserialize signifies that a problem was encountered when deserializing
// data.
type errDeserialize string

// Error implements the error interface.
func (e errDeserialize) Error() string {
	return string(e)
}

// isDeserializeErr returns whether or not the passed error is an errDeserialize
// error.
func isDeserializeErr(err error) bool {
	_, ok := errors.Cause(err).(errDeserialize)
	return ok
}

// -----------------------------------------------------------------------------
// The block index consists of an entry for every known block.  It is keyed by
// the block hash and carries the header together with the status and disk
// positions of the block.
//
// The serialized format is:
//
//   <header fields><status><sequence><block pos><undo pos><miner><tx count>
//
//   Field             Type             Size
//   version           uint32           4 bytes
//   prev hash         hash.Hash        32 bytes
//   merkle root       hash.Hash        32 bytes
//   timestamp         int64            8 bytes
//   nonce             uint32           4 bytes
//   height            uint32           4 bytes
//   fuel rate         uint32           4 bytes
//   fuel              uint64           8 bytes
//   status            blockStatus      1 byte
//   sequence          uint64           8 bytes
//   block file        int32            4 bytes
//   block offset      uint32           4 bytes
//   undo file         int32            4 bytes
//   undo offset       uint32           4 bytes
//   miner             var bytes        21 bytes
//   tx count          uint32           4 bytes
// -----------------------------------------------------------------------------

// blockIndexKey returns the key of the index entry of a block.
func blockIndexKey(h *hash.Hash) []byte {
	key := make([]byte, 0, len(blockIndexPrefix)+hash.HashSize)
	key = append(key, blockIndexPrefix...)
	return append(key, h[:]...)
}

// storedNode is a node decoded from the index with its stored sequence.
type storedNode struct {
	node     *BlockNode
	sequence uint64
}

func serializeBlockNode(node *BlockNode) []byte {
	var buf bytes.Buffer
	// Writing into a bytes.Buffer only fails when out of memory.
	_ = s.WriteElements(&buf, node.version, &node.prevHash, &node.merkleRoot,
		node.timestamp, node.nonce, node.height, node.fuelRate, node.fuel,
		uint8(node.status), node.sequenceID,
		node.blockPos.File, node.blockPos.Offset,
		node.undoPos.File, node.undoPos.Offset,
		node.miner[:], node.txCount)
	return buf.Bytes()
}

func deserializeBlockNode(b []byte) (*storedNode, error) {
	var (
		node   BlockNode
		status uint8
		seq    uint64
		miner  []byte
	)
	r := bytes.NewReader(b)
	err := s.ReadElements(r, &node.version, &node.prevHash, &node.merkleRoot,
		&node.timestamp, &node.nonce, &node.height, &node.fuelRate, &node.fuel,
		&status, &seq,
		&node.blockPos.File, &node.blockPos.Offset,
		&node.undoPos.File, &node.undoPos.Offset,
		&miner, &node.txCount)
	if err != nil {
		return nil, errDeserialize("malformed block index entry: " + err.Error())
	}
	if len(miner) != types.AccountIDSize {
		return nil, errDeserialize("malformed block index miner")
	}
	copy(node.miner[:], miner)
	node.status = blockStatus(status)
	hdr := node.Header()
	node.hash = hdr.BlockHash()
	node.workSum = uint64(node.height) + 1
	return &storedNode{node: &node, sequence: seq}, nil
}

// dbPutBlockNode queues the index entry of node onto batch.
func dbPutBlockNode(batch *database.Batch, node *BlockNode) {
	batch.Put(blockIndexKey(&node.hash), serializeBlockNode(node))
}

// -----------------------------------------------------------------------------
// The best chain state consists of the best block hash and height and the
// total number of transactions up to and including those in the best block.
//
// The serialized format is:
//
//   <block hash><block height><total txns>
//
//   Field             Type             Size
//   block hash        hash.Hash        hash.HashSize
//   block height      uint32           4 bytes
//   total txns        uint64           8 bytes
// -----------------------------------------------------------------------------

// bestChainState represents the data to be stored the database for the current
// best chain state.
type bestChainState struct {
	hash      hash.Hash
	height    uint32
	totalTxns uint64
}

func serializeBestChainState(state bestChainState) []byte {
	var buf bytes.Buffer
	_ = s.WriteElements(&buf, &state.hash, state.height, state.totalTxns)
	return buf.Bytes()
}

func deserializeBestChainState(b []byte) (bestChainState, error) {
	var state bestChainState
	err := s.ReadElements(bytes.NewReader(b), &state.hash, &state.height,
		&state.totalTxns)
	if err != nil {
		return state, errDeserialize("corrupt best chain state: " + err.Error())
	}
	return state, nil
}

// dbPutBestState queues the best chain state onto batch.
func dbPutBestState(batch *database.Batch, snapshot *BestState) {
	batch.Put(bestChainStateKey, serializeBestChainState(bestChainState{
		hash:      snapshot.Hash,
		height:    snapshot.Height,
		totalTxns: snapshot.TotalTxns,
	}))
}

// dbFetchBestState loads the best chain state.  The boolean is false when the
// database has never been initialized.
func dbFetchBestState(db database.DB) (bestChainState, bool, error) {
	v, err := db.Get(bestChainStateKey)
	if err == database.ErrNotFound {
		return bestChainState{}, false, nil
	}
	if err != nil {
		return bestChainState{}, false, errors.Wrap(err, "fetch best chain state")
	}
	state, err := deserializeBestChainState(v)
	return state, true, err
}

// -----------------------------------------------------------------------------
// Every block file has a bookkeeping entry describing the blocks stored in it.
//
//   Field             Type             Size
//   blocks            uint32           4 bytes
//   size              uint32           4 bytes
//   undo size         uint32           4 bytes
//   height first      uint32           4 bytes
//   height last       uint32           4 bytes
//   time first        int64            8 bytes
//   time last         int64            8 bytes
// -----------------------------------------------------------------------------

// BlockFileInfo describes the contents of one block file.
type BlockFileInfo struct {
	Blocks      uint32
	Size        uint32
	UndoSize    uint32
	HeightFirst uint32
	HeightLast  uint32
	TimeFirst   int64
	TimeLast    int64
}

// addBlock accounts for a block of the given height and time written to the
// file.
func (fi *BlockFileInfo) addBlock(height uint32, ts int64, size uint32) {
	if fi.Blocks == 0 || height < fi.HeightFirst {
		fi.HeightFirst = height
	}
	if fi.Blocks == 0 || ts < fi.TimeFirst {
		fi.TimeFirst = ts
	}
	fi.Blocks++
	fi.Size += size
	if height > fi.HeightLast {
		fi.HeightLast = height
	}
	if ts > fi.TimeLast {
		fi.TimeLast = ts
	}
}

func blockFileInfoKey(file int32) []byte {
	key := make([]byte, len(blockFileInfoPrefix)+4)
	copy(key, blockFileInfoPrefix)
	binary.BigEndian.PutUint32(key[len(blockFileInfoPrefix):], uint32(file))
	return key
}

func serializeBlockFileInfo(fi *BlockFileInfo) []byte {
	var buf bytes.Buffer
	_ = s.WriteElements(&buf, fi.Blocks, fi.Size, fi.UndoSize, fi.HeightFirst,
		fi.HeightLast, fi.TimeFirst, fi.TimeLast)
	return buf.Bytes()
}

func deserializeBlockFileInfo(b []byte) (*BlockFileInfo, error) {
	fi := new(BlockFileInfo)
	err := s.ReadElements(bytes.NewReader(b), &fi.Blocks, &fi.Size,
		&fi.UndoSize, &fi.HeightFirst, &fi.HeightLast, &fi.TimeFirst,
		&fi.TimeLast)
	if err != nil {
		return nil, errDeserialize("corrupt block file info: " + err.Error())
	}
	return fi, nil
}

// dbFetchBlockFileInfo loads the bookkeeping entry of a file, an empty one
// when the file has none.
func dbFetchBlockFileInfo(db database.DB, file int32) (*BlockFileInfo, error) {
	v, err := db.Get(blockFileInfoKey(file))
	if err == database.ErrNotFound {
		return new(BlockFileInfo), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "fetch block file info %d", file)
	}
	return deserializeBlockFileInfo(v)
}

func dbPutBlockFileInfo(batch *database.Batch, file int32, fi *BlockFileInfo) {
	batch.Put(blockFileInfoKey(file), serializeBlockFileInfo(fi))
}

func dbPutLastBlockFile(batch *database.Batch, file int32) {
	var v [4]byte
	binary.BigEndian.PutUint32(v[:], uint32(file))
	batch.Put(lastBlockFileKey, v[:])
}

// -----------------------------------------------------------------------------
// The transaction index maps a confirmed transaction to the block holding it.
// It lives in the TxIndex state subsystem so that it is rolled back together
// with the rest of the state.
//
//   Field             Type             Size
//   block hash        hash.Hash        32 bytes
//   block file        int32            4 bytes
//   block offset      uint32           4 bytes
//   tx offset         uint32           4 bytes
// -----------------------------------------------------------------------------

// TxLocation locates a confirmed transaction.
type TxLocation struct {
	Block    hash.Hash
	Pos      flatfile.Pos
	TxOffset uint32
}

func serializeTxLocation(loc *TxLocation) []byte {
	var buf bytes.Buffer
	_ = s.WriteElements(&buf, &loc.Block, loc.Pos.File, loc.Pos.Offset, loc.TxOffset)
	return buf.Bytes()
}

func deserializeTxLocation(b []byte) (*TxLocation, error) {
	loc := new(TxLocation)
	err := s.ReadElements(bytes.NewReader(b), &loc.Block, &loc.Pos.File,
		&loc.Pos.Offset, &loc.TxOffset)
	if err != nil {
		return nil, errDeserialize("corrupt tx location: " + err.Error())
	}
	return loc, nil
}
