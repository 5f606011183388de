// Copyright 2017-2018 The nox developers

package types

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/noxproject/dposd/common/hash"
	"github.com/noxproject/dposd/core/merkle"
	s "github.com/noxproject/dposd/core/serialization"
)

// MaxBlockHeaderPayload is the number of bytes a serialized block header
// occupies.
// Version 4 bytes + PrevBlock 32 bytes + MerkleRoot 32 bytes + Timestamp 4 bytes
// Nonce 4 bytes + Height 4 bytes + FuelRate 4 bytes + Fuel 8 bytes
// --> Total 92 bytes.
const MaxBlockHeaderPayload = 4 + (hash.HashSize * 2) + 4 + 4 + 4 + 4 + 8

// MaxBlockPayload is the maximum bytes a block can be.
const MaxBlockPayload = 4000000

// maxTxPerBlock bounds the transaction count read from untrusted input.
const maxTxPerBlock = MaxBlockPayload / 32

// BlockHeader is immutable once constructed; the block identity is the hash
// of its serialization.
type BlockHeader struct {
	// block version
	Version uint32

	// Hash of the previous block in the chain.
	PrevBlock hash.Hash

	// The merkle root of the block's transactions.
	MerkleRoot hash.Hash

	// TimeStamp with second precision
	Timestamp time.Time

	Nonce uint32

	Height uint32

	// Fuel price per 100 run steps charged to transactions in this block.
	FuelRate uint32

	// Total fuel consumed by the block's transactions.
	Fuel uint64
}

// BlockHash computes the block identifier hash for the given block header.
func (h *BlockHeader) BlockHash() hash.Hash {
	// Encode the header and hash everything.  Ignore the error returns
	// since there is no way the encode could fail except being out of
	// memory which would cause a run-time panic.
	buf := bytes.NewBuffer(make([]byte, 0, MaxBlockHeaderPayload))
	_ = writeBlockHeader(buf, h)
	return hash.DoubleHashH(buf.Bytes())
}

// Serialize encodes a block header from r into a format suitable for
// long-term storage such as a database.
func (h *BlockHeader) Serialize(w io.Writer) error {
	return writeBlockHeader(w, h)
}

// Deserialize decodes a block header from r.
func (h *BlockHeader) Deserialize(r io.Reader) error {
	return readBlockHeader(r, h)
}

func readBlockHeader(r io.Reader, bh *BlockHeader) error {
	return s.ReadElements(r, &bh.Version, &bh.PrevBlock, &bh.MerkleRoot,
		(*s.Uint32Time)(&bh.Timestamp), &bh.Nonce, &bh.Height, &bh.FuelRate,
		&bh.Fuel)
}

func writeBlockHeader(w io.Writer, bh *BlockHeader) error {
	return s.WriteElements(w, bh.Version, &bh.PrevBlock, &bh.MerkleRoot,
		s.Uint32Time(bh.Timestamp), bh.Nonce, bh.Height, bh.FuelRate, bh.Fuel)
}

// Block is a header plus its ordered transactions.  The hash and the merkle
// tree are computed lazily and cached; a block must not be mutated once it
// has been handed to the chain.
type Block struct {
	Header       BlockHeader
	Transactions []Transaction

	hashOnce sync.Once
	hash     hash.Hash

	merkleOnce sync.Once
	merkles    []*hash.Hash

	serializedSize int
}

// NewBlock assembles a block from a header and transactions.
func NewBlock(header BlockHeader, txs []Transaction) *Block {
	return &Block{Header: header, Transactions: txs}
}

// Hash returns the block identifier hash.
func (b *Block) Hash() *hash.Hash {
	b.hashOnce.Do(func() {
		b.hash = b.Header.BlockHash()
	})
	return &b.hash
}

// Height returns the height claimed by the header.
func (b *Block) Height() uint32 {
	return b.Header.Height
}

// RewardTx returns the first transaction when it is a reward transaction.
func (b *Block) RewardTx() (*RewardTx, bool) {
	if len(b.Transactions) == 0 {
		return nil, false
	}
	tx, ok := b.Transactions[0].(*RewardTx)
	return tx, ok
}

// Miner returns the producer declared by the reward transaction.
func (b *Block) Miner() AccountID {
	if tx, ok := b.RewardTx(); ok {
		return tx.Miner
	}
	return AccountID{}
}

func (b *Block) merkleStore() []*hash.Hash {
	b.merkleOnce.Do(func() {
		leaves := make([]hash.Hash, len(b.Transactions))
		for i, tx := range b.Transactions {
			leaves[i] = tx.TxHash()
		}
		b.merkles = merkle.BuildMerkleTreeStore(leaves)
	})
	return b.merkles
}

// CalcMerkleRoot returns the merkle root over the block's transaction ids.
func (b *Block) CalcMerkleRoot() hash.Hash {
	return merkle.Root(b.merkleStore())
}

// MerkleBranch returns the proof that transaction index is committed to by
// the block's merkle root.
func (b *Block) MerkleBranch(index int) []hash.Hash {
	return merkle.Branch(b.merkleStore(), len(b.Transactions), index)
}

// SerializeSize returns the number of bytes it would take to serialize the
// block.
func (b *Block) SerializeSize() int {
	if b.serializedSize != 0 {
		return b.serializedSize
	}
	n := MaxBlockHeaderPayload + s.VarIntSerializeSize(uint64(len(b.Transactions)))
	for _, tx := range b.Transactions {
		n += tx.SerializeSize()
	}
	b.serializedSize = n
	return n
}

// TxOffsets returns the byte offset of every transaction within the
// serialized block.
func (b *Block) TxOffsets() []uint32 {
	offsets := make([]uint32, len(b.Transactions))
	off := MaxBlockHeaderPayload + s.VarIntSerializeSize(uint64(len(b.Transactions)))
	for i, tx := range b.Transactions {
		offsets[i] = uint32(off)
		off += tx.SerializeSize()
	}
	return offsets
}

// Serialize encodes the block to w.
func (b *Block) Serialize(w io.Writer) error {
	if err := writeBlockHeader(w, &b.Header); err != nil {
		return err
	}
	if err := s.WriteVarInt(w, uint64(len(b.Transactions))); err != nil {
		return err
	}
	for _, tx := range b.Transactions {
		if err := tx.Serialize(w); err != nil {
			return err
		}
	}
	return nil
}

// Bytes returns the serialized block.
func (b *Block) Bytes() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, b.SerializeSize()))
	if err := b.Serialize(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Deserialize decodes a block from r into the receiver.
func (b *Block) Deserialize(r io.Reader) error {
	if err := readBlockHeader(r, &b.Header); err != nil {
		return err
	}
	count, err := s.ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > maxTxPerBlock {
		return fmt.Errorf("too many transactions to fit into a block "+
			"[count %d, max %d]", count, maxTxPerBlock)
	}
	b.Transactions = make([]Transaction, 0, count)
	for i := uint64(0); i < count; i++ {
		tx, err := ReadTransaction(r)
		if err != nil {
			return err
		}
		b.Transactions = append(b.Transactions, tx)
	}
	return nil
}

// NewBlockFromBytes decodes a serialized block.
func NewBlockFromBytes(serialized []byte) (*Block, error) {
	var b Block
	if err := b.Deserialize(bytes.NewReader(serialized)); err != nil {
		return nil, err
	}
	b.serializedSize = len(serialized)
	return &b, nil
}
