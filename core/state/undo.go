// Copyright (c) 2017-2018 The nox developers

package state

import (
	"bytes"
	"fmt"
	"io"

	"github.com/noxproject/dposd/common/hash"
	s "github.com/noxproject/dposd/core/serialization"
	"github.com/pkg/errors"
)

// maxUndoOps bounds the op count read from disk.
const maxUndoOps = 1 << 20

// UndoOp is the inverse of one mutation: the value the key held before it,
// or its absence.
type UndoOp struct {
	Subsystem Subsystem
	Key       []byte
	Existed   bool
	Old       []byte
}

// TxUndo is the undo log of a single transaction.  Ops are kept in the order
// the mutations happened.
type TxUndo struct {
	TxHash hash.Hash
	Ops    []UndoOp
}

// NewTxUndo returns an empty undo log for the transaction txHash.
func NewTxUndo(txHash hash.Hash) *TxUndo {
	return &TxUndo{TxHash: txHash}
}

func (u *TxUndo) add(op UndoOp) {
	u.Ops = append(u.Ops, op)
}

// OpsFor returns the ops of one subsystem in mutation order.
func (u *TxUndo) OpsFor(sub Subsystem) []UndoOp {
	var ops []UndoOp
	for _, op := range u.Ops {
		if op.Subsystem == sub {
			ops = append(ops, op)
		}
	}
	return ops
}

// Apply restores the state c held before the transaction ran by replaying
// the ops in reverse.
func (u *TxUndo) Apply(c *Cache) error {
	sink := c.undo
	c.undo = nil
	defer func() { c.undo = sink }()

	for i := len(u.Ops) - 1; i >= 0; i-- {
		op := &u.Ops[i]
		if !op.Subsystem.IsValid() {
			return fmt.Errorf("undo op of unknown subsystem %d", op.Subsystem)
		}
		if err := undoAppliers[op.Subsystem](c, op); err != nil {
			return errors.Wrapf(err, "undo %s op of tx %v", op.Subsystem, u.TxHash)
		}
	}
	return nil
}

// BlockUndo is the undo log of a block, one TxUndo per transaction in block
// order.
type BlockUndo struct {
	TxUndos []*TxUndo
}

// Apply restores the state c held before the block was connected, most
// recent transaction first.
func (b *BlockUndo) Apply(c *Cache) error {
	for i := len(b.TxUndos) - 1; i >= 0; i-- {
		if err := b.TxUndos[i].Apply(c); err != nil {
			return err
		}
	}
	return nil
}

// Serialize encodes the undo log.
//
//	<tx count varint>
//	  <tx hash 32 bytes><op count varint>
//	    <subsystem 1 byte><key varbytes><existed bool><old varbytes>
func (b *BlockUndo) Serialize(w io.Writer) error {
	if err := s.WriteVarInt(w, uint64(len(b.TxUndos))); err != nil {
		return err
	}
	for _, u := range b.TxUndos {
		if err := s.WriteElements(w, &u.TxHash); err != nil {
			return err
		}
		if err := s.WriteVarInt(w, uint64(len(u.Ops))); err != nil {
			return err
		}
		for _, op := range u.Ops {
			err := s.WriteElements(w, uint8(op.Subsystem), op.Key, op.Existed, op.Old)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// Bytes returns the serialized undo log.
func (b *BlockUndo) Bytes() []byte {
	var buf bytes.Buffer
	_ = b.Serialize(&buf)
	return buf.Bytes()
}

// Deserialize decodes an undo log.  An op tagged with an unknown subsystem
// is rejected.
func (b *BlockUndo) Deserialize(r io.Reader) error {
	count, err := s.ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > maxUndoOps {
		return fmt.Errorf("undo tx count %d exceeds limit", count)
	}
	b.TxUndos = make([]*TxUndo, 0, count)
	for i := uint64(0); i < count; i++ {
		u := &TxUndo{}
		if err := s.ReadElements(r, &u.TxHash); err != nil {
			return err
		}
		nops, err := s.ReadVarInt(r)
		if err != nil {
			return err
		}
		if nops > maxUndoOps {
			return fmt.Errorf("undo op count %d exceeds limit", nops)
		}
		u.Ops = make([]UndoOp, nops)
		for j := range u.Ops {
			op := &u.Ops[j]
			var sub uint8
			err := s.ReadElements(r, &sub, &op.Key, &op.Existed, &op.Old)
			if err != nil {
				return err
			}
			op.Subsystem = Subsystem(sub)
			if !op.Subsystem.IsValid() {
				return fmt.Errorf("undo op of unknown subsystem %d", sub)
			}
			if !op.Existed {
				op.Old = nil
			}
		}
		b.TxUndos = append(b.TxUndos, u)
	}
	return nil
}

// NewBlockUndoFromBytes decodes a serialized undo log.
func NewBlockUndoFromBytes(b []byte) (*BlockUndo, error) {
	var undo BlockUndo
	if err := undo.Deserialize(bytes.NewReader(b)); err != nil {
		return nil, err
	}
	return &undo, nil
}

type undoApplier func(c *Cache, op *UndoOp) error

// undoAppliers dispatch ops by subsystem.  The table is checked complete at
// init.
var undoAppliers = [numSubsystems]undoApplier{
	SubsysSysParam:  restoreKV,
	SubsysAccount:   restoreBalance,
	SubsysAsset:     restoreKV,
	SubsysDelegate:  restoreKV,
	SubsysVote:      restoreBalance,
	SubsysCDP:       restoreKV,
	SubsysDexOrder:  restoreKV,
	SubsysReceipt:   restoreKV,
	SubsysTxIndex:   restoreKV,
	SubsysBlockMeta: restoreKV,
}

func init() {
	for i, fn := range undoAppliers {
		if fn == nil {
			panic(fmt.Sprintf("no undo applier for subsystem %v", Subsystem(i)))
		}
	}
}

func restoreKV(c *Cache, op *UndoOp) error {
	if op.Existed {
		return c.Put(op.Subsystem, op.Key, op.Old)
	}
	return c.Delete(op.Subsystem, op.Key)
}

// restoreBalance restores an amount keyed value, which is always a fixed
// 8 byte integer.
func restoreBalance(c *Cache, op *UndoOp) error {
	if op.Existed && len(op.Old) != 8 {
		return fmt.Errorf("bad %s amount length %d", op.Subsystem, len(op.Old))
	}
	return restoreKV(c, op)
}
