// Copyright (c) 2017-2018 The nox developers

package database

// batchOp is one queued write.  A nil value with del set is a delete.
type batchOp struct {
	key   []byte
	value []byte
	del   bool
}

// Batch collects writes that must be applied atomically.
type Batch struct {
	ops  []batchOp
	size int
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Put queues a write of value under key.  Both slices are copied.
func (b *Batch) Put(key, value []byte) {
	b.ops = append(b.ops, batchOp{key: copyBytes(key), value: copyBytes(value)})
	b.size += len(key) + len(value)
}

// Delete queues a deletion of key.
func (b *Batch) Delete(key []byte) {
	b.ops = append(b.ops, batchOp{key: copyBytes(key), del: true})
	b.size += len(key)
}

// Len returns the number of queued operations.
func (b *Batch) Len() int {
	return len(b.ops)
}

// Size returns the number of key and value bytes queued.
func (b *Batch) Size() int {
	return b.size
}

// Reset empties the batch for reuse.
func (b *Batch) Reset() {
	b.ops = b.ops[:0]
	b.size = 0
}

// Append queues every operation of other after those of b.
func (b *Batch) Append(other *Batch) {
	b.ops = append(b.ops, other.ops...)
	b.size += other.size
}

// Replay calls put or del for every queued operation in order.  Drivers use
// it to translate a batch into their native transaction.
func (b *Batch) Replay(put func(key, value []byte) error, del func(key []byte) error) error {
	for _, op := range b.ops {
		var err error
		if op.del {
			err = del(op.key)
		} else {
			err = put(op.key, op.value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
