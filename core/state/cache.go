// Copyright (c) 2017-2018 The nox developers

// Package state implements the layered chain state cache and the undo logs
// used to roll it back.
//
// A Cache is an overlay of per-subsystem key/value maps on top of either a
// parent Cache or the persistent database.  Reads fall through to the base on
// a miss and writes stay local until Flush.  Caches are not safe for
// concurrent use; each one is owned by the call that created it.
package state

import (
	"sort"

	"github.com/noxproject/dposd/common/hash"
	"github.com/noxproject/dposd/database"
	"github.com/pkg/errors"
)

var bestBlockKey = []byte{}

type entry struct {
	value   []byte
	deleted bool
}

// Cache is one layer of chain state.
type Cache struct {
	parent *Cache
	db     database.DB

	entries [numSubsystems]map[string]*entry

	// When set, every mutation records the prior value of its key here.
	undo *TxUndo
}

// NewCache returns an empty layer directly over the database.
func NewCache(db database.DB) *Cache {
	c := &Cache{db: db}
	c.init()
	return c
}

func (c *Cache) init() {
	for i := range c.entries {
		c.entries[i] = make(map[string]*entry)
	}
}

// NewChild returns an empty layer whose reads fall through to c.
func (c *Cache) NewChild() *Cache {
	child := &Cache{parent: c, db: c.db}
	child.init()
	return child
}

// Clone returns an independent copy of this layer sharing the same base.
func (c *Cache) Clone() *Cache {
	clone := &Cache{parent: c.parent, db: c.db}
	clone.init()
	for i, m := range c.entries {
		for k, e := range m {
			clone.entries[i][k] = &entry{value: copyBytes(e.value), deleted: e.deleted}
		}
	}
	return clone
}

// Parent returns the layer below c or nil when c sits on the database.
func (c *Cache) Parent() *Cache {
	return c.parent
}

// SetUndoSink attaches the undo log subsequent mutations are recorded in.  A
// nil sink stops recording.
func (c *Cache) SetUndoSink(undo *TxUndo) {
	c.undo = undo
}

// Get returns a copy of the value of key.  The boolean is false when the key
// does not exist in any layer.
func (c *Cache) Get(sub Subsystem, key []byte) ([]byte, bool, error) {
	for layer := c; layer != nil; layer = layer.parent {
		if e, ok := layer.entries[sub][string(key)]; ok {
			if e.deleted {
				return nil, false, nil
			}
			return copyBytes(e.value), true, nil
		}
	}
	if c.db == nil {
		return nil, false, nil
	}
	v, err := c.db.Get(sub.dbKey(key))
	if err == database.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "read %s state", sub)
	}
	return v, true, nil
}

// Has reports whether key exists.
func (c *Cache) Has(sub Subsystem, key []byte) (bool, error) {
	_, ok, err := c.Get(sub, key)
	return ok, err
}

// Put sets key to value.
func (c *Cache) Put(sub Subsystem, key, value []byte) error {
	if err := c.record(sub, key); err != nil {
		return err
	}
	c.entries[sub][string(key)] = &entry{value: copyBytes(value)}
	return nil
}

// Delete removes key.  Deleting a missing key is not an error.
func (c *Cache) Delete(sub Subsystem, key []byte) error {
	if err := c.record(sub, key); err != nil {
		return err
	}
	c.entries[sub][string(key)] = &entry{deleted: true}
	return nil
}

// record appends the current value of key to the undo sink.
func (c *Cache) record(sub Subsystem, key []byte) error {
	if c.undo == nil {
		return nil
	}
	old, existed, err := c.Get(sub, key)
	if err != nil {
		return err
	}
	c.undo.add(UndoOp{
		Subsystem: sub,
		Key:       copyBytes(key),
		Existed:   existed,
		Old:       old,
	})
	return nil
}

// ForEach calls fn for every live key of the subsystem starting with prefix,
// in ascending key order, with all layers merged.  Keys are passed without
// the subsystem prefix.
func (c *Cache) ForEach(sub Subsystem, prefix []byte, fn func(key, value []byte) error) error {
	merged := make(map[string][]byte)
	if err := c.collect(sub, prefix, merged); err != nil {
		return err
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn([]byte(k), merged[k]); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) collect(sub Subsystem, prefix []byte, out map[string][]byte) error {
	if c.parent != nil {
		if err := c.parent.collect(sub, prefix, out); err != nil {
			return err
		}
	} else if c.db != nil {
		plen := len(sub.Prefix())
		err := c.db.ForEach(sub.dbKey(prefix), func(k, v []byte) error {
			out[string(k[plen:])] = copyBytes(v)
			return nil
		})
		if err != nil {
			return errors.Wrapf(err, "iterate %s state", sub)
		}
	}
	p := string(prefix)
	for k, e := range c.entries[sub] {
		if len(k) < len(p) || k[:len(p)] != p {
			continue
		}
		if e.deleted {
			delete(out, k)
		} else {
			out[k] = copyBytes(e.value)
		}
	}
	return nil
}

// BestBlock returns the hash of the block this state corresponds to, or the
// zero hash for an empty state.
func (c *Cache) BestBlock() (hash.Hash, error) {
	v, ok, err := c.Get(SubsysBlockMeta, bestBlockKey)
	if err != nil || !ok {
		return hash.ZeroHash, err
	}
	h, err := hash.NewHash(v)
	if err != nil {
		return hash.ZeroHash, errors.Wrap(err, "decode best block")
	}
	return *h, nil
}

// SetBestBlock records the block this state corresponds to.  It is never
// captured in the undo sink.
func (c *Cache) SetBestBlock(h *hash.Hash) {
	c.entries[SubsysBlockMeta][string(bestBlockKey)] = &entry{value: h.CloneBytes()}
}

// Len returns the number of keys modified in this layer.
func (c *Cache) Len() int {
	n := 0
	for _, m := range c.entries {
		n += len(m)
	}
	return n
}

// Flush merges the modifications of this layer into its parent, or writes
// them to the database when the layer sits directly on it, and empties the
// layer.
func (c *Cache) Flush() error {
	if c.parent != nil {
		for sub, m := range c.entries {
			for k, e := range m {
				c.parent.entries[sub][k] = e
			}
		}
		c.init()
		return nil
	}
	batch := database.NewBatch()
	c.FlushTo(batch)
	if batch.Len() == 0 {
		return nil
	}
	if err := c.db.Write(batch); err != nil {
		return errors.Wrap(err, "flush state")
	}
	return nil
}

// FlushTo queues the modifications of this layer onto batch and empties the
// layer.  The caller commits the batch together with its own writes.  Only
// valid for a layer sitting on the database.
func (c *Cache) FlushTo(batch *database.Batch) {
	for i, m := range c.entries {
		sub := Subsystem(i)
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			e := m[k]
			if e.deleted {
				batch.Delete(sub.dbKey([]byte(k)))
			} else {
				batch.Put(sub.dbKey([]byte(k)), e.value)
			}
		}
	}
	c.init()
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
