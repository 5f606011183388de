// Copyright (c) 2017-2018 The nox developers

// Package delegate maintains the set of accounts allowed to produce blocks.
package delegate

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/noxproject/dposd/core/state"
	"github.com/noxproject/dposd/core/types"
	"github.com/noxproject/dposd/params"
	"github.com/pkg/errors"
)

// Rotator is the default blockchain.DelegateRotator.  It keeps all of its
// state in the chain state, so running it against a dry-run layer touches
// nothing but that layer.
type Rotator struct {
	params *params.Params
}

// New returns a rotator for the network described by p.
func New(p *params.Params) *Rotator {
	return &Rotator{params: p}
}

// OnBlockConnected checks that the producer of block is an active delegate,
// counts the block for it and, on a round boundary, elects the next active
// set by votes.
func (r *Rotator) OnBlockConnected(block *types.Block, cache *state.Cache) error {
	miner := block.Miner()
	active, err := cache.ActiveDelegates()
	if err != nil {
		return err
	}
	if !contains(active, miner) {
		return errors.Errorf("producer %v of block %v at height %d is not an "+
			"active delegate", miner, block.Hash(), block.Height())
	}

	key := state.DelegateKey(miner)
	produced, err := cache.GetUint64(state.SubsysDelegate, key)
	if err != nil {
		return err
	}
	if err := cache.PutUint64(state.SubsysDelegate, key, produced+1); err != nil {
		return err
	}

	if r.params.RoundBlocks == 0 || block.Height()%r.params.RoundBlocks != 0 {
		return nil
	}
	next, err := Elect(cache, r.params.DelegateCount)
	if err != nil {
		return err
	}
	if len(next) == 0 {
		// Keep producing with the current set rather than halting.
		return nil
	}
	log.Debug("Elected delegates", "height", block.Height(), "count", len(next))
	return cache.SetActiveDelegates(next)
}

type candidate struct {
	id    types.AccountID
	votes uint64
}

// Elect returns the count accounts holding the most votes, ordered by votes
// and then by id.
func Elect(cache *state.Cache, count int) ([]types.AccountID, error) {
	var cands []candidate
	err := cache.ForEach(state.SubsysVote, nil, func(k, v []byte) error {
		if len(k) != types.AccountIDSize || len(v) != 8 {
			return nil
		}
		c := candidate{votes: binary.BigEndian.Uint64(v)}
		copy(c.id[:], k)
		if c.votes > 0 {
			cands = append(cands, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(cands, func(i, j int) bool {
		if cands[i].votes != cands[j].votes {
			return cands[i].votes > cands[j].votes
		}
		return bytes.Compare(cands[i].id[:], cands[j].id[:]) < 0
	})
	if len(cands) > count {
		cands = cands[:count]
	}
	ids := make([]types.AccountID, len(cands))
	for i, c := range cands {
		ids[i] = c.id
	}
	return ids, nil
}

// IsActive reports whether id may produce the next block on the state in
// cache.
func IsActive(cache *state.Cache, id types.AccountID) (bool, error) {
	active, err := cache.ActiveDelegates()
	if err != nil {
		return false, err
	}
	return contains(active, id), nil
}

func contains(ids []types.AccountID, id types.AccountID) bool {
	for _, a := range ids {
		if a == id {
			return true
		}
	}
	return false
}
