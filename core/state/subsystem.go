// Copyright (c) 2017-2018 The nox developers

package state

import (
	"fmt"
)

// Subsystem tags a keyspace of the chain state.  Every key written through a
// Cache belongs to exactly one subsystem and is stored under its prefix.
type Subsystem byte

const (
	SubsysSysParam Subsystem = iota
	SubsysAccount
	SubsysAsset
	SubsysDelegate
	SubsysVote
	SubsysCDP
	SubsysDexOrder
	SubsysReceipt
	SubsysTxIndex
	SubsysBlockMeta

	numSubsystems
)

// subsysPrefixes are the database key prefixes.  They must be distinct and
// none may be a prefix of another.
var subsysPrefixes = [numSubsystems]string{
	SubsysSysParam:  "sysp",
	SubsysAccount:   "idat",
	SubsysAsset:     "asst",
	SubsysDelegate:  "dlgt",
	SubsysVote:      "vote",
	SubsysCDP:       "cdp_",
	SubsysDexOrder:  "dato",
	SubsysReceipt:   "txrc",
	SubsysTxIndex:   "tidx",
	SubsysBlockMeta: "bbkh",
}

var subsysNames = [numSubsystems]string{
	SubsysSysParam:  "SysParam",
	SubsysAccount:   "Account",
	SubsysAsset:     "Asset",
	SubsysDelegate:  "Delegate",
	SubsysVote:      "Vote",
	SubsysCDP:       "CDP",
	SubsysDexOrder:  "DexOrder",
	SubsysReceipt:   "Receipt",
	SubsysTxIndex:   "TxIndex",
	SubsysBlockMeta: "BlockMeta",
}

// Subsystems returns every subsystem in tag order.
func Subsystems() []Subsystem {
	subs := make([]Subsystem, numSubsystems)
	for i := range subs {
		subs[i] = Subsystem(i)
	}
	return subs
}

// IsValid reports whether s is a known subsystem tag.
func (s Subsystem) IsValid() bool {
	return s < numSubsystems
}

// Prefix returns the database key prefix of the subsystem.
func (s Subsystem) Prefix() []byte {
	return []byte(subsysPrefixes[s])
}

// dbKey returns the full database key of key within the subsystem.
func (s Subsystem) dbKey(key []byte) []byte {
	p := subsysPrefixes[s]
	k := make([]byte, len(p)+len(key))
	copy(k, p)
	copy(k[len(p):], key)
	return k
}

func (s Subsystem) String() string {
	if !s.IsValid() {
		return fmt.Sprintf("Unknown Subsystem (%d)", byte(s))
	}
	return subsysNames[s]
}
