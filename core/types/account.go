// Copyright 2017-2018 The nox developers

package types

import (
	"fmt"

	"github.com/btcsuite/btcutil/base58"
	"github.com/noxproject/dposd/common/hash"
)

// AccountIDSize is the length in bytes of an account identifier.
const AccountIDSize = 20

// AccountID identifies an account on chain.  Delegates and block producers
// are accounts too, so the miner identity of a block is an AccountID.
type AccountID [AccountIDSize]byte

// String returns the base58 form of the account id.
func (a AccountID) String() string {
	return base58.Encode(a[:])
}

// IsZero reports whether a is the all zero id.
func (a AccountID) IsZero() bool {
	return a == AccountID{}
}

// NewAccountIDFromName derives a deterministic account id from a name.  It is
// used for well-known accounts in network parameters and in tests.
func NewAccountIDFromName(name string) AccountID {
	var id AccountID
	copy(id[:], hash.HashB([]byte(name)))
	return id
}

// DecodeAccountID parses the base58 form produced by AccountID.String.
func DecodeAccountID(s string) (AccountID, error) {
	var id AccountID
	b := base58.Decode(s)
	if len(b) != AccountIDSize {
		return id, fmt.Errorf("invalid account id %q: decoded length %d", s, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// Coin is an amount of one asset symbol.
type Coin struct {
	Symbol string
	Amount uint64
}

func (c Coin) String() string {
	return fmt.Sprintf("%d %s", c.Amount, c.Symbol)
}
