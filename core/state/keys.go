// Copyright (c) 2017-2018 The nox developers

package state

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/noxproject/dposd/common/hash"
	"github.com/noxproject/dposd/core/types"
)

// Key layout within each subsystem:
//
//	Account   <account id 20 bytes><symbol>      -> balance uint64 BE
//	Asset     <symbol>                           -> owner account id
//	SysParam  "feesymbols"                       -> comma separated symbols
//	Delegate  <account id 20 bytes>              -> produced block count uint64 BE
//	Delegate  "active"                           -> concatenated account ids
//	Vote      <account id 20 bytes>              -> received votes uint64 BE
//	Receipt   <tx hash>                          -> executor receipt
//	TxIndex   <tx hash>                          -> tx location

// FeeSymbolsKey is the SysParam key listing the symbols fees may be paid in.
var FeeSymbolsKey = []byte("feesymbols")

// ActiveDelegatesKey is the Delegate key holding the current producer set.
var ActiveDelegatesKey = []byte("active")

// AccountKey returns the key of the balance of symbol held by id.
func AccountKey(id types.AccountID, symbol string) []byte {
	k := make([]byte, 0, types.AccountIDSize+len(symbol))
	k = append(k, id[:]...)
	return append(k, symbol...)
}

// AssetKey returns the key of the asset registered as symbol.
func AssetKey(symbol string) []byte {
	return []byte(symbol)
}

// DelegateKey returns the key of the delegate id.
func DelegateKey(id types.AccountID) []byte {
	return append([]byte{}, id[:]...)
}

// TxKey returns the key of a transaction in the Receipt and TxIndex
// subsystems.
func TxKey(h *hash.Hash) []byte {
	return h.CloneBytes()
}

// GetUint64 reads an 8 byte amount, zero when missing.
func (c *Cache) GetUint64(sub Subsystem, key []byte) (uint64, error) {
	v, ok, err := c.Get(sub, key)
	if err != nil || !ok {
		return 0, err
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("%s value of length %d is not an amount", sub, len(v))
	}
	return binary.BigEndian.Uint64(v), nil
}

// PutUint64 stores an 8 byte amount.  A zero amount deletes the key so that
// empty balances leave no trace in the state.
func (c *Cache) PutUint64(sub Subsystem, key []byte, v uint64) error {
	if v == 0 {
		return c.Delete(sub, key)
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return c.Put(sub, key, buf[:])
}

// Balance returns the amount of symbol held by id.
func (c *Cache) Balance(id types.AccountID, symbol string) (uint64, error) {
	return c.GetUint64(SubsysAccount, AccountKey(id, symbol))
}

// SetBalance sets the amount of symbol held by id.
func (c *Cache) SetBalance(id types.AccountID, symbol string, amount uint64) error {
	return c.PutUint64(SubsysAccount, AccountKey(id, symbol), amount)
}

// FeeSymbols returns the symbols fees may be paid in.
func (c *Cache) FeeSymbols() ([]string, error) {
	v, ok, err := c.Get(SubsysSysParam, FeeSymbolsKey)
	if err != nil || !ok || len(v) == 0 {
		return nil, err
	}
	return strings.Split(string(v), ","), nil
}

// SetFeeSymbols replaces the fee symbol list.
func (c *Cache) SetFeeSymbols(symbols []string) error {
	return c.Put(SubsysSysParam, FeeSymbolsKey, []byte(strings.Join(symbols, ",")))
}

// ActiveDelegates returns the current producer set in rank order.
func (c *Cache) ActiveDelegates() ([]types.AccountID, error) {
	v, ok, err := c.Get(SubsysDelegate, ActiveDelegatesKey)
	if err != nil || !ok {
		return nil, err
	}
	if len(v)%types.AccountIDSize != 0 {
		return nil, fmt.Errorf("active delegate list of length %d", len(v))
	}
	ids := make([]types.AccountID, len(v)/types.AccountIDSize)
	for i := range ids {
		copy(ids[i][:], v[i*types.AccountIDSize:])
	}
	return ids, nil
}

// SetActiveDelegates replaces the producer set.
func (c *Cache) SetActiveDelegates(ids []types.AccountID) error {
	v := make([]byte, 0, len(ids)*types.AccountIDSize)
	for _, id := range ids {
		v = append(v, id[:]...)
	}
	return c.Put(SubsysDelegate, ActiveDelegatesKey, v)
}
