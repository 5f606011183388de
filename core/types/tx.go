// Copyright 2017-2018 The nox developers

package types

import (
	"bytes"
	"fmt"
	"io"

	"github.com/noxproject/dposd/common/hash"
	s "github.com/noxproject/dposd/core/serialization"
)

// TxType is the leading byte of every serialized transaction.
type TxType uint8

const (
	TxTypeReward   TxType = 1
	TxTypeTransfer TxType = 2
)

var txTypeStrings = map[TxType]string{
	TxTypeReward:   "TxTypeReward",
	TxTypeTransfer: "TxTypeTransfer",
}

func (t TxType) String() string {
	if str, ok := txTypeStrings[t]; ok {
		return str
	}
	return fmt.Sprintf("Unknown TxType (%d)", uint8(t))
}

// maxCoinsPerTx bounds the reward coin list when decoding.
const maxCoinsPerTx = 256

// Transaction is the view the chain core has of a transaction.  Execution
// semantics live behind the executor collaborator.
type Transaction interface {
	TxHash() hash.Hash
	TxType() TxType

	// IsReward reports whether this is the block reward transaction.
	IsReward() bool

	// IsFeeBearing reports whether executing the transaction charges a fee.
	IsFeeBearing() bool

	SerializeSize() int
	Serialize(w io.Writer) error
}

// RewardTx is the first transaction of every block.  It declares the total
// fees per symbol collected by the block's producer.
type RewardTx struct {
	Version uint32
	Height  uint32
	Miner   AccountID
	Rewards []Coin
}

func (tx *RewardTx) TxType() TxType     { return TxTypeReward }
func (tx *RewardTx) IsReward() bool     { return true }
func (tx *RewardTx) IsFeeBearing() bool { return false }

// RewardFor returns the declared reward for symbol, zero when absent.
func (tx *RewardTx) RewardFor(symbol string) uint64 {
	for _, c := range tx.Rewards {
		if c.Symbol == symbol {
			return c.Amount
		}
	}
	return 0
}

func (tx *RewardTx) TxHash() hash.Hash {
	return txHash(tx)
}

func (tx *RewardTx) SerializeSize() int {
	n := 1 + 4 + 4 + 1 + AccountIDSize + s.VarIntSerializeSize(uint64(len(tx.Rewards)))
	for _, c := range tx.Rewards {
		n += coinSerializeSize(c)
	}
	return n
}

func (tx *RewardTx) Serialize(w io.Writer) error {
	err := s.WriteElements(w, uint8(TxTypeReward), tx.Version, tx.Height, tx.Miner[:])
	if err != nil {
		return err
	}
	return writeCoins(w, tx.Rewards)
}

func (tx *RewardTx) deserialize(r io.Reader) error {
	var miner []byte
	err := s.ReadElements(r, &tx.Version, &tx.Height, &miner)
	if err != nil {
		return err
	}
	if len(miner) != AccountIDSize {
		return fmt.Errorf("reward tx miner id length %d", len(miner))
	}
	copy(tx.Miner[:], miner)
	tx.Rewards, err = readCoins(r)
	return err
}

// TransferTx moves an amount of one symbol between two accounts and pays a
// fee to the block producer.
type TransferTx struct {
	Version     uint32
	ValidHeight uint32
	From        AccountID
	To          AccountID
	Amount      Coin
	Fee         Coin
	Nonce       uint64
}

func (tx *TransferTx) TxType() TxType     { return TxTypeTransfer }
func (tx *TransferTx) IsReward() bool     { return false }
func (tx *TransferTx) IsFeeBearing() bool { return true }

func (tx *TransferTx) TxHash() hash.Hash {
	return txHash(tx)
}

func (tx *TransferTx) SerializeSize() int {
	return 1 + 4 + 4 + 2*(1+AccountIDSize) + coinSerializeSize(tx.Amount) +
		coinSerializeSize(tx.Fee) + 8
}

func (tx *TransferTx) Serialize(w io.Writer) error {
	err := s.WriteElements(w, uint8(TxTypeTransfer), tx.Version, tx.ValidHeight,
		tx.From[:], tx.To[:])
	if err != nil {
		return err
	}
	if err := writeCoin(w, tx.Amount); err != nil {
		return err
	}
	if err := writeCoin(w, tx.Fee); err != nil {
		return err
	}
	return s.WriteElements(w, tx.Nonce)
}

func (tx *TransferTx) deserialize(r io.Reader) error {
	var from, to []byte
	err := s.ReadElements(r, &tx.Version, &tx.ValidHeight, &from, &to)
	if err != nil {
		return err
	}
	if len(from) != AccountIDSize || len(to) != AccountIDSize {
		return fmt.Errorf("transfer tx account id length %d/%d", len(from), len(to))
	}
	copy(tx.From[:], from)
	copy(tx.To[:], to)
	if tx.Amount, err = readCoin(r); err != nil {
		return err
	}
	if tx.Fee, err = readCoin(r); err != nil {
		return err
	}
	return s.ReadElements(r, &tx.Nonce)
}

// ReadTransaction decodes one transaction, dispatching on its type byte.
func ReadTransaction(r io.Reader) (Transaction, error) {
	var t uint8
	if err := s.ReadElements(r, &t); err != nil {
		return nil, err
	}
	switch TxType(t) {
	case TxTypeReward:
		tx := &RewardTx{}
		return tx, tx.deserialize(r)
	case TxTypeTransfer:
		tx := &TransferTx{}
		return tx, tx.deserialize(r)
	}
	return nil, fmt.Errorf("unknown transaction type %d", t)
}

// TxBytes returns the serialized form of tx.
func TxBytes(tx Transaction) []byte {
	var buf bytes.Buffer
	buf.Grow(tx.SerializeSize())
	// Writing into a bytes.Buffer can only fail by running out of memory.
	_ = tx.Serialize(&buf)
	return buf.Bytes()
}

func txHash(tx Transaction) hash.Hash {
	return hash.DoubleHashH(TxBytes(tx))
}

func coinSerializeSize(c Coin) int {
	return s.VarBytesSerializeSize([]byte(c.Symbol)) + 8
}

func writeCoin(w io.Writer, c Coin) error {
	return s.WriteElements(w, c.Symbol, c.Amount)
}

func readCoin(r io.Reader) (Coin, error) {
	var c Coin
	err := s.ReadElements(r, &c.Symbol, &c.Amount)
	return c, err
}

func writeCoins(w io.Writer, coins []Coin) error {
	if err := s.WriteVarInt(w, uint64(len(coins))); err != nil {
		return err
	}
	for _, c := range coins {
		if err := writeCoin(w, c); err != nil {
			return err
		}
	}
	return nil
}

func readCoins(r io.Reader) ([]Coin, error) {
	count, err := s.ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	if count > maxCoinsPerTx {
		return nil, fmt.Errorf("too many coins in transaction: %d", count)
	}
	coins := make([]Coin, 0, count)
	for i := uint64(0); i < count; i++ {
		c, err := readCoin(r)
		if err != nil {
			return nil, err
		}
		coins = append(coins, c)
	}
	return coins, nil
}
