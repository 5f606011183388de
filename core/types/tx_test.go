package types

import (
	"bytes"
	"testing"

	"github.com/noxproject/dposd/common/hash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTransfer() *TransferTx {
	return &TransferTx{
		Version:     1,
		ValidHeight: 10,
		From:        NewAccountIDFromName("alice"),
		To:          NewAccountIDFromName("bob"),
		Amount:      Coin{"NOX", 100},
		Fee:         Coin{"NOX", 10},
		Nonce:       7,
	}
}

func testReward() *RewardTx {
	return &RewardTx{
		Version: 1,
		Height:  10,
		Miner:   NewAccountIDFromName("miner"),
		Rewards: []Coin{{"NOX", 20}, {"NUSD", 3}},
	}
}

func TestTxHash(t *testing.T) {
	for _, tx := range []Transaction{testReward(), testTransfer()} {
		raw := TxBytes(tx)
		assert.Equal(t, tx.SerializeSize(), len(raw), "%v", tx.TxType())
		assert.Equal(t, hash.DoubleHashH(raw), tx.TxHash(), "%v", tx.TxType())

		decoded, err := ReadTransaction(bytes.NewReader(raw))
		require.NoError(t, err)
		assert.Equal(t, tx, decoded)
		assert.Equal(t, tx.TxHash(), decoded.TxHash())
	}
}

func TestTxHashCoversFields(t *testing.T) {
	base := testTransfer().TxHash()
	mutations := []func(tx *TransferTx){
		func(tx *TransferTx) { tx.ValidHeight++ },
		func(tx *TransferTx) { tx.To = NewAccountIDFromName("carol") },
		func(tx *TransferTx) { tx.Amount.Amount++ },
		func(tx *TransferTx) { tx.Fee.Symbol = "NUSD" },
		func(tx *TransferTx) { tx.Nonce++ },
	}
	for i, mutate := range mutations {
		tx := testTransfer()
		mutate(tx)
		assert.NotEqual(t, base, tx.TxHash(), "mutation %d", i)
	}

	reward := testReward()
	reward.Rewards = reward.Rewards[:1]
	assert.NotEqual(t, testReward().TxHash(), reward.TxHash())
}

func TestReadTransactionErrors(t *testing.T) {
	_, err := ReadTransaction(bytes.NewReader([]byte{9}))
	assert.Error(t, err)

	raw := TxBytes(testTransfer())
	_, err = ReadTransaction(bytes.NewReader(raw[:len(raw)-1]))
	assert.Error(t, err)

	assert.Equal(t, "TxTypeReward", TxTypeReward.String())
	assert.Equal(t, "Unknown TxType (9)", TxType(9).String())
	assert.Equal(t, uint64(3), testReward().RewardFor("NUSD"))
	assert.Zero(t, testReward().RewardFor("BTC"))
}
