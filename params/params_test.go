package params

import (
	"testing"

	"github.com/noxproject/dposd/common/hash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenesisBlocks(t *testing.T) {
	for _, p := range []*Params{&MainNetParams, &TestNetParams, &PrivNetParams} {
		gb := p.GenesisBlock
		assert.Equal(t, *p.GenesisHash, *gb.Hash(), p.Name)
		assert.Equal(t, gb.CalcMerkleRoot(), gb.Header.MerkleRoot, p.Name)
		assert.Equal(t, uint32(0), gb.Height(), p.Name)
		assert.Equal(t, hash.ZeroHash, gb.Header.PrevBlock, p.Name)

		reward, ok := gb.RewardTx()
		require.True(t, ok, p.Name)
		assert.Equal(t, p.Genesis.Delegates[0].ID, reward.Miner, p.Name)
		assert.Len(t, p.Genesis.Delegates, p.DelegateCount, p.Name)
	}
}

func TestGenesisHashesDiffer(t *testing.T) {
	assert.NotEqual(t, *MainNetParams.GenesisHash, *TestNetParams.GenesisHash)
	assert.NotEqual(t, *MainNetParams.GenesisHash, *PrivNetParams.GenesisHash)
}

func TestByName(t *testing.T) {
	p, err := ByName("privnet")
	require.NoError(t, err)
	assert.Equal(t, &PrivNetParams, p)
	_, err = ByName("nonet")
	assert.Error(t, err)
}

func TestFuelRateBand(t *testing.T) {
	low, high := MainNetParams.FuelRateBand()
	assert.Equal(t, uint64(9000000), low)
	assert.Equal(t, uint64(10200000), high)
}
