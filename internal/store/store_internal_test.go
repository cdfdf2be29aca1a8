package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kantorcodes/evm-indexer/pkg/models"
)

func TestMaxByBlock_Empty(t *testing.T) {
	_, _, ok := maxByBlock(nil)
	require.False(t, ok)
}

func TestMaxByBlock_PicksHighestBlock(t *testing.T) {
	records := []models.Transaction{
		{BlockNumber: 10, BlockHash: "0xten"},
		{BlockNumber: 12, BlockHash: "0xtwelve"},
		{BlockNumber: 11, BlockHash: "0xeleven"},
	}

	n, hash, ok := maxByBlock(records)
	require.True(t, ok)
	require.Equal(t, uint64(12), n)
	require.Equal(t, "0xtwelve", hash)
}

func TestMaxByBlock_SingleRecord(t *testing.T) {
	records := []models.Transaction{{BlockNumber: 5, BlockHash: "0xfive"}}
	n, hash, ok := maxByBlock(records)
	require.True(t, ok)
	require.Equal(t, uint64(5), n)
	require.Equal(t, "0xfive", hash)
}
