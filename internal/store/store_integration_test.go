package store_test

import (
	"context"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/kantorcodes/evm-indexer/internal/store"
	"github.com/kantorcodes/evm-indexer/pkg/models"
)

// testDSN skips the test unless a real database is configured, gating
// infra-dependent tests behind an explicit opt-in rather than mocking
// the dependency.
func testDSN(t *testing.T) string {
	dsn := os.Getenv("INDEXER_TEST_DSN")
	if dsn == "" {
		t.Skip("INDEXER_TEST_DSN not set, skipping store integration test")
	}
	return dsn
}

func TestAppendBatch_IdempotentOnDuplicateInsert(t *testing.T) {
	dsn := testDSN(t)
	ctx := context.Background()

	st, err := store.New(ctx, dsn, zerolog.Nop())
	require.NoError(t, err)
	defer st.Close()

	tx := models.Transaction{
		BlockNumber:      1,
		BlockHash:        "0xblock1",
		TransactionHash:  "0xtx1",
		TransactionIndex: 0,
		FromAddress:      "0xfrom",
		Amount:           "100",
	}

	require.NoError(t, st.AppendBatch(ctx, []models.Transaction{tx}))
	require.NoError(t, st.AppendBatch(ctx, []models.Transaction{tx}))

	cp, err := st.CurrentCheckpoint(ctx)
	require.NoError(t, err)
	require.NotNil(t, cp)
	require.Equal(t, uint64(1), cp.BlockNumber)
}

func TestRollbackTo_ClearsCheckpointAtGenesis(t *testing.T) {
	dsn := testDSN(t)
	ctx := context.Background()

	st, err := store.New(ctx, dsn, zerolog.Nop())
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.AppendBatch(ctx, []models.Transaction{{
		BlockNumber:     5,
		BlockHash:       "0xblock5",
		TransactionHash: "0xtx5",
		FromAddress:     "0xfrom",
		Amount:          "1",
	}}))

	require.NoError(t, st.RollbackTo(ctx, 0))

	cp, err := st.CurrentCheckpoint(ctx)
	require.NoError(t, err)
	require.Nil(t, cp)
}

func TestRollbackTo_RefusesNothingButRewindsCheckpoint(t *testing.T) {
	dsn := testDSN(t)
	ctx := context.Background()

	st, err := store.New(ctx, dsn, zerolog.Nop())
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.AppendBatch(ctx, []models.Transaction{{
		BlockNumber:     10,
		BlockHash:       "0xblock10",
		TransactionHash: "0xtx10",
		FromAddress:     "0xfrom",
		Amount:          "1",
	}}))

	require.NoError(t, st.RollbackTo(ctx, 10))

	cp, err := st.CurrentCheckpoint(ctx)
	require.NoError(t, err)
	require.NotNil(t, cp)
	require.Equal(t, uint64(9), cp.BlockNumber)
}
