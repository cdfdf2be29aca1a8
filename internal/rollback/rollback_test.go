package rollback_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/kantorcodes/evm-indexer/internal/rollback"
	"github.com/kantorcodes/evm-indexer/internal/store"
	"github.com/kantorcodes/evm-indexer/pkg/errs"
	"github.com/kantorcodes/evm-indexer/pkg/models"
)

func testStore(t *testing.T) *store.Store {
	dsn := os.Getenv("INDEXER_TEST_DSN")
	if dsn == "" {
		t.Skip("INDEXER_TEST_DSN not set, skipping rollback integration test")
	}
	st, err := store.New(context.Background(), dsn, zerolog.Nop())
	require.NoError(t, err)
	return st
}

func TestExecute_RefusesWhenNoCheckpointExists(t *testing.T) {
	st := testStore(t)
	defer st.Close()

	_, err := rollback.Execute(context.Background(), st, nil, 5)
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.ErrPrecondition))
}

func TestExecute_RefusesRollForward(t *testing.T) {
	st := testStore(t)
	defer st.Close()

	require.NoError(t, st.AppendBatch(context.Background(), []models.Transaction{{
		BlockNumber:     10,
		BlockHash:       "0xblock10",
		TransactionHash: "0xtxa",
		FromAddress:     "0xfrom",
		Amount:          "1",
	}}))

	_, err := rollback.Execute(context.Background(), st, nil, 20)
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.ErrPrecondition))
}

func TestExecute_SucceedsWithoutTransport(t *testing.T) {
	st := testStore(t)
	defer st.Close()

	require.NoError(t, st.AppendBatch(context.Background(), []models.Transaction{{
		BlockNumber:     10,
		BlockHash:       "0xblock10",
		TransactionHash: "0xtxb",
		FromAddress:     "0xfrom",
		Amount:          "1",
	}}))

	cp, err := rollback.Execute(context.Background(), st, nil, 10)
	require.NoError(t, err)
	require.Equal(t, uint64(9), cp.BlockNumber)
}
