package backfill_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/kantorcodes/evm-indexer/internal/backfill"
)

func TestRun_RejectsInvertedRange(t *testing.T) {
	d := backfill.New(nil, nil, zerolog.Nop())
	err := d.Run(context.Background(), 10, 5, 1)
	require.Error(t, err)
}
