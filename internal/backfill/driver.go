// Package backfill is the offline catch-up path: fetch a historical
// range in parallel, validate, and commit it in one shot via
// bulk-ingest, rather than one block at a time through the ingestion
// loop.
//
// Each batch fans one goroutine per block out across the range
// (sync.WaitGroup + indexed result slices), awaits them all, then
// validates and commits the whole batch together.
package backfill

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kantorcodes/evm-indexer/internal/chain"
	"github.com/kantorcodes/evm-indexer/internal/store"
	"github.com/kantorcodes/evm-indexer/pkg/errs"
	"github.com/kantorcodes/evm-indexer/pkg/models"
	"github.com/kantorcodes/evm-indexer/pkg/validator"
)

// Driver fetches and commits historical block ranges.
type Driver struct {
	chain  *chain.Transport
	store  *store.Store
	logger zerolog.Logger
}

// New builds a Driver.
func New(chainTransport *chain.Transport, st *store.Store, logger zerolog.Logger) *Driver {
	return &Driver{
		chain:  chainTransport,
		store:  st,
		logger: logger.With().Str("component", "backfill").Logger(),
	}
}

// Run processes [start, end] inclusive in consecutive batches of
// batchBlocks, fetching each batch's blocks in parallel and committing
// the concatenated, validated transactions via bulk-ingest. A failure
// in any block of a batch, after the transport's own retries are
// exhausted, aborts the entire run — idempotence (I5) makes a re-run
// safe.
func (d *Driver) Run(ctx context.Context, start, end, batchBlocks uint64) error {
	if start > end {
		return fmt.Errorf("invalid range: start %d > end %d", start, end)
	}
	if batchBlocks == 0 {
		batchBlocks = 10
	}

	d.logger.Info().
		Uint64("start", start).
		Uint64("end", end).
		Uint64("batch_blocks", batchBlocks).
		Msg("starting backfill")

	for cur := start; cur <= end; cur += batchBlocks {
		batchEnd := cur + batchBlocks - 1
		if batchEnd > end {
			batchEnd = end
		}

		if err := d.runBatch(ctx, cur, batchEnd); err != nil {
			return fmt.Errorf("backfill batch [%d, %d]: %w", cur, batchEnd, err)
		}

		d.logger.Info().Uint64("from", cur).Uint64("to", batchEnd).Msg("committed backfill batch")
	}

	return nil
}

// runBatch fetches every block in [from, to] concurrently, validates
// the concatenated transactions, and commits them with one bulk-ingest
// call.
func (d *Driver) runBatch(ctx context.Context, from, to uint64) error {
	blockCount := int(to - from + 1)
	raws := make([][]models.RawTransaction, blockCount)
	fetchErrs := make([]error, blockCount)

	var wg sync.WaitGroup
	for i := 0; i < blockCount; i++ {
		wg.Add(1)
		go func(i int, blockNumber uint64) {
			defer wg.Done()
			block, err := d.chain.FetchBlockWithTransactions(ctx, blockNumber)
			if err != nil {
				fetchErrs[i] = fmt.Errorf("fetch block %d: %w", blockNumber, err)
				return
			}
			raws[i] = chain.BlockToRawTransactions(block, d.chain.ChainID())
		}(i, from+uint64(i))
	}
	wg.Wait()

	for _, err := range fetchErrs {
		if err != nil {
			return err
		}
	}

	var allRaws []models.RawTransaction
	for _, rs := range raws {
		allRaws = append(allRaws, rs...)
	}

	txs, failures := validator.ValidateBatch(allRaws)
	for _, f := range failures {
		d.logger.Warn().Err(errs.Validation(f.BlockNumber, f.Reason)).Msg("transaction failed validation during backfill")
	}

	if err := d.store.BulkIngest(ctx, txs); err != nil {
		return fmt.Errorf("bulk-ingest: %w", err)
	}

	return nil
}
