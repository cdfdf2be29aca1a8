package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kantorcodes/evm-indexer/pkg/errs"
	"github.com/kantorcodes/evm-indexer/pkg/models"
)

// CurrentCheckpoint returns the single checkpoint row, or (nil, nil) if
// no commit has happened yet (the checkpoint is created lazily).
func (s *Store) CurrentCheckpoint(ctx context.Context) (*models.Checkpoint, error) {
	var cp models.Checkpoint
	err := s.pool.QueryRow(ctx, `
		SELECT id, block_number, block_hash, last_updated FROM checkpoints WHERE id = $1
	`, models.ChainHeadCheckpointID()).Scan(&cp.ID, &cp.BlockNumber, &cp.BlockHash, &cp.LastUpdated)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read checkpoint: %v", errs.ErrPersistence, err)
	}

	return &cp, nil
}

// AdvanceCheckpoint explicitly sets the checkpoint to (blockNumber,
// blockHash) in its own transaction. Used by the ingestion loop for
// empty blocks (zero transactions), where AppendBatch would otherwise
// have nothing to upsert from and progress would stall. Like every
// checkpoint upsert, it never moves the checkpoint backward: if the
// stored block number is higher, the row is left unchanged.
func (s *Store) AdvanceCheckpoint(ctx context.Context, blockNumber uint64, blockHash string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", errs.ErrPersistence, err)
	}
	defer tx.Rollback(ctx)

	if err := upsertCheckpoint(ctx, tx, blockNumber, blockHash); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit checkpoint advance: %v", errs.ErrPersistence, err)
	}

	return nil
}
