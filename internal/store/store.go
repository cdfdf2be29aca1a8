// Package store is the persistence layer: a connection-pooled,
// transactional store exposing the three contracts the rest of the
// system is built on — append-batch, bulk-ingest, rollback-to — plus the
// single-row checkpoint that lives inside every one of their
// transactions.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/kantorcodes/evm-indexer/pkg/errs"
	"github.com/kantorcodes/evm-indexer/pkg/models"
)

// Store wraps a pgxpool.Pool. Every exported method acquires its
// connection from the pool and releases it on all exit paths by scoping
// the transaction to the method body.
type Store struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// New connects to Postgres and returns a Store. The caller owns the
// returned Store and must call Close on shutdown.
func New(ctx context.Context, dsn string, logger zerolog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool, logger: logger.With().Str("component", "store").Logger()}, nil
}

// Close drains the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// AppendBatch is the real-time ingestion path: per-row conditional insert
// (idempotent on the transaction_hash/block_number primary key) followed
// by a single checkpoint upsert, in one transaction.
func (s *Store) AppendBatch(ctx context.Context, records []models.Transaction) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", errs.ErrPersistence, err)
	}
	defer tx.Rollback(ctx)

	for _, r := range records {
		if _, err := tx.Exec(ctx, `
			INSERT INTO transactions (
				block_number, block_hash, transaction_hash, transaction_index,
				from_address, to_address, amount, is_internal_call
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (transaction_hash, block_number) DO NOTHING
		`,
			r.BlockNumber, r.BlockHash, r.TransactionHash, r.TransactionIndex,
			r.FromAddress, r.ToAddress, r.Amount, r.IsInternalCall,
		); err != nil {
			return fmt.Errorf("%w: insert transaction %s: %v", errs.ErrPersistence, r.TransactionHash, err)
		}
	}

	if maxBlock, maxHash, ok := maxByBlock(records); ok {
		if err := upsertCheckpoint(ctx, tx, maxBlock, maxHash); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit append-batch: %v", errs.ErrPersistence, err)
	}

	return nil
}

// stagingColumns mirrors the target table's column layout, per spec.
var stagingColumns = []string{
	"block_number", "block_hash", "transaction_hash", "transaction_index",
	"from_address", "to_address", "amount", "is_internal_call",
}

// BulkIngest is the backfill path: stream the batch into a transaction-
// scoped staging table via pgx's CopyFrom (the driver's fastest bulk-load
// path), then reconcile into the target with a conflict-tolerant
// INSERT ... SELECT, matching the pack's COPY-then-UPSERT idiom
// (Outblock flowindex repository.SaveBatch).
func (s *Store) BulkIngest(ctx context.Context, records []models.Transaction) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", errs.ErrPersistence, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		CREATE TEMP TABLE staging_transactions (
			block_number       BIGINT  NOT NULL,
			block_hash         TEXT    NOT NULL,
			transaction_hash   TEXT    NOT NULL,
			transaction_index  BIGINT  NOT NULL,
			from_address       TEXT    NOT NULL,
			to_address         TEXT,
			amount             NUMERIC NOT NULL,
			is_internal_call   BOOLEAN NOT NULL
		) ON COMMIT DROP
	`); err != nil {
		return fmt.Errorf("%w: create staging table: %v", errs.ErrPersistence, err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"staging_transactions"},
		stagingColumns,
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			r := records[i]
			return []any{
				r.BlockNumber, r.BlockHash, r.TransactionHash, r.TransactionIndex,
				r.FromAddress, r.ToAddress, r.Amount, r.IsInternalCall,
			}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("%w: copy into staging table: %v", errs.ErrPersistence, err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO transactions (
			block_number, block_hash, transaction_hash, transaction_index,
			from_address, to_address, amount, is_internal_call
		)
		SELECT
			block_number, block_hash, transaction_hash, transaction_index,
			from_address, to_address, amount, is_internal_call
		FROM staging_transactions
		ON CONFLICT (transaction_hash, block_number) DO NOTHING
	`); err != nil {
		return fmt.Errorf("%w: reconcile staging into transactions: %v", errs.ErrPersistence, err)
	}

	if maxBlock, maxHash, ok := maxByBlock(records); ok {
		if err := upsertCheckpoint(ctx, tx, maxBlock, maxHash); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit bulk-ingest: %v", errs.ErrPersistence, err)
	}

	return nil
}

// RollbackTo atomically reverts the store to just before block N: every
// row with block_number >= N is deleted and the checkpoint is rewound to
// N-1. Any failure here is fatal — the caller (ingestion loop) must halt
// rather than continue against a partially rolled-back store.
//
// This method does not touch block_hash; RollbackToWithHash below lets
// a caller that can re-derive the canonical hash (the maintenance
// command) set it in the same transaction.
func (s *Store) RollbackTo(ctx context.Context, target uint64) error {
	return s.rollbackTo(ctx, target, nil)
}

// RollbackToWithHash behaves like RollbackTo but also stores the
// canonical hash of block target-1, when the caller was able to fetch it
// (e.g. the maintenance rollback command re-querying the transport).
func (s *Store) RollbackToWithHash(ctx context.Context, target uint64, newHeadHash string) error {
	return s.rollbackTo(ctx, target, &newHeadHash)
}

func (s *Store) rollbackTo(ctx context.Context, target uint64, newHeadHash *string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", errs.ErrRollbackFatal, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM transactions WHERE block_number >= $1`, target); err != nil {
		return fmt.Errorf("%w: delete rows at/after block %d: %v", errs.ErrRollbackFatal, target, err)
	}

	// Rolling back to block 0 means there is no longer any indexed head at
	// all: block_number has no representable predecessor (it is a uint64),
	// so rather than store a sentinel we drop the checkpoint row entirely
	// and let the ingestion loop treat this as a fresh Bootstrapping start.
	if target == 0 {
		if _, err := tx.Exec(ctx, `DELETE FROM checkpoints WHERE id = $1`, models.ChainHeadCheckpointID()); err != nil {
			return fmt.Errorf("%w: clear checkpoint: %v", errs.ErrRollbackFatal, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("%w: commit rollback-to %d: %v", errs.ErrRollbackFatal, target, err)
		}

		s.logger.Warn().Uint64("target", target).Msg("rolled back store to genesis, checkpoint cleared")
		return nil
	}

	newBlockNumber := int64(target - 1)

	if newHeadHash != nil {
		if _, err := tx.Exec(ctx, `
			INSERT INTO checkpoints (id, block_number, block_hash, last_updated)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (id) DO UPDATE SET
				block_number = EXCLUDED.block_number,
				block_hash = EXCLUDED.block_hash,
				last_updated = EXCLUDED.last_updated
		`, models.ChainHeadCheckpointID(), newBlockNumber, *newHeadHash); err != nil {
			return fmt.Errorf("%w: rewind checkpoint with hash: %v", errs.ErrRollbackFatal, err)
		}
	} else {
		if _, err := tx.Exec(ctx, `
			UPDATE checkpoints SET block_number = $2, last_updated = now()
			WHERE id = $1
		`, models.ChainHeadCheckpointID(), newBlockNumber); err != nil {
			return fmt.Errorf("%w: rewind checkpoint: %v", errs.ErrRollbackFatal, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit rollback-to %d: %v", errs.ErrRollbackFatal, target, err)
	}

	s.logger.Warn().Uint64("target", target).Msg("rolled back store")
	return nil
}

// maxByBlock returns the highest (block_number, block_hash) pair across a
// batch of records. ok is false for an empty batch.
func maxByBlock(records []models.Transaction) (blockNumber uint64, blockHash string, ok bool) {
	if len(records) == 0 {
		return 0, "", false
	}
	best := records[0]
	for _, r := range records[1:] {
		if r.BlockNumber > best.BlockNumber {
			best = r
		}
	}
	return best.BlockNumber, best.BlockHash, true
}

func upsertCheckpoint(ctx context.Context, tx pgx.Tx, blockNumber uint64, blockHash string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO checkpoints (id, block_number, block_hash, last_updated)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE SET
			block_number = EXCLUDED.block_number,
			block_hash = EXCLUDED.block_hash,
			last_updated = EXCLUDED.last_updated
		WHERE checkpoints.block_number <= EXCLUDED.block_number
	`, models.ChainHeadCheckpointID(), blockNumber, blockHash)
	if err != nil {
		return fmt.Errorf("%w: upsert checkpoint: %v", errs.ErrPersistence, err)
	}
	return nil
}
