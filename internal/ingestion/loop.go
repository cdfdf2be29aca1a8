// Package ingestion is the re-org-safe ingestion state machine: the one
// activity that owns advancing the checkpoint forward under normal
// operation, and the one that detects and unwinds a chain
// reorganization when it happens.
//
// The loop only ever does a single-block, lineage-checked advance;
// catching up a historical range is internal/backfill's job, invoked
// separately by an operator rather than switched into automatically.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/kantorcodes/evm-indexer/internal/alert"
	"github.com/kantorcodes/evm-indexer/internal/chain"
	"github.com/kantorcodes/evm-indexer/pkg/errs"
	"github.com/kantorcodes/evm-indexer/pkg/models"
	"github.com/kantorcodes/evm-indexer/pkg/validator"
)

// ChainReader is the subset of *chain.Transport the loop depends on,
// extracted so a test can drive the state machine against a fake chain
// instead of a dialed RPC transport.
type ChainReader interface {
	CurrentHead(ctx context.Context) (uint64, error)
	FetchBlockHeader(ctx context.Context, n uint64) (*types.Header, error)
	FetchBlockWithTransactions(ctx context.Context, n uint64) (*types.Block, error)
	ChainID() *big.Int
}

// Persister is the subset of *store.Store the loop depends on, extracted
// for the same reason: tests exercise the reorg walk-back against an
// in-memory fake rather than a Postgres connection.
type Persister interface {
	CurrentCheckpoint(ctx context.Context) (*models.Checkpoint, error)
	AdvanceCheckpoint(ctx context.Context, blockNumber uint64, blockHash string) error
	AppendBatch(ctx context.Context, records []models.Transaction) error
	RollbackTo(ctx context.Context, target uint64) error
	RollbackToWithHash(ctx context.Context, target uint64, newHeadHash string) error
}

var (
	latestIndexedBlock = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "indexer_latest_indexed_block_number",
		Help: "Highest block number committed to the store",
	})

	indexingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "indexer_indexing_latency_seconds",
		Help:    "Time from a block's timestamp to its commit",
		Buckets: prometheus.DefBuckets,
	})

	reorgsDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexer_reorgs_detected_total",
		Help: "Total number of lineage mismatches that triggered a rollback",
	})
)

// State names the four phases of the loop, used for logging only — the
// loop itself is driven by plain control flow, not a state field.
type State int

const (
	Bootstrapping State = iota
	Syncing
	AtHead
	Reorganizing
)

func (s State) String() string {
	switch s {
	case Bootstrapping:
		return "bootstrapping"
	case Syncing:
		return "syncing"
	case AtHead:
		return "at_head"
	case Reorganizing:
		return "reorganizing"
	default:
		return "unknown"
	}
}

// Loop drives one block forward (or one block backward, on reorg) per
// iteration. It is sequential and single-flight by construction: Run
// must only ever be called once per Loop.
type Loop struct {
	chain   ChainReader
	store   Persister
	alerter *alert.Alerter
	logger  zerolog.Logger

	pollInterval time.Duration
	errorBackoff time.Duration
}

// New builds a Loop. alerter may be nil — in that case reorg/rollback
// alerts are logged but not published, which keeps the loop usable in
// tests that don't stand up NATS.
func New(chainTransport ChainReader, st Persister, alerter *alert.Alerter, pollInterval, errorBackoff time.Duration, logger zerolog.Logger) *Loop {
	return &Loop{
		chain:        chainTransport,
		store:        st,
		alerter:      alerter,
		logger:       logger.With().Str("component", "ingestion").Logger(),
		pollInterval: pollInterval,
		errorBackoff: errorBackoff,
	}
}

// Run executes the ingestion loop until ctx is canceled or a fatal
// rollback failure occurs, in which case it returns that error
// immediately — the caller (cmd/indexer) must treat this as fatal.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info().
		Dur("poll_interval", l.pollInterval).
		Dur("error_backoff", l.errorBackoff).
		Msg("starting ingestion loop")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		sleep, err := l.iterate(ctx)
		if err != nil {
			if errors.Is(err, errs.ErrRollbackFatal) {
				l.logger.Error().Err(err).Msg("fatal rollback failure, halting")
				return err
			}

			l.logger.Error().Err(err).Msg("ingestion iteration failed, backing off")
			sleep = l.errorBackoff
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(sleep):
		}
	}
}

// iterate runs exactly one pass of the state machine: compare the
// locally committed head against the live chain head, advance by one
// block if the parent hash still lines up, or unwind if it doesn't. It
// returns how long the caller should sleep before the next call.
func (l *Loop) iterate(ctx context.Context) (time.Duration, error) {
	dbHead, err := l.store.CurrentCheckpoint(ctx)
	if err != nil {
		return 0, fmt.Errorf("read checkpoint: %w", err)
	}

	chainHead, err := l.chain.CurrentHead(ctx)
	if err != nil {
		return 0, fmt.Errorf("read chain head: %w", err)
	}

	if dbHead == nil {
		return l.pollInterval, l.bootstrap(ctx, chainHead)
	}

	target := dbHead.BlockNumber + 1
	if target > chainHead {
		l.logger.Debug().Uint64("block", dbHead.BlockNumber).Msg(AtHead.String())
		return l.pollInterval, nil
	}

	header, err := l.chain.FetchBlockHeader(ctx, target)
	if err != nil {
		return 0, fmt.Errorf("fetch header %d: %w", target, err)
	}

	if header.ParentHash.Hex() != dbHead.BlockHash {
		return l.pollInterval, l.reorganize(ctx, dbHead)
	}

	return l.pollInterval, l.advance(ctx, target)
}

// bootstrap handles a cold start with no checkpoint yet: the current
// chain head becomes the first committed block rather than any
// configured genesis — there is no starting-block parameter, only a
// checkpoint-driven resume.
func (l *Loop) bootstrap(ctx context.Context, chainHead uint64) error {
	l.logger.Info().Uint64("chain_head", chainHead).Msg(Bootstrapping.String())
	return l.advance(ctx, chainHead)
}

// advance fetches, validates, and commits the block at n, advancing the
// checkpoint even when the block contains zero transactions.
func (l *Loop) advance(ctx context.Context, n uint64) error {
	block, err := l.chain.FetchBlockWithTransactions(ctx, n)
	if err != nil {
		return fmt.Errorf("fetch block %d: %w", n, err)
	}

	blockHash := block.Hash().Hex()
	blockTime := time.Unix(int64(block.Time()), 0)

	raws := chain.BlockToRawTransactions(block, l.chain.ChainID())
	if len(raws) == 0 {
		if err := l.store.AdvanceCheckpoint(ctx, n, blockHash); err != nil {
			return fmt.Errorf("advance checkpoint on empty block %d: %w", n, err)
		}
		l.logger.Info().Uint64("block", n).Msg("committed empty block, checkpoint advanced")
		latestIndexedBlock.Set(float64(n))
		indexingLatency.Observe(time.Since(blockTime).Seconds())
		return nil
	}

	txs, failures := validator.ValidateBatch(raws)
	for _, f := range failures {
		l.logger.Warn().Err(errs.Validation(f.BlockNumber, f.Reason)).Msg("transaction failed validation")
	}

	if err := l.store.AppendBatch(ctx, txs); err != nil {
		return fmt.Errorf("append-batch block %d: %w", n, err)
	}

	l.logger.Info().
		Uint64("block", n).
		Int("transactions", len(txs)).
		Int("validation_failures", len(failures)).
		Msg("committed block")

	latestIndexedBlock.Set(float64(n))
	indexingLatency.Observe(time.Since(blockTime).Seconds())
	return nil
}

// reorganize handles a parent-hash mismatch: roll back one block and
// let the next iteration re-test lineage. Not itself an error — the
// caller treats a nil return as a normal, if noisy, outcome — but it
// must emit a high-severity alert regardless.
//
// The rewound checkpoint's block_hash must be the canonical hash of
// block target-1 as the chain currently reports it (I2), never the
// stale hash already sitting in dbHead — reusing that value would make
// the very next lineage check compare a freshly fetched parent hash
// against something that can never match again, walking the chain back
// to genesis on every single reorg instead of stopping at the common
// ancestor. If the canonical hash can't be fetched, the rollback is
// skipped entirely and the error is surfaced for the ordinary iteration
// backoff — nothing has been mutated, so retrying is always safe.
func (l *Loop) reorganize(ctx context.Context, dbHead *models.Checkpoint) error {
	reorgsDetected.Inc()
	target := dbHead.BlockNumber

	l.logger.Warn().
		Uint64("db_head", target).
		Str("db_head_hash", dbHead.BlockHash).
		Msg(Reorganizing.String() + ": lineage mismatch, rolling back")

	if l.alerter != nil {
		if err := l.alerter.Reorg(ctx, target); err != nil {
			l.logger.Error().Err(err).Msg("failed to publish reorg alert")
		}
	}

	var rollbackErr error
	if target == 0 {
		rollbackErr = l.store.RollbackTo(ctx, target)
	} else {
		newHead, err := l.chain.FetchBlockHeader(ctx, target-1)
		if err != nil {
			return fmt.Errorf("fetch canonical hash for rollback target %d: %w", target-1, err)
		}
		rollbackErr = l.store.RollbackToWithHash(ctx, target, newHead.Hash().Hex())
	}

	if rollbackErr != nil {
		if l.alerter != nil {
			if pubErr := l.alerter.RollbackFailure(ctx, target, rollbackErr); pubErr != nil {
				l.logger.Error().Err(pubErr).Msg("failed to publish rollback-failure alert")
			}
		}
		return fmt.Errorf("rollback to %d: %w", target, rollbackErr)
	}

	return nil
}
