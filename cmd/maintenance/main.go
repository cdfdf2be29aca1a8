// Maintenance CLI: operator-invoked rollback and backfill against the
// same store and transport the daemon uses.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/kantorcodes/evm-indexer/internal/backfill"
	"github.com/kantorcodes/evm-indexer/internal/chain"
	"github.com/kantorcodes/evm-indexer/internal/rollback"
	"github.com/kantorcodes/evm-indexer/internal/store"
	"github.com/kantorcodes/evm-indexer/internal/util"
	"github.com/kantorcodes/evm-indexer/pkg/config"

	"github.com/rs/zerolog"
)

const serviceName = "evm-indexer-maintenance"

func main() {
	logger := util.InitLogger(serviceName)

	app := &cli.App{
		Name:  "maintenance",
		Usage: "offline maintenance utility for the evm indexer",
		Commands: []*cli.Command{
			{
				Name:      "rollback",
				Usage:     "revert the store to before the given block",
				ArgsUsage: "<block_number>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return cli.Exit("rollback requires exactly one argument: <block_number>", 1)
					}
					target, err := strconv.ParseUint(c.Args().First(), 10, 64)
					if err != nil {
						return cli.Exit(fmt.Sprintf("invalid block number %q: %v", c.Args().First(), err), 1)
					}
					return runRollback(c.Context, logger, target)
				},
			},
			{
				Name:  "backfill",
				Usage: "fetch and commit a historical block range",
				Flags: []cli.Flag{
					&cli.Uint64Flag{Name: "start", Required: true, Usage: "first block (inclusive)"},
					&cli.Uint64Flag{Name: "end", Required: true, Usage: "last block (inclusive)"},
					&cli.Uint64Flag{Name: "batch-size", Value: 10, Usage: "blocks fetched per batch"},
				},
				Action: func(c *cli.Context) error {
					start := c.Uint64("start")
					end := c.Uint64("end")
					if start > end {
						return cli.Exit(fmt.Sprintf("invalid range: start %d > end %d", start, end), 1)
					}
					return runBackfill(c.Context, logger, start, end, c.Uint64("batch-size"))
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error().Err(err).Msg("maintenance command failed")
		os.Exit(1)
	}
}

func runRollback(ctx context.Context, logger *zerolog.Logger, target uint64) error {
	cfg, err := config.Load(logger)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to load configuration: %v", err), 1)
	}

	st, err := store.New(ctx, cfg.DSN(), *logger)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to connect to store: %v", err), 1)
	}
	defer st.Close()

	var chainTransport *chain.Transport
	if transport, err := chain.NewTransport(ctx, cfg.RPCURLs, cfg.StaleThreshold, cfg.HealthInterval, cfg.MaxRetries, *logger); err == nil {
		chainTransport = transport
		defer chainTransport.Close()
	} else {
		logger.Warn().Err(err).Msg("rpc transport unavailable, rollback will not refresh block_hash")
	}

	checkpoint, err := rollback.Execute(ctx, st, chainTransport, target)
	if err != nil {
		return cli.Exit(fmt.Sprintf("rollback failed: %v", err), 1)
	}

	// A rollback to block 0 has no predecessor to checkpoint: the store
	// clears the checkpoint row entirely, and the next ingestion run
	// starts from a fresh Bootstrapping cold start.
	if checkpoint == nil {
		fmt.Println("rolled back to genesis; no checkpoint remains")
		return nil
	}

	fmt.Printf("rolled back; new head: block %d (hash %s)\n", checkpoint.BlockNumber, checkpoint.BlockHash)
	return nil
}

func runBackfill(ctx context.Context, logger *zerolog.Logger, start, end, batchSize uint64) error {
	cfg, err := config.Load(logger)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to load configuration: %v", err), 1)
	}

	st, err := store.New(ctx, cfg.DSN(), *logger)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to connect to store: %v", err), 1)
	}
	defer st.Close()

	chainTransport, err := chain.NewTransport(ctx, cfg.RPCURLs, cfg.StaleThreshold, cfg.HealthInterval, cfg.MaxRetries, *logger)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to initialize rpc transport: %v", err), 1)
	}
	defer chainTransport.Close()

	driver := backfill.New(chainTransport, st, *logger)
	if err := driver.Run(ctx, start, end, batchSize); err != nil {
		return cli.Exit(fmt.Sprintf("backfill failed: %v", err), 1)
	}

	fmt.Printf("backfill complete: [%d, %d]\n", start, end)
	return nil
}
