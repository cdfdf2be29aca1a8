// Package chain provides the reliable multi-endpoint RPC transport: a
// background-monitored client that routes every call to the first
// healthy endpoint in priority order and retries transient failures with
// exponential backoff.
//
// Endpoints are ethclient-wrapped HTTP connections, each chain-ID
// verified at dial time. Transient RPC errors are retried with
// cenkalti/backoff/v4's exponential doubling rather than a hand-rolled
// sleep loop.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/kantorcodes/evm-indexer/pkg/errs"
)

// endpoint pairs a dialed client with the URL it was dialed from, so
// health-monitor log lines and routing decisions can refer to it by URL.
type endpoint struct {
	url    string
	client *ethclient.Client
}

// Transport wraps an ordered list of endpoint URLs. All calls are
// synchronous from the caller's perspective; internally each applies
// retry with exponential backoff and routes around unhealthy endpoints.
type Transport struct {
	endpoints []*endpoint
	chainID   *big.Int
	logger    zerolog.Logger

	maxRetries int

	healthMu       sync.RWMutex
	health         map[string]bool // true = healthy
	staleThreshold uint64
	healthInterval time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewTransport dials every configured endpoint and verifies they agree on
// chain ID. All endpoints start marked healthy; the first health-monitor
// tick establishes real state.
func NewTransport(ctx context.Context, urls []string, staleThreshold uint64, healthInterval time.Duration, maxRetries int, logger zerolog.Logger) (*Transport, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("no RPC endpoints configured")
	}

	t := &Transport{
		logger:         logger.With().Str("component", "transport").Logger(),
		maxRetries:     maxRetries,
		staleThreshold: staleThreshold,
		healthInterval: healthInterval,
		health:         make(map[string]bool, len(urls)),
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}

	var chainID *big.Int
	for _, url := range urls {
		client, err := ethclient.DialContext(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("failed to dial endpoint %s: %w", url, err)
		}

		id, err := client.ChainID(ctx)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to fetch chain ID from %s: %w", url, err)
		}
		if chainID == nil {
			chainID = id
		} else if chainID.Cmp(id) != 0 {
			client.Close()
			return nil, fmt.Errorf("chain ID mismatch: %s reports %s, expected %s", url, id, chainID)
		}

		t.endpoints = append(t.endpoints, &endpoint{url: url, client: client})
		t.health[url] = true
	}

	t.chainID = chainID
	t.logger.Info().
		Int("endpoints", len(t.endpoints)).
		Str("chain_id", chainID.String()).
		Msg("rpc transport initialized")

	return t, nil
}

// ChainID returns the chain ID all endpoints agreed on at dial time.
func (t *Transport) ChainID() *big.Int {
	return t.chainID
}

// Close closes every dialed client. Callers should Stop the health
// monitor first.
func (t *Transport) Close() {
	for _, e := range t.endpoints {
		e.client.Close()
	}
}

// CurrentHead returns the latest block number, routed to the
// first-healthy endpoint with retry.
func (t *Transport) CurrentHead(ctx context.Context) (uint64, error) {
	return withRetry(ctx, t, func(ctx context.Context, c *ethclient.Client) (uint64, error) {
		return c.BlockNumber(ctx)
	})
}

// FetchBlockHeader fetches the header of block n.
func (t *Transport) FetchBlockHeader(ctx context.Context, n uint64) (*types.Header, error) {
	return withRetry(ctx, t, func(ctx context.Context, c *ethclient.Client) (*types.Header, error) {
		return c.HeaderByNumber(ctx, new(big.Int).SetUint64(n))
	})
}

// FetchBlockWithTransactions fetches the full block (header + body) at n.
func (t *Transport) FetchBlockWithTransactions(ctx context.Context, n uint64) (*types.Block, error) {
	return withRetry(ctx, t, func(ctx context.Context, c *ethclient.Client) (*types.Block, error) {
		return c.BlockByNumber(ctx, new(big.Int).SetUint64(n))
	})
}

// currentEndpoint returns the first endpoint marked healthy in
// configured priority order. If none are healthy it falls back to the
// first configured endpoint — a safety valve so the process never locks
// itself out entirely.
func (t *Transport) currentEndpoint() *endpoint {
	t.healthMu.RLock()
	defer t.healthMu.RUnlock()

	for _, e := range t.endpoints {
		if t.health[e.url] {
			return e
		}
	}

	t.logger.Warn().Msg("no healthy endpoint, falling back to first configured endpoint")
	return t.endpoints[0]
}

// withRetry dispatches fn to the first-healthy endpoint, retrying on
// failure with exponential backoff (base 1s, doubling, at most
// t.maxRetries retries after the first attempt). The health map is re-read on every attempt so
// a recovering endpoint is picked up mid-retry-loop.
func withRetry[T any](ctx context.Context, t *Transport, fn func(context.Context, *ethclient.Client) (T, error)) (T, error) {
	var result T

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.Multiplier = 2
	b.MaxElapsedTime = 0 // bounded by WithMaxRetries instead of wall-clock

	bounded := backoff.WithContext(backoff.WithMaxRetries(b, uint64(t.maxRetries)), ctx)

	op := func() error {
		e := t.currentEndpoint()
		v, err := fn(ctx, e.client)
		if err != nil {
			return fmt.Errorf("%w: endpoint %s: %v", errs.ErrTransientRPC, e.url, err)
		}
		result = v
		return nil
	}

	if err := backoff.Retry(op, bounded); err != nil {
		return result, err
	}

	return result, nil
}
