package chain

import (
	"context"
	"sync"
	"time"
)

// StartHealthMonitor runs the background health check on a fixed cadence
// until ctx is canceled or Stop is called. It is the sole writer of the
// health map; every foreground call only reads it. Intended to be
// launched with `go transport.StartHealthMonitor(ctx)`.
func (t *Transport) StartHealthMonitor(ctx context.Context) {
	defer close(t.doneCh)

	ticker := time.NewTicker(t.healthInterval)
	defer ticker.Stop()

	// Run one check immediately so routing decisions don't wait a full
	// interval after startup.
	t.checkHealth(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.checkHealth(ctx)
		}
	}
}

// Stop signals the health monitor to exit and waits for it to do so.
func (t *Transport) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
	<-t.doneCh
}

// checkHealth queries every endpoint's current height, computes the
// observed max, and reclassifies each endpoint healthy/unhealthy against
// the stale threshold. Transitions are logged exactly once per change to
// avoid flap noise.
func (t *Transport) checkHealth(ctx context.Context) {
	type observation struct {
		url     string
		height  uint64
		ok      bool
	}

	observations := make([]observation, len(t.endpoints))

	var wg sync.WaitGroup
	for i, e := range t.endpoints {
		wg.Add(1)
		go func(i int, e *endpoint) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, t.healthInterval)
			defer cancel()

			height, err := e.client.BlockNumber(checkCtx)
			observations[i] = observation{url: e.url, height: height, ok: err == nil}
		}(i, e)
	}
	wg.Wait()

	var maxHeight uint64
	for _, o := range observations {
		if o.ok && o.height > maxHeight {
			maxHeight = o.height
		}
	}

	t.healthMu.Lock()
	defer t.healthMu.Unlock()

	for _, o := range observations {
		wasHealthy := t.health[o.url]

		healthy := o.ok
		if healthy && maxHeight > o.height && maxHeight-o.height > t.staleThreshold {
			healthy = false
		}

		t.health[o.url] = healthy

		if healthy != wasHealthy {
			if healthy {
				t.logger.Info().Str("endpoint", o.url).Msg("endpoint recovered, marking healthy")
			} else {
				t.logger.Warn().
					Str("endpoint", o.url).
					Uint64("height", o.height).
					Uint64("max_height", maxHeight).
					Bool("responded", o.ok).
					Msg("endpoint marked unhealthy")
			}
		}
	}
}
