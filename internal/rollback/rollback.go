// Package rollback is the maintenance entry point for an
// operator-initiated rewind: the same atomic rollback-to primitive the
// ingestion loop uses on a reorg, wrapped with the precondition checks
// a manual operation needs before it touches committed state.
package rollback

import (
	"context"
	"fmt"

	"github.com/kantorcodes/evm-indexer/internal/chain"
	"github.com/kantorcodes/evm-indexer/internal/store"
	"github.com/kantorcodes/evm-indexer/pkg/errs"
	"github.com/kantorcodes/evm-indexer/pkg/models"
)

// Execute checks preconditions in order — a checkpoint exists, and
// target does not roll forward past it — then performs the rollback.
// target's non-negativity is already enforced by its uint64 type at
// the CLI-parsing boundary (cmd/maintenance).
//
// When chainTransport is non-nil and target is above 0, Execute
// re-fetches the canonical header of block target-1 and stores its hash
// in the same transaction; when it is nil (an offline maintenance run
// with no RPC configured) or that fetch fails, the stored hash is left
// untouched and the daemon will re-verify lineage itself on its next
// iteration.
func Execute(ctx context.Context, st *store.Store, chainTransport *chain.Transport, target uint64) (*models.Checkpoint, error) {
	current, err := st.CurrentCheckpoint(ctx)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	if current == nil {
		return nil, fmt.Errorf("%w: no checkpoint exists, nothing to roll back", errs.ErrPrecondition)
	}
	if target > current.BlockNumber {
		return nil, fmt.Errorf("%w: target %d is ahead of current checkpoint %d, rollback cannot roll forward", errs.ErrPrecondition, target, current.BlockNumber)
	}

	if chainTransport != nil && target > 0 {
		header, err := chainTransport.FetchBlockHeader(ctx, target-1)
		if err == nil {
			if err := st.RollbackToWithHash(ctx, target, header.Hash().Hex()); err != nil {
				return nil, err
			}
			return st.CurrentCheckpoint(ctx)
		}
	}

	if err := st.RollbackTo(ctx, target); err != nil {
		return nil, err
	}
	return st.CurrentCheckpoint(ctx)
}
