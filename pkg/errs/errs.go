// Package errs defines the error kinds shared across the indexer and the
// maintenance utility so callers can dispatch on kind with errors.Is/As
// instead of matching strings.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Wrap these with fmt.Errorf("...: %w", ErrX) at the call
// site to preserve the underlying cause while keeping the kind matchable.
var (
	// ErrTransientRPC marks a retryable RPC failure (connection reset, 429,
	// 5xx, timeout). The transport retries internally; this is only
	// returned to a caller after the retry budget is exhausted.
	ErrTransientRPC = errors.New("transient rpc error")

	// ErrValidation marks a record that failed schema validation. Never
	// aborts a batch — diverted to the failure report instead.
	ErrValidation = errors.New("validation error")

	// ErrPersistence marks a failed append-batch or bulk-ingest
	// transaction (constraint violation, connection loss mid-transaction).
	ErrPersistence = errors.New("persistence error")

	// ErrRollbackFatal marks a failed rollback-to transaction. The daemon
	// must halt on this error; manual intervention is required.
	ErrRollbackFatal = errors.New("rollback failure")

	// ErrPrecondition marks a refused operation, e.g. a rollback target
	// past the current checkpoint.
	ErrPrecondition = errors.New("precondition failed")
)

// Validation wraps a single validation-report entry as an ErrValidation-
// kind error, so a caller logging or propagating it can still dispatch
// on kind with errors.Is even though the failure report itself carries
// plain data, not errors.
func Validation(blockNumber uint64, reason string) error {
	return fmt.Errorf("%w: block %d: %s", ErrValidation, blockNumber, reason)
}
