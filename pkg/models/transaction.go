// Package models defines the canonical record shapes shared by the
// validator, the persistence layer, and the ingestion/backfill callers.
package models

import "time"

// RawTransaction is the untyped shape decoded off the wire (RPC response
// or, for future codecs, a message envelope) before validation. The hash,
// address and amount fields are plain strings so the validator can apply
// its own refinements rather than trusting the decoder's type coercion.
type RawTransaction struct {
	BlockNumber      uint64
	BlockHash        string
	TransactionHash  string
	TransactionIndex uint64
	FromAddress      string
	ToAddress        *string // nil means contract creation
	Amount           string  // decimal string
	IsInternalCall   bool
}

// Transaction is the canonical validated shape that reaches persistence.
// Amount is kept as a validated decimal string end to end — it is parsed
// with math/big only to check the numeric refinement, never converted to
// a float, and stored in an exact-decimal (NUMERIC) column.
type Transaction struct {
	BlockNumber      uint64
	BlockHash        string
	TransactionHash  string
	TransactionIndex uint64
	FromAddress      string
	ToAddress        *string
	Amount           string
	IsInternalCall   bool
}

// ValidationFailure is a flat failure-report entry: identity plus reason,
// never nested. The flat shape preserves a schema-evolution path toward a
// future wire-format codec without restructuring the report.
type ValidationFailure struct {
	BlockNumber uint64
	Reason      string
}

// chainHeadCheckpointID is the constant single-row identifier the
// checkpoint store uses. The store holds exactly one row keyed on it.
const chainHeadCheckpointID = "chain_head"

// Checkpoint is the durable cursor marking the last committed head. It is
// created lazily on first commit and updated transactionally with every
// commit or rollback.
type Checkpoint struct {
	ID          string
	BlockNumber uint64
	BlockHash   string
	LastUpdated time.Time
}

// ChainHeadCheckpointID returns the constant row identifier used by the
// checkpoint store.
func ChainHeadCheckpointID() string {
	return chainHeadCheckpointID
}
