// Package validator performs structural and semantic validation of raw
// transaction records before they reach the persistence layer. Validation
// is total: every field is checked, and the outcome is always a
// structured result — Validate never panics or returns a bare error for
// a malformed record.
package validator

import (
	"fmt"
	"math/big"
	"regexp"

	"github.com/kantorcodes/evm-indexer/pkg/models"
)

var (
	blockHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
	addressPattern   = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// Validate checks a raw transaction against the canonical shape. On
// success it returns the validated record and a nil failure slice; on
// failure it returns a nil record and one reason per failed field.
func Validate(raw models.RawTransaction) (*models.Transaction, []models.ValidationFailure) {
	var reasons []string

	if !blockHashPattern.MatchString(raw.BlockHash) {
		reasons = append(reasons, fmt.Sprintf("block_hash %q is not a 0x-prefixed 32-byte hex string", raw.BlockHash))
	}

	if !blockHashPattern.MatchString(raw.TransactionHash) {
		reasons = append(reasons, fmt.Sprintf("transaction_hash %q is not a 0x-prefixed 32-byte hex string", raw.TransactionHash))
	}

	if !addressPattern.MatchString(raw.FromAddress) {
		reasons = append(reasons, fmt.Sprintf("from_address %q is not a 0x-prefixed 20-byte hex string", raw.FromAddress))
	}

	// Contract creation is represented by an absent to_address. An
	// explicit empty string is a validation failure, not absence.
	if raw.ToAddress != nil {
		if *raw.ToAddress == "" {
			reasons = append(reasons, "to_address is an empty string; omit the field for contract creation")
		} else if !addressPattern.MatchString(*raw.ToAddress) {
			reasons = append(reasons, fmt.Sprintf("to_address %q is not a 0x-prefixed 20-byte hex string", *raw.ToAddress))
		}
	}

	if !isNonNegativeInteger(raw.Amount) {
		reasons = append(reasons, fmt.Sprintf("amount %q is not an exact non-negative integer", raw.Amount))
	}

	if len(reasons) > 0 {
		failures := make([]models.ValidationFailure, len(reasons))
		for i, r := range reasons {
			failures[i] = models.ValidationFailure{BlockNumber: raw.BlockNumber, Reason: r}
		}
		return nil, failures
	}

	return &models.Transaction{
		BlockNumber:      raw.BlockNumber,
		BlockHash:        raw.BlockHash,
		TransactionHash:  raw.TransactionHash,
		TransactionIndex: raw.TransactionIndex,
		FromAddress:      raw.FromAddress,
		ToAddress:        raw.ToAddress,
		Amount:           raw.Amount,
		IsInternalCall:   raw.IsInternalCall,
	}, nil
}

// isNonNegativeInteger reports whether s parses as an exact base-10
// non-negative integer: no sign, no fractional part, no exponent.
func isNonNegativeInteger(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	n := new(big.Int)
	_, ok := n.SetString(s, 10)
	return ok && n.Sign() >= 0
}

// ValidateBatch validates every raw transaction in the batch, splitting
// the input into accepted records and a flat failure report.
func ValidateBatch(raws []models.RawTransaction) ([]models.Transaction, []models.ValidationFailure) {
	accepted := make([]models.Transaction, 0, len(raws))
	var failures []models.ValidationFailure

	for _, raw := range raws {
		record, reasons := Validate(raw)
		if record != nil {
			accepted = append(accepted, *record)
			continue
		}
		failures = append(failures, reasons...)
	}

	return accepted, failures
}
