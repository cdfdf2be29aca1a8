package validator_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kantorcodes/evm-indexer/pkg/models"
	"github.com/kantorcodes/evm-indexer/pkg/validator"
)

func strPtr(s string) *string { return &s }

func validRaw() models.RawTransaction {
	return models.RawTransaction{
		BlockNumber:      100,
		BlockHash:        "0x" + repeat("a", 64),
		TransactionHash:  "0x" + repeat("b", 64),
		TransactionIndex: 0,
		FromAddress:      "0x" + repeat("c", 40),
		ToAddress:        strPtr("0x" + repeat("d", 40)),
		Amount:           "1000000000000000000",
		IsInternalCall:   false,
	}
}

func repeat(s string, n int) string {
	out := make([]byte, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, s[0])
	}
	return string(out)
}

func TestValidate_Accepts(t *testing.T) {
	raw := validRaw()
	tx, failures := validator.Validate(raw)
	require.Empty(t, failures)
	require.NotNil(t, tx)
	require.Equal(t, raw.TransactionHash, tx.TransactionHash)
}

func TestValidate_ContractCreationNilToAddress(t *testing.T) {
	raw := validRaw()
	raw.ToAddress = nil
	tx, failures := validator.Validate(raw)
	require.Empty(t, failures)
	require.Nil(t, tx.ToAddress)
}

func TestValidate_EmptyStringToAddressIsFailure(t *testing.T) {
	raw := validRaw()
	raw.ToAddress = strPtr("")
	_, failures := validator.Validate(raw)
	require.NotEmpty(t, failures)
}

func TestValidate_RejectsMalformedFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.RawTransaction)
	}{
		{"short block hash", func(r *models.RawTransaction) { r.BlockHash = "0xabc" }},
		{"no 0x prefix on tx hash", func(r *models.RawTransaction) { r.TransactionHash = repeat("b", 64) }},
		{"short from address", func(r *models.RawTransaction) { r.FromAddress = "0x1234" }},
		{"malformed to address", func(r *models.RawTransaction) { r.ToAddress = strPtr("not-an-address") }},
		{"negative amount", func(r *models.RawTransaction) { r.Amount = "-5" }},
		{"fractional amount", func(r *models.RawTransaction) { r.Amount = "1.5" }},
		{"non-numeric amount", func(r *models.RawTransaction) { r.Amount = "abc" }},
		{"empty amount", func(r *models.RawTransaction) { r.Amount = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := validRaw()
			tt.mutate(&raw)
			tx, failures := validator.Validate(raw)
			require.Nil(t, tx)
			require.NotEmpty(t, failures)
		})
	}
}

func TestValidate_AmountZeroIsValid(t *testing.T) {
	raw := validRaw()
	raw.Amount = "0"
	tx, failures := validator.Validate(raw)
	require.Empty(t, failures)
	require.Equal(t, "0", tx.Amount)
}

func TestValidateBatch_SplitsAcceptedAndFailed(t *testing.T) {
	good := validRaw()
	bad := validRaw()
	bad.FromAddress = "invalid"

	accepted, failures := validator.ValidateBatch([]models.RawTransaction{good, bad})
	require.Len(t, accepted, 1)
	require.NotEmpty(t, failures)
	require.Equal(t, good.TransactionHash, accepted[0].TransactionHash)
}

func TestValidateBatch_EmptyInput(t *testing.T) {
	accepted, failures := validator.ValidateBatch(nil)
	require.Empty(t, accepted)
	require.Empty(t, failures)
}
