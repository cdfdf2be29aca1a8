package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/kantorcodes/evm-indexer/pkg/models"
)

// BlockToRawTransactions shapes a fetched block's transactions into the
// validator's untyped input shape. Shared by the ingestion loop and the
// backfill driver so both apply identical sender-recovery and
// contract-creation handling. Sender recovery uses the signer
// appropriate for the chain ID the transport agreed on at dial time,
// mirroring the pack's types.Sender(signer, tx) idiom.
func BlockToRawTransactions(block *types.Block, chainID *big.Int) []models.RawTransaction {
	signer := types.LatestSignerForChainID(chainID)
	txs := block.Transactions()
	raws := make([]models.RawTransaction, 0, len(txs))

	for i, tx := range txs {
		from, err := types.Sender(signer, tx)
		fromAddress := ""
		if err == nil {
			fromAddress = from.Hex()
		}

		var to *string
		if tx.To() != nil {
			hex := tx.To().Hex()
			to = &hex
		}

		raws = append(raws, models.RawTransaction{
			BlockNumber:      block.NumberU64(),
			BlockHash:        block.Hash().Hex(),
			TransactionHash:  tx.Hash().Hex(),
			TransactionIndex: uint64(i),
			FromAddress:      fromAddress,
			ToAddress:        to,
			Amount:           tx.Value().String(),
			IsInternalCall:   false,
		})
	}

	return raws
}
