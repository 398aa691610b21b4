package services

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
)

// ReceiptReader is the slice of the RPC client the confirmation wait needs.
// Satisfied by *ethclient.Client.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

const receiptPollInterval = 3 * time.Second

// WaitForReceipt polls for the transaction's receipt until the timeout
// budget runs out. A timeout returns ErrConfirmationTimeout; the caller must
// treat that as indeterminate, not as failure. "Not found" responses mean
// the transaction is still in the mempool and keep the loop going.
func WaitForReceipt(ctx context.Context, client ReceiptReader, txHash common.Hash, timeout time.Duration, log *logrus.Entry) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := client.TransactionReceipt(waitCtx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			log.WithError(err).WithField("tx_hash", txHash.Hex()).Warn("receipt query failed, retrying")
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, ErrConfirmationTimeout
		case <-ticker.C:
		}
	}
}
