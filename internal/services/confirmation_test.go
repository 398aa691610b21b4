package services

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedReceiptReader struct {
	notFoundFirst int
	receipt       *types.Receipt
	calls         int
}

func (r *scriptedReceiptReader) TransactionReceipt(_ context.Context, _ common.Hash) (*types.Receipt, error) {
	r.calls++
	if r.calls <= r.notFoundFirst {
		return nil, ethereum.NotFound
	}
	return r.receipt, nil
}

func testLogEntry() *logrus.Entry {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(log)
}

func TestWaitForReceiptImmediate(t *testing.T) {
	reader := &scriptedReceiptReader{
		receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(100)},
	}

	receipt, err := WaitForReceipt(context.Background(), reader, common.Hash{}, time.Second, testLogEntry())
	require.NoError(t, err)
	assert.Equal(t, uint64(100), receipt.BlockNumber.Uint64())
	assert.Equal(t, 1, reader.calls)
}

func TestWaitForReceiptTimeout(t *testing.T) {
	reader := &scriptedReceiptReader{notFoundFirst: 1 << 30}

	_, err := WaitForReceipt(context.Background(), reader, common.Hash{}, 20*time.Millisecond, testLogEntry())
	assert.ErrorIs(t, err, ErrConfirmationTimeout)
}

func TestWaitForReceiptParentCancelled(t *testing.T) {
	reader := &scriptedReceiptReader{notFoundFirst: 1 << 30}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := WaitForReceipt(ctx, reader, common.Hash{}, time.Minute, testLogEntry())
	// Caller cancellation is not a confirmation timeout.
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrConfirmationTimeout)
}
