package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"tx-engine/internal/config"
	"tx-engine/internal/models"
	"tx-engine/internal/repository"
	"tx-engine/internal/testutil"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type unreachableResolver struct{}

func (unreachableResolver) ResolveEVMManager(_ context.Context, _ uint64) (*EVMConnectionManager, error) {
	return nil, errors.New("no endpoint")
}

func TestSweepDeletesStaleLocksOnly(t *testing.T) {
	db := testutil.NewTestDB(t)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	lockRepo := repository.NewWalletLockRepository(db)
	ledgerRepo := repository.NewPendingTransactionRepository(db)
	svc := NewReconciliationService(ledgerRepo, lockRepo, unreachableResolver{}, config.SessionConfig{
		LockStalenessSec:       180,
		ConfirmationTimeoutSec: 120,
	}, nil, log)

	require.NoError(t, db.Create(&models.WalletLock{
		Wallet: sessionWallet, ChainID: sessionChain,
		HolderID: "dead", AcquiredAt: time.Now().Add(-time.Hour),
	}).Error)
	require.NoError(t, db.Create(&models.WalletLock{
		Wallet: sessionWallet, ChainID: sessionChain + 1,
		HolderID: "alive", AcquiredAt: time.Now(),
	}).Error)

	svc.Sweep(context.Background())

	var locks []models.WalletLock
	require.NoError(t, db.Find(&locks).Error)
	require.Len(t, locks, 1)
	assert.Equal(t, "alive", locks[0].HolderID)
}

func TestSweepLeavesRowsPendingWhenEndpointUnavailable(t *testing.T) {
	db := testutil.NewTestDB(t)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	lockRepo := repository.NewWalletLockRepository(db)
	ledgerRepo := repository.NewPendingTransactionRepository(db)
	svc := NewReconciliationService(ledgerRepo, lockRepo, unreachableResolver{}, config.SessionConfig{
		ConfirmationTimeoutSec: 1,
	}, nil, log)

	row := &models.PendingTransaction{
		ID:      uuid.New().String(),
		Status:  models.PendingTransactionStatusPending,
		Wallet:  sessionWallet,
		ChainID: sessionChain,
		Nonce:   3,
		TxHash:  "0xstuck",
	}
	require.NoError(t, db.Create(row).Error)
	require.NoError(t, db.Model(row).Update("created_at", time.Now().Add(-time.Minute)).Error)

	svc.Sweep(context.Background())

	// An indeterminate row must never be flipped without a receipt.
	got, err := ledgerRepo.GetByHash(context.Background(), "0xstuck")
	require.NoError(t, err)
	assert.Equal(t, models.PendingTransactionStatusPending, got.Status)
}

func TestReconcilerStartStop(t *testing.T) {
	db := testutil.NewTestDB(t)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	svc := NewReconciliationService(
		repository.NewPendingTransactionRepository(db),
		repository.NewWalletLockRepository(db),
		unreachableResolver{},
		config.SessionConfig{},
		nil, log,
	)
	svc.interval = 10 * time.Millisecond

	svc.Start()
	time.Sleep(30 * time.Millisecond)
	svc.Stop()
	// Stop is idempotent.
	svc.Stop()
}
