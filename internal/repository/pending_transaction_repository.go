package repository

import (
	"context"
	"errors"
	"time"

	"tx-engine/internal/models"

	"gorm.io/gorm"
)

// PendingTransactionRepository defines data access for the pending
// transaction ledger.
type PendingTransactionRepository interface {
	Create(ctx context.Context, tx *models.PendingTransaction) error
	GetByHash(ctx context.Context, txHash string) (*models.PendingTransaction, error)

	// HighestNonce returns the highest nonce ever recorded for the
	// (wallet, chain) pair, regardless of status. ok is false when the
	// ledger has no rows for the pair (fresh deployment).
	HighestNonce(ctx context.Context, wallet string, chainID uint64) (nonce uint64, ok bool, err error)

	MarkConfirmed(ctx context.Context, txHash string, blockNumber *uint64) error
	MarkFailed(ctx context.Context, txHash string, reason string) error

	// FindUnresolved returns pending rows older than the given age, for
	// the reconciliation sweep.
	FindUnresolved(ctx context.Context, olderThan time.Time, limit int) ([]*models.PendingTransaction, error)
}

type pendingTransactionRepository struct {
	db *gorm.DB
}

// NewPendingTransactionRepository creates a new PendingTransactionRepository instance
func NewPendingTransactionRepository(db *gorm.DB) PendingTransactionRepository {
	return &pendingTransactionRepository{db: db}
}

func (r *pendingTransactionRepository) Create(ctx context.Context, tx *models.PendingTransaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *pendingTransactionRepository) GetByHash(ctx context.Context, txHash string) (*models.PendingTransaction, error) {
	var tx models.PendingTransaction
	err := r.db.WithContext(ctx).Where("tx_hash = ?", txHash).First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *pendingTransactionRepository) HighestNonce(ctx context.Context, wallet string, chainID uint64) (uint64, bool, error) {
	var tx models.PendingTransaction
	err := r.db.WithContext(ctx).
		Where("wallet = ? AND chain_id = ?", wallet, chainID).
		Order("nonce DESC").
		First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return tx.Nonce, true, nil
}

func (r *pendingTransactionRepository) MarkConfirmed(ctx context.Context, txHash string, blockNumber *uint64) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":       models.PendingTransactionStatusConfirmed,
		"confirmed_at": &now,
		"updated_at":   now,
	}
	if blockNumber != nil {
		updates["block_number"] = blockNumber
	}
	return r.db.WithContext(ctx).
		Model(&models.PendingTransaction{}).
		Where("tx_hash = ?", txHash).
		Updates(updates).Error
}

func (r *pendingTransactionRepository) MarkFailed(ctx context.Context, txHash string, reason string) error {
	return r.db.WithContext(ctx).
		Model(&models.PendingTransaction{}).
		Where("tx_hash = ?", txHash).
		Updates(map[string]interface{}{
			"status":     models.PendingTransactionStatusFailed,
			"last_error": reason,
			"updated_at": time.Now(),
		}).Error
}

func (r *pendingTransactionRepository) FindUnresolved(ctx context.Context, olderThan time.Time, limit int) ([]*models.PendingTransaction, error) {
	var txs []*models.PendingTransaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.PendingTransactionStatusPending, olderThan).
		Order("created_at ASC").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}
