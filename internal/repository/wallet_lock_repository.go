package repository

import (
	"context"
	"errors"
	"time"

	"tx-engine/internal/models"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// ErrLockHeld is returned when the wallet lock row exists and is not stale.
var ErrLockHeld = errors.New("wallet lock held by another session")

// WalletLockRepository defines data access for the per-(wallet, chain)
// coordination locks.
type WalletLockRepository interface {
	// Acquire inserts the lock row for (wallet, chain). If the row already
	// exists and is older than staleness it is reclaimed from the crashed
	// holder; otherwise ErrLockHeld is returned. reclaimed reports whether
	// a stale lock takeover happened.
	Acquire(ctx context.Context, wallet string, chainID uint64, holderID string, staleness time.Duration) (reclaimed bool, err error)

	// Release deletes the lock row, but only if holderID still owns it.
	Release(ctx context.Context, wallet string, chainID uint64, holderID string) error

	// DeleteStale removes all locks older than the threshold. Used by the
	// reconciliation sweep so abandoned locks do not linger until the next
	// session for that wallet.
	DeleteStale(ctx context.Context, staleness time.Duration) (int64, error)
}

type walletLockRepository struct {
	db *gorm.DB
}

// NewWalletLockRepository creates a new WalletLockRepository instance
func NewWalletLockRepository(db *gorm.DB) WalletLockRepository {
	return &walletLockRepository{db: db}
}

func (r *walletLockRepository) Acquire(ctx context.Context, wallet string, chainID uint64, holderID string, staleness time.Duration) (bool, error) {
	lock := &models.WalletLock{
		Wallet:     wallet,
		ChainID:    chainID,
		HolderID:   holderID,
		AcquiredAt: time.Now(),
	}

	err := r.db.WithContext(ctx).Create(lock).Error
	if err == nil {
		return false, nil
	}
	if !isDuplicateKey(err) {
		return false, err
	}

	// Row exists. Load it to decide between contention and stale reclaim.
	var existing models.WalletLock
	if err := r.db.WithContext(ctx).
		Where("wallet = ? AND chain_id = ?", wallet, chainID).
		First(&existing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Holder released between our insert and read; caller retries.
			return false, ErrLockHeld
		}
		return false, err
	}

	if !existing.IsStale(staleness, time.Now()) {
		return false, ErrLockHeld
	}

	// Stale lock: take over with an optimistic update keyed on the prior
	// holder, so two reclaimers cannot both win.
	result := r.db.WithContext(ctx).
		Model(&models.WalletLock{}).
		Where("wallet = ? AND chain_id = ? AND holder_id = ?", wallet, chainID, existing.HolderID).
		Updates(map[string]interface{}{
			"holder_id":   holderID,
			"acquired_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		// Someone else reclaimed first.
		return false, ErrLockHeld
	}
	return true, nil
}

func (r *walletLockRepository) Release(ctx context.Context, wallet string, chainID uint64, holderID string) error {
	return r.db.WithContext(ctx).
		Where("wallet = ? AND chain_id = ? AND holder_id = ?", wallet, chainID, holderID).
		Delete(&models.WalletLock{}).Error
}

func (r *walletLockRepository) DeleteStale(ctx context.Context, staleness time.Duration) (int64, error) {
	cutoff := time.Now().Add(-staleness)
	result := r.db.WithContext(ctx).
		Where("acquired_at < ?", cutoff).
		Delete(&models.WalletLock{})
	return result.RowsAffected, result.Error
}

// isDuplicateKey detects a primary-key conflict on the lock insert. GORM
// translates driver errors when TranslateError is on; the pq code check
// covers the Postgres path when translation is not available.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}
	return false
}
