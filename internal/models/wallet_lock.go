package models

import (
	"time"
)

// WalletLock is the cross-process coordination row for a (wallet, chain)
// pair. Exactly one session may hold the row at a time; it is created on
// acquisition, deleted on clean release, and forcibly reclaimed once
// AcquiredAt is older than the configured staleness threshold (the prior
// holder is then treated as crashed).
type WalletLock struct {
	Wallet     string    `json:"wallet" gorm:"primaryKey;size:66"`
	ChainID    uint64    `json:"chain_id" gorm:"primaryKey;autoIncrement:false"`
	HolderID   string    `json:"holder_id" gorm:"not null;size:36"` // UUID per session
	AcquiredAt time.Time `json:"acquired_at" gorm:"not null"`
}

// TableName specifies the table name
func (WalletLock) TableName() string {
	return "wallet_locks"
}

// IsStale reports whether the lock is older than the staleness threshold.
func (l *WalletLock) IsStale(threshold time.Duration, now time.Time) bool {
	return now.Sub(l.AcquiredAt) > threshold
}
