package models

import (
	"time"
)

// PendingTransactionStatus lifecycle of a submitted transaction.
type PendingTransactionStatus string

const (
	PendingTransactionStatusPending   PendingTransactionStatus = "pending"
	PendingTransactionStatusConfirmed PendingTransactionStatus = "confirmed"
	PendingTransactionStatusFailed    PendingTransactionStatus = "failed"
)

// PendingTransaction is one submitted-but-not-yet-confirmed transaction.
// Rows are created at submission time, before the confirmation wait, so a
// used nonce survives a process crash. This table, not any in-memory
// counter, is the durable source of truth for the last nonce used per
// wallet; the session manager takes max(on-chain, ledger+1).
type PendingTransaction struct {
	ID      string                   `json:"id" gorm:"primaryKey"` // UUID
	Status  PendingTransactionStatus `json:"status" gorm:"not null;default:pending;index"`
	Wallet  string                   `json:"wallet" gorm:"not null;index:idx_wallet_chain;size:66"`
	ChainID uint64                   `json:"chain_id" gorm:"not null;index:idx_wallet_chain"`
	Nonce   uint64                   `json:"nonce" gorm:"not null;index"`

	TxHash      string  `json:"tx_hash" gorm:"index;size:66"`
	BlockNumber *uint64 `json:"block_number"`

	// Workflow attribution (optional; manual test runs have none)
	WorkflowID  string `json:"workflow_id" gorm:"index"`
	ExecutionID string `json:"execution_id" gorm:"index"`

	// Fee parameters the transaction was submitted with (wei, decimal strings)
	GasLimit          uint64 `json:"gas_limit"`
	FeePerGas         string `json:"fee_per_gas"`
	PriorityFeePerGas string `json:"priority_fee_per_gas"`

	LastError string `json:"last_error" gorm:"type:text"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ConfirmedAt *time.Time `json:"confirmed_at"`
}

// TableName specifies the table name
func (PendingTransaction) TableName() string {
	return "pending_transactions"
}
