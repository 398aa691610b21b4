package services

import (
	"context"
	"time"

	"tx-engine/internal/models"
	"tx-engine/internal/repository"
)

// LedgerQueryService exposes read-only views of the pending transaction
// ledger for the API layer.
type LedgerQueryService struct {
	ledger repository.PendingTransactionRepository
}

func NewLedgerQueryService(ledger repository.PendingTransactionRepository) *LedgerQueryService {
	return &LedgerQueryService{ledger: ledger}
}

func (s *LedgerQueryService) GetByHash(ctx context.Context, txHash string) (*models.PendingTransaction, error) {
	return s.ledger.GetByHash(ctx, txHash)
}

// ListUnresolved returns pending rows older than age, oldest first.
func (s *LedgerQueryService) ListUnresolved(ctx context.Context, age time.Duration, limit int) ([]*models.PendingTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.ledger.FindUnresolved(ctx, time.Now().Add(-age), limit)
}
