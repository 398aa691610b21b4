package services

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"tx-engine/internal/config"
	"tx-engine/internal/events"
	"tx-engine/internal/metrics"
	"tx-engine/internal/models"
	"tx-engine/internal/repository"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

// endpointResolver turns a chain id into a connection manager. Implemented
// by the transfer service's resolution path so reconciliation follows the
// same user-override rules as submission.
type endpointResolver interface {
	ResolveEVMManager(ctx context.Context, chainID uint64) (*EVMConnectionManager, error)
}

// ReconciliationService periodically resolves pending rows whose
// confirmation wait was cut short (timeout, crash, restart) and sweeps
// abandoned wallet locks. It is the cleanup half of the indeterminate
// outcome: a row left pending is re-checked here until the chain gives a
// definitive answer.
type ReconciliationService struct {
	ledger    repository.PendingTransactionRepository
	locks     repository.WalletLockRepository
	resolver  endpointResolver
	cfg       config.SessionConfig
	publisher *events.Publisher
	log       *logrus.Logger

	interval time.Duration
	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

func NewReconciliationService(ledger repository.PendingTransactionRepository, locks repository.WalletLockRepository, resolver endpointResolver, cfg config.SessionConfig, publisher *events.Publisher, log *logrus.Logger) *ReconciliationService {
	return &ReconciliationService{
		ledger:    ledger,
		locks:     locks,
		resolver:  resolver,
		cfg:       cfg,
		publisher: publisher,
		log:       log,
		interval:  time.Minute,
		stopChan:  make(chan struct{}),
	}
}

// Start launches the background sweep loop.
func (s *ReconciliationService) Start() {
	s.wg.Add(1)
	go s.run()
	s.log.Info("reconciliation service started")
}

// Stop signals the loop to exit and waits for the in-flight sweep.
func (s *ReconciliationService) Stop() {
	s.once.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	s.log.Info("reconciliation service stopped")
}

func (s *ReconciliationService) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.interval)
			s.Sweep(ctx)
			cancel()
		}
	}
}

// Sweep runs one reconciliation pass: resolve stale pending rows, then
// delete abandoned locks. Exported so an operator endpoint can trigger it
// on demand.
func (s *ReconciliationService) Sweep(ctx context.Context) {
	// Only rows old enough that their original confirmation wait must be
	// over; anything younger still has a live waiter.
	cutoff := time.Now().Add(-s.cfg.ConfirmationTimeout())
	rows, err := s.ledger.FindUnresolved(ctx, cutoff, 50)
	if err != nil {
		s.log.WithError(err).Error("failed to list unresolved transactions")
	} else {
		for _, row := range rows {
			s.reconcileRow(ctx, row)
		}
	}

	deleted, err := s.locks.DeleteStale(ctx, s.cfg.LockStaleness())
	if err != nil {
		s.log.WithError(err).Error("failed to sweep stale locks")
	} else if deleted > 0 {
		s.log.WithField("count", deleted).Warn("swept abandoned wallet locks")
	}
}

func (s *ReconciliationService) reconcileRow(ctx context.Context, row *models.PendingTransaction) {
	log := s.log.WithFields(logrus.Fields{
		"tx_hash":  row.TxHash,
		"chain_id": row.ChainID,
		"nonce":    row.Nonce,
	})

	mgr, err := s.resolver.ResolveEVMManager(ctx, row.ChainID)
	if err != nil {
		log.WithError(err).Warn("cannot resolve endpoint for unresolved transaction")
		return
	}

	var receipt *types.Receipt
	err = mgr.ExecuteWithFailover(ctx, func(ctx context.Context, client *ethclient.Client) error {
		r, err := client.TransactionReceipt(ctx, common.HexToHash(row.TxHash))
		if err != nil {
			if errors.Is(err, ethereum.NotFound) {
				// Still unknown to the chain. Leave the row pending; the
				// nonce stays consumed either way.
				return MarkPermanent(err)
			}
			return err
		}
		receipt = r
		return nil
	})
	if err != nil {
		if !errors.Is(err, ethereum.NotFound) {
			log.WithError(err).Warn("receipt lookup failed during reconciliation")
		}
		return
	}

	chainLabel := strconv.FormatUint(row.ChainID, 10)
	block := receipt.BlockNumber.Uint64()
	if receipt.Status == types.ReceiptStatusSuccessful {
		if err := s.ledger.MarkConfirmed(ctx, row.TxHash, &block); err != nil {
			log.WithError(err).Error("failed to mark reconciled transaction confirmed")
			return
		}
		metrics.TransactionsResolved.WithLabelValues(chainLabel, string(models.PendingTransactionStatusConfirmed)).Inc()
		s.publisher.PublishTransactionEvent(events.SubjectTxConfirmed, events.TransactionEvent{
			TxHash: row.TxHash, Wallet: row.Wallet, ChainID: row.ChainID,
			Nonce: row.Nonce, WorkflowID: row.WorkflowID, ExecutionID: row.ExecutionID,
			Status: string(models.PendingTransactionStatusConfirmed),
		})
		log.Info("reconciled transaction as confirmed")
		return
	}

	if err := s.ledger.MarkFailed(ctx, row.TxHash, "transaction reverted"); err != nil {
		log.WithError(err).Error("failed to mark reconciled transaction failed")
		return
	}
	metrics.TransactionsResolved.WithLabelValues(chainLabel, string(models.PendingTransactionStatusFailed)).Inc()
	s.publisher.PublishTransactionEvent(events.SubjectTxFailed, events.TransactionEvent{
		TxHash: row.TxHash, Wallet: row.Wallet, ChainID: row.ChainID,
		Nonce: row.Nonce, Status: string(models.PendingTransactionStatusFailed),
		Error: "transaction reverted",
	})
	log.Warn("reconciled transaction as reverted")
}
