package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"tx-engine/internal/config"
	"tx-engine/internal/events"
	"tx-engine/internal/metrics"
	"tx-engine/internal/models"
	"tx-engine/internal/repository"
	"tx-engine/internal/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// NonceReader is the slice of the RPC client the session manager needs to
// learn the chain's view of a wallet's nonce. Satisfied by *ethclient.Client
// or by an adapter routing through a connection manager.
type NonceReader interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// SessionManager serializes transaction submission per (wallet, chain)
// through a database lock row, so concurrent executions across workflows
// and across service instances cannot allocate the same nonce. Nonce state
// itself lives in the pending transaction ledger, never in memory, so it
// survives restarts.
type SessionManager struct {
	locks     repository.WalletLockRepository
	ledger    repository.PendingTransactionRepository
	cfg       config.SessionConfig
	publisher *events.Publisher
	log       *logrus.Logger
}

func NewSessionManager(locks repository.WalletLockRepository, ledger repository.PendingTransactionRepository, cfg config.SessionConfig, publisher *events.Publisher, log *logrus.Logger) *SessionManager {
	return &SessionManager{
		locks:     locks,
		ledger:    ledger,
		cfg:       cfg,
		publisher: publisher,
		log:       log,
	}
}

// WithNonceSession acquires the wallet's lock, runs body with an open
// session, and releases the lock on every path including panics in body.
// Acquisition retries a bounded number of times with backoff before giving
// up with ErrLockContention.
//
// The lock guards nonce allocation and submission ordering only. Whether
// body succeeds or fails, anything it recorded in the ledger stays: a
// recorded nonce is a used nonce.
func (m *SessionManager) WithNonceSession(ctx context.Context, reader NonceReader, wallet string, chainID uint64, body func(session *NonceSession) error) error {
	holderID := uuid.New().String()
	chainLabel := strconv.FormatUint(chainID, 10)
	staleness := m.cfg.LockStaleness()

	acquired := false
	for attempt := 0; attempt < m.cfg.LockRetries; attempt++ {
		reclaimed, err := m.locks.Acquire(ctx, wallet, chainID, holderID, staleness)
		if err == nil {
			if reclaimed {
				metrics.StaleLocksReclaimed.Inc()
				m.log.WithFields(logrus.Fields{
					"wallet":   wallet,
					"chain_id": chainID,
				}).Warn("reclaimed stale wallet lock from crashed holder")
			}
			acquired = true
			break
		}
		if !errors.Is(err, repository.ErrLockHeld) {
			return fmt.Errorf("failed to acquire wallet lock: %w", err)
		}

		metrics.LockContention.WithLabelValues(chainLabel).Inc()
		if attempt < m.cfg.LockRetries-1 {
			delay := utils.BackoffDelay(attempt, m.cfg.LockRetryBackoff(), 8*m.cfg.LockRetryBackoff())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	if !acquired {
		return fmt.Errorf("wallet %s on chain %d: %w", wallet, chainID, ErrLockContention)
	}

	metrics.NonceSessionsActive.Inc()
	defer func() {
		metrics.NonceSessionsActive.Dec()
		// The request context may already be cancelled; the lock must be
		// released regardless.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.locks.Release(releaseCtx, wallet, chainID, holderID); err != nil {
			m.log.WithError(err).WithFields(logrus.Fields{
				"wallet":   wallet,
				"chain_id": chainID,
			}).Error("failed to release wallet lock")
		}
	}()

	session := &NonceSession{
		mgr:     m,
		reader:  reader,
		wallet:  wallet,
		chainID: chainID,
	}
	return body(session)
}

// NonceSession is a single-use handle valid only inside WithNonceSession.
// It allocates at most one nonce and records at most one transaction.
type NonceSession struct {
	mgr     *SessionManager
	reader  NonceReader
	wallet  string
	chainID uint64

	mu        sync.Mutex
	nonce     uint64
	allocated bool
	recorded  bool
}

// NextNonce computes the nonce for this session's transaction:
// max(on-chain pending nonce, highest ledger nonce + 1). The ledger term
// covers submissions the node has not indexed yet and submissions from a
// crashed prior process; the on-chain term covers transactions sent outside
// this service. Repeated calls return the same value.
func (s *NonceSession) NextNonce(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.allocated {
		return s.nonce, nil
	}

	onChain, err := s.reader.PendingNonceAt(ctx, common.HexToAddress(s.wallet))
	if err != nil {
		return 0, fmt.Errorf("failed to fetch on-chain nonce: %w", err)
	}
	highest, ok, err := s.mgr.ledger.HighestNonce(ctx, s.wallet, s.chainID)
	if err != nil {
		return 0, fmt.Errorf("failed to read nonce ledger: %w", err)
	}

	s.nonce = nextNonce(onChain, highest, ok)
	s.allocated = true
	return s.nonce, nil
}

func nextNonce(onChain, highestRecorded uint64, hasRecorded bool) uint64 {
	if hasRecorded && highestRecorded+1 > onChain {
		return highestRecorded + 1
	}
	return onChain
}

// RecordTransaction persists the pending row for the allocated nonce. This
// is the durability point: it must run after submission succeeds and before
// any confirmation wait, so a crash mid-wait still leaves the nonce marked
// as used. A session that never reaches this point leaves no row, and its
// nonce is naturally reusable.
func (s *NonceSession) RecordTransaction(ctx context.Context, txHash, workflowID, executionID string, gas *GasParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.allocated {
		return errors.New("no nonce allocated in this session")
	}
	if s.recorded {
		return errors.New("transaction already recorded in this session")
	}

	row := &models.PendingTransaction{
		ID:          uuid.New().String(),
		Status:      models.PendingTransactionStatusPending,
		Wallet:      s.wallet,
		ChainID:     s.chainID,
		Nonce:       s.nonce,
		TxHash:      txHash,
		WorkflowID:  workflowID,
		ExecutionID: executionID,
	}
	if gas != nil {
		row.GasLimit = gas.Limit
		if gas.FeePerGas != nil {
			row.FeePerGas = gas.FeePerGas.String()
		}
		if gas.PriorityFeePerGas != nil {
			row.PriorityFeePerGas = gas.PriorityFeePerGas.String()
		}
	}
	if err := s.mgr.ledger.Create(ctx, row); err != nil {
		return fmt.Errorf("failed to record pending transaction: %w", err)
	}
	s.recorded = true

	metrics.TransactionsSubmitted.WithLabelValues(strconv.FormatUint(s.chainID, 10)).Inc()
	s.mgr.publisher.PublishTransactionEvent(events.SubjectTxSubmitted, events.TransactionEvent{
		TxHash:      txHash,
		Wallet:      s.wallet,
		ChainID:     s.chainID,
		Nonce:       s.nonce,
		WorkflowID:  workflowID,
		ExecutionID: executionID,
		Status:      string(models.PendingTransactionStatusPending),
	})
	return nil
}

// ConfirmTransaction resolves the recorded row as confirmed.
func (s *NonceSession) ConfirmTransaction(ctx context.Context, txHash string, blockNumber *uint64) error {
	if err := s.mgr.ledger.MarkConfirmed(ctx, txHash, blockNumber); err != nil {
		return fmt.Errorf("failed to mark transaction confirmed: %w", err)
	}
	chainLabel := strconv.FormatUint(s.chainID, 10)
	metrics.TransactionsResolved.WithLabelValues(chainLabel, string(models.PendingTransactionStatusConfirmed)).Inc()
	s.mgr.publisher.PublishTransactionEvent(events.SubjectTxConfirmed, events.TransactionEvent{
		TxHash:  txHash,
		Wallet:  s.wallet,
		ChainID: s.chainID,
		Nonce:   s.nonce,
		Status:  string(models.PendingTransactionStatusConfirmed),
	})
	return nil
}

// FailTransaction resolves the recorded row as failed (reverted on chain).
// The nonce stays consumed; the chain has processed it.
func (s *NonceSession) FailTransaction(ctx context.Context, txHash, reason string) error {
	if err := s.mgr.ledger.MarkFailed(ctx, txHash, reason); err != nil {
		return fmt.Errorf("failed to mark transaction failed: %w", err)
	}
	chainLabel := strconv.FormatUint(s.chainID, 10)
	metrics.TransactionsResolved.WithLabelValues(chainLabel, string(models.PendingTransactionStatusFailed)).Inc()
	s.mgr.publisher.PublishTransactionEvent(events.SubjectTxFailed, events.TransactionEvent{
		TxHash:  txHash,
		Wallet:  s.wallet,
		ChainID: s.chainID,
		Nonce:   s.nonce,
		Status:  string(models.PendingTransactionStatusFailed),
		Error:   reason,
	})
	return nil
}
