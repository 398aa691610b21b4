package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"tx-engine/internal/clients"
	"tx-engine/internal/config"
	"tx-engine/internal/dto"
	"tx-engine/internal/metrics"
	"tx-engine/internal/signer"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	solana "github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/sirupsen/logrus"
)

// ErrTransactionReverted means the chain processed the transaction and it
// failed. The nonce is consumed.
var ErrTransactionReverted = errors.New("transaction reverted on chain")

// TransferService orchestrates a native-token transfer end to end: resolve
// the execution's attribution, resolve the RPC endpoint pair, compute gas,
// then submit inside a nonce session and wait for confirmation.
type TransferService struct {
	registry *ConnectionRegistry
	gas      *GasStrategy
	sessions *SessionManager
	chainCfg *clients.ChainConfigClient
	execCtx  *clients.ExecutionContextClient
	signers  *signer.Provider
	cfg      *config.Config
	log      *logrus.Logger
}

func NewTransferService(registry *ConnectionRegistry, gas *GasStrategy, sessions *SessionManager, chainCfg *clients.ChainConfigClient, execCtx *clients.ExecutionContextClient, signers *signer.Provider, cfg *config.Config, log *logrus.Logger) *TransferService {
	return &TransferService{
		registry: registry,
		gas:      gas,
		sessions: sessions,
		chainCfg: chainCfg,
		execCtx:  execCtx,
		signers:  signers,
		cfg:      cfg,
		log:      log,
	}
}

// ResolveEVMManager resolves the connection manager for a chain using the
// platform-default endpoints. Used by reconciliation, which acts for no
// particular user.
func (s *TransferService) ResolveEVMManager(ctx context.Context, chainID uint64) (*EVMConnectionManager, error) {
	endpoint, err := s.chainCfg.ResolveRPCConfig(ctx, chainID, "")
	if err != nil {
		if errors.Is(err, clients.ErrChainNotFound) {
			return nil, fmt.Errorf("chain %d: %w", chainID, ErrChainNotConfigured)
		}
		return nil, err
	}
	return s.registry.EVMManager(*endpoint), nil
}

// SubmitTransfer runs the full submission pipeline. On confirmation timeout
// it returns both a response (the transaction was submitted) and
// ErrConfirmationTimeout, because the outcome is genuinely unknown.
func (s *TransferService) SubmitTransfer(ctx context.Context, req *dto.TransferRequest) (*dto.TransferResponse, error) {
	if !common.IsHexAddress(req.To) {
		return nil, fmt.Errorf("invalid recipient address %q", req.To)
	}
	to := common.HexToAddress(req.To)

	amount, ok := new(big.Int).SetString(req.AmountWei, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", req.AmountWei)
	}

	workflowID := ""
	userID := req.UserID
	orgID := req.OrganizationID
	trigger := TriggerType(req.TriggerType)

	if req.ExecutionID != "" {
		ec, err := s.execCtx.GetContext(ctx, req.ExecutionID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve execution context: %w", err)
		}
		workflowID = ec.WorkflowID
		userID = ec.UserID
		orgID = ec.OrganizationID
		if trigger == "" {
			trigger = TriggerType(ec.TriggerType)
		}
	}
	if trigger != TriggerScheduled && trigger != TriggerManual {
		trigger = TriggerManual
	}

	endpoint, err := s.chainCfg.ResolveRPCConfig(ctx, req.ChainID, userID)
	if err != nil {
		if errors.Is(err, clients.ErrChainNotFound) {
			return nil, fmt.Errorf("chain %d: %w", req.ChainID, ErrChainNotConfigured)
		}
		return nil, err
	}
	mgr := s.registry.EVMManager(*endpoint)

	sig, err := s.signers.ForOrganization(orgID)
	if err != nil {
		return nil, err
	}
	wallet := sig.Address()

	log := s.log.WithFields(logrus.Fields{
		"chain_id":     req.ChainID,
		"wallet":       wallet.Hex(),
		"execution_id": req.ExecutionID,
		"rpc_source":   endpoint.Source,
	})

	// Gas simulation runs before the nonce session opens. A transaction that
	// would revert is rejected here without consuming a nonce or holding the
	// wallet lock.
	msg := ethereum.CallMsg{From: wallet, To: &to, Value: amount}
	var gasParams *GasParams
	err = mgr.ExecuteWithFailover(ctx, func(ctx context.Context, client *ethclient.Client) error {
		params, err := s.gas.GetGasConfig(ctx, client, trigger, msg, req.ChainID, GasOverrides{
			Multiplier: req.GasMultiplier,
			HardLimit:  req.GasHardLimit,
		})
		if err != nil {
			var simErr *SimulationError
			if errors.As(err, &simErr) {
				return MarkPermanent(err)
			}
			return err
		}
		gasParams = params
		return nil
	})
	if err != nil {
		return nil, err
	}

	var result *dto.TransferResponse
	err = s.sessions.WithNonceSession(ctx, failoverNonceReader{mgr: mgr}, wallet.Hex(), req.ChainID, func(session *NonceSession) error {
		nonce, err := session.NextNonce(ctx)
		if err != nil {
			return err
		}

		chainID := new(big.Int).SetUint64(req.ChainID)
		var tx *types.Transaction
		if gasParams.Dynamic {
			tx = types.NewTx(&types.DynamicFeeTx{
				ChainID:   chainID,
				Nonce:     nonce,
				GasTipCap: gasParams.PriorityFeePerGas,
				GasFeeCap: gasParams.FeePerGas,
				Gas:       gasParams.Limit,
				To:        &to,
				Value:     amount,
			})
		} else {
			tx = types.NewTx(&types.LegacyTx{
				Nonce:    nonce,
				GasPrice: gasParams.FeePerGas,
				Gas:      gasParams.Limit,
				To:       &to,
				Value:    amount,
			})
		}

		signed, err := sig.SignTx(tx, chainID)
		if err != nil {
			return fmt.Errorf("failed to sign transaction: %w", err)
		}
		txHash := signed.Hash().Hex()

		submittedAt := time.Now()
		err = mgr.ExecuteWithFailover(ctx, func(ctx context.Context, client *ethclient.Client) error {
			return client.SendTransaction(ctx, signed)
		})
		if err != nil {
			// Nothing was recorded, so the nonce stays reusable.
			return fmt.Errorf("failed to submit transaction: %w", err)
		}

		// Durability point: persist the used nonce before waiting, so a
		// crash during confirmation cannot lead to nonce reuse.
		if err := session.RecordTransaction(ctx, txHash, workflowID, req.ExecutionID, gasParams); err != nil {
			log.WithError(err).WithField("tx_hash", txHash).
				Error("transaction submitted but ledger write failed")
			return err
		}

		result = &dto.TransferResponse{
			TxHash:      txHash,
			Wallet:      wallet.Hex(),
			Nonce:       nonce,
			ExplorerURL: s.explorerTxURL(req.ChainID, txHash),
		}
		log.WithFields(logrus.Fields{"tx_hash": txHash, "nonce": nonce}).Info("transaction submitted")

		receipt, err := WaitForReceipt(ctx, failoverReceiptReader{mgr: mgr}, signed.Hash(), s.cfg.Session.ConfirmationTimeout(), log)
		if err != nil {
			if errors.Is(err, ErrConfirmationTimeout) {
				log.WithField("tx_hash", txHash).Warn("confirmation timed out, leaving transaction pending")
			}
			return err
		}

		metrics.ConfirmationDuration.
			WithLabelValues(strconv.FormatUint(req.ChainID, 10)).
			Observe(time.Since(submittedAt).Seconds())

		block := receipt.BlockNumber.Uint64()
		if receipt.Status != types.ReceiptStatusSuccessful {
			if err := session.FailTransaction(ctx, txHash, "transaction reverted"); err != nil {
				log.WithError(err).Error("failed to record revert")
			}
			return fmt.Errorf("%s: %w", txHash, ErrTransactionReverted)
		}

		if err := session.ConfirmTransaction(ctx, txHash, &block); err != nil {
			log.WithError(err).Error("failed to record confirmation")
		}
		result.Confirmed = true
		result.BlockNumber = &block
		log.WithFields(logrus.Fields{"tx_hash": txHash, "block": block}).Info("transaction confirmed")
		return nil
	})

	// On timeout the caller still gets the submission details.
	if err != nil && !errors.Is(err, ErrConfirmationTimeout) {
		return nil, err
	}
	return result, err
}

// GetBalance reads a native-token balance, routed through the chain's
// connection manager so balance reads share failover state with
// submissions.
func (s *TransferService) GetBalance(ctx context.Context, chainID uint64, address string) (*dto.BalanceResponse, error) {
	chain, err := config.GetChainConfig(chainID)
	if err != nil {
		return nil, fmt.Errorf("chain %d: %w", chainID, ErrChainNotConfigured)
	}
	endpoint, err := s.chainCfg.ResolveRPCConfig(ctx, chainID, "")
	if err != nil {
		if errors.Is(err, clients.ErrChainNotFound) {
			return nil, fmt.Errorf("chain %d: %w", chainID, ErrChainNotConfigured)
		}
		return nil, err
	}

	resp := &dto.BalanceResponse{ChainID: chainID, Address: address}

	if chain.Family == config.ChainFamilySolana {
		pubkey, err := solana.PublicKeyFromBase58(address)
		if err != nil {
			return nil, fmt.Errorf("invalid address %q: %w", address, err)
		}
		mgr := s.registry.SolanaManager(*endpoint)
		err = mgr.ExecuteWithFailover(ctx, func(ctx context.Context, client *solanarpc.Client) error {
			out, err := client.GetBalance(ctx, pubkey, solanarpc.CommitmentFinalized)
			if err != nil {
				return err
			}
			resp.Balance = strconv.FormatUint(out.Value, 10)
			return nil
		})
		if err != nil {
			return nil, err
		}
		resp.Unit = "lamports"
		return resp, nil
	}

	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid address %q", address)
	}
	mgr := s.registry.EVMManager(*endpoint)
	err = mgr.ExecuteWithFailover(ctx, func(ctx context.Context, client *ethclient.Client) error {
		balance, err := client.BalanceAt(ctx, common.HexToAddress(address), nil)
		if err != nil {
			return err
		}
		resp.Balance = balance.String()
		return nil
	})
	if err != nil {
		return nil, err
	}
	resp.Unit = "wei"
	return resp, nil
}

func (s *TransferService) explorerTxURL(chainID uint64, txHash string) string {
	chain, err := config.GetChainConfig(chainID)
	if err != nil || chain.ExplorerURL == "" {
		return ""
	}
	return chain.ExplorerURL + "/tx/" + txHash
}

// failoverNonceReader routes nonce reads through the connection manager.
type failoverNonceReader struct {
	mgr *EVMConnectionManager
}

func (r failoverNonceReader) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var nonce uint64
	err := r.mgr.ExecuteWithFailover(ctx, func(ctx context.Context, client *ethclient.Client) error {
		n, err := client.PendingNonceAt(ctx, account)
		if err != nil {
			return err
		}
		nonce = n
		return nil
	})
	return nonce, err
}

// failoverReceiptReader routes receipt polls through the connection
// manager. NotFound is the normal still-pending answer and must not count
// as an endpoint failure.
type failoverReceiptReader struct {
	mgr *EVMConnectionManager
}

func (r failoverReceiptReader) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := r.mgr.ExecuteWithFailover(ctx, func(ctx context.Context, client *ethclient.Client) error {
		rec, err := client.TransactionReceipt(ctx, txHash)
		if err != nil {
			if errors.Is(err, ethereum.NotFound) {
				return MarkPermanent(err)
			}
			return err
		}
		receipt = rec
		return nil
	})
	return receipt, err
}
