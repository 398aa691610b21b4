// Package app assembles the service graph.
package app

import (
	"tx-engine/internal/clients"
	"tx-engine/internal/config"
	"tx-engine/internal/events"
	"tx-engine/internal/handlers"
	"tx-engine/internal/repository"
	"tx-engine/internal/services"
	"tx-engine/internal/signer"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ServiceContainer holds every constructed service and handler. Built once
// at startup; all fields are safe for concurrent use.
type ServiceContainer struct {
	Log       *logrus.Logger
	Publisher *events.Publisher

	Registry   *services.ConnectionRegistry
	Transfers  *services.TransferService
	Reconciler *services.ReconciliationService

	TransferHandler    *handlers.TransferHandler
	DiagnosticsHandler *handlers.DiagnosticsHandler
}

// NewServiceContainer wires repositories, clients, services and handlers.
func NewServiceContainer(cfg *config.Config, database *gorm.DB, log *logrus.Logger) (*ServiceContainer, error) {
	var publisher *events.Publisher
	if cfg.NATS.URL != "" {
		p, err := events.NewPublisher(cfg.NATS, log)
		if err != nil {
			// The bus is a notification channel; submissions must not depend
			// on it being reachable at startup.
			log.WithError(err).Warn("NATS unavailable, events disabled")
		} else {
			publisher = p
		}
	}

	lockRepo := repository.NewWalletLockRepository(database)
	ledgerRepo := repository.NewPendingTransactionRepository(database)

	chainCfgClient := clients.NewChainConfigClient(cfg.ChainConfigService, log)
	execCtxClient := clients.NewExecutionContextClient(cfg.ExecutionContext, log)

	signerProvider, err := signer.NewProvider(cfg.Signers)
	if err != nil {
		return nil, err
	}

	observer := &services.MetricsObserver{Publisher: publisher}
	registry := services.NewConnectionRegistry(cfg.RPC, observer, log)
	gasStrategy := services.NewGasStrategy(cfg.Gas, log)
	sessionManager := services.NewSessionManager(lockRepo, ledgerRepo, cfg.Session, publisher, log)

	transferService := services.NewTransferService(
		registry, gasStrategy, sessionManager,
		chainCfgClient, execCtxClient, signerProvider,
		cfg, log,
	)

	reconciler := services.NewReconciliationService(
		ledgerRepo, lockRepo, transferService, cfg.Session, publisher, log,
	)

	ledgerQueries := services.NewLedgerQueryService(ledgerRepo)

	return &ServiceContainer{
		Log:                log,
		Publisher:          publisher,
		Registry:           registry,
		Transfers:          transferService,
		Reconciler:         reconciler,
		TransferHandler:    handlers.NewTransferHandler(transferService, log),
		DiagnosticsHandler: handlers.NewDiagnosticsHandler(registry, reconciler, ledgerQueries),
	}, nil
}

// Shutdown stops background workers and drains the event bus.
func (c *ServiceContainer) Shutdown() {
	c.Reconciler.Stop()
	c.Publisher.Close()
}
