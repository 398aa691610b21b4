package handlers

import (
	"net/http"

	"tx-engine/internal/services"

	"github.com/gin-gonic/gin"
)

// DiagnosticsHandler exposes operator-facing views of connection manager
// state and the transaction ledger.
type DiagnosticsHandler struct {
	registry   *services.ConnectionRegistry
	reconciler *services.ReconciliationService
	ledger     *services.LedgerQueryService
}

func NewDiagnosticsHandler(registry *services.ConnectionRegistry, reconciler *services.ReconciliationService, ledger *services.LedgerQueryService) *DiagnosticsHandler {
	return &DiagnosticsHandler{registry: registry, reconciler: reconciler, ledger: ledger}
}

// Connections handles GET /api/v1/diagnostics/connections. Per endpoint
// pair: which endpoint is preferred, attempt/failure counters, failover
// count and time.
func (h *DiagnosticsHandler) Connections(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": h.registry.Snapshot()})
}

// TriggerSweep handles POST /api/v1/diagnostics/reconcile, running one
// reconciliation pass on demand.
func (h *DiagnosticsHandler) TriggerSweep(c *gin.Context) {
	h.reconciler.Sweep(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetTransaction handles GET /api/v1/transactions/:hash.
func (h *DiagnosticsHandler) GetTransaction(c *gin.Context) {
	tx, err := h.ledger.GetByHash(c.Request.Context(), c.Param("hash"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "transaction not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": tx})
}
