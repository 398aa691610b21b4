// Package handlers translates HTTP requests into service calls and service
// errors into API responses.
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"tx-engine/internal/dto"
	"tx-engine/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type TransferHandler struct {
	transfers *services.TransferService
	log       *logrus.Logger
}

func NewTransferHandler(transfers *services.TransferService, log *logrus.Logger) *TransferHandler {
	return &TransferHandler{transfers: transfers, log: log}
}

// Submit handles POST /api/v1/actions/transfer.
func (h *TransferHandler) Submit(c *gin.Context) {
	var req dto.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	result, err := h.transfers.SubmitTransfer(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, services.ErrConfirmationTimeout) && result != nil {
			// Submitted but unconfirmed: the transaction may still land.
			// Reconciliation will resolve it.
			c.JSON(http.StatusAccepted, gin.H{
				"success": true,
				"status":  "submitted",
				"data":    result,
			})
			return
		}
		h.log.WithError(err).WithField("chain_id", req.ChainID).Warn("transfer rejected")
		c.JSON(statusFor(err), gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "status": "confirmed", "data": result})
}

// GetBalance handles GET /api/v1/chains/:chainId/balance/:address.
func (h *TransferHandler) GetBalance(c *gin.Context) {
	chainID, err := strconv.ParseUint(c.Param("chainId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid chain id"})
		return
	}

	result, err := h.transfers.GetBalance(c.Request.Context(), chainID, c.Param("address"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
}

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) int {
	var simErr *services.SimulationError
	var allErr *services.AllEndpointsError
	switch {
	case errors.Is(err, services.ErrChainNotConfigured):
		return http.StatusBadRequest
	case errors.As(err, &simErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrLockContention):
		return http.StatusConflict
	case errors.Is(err, services.ErrTransactionReverted):
		return http.StatusUnprocessableEntity
	case errors.As(err, &allErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
