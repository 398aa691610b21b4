// Package router wires HTTP routes to handlers.
package router

import (
	"net/http"

	"tx-engine/internal/app"
	"tx-engine/internal/config"
	"tx-engine/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// New builds the gin engine with all routes registered.
func New(container *app.ServiceContainer, cfg *config.Config) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api/v1")
	api.Use(middleware.ServiceAuthMiddleware(cfg.Auth, container.Log))
	{
		api.POST("/actions/transfer", container.TransferHandler.Submit)
		api.GET("/chains/:chainId/balance/:address", container.TransferHandler.GetBalance)
		api.GET("/transactions/:hash", container.DiagnosticsHandler.GetTransaction)

		diagnostics := api.Group("/diagnostics")
		{
			diagnostics.GET("/connections", container.DiagnosticsHandler.Connections)
			diagnostics.POST("/reconcile", container.DiagnosticsHandler.TriggerSweep)
		}
	}

	return engine
}
