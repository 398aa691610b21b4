package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tx-engine/internal/app"
	"tx-engine/internal/config"
	"tx-engine/internal/db"
	"tx-engine/internal/router"

	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		log.SetLevel(level)
	}

	if err := config.LoadConfig(*configPath); err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	if err := db.InitDB(log); err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}

	container, err := app.NewServiceContainer(config.AppConfig, db.DB, log)
	if err != nil {
		log.WithError(err).Fatal("failed to build service container")
	}
	container.Reconciler.Start()

	engine := router.New(container, config.AppConfig)
	addr := fmt.Sprintf("%s:%d", config.AppConfig.Server.Host, config.AppConfig.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", addr).Info("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server shutdown failed")
	}
	container.Shutdown()
	log.Info("stopped")
}
