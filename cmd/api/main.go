/*
Copyright 2026 The FactoryOps Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// The API server owns the asynchronous job lifecycle endpoints.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/factoryops/factoryops/pkg/api"
	"github.com/factoryops/factoryops/pkg/config"
	"github.com/factoryops/factoryops/pkg/log"
	"github.com/factoryops/factoryops/pkg/metrics"
	"github.com/factoryops/factoryops/pkg/queue"
	"github.com/factoryops/factoryops/pkg/storage/objectstore"
	"github.com/factoryops/factoryops/pkg/storage/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "api:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := log.New(log.Options{
		Development: cfg.Env == "development",
		Level:       cfg.LogLevel,
		ServiceName: "api",
	})
	defer log.Sync(logger)

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	artifacts, err := objectstore.New(ctx, objectstore.Options{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		return err
	}

	queueClient, err := queue.NewClient(cfg.QueueRedisURL)
	if err != nil {
		return err
	}
	defer queueClient.Close()

	server := api.NewServer(
		postgres.NewAnalyticsJobRepository(db),
		postgres.NewReportRepository(db),
		queueClient,
		artifacts,
		logger,
	)

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go serveMetrics(cfg.MetricsAddr, logger)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("api.shutdown_failed", zap.Error(err))
		}
	}()

	logger.Info("api.listening", zap.String("addr", cfg.HTTPAddr))
	if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("api.stopped")
	return nil
}

func serveMetrics(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics.listener_failed", zap.Error(err))
	}
}
