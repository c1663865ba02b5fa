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

// The ingest worker subscribes to the telemetry topic and runs every broker
// message through the per-message pipeline.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/factoryops/factoryops/pkg/config"
	"github.com/factoryops/factoryops/pkg/ingest"
	"github.com/factoryops/factoryops/pkg/log"
	"github.com/factoryops/factoryops/pkg/metrics"
	"github.com/factoryops/factoryops/pkg/queue"
	"github.com/factoryops/factoryops/pkg/storage/cache"
	"github.com/factoryops/factoryops/pkg/storage/postgres"
	"github.com/factoryops/factoryops/pkg/storage/timeseries"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "ingest:", err)
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
		ServiceName: "ingest",
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

	redisOpt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpt)
	defer rdb.Close()

	influx := timeseries.New(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket)
	defer influx.Close()

	queueClient, err := queue.NewClient(cfg.QueueRedisURL)
	if err != nil {
		return err
	}
	defer queueClient.Close()

	factories := postgres.NewFactoryRepository(db)
	devices := postgres.NewDeviceRepository(db)
	parameters := postgres.NewParameterRepository(db)
	resolver := cache.New(rdb, factories, devices, logger)

	pipeline := ingest.NewPipeline(resolver, parameters, influx, devices, queueClient, logger)
	subscriber := ingest.NewSubscriber(ingest.SubscriberOptions{
		Host:     cfg.MQTTHost,
		Port:     cfg.MQTTPort,
		Username: cfg.MQTTUsername,
		Password: cfg.MQTTPassword,
		ClientID: "factoryops-ingest",
	}, pipeline, logger)

	go serveMetrics(cfg.MetricsAddr, logger)

	logger.Info("ingest.starting",
		zap.String("broker", fmt.Sprintf("%s:%d", cfg.MQTTHost, cfg.MQTTPort)))
	return subscriber.Start(ctx)
}

func serveMetrics(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics.listener_failed", zap.Error(err))
	}
}
