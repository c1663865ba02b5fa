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

// The job worker serves all four queues: rule evaluation, analytics runs,
// report generation and notification fan-out.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/factoryops/factoryops/pkg/analytics"
	"github.com/factoryops/factoryops/pkg/config"
	"github.com/factoryops/factoryops/pkg/log"
	"github.com/factoryops/factoryops/pkg/metrics"
	"github.com/factoryops/factoryops/pkg/notification"
	"github.com/factoryops/factoryops/pkg/queue"
	"github.com/factoryops/factoryops/pkg/reporting"
	"github.com/factoryops/factoryops/pkg/rules"
	"github.com/factoryops/factoryops/pkg/storage/objectstore"
	"github.com/factoryops/factoryops/pkg/storage/postgres"
	"github.com/factoryops/factoryops/pkg/storage/timeseries"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "worker:", err)
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
		ServiceName: "worker",
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

	influx := timeseries.New(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket)
	defer influx.Close()

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

	factories := postgres.NewFactoryRepository(db)
	devices := postgres.NewDeviceRepository(db)
	ruleRepo := postgres.NewRuleRepository(db)
	alerts := postgres.NewAlertRepository(db)
	users := postgres.NewUserRepository(db)
	jobs := postgres.NewAnalyticsJobRepository(db)
	reports := postgres.NewReportRepository(db)

	evaluator := rules.NewEvaluator(ruleRepo, alerts, queueClient, logger)
	ruleWorker := rules.NewWorker(factories, evaluator, logger)

	analyticsWorker := analytics.NewWorker(jobs, influx, artifacts, logger)

	aggregator := reporting.NewAggregator(devices, alerts, influx, jobs, artifacts, logger)
	reportWorker := reporting.NewWorker(reports, aggregator, artifacts, logger)

	notifyWorker := notification.NewWorker(alerts, ruleRepo, devices, users,
		emailTransport(cfg, logger), whatsappTransport(cfg), logger)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskEvaluateRules, ruleWorker.HandleTask)
	mux.HandleFunc(queue.TaskRunAnalyticsJob, analyticsWorker.HandleTask)
	mux.HandleFunc(queue.TaskGenerateReport, reportWorker.HandleTask)
	mux.HandleFunc(queue.TaskSendNotifications, notifyWorker.HandleTask)

	srv, err := queue.NewServer(cfg.QueueRedisURL, cfg.WorkerConcurrency, logger)
	if err != nil {
		return err
	}

	go serveMetrics(cfg.MetricsAddr, logger)

	if err := srv.Start(mux); err != nil {
		return fmt.Errorf("starting queue server: %w", err)
	}
	logger.Info("worker.started", zap.Int("concurrency", cfg.WorkerConcurrency))

	<-ctx.Done()
	srv.Shutdown()
	logger.Info("worker.stopped")
	return nil
}

// emailTransport returns nil when SMTP is not configured; the notification
// worker skips nil transports.
func emailTransport(cfg *config.Config, logger *zap.Logger) notification.Transport {
	if cfg.SMTPHost == "" {
		logger.Warn("notification.email_disabled")
		return nil
	}
	t, err := notification.NewEmailTransport(notification.EmailOptions{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
	if err != nil {
		logger.Error("notification.email_setup_failed", zap.Error(err))
		return nil
	}
	return t
}

func whatsappTransport(cfg *config.Config) notification.Transport {
	if cfg.WhatsAppURL == "" {
		return nil
	}
	return notification.NewWhatsAppTransport(notification.WhatsAppOptions{
		APIURL: cfg.WhatsAppURL,
		From:   cfg.WhatsAppFrom,
	})
}

func serveMetrics(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics.listener_failed", zap.Error(err))
	}
}
