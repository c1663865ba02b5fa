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

// Package api is the HTTP surface for the asynchronous job lifecycle:
// creating analytics jobs and reports, polling their status, downloading
// artifacts and cancelling pending work. Authentication lives in front of
// this service; the gateway forwards the tenant and user scope as headers.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/factoryops/factoryops/pkg/metrics"
	"github.com/factoryops/factoryops/pkg/models"
)

// Scope headers set by the authenticating gateway.
const (
	HeaderFactoryID = "X-Factory-ID"
	HeaderUserID    = "X-User-ID"
)

// List sizing.
const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// AnalyticsJobStore is the durable analytics job record.
type AnalyticsJobStore interface {
	Create(ctx context.Context, job *models.AnalyticsJob) error
	Get(ctx context.Context, factoryID int64, jobID string) (*models.AnalyticsJob, error)
	List(ctx context.Context, factoryID int64, limit int) ([]models.AnalyticsJob, error)
	Delete(ctx context.Context, factoryID int64, jobID string) error
}

// ReportStore is the durable report record.
type ReportStore interface {
	Create(ctx context.Context, report *models.Report) error
	Get(ctx context.Context, factoryID int64, reportID string) (*models.Report, error)
	List(ctx context.Context, factoryID int64, limit int) ([]models.Report, error)
	Delete(ctx context.Context, factoryID int64, reportID string) error
}

// Enqueuer schedules the background execution of a created row.
type Enqueuer interface {
	EnqueueAnalyticsJob(ctx context.Context, jobID string) error
	EnqueueReport(ctx context.Context, reportID string) error
}

// Presigner mints download links for finished report artifacts.
type Presigner interface {
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Server bundles the handlers and their dependencies.
type Server struct {
	jobs     AnalyticsJobStore
	reports  ReportStore
	queue    Enqueuer
	presign  Presigner
	validate *validator.Validate
	logger   *zap.Logger
}

// NewServer wires the API server.
func NewServer(
	jobs AnalyticsJobStore,
	reports ReportStore,
	queue Enqueuer,
	presign Presigner,
	logger *zap.Logger,
) *Server {
	return &Server{
		jobs:     jobs,
		reports:  reports,
		queue:    queue,
		presign:  presign,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// Router builds the chi router for the service.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.HTTPMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", HeaderFactoryID, HeaderUserID},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requireScope)

		r.Route("/analytics/jobs", func(r chi.Router) {
			r.Post("/", s.createAnalyticsJob)
			r.Get("/", s.listAnalyticsJobs)
			r.Get("/{jobID}", s.getAnalyticsJob)
			r.Delete("/{jobID}", s.deleteAnalyticsJob)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Post("/", s.createReport)
			r.Get("/", s.listReports)
			r.Get("/{reportID}", s.getReport)
			r.Get("/{reportID}/download", s.downloadReport)
			r.Delete("/{reportID}", s.deleteReport)
		})
	})

	return r
}

type scopeKey struct{}

// scope is the tenant and user identity forwarded by the gateway.
type scope struct {
	FactoryID int64
	UserID    int64
}

// requireScope rejects requests the gateway did not annotate.
func (s *Server) requireScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		factoryID, err := strconv.ParseInt(r.Header.Get(HeaderFactoryID), 10, 64)
		if err != nil || factoryID <= 0 {
			s.respondError(w, http.StatusUnauthorized, "missing factory scope")
			return
		}
		userID, err := strconv.ParseInt(r.Header.Get(HeaderUserID), 10, 64)
		if err != nil || userID <= 0 {
			s.respondError(w, http.StatusUnauthorized, "missing user scope")
			return
		}
		ctx := context.WithValue(r.Context(), scopeKey{}, scope{
			FactoryID: factoryID,
			UserID:    userID,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestScope(ctx context.Context) scope {
	sc, _ := ctx.Value(scopeKey{}).(scope)
	return sc
}

// listLimit parses the optional ?limit= query, clamped to maxListLimit.
func listLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}
