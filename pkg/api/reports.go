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

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/factoryops/factoryops/pkg/models"
	"github.com/factoryops/factoryops/pkg/storage/objectstore"
)

type createReportRequest struct {
	Title            *string             `json:"title" validate:"omitempty,max=200"`
	DeviceIDs        []int64             `json:"device_ids" validate:"required,min=1,dive,gt=0"`
	DateRangeStart   time.Time           `json:"date_range_start" validate:"required"`
	DateRangeEnd     time.Time           `json:"date_range_end" validate:"required,gtfield=DateRangeStart"`
	Format           models.ReportFormat `json:"format" validate:"required,oneof=pdf excel json"`
	IncludeAnalytics bool                `json:"include_analytics"`
	AnalyticsJobID   *string             `json:"analytics_job_id" validate:"omitempty,uuid4"`
}

// createReport persists a pending report request and schedules generation.
func (s *Server) createReport(w http.ResponseWriter, r *http.Request) {
	var req createReportRequest
	if err := s.decodeValid(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	sc := requestScope(r.Context())
	report := &models.Report{
		FactoryID:        sc.FactoryID,
		CreatedBy:        sc.UserID,
		Title:            req.Title,
		DeviceIDs:        models.Int64List(req.DeviceIDs),
		DateRangeStart:   req.DateRangeStart,
		DateRangeEnd:     req.DateRangeEnd,
		Format:           req.Format,
		IncludeAnalytics: req.IncludeAnalytics,
		AnalyticsJobID:   req.AnalyticsJobID,
	}
	if err := s.reports.Create(r.Context(), report); err != nil {
		s.respondStoreError(w, err, "report_create")
		return
	}
	if err := s.queue.EnqueueReport(r.Context(), report.ID); err != nil {
		s.logger.Error("api.report_enqueue_failed",
			zap.String("report_id", report.ID), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to schedule report")
		return
	}

	s.logger.Info("api.report_created",
		zap.Int64("factory_id", sc.FactoryID),
		zap.String("report_id", report.ID),
		zap.String("format", string(report.Format)))
	s.respondJSON(w, http.StatusAccepted, map[string]any{
		"report_id": report.ID,
		"status":    report.Status,
	})
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	sc := requestScope(r.Context())
	report, err := s.reports.Get(r.Context(), sc.FactoryID, chi.URLParam(r, "reportID"))
	if err != nil {
		s.respondStoreError(w, err, "report_get")
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	sc := requestScope(r.Context())
	reports, err := s.reports.List(r.Context(), sc.FactoryID, listLimit(r))
	if err != nil {
		s.respondStoreError(w, err, "report_list")
		return
	}
	if reports == nil {
		reports = []models.Report{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

// downloadReport redirects to a fresh presigned artifact URL. A report that
// has not completed yet answers 400 with its current status so clients can
// keep polling.
func (s *Server) downloadReport(w http.ResponseWriter, r *http.Request) {
	sc := requestScope(r.Context())
	report, err := s.reports.Get(r.Context(), sc.FactoryID, chi.URLParam(r, "reportID"))
	if err != nil {
		s.respondStoreError(w, err, "report_download")
		return
	}
	if report.Status != models.StatusComplete {
		s.respondJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "report is not ready",
			"status": report.Status,
		})
		return
	}

	key := objectstore.ReportKey(report.FactoryID, report.ID, report.Format.Ext())
	url, err := s.presign.PresignedURL(r.Context(), key, objectstore.ReportURLTTL)
	if err != nil {
		s.logger.Error("api.report_presign_failed",
			zap.String("report_id", report.ID), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to sign download link")
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func (s *Server) deleteReport(w http.ResponseWriter, r *http.Request) {
	sc := requestScope(r.Context())
	reportID := chi.URLParam(r, "reportID")
	if err := s.reports.Delete(r.Context(), sc.FactoryID, reportID); err != nil {
		s.respondStoreError(w, err, "report_delete")
		return
	}
	s.logger.Info("api.report_deleted",
		zap.Int64("factory_id", sc.FactoryID),
		zap.String("report_id", reportID))
	w.WriteHeader(http.StatusNoContent)
}
