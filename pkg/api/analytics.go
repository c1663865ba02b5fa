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
)

type createAnalyticsJobRequest struct {
	JobType        models.JobType `json:"job_type" validate:"required,oneof=anomaly failure_prediction energy_forecast ai_copilot"`
	DeviceIDs      []int64        `json:"device_ids" validate:"required,min=1,dive,gt=0"`
	DateRangeStart time.Time      `json:"date_range_start" validate:"required"`
	DateRangeEnd   time.Time      `json:"date_range_end" validate:"required,gtfield=DateRangeStart"`
}

// createAnalyticsJob persists a pending job and schedules its execution.
// The 202 body carries the id the client polls with.
func (s *Server) createAnalyticsJob(w http.ResponseWriter, r *http.Request) {
	var req createAnalyticsJobRequest
	if err := s.decodeValid(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	sc := requestScope(r.Context())
	job := &models.AnalyticsJob{
		FactoryID:      sc.FactoryID,
		CreatedBy:      sc.UserID,
		JobType:        req.JobType,
		DeviceIDs:      models.Int64List(req.DeviceIDs),
		DateRangeStart: req.DateRangeStart,
		DateRangeEnd:   req.DateRangeEnd,
	}
	if err := s.jobs.Create(r.Context(), job); err != nil {
		s.respondStoreError(w, err, "analytics_job_create")
		return
	}
	if err := s.queue.EnqueueAnalyticsJob(r.Context(), job.ID); err != nil {
		s.logger.Error("api.analytics_job_enqueue_failed",
			zap.String("job_id", job.ID), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to schedule job")
		return
	}

	s.logger.Info("api.analytics_job_created",
		zap.Int64("factory_id", sc.FactoryID),
		zap.String("job_id", job.ID),
		zap.String("job_type", string(job.JobType)))
	s.respondJSON(w, http.StatusAccepted, map[string]any{
		"job_id": job.ID,
		"status": job.Status,
	})
}

func (s *Server) getAnalyticsJob(w http.ResponseWriter, r *http.Request) {
	sc := requestScope(r.Context())
	job, err := s.jobs.Get(r.Context(), sc.FactoryID, chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondStoreError(w, err, "analytics_job_get")
		return
	}
	s.respondJSON(w, http.StatusOK, job)
}

func (s *Server) listAnalyticsJobs(w http.ResponseWriter, r *http.Request) {
	sc := requestScope(r.Context())
	jobs, err := s.jobs.List(r.Context(), sc.FactoryID, listLimit(r))
	if err != nil {
		s.respondStoreError(w, err, "analytics_job_list")
		return
	}
	if jobs == nil {
		jobs = []models.AnalyticsJob{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// deleteAnalyticsJob cancels a job that has not started (or has failed).
// Running and complete jobs are immutable history.
func (s *Server) deleteAnalyticsJob(w http.ResponseWriter, r *http.Request) {
	sc := requestScope(r.Context())
	jobID := chi.URLParam(r, "jobID")
	if err := s.jobs.Delete(r.Context(), sc.FactoryID, jobID); err != nil {
		s.respondStoreError(w, err, "analytics_job_delete")
		return
	}
	s.logger.Info("api.analytics_job_deleted",
		zap.Int64("factory_id", sc.FactoryID),
		zap.String("job_id", jobID))
	w.WriteHeader(http.StatusNoContent)
}
