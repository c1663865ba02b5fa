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

package postgres_test

import (
	"context"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/factoryops/factoryops/pkg/models"
	"github.com/factoryops/factoryops/pkg/storage/postgres"
)

var _ = Describe("AnalyticsJobRepository", func() {
	var (
		db   *sqlx.DB
		mock sqlmock.Sqlmock
		repo *postgres.AnalyticsJobRepository
		ctx  context.Context
	)

	const jobID = "5f0c43a2-13c7-4be1-9c32-57faef4f0b1a"

	jobRows := func(status models.JobStatus) *sqlmock.Rows {
		now := time.Now()
		return sqlmock.NewRows([]string{
			"id", "factory_id", "created_by", "job_type", "device_ids",
			"date_range_start", "date_range_end", "status", "result_url",
			"error_message", "started_at", "completed_at", "created_at",
		}).AddRow(jobID, int64(1), int64(9), "anomaly", []byte(`[4,5]`),
			now.Add(-24*time.Hour), now, status, nil, nil, nil, nil, now)
	}

	BeforeEach(func() {
		db, mock = newMockDB()
		repo = postgres.NewAnalyticsJobRepository(db)
		ctx = context.Background()
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
		mock.ExpectClose()
		Expect(db.Close()).To(Succeed())
	})

	Describe("Create", func() {
		It("assigns a uuid and the pending status", func() {
			mock.ExpectExec(`INSERT INTO analytics_jobs`).
				WillReturnResult(sqlmock.NewResult(0, 1))

			job := &models.AnalyticsJob{
				FactoryID: 1,
				CreatedBy: 9,
				JobType:   models.JobTypeAnomaly,
				DeviceIDs: models.Int64List{4, 5},
			}
			Expect(repo.Create(ctx, job)).To(Succeed())
			Expect(job.ID).NotTo(BeEmpty())
			Expect(job.Status).To(Equal(models.StatusPending))
		})
	})

	Describe("Delete", func() {
		It("removes a pending job", func() {
			mock.ExpectExec(`DELETE FROM analytics_jobs`).
				WithArgs(int64(1), jobID).
				WillReturnResult(sqlmock.NewResult(0, 1))

			Expect(repo.Delete(ctx, 1, jobID)).To(Succeed())
		})

		It("refuses to remove a running job", func() {
			mock.ExpectExec(`DELETE FROM analytics_jobs`).
				WithArgs(int64(1), jobID).
				WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery(`SELECT .+ FROM analytics_jobs`).
				WithArgs(int64(1), jobID).
				WillReturnRows(jobRows(models.StatusRunning))

			err := repo.Delete(ctx, 1, jobID)
			Expect(err).To(MatchError(postgres.ErrNotDeletable))
		})

		It("reports a missing job as not found", func() {
			emptyRows := sqlmock.NewRows([]string{
				"id", "factory_id", "created_by", "job_type", "device_ids",
				"date_range_start", "date_range_end", "status", "result_url",
				"error_message", "started_at", "completed_at", "created_at",
			})
			mock.ExpectExec(`DELETE FROM analytics_jobs`).
				WithArgs(int64(1), jobID).
				WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery(`SELECT .+ FROM analytics_jobs`).
				WithArgs(int64(1), jobID).
				WillReturnRows(emptyRows)

			err := repo.Delete(ctx, 1, jobID)
			Expect(err).To(MatchError(postgres.ErrNotFound))
		})
	})
})
