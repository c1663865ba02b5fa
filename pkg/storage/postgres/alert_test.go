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

var _ = Describe("AlertRepository", func() {
	var (
		db   *sqlx.DB
		mock sqlmock.Sqlmock
		repo *postgres.AlertRepository
		ctx  context.Context
	)

	BeforeEach(func() {
		db, mock = newMockDB()
		repo = postgres.NewAlertRepository(db)
		ctx = context.Background()
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
		mock.ExpectClose()
		Expect(db.Close()).To(Succeed())
	})

	It("inserts an alert and returns the assigned id", func() {
		mock.ExpectQuery(`INSERT INTO alerts`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(321)))

		alert := &models.Alert{
			FactoryID:   1,
			RuleID:      2,
			DeviceID:    3,
			TriggeredAt: time.Now(),
			Severity:    models.SeverityCritical,
			Message:     "[Overload] current (42) gt 40",
		}
		id, err := repo.CreateAlert(ctx, alert)
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal(int64(321)))
		Expect(alert.ID).To(Equal(int64(321)))
	})

	It("returns a nil cooldown for a rule that never fired", func() {
		mock.ExpectQuery(`SELECT rule_id, device_id, last_triggered`).
			WithArgs(int64(2), int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"rule_id", "device_id", "last_triggered"}))

		cooldown, err := repo.GetCooldown(ctx, 2, 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(cooldown).To(BeNil())
	})

	It("returns the cooldown row when present", func() {
		last := time.Date(2026, 8, 24, 11, 45, 0, 0, time.UTC)
		mock.ExpectQuery(`SELECT rule_id, device_id, last_triggered`).
			WithArgs(int64(2), int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"rule_id", "device_id", "last_triggered"}).
				AddRow(int64(2), int64(3), last))

		cooldown, err := repo.GetCooldown(ctx, 2, 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(cooldown).NotTo(BeNil())
		Expect(cooldown.LastTriggered).To(BeTemporally("==", last))
	})

	It("upserts the cooldown on conflict", func() {
		at := time.Now()
		mock.ExpectExec(`INSERT INTO rule_cooldowns .+ ON CONFLICT`).
			WithArgs(int64(2), int64(3), at).
			WillReturnResult(sqlmock.NewResult(0, 1))

		Expect(repo.UpsertCooldown(ctx, 2, 3, at)).To(Succeed())
	})

	It("buckets a period's alerts by severity without a row cap", func() {
		start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
		mock.ExpectQuery(`SELECT severity, COUNT\(\*\) .+ GROUP BY severity`).
			WithArgs(int64(1), int64(42), int64(43), start, end).
			WillReturnRows(sqlmock.NewRows([]string{"severity", "count"}).
				AddRow("high", int64(240)).
				AddRow("medium", int64(17)))

		counts, err := repo.CountBySeverityInRange(ctx, 1, []int64{42, 43}, start, end)
		Expect(err).NotTo(HaveOccurred())
		Expect(counts).To(HaveKeyWithValue(models.SeverityHigh, 240))
		Expect(counts).To(HaveKeyWithValue(models.SeverityMedium, 17))
	})

	It("returns an empty histogram for an empty device set without querying", func() {
		counts, err := repo.CountBySeverityInRange(ctx, 1, nil,
			time.Now().Add(-time.Hour), time.Now())
		Expect(err).NotTo(HaveOccurred())
		Expect(counts).To(BeEmpty())
	})

	It("buckets open alerts by severity", func() {
		mock.ExpectQuery(`SELECT severity, COUNT\(\*\)`).
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"severity", "count"}).
				AddRow("high", int64(4)).
				AddRow("critical", int64(1)))

		counts, err := repo.CountOpenBySeverity(ctx, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(counts).To(HaveLen(2))
		Expect(counts[0].Severity).To(Equal(models.SeverityHigh))
		Expect(counts[0].Count).To(Equal(int64(4)))
	})
})
