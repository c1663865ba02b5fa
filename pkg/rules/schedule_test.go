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

package rules_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/factoryops/factoryops/pkg/models"
	"github.com/factoryops/factoryops/pkg/rules"
)

var _ = Describe("Schedule gate", func() {
	var berlin *time.Location

	BeforeEach(func() {
		var err error
		berlin, err = time.LoadLocation("Europe/Berlin")
		Expect(err).NotTo(HaveOccurred())
	})

	// 2026-08-24 is a Monday.
	monday10 := time.Date(2026, 8, 24, 8, 0, 0, 0, time.UTC) // 10:00 in Berlin
	sunday10 := time.Date(2026, 8, 23, 8, 0, 0, 0, time.UTC)

	rule := func(st models.ScheduleType, cfg models.JSONMap) *models.Rule {
		return &models.Rule{ScheduleType: st, ScheduleConfig: cfg}
	}

	It("always admits schedule type always", func() {
		admit, err := rules.Scheduled(rule(models.ScheduleAlways, nil), monday10, berlin)
		Expect(err).NotTo(HaveOccurred())
		Expect(admit).To(BeTrue())
	})

	It("treats an empty schedule type as always", func() {
		admit, err := rules.Scheduled(rule("", nil), monday10, berlin)
		Expect(err).NotTo(HaveOccurred())
		Expect(admit).To(BeTrue())
	})

	Describe("time_window", func() {
		weekdays := models.JSONMap{
			"days":       []any{float64(1), float64(2), float64(3), float64(4), float64(5)},
			"start_time": "09:00",
			"end_time":   "17:00",
		}

		It("admits inside the window on a listed day", func() {
			admit, err := rules.Scheduled(rule(models.ScheduleTimeWindow, weekdays), monday10, berlin)
			Expect(err).NotTo(HaveOccurred())
			Expect(admit).To(BeTrue())
		})

		It("rejects on an unlisted day", func() {
			admit, err := rules.Scheduled(rule(models.ScheduleTimeWindow, weekdays), sunday10, berlin)
			Expect(err).NotTo(HaveOccurred())
			Expect(admit).To(BeFalse())
		})

		It("maps Sunday to day 7", func() {
			cfg := models.JSONMap{
				"days":       []any{float64(7)},
				"start_time": "00:00",
				"end_time":   "23:59",
			}
			admit, err := rules.Scheduled(rule(models.ScheduleTimeWindow, cfg), sunday10, berlin)
			Expect(err).NotTo(HaveOccurred())
			Expect(admit).To(BeTrue())
		})

		It("includes the window boundaries", func() {
			cfg := models.JSONMap{"start_time": "10:00", "end_time": "10:00"}
			at := time.Date(2026, 8, 24, 8, 0, 0, 0, time.UTC) // 10:00 Berlin
			admit, err := rules.Scheduled(rule(models.ScheduleTimeWindow, cfg), at, berlin)
			Expect(err).NotTo(HaveOccurred())
			Expect(admit).To(BeTrue())
		})

		It("uses the factory timezone, not UTC", func() {
			// 23:30 UTC Monday is 01:30 Tuesday in Berlin.
			cfg := models.JSONMap{
				"days":       []any{float64(2)},
				"start_time": "01:00",
				"end_time":   "02:00",
			}
			at := time.Date(2026, 8, 24, 23, 30, 0, 0, time.UTC)
			admit, err := rules.Scheduled(rule(models.ScheduleTimeWindow, cfg), at, berlin)
			Expect(err).NotTo(HaveOccurred())
			Expect(admit).To(BeTrue())
		})

		It("fails open on a malformed window", func() {
			cfg := models.JSONMap{"start_time": "9am", "end_time": "17:00"}
			admit, err := rules.Scheduled(rule(models.ScheduleTimeWindow, cfg), monday10, berlin)
			Expect(err).To(HaveOccurred())
			Expect(admit).To(BeTrue())
		})

		It("fails open on a missing config", func() {
			admit, err := rules.Scheduled(rule(models.ScheduleTimeWindow, nil), monday10, berlin)
			Expect(err).To(HaveOccurred())
			Expect(admit).To(BeTrue())
		})
	})

	Describe("date_range", func() {
		cfg := models.JSONMap{"start_date": "2026-08-01", "end_date": "2026-08-24"}

		It("admits inside the range, end date inclusive", func() {
			admit, err := rules.Scheduled(rule(models.ScheduleDateRange, cfg), monday10, berlin)
			Expect(err).NotTo(HaveOccurred())
			Expect(admit).To(BeTrue())
		})

		It("rejects past the end date", func() {
			at := time.Date(2026, 8, 25, 8, 0, 0, 0, time.UTC)
			admit, err := rules.Scheduled(rule(models.ScheduleDateRange, cfg), at, berlin)
			Expect(err).NotTo(HaveOccurred())
			Expect(admit).To(BeFalse())
		})

		It("fails open on malformed dates", func() {
			bad := models.JSONMap{"start_date": "Aug 1", "end_date": "2026-08-24"}
			admit, err := rules.Scheduled(rule(models.ScheduleDateRange, bad), monday10, berlin)
			Expect(err).To(HaveOccurred())
			Expect(admit).To(BeTrue())
		})
	})

	It("fails open on an unknown schedule type", func() {
		admit, err := rules.Scheduled(rule("lunar_cycle", nil), monday10, berlin)
		Expect(err).To(HaveOccurred())
		Expect(admit).To(BeTrue())
	})
})
