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

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/factoryops/factoryops/pkg/models"
	"github.com/factoryops/factoryops/pkg/storage/postgres"
)

var _ = Describe("ParameterRepository", func() {
	var (
		db   *sqlx.DB
		mock sqlmock.Sqlmock
		repo *postgres.ParameterRepository
		ctx  context.Context
	)

	BeforeEach(func() {
		db, mock = newMockDB()
		repo = postgres.NewParameterRepository(db)
		ctx = context.Background()
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
		mock.ExpectClose()
		Expect(db.Close()).To(Succeed())
	})

	It("discovers a key idempotently with a humanized display name", func() {
		mock.ExpectExec(`INSERT INTO device_parameters .+ ON CONFLICT .+ DO NOTHING`).
			WithArgs(int64(1), int64(42), "power_output_kw", "Power Output Kw", "float").
			WillReturnResult(sqlmock.NewResult(0, 1))

		Expect(repo.Discover(ctx, 1, 42,
			map[string]models.DataType{"power_output_kw": models.DataTypeFloat})).
			To(Succeed())
	})
})

var _ = DescribeTable("DisplayName humanization",
	func(key, expected string) {
		Expect(postgres.DisplayName(key)).To(Equal(expected))
	},
	Entry("single word", "temperature", "Temperature"),
	Entry("snake case", "power_output_kw", "Power Output Kw"),
	Entry("already capitalized", "RPM", "RPM"),
	Entry("empty segments", "a__b", "A  B"),
)
