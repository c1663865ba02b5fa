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

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/factoryops/factoryops/pkg/models"
)

// ErrNotFound is returned when a lookup matches no row. Callers decide
// whether that is a 404 or a dropped message.
var ErrNotFound = errors.New("not found")

// FactoryRepository reads the tenant table.
type FactoryRepository struct {
	db *sqlx.DB
}

// NewFactoryRepository creates a factory repository.
func NewFactoryRepository(db *sqlx.DB) *FactoryRepository {
	return &FactoryRepository{db: db}
}

// GetBySlug resolves the broker topic segment to a tenant.
func (r *FactoryRepository) GetBySlug(ctx context.Context, slug string) (*models.Factory, error) {
	var factory models.Factory
	err := r.db.GetContext(ctx, &factory,
		`SELECT id, name, slug, timezone, created_at, updated_at
		 FROM factories WHERE slug = $1`, slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("factory by slug %q: %w", slug, err)
	}
	return &factory, nil
}

// GetByID fetches a tenant by primary key.
func (r *FactoryRepository) GetByID(ctx context.Context, id int64) (*models.Factory, error) {
	var factory models.Factory
	err := r.db.GetContext(ctx, &factory,
		`SELECT id, name, slug, timezone, created_at, updated_at
		 FROM factories WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("factory %d: %w", id, err)
	}
	return &factory, nil
}
