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
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/factoryops/factoryops/pkg/models"
)

// UserRepository reads factory members for notification fan-out.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a user repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// ActiveByFactory returns the factory's active members, the audience of
// alert notifications.
func (r *UserRepository) ActiveByFactory(ctx context.Context, factoryID int64) ([]models.User, error) {
	var users []models.User
	err := r.db.SelectContext(ctx, &users,
		`SELECT id, factory_id, email, whatsapp_number, hashed_password,
		        role, permissions, is_active, last_login, created_at
		 FROM users
		 WHERE factory_id = $1 AND is_active ORDER BY id`, factoryID)
	if err != nil {
		return nil, fmt.Errorf("listing factory %d users: %w", factoryID, err)
	}
	return users, nil
}
