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

const ruleColumns = `r.id, r.factory_id, r.name, r.description, r.scope,
	r.conditions, r.cooldown_minutes, r.is_active, r.schedule_type,
	r.schedule_config, r.severity, r.notification_channels, r.created_by,
	r.created_at, r.updated_at`

// RuleRepository reads alerting rules.
type RuleRepository struct {
	db *sqlx.DB
}

// NewRuleRepository creates a rule repository.
func NewRuleRepository(db *sqlx.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

// ActiveRulesForDevice returns the factory's active rules that apply to the
// device: global-scoped ones plus device-scoped ones linked through
// rule_devices.
func (r *RuleRepository) ActiveRulesForDevice(ctx context.Context, factoryID, deviceID int64) ([]models.Rule, error) {
	var rules []models.Rule
	err := r.db.SelectContext(ctx, &rules,
		`SELECT `+ruleColumns+`
		 FROM rules r
		 WHERE r.factory_id = $1
		   AND r.is_active
		   AND (r.scope = 'global'
		        OR EXISTS (SELECT 1 FROM rule_devices rd
		                   WHERE rd.rule_id = r.id AND rd.device_id = $2))
		 ORDER BY r.id`,
		factoryID, deviceID)
	if err != nil {
		return nil, fmt.Errorf("rules for device %d: %w", deviceID, err)
	}
	return rules, nil
}

// GetByID fetches one rule.
func (r *RuleRepository) GetByID(ctx context.Context, id int64) (*models.Rule, error) {
	var rule models.Rule
	err := r.db.GetContext(ctx, &rule,
		`SELECT `+ruleColumns+` FROM rules r WHERE r.id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("rule %d: %w", id, err)
	}
	return &rule, nil
}
