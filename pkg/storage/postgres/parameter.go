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
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/factoryops/factoryops/pkg/models"
)

// ParameterRepository manages the measurement channels discovered from
// ingress.
type ParameterRepository struct {
	db *sqlx.DB
}

// NewParameterRepository creates a parameter repository.
func NewParameterRepository(db *sqlx.DB) *ParameterRepository {
	return &ParameterRepository{db: db}
}

// Discover registers parameter keys seen in an ingested message. New
// channels start KPI-selected; known keys are untouched, so operator edits to
// display names, units and KPI selection survive re-discovery.
func (r *ParameterRepository) Discover(ctx context.Context, factoryID, deviceID int64, types map[string]models.DataType) error {
	for key, dataType := range types {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO device_parameters
			     (factory_id, device_id, parameter_key, display_name,
			      data_type, is_kpi_selected)
			 VALUES ($1, $2, $3, $4, $5, TRUE)
			 ON CONFLICT (device_id, parameter_key) DO NOTHING`,
			factoryID, deviceID, key, DisplayName(key), dataType)
		if err != nil {
			return fmt.Errorf("discovering parameter %q: %w", key, err)
		}
	}
	return nil
}

// ListByDevice returns every discovered channel of a device.
func (r *ParameterRepository) ListByDevice(ctx context.Context, deviceID int64) ([]models.DeviceParameter, error) {
	var params []models.DeviceParameter
	err := r.db.SelectContext(ctx, &params,
		`SELECT id, factory_id, device_id, parameter_key, display_name, unit,
		        data_type, is_kpi_selected, discovered_at, updated_at
		 FROM device_parameters
		 WHERE device_id = $1 ORDER BY parameter_key`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("listing device %d parameters: %w", deviceID, err)
	}
	return params, nil
}

// KPIKeys returns the distinct parameter keys a factory has pinned as KPIs.
func (r *ParameterRepository) KPIKeys(ctx context.Context, factoryID int64) ([]string, error) {
	var keys []string
	err := r.db.SelectContext(ctx, &keys,
		`SELECT DISTINCT parameter_key FROM device_parameters
		 WHERE factory_id = $1 AND is_kpi_selected ORDER BY parameter_key`,
		factoryID)
	if err != nil {
		return nil, fmt.Errorf("listing factory %d kpi keys: %w", factoryID, err)
	}
	return keys, nil
}

// DisplayName humanizes a snake_case parameter key: "power_output_kw"
// becomes "Power Output Kw".
func DisplayName(key string) string {
	parts := strings.Split(key, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}
