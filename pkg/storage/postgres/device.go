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
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/factoryops/factoryops/pkg/models"
)

const deviceColumns = `id, factory_id, device_key, name, manufacturer, model,
	region, api_key, is_active, last_seen, created_at, updated_at`

// DeviceRepository manages telemetry sources, unique per
// (factory_id, device_key).
type DeviceRepository struct {
	db *sqlx.DB
}

// NewDeviceRepository creates a device repository.
func NewDeviceRepository(db *sqlx.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// GetOrCreate returns the device for (factoryID, deviceKey), auto-registering
// it on first contact. Concurrent first contacts race on the unique index;
// the loser's insert is a no-op and both read the surviving row.
func (r *DeviceRepository) GetOrCreate(ctx context.Context, factoryID int64, deviceKey string) (*models.Device, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO devices (factory_id, device_key, is_active)
		 VALUES ($1, $2, TRUE)
		 ON CONFLICT (factory_id, device_key) DO NOTHING`,
		factoryID, deviceKey)
	if err != nil {
		return nil, fmt.Errorf("registering device %q: %w", deviceKey, err)
	}

	var device models.Device
	err = r.db.GetContext(ctx, &device,
		`SELECT `+deviceColumns+` FROM devices
		 WHERE factory_id = $1 AND device_key = $2`,
		factoryID, deviceKey)
	if err != nil {
		return nil, fmt.Errorf("device %q: %w", deviceKey, err)
	}
	return &device, nil
}

// GetByID fetches a device by primary key.
func (r *DeviceRepository) GetByID(ctx context.Context, id int64) (*models.Device, error) {
	var device models.Device
	err := r.db.GetContext(ctx, &device,
		`SELECT `+deviceColumns+` FROM devices WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("device %d: %w", id, err)
	}
	return &device, nil
}

// ListByIDs fetches the given devices of one factory. Ids from other
// factories are silently absent from the result.
func (r *DeviceRepository) ListByIDs(ctx context.Context, factoryID int64, ids []int64) ([]models.Device, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(
		`SELECT `+deviceColumns+` FROM devices
		 WHERE factory_id = ? AND id IN (?) ORDER BY id`, factoryID, ids)
	if err != nil {
		return nil, fmt.Errorf("building device list query: %w", err)
	}
	var devices []models.Device
	if err := r.db.SelectContext(ctx, &devices, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	return devices, nil
}

// ListByFactory returns every device of a factory.
func (r *DeviceRepository) ListByFactory(ctx context.Context, factoryID int64) ([]models.Device, error) {
	var devices []models.Device
	err := r.db.SelectContext(ctx, &devices,
		`SELECT `+deviceColumns+` FROM devices
		 WHERE factory_id = $1 ORDER BY id`, factoryID)
	if err != nil {
		return nil, fmt.Errorf("listing factory %d devices: %w", factoryID, err)
	}
	return devices, nil
}

// TouchLastSeen advances last_seen to ts. The guard keeps last_seen monotonic
// when backfilled messages arrive out of order.
func (r *DeviceRepository) TouchLastSeen(ctx context.Context, deviceID int64, ts time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE devices SET last_seen = $2, updated_at = NOW()
		 WHERE id = $1 AND (last_seen IS NULL OR last_seen < $2)`,
		deviceID, ts)
	if err != nil {
		return fmt.Errorf("touching device %d: %w", deviceID, err)
	}
	return nil
}
