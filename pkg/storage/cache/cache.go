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

// Package cache is the read-through Redis cache in front of the metadata
// store. It exists for the hot ingest path: factory and device lookups per
// message would otherwise hit Postgres at broker rates.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/factoryops/factoryops/pkg/models"
)

// TTL bounds staleness after out-of-band edits to factories or devices.
const TTL = 60 * time.Second

func factoryKey(slug string) string {
	return "factory:slug:" + slug
}

func deviceKey(factoryID int64, key string) string {
	return fmt.Sprintf("device:%d:%s", factoryID, key)
}

// FactorySource loads factories on cache miss.
type FactorySource interface {
	GetBySlug(ctx context.Context, slug string) (*models.Factory, error)
}

// DeviceSource loads (and auto-registers) devices on cache miss.
type DeviceSource interface {
	GetOrCreate(ctx context.Context, factoryID int64, deviceKey string) (*models.Device, error)
}

// Client caches factory and device rows as JSON with a fixed TTL. Cache
// failures degrade to the underlying store, never to an error.
type Client struct {
	rdb       redis.UniversalClient
	factories FactorySource
	devices   DeviceSource
	logger    *zap.Logger
}

// New creates the cache client.
func New(rdb redis.UniversalClient, factories FactorySource, devices DeviceSource, logger *zap.Logger) *Client {
	return &Client{rdb: rdb, factories: factories, devices: devices, logger: logger}
}

// FactoryBySlug resolves a factory through the cache.
func (c *Client) FactoryBySlug(ctx context.Context, slug string) (*models.Factory, error) {
	key := factoryKey(slug)
	var factory models.Factory
	if c.lookup(ctx, key, &factory) {
		return &factory, nil
	}

	fresh, err := c.factories.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, fresh)
	return fresh, nil
}

// DeviceByKey resolves a device through the cache, auto-registering it on a
// full miss.
func (c *Client) DeviceByKey(ctx context.Context, factoryID int64, devKey string) (*models.Device, error) {
	key := deviceKey(factoryID, devKey)
	var device models.Device
	if c.lookup(ctx, key, &device) {
		return &device, nil
	}

	fresh, err := c.devices.GetOrCreate(ctx, factoryID, devKey)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, fresh)
	return fresh, nil
}

// InvalidateDevice drops a device entry after a write to its row.
func (c *Client) InvalidateDevice(ctx context.Context, factoryID int64, devKey string) {
	if err := c.rdb.Del(ctx, deviceKey(factoryID, devKey)).Err(); err != nil {
		c.logger.Warn("cache.invalidate_failed",
			zap.String("key", deviceKey(factoryID, devKey)),
			zap.Error(err))
	}
}

// InvalidateFactory drops a factory entry after a write to its row.
func (c *Client) InvalidateFactory(ctx context.Context, slug string) {
	if err := c.rdb.Del(ctx, factoryKey(slug)).Err(); err != nil {
		c.logger.Warn("cache.invalidate_failed",
			zap.String("key", factoryKey(slug)),
			zap.Error(err))
	}
}

// lookup reads and decodes one entry. A corrupt entry is evicted and treated
// as a miss.
func (c *Client) lookup(ctx context.Context, key string, dst any) bool {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		c.logger.Warn("cache.read_failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.logger.Warn("cache.entry_corrupt", zap.String("key", key), zap.Error(err))
		_ = c.rdb.Del(ctx, key).Err()
		return false
	}
	return true
}

// store writes one entry best-effort.
func (c *Client) store(ctx context.Context, key string, src any) {
	raw, err := json.Marshal(src)
	if err != nil {
		c.logger.Warn("cache.encode_failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, key, raw, TTL).Err(); err != nil {
		c.logger.Warn("cache.write_failed", zap.String("key", key), zap.Error(err))
	}
}
