/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package playground

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/GoogleCloudPlatform/db-query-playground/internal/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultFlushInterval bounds how often the cache file is rewritten.
const DefaultFlushInterval = 10 * time.Second

type cacheFile struct {
	ListValues map[string]string `json:"listValues"`
}

// ValueCache memoizes serialized column-value listings. Writes reach the
// backing file asynchronously, at most once per flush interval.
type ValueCache struct {
	path     string
	interval time.Duration
	logger   *zap.Logger
	group    singleflight.Group

	mu        sync.Mutex
	values    map[string]string
	dirty     bool
	timer     *time.Timer
	lastFlush time.Time
	closed    bool
}

// NewValueCache loads path if it exists. An empty path keeps the cache in memory.
func NewValueCache(path string, interval time.Duration, logger *zap.Logger) (*ValueCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	c := &ValueCache{
		path:     path,
		interval: interval,
		logger:   logger,
		values:   make(map[string]string),
	}
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("Data cache file not found, starting empty", zap.String("path", path))
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read data cache %s: %w", path, err)
	}
	var f cacheFile
	if err := json.Unmarshal(data, &f); err != nil {
		logger.Warn("Data cache file is corrupted, starting empty", zap.String("path", path), zap.Error(err))
		return c, nil
	}
	if f.ListValues != nil {
		c.values = f.ListValues
	}
	logger.Info("Data cache loaded", zap.String("path", path), zap.Int("entries", len(c.values)))
	return c, nil
}

func (c *ValueCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok
}

// Put stores value and schedules a flush.
func (c *ValueCache) Put(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	c.dirty = true
	c.scheduleLocked()
}

// GetOrCompute returns the cached value for key or computes it. Concurrent
// callers for the same key share one computation. The value is stored only
// when compute reports it as cacheable.
func (c *ValueCache) GetOrCompute(key string, compute func() (value string, cacheable bool, err error)) (string, error) {
	if v, ok := c.Get(key); ok {
		c.logger.Info("Reused cache for list values request", zap.String("key", key))
		return v, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, cacheable, err := compute()
		if err != nil {
			return "", err
		}
		if cacheable {
			c.Put(key, v)
		}
		return v, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *ValueCache) scheduleLocked() {
	if c.path == "" || c.closed || c.timer != nil {
		return
	}
	delay := time.Until(c.lastFlush.Add(c.interval))
	if delay < 0 {
		delay = 0
	}
	c.timer = time.AfterFunc(delay, func() {
		if err := c.Flush(); err != nil {
			c.logger.Error("Failed to persist data cache", zap.String("path", c.path), zap.Error(err))
		}
	})
}

// Flush writes pending entries to the backing file.
func (c *ValueCache) Flush() error {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.path == "" || !c.dirty {
		c.mu.Unlock()
		return nil
	}
	data, err := json.Marshal(cacheFile{ListValues: c.values})
	c.dirty = false
	c.lastFlush = time.Now()
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to encode data cache: %w", err)
	}
	if err := utils.WriteFileAtomic(c.path, data, 0o644); err != nil {
		c.mu.Lock()
		c.dirty = true
		c.mu.Unlock()
		return err
	}
	c.logger.Info("Data cache persisted", zap.String("path", c.path))
	return nil
}

// Close flushes pending entries and stops further scheduling.
func (c *ValueCache) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.Flush()
}

// Len reports the number of cached entries.
func (c *ValueCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.values)
}
