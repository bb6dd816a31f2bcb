package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"AuraFM/logger"

	"github.com/redis/go-redis/v9"
)

const (
	keyWatermark      = "sync:watermark"
	keyFullLoadDone   = "sync:full_load_done"
	keyCatalogVersion = "sync:catalog_version"
)

// SyncStateStore persists the small key/value state the sync engine owns:
// the catalog watermark, the one-time full-load marker and the app version
// that completed the last full load.
type SyncStateStore struct {
	rdb *redis.Client
}

// NewSyncStateStore creates a SyncStateStore on the given Redis client.
func NewSyncStateStore(rdb *redis.Client) *SyncStateStore {
	return &SyncStateStore{rdb: rdb}
}

// Watermark returns the stored catalog watermark, or nil when no full load
// has recorded one yet.
func (s *SyncStateStore) Watermark(ctx context.Context) (*time.Time, error) {
	val, err := s.rdb.Get(ctx, keyWatermark).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read watermark: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return nil, fmt.Errorf("corrupt watermark %q: %w", val, err)
	}
	return &t, nil
}

// AdvanceWatermark stores t as the new watermark, unless a newer one is
// already stored. An interrupted pass must never regress the watermark.
func (s *SyncStateStore) AdvanceWatermark(ctx context.Context, t time.Time) error {
	stored, err := s.Watermark(ctx)
	if err != nil {
		return err
	}
	if !watermarkAdvances(stored, t) {
		logger.Warn("watermark would regress, keeping stored value",
			logger.Time("stored", *stored),
			logger.Time("computed", t))
		return nil
	}
	if err := s.rdb.Set(ctx, keyWatermark, t.Format(time.RFC3339Nano), 0).Err(); err != nil {
		return fmt.Errorf("failed to store watermark: %w", err)
	}
	return nil
}

// watermarkAdvances reports whether the computed watermark may overwrite
// the stored one. Equal timestamps re-persist; older ones never do.
func watermarkAdvances(stored *time.Time, computed time.Time) bool {
	return stored == nil || !computed.Before(*stored)
}

// MarkFullLoadDone records that a first full load completed.
func (s *SyncStateStore) MarkFullLoadDone(ctx context.Context) error {
	if err := s.rdb.Set(ctx, keyFullLoadDone, "1", 0).Err(); err != nil {
		return fmt.Errorf("failed to store full-load marker: %w", err)
	}
	return nil
}

// FullLoadDone reports whether a full load has ever completed.
func (s *SyncStateStore) FullLoadDone(ctx context.Context) (bool, error) {
	_, err := s.rdb.Get(ctx, keyFullLoadDone).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read full-load marker: %w", err)
	}
	return true, nil
}

// SetCatalogVersion records the app version that completed the last full load.
func (s *SyncStateStore) SetCatalogVersion(ctx context.Context, v int) error {
	if err := s.rdb.Set(ctx, keyCatalogVersion, strconv.Itoa(v), 0).Err(); err != nil {
		return fmt.Errorf("failed to store catalog version: %w", err)
	}
	return nil
}

// CatalogVersion returns the app version of the last completed full load,
// 0 when none is recorded.
func (s *SyncStateStore) CatalogVersion(ctx context.Context) (int, error) {
	val, err := s.rdb.Get(ctx, keyCatalogVersion).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read catalog version: %w", err)
	}
	v, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("corrupt catalog version %q: %w", val, err)
	}
	return v, nil
}

// Clear wipes all persisted sync state. Called together with a catalog wipe.
func (s *SyncStateStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, keyWatermark, keyFullLoadDone, keyCatalogVersion).Err(); err != nil {
		return fmt.Errorf("failed to clear sync state: %w", err)
	}
	return nil
}
