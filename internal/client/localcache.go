package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"sarraf_go/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	cacheKeyPrices = "cachedPrices"
	cacheKeyTime   = "cachedPricesTime"

	// DefaultCacheTTL is the freshness window for the local price cache
	DefaultCacheTTL = 30 * time.Minute
)

// cacheEntry is one key/value row in the viewer's durable cache
type cacheEntry struct {
	Key       string `gorm:"primaryKey"`
	Value     string
	UpdatedAt time.Time
}

func (cacheEntry) TableName() string { return "viewer_cache" }

// LocalCache is the per-viewer durable price cache. A returning viewer
// reads it synchronously at bootstrap so first paint needs no network
// round-trip.
type LocalCache struct {
	db  *gorm.DB
	ttl time.Duration
}

// NewLocalCache opens (or creates) the viewer cache at path.
// A zero ttl falls back to DefaultCacheTTL.
func NewLocalCache(path string, ttl time.Duration) (*LocalCache, error) {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open viewer cache: %w", err)
	}
	if err := db.AutoMigrate(&cacheEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate viewer cache: %w", err)
	}

	return &LocalCache{db: db, ttl: ttl}, nil
}

// Load returns the cached list if it exists and is younger than the
// freshness window. A stale or absent entry yields ok=false; stale data
// is never rendered, the caller shows a loading state instead.
func (c *LocalCache) Load() ([]domain.PriceRecord, time.Time, bool) {
	rawTime, err := c.get(cacheKeyTime)
	if err != nil {
		return nil, time.Time{}, false
	}
	millis, err := strconv.ParseInt(rawTime, 10, 64)
	if err != nil {
		return nil, time.Time{}, false
	}

	writtenAt := time.UnixMilli(millis)
	if time.Since(writtenAt) >= c.ttl {
		return nil, time.Time{}, false
	}

	rawPrices, err := c.get(cacheKeyPrices)
	if err != nil {
		return nil, time.Time{}, false
	}
	var records []domain.PriceRecord
	if err := json.Unmarshal([]byte(rawPrices), &records); err != nil {
		return nil, time.Time{}, false
	}
	if len(records) == 0 {
		return nil, time.Time{}, false
	}
	return records, writtenAt, true
}

// Store overwrites the cached list and its timestamp
func (c *LocalCache) Store(records []domain.PriceRecord) error {
	encoded, err := json.Marshal(records)
	if err != nil {
		return err
	}
	if err := c.set(cacheKeyPrices, string(encoded)); err != nil {
		return err
	}
	return c.set(cacheKeyTime, strconv.FormatInt(time.Now().UnixMilli(), 10))
}

// Clear drops the cached list (explicit viewer reset)
func (c *LocalCache) Clear() error {
	return c.db.Where("key IN ?", []string{cacheKeyPrices, cacheKeyTime}).
		Delete(&cacheEntry{}).Error
}

func (c *LocalCache) get(key string) (string, error) {
	var entry cacheEntry
	err := c.db.First(&entry, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}
	return entry.Value, err
}

func (c *LocalCache) set(key, value string) error {
	entry := cacheEntry{Key: key, Value: value, UpdatedAt: time.Now()}
	return c.db.Save(&entry).Error
}
