package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"sarraf_go/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	// CalculatedKey is the singleton row holding the last successfully
	// computed shop-facing price list.
	CalculatedKey = "current_prices"
	// SourceKey is the singleton row holding the merged raw upstream
	// prices, the disaster-recovery seed.
	SourceKey = "source_prices"
)

// snapshotRow is a durable, wholesale-replaced copy of a price list
type snapshotRow struct {
	Key       string    `gorm:"primaryKey"`
	Prices    string    // JSON-encoded []domain.PriceRecord
	MetaTime  time.Time
	UpdatedAt time.Time
}

func (snapshotRow) TableName() string { return "snapshots" }

// HistorySample is one persisted price observation for one code
type HistorySample struct {
	ID        uint            `gorm:"primaryKey" json:"-"`
	Code      string          `gorm:"index:idx_history_code_ts" json:"code"`
	Name      string          `json:"name"`
	Alis      decimal.Decimal `gorm:"type:numeric" json:"calculatedAlis"`
	Satis     decimal.Decimal `gorm:"type:numeric" json:"calculatedSatis"`
	Timestamp time.Time       `gorm:"index:idx_history_code_ts" json:"timestamp"`
}

func (HistorySample) TableName() string { return "price_history" }

// Gateway persists price snapshots and history to SQLite.
// Callers on the broadcast path treat every write as best-effort.
type Gateway struct {
	db *gorm.DB

	// serializes the source merge's read-modify-write; calculated writes
	// are wholesale and need no guard
	sourceMu sync.Mutex
}

// NewGateway creates a new SQLite gateway. An empty path resolves to the
// OS user config directory, matching desktop deployments.
func NewGateway(path string) (*Gateway, error) {
	dbPath := path
	if dbPath == "" {
		resolved, err := defaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve DB path: %w", err)
		}
		dbPath = resolved
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto Migration
	if err := db.AutoMigrate(&snapshotRow{}, &HistorySample{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Gateway{db: db}, nil
}

func defaultDBPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "Sarraf", "data", "sarraf.db"), nil
}

// ======================================================================================
// Snapshot Operations
// ======================================================================================

// WriteCalculated overwrites the calculated snapshot wholesale.
func (g *Gateway) WriteCalculated(records []domain.PriceRecord, metaTime time.Time) error {
	return g.writeSnapshot(CalculatedKey, records, metaTime)
}

// ReadCalculated returns the last calculated snapshot, or
// domain.ErrSnapshotNotFound if none has been written yet.
func (g *Gateway) ReadCalculated() ([]domain.PriceRecord, time.Time, error) {
	return g.readSnapshot(CalculatedKey)
}

// WriteSource merge-upserts raw records into the source snapshot by code.
// Codes absent from the new write are retained; the snapshot never shrinks
// except by explicit administrative action.
func (g *Gateway) WriteSource(records []domain.PriceRecord) error {
	g.sourceMu.Lock()
	defer g.sourceMu.Unlock()

	existing, _, err := g.readSnapshot(SourceKey)
	if err != nil && !errors.Is(err, domain.ErrSnapshotNotFound) {
		return err
	}

	merged := make(map[string]domain.PriceRecord, len(existing)+len(records))
	order := make([]string, 0, len(existing)+len(records))
	for _, r := range existing {
		if _, seen := merged[r.Code]; !seen {
			order = append(order, r.Code)
		}
		merged[r.Code] = r
	}
	for _, r := range records {
		if r.IsCustom {
			continue // only direct feed passthrough belongs in the seed
		}
		if _, seen := merged[r.Code]; !seen {
			order = append(order, r.Code)
		}
		merged[r.Code] = r.SourceView()
	}

	out := make([]domain.PriceRecord, 0, len(merged))
	for _, code := range order {
		out = append(out, merged[code])
	}
	return g.writeSnapshot(SourceKey, out, time.Now())
}

// ReadSource returns the merged raw snapshot, or domain.ErrSnapshotNotFound.
func (g *Gateway) ReadSource() ([]domain.PriceRecord, error) {
	records, _, err := g.readSnapshot(SourceKey)
	return records, err
}

// ClearSource drops the source snapshot (administrative action only).
func (g *Gateway) ClearSource() error {
	return g.db.Where("key = ?", SourceKey).Delete(&snapshotRow{}).Error
}

func (g *Gateway) writeSnapshot(key string, records []domain.PriceRecord, metaTime time.Time) error {
	encoded, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", key, err)
	}
	row := snapshotRow{
		Key:       key,
		Prices:    string(encoded),
		MetaTime:  metaTime,
		UpdatedAt: time.Now(),
	}
	return g.db.Save(&row).Error
}

func (g *Gateway) readSnapshot(key string) ([]domain.PriceRecord, time.Time, error) {
	var row snapshotRow
	err := g.db.First(&row, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, time.Time{}, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, time.Time{}, err
	}

	var records []domain.PriceRecord
	if err := json.Unmarshal([]byte(row.Prices), &records); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return records, row.MetaTime, nil
}

// ======================================================================================
// History Operations
// ======================================================================================

// AppendHistory stores one sample per record for this cycle and returns
// the number of rows written.
func (g *Gateway) AppendHistory(records []domain.PriceRecord, ts time.Time) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	samples := make([]HistorySample, 0, len(records))
	for _, r := range records {
		samples = append(samples, HistorySample{
			Code:      r.Code,
			Name:      r.Name,
			Alis:      r.CalculatedAlis,
			Satis:     r.CalculatedSatis,
			Timestamp: ts,
		})
	}
	if err := g.db.Create(&samples).Error; err != nil {
		return 0, err
	}
	return len(samples), nil
}

// ReadHistory returns time-ordered samples for one code since the given
// time, capped at limit points.
func (g *Gateway) ReadHistory(code string, since time.Time, limit int) ([]HistorySample, error) {
	var samples []HistorySample
	err := g.db.
		Where("code = ? AND timestamp >= ?", code, since).
		Order("timestamp asc").
		Limit(limit).
		Find(&samples).Error
	return samples, err
}

// PruneHistory deletes samples older than the cutoff. Intended for a
// housekeeping schedule, not the broadcast path.
func (g *Gateway) PruneHistory(cutoff time.Time) (int64, error) {
	res := g.db.Where("timestamp < ?", cutoff).Delete(&HistorySample{})
	return res.RowsAffected, res.Error
}
