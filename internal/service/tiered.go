package service

import (
	"errors"
	"log/slog"
	"time"

	"sarraf_go/internal/domain"
)

// SnapshotReader is the read side of the persistent cache gateway
type SnapshotReader interface {
	ReadCalculated() ([]domain.PriceRecord, time.Time, error)
	ReadSource() ([]domain.PriceRecord, error)
}

// TieredCache is the one documented fallback chain for "what is the
// current price list": process memory, then the calculated snapshot,
// then the raw source snapshot filtered to direct feed records.
// The first non-empty tier wins.
type TieredCache struct {
	store     *PriceStore
	snapshots SnapshotReader
}

// NewTieredCache wires the memory store and the durable snapshots
func NewTieredCache(store *PriceStore, snapshots SnapshotReader) *TieredCache {
	return &TieredCache{store: store, snapshots: snapshots}
}

// Current resolves the freshest available price list. The returned slice
// is empty only when every tier is empty (total cold start).
func (t *TieredCache) Current() ([]domain.PriceRecord, domain.PriceMeta) {
	if records := t.store.Get(); len(records) > 0 {
		return records, domain.PriceMeta{Time: t.store.UpdatedAt()}
	}

	if t.snapshots == nil {
		return nil, domain.PriceMeta{}
	}

	records, metaTime, err := t.snapshots.ReadCalculated()
	if err != nil && !errors.Is(err, domain.ErrSnapshotNotFound) {
		slog.Warn("Calculated snapshot read failed", slog.Any("error", err))
	}
	if len(records) > 0 {
		return records, domain.PriceMeta{Time: metaTime}
	}

	source, err := t.snapshots.ReadSource()
	if err != nil && !errors.Is(err, domain.ErrSnapshotNotFound) {
		slog.Warn("Source snapshot read failed", slog.Any("error", err))
	}
	if records := domain.FilterNonCustom(source); len(records) > 0 {
		return records, domain.PriceMeta{Time: time.Now()}
	}

	return nil, domain.PriceMeta{}
}
