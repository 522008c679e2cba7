package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"sarraf_go/internal/domain"
	"sarraf_go/internal/infra"
)

// FeedSource delivers the raw {code, name, rawAlis, rawSatis} tuples
// from the upstream market-data provider.
type FeedSource interface {
	Fetch(ctx context.Context) ([]domain.PriceRecord, error)
}

// Pusher fans a computed price list out to all connected viewers
type Pusher interface {
	Broadcast(records []domain.PriceRecord, meta domain.PriceMeta)
}

// SnapshotWriter is the write side of the persistent cache gateway
type SnapshotWriter interface {
	WriteCalculated(records []domain.PriceRecord, metaTime time.Time) error
	WriteSource(records []domain.PriceRecord) error
	AppendHistory(records []domain.PriceRecord, ts time.Time) (int, error)
}

// CycleRunner drives one calculation cycle: feed fetch, margin
// calculation, store replacement, best-effort persistence and fan-out.
// Cycles never overlap with themselves; persistence is fire-and-forget
// and may outlive the cycle that started it.
type CycleRunner struct {
	mu        sync.Mutex
	feed      FeedSource
	calc      *PriceCalculator
	rules     domain.MarginRuleSet
	rawStore  *PriceStore
	store     *PriceStore
	snapshots SnapshotWriter
	pusher    Pusher
	metrics   *infra.Metrics

	persistWG sync.WaitGroup
}

// NewCycleRunner wires a runner. snapshots and pusher may be nil in tests.
func NewCycleRunner(
	feed FeedSource,
	calc *PriceCalculator,
	rules domain.MarginRuleSet,
	rawStore, store *PriceStore,
	snapshots SnapshotWriter,
	pusher Pusher,
	metrics *infra.Metrics,
) *CycleRunner {
	return &CycleRunner{
		feed:      feed,
		calc:      calc,
		rules:     rules,
		rawStore:  rawStore,
		store:     store,
		snapshots: snapshots,
		pusher:    pusher,
		metrics:   metrics,
	}
}

// RunCycle executes one full cycle. On upstream failure the previous
// store contents remain authoritative and nothing is broadcast: silence,
// not an empty push.
func (r *CycleRunner) RunCycle(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	raw, err := r.feed.Fetch(ctx)
	if err != nil {
		slog.Warn("Cycle skipped, upstream feed failed", slog.Any("error", err))
		r.metrics.RecordSkippedCycle()
		return
	}
	if len(raw) == 0 {
		slog.Warn("Cycle skipped, upstream feed empty")
		r.metrics.RecordSkippedCycle()
		return
	}

	r.rawStore.Set(raw)
	r.persistAsync("source", func() error {
		return r.snapshots.WriteSource(raw)
	})

	records := r.calc.Compute(raw, r.rules)
	if len(records) == 0 {
		// Every raw record failed validation. Keep the previous list
		// authoritative and stay silent on the push channel.
		slog.Error("Cycle produced zero valid records",
			slog.Int("raw_count", len(raw)),
		)
		r.metrics.RecordSkippedCycle()
		return
	}

	now := time.Now()
	meta := domain.PriceMeta{Time: now}

	r.store.Set(records)
	r.persistAsync("calculated", func() error {
		return r.snapshots.WriteCalculated(records, now)
	})
	r.persistAsync("history", func() error {
		n, err := r.snapshots.AppendHistory(records, now)
		if err == nil {
			r.metrics.RecordHistoryRows(n)
		}
		return err
	})

	if r.pusher != nil {
		r.pusher.Broadcast(records, meta)
		r.metrics.RecordBroadcast()
	}
	r.metrics.RecordCycle()
}

// persistAsync runs a snapshot write without blocking the broadcast path.
// Failures are logged and counted, never propagated.
func (r *CycleRunner) persistAsync(what string, write func() error) {
	if r.snapshots == nil {
		return
	}
	r.persistWG.Add(1)
	go func() {
		defer r.persistWG.Done()
		if err := write(); err != nil {
			slog.Error("Snapshot persistence failed",
				slog.String("snapshot", what),
				slog.Any("error", err),
			)
			r.metrics.RecordPersistFailure()
		}
	}()
}

// WaitPersistence blocks until in-flight snapshot writes finish.
// Used on shutdown and in tests.
func (r *CycleRunner) WaitPersistence() {
	r.persistWG.Wait()
}

// SeedFromSnapshots restores the in-memory stores from durable snapshots
// after a cold start when the live feed is down: calculated snapshot
// first, then the raw source snapshot pushed through the calculator.
func (r *CycleRunner) SeedFromSnapshots(reader SnapshotReader) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.store.Len() > 0 || reader == nil {
		return
	}

	records, _, err := reader.ReadCalculated()
	if err != nil && !errors.Is(err, domain.ErrSnapshotNotFound) {
		slog.Warn("Calculated snapshot seed failed", slog.Any("error", err))
	}
	if len(records) > 0 {
		r.store.Set(records)
		slog.Info("Seeded prices from calculated snapshot", slog.Int("count", len(records)))
		return
	}

	source, err := reader.ReadSource()
	if err != nil && !errors.Is(err, domain.ErrSnapshotNotFound) {
		slog.Warn("Source snapshot seed failed", slog.Any("error", err))
	}
	if len(source) == 0 {
		return
	}

	r.rawStore.Set(source)
	if computed := r.calc.Compute(source, r.rules); len(computed) > 0 {
		r.store.Set(computed)
		slog.Info("Seeded prices from source snapshot", slog.Int("count", len(computed)))
	}
}
