package service

import (
	"sync"
	"time"

	"sarraf_go/internal/domain"
)

// PriceStore holds the current price list in process memory.
// It is a pure register with last-writer-wins semantics: Set replaces the
// whole list atomically, so no reader ever observes a mix of old and new
// records.
type PriceStore struct {
	mu        sync.RWMutex
	records   []domain.PriceRecord
	updatedAt time.Time
}

// NewPriceStore creates an empty store
func NewPriceStore() *PriceStore {
	return &PriceStore{}
}

// Set replaces the entire current list. The input is copied so later
// mutation by the caller cannot leak into readers.
func (s *PriceStore) Set(records []domain.PriceRecord) {
	snapshot := domain.CloneRecords(records)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = snapshot
	s.updatedAt = time.Now()
}

// Get returns the current list, or an empty list if never set.
// The result is a copy.
func (s *PriceStore) Get() []domain.PriceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.CloneRecords(s.records)
}

// Len returns the current list length without copying
func (s *PriceStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// UpdatedAt returns the time of the last Set, zero if never set
func (s *PriceStore) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}
