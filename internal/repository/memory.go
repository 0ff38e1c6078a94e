package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"MarketScan/internal/domain/models"
	domrepo "MarketScan/internal/domain/repository"
	"MarketScan/pkg/util"
)

// MemoryRawPriceStore keeps bronze price partitions in memory. Used for
// local runs (storage.type: memory) and tests.
type MemoryRawPriceStore struct {
	mu         sync.RWMutex
	partitions map[string][]models.RawPriceRecord
}

func NewMemoryRawPriceStore() *MemoryRawPriceStore {
	return &MemoryRawPriceStore{partitions: make(map[string][]models.RawPriceRecord)}
}

func (s *MemoryRawPriceStore) Write(ctx context.Context, partition time.Time, records []models.RawPriceRecord) error {
	cp := make([]models.RawPriceRecord, len(records))
	copy(cp, records)
	s.mu.Lock()
	s.partitions[partitionKey(partition)] = cp
	s.mu.Unlock()
	return nil
}

func (s *MemoryRawPriceStore) Read(ctx context.Context, partition time.Time) ([]models.RawPriceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.partitions[partitionKey(partition)]
	cp := make([]models.RawPriceRecord, len(records))
	copy(cp, records)
	return cp, nil
}

func (s *MemoryRawPriceStore) Partitions(ctx context.Context) ([]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.partitions))
	for k := range s.partitions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]time.Time, 0, len(keys))
	for _, k := range keys {
		if d, ok := util.ParseDate(k); ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// MemoryRawNewsStore keeps bronze news partitions in memory.
type MemoryRawNewsStore struct {
	mu         sync.RWMutex
	partitions map[string][]models.RawNewsRecord
}

func NewMemoryRawNewsStore() *MemoryRawNewsStore {
	return &MemoryRawNewsStore{partitions: make(map[string][]models.RawNewsRecord)}
}

func (s *MemoryRawNewsStore) Write(ctx context.Context, partition time.Time, records []models.RawNewsRecord) error {
	cp := make([]models.RawNewsRecord, len(records))
	copy(cp, records)
	s.mu.Lock()
	s.partitions[partitionKey(partition)] = cp
	s.mu.Unlock()
	return nil
}

func (s *MemoryRawNewsStore) Read(ctx context.Context, partition time.Time) ([]models.RawNewsRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.partitions[partitionKey(partition)]
	cp := make([]models.RawNewsRecord, len(records))
	copy(cp, records)
	return cp, nil
}

// MemoryUniverseStore keeps universe snapshots in memory.
type MemoryUniverseStore struct {
	mu         sync.RWMutex
	partitions map[string][]models.UniverseEntry
	latestKey  string
}

func NewMemoryUniverseStore() *MemoryUniverseStore {
	return &MemoryUniverseStore{partitions: make(map[string][]models.UniverseEntry)}
}

func (s *MemoryUniverseStore) Write(ctx context.Context, partition time.Time, entries []models.UniverseEntry) error {
	cp := make([]models.UniverseEntry, len(entries))
	copy(cp, entries)
	key := partitionKey(partition)
	s.mu.Lock()
	s.partitions[key] = cp
	if key >= s.latestKey {
		s.latestKey = key
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryUniverseStore) Latest(ctx context.Context) ([]models.UniverseEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.partitions[s.latestKey]
	cp := make([]models.UniverseEntry, len(entries))
	copy(cp, entries)
	return cp, nil
}

// MemoryCanonicalStore is the in-memory silver table.
type MemoryCanonicalStore struct {
	mu   sync.RWMutex
	rows []models.CanonicalPriceRow
}

func NewMemoryCanonicalStore() *MemoryCanonicalStore {
	return &MemoryCanonicalStore{}
}

func (s *MemoryCanonicalStore) Replace(ctx context.Context, rows []models.CanonicalPriceRow) (int, error) {
	cp := make([]models.CanonicalPriceRow, len(rows))
	copy(cp, rows)
	s.mu.Lock()
	s.rows = cp
	s.mu.Unlock()
	return len(cp), nil
}

func (s *MemoryCanonicalStore) History(ctx context.Context, symbol string, upTo time.Time, limit int) ([]models.CanonicalPriceRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]models.CanonicalPriceRow, 0, limit)
	for _, r := range s.rows {
		if r.Symbol == symbol && !r.TradeDate.After(upTo) {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].TradeDate.Before(matched[j].TradeDate) })
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched, nil
}

func (s *MemoryCanonicalStore) LatestTradeDate(ctx context.Context) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest time.Time
	for _, r := range s.rows {
		if r.TradeDate.After(latest) {
			latest = r.TradeDate
		}
	}
	return latest, nil
}

// Rows returns a copy of the full table, ordered as stored.
func (s *MemoryCanonicalStore) Rows() []models.CanonicalPriceRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make([]models.CanonicalPriceRow, len(s.rows))
	copy(cp, s.rows)
	return cp
}

// MemorySignalStore keeps one snapshot per run date.
type MemorySignalStore struct {
	mu   sync.RWMutex
	runs map[string]*models.ScanRun
}

func NewMemorySignalStore() *MemorySignalStore {
	return &MemorySignalStore{runs: make(map[string]*models.ScanRun)}
}

func (s *MemorySignalStore) ReplaceRun(ctx context.Context, run *models.ScanRun) error {
	s.mu.Lock()
	s.runs[partitionKey(run.RunDate)] = run
	s.mu.Unlock()
	return nil
}

// Run returns the stored snapshot for a run date, or nil.
func (s *MemorySignalStore) Run(runDate time.Time) *models.ScanRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runs[partitionKey(runDate)]
}

func partitionKey(d time.Time) string {
	return d.Format(util.DateLayout)
}

var (
	_ domrepo.RawPriceStore  = (*MemoryRawPriceStore)(nil)
	_ domrepo.RawNewsStore   = (*MemoryRawNewsStore)(nil)
	_ domrepo.UniverseStore  = (*MemoryUniverseStore)(nil)
	_ domrepo.CanonicalStore = (*MemoryCanonicalStore)(nil)
	_ domrepo.SignalStore    = (*MemorySignalStore)(nil)
)
