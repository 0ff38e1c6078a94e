package repository

import (
	"context"
	"time"

	"MarketScan/internal/domain/models"
)

// MarketData is the upstream provider boundary. Every call is rate-limited
// by the implementation; empty results are valid (delisted symbol, quiet
// news window), not errors.
type MarketData interface {
	ListUniverse(ctx context.Context) ([]models.UniverseEntry, error)
	FetchPriceHistory(ctx context.Context, symbol string, from, to time.Time) ([]models.RawPriceRecord, error)
	FetchRecentNews(ctx context.Context, symbol string, lookbackDays int) ([]models.RawNewsRecord, error)
}

// RawPriceStore persists raw price records partitioned by ingestion date.
// Write replaces the whole partition (idempotent upsert-by-partition);
// records inside a partition are never updated.
type RawPriceStore interface {
	Write(ctx context.Context, partition time.Time, records []models.RawPriceRecord) error
	Read(ctx context.Context, partition time.Time) ([]models.RawPriceRecord, error)
	Partitions(ctx context.Context) ([]time.Time, error)
}

// RawNewsStore persists raw news records partitioned by ingestion date.
type RawNewsStore interface {
	Write(ctx context.Context, partition time.Time, records []models.RawNewsRecord) error
	Read(ctx context.Context, partition time.Time) ([]models.RawNewsRecord, error)
}

// UniverseStore persists universe snapshots partitioned by ingestion date.
type UniverseStore interface {
	Write(ctx context.Context, partition time.Time, entries []models.UniverseEntry) error
	Latest(ctx context.Context) ([]models.UniverseEntry, error)
}

// CanonicalStore is the queryable deduplicated price table.
type CanonicalStore interface {
	// Replace swaps the table content for rows and returns the count written.
	Replace(ctx context.Context, rows []models.CanonicalPriceRow) (int, error)
	// History returns up to limit rows for symbol with trade_date <= upTo,
	// ordered ascending by trade date.
	History(ctx context.Context, symbol string, upTo time.Time, limit int) ([]models.CanonicalPriceRow, error)
	// LatestTradeDate returns the most recent trade date in the table, or a
	// zero time when the table is empty.
	LatestTradeDate(ctx context.Context) (time.Time, error)
}

// SignalStore persists the ranked snapshot of a run, replacing any earlier
// snapshot for the same run date.
type SignalStore interface {
	ReplaceRun(ctx context.Context, run *models.ScanRun) error
}

// Publisher hands a finished run to downstream consumers.
type Publisher interface {
	PublishRun(ctx context.Context, run *models.ScanRun) error
	Close() error
}

// Metrics records operational measurements.
type Metrics interface {
	RecordFetch(kind, symbol string)
	RecordError(kind string)
	RecordLimiterWait(seconds float64)
	RecordLatency(op string, seconds float64)
	RecordScore(symbol string, score float64)
}
