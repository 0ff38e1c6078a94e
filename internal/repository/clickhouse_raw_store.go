package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"MarketScan/internal/domain/models"
	pkgch "MarketScan/pkg/clickhouse"
	applogger "MarketScan/pkg/logger"
	"MarketScan/pkg/util"
)

// insertChunkSize bounds one multi-row VALUES insert.
const insertChunkSize = 2000

// SchemaStatements are the idempotent DDL statements for every table this
// package touches, in dependency order. Fed to pkg/clickhouse InitSchema at
// startup.
var SchemaStatements = []string{
	`CREATE DATABASE IF NOT EXISTS marketscan`,
	`CREATE TABLE IF NOT EXISTS marketscan.raw_prices_eod (
		ingestion_date Date,
		symbol         LowCardinality(String),
		trade_date     Date,
		open           Decimal64(6),
		high           Decimal64(6),
		low            Decimal64(6),
		close          Decimal64(6),
		volume         Int64
	) ENGINE = MergeTree()
	PARTITION BY ingestion_date
	ORDER BY (symbol, trade_date)`,
	`CREATE TABLE IF NOT EXISTS marketscan.raw_news (
		ingestion_date Date,
		symbol         LowCardinality(String),
		published_at   DateTime('UTC'),
		headline       String,
		snippet        String
	) ENGINE = MergeTree()
	PARTITION BY ingestion_date
	ORDER BY (symbol, published_at)`,
	`CREATE TABLE IF NOT EXISTS marketscan.universe_snapshots (
		ingestion_date Date,
		symbol         LowCardinality(String),
		name           String,
		sector         LowCardinality(String),
		sub_sector     LowCardinality(String)
	) ENGINE = MergeTree()
	PARTITION BY ingestion_date
	ORDER BY symbol`,
	`CREATE TABLE IF NOT EXISTS marketscan.canonical_prices (
		symbol     LowCardinality(String),
		trade_date Date,
		open       Float64,
		high       Float64,
		low        Float64,
		close      Float64,
		volume     Int64
	) ENGINE = MergeTree()
	ORDER BY (symbol, trade_date)`,
	`CREATE TABLE IF NOT EXISTS marketscan.signal_runs (
		run_date             Date,
		generated_at         DateTime('UTC'),
		rank                 UInt32,
		symbol               LowCardinality(String),
		ret_1d               Nullable(Float64),
		z_ret_1d             Nullable(Float64),
		rvol_60              Nullable(Float64),
		is_52w_high          UInt8,
		is_52w_low           UInt8,
		flag_200d_cross_up   UInt8,
		flag_200d_cross_down UInt8,
		event_flag_count     UInt16,
		score                Float64
	) ENGINE = MergeTree()
	PARTITION BY run_date
	ORDER BY (run_date, rank)`,
}

// CHRawPriceStore persists bronze price records in ClickHouse. Writes are
// idempotent at partition granularity: the ingestion-date partition is
// dropped and rewritten whole.
type CHRawPriceStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHRawPriceStore(ch *pkgch.Client, l *applogger.Logger) *CHRawPriceStore {
	return &CHRawPriceStore{db: ch.DB(), l: l}
}

func (s *CHRawPriceStore) Write(ctx context.Context, partition time.Time, records []models.RawPriceRecord) error {
	start := time.Now()
	if err := dropPartition(ctx, s.db, "marketscan.raw_prices_eod", partition); err != nil {
		return err
	}
	for chunkStart := 0; chunkStart < len(records); chunkStart += insertChunkSize {
		end := chunkStart + insertChunkSize
		if end > len(records) {
			end = len(records)
		}
		chunk := records[chunkStart:end]

		values := make([]string, 0, len(chunk))
		args := make([]interface{}, 0, len(chunk)*8)
		for _, r := range chunk {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				partition,
				r.Symbol,
				r.TradeDate,
				r.Open,
				r.High,
				r.Low,
				r.Close,
				r.Volume,
			)
		}
		q := "INSERT INTO marketscan.raw_prices_eod (ingestion_date, symbol, trade_date, open, high, low, close, volume) VALUES " + strings.Join(values, ",")
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert raw prices: %w", err)
		}
	}
	if s.l != nil {
		s.l.Info("clickhouse raw prices written",
			applogger.String("partition", partition.Format(util.DateLayout)),
			applogger.Int("rows", len(records)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return nil
}

func (s *CHRawPriceStore) Read(ctx context.Context, partition time.Time) ([]models.RawPriceRecord, error) {
	const q = `
        SELECT symbol, trade_date, open, high, low, close, volume
        FROM marketscan.raw_prices_eod
        WHERE ingestion_date = ?
        ORDER BY symbol ASC, trade_date ASC
    `
	rows, err := s.db.QueryContext(ctx, q, partition)
	if err != nil {
		return nil, fmt.Errorf("read raw prices: %w", err)
	}
	defer rows.Close()

	out := make([]models.RawPriceRecord, 0, 1024)
	for rows.Next() {
		r := models.RawPriceRecord{IngestionDate: partition}
		if err := rows.Scan(&r.Symbol, &r.TradeDate, &r.Open, &r.High, &r.Low, &r.Close, &r.Volume); err != nil {
			return nil, fmt.Errorf("scan raw price: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *CHRawPriceStore) Partitions(ctx context.Context) ([]time.Time, error) {
	const q = `
        SELECT DISTINCT ingestion_date
        FROM marketscan.raw_prices_eod
        ORDER BY ingestion_date ASC
    `
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list raw partitions: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan partition date: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CHRawNewsStore persists bronze news records in ClickHouse.
type CHRawNewsStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHRawNewsStore(ch *pkgch.Client, l *applogger.Logger) *CHRawNewsStore {
	return &CHRawNewsStore{db: ch.DB(), l: l}
}

func (s *CHRawNewsStore) Write(ctx context.Context, partition time.Time, records []models.RawNewsRecord) error {
	if err := dropPartition(ctx, s.db, "marketscan.raw_news", partition); err != nil {
		return err
	}
	for chunkStart := 0; chunkStart < len(records); chunkStart += insertChunkSize {
		end := chunkStart + insertChunkSize
		if end > len(records) {
			end = len(records)
		}
		chunk := records[chunkStart:end]

		values := make([]string, 0, len(chunk))
		args := make([]interface{}, 0, len(chunk)*5)
		for _, r := range chunk {
			values = append(values, "(?, ?, ?, ?, ?)")
			args = append(args, partition, r.Symbol, r.PublishedAt, r.Headline, r.Snippet)
		}
		q := "INSERT INTO marketscan.raw_news (ingestion_date, symbol, published_at, headline, snippet) VALUES " + strings.Join(values, ",")
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert raw news: %w", err)
		}
	}
	if s.l != nil {
		s.l.Info("clickhouse raw news written",
			applogger.String("partition", partition.Format(util.DateLayout)),
			applogger.Int("rows", len(records)),
		)
	}
	return nil
}

func (s *CHRawNewsStore) Read(ctx context.Context, partition time.Time) ([]models.RawNewsRecord, error) {
	const q = `
        SELECT symbol, published_at, headline, snippet
        FROM marketscan.raw_news
        WHERE ingestion_date = ?
        ORDER BY symbol ASC, published_at DESC
    `
	rows, err := s.db.QueryContext(ctx, q, partition)
	if err != nil {
		return nil, fmt.Errorf("read raw news: %w", err)
	}
	defer rows.Close()

	var out []models.RawNewsRecord
	for rows.Next() {
		r := models.RawNewsRecord{IngestionDate: partition}
		if err := rows.Scan(&r.Symbol, &r.PublishedAt, &r.Headline, &r.Snippet); err != nil {
			return nil, fmt.Errorf("scan raw news: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CHUniverseStore persists universe snapshots in ClickHouse.
type CHUniverseStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHUniverseStore(ch *pkgch.Client, l *applogger.Logger) *CHUniverseStore {
	return &CHUniverseStore{db: ch.DB(), l: l}
}

func (s *CHUniverseStore) Write(ctx context.Context, partition time.Time, entries []models.UniverseEntry) error {
	if err := dropPartition(ctx, s.db, "marketscan.universe_snapshots", partition); err != nil {
		return err
	}
	values := make([]string, 0, len(entries))
	args := make([]interface{}, 0, len(entries)*5)
	for _, e := range entries {
		values = append(values, "(?, ?, ?, ?, ?)")
		args = append(args, partition, e.Symbol, e.Name, e.Sector, e.SubSector)
	}
	if len(values) == 0 {
		return nil
	}
	q := "INSERT INTO marketscan.universe_snapshots (ingestion_date, symbol, name, sector, sub_sector) VALUES " + strings.Join(values, ",")
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert universe: %w", err)
	}
	return nil
}

func (s *CHUniverseStore) Latest(ctx context.Context) ([]models.UniverseEntry, error) {
	const q = `
        SELECT symbol, name, sector, sub_sector
        FROM marketscan.universe_snapshots
        WHERE ingestion_date = (SELECT max(ingestion_date) FROM marketscan.universe_snapshots)
        ORDER BY symbol ASC
    `
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("read latest universe: %w", err)
	}
	defer rows.Close()

	var out []models.UniverseEntry
	for rows.Next() {
		var e models.UniverseEntry
		if err := rows.Scan(&e.Symbol, &e.Name, &e.Sector, &e.SubSector); err != nil {
			return nil, fmt.Errorf("scan universe entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// dropPartition removes one daily partition so the follow-up insert replaces
// it wholesale. A missing partition is not an error.
func dropPartition(ctx context.Context, db *sql.DB, table string, partition time.Time) error {
	q := fmt.Sprintf("ALTER TABLE %s DROP PARTITION '%s'", table, partition.Format(util.DateLayout))
	if _, err := db.ExecContext(ctx, q); err != nil {
		if strings.Contains(err.Error(), "Unknown partition") || strings.Contains(err.Error(), "doesn't exist") {
			return nil
		}
		return fmt.Errorf("drop partition %s of %s: %w", partition.Format(util.DateLayout), table, err)
	}
	return nil
}
