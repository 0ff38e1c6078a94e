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

// CHCanonicalStore is the silver price table in ClickHouse. The table is
// only ever swapped whole by the canonical builder, so readers observe
// either the previous rebuild or the current one.
type CHCanonicalStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHCanonicalStore(ch *pkgch.Client, l *applogger.Logger) *CHCanonicalStore {
	return &CHCanonicalStore{db: ch.DB(), l: l}
}

func (s *CHCanonicalStore) Replace(ctx context.Context, rows []models.CanonicalPriceRow) (int, error) {
	start := time.Now()
	if _, err := s.db.ExecContext(ctx, "TRUNCATE TABLE marketscan.canonical_prices"); err != nil {
		return 0, fmt.Errorf("truncate canonical: %w", err)
	}
	for chunkStart := 0; chunkStart < len(rows); chunkStart += insertChunkSize {
		end := chunkStart + insertChunkSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[chunkStart:end]

		values := make([]string, 0, len(chunk))
		args := make([]interface{}, 0, len(chunk)*7)
		for _, r := range chunk {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
			args = append(args, r.Symbol, r.TradeDate, r.Open, r.High, r.Low, r.Close, r.Volume)
		}
		q := "INSERT INTO marketscan.canonical_prices (symbol, trade_date, open, high, low, close, volume) VALUES " + strings.Join(values, ",")
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return 0, fmt.Errorf("insert canonical: %w", err)
		}
	}
	if s.l != nil {
		s.l.Info("clickhouse canonical replaced",
			applogger.Int("rows", len(rows)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return len(rows), nil
}

func (s *CHCanonicalStore) History(ctx context.Context, symbol string, upTo time.Time, limit int) ([]models.CanonicalPriceRow, error) {
	const q = `
        SELECT symbol, trade_date, open, high, low, close, volume
        FROM marketscan.canonical_prices
        WHERE symbol = ? AND trade_date <= ?
        ORDER BY trade_date DESC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, q, symbol, upTo, limit)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse history query error",
				applogger.String("symbol", symbol),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer rows.Close()

	tmp := make([]models.CanonicalPriceRow, 0, limit)
	for rows.Next() {
		var r models.CanonicalPriceRow
		if err := rows.Scan(&r.Symbol, &r.TradeDate, &r.Open, &r.High, &r.Low, &r.Close, &r.Volume); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		tmp = append(tmp, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	// reverse to ASC
	for i, j := 0, len(tmp)-1; i < j; i, j = i+1, j-1 {
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	return tmp, nil
}

func (s *CHCanonicalStore) LatestTradeDate(ctx context.Context) (time.Time, error) {
	const q = `SELECT max(trade_date) FROM marketscan.canonical_prices`
	var d sql.NullTime
	if err := s.db.QueryRowContext(ctx, q).Scan(&d); err != nil {
		return time.Time{}, fmt.Errorf("latest trade date: %w", err)
	}
	if !d.Valid || d.Time.Year() <= 1970 {
		return time.Time{}, nil
	}
	return d.Time, nil
}

// CHSignalStore persists ranked run snapshots, one partition per run date.
type CHSignalStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHSignalStore(ch *pkgch.Client, l *applogger.Logger) *CHSignalStore {
	return &CHSignalStore{db: ch.DB(), l: l}
}

func (s *CHSignalStore) ReplaceRun(ctx context.Context, run *models.ScanRun) error {
	if err := dropPartition(ctx, s.db, "marketscan.signal_runs", run.RunDate); err != nil {
		return err
	}
	for chunkStart := 0; chunkStart < len(run.Vectors); chunkStart += insertChunkSize {
		end := chunkStart + insertChunkSize
		if end > len(run.Vectors) {
			end = len(run.Vectors)
		}
		chunk := run.Vectors[chunkStart:end]

		values := make([]string, 0, len(chunk))
		args := make([]interface{}, 0, len(chunk)*13)
		for i, v := range chunk {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				run.RunDate,
				run.GeneratedAt,
				uint32(chunkStart+i+1),
				v.Symbol,
				v.Ret1D,
				v.ZRet1D,
				v.RVol60,
				boolToUInt8(v.Is52wHigh),
				boolToUInt8(v.Is52wLow),
				boolToUInt8(v.Flag200DCrossUp),
				boolToUInt8(v.Flag200DCrossDown),
				uint16(v.EventFlagCount),
				v.Score,
			)
		}
		q := "INSERT INTO marketscan.signal_runs (run_date, generated_at, rank, symbol, ret_1d, z_ret_1d, rvol_60, is_52w_high, is_52w_low, flag_200d_cross_up, flag_200d_cross_down, event_flag_count, score) VALUES " + strings.Join(values, ",")
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert signal run: %w", err)
		}
	}
	if s.l != nil {
		s.l.Info("clickhouse signal run stored",
			applogger.String("run_date", run.RunDate.Format(util.DateLayout)),
			applogger.Int("rows", len(run.Vectors)),
		)
	}
	return nil
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
