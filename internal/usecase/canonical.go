package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"MarketScan/internal/domain/models"
	domrepo "MarketScan/internal/domain/repository"
	applogger "MarketScan/pkg/logger"
	"MarketScan/pkg/util"
)

// CanonicalBuilder derives the silver price table from every bronze
// partition. Duplicate (symbol, trade_date) pairs across partitions resolve
// to the record with the newest ingestion date, so re-running ingestion for
// a day converges instead of accumulating.
type CanonicalBuilder struct {
	raw    domrepo.RawPriceStore
	canon  domrepo.CanonicalStore
	logger *applogger.Logger
}

// NewCanonicalBuilder wires the builder.
func NewCanonicalBuilder(raw domrepo.RawPriceStore, canon domrepo.CanonicalStore, logger *applogger.Logger) *CanonicalBuilder {
	return &CanonicalBuilder{raw: raw, canon: canon, logger: logger}
}

// Rebuild reads all raw partitions, deduplicates, and replaces the canonical
// table. Idempotent: rebuilding from unchanged bronze yields an identical
// table. Returns the number of canonical rows written.
func (b *CanonicalBuilder) Rebuild(ctx context.Context) (int, error) {
	partitions, err := b.raw.Partitions(ctx)
	if err != nil {
		return 0, fmt.Errorf("list raw partitions: %w", err)
	}

	best := make(map[string]models.RawPriceRecord)
	for _, p := range partitions {
		records, err := b.raw.Read(ctx, p)
		if err != nil {
			return 0, fmt.Errorf("read raw partition %s: %w", p.Format(util.DateLayout), err)
		}
		for _, r := range records {
			k := dedupKey(r.Symbol, r.TradeDate)
			if cur, ok := best[k]; !ok || r.IngestionDate.After(cur.IngestionDate) {
				best[k] = r
			}
		}
	}

	rows := make([]models.CanonicalPriceRow, 0, len(best))
	for _, r := range best {
		rows = append(rows, models.CanonicalPriceRow{
			Symbol:    r.Symbol,
			TradeDate: r.TradeDate,
			Open:      r.Open.InexactFloat64(),
			High:      r.High.InexactFloat64(),
			Low:       r.Low.InexactFloat64(),
			Close:     r.Close.InexactFloat64(),
			Volume:    r.Volume,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Symbol != rows[j].Symbol {
			return rows[i].Symbol < rows[j].Symbol
		}
		return rows[i].TradeDate.Before(rows[j].TradeDate)
	})

	n, err := b.canon.Replace(ctx, rows)
	if err != nil {
		return 0, fmt.Errorf("replace canonical table: %w", err)
	}
	if b.logger != nil {
		b.logger.Info("canonical table rebuilt",
			applogger.Int("partitions", len(partitions)),
			applogger.Int("rows", n),
		)
	}
	return n, nil
}

func dedupKey(symbol string, tradeDate time.Time) string {
	return symbol + "|" + tradeDate.Format(util.DateLayout)
}
