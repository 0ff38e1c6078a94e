package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"MarketScan/internal/domain/models"
	domrepo "MarketScan/internal/domain/repository"
	applogger "MarketScan/pkg/logger"
)

const defaultWorkers = 8

// Orchestrator fans per-symbol fetches out over a bounded worker pool and
// collects each outcome. The pool only bounds in-flight work; the shared
// rate limiter inside the data client is the true throttle, so the pool is
// typically sized larger than the budget alone would suggest.
type Orchestrator struct {
	workers int
	logger  *applogger.Logger
}

// NewOrchestrator creates a pool runner; workers <= 0 falls back to a default.
func NewOrchestrator(workers int, logger *applogger.Logger) *Orchestrator {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Orchestrator{workers: workers, logger: logger}
}

// FetchFunc fetches one symbol's payload.
type FetchFunc[T any] func(ctx context.Context, symbol string) (T, error)

type outcome[T any] struct {
	symbol string
	value  T
	err    error
}

// FanOut runs fn once per symbol on the bounded pool. One symbol's failure
// never cancels or corrupts another's work; each outcome is captured and
// summarised in the report, with failures sorted by symbol for stable
// output. On context cancellation, not-yet-dispatched symbols are reported
// as failed while in-flight calls finish or fail naturally.
func FanOut[T any](ctx context.Context, o *Orchestrator, symbols []string, fn FetchFunc[T]) (map[string]T, *models.FetchReport) {
	jobs := make(chan string)
	results := make(chan outcome[T])

	var wg sync.WaitGroup
	for w := 0; w < o.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sym := range jobs {
				if err := ctx.Err(); err != nil {
					results <- outcome[T]{symbol: sym, err: err}
					continue
				}
				v, err := fn(ctx, sym)
				results <- outcome[T]{symbol: sym, value: v, err: err}
			}
		}()
	}

	go func() {
		for _, sym := range symbols {
			jobs <- sym
		}
		close(jobs)
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	values := make(map[string]T, len(symbols))
	report := &models.FetchReport{}
	for out := range results {
		if out.err != nil {
			report.Failed++
			report.Failures = append(report.Failures, models.SymbolFailure{
				Symbol: out.symbol,
				Reason: out.err.Error(),
			})
			continue
		}
		report.Succeeded++
		values[out.symbol] = out.value
	}
	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].Symbol < report.Failures[j].Symbol
	})

	if o.logger != nil && report.Failed > 0 {
		o.logger.Warn("fan-out finished with failures",
			applogger.Int("succeeded", report.Succeeded),
			applogger.Int("failed", report.Failed),
		)
	}
	return values, report
}

// Ingest acquires bronze data: universe snapshot, per-symbol price history,
// per-symbol recent news. All provider access goes through MarketData,
// which rate-limits every call.
type Ingest struct {
	market   domrepo.MarketData
	prices   domrepo.RawPriceStore
	news     domrepo.RawNewsStore
	universe domrepo.UniverseStore
	orch     *Orchestrator

	lookbackDays     int
	newsLookbackDays int

	logger  *applogger.Logger
	metrics domrepo.Metrics
}

// NewIngest wires the ingestion use case.
func NewIngest(
	market domrepo.MarketData,
	prices domrepo.RawPriceStore,
	news domrepo.RawNewsStore,
	universe domrepo.UniverseStore,
	orch *Orchestrator,
	lookbackDays, newsLookbackDays int,
	logger *applogger.Logger,
	metrics domrepo.Metrics,
) *Ingest {
	return &Ingest{
		market:           market,
		prices:           prices,
		news:             news,
		universe:         universe,
		orch:             orch,
		lookbackDays:     lookbackDays,
		newsLookbackDays: newsLookbackDays,
		logger:           logger,
		metrics:          metrics,
	}
}

// IngestUniverse fetches the current universe and writes the bronze
// snapshot for the partition. An empty universe is an error: nothing
// downstream can run without one.
func (in *Ingest) IngestUniverse(ctx context.Context, partition time.Time) ([]models.UniverseEntry, error) {
	entries, err := in.market.ListUniverse(ctx)
	if err != nil {
		return nil, fmt.Errorf("ingest universe: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("ingest universe: provider returned no constituents")
	}
	if err := in.universe.Write(ctx, partition, entries); err != nil {
		return nil, fmt.Errorf("write universe partition: %w", err)
	}
	if in.logger != nil {
		in.logger.Info("universe ingested", applogger.Int("symbols", len(entries)))
	}
	return entries, nil
}

// IngestPrices fetches price history for every symbol in parallel and
// writes one bronze partition. Per-symbol failures are captured in the
// report; the partition is written from whatever succeeded.
func (in *Ingest) IngestPrices(ctx context.Context, symbols []string, partition time.Time) (*models.FetchReport, error) {
	from := partition.AddDate(0, 0, -in.lookbackDays)

	results, report := FanOut(ctx, in.orch, symbols, func(ctx context.Context, symbol string) ([]models.RawPriceRecord, error) {
		recs, err := in.market.FetchPriceHistory(ctx, symbol, from, partition)
		if err != nil {
			if in.metrics != nil {
				in.metrics.RecordError("fetch_prices")
			}
			return nil, err
		}
		if in.metrics != nil {
			in.metrics.RecordFetch("prices", symbol)
		}
		return recs, nil
	})

	records := flattenBySymbol(results, partition, func(r models.RawPriceRecord, d time.Time) models.RawPriceRecord {
		r.IngestionDate = d
		return r
	})
	if err := in.prices.Write(ctx, partition, records); err != nil {
		return report, fmt.Errorf("write price partition: %w", err)
	}
	if in.logger != nil {
		in.logger.Info("prices ingested",
			applogger.String("partition", partition.Format("2006-01-02")),
			applogger.Int("symbols_ok", report.Succeeded),
			applogger.Int("symbols_failed", report.Failed),
			applogger.Int("records", len(records)),
		)
	}
	return report, nil
}

// IngestNews fetches recent news for the given symbols (typically the most
// interesting names of a run) and writes one bronze partition.
func (in *Ingest) IngestNews(ctx context.Context, symbols []string, partition time.Time) (*models.FetchReport, error) {
	results, report := FanOut(ctx, in.orch, symbols, func(ctx context.Context, symbol string) ([]models.RawNewsRecord, error) {
		items, err := in.market.FetchRecentNews(ctx, symbol, in.newsLookbackDays)
		if err != nil {
			if in.metrics != nil {
				in.metrics.RecordError("fetch_news")
			}
			return nil, err
		}
		if in.metrics != nil {
			in.metrics.RecordFetch("news", symbol)
		}
		return items, nil
	})

	records := flattenBySymbol(results, partition, func(r models.RawNewsRecord, d time.Time) models.RawNewsRecord {
		r.IngestionDate = d
		return r
	})
	if err := in.news.Write(ctx, partition, records); err != nil {
		return report, fmt.Errorf("write news partition: %w", err)
	}
	if in.logger != nil {
		in.logger.Info("news ingested",
			applogger.Int("symbols_ok", report.Succeeded),
			applogger.Int("records", len(records)),
		)
	}
	return report, nil
}

// flattenBySymbol concatenates per-symbol slices in symbol order and stamps
// the ingestion date, so partition content is deterministic.
func flattenBySymbol[T any](results map[string][]T, partition time.Time, stamp func(T, time.Time) T) []T {
	syms := make([]string, 0, len(results))
	for s := range results {
		syms = append(syms, s)
	}
	sort.Strings(syms)

	var out []T
	for _, s := range syms {
		for _, r := range results[s] {
			out = append(out, stamp(r, partition))
		}
	}
	return out
}
