package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"MarketScan/internal/domain/models"
	domrepo "MarketScan/internal/domain/repository"
	"MarketScan/internal/service/cache"
	"MarketScan/internal/services/signals"
	applogger "MarketScan/pkg/logger"
	"MarketScan/pkg/util"
)

// SignalRunner computes ranked signal vectors for a run date from the
// canonical table. Finished runs are memoized per (date, threshold, config)
// so repeated API reads of the same run skip recomputation.
type SignalRunner struct {
	canon    domrepo.CanonicalStore
	engine   *signals.Engine
	cache    cache.BytesCache
	cacheTTL time.Duration
	logger   *applogger.Logger
	metrics  domrepo.Metrics
}

// NewSignalRunner wires the runner; cache may be nil to disable memoization.
func NewSignalRunner(
	canon domrepo.CanonicalStore,
	engine *signals.Engine,
	c cache.BytesCache,
	cacheTTL time.Duration,
	logger *applogger.Logger,
	metrics domrepo.Metrics,
) *SignalRunner {
	return &SignalRunner{
		canon:    canon,
		engine:   engine,
		cache:    c,
		cacheTTL: cacheTTL,
		logger:   logger,
		metrics:  metrics,
	}
}

// ResolveRunDate returns the latest trade date present in the canonical
// table. Errors when the table is empty: there is nothing to scan.
func (r *SignalRunner) ResolveRunDate(ctx context.Context) (time.Time, error) {
	d, err := r.canon.LatestTradeDate(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("resolve run date: %w", err)
	}
	if d.IsZero() {
		return time.Time{}, fmt.Errorf("resolve run date: canonical table is empty")
	}
	return d, nil
}

// Compute builds one vector per universe symbol that traded on runDate,
// drops rows scoring below minScore, and ranks the rest. Symbols without a
// runDate row are skipped, never failed. The result is deterministic for a
// fixed canonical table.
func (r *SignalRunner) Compute(ctx context.Context, runDate time.Time, universe []string, minScore float64) ([]models.SignalVector, error) {
	if runDate.IsZero() {
		return nil, fmt.Errorf("compute signals: run date is required")
	}
	key := r.cacheKey(runDate, minScore)
	if cached, ok := r.cached(key); ok {
		return cached, nil
	}

	symbols := make([]string, len(universe))
	copy(symbols, universe)
	sort.Strings(symbols)

	depth := r.engine.Config().HistoryDepth()
	vectors := make([]models.SignalVector, 0, len(symbols))
	skipped := 0
	for _, sym := range symbols {
		rows, err := r.canon.History(ctx, sym, runDate, depth)
		if err != nil {
			return nil, fmt.Errorf("history for %s: %w", sym, err)
		}
		if len(rows) == 0 || !util.SameDate(rows[len(rows)-1].TradeDate, runDate) {
			skipped++
			continue
		}
		v := r.engine.Vector(rows)
		if r.metrics != nil {
			r.metrics.RecordScore(sym, v.Score)
		}
		if v.Score < minScore {
			continue
		}
		vectors = append(vectors, v)
	}
	r.engine.Rank(vectors)

	if r.logger != nil {
		r.logger.Info("signals computed",
			applogger.String("run_date", runDate.Format(util.DateLayout)),
			applogger.Int("ranked", len(vectors)),
			applogger.Int("skipped", skipped),
		)
	}
	r.memoize(key, vectors)
	return vectors, nil
}

func (r *SignalRunner) cacheKey(runDate time.Time, minScore float64) string {
	return fmt.Sprintf("signals:%s:%g:%s", runDate.Format(util.DateLayout), minScore, r.engine.Config().Hash())
}

func (r *SignalRunner) cached(key string) ([]models.SignalVector, bool) {
	if r.cache == nil {
		return nil, false
	}
	b, ok, err := r.cache.GetBytes(key)
	if err != nil || !ok {
		return nil, false
	}
	var vectors []models.SignalVector
	if err := json.Unmarshal(b, &vectors); err != nil {
		return nil, false
	}
	return vectors, true
}

func (r *SignalRunner) memoize(key string, vectors []models.SignalVector) {
	if r.cache == nil {
		return
	}
	b, err := json.Marshal(vectors)
	if err != nil {
		return
	}
	if err := r.cache.SetBytes(key, b, r.cacheTTL); err != nil && r.logger != nil {
		r.logger.Warn("signal cache write failed", applogger.Error(err))
	}
}

// ScanPipeline is the end-to-end run: refresh universe, ingest prices,
// rebuild the canonical table, compute and rank signals, pull news for the
// most interesting names, then persist and publish the snapshot.
type ScanPipeline struct {
	ingest   *Ingest
	builder  *CanonicalBuilder
	runner   *SignalRunner
	store    domrepo.SignalStore
	pub      domrepo.Publisher
	minScore float64
	newsTopK int
	logger   *applogger.Logger
	metrics  domrepo.Metrics

	mu         sync.Mutex
	lastRun    *models.ScanRun
	lastReport *models.FetchReport
}

// NewScanPipeline wires the pipeline; store and pub may be nil (disabled).
func NewScanPipeline(
	ingest *Ingest,
	builder *CanonicalBuilder,
	runner *SignalRunner,
	store domrepo.SignalStore,
	pub domrepo.Publisher,
	minScore float64,
	newsTopK int,
	logger *applogger.Logger,
	metrics domrepo.Metrics,
) *ScanPipeline {
	return &ScanPipeline{
		ingest:   ingest,
		builder:  builder,
		runner:   runner,
		store:    store,
		pub:      pub,
		minScore: minScore,
		newsTopK: newsTopK,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run executes one full scan. A zero runDate means "latest available trade
// date after ingestion". Per-symbol fetch failures degrade the run (they are
// listed in the snapshot's Omitted set); universe, storage, or rebuild
// failures abort it.
func (p *ScanPipeline) Run(ctx context.Context, runDate time.Time) (*models.ScanRun, error) {
	start := time.Now()
	partition := util.Today()

	entries, err := p.ingest.IngestUniverse(ctx, partition)
	if err != nil {
		return nil, err
	}
	symbols := make([]string, len(entries))
	for i, e := range entries {
		symbols[i] = e.Symbol
	}

	report, err := p.ingest.IngestPrices(ctx, symbols, partition)
	if err != nil {
		return nil, err
	}

	if _, err := p.builder.Rebuild(ctx); err != nil {
		return nil, err
	}

	if runDate.IsZero() {
		runDate, err = p.runner.ResolveRunDate(ctx)
		if err != nil {
			return nil, err
		}
	}
	vectors, err := p.runner.Compute(ctx, runDate, symbols, p.minScore)
	if err != nil {
		return nil, err
	}

	// News enrichment is best effort: a news outage never voids the ranking.
	if p.newsTopK > 0 && len(vectors) > 0 {
		top := vectors
		if len(top) > p.newsTopK {
			top = top[:p.newsTopK]
		}
		topSymbols := make([]string, len(top))
		for i, v := range top {
			topSymbols[i] = v.Symbol
		}
		if _, err := p.ingest.IngestNews(ctx, topSymbols, partition); err != nil && p.logger != nil {
			p.logger.Warn("news enrichment failed", applogger.Error(err))
		}
	}

	run := &models.ScanRun{
		RunDate:     runDate,
		GeneratedAt: time.Now().UTC(),
		Vectors:     vectors,
		Omitted:     report.Failures,
		Universe:    len(symbols),
	}

	if p.store != nil {
		if err := p.store.ReplaceRun(ctx, run); err != nil {
			return nil, fmt.Errorf("persist run snapshot: %w", err)
		}
	}
	if p.pub != nil {
		if err := p.pub.PublishRun(ctx, run); err != nil && p.logger != nil {
			p.logger.Warn("publish run failed", applogger.Error(err))
		}
	}

	p.mu.Lock()
	p.lastRun = run
	p.lastReport = report
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.RecordLatency("scan_run", time.Since(start).Seconds())
	}
	if p.logger != nil {
		p.logger.Info("scan run finished",
			applogger.String("run_date", runDate.Format(util.DateLayout)),
			applogger.Int("ranked", len(vectors)),
			applogger.Int("omitted", len(run.Omitted)),
			applogger.Duration("took", time.Since(start)),
		)
	}
	return run, nil
}

// LastRun returns the most recent finished run, or nil before the first one.
func (p *ScanPipeline) LastRun() *models.ScanRun {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRun
}

// LastReport returns the fetch report of the most recent run, or nil.
func (p *ScanPipeline) LastReport() *models.FetchReport {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastReport
}
