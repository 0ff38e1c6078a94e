package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"MarketScan/internal/domain/models"
	"MarketScan/internal/repository"
	"MarketScan/internal/service/cache"
	"MarketScan/internal/services/signals"
)

func testEngine(t *testing.T) *signals.Engine {
	t.Helper()
	e, err := signals.NewEngine(signals.Config{
		ZWindow:         2,
		RVolWindow:      5,
		RVolMinSessions: 2,
		ExtremeWindow:   5,
		MAShort:         2,
		MALong:          3,
		WeightZ:         1,
		WeightRVol:      1,
		WeightFlags:     1,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func seedCanonical(t *testing.T, canon *repository.MemoryCanonicalStore, symbol string, start time.Time, closes []float64) {
	t.Helper()
	rows := make([]models.CanonicalPriceRow, len(closes))
	for i, c := range closes {
		rows[i] = models.CanonicalPriceRow{
			Symbol:    symbol,
			TradeDate: start.AddDate(0, 0, i),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    1000,
		}
	}
	existing := canon.Rows()
	if _, err := canon.Replace(context.Background(), append(existing, rows...)); err != nil {
		t.Fatal(err)
	}
}

func TestComputeSkipsSymbolsNotTradingOnRunDate(t *testing.T) {
	canon := repository.NewMemoryCanonicalStore()
	start := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	runDate := start.AddDate(0, 0, 9)

	seedCanonical(t, canon, "AAA", start, []float64{100, 101, 102, 103, 104, 105, 106, 107, 108, 109})
	// BBB stopped trading before the run date.
	seedCanonical(t, canon, "BBB", start, []float64{50, 51, 52})

	runner := NewSignalRunner(canon, testEngine(t), nil, 0, nil, nil)
	vectors, err := runner.Compute(context.Background(), runDate, []string{"AAA", "BBB"}, 0)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(vectors) != 1 || vectors[0].Symbol != "AAA" {
		t.Fatalf("vectors = %+v, want AAA only", vectors)
	}
}

func TestComputeFiltersBelowMinScore(t *testing.T) {
	canon := repository.NewMemoryCanonicalStore()
	start := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	runDate := start.AddDate(0, 0, 9)
	seedCanonical(t, canon, "AAA", start, []float64{100, 101, 102, 103, 104, 105, 106, 107, 108, 109})

	runner := NewSignalRunner(canon, testEngine(t), nil, 0, nil, nil)
	vectors, err := runner.Compute(context.Background(), runDate, []string{"AAA"}, 1e9)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(vectors) != 0 {
		t.Fatalf("got %d vectors above an impossible threshold", len(vectors))
	}
}

func TestComputeRequiresRunDate(t *testing.T) {
	runner := NewSignalRunner(repository.NewMemoryCanonicalStore(), testEngine(t), nil, 0, nil, nil)
	if _, err := runner.Compute(context.Background(), time.Time{}, []string{"AAA"}, 0); err == nil {
		t.Fatal("zero run date must be rejected")
	}
}

func TestResolveRunDateEmptyTable(t *testing.T) {
	runner := NewSignalRunner(repository.NewMemoryCanonicalStore(), testEngine(t), nil, 0, nil, nil)
	if _, err := runner.ResolveRunDate(context.Background()); err == nil {
		t.Fatal("empty canonical table must not resolve a run date")
	}
}

// countingCanonical wraps the memory store to count History reads.
type countingCanonical struct {
	*repository.MemoryCanonicalStore
	mu    sync.Mutex
	reads int
}

func (c *countingCanonical) History(ctx context.Context, symbol string, upTo time.Time, limit int) ([]models.CanonicalPriceRow, error) {
	c.mu.Lock()
	c.reads++
	c.mu.Unlock()
	return c.MemoryCanonicalStore.History(ctx, symbol, upTo, limit)
}

func TestComputeMemoizesFinishedRuns(t *testing.T) {
	canon := &countingCanonical{MemoryCanonicalStore: repository.NewMemoryCanonicalStore()}
	start := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	runDate := start.AddDate(0, 0, 9)
	seedCanonical(t, canon.MemoryCanonicalStore, "AAA", start, []float64{100, 101, 102, 103, 104, 105, 106, 107, 108, 109})

	runner := NewSignalRunner(canon, testEngine(t), cache.NewTTLCache(), time.Minute, nil, nil)

	first, err := runner.Compute(context.Background(), runDate, []string{"AAA"}, 0)
	if err != nil {
		t.Fatalf("first compute: %v", err)
	}
	readsAfterFirst := canon.reads

	second, err := runner.Compute(context.Background(), runDate, []string{"AAA"}, 0)
	if err != nil {
		t.Fatalf("second compute: %v", err)
	}
	if canon.reads != readsAfterFirst {
		t.Fatalf("second compute hit the store %d more times, want 0", canon.reads-readsAfterFirst)
	}
	if len(first) != len(second) || first[0].Symbol != second[0].Symbol || first[0].Score != second[0].Score {
		t.Fatalf("cached result differs: %+v vs %+v", first, second)
	}
}

type capturingPublisher struct {
	mu   sync.Mutex
	runs []*models.ScanRun
}

func (p *capturingPublisher) PublishRun(ctx context.Context, run *models.ScanRun) error {
	p.mu.Lock()
	p.runs = append(p.runs, run)
	p.mu.Unlock()
	return nil
}

func (p *capturingPublisher) Close() error { return nil }

func TestPipelineRunEndToEnd(t *testing.T) {
	start := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	days := 10

	market := &fakeMarket{
		universe: []models.UniverseEntry{
			{Symbol: "AAPL", Name: "Apple"},
			{Symbol: "GOOD", Name: "Good Co"},
			{Symbol: "GONE", Name: "Gone Co"},
		},
		prices:   map[string][]models.RawPriceRecord{},
		priceErr: map[string]error{"GONE": context.DeadlineExceeded},
	}
	for _, sym := range []string{"AAPL", "GOOD"} {
		var recs []models.RawPriceRecord
		for i := 0; i < days; i++ {
			recs = append(recs, priceRecord(sym, start.AddDate(0, 0, i), 100+float64(i), 1000))
		}
		market.prices[sym] = recs
	}

	rawPrices := repository.NewMemoryRawPriceStore()
	rawNews := repository.NewMemoryRawNewsStore()
	uni := repository.NewMemoryUniverseStore()
	canon := repository.NewMemoryCanonicalStore()
	signalStore := repository.NewMemorySignalStore()
	pub := &capturingPublisher{}

	ing := NewIngest(market, rawPrices, rawNews, uni, NewOrchestrator(4, nil), 400, 7, nil, nil)
	builder := NewCanonicalBuilder(rawPrices, canon, nil)
	runner := NewSignalRunner(canon, testEngine(t), nil, 0, nil, nil)
	pipeline := NewScanPipeline(ing, builder, runner, signalStore, pub, 0, 5, nil, nil)

	run, err := pipeline.Run(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("pipeline run: %v", err)
	}

	wantRunDate := start.AddDate(0, 0, days-1)
	if !run.RunDate.Equal(wantRunDate) {
		t.Fatalf("run date = %v, want latest trade date %v", run.RunDate, wantRunDate)
	}
	if len(run.Vectors) != 2 {
		t.Fatalf("ranked %d symbols, want 2", len(run.Vectors))
	}
	if len(run.Omitted) != 1 || run.Omitted[0].Symbol != "GONE" {
		t.Fatalf("omitted = %+v, want GONE", run.Omitted)
	}
	if run.Universe != 3 {
		t.Fatalf("universe = %d, want 3", run.Universe)
	}

	if stored := signalStore.Run(wantRunDate); stored == nil {
		t.Fatal("run snapshot not persisted")
	}
	if len(pub.runs) != 1 {
		t.Fatalf("published %d runs, want 1", len(pub.runs))
	}
	if pipeline.LastRun() != run {
		t.Fatal("LastRun must return the finished run")
	}
	if rep := pipeline.LastReport(); rep == nil || rep.Failed != 1 {
		t.Fatalf("LastReport = %+v, want 1 failure", rep)
	}
}

func TestPipelineRunAbortsOnUniverseFailure(t *testing.T) {
	market := &fakeMarket{universeErr: context.DeadlineExceeded}
	ing := NewIngest(market, repository.NewMemoryRawPriceStore(), repository.NewMemoryRawNewsStore(),
		repository.NewMemoryUniverseStore(), NewOrchestrator(2, nil), 400, 7, nil, nil)
	builder := NewCanonicalBuilder(repository.NewMemoryRawPriceStore(), repository.NewMemoryCanonicalStore(), nil)
	runner := NewSignalRunner(repository.NewMemoryCanonicalStore(), testEngine(t), nil, 0, nil, nil)
	pipeline := NewScanPipeline(ing, builder, runner, nil, nil, 0, 0, nil, nil)

	if _, err := pipeline.Run(context.Background(), time.Time{}); err == nil {
		t.Fatal("universe failure must abort the run")
	}
	if pipeline.LastRun() != nil {
		t.Fatal("no run must be recorded after an aborted pipeline")
	}
}
