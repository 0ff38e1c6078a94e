package signals

import (
	"math"
	"reflect"
	"testing"
	"time"

	"MarketScan/internal/domain/models"
)

func mkSeries(symbol string, closes []float64, volumes []int64) []models.CanonicalPriceRow {
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	rows := make([]models.CanonicalPriceRow, len(closes))
	for i, c := range closes {
		var vol int64 = 1000
		if volumes != nil {
			vol = volumes[i]
		}
		rows[i] = models.CanonicalPriceRow{
			Symbol:    symbol,
			TradeDate: base.AddDate(0, 0, i),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    vol,
		}
	}
	return rows
}

func defaultEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultConfig())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func TestConfigValidate(t *testing.T) {
	bad := []Config{
		{ZWindow: 1, RVolWindow: 60, RVolMinSessions: 20, ExtremeWindow: 252, MAShort: 50, MALong: 200},
		{ZWindow: 20, RVolWindow: 0, RVolMinSessions: 20, ExtremeWindow: 252, MAShort: 50, MALong: 200},
		{ZWindow: 20, RVolWindow: 60, RVolMinSessions: 61, ExtremeWindow: 252, MAShort: 50, MALong: 200},
		{ZWindow: 20, RVolWindow: 60, RVolMinSessions: 20, ExtremeWindow: 252, MAShort: 200, MALong: 50},
		{ZWindow: 20, RVolWindow: 60, RVolMinSessions: 20, ExtremeWindow: 252, MAShort: 50, MALong: 200, WeightZ: -1},
	}
	for i, cfg := range bad {
		if err := cfg.Validate(); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config must validate: %v", err)
	}
}

func TestRet1DWithOnePriorSession(t *testing.T) {
	e := defaultEngine(t)
	v := e.Vector(mkSeries("AAPL", []float64{100, 105}, nil))

	if v.Ret1D == nil {
		t.Fatal("ret_1d must be defined with two observations")
	}
	if got, want := *v.Ret1D, 0.05; math.Abs(got-want) > 1e-12 {
		t.Fatalf("ret_1d = %v, want %v", got, want)
	}
	if v.ZRet1D != nil {
		t.Fatal("z_ret_1d must be nil with fewer than ZWindow returns")
	}
	if v.RVol60 != nil {
		t.Fatal("rvol must be nil with a single prior session")
	}
}

func TestRet1DUndefinedWithSingleObservation(t *testing.T) {
	e := defaultEngine(t)
	v := e.Vector(mkSeries("AAPL", []float64{100}, nil))
	if v.Ret1D != nil || v.ZRet1D != nil {
		t.Fatal("ret_1d and z_ret_1d must be nil with one observation")
	}
}

func TestZScoreValue(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ZWindow = 2
	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	// Two returns a < b: z = (b - mean)/sampleStd = +sqrt(2)/2 regardless of values.
	v := e.Vector(mkSeries("AAPL", []float64{100, 101, 103}, nil))
	if v.ZRet1D == nil {
		t.Fatal("z_ret_1d must be defined")
	}
	want := math.Sqrt2 / 2
	if math.Abs(*v.ZRet1D-want) > 1e-9 {
		t.Fatalf("z_ret_1d = %v, want %v", *v.ZRet1D, want)
	}
}

func TestZScoreNilOnZeroVariance(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ZWindow = 3
	e, _ := NewEngine(cfg)
	// Constant growth: every return identical, sample std 0.
	v := e.Vector(mkSeries("AAPL", []float64{100, 110, 121, 133.1}, nil))
	if v.ZRet1D != nil {
		t.Fatalf("z_ret_1d = %v, want nil on zero variance", *v.ZRet1D)
	}
}

func TestRelativeVolumeStrictlyPriorConvention(t *testing.T) {
	e := defaultEngine(t)
	closes := make([]float64, 21)
	vols := make([]int64, 21)
	for i := range closes {
		closes[i] = 100
		vols[i] = int64(i + 1) // 1..20 prior, run date 21st
	}
	vols[20] = 100
	v := e.Vector(mkSeries("AAPL", closes, vols))

	if v.RVol60 == nil {
		t.Fatal("rvol must be defined with 20 prior sessions")
	}
	// Median over the 20 prior volumes (1..20) is 10.5; an inclusive window
	// of 21 values would give 11 instead.
	want := 100.0 / 10.5
	if math.Abs(*v.RVol60-want) > 1e-12 {
		t.Fatalf("rvol = %v, want %v (run-date volume must be excluded from the baseline)", *v.RVol60, want)
	}
}

func TestRelativeVolumeNilBelowMinSessions(t *testing.T) {
	e := defaultEngine(t)
	closes := make([]float64, 15)
	for i := range closes {
		closes[i] = 100
	}
	if v := e.Vector(mkSeries("AAPL", closes, nil)); v.RVol60 != nil {
		t.Fatal("rvol must be nil with fewer than 20 prior sessions")
	}
}

func TestFiftyTwoWeekHighCountsTies(t *testing.T) {
	e := defaultEngine(t)
	closes := make([]float64, 252)
	for i := range closes {
		closes[i] = 50
	}
	closes[10] = 75 // earlier occurrence of the max
	closes[251] = 75
	v := e.Vector(mkSeries("AAPL", closes, nil))

	if !v.Is52wHigh {
		t.Fatal("run-date close tying the window max must flag is_52w_high")
	}
	if v.Is52wLow {
		t.Fatal("is_52w_low must be false")
	}
}

func TestFiftyTwoWeekLow(t *testing.T) {
	e := defaultEngine(t)
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 50
	}
	closes[29] = 25
	v := e.Vector(mkSeries("AAPL", closes, nil))
	if !v.Is52wLow || v.Is52wHigh {
		t.Fatalf("got high=%v low=%v, want low only", v.Is52wHigh, v.Is52wLow)
	}
}

func TestMovingAverageCrossUp(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MAShort, cfg.MALong = 2, 3
	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	// Prior session: short avg 5.5 < long avg 7. Run date: short 10 >= long 10.
	v := e.Vector(mkSeries("AAPL", []float64{10, 10, 10, 1, 19}, nil))
	if !v.Flag200DCrossUp {
		t.Fatal("expected cross-up flag")
	}
	if v.Flag200DCrossDown {
		t.Fatal("cross-down must be false")
	}
}

func TestMovingAverageCrossDown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MAShort, cfg.MALong = 2, 3
	e, _ := NewEngine(cfg)
	v := e.Vector(mkSeries("AAPL", []float64{10, 10, 10, 19, 1}, nil))
	if !v.Flag200DCrossDown {
		t.Fatal("expected cross-down flag")
	}
	if v.Flag200DCrossUp {
		t.Fatal("cross-up must be false")
	}
}

func TestMovingAverageCrossInsufficientHistory(t *testing.T) {
	e := defaultEngine(t)
	closes := make([]float64, 150) // below MALong+1
	for i := range closes {
		closes[i] = 100
	}
	v := e.Vector(mkSeries("AAPL", closes, nil))
	if v.Flag200DCrossUp || v.Flag200DCrossDown {
		t.Fatal("cross flags must be false below MALong+1 sessions")
	}
}

func TestScoreNilComponentsContributeZero(t *testing.T) {
	e := defaultEngine(t)
	// Two rows: ret defined, z nil, rvol nil, flat series so the close ties
	// both window extremes (2 flags), no MA history.
	v := e.Vector(mkSeries("AAPL", []float64{100, 100}, nil))
	if v.EventFlagCount != 2 {
		t.Fatalf("event_flag_count = %d, want 2", v.EventFlagCount)
	}
	if v.Score != 2 {
		t.Fatalf("score = %v, want 2 (nil z and rvol contribute 0)", v.Score)
	}
}

func TestRankOrdering(t *testing.T) {
	e := defaultEngine(t)
	z2, z1 := 2.0, -1.0
	vectors := []models.SignalVector{
		{Symbol: "CCC", Score: 1.0, ZRet1D: &z1},
		{Symbol: "BBB", Score: 3.0, ZRet1D: &z1},
		{Symbol: "AAA", Score: 3.0, ZRet1D: &z2},
		{Symbol: "DDD", Score: 1.0, ZRet1D: &z1},
		{Symbol: "EEE", Score: 1.0}, // nil z ranks after |z|=1 at equal score
	}
	e.Rank(vectors)

	got := make([]string, len(vectors))
	for i, v := range vectors {
		got[i] = v.Symbol
	}
	want := []string{"AAA", "BBB", "CCC", "DDD", "EEE"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("rank order = %v, want %v", got, want)
	}
}

func TestVectorDeterministic(t *testing.T) {
	e := defaultEngine(t)
	closes := make([]float64, 300)
	vols := make([]int64, 300)
	for i := range closes {
		closes[i] = 100 + math.Sin(float64(i))*7 + float64(i%13)
		vols[i] = int64(1000 + (i*37)%500)
	}
	series := mkSeries("AAPL", closes, vols)

	a := e.Vector(series)
	b := e.Vector(series)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("vectors differ across runs: %+v vs %+v", a, b)
	}
	if a.Ret1D == nil || a.ZRet1D == nil || a.RVol60 == nil {
		t.Fatal("expected fully-formed vector with 300 sessions")
	}
}

func TestHistoryDepthCoversAllWindows(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.HistoryDepth(); got != 252 {
		t.Fatalf("history depth = %d, want 252", got)
	}
	cfg.MALong = 300
	if got := cfg.HistoryDepth(); got != 301 {
		t.Fatalf("history depth = %d, want 301", got)
	}
}
