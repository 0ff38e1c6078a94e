package signals

import (
	"fmt"
	"math"
	"sort"

	"MarketScan/internal/domain/models"
)

// relTol is the relative tolerance for close-price equality checks, so
// representation error never produces a spurious false on a 52-week extreme.
const relTol = 1e-9

// Config holds the trailing-window lengths and score weights. All windows
// end at the run date; nothing past it is ever read.
type Config struct {
	// ZWindow is the number of trailing daily returns, ending at and
	// including the run date, used to z-score ret_1d.
	ZWindow int
	// RVolWindow is the relative-volume baseline window. Convention:
	// the sessions strictly before the run date; the run date's own volume
	// is only the numerator.
	RVolWindow int
	// RVolMinSessions is the minimum number of prior sessions required
	// before rvol is computed at all.
	RVolMinSessions int
	// ExtremeWindow is the 52-week high/low window (includes the run date).
	ExtremeWindow int
	// MAShort and MALong are the moving-average cross windows.
	MAShort int
	MALong  int

	// Score weights: WeightZ*|z| + WeightRVol*max(0, rvol-1) + WeightFlags*flags.
	WeightZ     float64
	WeightRVol  float64
	WeightFlags float64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ZWindow:         20,
		RVolWindow:      60,
		RVolMinSessions: 20,
		ExtremeWindow:   252,
		MAShort:         50,
		MALong:          200,
		WeightZ:         1.0,
		WeightRVol:      1.0,
		WeightFlags:     1.0,
	}
}

// Validate reports a configuration error before any computation happens.
func (c Config) Validate() error {
	switch {
	case c.ZWindow < 2:
		return fmt.Errorf("signals: z window must be >= 2, got %d", c.ZWindow)
	case c.RVolWindow <= 0 || c.RVolMinSessions <= 0:
		return fmt.Errorf("signals: rvol windows must be positive")
	case c.RVolMinSessions > c.RVolWindow:
		return fmt.Errorf("signals: rvol min sessions %d exceeds window %d", c.RVolMinSessions, c.RVolWindow)
	case c.ExtremeWindow <= 0:
		return fmt.Errorf("signals: extreme window must be positive")
	case c.MAShort <= 0 || c.MALong <= c.MAShort:
		return fmt.Errorf("signals: moving-average windows must satisfy 0 < short < long")
	case c.WeightZ < 0 || c.WeightRVol < 0 || c.WeightFlags < 0:
		return fmt.Errorf("signals: score weights must be non-negative")
	}
	return nil
}

// Hash is a stable fingerprint of the configuration, used in memoization keys.
func (c Config) Hash() string {
	return fmt.Sprintf("z%d-rv%d.%d-x%d-ma%d.%d-w%g.%g.%g",
		c.ZWindow, c.RVolWindow, c.RVolMinSessions, c.ExtremeWindow,
		c.MAShort, c.MALong, c.WeightZ, c.WeightRVol, c.WeightFlags)
}

// HistoryDepth is how many trailing sessions a vector computation can
// consume; callers use it as the canonical-store query limit.
func (c Config) HistoryDepth() int {
	depth := c.ExtremeWindow
	if n := c.MALong + 1; n > depth {
		depth = n
	}
	if n := c.RVolWindow + 1; n > depth {
		depth = n
	}
	if n := c.ZWindow + 1; n > depth {
		depth = n
	}
	return depth
}

// Engine computes signal vectors. It is pure: identical series and
// configuration always yield identical vectors.
type Engine struct {
	cfg Config
}

// NewEngine validates cfg and returns an engine.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Vector computes the signal vector for the last row of series, which must
// be ordered ascending by trade date and end at the run date. Fields whose
// trailing window is too short stay nil ("insufficient data"), and the run
// never aborts because of them.
func (e *Engine) Vector(series []models.CanonicalPriceRow) models.SignalVector {
	n := len(series)
	last := series[n-1]
	v := models.SignalVector{Symbol: last.Symbol, RunDate: last.TradeDate}

	closes := make([]float64, n)
	for i, row := range series {
		closes[i] = row.Close
	}

	if n >= 2 && closes[n-2] != 0 {
		ret := closes[n-1]/closes[n-2] - 1
		v.Ret1D = &ret
	}

	v.ZRet1D = e.zScore(closes, v.Ret1D)
	v.RVol60 = e.relativeVolume(series)
	v.Is52wHigh, v.Is52wLow = e.extremes(closes)
	v.Flag200DCrossUp, v.Flag200DCrossDown = e.maCross(closes)

	for _, f := range []bool{v.Is52wHigh, v.Is52wLow, v.Flag200DCrossUp, v.Flag200DCrossDown} {
		if f {
			v.EventFlagCount++
		}
	}
	v.Score = e.score(v)
	return v
}

// Rank orders vectors into the reproducible total order: score descending,
// |z_ret_1d| descending (nil counts as 0, mirroring its score contribution),
// then symbol ascending.
func (e *Engine) Rank(vectors []models.SignalVector) {
	sort.SliceStable(vectors, func(i, j int) bool {
		if vectors[i].Score != vectors[j].Score {
			return vectors[i].Score > vectors[j].Score
		}
		zi, zj := absOrZero(vectors[i].ZRet1D), absOrZero(vectors[j].ZRet1D)
		if zi != zj {
			return zi > zj
		}
		return vectors[i].Symbol < vectors[j].Symbol
	})
}

// zScore standardizes ret_1d against the trailing ZWindow daily returns
// ending at the run date. Nil when the window is short, the return itself is
// undefined, or the window has zero variance.
func (e *Engine) zScore(closes []float64, ret1d *float64) *float64 {
	if ret1d == nil {
		return nil
	}
	rets := dailyReturns(closes)
	if len(rets) < e.cfg.ZWindow {
		return nil
	}
	w := rets[len(rets)-e.cfg.ZWindow:]
	m := mean(w)
	s := sampleStd(w, m)
	if s == 0 {
		return nil
	}
	z := (*ret1d - m) / s
	return &z
}

// relativeVolume divides the run date's volume by the median volume of the
// RVolWindow sessions strictly before it.
func (e *Engine) relativeVolume(series []models.CanonicalPriceRow) *float64 {
	n := len(series)
	prior := series[:n-1]
	if len(prior) < e.cfg.RVolMinSessions {
		return nil
	}
	if len(prior) > e.cfg.RVolWindow {
		prior = prior[len(prior)-e.cfg.RVolWindow:]
	}
	vols := make([]float64, len(prior))
	for i, row := range prior {
		vols[i] = float64(row.Volume)
	}
	med := median(vols)
	if med == 0 {
		return nil
	}
	rv := float64(series[n-1].Volume) / med
	return &rv
}

// extremes reports whether the run date's close ties the max/min close of
// the trailing ExtremeWindow sessions. Ties count as extremes.
func (e *Engine) extremes(closes []float64) (high, low bool) {
	w := closes
	if len(w) > e.cfg.ExtremeWindow {
		w = w[len(w)-e.cfg.ExtremeWindow:]
	}
	mx, mn := w[0], w[0]
	for _, c := range w[1:] {
		if c > mx {
			mx = c
		}
		if c < mn {
			mn = c
		}
	}
	last := closes[len(closes)-1]
	return approxEqual(last, mx), approxEqual(last, mn)
}

// maCross flags a short/long moving-average relation flip between the prior
// session and the run date. Both averages must be fully formed on both
// sessions, so fewer than MALong+1 rows means no flag.
func (e *Engine) maCross(closes []float64) (up, down bool) {
	n := len(closes)
	if n < e.cfg.MALong+1 {
		return false, false
	}
	shortCur := sma(closes, e.cfg.MAShort, n-1)
	longCur := sma(closes, e.cfg.MALong, n-1)
	shortPrev := sma(closes, e.cfg.MAShort, n-2)
	longPrev := sma(closes, e.cfg.MALong, n-2)

	up = shortPrev < longPrev && shortCur >= longCur
	down = shortPrev > longPrev && shortCur <= longCur
	return up, down
}

// score combines the components; nil components contribute 0 rather than
// dropping the row.
func (e *Engine) score(v models.SignalVector) float64 {
	s := e.cfg.WeightZ * absOrZero(v.ZRet1D)
	if v.RVol60 != nil && *v.RVol60 > 1 {
		s += e.cfg.WeightRVol * (*v.RVol60 - 1)
	}
	s += e.cfg.WeightFlags * float64(v.EventFlagCount)
	return s
}

func dailyReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	rets := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			rets = append(rets, 0)
			continue
		}
		rets = append(rets, closes[i]/closes[i-1]-1)
	}
	return rets
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sampleStd is the n-1 standard deviation.
func sampleStd(xs []float64, m float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

func median(xs []float64) float64 {
	s := make([]float64, len(xs))
	copy(s, xs)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

// sma is the simple moving average of the window rows ending at endIdx.
func sma(xs []float64, window, endIdx int) float64 {
	var sum float64
	for i := endIdx - window + 1; i <= endIdx; i++ {
		sum += xs[i]
	}
	return sum / float64(window)
}

func approxEqual(a, b float64) bool {
	if a == b {
		return true
	}
	diff := math.Abs(a - b)
	scale := math.Max(math.Abs(a), math.Abs(b))
	if scale == 0 {
		return diff == 0
	}
	return diff <= relTol*scale
}

func absOrZero(p *float64) float64 {
	if p == nil {
		return 0
	}
	return math.Abs(*p)
}
