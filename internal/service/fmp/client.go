package fmp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"MarketScan/internal/domain/models"
	domrepo "MarketScan/internal/domain/repository"
	xhttp "MarketScan/pkg/http"
	applogger "MarketScan/pkg/logger"
	"MarketScan/pkg/util"

	"github.com/shopspring/decimal"
)

const (
	// DefaultBaseURL is the Financial Modeling Prep API root.
	DefaultBaseURL = "https://financialmodelingprep.com"

	// DefaultTimeout bounds one HTTP round trip.
	DefaultTimeout = 30 * time.Second

	universePath = "/stable/sp500-constituent"
	pricesPath   = "/stable/historical-price-eod/full"
	newsPath     = "/stable/news/stock"
)

// Limiter gates outbound calls. Exactly one Acquire happens per HTTP
// request, always before the request is issued.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Client is the FMP market-data client.
type Client struct {
	baseURL string
	apiKey  string
	http    *xhttp.Client
	limiter Limiter
	logger  *applogger.Logger
	metrics domrepo.Metrics
}

// Option configures the Client.
type Option func(*Client)

// WithBaseURL overrides the API root (tests point it at a local server).
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.http = xhttp.NewClient(xhttp.WithTimeout(timeout)) }
}

// WithLogger injects a structured logger.
func WithLogger(l *applogger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics injects a metrics recorder.
func WithMetrics(m domrepo.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates an FMP client. A missing key or limiter is a configuration
// error; it fails here, before any network activity.
func New(apiKey string, limiter Limiter, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("fmp: api key is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("fmp: rate limiter is required")
	}
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		http:    xhttp.NewClient(xhttp.WithTimeout(DefaultTimeout)),
		limiter: limiter,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type constituent struct {
	Symbol    string `json:"symbol"`
	Name      string `json:"name"`
	Sector    string `json:"sector"`
	SubSector string `json:"subSector"`
}

// ListUniverse returns the current S&P 500 constituents, sorted by symbol.
func (c *Client) ListUniverse(ctx context.Context) ([]models.UniverseEntry, error) {
	var raw []constituent
	if err := c.get(ctx, "list_universe", universePath, nil, &raw); err != nil {
		return nil, err
	}
	out := make([]models.UniverseEntry, 0, len(raw))
	for _, r := range raw {
		sym := util.NormalizeSymbol(r.Symbol)
		if sym == "" {
			continue
		}
		out = append(out, models.UniverseEntry{
			Symbol:    sym,
			Name:      r.Name,
			Sector:    r.Sector,
			SubSector: r.SubSector,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

type eodBar struct {
	Date   string          `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// FetchPriceHistory returns daily bars for symbol in [from, to], ordered
// ascending by trade date. An empty history is a valid result.
func (c *Client) FetchPriceHistory(ctx context.Context, symbol string, from, to time.Time) ([]models.RawPriceRecord, error) {
	params := map[string][]string{"symbol": {symbol}}
	if !from.IsZero() {
		params["from"] = []string{from.Format(util.DateLayout)}
	}
	if !to.IsZero() {
		params["to"] = []string{to.Format(util.DateLayout)}
	}

	var payload json.RawMessage
	if err := c.get(ctx, "price_history", pricesPath, params, &payload); err != nil {
		return nil, err
	}
	bars, err := normalizeHistory(payload)
	if err != nil {
		return nil, &UpstreamError{Op: "price_history", Status: http.StatusOK, Body: err.Error()}
	}

	out := make([]models.RawPriceRecord, 0, len(bars))
	for _, b := range bars {
		d, ok := util.ParseDate(b.Date)
		if !ok {
			return nil, &UpstreamError{Op: "price_history", Status: http.StatusOK, Body: fmt.Sprintf("bad bar date %q for %s", b.Date, symbol)}
		}
		out = append(out, models.RawPriceRecord{
			Symbol:    symbol,
			TradeDate: d,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TradeDate.Before(out[j].TradeDate) })
	return out, nil
}

// normalizeHistory accepts both shapes FMP serves for EOD history: a bare
// list, and {"historical": [...]} from the older endpoint.
func normalizeHistory(payload json.RawMessage) ([]eodBar, error) {
	var bars []eodBar
	if err := json.Unmarshal(payload, &bars); err == nil {
		return bars, nil
	}
	var wrapped struct {
		Historical []eodBar `json:"historical"`
	}
	if err := json.Unmarshal(payload, &wrapped); err != nil {
		return nil, fmt.Errorf("unrecognized history payload: %v", err)
	}
	return wrapped.Historical, nil
}

type newsItem struct {
	Symbol        string `json:"symbol"`
	PublishedDate string `json:"publishedDate"`
	Title         string `json:"title"`
	Text          string `json:"text"`
}

// FetchRecentNews returns news for symbol published within lookbackDays,
// newest first as served. An empty result is valid; the provider only keeps
// a few days of history on this endpoint.
func (c *Client) FetchRecentNews(ctx context.Context, symbol string, lookbackDays int) ([]models.RawNewsRecord, error) {
	params := map[string][]string{
		"symbols": {symbol},
		"limit":   {"50"},
	}
	var raw []newsItem
	if err := c.get(ctx, "recent_news", newsPath, params, &raw); err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -lookbackDays)
	out := make([]models.RawNewsRecord, 0, len(raw))
	for _, n := range raw {
		ts, ok := parseNewsTime(n.PublishedDate)
		if !ok {
			continue
		}
		if lookbackDays > 0 && ts.Before(cutoff) {
			continue
		}
		out = append(out, models.RawNewsRecord{
			Symbol:      symbol,
			PublishedAt: ts,
			Headline:    n.Title,
			Snippet:     n.Text,
		})
	}
	return out, nil
}

func parseNewsTime(s string) (time.Time, bool) {
	if t, ok := util.ParseTime(s); ok {
		return t, true
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// get acquires one rate-limit slot, issues the request, and classifies the
// outcome per the error taxonomy.
func (c *Client) get(ctx context.Context, op, path string, params map[string][]string, dest interface{}) error {
	waitStart := time.Now()
	if err := c.limiter.Acquire(ctx); err != nil {
		return &TransientError{Op: op, Err: err}
	}
	if c.metrics != nil {
		c.metrics.RecordLimiterWait(time.Since(waitStart).Seconds())
	}

	if params == nil {
		params = map[string][]string{}
	}
	params["apikey"] = []string{c.apiKey}

	resp, err := c.http.SendRequest(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.baseURL + path,
		QueryParams: params,
	})
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordError("transient")
		}
		return &TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		// Local governance should make this unreachable; do not swallow it.
		if c.logger != nil {
			c.logger.Warn("upstream quota desync",
				applogger.String("op", op),
				applogger.Int("status", resp.StatusCode),
			)
		}
		if c.metrics != nil {
			c.metrics.RecordError("quota_desync")
		}
		return &QuotaDesyncError{Op: op, Status: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if c.metrics != nil {
			c.metrics.RecordError("upstream")
		}
		return &UpstreamError{Op: op, Status: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return &UpstreamError{Op: op, Status: resp.StatusCode, Body: fmt.Sprintf("malformed response: %v", err)}
	}
	return nil
}

var _ domrepo.MarketData = (*Client)(nil)
