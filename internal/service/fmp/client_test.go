package fmp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

type countingLimiter struct {
	acquired atomic.Int64
}

func (l *countingLimiter) Acquire(ctx context.Context) error {
	l.acquired.Add(1)
	return nil
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *countingLimiter, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	lim := &countingLimiter{}
	c, err := New("test-key", lim, WithBaseURL(srv.URL), WithTimeout(2*time.Second))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c, lim, srv
}

func TestNewRequiresKeyAndLimiter(t *testing.T) {
	if _, err := New("", &countingLimiter{}); err == nil {
		t.Fatal("expected error for missing api key")
	}
	if _, err := New("key", nil); err == nil {
		t.Fatal("expected error for missing limiter")
	}
}

func TestListUniverse(t *testing.T) {
	c, lim, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != universePath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("apikey") != "test-key" {
			t.Errorf("missing apikey param")
		}
		w.Write([]byte(`[
			{"symbol":"MSFT","name":"Microsoft","sector":"Technology","subSector":"Software"},
			{"symbol":"AAPL","name":"Apple","sector":"Technology","subSector":"Hardware"}
		]`))
	}))

	got, err := c.ListUniverse(context.Background())
	if err != nil {
		t.Fatalf("list universe: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if got[0].Symbol != "AAPL" || got[1].Symbol != "MSFT" {
		t.Fatalf("universe not sorted by symbol: %v, %v", got[0].Symbol, got[1].Symbol)
	}
	if n := lim.acquired.Load(); n != 1 {
		t.Fatalf("limiter acquired %d times, want exactly 1", n)
	}
}

func TestFetchPriceHistoryBareList(t *testing.T) {
	c, lim, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("symbol"); got != "AAPL" {
			t.Errorf("symbol param = %q", got)
		}
		// provider serves newest first
		w.Write([]byte(`[
			{"date":"2024-10-11","open":101,"high":103,"low":100,"close":102.5,"volume":2000},
			{"date":"2024-10-10","open":100,"high":102,"low":99,"close":101.25,"volume":1000}
		]`))
	}))

	recs, err := c.FetchPriceHistory(context.Background(), "AAPL", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("fetch history: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if !recs[0].TradeDate.Before(recs[1].TradeDate) {
		t.Fatal("records not ascending by trade date")
	}
	if recs[0].Close.String() != "101.25" {
		t.Fatalf("close = %s, want 101.25", recs[0].Close)
	}
	if recs[0].Symbol != "AAPL" || recs[0].Volume != 1000 {
		t.Fatalf("unexpected record %+v", recs[0])
	}
	if n := lim.acquired.Load(); n != 1 {
		t.Fatalf("limiter acquired %d times, want exactly 1", n)
	}
}

func TestFetchPriceHistoryWrappedShape(t *testing.T) {
	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"AAPL","historical":[
			{"date":"2024-10-10","open":100,"high":102,"low":99,"close":101,"volume":1000}
		]}`))
	}))

	recs, err := c.FetchPriceHistory(context.Background(), "AAPL", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("fetch history: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
}

func TestFetchPriceHistoryEmptyIsValid(t *testing.T) {
	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))

	recs, err := c.FetchPriceHistory(context.Background(), "GONE", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("empty history must not error: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("got %d records, want 0", len(recs))
	}
}

func TestErrorTaxonomy(t *testing.T) {
	t.Run("4xx is UpstreamError", func(t *testing.T) {
		c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unknown symbol", http.StatusNotFound)
		}))
		_, err := c.FetchPriceHistory(context.Background(), "NOPE", time.Time{}, time.Time{})
		var ue *UpstreamError
		if !errors.As(err, &ue) {
			t.Fatalf("got %T (%v), want *UpstreamError", err, err)
		}
		if ue.Status != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", ue.Status)
		}
	})

	t.Run("429 is QuotaDesyncError", func(t *testing.T) {
		c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "limit reached", http.StatusTooManyRequests)
		}))
		_, err := c.ListUniverse(context.Background())
		var qe *QuotaDesyncError
		if !errors.As(err, &qe) {
			t.Fatalf("got %T (%v), want *QuotaDesyncError", err, err)
		}
	})

	t.Run("network failure is TransientError", func(t *testing.T) {
		c, _, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close()
		_, err := c.ListUniverse(context.Background())
		var te *TransientError
		if !errors.As(err, &te) {
			t.Fatalf("got %T (%v), want *TransientError", err, err)
		}
	})
}

func TestFetchRecentNewsFiltersLookback(t *testing.T) {
	recent := time.Now().UTC().Add(-24 * time.Hour).Format("2006-01-02 15:04:05")
	stale := time.Now().UTC().AddDate(0, 0, -30).Format("2006-01-02 15:04:05")
	c, lim, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("symbols"); got != "AAPL" {
			t.Errorf("symbols param = %q", got)
		}
		w.Write([]byte(`[
			{"symbol":"AAPL","publishedDate":"` + recent + `","title":"fresh","text":"..."},
			{"symbol":"AAPL","publishedDate":"` + stale + `","title":"old","text":"..."}
		]`))
	}))

	items, err := c.FetchRecentNews(context.Background(), "AAPL", 7)
	if err != nil {
		t.Fatalf("fetch news: %v", err)
	}
	if len(items) != 1 || items[0].Headline != "fresh" {
		t.Fatalf("lookback filter kept %d items: %+v", len(items), items)
	}
	if n := lim.acquired.Load(); n != 1 {
		t.Fatalf("limiter acquired %d times, want exactly 1", n)
	}
}
