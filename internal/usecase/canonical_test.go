package usecase

import (
	"context"
	"reflect"
	"testing"
	"time"

	"MarketScan/internal/domain/models"
	"MarketScan/internal/repository"
)

func TestRebuildLatestIngestionWins(t *testing.T) {
	raw := repository.NewMemoryRawPriceStore()
	canon := repository.NewMemoryCanonicalStore()
	ctx := context.Background()

	tradeDay := time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)
	oldIngest := time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)
	newIngest := time.Date(2024, 10, 11, 0, 0, 0, 0, time.UTC)

	early := priceRecord("AAPL", tradeDay, 100, 1000)
	early.IngestionDate = oldIngest
	corrected := priceRecord("AAPL", tradeDay, 99.5, 1000)
	corrected.IngestionDate = newIngest

	if err := raw.Write(ctx, oldIngest, []models.RawPriceRecord{early}); err != nil {
		t.Fatal(err)
	}
	if err := raw.Write(ctx, newIngest, []models.RawPriceRecord{corrected}); err != nil {
		t.Fatal(err)
	}

	b := NewCanonicalBuilder(raw, canon, nil)
	n, err := b.Rebuild(ctx)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if n != 1 {
		t.Fatalf("wrote %d rows, want 1 (duplicate must collapse)", n)
	}
	rows := canon.Rows()
	if rows[0].Close != 99.5 {
		t.Fatalf("close = %v, want the later ingestion's 99.5", rows[0].Close)
	}
}

func TestRebuildIsIdempotent(t *testing.T) {
	raw := repository.NewMemoryRawPriceStore()
	canon := repository.NewMemoryCanonicalStore()
	ctx := context.Background()

	day := time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)
	records := []models.RawPriceRecord{
		priceRecord("MSFT", day, 420, 5000),
		priceRecord("AAPL", day, 230, 9000),
		priceRecord("AAPL", day.AddDate(0, 0, -1), 228, 8000),
	}
	for i := range records {
		records[i].IngestionDate = day
	}
	if err := raw.Write(ctx, day, records); err != nil {
		t.Fatal(err)
	}

	b := NewCanonicalBuilder(raw, canon, nil)
	if _, err := b.Rebuild(ctx); err != nil {
		t.Fatalf("first rebuild: %v", err)
	}
	first := canon.Rows()
	if _, err := b.Rebuild(ctx); err != nil {
		t.Fatalf("second rebuild: %v", err)
	}
	second := canon.Rows()

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("rebuild is not idempotent:\n%+v\n%+v", first, second)
	}
}

func TestRebuildOrdersBySymbolThenDate(t *testing.T) {
	raw := repository.NewMemoryRawPriceStore()
	canon := repository.NewMemoryCanonicalStore()
	ctx := context.Background()

	day := time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)
	records := []models.RawPriceRecord{
		priceRecord("MSFT", day, 420, 5000),
		priceRecord("AAPL", day, 230, 9000),
		priceRecord("AAPL", day.AddDate(0, 0, -1), 228, 8000),
	}
	for i := range records {
		records[i].IngestionDate = day
	}
	if err := raw.Write(ctx, day, records); err != nil {
		t.Fatal(err)
	}

	if _, err := NewCanonicalBuilder(raw, canon, nil).Rebuild(ctx); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	rows := canon.Rows()
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[0].Symbol != "AAPL" || rows[1].Symbol != "AAPL" || rows[2].Symbol != "MSFT" {
		t.Fatalf("symbol order wrong: %s, %s, %s", rows[0].Symbol, rows[1].Symbol, rows[2].Symbol)
	}
	if !rows[0].TradeDate.Before(rows[1].TradeDate) {
		t.Fatal("AAPL rows not ordered by trade date")
	}
}

func TestRebuildEmptyBronzeYieldsEmptyTable(t *testing.T) {
	raw := repository.NewMemoryRawPriceStore()
	canon := repository.NewMemoryCanonicalStore()

	n, err := NewCanonicalBuilder(raw, canon, nil).Rebuild(context.Background())
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if n != 0 {
		t.Fatalf("wrote %d rows, want 0", n)
	}
}
